// Package main provides fairverify, an offline verifier for fairplay rolls.
//
// With seeds on the command line it recomputes rolls locally. With -addr and
// -seed-pair it downloads a revealed pair and its roll ledger from a running
// fairserver and re-verifies every roll without trusting the server's answer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cory-johannsen/fairplay/internal/fairserver"
	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/lootcase"
)

// errVerificationFailed is returned when at least one roll does not verify.
var errVerificationFailed = errors.New("verification failed")

type options struct {
	serverSeed string
	commitment string
	clientSeed string
	nonce      uint64
	count      int
	roll       float64
	hasRoll    bool
	item       string
	casesDir   string
	caseID     string
	caseFile   string
	legacy     bool

	addr     string
	seedPair string
	token    string
	timeout  time.Duration
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fairverify: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		return verifyRemote(opts, out)
	}
	return verifyLocal(opts, out)
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("fairverify", flag.ContinueOnError)
	fs.StringVar(&opts.serverSeed, "server-seed", "", "revealed server seed")
	fs.StringVar(&opts.commitment, "commitment", "", "published commitment (SHA-256 of the server seed); checked when set")
	fs.StringVar(&opts.clientSeed, "client-seed", "", "client seed")
	fs.Uint64Var(&opts.nonce, "nonce", 0, "first nonce")
	fs.IntVar(&opts.count, "count", 1, "number of consecutive nonces to compute")
	roll := fs.Float64("roll", -1, "claimed roll for -nonce; checked when >= 0")
	fs.StringVar(&opts.item, "item", "", "claimed item for -nonce; checked with -case")
	fs.StringVar(&opts.casesDir, "cases-dir", "content/cases", "directory of case YAML files")
	fs.StringVar(&opts.caseID, "case", "", "case ID whose table resolves the rolls")
	fs.StringVar(&opts.caseFile, "case-file", "", "single case YAML file whose table resolves the rolls; overrides -case")
	fs.BoolVar(&opts.legacy, "legacy", false, "resolve with the unvalidated first-entry fallback used for tables recorded before validation")
	fs.StringVar(&opts.addr, "addr", "", "fairserver address; enables remote verification of -seed-pair")
	fs.StringVar(&opts.seedPair, "seed-pair", "", "ID of a revealed seed pair to audit")
	fs.StringVar(&opts.token, "token", os.Getenv("FAIRPLAY_API_TOKEN"), "API bearer token")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "remote call timeout")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if *roll >= 0 {
		opts.roll, opts.hasRoll = *roll, true
	}
	if opts.count < 1 {
		return opts, fmt.Errorf("-count must be >= 1, got %d", opts.count)
	}
	return opts, nil
}

// resolver maps a roll to the item it selects.
type resolver func(roll float64) (string, error)

func loadResolver(opts options) (resolver, error) {
	var c *lootcase.Case
	switch {
	case opts.caseFile != "":
		data, err := os.ReadFile(filepath.Clean(opts.caseFile))
		if err != nil {
			return nil, fmt.Errorf("reading case file: %w", err)
		}
		if c, err = lootcase.ParseCase(data); err != nil {
			return nil, err
		}
	case opts.caseID != "":
		reg, err := lootcase.NewRegistryFromDir(filepath.Clean(opts.casesDir))
		if err != nil {
			return nil, err
		}
		var ok bool
		if c, ok = reg.Case(opts.caseID); !ok {
			return nil, fmt.Errorf("unknown case %q in %s", opts.caseID, opts.casesDir)
		}
	case opts.legacy:
		return nil, errors.New("-legacy needs -case-file or -case")
	default:
		return nil, nil
	}

	if opts.legacy {
		outcomes := c.Outcomes
		return func(roll float64) (string, error) {
			o, ok := fairness.ResolveEntries(outcomes, roll)
			if !ok {
				return "", fmt.Errorf("case %q has no outcomes", c.ID)
			}
			return o.Item, nil
		}, nil
	}
	if c.Table() == nil {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w (use -legacy for tables recorded before validation)", err)
		}
	}
	table := c.Table()
	return func(roll float64) (string, error) {
		o, err := table.Resolve(roll)
		return o.Item, err
	}, nil
}

func verifyLocal(opts options, out io.Writer) error {
	if opts.serverSeed == "" || opts.clientSeed == "" {
		return errors.New("-server-seed and -client-seed are required")
	}
	resolve, err := loadResolver(opts)
	if err != nil {
		return err
	}

	failed := false
	if opts.commitment != "" {
		if fairness.VerifyCommitment(opts.serverSeed, opts.commitment) {
			fmt.Fprintf(out, "commitment OK  %s\n", opts.commitment)
		} else {
			fmt.Fprintf(out, "commitment FAIL  sha256(server seed) = %s\n", fairness.Commit(opts.serverSeed))
			failed = true
		}
	}

	for i := 0; i < opts.count; i++ {
		nonce := opts.nonce + uint64(i)
		result := fairness.Evaluate(opts.serverSeed, opts.clientSeed, nonce)
		line := result.String()
		if resolve != nil {
			item, err := resolve(result.Value)
			if err != nil {
				return fmt.Errorf("nonce %d: %w", nonce, err)
			}
			line += "  " + item
			if i == 0 && opts.item != "" && item != opts.item {
				line += fmt.Sprintf("  FAIL claimed %q", opts.item)
				failed = true
			}
		}
		if i == 0 && opts.hasRoll && result.Value != opts.roll {
			line += fmt.Sprintf("  FAIL claimed roll %v", opts.roll)
			failed = true
		}
		fmt.Fprintln(out, line)
	}

	if failed {
		return errVerificationFailed
	}
	return nil
}

func verifyRemote(opts options, out io.Writer) error {
	if opts.seedPair == "" {
		return errors.New("-seed-pair is required with -addr")
	}
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if opts.token != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(fairserver.BearerToken(opts.token, false)))
	}
	conn, err := grpc.NewClient(opts.addr, dialOpts...)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", opts.addr, err)
	}
	defer conn.Close()
	return auditPair(fairserver.NewClient(conn), opts, out)
}

// auditPair re-derives every roll of a revealed pair using only the pair's
// seeds and the published case tables.
func auditPair(client *fairserver.Client, opts options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	pair, err := client.GetSeedPair(ctx, opts.seedPair)
	if err != nil {
		return fmt.Errorf("fetching seed pair: %w", err)
	}
	if !pair.Revealed() {
		return fmt.Errorf("seed pair %s has not been revealed yet; rotate the seed first", pair.ID)
	}
	rolls, err := client.History(ctx, pair.ID)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}
	cases, err := client.ListCases(ctx)
	if err != nil {
		return fmt.Errorf("fetching cases: %w", err)
	}
	tables := make(map[string]*fairness.Table, len(cases))
	for _, c := range cases {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("published case %q is invalid: %w", c.ID, err)
		}
		tables[c.ID] = c.Table()
	}

	fmt.Fprintf(out, "seed pair %s  commitment %s  rolls %d\n", pair.ID, pair.Commitment, len(rolls))
	failures := 0
	for _, r := range rolls {
		table, ok := tables[r.CaseID]
		if !ok {
			failures++
			fmt.Fprintf(out, "FAIL %s#%d  %s: unknown case\n", pair.ClientSeed, r.Nonce, r.CaseID)
			continue
		}
		v, err := fairness.Verify(fairness.Proof{
			ServerSeed: pair.ServerSeed,
			Commitment: pair.Commitment,
			ClientSeed: pair.ClientSeed,
			Nonce:      r.Nonce,
			Roll:       r.Roll,
			Item:       r.Item,
		}, table)
		if err != nil {
			failures++
			fmt.Fprintf(out, "FAIL %s  %s: %v\n", v.Result, r.CaseID, err)
			continue
		}
		fmt.Fprintf(out, "OK   %s  %s  %s\n", v.Result, r.CaseID, r.Item)
	}
	if failures > 0 {
		return fmt.Errorf("%w: %d of %d rolls", errVerificationFailed, failures, len(rolls))
	}
	return nil
}
