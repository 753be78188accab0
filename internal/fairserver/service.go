package fairserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/lootcase"
	"github.com/cory-johannsen/fairplay/internal/game/session"
)

// Catalog lists and resolves loot cases.
type Catalog interface {
	Case(id string) (*lootcase.Case, bool)
	All() []*lootcase.Case
}

// Service implements FairnessServiceServer on top of the session manager.
type Service struct {
	sessions *session.Manager
	cases    Catalog
	engine   *fairness.Engine
	logger   *zap.Logger
}

// NewService creates a Service.
//
// Precondition: all arguments must be non-nil.
func NewService(sessions *session.Manager, cases Catalog, engine *fairness.Engine, logger *zap.Logger) *Service {
	return &Service{sessions: sessions, cases: cases, engine: engine, logger: logger}
}

var _ FairnessServiceServer = (*Service)(nil)

// GenerateClientSeed returns {client_seed}.
func (s *Service) GenerateClientSeed(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return newStruct(map[string]*structpb.Value{
		"client_seed": str(s.engine.ClientSeed()),
	}), nil
}

// CalculateRoll is stateless: {server_seed, client_seed, nonce} returns the
// roll with its digest and 32-bit slice.
func (s *Service) CalculateRoll(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	serverSeed, err := requiredString(req, "server_seed")
	if err != nil {
		return nil, s.fail(MethodCalculateRoll, err)
	}
	clientSeed, err := requiredString(req, "client_seed")
	if err != nil {
		return nil, s.fail(MethodCalculateRoll, err)
	}
	nonce, err := requiredUint64(req, "nonce")
	if err != nil {
		return nil, s.fail(MethodCalculateRoll, err)
	}
	return newStruct(encodeRollResult(fairness.Evaluate(serverSeed, clientSeed, nonce))), nil
}

// ListCases returns {cases: [...]} sorted by ID.
func (s *Service) ListCases(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	all := s.cases.All()
	values := make([]*structpb.Value, 0, len(all))
	for _, c := range all {
		values = append(values, encodeCase(c))
	}
	return newStruct(map[string]*structpb.Value{"cases": list(values)}), nil
}

// OpenSession takes {player_id, client_seed?} and returns the active pair.
func (s *Service) OpenSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	playerID, err := requiredString(req, "player_id")
	if err != nil {
		return nil, s.fail(MethodOpenSession, err)
	}
	clientSeed, err := stringField(req, "client_seed")
	if err != nil {
		return nil, s.fail(MethodOpenSession, err)
	}
	pair, err := s.sessions.Open(ctx, playerID, clientSeed)
	if err != nil {
		return nil, s.fail(MethodOpenSession, err)
	}
	return encodeSeedPair(pair), nil
}

// Roll takes {player_id, case_id} and returns {roll, result, commitment}.
func (s *Service) Roll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	playerID, err := requiredString(req, "player_id")
	if err != nil {
		return nil, s.fail(MethodRoll, err)
	}
	caseID, err := requiredString(req, "case_id")
	if err != nil {
		return nil, s.fail(MethodRoll, err)
	}
	out, err := s.sessions.Roll(ctx, playerID, caseID)
	if err != nil {
		return nil, s.fail(MethodRoll, err)
	}
	return newStruct(map[string]*structpb.Value{
		"record":     structpb.NewStructValue(encodeRollRecord(out.Record)),
		"result":     obj(encodeRollResult(out.Result)),
		"commitment": str(out.Commitment),
	}), nil
}

// RotateSeed takes {player_id, client_seed?} and returns {revealed, next}.
// A non-empty client_seed is how a player changes their client seed.
func (s *Service) RotateSeed(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	playerID, err := requiredString(req, "player_id")
	if err != nil {
		return nil, s.fail(MethodRotateSeed, err)
	}
	clientSeed, err := stringField(req, "client_seed")
	if err != nil {
		return nil, s.fail(MethodRotateSeed, err)
	}
	revealed, next, err := s.sessions.Rotate(ctx, playerID, clientSeed)
	if err != nil {
		return nil, s.fail(MethodRotateSeed, err)
	}
	return newStruct(map[string]*structpb.Value{
		"revealed": structpb.NewStructValue(encodeSeedPair(revealed)),
		"next":     structpb.NewStructValue(encodeSeedPair(next)),
	}), nil
}

// GetSeedPair takes {seed_pair_id}.
func (s *Service) GetSeedPair(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredString(req, "seed_pair_id")
	if err != nil {
		return nil, s.fail(MethodGetSeedPair, err)
	}
	pair, err := s.sessions.SeedPair(ctx, id)
	if err != nil {
		return nil, s.fail(MethodGetSeedPair, err)
	}
	return encodeSeedPair(pair), nil
}

// History takes {seed_pair_id} and returns {rolls: [...]} ordered by nonce.
func (s *Service) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredString(req, "seed_pair_id")
	if err != nil {
		return nil, s.fail(MethodHistory, err)
	}
	rolls, err := s.sessions.History(ctx, id)
	if err != nil {
		return nil, s.fail(MethodHistory, err)
	}
	values := make([]*structpb.Value, 0, len(rolls))
	for _, r := range rolls {
		values = append(values, structpb.NewStructValue(encodeRollRecord(r)))
	}
	return newStruct(map[string]*structpb.Value{"rolls": list(values)}), nil
}

// Audit takes {seed_pair_id} of a revealed pair and returns
// {verified, valid, reason?}. A failed check is a valid answer, not an error.
func (s *Service) Audit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredString(req, "seed_pair_id")
	if err != nil {
		return nil, s.fail(MethodAudit, err)
	}
	verified, err := s.sessions.Audit(ctx, id)
	fields := map[string]*structpb.Value{
		"verified": num(float64(verified)),
		"valid":    boolean(err == nil),
	}
	switch {
	case err == nil:
	case isVerificationFailure(err):
		fields["reason"] = str(err.Error())
	default:
		return nil, s.fail(MethodAudit, err)
	}
	return newStruct(fields), nil
}

// Verify takes {server_seed, commitment, client_seed, nonce, roll} and, with
// case_id and item, checks the outcome too. It returns {valid, reason?,
// result, item?}.
func (s *Service) Verify(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	proof, caseID, err := decodeProof(req)
	if err != nil {
		return nil, s.fail(MethodVerify, err)
	}
	var table *fairness.Table
	if caseID != "" {
		c, ok := s.cases.Case(caseID)
		if !ok {
			return nil, s.fail(MethodVerify, fmt.Errorf("%w: %q", session.ErrUnknownCase, caseID))
		}
		table = c.Table()
	}

	v, err := fairness.Verify(proof, table)
	if err != nil && !isVerificationFailure(err) {
		return nil, s.fail(MethodVerify, err)
	}
	fields := map[string]*structpb.Value{
		"valid":  boolean(err == nil),
		"result": obj(encodeRollResult(v.Result)),
	}
	if err != nil {
		fields["reason"] = str(err.Error())
	}
	if v.Outcome != nil {
		fields["item"] = str(v.Outcome.Item)
	}
	return newStruct(fields), nil
}

func (s *Service) fail(method string, err error) error {
	return toStatus(s.logger, method, err)
}

func isVerificationFailure(err error) bool {
	return errors.Is(err, fairness.ErrCommitmentMismatch) ||
		errors.Is(err, fairness.ErrRollMismatch) ||
		errors.Is(err, fairness.ErrOutcomeMismatch)
}

func decodeProof(req *structpb.Struct) (fairness.Proof, string, error) {
	var (
		p   fairness.Proof
		err error
	)
	if p.ServerSeed, err = requiredString(req, "server_seed"); err != nil {
		return p, "", err
	}
	if p.Commitment, err = requiredString(req, "commitment"); err != nil {
		return p, "", err
	}
	if p.ClientSeed, err = requiredString(req, "client_seed"); err != nil {
		return p, "", err
	}
	if p.Nonce, err = requiredUint64(req, "nonce"); err != nil {
		return p, "", err
	}
	if p.Roll, err = requiredNumber(req, "roll"); err != nil {
		return p, "", err
	}
	caseID, err := stringField(req, "case_id")
	if err != nil {
		return p, "", err
	}
	if p.Item, err = stringField(req, "item"); err != nil {
		return p, "", err
	}
	if caseID != "" && p.Item == "" {
		return p, "", invalid("item is required when case_id is set")
	}
	return p, caseID, nil
}
