package fairserver

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/lootcase"
	"github.com/cory-johannsen/fairplay/internal/game/session"
)

// Client is a typed FairnessService client.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// RolledCase is the response of Client.Roll.
type RolledCase struct {
	Record     session.RollRecord
	Result     fairness.RollResult
	Commitment string
}

// VerifyResult is the response of Client.Verify.
type VerifyResult struct {
	Valid  bool
	Reason string
	Result fairness.RollResult
	Item   string
}

// AuditResult is the response of Client.Audit.
type AuditResult struct {
	Verified int
	Valid    bool
	Reason   string
}

func (c *Client) call(ctx context.Context, method string, fields map[string]*structpb.Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), newStruct(fields), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateClientSeed asks the server for a fresh client seed.
func (c *Client) GenerateClientSeed(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out, err := c.call(ctx, MethodGenerateClientSeed, nil, opts...)
	if err != nil {
		return "", err
	}
	return stringField(out, "client_seed")
}

// CalculateRoll computes a roll server-side without touching any session.
func (c *Client) CalculateRoll(ctx context.Context, serverSeed, clientSeed string, nonce uint64, opts ...grpc.CallOption) (fairness.RollResult, error) {
	out, err := c.call(ctx, MethodCalculateRoll, map[string]*structpb.Value{
		"server_seed": str(serverSeed),
		"client_seed": str(clientSeed),
		"nonce":       nonceValue(nonce),
	}, opts...)
	if err != nil {
		return fairness.RollResult{}, err
	}
	return decodeRollResult(out)
}

// ListCases returns the case catalogue. Returned cases are not validated.
func (c *Client) ListCases(ctx context.Context, opts ...grpc.CallOption) ([]lootcase.Case, error) {
	out, err := c.call(ctx, MethodListCases, nil, opts...)
	if err != nil {
		return nil, err
	}
	values := listField(out, "cases")
	cases := make([]lootcase.Case, 0, len(values))
	for i, v := range values {
		lc, err := decodeCase(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("cases[%d]: %w", i, err)
		}
		cases = append(cases, lc)
	}
	return cases, nil
}

// OpenSession returns the player's active seed pair, creating one if needed.
func (c *Client) OpenSession(ctx context.Context, playerID, clientSeed string, opts ...grpc.CallOption) (session.SeedPair, error) {
	out, err := c.call(ctx, MethodOpenSession, map[string]*structpb.Value{
		"player_id":   str(playerID),
		"client_seed": str(clientSeed),
	}, opts...)
	if err != nil {
		return session.SeedPair{}, err
	}
	return decodeSeedPair(out)
}

// Roll opens caseID for playerID.
func (c *Client) Roll(ctx context.Context, playerID, caseID string, opts ...grpc.CallOption) (RolledCase, error) {
	out, err := c.call(ctx, MethodRoll, map[string]*structpb.Value{
		"player_id": str(playerID),
		"case_id":   str(caseID),
	}, opts...)
	if err != nil {
		return RolledCase{}, err
	}
	rec, err := decodeRollRecord(structField(out, "record"))
	if err != nil {
		return RolledCase{}, err
	}
	result, err := decodeRollResult(structField(out, "result"))
	if err != nil {
		return RolledCase{}, err
	}
	commitment, err := stringField(out, "commitment")
	if err != nil {
		return RolledCase{}, err
	}
	return RolledCase{Record: rec, Result: result, Commitment: commitment}, nil
}

// RotateSeed reveals the active pair and opens a new one with clientSeed
// (generated server-side when empty).
func (c *Client) RotateSeed(ctx context.Context, playerID, clientSeed string, opts ...grpc.CallOption) (revealed, next session.SeedPair, err error) {
	out, err := c.call(ctx, MethodRotateSeed, map[string]*structpb.Value{
		"player_id":   str(playerID),
		"client_seed": str(clientSeed),
	}, opts...)
	if err != nil {
		return session.SeedPair{}, session.SeedPair{}, err
	}
	if revealed, err = decodeSeedPair(structField(out, "revealed")); err != nil {
		return session.SeedPair{}, session.SeedPair{}, err
	}
	if next, err = decodeSeedPair(structField(out, "next")); err != nil {
		return session.SeedPair{}, session.SeedPair{}, err
	}
	return revealed, next, nil
}

// GetSeedPair fetches a pair by ID; the server seed is only set once revealed.
func (c *Client) GetSeedPair(ctx context.Context, seedPairID string, opts ...grpc.CallOption) (session.SeedPair, error) {
	out, err := c.call(ctx, MethodGetSeedPair, map[string]*structpb.Value{
		"seed_pair_id": str(seedPairID),
	}, opts...)
	if err != nil {
		return session.SeedPair{}, err
	}
	return decodeSeedPair(out)
}

// History returns the roll ledger of a pair ordered by nonce.
func (c *Client) History(ctx context.Context, seedPairID string, opts ...grpc.CallOption) ([]session.RollRecord, error) {
	out, err := c.call(ctx, MethodHistory, map[string]*structpb.Value{
		"seed_pair_id": str(seedPairID),
	}, opts...)
	if err != nil {
		return nil, err
	}
	values := listField(out, "rolls")
	rolls := make([]session.RollRecord, 0, len(values))
	for i, v := range values {
		r, err := decodeRollRecord(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("rolls[%d]: %w", i, err)
		}
		rolls = append(rolls, r)
	}
	return rolls, nil
}

// Audit re-verifies every roll of a revealed pair server-side.
func (c *Client) Audit(ctx context.Context, seedPairID string, opts ...grpc.CallOption) (AuditResult, error) {
	out, err := c.call(ctx, MethodAudit, map[string]*structpb.Value{
		"seed_pair_id": str(seedPairID),
	}, opts...)
	if err != nil {
		return AuditResult{}, err
	}
	verified, err := requiredUint64(out, "verified")
	if err != nil {
		return AuditResult{}, err
	}
	reason, err := stringField(out, "reason")
	if err != nil {
		return AuditResult{}, err
	}
	return AuditResult{
		Verified: int(verified),
		Valid:    out.GetFields()["valid"].GetBoolValue(),
		Reason:   reason,
	}, nil
}

// Verify checks a proof server-side. caseID may be empty to skip the
// outcome check.
func (c *Client) Verify(ctx context.Context, p fairness.Proof, caseID string, opts ...grpc.CallOption) (VerifyResult, error) {
	out, err := c.call(ctx, MethodVerify, map[string]*structpb.Value{
		"server_seed": str(p.ServerSeed),
		"commitment":  str(p.Commitment),
		"client_seed": str(p.ClientSeed),
		"nonce":       nonceValue(p.Nonce),
		"roll":        num(p.Roll),
		"case_id":     str(caseID),
		"item":        str(p.Item),
	}, opts...)
	if err != nil {
		return VerifyResult{}, err
	}
	result, err := decodeRollResult(structField(out, "result"))
	if err != nil {
		return VerifyResult{}, err
	}
	reason, err := stringField(out, "reason")
	if err != nil {
		return VerifyResult{}, err
	}
	item, err := stringField(out, "item")
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		Valid:  out.GetFields()["valid"].GetBoolValue(),
		Reason: reason,
		Result: result,
		Item:   item,
	}, nil
}
