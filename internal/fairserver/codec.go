package fairserver

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/lootcase"
	"github.com/cory-johannsen/fairplay/internal/game/session"
)

// ErrInvalidArgument is wrapped by every request decoding failure.
var ErrInvalidArgument = errors.New("invalid argument")

// maxExactInteger is the largest integer a Struct number holds exactly.
const maxExactInteger = 1 << 53

func str(v string) *structpb.Value { return structpb.NewStringValue(v) }
func num(v float64) *structpb.Value { return structpb.NewNumberValue(v) }
func boolean(v bool) *structpb.Value { return structpb.NewBoolValue(v) }
func obj(fields map[string]*structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}
func list(values []*structpb.Value) *structpb.Value {
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// nonceValue renders n as a decimal string; a Struct number is a float64 and
// cannot hold every uint64.
func nonceValue(n uint64) *structpb.Value { return str(strconv.FormatUint(n, 10)) }

func timeValue(t time.Time) *structpb.Value {
	return str(t.UTC().Format(time.RFC3339Nano))
}

func newStruct(fields map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func stringField(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", invalid("%s must be a string", key)
	}
	return sv.StringValue, nil
}

func requiredString(s *structpb.Struct, key string) (string, error) {
	v, err := stringField(s, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", invalid("%s is required", key)
	}
	return v, nil
}

// uint64Field accepts a decimal string or an exact non-negative integer number.
func uint64Field(s *structpb.Struct, key string) (uint64, bool, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, false, invalid("%s must be a non-negative integer, got %q", key, k.StringValue)
		}
		return n, true, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f > maxExactInteger {
			return 0, false, invalid("%s must be a non-negative integer below 2^53, got %v", key, f)
		}
		return uint64(f), true, nil
	case *structpb.Value_NullValue:
		return 0, false, nil
	default:
		return 0, false, invalid("%s must be a non-negative integer", key)
	}
}

func requiredUint64(s *structpb.Struct, key string) (uint64, error) {
	n, ok, err := uint64Field(s, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, invalid("%s is required", key)
	}
	return n, nil
}

func requiredNumber(s *structpb.Struct, key string) (float64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, invalid("%s is required", key)
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, invalid("%s must be a number", key)
	}
	return nv.NumberValue, nil
}

func timeField(s *structpb.Struct, key string) (*time.Time, error) {
	raw, err := stringField(s, key)
	if err != nil || raw == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, invalid("%s must be an RFC 3339 timestamp, got %q", key, raw)
	}
	return &t, nil
}

func structField(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

func listField(s *structpb.Struct, key string) []*structpb.Value {
	return s.GetFields()[key].GetListValue().GetValues()
}

// encodeSeedPair renders p; the server seed is omitted unless present.
func encodeSeedPair(p session.SeedPair) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"id":          str(p.ID),
		"player_id":   str(p.PlayerID),
		"commitment":  str(p.Commitment),
		"client_seed": str(p.ClientSeed),
		"nonce":       nonceValue(p.Nonce),
		"created_at":  timeValue(p.CreatedAt),
		"revealed":    boolean(p.Revealed()),
	}
	if p.ServerSeed != "" {
		fields["server_seed"] = str(p.ServerSeed)
	}
	if p.RevealedAt != nil {
		fields["revealed_at"] = timeValue(*p.RevealedAt)
	}
	return newStruct(fields)
}

func decodeSeedPair(s *structpb.Struct) (session.SeedPair, error) {
	var (
		p   session.SeedPair
		err error
	)
	if s == nil {
		return p, invalid("seed pair is missing")
	}
	if p.ID, err = stringField(s, "id"); err != nil {
		return p, err
	}
	if p.PlayerID, err = stringField(s, "player_id"); err != nil {
		return p, err
	}
	if p.ServerSeed, err = stringField(s, "server_seed"); err != nil {
		return p, err
	}
	if p.Commitment, err = stringField(s, "commitment"); err != nil {
		return p, err
	}
	if p.ClientSeed, err = stringField(s, "client_seed"); err != nil {
		return p, err
	}
	if p.Nonce, _, err = uint64Field(s, "nonce"); err != nil {
		return p, err
	}
	created, err := timeField(s, "created_at")
	if err != nil {
		return p, err
	}
	if created != nil {
		p.CreatedAt = *created
	}
	if p.RevealedAt, err = timeField(s, "revealed_at"); err != nil {
		return p, err
	}
	return p, nil
}

func encodeRollRecord(r session.RollRecord) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		"id":           str(r.ID),
		"seed_pair_id": str(r.SeedPairID),
		"player_id":    str(r.PlayerID),
		"case_id":      str(r.CaseID),
		"nonce":        nonceValue(r.Nonce),
		"roll":         num(r.Roll),
		"item":         str(r.Item),
		"created_at":   timeValue(r.CreatedAt),
	})
}

func decodeRollRecord(s *structpb.Struct) (session.RollRecord, error) {
	var (
		r   session.RollRecord
		err error
	)
	if s == nil {
		return r, invalid("roll is missing")
	}
	if r.ID, err = stringField(s, "id"); err != nil {
		return r, err
	}
	if r.SeedPairID, err = stringField(s, "seed_pair_id"); err != nil {
		return r, err
	}
	if r.PlayerID, err = stringField(s, "player_id"); err != nil {
		return r, err
	}
	if r.CaseID, err = stringField(s, "case_id"); err != nil {
		return r, err
	}
	if r.Nonce, err = requiredUint64(s, "nonce"); err != nil {
		return r, err
	}
	if r.Roll, err = requiredNumber(s, "roll"); err != nil {
		return r, err
	}
	if r.Item, err = stringField(s, "item"); err != nil {
		return r, err
	}
	created, err := timeField(s, "created_at")
	if err != nil {
		return r, err
	}
	if created != nil {
		r.CreatedAt = *created
	}
	return r, nil
}

func encodeRollResult(r fairness.RollResult) map[string]*structpb.Value {
	return map[string]*structpb.Value{
		"client_seed": str(r.ClientSeed),
		"nonce":       nonceValue(r.Nonce),
		"digest":      str(r.Digest),
		"slice":       num(float64(r.Slice)),
		"roll":        num(r.Value),
	}
}

func decodeRollResult(s *structpb.Struct) (fairness.RollResult, error) {
	var (
		r   fairness.RollResult
		err error
	)
	if r.ClientSeed, err = stringField(s, "client_seed"); err != nil {
		return r, err
	}
	if r.Nonce, err = requiredUint64(s, "nonce"); err != nil {
		return r, err
	}
	if r.Digest, err = stringField(s, "digest"); err != nil {
		return r, err
	}
	slice, err := requiredUint64(s, "slice")
	if err != nil {
		return r, err
	}
	if slice > fairness.MaxSlice {
		return r, invalid("slice %d exceeds 32 bits", slice)
	}
	r.Slice = uint32(slice)
	if r.Value, err = requiredNumber(s, "roll"); err != nil {
		return r, err
	}
	return r, nil
}

func encodeCase(c *lootcase.Case) *structpb.Value {
	outcomes := make([]*structpb.Value, 0, len(c.Outcomes))
	for _, o := range c.Outcomes {
		outcomes = append(outcomes, obj(map[string]*structpb.Value{
			"item": str(o.Item),
			"odds": num(o.Odds),
		}))
	}
	return obj(map[string]*structpb.Value{
		"id":          str(c.ID),
		"name":        str(c.Name),
		"description": str(c.Description),
		"price":       num(c.Price),
		"outcomes":    list(outcomes),
	})
}

func decodeCase(s *structpb.Struct) (lootcase.Case, error) {
	var (
		c   lootcase.Case
		err error
	)
	if c.ID, err = requiredString(s, "id"); err != nil {
		return c, err
	}
	if c.Name, err = stringField(s, "name"); err != nil {
		return c, err
	}
	if c.Description, err = stringField(s, "description"); err != nil {
		return c, err
	}
	if c.Price, err = requiredNumber(s, "price"); err != nil {
		return c, err
	}
	for i, v := range listField(s, "outcomes") {
		o := v.GetStructValue()
		if o == nil {
			return c, invalid("outcomes[%d] must be an object", i)
		}
		item, err := requiredString(o, "item")
		if err != nil {
			return c, err
		}
		odds, err := requiredNumber(o, "odds")
		if err != nil {
			return c, err
		}
		c.Outcomes = append(c.Outcomes, fairness.Outcome{Item: item, Odds: odds})
	}
	return c, nil
}
