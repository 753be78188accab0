package fairserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/session"
)

func TestUint64Field(t *testing.T) {
	tests := []struct {
		name    string
		value   *structpb.Value
		want    uint64
		present bool
		wantErr bool
	}{
		{name: "decimal string", value: structpb.NewStringValue("18446744073709551615"), want: 1<<64 - 1, present: true},
		{name: "integral number", value: structpb.NewNumberValue(42), want: 42, present: true},
		{name: "null", value: structpb.NewNullValue()},
		{name: "negative number", value: structpb.NewNumberValue(-1), wantErr: true},
		{name: "fractional number", value: structpb.NewNumberValue(1.5), wantErr: true},
		{name: "inexact number", value: structpb.NewNumberValue(1 << 60), wantErr: true},
		{name: "garbage string", value: structpb.NewStringValue("12abc"), wantErr: true},
		{name: "bool", value: structpb.NewBoolValue(true), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStruct(map[string]*structpb.Value{"nonce": tt.value})
			got, present, err := uint64Field(s, "nonce")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.present, present)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringField_RejectsWrongKind(t *testing.T) {
	s := newStruct(map[string]*structpb.Value{"player_id": structpb.NewNumberValue(7)})
	_, err := stringField(s, "player_id")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = requiredString(newStruct(nil), "player_id")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSeedPairEncoding(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)
	revealed := created.Add(time.Hour)
	p := session.SeedPair{
		ID:         "pair-1",
		PlayerID:   "alice",
		ServerSeed: "seed",
		Commitment: fairness.Commit("seed"),
		ClientSeed: "client",
		Nonce:      1<<63 + 1,
		CreatedAt:  created,
		RevealedAt: &revealed,
	}
	got, err := decodeSeedPair(encodeSeedPair(p))
	require.NoError(t, err)
	assert.Equal(t, p.Nonce, got.Nonce)
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.RevealedAt)
	assert.True(t, revealed.Equal(*got.RevealedAt))

	active := p.Redacted()
	active.RevealedAt = nil
	enc := encodeSeedPair(active.Redacted())
	_, hasSeed := enc.GetFields()["server_seed"]
	assert.False(t, hasSeed)
	assert.False(t, enc.GetFields()["revealed"].GetBoolValue())
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{invalid("x"), codes.InvalidArgument},
		{session.ErrInvalidPlayer, codes.InvalidArgument},
		{session.ErrSeedPairNotFound, codes.NotFound},
		{session.ErrUnknownCase, codes.NotFound},
		{session.ErrNoActiveSeedPair, codes.FailedPrecondition},
		{session.ErrNotRevealed, codes.FailedPrecondition},
		{session.ErrActiveSeedPairExists, codes.AlreadyExists},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.err), tt.err.Error())
	}
}

func TestToStatus_HidesInternalErrors(t *testing.T) {
	err := toStatus(zaptest.NewLogger(t), MethodRoll, errors.New("pq: password authentication failed"))
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "password")

	existing := status.Error(codes.Unauthenticated, "nope")
	assert.Equal(t, existing, toStatus(zaptest.NewLogger(t), MethodRoll, existing))
	assert.NoError(t, toStatus(zaptest.NewLogger(t), MethodRoll, nil))
}
