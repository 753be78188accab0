package fairserver_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cory-johannsen/fairplay/internal/fairserver"
	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/lootcase"
	"github.com/cory-johannsen/fairplay/internal/game/session"
)

const testToken = "s3cret-token"

type testEnv struct {
	client *fairserver.Client
	conn   *grpc.ClientConn
	store  *session.MemoryStore
}

// startServer runs the service in-process over bufconn. A non-empty
// tokenHash enables bearer token auth.
func startServer(t *testing.T, tokenHash string, dialOpts ...grpc.DialOption) testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cases := lootcase.NewRegistry()
	require.NoError(t, cases.Register(&lootcase.Case{
		ID:    "starter",
		Name:  "Starter Case",
		Price: 2.5,
		Outcomes: []fairness.Outcome{
			{Item: "sticker", Odds: 0.5},
			{Item: "skin", Odds: 0.3},
			{Item: "knife", Odds: 0.2},
		},
	}))
	store := session.NewMemoryStore()
	engine := fairness.NewEngine(fairness.NewCryptoSource(), logger)
	svc := fairserver.NewService(session.NewManager(store, cases, engine, logger), cases, engine, logger)

	srv := fairserver.NewServer("bufconn", svc, fairserver.NewTokenAuth(tokenHash, logger), logger)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	opts := append([]grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, dialOpts...)
	conn, err := grpc.NewClient("passthrough:///bufconn", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return testEnv{client: fairserver.NewClient(conn), conn: conn, store: store}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGenerateClientSeed(t *testing.T) {
	env := startServer(t, "")
	seed, err := env.client.GenerateClientSeed(testContext(t))
	require.NoError(t, err)
	assert.Len(t, seed, 32)
}

func TestCalculateRoll_ConformanceVector(t *testing.T) {
	env := startServer(t, "")
	r, err := env.client.CalculateRoll(testContext(t), "server123", "client456", 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x6fe65ba8), r.Slice)
	assert.Equal(t, "6fe65ba80d80f928e91a3c8321eb94d40b1754a9a6556f03bf48415f47c38818", r.Digest)
	assert.Equal(t, float64(1877367720)/float64(0xFFFFFFFF), r.Value)
	assert.Equal(t, fairness.CalculateRoll("server123", "client456", 0), r.Value)
}

func TestCalculateRoll_LargeNonceIsExact(t *testing.T) {
	env := startServer(t, "")
	const nonce = uint64(1<<63 + 7)
	r, err := env.client.CalculateRoll(testContext(t), "a", "b", nonce)
	require.NoError(t, err)
	assert.Equal(t, nonce, r.Nonce)
	assert.Equal(t, fairness.CalculateRoll("a", "b", nonce), r.Value)
}

func TestCalculateRoll_MissingFields(t *testing.T) {
	env := startServer(t, "")
	_, err := env.client.CalculateRoll(testContext(t), "", "client", 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListCases(t *testing.T) {
	env := startServer(t, "")
	cases, err := env.client.ListCases(testContext(t))
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "starter", cases[0].ID)
	assert.Equal(t, 2.5, cases[0].Price)
	require.Len(t, cases[0].Outcomes, 3)
	assert.Equal(t, fairness.Outcome{Item: "knife", Odds: 0.2}, cases[0].Outcomes[2])
}

func TestSessionFlow(t *testing.T) {
	env := startServer(t, "")
	ctx := testContext(t)

	pair, err := env.client.OpenSession(ctx, "alice", "client456")
	require.NoError(t, err)
	assert.Empty(t, pair.ServerSeed, "active server seed must not leave the server")
	assert.Len(t, pair.Commitment, 64)

	var rolls []fairserver.RolledCase
	for i := 0; i < 5; i++ {
		r, err := env.client.Roll(ctx, "alice", "starter")
		require.NoError(t, err)
		assert.Equal(t, uint64(i), r.Record.Nonce)
		assert.Equal(t, pair.Commitment, r.Commitment)
		assert.Equal(t, r.Result.Value, r.Record.Roll)
		rolls = append(rolls, r)
	}

	history, err := env.client.History(ctx, pair.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, h := range history {
		assert.Equal(t, rolls[i].Record.ID, h.ID)
		assert.Equal(t, rolls[i].Record.Roll, h.Roll)
	}

	_, err = env.client.Audit(ctx, pair.ID)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	revealed, next, err := env.client.RotateSeed(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, pair.ID, revealed.ID)
	require.NotNil(t, revealed.RevealedAt)
	assert.True(t, fairness.VerifyCommitment(revealed.ServerSeed, pair.Commitment))
	assert.Empty(t, next.ServerSeed)
	assert.NotEqual(t, pair.ID, next.ID)

	fetched, err := env.client.GetSeedPair(ctx, pair.ID)
	require.NoError(t, err)
	assert.Equal(t, revealed.ServerSeed, fetched.ServerSeed)
	assert.Equal(t, uint64(5), fetched.Nonce)

	audit, err := env.client.Audit(ctx, pair.ID)
	require.NoError(t, err)
	assert.True(t, audit.Valid)
	assert.Equal(t, 5, audit.Verified)

	for _, r := range rolls {
		v, err := env.client.Verify(ctx, fairness.Proof{
			ServerSeed: revealed.ServerSeed,
			Commitment: revealed.Commitment,
			ClientSeed: revealed.ClientSeed,
			Nonce:      r.Record.Nonce,
			Roll:       r.Record.Roll,
			Item:       r.Record.Item,
		}, "starter")
		require.NoError(t, err)
		assert.True(t, v.Valid, v.Reason)
		assert.Equal(t, r.Record.Item, v.Item)
	}
}

func TestVerify_ReportsMismatch(t *testing.T) {
	env := startServer(t, "")
	seed := "server123"
	v, err := env.client.Verify(testContext(t), fairness.Proof{
		ServerSeed: seed,
		Commitment: fairness.Commit(seed),
		ClientSeed: "client456",
		Nonce:      0,
		Roll:       0.5,
	}, "")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Reason, "roll does not match")
	assert.Equal(t, fairness.CalculateRoll(seed, "client456", 0), v.Result.Value)
}

func TestVerify_UnknownCase(t *testing.T) {
	env := startServer(t, "")
	_, err := env.client.Verify(testContext(t), fairness.Proof{
		ServerSeed: "s",
		Commitment: fairness.Commit("s"),
		ClientSeed: "c",
		Roll:       fairness.CalculateRoll("s", "c", 0),
		Item:       "knife",
	}, "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestStatusCodes(t *testing.T) {
	env := startServer(t, "")
	ctx := testContext(t)

	_, err := env.client.Roll(ctx, "bob", "starter")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err), "no active pair")

	_, err = env.client.OpenSession(ctx, "bob", "")
	require.NoError(t, err)
	_, err = env.client.Roll(ctx, "bob", "missing")
	assert.Equal(t, codes.NotFound, status.Code(err), "unknown case")

	_, err = env.client.GetSeedPair(ctx, "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = env.client.OpenSession(ctx, "", "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAuth_RejectsMissingAndWrongTokens(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	require.NoError(t, err)
	env := startServer(t, string(hash))
	ctx := testContext(t)

	_, err = env.client.GenerateClientSeed(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = env.client.GenerateClientSeed(ctx, grpc.PerRPCCredentials(fairserver.BearerToken("wrong", false)))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	seed, err := env.client.GenerateClientSeed(ctx, grpc.PerRPCCredentials(fairserver.BearerToken(testToken, false)))
	require.NoError(t, err)
	assert.NotEmpty(t, seed)
}

func TestAuth_HealthBypassesToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	require.NoError(t, err)
	env := startServer(t, string(hash))

	resp, err := healthpb.NewHealthClient(env.conn).Check(testContext(t), &healthpb.HealthCheckRequest{
		Service: fairserver.ServiceName,
	})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestAuth_DialOptionCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	require.NoError(t, err)
	env := startServer(t, string(hash), grpc.WithPerRPCCredentials(fairserver.BearerToken(testToken, false)))

	_, err = env.client.ListCases(testContext(t))
	assert.NoError(t, err)
}
