package fairserver

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	authorizationHeader = "authorization"
	bearerPrefix        = "Bearer "
	healthServicePrefix = "/grpc.health.v1.Health/"
)

// HashToken returns the bcrypt hash of an API token for auth.token_hash.
//
// Precondition: token must be non-empty and at most 72 bytes.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckToken compares a plaintext token against a bcrypt hash.
//
// Postcondition: Returns true if token matches the hash.
func CheckToken(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// TokenAuth authenticates unary calls with a bearer token checked against a
// bcrypt hash. A TokenAuth with an empty hash admits every call.
//
// The SHA-256 digest of the last token bcrypt accepted is kept so repeat calls
// skip the bcrypt comparison. Tokens that do not match it always go to bcrypt.
type TokenAuth struct {
	hash     string
	logger   *zap.Logger
	check    func(token, hash string) bool
	accepted atomic.Pointer[[sha256.Size]byte]
}

// NewTokenAuth creates a TokenAuth. The hash is never logged.
func NewTokenAuth(hash string, logger *zap.Logger) *TokenAuth {
	return &TokenAuth{hash: hash, logger: logger, check: CheckToken}
}

// verify reports whether token matches the configured hash.
func (a *TokenAuth) verify(token string) bool {
	digest := sha256.Sum256([]byte(token))
	if known := a.accepted.Load(); known != nil && subtle.ConstantTimeCompare(known[:], digest[:]) == 1 {
		return true
	}
	if !a.check(token, a.hash) {
		return false
	}
	a.accepted.Store(&digest)
	return true
}

// Enabled reports whether calls must carry a token.
func (a *TokenAuth) Enabled() bool {
	return a != nil && a.hash != ""
}

// UnaryInterceptor rejects calls without a valid bearer token.
// Health checks are always admitted.
func (a *TokenAuth) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.Enabled() || strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}
		token, ok := bearerToken(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		if !a.verify(token) {
			a.logger.Warn("rejected api token", zap.String("method", info.FullMethod))
			return nil, status.Error(codes.Unauthenticated, "invalid bearer token")
		}
		return handler(ctx, req)
	}
}

func bearerToken(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get(authorizationHeader) {
		if strings.HasPrefix(v, bearerPrefix) {
			if token := strings.TrimSpace(strings.TrimPrefix(v, bearerPrefix)); token != "" {
				return token, true
			}
		}
	}
	return "", false
}

// BearerToken returns per-RPC credentials that send token in the
// authorization header.
func BearerToken(token string, requireTLS bool) credentials.PerRPCCredentials {
	return bearerCredentials{token: token, requireTLS: requireTLS}
}

type bearerCredentials struct {
	token      string
	requireTLS bool
}

func (b bearerCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{authorizationHeader: bearerPrefix + b.token}, nil
}

func (b bearerCredentials) RequireTransportSecurity() bool {
	return b.requireTLS
}
