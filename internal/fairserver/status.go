package fairserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/session"
)

// statusCode maps a domain error to the gRPC code clients see.
func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, session.ErrInvalidPlayer),
		errors.Is(err, session.ErrInvalidClientSeed),
		errors.Is(err, fairness.ErrRollOutOfRange):
		return codes.InvalidArgument
	case errors.Is(err, session.ErrSeedPairNotFound),
		errors.Is(err, session.ErrUnknownCase):
		return codes.NotFound
	case errors.Is(err, session.ErrNoActiveSeedPair),
		errors.Is(err, session.ErrNotRevealed):
		return codes.FailedPrecondition
	case errors.Is(err, session.ErrActiveSeedPairExists):
		return codes.AlreadyExists
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// toStatus converts err into a gRPC status error. Internal errors are logged
// and replaced with a generic message so storage details never reach clients.
func toStatus(logger *zap.Logger, method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := statusCode(err)
	if code == codes.Internal {
		logger.Error("request failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
