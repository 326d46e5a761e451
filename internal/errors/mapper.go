// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/oggyb/anon-relay/internal/domain"
	"github.com/oggyb/anon-relay/internal/repository"
)

// Map converts store/matchmaker errors into gRPC status errors.
// Errors that already carry a status pass through unchanged.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "user not found")

	case errors.Is(err, repository.ErrConflict):
		return status.Error(codes.Aborted, "concurrent update, retry")

	case errors.Is(err, domain.ErrInvalidGender), errors.As(err, &verrs):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		// fallback → bubble up error message for debugging
		return status.Error(codes.Internal, err.Error())
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

// Unavailable creates a gRPC Unavailable error.
func Unavailable(msg string) error {
	return status.Error(codes.Unavailable, msg)
}
