package errors_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/anon-relay/internal/domain"
	svcErr "github.com/oggyb/anon-relay/internal/errors"
	"github.com/oggyb/anon-relay/internal/repository"
)

func TestMap(t *testing.T) {
	type req struct {
		UserID int64 `validate:"required"`
	}
	verr := validator.New().Struct(req{})
	require.Error(t, verr)

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", fmt.Errorf("load 1: %w", repository.ErrNotFound), codes.NotFound},
		{"conflict", fmt.Errorf("pair: %w", repository.ErrConflict), codes.Aborted},
		{"gender", domain.ErrInvalidGender, codes.InvalidArgument},
		{"validation", verr, codes.InvalidArgument},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"canceled", context.Canceled, codes.Canceled},
		{"status passthrough", status.Error(codes.PermissionDenied, "no"), codes.PermissionDenied},
		{"other", fmt.Errorf("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(svcErr.Map(tt.err)))
		})
	}
	assert.NoError(t, svcErr.Map(nil))
}
