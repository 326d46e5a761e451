package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ErrInvalidCredential is returned by Verify for a credential that does not
// match the hash.
var ErrInvalidCredential = errors.New("invalid credential")

// HashCredential returns the bcrypt hash stored in GRPC_AUTH_HASH.
func HashCredential(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(h), nil
}

// Authenticator checks the "authorization: Bearer <credential>" metadata of
// every call against a bcrypt hash.
type Authenticator struct {
	hash []byte

	mu       sync.RWMutex
	verified string
}

func NewAuthenticator(hash string) (*Authenticator, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid auth hash: %w", err)
	}
	return &Authenticator{hash: []byte(hash)}, nil
}

func (a *Authenticator) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := a.authorize(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *Authenticator) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := a.authorize(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (a *Authenticator) authorize(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization metadata")
	}
	token, ok := strings.CutPrefix(values[0], "Bearer ")
	if !ok || token == "" {
		return status.Error(codes.Unauthenticated, "authorization must be a bearer token")
	}

	if err := a.Verify(token); err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	return nil
}

// Verify checks a bare credential against the hash. The websocket gateway uses
// it for the Authorization header of the upgrade request.
func (a *Authenticator) Verify(token string) error {
	if token == "" {
		return ErrInvalidCredential
	}

	// the last accepted credential skips the bcrypt compare
	a.mu.RLock()
	known := a.verified
	a.mu.RUnlock()
	if known != "" && subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return ErrInvalidCredential
	}
	a.mu.Lock()
	a.verified = token
	a.mu.Unlock()
	return nil
}
