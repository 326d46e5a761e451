package server_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oggyb/anon-relay/internal/server"
)

func TestHashCredential(t *testing.T) {
	hash, err := server.HashCredential("secret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")))

	_, err = server.NewAuthenticator(hash)
	assert.NoError(t, err)
}

func TestNewAuthenticatorRejectsGarbage(t *testing.T) {
	_, err := server.NewAuthenticator("not-a-hash")
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	auth, err := server.NewAuthenticator(string(hash))
	require.NoError(t, err)

	assert.ErrorIs(t, auth.Verify(""), server.ErrInvalidCredential)
	assert.ErrorIs(t, auth.Verify("guess"), server.ErrInvalidCredential)
	assert.NoError(t, auth.Verify("secret"))
	// cached after the first success
	assert.NoError(t, auth.Verify("secret"))
	assert.ErrorIs(t, auth.Verify("secret2"), server.ErrInvalidCredential)
}

func TestNewGRPCServerRegistersOnlyGivenServices(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	auth, err := server.NewAuthenticator(string(hash))
	require.NoError(t, err)

	srv := server.NewGRPCServer(auth)
	t.Cleanup(srv.Stop)
	assert.Empty(t, srv.GetServiceInfo())
}
