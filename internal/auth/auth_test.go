package auth

import (
	"errors"
	"testing"

	"github.com/karloscodes/cartridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAdmin(t *testing.T) {
	ctx := &cartridge.Context{}

	admin := VerifierFunc(func(*cartridge.Context) (*Principal, error) {
		return &Principal{UserID: 1, Email: "admin@example.com"}, nil
	})
	anonymous := VerifierFunc(func(*cartridge.Context) (*Principal, error) {
		return nil, ErrUnauthenticated
	})
	broken := VerifierFunc(func(*cartridge.Context) (*Principal, error) {
		return nil, errors.New("disk I/O error")
	})

	assert.True(t, IsAdmin(admin, ctx))
	assert.False(t, IsAdmin(anonymous, ctx))
	assert.False(t, IsAdmin(broken, ctx))
	assert.False(t, IsAdmin(nil, ctx))
}

func TestSessionVerifierWithoutSession(t *testing.T) {
	p, err := SessionVerifier{}.VerifyAdmin(&cartridge.Context{})
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Nil(t, p)
}
