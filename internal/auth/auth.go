// Package auth decides whether a request comes from a signed-in administrator.
package auth

import (
	"errors"
	"fmt"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"sitepulse/internal/users"
)

// ErrUnauthenticated means there is no valid admin session.
var ErrUnauthenticated = errors.New("authentication required")

// Principal identifies the admin behind a request.
type Principal struct {
	UserID uint   `json:"id"`
	Email  string `json:"email"`
}

// Verifier resolves the admin behind a request. It returns
// ErrUnauthenticated when there is none.
type Verifier interface {
	VerifyAdmin(ctx *cartridge.Context) (*Principal, error)
}

// SessionVerifier trusts the cartridge session cookie and confirms the user
// still exists.
type SessionVerifier struct{}

func (SessionVerifier) VerifyAdmin(ctx *cartridge.Context) (*Principal, error) {
	if ctx.Session == nil {
		return nil, ErrUnauthenticated
	}

	userID, ok := ctx.Session.GetUserID(ctx.Ctx)
	if !ok || userID == 0 {
		return nil, ErrUnauthenticated
	}

	user, err := users.FindByID(ctx.DB(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	return &Principal{UserID: user.ID, Email: user.Email}, nil
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx *cartridge.Context) (*Principal, error)

func (f VerifierFunc) VerifyAdmin(ctx *cartridge.Context) (*Principal, error) {
	return f(ctx)
}

// IsAdmin reports whether the request carries a valid admin session,
// treating lookup failures as "no".
func IsAdmin(v Verifier, ctx *cartridge.Context) bool {
	if v == nil {
		return false
	}
	p, err := v.VerifyAdmin(ctx)
	return err == nil && p != nil
}
