// Package session binds bot chats to accounts and issues the one-time tokens
// that create those bindings. State lives outside the bot process handlers so
// it survives restarts when backed by Redis.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotLinked means the chat has no live binding.
	ErrNotLinked = errors.New("chat is not linked to an account")
	// ErrInvalidToken means the link token is unknown, expired or used.
	ErrInvalidToken = errors.New("link token is invalid or expired")
)

// Store keeps chat bindings and link tokens with expiry.
type Store interface {
	// Bind links chatID to accountID, replacing any previous binding.
	Bind(ctx context.Context, chatID, accountID int64) error
	// Lookup returns the bound account and extends the binding's lifetime.
	Lookup(ctx context.Context, chatID int64) (int64, error)
	Unbind(ctx context.Context, chatID int64) error
	// IssueLinkToken creates a single-use token for accountID.
	IssueLinkToken(ctx context.Context, accountID int64) (string, error)
	// RedeemLinkToken consumes token and returns its account.
	RedeemLinkToken(ctx context.Context, token string) (int64, error)
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
