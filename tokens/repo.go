package tokens

import (
	"context"
	"errors"
)

// ErrTokenNotFound is returned when a session holds no token for a provider.
var ErrTokenNotFound = errors.New("token not found")

// Store holds at most one token per (session, provider). Implementations treat each
// provider key as an independent, atomically written entry; concurrent writers to the
// same key resolve by last write wins.
type Store interface {
	// Token returns a copy of the stored token or ErrTokenNotFound.
	Token(ctx context.Context, sessionKey, provider string) (*PendingToken, error)

	// PutToken creates or overwrites the token for a provider.
	PutToken(ctx context.Context, sessionKey, provider string, token *PendingToken) error

	// UpdateToken atomically reads, modifies and writes the token for a provider.
	// The token is only written when fn returns nil; fn's error is returned as is.
	UpdateToken(ctx context.Context, sessionKey, provider string, fn func(token *PendingToken) error) error

	// DeleteToken removes the token for a provider. Deleting a missing token is not an error.
	DeleteToken(ctx context.Context, sessionKey, provider string) error
}
