package sessions

import (
	"context"

	"github.com/jrsteele09/go-identity-bridge/tokens"
)

// Locator resolves a conversation address back into its chat session.
// Load returns ErrSessionNotFound when nothing is stored for the address and an error
// wrapping ErrSessionLoadFailed when the backend fails. It never returns a nil session
// with a nil error.
type Locator interface {
	Load(ctx context.Context, addr Address) (*Session, error)
}

// UserLoader finds the session of a user by directory object id.
type UserLoader interface {
	LoadByUser(ctx context.Context, userObjectID string) (*Session, error)
}

// Store is a chat-session backend. One implementation exists per storage kind.
type Store interface {
	Locator
	UserLoader
	tokens.Store

	// Open loads the session for addr, creating it when it does not exist yet.
	// The chat side calls it whenever a user talks to the bot.
	Open(ctx context.Context, addr Address) (*Session, error)

	// SetOAuthState remembers the nonce of the login in flight for provider.
	// An empty nonce clears it.
	SetOAuthState(ctx context.Context, sessionKey, provider, nonce string) error
}
