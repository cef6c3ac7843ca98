package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/tokens"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var _ Store = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory session backend
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session // session key -> session
	byUser   map[string]string   // user object id -> session key
}

// NewInMemoryRepo creates a new in-memory session repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
	}
}

// Open loads or creates the session for addr
func (r *InMemoryRepo) Open(_ context.Context, addr Address) (*Session, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := NowTimeFunc()
	s, ok := r.sessions[addr.Key()]
	if !ok {
		s = newSession(addr, now)
		r.sessions[s.Key] = s
	} else {
		// Service URLs and conversation ids change over time, keep the latest.
		s.Address = addr
		s.UpdatedAt = now
	}
	if addr.UserObjectID != "" {
		r.byUser[addr.UserObjectID] = s.Key
	}
	return s.Clone(), nil
}

// Load retrieves the session bound to addr
func (r *InMemoryRepo) Load(_ context.Context, addr Address) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[addr.Key()]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// LoadByUser retrieves the session of a user by directory object id
func (r *InMemoryRepo) LoadByUser(_ context.Context, userObjectID string) (*Session, error) {
	if userObjectID == "" {
		return nil, fmt.Errorf("userObjectID is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byUser[userObjectID]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	s, ok := r.sessions[key]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// SetOAuthState stores or clears the login nonce for provider
func (r *InMemoryRepo) SetOAuthState(_ context.Context, sessionKey, provider, nonce string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionKey]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	if nonce == "" {
		delete(s.OAuthState, provider)
	} else {
		s.OAuthState[provider] = nonce
	}
	s.UpdatedAt = NowTimeFunc()
	return nil
}

// Token returns a copy of the token stored for provider
func (r *InMemoryRepo) Token(_ context.Context, sessionKey, provider string) (*tokens.PendingToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionKey]
	if !ok {
		return nil, tokens.ErrTokenNotFound
	}
	t, ok := s.Tokens[provider]
	if !ok {
		return nil, tokens.ErrTokenNotFound
	}
	return t.Clone(), nil
}

// PutToken creates or overwrites the token for provider
func (r *InMemoryRepo) PutToken(_ context.Context, sessionKey, provider string, token *tokens.PendingToken) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionKey]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	s.Tokens[provider] = token.Clone()
	s.UpdatedAt = NowTimeFunc()
	return nil
}

// UpdateToken applies fn to a copy of the stored token and writes it back when fn succeeds
func (r *InMemoryRepo) UpdateToken(_ context.Context, sessionKey, provider string, fn func(*tokens.PendingToken) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionKey]
	if !ok {
		return tokens.ErrTokenNotFound
	}
	current, ok := s.Tokens[provider]
	if !ok {
		return tokens.ErrTokenNotFound
	}
	updated := current.Clone()
	if err := fn(updated); err != nil {
		return err
	}
	s.Tokens[provider] = updated
	s.UpdatedAt = NowTimeFunc()
	return nil
}

// DeleteToken removes the token for provider
func (r *InMemoryRepo) DeleteToken(_ context.Context, sessionKey, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionKey]; ok {
		delete(s.Tokens, provider)
		s.UpdatedAt = NowTimeFunc()
	}
	return nil
}
