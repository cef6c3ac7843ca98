// Package redisrepo provides a Redis-backed chat session store.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/tokens"
)

const (
	sessionKeyPrefix = "bridge:session:"
	userKeyPrefix    = "bridge:user:"

	fieldAddress     = "address"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
	oauthFieldPrefix = "oauth:"
	tokenFieldPrefix = "token:"

	// maxTxRetries bounds optimistic transaction retries when a watched key changes.
	maxTxRetries = 5
)

var _ sessions.Store = (*Repo)(nil)

// Repo keeps one Redis hash per session with one field per provider entry, so writes
// to different providers never overwrite each other.
type Repo struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Redis session repo. A zero ttl keeps sessions forever; otherwise every
// write pushes the expiry forward.
func New(client *redis.Client, ttl time.Duration) *Repo {
	return &Repo{client: client, ttl: ttl}
}

func sessionKey(key string) string { return sessionKeyPrefix + key }
func userKey(oid string) string    { return userKeyPrefix + oid }

// Open loads or creates the session for addr
func (r *Repo) Open(ctx context.Context, addr sessions.Address) (*sessions.Session, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	addrJSON, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal address: %w", err)
	}

	now := sessions.NowTimeFunc().UTC().Format(time.RFC3339Nano)
	key := sessionKey(addr.Key())
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldCreatedAt, now)
		pipe.HSet(ctx, key, fieldAddress, addrJSON, fieldUpdatedAt, now)
		if addr.UserObjectID != "" {
			pipe.Set(ctx, userKey(addr.UserObjectID), addr.Key(), r.ttl)
		}
		r.touch(ctx, pipe, key, addr.UserObjectID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session in redis: %w", err)
	}
	return r.Load(ctx, addr)
}

// Load retrieves the session bound to addr
func (r *Repo) Load(ctx context.Context, addr sessions.Address) (*sessions.Session, error) {
	return r.loadKey(ctx, addr.Key())
}

// LoadByUser retrieves the session of a user by directory object id
func (r *Repo) LoadByUser(ctx context.Context, userObjectID string) (*sessions.Session, error) {
	if userObjectID == "" {
		return nil, fmt.Errorf("userObjectID is required")
	}
	key, err := r.client.Get(ctx, userKey(userObjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
	}
	return r.loadKey(ctx, key)
}

func (r *Repo) loadKey(ctx context.Context, key string) (*sessions.Session, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
	}
	if len(fields) == 0 {
		return nil, apperrors.ErrSessionNotFound
	}

	s := &sessions.Session{
		Key:        key,
		OAuthState: make(map[string]string),
		Tokens:     make(map[string]*tokens.PendingToken),
	}
	for field, value := range fields {
		switch {
		case field == fieldAddress:
			if err := json.Unmarshal([]byte(value), &s.Address); err != nil {
				return nil, fmt.Errorf("%w: bad address for %s: %v", apperrors.ErrSessionLoadFailed, key, err)
			}
		case field == fieldCreatedAt:
			s.CreatedAt, _ = time.Parse(time.RFC3339Nano, value)
		case field == fieldUpdatedAt:
			s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, value)
		case strings.HasPrefix(field, oauthFieldPrefix):
			s.OAuthState[strings.TrimPrefix(field, oauthFieldPrefix)] = value
		case strings.HasPrefix(field, tokenFieldPrefix):
			var t tokens.PendingToken
			if err := json.Unmarshal([]byte(value), &t); err != nil {
				return nil, fmt.Errorf("%w: bad token %s for %s: %v", apperrors.ErrSessionLoadFailed, field, key, err)
			}
			s.Tokens[strings.TrimPrefix(field, tokenFieldPrefix)] = &t
		}
	}
	return s, nil
}

// SetOAuthState stores or clears the login nonce for provider
func (r *Repo) SetOAuthState(ctx context.Context, key, provider, nonce string) error {
	return r.writeExisting(ctx, key, func(pipe redis.Pipeliner, hkey string) {
		if nonce == "" {
			pipe.HDel(ctx, hkey, oauthFieldPrefix+provider)
		} else {
			pipe.HSet(ctx, hkey, oauthFieldPrefix+provider, nonce)
		}
	})
}

// Token returns the token stored for provider
func (r *Repo) Token(ctx context.Context, key, provider string) (*tokens.PendingToken, error) {
	data, err := r.client.HGet(ctx, sessionKey(key), tokenFieldPrefix+provider).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, tokens.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token from redis: %w", err)
	}
	var t tokens.PendingToken
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &t, nil
}

// PutToken creates or overwrites the token for provider
func (r *Repo) PutToken(ctx context.Context, key, provider string, token *tokens.PendingToken) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return r.writeExisting(ctx, key, func(pipe redis.Pipeliner, hkey string) {
		pipe.HSet(ctx, hkey, tokenFieldPrefix+provider, data)
	})
}

// UpdateToken applies fn to the stored token inside a WATCH transaction
func (r *Repo) UpdateToken(ctx context.Context, key, provider string, fn func(*tokens.PendingToken) error) error {
	hkey := sessionKey(key)
	field := tokenFieldPrefix + provider

	txf := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, hkey, field).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return tokens.ErrTokenNotFound
			}
			return err
		}

		var t tokens.PendingToken
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return fmt.Errorf("failed to unmarshal token: %w", err)
		}
		if err := fn(&t); err != nil {
			return err
		}
		newData, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal token: %w", err)
		}
		oid, err := r.userObjectID(ctx, tx, hkey)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hkey, field, newData, fieldUpdatedAt, sessions.NowTimeFunc().UTC().Format(time.RFC3339Nano))
			r.touch(ctx, pipe, hkey, oid)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, hkey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("token update for %s/%s kept conflicting", key, provider)
}

// DeleteToken removes the token for provider
func (r *Repo) DeleteToken(ctx context.Context, key, provider string) error {
	if err := r.client.HDel(ctx, sessionKey(key), tokenFieldPrefix+provider).Err(); err != nil {
		return fmt.Errorf("failed to delete token from redis: %w", err)
	}
	return nil
}

// writeExisting runs write against the session hash only if the session exists.
func (r *Repo) writeExisting(ctx context.Context, key string, write func(pipe redis.Pipeliner, hkey string)) error {
	hkey := sessionKey(key)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, hkey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.ErrSessionNotFound
		}
		oid, err := r.userObjectID(ctx, tx, hkey)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe, hkey)
			pipe.HSet(ctx, hkey, fieldUpdatedAt, sessions.NowTimeFunc().UTC().Format(time.RFC3339Nano))
			r.touch(ctx, pipe, hkey, oid)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, hkey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("write to session %s kept conflicting", key)
}

// touch pushes the expiry of the session hash forward, and of the user index with it.
func (r *Repo) touch(ctx context.Context, pipe redis.Pipeliner, hkey, oid string) {
	if r.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, hkey, r.ttl)
	if oid != "" {
		pipe.Expire(ctx, userKey(oid), r.ttl)
	}
}

// userObjectID reads the directory object id from the stored address, if any.
func (r *Repo) userObjectID(ctx context.Context, tx *redis.Tx, hkey string) (string, error) {
	if r.ttl <= 0 {
		return "", nil
	}
	raw, err := tx.HGet(ctx, hkey, fieldAddress).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var addr sessions.Address
	if err := json.Unmarshal([]byte(raw), &addr); err != nil {
		return "", fmt.Errorf("bad address in %s: %w", hkey, err)
	}
	return addr.UserObjectID, nil
}
