// Package sqliterepo provides a SQLite-backed chat session store.
package sqliterepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/tokens"
)

// timeFormat is fixed width so stored timestamps sort in time order as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var _ sessions.Store = (*Repo)(nil)

// Repo stores sessions, oauth states and tokens in separate tables keyed by
// (session key, provider).
type Repo struct {
	db *sql.DB
}

// OpenDB opens a SQLite database file suitable for Repo.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection keeps transactions from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return db, nil
}

// New creates the schema if needed and returns the repo.
func New(ctx context.Context, db *sql.DB) (*Repo, error) {
	if db == nil {
		return nil, errors.New("sqlite session store is not configured")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate sqlite session schema: %w", err)
	}
	return &Repo{db: db}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// Open loads or creates the session for addr
func (r *Repo) Open(ctx context.Context, addr sessions.Address) (*sessions.Session, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	addrJSON, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal address: %w", err)
	}
	now := formatTime(sessions.NowTimeFunc())
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_key, address, user_object_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			address = excluded.address,
			user_object_id = CASE WHEN excluded.user_object_id = '' THEN chat_sessions.user_object_id ELSE excluded.user_object_id END,
			updated_at = excluded.updated_at`,
		addr.Key(), string(addrJSON), addr.UserObjectID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	return r.loadKey(ctx, addr.Key())
}

// Load retrieves the session bound to addr
func (r *Repo) Load(ctx context.Context, addr sessions.Address) (*sessions.Session, error) {
	return r.loadKey(ctx, addr.Key())
}

// LoadByUser retrieves the most recently used session of a user
func (r *Repo) LoadByUser(ctx context.Context, userObjectID string) (*sessions.Session, error) {
	if userObjectID == "" {
		return nil, fmt.Errorf("userObjectID is required")
	}
	var key string
	err := r.db.QueryRowContext(ctx,
		`SELECT session_key FROM chat_sessions WHERE user_object_id = ? ORDER BY updated_at DESC LIMIT 1`,
		userObjectID,
	).Scan(&key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
	}
	return r.loadKey(ctx, key)
}

func (r *Repo) loadKey(ctx context.Context, key string) (*sessions.Session, error) {
	var addrJSON, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT address, created_at, updated_at FROM chat_sessions WHERE session_key = ?`, key,
	).Scan(&addrJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
	}

	s := &sessions.Session{
		Key:        key,
		OAuthState: make(map[string]string),
		Tokens:     make(map[string]*tokens.PendingToken),
		CreatedAt:  parseTime(createdAt),
		UpdatedAt:  parseTime(updatedAt),
	}
	if err := json.Unmarshal([]byte(addrJSON), &s.Address); err != nil {
		return nil, fmt.Errorf("%w: bad address for %s: %v", apperrors.ErrSessionLoadFailed, key, err)
	}

	stateRows, err := r.db.QueryContext(ctx, `SELECT provider, nonce FROM oauth_states WHERE session_key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
	}
	defer stateRows.Close()
	for stateRows.Next() {
		var provider, nonce string
		if err := stateRows.Scan(&provider, &nonce); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
		}
		s.OAuthState[provider] = nonce
	}
	if err := stateRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
	}

	tokenRows, err := r.db.QueryContext(ctx, `SELECT provider, `+tokenColumns+` FROM provider_tokens WHERE session_key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
	}
	defer tokenRows.Close()
	for tokenRows.Next() {
		var provider string
		t, err := scanToken(tokenRows, &provider)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
		}
		s.Tokens[provider] = t
	}
	if err := tokenRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
	}
	return s, nil
}

// SetOAuthState stores or clears the login nonce for provider
func (r *Repo) SetOAuthState(ctx context.Context, key, provider, nonce string) error {
	return r.inSession(ctx, key, func(tx *sql.Tx) error {
		if nonce == "" {
			_, err := tx.ExecContext(ctx, `DELETE FROM oauth_states WHERE session_key = ? AND provider = ?`, key, provider)
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO oauth_states (session_key, provider, nonce) VALUES (?, ?, ?)
			ON CONFLICT(session_key, provider) DO UPDATE SET nonce = excluded.nonce`,
			key, provider, nonce,
		)
		return err
	})
}

const tokenColumns = `access_token, expires_at, verification_code, status, issued_at, activated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner, prefix ...any) (*tokens.PendingToken, error) {
	var t tokens.PendingToken
	var status, expiresAt, issuedAt, activatedAt string
	dest := append(prefix, &t.AccessToken, &expiresAt, &t.VerificationCode, &status, &issuedAt, &activatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	t.Status = tokens.Status(status)
	t.ExpiresAt = parseTime(expiresAt)
	t.IssuedAt = parseTime(issuedAt)
	t.ActivatedAt = parseTime(activatedAt)
	return &t, nil
}

// Token returns the token stored for provider
func (r *Repo) Token(ctx context.Context, key, provider string) (*tokens.PendingToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM provider_tokens WHERE session_key = ? AND provider = ?`, key, provider)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tokens.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// PutToken creates or overwrites the token for provider
func (r *Repo) PutToken(ctx context.Context, key, provider string, token *tokens.PendingToken) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	return r.inSession(ctx, key, func(tx *sql.Tx) error {
		return upsertToken(ctx, tx, key, provider, token)
	})
}

func upsertToken(ctx context.Context, tx *sql.Tx, key, provider string, t *tokens.PendingToken) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO provider_tokens (session_key, provider, `+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key, provider) DO UPDATE SET
			access_token = excluded.access_token,
			expires_at = excluded.expires_at,
			verification_code = excluded.verification_code,
			status = excluded.status,
			issued_at = excluded.issued_at,
			activated_at = excluded.activated_at`,
		key, provider, t.AccessToken, formatTime(t.ExpiresAt), t.VerificationCode, string(t.Status),
		formatTime(t.IssuedAt), formatTime(t.ActivatedAt),
	)
	return err
}

// UpdateToken applies fn to the stored token inside a transaction
func (r *Repo) UpdateToken(ctx context.Context, key, provider string, fn func(*tokens.PendingToken) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin token update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM provider_tokens WHERE session_key = ? AND provider = ?`, key, provider)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tokens.ErrTokenNotFound
		}
		return fmt.Errorf("failed to get token: %w", err)
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := upsertToken(ctx, tx, key, provider, t); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := touchSession(ctx, tx, key); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteToken removes the token for provider
func (r *Repo) DeleteToken(ctx context.Context, key, provider string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM provider_tokens WHERE session_key = ? AND provider = ?`, key, provider)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// inSession runs fn in a transaction after checking the session exists.
func (r *Repo) inSession(ctx context.Context, key string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM chat_sessions WHERE session_key = ?`, key).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrSessionNotFound
		}
		return fmt.Errorf("check session: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := touchSession(ctx, tx, key); err != nil {
		return err
	}
	return tx.Commit()
}

func touchSession(ctx context.Context, tx *sql.Tx, key string) error {
	_, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE session_key = ?`,
		formatTime(sessions.NowTimeFunc()), key)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}
