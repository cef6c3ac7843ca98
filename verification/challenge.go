// Package verification binds a provider token to a short code that the chat user
// must present before the token becomes usable.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/internal/metrics"
	"github.com/jrsteele09/go-identity-bridge/providers"
	"github.com/jrsteele09/go-identity-bridge/tokens"
)

const DefaultCodeLength = 6

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// CodeGenerator returns a fresh verification code.
type CodeGenerator func() (string, error)

// NumericCode returns a generator of zero padded decimal codes of the given length.
func NumericCode(length int) CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	return func() (string, error) {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate verification code: %w", err)
		}
		return fmt.Sprintf("%0*d", length, n), nil
	}
}

// Challenge issues and confirms verification codes on top of a token store.
type Challenge struct {
	store    tokens.Store
	generate CodeGenerator
	limiter  *AttemptLimiter
	metrics  *metrics.Metrics
}

type Option func(*Challenge)

func WithCodeGenerator(g CodeGenerator) Option {
	return func(c *Challenge) { c.generate = g }
}

func WithAttemptLimiter(l *AttemptLimiter) Option {
	return func(c *Challenge) { c.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Challenge) { c.metrics = m }
}

func NewChallenge(store tokens.Store, opts ...Option) *Challenge {
	c := &Challenge{
		store:    store,
		generate: NumericCode(DefaultCodeLength),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewPendingToken binds a fresh code to accessToken. Nothing is stored.
func (c *Challenge) NewPendingToken(accessToken string, expiresAt time.Time) (*tokens.PendingToken, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	code, err := c.generate()
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("verification code generator returned an empty code")
	}
	return &tokens.PendingToken{
		AccessToken:      accessToken,
		ExpiresAt:        expiresAt,
		VerificationCode: code,
		Status:           tokens.StatusPending,
		IssuedAt:         NowTimeFunc(),
	}, nil
}

// Issue creates a pending token for (sessionKey, provider) and stores it,
// replacing whatever was there. Store failures wrap ErrTokenPersistFailed.
func (c *Challenge) Issue(ctx context.Context, sessionKey, provider, accessToken string, expiresAt time.Time) (*tokens.PendingToken, error) {
	pt, err := c.NewPendingToken(accessToken, expiresAt)
	if err != nil {
		return nil, err
	}
	if err := c.store.PutToken(ctx, sessionKey, provider, pt); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTokenPersistFailed, err)
	}
	c.limiter.Reset(sessionKey, provider)
	return pt.Clone(), nil
}

// Confirm activates the pending token of (sessionKey, provider) when code matches.
// It returns ErrNoPendingToken when there is nothing to confirm, including a token
// that is already active, ErrCodeMismatch when the code is wrong, and
// ErrTooManyAttempts when the attempt limiter has tripped.
func (c *Challenge) Confirm(ctx context.Context, sessionKey, provider, code string) error {
	label := providers.MetricLabel(provider)
	if !c.limiter.Allowed(sessionKey, provider) {
		c.metrics.RecordVerification(label, "throttled")
		return apperrors.ErrTooManyAttempts
	}

	err := c.store.UpdateToken(ctx, sessionKey, provider, func(t *tokens.PendingToken) error {
		if !t.IsPending() {
			return apperrors.ErrNoPendingToken
		}
		if !CodesMatch(t.VerificationCode, code) {
			return apperrors.ErrCodeMismatch
		}
		t.Status = tokens.StatusActive
		t.VerificationCode = ""
		t.ActivatedAt = NowTimeFunc()
		return nil
	})

	switch {
	case err == nil:
		c.limiter.Reset(sessionKey, provider)
		c.metrics.RecordVerification(label, "activated")
		log.Info().Str("session", sessionKey).Str("provider", provider).Msg("provider token activated")
		return nil
	case errors.Is(err, tokens.ErrTokenNotFound), errors.Is(err, apperrors.ErrNoPendingToken):
		c.metrics.RecordVerification(label, "no_pending_token")
		return apperrors.ErrNoPendingToken
	case errors.Is(err, apperrors.ErrCodeMismatch):
		c.limiter.Failed(sessionKey, provider)
		c.metrics.RecordVerification(label, "mismatch")
		return apperrors.ErrCodeMismatch
	default:
		c.metrics.RecordVerification(label, "error")
		return fmt.Errorf("confirm %s token: %w", provider, err)
	}
}

// CodesMatch reports whether presented equals the stored code. It compares in
// constant time, and an empty code never matches.
func CodesMatch(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
