package sessions

import (
	"context"
	"fmt"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
)

type locator struct {
	backend Locator
}

// NewLocator wraps a backend so every failure is reported as either ErrSessionNotFound
// or ErrSessionLoadFailed, whatever the backend returned.
func NewLocator(backend Locator) Locator {
	return locator{backend: backend}
}

func (l locator) Load(ctx context.Context, addr Address) (*Session, error) {
	if err := addr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionNotFound, err)
	}
	s, err := l.backend.Load(ctx, addr)
	switch {
	case err == nil && s == nil:
		return nil, fmt.Errorf("%w: backend returned no session for %s", apperrors.ErrSessionLoadFailed, addr.Key())
	case err == nil:
		return s, nil
	case apperrors.Is(err, apperrors.ErrSessionNotFound), apperrors.Is(err, apperrors.ErrSessionLoadFailed):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSessionLoadFailed, err)
	}
}
