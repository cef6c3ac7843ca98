// Package profiles collects the linked provider profiles of a chat user.
package profiles

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/internal/metrics"
	"github.com/jrsteele09/go-identity-bridge/providers"
	"github.com/jrsteele09/go-identity-bridge/sessions"
)

// collectTimeout bounds one shared collection, which does not follow any single
// caller's context.
const collectTimeout = 30 * time.Second

// Aggregator fetches every active provider profile of a user concurrently.
// A failing provider is skipped, never fatal.
type Aggregator struct {
	users    sessions.UserLoader
	registry *providers.Registry
	metrics  *metrics.Metrics

	// collapses concurrent requests for the same user
	inflight singleflight.Group
}

func NewAggregator(users sessions.UserLoader, registry *providers.Registry, m *metrics.Metrics) *Aggregator {
	return &Aggregator{users: users, registry: registry, metrics: m}
}

// CollectProfiles returns the profiles keyed by provider id ("linkedIn",
// "azureADv1", "google"), not by display name as the bot this replaces did.
// Profile.Provider still names the source. A user without a session yields an
// empty map.
//
// Concurrent calls for one user share a single collection. Each caller stops
// waiting when its own ctx ends, while the collection runs on for the others.
func (a *Aggregator) CollectProfiles(ctx context.Context, userObjectID string) (map[string]providers.Profile, error) {
	ch := a.inflight.DoChan(userObjectID, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), collectTimeout)
		defer cancel()
		return a.collect(shared, userObjectID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return maps.Clone(res.Val.(map[string]providers.Profile)), nil
	}
}

func (a *Aggregator) collect(ctx context.Context, userObjectID string) (map[string]providers.Profile, error) {
	result := make(map[string]providers.Profile)

	s, err := a.users.LoadByUser(ctx, userObjectID)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, client := range a.registry.All() {
		name := string(client.ID())
		tok := s.Token(name)
		if !tok.IsActive() {
			continue
		}
		g.Go(func() error {
			p, err := client.FetchProfile(ctx, tok.AccessToken)
			if err != nil {
				log.Warn().Err(err).Str("provider", name).Str("session", s.Key).Msg("Skipping provider profile")
				a.metrics.RecordProfileFetch(name, "error")
				return nil
			}
			a.metrics.RecordProfileFetch(name, "ok")
			mu.Lock()
			result[name] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result, nil
}
