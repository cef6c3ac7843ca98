// Package linking runs the browser side of account linking: it starts a provider
// sign-in for a chat user and completes it when the provider redirects back.
package linking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/internal/metrics"
	"github.com/jrsteele09/go-identity-bridge/oauthstate"
	"github.com/jrsteele09/go-identity-bridge/providers"
	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/verification"
)

// CallbackRequest is what the provider redirect carries.
type CallbackRequest struct {
	Provider         string // from the route
	State            string
	Code             string
	AccessToken      string // some providers deliver the token directly
	Error            string
	ErrorDescription string
}

// Outcome is the result of one callback. Only VerificationCode and ProviderName
// are meant for the user; Reason is for logs.
type Outcome struct {
	Stage            Stage
	Reason           error
	RequestID        string
	ProviderName     string
	VerificationCode string
}

func (o Outcome) Succeeded() bool {
	return o.Stage == StageChallengeIssued
}

// Orchestrator ties together the state codec, session store, provider clients
// and verification challenge.
type Orchestrator struct {
	codec     oauthstate.Codec
	store     sessions.Store
	locator   sessions.Locator
	registry  *providers.Registry
	challenge *verification.Challenge
	metrics   *metrics.Metrics
}

// NewOrchestrator wires the callback steps. locator resolves decoded addresses;
// store persists nonces and tokens.
func NewOrchestrator(
	codec oauthstate.Codec,
	locator sessions.Locator,
	store sessions.Store,
	registry *providers.Registry,
	challenge *verification.Challenge,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		codec:     codec,
		store:     store,
		locator:   locator,
		registry:  registry,
		challenge: challenge,
		metrics:   m,
	}
}

// Begin opens the chat user's session, remembers a fresh nonce for provider and
// returns the URL the user should visit to sign in.
func (o *Orchestrator) Begin(ctx context.Context, addr sessions.Address, provider string) (string, error) {
	client, err := o.registry.Get(provider)
	if err != nil {
		return "", err
	}
	s, err := o.store.Open(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("failed to open session: %w", err)
	}
	state, nonce, err := o.codec.Encode(addr, string(client.ID()))
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	if err := o.store.SetOAuthState(ctx, s.Key, string(client.ID()), nonce); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	log.Info().Str("session", s.Key).Str("provider", string(client.ID())).Msg("Sign-in started")
	return client.AuthCodeURL(state), nil
}

// HandleCallback completes a sign-in. Every failure produces the same kind of
// outcome; the specific reason is logged and never shown to the user.
func (o *Orchestrator) HandleCallback(ctx context.Context, req CallbackRequest) Outcome {
	started := time.Now()
	out := Outcome{
		Stage:        StageAwaitingRedirect,
		RequestID:    uuid.NewString(),
		ProviderName: providers.DisplayName(req.Provider),
	}

	if err := o.complete(ctx, req, &out); err != nil {
		log.Warn().
			Err(err).
			Str("request_id", out.RequestID).
			Str("provider", req.Provider).
			Str("reached", out.Stage.String()).
			Str("provider_error", req.Error).
			Msg("OAuth callback failed")
		out.Stage = StageFailed
		out.Reason = err
	} else {
		log.Info().Str("request_id", out.RequestID).Str("provider", req.Provider).Msg("OAuth callback issued verification code")
	}
	o.metrics.RecordCallback(providers.MetricLabel(req.Provider), outcomeLabel(out.Reason), time.Since(started))
	return out
}

// complete advances out.Stage as each step succeeds.
func (o *Orchestrator) complete(ctx context.Context, req CallbackRequest, out *Outcome) error {
	st, err := o.codec.Decode(req.State)
	if err != nil {
		return err
	}
	out.Stage = StageStateDecoded

	s, err := o.locator.Load(ctx, st.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSessionUnresolvable, err)
	}
	out.Stage = StageSessionResolved

	// The redirect must belong to this session's most recent sign-in.
	client, err := o.verify(req, st, s)
	if err != nil {
		return err
	}
	if err := o.store.SetOAuthState(ctx, s.Key, st.Provider, ""); err != nil {
		return fmt.Errorf("%w: consume nonce: %v", apperrors.ErrTokenPersistFailed, err)
	}
	out.Stage = StageStateVerified

	accessToken, expiresAt := req.AccessToken, time.Time{}
	if accessToken == "" {
		tok, err := client.ExchangeCode(ctx, req.Code)
		if err != nil {
			if !errors.Is(err, apperrors.ErrTokenExchangeFailed) {
				err = fmt.Errorf("%w: %v", apperrors.ErrTokenExchangeFailed, err)
			}
			return err
		}
		accessToken, expiresAt = tok.AccessToken, tok.Expiry
	}
	out.Stage = StageTokenExchanged

	pt, err := o.challenge.Issue(ctx, s.Key, st.Provider, accessToken, expiresAt)
	if err != nil {
		if !errors.Is(err, apperrors.ErrTokenPersistFailed) {
			err = fmt.Errorf("%w: %v", apperrors.ErrTokenPersistFailed, err)
		}
		return err
	}
	out.VerificationCode = pt.VerificationCode
	out.Stage = StageChallengeIssued
	return nil
}

func (o *Orchestrator) verify(req CallbackRequest, st oauthstate.State, s *sessions.Session) (providers.Client, error) {
	denied := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{apperrors.ErrStateMismatchOrDenied}, args...)...)
	}
	if req.Provider != st.Provider {
		return nil, denied("route provider %q does not match state provider %q", req.Provider, st.Provider)
	}
	client, err := o.registry.Get(st.Provider)
	if err != nil {
		return nil, denied("%v", err)
	}
	remembered := s.Nonce(st.Provider)
	if remembered == "" || remembered != st.Nonce {
		return nil, denied("nonce mismatch")
	}
	if req.Error != "" {
		return nil, denied("provider returned %s: %s", req.Error, req.ErrorDescription)
	}
	if req.Code == "" && req.AccessToken == "" {
		return nil, denied("neither code nor access token present")
	}
	return client, nil
}

func outcomeLabel(reason error) string {
	switch {
	case reason == nil:
		return "success"
	case errors.Is(reason, apperrors.ErrMalformedState):
		return "malformed_state"
	case errors.Is(reason, apperrors.ErrSessionUnresolvable):
		return "session_unresolvable"
	case errors.Is(reason, apperrors.ErrStateMismatchOrDenied):
		return "state_mismatch_or_denied"
	case errors.Is(reason, apperrors.ErrTokenExchangeFailed):
		return "token_exchange_failed"
	case errors.Is(reason, apperrors.ErrTokenPersistFailed):
		return "token_persist_failed"
	default:
		return "error"
	}
}
