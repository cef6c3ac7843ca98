package linking_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/internal/metrics"
	"github.com/jrsteele09/go-identity-bridge/linking"
	"github.com/jrsteele09/go-identity-bridge/oauthstate"
	"github.com/jrsteele09/go-identity-bridge/providers"
	"github.com/jrsteele09/go-identity-bridge/providers/providerfake"
	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/sessions/storetest"
	"github.com/jrsteele09/go-identity-bridge/tokens"
	"github.com/jrsteele09/go-identity-bridge/verification"
)

type fixture struct {
	store     sessions.Store
	repo      *sessions.InMemoryRepo
	linkedIn  *providerfake.Client
	google    *providerfake.Client
	challenge *verification.Challenge
	metrics   *metrics.Metrics
	orch      *linking.Orchestrator
	codec     oauthstate.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     sessions.NewInMemoryRepo(),
		linkedIn: providerfake.New(providers.LinkedIn).WithCode("auth-code", "li-access-token"),
		google:   providerfake.New(providers.Google).WithCode("g-code", "g-access-token"),
		metrics:  metrics.New(prometheus.NewRegistry()),
		codec:    oauthstate.NewJSONCodec(),
	}
	f.store = f.repo
	f.build()
	return f
}

func (f *fixture) build() {
	f.challenge = verification.NewChallenge(f.store, verification.WithCodeGenerator(func() (string, error) {
		return "123456", nil
	}))
	f.orch = linking.NewOrchestrator(f.codec, sessions.NewLocator(f.store), f.store, providers.NewRegistry(f.linkedIn, f.google), f.challenge, f.metrics)
}

func stateFromURL(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (f *fixture) begin(t *testing.T, addr sessions.Address, provider string) string {
	t.Helper()
	authURL, err := f.orch.Begin(context.Background(), addr, provider)
	require.NoError(t, err)
	return stateFromURL(t, authURL)
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	addr := storetest.TestAddress("addr1")

	state := f.begin(t, addr, "linkedIn")
	s, err := f.repo.Load(ctx, addr)
	require.NoError(t, err)
	require.NotEmpty(t, s.Nonce("linkedIn"))

	out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "linkedIn", State: state, Code: "auth-code"})
	require.True(t, out.Succeeded(), "reason: %v", out.Reason)
	require.Equal(t, linking.StageChallengeIssued, out.Stage)
	require.Equal(t, "123456", out.VerificationCode)
	require.Equal(t, "LinkedIn", out.ProviderName)
	require.NotEmpty(t, out.RequestID)

	tok, err := f.repo.Token(ctx, addr.Key(), "linkedIn")
	require.NoError(t, err)
	require.True(t, tok.IsPending())
	require.Equal(t, "li-access-token", tok.AccessToken)
	require.Equal(t, "123456", tok.VerificationCode)

	s, err = f.repo.Load(ctx, addr)
	require.NoError(t, err)
	require.Empty(t, s.Nonce("linkedIn"), "nonce is single use")

	require.NoError(t, f.challenge.Confirm(ctx, addr.Key(), "linkedIn", "123456"))
	tok, err = f.repo.Token(ctx, addr.Key(), "linkedIn")
	require.NoError(t, err)
	require.True(t, tok.IsActive())

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallbackOutcomes.WithLabelValues("linkedIn", "success")))
}

func TestHandleCallback_Failures(t *testing.T) {
	ctx := context.Background()
	addr := storetest.TestAddress("bob")

	t.Run("forged state with unmatched nonce", func(t *testing.T) {
		f := newFixture(t)
		f.begin(t, addr, "linkedIn")
		forged, _, err := f.codec.Encode(addr, "linkedIn")
		require.NoError(t, err)

		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "linkedIn", State: forged, Code: "auth-code"})
		require.Equal(t, linking.StageFailed, out.Stage)
		require.ErrorIs(t, out.Reason, apperrors.ErrStateMismatchOrDenied)
		require.Empty(t, out.VerificationCode)
		require.Equal(t, "LinkedIn", out.ProviderName)
		require.Zero(t, f.linkedIn.Exchanges())

		_, err = f.repo.Token(ctx, addr.Key(), "linkedIn")
		require.ErrorIs(t, err, tokens.ErrTokenNotFound)
		s, err := f.repo.Load(ctx, addr)
		require.NoError(t, err)
		require.NotEmpty(t, s.Nonce("linkedIn"), "a failed check must not consume the nonce")
	})

	t.Run("replayed redirect", func(t *testing.T) {
		f := newFixture(t)
		state := f.begin(t, addr, "linkedIn")
		req := linking.CallbackRequest{Provider: "linkedIn", State: state, Code: "auth-code"}

		require.True(t, f.orch.HandleCallback(ctx, req).Succeeded())
		out := f.orch.HandleCallback(ctx, req)
		require.ErrorIs(t, out.Reason, apperrors.ErrStateMismatchOrDenied)
		require.Equal(t, 1, f.linkedIn.Exchanges())
	})

	t.Run("state of a newer login wins", func(t *testing.T) {
		f := newFixture(t)
		old := f.begin(t, addr, "linkedIn")
		current := f.begin(t, addr, "linkedIn")

		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "linkedIn", State: old, Code: "auth-code"})
		require.ErrorIs(t, out.Reason, apperrors.ErrStateMismatchOrDenied)
		out = f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "linkedIn", State: current, Code: "auth-code"})
		require.True(t, out.Succeeded())
	})

	t.Run("malformed state", func(t *testing.T) {
		f := newFixture(t)
		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "google", State: "%%%", Code: "g-code"})
		require.Equal(t, linking.StageFailed, out.Stage)
		require.ErrorIs(t, out.Reason, apperrors.ErrMalformedState)
		require.Equal(t, "Google", out.ProviderName)
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallbackOutcomes.WithLabelValues("google", "malformed_state")))
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		state, _, err := f.codec.Encode(storetest.TestAddress("stranger"), "google")
		require.NoError(t, err)
		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "google", State: state, Code: "g-code"})
		require.ErrorIs(t, out.Reason, apperrors.ErrSessionUnresolvable)
		require.Zero(t, f.google.Exchanges())
	})

	t.Run("session backend failure", func(t *testing.T) {
		f := newFixture(t)
		state := f.begin(t, addr, "google")
		f.store = &failingStore{Store: f.repo, loadErr: errors.New("connection refused")}
		f.build()

		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "google", State: state, Code: "g-code"})
		require.ErrorIs(t, out.Reason, apperrors.ErrSessionUnresolvable)
		require.Zero(t, f.google.Exchanges())
	})

	t.Run("route and state provider differ", func(t *testing.T) {
		f := newFixture(t)
		state := f.begin(t, addr, "google")
		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "linkedIn", State: state, Code: "auth-code"})
		require.ErrorIs(t, out.Reason, apperrors.ErrStateMismatchOrDenied)
	})

	t.Run("provider not configured", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.repo.Open(ctx, addr)
		require.NoError(t, err)
		state, nonce, err := f.codec.Encode(addr, "azureADv1")
		require.NoError(t, err)
		require.NoError(t, f.repo.SetOAuthState(ctx, addr.Key(), "azureADv1", nonce))

		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "azureADv1", State: state, Code: "c"})
		require.ErrorIs(t, out.Reason, apperrors.ErrStateMismatchOrDenied)
		require.Equal(t, "Azure AD", out.ProviderName)
	})

	t.Run("user denied consent", func(t *testing.T) {
		f := newFixture(t)
		state := f.begin(t, addr, "linkedIn")
		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{
			Provider: "linkedIn", State: state, Error: "user_cancelled_authorize", ErrorDescription: "The user cancelled",
		})
		require.ErrorIs(t, out.Reason, apperrors.ErrStateMismatchOrDenied)
	})

	t.Run("no code and no token", func(t *testing.T) {
		f := newFixture(t)
		state := f.begin(t, addr, "linkedIn")
		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "linkedIn", State: state})
		require.ErrorIs(t, out.Reason, apperrors.ErrStateMismatchOrDenied)
		require.Equal(t, linking.StageFailed, out.Stage)
	})

	t.Run("exchange fails", func(t *testing.T) {
		f := newFixture(t)
		state := f.begin(t, addr, "linkedIn")
		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "linkedIn", State: state, Code: "expired-code"})
		require.ErrorIs(t, out.Reason, apperrors.ErrTokenExchangeFailed)
		require.Empty(t, out.VerificationCode)
		require.Equal(t, 1, f.linkedIn.Exchanges())

		_, err := f.repo.Token(ctx, addr.Key(), "linkedIn")
		require.ErrorIs(t, err, tokens.ErrTokenNotFound)
	})

	t.Run("persist fails", func(t *testing.T) {
		f := newFixture(t)
		state := f.begin(t, addr, "linkedIn")
		f.store = &failingStore{Store: f.repo, putErr: errors.New("disk full")}
		f.build()

		out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "linkedIn", State: state, Code: "auth-code"})
		require.ErrorIs(t, out.Reason, apperrors.ErrTokenPersistFailed)
		require.Empty(t, out.VerificationCode)
	})
}

func TestHandleCallback_DirectAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	addr := storetest.TestAddress("carol")
	state := f.begin(t, addr, "google")

	out := f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "google", State: state, AccessToken: "delivered-token"})
	require.True(t, out.Succeeded(), "reason: %v", out.Reason)
	require.Zero(t, f.google.Exchanges())

	tok, err := f.repo.Token(ctx, addr.Key(), "google")
	require.NoError(t, err)
	require.Equal(t, "delivered-token", tok.AccessToken)
	require.True(t, tok.ExpiresAt.IsZero())
}

func TestHandleCallback_MetricLabels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 50; i++ {
		f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: fmt.Sprintf("junk%d", i), State: "x"})
	}
	f.orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "google", State: "x"})

	require.Equal(t, 2, testutil.CollectAndCount(f.metrics.CallbackOutcomes))
	require.Equal(t, 50.0, testutil.ToFloat64(f.metrics.CallbackOutcomes.WithLabelValues(providers.UnknownLabel, "malformed_state")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallbackOutcomes.WithLabelValues("google", "malformed_state")))
}

// locatorFunc adapts a function to sessions.Locator.
type locatorFunc func(ctx context.Context, addr sessions.Address) (*sessions.Session, error)

func (fn locatorFunc) Load(ctx context.Context, addr sessions.Address) (*sessions.Session, error) {
	return fn(ctx, addr)
}

func TestHandleCallback_UsesInjectedLocator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	addr := storetest.TestAddress("erin")
	state := f.begin(t, addr, "google")

	var looked []sessions.Address
	locator := locatorFunc(func(ctx context.Context, a sessions.Address) (*sessions.Session, error) {
		looked = append(looked, a)
		return nil, apperrors.ErrSessionNotFound
	})
	orch := linking.NewOrchestrator(f.codec, locator, f.store, providers.NewRegistry(f.google), f.challenge, nil)

	out := orch.HandleCallback(ctx, linking.CallbackRequest{Provider: "google", State: state, Code: "g-code"})
	require.ErrorIs(t, out.Reason, apperrors.ErrSessionUnresolvable)
	require.Equal(t, []sessions.Address{addr}, looked)
	require.Zero(t, f.google.Exchanges())
}

func TestBegin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orch.Begin(ctx, storetest.TestAddress("dave"), "myspace")
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)

	_, err = f.orch.Begin(ctx, sessions.Address{ChannelID: "msteams"}, "google")
	require.Error(t, err)

	authURL, err := f.orch.Begin(ctx, storetest.TestAddress("dave"), "google")
	require.NoError(t, err)
	decoded, err := f.codec.Decode(stateFromURL(t, authURL))
	require.NoError(t, err)
	require.Equal(t, "google", decoded.Provider)
	require.Equal(t, storetest.TestAddress("dave"), decoded.Address)
}

func TestStageString(t *testing.T) {
	require.Equal(t, "state_verified", linking.StageStateVerified.String())
	require.Equal(t, "failed", linking.StageFailed.String())
	require.Equal(t, "unknown", linking.Stage(99).String())
}

type failingStore struct {
	sessions.Store
	loadErr error
	putErr  error
}

func (s *failingStore) Load(ctx context.Context, addr sessions.Address) (*sessions.Session, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.Store.Load(ctx, addr)
}

func (s *failingStore) PutToken(ctx context.Context, key, provider string, t *tokens.PendingToken) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.PutToken(ctx, key, provider, t)
}
