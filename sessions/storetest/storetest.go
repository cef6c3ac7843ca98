// Package storetest holds the behaviour every session backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/jrsteele09/go-identity-bridge/tokens"
	"github.com/stretchr/testify/require"
)

const testProvider = "linkedIn"

// TestAddress returns a valid address for a user.
func TestAddress(userID string) sessions.Address {
	return sessions.Address{
		ChannelID:      "msteams",
		ServiceURL:     "https://smba.trafficmanager.net/emea/",
		ConversationID: "conv-" + userID,
		UserID:         userID,
		UserObjectID:   "oid-" + userID,
		BotID:          "bot-1",
	}
}

// Run exercises a session backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) sessions.Store) {
	ctx := context.Background()

	t.Run("load unknown address", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(ctx, TestAddress("nobody"))
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("open then load", func(t *testing.T) {
		s := newStore(t)
		addr := TestAddress("u1")
		opened, err := s.Open(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, addr.Key(), opened.Key)

		loaded, err := s.Load(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, addr, loaded.Address)
		require.Empty(t, loaded.Tokens)
	})

	t.Run("open keeps existing data", func(t *testing.T) {
		s := newStore(t)
		addr := TestAddress("u2")
		_, err := s.Open(ctx, addr)
		require.NoError(t, err)
		require.NoError(t, s.SetOAuthState(ctx, addr.Key(), testProvider, "nonce-1"))

		addr.ConversationID = "another-conversation"
		reopened, err := s.Open(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, "nonce-1", reopened.Nonce(testProvider))
		require.Equal(t, "another-conversation", reopened.Address.ConversationID)
	})

	t.Run("load by user", func(t *testing.T) {
		s := newStore(t)
		addr := TestAddress("u3")
		_, err := s.Open(ctx, addr)
		require.NoError(t, err)

		loaded, err := s.LoadByUser(ctx, addr.UserObjectID)
		require.NoError(t, err)
		require.Equal(t, addr.Key(), loaded.Key)

		_, err = s.LoadByUser(ctx, "oid-unknown")
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("oauth state set and clear", func(t *testing.T) {
		s := newStore(t)
		addr := TestAddress("u4")
		_, err := s.Open(ctx, addr)
		require.NoError(t, err)

		require.NoError(t, s.SetOAuthState(ctx, addr.Key(), testProvider, "nonce-a"))
		require.NoError(t, s.SetOAuthState(ctx, addr.Key(), "google", "nonce-b"))
		loaded, err := s.Load(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, "nonce-a", loaded.Nonce(testProvider))
		require.Equal(t, "nonce-b", loaded.Nonce("google"))

		require.NoError(t, s.SetOAuthState(ctx, addr.Key(), testProvider, ""))
		loaded, err = s.Load(ctx, addr)
		require.NoError(t, err)
		require.Empty(t, loaded.Nonce(testProvider))
		require.Equal(t, "nonce-b", loaded.Nonce("google"))
	})

	t.Run("oauth state on unknown session", func(t *testing.T) {
		s := newStore(t)
		err := s.SetOAuthState(ctx, TestAddress("ghost").Key(), testProvider, "n")
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("token put get overwrite delete", func(t *testing.T) {
		s := newStore(t)
		addr := TestAddress("u5")
		_, err := s.Open(ctx, addr)
		require.NoError(t, err)

		_, err = s.Token(ctx, addr.Key(), testProvider)
		require.ErrorIs(t, err, tokens.ErrTokenNotFound)

		issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		first := &tokens.PendingToken{AccessToken: "at-1", VerificationCode: "111111", Status: tokens.StatusPending, IssuedAt: issued}
		require.NoError(t, s.PutToken(ctx, addr.Key(), testProvider, first))

		got, err := s.Token(ctx, addr.Key(), testProvider)
		require.NoError(t, err)
		require.Equal(t, "at-1", got.AccessToken)
		require.Equal(t, "111111", got.VerificationCode)
		require.True(t, got.IsPending())
		require.True(t, issued.Equal(got.IssuedAt))

		second := &tokens.PendingToken{AccessToken: "at-2", VerificationCode: "222222", Status: tokens.StatusPending, IssuedAt: issued}
		require.NoError(t, s.PutToken(ctx, addr.Key(), testProvider, second))
		got, err = s.Token(ctx, addr.Key(), testProvider)
		require.NoError(t, err)
		require.Equal(t, "222222", got.VerificationCode)

		loaded, err := s.Load(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, "at-2", loaded.Token(testProvider).AccessToken)

		require.NoError(t, s.DeleteToken(ctx, addr.Key(), testProvider))
		_, err = s.Token(ctx, addr.Key(), testProvider)
		require.ErrorIs(t, err, tokens.ErrTokenNotFound)
		require.NoError(t, s.DeleteToken(ctx, addr.Key(), testProvider))
	})

	t.Run("put token on unknown session", func(t *testing.T) {
		s := newStore(t)
		err := s.PutToken(ctx, TestAddress("ghost").Key(), testProvider, &tokens.PendingToken{AccessToken: "x"})
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("update token", func(t *testing.T) {
		s := newStore(t)
		addr := TestAddress("u6")
		_, err := s.Open(ctx, addr)
		require.NoError(t, err)

		err = s.UpdateToken(ctx, addr.Key(), testProvider, func(*tokens.PendingToken) error { return nil })
		require.ErrorIs(t, err, tokens.ErrTokenNotFound)

		require.NoError(t, s.PutToken(ctx, addr.Key(), testProvider, &tokens.PendingToken{AccessToken: "at", VerificationCode: "123456", Status: tokens.StatusPending}))

		errStop := errors.New("stop")
		err = s.UpdateToken(ctx, addr.Key(), testProvider, func(tok *tokens.PendingToken) error {
			tok.Status = tokens.StatusActive
			return errStop
		})
		require.ErrorIs(t, err, errStop)
		got, err := s.Token(ctx, addr.Key(), testProvider)
		require.NoError(t, err)
		require.True(t, got.IsPending(), "failed update must not be written")

		err = s.UpdateToken(ctx, addr.Key(), testProvider, func(tok *tokens.PendingToken) error {
			tok.Status = tokens.StatusActive
			tok.VerificationCode = ""
			return nil
		})
		require.NoError(t, err)
		got, err = s.Token(ctx, addr.Key(), testProvider)
		require.NoError(t, err)
		require.True(t, got.IsActive())
		require.Empty(t, got.VerificationCode)
	})

	t.Run("providers are independent keys", func(t *testing.T) {
		s := newStore(t)
		addr := TestAddress("u7")
		_, err := s.Open(ctx, addr)
		require.NoError(t, err)

		providers := []string{"linkedIn", "google", "azureADv1"}
		errs := make([]error, len(providers))
		var wg sync.WaitGroup
		for i, p := range providers {
			wg.Add(1)
			go func(i int, p string) {
				defer wg.Done()
				errs[i] = s.PutToken(ctx, addr.Key(), p, &tokens.PendingToken{AccessToken: "at-" + p, Status: tokens.StatusPending})
			}(i, p)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		loaded, err := s.Load(ctx, addr)
		require.NoError(t, err)
		require.Len(t, loaded.Tokens, 3)
		require.Equal(t, "at-google", loaded.Token("google").AccessToken)
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		s := newStore(t)
		addr := TestAddress("u8")
		_, err := s.Open(ctx, addr)
		require.NoError(t, err)
		require.NoError(t, s.PutToken(ctx, addr.Key(), testProvider, &tokens.PendingToken{AccessToken: "at", Status: tokens.StatusPending}))

		loaded, err := s.Load(ctx, addr)
		require.NoError(t, err)
		loaded.Tokens[testProvider].Status = tokens.StatusActive
		loaded.OAuthState[testProvider] = "tampered"

		again, err := s.Load(ctx, addr)
		require.NoError(t, err)
		require.True(t, again.Token(testProvider).IsPending())
		require.Empty(t, again.Nonce(testProvider))
	})
}
