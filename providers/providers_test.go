package providers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-identity-bridge/internal/config"
	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/providers"
)

// fakeIdP serves a token endpoint and a profile endpoint for one provider.
type fakeIdP struct {
	*httptest.Server
	lastTokenForm url.Values
	profile       map[string]any
	tokenStatus   int
	delay         time.Duration
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	f := &fakeIdP{tokenStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.lastTokenForm = r.PostForm
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if f.tokenStatus != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.profile)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeIdP) options() []providers.Option {
	return []providers.Option{
		providers.WithEndpoints(f.URL+"/authorize", f.URL+"/token"),
		providers.WithProfileURL(f.URL + "/profile"),
		providers.WithHTTPClient(f.Client()),
	}
}

var testCreds = providers.Credentials{
	ClientID:     "client-id",
	ClientSecret: "client-secret",
	RedirectURL:  "https://bridge.example.com/auth/x/callback",
}

func TestParseID(t *testing.T) {
	for _, id := range providers.KnownIDs {
		got, err := providers.ParseID(string(id))
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
	_, err := providers.ParseID("facebook")
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)
	_, err = providers.ParseID("LinkedIn")
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)

	require.Equal(t, "Azure AD", providers.AzureADv1.DisplayName())
	require.Equal(t, "facebook", providers.DisplayName("facebook"))
}

func TestLinkedIn(t *testing.T) {
	ctx := context.Background()
	idp := newFakeIdP(t)
	idp.profile = map[string]any{"sub": "li-123", "given_name": "Ada", "family_name": "Lovelace", "email": "ada@example.com"}
	client := providers.NewLinkedIn(testCreds, idp.options()...)

	t.Run("auth code url", func(t *testing.T) {
		u, err := url.Parse(client.AuthCodeURL(`{"nonce":"n"}`))
		require.NoError(t, err)
		require.Equal(t, "/authorize", u.Path)
		require.Equal(t, `{"nonce":"n"}`, u.Query().Get("state"))
		require.Equal(t, "client-id", u.Query().Get("client_id"))
		require.Equal(t, "openid profile email", u.Query().Get("scope"))
	})

	t.Run("exchange", func(t *testing.T) {
		tok, err := client.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)
		require.Equal(t, "provider-access-token", tok.AccessToken)
		require.False(t, tok.Expiry.IsZero())
	})

	t.Run("exchange rejected", func(t *testing.T) {
		_, err := client.ExchangeCode(ctx, "bad-code")
		require.ErrorIs(t, err, apperrors.ErrTokenExchangeFailed)
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := client.ExchangeCode(ctx, "")
		require.ErrorIs(t, err, apperrors.ErrTokenExchangeFailed)
	})

	t.Run("profile", func(t *testing.T) {
		p, err := client.FetchProfile(ctx, "provider-access-token")
		require.NoError(t, err)
		require.Equal(t, providers.LinkedIn, p.Provider)
		require.Equal(t, "li-123", p.ID)
		require.Equal(t, "Ada Lovelace", p.DisplayName)
		require.Equal(t, "ada@example.com", p.Email)
	})

	t.Run("profile unauthorized", func(t *testing.T) {
		_, err := client.FetchProfile(ctx, "stale")
		require.ErrorIs(t, err, apperrors.ErrProfileFetch)
	})
}

func TestAzureAD(t *testing.T) {
	ctx := context.Background()
	idp := newFakeIdP(t)
	idp.profile = map[string]any{"id": "aad-1", "displayName": "Grace Hopper", "userPrincipalName": "grace@contoso.com"}
	client := providers.NewAzureAD(testCreds, idp.options()...)

	t.Run("resource is requested", func(t *testing.T) {
		u, err := url.Parse(client.AuthCodeURL("s"))
		require.NoError(t, err)
		require.Equal(t, "https://graph.microsoft.com", u.Query().Get("resource"))

		_, err = client.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)
		require.Equal(t, "https://graph.microsoft.com", idp.lastTokenForm.Get("resource"))
		require.Equal(t, "client-id", idp.lastTokenForm.Get("client_id"))
	})

	t.Run("profile falls back to upn", func(t *testing.T) {
		p, err := client.FetchProfile(ctx, "provider-access-token")
		require.NoError(t, err)
		require.Equal(t, "aad-1", p.ID)
		require.Equal(t, "Grace Hopper", p.DisplayName)
		require.Equal(t, "grace@contoso.com", p.Email)
	})

	t.Run("default tenant", func(t *testing.T) {
		c := providers.NewAzureAD(testCreds)
		u, err := url.Parse(c.AuthCodeURL("s"))
		require.NoError(t, err)
		require.Equal(t, "/common/oauth2/authorize", u.Path)
	})
}

func TestGoogle(t *testing.T) {
	ctx := context.Background()
	idp := newFakeIdP(t)
	idp.profile = map[string]any{"sub": "g-42", "name": "Alan Turing", "email": "alan@example.com", "email_verified": true}
	client := providers.NewGoogle(testCreds, idp.options()...)

	p, err := client.FetchProfile(ctx, "provider-access-token")
	require.NoError(t, err)
	require.Equal(t, "g-42", p.ID)
	require.Equal(t, "Alan Turing", p.DisplayName)
	require.Equal(t, "alan@example.com", p.Email)
	require.Equal(t, "Google", client.DisplayName())

	_, err = client.FetchProfile(ctx, "stale")
	require.ErrorIs(t, err, apperrors.ErrProfileFetch)
}

func TestExchangeTimeout(t *testing.T) {
	idp := newFakeIdP(t)
	idp.delay = 200 * time.Millisecond
	opts := append(idp.options(), providers.WithTimeout(20*time.Millisecond))
	client := providers.NewLinkedIn(testCreds, opts...)

	_, err := client.ExchangeCode(context.Background(), "good-code")
	require.ErrorIs(t, err, apperrors.ErrTokenExchangeFailed)
}

func TestRegistry(t *testing.T) {
	cfg := config.FromSettings(config.Settings{
		BaseURL:            "https://bridge.example.com",
		LinkedInClientID:   "li",
		GoogleClientID:     "g",
		GoogleClientSecret: "gs",
	})
	reg := providers.FromConfig(cfg)

	all := reg.All()
	require.Len(t, all, 2)
	require.Equal(t, providers.LinkedIn, all[0].ID())
	require.Equal(t, providers.Google, all[1].ID())

	c, err := reg.Get("google")
	require.NoError(t, err)
	u, err := url.Parse(c.AuthCodeURL("s"))
	require.NoError(t, err)
	require.Equal(t, "https://bridge.example.com/auth/google/callback", u.Query().Get("redirect_uri"))

	_, err = reg.Get("azureADv1")
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)
	_, err = reg.Get("myspace")
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)
}

func TestOnBehalfOf(t *testing.T) {
	ctx := context.Background()
	var (
		lastTenant string
		lastForm   url.Values
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{tenant}/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		lastTenant, lastForm = r.PathValue("tenant"), r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("assertion") != "tab-token" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"interaction_required","error_description":"AADSTS50079"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "graph-at",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "User.Read",
		})
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer graph-at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"aad-7","displayName":"Katherine Johnson"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := providers.NewOnBehalfOf("app-id", "app-secret",
		providers.WithEndpoints("", srv.URL+"/{tenant}/oauth2/v2.0/token"),
		providers.WithProfileURL(srv.URL+"/me"),
		providers.WithHTTPClient(srv.Client()),
	)

	t.Run("exchange", func(t *testing.T) {
		tok, err := client.ExchangeOnBehalfOf(ctx, "contoso.onmicrosoft.com", "tab-token")
		require.NoError(t, err)
		require.Equal(t, "graph-at", tok.AccessToken)
		require.Equal(t, "User.Read", tok.Extra("scope"))

		require.Equal(t, "contoso.onmicrosoft.com", lastTenant)
		require.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", lastForm.Get("grant_type"))
		require.Equal(t, "tab-token", lastForm.Get("assertion"))
		require.Equal(t, "on_behalf_of", lastForm.Get("requested_token_use"))
		require.Equal(t, "https://graph.microsoft.com/User.Read", lastForm.Get("scope"))
		require.Equal(t, "app-id", lastForm.Get("client_id"))
		require.Equal(t, "app-secret", lastForm.Get("client_secret"))
	})

	t.Run("rejection keeps the provider error code", func(t *testing.T) {
		_, err := client.ExchangeOnBehalfOf(ctx, "contoso.onmicrosoft.com", "stale-token")
		require.ErrorIs(t, err, apperrors.ErrTokenExchangeFailed)
		var rErr *oauth2.RetrieveError
		require.True(t, errors.As(err, &rErr))
		require.Equal(t, "interaction_required", rErr.ErrorCode)
	})

	t.Run("tenant cannot rewrite the endpoint", func(t *testing.T) {
		lastTenant = ""
		for _, tid := range []string{"", "../common", "a/b", "contoso?x=1"} {
			_, err := client.ExchangeOnBehalfOf(ctx, tid, "tab-token")
			require.ErrorIs(t, err, apperrors.ErrInvalidRequest, tid)
		}
		require.Empty(t, lastTenant)
	})

	t.Run("missing assertion", func(t *testing.T) {
		_, err := client.ExchangeOnBehalfOf(ctx, "contoso", "")
		require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	})

	t.Run("graph profile", func(t *testing.T) {
		p, err := client.GraphProfile(ctx, "graph-at")
		require.NoError(t, err)
		require.Equal(t, "Katherine Johnson", p["displayName"])

		_, err = client.GraphProfile(ctx, "stale")
		require.ErrorIs(t, err, apperrors.ErrProfileFetch)
	})
}

func TestMetricLabel(t *testing.T) {
	require.Equal(t, "google", providers.MetricLabel("google"))
	require.Equal(t, providers.UnknownLabel, providers.MetricLabel("Google"))
	require.Equal(t, providers.UnknownLabel, providers.MetricLabel("junk-123"))
}
