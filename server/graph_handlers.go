package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
)

const maxTokenRequestBytes = 64 << 10

type authTokenRequest struct {
	TenantID string `json:"tid"`
	Token    string `json:"token"`
}

type authTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// AuthTokenHandler exchanges the token a tab obtained silently for a Graph token.
// The body is JSON or a form with "tid" and "token".
func (s *Server) AuthTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := readAuthTokenRequest(w, r)
		if err != nil {
			writeJSONError(w, "invalid_request", "Malformed token request", http.StatusBadRequest)
			return
		}

		tok, err := s.deps.OnBehalfOf.ExchangeOnBehalfOf(r.Context(), req.TenantID, req.Token)
		if err != nil {
			writeExchangeError(w, err)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, tokenResponse(tok))
	}
}

// GraphProfileHandler returns the caller's Microsoft Graph profile, reading it on
// behalf of the user identified by the verified id_token.
func (s *Server) GraphProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, _ := ClaimsFromContext(r.Context())["tid"].(string)
		if tid == "" {
			writeJSONError(w, "invalid_token", "Token has no tid claim", http.StatusUnauthorized)
			return
		}

		tok, err := s.deps.OnBehalfOf.ExchangeOnBehalfOf(r.Context(), tid, BearerTokenFromContext(r.Context()))
		if err != nil {
			writeExchangeError(w, err)
			return
		}
		profile, err := s.deps.OnBehalfOf.GraphProfile(r.Context(), tok.AccessToken)
		if err != nil {
			log.Err(err).Str("tid", tid).Msg("Failed to read graph profile")
			writeJSONError(w, "server_error", "Failed to read graph profile", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func readAuthTokenRequest(w http.ResponseWriter, r *http.Request) (authTokenRequest, error) {
	var req authTokenRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == contentTypeJSON {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxTokenRequestBytes)).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxTokenRequestBytes)
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.TenantID = r.PostFormValue("tid")
	req.Token = r.PostFormValue("token")
	return req, nil
}

// writeExchangeError relays the identity provider's error code, so the tab can
// tell consent_required and interaction_required apart.
func writeExchangeError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrInvalidRequest) {
		writeJSONError(w, "invalid_request", "Missing or invalid tid or token", http.StatusBadRequest)
		return
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		code := rErr.ErrorCode
		if code == "" {
			code = "invalid_grant"
		}
		log.Warn().Str("error", code).Msg("On-behalf-of exchange rejected")
		writeJSONError(w, code, "Token exchange was rejected", http.StatusBadRequest)
		return
	}
	log.Err(err).Msg("On-behalf-of exchange failed")
	writeJSONError(w, "server_error", "Token exchange failed", http.StatusBadGateway)
}

func tokenResponse(tok *oauth2.Token) authTokenResponse {
	resp := authTokenResponse{AccessToken: tok.AccessToken, TokenType: tok.Type()}
	if !tok.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}
