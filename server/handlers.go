package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-identity-bridge/chat"
	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
)

const maxActivityBytes = 1 << 20

// MessagesHandler accepts a chat activity and answers with the reply activity.
func (s *Server) MessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var activity chat.Activity
		if err := json.NewDecoder(io.LimitReader(r.Body, maxActivityBytes)).Decode(&activity); err != nil {
			writeJSONError(w, "invalid_request", "Malformed activity", http.StatusBadRequest)
			return
		}

		// Connector tokens are bound to the service URL they were issued for.
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			if serviceURL, ok := claims["serviceurl"].(string); ok && !strings.EqualFold(serviceURL, activity.ServiceURL) {
				writeJSONError(w, "invalid_token", "Service URL does not match token", http.StatusForbidden)
				return
			}
		}

		reply, err := s.deps.Activities.HandleActivity(r.Context(), activity)
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidRequest) {
				writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
				return
			}
			log.Err(err).Str("channel", activity.ChannelID).Str("type", activity.Type).Msg("Failed to handle activity")
			writeJSONError(w, "server_error", "Failed to handle activity", http.StatusInternalServerError)
			return
		}
		if reply == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

// ProfilesHandler returns the linked provider profiles of the token's user.
func (s *Server) ProfilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		oid, _ := ClaimsFromContext(r.Context())["oid"].(string)
		if oid == "" {
			writeJSONError(w, "invalid_token", "Token has no oid claim", http.StatusUnauthorized)
			return
		}
		profiles, err := s.deps.Profiles.CollectProfiles(r.Context(), oid)
		if err != nil {
			log.Err(err).Str("oid", oid).Msg("Failed to collect profiles")
			writeJSONError(w, "server_error", "Failed to collect profiles", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, profiles)
	}
}

// DecodeTokenHandler echoes the verified claims of the caller's id_token.
func (s *Server) DecodeTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ClaimsFromContext(r.Context()))
	}
}

// PreflightHandler only runs for same-origin OPTIONS requests; CorsMiddleware answers the rest.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) PingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
