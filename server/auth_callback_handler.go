package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-identity-bridge/linking"
)

// OAuthCallbackHandler receives the provider redirect and renders the outcome page.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params and form_post bodies
		req := linking.CallbackRequest{
			Provider:         r.PathValue("provider"),
			State:            r.FormValue("state"),
			Code:             r.FormValue("code"),
			AccessToken:      r.FormValue("accessToken"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}

		out := s.deps.Callbacks.HandleCallback(r.Context(), req)

		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")

		var err error
		if out.Succeeded() {
			err = s.successPage.Execute(w, CallbackSuccessData{
				VerificationCode: out.VerificationCode,
				ProviderName:     out.ProviderName,
			})
		} else {
			w.WriteHeader(http.StatusBadRequest)
			err = s.errorPage.Execute(w, CallbackErrorData{ProviderName: out.ProviderName})
		}
		if err != nil {
			log.Err(err).Str("request_id", out.RequestID).Msg("Failed to render callback page")
		}
	}
}
