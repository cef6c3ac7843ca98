package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-identity-bridge/chat"
	"github.com/jrsteele09/go-identity-bridge/internal/config"
	"github.com/jrsteele09/go-identity-bridge/linking"
	"github.com/jrsteele09/go-identity-bridge/providers"
)

// CallbackHandler completes a provider sign-in.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, req linking.CallbackRequest) linking.Outcome
}

// ActivityHandler answers chat activities.
type ActivityHandler interface {
	HandleActivity(ctx context.Context, a chat.Activity) (*chat.Activity, error)
}

// ProfileCollector returns a user's linked profiles.
type ProfileCollector interface {
	CollectProfiles(ctx context.Context, userObjectID string) (map[string]providers.Profile, error)
}

// TokenVerifier checks a bearer JWT. *oidc.IDTokenVerifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// OnBehalfExchanger trades a tab token for a Microsoft Graph token and reads the
// Graph profile with it.
type OnBehalfExchanger interface {
	ExchangeOnBehalfOf(ctx context.Context, tenantID, assertion string) (*oauth2.Token, error)
	GraphProfile(ctx context.Context, accessToken string) (map[string]any, error)
}

// Deps are the collaborators behind the HTTP routes. BotTokens may be nil, in
// which case chat activities are accepted without a connector token. Without
// OnBehalfOf the Graph routes are not registered.
type Deps struct {
	Callbacks  CallbackHandler
	Activities ActivityHandler
	Profiles   ProfileCollector
	IDTokens   TokenVerifier
	BotTokens  TokenVerifier
	OnBehalfOf OnBehalfExchanger
	Metrics    http.Handler
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config
	deps   Deps

	successPage *template.Template
	errorPage   *template.Template
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Callbacks == nil || deps.Activities == nil || deps.Profiles == nil || deps.IDTokens == nil {
		return nil, fmt.Errorf("[Server New] callbacks, activities, profiles and id token verifier are required")
	}

	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		config: cfg,
		deps:   deps,
	}

	var err error
	if s.successPage, err = ParseTemplate(templateCallbackSuccess); err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse %s: %w", templateCallbackSuccess, err)
	}
	if s.errorPage, err = ParseTemplate(templateCallbackError); err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse %s: %w", templateCallbackError, err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			fmt.Println(formatRoute(parts[0], parts[1]))
		} else {
			fmt.Println(formatRoute("", parts[0]))
		}
	}
}

func formatRoute(method, path string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	return fmt.Sprintf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
