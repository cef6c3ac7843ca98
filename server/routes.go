package server

func (s *Server) initRoutes() {
	// Provider redirects. POST covers providers using response_mode=form_post.
	s.RegisterRouteHandler("GET "+RouteAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleWare()...))

	// Chat activities from the bot connector
	s.RegisterRouteHandler("POST "+RouteMessages, ChainMiddleware(s.MessagesHandler(), s.APIMiddleware(s.RequireBotToken())...))

	// Tab APIs
	s.RegisterRouteHandler("GET "+RouteProfiles, ChainMiddleware(s.ProfilesHandler(), s.APIMiddleware(s.RequireIDToken())...))
	s.RegisterRouteHandler("GET "+RouteProfilesFromBot, ChainMiddleware(s.ProfilesHandler(), s.APIMiddleware(s.RequireIDToken())...))
	s.RegisterRouteHandler("GET "+RouteDecodeToken, ChainMiddleware(s.DecodeTokenHandler(), s.APIMiddleware(s.RequireIDToken())...))
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	// Graph access on behalf of the tab user, only with an app secret configured
	if s.deps.OnBehalfOf != nil {
		s.RegisterRouteHandler("POST "+RouteAuthToken, ChainMiddleware(s.AuthTokenHandler(), s.APIMiddleware()...))
		s.RegisterRouteHandler("OPTIONS "+RouteAuthToken, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
		s.RegisterRouteHandler("GET "+RouteGraphProfile, ChainMiddleware(s.GraphProfileHandler(), s.APIMiddleware(s.RequireIDToken())...))
	}

	s.RegisterRouteFunc("GET "+RoutePing, s.PingHandler())
	if s.deps.Metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.deps.Metrics)
	}
}
