package server

// Route path constants
const (
	// Provider redirect target. {provider} is a providers.ID.
	RouteAuthCallback = "/auth/{provider}/callback"

	// On-behalf-of exchange of a tab token for a Graph token
	RouteAuthToken = "/auth/token"

	// Chat
	RouteMessages = "/api/messages"

	// Teams tab APIs, authenticated with an Azure AD id_token
	RouteProfiles        = "/api/profiles"
	RouteProfilesFromBot = "/api/getProfilesFromBot"
	RouteDecodeToken     = "/api/decodeToken"
	RouteGraphProfile    = "/api/getProfileFromGraph"

	// Operations
	RoutePing    = "/ping"
	RouteMetrics = "/metrics"
)

const (
	templateCallbackSuccess = "oauth_callback_success.html"
	templateCallbackError   = "oauth_callback_error.html"

	contentTypeJSON = "application/json"
	contentTypeHTML = "text/html; charset=utf-8"
)
