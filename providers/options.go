package providers

import (
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	authURL    string
	tokenURL   string
	profileURL string
	scopes     []string
}

// Option customises a provider client.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for exchanges and profile reads.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout bounds each call to the provider.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithEndpoints overrides the authorization and token endpoints.
func WithEndpoints(authURL, tokenURL string) Option {
	return func(o *options) {
		o.authURL = authURL
		o.tokenURL = tokenURL
	}
}

// WithProfileURL overrides the profile endpoint.
func WithProfileURL(url string) Option {
	return func(o *options) { o.profileURL = url }
}

// WithScopes replaces the default scopes.
func WithScopes(scopes ...string) Option {
	return func(o *options) { o.scopes = scopes }
}

func buildOptions(defaults options, opts []Option) options {
	o := defaults
	o.timeout = defaultTimeout
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
