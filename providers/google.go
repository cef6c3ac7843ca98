package providers

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	googleIssuer      = "https://accounts.google.com"
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	googleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
)

// GoogleClient signs users in with Google and reads the OIDC userinfo endpoint.
type GoogleClient struct {
	oauthClient
	provider *oidc.Provider
}

var _ Client = (*GoogleClient)(nil)

func NewGoogle(creds Credentials, opts ...Option) *GoogleClient {
	o := buildOptions(options{
		authURL:    googleAuthURL,
		tokenURL:   googleTokenURL,
		profileURL: googleUserInfoURL,
		scopes:     []string{oidc.ScopeOpenID, "profile", "email"},
	}, opts)

	// Static discovery keeps construction offline.
	providerCfg := &oidc.ProviderConfig{
		IssuerURL:   googleIssuer,
		AuthURL:     o.authURL,
		TokenURL:    o.tokenURL,
		UserInfoURL: o.profileURL,
		JWKSURL:     googleJWKSURL,
		Algorithms:  []string{oidc.RS256},
	}
	return &GoogleClient{
		oauthClient: newOAuthClient(Google, creds, o),
		provider:    providerCfg.NewProvider(context.Background()),
	}
}

func (c *GoogleClient) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	info, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	if err != nil {
		return Profile{}, profileError(c.id, err)
	}
	raw := map[string]any{}
	if err := info.Claims(&raw); err != nil {
		return Profile{}, profileError(c.id, err)
	}
	return Profile{
		Provider:    c.id,
		ID:          info.Subject,
		DisplayName: stringClaim(raw, "name"),
		Email:       info.Email,
		Raw:         raw,
	}, nil
}
