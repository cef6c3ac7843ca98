package providers

import (
	"context"
	"strings"
)

const (
	linkedInAuthURL    = "https://www.linkedin.com/oauth/v2/authorization"
	linkedInTokenURL   = "https://www.linkedin.com/oauth/v2/accessToken"
	linkedInProfileURL = "https://api.linkedin.com/v2/userinfo"
)

// LinkedInClient signs users in with LinkedIn's OpenID Connect product.
type LinkedInClient struct {
	oauthClient
}

var _ Client = (*LinkedInClient)(nil)

func NewLinkedIn(creds Credentials, opts ...Option) *LinkedInClient {
	o := buildOptions(options{
		authURL:    linkedInAuthURL,
		tokenURL:   linkedInTokenURL,
		profileURL: linkedInProfileURL,
		scopes:     []string{"openid", "profile", "email"},
	}, opts)
	return &LinkedInClient{oauthClient: newOAuthClient(LinkedIn, creds, o)}
}

func (c *LinkedInClient) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	raw := map[string]any{}
	if err := c.getJSON(ctx, c.profileURL, accessToken, &raw); err != nil {
		return Profile{}, profileError(c.id, err)
	}
	name := stringClaim(raw, "name")
	if name == "" {
		name = strings.TrimSpace(stringClaim(raw, "given_name") + " " + stringClaim(raw, "family_name"))
	}
	return Profile{
		Provider:    c.id,
		ID:          stringClaim(raw, "sub"),
		DisplayName: name,
		Email:       stringClaim(raw, "email"),
		Raw:         raw,
	}, nil
}
