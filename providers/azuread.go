package providers

import (
	"context"

	"golang.org/x/oauth2"
)

const (
	azureADLoginBase  = "https://login.microsoftonline.com/"
	azureADResource   = "https://graph.microsoft.com"
	azureADProfileURL = "https://graph.microsoft.com/v1.0/me"
	defaultTenant     = "common"
)

// AzureADClient signs users in against the Azure AD v1 endpoint, which takes a
// resource parameter instead of scopes.
type AzureADClient struct {
	oauthClient
}

var _ Client = (*AzureADClient)(nil)

func NewAzureAD(creds Credentials, opts ...Option) *AzureADClient {
	tenant := creds.Tenant
	if tenant == "" {
		tenant = defaultTenant
	}
	o := buildOptions(options{
		authURL:    azureADLoginBase + tenant + "/oauth2/authorize",
		tokenURL:   azureADLoginBase + tenant + "/oauth2/token",
		profileURL: azureADProfileURL,
	}, opts)

	c := &AzureADClient{oauthClient: newOAuthClient(AzureADv1, creds, o)}
	c.cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	c.authParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("resource", azureADResource)}
	return c
}

func (c *AzureADClient) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	raw := map[string]any{}
	if err := c.getJSON(ctx, c.profileURL, accessToken, &raw); err != nil {
		return Profile{}, profileError(c.id, err)
	}
	return Profile{
		Provider:    c.id,
		ID:          stringClaim(raw, "id"),
		DisplayName: stringClaim(raw, "displayName"),
		Email:       stringClaim(raw, "mail", "userPrincipalName"),
		Raw:         raw,
	}, nil
}
