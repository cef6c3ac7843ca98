package providers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/oauth2"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
)

const (
	jwtBearerGrant     = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	tenantPlaceholder  = "{tenant}"
	onBehalfOfTokenURL = azureADLoginBase + tenantPlaceholder + "/oauth2/v2.0/token"
	graphUserReadScope = "https://graph.microsoft.com/User.Read"
)

// Tenant ids are GUIDs or verified domain names. Anything else would let a
// caller rewrite the token endpoint path.
var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.-]{0,127}$`)

// OnBehalfOf trades a token a Teams tab obtained for this app into a Microsoft
// Graph token (Azure AD v2 on-behalf-of grant) and reads the Graph profile with it.
type OnBehalfOf struct {
	oauthClient
}

// NewOnBehalfOf creates the exchanger for the app registration clientID. The
// token endpoint may contain {tenant}, which is replaced per request.
func NewOnBehalfOf(clientID, clientSecret string, opts ...Option) *OnBehalfOf {
	o := buildOptions(options{
		tokenURL:   onBehalfOfTokenURL,
		profileURL: azureADProfileURL,
		scopes:     []string{graphUserReadScope},
	}, opts)

	c := &OnBehalfOf{oauthClient: newOAuthClient(AzureADv1, Credentials{ClientID: clientID, ClientSecret: clientSecret}, o)}
	c.cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	return c
}

// ExchangeOnBehalfOf redeems assertion, a token issued to this app, for a Graph
// token in tenantID. Provider rejections keep their *oauth2.RetrieveError.
func (c *OnBehalfOf) ExchangeOnBehalfOf(ctx context.Context, tenantID, assertion string) (*oauth2.Token, error) {
	if !tenantPattern.MatchString(tenantID) {
		return nil, fmt.Errorf("%w: invalid tenant id", apperrors.ErrInvalidRequest)
	}
	if assertion == "" {
		return nil, fmt.Errorf("%w: missing assertion", apperrors.ErrInvalidRequest)
	}

	cfg := *c.cfg
	cfg.Endpoint.TokenURL = strings.ReplaceAll(c.cfg.Endpoint.TokenURL, tenantPlaceholder, tenantID)

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tok, err := cfg.Exchange(ctx, "",
		oauth2.SetAuthURLParam("grant_type", jwtBearerGrant),
		oauth2.SetAuthURLParam("assertion", assertion),
		oauth2.SetAuthURLParam("requested_token_use", "on_behalf_of"),
		oauth2.SetAuthURLParam("scope", strings.Join(cfg.Scopes, " ")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: on-behalf-of for tenant %s: %w", apperrors.ErrTokenExchangeFailed, tenantID, err)
	}
	return tok, nil
}

// GraphProfile reads the signed-in user's Graph profile as returned by /me.
func (c *OnBehalfOf) GraphProfile(ctx context.Context, accessToken string) (map[string]any, error) {
	raw := map[string]any{}
	if err := c.getJSON(ctx, c.profileURL, accessToken, &raw); err != nil {
		return nil, profileError(c.id, err)
	}
	return raw, nil
}
