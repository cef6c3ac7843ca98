package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
)

const maxProfileBytes = 1 << 20

// oauthClient holds what every provider shares: an oauth2 config and the
// bounded, authenticated HTTP calls made with it.
type oauthClient struct {
	id         ID
	cfg        *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
	authParams []oauth2.AuthCodeOption
	profileURL string
}

func newOAuthClient(id ID, creds Credentials, o options) oauthClient {
	return oauthClient{
		id: id,
		cfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  o.authURL,
				TokenURL: o.tokenURL,
			},
			Scopes: o.scopes,
		},
		httpClient: o.httpClient,
		timeout:    o.timeout,
		profileURL: o.profileURL,
	}
}

func (c *oauthClient) ID() ID {
	return c.id
}

func (c *oauthClient) DisplayName() string {
	return c.id.DisplayName()
}

func (c *oauthClient) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state, c.authParams...)
}

// callContext bounds a provider call and injects the configured HTTP client.
func (c *oauthClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *oauthClient) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", apperrors.ErrTokenExchangeFailed)
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tok, err := c.cfg.Exchange(ctx, code, c.authParams...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrTokenExchangeFailed, c.id, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s returned no access token", apperrors.ErrTokenExchangeFailed, c.id)
	}
	return &Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}

// getJSON reads url with a bearer access token and decodes the JSON body into out.
func (c *oauthClient) getJSON(ctx context.Context, url, accessToken string, out any) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	client := c.cfg.Client(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build profile request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "profile request to %s failed", c.id)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return errors.Wrap(err, "failed to read profile response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s profile endpoint returned %d", c.id, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to decode profile")
	}
	return nil
}

func profileError(id ID, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrProfileFetch, id, err)
}

func stringClaim(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
