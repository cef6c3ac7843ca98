// Package providerfake provides an in-process providers.Client for tests.
package providerfake

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/providers"
)

// Client accepts configured codes and access tokens and records calls.
type Client struct {
	mu sync.Mutex

	id       providers.ID
	codes    map[string]string            // authorization code -> access token
	profiles map[string]providers.Profile // access token -> profile

	ExchangeErr error
	ProfileErr  error
	Delay       time.Duration

	exchanges int
	fetches   int
}

var _ providers.Client = (*Client)(nil)

func New(id providers.ID) *Client {
	return &Client{
		id:       id,
		codes:    make(map[string]string),
		profiles: make(map[string]providers.Profile),
	}
}

// WithCode makes code exchange into accessToken.
func (c *Client) WithCode(code, accessToken string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[code] = accessToken
	return c
}

// WithProfile makes accessToken resolve to p.
func (c *Client) WithProfile(accessToken string, p providers.Profile) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.Provider = c.id
	c.profiles[accessToken] = p
	return c
}

func (c *Client) ID() providers.ID {
	return c.id
}

func (c *Client) DisplayName() string {
	return c.id.DisplayName()
}

func (c *Client) AuthCodeURL(state string) string {
	return "https://idp.example.com/" + string(c.id) + "/authorize?state=" + url.QueryEscape(state)
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (*providers.Token, error) {
	c.mu.Lock()
	c.exchanges++
	at, ok := c.codes[code]
	err := c.ExchangeErr
	c.mu.Unlock()

	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTokenExchangeFailed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTokenExchangeFailed, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: unknown code", apperrors.ErrTokenExchangeFailed)
	}
	return &providers.Token{AccessToken: at, Expiry: time.Now().Add(time.Hour)}, nil
}

func (c *Client) FetchProfile(ctx context.Context, accessToken string) (providers.Profile, error) {
	c.mu.Lock()
	c.fetches++
	p, ok := c.profiles[accessToken]
	err := c.ProfileErr
	c.mu.Unlock()

	if err := c.wait(ctx); err != nil {
		return providers.Profile{}, fmt.Errorf("%w: %v", apperrors.ErrProfileFetch, err)
	}
	if err != nil {
		return providers.Profile{}, fmt.Errorf("%w: %v", apperrors.ErrProfileFetch, err)
	}
	if !ok {
		return providers.Profile{}, fmt.Errorf("%w: unknown access token", apperrors.ErrProfileFetch)
	}
	return p, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(c.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exchanges reports how many code exchanges were attempted.
func (c *Client) Exchanges() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchanges
}

// Fetches reports how many profile reads were attempted.
func (c *Client) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}
