// Package providers talks to the third-party identity providers a chat user can link.
package providers

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
)

// ID names a supported identity provider. It appears in callback routes and in
// the OAuth state, so the values are part of the wire format.
type ID string

const (
	LinkedIn  ID = "linkedIn"
	AzureADv1 ID = "azureADv1"
	Google    ID = "google"
)

// KnownIDs lists every supported provider in display order.
var KnownIDs = []ID{LinkedIn, AzureADv1, Google}

var displayNames = map[ID]string{
	LinkedIn:  "LinkedIn",
	AzureADv1: "Azure AD",
	Google:    "Google",
}

// ParseID maps a route or state value to a provider id.
func ParseID(name string) (ID, error) {
	id := ID(name)
	if _, ok := displayNames[id]; !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownProvider, name)
	}
	return id, nil
}

// UnknownLabel stands in for provider names outside KnownIDs in metric labels.
const UnknownLabel = "unknown"

// MetricLabel returns name when it is a known provider id and UnknownLabel
// otherwise, so request data never mints new metric series.
func MetricLabel(name string) string {
	id, err := ParseID(name)
	if err != nil {
		return UnknownLabel
	}
	return string(id)
}

func (id ID) String() string {
	return string(id)
}

// DisplayName is the human readable provider name shown on callback pages.
func (id ID) DisplayName() string {
	if n, ok := displayNames[id]; ok {
		return n
	}
	return string(id)
}

// Token is the result of a successful code exchange.
type Token struct {
	AccessToken string
	Expiry      time.Time // zero when the provider did not say
}

// Profile is a provider's view of the linked user.
type Profile struct {
	Provider    ID             `json:"provider"`
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Email       string         `json:"email,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// Client is the per-provider capability set used by the callback flow and the
// profile aggregator.
type Client interface {
	ID() ID
	DisplayName() string

	// AuthCodeURL returns the URL the user visits to sign in.
	AuthCodeURL(state string) string

	// ExchangeCode trades an authorization code for an access token. Failures wrap
	// ErrTokenExchangeFailed.
	ExchangeCode(ctx context.Context, code string) (*Token, error)

	// FetchProfile reads the user profile with an access token. Failures wrap
	// ErrProfileFetch.
	FetchProfile(ctx context.Context, accessToken string) (Profile, error)
}

// Credentials configure one provider client.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Tenant       string
}
