// Package oauthstate encodes the chat conversation address into the OAuth state
// parameter and recovers it when the provider redirects back.
package oauthstate

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-bridge/sessions"
)

const nonceBytes = 32

// State is the decoded content of an OAuth state parameter. It is only used to
// relocate a session and never authorises anything on its own.
type State struct {
	Address  sessions.Address `json:"address"`
	Provider string           `json:"provider"`
	Nonce    string           `json:"nonce"`
}

func (s State) validate() error {
	if err := s.Address.Validate(); err != nil {
		return err
	}
	if s.Provider == "" {
		return errors.New("state is missing provider")
	}
	if s.Nonce == "" {
		return errors.New("state is missing nonce")
	}
	return nil
}

// Codec turns a conversation address into an opaque state string and back.
type Codec interface {
	// Encode returns the state string and the fresh nonce embedded in it.
	// The caller must remember the nonce in the session.
	Encode(addr sessions.Address, provider string) (state string, nonce string, err error)

	// Decode parses a state string. Every failure wraps ErrMalformedState.
	Decode(state string) (State, error)
}

// NewNonce returns 32 random bytes encoded as unpadded base64url.
func NewNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func newState(addr sessions.Address, provider string) (State, error) {
	if err := addr.Validate(); err != nil {
		return State{}, err
	}
	if provider == "" {
		return State{}, errors.New("provider is required")
	}
	nonce, err := NewNonce()
	if err != nil {
		return State{}, err
	}
	return State{Address: addr, Provider: provider, Nonce: nonce}, nil
}
