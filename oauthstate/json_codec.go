package oauthstate

import (
	"bytes"
	"encoding/json"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/sessions"
	"github.com/pkg/errors"
)

// JSONCodec carries the state as a plain JSON object. This is the wire format
// already understood by deployed sign-in links.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

// NewJSONCodec returns the plain JSON codec
func NewJSONCodec() JSONCodec {
	return JSONCodec{}
}

func (JSONCodec) Encode(addr sessions.Address, provider string) (string, string, error) {
	st, err := newState(addr, provider)
	if err != nil {
		return "", "", err
	}
	b, err := json.Marshal(st)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal state")
	}
	return string(b), st.Nonce, nil
}

func (JSONCodec) Decode(state string) (State, error) {
	if state == "" {
		return State{}, apperrors.Wrapf(apperrors.ErrMalformedState, "empty state")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(state)))
	var st State
	if err := dec.Decode(&st); err != nil {
		return State{}, apperrors.Wrapf(apperrors.ErrMalformedState, "decode state: %v", err)
	}
	if dec.More() {
		return State{}, apperrors.Wrapf(apperrors.ErrMalformedState, "trailing data after state")
	}
	if err := st.validate(); err != nil {
		return State{}, apperrors.Wrapf(apperrors.ErrMalformedState, "%v", err)
	}
	return st, nil
}
