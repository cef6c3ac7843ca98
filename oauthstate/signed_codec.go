package oauthstate

import (
	"crypto/sha256"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/sessions"
)

const (
	stateIssuer  = "identity-bridge"
	hkdfInfo     = "oauth-state-signing"
	signingKeyLn = 32
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type stateClaims struct {
	Address  sessions.Address `json:"addr"`
	Provider string           `json:"prv"`
	Nonce    string           `json:"nonce"`
	jwt.RegisteredClaims
}

// SignedCodec carries the state as an HS256 JWT, so a state string cannot be
// forged or edited without the signing secret.
type SignedCodec struct {
	key    []byte
	maxAge time.Duration
}

var _ Codec = (*SignedCodec)(nil)

// NewSignedCodec derives a signing key from secret. States older than maxAge are
// rejected; zero disables the age check.
func NewSignedCodec(secret string, maxAge time.Duration) (*SignedCodec, error) {
	if secret == "" {
		return nil, errors.New("state signing secret is required")
	}
	key := make([]byte, signingKeyLn)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, errors.Wrap(err, "failed to derive state signing key")
	}
	return &SignedCodec{key: key, maxAge: maxAge}, nil
}

func (c *SignedCodec) Encode(addr sessions.Address, provider string) (string, string, error) {
	st, err := newState(addr, provider)
	if err != nil {
		return "", "", err
	}
	now := NowTimeFunc()
	claims := stateClaims{
		Address:  st.Address,
		Provider: st.Provider,
		Nonce:    st.Nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   stateIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.maxAge > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.maxAge))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to sign state")
	}
	return signed, st.Nonce, nil
}

func (c *SignedCodec) Decode(state string) (State, error) {
	if state == "" {
		return State{}, apperrors.Wrapf(apperrors.ErrMalformedState, "empty state")
	}
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, c.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return State{}, apperrors.Wrapf(apperrors.ErrMalformedState, "verify state: %v", err)
	}
	st := State{Address: claims.Address, Provider: claims.Provider, Nonce: claims.Nonce}
	if err := st.validate(); err != nil {
		return State{}, apperrors.Wrapf(apperrors.ErrMalformedState, "%v", err)
	}
	return st, nil
}

func (c *SignedCodec) verificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return c.key, nil
}
