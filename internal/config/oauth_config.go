package config

import "time"

type OAuthConfig interface {
	GetStateSigningSecret() string
	GetStateMaxAge() time.Duration
	GetVerificationCodeLength() int
	GetProviderTimeout() time.Duration
}

type OAuth struct {
	s Settings
}

var _ OAuthConfig = OAuth{}

// GetStateSigningSecret returns the secret for signed state blobs.
// Empty means the plain JSON state format is used.
func (o OAuth) GetStateSigningSecret() string {
	return o.s.StateSigningSecret
}

func (o OAuth) GetStateMaxAge() time.Duration {
	return o.s.StateMaxAge
}

func (o OAuth) GetVerificationCodeLength() int {
	if o.s.VerificationCodeLength < 4 {
		return 6
	}
	return o.s.VerificationCodeLength
}

func (o OAuth) GetProviderTimeout() time.Duration {
	if o.s.ProviderTimeout <= 0 {
		return 10 * time.Second
	}
	return o.s.ProviderTimeout
}
