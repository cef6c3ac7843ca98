package config

import "time"

type SecurityConfig interface {
	GetVerificationMaxAttempts() int
	GetVerificationAttemptWindow() time.Duration
	GetAppID() string
	GetAppPassword() string
	GetIDTokenIssuer() string
	GetIDTokenJWKSURL() string
	GetBotAppID() string
	GetBotTokenIssuer() string
	GetBotTokenJWKSURL() string
}

type Security struct {
	s Settings
}

var _ SecurityConfig = Security{}

// GetVerificationMaxAttempts returns the failed attempts allowed per window. 0 disables the limit.
func (s Security) GetVerificationMaxAttempts() int {
	if s.s.VerificationMaxAttempts < 0 {
		return 0
	}
	return s.s.VerificationMaxAttempts
}

func (s Security) GetVerificationAttemptWindow() time.Duration {
	return s.s.VerificationAttemptWindow
}

func (s Security) GetAppID() string {
	return s.s.AppID
}

// GetAppPassword returns the tab app's client secret used for on-behalf-of exchanges.
func (s Security) GetAppPassword() string {
	return s.s.AppPassword
}

// GetIDTokenIssuer returns the expected id_token issuer. Empty skips the issuer check,
// which is what the multi-tenant "common" endpoint needs.
func (s Security) GetIDTokenIssuer() string {
	return s.s.IDTokenIssuer
}

func (s Security) GetIDTokenJWKSURL() string {
	return s.s.IDTokenJWKSURL
}

// GetBotAppID returns the bot's app id, the audience of connector tokens.
// Empty disables connector token checks.
func (s Security) GetBotAppID() string {
	return s.s.BotAppID
}

func (s Security) GetBotTokenIssuer() string {
	return s.s.BotIssuer
}

func (s Security) GetBotTokenJWKSURL() string {
	return s.s.BotJWKSURL
}
