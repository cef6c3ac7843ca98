package config

import (
	"fmt"
	"strings"
	"time"
)

// Settings is the raw environment. Every getter in this package reads from it.
type Settings struct {
	Port     string `env:"PORT"      envDefault:"3333"`
	AppName  string `env:"APP_NAME"  envDefault:"Identity Bridge"`
	Env      string `env:"ENV"       envDefault:"DEV"`
	BaseURL  string `env:"BASE_URL"  envDefault:"http://localhost:3333"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	Storage       string        `env:"STORAGE"        envDefault:"memory"`
	RedisAddr     string        `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"       envDefault:"0"`
	SQLitePath    string        `env:"SQLITE_PATH"    envDefault:"./data/sessions.db"`
	SessionTTL    time.Duration `env:"SESSION_TTL"    envDefault:"720h"`

	StateSigningSecret string        `env:"STATE_SIGNING_SECRET"`
	StateMaxAge        time.Duration `env:"STATE_MAX_AGE" envDefault:"15m"`

	VerificationCodeLength    int           `env:"VERIFICATION_CODE_LENGTH"    envDefault:"6"`
	VerificationMaxAttempts   int           `env:"VERIFICATION_MAX_ATTEMPTS"   envDefault:"5"`
	VerificationAttemptWindow time.Duration `env:"VERIFICATION_ATTEMPT_WINDOW" envDefault:"15m"`
	ProviderTimeout           time.Duration `env:"PROVIDER_TIMEOUT"            envDefault:"10s"`

	LinkedInClientID     string `env:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret string `env:"LINKEDIN_CLIENT_SECRET"`
	AzureADAppID         string `env:"AZUREAD_APP_ID"`
	AzureADAppPassword   string `env:"AZUREAD_APP_PASSWORD"`
	AzureADTenant        string `env:"AZUREAD_TENANT"     envDefault:"common"`
	GoogleClientID       string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `env:"GOOGLE_CLIENT_SECRET"`

	// Teams tab id_token validation for the profiles API
	AppID          string `env:"APP_ID"`
	AppPassword    string `env:"APP_PASSWORD"` // enables the on-behalf-of Graph routes
	IDTokenIssuer  string `env:"ID_TOKEN_ISSUER"`
	IDTokenJWKSURL string `env:"ID_TOKEN_JWKS_URL" envDefault:"https://login.microsoftonline.com/common/discovery/v2.0/keys"`

	// Bot connector tokens on /api/messages. Empty BOT_APP_ID accepts unauthenticated
	// activities, which is what the local emulator sends.
	BotAppID   string `env:"BOT_APP_ID"`
	BotIssuer  string `env:"BOT_TOKEN_ISSUER"   envDefault:"https://api.botframework.com"`
	BotJWKSURL string `env:"BOT_TOKEN_JWKS_URL" envDefault:"https://login.botframework.com/v1/.well-known/keys"`
}

type EnvVars struct {
	s Settings
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.s.Port
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.s.AppName
}

// GetBaseURL returns the public base URL (e.g., "https://bridge.example.com").
// Provider redirect URIs are built from it.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(e.s.BaseURL, "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.s.LogLevel
}

func (e EnvVars) GetEnv() string {
	if e.s.Env == "" {
		return "DEV"
	}
	return e.s.Env
}
