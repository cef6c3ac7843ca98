package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	StorageConfig
	ProviderConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Storage
	Providers
}

// New reads the configuration from the environment.
func New() (Config, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return FromSettings(s), nil
}

// FromSettings builds a Config from already populated Settings, mostly for tests.
func FromSettings(s Settings) Config {
	return mainConfig{
		EnvVars:   EnvVars{s: s},
		Cors:      Cors{s: s},
		OAuth:     OAuth{s: s},
		Security:  Security{s: s},
		Storage:   Storage{s: s},
		Providers: Providers{s: s},
	}
}
