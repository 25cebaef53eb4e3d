package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds settings read from the process environment. Values here
// override both settings files.
type Env struct {
	ConfigDir    string `env:"WEFT_CONFIG_DIR"`
	LogLevel     string `env:"WEFT_LOG_LEVEL"     envDefault:"info"`
	UserName     string `env:"WEFT_USER_NAME"`
	UserEmail    string `env:"WEFT_USER_EMAIL"`
	PageSize     int    `env:"WEFT_PAGE_SIZE"`
	OtelEndpoint string `env:"WEFT_OTEL_ENDPOINT"`
}

// LoadEnv parses the WEFT_* environment variables.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}
