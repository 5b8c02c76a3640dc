package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name in the env tags.
const EnvPrefix = "SSO_"

// dotenvFiles are loaded into the process environment when present.
// Variables already set in the environment win.
var dotenvFiles = []string{".env"}

func loadDotenv() error {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// parseEnv overlays SSO_* variables. Unset variables leave fields as they
// are.
func parseEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
