// Package config loads the service configuration from defaults, an
// optional YAML file and CLAIMRISK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: CLAIMRISK_CACHE__REDIS_ADDR sets cache.redis_addr.
const EnvPrefix = "CLAIMRISK_"

// listKeys are read from the environment as comma-separated lists.
var listKeys = map[string]bool{
	"analysis.high_risk_providers": true,
}

// Load builds the configuration. Layers, lowest precedence first:
//   - tier defaults (CLAIMRISK_TIER=pro selects the pro defaults)
//   - the YAML file at path, when path is non-empty and the file exists
//   - CLAIMRISK_ environment variables
//
// A .env file in the working directory is loaded into the environment first.
func Load(path string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	defaults := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(os.Getenv(EnvPrefix+"TIER"))) == domain.TierPro {
		defaults = domain.ProConfig()
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg domain.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps CLAIMRISK_EVENT_BUS__NATS_URL to event_bus.nats_url.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}
