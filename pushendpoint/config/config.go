// Package config loads the endpoint service configuration: a yaml file
// provides the base values and environment variables override them for
// deployment-specific settings.
package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	StorageFirestore = "firestore"
	StorageRedis     = "redis"
)

// AppConfig is the canonical, validated configuration object used
// throughout the application.
type AppConfig struct {
	RunMode     string `env:"RUN_MODE"`
	APIPort     string `env:"API_PORT"`
	EndpointURL string `env:"ENDPOINT_URL"`

	StorageType      string `env:"STORAGE_TYPE"`
	MessagePartition string `env:"MESSAGE_PARTITION"`
	FirestoreProject string `env:"FIRESTORE_PROJECT"`
	RedisAddr        string `env:"REDIS_ADDR"`

	StatsdAddr      string `env:"STATSD_ADDR"`
	StatsdNamespace string `env:"STATSD_NAMESPACE"`
}

// Load reads the yaml file at path, applies environment overrides, and
// validates the result.
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlCfg YamlConfig
	if err := yaml.Unmarshal(raw, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg, err := NewConfigFromYaml(&yamlCfg)
	if err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the service assumes.
func (c *AppConfig) Validate() error {
	if c.APIPort == "" {
		return fmt.Errorf("api_port is required")
	}
	if c.EndpointURL == "" {
		return fmt.Errorf("endpoint_url is required")
	}
	if _, err := url.Parse(c.EndpointURL); err != nil {
		return fmt.Errorf("endpoint_url is not a valid URL: %w", err)
	}
	if c.MessagePartition == "" {
		return fmt.Errorf("storage.message_partition is required")
	}

	switch c.StorageType {
	case StorageFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("storage.firestore.project_id is required for firestore storage")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("storage.redis.addr is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.StorageType)
	}
	return nil
}
