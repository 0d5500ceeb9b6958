/*
 * Copyright (c) 2026, The Covault Authors.
 *
 * The Covault Authors license this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variables that override file
// configuration, e.g. COVAULT_STORAGE_DRIVER.
const EnvPrefix = "COVAULT_"

// Config holds all configuration for the vault engine.
type Config struct {
	Storage    StorageConfig    `koanf:"storage"`
	Encryption EncryptionConfig `koanf:"encryption"`
	Retry      RetryConfig      `koanf:"retry"`
	Retention  RetentionConfig  `koanf:"retention"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Logging    LoggingConfig    `koanf:"logging"`
	Identity   IdentityConfig   `koanf:"identity"`
}

// StorageConfig selects and tunes the durable store backend.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `koanf:"driver"`

	// Path is the SQLite database file path.
	Path string `koanf:"path"`

	// DSN is the Postgres connection string.
	DSN string `koanf:"dsn"`

	// BusyTimeout bounds how long SQLite waits on a locked database.
	BusyTimeout time.Duration `koanf:"busy_timeout"`

	// TxTimeout is the default deadline applied to a storage transaction
	// when the caller's context carries none.
	TxTimeout time.Duration `koanf:"tx_timeout"`
}

// EncryptionConfig configures the crypto engine. The first key is the
// primary key used for new writes; the rest remain available so that
// historical versions stay decryptable after rotation.
type EncryptionConfig struct {
	Provider string      `koanf:"provider"`
	Keys     []KeyConfig `koanf:"keys"`
}

// KeyConfig references one master key file by version label.
type KeyConfig struct {
	Version string `koanf:"version"`
	File    string `koanf:"file"`
}

// RetryConfig bounds the retry loop for transient infrastructure errors.
type RetryConfig struct {
	Attempts       int           `koanf:"attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
}

// RetentionConfig controls hard-purge of soft-deleted secrets. A zero
// PurgeDeletedAfter disables purging entirely; nothing is ever purged
// implicitly.
type RetentionConfig struct {
	PurgeDeletedAfter time.Duration `koanf:"purge_deleted_after"`
}

// MetricsConfig holds Prometheus metrics server configuration.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// IdentityConfig configures the boundary adapter that turns tokens from
// the authentication collaborator into principals.
type IdentityConfig struct {
	JWTSecretFile string `koanf:"jwt_secret_file"`
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:      "sqlite",
			Path:        "covault.db",
			BusyTimeout: 5 * time.Second,
			TxTimeout:   10 * time.Second,
		},
		Encryption: EncryptionConfig{
			Provider: "aesgcm",
		},
		Retry: RetryConfig{
			Attempts:       3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9095,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from a TOML or YAML file (chosen by
// extension) and applies COVAULT_ environment overrides on top.
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	parser := koanf.Parser(toml.Parser())
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		parser = kyaml.Parser()
	}

	if err := k.Load(file.Provider(configPath), parser); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)

		// Double underscore survives as a literal underscore; single
		// underscore separates nesting levels.
		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		s = strings.ReplaceAll(s, "%UNDERSCORE%", "_")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}

	if c.Encryption.Provider != "aesgcm" {
		return fmt.Errorf("unsupported encryption provider: %s", c.Encryption.Provider)
	}
	if len(c.Encryption.Keys) == 0 {
		return fmt.Errorf("at least one encryption key is required")
	}
	seen := make(map[string]bool, len(c.Encryption.Keys))
	for _, key := range c.Encryption.Keys {
		if key.Version == "" || key.File == "" {
			return fmt.Errorf("encryption keys require both version and file")
		}
		if seen[key.Version] {
			return fmt.Errorf("duplicate encryption key version: %s", key.Version)
		}
		seen[key.Version] = true
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if c.Retry.InitialBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("retry backoff bounds are inconsistent")
	}

	if c.Retention.PurgeDeletedAfter < 0 {
		return fmt.Errorf("retention.purge_deleted_after cannot be negative")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be a valid port number")
	}

	return nil
}
