// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config resolves workbench settings from, in ascending priority,
// built-in defaults, a config file, environment variables, and command
// flags — the layering viper is built for.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SecretBackend selects where key and token material is written.
type SecretBackend string

const (
	SecretBackendOS   SecretBackend = "os"
	SecretBackendFile SecretBackend = "file"
)

// Config is the fully resolved set of workbench settings.
type Config struct {
	// DataDir holds the metadata store file and, for the file secret
	// backend, the keychain/ directory. Defaults to the OS-standard
	// per-user application data directory.
	DataDir string

	// Service names the keyring service/namespace used by the os secret
	// backend to separate workbench secrets from other applications.
	Service string

	// SecretBackend is "os" (99designs/keyring against the platform
	// credential store) or "file" (encrypted-at-rest flat files, gated
	// outside of tests unless DockerMarker is set).
	SecretBackend SecretBackend

	// SecretPassphrase encrypts the file secret backend at rest.
	SecretPassphrase string

	// KeychainDir overrides the file secret backend's storage directory;
	// defaults to DataDir/keychain.
	KeychainDir string

	// DockerMarker permits the file backend outside of tests when set,
	// mirroring how CI/container environments opt out of OS keyring access.
	DockerMarker bool

	// UIAssetsDir is read from UI_ASSETS_DIR (or ui_assets_dir in the config
	// file). The HTTP server does not serve UI assets and does not read it.
	UIAssetsDir string

	// HTTPAddr is the loopback address the REST API binds to.
	HTTPAddr string

	LogLevel  string
	LogFormat string

	NoPersist bool
	NoColor   bool
	Quiet     bool
	Verbose   bool
	JSON      bool
}

// New resolves configuration from defaults, an optional config file,
// environment variables (KEYCHAIN_* per env.md), and already-parsed CLI
// flags, in that ascending priority.
func New(flags *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("service", "jwt-tester")
	v.SetDefault("secret_backend", string(SecretBackendOS))
	v.SetDefault("http_addr", "127.0.0.1:8643")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("workbench")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultDataDir())
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("KEYCHAIN")
	v.AutomaticEnv()
	_ = v.BindEnv("secret_backend", "KEYCHAIN_BACKEND")
	_ = v.BindEnv("secret_passphrase", "KEYCHAIN_PASSPHRASE")
	_ = v.BindEnv("keychain_dir", "KEYCHAIN_DIR")
	_ = v.BindEnv("ui_assets_dir", "UI_ASSETS_DIR")

	if flags != nil {
		_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
		_ = v.BindPFlag("json", flags.Lookup("json"))
		_ = v.BindPFlag("no_color", flags.Lookup("no-color"))
		_ = v.BindPFlag("quiet", flags.Lookup("quiet"))
		_ = v.BindPFlag("verbose", flags.Lookup("verbose"))
		_ = v.BindPFlag("no_persist", flags.Lookup("no-persist"))
	}

	cfg := &Config{
		DataDir:          v.GetString("data_dir"),
		Service:          v.GetString("service"),
		SecretBackend:    SecretBackend(v.GetString("secret_backend")),
		SecretPassphrase: v.GetString("secret_passphrase"),
		KeychainDir:      v.GetString("keychain_dir"),
		DockerMarker:     os.Getenv("JWT_TESTER_DOCKER") == "1",
		UIAssetsDir:      v.GetString("ui_assets_dir"),
		HTTPAddr:         v.GetString("http_addr"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		NoPersist:        v.GetBool("no_persist"),
		NoColor:          v.GetBool("no_color"),
		Quiet:            v.GetBool("quiet"),
		Verbose:          v.GetBool("verbose"),
		JSON:             v.GetBool("json"),
	}
	if cfg.KeychainDir == "" {
		cfg.KeychainDir = filepath.Join(cfg.DataDir, "keychain")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks resolved configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.SecretBackend {
	case SecretBackendOS, SecretBackendFile:
	default:
		return fmt.Errorf("invalid secret backend: %s (must be os or file)", c.SecretBackend)
	}
	if c.SecretBackend == SecretBackendFile {
		if c.SecretPassphrase == "" && !isTestBinary() {
			return fmt.Errorf("KEYCHAIN_PASSPHRASE is required when using the file secret backend")
		}
		if !isTestBinary() && !c.DockerMarker {
			return fmt.Errorf("file secret backend is restricted to test/container environments; set JWT_TESTER_DOCKER=1 to override")
		}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// MetadataStorePath returns the path of the bbolt-backed metadata file
// inside DataDir.
func (c *Config) MetadataStorePath() string {
	return filepath.Join(c.DataDir, "vault.db")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "jwtworkbench")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".jwtworkbench")
}

func isTestBinary() bool {
	return strings.HasSuffix(os.Args[0], ".test")
}
