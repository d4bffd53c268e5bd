// Package config loads passvault settings from defaults, an optional YAML
// file, a .env file and PASSVAULT_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/illarion/passvault/internal/breach"
	"github.com/illarion/passvault/internal/cloud"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/otp"
	"github.com/illarion/passvault/internal/security"
)

const (
	EnvPrefix        = "PASSVAULT"
	DefaultAppName   = "passvault"
	DefaultVaultFile = "database.passvault"
	defaultDataDir   = ".passvault"
	defaultEnvFile   = ".env"
)

type Config struct {
	DataDir       string        `mapstructure:"data_dir"`
	AppName       string        `mapstructure:"app_name"`
	VaultFile     string        `mapstructure:"vault_file"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	SyncTimeout   time.Duration `mapstructure:"sync_timeout"`
	KnownHosts    string        `mapstructure:"known_hosts"`
	S3Region      string        `mapstructure:"s3_region"`
	S3Endpoint    string        `mapstructure:"s3_endpoint"`
	BreachAPI     string        `mapstructure:"breach_api"`
	OTPCapacity   int           `mapstructure:"otp_capacity"`
	KDFIterations int           `mapstructure:"kdf_iterations"`
}

// Options point Load at files other than the defaults.
type Options struct {
	// ConfigFile is a YAML file. Empty means $PASSVAULT_CONFIG, then
	// <data_dir>/config.yaml if it exists.
	ConfigFile string
	// EnvFile is loaded into the environment when present. Empty means .env
	// in the working directory.
	EnvFile string
}

// Load builds the configuration.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	v.SetDefault("data_dir", filepath.Join(home, defaultDataDir))
	v.SetDefault("app_name", DefaultAppName)
	v.SetDefault("vault_file", DefaultVaultFile)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	v.SetDefault("sync_timeout", cloud.DefaultTimeout)
	v.SetDefault("known_hosts", filepath.Join(home, ".ssh", "known_hosts"))
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("breach_api", breach.DefaultBaseURL)
	v.SetDefault("otp_capacity", otp.DefaultCapacity)
	v.SetDefault("kdf_iterations", crypto.DefaultIters)

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configFile == "" {
		candidate := filepath.Join(v.GetString("data_dir"), "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir cannot be empty"))
	}
	if err := security.ValidateName(c.AppName); err != nil {
		errs = append(errs, fmt.Errorf("app_name: %w", err))
	}
	if err := security.ValidateName(c.VaultFile); err != nil {
		errs = append(errs, fmt.Errorf("vault_file: %w", err))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.SyncTimeout <= 0 {
		errs = append(errs, errors.New("sync_timeout must be positive"))
	}
	if c.OTPCapacity < 1 {
		errs = append(errs, errors.New("otp_capacity must be at least 1"))
	}
	if c.KDFIterations < 1 {
		errs = append(errs, errors.New("kdf_iterations must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// VaultPath is the local vault file.
func (c *Config) VaultPath() string {
	return filepath.Join(c.DataDir, c.VaultFile)
}
