// Package config loads the sqrtflow configuration from defaults, an
// optional config.yml, an optional .env file and SQRTFLOW_* environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lguimbarda/parflow/flow/compute"
	"github.com/lguimbarda/parflow/internal/logging"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "SQRTFLOW"

// Config is the full application configuration.
type Config struct {
	Compute compute.Config `mapstructure:"compute"`
	Logging logging.Config `mapstructure:"logging"`
	Quiet   QuietConfig    `mapstructure:"quiet"`
	Store   StoreConfig    `mapstructure:"store"`
}

// QuietConfig lowers the verbosity of one logging namespace.
type QuietConfig struct {
	Namespace string `mapstructure:"namespace"`
	Level     string `mapstructure:"level" validate:"required_with=Namespace"`
}

// StoreConfig enables the SQLite result store when DSN is set.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Enabled reports whether results should be persisted.
func (s StoreConfig) Enabled() bool {
	return s.DSN != ""
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate validates the whole configuration.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c.Quiet); err != nil {
		return fmt.Errorf("quiet: %w", err)
	}
	if c.Quiet.Namespace != "" {
		if _, err := logging.ParseLevel(c.Quiet.Level); err != nil {
			return fmt.Errorf("quiet.level: %w", err)
		}
	}
	if err := c.Compute.Validate(); err != nil {
		return fmt.Errorf("compute: %w", err)
	}
	return c.Logging.Validate()
}

// LoaderConfig holds optional file overrides.
type LoaderConfig struct {
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("compute.app_name", "startingSpark")
	v.SetDefault("compute.master", compute.MasterLocalAll)
	v.SetDefault("compute.buffer_size", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logging.FormatConsole)
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.timestamp", true)
	v.SetDefault("quiet.namespace", compute.Namespace)
	v.SetDefault("quiet.level", "warn")
	v.SetDefault("store.dsn", "")
}

// Load reads the configuration. Missing default files are not an error;
// an explicitly named file that cannot be read is.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	envFile, explicitEnv := lc.EnvFile, lc.EnvFile != ""
	if !explicitEnv {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && (explicitEnv || !errors.Is(err, os.ErrNotExist)) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./cmd/sqrtflow")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if lc.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Logging.ApplyDefaults()
	cfg.Compute.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
