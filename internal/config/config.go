// Package config loads provision settings from provision.yaml, PROVISION_*
// environment variables and command-line flags, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/provision/internal/store"
	"github.com/roach88/provision/internal/tracing"
)

const (
	fileName  = "provision"
	fileType  = "yaml"
	envPrefix = "PROVISION"
)

// Configuration keys. Nested keys map to PROVISION_STORE_PATH and so on.
const (
	KeyCatalog       = "catalog"
	KeyProjectID     = "project_id"
	KeyStoreDriver   = "store.driver"
	KeyStorePath     = "store.path"
	KeyParallelism   = "apply.parallelism"
	KeyPersistReport = "apply.persist_report"
	KeyTracingOn     = "tracing.enabled"
	KeyTracingExport = "tracing.exporter"
	KeyTracingFile   = "tracing.file_path"
	KeyTracingOTLP   = "tracing.otlp_endpoint"
	KeyTracingRate   = "tracing.sample_rate"
	KeyTracingName   = "tracing.service_name"
	KeyLogLevel      = "log.level"
)

// DefaultStorePath is the SQLite file used when none is configured.
const DefaultStorePath = "provision.db"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the decoded configuration.
type Config struct {
	// Catalog is a catalog file or CUE directory. Empty means builtin.
	Catalog   string         `mapstructure:"catalog"`
	ProjectID string         `mapstructure:"project_id"`
	Store     store.Config   `mapstructure:"store"`
	Apply     ApplyConfig    `mapstructure:"apply"`
	Tracing   tracing.Config `mapstructure:"tracing"`
	Log       LogConfig      `mapstructure:"log"`
}

// ApplyConfig tunes provisioning runs.
type ApplyConfig struct {
	Parallelism   int  `mapstructure:"parallelism"`
	PersistReport bool `mapstructure:"persist_report"`
}

// LogConfig selects the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SlogLevel parses Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Level)
	}
	return l, nil
}

// New returns a viper instance with every key defaulted and environment
// overrides enabled. Callers bind flags onto it before Decode.
func New() *viper.Viper {
	v := viper.New()
	tc := tracing.DefaultConfig()

	v.SetDefault(KeyCatalog, "")
	v.SetDefault(KeyProjectID, store.DefaultProject)
	v.SetDefault(KeyStoreDriver, store.DriverSQLite)
	v.SetDefault(KeyStorePath, DefaultStorePath)
	v.SetDefault(KeyParallelism, 1)
	v.SetDefault(KeyPersistReport, true)
	v.SetDefault(KeyTracingOn, tc.Enabled)
	v.SetDefault(KeyTracingExport, tc.Exporter)
	v.SetDefault(KeyTracingFile, tc.FilePath)
	v.SetDefault(KeyTracingOTLP, tc.OTLPEndpoint)
	v.SetDefault(KeyTracingRate, tc.SampleRate)
	v.SetDefault(KeyTracingName, tc.ServiceName)
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Read loads configuration into v. An explicit file must exist; without
// one, provision.yaml is searched for in dirs and its absence is fine.
func Read(v *viper.Viper, file string, dirs ...string) error {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigName(fileName)
	v.SetConfigType(fileType)
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Store.Project == "" {
		cfg.Store.Project = cfg.ProjectID
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is New, Read and Decode in one step.
func Load(file string, dirs ...string) (Config, error) {
	v := New()
	if err := Read(v, file, dirs...); err != nil {
		return Config{}, err
	}
	return Decode(v)
}

// WithMemoryStore returns a copy of c using the in-memory driver.
func (c Config) WithMemoryStore() Config {
	c.Store.Driver = store.DriverMemory
	c.Store.Path = ""
	return c
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
	var errs []error
	if c.ProjectID == "" {
		errs = append(errs, fmt.Errorf("%w: project_id is empty", ErrInvalidConfig))
	}
	switch strings.ToLower(c.Store.Driver) {
	case store.DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("%w: store.path is empty", ErrInvalidConfig))
		}
	case store.DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("%w: store.driver %q (want sqlite or memory)", ErrInvalidConfig, c.Store.Driver))
	}
	if c.Apply.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("%w: apply.parallelism %d is negative", ErrInvalidConfig, c.Apply.Parallelism))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
