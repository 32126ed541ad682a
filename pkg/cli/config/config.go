package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	httpctrl "github.com/secmon-lab/recall/pkg/controller/http"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// AppConfig represents the optional TOML application configuration
type AppConfig struct {
	Search SearchConfig `toml:"search"`
	Limits LimitsConfig `toml:"limits"`

	path string
}

// SearchConfig tunes the query path
type SearchConfig struct {
	DefaultTopK    int `toml:"default_top_k"`
	MaxConcurrency int `toml:"max_concurrency"`
}

// LimitsConfig bounds a single HTTP request
type LimitsConfig struct {
	MaxQueries   int   `toml:"max_queries"`
	MaxTopK      int   `toml:"max_top_k"`
	MaxDocuments int   `toml:"max_documents"`
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

// DefaultAppConfig returns the configuration used when no file is given
func DefaultAppConfig() *AppConfig {
	limits := httpctrl.DefaultRequestLimits()
	return &AppConfig{
		Search: SearchConfig{
			DefaultTopK:    model.DefaultTopK,
			MaxConcurrency: 8,
		},
		Limits: LimitsConfig{
			MaxQueries:   limits.MaxQueries,
			MaxTopK:      limits.MaxTopK,
			MaxDocuments: limits.MaxDocuments,
			MaxBodyBytes: limits.MaxBodyBytes,
		},
	}
}

func (a *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to TOML configuration file",
			Category:    "Config",
			Sources:     cli.EnvVars("RECALL_CONFIG"),
			Destination: &a.path,
		},
	}
}

// Path returns the configured file path
func (a *AppConfig) Path() string {
	return a.path
}

func (a *AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("path", a.path),
		slog.Int("default_top_k", a.Search.DefaultTopK),
		slog.Int("max_concurrency", a.Search.MaxConcurrency),
		slog.Int("max_queries", a.Limits.MaxQueries),
		slog.Int("max_top_k", a.Limits.MaxTopK),
		slog.Int("max_documents", a.Limits.MaxDocuments),
		slog.Int64("max_body_bytes", a.Limits.MaxBodyBytes),
	}
}

// Configure loads the file named by --config over the defaults. Without
// a path the defaults are returned.
func (a *AppConfig) Configure() (*AppConfig, error) {
	if a.path == "" {
		return DefaultAppConfig(), nil
	}
	cfg, err := LoadAppConfiguration(a.path)
	if err != nil {
		return nil, err
	}
	cfg.path = a.path
	return cfg, nil
}

// Validate checks if the AppConfig is valid
func (a *AppConfig) Validate() error {
	positive := []struct {
		field string
		value int64
	}{
		{"search.default_top_k", int64(a.Search.DefaultTopK)},
		{"limits.max_queries", int64(a.Limits.MaxQueries)},
		{"limits.max_top_k", int64(a.Limits.MaxTopK)},
		{"limits.max_documents", int64(a.Limits.MaxDocuments)},
		{"limits.max_body_bytes", a.Limits.MaxBodyBytes},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return goerr.Wrap(ErrInvalidConfig, "value must be positive",
				goerr.V(FieldKey, p.field), goerr.V(ValueKey, p.value))
		}
	}

	if a.Search.DefaultTopK > a.Limits.MaxTopK {
		return goerr.Wrap(ErrInvalidConfig, "search.default_top_k exceeds limits.max_top_k",
			goerr.V(FieldKey, "search.default_top_k"), goerr.V(ValueKey, a.Search.DefaultTopK))
	}

	if a.Search.MaxConcurrency < 0 {
		return goerr.Wrap(ErrInvalidConfig, "value must not be negative",
			goerr.V(FieldKey, "search.max_concurrency"), goerr.V(ValueKey, a.Search.MaxConcurrency))
	}

	return nil
}

// UseCaseOptions maps the search section to use case options
func (a *AppConfig) UseCaseOptions() []usecase.Option {
	return []usecase.Option{
		usecase.WithDefaultTopK(a.Search.DefaultTopK),
		usecase.WithMaxConcurrency(a.Search.MaxConcurrency),
	}
}

// RequestLimits maps the limits section to the HTTP server limits
func (a *AppConfig) RequestLimits() httpctrl.RequestLimits {
	return httpctrl.RequestLimits{
		MaxQueries:   a.Limits.MaxQueries,
		MaxTopK:      a.Limits.MaxTopK,
		MaxDocuments: a.Limits.MaxDocuments,
		MaxBodyBytes: a.Limits.MaxBodyBytes,
	}
}

// LoadAppConfiguration loads the application configuration from a TOML
// file. Keys absent from the file keep their default values.
func LoadAppConfiguration(path string) (*AppConfig, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "failed to read config file", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	config := DefaultAppConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML config", goerr.V(ConfigPathKey, path))
	}

	if err := config.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return config, nil
}
