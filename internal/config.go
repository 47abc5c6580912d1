package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/vocabhive/internal/models"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Cache  CacheConfig       `yaml:"cache"`
	Origin OriginConfig      `yaml:"origin"`
	Loader LoaderConfig      `yaml:"loader"`
	Inbox  InboxConfig       `yaml:"inbox"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for name, v := range map[string]validation.Validatable{
		"app":    &c.App,
		"sqlite": &c.SQLite,
		"cache":  &c.Cache,
		"origin": &c.Origin,
		"loader": &c.Loader,
		"inbox":  &c.Inbox,
	} {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds the word store database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CacheConfig holds the two-tier cache configuration. Path is a separate
// SQLite database from the word store.
type CacheConfig struct {
	Path          string        `yaml:"path"`
	Expiry        time.Duration `yaml:"expiry"`
	MemoryEntries int           `yaml:"memory_entries"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Expiry, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MemoryEntries, validation.Required, validation.Min(1)),
	)
}

// OriginConfig holds the static chunk origin configuration.
type OriginConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	RetryWait  time.Duration `yaml:"retry_wait"`
}

// Validate validates the origin configuration.
func (c *OriginConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.RetryCount, validation.Min(0), validation.Max(10)),
	)
}

// LoaderConfig holds background sweep configuration. SweepLevels are swept
// at startup.
type LoaderConfig struct {
	SweepBatchSize int           `yaml:"sweep_batch_size"`
	SweepDelay     time.Duration `yaml:"sweep_delay"`
	SweepLevels    []string      `yaml:"sweep_levels"`
}

// Validate validates the loader configuration.
func (c *LoaderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SweepBatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.SweepDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.SweepLevels, validation.Each(validation.In(
			string(models.LevelElementary), string(models.LevelMiddle), string(models.LevelHigh),
		))),
	)
}

// Levels returns SweepLevels as models.Level values.
func (c *LoaderConfig) Levels() []models.Level {
	out := make([]models.Level, 0, len(c.SweepLevels))
	for _, l := range c.SweepLevels {
		out = append(out, models.Level(l))
	}
	return out
}

// InboxConfig holds the import inbox configuration.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./vocabhive.db",
		},
		Cache: CacheConfig{
			Path:          "./vocabhive-cache.db",
			Expiry:        time.Hour,
			MemoryEntries: 256,
		},
		Origin: OriginConfig{
			BaseURL:    "http://localhost:3000",
			Timeout:    10 * time.Second,
			RetryCount: 2,
			RetryWait:  500 * time.Millisecond,
		},
		Loader: LoaderConfig{
			SweepBatchSize: 3,
			SweepDelay:     time.Second,
		},
		Inbox: InboxConfig{
			Path: "./inbox",
		},
	}
}
