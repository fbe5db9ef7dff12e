// Package config reads the optional s5nav configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultListingSize      = 256
	defaultMetadataSize     = 32
	defaultProgressInterval = 200 * time.Millisecond
)

// Config represents the optional configuration file. Unset values are nil so
// that callers can tell them apart from explicit zero values.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`
	Transfer TransferConfig `toml:"transfer"`
}

// StorageConfig holds the object store connection settings.
type StorageConfig struct {
	EndpointURL *string `toml:"endpoint_url"`
	Region      *string `toml:"region"`
	Profile     *string `toml:"profile"`
	RetryCount  *int    `toml:"retry_count"`
	NoVerifySSL *bool   `toml:"no_verify_ssl"`
	// PartSize is in MiB.
	PartSize    *int64 `toml:"part_size"`
	Concurrency *int   `toml:"concurrency"`
}

// CacheConfig holds the capacities of the session caches.
type CacheConfig struct {
	ListingSize  *int `toml:"listing_size"`
	MetadataSize *int `toml:"metadata_size"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level *string `toml:"level"`
	JSON  *bool   `toml:"json"`
}

// TransferConfig holds the engine settings.
type TransferConfig struct {
	ProgressInterval *Duration `toml:"progress_interval"`
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("duration must be positive: %q", text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "s5nav", "config.toml")
}

// Load reads the config file from the XDG path. It returns a zero Config if
// the file does not exist.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. It returns a zero Config if the file
// does not exist. Unknown keys are reported as errors.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config %v: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %v: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// ListingSize returns the capacity of the listing cache.
func (c Config) ListingSize() int {
	if c.Cache.ListingSize != nil && *c.Cache.ListingSize > 0 {
		return *c.Cache.ListingSize
	}
	return defaultListingSize
}

// MetadataSize returns the capacity of the metadata cache.
func (c Config) MetadataSize() int {
	if c.Cache.MetadataSize != nil && *c.Cache.MetadataSize > 0 {
		return *c.Cache.MetadataSize
	}
	return defaultMetadataSize
}

// ProgressInterval returns the redraw period of running jobs.
func (c Config) ProgressInterval() time.Duration {
	if c.Transfer.ProgressInterval != nil {
		return c.Transfer.ProgressInterval.Duration
	}
	return defaultProgressInterval
}

// Overrides are values given on the command line. Only non-nil fields
// replace what the file says.
type Overrides struct {
	EndpointURL *string
	Region      *string
	Profile     *string
	RetryCount  *int
	NoVerifySSL *bool
	LogLevel    *string
	JSON        *bool
}

// Merge returns a copy of c with the explicitly given overrides applied.
func (c Config) Merge(o Overrides) Config {
	merged := c
	if o.EndpointURL != nil {
		merged.Storage.EndpointURL = o.EndpointURL
	}
	if o.Region != nil {
		merged.Storage.Region = o.Region
	}
	if o.Profile != nil {
		merged.Storage.Profile = o.Profile
	}
	if o.RetryCount != nil {
		merged.Storage.RetryCount = o.RetryCount
	}
	if o.NoVerifySSL != nil {
		merged.Storage.NoVerifySSL = o.NoVerifySSL
	}
	if o.LogLevel != nil {
		merged.Log.Level = o.LogLevel
	}
	if o.JSON != nil {
		merged.Log.JSON = o.JSON
	}
	return merged
}

// StringOr returns *p, or def if p is nil.
func StringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// IntOr returns *p, or def if p is nil.
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// BoolOr returns *p, or def if p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
