// Package config provides configuration management for the galsynth CLI.
//
// Values are layered from built-in defaults, a galsynth.yaml file,
// GALSYNTH_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"time"

	"github.com/leapstack-labs/galsynth/internal/catalog"
	"github.com/leapstack-labs/galsynth/internal/httpclient"
)

// SkyPortalConfig holds the SkyPortal connection settings.
type SkyPortalConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// FitServiceConfig locates the remote sampler and spectral model.
type FitServiceConfig struct {
	URL string `koanf:"url"`
	// Timeout bounds prediction calls only; fits run until they finish.
	Timeout time.Duration `koanf:"timeout"`
}

// HTTPConfig holds the shared transport settings for remote services.
type HTTPConfig struct {
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  uint64        `koanf:"max_retries"`
	BackoffBase time.Duration `koanf:"backoff_base"`
	UserAgent   string        `koanf:"user_agent"`
}

// ServeConfig holds configuration for the API server.
type ServeConfig struct {
	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
}

// Config holds all CLI configuration options.
type Config struct {
	DataDir      string            `koanf:"data_dir"`
	StatePath    string            `koanf:"state_path"`
	DustMapDir   string            `koanf:"dust_map_dir"`
	FiltersDir   string            `koanf:"filters_dir"`
	RadiusArcsec float64           `koanf:"radius_arcsec"`
	NSamples     int               `koanf:"n_samples"`
	Seed         uint64            `koanf:"seed"`
	Concurrency  int               `koanf:"concurrency"`
	Verbose      bool              `koanf:"verbose"`
	LogFormat    string            `koanf:"log_format"`
	OutputFormat string            `koanf:"output"`
	SkyPortal    SkyPortalConfig   `koanf:"skyportal"`
	TNSURL       string            `koanf:"tns_url"`
	FitService   FitServiceConfig  `koanf:"fit_service"`
	HTTP         HTTPConfig        `koanf:"http"`
	Catalogs     catalog.Endpoints `koanf:"catalogs"`
	Serve        ServeConfig       `koanf:"serve"`

	// DataDirDefaulted is set when data_dir came from the built-in default.
	DataDirDefaulted bool `koanf:"-"`
}

// Default configuration values.
const (
	DefaultDataDirName   = "Data/galsynth"
	DefaultStateFile     = ".galsynth/state.db"
	DefaultDustMapSubdir = "sfdmap/sfddata-master"
	DefaultFiltersSubdir = "filters"
	DefaultNSamples      = 1000
	DefaultConcurrency   = 1
	DefaultLogFormat     = "text"
	DefaultOutput        = "table"
	DefaultServePort     = 8765
	DefaultFitTimeout    = 5 * time.Minute
)

// HTTPClientConfig converts the transport settings for httpclient.
func (c *Config) HTTPClientConfig() httpclient.Config {
	hc := httpclient.DefaultConfig()
	if c.HTTP.Timeout > 0 {
		hc.Timeout = c.HTTP.Timeout
	}
	hc.MaxRetries = c.HTTP.MaxRetries
	if c.HTTP.BackoffBase > 0 {
		hc.BackoffBase = c.HTTP.BackoffBase
	}
	if c.HTTP.UserAgent != "" {
		hc.UserAgent = c.HTTP.UserAgent
	}
	return hc
}
