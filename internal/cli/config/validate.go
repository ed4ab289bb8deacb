package config

import (
	"fmt"
	"math"
	"slices"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.RadiusArcsec <= 0 || math.IsNaN(c.RadiusArcsec) || math.IsInf(c.RadiusArcsec, 0) {
		return fmt.Errorf("radius_arcsec must be a positive number, got %v", c.RadiusArcsec)
	}
	if c.NSamples < 1 {
		return fmt.Errorf("n_samples must be at least 1, got %d", c.NSamples)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if !slices.Contains([]string{"text", "json"}, c.LogFormat) {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if !slices.Contains([]string{"table", "markdown", "json"}, c.OutputFormat) {
		return fmt.Errorf("output must be table, markdown or json, got %q", c.OutputFormat)
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port %d is out of range", c.Serve.Port)
	}
	return nil
}

// ValidateFitService checks that a fit service is configured. Only commands
// that fit need it.
func (c *Config) ValidateFitService() error {
	if c.FitService.URL == "" {
		return fmt.Errorf("fit_service.url is required\nHint: set it in galsynth.yaml, via GALSYNTH_FIT_SERVICE__URL or with --fit-url")
	}
	return nil
}
