package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/galsynth/internal/catalog"
	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/httpclient"
	"github.com/leapstack-labs/galsynth/internal/resolve"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// LegacyDataDirEnv names the data directory variable of existing installs.
const LegacyDataDirEnv = "GALSPECSYNTH_DATA_DIR"

// configFileNames are searched in order in each candidate directory.
var configFileNames = []string{"galsynth.yaml", "galsynth.yml"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flags whose names differ from their config keys.
var flagKeys = map[string]string{
	"state":         "state_path",
	"radius":        "radius_arcsec",
	"samples":       "n_samples",
	"fit-url":       "fit_service.url",
	"skyportal-url": "skyportal.url",
	"port":          "serve.port",
	"watch":         "serve.watch",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > ./galsynth.yaml > $HOME/.config/galsynth/galsynth.yaml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "galsynth"))
	}
	for _, dir := range dirs {
		for _, name := range configFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// defaultDataDir returns $HOME/Data/galsynth, or a relative fallback when
// the home directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.FromSlash(DefaultDataDirName)
	}
	return filepath.Join(home, filepath.FromSlash(DefaultDataDirName))
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	endpoints := catalog.DefaultEndpoints()
	hc := httpclient.DefaultConfig()

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"radius_arcsec":       galaxy.DefaultRadiusArcsec,
		"n_samples":           DefaultNSamples,
		"seed":                0,
		"concurrency":         DefaultConcurrency,
		"verbose":             false,
		"log_format":          DefaultLogFormat,
		"output":              DefaultOutput,
		"skyportal.url":       resolve.DefaultSkyPortalURL,
		"tns_url":             resolve.DefaultTNSSearchURL,
		"fit_service.timeout": DefaultFitTimeout.String(),
		"http.timeout":        hc.Timeout.String(),
		"http.max_retries":    hc.MaxRetries,
		"http.backoff_base":   hc.BackoffBase.String(),
		"http.user_agent":     hc.UserAgent,
		"catalogs.sdss":       endpoints.SDSS,
		"catalogs.ps1":        endpoints.PS1,
		"catalogs.mast":       endpoints.MAST,
		"catalogs.irsa":       endpoints.IRSA,
		"catalogs.gaia":       endpoints.Gaia,
		"serve.port":          DefaultServePort,
		"serve.watch":         true,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (GALSYNTH_ prefix)
	// The legacy data directory variable sits below every GALSYNTH_ key.
	if err := k.Load(env.Provider(LegacyDataDirEnv, ".", func(s string) string {
		if s == LegacyDataDirEnv {
			return "data_dir"
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	// Transform: GALSYNTH_DATA_DIR -> data_dir, GALSYNTH_FIT_SERVICE__URL -> fit_service.url
	if err := k.Load(env.Provider("GALSYNTH_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "GALSYNTH_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	// Unprefixed SkyPortal variables are honoured for compatibility.
	if err := k.Load(env.Provider("SKYPORTAL_", ".", func(s string) string {
		switch s {
		case "SKYPORTAL_TOKEN":
			return "skyportal.token"
		case "SKYPORTAL_URL":
			return "skyportal.url"
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Derive paths that depend on data_dir
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
		cfg.DataDirDefaulted = true
	}
	cfg.DataDir = expandEnvVars(cfg.DataDir)
	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(cfg.DataDir, filepath.FromSlash(DefaultStateFile))
	}
	if cfg.DustMapDir == "" {
		cfg.DustMapDir = filepath.Join(cfg.DataDir, filepath.FromSlash(DefaultDustMapSubdir))
	}
	if cfg.FiltersDir == "" {
		cfg.FiltersDir = filepath.Join(cfg.DataDir, DefaultFiltersSubdir)
	}
	cfg.SkyPortal.Token = expandEnvVars(cfg.SkyPortal.Token)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
func GetCurrentConfig() *Config {
	return currentConfig
}

// NewLogger builds the CLI logger: a text handler unless format is "json",
// at debug level when verbose.
func NewLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}
