package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration.
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	Fetch       FetchConfig   `toml:"fetch"`
	Refresh     RefreshConfig `toml:"refresh"`
	Image       ImageConfig   `toml:"image"`
	Sites       []SiteConfig  `toml:"site"`
}

// ServerConfig configures the thin HTTP static-artifact collaborator (spec §6).
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig configures where artifacts and the request cache live on disk.
type StorageConfig struct {
	ArtifactDir string `toml:"artifact_dir"` // root for <site>.json.gz / <site>-images.json.gz
	CacheDir    string `toml:"cache_dir"`    // root for cache/<fingerprint>.<suffix>
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05.000"
}

// FetchConfig controls the Fetcher (C1) shared across every site.
type FetchConfig struct {
	RequestTimeout time.Duration `toml:"request_timeout"` // default 5s, per spec §5
	UserAgent      string        `toml:"user_agent"`
}

// RefreshConfig holds RefreshLoop (C9) defaults, overridable per site.
type RefreshConfig struct {
	CachePeriod time.Duration `toml:"cache_period"` // how stale an artifact may become
	RetryPeriod time.Duration `toml:"retry_period"` // sleep after a failed or gated refresh
	RequestTTL  time.Duration `toml:"request_ttl"`  // DiskCache TTL for per-page fetches
}

// ImageConfig controls the ImageModel (C7).
type ImageConfig struct {
	PreviewServiceURL  string        `toml:"preview_service_url"`
	PreviewTTL         time.Duration `toml:"preview_ttl"` // default 52 weeks, per original_source
	AllowedURLSubstr   []string      `toml:"allowed_url_substrings"`
	SkipPathRegexes    []string      `toml:"skip_path_regexes"`
	PreviewRateLimit   time.Duration `toml:"preview_rate_limit"` // minimum spacing between preview POSTs
}

// SiteConfig names a registered SiteModel (internal/bulk/site.Registry) and
// supplies the endpoint/headers/cache_period capabilities spec §4.4 requires.
// Model-specific crawl logic (continue_crawl, extract_crawl_paths) is not
// configurable from TOML — it lives in Go, keyed by Model.
type SiteConfig struct {
	Name        string            `toml:"name"`     // output filename stem, also registry key
	Model       string            `toml:"model"`    // registry key: "car", "article"
	Endpoint    string            `toml:"endpoint"` // absolute URL prefix
	RootPath    string            `toml:"root_path"`
	Headers     map[string]string `toml:"headers"`
	CachePeriod time.Duration     `toml:"cache_period"` // overrides RefreshConfig.CachePeriod when nonzero
	Schedule    string            `toml:"schedule"`     // optional cron expression; see SPEC_FULL §11
}

// NewDefaultConfig returns a configuration with production-safe defaults.
// Only user-facing settings are expected to be overridden via TOML.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			ArtifactDir: "./data",
			CacheDir:    "./data/cache",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Fetch: FetchConfig{
			RequestTimeout: 5 * time.Second,
			UserAgent:      "bulkfeed/1.0",
		},
		Refresh: RefreshConfig{
			CachePeriod: time.Hour,
			RetryPeriod: 10 * time.Second,
			RequestTTL:  52 * 7 * 24 * time.Hour, // 52 weeks, matches original_source default
		},
		Image: ImageConfig{
			PreviewTTL:       52 * 7 * 24 * time.Hour,
			AllowedURLSubstr: []string{"global", "musicrad", "bff-car"},
			SkipPathRegexes:  []string{},
			PreviewRateLimit: 50 * time.Millisecond,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Environment variables take precedence over file-based configuration.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("BULKFEED_ENV"); env != "" {
		config.Environment = env
	}
	if port := os.Getenv("BULKFEED_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("BULKFEED_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if level := os.Getenv("BULKFEED_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if artifactDir := os.Getenv("BULKFEED_ARTIFACT_DIR"); artifactDir != "" {
		config.Storage.ArtifactDir = artifactDir
	}
	if cacheDir := os.Getenv("BULKFEED_CACHE_DIR"); cacheDir != "" {
		config.Storage.CacheDir = cacheDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Command-line flags have the highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks invariants that must hold before the pipeline starts.
// A failure here is a ConfigError (spec §7): fatal at startup.
func (c *Config) Validate() error {
	if c.Storage.ArtifactDir == "" {
		return fmt.Errorf("storage.artifact_dir must not be empty")
	}
	if c.Storage.CacheDir == "" {
		return fmt.Errorf("storage.cache_dir must not be empty")
	}
	for _, site := range c.Sites {
		if site.Name == "" {
			return fmt.Errorf("site entry missing required 'name'")
		}
		if site.Model == "" {
			return fmt.Errorf("site %q missing required 'model'", site.Name)
		}
		if site.Endpoint == "" {
			return fmt.Errorf("site %q missing required 'endpoint'", site.Name)
		}
		if site.RootPath == "" {
			return fmt.Errorf("site %q missing required 'root_path'", site.Name)
		}
		if site.Schedule != "" {
			if err := ValidateSchedule(site.Schedule); err != nil {
				return fmt.Errorf("site %q: %w", site.Name, err)
			}
		}
	}
	return nil
}

// ValidateSchedule validates a standard 5-field cron expression. A site's
// `schedule` is only validated here; RefreshLoop does not read it and keeps
// refreshing on its age-based sleep (SPEC_FULL §11).
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// EffectiveCachePeriod returns the site's cache period, falling back to the
// process-wide default when the site did not set one.
func (s SiteConfig) EffectiveCachePeriod(def time.Duration) time.Duration {
	if s.CachePeriod > 0 {
		return s.CachePeriod
	}
	return def
}
