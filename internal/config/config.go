// Package config loads chartagg settings from defaults, an optional TOML
// file and CHARTAGG_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FranksOps/chartagg/internal/export"
	"github.com/FranksOps/chartagg/internal/fingerprint"
	"github.com/FranksOps/chartagg/internal/media"
	"github.com/FranksOps/chartagg/internal/scraper"
	"github.com/FranksOps/chartagg/internal/summary"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHARTAGG_CHART_URL.
const EnvPrefix = "CHARTAGG"

// FileName is the config file looked up when no explicit path is given.
const FileName = "chartagg.toml"

// Config is the full settings tree, one field per TOML section.
type Config struct {
	Chart    ChartConfig    `mapstructure:"chart"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Media    MediaConfig    `mapstructure:"media"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Server   ServerConfig   `mapstructure:"server"`
	Export   ExportConfig   `mapstructure:"export"`
}

// ChartConfig describes the chart page and how it is fetched. Limit keeps
// the top entries by rank; 0 keeps every entry.
type ChartConfig struct {
	URL          string            `mapstructure:"url"`
	ExpectedSize int               `mapstructure:"expected_size"`
	Limit        int               `mapstructure:"limit"`
	Selectors    scraper.Selectors `mapstructure:"selectors"`
	// RespectRobots checks robots.txt before fetching the chart.
	RespectRobots bool          `mapstructure:"respect_robots"`
	Fingerprint   string        `mapstructure:"fingerprint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgents    []string      `mapstructure:"user_agents"`
	// Proxy is an optional http, https or socks5 proxy url for the chart fetch.
	Proxy string `mapstructure:"proxy"`
}

// ProxyURL parses Proxy, returning nil when it is unset.
func (c ChartConfig) ProxyURL() (*url.URL, error) {
	if strings.TrimSpace(c.Proxy) == "" {
		return nil, nil
	}
	u, err := url.Parse(strings.TrimSpace(c.Proxy))
	if err != nil {
		return nil, fmt.Errorf("chart.proxy: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("chart.proxy: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("chart.proxy: missing host in %q", c.Proxy)
	}
	return u, nil
}

// Validate checks the chart section. Limit must lie in 0..100 and may not
// exceed a positive ExpectedSize.
func (c ChartConfig) Validate() error {
	if err := validateHTTPURL("chart.url", c.URL); err != nil {
		return err
	}
	if c.ExpectedSize < 0 {
		return fmt.Errorf("chart.expected_size cannot be negative")
	}
	if c.Limit < 0 || c.Limit > 100 {
		return fmt.Errorf("chart.limit must be between 0 and 100, got %d", c.Limit)
	}
	if c.ExpectedSize > 0 && c.Limit > c.ExpectedSize {
		return fmt.Errorf("chart.limit %d exceeds chart.expected_size %d", c.Limit, c.ExpectedSize)
	}
	if err := c.Selectors.Validate(); err != nil {
		return fmt.Errorf("chart.selectors: %w", err)
	}
	if _, err := fingerprint.ParseProfile(c.Fingerprint); err != nil {
		return fmt.Errorf("chart.fingerprint: %w", err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("chart.timeout must be greater than zero")
	}
	if _, err := c.ProxyURL(); err != nil {
		return err
	}
	return nil
}

// SummaryConfig configures the Wikipedia summary enricher.
type SummaryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	RPS     float64       `mapstructure:"rps"`
}

// Validate skips every check when the enricher is disabled.
func (s SummaryConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if err := validateHTTPURL("summary.base_url", s.BaseURL); err != nil {
		return err
	}
	if s.RPS < 0 {
		return fmt.Errorf("summary.rps cannot be negative")
	}
	return nil
}

// MediaConfig configures the YouTube video search. Without an API key
// the enricher is off and every entry is marked skipped.
type MediaConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	QuerySuffix string        `mapstructure:"query_suffix"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RPS         float64       `mapstructure:"rps"`
}

// Enabled reports whether an API key is configured.
func (m MediaConfig) Enabled() bool {
	return strings.TrimSpace(m.APIKey) != ""
}

// Validate checks the search endpoint and rate. A missing key is not an
// error.
func (m MediaConfig) Validate() error {
	if err := validateHTTPURL("media.base_url", m.BaseURL); err != nil {
		return err
	}
	if m.RPS < 0 {
		return fmt.Errorf("media.rps cannot be negative")
	}
	return nil
}

// PipelineConfig bounds enrichment concurrency and time. A zero RunTimeout
// disables the overall deadline.
type PipelineConfig struct {
	Workers       int           `mapstructure:"workers"`
	EnrichTimeout time.Duration `mapstructure:"enrich_timeout"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
}

// Validate checks the pipeline section.
func (p PipelineConfig) Validate() error {
	if p.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be greater than zero")
	}
	if p.EnrichTimeout <= 0 {
		return fmt.Errorf("pipeline.enrich_timeout must be greater than zero")
	}
	if p.RunTimeout < 0 {
		return fmt.Errorf("pipeline.run_timeout cannot be negative")
	}
	return nil
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// Validate accepts the four slog levels and the text or json format.
func (l LogConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json; got %q", l.Format)
	}
	return nil
}

// MetricsConfig controls the standalone Prometheus listener.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
	Port    int  `mapstructure:"port" toml:"port"`
}

// Validate requires a usable port only when metrics are enabled.
func (m MetricsConfig) Validate() error {
	if m.Enabled && (m.Port <= 0 || m.Port > 65535) {
		return fmt.Errorf("metrics.port must be in 1..65535 when metrics are enabled")
	}
	return nil
}

// ServerConfig configures `chartagg serve`.
type ServerConfig struct {
	Address string `mapstructure:"address" toml:"address"`
	// RefreshOnStart runs the pipeline once before serving.
	RefreshOnStart bool `mapstructure:"refresh_on_start" toml:"refresh_on_start"`
}

// Validate requires a listen address.
func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address is required")
	}
	return nil
}

// ExportConfig sets the default export format and destination for `run`.
type ExportConfig struct {
	Format string `mapstructure:"format" toml:"format"`
	Path   string `mapstructure:"path" toml:"path"`
}

// Validate rejects unknown export formats.
func (e ExportConfig) Validate() error {
	if _, err := export.ParseFormat(e.Format); err != nil {
		return fmt.Errorf("export.format: %w", err)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		c.Chart, c.Summary, c.Media, c.Pipeline, c.Log, c.Metrics, c.Server, c.Export,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chart.url", "https://www.billboard.com/charts/hot-100/")
	v.SetDefault("chart.expected_size", 100)
	v.SetDefault("chart.limit", 10)
	v.SetDefault("chart.selectors.row", scraper.BillboardSelectors.Row)
	v.SetDefault("chart.selectors.rank", scraper.BillboardSelectors.Rank)
	v.SetDefault("chart.selectors.title", scraper.BillboardSelectors.Title)
	v.SetDefault("chart.selectors.artist", scraper.BillboardSelectors.Artist)
	v.SetDefault("chart.respect_robots", false)
	v.SetDefault("chart.fingerprint", string(fingerprint.ProfileGo))
	v.SetDefault("chart.timeout", 30*time.Second)
	v.SetDefault("chart.user_agents", []string{})
	v.SetDefault("chart.proxy", "")

	v.SetDefault("summary.enabled", true)
	v.SetDefault("summary.base_url", summary.DefaultBaseURL)
	v.SetDefault("summary.timeout", 10*time.Second)
	v.SetDefault("summary.rps", 5.0)

	v.SetDefault("media.base_url", media.DefaultBaseURL)
	v.SetDefault("media.api_key", "")
	v.SetDefault("media.query_suffix", media.DefaultQuerySuffix)
	v.SetDefault("media.timeout", 10*time.Second)
	v.SetDefault("media.rps", 5.0)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.enrich_timeout", 15*time.Second)
	v.SetDefault("pipeline.run_timeout", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.refresh_on_start", true)

	v.SetDefault("export.format", string(export.FormatCSV))
	v.SetDefault("export.path", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names are accepted as fallbacks for the key.
	_ = v.BindEnv("media.api_key", EnvPrefix+"_MEDIA_API_KEY", "YOUTUBE_API_KEY", "GOOGLE_API_KEY")
	return v
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("decode defaults: %w", err))
	}
	return cfg
}

// Load reads the configuration. An empty path searches ./chartagg.toml and
// $HOME/.config/chartagg/chartagg.toml and falls back to defaults when
// neither exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "chartagg"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Media.APIKey = strings.TrimSpace(cfg.Media.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultPath is where `config init` writes when no path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(home, ".config", "chartagg", FileName)
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) url, got %q", field, raw)
	}
	return nil
}
