package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const sampleHeader = `# chartagg configuration.
# Every key can be overridden with CHARTAGG_<SECTION>_<KEY>, for example
# CHARTAGG_CHART_LIMIT=25. The YouTube key may also come from
# YOUTUBE_API_KEY or GOOGLE_API_KEY.

`

type sampleFile struct {
	Chart    sampleChart    `toml:"chart"`
	Summary  sampleSummary  `toml:"summary"`
	Media    sampleMedia    `toml:"media"`
	Pipeline samplePipeline `toml:"pipeline"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Server   ServerConfig   `toml:"server"`
	Export   ExportConfig   `toml:"export"`
}

type sampleChart struct {
	URL           string   `toml:"url"`
	ExpectedSize  int      `toml:"expected_size"`
	Limit         int      `toml:"limit"`
	RespectRobots bool     `toml:"respect_robots"`
	Fingerprint   string   `toml:"fingerprint"`
	Timeout       string   `toml:"timeout"`
	UserAgents    []string `toml:"user_agents"`
	Proxy         string   `toml:"proxy"`
	Selectors     struct {
		Row    string `toml:"row"`
		Rank   string `toml:"rank"`
		Title  string `toml:"title"`
		Artist string `toml:"artist"`
	} `toml:"selectors"`
}

type sampleSummary struct {
	Enabled bool    `toml:"enabled"`
	BaseURL string  `toml:"base_url"`
	Timeout string  `toml:"timeout"`
	RPS     float64 `toml:"rps"`
}

type sampleMedia struct {
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	QuerySuffix string  `toml:"query_suffix"`
	Timeout     string  `toml:"timeout"`
	RPS         float64 `toml:"rps"`
}

type samplePipeline struct {
	Workers       int    `toml:"workers"`
	EnrichTimeout string `toml:"enrich_timeout"`
	RunTimeout    string `toml:"run_timeout"`
}

// SampleTOML renders cfg as a TOML document that Load reads back to an
// equal Config. Durations are written in time.Duration string form.
func SampleTOML(cfg Config) ([]byte, error) {
	f := sampleFile{
		Summary: sampleSummary{
			Enabled: cfg.Summary.Enabled,
			BaseURL: cfg.Summary.BaseURL,
			Timeout: cfg.Summary.Timeout.String(),
			RPS:     cfg.Summary.RPS,
		},
		Media: sampleMedia{
			BaseURL:     cfg.Media.BaseURL,
			APIKey:      cfg.Media.APIKey,
			QuerySuffix: cfg.Media.QuerySuffix,
			Timeout:     cfg.Media.Timeout.String(),
			RPS:         cfg.Media.RPS,
		},
		Pipeline: samplePipeline{
			Workers:       cfg.Pipeline.Workers,
			EnrichTimeout: cfg.Pipeline.EnrichTimeout.String(),
			RunTimeout:    cfg.Pipeline.RunTimeout.String(),
		},
		Log:     cfg.Log,
		Metrics: cfg.Metrics,
		Server:  cfg.Server,
		Export:  cfg.Export,
	}
	f.Chart = sampleChart{
		URL:           cfg.Chart.URL,
		ExpectedSize:  cfg.Chart.ExpectedSize,
		Limit:         cfg.Chart.Limit,
		RespectRobots: cfg.Chart.RespectRobots,
		Fingerprint:   cfg.Chart.Fingerprint,
		Timeout:       cfg.Chart.Timeout.String(),
		UserAgents:    cfg.Chart.UserAgents,
		Proxy:         cfg.Chart.Proxy,
	}
	if f.Chart.UserAgents == nil {
		f.Chart.UserAgents = []string{}
	}
	f.Chart.Selectors.Row = cfg.Chart.Selectors.Row
	f.Chart.Selectors.Rank = cfg.Chart.Selectors.Rank
	f.Chart.Selectors.Title = cfg.Chart.Selectors.Title
	f.Chart.Selectors.Artist = cfg.Chart.Selectors.Artist

	var buf bytes.Buffer
	buf.WriteString(sampleHeader)
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode sample config: %w", err)
	}
	return buf.Bytes(), nil
}

// CreateSample writes the default configuration to path. An existing file
// is left untouched unless overwrite is set.
func CreateSample(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := SampleTOML(Default())
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
