// Package config loads and validates the sprintreport TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPath     = "sprintreport.toml"
	DefaultJiraURL  = "https://issues.redhat.com"
	DefaultTokenEnv = "JIRA_TOKEN"

	envJiraURL = "JIRA_URL"
)

// Output formats understood by the report renderer.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	General General `toml:"general"`
	Jira    Jira    `toml:"jira"`
	Report  Report  `toml:"report"`
}

type General struct {
	LogLevel string `toml:"log_level"`
	StateDB  string `toml:"state_db"` // empty disables the report archive
}

type Jira struct {
	URL          string   `toml:"url"`
	TokenEnv     string   `toml:"token_env"`
	PageSize     int      `toml:"page_size"`
	MaxIssues    int      `toml:"max_issues"` // a search matching more fails instead of truncating
	Timeout      Duration `toml:"timeout"`
	RankField    string   `toml:"rank_field"`
	EpicField    string   `toml:"epic_field"`
	FeatureField string   `toml:"feature_field"`
}

type Report struct {
	Title       string `toml:"title"`
	Template    string `toml:"template"` // custom template path; empty uses the built-in one
	Format      string `toml:"format"`
	OutputFile  string `toml:"output_file"`
	SprintStart string `toml:"sprint_start"` // JQL date or relative offset, e.g. "-2w"
	Truncate    int    `toml:"truncate"`
	LeafFilter  string `toml:"leaf_filter"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

// Load reads and validates a sprintreport TOML configuration file. A missing
// file at the default path is not an error; defaults are used instead.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}

	if cfg.Jira.URL == "" {
		cfg.Jira.URL = DefaultJiraURL
	}
	if cfg.Jira.TokenEnv == "" {
		cfg.Jira.TokenEnv = DefaultTokenEnv
	}
	if cfg.Jira.PageSize == 0 {
		cfg.Jira.PageSize = 50
	}
	if cfg.Jira.MaxIssues == 0 {
		cfg.Jira.MaxIssues = 5000
	}
	if cfg.Jira.Timeout.Duration == 0 {
		cfg.Jira.Timeout.Duration = 30 * time.Second
	}
	// Red Hat Jira field ids.
	if cfg.Jira.RankField == "" {
		cfg.Jira.RankField = "customfield_12311940"
	}
	if cfg.Jira.EpicField == "" {
		cfg.Jira.EpicField = "customfield_12311140"
	}
	if cfg.Jira.FeatureField == "" {
		cfg.Jira.FeatureField = "customfield_12313140"
	}

	if cfg.Report.Format == "" {
		cfg.Report.Format = FormatMarkdown
	}
	if cfg.Report.OutputFile == "" {
		cfg.Report.OutputFile = "output.md"
	}
	if cfg.Report.SprintStart == "" {
		cfg.Report.SprintStart = "-2w"
	}
	if cfg.Report.Truncate == 0 {
		cfg.Report.Truncate = 80
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envJiraURL)); v != "" {
		cfg.Jira.URL = v
	}
}

// Validate checks a fully defaulted configuration.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", cfg.General.LogLevel)
	}

	u, err := url.Parse(cfg.Jira.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("jira.url %q is not an absolute URL", cfg.Jira.URL)
	}
	if cfg.Jira.PageSize < 1 {
		return fmt.Errorf("jira.page_size must be positive, got %d", cfg.Jira.PageSize)
	}
	if cfg.Jira.MaxIssues < cfg.Jira.PageSize {
		return fmt.Errorf("jira.max_issues (%d) must be at least jira.page_size (%d)", cfg.Jira.MaxIssues, cfg.Jira.PageSize)
	}
	if cfg.Jira.Timeout.Duration < 0 {
		return fmt.Errorf("jira.timeout must not be negative")
	}

	switch cfg.Report.Format {
	case FormatMarkdown, FormatHTML, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("unknown report.format %q", cfg.Report.Format)
	}
	if cfg.Report.Truncate < 4 {
		return fmt.Errorf("report.truncate must be at least 4, got %d", cfg.Report.Truncate)
	}
	if cfg.Report.Template != "" {
		if _, err := os.Stat(ExpandHome(cfg.Report.Template)); err != nil {
			return fmt.Errorf("report.template: %w", err)
		}
	}

	if cfg.General.StateDB != "" {
		dir := ExpandHome(filepath.Dir(cfg.General.StateDB))
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("state_db directory %q does not exist: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("state_db parent path %q is not a directory", dir)
		}
	}

	return nil
}

// Token returns the Jira token from the configured environment variable.
func (j Jira) Token() string {
	return strings.TrimSpace(os.Getenv(j.TokenEnv))
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
