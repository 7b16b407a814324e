package config

import (
	"fmt"
	"os"
	"time"

	"github.com/titanous/json5"
)

const (
	// Default number of jobs to run before recycling the browser session.
	DefaultBatchSize = 50
	// Default retry policy applied at the job boundary.
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 3000
	// Default timeout for a single page navigation.
	DefaultNavTimeoutMs = 30000
	// Default minimum gap between remote UI interactions.
	DefaultPaceMs = 500
)

// RewriteRule is a regex substitution applied to a single named hierarchy
// level before path rendering. Replacement accepts \1-style backreferences.
type RewriteRule struct {
	Level       string `json:"level"`
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

// Credentials for the records system, sourced from the environment rather
// than the config file.
type Credentials struct {
	CorporateID string
	Username    string
	Password    string
}

// Config holds application settings.
type Config struct {
	BaseURL string `json:"base_url"`

	// Ordered names for hierarchy depths, e.g. ["Group","Department",...].
	HierarchyLevels []string `json:"hierarchy_levels"`
	// Destination path template, e.g. "records/{{Group}}/{{Employee}}/{{FileName}}".
	PathTemplate string        `json:"path_template"`
	Rewrites     []RewriteRule `json:"rewrites"`

	// Crawl pruning. FoldersToSkip matches case-insensitively on folder
	// names; SkipRegex is applied case-insensitively when non-empty.
	FoldersToSkip []string `json:"folders_to_skip"`
	SkipRegex     string   `json:"skip_regex"`

	// Anchor is the hierarchy segment the restructure pass pivots on.
	Anchor string `json:"anchor"`

	SourceRoot string `json:"source_root"`
	TargetRoot string `json:"target_root"`
	DestRoot   string `json:"dest_root"`

	LedgerPath   string `json:"ledger_path"`
	ManifestPath string `json:"manifest_path"`

	BatchSize    int  `json:"batch_size"`
	MaxRetries   int  `json:"max_retries"`
	RetryDelayMs int  `json:"retry_delay_ms"`
	NavTimeoutMs int  `json:"navigation_timeout_ms"`
	PaceMs       int  `json:"pace_ms"`
	DryRun       bool `json:"dry_run"`

	Creds Credentials `json:"-"`
}

// Load reads a JSON or JSON5 config file, applies defaults, and pulls
// credentials from the environment.
func Load(path string) (Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := json5.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	cfg.Creds = Credentials{
		CorporateID: os.Getenv("VMR_CORPORATE_ID"),
		Username:    os.Getenv("VMR_USERNAME"),
		Password:    os.Getenv("VMR_PASSWORD"),
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued tunables.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelayMs <= 0 {
		c.RetryDelayMs = DefaultRetryDelayMs
	}
	if c.NavTimeoutMs <= 0 {
		c.NavTimeoutMs = DefaultNavTimeoutMs
	}
	if c.PaceMs <= 0 {
		c.PaceMs = DefaultPaceMs
	}
	if c.Anchor == "" {
		c.Anchor = "HR"
	}
	if c.LedgerPath == "" {
		c.LedgerPath = "migration_queue.jsonl"
	}
	if c.ManifestPath == "" {
		c.ManifestPath = "migration_manifest.jsonl"
	}
}

// Validate checks the fields every command depends on. Command-specific
// requirements (credentials, roots) are checked by the commands themselves.
func (c *Config) Validate() error {
	if len(c.HierarchyLevels) == 0 {
		return fmt.Errorf("config: hierarchy_levels must not be empty")
	}
	if c.PathTemplate == "" {
		return fmt.Errorf("config: path_template must be set")
	}
	seen := make(map[string]bool, len(c.HierarchyLevels))
	for _, lvl := range c.HierarchyLevels {
		if lvl == "" {
			return fmt.Errorf("config: hierarchy_levels contains an empty name")
		}
		if seen[lvl] {
			return fmt.Errorf("config: duplicate hierarchy level %q", lvl)
		}
		seen[lvl] = true
	}
	return nil
}

// RetryDelay returns the configured inter-attempt delay.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// NavTimeout returns the configured single-navigation timeout.
func (c *Config) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutMs) * time.Millisecond
}

// Pace returns the minimum gap between remote UI interactions.
func (c *Config) Pace() time.Duration {
	return time.Duration(c.PaceMs) * time.Millisecond
}
