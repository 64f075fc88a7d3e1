// internal/session/config.go
package session

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/DeepScrapexter/internal/resolver"
)

// Config gathers every tunable a run obeys. The original used process-wide
// settings for these; here each session carries its own copy, so two
// sessions with different limits can share a process.
type Config struct {
	// MaxConcurrency bounds parallel subpage fetches and sizes the browser
	// pool for headless templates.
	MaxConcurrency int `yaml:"maxConcurrency,omitempty" json:"maxConcurrency,omitempty"`

	// SubpageTaskTimeout bounds one profile page fetch and extract
	SubpageTaskTimeout time.Duration `yaml:"subpageTaskTimeout,omitempty" json:"subpageTaskTimeout,omitempty"`

	// SubpageOnlyThreshold is the empty-share above which a container is
	// treated as subpage-only. A template's own threshold wins over this.
	SubpageOnlyThreshold float64 `yaml:"subpageOnlyThreshold,omitempty" json:"subpageOnlyThreshold,omitempty"`

	// ExpectedAbsentLabels and ExpectedAbsentSelectorHints form the
	// allow-list for required fields that may resolve empty without failing
	// their record.
	ExpectedAbsentLabels        []string `yaml:"expectedAbsentLabels,omitempty" json:"expectedAbsentLabels,omitempty"`
	ExpectedAbsentSelectorHints []string `yaml:"expectedAbsentSelectorHints,omitempty" json:"expectedAbsentSelectorHints,omitempty"`

	// MaxPages is the pagination backstop. Templates can lower it, never
	// raise it.
	MaxPages int `yaml:"maxPages,omitempty" json:"maxPages,omitempty"`

	// ScrollAttempts and StableProbes tune the infinite scroll loop
	ScrollAttempts int `yaml:"scrollAttempts,omitempty" json:"scrollAttempts,omitempty"`
	StableProbes   int `yaml:"stableProbes,omitempty" json:"stableProbes,omitempty"`

	// ConsecutiveEmptyPages ends pagination after this many pages in a row
	// yield nothing new.
	ConsecutiveEmptyPages int `yaml:"consecutiveEmptyPages,omitempty" json:"consecutiveEmptyPages,omitempty"`

	// OffsetPageCap bounds URL-parameter pagination specifically
	OffsetPageCap int `yaml:"offsetPageCap,omitempty" json:"offsetPageCap,omitempty"`

	// RequestDelay spaces sequential subpage fetches; BatchDelay spaces the
	// listing URLs of a batch run.
	RequestDelay time.Duration `yaml:"requestDelay,omitempty" json:"requestDelay,omitempty"`
	BatchDelay   time.Duration `yaml:"batchDelay,omitempty" json:"batchDelay,omitempty"`

	// RatePerSecond caps static HTTP fetching
	RatePerSecond float64 `yaml:"ratePerSecond,omitempty" json:"ratePerSecond,omitempty"`

	// UserAgents rotate across static fetches. Empty uses the fetcher's
	// built-in set.
	UserAgents []string `yaml:"userAgents,omitempty" json:"userAgents,omitempty"`
}

// UnmarshalYAML decodes the delay fields from Go duration strings, so a
// config file can say "30s" or "500ms" instead of nanosecond integers.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxConcurrency              int      `yaml:"maxConcurrency"`
		SubpageTaskTimeout          string   `yaml:"subpageTaskTimeout"`
		SubpageOnlyThreshold        float64  `yaml:"subpageOnlyThreshold"`
		ExpectedAbsentLabels        []string `yaml:"expectedAbsentLabels"`
		ExpectedAbsentSelectorHints []string `yaml:"expectedAbsentSelectorHints"`
		MaxPages                    int      `yaml:"maxPages"`
		ScrollAttempts              int      `yaml:"scrollAttempts"`
		StableProbes                int      `yaml:"stableProbes"`
		ConsecutiveEmptyPages       int      `yaml:"consecutiveEmptyPages"`
		OffsetPageCap               int      `yaml:"offsetPageCap"`
		RequestDelay                string   `yaml:"requestDelay"`
		BatchDelay                  string   `yaml:"batchDelay"`
		RatePerSecond               float64  `yaml:"ratePerSecond"`
		UserAgents                  []string `yaml:"userAgents"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	taskTimeout, err := parseDelay("subpageTaskTimeout", raw.SubpageTaskTimeout)
	if err != nil {
		return err
	}
	requestDelay, err := parseDelay("requestDelay", raw.RequestDelay)
	if err != nil {
		return err
	}
	batchDelay, err := parseDelay("batchDelay", raw.BatchDelay)
	if err != nil {
		return err
	}

	c.MaxConcurrency = raw.MaxConcurrency
	c.SubpageTaskTimeout = taskTimeout
	c.SubpageOnlyThreshold = raw.SubpageOnlyThreshold
	c.ExpectedAbsentLabels = raw.ExpectedAbsentLabels
	c.ExpectedAbsentSelectorHints = raw.ExpectedAbsentSelectorHints
	c.MaxPages = raw.MaxPages
	c.ScrollAttempts = raw.ScrollAttempts
	c.StableProbes = raw.StableProbes
	c.ConsecutiveEmptyPages = raw.ConsecutiveEmptyPages
	c.OffsetPageCap = raw.OffsetPageCap
	c.RequestDelay = requestDelay
	c.BatchDelay = batchDelay
	c.RatePerSecond = raw.RatePerSecond
	c.UserAgents = raw.UserAgents
	return nil
}

func parseDelay(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return d, nil
}

// DefaultConfig returns the settings a session runs with when the operator
// tunes nothing.
func DefaultConfig() Config {
	allow := resolver.DefaultAllowList()
	return Config{
		MaxConcurrency:              5,
		SubpageTaskTimeout:          30 * time.Second,
		SubpageOnlyThreshold:        0.7,
		ExpectedAbsentLabels:        allow.Labels,
		ExpectedAbsentSelectorHints: allow.SelectorHints,
		MaxPages:                    100,
		ScrollAttempts:              20,
		StableProbes:                3,
		ConsecutiveEmptyPages:       3,
		OffsetPageCap:               200,
		RequestDelay:                time.Second,
		BatchDelay:                  2 * time.Second,
		RatePerSecond:               1,
	}
}

// Validate checks the configuration and fills unset fields from the
// defaults.
func (c *Config) Validate() error {
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("maxConcurrency cannot be negative")
	}
	if c.SubpageTaskTimeout < 0 || c.RequestDelay < 0 || c.BatchDelay < 0 {
		return fmt.Errorf("timeouts and delays cannot be negative")
	}
	if c.SubpageOnlyThreshold < 0 || c.SubpageOnlyThreshold > 1 {
		return fmt.Errorf("subpageOnlyThreshold must be between 0 and 1")
	}
	if c.MaxPages < 0 || c.ScrollAttempts < 0 || c.StableProbes < 0 ||
		c.ConsecutiveEmptyPages < 0 || c.OffsetPageCap < 0 {
		return fmt.Errorf("page limits cannot be negative")
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("ratePerSecond cannot be negative")
	}

	def := DefaultConfig()
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.SubpageTaskTimeout == 0 {
		c.SubpageTaskTimeout = def.SubpageTaskTimeout
	}
	if c.SubpageOnlyThreshold == 0 {
		c.SubpageOnlyThreshold = def.SubpageOnlyThreshold
	}
	if c.ExpectedAbsentLabels == nil && c.ExpectedAbsentSelectorHints == nil {
		c.ExpectedAbsentLabels = def.ExpectedAbsentLabels
		c.ExpectedAbsentSelectorHints = def.ExpectedAbsentSelectorHints
	}
	if c.MaxPages == 0 {
		c.MaxPages = def.MaxPages
	}
	if c.ScrollAttempts == 0 {
		c.ScrollAttempts = def.ScrollAttempts
	}
	if c.StableProbes == 0 {
		c.StableProbes = def.StableProbes
	}
	if c.ConsecutiveEmptyPages == 0 {
		c.ConsecutiveEmptyPages = def.ConsecutiveEmptyPages
	}
	if c.OffsetPageCap == 0 {
		c.OffsetPageCap = def.OffsetPageCap
	}
	if c.RequestDelay == 0 {
		c.RequestDelay = def.RequestDelay
	}
	if c.BatchDelay == 0 {
		c.BatchDelay = def.BatchDelay
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = def.RatePerSecond
	}
	return nil
}

// AllowList builds the resolver allow-list from the configured labels and
// hints.
func (c *Config) AllowList() resolver.AllowList {
	return resolver.AllowList{
		Labels:        c.ExpectedAbsentLabels,
		SelectorHints: c.ExpectedAbsentSelectorHints,
	}
}

// LoadConfig reads a session configuration from a YAML file and validates
// it. Unset fields get the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read session config: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse session config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid session config: %w", err)
	}
	return config, nil
}
