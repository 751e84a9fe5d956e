// ABOUTME: Configuration loading and parsing for chatdesk
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chatdesk configuration
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Operators []Operator      `yaml:"operators"`
	Hours     HoursConfig     `yaml:"working_hours"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Orders    OrdersConfig    `yaml:"orders"`
	Sweep     SweepConfig     `yaml:"sweep"`
	AI        AIConfig        `yaml:"ai"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TelegramConfig holds the bot transport configuration
type TelegramConfig struct {
	Token string `yaml:"token"`
}

// Operator is one entry of the operator allow-list
type Operator struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// HoursConfig is the business-hours window during which clients may
// request an operator. Hours are in the configured timezone.
type HoursConfig struct {
	Start    int    `yaml:"start"`
	End      int    `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

// RateLimitConfig holds the per-sender rate limiter parameters
type RateLimitConfig struct {
	Cap      int           `yaml:"cap"`
	Window   time.Duration `yaml:"-"`
	Cooldown time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	WindowRaw   string `yaml:"window"`
	CooldownRaw string `yaml:"cooldown"`
}

// OrdersConfig holds order-aggregation timing configuration
type OrdersConfig struct {
	AutoFinalizeDelay time.Duration `yaml:"-"`

	AutoFinalizeDelayRaw string `yaml:"auto_finalize_delay"`
}

// SweepConfig holds the reconciliation sweep interval
type SweepConfig struct {
	Interval time.Duration `yaml:"-"`

	IntervalRaw string `yaml:"interval"`
}

// AIConfig holds text-completion service configuration
type AIConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"-"`
	HistorySize int           `yaml:"history_size"`
	HistoryTTL  time.Duration `yaml:"-"`

	TimeoutRaw    string `yaml:"timeout"`
	HistoryTTLRaw string `yaml:"history_ttl"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding field is absent from the file.
const (
	DefaultRateCap           = 30
	DefaultRateWindow        = 60 * time.Second
	DefaultRateCooldown      = 5 * time.Minute
	DefaultAutoFinalizeDelay = 5 * time.Minute
	DefaultSweepInterval     = 10 * time.Minute
	DefaultAITimeout         = 20 * time.Second
	DefaultHistorySize       = 10
	DefaultHistoryTTL        = 5 * time.Hour
	DefaultModel             = "gpt-4o-mini"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills zero-valued tunables with their documented defaults.
func (c *Config) applyDefaults() {
	if c.RateLimit.Cap == 0 {
		c.RateLimit.Cap = DefaultRateCap
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = DefaultRateWindow
	}
	if c.RateLimit.Cooldown == 0 {
		c.RateLimit.Cooldown = DefaultRateCooldown
	}
	if c.Orders.AutoFinalizeDelay == 0 {
		c.Orders.AutoFinalizeDelay = DefaultAutoFinalizeDelay
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = DefaultSweepInterval
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = DefaultAITimeout
	}
	if c.AI.HistorySize == 0 {
		c.AI.HistorySize = DefaultHistorySize
	}
	if c.AI.HistoryTTL == 0 {
		c.AI.HistoryTTL = DefaultHistoryTTL
	}
	if c.AI.Model == "" {
		c.AI.Model = DefaultModel
	}
	if c.Hours.Timezone == "" {
		c.Hours.Timezone = "Europe/Kyiv"
	}
	if c.Hours.End == 0 {
		c.Hours.Start = 9
		c.Hours.End = 21
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required (set TELEGRAM_TOKEN)")
	}
	if len(c.Operators) == 0 {
		return fmt.Errorf("at least one operator is required")
	}
	seen := make(map[int64]bool, len(c.Operators))
	for _, op := range c.Operators {
		if op.ID == 0 {
			return fmt.Errorf("operator id must be non-zero")
		}
		if seen[op.ID] {
			return fmt.Errorf("duplicate operator id %d", op.ID)
		}
		seen[op.ID] = true
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Hours.Start < 0 || c.Hours.Start > 23 || c.Hours.End < 1 || c.Hours.End > 24 || c.Hours.Start >= c.Hours.End {
		return fmt.Errorf("working_hours window %d..%d is invalid", c.Hours.Start, c.Hours.End)
	}
	if _, err := time.LoadLocation(c.Hours.Timezone); err != nil {
		return fmt.Errorf("working_hours.timezone %q: %w", c.Hours.Timezone, err)
	}
	return nil
}

// OperatorIDs returns the allow-list as a slice of IDs.
func (c *Config) OperatorIDs() []int64 {
	ids := make([]int64, 0, len(c.Operators))
	for _, op := range c.Operators {
		ids = append(ids, op.ID)
	}
	return ids
}

// OperatorName returns the display name for an operator ID, falling back
// to a generic label for unnamed entries.
func (c *Config) OperatorName(id int64) string {
	for _, op := range c.Operators {
		if op.ID == id && op.Name != "" {
			return op.Name
		}
	}
	return fmt.Sprintf("Менеджер (%d)", id)
}

// IsOperator reports whether id is on the operator allow-list.
func (c *Config) IsOperator(id int64) bool {
	for _, op := range c.Operators {
		if op.ID == id {
			return true
		}
	}
	return false
}

// WithinWorkingHours reports whether now falls inside the configured
// business-hours window, evaluated in the configured timezone.
func (c *Config) WithinWorkingHours(now time.Time) bool {
	loc, err := time.LoadLocation(c.Hours.Timezone)
	if err != nil {
		// Validated at load time; fall back to the local clock.
		loc = time.Local
	}
	h := now.In(loc).Hour()
	return h >= c.Hours.Start && h < c.Hours.End
}

// Location returns the configured business timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Hours.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.RateLimit.WindowRaw, &cfg.RateLimit.Window, "rate_limit.window"},
		{cfg.RateLimit.CooldownRaw, &cfg.RateLimit.Cooldown, "rate_limit.cooldown"},
		{cfg.Orders.AutoFinalizeDelayRaw, &cfg.Orders.AutoFinalizeDelay, "orders.auto_finalize_delay"},
		{cfg.Sweep.IntervalRaw, &cfg.Sweep.Interval, "sweep.interval"},
		{cfg.AI.TimeoutRaw, &cfg.AI.Timeout, "ai.timeout"},
		{cfg.AI.HistoryTTLRaw, &cfg.AI.HistoryTTL, "ai.history_ttl"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
