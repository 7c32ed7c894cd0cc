// Package config provides configuration loading and validation for the
// reply drafting service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config represents the service configuration. It can be loaded from a JSON
// file and is then overlaid with environment variables; CLI flags win last.
type Config struct {
	// Connections
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key

	// Generation
	Model           string  `json:"model,omitempty"`             // Overrides the standard tier model
	Tier            string  `json:"tier,omitempty"`              // lite, standard or advanced
	Temperature     float32 `json:"temperature,omitempty"`       // Sampling temperature
	MaxOutputTokens int32   `json:"max_output_tokens,omitempty"` // Output cap per draft
	PolicyFile      string  `json:"policy_file,omitempty"`       // Optional policy YAML replacing the embedded one

	// Voice curation
	MaxSamples      int `json:"max_samples,omitempty"`
	MaxSampleChars  int `json:"max_sample_chars,omitempty"`
	MaxSamplesTotal int `json:"max_samples_total,omitempty"`

	// Server
	Port               int      `json:"port,omitempty"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute,omitempty"` // Draft requests per organization
	CORSOrigins        []string `json:"cors_origins,omitempty"`

	Verbose bool `json:"verbose,omitempty"` // Debug logging
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Tier:               "standard",
		Temperature:        0.4,
		MaxOutputTokens:    320,
		MaxSamples:         5,
		MaxSampleChars:     420,
		MaxSamplesTotal:    1800,
		Port:               8080,
		RateLimitPerMinute: 30,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overlays environment variables onto c. Unset variables leave the
// field untouched; malformed numbers are an error.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("REPLY_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("REPLY_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("invalid REPLY_TEMPERATURE: %w", err)
		}
		c.Temperature = float32(f)
	}
	if v := os.Getenv("REPLY_MAX_OUTPUT_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid REPLY_MAX_OUTPUT_TOKENS: %w", err)
		}
		c.MaxOutputTokens = int32(n)
	}
	if v := os.Getenv("DRAFT_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DRAFT_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		c.RateLimitPerMinute = n
	}
	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Port = n
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	return nil
}

// Validate checks that the configuration has valid values.
// Required connection settings are checked by the commands that need them.
func (c *Config) Validate() error {
	switch c.Tier {
	case "", "lite", "standard", "advanced":
	default:
		return fmt.Errorf("config error: 'tier' must be lite, standard or advanced, got %q", c.Tier)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config error: 'temperature' must be between 0 and 2")
	}
	if c.MaxOutputTokens < 0 {
		return fmt.Errorf("config error: 'max_output_tokens' must be non-negative")
	}
	if c.MaxSamples < 0 || c.MaxSamples > 12 {
		return fmt.Errorf("config error: 'max_samples' must be between 0 and 12")
	}
	if c.MaxSampleChars < 0 || c.MaxSamplesTotal < 0 {
		return fmt.Errorf("config error: sample limits must be non-negative")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config error: 'rate_limit_per_minute' must be non-negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range")
	}
	if c.PolicyFile != "" {
		if _, err := os.Stat(c.PolicyFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: policy file not found: %s", c.PolicyFile)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.Tier == "" {
		result.Tier = defaults.Tier
	}
	if result.PolicyFile == "" {
		result.PolicyFile = defaults.PolicyFile
	}

	// Numeric fields: use default if zero
	if result.Temperature == 0 {
		result.Temperature = defaults.Temperature
	}
	if result.MaxOutputTokens == 0 {
		result.MaxOutputTokens = defaults.MaxOutputTokens
	}
	if result.MaxSamples == 0 {
		result.MaxSamples = defaults.MaxSamples
	}
	if result.MaxSampleChars == 0 {
		result.MaxSampleChars = defaults.MaxSampleChars
	}
	if result.MaxSamplesTotal == 0 {
		result.MaxSamplesTotal = defaults.MaxSamplesTotal
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.RateLimitPerMinute == 0 {
		result.RateLimitPerMinute = defaults.RateLimitPerMinute
	}
	if len(result.CORSOrigins) == 0 {
		result.CORSOrigins = defaults.CORSOrigins
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// Load builds the effective configuration: the optional JSON file, then the
// environment, then the built-in defaults for anything still unset.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	merged := cfg.MergeWithDefaults(Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
