// Package config loads the runtime's YAML configuration: LLM provider
// settings, storage DSNs, the persona catalogue path, and the tuning
// knobs enumerated in spec.md §6, with ${VAR}/${VAR:-default} expansion
// against the process environment before parsing.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LLMConfig selects and configures the LLM provider behind LLMBackend.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // "anthropic" | "openai"
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
	APIKey     string `yaml:"api_key"`
}

// RelationalConfig selects the mid-term relational backend.
type RelationalConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	DSN    string `yaml:"dsn"`
}

// VectorConfig selects the long-term vector backend.
type VectorConfig struct {
	Driver     string `yaml:"driver"` // "chromem" | "qdrant"
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
}

// StorageConfig groups the two StorageBackend halves.
type StorageConfig struct {
	Relational RelationalConfig `yaml:"relational"`
	Vector     VectorConfig     `yaml:"vector"`
}

// MemoryConfig carries the tuning knobs enumerated in spec.md §6 that
// are not fixed behavioural constants (those — ranker weights and
// thresholds — stay hardcoded in pkg/ranker per its own design note).
type MemoryConfig struct {
	MessageWindow          int     `yaml:"message_window"`
	MaxIterations          int     `yaml:"max_iterations"`
	CharacterMaxIterations int     `yaml:"character_max_iterations"`
	RecentSummaryN         int     `yaml:"recent_summary_n"`
	PromotionThreshold     int     `yaml:"promotion_threshold"`
	MidTermTimeRangeDays   int     `yaml:"mid_term_time_range_days"`
	DefaultSearchLimit     int     `yaml:"default_search_limit"`
	LongTermMinScore       float64 `yaml:"long_term_min_score"`
}

// LoggerConfig configures the standard-library slog handler.
type LoggerConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug|info|warn|error, default info
	File   string `yaml:"file,omitempty"`   // empty means stderr
	Format string `yaml:"format,omitempty"` // "text" | "json", default text
}

// Config is the top-level runtime configuration.
type Config struct {
	LLM         LLMConfig     `yaml:"llm"`
	Storage     StorageConfig `yaml:"storage"`
	Memory      MemoryConfig  `yaml:"memory"`
	Logger      LoggerConfig  `yaml:"logger"`
	PersonaPath string        `yaml:"persona_path"`
	BotID       string        `yaml:"bot_id"`
}

// SetDefaults fills in every knob spec.md §6 names a default for.
func (c *Config) SetDefaults() {
	if c.Memory.MessageWindow == 0 {
		c.Memory.MessageWindow = 20
	}
	if c.Memory.MaxIterations == 0 {
		c.Memory.MaxIterations = 10
	}
	if c.Memory.CharacterMaxIterations == 0 {
		c.Memory.CharacterMaxIterations = 5
	}
	if c.Memory.RecentSummaryN == 0 {
		c.Memory.RecentSummaryN = 3
	}
	if c.Memory.PromotionThreshold == 0 {
		c.Memory.PromotionThreshold = 3
	}
	if c.Memory.MidTermTimeRangeDays == 0 {
		c.Memory.MidTermTimeRangeDays = 30
	}
	if c.Memory.DefaultSearchLimit == 0 {
		c.Memory.DefaultSearchLimit = 5
	}
	if c.Memory.LongTermMinScore == 0 {
		c.Memory.LongTermMinScore = 0.1
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Storage.Relational.Driver == "" {
		c.Storage.Relational.Driver = "sqlite"
	}
	if c.Storage.Vector.Driver == "" {
		c.Storage.Vector.Driver = "chromem"
	}
	if c.Storage.Vector.Collection == "" {
		c.Storage.Vector.Collection = "memory_vectors"
	}
	if c.BotID == "" {
		c.BotID = "default"
	}
}

// Validate checks invariants the loader cannot fix with a default.
func (c *Config) Validate() error {
	if c.LLM.Provider != "anthropic" && c.LLM.Provider != "openai" {
		return fmt.Errorf("config: llm.provider must be \"anthropic\" or \"openai\", got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("config: llm.model is required")
	}
	switch c.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid logger.level %q", c.Logger.Level)
	}
	return nil
}

// Load reads a YAML file at path, expands ${VAR}/${VAR:-default}/$VAR
// references against the environment, applies defaults, and validates
// the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
