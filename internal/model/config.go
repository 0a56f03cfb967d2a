package model

import "time"

// Config holds the complete litsort configuration
type Config struct {
	Topic    string         `yaml:"topic"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	Output   OutputConfig   `yaml:"output"`
}

// LLMConfig configures the external text-understanding service
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic, ollama
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"` // Never written to config files
	BaseURL  string `yaml:"base_url,omitempty"`
	Timeout  int    `yaml:"timeout"` // seconds
	MaxTokens int   `yaml:"max_tokens"`
}

// PipelineConfig tunes the batch-extraction state machine
type PipelineConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`       // Max batch size in bytes
	MaxRetries     int           `yaml:"max_retries"`      // Retry ceiling for transient errors
	BaseDelay      time.Duration `yaml:"base_delay"`       // First backoff step
	CourtesyDelay  time.Duration `yaml:"courtesy_delay"`   // Pacing between successive batches
	SampleTitles   int           `yaml:"sample_titles"`    // Titles per theme in consolidation context
	VerifyTitles   int           `yaml:"verify_titles"`    // Larger sample for move verification
	SpeciesEnabled bool          `yaml:"species_enabled"`  // Taxonomic species extraction
}

// CacheConfig configures the service-response cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir,omitempty"`
	TTL     time.Duration `yaml:"ttl"`
}

// OutputConfig controls CLI output behavior
type OutputConfig struct {
	Verbose   bool   `yaml:"verbose"`
	StatePath string `yaml:"state_path"` // Default export/import location
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Topic: "ecological literature",
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   120,
			MaxTokens: 8000,
		},
		Pipeline: PipelineConfig{
			ChunkSize:      12000,
			MaxRetries:     5,
			BaseDelay:      2 * time.Second,
			CourtesyDelay:  1 * time.Second,
			SampleTitles:   3,
			VerifyTitles:   10,
			SpeciesEnabled: false,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Output: OutputConfig{
			StatePath: "litsort-state.json",
		},
	}
}
