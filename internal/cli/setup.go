package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/pmorozova/litsort/internal/cache"
	"github.com/pmorozova/litsort/internal/llm"
	"github.com/pmorozova/litsort/internal/model"
	"github.com/pmorozova/litsort/internal/store"
)

// Flags shared by the corpus-touching commands
var (
	topicFlag   string
	statePath   string
	llmProvider string
	llmModel    string
	noCache     bool
)

// buildConfig assembles the effective configuration from defaults, the
// config file, environment variables, and flags, in ascending priority
func buildConfig() *model.Config {
	cfg := model.DefaultConfig()

	if v := viper.GetString("topic"); v != "" {
		cfg.Topic = v
	}
	if v := viper.GetString("llm.provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := viper.GetString("llm.model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetInt("pipeline.chunk_size"); v > 0 {
		cfg.Pipeline.ChunkSize = v
	}
	if v := viper.GetInt("pipeline.max_retries"); v > 0 {
		cfg.Pipeline.MaxRetries = v
	}
	if v := viper.GetString("output.state_path"); v != "" {
		cfg.Output.StatePath = v
	}

	// Flags win over everything
	if topicFlag != "" {
		cfg.Topic = topicFlag
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if statePath != "" {
		cfg.Output.StatePath = statePath
	}
	cfg.Cache.Enabled = cfg.Cache.Enabled && !noCache
	cfg.Output.Verbose = verbose

	return cfg
}

// resolveCredentials fills in the provider API key from the environment and
// fails if the selected provider cannot be used
func resolveCredentials(cfg *model.Config) error {
	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		// Ollama doesn't need an API key
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	case "":
		return fmt.Errorf("no LLM provider configured (use --llm-provider or set llm.provider in config)")
	default:
		return fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}
	return nil
}

// newService builds the text-understanding service with its response cache
func newService(cfg *model.Config) (*llm.Service, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	var c cache.Cache
	if cfg.Cache.Enabled {
		dir := cfg.Cache.Dir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err == nil {
				dir = filepath.Join(home, ".litsort", "cache")
			}
		}
		if dir != "" {
			c = cache.NewLayeredCache(cfg.Cache.TTL, dir, cfg.Cache.TTL)
		} else {
			c = cache.NewMemoryCache(cfg.Cache.TTL, 10*time.Minute)
		}
	}

	return llm.NewService(provider, c, cfg.LLM.MaxTokens), nil
}

// loadCorpus restores the corpus from the state file, or starts a fresh one
// when no state exists yet
func loadCorpus(cfg *model.Config) (*model.Corpus, error) {
	if _, err := os.Stat(cfg.Output.StatePath); err != nil {
		if os.IsNotExist(err) {
			return model.NewCorpus(cfg.Topic, cfg.Pipeline.SpeciesEnabled), nil
		}
		return nil, fmt.Errorf("stat state file: %w", err)
	}

	corpus, err := store.Load(cfg.Output.StatePath)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Loaded %d records from %s\n", corpus.Len(), cfg.Output.StatePath)
	}
	return corpus, nil
}

// requireCorpus loads the corpus and fails when it is empty; the taxonomy
// commands have nothing to work on without extracted records
func requireCorpus(cfg *model.Config) (*model.Corpus, error) {
	corpus, err := loadCorpus(cfg)
	if err != nil {
		return nil, err
	}
	if corpus.Len() == 0 {
		return nil, fmt.Errorf("no records in %s (run 'litsort extract' first)", cfg.Output.StatePath)
	}
	return corpus, nil
}

// saveCorpus persists the corpus, stamping a fresh run ID
func saveCorpus(cfg *model.Config, corpus *model.Corpus) error {
	if err := store.Save(cfg.Output.StatePath, corpus, store.NewRunID()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Saved %d records to %s\n", corpus.Len(), cfg.Output.StatePath)
	}
	return nil
}
