package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type EmbedderConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

type VectorStoreConfig struct {
	Type           string  `yaml:"type"`
	URL            string  `yaml:"url"`
	APIKey         string  `yaml:"api_key"`
	DatabaseURL    string  `yaml:"database_url"`
	TablePrefix    string  `yaml:"table_prefix"`
	SQLitePath     string  `yaml:"sqlite_path"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

func (c VectorStoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

type ProcessorConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	// Extra extensions read as plain UTF-8 text (".csv", "log", ...).
	TextExtensions []string `yaml:"text_extensions"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
	MinUploadSize int    `yaml:"min_upload_size"`
}

type ScraperConfig struct {
	RateLimit   float64 `yaml:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	MaxBytes    int64   `yaml:"max_bytes"`
}

func (c ScraperConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

type UIConfig struct {
	Theme string `yaml:"theme"`
}

type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Processor   ProcessorConfig   `yaml:"processor"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Server      ServerConfig      `yaml:"server"`
	Scraper     ScraperConfig     `yaml:"scraper"`
	UI          UIConfig          `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/storagerag/config.yaml"),
			"/etc/storagerag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// Temperature is left at zero unless set: answers are grounded, not creative.
func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "openai" {
			config.LLM.Model = "gpt-4o-mini"
		} else {
			config.LLM.Model = "llama3.2:1b"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.Model == "" {
		if config.Embedder.Provider == "openai" {
			config.Embedder.Model = "text-embedding-3-small"
		} else {
			config.Embedder.Model = "all-minilm"
		}
	}
	if config.Embedder.BaseURL == "" && config.Embedder.Provider == "ollama" {
		config.Embedder.BaseURL = config.LLM.BaseURL
		if config.Embedder.BaseURL == "" {
			config.Embedder.BaseURL = "http://localhost:11434"
		}
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 64
	}

	if config.VectorStore.Type == "" {
		config.VectorStore.Type = "qdrant"
	}
	if config.VectorStore.URL == "" {
		config.VectorStore.URL = "http://localhost:6333"
	}
	if config.VectorStore.SQLitePath == "" {
		config.VectorStore.SQLitePath = "storagerag.db"
	}
	if config.VectorStore.TimeoutSecs == 0 {
		config.VectorStore.TimeoutSecs = 30
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 450
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 120
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 50
	}
	if config.Server.MinUploadSize == 0 {
		config.Server.MinUploadSize = 100
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.TimeoutSecs == 0 {
		config.Scraper.TimeoutSecs = 30
	}
	if config.Scraper.MaxBytes == 0 {
		config.Scraper.MaxBytes = 20 << 20
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}
}

func isOllama(provider string) bool {
	return provider == "" || provider == "ollama"
}

func mergeWithEnv(config *Config) {
	// OLLAMA_BASE_URL only points ollama providers; an empty provider
	// defaults to ollama.
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if isOllama(config.LLM.Provider) {
			config.LLM.BaseURL = baseURL
		}
		if isOllama(config.Embedder.Provider) {
			config.Embedder.BaseURL = baseURL
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = key
		}
		if config.Embedder.APIKey == "" {
			config.Embedder.APIKey = key
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.VectorStore.DatabaseURL = dbURL
	}
	if qdrantURL := os.Getenv("QDRANT_URL"); qdrantURL != "" {
		config.VectorStore.URL = qdrantURL
	}
	if qdrantKey := os.Getenv("QDRANT_API_KEY"); qdrantKey != "" {
		config.VectorStore.APIKey = qdrantKey
	}
}
