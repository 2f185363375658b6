package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	Registry struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"registry"`
	Ollama struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"ollama"`
	Models struct {
		// Cascades are ordered cheapest/most-available first.
		Text   []string `yaml:"text"`
		Vision []string `yaml:"vision"`
		Embed  []string `yaml:"embed"`
	} `yaml:"models"`
	Embeddings struct {
		Dimension int `yaml:"dimension"`
	} `yaml:"embeddings"`
	Processing struct {
		ChunkSize        int     `yaml:"chunk_size"`
		ChunkOverlap     int     `yaml:"chunk_overlap"`
		MinPageChars     int     `yaml:"min_page_chars"`
		OCRScale         float64 `yaml:"ocr_scale"`
		InterPageDelayMS int     `yaml:"inter_page_delay_ms"`
		QuotaBackoffSec  int     `yaml:"quota_backoff_sec"`
		CorrectOnIngest  bool    `yaml:"correct_on_ingest"`
	} `yaml:"processing"`
	Correction struct {
		BatchSize          int `yaml:"batch_size"`
		InterBatchDelaySec int `yaml:"inter_batch_delay_sec"`
	} `yaml:"correction"`
	Retrieval struct {
		TopK            int     `yaml:"top_k"`
		MinChunkChars   int     `yaml:"min_chunk_chars"`
		SimilarityFloor float64 `yaml:"similarity_floor"`
		MaxHops         int     `yaml:"max_hops"`
		ContextTokens   int     `yaml:"context_tokens"`
	} `yaml:"retrieval"`
}

// Load loads configuration from file or returns defaults
func Load() (*Config, error) {
	cfg := Default()

	configPath := filepath.Join(os.Getenv("HOME"), ".kutub", "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save() error {
	configDir := filepath.Join(os.Getenv("HOME"), ".kutub")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Database.ConnectionString = "postgres://postgres@localhost/postgres?sslmode=disable"
	cfg.Registry.DataDir = filepath.Join(os.Getenv("HOME"), ".kutub", "data")
	cfg.Ollama.BaseURL = "http://localhost:11434"

	cfg.Models.Text = []string{"llama3.2", "qwen2.5", "mistral"}
	cfg.Models.Vision = []string{"llama3.2-vision", "llava"}
	cfg.Models.Embed = []string{"nomic-embed-text"}
	cfg.Embeddings.Dimension = 768

	cfg.Processing.ChunkSize = 1000
	cfg.Processing.ChunkOverlap = 200
	cfg.Processing.MinPageChars = 100
	cfg.Processing.OCRScale = 2.0
	cfg.Processing.InterPageDelayMS = 500
	cfg.Processing.QuotaBackoffSec = 5
	cfg.Processing.CorrectOnIngest = false

	cfg.Correction.BatchSize = 5
	cfg.Correction.InterBatchDelaySec = 3

	cfg.Retrieval.TopK = 8
	cfg.Retrieval.MinChunkChars = 20
	cfg.Retrieval.SimilarityFloor = 0.25
	cfg.Retrieval.MaxHops = 3
	cfg.Retrieval.ContextTokens = 2000

	return cfg
}
