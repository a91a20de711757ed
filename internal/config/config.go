// Package config provides configuration loading and structs for the dashrag server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	LogFile    string           `yaml:"log_file"`
	Server     ServerConfig     `yaml:"server"`
	Collection CollectionConfig `yaml:"collection"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Loader     LoaderConfig     `yaml:"loader"`
	Search     SearchConfig     `yaml:"search"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// CollectionConfig locates the persistent collection. The collection lives in
// CacheDir/Name; the existence of that directory decides build vs. load.
type CollectionConfig struct {
	CacheDir string `yaml:"cache_dir" validate:"required"`
	Name     string `yaml:"name" validate:"required,excludesall=/\\"`
	Backend  string `yaml:"backend" validate:"oneof=sqlite badger"`
}

// Path returns the collection directory.
func (c CollectionConfig) Path() string {
	return filepath.Join(c.CacheDir, c.Name)
}

// EmbeddingConfig selects the dense and sparse strategies.
type EmbeddingConfig struct {
	Workers int          `yaml:"workers" validate:"min=1"`
	Dense   DenseConfig  `yaml:"dense"`
	Sparse  SparseConfig `yaml:"sparse"`
}

// DenseConfig configures the dense embedder.
type DenseConfig struct {
	Provider   string `yaml:"provider" validate:"oneof=hashing onnx openai"`
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	VocabPath  string `yaml:"vocab_path"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions" validate:"min=1"`
	MaxTokens  int    `yaml:"max_tokens" validate:"min=1"`
	CacheSize  int    `yaml:"cache_size" validate:"min=0"`
}

// SparseConfig configures the BM25 sparse embedder.
type SparseConfig struct {
	Provider  string  `yaml:"provider" validate:"oneof=bm25"`
	Analyzer  string  `yaml:"analyzer" validate:"required"`
	K1        float64 `yaml:"k1" validate:"gt=0"`
	B         float64 `yaml:"b" validate:"gte=0,lte=1"`
	AvgDocLen float64 `yaml:"avg_doc_len" validate:"gt=0"`
}

// LoaderConfig controls source parsing.
type LoaderConfig struct {
	Strict      bool     `yaml:"strict"`
	Extensions  []string `yaml:"extensions"`
	PreviewRows int      `yaml:"preview_rows" validate:"min=1"`
}

// SearchConfig holds ranking settings.
type SearchConfig struct {
	DefaultK     int     `yaml:"default_k" validate:"min=1"`
	MaxK         int     `yaml:"max_k" validate:"min=1,gtefield=DefaultK"`
	Fusion       string  `yaml:"fusion" validate:"oneof=weighted rrf"`
	DenseWeight  float64 `yaml:"dense_weight" validate:"gte=0"`
	SparseWeight float64 `yaml:"sparse_weight" validate:"gte=0"`
	RRFK         float64 `yaml:"rrf_k" validate:"gt=0"`
}

// IngestConfig holds caller-side retry settings for transient embedding failures.
type IngestConfig struct {
	RetryAttempts int           `yaml:"retry_attempts" validate:"min=1"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, expands paths and validates.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Collection.CacheDir = expandPath(cfg.Collection.CacheDir, configDir)
	if cfg.Embedding.Dense.ModelPath != "" {
		cfg.Embedding.Dense.ModelPath = expandPath(cfg.Embedding.Dense.ModelPath, configDir)
	}
	if cfg.Embedding.Dense.VocabPath != "" {
		cfg.Embedding.Dense.VocabPath = expandPath(cfg.Embedding.Dense.VocabPath, configDir)
	}
	if cfg.LogFile != "" {
		cfg.LogFile = expandPath(cfg.LogFile, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
