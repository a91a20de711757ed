package config

import "time"

// DefaultExtensions lists the source types the loader understands.
var DefaultExtensions = []string{".json", ".pdf", ".csv", ".xlsx", ".md", ".txt", ".rst", ".docx", ".pptx", ".odp", ".ods", ".odt", ".rtf"}

// Default returns a configuration with every default applied. Used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Collection.CacheDir == "" {
		cfg.Collection.CacheDir = "./user_input_cache"
	}
	if cfg.Collection.Name == "" {
		cfg.Collection.Name = "user_input"
	}
	if cfg.Collection.Backend == "" {
		cfg.Collection.Backend = "sqlite"
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if cfg.Embedding.Dense.Provider == "" {
		cfg.Embedding.Dense.Provider = "hashing"
	}
	if cfg.Embedding.Dense.Model == "" {
		cfg.Embedding.Dense.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embedding.Dense.APIKeyEnv == "" {
		cfg.Embedding.Dense.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Dense.Dimensions == 0 {
		cfg.Embedding.Dense.Dimensions = 384
	}
	if cfg.Embedding.Dense.MaxTokens == 0 {
		cfg.Embedding.Dense.MaxTokens = 256
	}
	if cfg.Embedding.Dense.CacheSize == 0 {
		cfg.Embedding.Dense.CacheSize = 10000
	}
	if cfg.Embedding.Sparse.Provider == "" {
		cfg.Embedding.Sparse.Provider = "bm25"
	}
	if cfg.Embedding.Sparse.Analyzer == "" {
		cfg.Embedding.Sparse.Analyzer = "en"
	}
	if cfg.Embedding.Sparse.K1 == 0 {
		cfg.Embedding.Sparse.K1 = 1.2
	}
	if cfg.Embedding.Sparse.B == 0 {
		cfg.Embedding.Sparse.B = 0.75
	}
	if cfg.Embedding.Sparse.AvgDocLen == 0 {
		cfg.Embedding.Sparse.AvgDocLen = 256
	}
	if cfg.Loader.Extensions == nil {
		cfg.Loader.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Loader.PreviewRows == 0 {
		cfg.Loader.PreviewRows = 5
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 3
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 100
	}
	if cfg.Search.Fusion == "" {
		cfg.Search.Fusion = "weighted"
	}
	if cfg.Search.DenseWeight == 0 && cfg.Search.SparseWeight == 0 {
		cfg.Search.DenseWeight = 0.5
		cfg.Search.SparseWeight = 0.5
	}
	if cfg.Search.RRFK == 0 {
		cfg.Search.RRFK = 60
	}
	if cfg.Ingest.RetryAttempts == 0 {
		cfg.Ingest.RetryAttempts = 3
	}
	if cfg.Ingest.RetryDelay == 0 {
		cfg.Ingest.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), cfg.Loader.Extensions...)
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
