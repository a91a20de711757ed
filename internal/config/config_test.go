package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return dir, path
}

func TestLoad(t *testing.T) {
	_, path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
collection:
  cache_dir: "./cache"
  name: "reports"
  backend: "badger"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Collection.Name != "reports" || cfg.Collection.Backend != "badger" {
		t.Errorf("unexpected collection config: %+v", cfg.Collection)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	_, path := writeConfig(t, `
debug: true
server:
  host: "localhost"
  port: 8080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir, path := writeConfig(t, `
collection:
  cache_dir: "./user_input_cache"
log_file: "./logs/dashrag.log"
embedding:
  dense:
    vocab_path: "./models/vocab.txt"
watch:
  directories: ["./inbox"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantCache := filepath.Join(dir, "user_input_cache")
	if cfg.Collection.CacheDir != wantCache {
		t.Errorf("cache_dir = %s, want %s", cfg.Collection.CacheDir, wantCache)
	}
	if cfg.Collection.Path() != filepath.Join(wantCache, "user_input") {
		t.Errorf("collection path = %s", cfg.Collection.Path())
	}
	if cfg.LogFile != filepath.Join(dir, "logs", "dashrag.log") {
		t.Errorf("log_file = %s", cfg.LogFile)
	}
	if cfg.Embedding.Dense.VocabPath != filepath.Join(dir, "models", "vocab.txt") {
		t.Errorf("vocab_path = %s", cfg.Embedding.Dense.VocabPath)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "inbox") {
		t.Errorf("watch directories = %v", cfg.Watch.Directories)
	}
}

func TestLoad_retryDelayDuration(t *testing.T) {
	_, path := writeConfig(t, `
ingest:
  retry_attempts: 5
  retry_delay: 2s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.RetryAttempts != 5 || cfg.Ingest.RetryDelay != 2*time.Second {
		t.Errorf("unexpected ingest config: %+v", cfg.Ingest)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"unknown backend", "collection:\n  backend: postgres\n", "Backend"},
		{"unknown dense provider", "embedding:\n  dense:\n    provider: word2vec\n", "Provider"},
		{"unknown fusion", "search:\n  fusion: max\n", "Fusion"},
		{"max below default", "search:\n  default_k: 10\n  max_k: 5\n", "MaxK"},
		{"bad b", "embedding:\n  sparse:\n    b: 1.5\n", "B"},
		{"slash in name", "collection:\n  name: a/b\n", "Name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, path := writeConfig(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should mention %s", err, tt.field)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Collection.CacheDir != "./user_input_cache" || cfg.Collection.Name != "user_input" {
		t.Errorf("default collection: %+v", cfg.Collection)
	}
	if cfg.Collection.Backend != "sqlite" {
		t.Errorf("default backend: %s", cfg.Collection.Backend)
	}
	if cfg.Embedding.Dense.Provider != "hashing" || cfg.Embedding.Dense.Dimensions != 384 {
		t.Errorf("default dense: %+v", cfg.Embedding.Dense)
	}
	if cfg.Embedding.Sparse.K1 != 1.2 || cfg.Embedding.Sparse.B != 0.75 {
		t.Errorf("default sparse: %+v", cfg.Embedding.Sparse)
	}
	if cfg.Search.DefaultK != 3 || cfg.Search.MaxK != 100 {
		t.Errorf("default k: %d / %d", cfg.Search.DefaultK, cfg.Search.MaxK)
	}
	if cfg.Search.DenseWeight != 0.5 || cfg.Search.SparseWeight != 0.5 {
		t.Errorf("default weights: %f / %f", cfg.Search.DenseWeight, cfg.Search.SparseWeight)
	}
	if len(cfg.Watch.Extensions) != len(DefaultExtensions) {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_keepsOneZeroWeight(t *testing.T) {
	cfg := &Config{Search: SearchConfig{DenseWeight: 1}}
	ApplyDefaults(cfg)
	if cfg.Search.DenseWeight != 1 || cfg.Search.SparseWeight != 0 {
		t.Errorf("weights overwritten: %+v", cfg.Search)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/inbox"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Collection.CacheDir = "/tmp/dashrag-cache"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Ingest.RetryDelay != cfg.Ingest.RetryDelay {
		t.Errorf("retry delay: got %v, want %v", loaded.Ingest.RetryDelay, cfg.Ingest.RetryDelay)
	}
}
