package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode returns development logger", func(t *testing.T) {
		logger, err := NewLogger(true, "")
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(true) returned nil logger")
		}
		_ = logger.Sync()
	})

	t.Run("production mode returns production logger", func(t *testing.T) {
		logger, err := NewLogger(false, "")
		if err != nil {
			t.Fatalf("NewLogger(false) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(false) returned nil logger")
		}
		_ = logger.Sync()
	})

	t.Run("log file receives entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "dashrag.log")
		logger, err := NewLogger(false, path)
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("collection built")
		_ = logger.Sync()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "collection built") {
			t.Errorf("log file missing entry: %s", data)
		}
	})
}

func TestMustNop(t *testing.T) {
	if MustNop(nil) == nil {
		t.Error("MustNop(nil) should return a logger")
	}
}
