package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const testDebounce = 100 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) handle(_ context.Context, paths []string) {
	r.mu.Lock()
	r.batches = append(r.batches, paths)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, roots []string, exts []string, rec *recorder) *Watcher {
	t.Helper()
	w := New(roots, exts, true, rec.handle, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func contains(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, nil, []string{".txt"}, &recorder{})

	if err := w.AddDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || filepath.Clean(dirs[0]) != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_BatchesDebouncedWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt", ".csv"}, rec)

	for i, name := range []string{"a.txt", "b.csv", "skip.xyz"} {
		if err := writeFile(filepath.Join(dir, name), strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	// Rewrite inside the quiet period; the path must appear once.
	if err := writeFile(filepath.Join(dir, "a.txt"), "updated"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(rec.all()) >= 2 })
	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("expected a.txt and b.csv once each, got %v", got)
	}
	if !contains(got, "a.txt") || !contains(got, "b.csv") || contains(got, "skip.xyz") {
		t.Errorf("unexpected batch contents: %v", got)
	}
}

func TestWatcher_RemovalsAreIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, rec)

	if err := writeFile(path, "soon removed"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.count() == 1 })
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(4 * testDebounce)
	if rec.count() != 1 {
		t.Errorf("removal must not produce a batch, got %d batches", rec.count())
	}
}

func TestWatcher_NewFolderIsQueued(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt", ".md"}, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "level1", "doc.md"), "world"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		got := rec.all()
		return contains(got, "deep.txt") && contains(got, "doc.md")
	})
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, []string{root}, nil, &recorder{})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_StopDropsPending(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New([]string{dir}, nil, false, rec.handle, WithDebounce(time.Hour))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "a.txt"), "x"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()
	w.Stop()
	if rec.count() != 0 {
		t.Errorf("expected no batches after Stop, got %d", rec.count())
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"b.txt", "a.md", "skip.bin", filepath.Join("sub", "c.txt")} {
		full := filepath.Join(dir, p)
		if err := mkdirAll(filepath.Dir(full)); err != nil {
			t.Fatal(err)
		}
		if err := writeFile(full, "x"); err != nil {
			t.Fatal(err)
		}
	}

	flat, err := ListFiles(dir, []string{"txt", ".MD"}, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "b.txt")}
	if strings.Join(flat, ",") != strings.Join(want, ",") {
		t.Errorf("flat = %v, want %v", flat, want)
	}

	deep, err := ListFiles(dir, []string{".txt"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(deep) != 2 || !contains(deep, filepath.Join("sub", "c.txt")) {
		t.Errorf("recursive = %v", deep)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
