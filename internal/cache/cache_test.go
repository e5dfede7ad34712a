package cache_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/cache"
)

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)

	return hex.EncodeToString(h[:])
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing file %s: %v", path, err)
	}
}

func TestGetHit(t *testing.T) {
	dir := t.TempDir()

	content := []byte("wheel content")
	hash := sha256Hex(content)
	filename := "pkg-1.0.0-py3-none-any.whl"

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	path := m.Shard(cache.Wheels, filename)
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		t.Fatal(mkErr)
	}

	writeFile(t, path, content)

	got, ok := m.Get(filename, hash)
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}

	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
}

func TestGetMiss(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, ok := m.Get("nonexistent.whl", "abc")
	if ok {
		t.Fatal("expected cache miss, got hit")
	}
}

func TestGetSHA256Mismatch(t *testing.T) {
	dir := t.TempDir()

	content := []byte("original content")
	filename := "pkg-1.0.0-py3-none-any.whl"

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	path := m.Shard(cache.Wheels, filename)
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		t.Fatal(mkErr)
	}

	writeFile(t, path, content)

	_, ok := m.Get(filename, "0000000000000000000000000000000000000000000000000000000000000000")
	if ok {
		t.Fatal("expected cache miss on hash mismatch, got hit")
	}

	if _, err := os.Stat(path); err == nil {
		t.Error("stale cache file should have been removed")
	}
}

func TestGetEmptySHA256SkipsVerification(t *testing.T) {
	dir := t.TempDir()

	content := []byte("any content")
	filename := "pkg-1.0.0-py3-none-any.whl"

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	path := m.Shard(cache.Wheels, filename)
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		t.Fatal(mkErr)
	}

	writeFile(t, path, content)

	got, ok := m.Get(filename, "")
	if !ok {
		t.Fatal("expected cache hit with empty SHA256, got miss")
	}

	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
}

func TestPut(t *testing.T) {
	srcDir := t.TempDir()
	cacheDir := t.TempDir()

	content := []byte("wheel data")
	srcPath := filepath.Join(srcDir, "download.whl")

	writeFile(t, srcPath, content)

	m, err := cache.New(cache.WithDir(cacheDir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	filename := "pkg-1.0.0-py3-none-any.whl"
	if putErr := m.Put(srcPath, filename); putErr != nil {
		t.Fatalf("Put() error: %v", putErr)
	}

	path := m.Shard(cache.Wheels, filename)

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading cached file: %v", err)
	}

	if string(got) != string(content) {
		t.Error("cached file content does not match source")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file %q should not remain", e.Name())
		}
	}
}

func TestPutOverwritesExisting(t *testing.T) {
	cacheDir := t.TempDir()
	srcDir := t.TempDir()

	m, err := cache.New(cache.WithDir(cacheDir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	filename := "pkg-1.0.0-py3-none-any.whl"
	path := m.Shard(cache.Wheels, filename)

	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		t.Fatal(mkErr)
	}

	writeFile(t, path, []byte("old"))

	srcPath := filepath.Join(srcDir, "new.whl")
	writeFile(t, srcPath, []byte("new content"))

	if putErr := m.Put(srcPath, filename); putErr != nil {
		t.Fatalf("Put() error: %v", putErr)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading cached file: %v", err)
	}

	if string(got) != "new content" {
		t.Errorf("cached content = %q, want %q", got, "new content")
	}
}

func TestConcurrentPut(t *testing.T) {
	cacheDir := t.TempDir()
	srcDir := t.TempDir()

	m, err := cache.New(cache.WithDir(cacheDir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			content := []byte("content-" + string(rune('A'+n)))
			src := filepath.Join(srcDir, "src-"+string(rune('A'+n))+".whl")

			writeFile(t, src, content)

			_ = m.Put(src, "shared.whl")
		}(i)
	}

	wg.Wait()

	path := m.Shard(cache.Wheels, "shared.whl")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected cached file to exist: %v", err)
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "cache")

	_, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("cache directory not created: %v", err)
	}

	if !info.IsDir() {
		t.Error("expected directory, got file")
	}

	if _, err := os.Stat(filepath.Join(dir, "CACHEDIR.TAG")); err != nil {
		t.Error("expected CACHEDIR.TAG to be stamped")
	}
}

func TestWithLoggerOption(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	m, err := cache.New(cache.WithDir(dir), cache.WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, ok := m.Get("nonexistent.whl", "")
	if ok {
		t.Error("expected miss")
	}
}

func TestWithLoggerNilIgnored(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir), cache.WithLogger(nil))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, ok := m.Get("nonexistent.whl", "")
	if ok {
		t.Error("expected miss")
	}
}

func TestPutSourceNotFound(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	err = m.Put("/nonexistent/path/file.whl", "test.whl")
	if err == nil {
		t.Fatal("expected error for missing source, got nil")
	}
}

func TestGetDirectoryIgnored(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	path := m.Shard(cache.Wheels, "fake.whl")
	if mkErr := os.MkdirAll(path, 0o755); mkErr != nil {
		t.Fatal(mkErr)
	}

	_, ok := m.Get("fake.whl", "")
	if ok {
		t.Error("expected miss for directory entry")
	}
}

func TestNewDefaultDirWithoutEnvVar(t *testing.T) {
	t.Setenv("PIPG_CACHE_DIR", "")

	m, err := cache.New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "test.whl")

	writeFile(t, srcPath, []byte("default dir data"))

	if putErr := m.Put(srcPath, "test.whl"); putErr != nil {
		t.Fatalf("Put() error: %v", putErr)
	}
}

func TestNewWithEnvVar(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "env-cache")
	t.Setenv("PIPG_CACHE_DIR", dir)

	m, err := cache.New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "test.whl")

	writeFile(t, srcPath, []byte("data"))

	if err := m.Put(srcPath, "test.whl"); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	path := m.Shard(cache.Wheels, "test.whl")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not found under PIPG_CACHE_DIR: %v", err)
	}
}

func TestGetOrInitCallsInitOnceOnMiss(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	calls := 0

	path, err := m.GetOrInit(context.Background(), cache.Simple, "flask", func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("index page"), nil
	})
	if err != nil {
		t.Fatalf("GetOrInit() error: %v", err)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading cached entry: %v", err)
	}

	if string(got) != "index page" {
		t.Errorf("content = %q", got)
	}
}

func TestGetOrInitSkipsInitOnHit(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := context.Background()

	if _, err := m.GetOrInit(ctx, cache.Simple, "flask", func(ctx context.Context) ([]byte, error) {
		return []byte("first"), nil
	}); err != nil {
		t.Fatalf("GetOrInit() error: %v", err)
	}

	called := false

	path, err := m.GetOrInit(ctx, cache.Simple, "flask", func(ctx context.Context) ([]byte, error) {
		called = true
		return []byte("second"), nil
	})
	if err != nil {
		t.Fatalf("GetOrInit() error: %v", err)
	}

	if called {
		t.Error("initFn should not be called on a hit")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(got) != "first" {
		t.Errorf("content = %q, want %q (first writer wins)", got, "first")
	}
}

func TestGetOrInitConcurrentCallsShareOneInit(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var calls int
	var mu sync.Mutex

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = m.GetOrInit(context.Background(), cache.Simple, "shared-key", func(ctx context.Context) ([]byte, error) {
				mu.Lock()
				calls++
				mu.Unlock()

				return []byte("data"), nil
			})
		}()
	}

	wg.Wait()

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (concurrent callers share one init)", calls)
	}
}

func TestGetOrInitPropagatesInitError(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	wantErr := errors.New("boom")

	_, err = m.GetOrInit(context.Background(), cache.Simple, "flask", func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestClearRemovesPackageEntries(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := context.Background()

	if _, err := m.GetOrInit(ctx, cache.Wheels, "flask-3.0.0-py3-none-any.whl", func(ctx context.Context) ([]byte, error) {
		return []byte("wheel bytes"), nil
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.GetOrInit(ctx, cache.Wheels, "click-8.1.0-py3-none-any.whl", func(ctx context.Context) ([]byte, error) {
		return []byte("other wheel"), nil
	}); err != nil {
		t.Fatal(err)
	}

	files, _, _, err := m.Clear("flask")
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	if files != 1 {
		t.Errorf("files removed = %d, want 1", files)
	}

	if _, ok := m.Get("click-8.1.0-py3-none-any.whl", ""); !ok {
		t.Error("expected unrelated package to remain cached")
	}
}

func TestPruneRemovesStaleTempAndLockFiles(t *testing.T) {
	dir := t.TempDir()

	m, err := cache.New(cache.WithDir(dir))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	path := m.Shard(cache.Wheels, "stale.whl")
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		t.Fatal(mkErr)
	}

	writeFile(t, path+".tmp", []byte("leftover"))
	writeFile(t, path+".lock", []byte(""))

	removed, err := m.Prune()
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}

	if removed < 2 {
		t.Errorf("removed = %d, want >= 2", removed)
	}

	if _, statErr := os.Stat(path + ".tmp"); statErr == nil {
		t.Error("expected .tmp file to be removed")
	}

	if _, statErr := os.Stat(path + ".lock"); statErr == nil {
		t.Error("expected .lock file to be removed")
	}
}
