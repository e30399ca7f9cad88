package cache

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const testRoot = "/var/cache/diskcache"

// fakeClock 提供可手动推进的时钟，用于验证过期边界。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	fs      afero.Fs
	storage Storage
	clock   *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fsys := afero.NewMemMapFs()
	return &testEnv{
		fs:      fsys,
		storage: NewStorage(fsys),
		clock:   newFakeClock(),
	}
}

func (e *testEnv) options(maxAge time.Duration) Options {
	return Options{
		Root:         testRoot,
		MaxAge:       maxAge,
		Silent:       true,
		Storage:      e.storage,
		Now:          e.clock.Now,
		LockTimeout:  2 * time.Second,
		MaxPollDelay: 5 * time.Millisecond,
	}
}

// newTestStore returns a Store backed by an in-memory filesystem and a fake clock.
func newTestStore[T any](t *testing.T, env *testEnv, name string, maxAge time.Duration) *Store[T] {
	t.Helper()
	store, err := New[T](name, env.options(maxAge))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

// writeRawEntry 直接在 store 目录下写入一个条目文件，绕过 Store.Write。
func writeRawEntry(t *testing.T, env *testEnv, dir *StoreDir, ts time.Time, content string) string {
	t.Helper()
	path := filepath.Join(dir.Path(), strconv.FormatInt(ts.UnixMilli(), 10))
	if err := env.fs.MkdirAll(dir.Path(), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := afero.WriteFile(env.fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write entry error: %v", err)
	}
	return path
}

func mustEntries(t *testing.T, dir *StoreDir) []Entry {
	t.Helper()
	entries, err := dir.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries error: %v", err)
	}
	return entries
}

// countingProducer 记录调用次数并依次返回 values 中的值。
type countingProducer[T any] struct {
	mu     sync.Mutex
	calls  int
	values []T
	err    error
}

func (p *countingProducer[T]) produce(context.Context) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	var zero T
	if p.err != nil {
		return zero, p.err
	}
	if len(p.values) == 0 {
		return zero, nil
	}
	idx := p.calls - 1
	if idx >= len(p.values) {
		idx = len(p.values) - 1
	}
	return p.values[idx], nil
}

func (p *countingProducer[T]) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
