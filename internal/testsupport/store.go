package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"ydlwebui/internal/config"
	"ydlwebui/internal/tasks"
)

// MustOpenStore opens a tasks.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...tasks.Option) *tasks.Store {
	t.Helper()

	store, err := tasks.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// CreateTask registers a task for url with empty options and returns its tid.
func CreateTask(t testing.TB, store *tasks.Store, url string) string {
	t.Helper()

	tid, err := store.CreateTask(context.Background(), tasks.Params{URL: url}, nil)
	if err != nil {
		t.Fatalf("CreateTask(%q): %v", url, err)
	}
	return tid
}

// Clock is a manually advanced time source for tasks.WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current frozen time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
