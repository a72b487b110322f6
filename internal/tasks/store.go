package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	_ "modernc.org/sqlite"

	"ydlwebui/internal/config"
	"ydlwebui/internal/logging"
)

// Store manages task persistence backed by SQLite. A single Store is shared
// by every caller; each public method runs as one transaction.
type Store struct {
	db          *sql.DB
	path        string
	logger      *slog.Logger
	metrics     *Metrics
	locks       *tidLocks
	now         func() time.Time
	busyTimeout time.Duration
}

// Option customizes a Store at open time.
type Option func(*Store)

// WithLogger routes store logs through logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "tasks")
		}
	}
}

// WithMetrics records operation outcomes and transitions into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for start, pause, create and
// finish timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLockDir enables per-task advisory file locks under dir. An empty dir
// disables them.
func WithLockDir(dir string, timeout time.Duration) Option {
	return func(s *Store) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			s.locks = nil
			return
		}
		s.locks = &tidLocks{dir: dir, timeout: timeout, retryDelay: lockRetryDelay}
	}
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.busyTimeout = timeout
		}
	}
}

const (
	defaultBusyTimeout      = 5 * time.Second
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open opens the task database named by the configuration.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	base := []Option{
		WithBusyTimeout(time.Duration(cfg.Store.BusyTimeoutMS) * time.Millisecond),
		WithLockDir(cfg.Paths.LockDir, time.Duration(cfg.Store.LockTimeoutSeconds)*time.Second),
	}
	return OpenPath(cfg.Paths.DBPath, append(base, opts...)...)
}

// OpenPath opens the task database at path, creating and initializing it on
// first use. An existing path must be a writable regular file.
func OpenPath(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, newError(ErrStoreAccess, "", "store path is empty")
	}
	if err := checkStorePath(path); err != nil {
		return nil, err
	}

	store := &Store{
		path:        path,
		logger:      logging.NewComponentLogger(logging.NewNop(), "tasks"),
		now:         time.Now,
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", store.busyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store.db = db
	if err := store.prepareSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func checkStorePath(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			return newError(ErrStoreAccess, "", fmt.Sprintf("%s is not a regular file", path))
		}
		if err := unix.Access(path, unix.W_OK); err != nil {
			return &Error{Kind: ErrStoreAccess, Msg: fmt.Sprintf("%s is not writable", path), Err: err}
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Kind: ErrStoreAccess, Msg: fmt.Sprintf("cannot create directory %s", dir), Err: err}
		}
		if err := unix.Access(dir, unix.W_OK); err != nil {
			return &Error{Kind: ErrStoreAccess, Msg: fmt.Sprintf("directory %s is not writable", dir), Err: err}
		}
		return nil
	default:
		return &Error{Kind: ErrStoreAccess, Msg: fmt.Sprintf("cannot stat %s", path), Err: err}
	}
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// withTx runs fn inside one transaction, rolling back on any error and
// retrying the whole transaction when SQLite reports contention.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// mutate serializes a write against other writers of the same task, runs it
// as one transaction and records the outcome.
func (s *Store) mutate(ctx context.Context, operation, tid string, fn func(*sql.Tx) error) error {
	ctx = ensureContext(ctx)
	err := func() error {
		if !IsTID(tid) {
			return newError(ErrTaskInexistence, tid, "malformed task id")
		}
		unlock, err := s.locks.lock(ctx, tid)
		if err != nil {
			return err
		}
		defer unlock()
		return s.withTx(ctx, fn)
	}()
	s.metrics.observe(operation, err)
	if err != nil {
		s.log(ctx).Debug("task operation rejected",
			logging.String("operation", operation),
			logging.String(logging.FieldTID, tid),
			logging.String("kind", KindOf(err)),
			logging.Error(err),
		)
	}
	return err
}

// run executes a call that needs no per-task lock as one transaction and
// records the outcome.
func (s *Store) run(ctx context.Context, operation string, fn func(*sql.Tx) error) error {
	err := s.withTx(ensureContext(ctx), fn)
	s.metrics.observe(operation, err)
	return err
}

func (s *Store) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}
