package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 10 * time.Millisecond

// tidLocks hands out advisory file locks so that processes sharing one
// database never interleave writes to the same task. A nil *tidLocks is a
// no-op.
type tidLocks struct {
	dir        string
	timeout    time.Duration
	retryDelay time.Duration
}

func (l *tidLocks) path(tid string) string {
	return filepath.Join(l.dir, tid+".lock")
}

// lock blocks until the task lock is held, ctx ends, or the timeout elapses.
// Lock files are left on disk after release.
func (l *tidLocks) lock(ctx context.Context, tid string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, &Error{Kind: ErrStoreAccess, TID: tid, Msg: "create lock directory", Err: err}
	}

	lockCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	fl := flock.New(l.path(tid))
	ok, err := fl.TryLockContext(lockCtx, l.retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire lock for task %s: timed out after %s", tid, l.timeout)
		}
		return nil, fmt.Errorf("acquire lock for task %s: %w", tid, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock for task %s: lock not obtained", tid)
	}
	return func() { _ = fl.Unlock() }, nil
}
