package tasks

import (
	"errors"
	"strings"
)

var (
	ErrTaskExistence   = errors.New("task already exists")
	ErrTaskInexistence = errors.New("task does not exist")
	ErrTaskRunning     = errors.New("task is already downloading")
	ErrTaskPaused      = errors.New("task is already paused")
	ErrStoreAccess     = errors.New("task store is not usable")
	ErrInvalidState    = errors.New("invalid task state")
	ErrInvalidArgument = errors.New("invalid argument")
)

var errorKinds = map[error]string{
	ErrTaskExistence:   "task_existence",
	ErrTaskInexistence: "task_inexistence",
	ErrTaskRunning:     "task_running",
	ErrTaskPaused:      "task_paused",
	ErrStoreAccess:     "store_access",
	ErrInvalidState:    "invalid_state",
	ErrInvalidArgument: "invalid_argument",
}

// Error describes a rejected repository call. Kind is one of the exported
// sentinel errors above, so callers branch with errors.Is.
type Error struct {
	Kind  error
	TID   string
	State State
	Msg   string
	Err   error
}

func newError(kind error, tid, msg string) *Error {
	return &Error{Kind: kind, TID: tid, Msg: msg}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("task error")
	}
	if e.TID != "" {
		b.WriteString(" tid=")
		b.WriteString(e.TID)
	}
	if e.State.Valid() {
		b.WriteString(" state=")
		b.WriteString(e.State.String())
	}
	if msg := strings.TrimSpace(e.Msg); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ErrorKind returns a stable snake_case label for the error kind, suitable
// for metrics labels and machine-readable CLI output.
func (e *Error) ErrorKind() string {
	if kind, ok := errorKinds[e.Kind]; ok {
		return kind
	}
	return "unknown"
}

// KindOf reports the ErrorKind label of err, or "" when err is not a
// repository error.
func KindOf(err error) string {
	var taskErr *Error
	if errors.As(err, &taskErr) {
		return taskErr.ErrorKind()
	}
	return ""
}
