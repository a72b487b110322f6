package main

import (
	"errors"
	"fmt"
	"strings"

	"ydlwebui/internal/tasks"
)

// formatCommandError turns repository errors into operator-facing messages.
// Anything that is not a repository error is printed as is.
func formatCommandError(err error) string {
	if err == nil {
		return ""
	}
	var taskErr *tasks.Error
	if !errors.As(err, &taskErr) {
		return err.Error()
	}

	subject := "task"
	if taskErr.TID != "" {
		subject = "task " + taskErr.TID
	}
	var msg string
	switch {
	case errors.Is(err, tasks.ErrTaskExistence):
		msg = fmt.Sprintf("%s already exists", subject)
	case errors.Is(err, tasks.ErrTaskInexistence):
		msg = fmt.Sprintf("%s not found", subject)
	case errors.Is(err, tasks.ErrTaskRunning):
		msg = fmt.Sprintf("%s is already downloading (use --force to restart it)", subject)
	case errors.Is(err, tasks.ErrTaskPaused):
		msg = fmt.Sprintf("%s is already paused", subject)
	case errors.Is(err, tasks.ErrStoreAccess):
		msg = "task store unavailable"
	case errors.Is(err, tasks.ErrInvalidState):
		msg = "invalid state (expected one of " + strings.Join(stateNames(), ", ") + ")"
	default:
		return err.Error()
	}
	if detail := strings.TrimSpace(taskErr.Msg); detail != "" {
		msg += ": " + detail
	}
	if taskErr.Err != nil {
		msg += ": " + taskErr.Err.Error()
	}
	return fmt.Sprintf("%s [%s]", msg, taskErr.ErrorKind())
}

func stateNames() []string {
	states := tasks.CanonicalStates()
	names := make([]string, len(states))
	for i, state := range states {
		names[i] = state.String()
	}
	return names
}
