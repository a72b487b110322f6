package tasks

import (
	"context"
	"database/sql"
	"fmt"

	"ydlwebui/internal/logging"
)

// StartTask moves tid to downloading, stamps start_time and returns the log
// recorded so far. Starting a task that is already downloading fails with
// ErrTaskRunning unless ignoreState is set.
func (s *Store) StartTask(ctx context.Context, tid string, ignoreState bool) ([]string, error) {
	var previousLog []string
	err := s.mutate(ctx, "start", tid, func(tx *sql.Tx) error {
		status, err := loadStatus(ctx, tx, tid)
		if err != nil {
			return err
		}
		if status.state == StateDownloading && !ignoreState {
			return &Error{Kind: ErrTaskRunning, TID: tid, State: status.state}
		}
		if err := setGroupState(ctx, tx, tid, StateDownloading); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE task_status SET start_time = ? WHERE tid = ?", formatTime(s.timestamp()), tid,
		); err != nil {
			return fmt.Errorf("stamp start_time: %w", err)
		}
		previousLog = status.log
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.transition(StateDownloading)
	s.log(ctx).Info("task started",
		logging.String(logging.FieldTID, tid),
		logging.Bool("ignore_state", ignoreState),
	)
	return previousLog, nil
}

// CancelTask pauses tid, stamps pause_time and adds the interval since
// start_time to elapsed. A non-nil log replaces the stored log in the same
// transaction.
func (s *Store) CancelTask(ctx context.Context, tid string, log []string) error {
	var accrued float64
	err := s.mutate(ctx, "pause", tid, func(tx *sql.Tx) error {
		status, err := loadStatus(ctx, tx, tid)
		if err != nil {
			return err
		}
		if status.state == StatePaused {
			return &Error{Kind: ErrTaskPaused, TID: tid, State: status.state}
		}

		now := s.timestamp()
		elapsed := status.elapsed
		// The interval since the last start counts from any non-paused state;
		// a clock that moved backwards adds nothing.
		if status.startTime != nil && now.After(*status.startTime) {
			accrued = now.Sub(*status.startTime).Seconds()
			elapsed += accrued
		}

		if err := setGroupState(ctx, tx, tid, StatePaused); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE task_status SET pause_time = ?, elapsed = ? WHERE tid = ?",
			formatTime(now), elapsed, tid,
		); err != nil {
			return fmt.Errorf("stamp pause_time: %w", err)
		}
		if log != nil {
			return writeLog(ctx, tx, tid, log)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.transition(StatePaused)
	s.log(ctx).Info("task paused",
		logging.String(logging.FieldTID, tid),
		logging.Float64("accrued_seconds", accrued),
	)
	return nil
}

// SetState forces tid into state regardless of its current state.
func (s *Store) SetState(ctx context.Context, tid string, state State) error {
	if !state.Valid() {
		err := &Error{Kind: ErrInvalidState, TID: tid, Msg: fmt.Sprintf("%s is not a task state", state)}
		s.metrics.observe("set_state", err)
		return err
	}
	err := s.mutate(ctx, "set_state", tid, func(tx *sql.Tx) error {
		exists, err := taskExists(ctx, tx, tid)
		if err != nil {
			return err
		}
		if !exists {
			return newError(ErrTaskInexistence, tid, "")
		}
		return setGroupState(ctx, tx, tid, state)
	})
	if err != nil {
		return err
	}
	s.metrics.transition(state)
	s.log(ctx).Info("task state set",
		logging.String(logging.FieldTID, tid),
		logging.String("state", state.String()),
	)
	return nil
}
