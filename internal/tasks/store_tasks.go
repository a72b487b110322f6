package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ydlwebui/internal/logging"
)

// CreateTask registers a new task for params.URL with the given fetch options
// and returns its tid. All four record groups are written together in the
// initial paused state.
func (s *Store) CreateTask(ctx context.Context, params Params, opts Options) (string, error) {
	if strings.TrimSpace(params.URL) == "" {
		err := newError(ErrInvalidArgument, "", "url is required")
		s.metrics.observe("create", err)
		return "", err
	}
	tid := DeriveTID(params.URL)
	if opts == nil {
		opts = Options{}
	}
	optJSON, err := json.Marshal(opts)
	if err != nil {
		err = &Error{Kind: ErrInvalidArgument, TID: tid, Msg: "encode options", Err: err}
		s.metrics.observe("create", err)
		return "", err
	}

	err = s.mutate(ctx, "create", tid, func(tx *sql.Tx) error {
		exists, err := taskExists(ctx, tx, tid)
		if err != nil {
			return err
		}
		if exists {
			return newError(ErrTaskExistence, tid, "")
		}

		created := formatTime(s.timestamp())
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO task_status (tid, state) VALUES (?, ?)", tid, initialState,
		); err != nil {
			return fmt.Errorf("insert task_status: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO task_param (tid, state, url) VALUES (?, ?, ?)", tid, initialState, params.URL,
		); err != nil {
			return fmt.Errorf("insert task_param: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO task_info (tid, state, url, create_time) VALUES (?, ?, ?, ?)",
			tid, initialState, params.URL, created,
		); err != nil {
			return fmt.Errorf("insert task_info: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO task_opts (tid, state, opt) VALUES (?, ?, ?)", tid, initialState, string(optJSON),
		); err != nil {
			return fmt.Errorf("insert task_opts: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.metrics.transition(initialState)
	s.log(ctx).Info("task created",
		logging.String(logging.FieldTID, tid),
		logging.String("url", params.URL),
		logging.String("state", initialState.String()),
	)
	return tid, nil
}

// Param returns the submission parameters of an active task. Finished and
// invalid tasks are reported as missing.
func (s *Store) Param(ctx context.Context, tid string) (Params, error) {
	params := Params{TID: tid}
	err := s.run(ctx, "param", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT url FROM task_param WHERE tid = ? AND state NOT IN (?, ?)",
			tid, StateFinished, StateInvalid,
		).Scan(&params.URL)
		if errors.Is(err, sql.ErrNoRows) {
			return newError(ErrTaskInexistence, tid, "no active task")
		}
		if err != nil {
			return fmt.Errorf("get param: %w", err)
		}
		return nil
	})
	if err != nil {
		return Params{}, err
	}
	return params, nil
}

// Opts returns the fetch options of an active task, with the same terminal
// exclusion as Param.
func (s *Store) Opts(ctx context.Context, tid string) (Options, error) {
	var opts Options
	err := s.run(ctx, "opts", func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			"SELECT opt FROM task_opts WHERE tid = ? AND state NOT IN (?, ?)",
			tid, StateFinished, StateInvalid,
		).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return newError(ErrTaskInexistence, tid, "no active task")
		}
		if err != nil {
			return fmt.Errorf("get opts: %w", err)
		}
		opts = Options{}
		if raw == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return fmt.Errorf("decode opts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opts, nil
}

// DeleteTask removes every record group of tid.
func (s *Store) DeleteTask(ctx context.Context, tid string) error {
	err := s.mutate(ctx, "delete", tid, func(tx *sql.Tx) error {
		exists, err := taskExists(ctx, tx, tid)
		if err != nil {
			return err
		}
		if !exists {
			return newError(ErrTaskInexistence, tid, "")
		}
		for _, table := range recordTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE tid = ?", tid); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log(ctx).Info("task deleted", logging.String(logging.FieldTID, tid))
	return nil
}

// Purge deletes every task currently in state and returns how many were
// removed. The wildcard is rejected.
func (s *Store) Purge(ctx context.Context, state State) (int64, error) {
	if !state.Valid() {
		err := &Error{Kind: ErrInvalidState, Msg: fmt.Sprintf("cannot purge %s", state)}
		s.metrics.observe("purge", err)
		return 0, err
	}
	var removed int64
	err := s.run(ctx, "purge", func(tx *sql.Tx) error {
		removed = 0
		for _, table := range recordTables {
			result, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE tid IN (SELECT tid FROM task_status WHERE state = ?)", state,
			)
			if err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
			if table == "task_status" {
				if removed, err = result.RowsAffected(); err != nil {
					return fmt.Errorf("purge rows affected: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log(ctx).Info("tasks purged",
			logging.String("state", state.String()),
			logging.Int64("removed", removed),
		)
	}
	return removed, nil
}
