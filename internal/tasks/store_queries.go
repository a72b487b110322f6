package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// QueryTask returns the joined status and info view of tid.
func (s *Store) QueryTask(ctx context.Context, tid string) (*Task, error) {
	var task *Task
	err := s.run(ctx, "query", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM "+taskFrom+" WHERE s.tid = ?", tid)
		scanned, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return newError(ErrTaskInexistence, tid, "")
		}
		if err != nil {
			return fmt.Errorf("query task: %w", err)
		}
		task = scanned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns the tasks in filter (StateAll for every task) ordered by
// creation time, with per-state counts taken over all tasks.
func (s *Store) ListTasks(ctx context.Context, filter State) ([]*Task, StateCounts, error) {
	if filter != StateAll && !filter.Valid() {
		err := &Error{Kind: ErrInvalidState, Msg: fmt.Sprintf("cannot filter by %s", filter)}
		s.metrics.observe("list", err)
		return nil, nil, err
	}

	var (
		tasks  []*Task
		counts StateCounts
	)
	err := s.run(ctx, "list", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT "+taskColumns+" FROM "+taskFrom+" ORDER BY i.create_time, s.tid")
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		defer rows.Close()

		tasks = nil
		counts = newStateCounts()
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return fmt.Errorf("scan task: %w", err)
			}
			counts[task.State]++
			if filter == StateAll || task.State == filter {
				tasks = append(tasks, task)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}
	return tasks, counts, nil
}

// ListState returns the number of tasks in each canonical state. States with
// no tasks are reported as zero.
func (s *Store) ListState(ctx context.Context) (StateCounts, error) {
	var counts StateCounts
	err := s.run(ctx, "list_state", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT state, COUNT(1) FROM task_status GROUP BY state")
		if err != nil {
			return fmt.Errorf("count states: %w", err)
		}
		defer rows.Close()

		counts = newStateCounts()
		for rows.Next() {
			var (
				state State
				count int
			)
			if err := rows.Scan(&state, &count); err != nil {
				return fmt.Errorf("scan state count: %w", err)
			}
			counts[state] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Unfinished returns the tids of every task that is neither finished nor
// invalid, in insertion order.
func (s *Store) Unfinished(ctx context.Context) ([]string, error) {
	var tids []string
	err := s.run(ctx, "unfinished", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT tid FROM task_status WHERE state NOT IN (?, ?) ORDER BY rowid",
			StateFinished, StateInvalid,
		)
		if err != nil {
			return fmt.Errorf("list unfinished: %w", err)
		}
		defer rows.Close()

		tids = []string{}
		for rows.Next() {
			var tid string
			if err := rows.Scan(&tid); err != nil {
				return fmt.Errorf("scan tid: %w", err)
			}
			tids = append(tids, tid)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tids, nil
}
