package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"ydlwebui/internal/logging"
)

// ProgressUpdate records a progress event from the fetch engine. The event's
// elapsed seconds are added to the stored total and the live progress fields
// are overwritten. finish_time is stamped on every event.
func (s *Store) ProgressUpdate(ctx context.Context, tid string, event ProgressEvent) error {
	return s.mutate(ctx, "progress", tid, func(tx *sql.Tx) error {
		status, err := loadStatus(ctx, tx, tid)
		if err != nil {
			return err
		}

		elapsed := status.elapsed
		if event.Elapsed > 0 && !math.IsInf(event.Elapsed, 0) {
			elapsed += event.Elapsed
		}
		var total, estimate int64
		switch {
		case event.TotalBytes != nil:
			total = *event.TotalBytes
			estimate = *event.TotalBytes
		case event.TotalBytesEstimate != nil:
			estimate = *event.TotalBytesEstimate
		}

		if _, err := tx.ExecContext(ctx, `UPDATE task_status SET
			elapsed = ?, percent = ?, filename = ?, tmp_filename = ?, downloaded_bytes = ?,
			total_bytes = ?, total_bytes_estimate = ?, speed = ?, eta = ?
			WHERE tid = ?`,
			elapsed, event.Percent, event.Filename, event.TmpFilename, nonNegative(event.DownloadedBytes),
			nonNegative(total), nonNegative(estimate), event.Speed, event.ETA,
			tid,
		); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		// finish_time tracks the latest event, not the transition to finished.
		if _, err := tx.ExecContext(ctx,
			"UPDATE task_info SET finish_time = ? WHERE tid = ?", formatTime(s.timestamp()), tid,
		); err != nil {
			return fmt.Errorf("stamp finish_time: %w", err)
		}
		return nil
	})
}

// UpdateLog replaces the stored log of tid with lines.
func (s *Store) UpdateLog(ctx context.Context, tid string, lines []string) error {
	return s.mutate(ctx, "update_log", tid, func(tx *sql.Tx) error {
		if _, err := loadStatus(ctx, tx, tid); err != nil {
			return err
		}
		return writeLog(ctx, tx, tid, lines)
	})
}

// AppendLog appends lines to the stored log of tid, keeping at most the
// newest max lines when max is positive.
func (s *Store) AppendLog(ctx context.Context, tid string, lines []string, max int) error {
	return s.mutate(ctx, "append_log", tid, func(tx *sql.Tx) error {
		status, err := loadStatus(ctx, tx, tid)
		if err != nil {
			return err
		}
		merged := append(status.log, lines...)
		if max > 0 && len(merged) > max {
			merged = merged[len(merged)-max:]
		}
		return writeLog(ctx, tx, tid, merged)
	})
}

// UpdateFromInfo overwrites the descriptive metadata of tid. Missing like and
// dislike counts are stored as zero.
func (s *Store) UpdateFromInfo(ctx context.Context, tid string, info Info) error {
	err := s.mutate(ctx, "update_info", tid, func(tx *sql.Tx) error {
		exists, err := taskExists(ctx, tx, tid)
		if err != nil {
			return err
		}
		if !exists {
			return newError(ErrTaskInexistence, tid, "")
		}

		var likes, dislikes int64
		if info.LikeCount != nil {
			likes = *info.LikeCount
		}
		if info.DislikeCount != nil {
			dislikes = *info.DislikeCount
		}
		if _, err := tx.ExecContext(ctx, `UPDATE task_info SET
			title = ?, format = ?, ext = ?, thumbnail = ?, duration = ?, view_count = ?,
			like_count = ?, dislike_count = ?, average_rating = ?, description = ?
			WHERE tid = ?`,
			info.Title, info.Format, info.Ext, info.Thumbnail, nullableFloat(info.Duration),
			nullableInt(info.ViewCount), likes, dislikes, nullableFloat(info.AverageRating),
			info.Description, tid,
		); err != nil {
			return fmt.Errorf("update info: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log(ctx).Debug("task info updated",
		logging.String(logging.FieldTID, tid),
		logging.String("title", info.Title),
	)
	return nil
}

func writeLog(ctx context.Context, tx *sql.Tx, tid string, lines []string) error {
	encoded, err := encodeLog(lines)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE task_status SET log = ? WHERE tid = ?", encoded, tid); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
