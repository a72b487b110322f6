package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const taskColumns = `s.tid, s.state, s.start_time, s.pause_time, s.elapsed, s.log, s.percent,
	s.filename, s.tmp_filename, s.downloaded_bytes, s.total_bytes, s.total_bytes_estimate,
	s.speed, s.eta, i.url, i.title, i.format, i.ext, i.thumbnail, i.duration, i.view_count,
	i.like_count, i.dislike_count, i.average_rating, i.description, i.create_time, i.finish_time`

const taskFrom = "task_status s JOIN task_info i ON i.tid = s.tid"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		task          Task
		startRaw      sql.NullString
		pauseRaw      sql.NullString
		logRaw        string
		duration      sql.NullFloat64
		viewCount     sql.NullInt64
		likeCount     sql.NullInt64
		dislikeCount  sql.NullInt64
		averageRating sql.NullFloat64
		createRaw     string
		finishRaw     sql.NullString
	)
	if err := scanner.Scan(
		&task.TID,
		&task.State,
		&startRaw,
		&pauseRaw,
		&task.Elapsed,
		&logRaw,
		&task.Percent,
		&task.Filename,
		&task.TmpFilename,
		&task.DownloadedBytes,
		&task.TotalBytes,
		&task.TotalBytesEstimate,
		&task.Speed,
		&task.ETA,
		&task.URL,
		&task.Title,
		&task.Format,
		&task.Ext,
		&task.Thumbnail,
		&duration,
		&viewCount,
		&likeCount,
		&dislikeCount,
		&averageRating,
		&task.Description,
		&createRaw,
		&finishRaw,
	); err != nil {
		return nil, err
	}

	log, err := decodeLog(logRaw)
	if err != nil {
		return nil, err
	}
	task.Log = log
	task.StartTime = nullTime(startRaw)
	task.PauseTime = nullTime(pauseRaw)
	task.FinishTime = nullTime(finishRaw)
	created, err := parseTimeString(createRaw)
	if err != nil {
		return nil, fmt.Errorf("task %s: bad create_time %q: %w", task.TID, createRaw, err)
	}
	task.CreateTime = created
	task.Duration = nullFloat(duration)
	task.ViewCount = nullInt(viewCount)
	task.LikeCount = nullInt(likeCount)
	task.DislikeCount = nullInt(dislikeCount)
	task.AverageRating = nullFloat(averageRating)
	return &task, nil
}

// statusRow is the slice of task_status that transitions read before writing.
type statusRow struct {
	state     State
	startTime *time.Time
	elapsed   float64
	log       []string
}

// loadStatus reads the status record of tid inside tx. A missing row is
// reported as ErrTaskInexistence.
func loadStatus(ctx context.Context, tx *sql.Tx, tid string) (statusRow, error) {
	var (
		row      statusRow
		startRaw sql.NullString
		logRaw   string
	)
	err := tx.QueryRowContext(ctx,
		"SELECT state, start_time, elapsed, log FROM task_status WHERE tid = ?", tid,
	).Scan(&row.state, &startRaw, &row.elapsed, &logRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return statusRow{}, newError(ErrTaskInexistence, tid, "")
	}
	if err != nil {
		return statusRow{}, fmt.Errorf("load status: %w", err)
	}
	row.startTime = nullTime(startRaw)
	if row.log, err = decodeLog(logRaw); err != nil {
		return statusRow{}, err
	}
	return row, nil
}

// taskExists reports whether any record group holds tid.
func taskExists(ctx context.Context, tx *sql.Tx, tid string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(1) FROM task_status WHERE tid = ?) +
		(SELECT COUNT(1) FROM task_param WHERE tid = ?) +
		(SELECT COUNT(1) FROM task_info WHERE tid = ?) +
		(SELECT COUNT(1) FROM task_opts WHERE tid = ?)`,
		tid, tid, tid, tid,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check task existence: %w", err)
	}
	return count > 0, nil
}

// setGroupState writes state into every record group of tid.
func setGroupState(ctx context.Context, tx *sql.Tx, tid string, state State) error {
	for _, table := range recordTables {
		if _, err := tx.ExecContext(ctx, "UPDATE "+table+" SET state = ? WHERE tid = ?", state, tid); err != nil {
			return fmt.Errorf("update %s state: %w", table, err)
		}
	}
	return nil
}

func encodeLog(lines []string) (string, error) {
	if lines == nil {
		lines = []string{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("encode log: %w", err)
	}
	return string(data), nil
}

func decodeLog(raw string) ([]string, error) {
	lines := []string{}
	if raw == "" {
		return lines, nil
	}
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	return lines, nil
}

// storedTimeLayout is fixed width so that text ordering matches time ordering.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func nullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullFloat(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func nullInt(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	v := value.Int64
	return &v
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
