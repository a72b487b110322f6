package tasks

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle state of a task. It is persisted as its integer code.
type State int

const (
	// StateAll is the listing wildcard. It is never persisted.
	StateAll State = iota
	StateDownloading
	StatePaused
	StateFinished
	StateInvalid
)

// initialState is assigned by CreateTask; tasks stay idle until started.
const initialState = StatePaused

var stateNames = [...]string{
	StateAll:         "all",
	StateDownloading: "downloading",
	StatePaused:      "paused",
	StateFinished:    "finished",
	StateInvalid:     "invalid",
}

var canonicalStates = []State{
	StateDownloading,
	StatePaused,
	StateFinished,
	StateInvalid,
}

// CanonicalStates returns the persistable states in display order.
func CanonicalStates() []State {
	cp := make([]State, len(canonicalStates))
	copy(cp, canonicalStates)
	return cp
}

// ParseState converts a state name (including the "all" wildcard) into a State.
func ParseState(value string) (State, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return 0, false
	}
	for code, name := range stateNames {
		if name == normalized {
			return State(code), true
		}
	}
	return 0, false
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Valid reports whether s is one of the four persistable states.
func (s State) Valid() bool {
	return s >= StateDownloading && s <= StateInvalid
}

// IsTerminal reports whether the dispatcher should ignore tasks in this state.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateInvalid
}

func (s State) MarshalText() ([]byte, error) {
	if s != StateAll && !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidState, int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, ok := ParseState(string(text))
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidState, string(text))
	}
	*s = parsed
	return nil
}

// Value stores the state as its integer code.
func (s State) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d is not a persistable state", ErrInvalidState, int(s))
	}
	return int64(s), nil
}

// Scan reads a persisted integer code and rejects codes outside the enum.
func (s *State) Scan(src any) error {
	var code int64
	switch v := src.(type) {
	case int64:
		code = v
	case int:
		code = int64(v)
	case float64:
		code = int64(v)
	case nil:
		return fmt.Errorf("%w: NULL", ErrInvalidState)
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrInvalidState, src)
	}
	state := State(code)
	if !state.Valid() {
		return fmt.Errorf("%w: stored code %d", ErrInvalidState, code)
	}
	*s = state
	return nil
}

// StateCounts maps each canonical state to the number of tasks in it.
type StateCounts map[State]int

func newStateCounts() StateCounts {
	counts := make(StateCounts, len(canonicalStates))
	for _, state := range canonicalStates {
		counts[state] = 0
	}
	return counts
}

// Total returns the number of tasks across all states.
func (c StateCounts) Total() int {
	total := 0
	for _, count := range c {
		total += count
	}
	return total
}

// Params are the submission parameters of a task.
type Params struct {
	TID string `json:"tid"`
	URL string `json:"url"`
}

// Options is the fetch-engine configuration captured for a task.
type Options map[string]any

// ProgressEvent is emitted by the fetch engine while a download runs.
// TotalBytes is nil when the engine only knows an estimate.
type ProgressEvent struct {
	Percent            string  `json:"percent"`
	Filename           string  `json:"filename"`
	TmpFilename        string  `json:"tmp_filename"`
	DownloadedBytes    int64   `json:"downloaded_bytes"`
	TotalBytes         *int64  `json:"total_bytes,omitempty"`
	TotalBytesEstimate *int64  `json:"total_bytes_estimate,omitempty"`
	Speed              string  `json:"speed"`
	ETA                string  `json:"eta"`
	Elapsed            float64 `json:"elapsed"`
}

// Info is the descriptive metadata reported once extraction completes.
type Info struct {
	Title         string   `json:"title"`
	Format        string   `json:"format"`
	Ext           string   `json:"ext"`
	Thumbnail     string   `json:"thumbnail"`
	Duration      *float64 `json:"duration"`
	ViewCount     *int64   `json:"view_count"`
	LikeCount     *int64   `json:"like_count"`
	DislikeCount  *int64   `json:"dislike_count"`
	AverageRating *float64 `json:"average_rating"`
	Description   string   `json:"description"`
}

// Task is the joined status and info view of a task.
type Task struct {
	TID                string     `json:"tid"`
	URL                string     `json:"url"`
	State              State      `json:"state"`
	StartTime          *time.Time `json:"start_time"`
	PauseTime          *time.Time `json:"pause_time"`
	Elapsed            float64    `json:"elapsed"`
	Log                []string   `json:"log"`
	Percent            string     `json:"percent"`
	Filename           string     `json:"filename"`
	TmpFilename        string     `json:"tmp_filename"`
	DownloadedBytes    int64      `json:"downloaded_bytes"`
	TotalBytes         int64      `json:"total_bytes"`
	TotalBytesEstimate int64      `json:"total_bytes_estimate"`
	Speed              string     `json:"speed"`
	ETA                string     `json:"eta"`
	Info
	CreateTime time.Time  `json:"create_time"`
	FinishTime *time.Time `json:"finish_time"`
}

// DatabaseHealth captures diagnostic information about the task database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalTasks       int
	OrphanRecords    int
	Error            string
}
