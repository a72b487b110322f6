package tasks_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"ydlwebui/internal/config"
	"ydlwebui/internal/tasks"
	"ydlwebui/internal/testsupport"
)

func newStore(t *testing.T, opts ...tasks.Option) *tasks.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return testsupport.MustOpenStore(t, cfg, opts...)
}

func newClockedStore(t *testing.T) (*tasks.Store, *testsupport.Clock) {
	t.Helper()
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return newStore(t, tasks.WithClock(clock.Now)), clock
}

func mustQuery(t *testing.T, store *tasks.Store, tid string) *tasks.Task {
	t.Helper()
	task, err := store.QueryTask(context.Background(), tid)
	if err != nil {
		t.Fatalf("QueryTask(%s): %v", tid, err)
	}
	return task
}

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }

func TestCreateTaskPersistsInitialState(t *testing.T) {
	store, clock := newClockedStore(t)
	ctx := context.Background()

	opts := tasks.Options{"format": "best", "proxy": "socks5://localhost:1080"}
	tid, err := store.CreateTask(ctx, tasks.Params{URL: "https://example.com/watch?v=1"}, opts)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if tid != tasks.DeriveTID("https://example.com/watch?v=1") {
		t.Fatalf("tid should derive from url, got %s", tid)
	}

	task := mustQuery(t, store, tid)
	if task.State != tasks.StatePaused {
		t.Fatalf("expected new task to be paused, got %s", task.State)
	}
	if task.URL != "https://example.com/watch?v=1" {
		t.Fatalf("unexpected url %q", task.URL)
	}
	if !task.CreateTime.Equal(clock.Now()) {
		t.Fatalf("expected create_time %s, got %s", clock.Now(), task.CreateTime)
	}
	if task.StartTime != nil || task.PauseTime != nil || task.FinishTime != nil {
		t.Fatalf("expected no timing fields, got %+v", task)
	}
	if len(task.Log) != 0 || task.Elapsed != 0 {
		t.Fatalf("expected empty log and elapsed, got %v / %v", task.Log, task.Elapsed)
	}

	params, err := store.Param(ctx, tid)
	if err != nil {
		t.Fatalf("Param: %v", err)
	}
	if params.TID != tid || params.URL != "https://example.com/watch?v=1" {
		t.Fatalf("unexpected params %+v", params)
	}
	gotOpts, err := store.Opts(ctx, tid)
	if err != nil {
		t.Fatalf("Opts: %v", err)
	}
	if !reflect.DeepEqual(map[string]any(gotOpts), map[string]any(opts)) {
		t.Fatalf("options round trip mismatch: got %v want %v", gotOpts, opts)
	}
}

func TestCreateTaskRejectsDuplicatesAndKeepsFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tid, err := store.CreateTask(ctx, tasks.Params{URL: "http://x/dup"}, tasks.Options{"format": "first"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := store.StartTask(ctx, tid, false); err != nil {
		t.Fatalf("StartTask: %v", err)
	}

	_, err = store.CreateTask(ctx, tasks.Params{URL: "http://x/dup"}, tasks.Options{"format": "second"})
	if !errors.Is(err, tasks.ErrTaskExistence) {
		t.Fatalf("expected ErrTaskExistence, got %v", err)
	}
	if kind := tasks.KindOf(err); kind != "task_existence" {
		t.Fatalf("unexpected kind %q", kind)
	}

	task := mustQuery(t, store, tid)
	if task.State != tasks.StateDownloading {
		t.Fatalf("duplicate create must not reset state, got %s", task.State)
	}
	opts, err := store.Opts(ctx, tid)
	if err != nil {
		t.Fatalf("Opts: %v", err)
	}
	if opts["format"] != "first" {
		t.Fatalf("duplicate create must not overwrite options, got %v", opts)
	}
}

func TestCreateTaskRequiresURL(t *testing.T) {
	store := newStore(t)
	_, err := store.CreateTask(context.Background(), tasks.Params{URL: "   "}, nil)
	if !errors.Is(err, tasks.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestStartTaskGuardsRunningTasks(t *testing.T) {
	store, clock := newClockedStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/run")

	if err := store.UpdateLog(ctx, tid, []string{"queued"}); err != nil {
		t.Fatalf("UpdateLog: %v", err)
	}
	previous, err := store.StartTask(ctx, tid, false)
	if err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if !reflect.DeepEqual(previous, []string{"queued"}) {
		t.Fatalf("expected previous log, got %v", previous)
	}
	firstStart := mustQuery(t, store, tid).StartTime

	_, err = store.StartTask(ctx, tid, false)
	if !errors.Is(err, tasks.ErrTaskRunning) {
		t.Fatalf("expected ErrTaskRunning, got %v", err)
	}
	var taskErr *tasks.Error
	if !errors.As(err, &taskErr) || taskErr.TID != tid || taskErr.State != tasks.StateDownloading {
		t.Fatalf("expected structured error, got %#v", err)
	}
	if got := mustQuery(t, store, tid).StartTime; !got.Equal(*firstStart) {
		t.Fatalf("rejected start must not touch start_time")
	}

	clock.Advance(30 * time.Second)
	if _, err := store.StartTask(ctx, tid, true); err != nil {
		t.Fatalf("StartTask with ignoreState: %v", err)
	}
	task := mustQuery(t, store, tid)
	if task.State != tasks.StateDownloading {
		t.Fatalf("expected downloading, got %s", task.State)
	}
	if !task.StartTime.Equal(clock.Now()) {
		t.Fatalf("override should reset start_time to %s, got %s", clock.Now(), task.StartTime)
	}
}

func TestStartTaskFromTerminalStates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, state := range []tasks.State{tasks.StateFinished, tasks.StateInvalid} {
		tid := testsupport.CreateTask(t, store, "http://x/"+state.String())
		if err := store.SetState(ctx, tid, state); err != nil {
			t.Fatalf("SetState(%s): %v", state, err)
		}
		if _, err := store.StartTask(ctx, tid, false); err != nil {
			t.Fatalf("StartTask from %s: %v", state, err)
		}
		if got := mustQuery(t, store, tid).State; got != tasks.StateDownloading {
			t.Fatalf("expected downloading after start from %s, got %s", state, got)
		}
	}
}

func TestCancelTaskGuardsPausedTasks(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/pause")

	err := store.CancelTask(ctx, tid, nil)
	if !errors.Is(err, tasks.ErrTaskPaused) {
		t.Fatalf("expected ErrTaskPaused for a new task, got %v", err)
	}
	if task := mustQuery(t, store, tid); task.PauseTime != nil {
		t.Fatal("rejected pause must not stamp pause_time")
	}
}

func TestCancelTaskOverwritesLogWhenGiven(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/log")

	if err := store.UpdateLog(ctx, tid, []string{"a"}); err != nil {
		t.Fatalf("UpdateLog: %v", err)
	}
	if _, err := store.StartTask(ctx, tid, false); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if err := store.CancelTask(ctx, tid, nil); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if got := mustQuery(t, store, tid).Log; !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("nil log must leave log untouched, got %v", got)
	}

	if _, err := store.StartTask(ctx, tid, false); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if err := store.CancelTask(ctx, tid, []string{"a", "b", "stopped"}); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	task := mustQuery(t, store, tid)
	if !reflect.DeepEqual(task.Log, []string{"a", "b", "stopped"}) {
		t.Fatalf("expected overwritten log, got %v", task.Log)
	}
	if task.State != tasks.StatePaused || task.PauseTime == nil {
		t.Fatalf("expected paused with pause_time, got %+v", task)
	}
}

func TestElapsedAccumulatesAcrossIntervals(t *testing.T) {
	store, clock := newClockedStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/elapsed")

	if _, err := store.StartTask(ctx, tid, false); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	clock.Advance(10 * time.Second)
	if err := store.CancelTask(ctx, tid, nil); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if got := mustQuery(t, store, tid).Elapsed; got != 10 {
		t.Fatalf("expected 10s after first interval, got %v", got)
	}

	clock.Advance(100 * time.Second)
	if _, err := store.StartTask(ctx, tid, false); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	clock.Advance(5 * time.Second)
	if err := store.CancelTask(ctx, tid, nil); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	task := mustQuery(t, store, tid)
	if task.Elapsed != 15 {
		t.Fatalf("expected (t1-t0)+(t3-t2) = 15s, got %v", task.Elapsed)
	}
	if !task.PauseTime.Equal(clock.Now()) {
		t.Fatalf("expected pause_time %s, got %s", clock.Now(), task.PauseTime)
	}
}

func TestCancelAfterOverrideCountsRunningTime(t *testing.T) {
	for _, override := range []tasks.State{tasks.StateFinished, tasks.StateInvalid} {
		t.Run(override.String(), func(t *testing.T) {
			store, clock := newClockedStore(t)
			ctx := context.Background()
			tid := testsupport.CreateTask(t, store, "http://x/override-"+override.String())

			if _, err := store.StartTask(ctx, tid, false); err != nil {
				t.Fatalf("StartTask: %v", err)
			}
			clock.Advance(10 * time.Second)
			if err := store.SetState(ctx, tid, override); err != nil {
				t.Fatalf("SetState: %v", err)
			}
			if err := store.CancelTask(ctx, tid, nil); err != nil {
				t.Fatalf("CancelTask from %s: %v", override, err)
			}
			task := mustQuery(t, store, tid)
			if task.State != tasks.StatePaused {
				t.Fatalf("expected paused, got %s", task.State)
			}
			if task.Elapsed != 10 {
				t.Fatalf("expected now-start_time = 10s to accrue, got %v", task.Elapsed)
			}
		})
	}
}

func TestElapsedIgnoresBackwardsClock(t *testing.T) {
	store, clock := newClockedStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/skew")

	if _, err := store.StartTask(ctx, tid, false); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	clock.Advance(-time.Minute)
	if err := store.CancelTask(ctx, tid, nil); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if got := mustQuery(t, store, tid).Elapsed; got != 0 {
		t.Fatalf("elapsed must never decrease, got %v", got)
	}
}

func TestSetStateValidation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/state")

	for _, bad := range []tasks.State{tasks.StateAll, tasks.State(9), tasks.State(-1)} {
		if err := store.SetState(ctx, tid, bad); !errors.Is(err, tasks.ErrInvalidState) {
			t.Fatalf("SetState(%d): expected ErrInvalidState, got %v", int(bad), err)
		}
	}
	if got := mustQuery(t, store, tid).State; got != tasks.StatePaused {
		t.Fatalf("rejected set_state changed state to %s", got)
	}

	missing := tasks.DeriveTID("http://x/missing")
	if err := store.SetState(ctx, missing, tasks.StateFinished); !errors.Is(err, tasks.ErrTaskInexistence) {
		t.Fatalf("expected ErrTaskInexistence, got %v", err)
	}

	for _, state := range tasks.CanonicalStates() {
		if err := store.SetState(ctx, tid, state); err != nil {
			t.Fatalf("SetState(%s): %v", state, err)
		}
		if got := mustQuery(t, store, tid).State; got != state {
			t.Fatalf("expected %s, got %s", state, got)
		}
	}
}

func TestDeleteTask(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/delete")

	if err := store.DeleteTask(ctx, tid); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := store.QueryTask(ctx, tid); !errors.Is(err, tasks.ErrTaskInexistence) {
		t.Fatalf("expected ErrTaskInexistence after delete, got %v", err)
	}
	if err := store.DeleteTask(ctx, tid); !errors.Is(err, tasks.ErrTaskInexistence) {
		t.Fatalf("second delete should fail with ErrTaskInexistence, got %v", err)
	}

	// The same url can be submitted again once deleted.
	if again := testsupport.CreateTask(t, store, "http://x/delete"); again != tid {
		t.Fatalf("recreated task should reuse tid, got %s", again)
	}
}

func TestMalformedTIDIsInexistent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, tid := range []string{"", "../../etc/passwd", "ABCDEF", tasks.DeriveTID("x")[:39]} {
		if _, err := store.StartTask(ctx, tid, false); !errors.Is(err, tasks.ErrTaskInexistence) {
			t.Fatalf("StartTask(%q): expected ErrTaskInexistence, got %v", tid, err)
		}
		if _, err := store.QueryTask(ctx, tid); !errors.Is(err, tasks.ErrTaskInexistence) {
			t.Fatalf("QueryTask(%q): expected ErrTaskInexistence, got %v", tid, err)
		}
	}
}

func TestTerminalTasksHiddenFromDispatcherLookups(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, state := range []tasks.State{tasks.StateFinished, tasks.StateInvalid} {
		tid := testsupport.CreateTask(t, store, "http://x/terminal-"+state.String())
		if err := store.SetState(ctx, tid, state); err != nil {
			t.Fatalf("SetState: %v", err)
		}
		if _, err := store.Param(ctx, tid); !errors.Is(err, tasks.ErrTaskInexistence) {
			t.Fatalf("Param on %s task: expected ErrTaskInexistence, got %v", state, err)
		}
		if _, err := store.Opts(ctx, tid); !errors.Is(err, tasks.ErrTaskInexistence) {
			t.Fatalf("Opts on %s task: expected ErrTaskInexistence, got %v", state, err)
		}
		if _, err := store.QueryTask(ctx, tid); err != nil {
			t.Fatalf("QueryTask should still see %s task: %v", state, err)
		}
	}
}

func TestProgressUpdate(t *testing.T) {
	store, clock := newClockedStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/progress")

	event := tasks.ProgressEvent{
		Percent:         "42.0%",
		Filename:        "video.mp4",
		TmpFilename:     "video.mp4.part",
		DownloadedBytes: 4200,
		TotalBytes:      int64Ptr(10000),
		Speed:           "1.2MiB/s",
		ETA:             "00:05",
		Elapsed:         2.5,
	}
	if err := store.ProgressUpdate(ctx, tid, event); err != nil {
		t.Fatalf("ProgressUpdate: %v", err)
	}
	task := mustQuery(t, store, tid)
	if task.Percent != "42.0%" || task.Filename != "video.mp4" || task.TmpFilename != "video.mp4.part" {
		t.Fatalf("progress strings not stored: %+v", task)
	}
	if task.DownloadedBytes != 4200 || task.TotalBytes != 10000 || task.TotalBytesEstimate != 10000 {
		t.Fatalf("unexpected byte counters: %d/%d/%d", task.DownloadedBytes, task.TotalBytes, task.TotalBytesEstimate)
	}
	if task.Speed != "1.2MiB/s" || task.ETA != "00:05" {
		t.Fatalf("unexpected speed/eta: %q %q", task.Speed, task.ETA)
	}
	if task.Elapsed != 2.5 {
		t.Fatalf("expected elapsed 2.5, got %v", task.Elapsed)
	}
	if task.FinishTime == nil || !task.FinishTime.Equal(clock.Now()) {
		t.Fatalf("expected finish_time stamped at %s, got %v", clock.Now(), task.FinishTime)
	}

	clock.Advance(time.Second)
	estimateOnly := tasks.ProgressEvent{
		Percent:            "50.0%",
		DownloadedBytes:    5000,
		TotalBytesEstimate: int64Ptr(12000),
		Elapsed:            1.5,
	}
	if err := store.ProgressUpdate(ctx, tid, estimateOnly); err != nil {
		t.Fatalf("ProgressUpdate: %v", err)
	}
	task = mustQuery(t, store, tid)
	if task.TotalBytes != 0 {
		t.Fatalf("missing total_bytes should default to 0, got %d", task.TotalBytes)
	}
	if task.TotalBytesEstimate != 12000 {
		t.Fatalf("expected estimate from event, got %d", task.TotalBytesEstimate)
	}
	if task.Elapsed != 4 {
		t.Fatalf("expected elapsed 4, got %v", task.Elapsed)
	}
	if !task.FinishTime.Equal(clock.Now()) {
		t.Fatalf("finish_time should follow every event")
	}
}

func TestProgressUpdateClampsBadValues(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/clamp")

	if err := store.ProgressUpdate(ctx, tid, tasks.ProgressEvent{Elapsed: 3}); err != nil {
		t.Fatalf("ProgressUpdate: %v", err)
	}
	bad := tasks.ProgressEvent{
		DownloadedBytes: -10,
		TotalBytes:      int64Ptr(-1),
		Elapsed:         -7,
	}
	if err := store.ProgressUpdate(ctx, tid, bad); err != nil {
		t.Fatalf("ProgressUpdate: %v", err)
	}
	if err := store.ProgressUpdate(ctx, tid, tasks.ProgressEvent{Elapsed: math.NaN()}); err != nil {
		t.Fatalf("ProgressUpdate: %v", err)
	}
	task := mustQuery(t, store, tid)
	if task.Elapsed != 3 {
		t.Fatalf("negative or NaN elapsed must not reduce the total, got %v", task.Elapsed)
	}
	if task.DownloadedBytes != 0 || task.TotalBytes != 0 || task.TotalBytesEstimate != 0 {
		t.Fatalf("byte counters must be clamped, got %+v", task)
	}
}

func TestWorkerUpdatesRequireTask(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	missing := tasks.DeriveTID("http://x/nobody")

	if err := store.ProgressUpdate(ctx, missing, tasks.ProgressEvent{}); !errors.Is(err, tasks.ErrTaskInexistence) {
		t.Fatalf("ProgressUpdate: expected ErrTaskInexistence, got %v", err)
	}
	if err := store.UpdateLog(ctx, missing, []string{"x"}); !errors.Is(err, tasks.ErrTaskInexistence) {
		t.Fatalf("UpdateLog: expected ErrTaskInexistence, got %v", err)
	}
	if err := store.AppendLog(ctx, missing, []string{"x"}, 10); !errors.Is(err, tasks.ErrTaskInexistence) {
		t.Fatalf("AppendLog: expected ErrTaskInexistence, got %v", err)
	}
	if err := store.UpdateFromInfo(ctx, missing, tasks.Info{Title: "ghost"}); !errors.Is(err, tasks.ErrTaskInexistence) {
		t.Fatalf("UpdateFromInfo: expected ErrTaskInexistence, got %v", err)
	}
	if err := store.CancelTask(ctx, missing, nil); !errors.Is(err, tasks.ErrTaskInexistence) {
		t.Fatalf("CancelTask: expected ErrTaskInexistence, got %v", err)
	}
}

func TestUpdateLogReplacesAndAppendLogTrims(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/logs")

	if err := store.UpdateLog(ctx, tid, []string{"one", "two"}); err != nil {
		t.Fatalf("UpdateLog: %v", err)
	}
	if err := store.UpdateLog(ctx, tid, []string{"three"}); err != nil {
		t.Fatalf("UpdateLog: %v", err)
	}
	if got := mustQuery(t, store, tid).Log; !reflect.DeepEqual(got, []string{"three"}) {
		t.Fatalf("UpdateLog should overwrite, got %v", got)
	}

	if err := store.AppendLog(ctx, tid, []string{"four", "five", "six"}, 3); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if got := mustQuery(t, store, tid).Log; !reflect.DeepEqual(got, []string{"four", "five", "six"}) {
		t.Fatalf("AppendLog should keep the newest lines, got %v", got)
	}
	if err := store.AppendLog(ctx, tid, []string{"seven"}, 0); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if got := mustQuery(t, store, tid).Log; len(got) != 4 {
		t.Fatalf("max <= 0 should not trim, got %v", got)
	}

	if err := store.UpdateLog(ctx, tid, nil); err != nil {
		t.Fatalf("UpdateLog(nil): %v", err)
	}
	if got := mustQuery(t, store, tid).Log; got == nil || len(got) != 0 {
		t.Fatalf("nil log should be stored as empty, got %#v", got)
	}
}

func TestUpdateFromInfoRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/info")

	info := tasks.Info{
		Title:         "A talk",
		Format:        "22 - 1280x720",
		Ext:           "mp4",
		Thumbnail:     "https://img.example/1.jpg",
		Duration:      float64Ptr(321.5),
		ViewCount:     int64Ptr(1000),
		LikeCount:     nil,
		DislikeCount:  nil,
		AverageRating: float64Ptr(4.5),
		Description:   "line one\nline two",
	}
	if err := store.UpdateFromInfo(ctx, tid, info); err != nil {
		t.Fatalf("UpdateFromInfo: %v", err)
	}

	want := info
	want.LikeCount = int64Ptr(0)
	want.DislikeCount = int64Ptr(0)
	if got := mustQuery(t, store, tid).Info; !reflect.DeepEqual(got, want) {
		t.Fatalf("info round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	info.LikeCount = int64Ptr(7)
	info.ViewCount = nil
	if err := store.UpdateFromInfo(ctx, tid, info); err != nil {
		t.Fatalf("UpdateFromInfo: %v", err)
	}
	got := mustQuery(t, store, tid).Info
	if got.LikeCount == nil || *got.LikeCount != 7 {
		t.Fatalf("expected like_count 7, got %v", got.LikeCount)
	}
	if got.ViewCount != nil {
		t.Fatalf("expected view_count cleared, got %v", *got.ViewCount)
	}
}

func TestListTasksAndCounts(t *testing.T) {
	store, clock := newClockedStore(t)
	ctx := context.Background()

	urls := []string{"http://x/a", "http://x/b", "http://x/c", "http://x/d", "http://x/e"}
	tids := make([]string, len(urls))
	for i, url := range urls {
		tids[i] = testsupport.CreateTask(t, store, url)
		clock.Advance(time.Second)
	}
	if _, err := store.StartTask(ctx, tids[0], false); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if err := store.SetState(ctx, tids[1], tasks.StateFinished); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := store.SetState(ctx, tids[2], tasks.StateFinished); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := store.SetState(ctx, tids[3], tasks.StateInvalid); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	want := tasks.StateCounts{
		tasks.StateDownloading: 1,
		tasks.StatePaused:      1,
		tasks.StateFinished:    2,
		tasks.StateInvalid:     1,
	}

	all, counts, err := store.ListTasks(ctx, tasks.StateAll)
	if err != nil {
		t.Fatalf("ListTasks(all): %v", err)
	}
	if len(all) != len(urls) {
		t.Fatalf("expected %d tasks, got %d", len(urls), len(all))
	}
	for i, task := range all {
		if task.TID != tids[i] {
			t.Fatalf("expected creation order, position %d has %s", i, task.TID)
		}
	}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("unexpected counts %v", counts)
	}

	finished, counts, err := store.ListTasks(ctx, tasks.StateFinished)
	if err != nil {
		t.Fatalf("ListTasks(finished): %v", err)
	}
	if len(finished) != 2 || finished[0].TID != tids[1] || finished[1].TID != tids[2] {
		t.Fatalf("unexpected finished listing %v", finished)
	}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("counts must cover the unfiltered set, got %v", counts)
	}

	stateCounts, err := store.ListState(ctx)
	if err != nil {
		t.Fatalf("ListState: %v", err)
	}
	if !reflect.DeepEqual(stateCounts, want) {
		t.Fatalf("ListState mismatch: %v", stateCounts)
	}
	if stateCounts.Total() != len(urls) {
		t.Fatalf("counts should sum to task total, got %d", stateCounts.Total())
	}

	if _, _, err := store.ListTasks(ctx, tasks.State(42)); !errors.Is(err, tasks.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for unknown filter, got %v", err)
	}
}

func TestListStateOnEmptyStore(t *testing.T) {
	store := newStore(t)
	counts, err := store.ListState(context.Background())
	if err != nil {
		t.Fatalf("ListState: %v", err)
	}
	for _, state := range tasks.CanonicalStates() {
		value, ok := counts[state]
		if !ok || value != 0 {
			t.Fatalf("expected zero entry for %s, got %v (present=%v)", state, value, ok)
		}
	}
	tasksList, _, err := store.ListTasks(context.Background(), tasks.StateAll)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasksList) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasksList))
	}
}

func TestUnfinished(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	paused := testsupport.CreateTask(t, store, "http://x/u1")
	running := testsupport.CreateTask(t, store, "http://x/u2")
	done := testsupport.CreateTask(t, store, "http://x/u3")
	broken := testsupport.CreateTask(t, store, "http://x/u4")

	if _, err := store.StartTask(ctx, running, false); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if err := store.SetState(ctx, done, tasks.StateFinished); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := store.SetState(ctx, broken, tasks.StateInvalid); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	got, err := store.Unfinished(ctx)
	if err != nil {
		t.Fatalf("Unfinished: %v", err)
	}
	if !reflect.DeepEqual(got, []string{paused, running}) {
		t.Fatalf("unexpected unfinished set %v", got)
	}
}

func TestPurge(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	keep := testsupport.CreateTask(t, store, "http://x/keep")
	for _, url := range []string{"http://x/p1", "http://x/p2"} {
		tid := testsupport.CreateTask(t, store, url)
		if err := store.SetState(ctx, tid, tasks.StateFinished); err != nil {
			t.Fatalf("SetState: %v", err)
		}
	}

	removed, err := store.Purge(ctx, tasks.StateFinished)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	counts, err := store.ListState(ctx)
	if err != nil {
		t.Fatalf("ListState: %v", err)
	}
	if counts.Total() != 1 || counts[tasks.StatePaused] != 1 {
		t.Fatalf("unexpected counts after purge %v", counts)
	}
	if _, err := store.QueryTask(ctx, keep); err != nil {
		t.Fatalf("untouched task should remain: %v", err)
	}

	if _, err := store.Purge(ctx, tasks.StateAll); !errors.Is(err, tasks.ErrInvalidState) {
		t.Fatalf("purging the wildcard should fail, got %v", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tid, err := store.CreateTask(ctx, tasks.Params{URL: "http://x/1"}, nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if tid != tasks.DeriveTID("http://x/1") {
		t.Fatalf("unexpected tid %s", tid)
	}

	if _, err := store.StartTask(ctx, tid, false); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if got := mustQuery(t, store, tid).State; got != tasks.StateDownloading {
		t.Fatalf("expected downloading, got %s", got)
	}

	if err := store.ProgressUpdate(ctx, tid, tasks.ProgressEvent{Elapsed: 5, DownloadedBytes: 100}); err != nil {
		t.Fatalf("ProgressUpdate: %v", err)
	}
	if got := mustQuery(t, store, tid).Elapsed; got != 5 {
		t.Fatalf("expected elapsed 5, got %v", got)
	}

	if err := store.CancelTask(ctx, tid, nil); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if got := mustQuery(t, store, tid).State; got != tasks.StatePaused {
		t.Fatalf("expected paused, got %s", got)
	}

	if err := store.DeleteTask(ctx, tid); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := store.QueryTask(ctx, tid); !errors.Is(err, tasks.ErrTaskInexistence) {
		t.Fatalf("expected ErrTaskInexistence, got %v", err)
	}
}

func TestConcurrentProgressUpdates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	tid := testsupport.CreateTask(t, store, "http://x/concurrent")

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.ProgressUpdate(ctx, tid, tasks.ProgressEvent{
				Elapsed:         1,
				DownloadedBytes: int64(i),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ProgressUpdate: %v", err)
		}
	}
	if got := mustQuery(t, store, tid).Elapsed; got != workers {
		t.Fatalf("expected every update to accrue, elapsed=%v", got)
	}
}

func TestStoresShareDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t, func(c *config.Config) {
		c.Paths.LockDir = ""
	})
	first := testsupport.MustOpenStore(t, cfg)
	second := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	tid := testsupport.CreateTask(t, first, "http://x/shared")
	if _, err := second.CreateTask(ctx, tasks.Params{URL: "http://x/shared"}, nil); !errors.Is(err, tasks.ErrTaskExistence) {
		t.Fatalf("second handle should see the first task, got %v", err)
	}
	if _, err := second.StartTask(ctx, tid, false); err != nil {
		t.Fatalf("StartTask via second handle: %v", err)
	}
	if got := mustQuery(t, first, tid).State; got != tasks.StateDownloading {
		t.Fatalf("first handle should observe the transition, got %s", got)
	}
}
