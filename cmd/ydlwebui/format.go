package main

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ydlwebui/internal/tasks"
)

const shortTIDLength = 8

func stateLabel(state tasks.State) string {
	return cases.Title(language.Und).String(state.String())
}

func shortTID(tid string) string {
	if len(tid) > shortTIDLength {
		return tid[:shortTIDLength]
	}
	return tid
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func formatElapsed(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

// taskLabel prefers the extracted title and falls back to the source URL.
func taskLabel(task *tasks.Task, width int) string {
	label := strings.TrimSpace(task.Title)
	if label == "" {
		label = task.URL
	}
	return truncate(label, width)
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if width <= 0 || len(runes) <= width {
		return value
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}
