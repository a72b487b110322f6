package logging

import (
	"log/slog"
)

// Attribute constructors used across the repository, so call sites only
// import this package.

func String(key, value string) slog.Attr { return slog.String(key, value) }

func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }

func Int64(key string, value int64) slog.Attr { return slog.Int64(key, value) }

func Float64(key string, value float64) slog.Attr { return slog.Float64(key, value) }

// Error records err under the "error" key. A nil error yields an empty
// attribute, which handlers skip.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// NewNop returns a logger that discards every record.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags every record of logger with the component name.
// A nil logger yields a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger.With(String(FieldComponent, component))
}
