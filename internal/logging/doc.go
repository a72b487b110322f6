// Package logging builds the slog loggers used by ydlwebui: a compact console
// format for terminals, JSON for machines, and helpers that carry task ids and
// correlation ids through context.Context.
package logging
