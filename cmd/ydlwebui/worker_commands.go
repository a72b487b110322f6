package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ydlwebui/internal/logging"
	"ydlwebui/internal/tasks"
)

func newTaskLogCommand(ctx *commandContext) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "log <tid|url> [line...]",
		Short: "Print a task log, or append lines to it",
		Long: "Without lines the stored log is printed. Given lines are appended and the log is\n" +
			"trimmed to store.log_size entries; --replace overwrites it instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := resolveTID(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lines := args[1:]
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				switch {
				case replace:
					return store.UpdateLog(c, tid, lines)
				case len(lines) > 0:
					return store.AppendLog(c, tid, lines, cfg.Store.LogSize)
				}
				task, err := store.QueryTask(c, tid)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, task.Log)
				}
				for _, line := range task.Log {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the stored log with the given lines")
	return cmd
}

func newTaskProgressCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <tid|url>",
		Short: "Record progress events read as JSON from stdin",
		Long: "Reads a stream of JSON progress events (one per line or concatenated) from stdin\n" +
			"and applies each one to the task in order.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := resolveTID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				c = logging.WithTID(c, tid)
				count := 0
				err := decodeStream(cmd.InOrStdin(), func(dec *json.Decoder) error {
					var event tasks.ProgressEvent
					if err := dec.Decode(&event); err != nil {
						return fmt.Errorf("decode progress event %d: %w", count+1, err)
					}
					if err := store.ProgressUpdate(c, tid, event); err != nil {
						return err
					}
					count++
					return nil
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d progress events for %s\n", count, tid)
				return nil
			})
		},
	}
}

func newTaskInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info <tid|url>",
		Short: "Store extracted metadata read as JSON from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := resolveTID(args[0])
			if err != nil {
				return err
			}
			var info tasks.Info
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&info); err != nil {
				return fmt.Errorf("decode info: %w", err)
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				if err := store.UpdateFromInfo(logging.WithTID(c, tid), tid, info); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated info for %s\n", tid)
				return nil
			})
		},
	}
}

// decodeStream calls next until the reader is exhausted.
func decodeStream(r io.Reader, next func(*json.Decoder) error) error {
	dec := json.NewDecoder(r)
	for dec.More() {
		if err := next(dec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return nil
}
