package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ydlwebui/internal/tasks"
)

const listTitleWidth = 48

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Create, drive and inspect download tasks",
	}

	taskCmd.AddCommand(newTaskAddCommand(ctx))
	taskCmd.AddCommand(newTaskStartCommand(ctx))
	taskCmd.AddCommand(newTaskPauseCommand(ctx))
	taskCmd.AddCommand(newTaskDeleteCommand(ctx))
	taskCmd.AddCommand(newTaskStateCommand(ctx))
	taskCmd.AddCommand(newTaskShowCommand(ctx))
	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskParamCommand(ctx))
	taskCmd.AddCommand(newTaskOptsCommand(ctx))
	taskCmd.AddCommand(newTaskLogCommand(ctx))
	taskCmd.AddCommand(newTaskProgressCommand(ctx))
	taskCmd.AddCommand(newTaskInfoCommand(ctx))

	return taskCmd
}

func newTaskAddCommand(ctx *commandContext) *cobra.Command {
	var format, proxy string
	var extra []string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a new task for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := tasks.Options(cfg.DownloadOptions())
			if format = strings.TrimSpace(format); format != "" {
				opts["format"] = format
			}
			if proxy = strings.TrimSpace(proxy); proxy != "" {
				opts["proxy"] = proxy
			}
			if err := applyOptionFlags(opts, extra); err != nil {
				return err
			}

			url := strings.TrimSpace(args[0])
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				tid, err := store.CreateTask(c, tasks.Params{URL: url}, opts)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, tasks.Params{TID: tid, URL: url})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", tid)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Format selector (defaults to youtube_dl.format)")
	cmd.Flags().StringVar(&proxy, "proxy", "", "Proxy URL (defaults to youtube_dl.proxy)")
	cmd.Flags().StringArrayVarP(&extra, "opt", "o", nil, "Extra option as key=value; JSON values are decoded")
	return cmd
}

// applyOptionFlags merges key=value pairs into opts. Values that parse as
// JSON keep their type; anything else is stored as a string.
func applyOptionFlags(opts tasks.Options, pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid option %q (expected key=value)", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			opts[key] = decoded
		} else {
			opts[key] = value
		}
	}
	return nil
}

func newTaskStartCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "start <tid|url>",
		Short: "Mark a task as downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := resolveTID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				previous, err := store.StartTask(c, tid, force)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"tid": tid, "log": previous})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Started task %s\n", tid)
				for _, line := range previous {
					fmt.Fprintf(out, "  %s\n", line)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Restart even if the task is already downloading")
	return cmd
}

func newTaskPauseCommand(ctx *commandContext) *cobra.Command {
	var logLines []string

	cmd := &cobra.Command{
		Use:   "pause <tid|url>",
		Short: "Pause a task and accrue its running time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := resolveTID(args[0])
			if err != nil {
				return err
			}
			var log []string
			if cmd.Flags().Changed("log") {
				log = append([]string{}, logLines...)
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				if err := store.CancelTask(c, tid, log); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Paused task %s\n", tid)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&logLines, "log", nil, "Replace the stored log with these lines")
	return cmd
}

func newTaskDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tid|url>...",
		Short: "Remove tasks and all their records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tids := make([]string, 0, len(args))
			for _, arg := range args {
				tid, err := resolveTID(arg)
				if err != nil {
					return err
				}
				tids = append(tids, tid)
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				for _, tid := range tids {
					if err := store.DeleteTask(c, tid); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", tid)
				}
				return nil
			})
		},
	}
}

func newTaskStateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "state <tid|url> <state>",
		Short: "Force a task into a state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := resolveTID(args[0])
			if err != nil {
				return err
			}
			state, ok := tasks.ParseState(args[1])
			if !ok {
				return fmt.Errorf("unknown state %q (expected one of %s)", args[1], strings.Join(stateNames(), ", "))
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				if err := store.SetState(c, tid, state); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", tid, state)
				return nil
			})
		},
	}
}

func newTaskShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tid|url>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := resolveTID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				task, err := store.QueryTask(c, tid)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, task)
				}
				printTask(cmd, task)
				return nil
			})
		},
	}
}

func printTask(cmd *cobra.Command, task *tasks.Task) {
	out := cmd.OutOrStdout()
	fields := [][2]string{
		{"TID", task.TID},
		{"URL", task.URL},
		{"State", stateLabel(task.State)},
		{"Title", task.Title},
		{"Progress", task.Percent},
		{"Downloaded", fmt.Sprintf("%s of %s", formatBytes(task.DownloadedBytes), formatBytes(task.TotalBytesEstimate))},
		{"Speed", task.Speed},
		{"ETA", task.ETA},
		{"Elapsed", formatElapsed(task.Elapsed)},
		{"File", task.Filename},
		{"Created", fmt.Sprintf("%s (%s)", formatOptionalTime(&task.CreateTime), formatAge(task.CreateTime))},
		{"Started", formatOptionalTime(task.StartTime)},
		{"Paused", formatOptionalTime(task.PauseTime)},
		{"Last update", formatOptionalTime(task.FinishTime)},
	}
	for _, field := range fields {
		value := field[1]
		if strings.TrimSpace(value) == "" {
			value = "-"
		}
		fmt.Fprintf(out, "%-12s %s\n", field[0]+":", value)
	}
	if len(task.Log) > 0 {
		fmt.Fprintln(out, "Log:")
		for _, line := range task.Log {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var stateFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with per-state counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := tasks.StateAll
			if strings.TrimSpace(stateFlag) != "" {
				parsed, ok := tasks.ParseState(stateFlag)
				if !ok {
					return fmt.Errorf("unknown state %q", stateFlag)
				}
				filter = parsed
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				list, counts, err := store.ListTasks(c, filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if list == nil {
						list = []*tasks.Task{}
					}
					return writeJSON(cmd, map[string]any{"tasks": list, "counts": counts})
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No tasks")
				} else {
					fmt.Fprint(out, renderTable(
						[]string{"TID", "State", "Progress", "Size", "Title", "Created"},
						buildTaskRows(list),
						2, 3,
					))
				}
				fmt.Fprintln(out, formatCounts(counts))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&stateFlag, "state", "s", "", "Only list tasks in this state")
	return cmd
}

func buildTaskRows(list []*tasks.Task) [][]string {
	rows := make([][]string, 0, len(list))
	for _, task := range list {
		rows = append(rows, []string{
			shortTID(task.TID),
			stateLabel(task.State),
			task.Percent,
			formatBytes(task.TotalBytesEstimate),
			taskLabel(task, listTitleWidth),
			formatAge(task.CreateTime),
		})
	}
	return rows
}

func formatCounts(counts tasks.StateCounts) string {
	parts := make([]string, 0, len(counts))
	for _, state := range tasks.CanonicalStates() {
		parts = append(parts, fmt.Sprintf("%s: %d", stateLabel(state), counts[state]))
	}
	return strings.Join(parts, "  ")
}

func newTaskParamCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "param <tid|url>",
		Short: "Show the submission parameters of an active task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := resolveTID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				params, err := store.Param(c, tid)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, params)
				}
				fmt.Fprintln(cmd.OutOrStdout(), params.URL)
				return nil
			})
		},
	}
}

func newTaskOptsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "opts <tid|url>",
		Short: "Print the fetch options of an active task as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := resolveTID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				opts, err := store.Opts(c, tid)
				if err != nil {
					return err
				}
				return writeJSON(cmd, opts)
			})
		},
	}
}
