package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"ydlwebui/internal/tasks"
)

var errUnhealthyStore = errors.New("task database is unhealthy")

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of tasks in each state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				counts, err := store.ListState(c)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, counts)
				}
				rows := make([][]string, 0, len(counts)+1)
				for _, state := range tasks.CanonicalStates() {
					rows = append(rows, []string{stateLabel(state), strconv.Itoa(counts[state])})
				}
				rows = append(rows, []string{"Total", strconv.Itoa(counts.Total())})
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"State", "Count"}, rows, 1))
				return nil
			})
		},
	}
}

func newUnfinishedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unfinished",
		Short: "Print the ids of tasks that still need work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				tids, err := store.Unfinished(c)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, tids)
				}
				for _, tid := range tids {
					fmt.Fprintln(cmd.OutOrStdout(), tid)
				}
				return nil
			})
		},
	}
}

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <state>",
		Short: "Delete every task in a state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, ok := tasks.ParseState(args[0])
			if !ok || state == tasks.StateAll {
				return fmt.Errorf("purge needs one of %s, got %q", strings.Join(stateNames(), ", "), args[0])
			}
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				removed, err := store.Purge(c, state)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"state": state, "removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s tasks\n", removed, state)
				return nil
			})
		},
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check task database health (schema, tables, integrity, orphans)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				health, err := store.CheckHealth(c)
				if err != nil && health.Error == "" {
					health.Error = err.Error()
				}
				if ctx.JSONMode() {
					if err := writeJSON(cmd, health); err != nil {
						return err
					}
				} else {
					renderHealth(cmd, health)
				}
				if !health.Healthy() {
					return errUnhealthyStore
				}
				return nil
			})
		},
	}
}

func renderHealth(cmd *cobra.Command, health tasks.DatabaseHealth) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	lines := []string{
		renderStatusLine("Database", checkKind(health.DatabaseExists), health.DBPath, colorize),
		renderStatusLine("Readable", checkKind(health.DatabaseReadable), yesNo(health.DatabaseReadable), colorize),
		renderStatusLine("Schema version", statusInfo, strconv.Itoa(health.SchemaVersion), colorize),
	}
	if len(health.MissingTables) > 0 {
		lines = append(lines, renderStatusLine("Tables", statusError, "missing "+strings.Join(health.MissingTables, ", "), colorize))
	} else {
		lines = append(lines, renderStatusLine("Tables", statusOK, strings.Join(health.TablesPresent, ", "), colorize))
	}
	lines = append(lines, renderStatusLine("Integrity", checkKind(health.IntegrityCheck), yesNo(health.IntegrityCheck), colorize))

	orphanKind := statusOK
	if health.OrphanRecords > 0 {
		orphanKind = statusWarn
	}
	lines = append(lines,
		renderStatusLine("Orphans", orphanKind, strconv.Itoa(health.OrphanRecords), colorize),
		renderStatusLine("Tasks", statusInfo, strconv.Itoa(health.TotalTasks), colorize),
	)
	if health.Error != "" {
		lines = append(lines, renderStatusLine("Error", statusError, health.Error, colorize))
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print task metrics in the Prometheus text format",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(c context.Context, store *tasks.Store) error {
				collector := tasks.NewStateCollector(store)
				if err := ctx.registry.Register(collector); err != nil {
					return fmt.Errorf("register state collector: %w", err)
				}
				defer ctx.registry.Unregister(collector)

				families, err := ctx.registry.Gather()
				if err != nil {
					return fmt.Errorf("gather metrics: %w", err)
				}
				out := cmd.OutOrStdout()
				for _, family := range families {
					if _, err := expfmt.MetricFamilyToText(out, family); err != nil {
						return fmt.Errorf("write metrics: %w", err)
					}
				}
				return nil
			})
		},
	}
}
