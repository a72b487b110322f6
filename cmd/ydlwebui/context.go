package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ydlwebui/internal/config"
	"ydlwebui/internal/logging"
	"ydlwebui/internal/tasks"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	registry *prometheus.Registry
	metrics  *tasks.Metrics
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	registry := prometheus.NewRegistry()
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		registry:   registry,
		metrics:    tasks.NewMetrics(registry),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was given.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withStore opens the task store for the duration of fn. Every invocation
// gets its own correlation id so log lines from one command can be grouped.
func (c *commandContext) withStore(cmd *cobra.Command, fn func(context.Context, *tasks.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		return errors.New("configuration unavailable")
	}

	logger, closeLog, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithCorrelationID(ctx, uuid.NewString())

	store, err := tasks.Open(cfg, tasks.WithLogger(logger), tasks.WithMetrics(c.metrics))
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer store.Close()

	return fn(ctx, store)
}

// resolveTID accepts either a tid or the URL it was derived from.
func resolveTID(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("task id or url is required")
	}
	if tasks.IsTID(arg) {
		return arg, nil
	}
	return tasks.DeriveTID(arg), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
