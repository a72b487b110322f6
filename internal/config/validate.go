package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DBPath) == "" {
		return errors.New("paths.db_path must be set")
	}
	if strings.HasSuffix(c.Paths.DBPath, string(filepath.Separator)) {
		return fmt.Errorf("paths.db_path %q must name a file", c.Paths.DBPath)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateStore() error {
	if err := ensurePositiveMap(map[string]int{
		"store.busy_timeout_ms":      c.Store.BusyTimeoutMS,
		"store.lock_timeout_seconds": c.Store.LockTimeoutSeconds,
		"store.log_size":             c.Store.LogSize,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
