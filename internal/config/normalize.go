package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeYoutubeDL()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	if value, ok := lookupEnv(envDownloadDir); ok {
		c.Paths.DownloadDir = value
	}
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(strings.TrimSpace(c.Paths.DownloadDir)); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}

	if value, ok := lookupEnv(envDBPath); ok {
		c.Paths.DBPath = value
	}
	if strings.TrimSpace(c.Paths.DBPath) == "" {
		c.Paths.DBPath = filepath.Join(c.Paths.DataDir, defaultDBFile)
	}
	if c.Paths.DBPath, err = expandPath(strings.TrimSpace(c.Paths.DBPath)); err != nil {
		return fmt.Errorf("paths.db_path: %w", err)
	}

	if strings.TrimSpace(c.Paths.LockDir) == "" {
		c.Paths.LockDir = filepath.Join(c.Paths.DataDir, defaultLockDirName)
	}
	if c.Paths.LockDir, err = expandPath(strings.TrimSpace(c.Paths.LockDir)); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	if c.Store.BusyTimeoutMS == 0 {
		c.Store.BusyTimeoutMS = defaultBusyTimeoutMS
	}
	if c.Store.LockTimeoutSeconds == 0 {
		c.Store.LockTimeoutSeconds = defaultLockTimeoutSeconds
	}
	if c.Store.LogSize == 0 {
		c.Store.LogSize = defaultLogSize
	}
}

func (c *Config) normalizeYoutubeDL() {
	c.YoutubeDL.Format = strings.TrimSpace(c.YoutubeDL.Format)
	c.YoutubeDL.Proxy = strings.TrimSpace(c.YoutubeDL.Proxy)
	c.YoutubeDL.RateLimit = strings.TrimSpace(c.YoutubeDL.RateLimit)
	c.YoutubeDL.OutputTemplate = strings.TrimSpace(c.YoutubeDL.OutputTemplate)
	if c.YoutubeDL.OutputTemplate == "" {
		c.YoutubeDL.OutputTemplate = defaultOutputTemplate
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if value, ok := lookupEnv(envLogLevel); ok {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}
