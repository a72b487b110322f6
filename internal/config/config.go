package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the data, download, database, and lock locations.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	DownloadDir string `toml:"download_dir"`
	DBPath      string `toml:"db_path"`
	LockDir     string `toml:"lock_dir"`
}

// Store contains task store tuning.
type Store struct {
	BusyTimeoutMS      int `toml:"busy_timeout_ms"`
	LockTimeoutSeconds int `toml:"lock_timeout_seconds"`
	LogSize            int `toml:"log_size"`
}

// YoutubeDL contains the default fetch options captured for new tasks.
type YoutubeDL struct {
	Format         string `toml:"format"`
	Proxy          string `toml:"proxy"`
	OutputTemplate string `toml:"output_template"`
	RateLimit      string `toml:"ratelimit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for ydlwebui.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Store     Store     `toml:"store"`
	YoutubeDL YoutubeDL `toml:"youtube_dl"`
	Logging   Logging   `toml:"logging"`
}

const (
	defaultConfigPath  = "~/.config/ydlwebui/config.toml"
	projectConfigName  = "ydlwebui.toml"
	dotenvName         = ".env"
	envDBPath          = "YDLWEBUI_DB_PATH"
	envDownloadDir     = "YDLWEBUI_DOWNLOAD_DIR"
	envLogLevel        = "YDLWEBUI_LOG_LEVEL"
	defaultLogFileName = "ydlwebui.log"
)

// DefaultConfigPath is where config init writes and Load looks first.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads the configuration at path, or searches the default locations
// when path is empty. It returns the config, the file it resolved to, and
// whether that file existed. A missing file is not an error; defaults and
// environment overrides still apply. The result is normalized and validated.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locateConfig(strings.TrimSpace(path))
	if err != nil {
		return nil, "", false, err
	}
	if err := loadDotenv(filepath.Dir(resolved)); err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadDotenv reads .env files next to the config and in the working
// directory. Variables already present in the environment win.
func loadDotenv(configDir string) error {
	candidates := []string{filepath.Join(configDir, dotenvName)}
	if cwd, err := os.Getwd(); err == nil {
		if local := filepath.Join(cwd, dotenvName); local != candidates[0] {
			candidates = append(candidates, local)
		}
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
}

// locateConfig resolves an explicit path as given. Without one it prefers
// the per-user file, then ydlwebui.toml in the working directory, and
// reports the per-user path as missing when neither is a regular file.
func locateConfig(explicit string) (string, bool, error) {
	if explicit != "" {
		expanded, err := expandPath(explicit)
		if err != nil {
			return "", false, err
		}
		exists, err := isRegularFile(expanded)
		return expanded, exists, err
	}

	userPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := expandPath(projectConfigName)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, projectPath} {
		if ok, _ := isRegularFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

func isRegularFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat config %s: %w", path, err)
	}
}

// EnsureDirectories creates the data, lock, and database directories. The
// download directory is created on a best-effort basis so the store stays
// usable when download storage is offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LockDir, filepath.Dir(c.Paths.DBPath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.DownloadDir) != "" {
		_ = os.MkdirAll(c.Paths.DownloadDir, 0o755)
	}
	return nil
}

// LogFilePath returns the file the CLI logger appends to.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.DataDir, defaultLogFileName)
}

// DownloadOptions builds the fetch options stored with a new task.
// Empty settings are omitted.
func (c *Config) DownloadOptions() map[string]any {
	opts := map[string]any{}
	if c.YoutubeDL.Format != "" {
		opts["format"] = c.YoutubeDL.Format
	}
	if c.YoutubeDL.Proxy != "" {
		opts["proxy"] = c.YoutubeDL.Proxy
	}
	if c.YoutubeDL.RateLimit != "" {
		opts["ratelimit"] = c.YoutubeDL.RateLimit
	}
	if c.YoutubeDL.OutputTemplate != "" {
		opts["outtmpl"] = filepath.Join(c.Paths.DownloadDir, c.YoutubeDL.OutputTemplate)
	}
	return opts
}

// expandPath turns "~" or "~/..." into a path under the home directory and
// makes the result absolute.
func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("home directory: %w", err)
		}
		value = filepath.Join(home, strings.TrimLeft(value[1:], `/\`))
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// ExpandPath applies the same "~" and absolute-path rules Load uses.
func ExpandPath(value string) (string, error) {
	return expandPath(value)
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
