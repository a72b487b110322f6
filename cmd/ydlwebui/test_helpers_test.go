package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ydlwebui/internal/config"
	"ydlwebui/internal/tasks"
	"ydlwebui/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, logSize int) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{"YDLWEBUI_DB_PATH", "YDLWEBUI_DOWNLOAD_DIR", "YDLWEBUI_LOG_LEVEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\ndownload_dir = %q\n\n[store]\nlog_size = %d\nlock_timeout_seconds = 2\n\n[logging]\nlevel = \"error\"\n",
		filepath.Join(base, "data"),
		filepath.Join(base, "downloads"),
		logSize,
	)
	testsupport.WriteFile(t, configPath, content)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load test config: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

// openStore opens a second handle on the CLI database for seeding and
// assertions.
func (e *cliTestEnv) openStore(t *testing.T) *tasks.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, e.cfg)
}

func (e *cliTestEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	if err != nil {
		t.Fatalf("ydlwebui %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
