package testsupport

import (
	"path/filepath"
	"testing"

	"ydlwebui/internal/config"
)

// NewConfig returns a default configuration whose directories all live in a
// fresh t.TempDir. The paths are absolute so the config can go straight to
// tasks.Open without a Load/normalize round trip. Each edit runs after the
// paths are filled in.
func NewConfig(t testing.TB, edits ...func(*config.Config)) *config.Config {
	t.Helper()

	root := t.TempDir()
	data := filepath.Join(root, "data")

	cfg := config.Default()
	cfg.Paths.DataDir = data
	cfg.Paths.DownloadDir = filepath.Join(root, "downloads")
	cfg.Paths.DBPath = filepath.Join(data, "tasks.db")
	cfg.Paths.LockDir = filepath.Join(data, "locks")
	cfg.Store.LockTimeoutSeconds = 2

	for _, edit := range edits {
		edit(&cfg)
	}
	return &cfg
}
