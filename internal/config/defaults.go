package config

const (
	defaultDataDir            = "~/.local/share/ydlwebui"
	defaultDownloadDir        = "~/Downloads"
	defaultDBFile             = "tasks.db"
	defaultLockDirName        = "locks"
	defaultBusyTimeoutMS      = 5000
	defaultLockTimeoutSeconds = 10
	defaultLogSize            = 10
	defaultFormat             = "best"
	defaultOutputTemplate     = "%(title)s.%(ext)s"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults. Derived paths
// (db_path, lock_dir) are filled in by normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			DownloadDir: defaultDownloadDir,
		},
		Store: Store{
			BusyTimeoutMS:      defaultBusyTimeoutMS,
			LockTimeoutSeconds: defaultLockTimeoutSeconds,
			LogSize:            defaultLogSize,
		},
		YoutubeDL: YoutubeDL{
			Format:         defaultFormat,
			OutputTemplate: defaultOutputTemplate,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
