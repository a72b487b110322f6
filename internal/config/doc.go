// Package config loads, normalizes, and validates ydlwebui configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as YDLWEBUI_DB_PATH. The Config type centralizes
// the task store location, lock directory, default download options, and
// logging settings so the CLI and the store agree on one set of paths.
package config
