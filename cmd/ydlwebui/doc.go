// Package main hosts the ydlwebui operator CLI.
//
// Each command opens the task store named by the configuration, performs one
// repository call (or a short sequence of them) and renders the result as a
// table or, with --json, as indented JSON on stdout. Logs go to stderr and the
// log file under the data directory so command output stays machine-readable.
//
// The worker-facing commands (task progress, task info) read JSON from stdin,
// which lets a fetch engine pipe its events straight into the store.
package main
