// Package tasks persists download tasks in SQLite and drives their lifecycle.
//
// A task is identified by the SHA-1 fingerprint of its source URL, so a URL
// can only be queued once while its records exist. Each task is spread over
// four tables (status, parameters, descriptive info, download options) that
// share the tid key; every public Store method touches them inside a single
// transaction so the groups are always created, moved between states, and
// removed together.
//
// The Store also serves the read side used by dashboards: single-task
// lookups, filtered listings with per-state counts, and the set of
// unfinished tasks a dispatcher should resume.
//
// Schema changes bump schemaVersion in schema.go; there are no migrations,
// users recreate the database to adopt a new schema.
package tasks
