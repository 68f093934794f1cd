package models

import "time"

// ImportSource is a named, persisted connector configuration. Read by the
// scheduler and the reconciliation service; LastRun is stamped at the end of
// each successful run and drives incremental fetches.
type ImportSource struct {
	ID         int64
	Name       string
	SourceType string

	// ConnectionParams holds connector-specific credentials and endpoint/DSN/
	// file-path parameters. Validated lazily at connect time, never on save.
	ConnectionParams map[string]any

	// Config is the JSON blob {field_mapping, reconciliation, relationship_mapping?}.
	Config []byte

	IsActive     bool
	ScheduleCron string
	LastRun      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
