package models

import "time"

// Relationship links two configuration items. Rows are idempotent on the
// (source, target, type) triple.
type Relationship struct {
	ID               int64
	SourceCIID       int64
	TargetCIID       int64
	RelationshipType string
	Description      string
	CreatedAt        time.Time
}
