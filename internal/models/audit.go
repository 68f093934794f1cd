package models

import "time"

// AuditAction is one reconciliation decision kind.
type AuditAction string

const (
	AuditCreated             AuditAction = "created"
	AuditUpdated             AuditAction = "updated"
	AuditUnchanged           AuditAction = "unchanged"
	AuditRelationshipCreated AuditAction = "relationship_created"
)

// FieldChange is one field-level diff, old and new rendered as strings.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// AuditEntry records one create/update/unchanged/relationship decision.
// Entries accumulate in memory and are flushed to the per-run audit file
// after every batch.
type AuditEntry struct {
	Action     AuditAction            `json:"action"`
	CIName     string                 `json:"ci_name,omitempty"`
	ExternalID string                 `json:"external_id,omitempty"`
	Fields     MappedRecord           `json:"fields,omitempty"`
	Changes    map[string]FieldChange `json:"changes,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}
