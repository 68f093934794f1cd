package models

import "time"

// ImportStatus is the state of one import run.
type ImportStatus string

const (
	ImportStatusRunning        ImportStatus = "running"
	ImportStatusSuccess        ImportStatus = "success"
	ImportStatusPartialSuccess ImportStatus = "partial_success"
	ImportStatusFailed         ImportStatus = "failed"
)

// RecordError is one failed record with its stringified raw payload, surfaced
// for operator review. Never auto-retried.
type RecordError struct {
	Record string `json:"record"`
	Error  string `json:"error"`
}

// RunDetails is the JSON details blob of an ImportLog: final message, artifact
// file paths and the bounded per-record error list.
type RunDetails struct {
	Message     string        `json:"message,omitempty"`
	AuditFile   string        `json:"audit_file,omitempty"`
	RawDataFile string        `json:"raw_data_file,omitempty"`
	Errors      []RecordError `json:"errors,omitempty"`
}

// ImportLog is the persisted witness of one run. Created at run start and
// updated after every batch so progress is observable mid-run.
type ImportLog struct {
	ID             int64
	ImportSourceID int64
	Source         string
	Status         ImportStatus

	RecordsProcessed int
	RecordsSuccess   int
	RecordsCreated   int
	RecordsUpdated   int
	RecordsFailed    int

	Details *RunDetails

	StartedAt   time.Time
	CompletedAt *time.Time
}
