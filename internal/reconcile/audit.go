package reconcile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// auditRecorder accumulates the run's audit trail and raw-record dump in
// memory and rewrites both artifact files whole after every batch. A crash
// mid-run leaves the last complete snapshot on disk, never a torn file.
type auditRecorder struct {
	auditPath string
	rawPath   string

	entries []models.AuditEntry
	raw     []models.RawRecord
}

func newAuditRecorder(dir string, sourceID int64, now time.Time) *auditRecorder {
	stamp := fmt.Sprintf("%s_%s", now.UTC().Format("20060102T150405"), uuid.NewString()[:8])
	return &auditRecorder{
		auditPath: filepath.Join(dir, fmt.Sprintf("audit_%d_%s.json", sourceID, stamp)),
		rawPath:   filepath.Join(dir, fmt.Sprintf("rawdata_%d_%s.json", sourceID, stamp)),
		entries:   []models.AuditEntry{},
		raw:       []models.RawRecord{},
	}
}

func (a *auditRecorder) record(entry models.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	a.entries = append(a.entries, entry)
}

func (a *auditRecorder) addRaw(rec models.RawRecord) {
	a.raw = append(a.raw, rec)
}

// flush overwrites both artifact files with the full accumulated state.
func (a *auditRecorder) flush() error {
	if err := os.MkdirAll(filepath.Dir(a.auditPath), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := writeJSONFile(a.auditPath, a.entries); err != nil {
		return err
	}
	return writeJSONFile(a.rawPath, a.raw)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
