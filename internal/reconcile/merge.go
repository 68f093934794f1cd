package reconcile

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/mapper"
	"github.com/cmdb-tools/cmdbsync/internal/models"
)

var errNoName = errors.New("record maps to no name")

// buildCI assembles a new configuration item from a mapped record. Defaults:
// status active and type other unless mapped, last_sync now, external id from
// the raw record when it carries one.
func buildCI(source *models.ImportSource, policy *mapper.Policy, mapped models.MappedRecord, raw models.RawRecord, now time.Time) (*models.ConfigurationItem, error) {
	ci := &models.ConfigurationItem{
		CIType: models.CITypeOther,
		Status: models.CIStatusActive,
	}
	for field, value := range mapped {
		models.CIFields[field].Set(ci, value)
	}
	if ci.Name == "" {
		return nil, errNoName
	}

	ci.ExternalID = policy.ExternalID(raw)
	ci.ImportSourceID = &source.ID
	ci.LastSync = &now
	ci.RawData = mergeRawData(nil, source.SourceType, raw, ci.Name)
	return ci, nil
}

// mergeCI applies a mapped record to an existing CI. Per field: skip
// keep_local fields, apply only on a real value change. keyMatched tells how
// the CI was found: on a key-field match the key itself is skipped (rewriting
// the value it matched on could only corrupt identity), while an external-id
// match makes the key an ordinary updatable field, so a rename at the source
// lands instead of being silently dropped. Bookkeeping (last_sync,
// resurrection, raw_data, external id adoption) always runs. The returned
// changes map drives the updated-vs-unchanged audit entry.
func mergeCI(ci *models.ConfigurationItem, source *models.ImportSource, policy *mapper.Policy, mapped models.MappedRecord, raw models.RawRecord, keyMatched bool, now time.Time) map[string]models.FieldChange {
	changes := map[string]models.FieldChange{}

	for field, value := range mapped {
		if keyMatched && field == policy.KeyField {
			continue
		}
		if !policy.ShouldOverwrite(field) {
			continue
		}
		accessor := models.CIFields[field]
		old := accessor.Get(ci)
		accessor.Set(ci, value)
		if updated := accessor.Get(ci); updated != old {
			changes[field] = models.FieldChange{Old: old, New: updated}
		}
	}

	if ci.DeletedAt != nil {
		ci.DeletedAt = nil
		changes["deleted_at"] = models.FieldChange{Old: "deleted", New: ""}
	}
	if ci.ExternalID == "" {
		if externalID := policy.ExternalID(raw); externalID != "" {
			ci.ExternalID = externalID
			ci.ImportSourceID = &source.ID
			changes["external_id"] = models.FieldChange{Old: "", New: externalID}
		}
	}

	ci.LastSync = &now
	ci.RawData = mergeRawData(ci.RawData, source.SourceType, raw, ci.Name)
	return changes
}

// mergeRawData merges one source's raw payload into the per-kind raw_data
// object without touching other sources' entries. Malformed stored data is
// reset to an empty object with a warning; the reset loses the other sources'
// stale payloads but keeps the import running.
func mergeRawData(stored []byte, kind string, raw models.RawRecord, ciName string) []byte {
	byKind := map[string]any{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &byKind); err != nil {
			slog.Warn("resetting malformed raw_data", "ci", ciName, "error", err)
			byKind = map[string]any{}
		}
	}

	byKind[kind] = map[string]any(raw)
	data, err := json.Marshal(byKind)
	if err != nil {
		slog.Warn("raw payload not serializable, keeping stored raw_data", "ci", ciName, "source_type", kind, "error", err)
		return stored
	}
	return data
}
