package mapper

import (
	"strings"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// MatchStrategy controls how reconciliation key values are compared.
type MatchStrategy string

const (
	MatchExact           MatchStrategy = "exact"
	MatchCaseInsensitive MatchStrategy = "case_insensitive"
)

// UpdateMode controls whether unmatched records create new CIs.
type UpdateMode string

const (
	UpdateUpsert UpdateMode = "upsert"
	UpdateOnly   UpdateMode = "update_only"
)

// Conflict resolution values: "source" lets the source overwrite local data,
// "keep_local" protects the field.
const (
	ResolveSource    = "source"
	ResolveKeepLocal = "keep_local"
)

// Policy decides how an incoming record matches an existing CI and which
// fields the source may overwrite. Different sources are authoritative for
// different attributes, so resolution is per-field and declarative.
type Policy struct {
	KeyField           string            `json:"key_field"`
	MatchStrategy      MatchStrategy     `json:"match_strategy"`
	ConflictResolution map[string]string `json:"conflict_resolution"`
	UpdateMode         UpdateMode        `json:"update_mode"`

	// IDField names the raw-record key carrying the source-stable identifier.
	IDField string `json:"id_field"`
}

// MatchValue returns the reconciliation key value of a mapped record,
// normalized per the match strategy. ok is false when the key field is absent
// or empty.
func (p *Policy) MatchValue(rec models.MappedRecord) (string, bool) {
	value, ok := rec[p.KeyField]
	if !ok || value == "" {
		return "", false
	}
	return p.NormalizeKey(value), true
}

// NormalizeKey applies the match strategy to a key value.
func (p *Policy) NormalizeKey(value string) string {
	if p.MatchStrategy == MatchCaseInsensitive {
		return strings.ToLower(value)
	}
	return value
}

// CaseInsensitive reports whether key matching ignores case.
func (p *Policy) CaseInsensitive() bool {
	return p.MatchStrategy == MatchCaseInsensitive
}

// ShouldOverwrite reports whether the source may overwrite a field.
// Unspecified fields default to source-wins.
func (p *Policy) ShouldOverwrite(field string) bool {
	return p.ConflictResolution[field] != ResolveKeepLocal
}

// ExternalID extracts the source-stable identifier from a raw record, if the
// record carries one. Checks the configured id field, then the conventional
// "id"/"ID" keys.
func (p *Policy) ExternalID(raw models.RawRecord) string {
	keys := []string{p.IDField, "id", "ID", "Id"}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if v, ok := raw[key]; ok {
			if s := Stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}
