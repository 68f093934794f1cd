package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// RelationshipRule describes one relationship-mapping entry: a raw-record
// column holding target CI names (split on Separator) and the relationship
// type to create.
type RelationshipRule struct {
	SourceColumn     string `json:"source_column"`
	RelationshipType string `json:"relationship_type"`
	Separator        string `json:"separator"`
}

// SourceConfig is the parsed import-source configuration blob.
type SourceConfig struct {
	FieldMapping        map[string]string  `json:"field_mapping"`
	Reconciliation      Policy             `json:"reconciliation"`
	RelationshipMapping []RelationshipRule `json:"relationship_mapping,omitempty"`
}

// DefaultPolicy matches on name, exact, source-wins, upsert.
func DefaultPolicy() Policy {
	return Policy{
		KeyField:      "name",
		MatchStrategy: MatchExact,
		UpdateMode:    UpdateUpsert,
	}
}

// ParseSourceConfig parses the JSON configuration blob of an import source.
// A missing or malformed blob yields defaults rather than an error, matching
// the lazy-validation contract of source configuration. Canonical field names
// are checked against the CI field table so a typo fails here, not mid-run.
func ParseSourceConfig(blob []byte) (*SourceConfig, error) {
	cfg := &SourceConfig{
		FieldMapping:   map[string]string{},
		Reconciliation: DefaultPolicy(),
	}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, cfg); err != nil {
			return &SourceConfig{
				FieldMapping:   map[string]string{},
				Reconciliation: DefaultPolicy(),
			}, nil
		}
	}

	if cfg.FieldMapping == nil {
		cfg.FieldMapping = map[string]string{}
	}
	if cfg.Reconciliation.KeyField == "" {
		cfg.Reconciliation.KeyField = "name"
	}
	if cfg.Reconciliation.MatchStrategy == "" {
		cfg.Reconciliation.MatchStrategy = MatchExact
	}
	if cfg.Reconciliation.UpdateMode == "" {
		cfg.Reconciliation.UpdateMode = UpdateUpsert
	}

	if err := models.ValidateFieldNames(cfg.FieldMapping); err != nil {
		return nil, fmt.Errorf("field_mapping: %w", err)
	}
	if _, ok := models.CIFields[cfg.Reconciliation.KeyField]; !ok {
		return nil, fmt.Errorf("reconciliation: unknown key_field %q", cfg.Reconciliation.KeyField)
	}

	return cfg, nil
}
