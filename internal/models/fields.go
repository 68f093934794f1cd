package models

import (
	"fmt"
	"sort"
)

// FieldAccessor reads and writes one canonical CI field as a string.
// Updates from mapped records go through this table instead of reflection, so
// an unknown canonical field name fails at config-parse time, not mid-run.
type FieldAccessor struct {
	Get func(ci *ConfigurationItem) string
	Set func(ci *ConfigurationItem, value string)
}

// CIFields enumerates every canonical field a field mapping may target.
var CIFields = map[string]FieldAccessor{
	"name": {
		Get: func(ci *ConfigurationItem) string { return ci.Name },
		Set: func(ci *ConfigurationItem, v string) { ci.Name = v },
	},
	"ci_type": {
		Get: func(ci *ConfigurationItem) string { return string(ci.CIType) },
		Set: func(ci *ConfigurationItem, v string) { ci.CIType = ParseCIType(v) },
	},
	"status": {
		Get: func(ci *ConfigurationItem) string { return string(ci.Status) },
		Set: func(ci *ConfigurationItem, v string) { ci.Status = ParseCIStatus(v) },
	},
	"description": {
		Get: func(ci *ConfigurationItem) string { return ci.Description },
		Set: func(ci *ConfigurationItem, v string) { ci.Description = v },
	},
	"owner": {
		Get: func(ci *ConfigurationItem) string { return ci.Owner },
		Set: func(ci *ConfigurationItem, v string) { ci.Owner = v },
	},
	"location": {
		Get: func(ci *ConfigurationItem) string { return ci.Location },
		Set: func(ci *ConfigurationItem, v string) { ci.Location = v },
	},
	"environment": {
		Get: func(ci *ConfigurationItem) string { return ci.Environment },
		Set: func(ci *ConfigurationItem, v string) { ci.Environment = v },
	},
	"cost_center": {
		Get: func(ci *ConfigurationItem) string { return ci.CostCenter },
		Set: func(ci *ConfigurationItem, v string) { ci.CostCenter = v },
	},
	"domain": {
		Get: func(ci *ConfigurationItem) string { return ci.Domain },
		Set: func(ci *ConfigurationItem, v string) { ci.Domain = v },
	},
	"os_db_system": {
		Get: func(ci *ConfigurationItem) string { return ci.OSDBSystem },
		Set: func(ci *ConfigurationItem, v string) { ci.OSDBSystem = v },
	},
	"service_provider": {
		Get: func(ci *ConfigurationItem) string { return ci.ServiceProvider },
		Set: func(ci *ConfigurationItem, v string) { ci.ServiceProvider = v },
	},
	"contact": {
		Get: func(ci *ConfigurationItem) string { return ci.Contact },
		Set: func(ci *ConfigurationItem, v string) { ci.Contact = v },
	},
	"sla": {
		Get: func(ci *ConfigurationItem) string { return ci.SLA },
		Set: func(ci *ConfigurationItem, v string) { ci.SLA = v },
	},
	"eol": {
		Get: func(ci *ConfigurationItem) string { return ci.EOL },
		Set: func(ci *ConfigurationItem, v string) { ci.EOL = v },
	},
	"technical_details": {
		Get: func(ci *ConfigurationItem) string { return ci.TechnicalDetails },
		Set: func(ci *ConfigurationItem, v string) { ci.TechnicalDetails = v },
	},
}

// FieldNames returns the canonical field names in sorted order.
func FieldNames() []string {
	names := make([]string, 0, len(CIFields))
	for name := range CIFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateFieldNames checks that every canonical field in a mapping exists in
// the field table. Called when a source configuration is parsed.
func ValidateFieldNames(mapping map[string]string) error {
	for field := range mapping {
		if _, ok := CIFields[field]; !ok {
			return fmt.Errorf("unknown canonical field %q (known: %v)", field, FieldNames())
		}
	}
	return nil
}
