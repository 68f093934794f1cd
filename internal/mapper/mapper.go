// Package mapper translates raw source records into canonical CI fields and
// holds the declarative reconciliation policy.
package mapper

import (
	"strconv"
	"strings"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// FieldMapper maps source fields to canonical CI fields using dotted paths,
// e.g. {"name": "Title", "owner": "Owner.Email"}. Pure and side-effect free:
// sources disagree wildly on shape, so this translation stays testable in
// isolation from reconciliation.
type FieldMapper struct {
	mapping map[string]string
}

// NewFieldMapper creates a mapper from a canonical-field → source-path table.
func NewFieldMapper(mapping map[string]string) *FieldMapper {
	return &FieldMapper{mapping: mapping}
}

// Map transforms one raw record into canonical fields. A missing path segment
// means the field is omitted from the result, never an error. String values
// are trimmed of surrounding whitespace.
func (m *FieldMapper) Map(raw models.RawRecord) models.MappedRecord {
	mapped := make(models.MappedRecord, len(m.mapping))
	for field, path := range m.mapping {
		value, ok := lookupPath(raw, path)
		if !ok || value == nil {
			continue
		}
		mapped[field] = Stringify(value)
	}
	return mapped
}

// lookupPath walks nested maps (and slices, via numeric segments) by
// dot-separated path segments.
func lookupPath(data any, path string) (any, bool) {
	current := data
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case models.RawRecord:
			v, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]any:
			v, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Stringify renders a scalar value as its canonical string form. Strings are
// trimmed; other scalars are formatted without exponent notation so values
// compare stably against stored CI fields.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case []string:
		return strings.TrimSpace(strings.Join(v, ", "))
	default:
		if s, ok := value.(interface{ String() string }); ok {
			return strings.TrimSpace(s.String())
		}
		return ""
	}
}

// FlattenRecord converts a nested record into dotted field names, using
// indexed segments for lists. Used by connectors for best-effort schema
// introspection from a sample record.
func FlattenRecord(raw models.RawRecord) []string {
	var fields []string
	flattenValue("", map[string]any(raw), &fields)
	return fields
}

func flattenValue(prefix string, value any, fields *[]string) {
	switch node := value.(type) {
	case map[string]any:
		for key, v := range node {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			flattenValue(path, v, fields)
		}
	case []any:
		for i, v := range node {
			flattenValue(prefix+"."+strconv.Itoa(i), v, fields)
		}
	default:
		if prefix != "" {
			*fields = append(*fields, prefix)
		}
	}
}
