package connector

import (
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/mapper"
	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// defaultBatchSize bounds per-request payloads and gives the run loop a
// checkpointable unit.
const defaultBatchSize = 50

// defaultTimeout applies when a source sets no timeout_seconds. Overridden
// from configuration via SetDefaultTimeout at startup, before any connector
// is built.
var defaultTimeout = 30 * time.Second

// SetDefaultTimeout sets the fallback timeout for connector network calls.
// Non-positive durations are ignored.
func SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		defaultTimeout = d
	}
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s := mapper.Stringify(v); s != "" {
			return s
		}
	}
	return fallback
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}

func batchSizeParam(params map[string]any) int {
	return intParam(params, "batch_size", defaultBatchSize)
}

// timeoutParam reads the bounded per-request timeout. Every network call a
// connector makes must carry one.
func timeoutParam(params map[string]any) time.Duration {
	if secs := intParam(params, "timeout_seconds", 0); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultTimeout
}

// timestampFieldParam names the source field carrying a last-modified
// timestamp. Its presence enables incremental fetches.
func timestampFieldParam(params map[string]any) string {
	return stringParam(params, "timestamp_field", "")
}

func headerParams(params map[string]any, key string) map[string]string {
	headers := map[string]string{}
	raw, ok := params[key].(map[string]any)
	if !ok {
		return headers
	}
	for k, v := range raw {
		headers[k] = mapper.Stringify(v)
	}
	return headers
}

// timestampLayouts are tried in order when filtering records client-side.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// includeSince reports whether a record passes the incremental filter. A
// record without the field, or with an unparseable value, is kept: dropping
// it silently would hide data.
func includeSince(rec models.RawRecord, field string, since *time.Time) bool {
	if since == nil || field == "" {
		return true
	}
	v, ok := rec[field]
	if !ok {
		return true
	}
	s := mapper.Stringify(v)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return !t.Before(*since)
		}
	}
	return true
}

// chunkRecords splits records into batches of size and hands each to fn.
func chunkRecords(records []models.RawRecord, size int, fn BatchFunc) error {
	if size <= 0 {
		size = defaultBatchSize
	}
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		if err := fn(records[start:end]); err != nil {
			return err
		}
	}
	return nil
}
