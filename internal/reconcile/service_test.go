package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

func testSource(t *testing.T, fc *fakeConnector, config string) *models.ImportSource {
	t.Helper()
	return &models.ImportSource{
		ID:               1,
		Name:             "test-source",
		SourceType:       "fake",
		ConnectionParams: map[string]any{"connector": fc},
		Config:           []byte(config),
		IsActive:         true,
	}
}

func newTestRunner(t *testing.T, store Store) *Runner {
	t.Helper()
	return NewRunner(store, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})), t.TempDir())
}

const basicConfig = `{
	"field_mapping": {"name": "hostname", "owner": "owner", "environment": "env"},
	"reconciliation": {"key_field": "name", "match_strategy": "exact", "update_mode": "upsert"}
}`

func TestRunCreatesAndIsIdempotent(t *testing.T) {
	fc := &fakeConnector{batches: [][]models.RawRecord{{
		{"hostname": "srv-01", "owner": "alice", "env": "prod", "id": "x-1"},
		{"hostname": "srv-02", "owner": "bob", "env": "dev", "id": "x-2"},
	}}}
	store := newFakeStore(testSource(t, fc, basicConfig))
	runner := newTestRunner(t, store)

	log, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusSuccess, log.Status)
	assert.Equal(t, 2, log.RecordsProcessed)
	assert.Equal(t, 2, log.RecordsCreated)
	assert.Equal(t, 2, log.RecordsSuccess)
	require.NotNil(t, log.CompletedAt)
	assert.Equal(t, 2, store.ciCount())

	ci := store.findByName("srv-01")
	require.NotNil(t, ci)
	assert.Equal(t, "alice", ci.Owner)
	assert.Equal(t, "x-1", ci.ExternalID)
	require.NotNil(t, ci.LastSync)

	// Same records again: no new CIs, no field changes.
	log2, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusSuccess, log2.Status)
	assert.Equal(t, 2, log2.RecordsProcessed)
	assert.Equal(t, 0, log2.RecordsCreated)
	assert.Equal(t, 0, log2.RecordsUpdated)
	assert.Equal(t, 2, log2.RecordsSuccess)
	assert.Equal(t, 2, store.ciCount())
}

func TestRunUpdatesChangedFields(t *testing.T) {
	fc := &fakeConnector{batches: [][]models.RawRecord{{
		{"hostname": "srv-01", "owner": "alice", "env": "prod"},
	}}}
	store := newFakeStore(testSource(t, fc, basicConfig))
	runner := newTestRunner(t, store)

	_, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	fc.batches = [][]models.RawRecord{{
		{"hostname": "srv-01", "owner": "carol", "env": "prod"},
	}}
	log, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, log.RecordsUpdated)
	assert.Equal(t, "carol", store.findByName("srv-01").Owner)
	assert.Equal(t, 1, store.ciCount())
}

func TestRunResurrectsSoftDeletedCI(t *testing.T) {
	fc := &fakeConnector{batches: [][]models.RawRecord{{
		{"hostname": "srv-01", "owner": "alice"},
	}}}
	store := newFakeStore(testSource(t, fc, basicConfig))

	deleted := time.Now().UTC().Add(-24 * time.Hour)
	require.NoError(t, store.CreateCI(context.Background(), &models.ConfigurationItem{
		Name: "srv-01", CIType: models.CITypeServer, Status: models.CIStatusActive,
		DeletedAt: &deleted,
	}))

	runner := newTestRunner(t, store)
	log, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, log.RecordsCreated)
	assert.Equal(t, 1, log.RecordsUpdated)
	assert.Equal(t, 1, store.ciCount())
	assert.Nil(t, store.findByName("srv-01").DeletedAt)
}

func TestRunPreservesOtherSourcesRawData(t *testing.T) {
	fc := &fakeConnector{batches: [][]models.RawRecord{{
		{"hostname": "srv-01", "owner": "alice"},
	}}}
	store := newFakeStore(testSource(t, fc, basicConfig))

	require.NoError(t, store.CreateCI(context.Background(), &models.ConfigurationItem{
		Name: "srv-01", CIType: models.CITypeServer, Status: models.CIStatusActive,
		RawData: []byte(`{"ldap": {"dn": "cn=srv-01,dc=corp"}}`),
	}))

	runner := newTestRunner(t, store)
	_, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	var byKind map[string]map[string]any
	require.NoError(t, json.Unmarshal(store.findByName("srv-01").RawData, &byKind))
	assert.Equal(t, "cn=srv-01,dc=corp", byKind["ldap"]["dn"])
	assert.Equal(t, "alice", byKind["fake"]["owner"])
}

func TestRunIdentityStableAcrossRename(t *testing.T) {
	fc := &fakeConnector{batches: [][]models.RawRecord{{
		{"hostname": "srv-01", "owner": "alice", "id": "stable-1"},
	}}}
	store := newFakeStore(testSource(t, fc, basicConfig))
	runner := newTestRunner(t, store)

	_, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	// Same external id, new name: must update the existing CI, not duplicate.
	fc.batches = [][]models.RawRecord{{
		{"hostname": "srv-01-renamed", "owner": "alice", "id": "stable-1"},
	}}
	log, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, log.RecordsCreated)
	assert.Equal(t, 1, log.RecordsUpdated)
	assert.Equal(t, 1, store.ciCount())
	assert.Nil(t, store.findByName("srv-01"))

	ci := store.findByName("srv-01-renamed")
	require.NotNil(t, ci)
	assert.Equal(t, "stable-1", ci.ExternalID)
}

func TestRunPartialFailureIsolation(t *testing.T) {
	var records []models.RawRecord
	for i := 0; i < 9; i++ {
		records = append(records, models.RawRecord{"hostname": fmt.Sprintf("srv-%02d", i)})
	}
	// No hostname: maps to no key field value.
	records = append(records, models.RawRecord{"owner": "nobody"})

	fc := &fakeConnector{batches: [][]models.RawRecord{records}}
	store := newFakeStore(testSource(t, fc, basicConfig))
	runner := newTestRunner(t, store)

	log, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.ImportStatusPartialSuccess, log.Status)
	assert.Equal(t, 10, log.RecordsProcessed)
	assert.Equal(t, 9, log.RecordsSuccess)
	assert.Equal(t, 1, log.RecordsFailed)
	require.Len(t, log.Details.Errors, 1)
	assert.Contains(t, log.Details.Errors[0].Error, "key field")
	assert.Contains(t, log.Details.Errors[0].Record, "nobody")
}

func TestRunUpdateOnlySkipsCreation(t *testing.T) {
	config := `{
		"field_mapping": {"name": "hostname", "owner": "owner"},
		"reconciliation": {"key_field": "name", "update_mode": "update_only"}
	}`
	fc := &fakeConnector{batches: [][]models.RawRecord{{
		{"hostname": "known", "owner": "alice"},
		{"hostname": "unknown", "owner": "bob"},
	}}}
	store := newFakeStore(testSource(t, fc, config))
	require.NoError(t, store.CreateCI(context.Background(), &models.ConfigurationItem{
		Name: "known", CIType: models.CITypeServer, Status: models.CIStatusActive,
	}))

	runner := newTestRunner(t, store)
	log, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.ImportStatusSuccess, log.Status)
	assert.Equal(t, 2, log.RecordsProcessed)
	assert.Equal(t, 2, log.RecordsSuccess)
	assert.Equal(t, 0, log.RecordsCreated)
	assert.Equal(t, 1, store.ciCount())
}

func TestRunCaseInsensitiveMatch(t *testing.T) {
	config := `{
		"field_mapping": {"name": "hostname"},
		"reconciliation": {"key_field": "name", "match_strategy": "case_insensitive"}
	}`
	fc := &fakeConnector{batches: [][]models.RawRecord{{
		{"hostname": "SRV-01"},
	}}}
	store := newFakeStore(testSource(t, fc, config))
	require.NoError(t, store.CreateCI(context.Background(), &models.ConfigurationItem{
		Name: "srv-01", CIType: models.CITypeServer, Status: models.CIStatusActive,
	}))

	runner := newTestRunner(t, store)
	log, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, log.RecordsCreated)
	assert.Equal(t, 1, store.ciCount())
	// Key field is never overwritten from mapped data.
	assert.Equal(t, "srv-01", store.cis[0].Name)
}

func TestRunUnreachableSourceFails(t *testing.T) {
	fc := &fakeConnector{fetchErr: fmt.Errorf("connection refused")}
	store := newFakeStore(testSource(t, fc, basicConfig))
	runner := newTestRunner(t, store)

	log, err := runner.Run(context.Background(), 1)
	require.Error(t, err)
	require.NotNil(t, log)

	stored := store.logs[log.ID]
	assert.Equal(t, models.ImportStatusFailed, stored.Status)
	assert.Contains(t, stored.Details.Message, "connection refused")
	assert.NotNil(t, stored.CompletedAt)
	assert.Nil(t, store.sources[1].LastRun)
}

func TestRunPassesLastRunAsSince(t *testing.T) {
	fc := &fakeConnector{}
	src := testSource(t, fc, basicConfig)
	lastRun := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	src.LastRun = &lastRun

	runner := newTestRunner(t, newFakeStore(src))
	_, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	require.NotNil(t, fc.lastSince)
	assert.Equal(t, lastRun, *fc.lastSince)

	// After the run, last_run has advanced past the old stamp.
	assert.True(t, src.LastRun.After(lastRun))
}

func TestRunRelationshipPass(t *testing.T) {
	config := `{
		"field_mapping": {"name": "hostname"},
		"reconciliation": {"key_field": "name"},
		"relationship_mapping": [
			{"source_column": "depends_on", "relationship_type": "depends_on", "separator": ","}
		]
	}`
	fc := &fakeConnector{batches: [][]models.RawRecord{{
		{"hostname": "db-01"},
		{"hostname": "cache-01"},
		{"hostname": "app-01", "depends_on": "db-01, cache-01, missing-host"},
	}}}
	store := newFakeStore(testSource(t, fc, config))
	runner := newTestRunner(t, store)

	_, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, store.rels, 2)

	app := store.findByName("app-01")
	db := store.findByName("db-01")
	assert.Equal(t, app.ID, store.rels[0].SourceCIID)
	assert.Equal(t, db.ID, store.rels[0].TargetCIID)
	assert.Equal(t, "depends_on", store.rels[0].RelationshipType)

	// Re-run: relationship creation is idempotent.
	_, err = runner.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, store.rels, 2)
}

func TestRunRefusesOverlappingRun(t *testing.T) {
	store := newFakeStore(testSource(t, &fakeConnector{}, basicConfig))
	runner := newTestRunner(t, store)

	require.True(t, runner.locks.tryAcquire(1))
	_, err := runner.Run(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRunInProgress)

	runner.locks.release(1)
	_, err = runner.Run(context.Background(), 1)
	assert.NoError(t, err)
}

func TestRunWritesAuditArtifacts(t *testing.T) {
	fc := &fakeConnector{batches: [][]models.RawRecord{{
		{"hostname": "srv-01", "owner": "alice"},
	}}}
	store := newFakeStore(testSource(t, fc, basicConfig))
	runner := newTestRunner(t, store)

	log, err := runner.Run(context.Background(), 1)
	require.NoError(t, err)

	auditData, err := os.ReadFile(log.Details.AuditFile)
	require.NoError(t, err)
	var entries []models.AuditEntry
	require.NoError(t, json.Unmarshal(auditData, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditCreated, entries[0].Action)
	assert.Equal(t, "srv-01", entries[0].CIName)

	rawData, err := os.ReadFile(log.Details.RawDataFile)
	require.NoError(t, err)
	var raws []models.RawRecord
	require.NoError(t, json.Unmarshal(rawData, &raws))
	require.Len(t, raws, 1)
	assert.Equal(t, "alice", raws[0]["owner"])
}
