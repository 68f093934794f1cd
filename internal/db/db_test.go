// Package db provides integration tests for the Postgres CI store.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the Postgres container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "cmdb",
				"POSTGRES_PASSWORD": "cmdb",
				"POSTGRES_DB":       "cmdb_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start Postgres container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL: fmt.Sprintf("postgres://cmdb:cmdb@%s:%s/cmdb_test", host, mappedPort.Port()),
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	testDB.Close()
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func wipe(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.WipeData(context.Background()))
}

func createTestSource(t *testing.T, name string) *models.ImportSource {
	t.Helper()
	source := &models.ImportSource{
		Name:             name,
		SourceType:       "csv",
		ConnectionParams: map[string]any{"path": "/data/hosts.csv"},
		Config:           []byte(`{"field_mapping": {"name": "hostname"}}`),
		IsActive:         true,
	}
	require.NoError(t, testDB.UpsertSource(context.Background(), source))
	return source
}

func TestUpsertAndGetSource(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	source := createTestSource(t, "inventory-csv")
	require.NotZero(t, source.ID)

	fetched, err := testDB.GetSourceByName(ctx, "inventory-csv")
	require.NoError(t, err)
	assert.Equal(t, source.ID, fetched.ID)
	assert.Equal(t, "csv", fetched.SourceType)
	assert.Equal(t, "/data/hosts.csv", fetched.ConnectionParams["path"])
	assert.True(t, fetched.IsActive)
	assert.Nil(t, fetched.LastRun)

	// Upsert with the same name updates in place.
	source.SourceType = "rest"
	source.ScheduleCron = "0 * * * *"
	require.NoError(t, testDB.UpsertSource(ctx, source))

	fetched, err = testDB.GetSource(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, "rest", fetched.SourceType)
	assert.Equal(t, "0 * * * *", fetched.ScheduleCron)
}

func TestGetSourceNotFound(t *testing.T) {
	wipe(t)
	_, err := testDB.GetSource(context.Background(), 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetSourceLastRunAndActive(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	source := createTestSource(t, "src")
	stamp := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, testDB.SetSourceLastRun(ctx, source.ID, stamp))
	require.NoError(t, testDB.SetSourceActive(ctx, source.ID, false))

	fetched, err := testDB.GetSource(ctx, source.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.LastRun)
	assert.WithinDuration(t, stamp, *fetched.LastRun, time.Second)
	assert.False(t, fetched.IsActive)

	active, err := testDB.ListSources(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, testDB.SetSourceLastRun(ctx, 99999, stamp), ErrNotFound)
}

func TestCreateAndFindCI(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	source := createTestSource(t, "src")
	now := time.Now().UTC()
	ci := &models.ConfigurationItem{
		Name:           "SRV-01",
		CIType:         models.CITypeServer,
		Status:         models.CIStatusActive,
		Owner:          "alice",
		ExternalID:     "ext-1",
		ImportSourceID: &source.ID,
		LastSync:       &now,
		RawData:        []byte(`{"csv": {"hostname": "SRV-01"}}`),
	}
	require.NoError(t, testDB.CreateCI(ctx, ci))
	require.NotZero(t, ci.ID)

	byExt, err := testDB.FindCIByExternalID(ctx, "ext-1", source.ID)
	require.NoError(t, err)
	require.NotNil(t, byExt)
	assert.Equal(t, ci.ID, byExt.ID)
	assert.Equal(t, "ext-1", byExt.ExternalID)
	assert.JSONEq(t, `{"csv": {"hostname": "SRV-01"}}`, string(byExt.RawData))

	// Case-insensitive field match.
	byField, err := testDB.FindCIByField(ctx, "name", "srv-01", true)
	require.NoError(t, err)
	require.NotNil(t, byField)
	assert.Equal(t, ci.ID, byField.ID)

	// Exact match is case-sensitive.
	missing, err := testDB.FindCIByField(ctx, "name", "srv-01", false)
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Unknown fields are rejected before touching SQL.
	_, err = testDB.FindCIByField(ctx, "name; DROP TABLE configuration_items", "x", false)
	require.Error(t, err)
}

func TestFindCIPrefersActiveOverDeleted(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	deleted := time.Now().UTC()
	dead := &models.ConfigurationItem{Name: "dup", CIType: models.CITypeServer, Status: models.CIStatusActive, DeletedAt: &deleted}
	require.NoError(t, testDB.CreateCI(ctx, dead))
	require.NoError(t, testDB.UpdateCI(ctx, dead)) // persists deleted_at
	alive := &models.ConfigurationItem{Name: "dup", CIType: models.CITypeServer, Status: models.CIStatusActive}
	require.NoError(t, testDB.CreateCI(ctx, alive))

	found, err := testDB.FindCIByField(ctx, "name", "dup", false)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, alive.ID, found.ID)

	// By-name lookups see only active CIs.
	byName, err := testDB.FindCIByName(ctx, "dup")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, alive.ID, byName.ID)
}

func TestUpdateCIResurrection(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	deleted := time.Now().UTC()
	ci := &models.ConfigurationItem{Name: "gone", CIType: models.CITypeServer, Status: models.CIStatusActive, DeletedAt: &deleted}
	require.NoError(t, testDB.CreateCI(ctx, ci))
	require.NoError(t, testDB.UpdateCI(ctx, ci))

	ci.DeletedAt = nil
	ci.Owner = "bob"
	require.NoError(t, testDB.UpdateCI(ctx, ci))

	fetched, err := testDB.GetCI(ctx, ci.ID)
	require.NoError(t, err)
	assert.Nil(t, fetched.DeletedAt)
	assert.Equal(t, "bob", fetched.Owner)
}

func TestDuplicateExternalIdentity(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	source := createTestSource(t, "src")
	first := &models.ConfigurationItem{Name: "a", CIType: models.CITypeServer, Status: models.CIStatusActive, ExternalID: "dup", ImportSourceID: &source.ID}
	require.NoError(t, testDB.CreateCI(ctx, first))

	second := &models.ConfigurationItem{Name: "b", CIType: models.CITypeServer, Status: models.CIStatusActive, ExternalID: "dup", ImportSourceID: &source.ID}
	err := testDB.CreateCI(ctx, second)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Empty external ids are stored as NULL and never collide.
	third := &models.ConfigurationItem{Name: "c", CIType: models.CITypeServer, Status: models.CIStatusActive, ImportSourceID: &source.ID}
	fourth := &models.ConfigurationItem{Name: "d", CIType: models.CITypeServer, Status: models.CIStatusActive, ImportSourceID: &source.ID}
	require.NoError(t, testDB.CreateCI(ctx, third))
	require.NoError(t, testDB.CreateCI(ctx, fourth))
}

func TestImportLogLifecycle(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	source := createTestSource(t, "src")
	l := &models.ImportLog{
		ImportSourceID: source.ID,
		Source:         source.Name,
		Status:         models.ImportStatusRunning,
		Details:        &models.RunDetails{},
	}
	require.NoError(t, testDB.CreateImportLog(ctx, l))
	require.NotZero(t, l.ID)

	now := time.Now().UTC()
	l.Status = models.ImportStatusPartialSuccess
	l.RecordsProcessed = 10
	l.RecordsSuccess = 9
	l.RecordsCreated = 4
	l.RecordsUpdated = 5
	l.RecordsFailed = 1
	l.Details.Message = "processed 10 records"
	l.Details.Errors = []models.RecordError{{Record: `{"x":1}`, Error: "boom"}}
	l.CompletedAt = &now
	require.NoError(t, testDB.UpdateImportLog(ctx, l))

	fetched, err := testDB.GetImportLog(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusPartialSuccess, fetched.Status)
	assert.Equal(t, 9, fetched.RecordsSuccess)
	require.NotNil(t, fetched.Details)
	require.Len(t, fetched.Details.Errors, 1)
	assert.Equal(t, "boom", fetched.Details.Errors[0].Error)

	logs, err := testDB.ListImportLogs(ctx, &source.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, l.ID, logs[0].ID)

	all, err := testDB.ListImportLogs(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateRelationshipIdempotent(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	app := &models.ConfigurationItem{Name: "app", CIType: models.CITypeApplication, Status: models.CIStatusActive}
	db := &models.ConfigurationItem{Name: "db", CIType: models.CITypeDatabase, Status: models.CIStatusActive}
	require.NoError(t, testDB.CreateCI(ctx, app))
	require.NoError(t, testDB.CreateCI(ctx, db))

	rel := &models.Relationship{SourceCIID: app.ID, TargetCIID: db.ID, RelationshipType: "depends_on"}
	created, err := testDB.CreateRelationship(ctx, rel)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, rel.ID)

	again, err := testDB.CreateRelationship(ctx, &models.Relationship{SourceCIID: app.ID, TargetCIID: db.ID, RelationshipType: "depends_on"})
	require.NoError(t, err)
	assert.False(t, again)

	exists, err := testDB.RelationshipExists(ctx, app.ID, db.ID, "depends_on")
	require.NoError(t, err)
	assert.True(t, exists)
}
