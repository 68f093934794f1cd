package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

type stubLister struct {
	sources []*models.ImportSource
}

func (s *stubLister) ListSources(ctx context.Context, activeOnly bool) ([]*models.ImportSource, error) {
	return s.sources, nil
}

type stubRunner struct {
	mu   sync.Mutex
	runs []int64
}

func (r *stubRunner) Run(ctx context.Context, sourceID int64) (*models.ImportLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, sourceID)
	return &models.ImportLog{Status: models.ImportStatusSuccess}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestReloadSchedulesOnlyCronSources(t *testing.T) {
	lister := &stubLister{sources: []*models.ImportSource{
		{ID: 1, Name: "hourly", ScheduleCron: "0 * * * *"},
		{ID: 2, Name: "on-demand"},
		{ID: 3, Name: "broken", ScheduleCron: "not a cron"},
		{ID: 4, Name: "nightly", ScheduleCron: "30 2 * * *"},
	}}

	s := New(lister, &stubRunner{}, testLogger())
	require.NoError(t, s.Reload(context.Background()))

	assert.ElementsMatch(t, []int64{1, 4}, s.ScheduledSources())
}

func TestReloadReplacesJobSet(t *testing.T) {
	lister := &stubLister{sources: []*models.ImportSource{
		{ID: 1, Name: "hourly", ScheduleCron: "0 * * * *"},
	}}

	s := New(lister, &stubRunner{}, testLogger())
	require.NoError(t, s.Reload(context.Background()))
	require.ElementsMatch(t, []int64{1}, s.ScheduledSources())

	lister.sources = []*models.ImportSource{
		{ID: 2, Name: "replacement", ScheduleCron: "*/5 * * * *"},
	}
	require.NoError(t, s.Reload(context.Background()))
	assert.ElementsMatch(t, []int64{2}, s.ScheduledSources())
}

func TestJobInvokesRunner(t *testing.T) {
	runner := &stubRunner{}
	s := New(&stubLister{}, runner, testLogger())

	s.job(42, "direct")()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []int64{42}, runner.runs)
}
