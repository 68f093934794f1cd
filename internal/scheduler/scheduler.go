// Package scheduler triggers import runs on the cron schedules stored with
// each import source.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/cmdb-tools/cmdbsync/internal/models"
	"github.com/cmdb-tools/cmdbsync/internal/reconcile"
)

// Runner executes one import run. *reconcile.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, sourceID int64) (*models.ImportLog, error)
}

// SourceLister loads the sources to schedule. *db.Client satisfies it.
type SourceLister interface {
	ListSources(ctx context.Context, activeOnly bool) ([]*models.ImportSource, error)
}

// Scheduler hosts one cron job per active source that carries a
// schedule_cron expression. Reload replaces the whole job set, so source
// changes take effect without restarting the process.
type Scheduler struct {
	cron   *cron.Cron
	store  SourceLister
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	entries map[int64]cron.EntryID
}

func New(store SourceLister, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		store:   store,
		runner:  runner,
		logger:  logger,
		entries: map[int64]cron.EntryID{},
	}
}

// Reload syncs the job set with the currently active sources. Sources without
// a schedule_cron run only on demand. An invalid expression is logged and
// skipped; it never prevents the other sources from being scheduled.
func (s *Scheduler) Reload(ctx context.Context) error {
	sources, err := s.store.ListSources(ctx, true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for sourceID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, sourceID)
	}

	for _, source := range sources {
		if source.ScheduleCron == "" {
			continue
		}
		entryID, err := s.cron.AddFunc(source.ScheduleCron, s.job(source.ID, source.Name))
		if err != nil {
			s.logger.Error("invalid cron expression, source not scheduled",
				"source", source.Name, "schedule", source.ScheduleCron, "error", err)
			continue
		}
		s.entries[source.ID] = entryID
		s.logger.Info("scheduled source", "source", source.Name, "schedule", source.ScheduleCron)
	}
	return nil
}

func (s *Scheduler) job(sourceID int64, name string) func() {
	return func() {
		log, err := s.runner.Run(context.Background(), sourceID)
		if errors.Is(err, reconcile.ErrRunInProgress) {
			s.logger.Info("scheduled run skipped, previous run still active", "source", name)
			return
		}
		if err != nil {
			s.logger.Error("scheduled run failed", "source", name, "error", err)
			return
		}
		s.logger.Info("scheduled run finished", "source", name, "status", log.Status)
	}
}

// ScheduledSources returns the ids of currently scheduled sources.
func (s *Scheduler) ScheduledSources() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Start begins executing jobs in the cron's own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
