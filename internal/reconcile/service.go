package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/connector"
	"github.com/cmdb-tools/cmdbsync/internal/mapper"
	"github.com/cmdb-tools/cmdbsync/internal/metrics"
	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// maxRecordErrors bounds the per-record error list persisted in the run
// details. Failures past the cap still count, they just stop accumulating
// payloads.
const maxRecordErrors = 100

// Runner executes import runs. Safe for concurrent use; overlapping runs for
// the same source are refused with ErrRunInProgress.
type Runner struct {
	store       Store
	logger      *slog.Logger
	artifactDir string
	metrics     *metrics.Collector
	locks       runLocks
}

func NewRunner(store Store, logger *slog.Logger, artifactDir string) *Runner {
	return &Runner{
		store:       store,
		logger:      logger,
		artifactDir: artifactDir,
		metrics:     metrics.NewCollector(),
	}
}

// runState carries everything one run accumulates across batches.
type runState struct {
	source      *models.ImportSource
	policy      *mapper.Policy
	cfg         *mapper.SourceConfig
	fieldMapper *mapper.FieldMapper
	log         *models.ImportLog
	audit       *auditRecorder

	// processed pairs feed the relationship pass after the last batch.
	processed []processedRecord
}

type processedRecord struct {
	ci  *models.ConfigurationItem
	raw models.RawRecord
}

// Run imports one source end to end: fetch batches, reconcile records,
// checkpoint the ImportLog and artifacts per batch, link relationships, and
// finalize the run status. Returns the completed ImportLog; the error is
// non-nil only when the run itself could not proceed (unknown source, busy
// source, unreachable system, broken persistence).
func (r *Runner) Run(ctx context.Context, sourceID int64) (*models.ImportLog, error) {
	if !r.locks.tryAcquire(sourceID) {
		return nil, fmt.Errorf("source %d: %w", sourceID, ErrRunInProgress)
	}
	defer r.locks.release(sourceID)

	source, err := r.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	cfg, err := mapper.ParseSourceConfig(source.Config)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", source.Name, err)
	}
	conn, err := connector.New(source.SourceType, source.ConnectionParams)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", source.Name, err)
	}

	started := time.Now().UTC()
	run := &runState{
		source:      source,
		policy:      &cfg.Reconciliation,
		cfg:         cfg,
		fieldMapper: mapper.NewFieldMapper(cfg.FieldMapping),
		audit:       newAuditRecorder(r.artifactDir, source.ID, started),
		log: &models.ImportLog{
			ImportSourceID: source.ID,
			Source:         source.Name,
			Status:         models.ImportStatusRunning,
			Details:        &models.RunDetails{},
		},
	}
	run.log.Details.AuditFile = run.audit.auditPath
	run.log.Details.RawDataFile = run.audit.rawPath
	if err := r.store.CreateImportLog(ctx, run.log); err != nil {
		return nil, err
	}

	logger := r.logger.With("source", source.Name, "run_id", run.log.ID)
	logger.Info("starting import run", "source_type", source.SourceType, "incremental", source.LastRun != nil)

	fetchStart := time.Now()
	err = conn.FetchBatches(ctx, source.LastRun, func(batch []models.RawRecord) error {
		r.processBatch(ctx, run, batch, logger)
		return r.checkpoint(ctx, run)
	})
	r.metrics.Record(metrics.OpConnectorFetch, time.Since(fetchStart))
	if err != nil {
		return run.log, r.fail(ctx, run, logger, err)
	}

	if len(cfg.RelationshipMapping) > 0 {
		r.linkRelationships(ctx, run, logger)
	}

	return run.log, r.finalize(ctx, run, started, logger)
}

// processBatch reconciles each record of one batch, isolating per-record
// failures into the counters and the bounded error list.
func (r *Runner) processBatch(ctx context.Context, run *runState, batch []models.RawRecord, logger *slog.Logger) {
	for _, raw := range batch {
		run.log.RecordsProcessed++

		start := time.Now()
		err := r.processRecord(ctx, run, raw)
		r.metrics.Record(metrics.OpRecord, time.Since(start))
		if err == nil {
			run.log.RecordsSuccess++
			continue
		}

		run.log.RecordsFailed++
		logger.Warn("record failed", "error", err)
		if len(run.log.Details.Errors) < maxRecordErrors {
			run.log.Details.Errors = append(run.log.Details.Errors, models.RecordError{
				Record: stringifyRecord(raw),
				Error:  err.Error(),
			})
		}
	}
}

// processRecord maps and reconciles one raw record. Any returned error marks
// the record failed; nothing it did is persisted because every write below is
// a single final statement.
func (r *Runner) processRecord(ctx context.Context, run *runState, raw models.RawRecord) error {
	mapped := run.fieldMapper.Map(raw)
	now := time.Now().UTC()

	ci, byExternalID, err := r.resolveCI(ctx, run, mapped, raw)
	if err != nil {
		return err
	}

	if ci == nil {
		if run.policy.UpdateMode == mapper.UpdateOnly {
			// update_only: unmatched records are deliberately not created.
			run.audit.record(models.AuditEntry{
				Action: models.AuditUnchanged,
				CIName: mapped[run.policy.KeyField],
				Target: "skipped: no matching ci in update_only mode",
			})
			run.audit.addRaw(raw)
			return nil
		}

		ci, err = buildCI(run.source, run.policy, mapped, raw, now)
		if err != nil {
			return err
		}
		if err := r.store.CreateCI(ctx, ci); err != nil {
			return err
		}
		run.log.RecordsCreated++
		run.audit.record(models.AuditEntry{
			Action:     models.AuditCreated,
			CIName:     ci.Name,
			ExternalID: ci.ExternalID,
			Fields:     mapped,
		})
	} else {
		changes := mergeCI(ci, run.source, run.policy, mapped, raw, !byExternalID, now)
		if err := r.store.UpdateCI(ctx, ci); err != nil {
			return err
		}
		entry := models.AuditEntry{
			Action:     models.AuditUnchanged,
			CIName:     ci.Name,
			ExternalID: ci.ExternalID,
		}
		if len(changes) > 0 {
			run.log.RecordsUpdated++
			entry.Action = models.AuditUpdated
			entry.Changes = changes
		}
		run.audit.record(entry)
	}

	run.processed = append(run.processed, processedRecord{ci: ci, raw: raw})
	run.audit.addRaw(raw)
	return nil
}

// resolveCI finds the existing CI an incoming record refers to: the stable
// (external_id, source) identity first, then the policy key field. The bool
// reports an external-id match, which leaves the key field updatable during
// the merge. Returns (nil, false, nil) for a genuinely new record.
func (r *Runner) resolveCI(ctx context.Context, run *runState, mapped models.MappedRecord, raw models.RawRecord) (*models.ConfigurationItem, bool, error) {
	if externalID := run.policy.ExternalID(raw); externalID != "" {
		ci, err := r.store.FindCIByExternalID(ctx, externalID, run.source.ID)
		if err != nil {
			return nil, false, err
		}
		if ci != nil {
			return ci, true, nil
		}
	}

	key, ok := run.policy.MatchValue(mapped)
	if !ok {
		return nil, false, fmt.Errorf("record has no value for key field %q", run.policy.KeyField)
	}
	ci, err := r.store.FindCIByField(ctx, run.policy.KeyField, key, run.policy.CaseInsensitive())
	return ci, false, err
}

// checkpoint persists the run counters and rewrites the artifact files. Runs
// after every batch so a crash loses at most one batch of bookkeeping.
func (r *Runner) checkpoint(ctx context.Context, run *runState) error {
	start := time.Now()
	defer func() { r.metrics.Record(metrics.OpBatchFlush, time.Since(start)) }()

	if err := r.store.UpdateImportLog(ctx, run.log); err != nil {
		return err
	}
	return run.audit.flush()
}

// fail finalizes a run aborted by an error escaping the batch loop. The log
// row is still completed so the failure is visible in history.
func (r *Runner) fail(ctx context.Context, run *runState, logger *slog.Logger, cause error) error {
	now := time.Now().UTC()
	run.log.Status = models.ImportStatusFailed
	run.log.Details.Message = cause.Error()
	run.log.CompletedAt = &now

	if err := r.store.UpdateImportLog(ctx, run.log); err != nil {
		logger.Error("persisting failed run state", "error", err)
	}
	if err := run.audit.flush(); err != nil {
		logger.Error("flushing audit artifacts", "error", err)
	}

	logger.Error("import run failed", "error", cause)
	return cause
}

// finalize completes a run that consumed all batches: stamps the status from
// the failure count, records the summary, and advances the source's last_run.
func (r *Runner) finalize(ctx context.Context, run *runState, started time.Time, logger *slog.Logger) error {
	now := time.Now().UTC()
	run.log.CompletedAt = &now
	run.log.Status = models.ImportStatusSuccess
	if run.log.RecordsFailed > 0 {
		run.log.Status = models.ImportStatusPartialSuccess
	}
	run.log.Details.Message = fmt.Sprintf(
		"processed %d records: %d created, %d updated, %d failed",
		run.log.RecordsProcessed, run.log.RecordsCreated, run.log.RecordsUpdated, run.log.RecordsFailed,
	)

	if err := r.store.UpdateImportLog(ctx, run.log); err != nil {
		return err
	}
	if err := run.audit.flush(); err != nil {
		return err
	}
	if err := r.store.SetSourceLastRun(ctx, run.source.ID, started); err != nil {
		return err
	}

	logger.Info("import run finished",
		"status", run.log.Status,
		"processed", run.log.RecordsProcessed,
		"created", run.log.RecordsCreated,
		"updated", run.log.RecordsUpdated,
		"failed", run.log.RecordsFailed,
		"duration", time.Since(started),
		"timings", r.metrics.Snapshot(),
	)
	return nil
}

// stringifyRecord renders a raw record for the error list. Records that fail
// JSON encoding fall back to fmt formatting.
func stringifyRecord(raw models.RawRecord) string {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(raw))
	}
	return string(data)
}
