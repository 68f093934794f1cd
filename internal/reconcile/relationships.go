package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cmdb-tools/cmdbsync/internal/mapper"
	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// linkRelationships is the second pass over a run's processed records. For
// each relationship rule, the named raw column is split on the separator and
// every non-empty token is resolved to an active CI by exact name. Targets
// that don't exist yet are skipped without error: ordering between sources is
// not guaranteed, a later run closes the gap. Per-item failures are logged
// and never affect the run status.
func (r *Runner) linkRelationships(ctx context.Context, run *runState, logger *slog.Logger) {
	for _, pair := range run.processed {
		for _, rule := range run.cfg.RelationshipMapping {
			value, ok := pair.raw[rule.SourceColumn]
			if !ok {
				continue
			}

			separator := rule.Separator
			if separator == "" {
				separator = ","
			}

			for _, token := range strings.Split(mapper.Stringify(value), separator) {
				targetName := strings.TrimSpace(token)
				if targetName == "" {
					continue
				}
				r.linkOne(ctx, run, pair.ci, targetName, rule.RelationshipType, logger)
			}
		}
	}
}

func (r *Runner) linkOne(ctx context.Context, run *runState, source *models.ConfigurationItem, targetName, relType string, logger *slog.Logger) {
	target, err := r.store.FindCIByName(ctx, targetName)
	if err != nil {
		logger.Warn("relationship target lookup failed", "target", targetName, "error", err)
		return
	}
	if target == nil {
		logger.Debug("relationship target not found", "source_ci", source.Name, "target", targetName)
		return
	}
	if target.ID == source.ID {
		return
	}

	created, err := r.store.CreateRelationship(ctx, &models.Relationship{
		SourceCIID:       source.ID,
		TargetCIID:       target.ID,
		RelationshipType: relType,
	})
	if err != nil {
		logger.Warn("relationship create failed", "source_ci", source.Name, "target", targetName, "error", err)
		return
	}
	if created {
		run.audit.record(models.AuditEntry{
			Action: models.AuditRelationshipCreated,
			CIName: source.Name,
			Target: targetName,
		})
	}
}
