package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// RelationshipExists reports whether an identical source/target/type triple
// is already stored.
func (c *Client) RelationshipExists(ctx context.Context, sourceCIID, targetCIID int64, relType string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM relationships
			WHERE source_ci_id = $1 AND target_ci_id = $2 AND relationship_type = $3
		)
	`, sourceCIID, targetCIID, relType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("relationship exists: %w", wrapError(err))
	}
	return exists, nil
}

// CreateRelationship inserts a CI-to-CI relationship. Idempotent: an existing
// identical triple is left untouched and reported via created=false.
func (c *Client) CreateRelationship(ctx context.Context, r *models.Relationship) (bool, error) {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO relationships (source_ci_id, target_ci_id, relationship_type, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_ci_id, target_ci_id, relationship_type) DO NOTHING
		RETURNING id, created_at
	`, r.SourceCIID, r.TargetCIID, r.RelationshipType, r.Description).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		if errors.Is(wrapError(err), ErrNotFound) { // no row returned: conflict, already present
			return false, nil
		}
		return false, fmt.Errorf("create relationship: %w", wrapError(err))
	}
	return true, nil
}
