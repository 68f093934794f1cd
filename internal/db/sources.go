package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

const sourceColumns = `id, name, source_type, connection_params, config,
	is_active, schedule_cron, last_run, created_at, updated_at`

func scanSource(row pgx.Row) (*models.ImportSource, error) {
	var s models.ImportSource
	err := row.Scan(
		&s.ID, &s.Name, &s.SourceType, &s.ConnectionParams, &s.Config,
		&s.IsActive, &s.ScheduleCron, &s.LastRun, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSource fetches one import source by id.
func (c *Client) GetSource(ctx context.Context, id int64) (*models.ImportSource, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT `+sourceColumns+` FROM import_sources WHERE id = $1
	`, id)

	source, err := scanSource(row)
	if err != nil {
		return nil, fmt.Errorf("get source %d: %w", id, wrapError(err))
	}
	return source, nil
}

// GetSourceByName fetches one import source by its unique name.
func (c *Client) GetSourceByName(ctx context.Context, name string) (*models.ImportSource, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT `+sourceColumns+` FROM import_sources WHERE name = $1
	`, name)

	source, err := scanSource(row)
	if err != nil {
		return nil, fmt.Errorf("get source %q: %w", name, wrapError(err))
	}
	return source, nil
}

// ListSources returns all import sources, optionally only active ones.
func (c *Client) ListSources(ctx context.Context, activeOnly bool) ([]*models.ImportSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM import_sources ORDER BY name`
	if activeOnly {
		query = `SELECT ` + sourceColumns + ` FROM import_sources WHERE is_active ORDER BY name`
	}

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", wrapError(err))
	}
	defer rows.Close()

	var sources []*models.ImportSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpsertSource creates or updates an import source keyed by name. Used by
// `sources apply`; connector parameters are persisted as-is and validated
// lazily at connect time.
func (c *Client) UpsertSource(ctx context.Context, s *models.ImportSource) error {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO import_sources (name, source_type, connection_params, config, is_active, schedule_cron)
		VALUES ($1, $2, COALESCE($3, '{}'::jsonb), COALESCE($4, '{}'::jsonb), $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			source_type = EXCLUDED.source_type,
			connection_params = EXCLUDED.connection_params,
			config = EXCLUDED.config,
			is_active = EXCLUDED.is_active,
			schedule_cron = EXCLUDED.schedule_cron,
			updated_at = now()
		RETURNING id, last_run, created_at, updated_at
	`, s.Name, s.SourceType, s.ConnectionParams, s.Config, s.IsActive, s.ScheduleCron,
	).Scan(&s.ID, &s.LastRun, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert source %q: %w", s.Name, wrapError(err))
	}
	return nil
}

// SetSourceActive toggles a source's activation flag.
func (c *Client) SetSourceActive(ctx context.Context, id int64, active bool) error {
	tag, err := c.pool.Exec(ctx, `
		UPDATE import_sources SET is_active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("set source %d active=%t: %w", id, active, wrapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set source %d active: %w", id, ErrNotFound)
	}
	return nil
}

// SetSourceLastRun stamps the source's last successful run, used for
// incremental fetches.
func (c *Client) SetSourceLastRun(ctx context.Context, id int64, t time.Time) error {
	tag, err := c.pool.Exec(ctx, `
		UPDATE import_sources SET last_run = $2, updated_at = now() WHERE id = $1
	`, id, t)
	if err != nil {
		return fmt.Errorf("set source %d last_run: %w", id, wrapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set source %d last_run: %w", id, ErrNotFound)
	}
	return nil
}
