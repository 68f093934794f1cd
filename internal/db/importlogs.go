package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

const importLogColumns = `id, import_source_id, source, status,
	records_processed, records_success, records_created, records_updated,
	records_failed, details, started_at, completed_at`

func scanImportLog(row pgx.Row) (*models.ImportLog, error) {
	var l models.ImportLog
	err := row.Scan(
		&l.ID, &l.ImportSourceID, &l.Source, &l.Status,
		&l.RecordsProcessed, &l.RecordsSuccess, &l.RecordsCreated,
		&l.RecordsUpdated, &l.RecordsFailed, &l.Details,
		&l.StartedAt, &l.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateImportLog inserts the run's log row at run start.
func (c *Client) CreateImportLog(ctx context.Context, l *models.ImportLog) error {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO import_logs (import_source_id, source, status)
		VALUES ($1, $2, $3)
		RETURNING id, started_at
	`, l.ImportSourceID, l.Source, l.Status).Scan(&l.ID, &l.StartedAt)
	if err != nil {
		return fmt.Errorf("create import log: %w", wrapError(err))
	}
	return nil
}

// UpdateImportLog persists the run's current counters, status and details.
// Called after every batch so progress is observable mid-run.
func (c *Client) UpdateImportLog(ctx context.Context, l *models.ImportLog) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE import_logs SET
			status = $2,
			records_processed = $3,
			records_success = $4,
			records_created = $5,
			records_updated = $6,
			records_failed = $7,
			details = $8,
			completed_at = $9
		WHERE id = $1
	`,
		l.ID, l.Status, l.RecordsProcessed, l.RecordsSuccess, l.RecordsCreated,
		l.RecordsUpdated, l.RecordsFailed, l.Details, l.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update import log %d: %w", l.ID, wrapError(err))
	}
	return nil
}

// GetImportLog fetches one run record by id.
func (c *Client) GetImportLog(ctx context.Context, id int64) (*models.ImportLog, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT `+importLogColumns+` FROM import_logs WHERE id = $1
	`, id)

	l, err := scanImportLog(row)
	if err != nil {
		return nil, fmt.Errorf("get import log %d: %w", id, wrapError(err))
	}
	return l, nil
}

// ListImportLogs returns run history, most recent first. A nil sourceID lists
// runs for all sources.
func (c *Client) ListImportLogs(ctx context.Context, sourceID *int64, limit int) ([]*models.ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if sourceID != nil {
		rows, err = c.pool.Query(ctx, `
			SELECT `+importLogColumns+` FROM import_logs
			WHERE import_source_id = $1
			ORDER BY started_at DESC
			LIMIT $2
		`, *sourceID, limit)
	} else {
		rows, err = c.pool.Query(ctx, `
			SELECT `+importLogColumns+` FROM import_logs
			ORDER BY started_at DESC
			LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list import logs: %w", wrapError(err))
	}
	defer rows.Close()

	var logs []*models.ImportLog
	for rows.Next() {
		l, err := scanImportLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
