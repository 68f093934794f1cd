package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

const ciColumns = `id, name, ci_type, status, description, owner, location,
	environment, cost_center, domain, os_db_system, service_provider, contact,
	sla, eol, technical_details, COALESCE(external_id, ''), import_source_id,
	last_sync, raw_data, created_at, updated_at, deleted_at`

func scanCI(row pgx.Row) (*models.ConfigurationItem, error) {
	var ci models.ConfigurationItem
	err := row.Scan(
		&ci.ID, &ci.Name, &ci.CIType, &ci.Status, &ci.Description, &ci.Owner,
		&ci.Location, &ci.Environment, &ci.CostCenter, &ci.Domain,
		&ci.OSDBSystem, &ci.ServiceProvider, &ci.Contact, &ci.SLA, &ci.EOL,
		&ci.TechnicalDetails, &ci.ExternalID, &ci.ImportSourceID, &ci.LastSync,
		&ci.RawData, &ci.CreatedAt, &ci.UpdatedAt, &ci.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ci, nil
}

// FindCIByExternalID looks up the CI identified by (external_id,
// import_source_id). This is the stable identity path, robust to renames.
// Returns (nil, nil) when no CI matches.
func (c *Client) FindCIByExternalID(ctx context.Context, externalID string, sourceID int64) (*models.ConfigurationItem, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT `+ciColumns+`
		FROM configuration_items
		WHERE external_id = $1 AND import_source_id = $2
	`, externalID, sourceID)

	ci, err := scanCI(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ci by external id: %w", wrapError(err))
	}
	return ci, nil
}

// FindCIByField looks up a CI by one canonical field value, optionally
// case-insensitively. Active CIs are preferred over soft-deleted ones so a
// re-observed deleted CI can be resurrected rather than duplicated.
// Returns (nil, nil) when no CI matches.
func (c *Client) FindCIByField(ctx context.Context, field, value string, caseInsensitive bool) (*models.ConfigurationItem, error) {
	// Field names come from source configuration; restrict to the canonical
	// field table before interpolating a column name.
	if _, ok := models.CIFields[field]; !ok {
		return nil, fmt.Errorf("unknown field %q", field)
	}

	cond := field + " = $1"
	if caseInsensitive {
		cond = "lower(" + field + ") = lower($1)"
	}

	row := c.pool.QueryRow(ctx, `
		SELECT `+ciColumns+`
		FROM configuration_items
		WHERE `+cond+`
		ORDER BY (deleted_at IS NULL) DESC, id
		LIMIT 1
	`, value)

	ci, err := scanCI(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ci by %s: %w", field, wrapError(err))
	}
	return ci, nil
}

// FindCIByName looks up an active CI by exact name. Used by the relationship
// pass. Returns (nil, nil) when no CI matches.
func (c *Client) FindCIByName(ctx context.Context, name string) (*models.ConfigurationItem, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT `+ciColumns+`
		FROM configuration_items
		WHERE name = $1 AND deleted_at IS NULL
		ORDER BY id
		LIMIT 1
	`, name)

	ci, err := scanCI(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ci by name: %w", wrapError(err))
	}
	return ci, nil
}

// CreateCI inserts a new configuration item and fills in its generated fields.
func (c *Client) CreateCI(ctx context.Context, ci *models.ConfigurationItem) error {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO configuration_items (
			name, ci_type, status, description, owner, location, environment,
			cost_center, domain, os_db_system, service_provider, contact, sla,
			eol, technical_details, external_id, import_source_id, last_sync,
			raw_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, NULLIF($16, ''), $17, $18, COALESCE($19, '{}'::jsonb))
		RETURNING id, created_at, updated_at
	`,
		ci.Name, ci.CIType, ci.Status, ci.Description, ci.Owner, ci.Location,
		ci.Environment, ci.CostCenter, ci.Domain, ci.OSDBSystem,
		ci.ServiceProvider, ci.Contact, ci.SLA, ci.EOL, ci.TechnicalDetails,
		ci.ExternalID, ci.ImportSourceID, ci.LastSync, ci.RawData,
	).Scan(&ci.ID, &ci.CreatedAt, &ci.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create ci: %w", wrapError(err))
	}
	return nil
}

// UpdateCI persists all mutable fields of a configuration item.
func (c *Client) UpdateCI(ctx context.Context, ci *models.ConfigurationItem) error {
	err := c.pool.QueryRow(ctx, `
		UPDATE configuration_items SET
			name = $2, ci_type = $3, status = $4, description = $5, owner = $6,
			location = $7, environment = $8, cost_center = $9, domain = $10,
			os_db_system = $11, service_provider = $12, contact = $13,
			sla = $14, eol = $15, technical_details = $16,
			external_id = NULLIF($17, ''), import_source_id = $18,
			last_sync = $19, raw_data = COALESCE($20, '{}'::jsonb),
			deleted_at = $21, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`,
		ci.ID, ci.Name, ci.CIType, ci.Status, ci.Description, ci.Owner,
		ci.Location, ci.Environment, ci.CostCenter, ci.Domain, ci.OSDBSystem,
		ci.ServiceProvider, ci.Contact, ci.SLA, ci.EOL, ci.TechnicalDetails,
		ci.ExternalID, ci.ImportSourceID, ci.LastSync, ci.RawData, ci.DeletedAt,
	).Scan(&ci.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update ci %d: %w", ci.ID, wrapError(err))
	}
	return nil
}

// GetCI fetches one configuration item by id.
func (c *Client) GetCI(ctx context.Context, id int64) (*models.ConfigurationItem, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT `+ciColumns+`
		FROM configuration_items
		WHERE id = $1
	`, id)

	ci, err := scanCI(row)
	if err != nil {
		return nil, fmt.Errorf("get ci %d: %w", id, wrapError(err))
	}
	return ci, nil
}
