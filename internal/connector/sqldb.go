package connector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

func init() {
	Register("sqldb", newSQLConnector)
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// sqlConnector imports rows from a relational database, either a whole table
// or an arbitrary configured query. Column names become raw field names.
type sqlConnector struct {
	dsn       string
	query     string
	batchSize int
	tsField   string
	timeout   time.Duration
}

func newSQLConnector(params map[string]any) (Connector, error) {
	dsn := stringParam(params, "dsn", "")
	if dsn == "" {
		return nil, errors.New("sqldb connector requires a dsn parameter")
	}

	query := stringParam(params, "query", "")
	if table := stringParam(params, "table", ""); query == "" && table != "" {
		if !identifierRe.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
		query = "SELECT * FROM " + table
	}
	if query == "" {
		return nil, errors.New("sqldb connector requires a query or table parameter")
	}

	tsField := timestampFieldParam(params)
	if tsField != "" && !identifierRe.MatchString(tsField) {
		return nil, fmt.Errorf("invalid timestamp_field %q", tsField)
	}

	return &sqlConnector{
		dsn:       dsn,
		query:     query,
		batchSize: batchSizeParam(params),
		tsField:   tsField,
		timeout:   timeoutParam(params),
	}, nil
}

// connect dials under the configured timeout and bounds every later
// statement server-side, so a hung query cannot stall a run that streams on
// the caller's context.
func (c *sqlConnector) connect(ctx context.Context) (*pgx.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := pgx.Connect(dialCtx, c.dsn)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(dialCtx, statementTimeoutSQL(c.timeout)); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("set statement_timeout: %w", err)
	}
	return conn, nil
}

func statementTimeoutSQL(d time.Duration) string {
	return fmt.Sprintf("SET statement_timeout = %d", d.Milliseconds())
}

// buildQuery wraps the configured query with the incremental cutoff when one
// applies.
func (c *sqlConnector) buildQuery(since *time.Time) (string, []any) {
	if c.tsField == "" || since == nil {
		return c.query, nil
	}
	q := fmt.Sprintf("SELECT * FROM (%s) src WHERE %s >= $1", c.query, c.tsField)
	return q, []any{*since}
}

// streamRows scans a result set into raw records and hands them out in
// batches.
func streamRows(rows pgx.Rows, batchSize int, fn BatchFunc) error {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	batch := make([]models.RawRecord, 0, batchSize)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}

		rec := make(models.RawRecord, len(fields))
		for i, fd := range fields {
			if i < len(values) {
				rec[string(fd.Name)] = normalizeSQLValue(values[i])
			}
		}

		batch = append(batch, rec)
		if len(batch) >= batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]models.RawRecord, 0, batchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read rows: %w", err)
	}

	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// normalizeSQLValue renders driver-specific scalar types in forms the field
// mapper understands.
func normalizeSQLValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []byte:
		return string(t)
	default:
		return v
	}
}

func (c *sqlConnector) FetchBatches(ctx context.Context, since *time.Time, fn BatchFunc) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return Unreachable(err)
	}
	defer conn.Close(ctx)

	query, args := c.buildQuery(since)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return Unreachable(fmt.Errorf("query: %w", err))
	}
	return streamRows(rows, c.batchSize, fn)
}

func (c *sqlConnector) TestConnection(ctx context.Context) bool {
	conn, err := c.connect(ctx)
	if err != nil {
		return false
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx) == nil
}

func (c *sqlConnector) Schema(ctx context.Context) []string {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT * FROM (%s) src LIMIT 0", c.query))
	if err != nil {
		return nil
	}
	defer rows.Close()

	var fields []string
	for _, fd := range rows.FieldDescriptions() {
		fields = append(fields, string(fd.Name))
	}
	return fields
}

func (c *sqlConnector) Categories(ctx context.Context) []Category {
	return nil
}
