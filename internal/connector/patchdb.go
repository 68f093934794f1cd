package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

func init() {
	Register("patchdb", newPatchDBConnector)
}

// patchColumns is the well-known result shape of a patch-management
// reporting database. The source schema is fixed; only the table name varies
// between deployments.
var patchColumns = []string{
	"hostname", "os_name", "os_version", "agent_version",
	"patch_level", "patches_missing", "last_seen",
}

// patchDBConnector reads host patch status from a patch-management reporting
// database. Unlike sqldb it carries no configurable query: the column set is
// part of the source contract, which keeps field mappings portable across
// deployments.
type patchDBConnector struct {
	sql *sqlConnector
}

func newPatchDBConnector(params map[string]any) (Connector, error) {
	dsn := stringParam(params, "dsn", "")
	if dsn == "" {
		return nil, errors.New("patchdb connector requires a dsn parameter")
	}

	table := stringParam(params, "table", "patch_status")
	if !identifierRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	return &patchDBConnector{
		sql: &sqlConnector{
			dsn:       dsn,
			query:     fmt.Sprintf("SELECT %s FROM %s", strings.Join(patchColumns, ", "), table),
			batchSize: batchSizeParam(params),
			tsField:   "last_seen",
			timeout:   timeoutParam(params),
		},
	}, nil
}

func (c *patchDBConnector) FetchBatches(ctx context.Context, since *time.Time, fn BatchFunc) error {
	return c.sql.FetchBatches(ctx, since, fn)
}

func (c *patchDBConnector) TestConnection(ctx context.Context) bool {
	conn, err := c.sql.connect(ctx)
	if err != nil {
		return false
	}
	defer conn.Close(ctx)

	// Probe the contract, not just the connection: a reachable database
	// without the expected table is still a misconfigured source.
	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT * FROM (%s) src LIMIT 0", c.sql.query))
	if err != nil {
		return false
	}
	rows.Close()
	return rows.Err() == nil
}

func (c *patchDBConnector) Schema(ctx context.Context) []string {
	return append([]string(nil), patchColumns...)
}

func (c *patchDBConnector) Categories(ctx context.Context) []Category {
	return nil
}
