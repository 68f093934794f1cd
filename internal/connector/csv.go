package connector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

func init() {
	Register("csv", newCSVConnector)
}

// csvConnector streams delimited flat files. The first row is the header; it
// becomes the raw field names of every record.
type csvConnector struct {
	path      string
	delimiter rune
	batchSize int
	tsField   string
}

func newCSVConnector(params map[string]any) (Connector, error) {
	path := stringParam(params, "path", "")
	if path == "" {
		return nil, errors.New("csv connector requires a path parameter")
	}

	delimiter := ','
	if d := stringParam(params, "delimiter", ","); d != "" {
		delimiter = []rune(d)[0]
	}

	return &csvConnector{
		path:      path,
		delimiter: delimiter,
		batchSize: batchSizeParam(params),
		tsField:   timestampFieldParam(params),
	}, nil
}

func (c *csvConnector) FetchBatches(ctx context.Context, since *time.Time, fn BatchFunc) error {
	f, err := os.Open(c.path)
	if err != nil {
		return Unreachable(err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = c.delimiter
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Unreachable(fmt.Errorf("read header of %s: %w", c.path, err))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	batch := make([]models.RawRecord, 0, c.batchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", c.path, err)
		}

		rec := make(models.RawRecord, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		if !includeSince(rec, c.tsField, since) {
			continue
		}

		batch = append(batch, rec)
		if len(batch) >= c.batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]models.RawRecord, 0, c.batchSize)
		}
	}

	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

func (c *csvConnector) TestConnection(ctx context.Context) bool {
	info, err := os.Stat(c.path)
	return err == nil && !info.IsDir()
}

func (c *csvConnector) Schema(ctx context.Context) []string {
	f, err := os.Open(c.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = c.delimiter
	header, err := reader.Read()
	if err != nil {
		return nil
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return header
}

func (c *csvConnector) Categories(ctx context.Context) []Category {
	return nil
}
