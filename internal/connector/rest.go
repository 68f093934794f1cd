package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/mapper"
	"github.com/cmdb-tools/cmdbsync/internal/models"
)

func init() {
	Register("rest", newRESTConnector)
}

// restConnector pulls records from a generic JSON-over-HTTP endpoint. The
// response layout is configured, not assumed: records_path points at the list
// inside the response body (empty when the body is the list itself), and
// page_param/page_size enable query-string pagination when the API offers it.
type restConnector struct {
	endpoint    string
	headers     map[string]string
	recordsPath string
	pageParam   string
	pageSize    int
	batchSize   int
	tsField     string
	sinceParam  string
	client      *http.Client
}

func newRESTConnector(params map[string]any) (Connector, error) {
	endpoint := stringParam(params, "url", "")
	if endpoint == "" {
		return nil, errors.New("rest connector requires a url parameter")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("rest connector url: %w", err)
	}

	headers := headerParams(params, "headers")
	if token := stringParam(params, "bearer_token", ""); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	return &restConnector{
		endpoint:    endpoint,
		headers:     headers,
		recordsPath: stringParam(params, "records_path", ""),
		pageParam:   stringParam(params, "page_param", ""),
		pageSize:    intParam(params, "page_size", 100),
		batchSize:   batchSizeParam(params),
		tsField:     timestampFieldParam(params),
		sinceParam:  stringParam(params, "since_param", ""),
		client:      newHTTPClient(timeoutParam(params)),
	}, nil
}

func (c *restConnector) FetchBatches(ctx context.Context, since *time.Time, fn BatchFunc) error {
	page := 1
	for {
		records, err := c.fetchPage(ctx, page, since)
		if err != nil {
			if page == 1 {
				return Unreachable(err)
			}
			// Later pages cannot be retried without restarting pagination;
			// keep what was already handed out.
			slog.Warn("rest fetch stopped mid-pagination", "url", c.endpoint, "page", page, "error", err)
			return nil
		}

		filtered := records[:0]
		for _, rec := range records {
			if includeSince(rec, c.tsField, since) {
				filtered = append(filtered, rec)
			}
		}
		if err := chunkRecords(filtered, c.batchSize, fn); err != nil {
			return err
		}

		if c.pageParam == "" || len(records) < c.pageSize {
			return nil
		}
		page++
	}
}

func (c *restConnector) fetchPage(ctx context.Context, page int, since *time.Time) ([]models.RawRecord, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if c.pageParam != "" {
		q.Set(c.pageParam, strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.pageSize))
	}
	if c.sinceParam != "" && since != nil {
		q.Set(c.sinceParam, since.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	var body any
	if err := getJSON(ctx, c.client, u.String(), c.headers, &body); err != nil {
		return nil, err
	}
	return c.extractRecords(body)
}

// extractRecords walks records_path into the response body and converts the
// list found there.
func (c *restConnector) extractRecords(body any) ([]models.RawRecord, error) {
	current := body
	if c.recordsPath != "" {
		for _, segment := range strings.Split(c.recordsPath, ".") {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("records_path %q: segment %q not found", c.recordsPath, segment)
			}
			current, ok = obj[segment]
			if !ok {
				return nil, fmt.Errorf("records_path %q: segment %q not found", c.recordsPath, segment)
			}
		}
	}
	items, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("response at records_path %q is not a list", c.recordsPath)
	}
	return asRecords(items), nil
}

func (c *restConnector) TestConnection(ctx context.Context) bool {
	_, err := c.fetchPage(ctx, 1, nil)
	return err == nil
}

func (c *restConnector) Schema(ctx context.Context) []string {
	records, err := c.fetchPage(ctx, 1, nil)
	if err != nil || len(records) == 0 {
		return nil
	}
	fields := mapper.FlattenRecord(records[0])
	sort.Strings(fields)
	return fields
}

func (c *restConnector) Categories(ctx context.Context) []Category {
	return nil
}
