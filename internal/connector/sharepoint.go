package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/mapper"
	"github.com/cmdb-tools/cmdbsync/internal/models"
)

func init() {
	Register("sharepoint", newSharePointConnector)
}

// detailBatchSize is the number of list items fetched per detail request.
// Keeps individual REST responses small enough that one oversized item
// cannot stall the whole run.
const detailBatchSize = 50

// sharepointConnector imports items of one SharePoint list. It fetches the
// full id inventory first, then item details in fixed-size id ranges; a
// failed detail range is skipped so the rest of the list still imports.
type sharepointConnector struct {
	siteURL   string
	listTitle string
	headers   map[string]string
	tsField   string
	client    *http.Client
}

func newSharePointConnector(params map[string]any) (Connector, error) {
	siteURL := strings.TrimRight(stringParam(params, "site_url", ""), "/")
	listTitle := stringParam(params, "list_title", "")
	if siteURL == "" || listTitle == "" {
		return nil, errors.New("sharepoint connector requires site_url and list_title parameters")
	}

	headers := headerParams(params, "headers")
	headers["Accept"] = "application/json;odata=nometadata"
	if token := stringParam(params, "bearer_token", ""); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	return &sharepointConnector{
		siteURL:   siteURL,
		listTitle: listTitle,
		headers:   headers,
		tsField:   timestampFieldParam(params),
		client:    newHTTPClient(timeoutParam(params)),
	}, nil
}

func (c *sharepointConnector) itemsURL(query string) string {
	return fmt.Sprintf("%s/_api/web/lists/getbytitle('%s')/items?%s",
		c.siteURL, url.PathEscape(c.listTitle), query)
}

type spItemList struct {
	Value []map[string]any `json:"value"`
}

// fetchIDs lists all item ids, paging by id ranges. An error here aborts the
// run: without the inventory nothing can be imported.
func (c *sharepointConnector) fetchIDs(ctx context.Context, since *time.Time) ([]int, error) {
	filter := "Id gt %d"
	if c.tsField != "" && since != nil {
		filter += fmt.Sprintf(" and %s ge datetime'%s'",
			c.tsField, since.UTC().Format("2006-01-02T15:04:05Z"))
	}

	var ids []int
	lastID := 0
	for {
		q := url.Values{}
		q.Set("$select", "Id")
		q.Set("$orderby", "Id")
		q.Set("$top", "5000")
		q.Set("$filter", fmt.Sprintf(filter, lastID))

		var page spItemList
		if err := getJSON(ctx, c.client, c.itemsURL(q.Encode()), c.headers, &page); err != nil {
			return nil, err
		}
		if len(page.Value) == 0 {
			break
		}
		before := len(ids)
		for _, item := range page.Value {
			id := intParam(item, "Id", 0)
			if id > lastID {
				ids = append(ids, id)
				lastID = id
			}
		}
		// A server ignoring the id filter keeps replaying the same page;
		// stop as soon as a page contributes nothing new.
		if len(ids) == before {
			break
		}
	}
	return ids, nil
}

// fetchDetails loads full item payloads for one contiguous id range.
func (c *sharepointConnector) fetchDetails(ctx context.Context, firstID, lastID int) ([]models.RawRecord, error) {
	q := url.Values{}
	q.Set("$orderby", "Id")
	q.Set("$top", fmt.Sprintf("%d", detailBatchSize))
	q.Set("$filter", fmt.Sprintf("Id ge %d and Id le %d", firstID, lastID))

	var page spItemList
	if err := getJSON(ctx, c.client, c.itemsURL(q.Encode()), c.headers, &page); err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0, len(page.Value))
	for _, item := range page.Value {
		records = append(records, models.RawRecord(item))
	}
	return records, nil
}

func (c *sharepointConnector) FetchBatches(ctx context.Context, since *time.Time, fn BatchFunc) error {
	ids, err := c.fetchIDs(ctx, since)
	if err != nil {
		return Unreachable(err)
	}

	for start := 0; start < len(ids); start += detailBatchSize {
		end := start + detailBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		records, err := c.fetchDetails(ctx, chunk[0], chunk[len(chunk)-1])
		if err != nil {
			slog.Warn("skipping sharepoint detail batch",
				"list", c.listTitle, "first_id", chunk[0], "last_id", chunk[len(chunk)-1], "error", err)
			continue
		}
		if err := fn(records); err != nil {
			return err
		}
	}
	return nil
}

func (c *sharepointConnector) TestConnection(ctx context.Context) bool {
	q := url.Values{}
	q.Set("$select", "Id")
	q.Set("$top", "1")
	var page spItemList
	return getJSON(ctx, c.client, c.itemsURL(q.Encode()), c.headers, &page) == nil
}

func (c *sharepointConnector) Schema(ctx context.Context) []string {
	q := url.Values{}
	q.Set("$top", "1")
	var page spItemList
	if err := getJSON(ctx, c.client, c.itemsURL(q.Encode()), c.headers, &page); err != nil || len(page.Value) == 0 {
		return nil
	}
	fields := mapper.FlattenRecord(models.RawRecord(page.Value[0]))
	sort.Strings(fields)
	return fields
}

// Categories lists the site's other lists, the closest thing SharePoint has
// to an object-type taxonomy.
func (c *sharepointConnector) Categories(ctx context.Context) []Category {
	var lists spItemList
	u := c.siteURL + "/_api/web/lists?$select=Id,Title&$filter=Hidden eq false"
	if err := getJSON(ctx, c.client, u, c.headers, &lists); err != nil {
		return nil
	}

	categories := make([]Category, 0, len(lists.Value))
	for _, l := range lists.Value {
		categories = append(categories, Category{
			ID:   stringParam(l, "Id", ""),
			Name: stringParam(l, "Title", ""),
		})
	}
	return categories
}
