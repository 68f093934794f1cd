package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

func init() {
	Register("proxmox", newProxmoxConnector)
}

// proxmoxConnector imports virtual machines and containers from a Proxmox VE
// cluster. It lists cluster nodes first and then each node's guests; a node
// that fails to answer is skipped so one dead hypervisor does not block the
// inventory of the rest.
type proxmoxConnector struct {
	baseURL string
	headers map[string]string
	node    string
	tsField string
	client  *http.Client
}

func newProxmoxConnector(params map[string]any) (Connector, error) {
	baseURL := strings.TrimRight(stringParam(params, "url", ""), "/")
	tokenID := stringParam(params, "token_id", "")
	tokenSecret := stringParam(params, "token_secret", "")
	if baseURL == "" || tokenID == "" || tokenSecret == "" {
		return nil, errors.New("proxmox connector requires url, token_id and token_secret parameters")
	}

	return &proxmoxConnector{
		baseURL: baseURL,
		headers: map[string]string{
			"Authorization": fmt.Sprintf("PVEAPIToken=%s=%s", tokenID, tokenSecret),
		},
		node:    stringParam(params, "node", ""),
		tsField: timestampFieldParam(params),
		client:  newHTTPClient(timeoutParam(params)),
	}, nil
}

type pveResponse struct {
	Data []map[string]any `json:"data"`
}

func (c *proxmoxConnector) get(ctx context.Context, path string) ([]map[string]any, error) {
	var resp pveResponse
	if err := getJSON(ctx, c.client, c.baseURL+"/api2/json"+path, c.headers, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *proxmoxConnector) nodeNames(ctx context.Context) ([]string, error) {
	if c.node != "" {
		return []string{c.node}, nil
	}
	nodes, err := c.get(ctx, "/nodes")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if name := stringParam(n, "node", ""); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// fetchGuests lists one node's guests of one virtualization type ("qemu" or
// "lxc"), annotating each record with its node and type.
func (c *proxmoxConnector) fetchGuests(ctx context.Context, node, guestType string, since *time.Time) ([]models.RawRecord, error) {
	guests, err := c.get(ctx, fmt.Sprintf("/nodes/%s/%s", node, guestType))
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0, len(guests))
	for _, g := range guests {
		rec := models.RawRecord(g)
		rec["node"] = node
		rec["guest_type"] = guestType
		if includeSince(rec, c.tsField, since) {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (c *proxmoxConnector) FetchBatches(ctx context.Context, since *time.Time, fn BatchFunc) error {
	nodes, err := c.nodeNames(ctx)
	if err != nil {
		return Unreachable(err)
	}

	for _, node := range nodes {
		for _, guestType := range []string{"qemu", "lxc"} {
			records, err := c.fetchGuests(ctx, node, guestType, since)
			if err != nil {
				slog.Warn("skipping proxmox node listing", "node", node, "type", guestType, "error", err)
				continue
			}
			if len(records) == 0 {
				continue
			}
			if err := fn(records); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *proxmoxConnector) TestConnection(ctx context.Context) bool {
	var resp struct {
		Data map[string]any `json:"data"`
	}
	err := getJSON(ctx, c.client, c.baseURL+"/api2/json/version", c.headers, &resp)
	return err == nil
}

// Schema lists the guest-status fields Proxmox reports for both guest types.
func (c *proxmoxConnector) Schema(ctx context.Context) []string {
	return []string{
		"vmid", "name", "status", "node", "guest_type", "cpus", "maxmem",
		"maxdisk", "mem", "disk", "uptime", "tags",
	}
}

func (c *proxmoxConnector) Categories(ctx context.Context) []Category {
	return []Category{
		{ID: "qemu", Name: "Virtual machine"},
		{ID: "lxc", Name: "Container"},
	}
}
