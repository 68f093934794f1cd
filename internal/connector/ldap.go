package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	ldap "github.com/go-ldap/ldap/v3"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

func init() {
	Register("ldap", newLDAPConnector)
}

// ldapConnector imports entries from an LDAP directory (Active Directory
// included) using a paged subtree search. Each page is yielded as one batch,
// so directories of any size stream without buffering the full result.
type ldapConnector struct {
	url        string
	bindDN     string
	password   string
	baseDN     string
	filter     string
	attributes []string
	pageSize   uint32
	tsField    string
	timeout    time.Duration
}

func newLDAPConnector(params map[string]any) (Connector, error) {
	u := stringParam(params, "url", "")
	baseDN := stringParam(params, "base_dn", "")
	if u == "" || baseDN == "" {
		return nil, errors.New("ldap connector requires url and base_dn parameters")
	}

	var attributes []string
	if raw, ok := params["attributes"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				attributes = append(attributes, s)
			}
		}
	}

	return &ldapConnector{
		url:        u,
		bindDN:     stringParam(params, "bind_dn", ""),
		password:   stringParam(params, "password", ""),
		baseDN:     baseDN,
		filter:     stringParam(params, "filter", "(objectClass=*)"),
		attributes: attributes,
		pageSize:   uint32(intParam(params, "page_size", 500)),
		tsField:    timestampFieldParam(params),
		timeout:    timeoutParam(params),
	}, nil
}

func (c *ldapConnector) connect(ctx context.Context) (*ldap.Conn, error) {
	conn, err := ldap.DialURL(c.url, ldap.DialWithDialer(&net.Dialer{Timeout: c.timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	conn.SetTimeout(c.timeout)

	if c.bindDN != "" {
		if err := conn.Bind(c.bindDN, c.password); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind as %s: %w", c.bindDN, err)
		}
	}
	return conn, nil
}

// searchFilter narrows the configured filter to entries modified since the
// cutoff, using the LDAP generalized-time syntax of the timestamp attribute.
func (c *ldapConnector) searchFilter(since *time.Time) string {
	if c.tsField == "" || since == nil {
		return c.filter
	}
	cutoff := since.UTC().Format("20060102150405") + ".0Z"
	return fmt.Sprintf("(&%s(%s>=%s))", c.filter, c.tsField, cutoff)
}

func entryToRecord(entry *ldap.Entry) models.RawRecord {
	rec := models.RawRecord{"dn": entry.DN}
	for _, attr := range entry.Attributes {
		switch len(attr.Values) {
		case 0:
		case 1:
			rec[attr.Name] = attr.Values[0]
		default:
			values := make([]any, len(attr.Values))
			for i, v := range attr.Values {
				values[i] = v
			}
			rec[attr.Name] = values
		}
	}
	return rec
}

func (c *ldapConnector) FetchBatches(ctx context.Context, since *time.Time, fn BatchFunc) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return Unreachable(err)
	}
	defer conn.Close()

	pageControl := ldap.NewControlPaging(c.pageSize)
	request := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		c.searchFilter(since),
		c.attributes,
		[]ldap.Control{pageControl},
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := conn.Search(request)
		if err != nil {
			return fmt.Errorf("ldap search %s: %w", c.baseDN, err)
		}

		batch := make([]models.RawRecord, 0, len(result.Entries))
		for _, entry := range result.Entries {
			batch = append(batch, entryToRecord(entry))
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}

		paging, ok := ldap.FindControl(result.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || len(paging.Cookie) == 0 {
			return nil
		}
		pageControl.SetCookie(paging.Cookie)
	}
}

func (c *ldapConnector) TestConnection(ctx context.Context) bool {
	conn, err := c.connect(ctx)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Schema samples one entry and reports its attribute names.
func (c *ldapConnector) Schema(ctx context.Context) []string {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil
	}
	defer conn.Close()

	request := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		c.filter,
		c.attributes,
		nil,
	)
	// A size-limit result still carries the sampled entry.
	result, err := conn.Search(request)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return nil
	}
	if result == nil || len(result.Entries) == 0 {
		return nil
	}

	fields := []string{"dn"}
	for _, attr := range result.Entries[0].Attributes {
		fields = append(fields, attr.Name)
	}
	sort.Strings(fields)
	return fields
}

func (c *ldapConnector) Categories(ctx context.Context) []Category {
	return nil
}
