package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

var _ contacts.Store = (*Client)(nil)

// Query reads one page of the contact database.
func (c *Client) Query(ctx context.Context, q contacts.Query) (contacts.Page, error) {
	size := q.PageSize
	if size <= 0 || size > maxPageSize {
		size = c.cfg.PageSize
	}
	body := map[string]any{"page_size": size}
	if q.Cursor != "" {
		body["start_cursor"] = q.Cursor
	}
	if f := c.circleFilter(q.Filter); f != nil {
		body["filter"] = f
	}

	var resp queryResponse
	path := "/databases/" + url.PathEscape(c.cfg.DatabaseID) + "/query"
	if err := c.call(ctx, http.MethodPost, path, body, &resp); err != nil {
		return contacts.Page{}, fmt.Errorf("query database: %w", err)
	}

	out := contacts.Page{Rows: make([]contacts.Row, 0, len(resp.Results)), HasMore: resp.HasMore}
	if resp.NextCursor != nil {
		out.NextCursor = *resp.NextCursor
	}
	for _, p := range resp.Results {
		out.Rows = append(out.Rows, decodePage(p))
	}
	return out, nil
}

func (c *Client) circleFilter(f contacts.Filter) map[string]any {
	if len(f.Circles) == 0 || c.cfg.CircleField == "" {
		return nil
	}
	or := make([]map[string]any, 0, len(f.Circles))
	for _, circle := range f.Circles {
		or = append(or, map[string]any{
			"property": c.cfg.CircleField,
			"select":   map[string]any{"equals": circle},
		})
	}
	return map[string]any{"or": or}
}

// Update patches the named properties of one page.
func (c *Client) Update(ctx context.Context, id string, fields map[string]contacts.Value) error {
	props := make(map[string]any, len(fields))
	for name, v := range fields {
		props[name] = encodeValue(v, name == c.cfg.TitleField)
	}
	path := "/pages/" + url.PathEscape(id)
	if err := c.call(ctx, http.MethodPatch, path, map[string]any{"properties": props}, nil); err != nil {
		return fmt.Errorf("update page %s: %w", id, err)
	}
	return nil
}

// Archive moves the page to the trash.
func (c *Client) Archive(ctx context.Context, id string) error {
	path := "/pages/" + url.PathEscape(id)
	if err := c.call(ctx, http.MethodPatch, path, map[string]any{"archived": true}, nil); err != nil {
		return fmt.Errorf("archive page %s: %w", id, err)
	}
	return nil
}
