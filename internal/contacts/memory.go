package contacts

import (
	"context"
	"slices"
	"strconv"
	"sync"
)

// MemoryStore is an in-process Store used by tests and dry runs.
// Rows keep insertion order; pages are cut at PageSize.
type MemoryStore struct {
	mu       sync.Mutex
	rows     []Row
	PageSize int
	// CircleField is the field Filter.Circles is matched against.
	CircleField string
	// FailUpdate, when set, is returned by Update and Archive for matching ids.
	FailUpdate func(id string) error
	Writes     []Write
}

// Write records one Update or Archive call.
type Write struct {
	ID      string
	Fields  map[string]Value
	Archive bool
}

func NewMemoryStore(rows ...Row) *MemoryStore {
	return &MemoryStore{rows: slices.Clone(rows), PageSize: 100, CircleField: DefaultSchema().Circle}
}

func (m *MemoryStore) Put(row Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == row.ID {
			m.rows[i] = row
			return
		}
	}
	m.rows = append(m.rows, row)
}

// Row returns a copy of the stored row.
func (m *MemoryStore) Row(id string) (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			return cloneRow(r), true
		}
	}
	return Row{}, false
}

func (m *MemoryStore) Query(ctx context.Context, q Query) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	size := q.PageSize
	if size <= 0 {
		size = m.PageSize
	}
	if size <= 0 {
		size = 100
	}
	start := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil || n < 0 {
			return Page{}, ErrNotFound
		}
		start = n
	}

	var matched []Row
	for _, r := range m.rows {
		if r.Archived {
			continue
		}
		if len(q.Filter.Circles) > 0 && !slices.Contains(q.Filter.Circles, r.Get(m.CircleField).Text) {
			continue
		}
		matched = append(matched, cloneRow(r))
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+size, len(matched))
	page := Page{Rows: matched[start:end]}
	if end < len(matched) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fields map[string]Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailUpdate != nil {
		if err := m.FailUpdate(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID != id || m.rows[i].Archived {
			continue
		}
		if m.rows[i].Fields == nil {
			m.rows[i].Fields = map[string]Value{}
		}
		for k, v := range fields {
			m.rows[i].Fields[k] = v
		}
		m.Writes = append(m.Writes, Write{ID: id, Fields: fields})
		return nil
	}
	return ErrNotFound
}

func (m *MemoryStore) Archive(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailUpdate != nil {
		if err := m.FailUpdate(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Archived = true
			m.Writes = append(m.Writes, Write{ID: id, Archive: true})
			return nil
		}
	}
	return ErrNotFound
}

func cloneRow(r Row) Row {
	out := Row{ID: r.ID, Archived: r.Archived, Fields: make(map[string]Value, len(r.Fields))}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}
