package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

var _ contacts.Store = (*Store)(nil)

type column struct {
	field string
	name  string
	kind  contacts.Kind
}

// Columns maps the schema's field names onto the contact table columns.
// Fields with an empty name are left out.
func Columns(schema contacts.Schema) []column {
	all := []column{
		{schema.Name, "name", contacts.KindText},
		{schema.Circle, "circle", contacts.KindSelect},
		{schema.Priority, "priority", contacts.KindSelect},
		{schema.LastContact, "last_contact", contacts.KindDate},
		{schema.NextContact, "next_contact", contacts.KindDate},
		{schema.FrequencyDays, "frequency_days", contacts.KindNumber},
		{schema.Instagram, "instagram", contacts.KindURL},
		{schema.TelegramChannel, "telegram_channel", contacts.KindURL},
		{schema.TelegramPersonal, "telegram_personal", contacts.KindURL},
		{schema.YouTube, "youtube", contacts.KindURL},
		{schema.Birthday, "birthday", contacts.KindDate},
		{schema.Notes, "notes", contacts.KindText},
		{schema.News, "news", contacts.KindText},
		{schema.Occupation, "occupation", contacts.KindText},
		{schema.Goals, "goals", contacts.KindText},
	}
	out := make([]column, 0, len(all))
	for _, c := range all {
		if strings.TrimSpace(c.field) != "" {
			out = append(out, c)
		}
	}
	return out
}

// Store reads and writes contacts in one table. Rows are paged by id.
type Store struct {
	db      DBTX
	logger  *slog.Logger
	table   string
	columns []column
	byField map[string]column
}

func NewStore(log *slog.Logger, db DBTX, table string, schema contacts.Schema) *Store {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	cols := Columns(schema)
	byField := make(map[string]column, len(cols))
	for _, c := range cols {
		byField[c.field] = c
	}
	return &Store{
		db:      db,
		logger:  log.With(slog.String("client", "postgres")),
		table:   pgx.Identifier{table}.Sanitize(),
		columns: cols,
		byField: byField,
	}
}

func (s *Store) selectSQL(q contacts.Query) (string, []any, int) {
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	names := make([]string, 0, len(s.columns)+1)
	names = append(names, "id")
	for _, c := range s.columns {
		names = append(names, c.name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE NOT archived AND id > $1", strings.Join(names, ", "), s.table)
	args := []any{q.Cursor}
	if len(q.Filter.Circles) > 0 {
		args = append(args, q.Filter.Circles)
		fmt.Fprintf(&b, " AND circle = ANY($%d)", len(args))
	}
	args = append(args, size+1)
	fmt.Fprintf(&b, " ORDER BY id LIMIT $%d", len(args))
	return b.String(), args, size
}

func scanTargets(cols []column) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		switch c.kind {
		case contacts.KindDate:
			out[i] = &pgtype.Date{}
		case contacts.KindNumber:
			out[i] = &pgtype.Int4{}
		default:
			out[i] = &pgtype.Text{}
		}
	}
	return out
}

func decodeTargets(id string, cols []column, targets []any) contacts.Row {
	row := contacts.Row{ID: id, Fields: make(map[string]contacts.Value, len(cols))}
	for i, c := range cols {
		var v contacts.Value
		switch t := targets[i].(type) {
		case *pgtype.Text:
			if t.Valid {
				v = contacts.Value{Kind: c.kind, Text: t.String}
			}
		case *pgtype.Date:
			if t.Valid && t.InfinityModifier == pgtype.Finite {
				v = contacts.DateValue(t.Time)
			}
		case *pgtype.Int4:
			if t.Valid {
				v = contacts.NumberValue(float64(t.Int32))
			}
		}
		if !v.IsAbsent() {
			row.Fields[c.field] = v
		}
	}
	return row
}

// Query reads one page ordered by id. The cursor is the last id returned.
func (s *Store) Query(ctx context.Context, q contacts.Query) (contacts.Page, error) {
	sql, args, size := s.selectSQL(q)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return contacts.Page{}, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var page contacts.Page
	for rows.Next() {
		var id string
		targets := scanTargets(s.columns)
		if err := rows.Scan(append([]any{&id}, targets...)...); err != nil {
			return contacts.Page{}, fmt.Errorf("scan contact: %w", err)
		}
		page.Rows = append(page.Rows, decodeTargets(id, s.columns, targets))
	}
	if err := rows.Err(); err != nil {
		return contacts.Page{}, fmt.Errorf("query contacts: %w", err)
	}
	if len(page.Rows) > size {
		page.Rows = page.Rows[:size]
		page.HasMore = true
		page.NextCursor = page.Rows[size-1].ID
	}
	return page, nil
}

func encodeColumn(c column, v contacts.Value) (any, error) {
	switch c.kind {
	case contacts.KindDate:
		if v.IsAbsent() {
			return pgtype.Date{}, nil
		}
		d, ok := contacts.ParseDate(v.Text)
		if !ok {
			return nil, fmt.Errorf("field %q: invalid date %q", c.field, v.Text)
		}
		return pgtype.Date{Time: d, Valid: true}, nil
	case contacts.KindNumber:
		if v.IsAbsent() {
			return pgtype.Int4{}, nil
		}
		if v.Kind != contacts.KindNumber {
			n, err := strconv.Atoi(strings.TrimSpace(v.Text))
			if err != nil {
				return nil, fmt.Errorf("field %q: want a number, got %s", c.field, v.Kind)
			}
			return pgtype.Int4{Int32: int32(n), Valid: true}, nil
		}
		return pgtype.Int4{Int32: int32(math.Round(v.Number)), Valid: true}, nil
	default:
		if v.IsAbsent() {
			return pgtype.Text{}, nil
		}
		return pgtype.Text{String: v.Text, Valid: true}, nil
	}
}

func (s *Store) updateSQL(id string, fields map[string]contacts.Value) (string, []any, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	args := []any{id}
	sets := make([]string, 0, len(names)+1)
	for _, name := range names {
		c, ok := s.byField[name]
		if !ok {
			return "", nil, fmt.Errorf("no column for field %q", name)
		}
		val, err := encodeColumn(c, fields[name])
		if err != nil {
			return "", nil, err
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", c.name, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1 AND NOT archived", s.table, strings.Join(sets, ", "))
	return sql, args, nil
}

func (s *Store) Update(ctx context.Context, id string, fields map[string]contacts.Value) error {
	if len(fields) == 0 {
		return nil
	}
	sql, args, err := s.updateSQL(id, fields)
	if err != nil {
		return fmt.Errorf("update contact %s: %w", id, err)
	}
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update contact %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update contact %s: %w", id, contacts.ErrNotFound)
	}
	return nil
}

func (s *Store) Archive(ctx context.Context, id string) error {
	sql := fmt.Sprintf("UPDATE %s SET archived = TRUE, updated_at = now() WHERE id = $1", s.table)
	tag, err := s.db.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("archive contact %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("archive contact %s: %w", id, contacts.ErrNotFound)
	}
	s.logger.Debug("contact archived", slog.String("id", id))
	return nil
}
