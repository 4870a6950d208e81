package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrNotFound is returned by stores when the target row does not exist.
var ErrNotFound = errors.New("contact not found")

// maxPages bounds pagination against a backend that keeps returning a cursor.
const maxPages = 1000

// MaxTextRunes is the longest text value written back to the database.
const MaxTextRunes = 2000

type Filter struct {
	// Circles restricts rows to these circle labels; empty means every row.
	Circles []string
}

type Query struct {
	Filter   Filter
	Cursor   string
	PageSize int
}

type Page struct {
	Rows       []Row
	NextCursor string
	HasMore    bool
}

// Store is the contact database client.
type Store interface {
	Query(ctx context.Context, q Query) (Page, error)
	Update(ctx context.Context, id string, fields map[string]Value) error
	Archive(ctx context.Context, id string) error
}

// Service reads contacts through a Store and performs the named field writes.
type Service struct {
	store  Store
	schema Schema
	labels PriorityLabels
}

func NewService(store Store, schema Schema, labels PriorityLabels) *Service {
	return &Service{store: store, schema: schema, labels: labels}
}

func (s *Service) Schema() Schema {
	return s.schema
}

func (s *Service) Labels() PriorityLabels {
	return s.labels
}

// List drains every page matching filter and converts the rows. Archived rows are skipped.
func (s *Service) List(ctx context.Context, filter Filter) ([]Contact, error) {
	if s.store == nil {
		return nil, fmt.Errorf("contacts store not configured")
	}
	var (
		out    []Contact
		cursor string
	)
	for page := 0; page < maxPages; page++ {
		res, err := s.store.Query(ctx, Query{Filter: filter, Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("query contacts: %w", err)
		}
		for _, row := range res.Rows {
			if row.Archived {
				continue
			}
			out = append(out, FromRow(row, s.schema, s.labels))
		}
		if !res.HasMore || res.NextCursor == "" || res.NextCursor == cursor {
			return out, nil
		}
		cursor = res.NextCursor
	}
	return out, fmt.Errorf("query contacts: more than %d pages", maxPages)
}

func (s *Service) SetLastContact(ctx context.Context, id string, day time.Time) error {
	return s.update(ctx, id, s.schema.LastContact, DateValue(day))
}

func (s *Service) SetNextContact(ctx context.Context, id string, day time.Time) error {
	return s.update(ctx, id, s.schema.NextContact, DateValue(day))
}

func (s *Service) SetNews(ctx context.Context, id, text string) error {
	return s.update(ctx, id, s.schema.News, TextValue(truncateRunes(text, MaxTextRunes)))
}

func (s *Service) SetOccupation(ctx context.Context, id, text string) error {
	return s.update(ctx, id, s.schema.Occupation, TextValue(truncateRunes(text, MaxTextRunes)))
}

func (s *Service) Archive(ctx context.Context, id string) error {
	if s.store == nil {
		return fmt.Errorf("contacts store not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}
	if err := s.store.Archive(ctx, id); err != nil {
		return fmt.Errorf("archive contact %s: %w", id, err)
	}
	return nil
}

func (s *Service) update(ctx context.Context, id, field string, value Value) error {
	if s.store == nil {
		return fmt.Errorf("contacts store not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}
	if field == "" {
		return fmt.Errorf("update contact %s: field not mapped", id)
	}
	if err := s.store.Update(ctx, id, map[string]Value{field: value}); err != nil {
		return fmt.Errorf("update contact %s %q: %w", id, field, err)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
