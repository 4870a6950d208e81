package notion

import (
	"strings"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

type richText struct {
	PlainText string `json:"plain_text"`
}

type option struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string `json:"start"`
}

type formulaValue struct {
	Type    string     `json:"type"`
	String  *string    `json:"string"`
	Number  *float64   `json:"number"`
	Date    *dateValue `json:"date"`
	Boolean *bool      `json:"boolean"`
}

// property is one page property as returned by the API. Only the field
// matching Type is populated.
type property struct {
	Type        string        `json:"type"`
	Title       []richText    `json:"title"`
	RichText    []richText    `json:"rich_text"`
	Select      *option       `json:"select"`
	Status      *option       `json:"status"`
	MultiSelect []option      `json:"multi_select"`
	Date        *dateValue    `json:"date"`
	Number      *float64      `json:"number"`
	URL         *string       `json:"url"`
	Email       *string       `json:"email"`
	PhoneNumber *string       `json:"phone_number"`
	Formula     *formulaValue `json:"formula"`
}

type page struct {
	Object     string              `json:"object"`
	ID         string              `json:"id"`
	Archived   bool                `json:"archived"`
	InTrash    bool                `json:"in_trash"`
	Properties map[string]property `json:"properties"`
}

type queryResponse struct {
	Results    []page  `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

func joinText(parts []richText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return b.String()
}

// decodeProperty converts a property to a Value. Types the contact model
// has no use for decode to Absent.
func decodeProperty(p property) contacts.Value {
	switch p.Type {
	case "title":
		return contacts.TextValue(joinText(p.Title))
	case "rich_text":
		return contacts.TextValue(joinText(p.RichText))
	case "select":
		if p.Select != nil {
			return contacts.SelectValue(p.Select.Name)
		}
	case "status":
		if p.Status != nil {
			return contacts.SelectValue(p.Status.Name)
		}
	case "multi_select":
		names := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			names = append(names, o.Name)
		}
		return contacts.SelectValue(strings.Join(names, ", "))
	case "date":
		if p.Date != nil {
			return contacts.Value{Kind: contacts.KindDate, Text: p.Date.Start}
		}
	case "number":
		if p.Number != nil {
			return contacts.NumberValue(*p.Number)
		}
	case "url":
		if p.URL != nil {
			return contacts.URLValue(*p.URL)
		}
	case "email", "phone_number":
		if p.Email != nil {
			return contacts.TextValue(*p.Email)
		}
		if p.PhoneNumber != nil {
			return contacts.TextValue(*p.PhoneNumber)
		}
	case "formula":
		return decodeFormula(p.Formula)
	}
	return contacts.Absent
}

func decodeFormula(f *formulaValue) contacts.Value {
	if f == nil {
		return contacts.Absent
	}
	switch {
	case f.Type == "string" && f.String != nil:
		return contacts.TextValue(*f.String)
	case f.Type == "number" && f.Number != nil:
		return contacts.NumberValue(*f.Number)
	case f.Type == "date" && f.Date != nil:
		return contacts.Value{Kind: contacts.KindDate, Text: f.Date.Start}
	}
	return contacts.Absent
}

func decodePage(p page) contacts.Row {
	row := contacts.Row{
		ID:       p.ID,
		Archived: p.Archived || p.InTrash,
		Fields:   make(map[string]contacts.Value, len(p.Properties)),
	}
	for name, prop := range p.Properties {
		if v := decodeProperty(prop); !v.IsAbsent() {
			row.Fields[name] = v
		}
	}
	return row
}

func textObjects(s string) []map[string]any {
	if s == "" {
		return []map[string]any{}
	}
	return []map[string]any{{"type": "text", "text": map[string]any{"content": s}}}
}

// encodeValue renders a Value as a property update. An absent value
// clears the property.
func encodeValue(v contacts.Value, title bool) map[string]any {
	if title {
		return map[string]any{"title": textObjects(v.Text)}
	}
	switch v.Kind {
	case contacts.KindDate:
		if d, ok := contacts.ParseDate(v.Text); ok {
			return map[string]any{"date": map[string]any{"start": contacts.FormatDate(d)}}
		}
		return map[string]any{"date": nil}
	case contacts.KindNumber:
		if v.IsAbsent() {
			return map[string]any{"number": nil}
		}
		return map[string]any{"number": v.Number}
	case contacts.KindSelect:
		if v.IsAbsent() {
			return map[string]any{"select": nil}
		}
		return map[string]any{"select": map[string]any{"name": v.Text}}
	case contacts.KindURL:
		if v.IsAbsent() {
			return map[string]any{"url": nil}
		}
		return map[string]any{"url": v.Text}
	default:
		return map[string]any{"rich_text": textObjects(v.Text)}
	}
}
