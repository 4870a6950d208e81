package contacts

import (
	"math"
	"strings"
	"time"
)

// Kind is the closed set of value variants a database field can hold.
type Kind int

const (
	KindAbsent Kind = iota
	KindText
	KindDate
	KindNumber
	KindSelect
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindNumber:
		return "number"
	case KindSelect:
		return "select"
	case KindURL:
		return "url"
	default:
		return "absent"
	}
}

// Value is one typed field value. The zero Value is absent.
// Dates are carried in Text as YYYY-MM-DD.
type Value struct {
	Kind   Kind
	Text   string
	Number float64
}

// Absent is the explicit "no value" variant.
var Absent = Value{}

func TextValue(s string) Value   { return Value{Kind: KindText, Text: s} }
func SelectValue(s string) Value { return Value{Kind: KindSelect, Text: s} }
func URLValue(s string) Value    { return Value{Kind: KindURL, Text: s} }
func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Number: n}
}
func DateValue(d time.Time) Value {
	return Value{Kind: KindDate, Text: FormatDate(d)}
}

// IsAbsent reports whether v carries no usable value.
func (v Value) IsAbsent() bool {
	switch v.Kind {
	case KindAbsent:
		return true
	case KindNumber:
		return math.IsNaN(v.Number)
	default:
		return strings.TrimSpace(v.Text) == ""
	}
}

// Row is one raw database row: a field-name keyed map of typed values.
type Row struct {
	ID       string
	Archived bool
	Fields   map[string]Value
}

// Get returns the named field or Absent.
func (r Row) Get(name string) Value {
	if r.Fields == nil || name == "" {
		return Absent
	}
	v, ok := r.Fields[name]
	if !ok || v.IsAbsent() {
		return Absent
	}
	return v
}

// Text returns text, select and url fields as trimmed strings; other kinds yield "".
func (r Row) Text(name string) string {
	v := r.Get(name)
	switch v.Kind {
	case KindText, KindSelect, KindURL:
		return strings.TrimSpace(v.Text)
	default:
		return ""
	}
}

// Select returns a select field's option name.
func (r Row) Select(name string) string {
	v := r.Get(name)
	if v.Kind != KindSelect && v.Kind != KindText {
		return ""
	}
	return strings.TrimSpace(v.Text)
}

// URL returns a url field, also accepting text that holds a link.
func (r Row) URL(name string) string {
	v := r.Get(name)
	if v.Kind != KindURL && v.Kind != KindText {
		return ""
	}
	return strings.TrimSpace(v.Text)
}

// Number returns a numeric field.
func (r Row) Number(name string) (float64, bool) {
	v := r.Get(name)
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Number, true
}

// Date returns a date field as a civil date. Malformed dates are absent.
func (r Row) Date(name string) (time.Time, bool) {
	v := r.Get(name)
	if v.Kind != KindDate && v.Kind != KindText {
		return time.Time{}, false
	}
	return ParseDate(v.Text)
}
