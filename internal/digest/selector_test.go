package digest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

const circle = "Партнер"

func day(s string) time.Time {
	d, ok := contacts.ParseDate(s)
	if !ok {
		panic("bad date " + s)
	}
	return d
}

func dueContact(id, next string, p contacts.Priority) contacts.Contact {
	d := day(next)
	return contacts.Contact{ID: id, Name: id, Circle: circle, Priority: p, NextContact: d, ComputedNext: d}
}

func testSelector() *Selector {
	return NewSelector(DefaultPolicy([]string{circle, "Близкий круг"}))
}

func ids(cs []contacts.Contact) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestClassify(t *testing.T) {
	sel := testSelector()
	today := day("2024-02-05")

	tests := []struct {
		name string
		c    contacts.Contact
		want Class
	}{
		{"overdue", dueContact("a", "2024-01-31", contacts.PriorityLow), ClassDue},
		{"edge of window", dueContact("b", "2024-02-11", contacts.PriorityLow), ClassDue},
		{"beyond window", dueContact("c", "2024-02-12", contacts.PriorityHigh), ClassNone},
		{"undated high", contacts.Contact{ID: "d", Circle: circle, Priority: contacts.PriorityHigh}, ClassIncomplete},
		{"undated medium", contacts.Contact{ID: "e", Circle: circle, Priority: contacts.PriorityMedium}, ClassNone},
		{"last without frequency", contacts.Contact{ID: "f", Circle: circle, Priority: contacts.PriorityHigh, LastContact: day("2024-01-01")}, ClassNone},
		{"unmonitored circle", contacts.Contact{ID: "g", Circle: "Коллеги", Priority: contacts.PriorityHigh}, ClassNone},
		{"no circle", contacts.Contact{ID: "h", Priority: contacts.PriorityHigh, ComputedNext: day("2024-01-01")}, ClassNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sel.Classify(tt.c, today); got != tt.want {
				t.Fatalf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSelectOrdersByDateThenPriority(t *testing.T) {
	all := []contacts.Contact{
		dueContact("late-low", "2024-02-08", contacts.PriorityLow),
		dueContact("early-medium", "2024-01-20", contacts.PriorityMedium),
		dueContact("late-high", "2024-02-08", contacts.PriorityHigh),
		dueContact("late-unknown", "2024-02-08", contacts.PriorityUnknown),
	}
	got := testSelector().Select(all, day("2024-02-05"))
	assert.Equal(t, []string{"early-medium", "late-high", "late-low", "late-unknown"}, ids(got.Due))
}

func TestSelectIsIdempotent(t *testing.T) {
	var all []contacts.Contact
	for i := range 12 {
		all = append(all, dueContact(fmt.Sprintf("c%02d", i), fmt.Sprintf("2024-02-%02d", 1+i%4), contacts.Priority(i%4)))
		all = append(all, contacts.Contact{ID: fmt.Sprintf("u%02d", i), Circle: circle, Priority: contacts.PriorityHigh})
	}
	sel := testSelector()
	today := day("2024-02-05")
	first := sel.Select(all, today)
	second := sel.Select(all, today)
	assert.Equal(t, first, second)
}

func TestSelectDisplayCap(t *testing.T) {
	sel := testSelector()
	today := day("2024-02-05")
	for _, total := range []int{0, 3, 5, 6, 11} {
		var all []contacts.Contact
		for i := range total {
			all = append(all, dueContact(fmt.Sprintf("c%d", i), "2024-02-01", contacts.PriorityHigh))
		}
		got := sel.Select(all, today)
		assert.Equal(t, min(5, total), len(got.Due), "total %d", total)
		assert.Equal(t, total, got.DueTotal)
		assert.Equal(t, total > 5, got.Truncated(), "total %d", total)
	}
}

func TestSelectIncompleteCapKeepsFirstSeen(t *testing.T) {
	var all []contacts.Contact
	for i := range 5 {
		all = append(all, contacts.Contact{ID: fmt.Sprintf("u%d", i), Circle: circle, Priority: contacts.PriorityHigh})
	}
	got := testSelector().Select(all, day("2024-02-05"))
	assert.Equal(t, []string{"u0", "u1", "u2"}, ids(got.Incomplete))
	assert.Equal(t, 5, got.IncompleteTotal)
}

func TestSelectBirthdayWindow(t *testing.T) {
	today := day("2024-03-01")
	all := []contacts.Contact{
		{ID: "in14", Circle: "Коллеги", Birthday: day("1990-03-15")},
		{ID: "out15", Circle: circle, Birthday: day("1990-03-16")},
		{ID: "today", Birthday: day("1985-03-01")},
		{ID: "passed", Circle: circle, Birthday: day("1985-02-28")},
	}
	got := testSelector().Select(all, today)
	require.Len(t, got.Birthdays, 2)
	assert.Equal(t, "today", got.Birthdays[0].Contact.ID)
	assert.Equal(t, 0, got.Birthdays[0].DaysLeft)
	assert.Equal(t, "in14", got.Birthdays[1].Contact.ID)
	assert.Equal(t, 14, got.Birthdays[1].DaysLeft)
	assert.Equal(t, day("2024-03-15"), got.Birthdays[1].Date)
	assert.False(t, got.Empty())
}

func TestSelectFromRowsEndToEnd(t *testing.T) {
	schema := contacts.DefaultSchema()
	labels := contacts.DefaultPriorityLabels()
	rows := []contacts.Row{
		{ID: "freq", Fields: map[string]contacts.Value{
			schema.Circle:        contacts.SelectValue(circle),
			schema.LastContact:   contacts.DateValue(day("2024-01-01")),
			schema.FrequencyDays: contacts.NumberValue(30),
		}},
		{ID: "stranger", Fields: map[string]contacts.Value{
			schema.Circle:      contacts.SelectValue("Коллеги"),
			schema.NextContact: contacts.DateValue(day("2024-01-01")),
			schema.Priority:    contacts.SelectValue(labels.High),
		}},
		{ID: "stranger-undated", Fields: map[string]contacts.Value{
			schema.Priority: contacts.SelectValue(labels.High),
		}},
	}
	var all []contacts.Contact
	for _, r := range rows {
		all = append(all, contacts.FromRow(r, schema, labels))
	}

	today := day("2024-02-05")
	got := testSelector().Select(all, today)
	require.Equal(t, []string{"freq"}, ids(got.Due))
	assert.Equal(t, day("2024-01-31"), got.Due[0].ComputedNext)
	overdue, ok := got.Due[0].DueIn(today)
	require.True(t, ok)
	assert.Equal(t, -5, overdue)
	assert.Empty(t, got.Incomplete)
}

func TestSelectEmpty(t *testing.T) {
	got := testSelector().Select([]contacts.Contact{dueContact("far", "2025-01-01", contacts.PriorityHigh)}, day("2024-02-05"))
	assert.True(t, got.Empty())
	assert.Equal(t, day("2024-02-05"), got.Today)
}
