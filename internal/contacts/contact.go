package contacts

import (
	"math"
	"strings"
	"time"
)

// DefaultName is shown for rows without a title.
const DefaultName = "Без имени"

// Contact is the normalized view of one database row.
// Zero dates and a zero FrequencyDays mean the field is absent.
type Contact struct {
	ID            string
	Name          string
	Circle        string
	Priority      Priority
	PriorityLabel string

	LastContact   time.Time
	NextContact   time.Time
	FrequencyDays int
	ComputedNext  time.Time

	Instagram        string
	TelegramChannel  string
	TelegramPersonal string
	YouTube          string
	Birthday         time.Time

	Notes      string
	News       string
	Occupation string
	Goals      string
}

// FromRow builds a Contact from a raw row. It never fails: missing,
// malformed or mistyped fields become absent.
func FromRow(row Row, schema Schema, labels PriorityLabels) Contact {
	c := Contact{
		ID:               row.ID,
		Name:             row.Text(schema.Name),
		Circle:           row.Select(schema.Circle),
		PriorityLabel:    row.Select(schema.Priority),
		Instagram:        row.URL(schema.Instagram),
		TelegramChannel:  row.URL(schema.TelegramChannel),
		TelegramPersonal: row.URL(schema.TelegramPersonal),
		YouTube:          row.URL(schema.YouTube),
		Notes:            row.Text(schema.Notes),
		News:             row.Text(schema.News),
		Occupation:       row.Text(schema.Occupation),
		Goals:            row.Text(schema.Goals),
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	c.Priority = labels.Parse(c.PriorityLabel)

	if d, ok := row.Date(schema.LastContact); ok {
		c.LastContact = d
	}
	if d, ok := row.Date(schema.NextContact); ok {
		c.NextContact = d
	}
	if d, ok := row.Date(schema.Birthday); ok {
		c.Birthday = d
	}
	if n, ok := row.Number(schema.FrequencyDays); ok && n > 0 && n == math.Trunc(n) && n < math.MaxInt32 {
		c.FrequencyDays = int(n)
	}
	c.ComputedNext = computeNext(c.LastContact, c.NextContact, c.FrequencyDays)
	return c
}

// computeNext resolves the next contact date: an explicit date wins,
// otherwise last contact plus frequency, otherwise undefined.
func computeNext(last, next time.Time, frequency int) time.Time {
	if !next.IsZero() {
		return next
	}
	if !last.IsZero() && frequency > 0 {
		return AddDays(last, frequency)
	}
	return time.Time{}
}

// HasComputedNext reports whether a next contact date could be resolved.
func (c Contact) HasComputedNext() bool {
	return !c.ComputedNext.IsZero()
}

// Undated reports whether neither the last nor the next contact date is set.
func (c Contact) Undated() bool {
	return c.LastContact.IsZero() && c.NextContact.IsZero()
}

// DueIn returns the days from today until ComputedNext; negative means overdue.
func (c Contact) DueIn(today time.Time) (int, bool) {
	if !c.HasComputedNext() {
		return 0, false
	}
	return DaysBetween(today, c.ComputedNext), true
}

// NextBirthday returns the next occurrence of the birthday on or after today
// and the number of days until it. Feb 29 falls on Feb 28 in common years.
func (c Contact) NextBirthday(today time.Time) (time.Time, int, bool) {
	if c.Birthday.IsZero() {
		return time.Time{}, 0, false
	}
	today = DateOf(today, nil)
	next := birthdayIn(c.Birthday, today.Year())
	if next.Before(today) {
		next = birthdayIn(c.Birthday, today.Year()+1)
	}
	return next, DaysBetween(today, next), true
}

func birthdayIn(b time.Time, year int) time.Time {
	month, day := b.Month(), b.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TelegramUsername is the personal Telegram username, if the link is a public one.
func (c Contact) TelegramUsername() string {
	return ParseTelegramHandle(c.TelegramPersonal)
}

// InstagramHandle is the Instagram username from the profile link.
func (c Contact) InstagramHandle() string {
	return ParseInstagramHandle(c.Instagram)
}

// TelegramChannelHandle is the public channel name from the channel link.
func (c Contact) TelegramChannelHandle() string {
	return ParseTelegramHandle(c.TelegramChannel)
}

// NewsLines returns the non-empty trimmed lines of the news field.
func (c Contact) NewsLines() []string {
	return nonEmptyLines(c.News)
}

// ReferenceURL links to the contact's page in the Notion UI.
func ReferenceURL(id string) string {
	return "https://www.notion.so/" + strings.ReplaceAll(id, "-", "")
}

// RecordReference names a contact stored in a backend without a page UI.
func RecordReference(id string) string {
	return "ID контакта: " + id
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
