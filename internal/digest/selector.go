// Package digest selects due contacts, renders the daily digest, and runs
// the reconcile-then-compose cycle.
package digest

import (
	"slices"
	"time"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

// Policy is the immutable selection configuration.
type Policy struct {
	MonitoredCircles   []string
	LookaheadDays      int
	MaxDue             int
	MaxIncomplete      int
	BirthdayWindowDays int
}

func DefaultPolicy(circles []string) Policy {
	return Policy{
		MonitoredCircles:   circles,
		LookaheadDays:      6,
		MaxDue:             5,
		MaxIncomplete:      3,
		BirthdayWindowDays: 14,
	}
}

type Class int

const (
	ClassNone Class = iota
	ClassDue
	ClassIncomplete
)

func (c Class) String() string {
	switch c {
	case ClassDue:
		return "due"
	case ClassIncomplete:
		return "incomplete"
	default:
		return "none"
	}
}

// Birthday is an upcoming birthday inside the window.
type Birthday struct {
	Contact  contacts.Contact
	Date     time.Time
	DaysLeft int
}

// Selection is the capped output of one selector pass. The totals count
// everything that qualified before truncation.
type Selection struct {
	Today           time.Time
	Due             []contacts.Contact
	DueTotal        int
	Incomplete      []contacts.Contact
	IncompleteTotal int
	Birthdays       []Birthday
}

// Truncated reports whether the "showing K of N" notice applies.
func (s Selection) Truncated() bool {
	return s.DueTotal > len(s.Due)
}

// Empty reports that nothing is due, incomplete, or celebrating soon.
func (s Selection) Empty() bool {
	return s.DueTotal == 0 && s.IncompleteTotal == 0 && len(s.Birthdays) == 0
}

type Selector struct {
	policy  Policy
	circles map[string]struct{}
}

func NewSelector(policy Policy) *Selector {
	def := DefaultPolicy(nil)
	if policy.LookaheadDays < 0 {
		policy.LookaheadDays = def.LookaheadDays
	}
	if policy.MaxDue <= 0 {
		policy.MaxDue = def.MaxDue
	}
	if policy.MaxIncomplete <= 0 {
		policy.MaxIncomplete = def.MaxIncomplete
	}
	if policy.BirthdayWindowDays < 0 {
		policy.BirthdayWindowDays = def.BirthdayWindowDays
	}
	circles := make(map[string]struct{}, len(policy.MonitoredCircles))
	for _, c := range policy.MonitoredCircles {
		circles[c] = struct{}{}
	}
	return &Selector{policy: policy, circles: circles}
}

func (s *Selector) Policy() Policy {
	return s.policy
}

// Monitored reports whether the contact's circle takes part in scheduling.
func (s *Selector) Monitored(c contacts.Contact) bool {
	_, ok := s.circles[c.Circle]
	return ok
}

// Classify places one contact. Due wins over incomplete; a contact with a
// computed date beyond the window is not relevant yet.
func (s *Selector) Classify(c contacts.Contact, today time.Time) Class {
	if !s.Monitored(c) {
		return ClassNone
	}
	cutoff := contacts.AddDays(today, s.policy.LookaheadDays)
	if c.HasComputedNext() && !c.ComputedNext.After(cutoff) {
		return ClassDue
	}
	if c.Undated() && c.Priority == contacts.PriorityHigh {
		return ClassIncomplete
	}
	return ClassNone
}

// Select classifies, ranks and caps the collection. Birthdays are scanned
// over the whole collection regardless of circle.
func (s *Selector) Select(all []contacts.Contact, today time.Time) Selection {
	today = contacts.DateOf(today, nil)
	sel := Selection{Today: today}

	var due, incomplete []contacts.Contact
	for _, c := range all {
		switch s.Classify(c, today) {
		case ClassDue:
			due = append(due, c)
		case ClassIncomplete:
			incomplete = append(incomplete, c)
		}
	}
	slices.SortStableFunc(due, compareDue)

	sel.DueTotal = len(due)
	sel.Due = due[:min(len(due), s.policy.MaxDue)]
	sel.IncompleteTotal = len(incomplete)
	sel.Incomplete = incomplete[:min(len(incomplete), s.policy.MaxIncomplete)]
	sel.Birthdays = s.birthdays(all, today)
	return sel
}

func (s *Selector) birthdays(all []contacts.Contact, today time.Time) []Birthday {
	var out []Birthday
	for _, c := range all {
		next, days, ok := c.NextBirthday(today)
		if !ok || days < 0 || days > s.policy.BirthdayWindowDays {
			continue
		}
		out = append(out, Birthday{Contact: c, Date: next, DaysLeft: days})
	}
	slices.SortStableFunc(out, func(a, b Birthday) int { return a.DaysLeft - b.DaysLeft })
	return out
}

// compareDue orders by computed date ascending (undefined last), then priority.
func compareDue(a, b contacts.Contact) int {
	switch {
	case a.HasComputedNext() && !b.HasComputedNext():
		return -1
	case !a.HasComputedNext() && b.HasComputedNext():
		return 1
	}
	if c := a.ComputedNext.Compare(b.ComputedNext); c != 0 {
		return c
	}
	return a.Priority.Rank() - b.Priority.Rank()
}
