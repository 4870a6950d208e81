// Package actions turns digest button presses into contact writes.
package actions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

// Verb is the action a button requests. The values are the wire codes
// carried in callback data, so menus sent by earlier releases still decode.
type Verb string

const (
	VerbDone          Verb = "done"
	VerbSnooze        Verb = "snooze"
	VerbApproxRecent  Verb = "recent"
	VerbApproxMedium  Verb = "medium"
	VerbApproxLong    Verb = "long_ago"
	VerbDelete        Verb = "delete"
	VerbOpenReference Verb = "notion"
)

var (
	ErrUnknownVerb   = errors.New("unknown action verb")
	ErrMissingTarget = errors.New("action target missing")
)

// Separator joins verb, target and the optional extra payload in callback data.
const Separator = "|"

// MaxDataLen is Telegram's callback_data limit in bytes.
const MaxDataLen = 64

var verbs = map[string]Verb{
	"done":           VerbDone,
	"snooze":         VerbSnooze,
	"recent":         VerbApproxRecent,
	"approx-recent":  VerbApproxRecent,
	"medium":         VerbApproxMedium,
	"approx-medium":  VerbApproxMedium,
	"long_ago":       VerbApproxLong,
	"approx-long":    VerbApproxLong,
	"delete":         VerbDelete,
	"notion":         VerbOpenReference,
	"open-reference": VerbOpenReference,
}

// ParseVerb resolves a wire code or its spelled-out alias.
func ParseVerb(s string) (Verb, bool) {
	v, ok := verbs[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// Writes reports whether the verb changes the contact.
func (v Verb) Writes() bool {
	return v != VerbOpenReference
}

// Action is one decoded button press.
type Action struct {
	Verb   Verb
	Target string
	Extra  string
}

// Encode builds callback data for a verb and page id. Dashes are dropped
// from the id when the full form would exceed MaxDataLen.
func Encode(verb Verb, pageID string) string {
	data := string(verb) + Separator + pageID
	if len(data) > MaxDataLen {
		data = string(verb) + Separator + strings.ReplaceAll(pageID, "-", "")
	}
	return data
}

// Decode parses "verb|page_id[|extra]".
func Decode(data string) (Action, error) {
	parts := strings.SplitN(strings.TrimSpace(data), Separator, 3)
	verb, ok := ParseVerb(parts[0])
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownVerb, parts[0])
	}
	a := Action{Verb: verb}
	if len(parts) > 1 {
		a.Target = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		a.Extra = parts[2]
	}
	if a.Target == "" {
		return a, fmt.Errorf("%w: %s", ErrMissingTarget, verb)
	}
	return a, nil
}

// Variant selects the button set attached to a digest card.
type Variant string

const (
	VariantNormal     Variant = "normal"
	VariantIncomplete Variant = "incomplete"
)

// Menu builds the action menu for a contact card.
func Menu(variant Variant, pageID string) *channel.ActionMenu {
	button := func(text string, verb Verb) channel.Button {
		return channel.Button{Text: text, Data: Encode(verb, pageID)}
	}
	switch variant {
	case VariantIncomplete:
		return &channel.ActionMenu{Rows: [][]channel.Button{
			{button("📅 Недавно", VerbApproxRecent), button("🕐 1-3 месяца", VerbApproxMedium)},
			{button("⏳ Давно (3+)", VerbApproxLong), button("🗑 Удалить", VerbDelete)},
		}}
	default:
		return &channel.ActionMenu{Rows: [][]channel.Button{
			{button("✅ Связался", VerbDone)},
			{button("⏭ Через неделю", VerbSnooze), button("🗑 Удалить", VerbDelete)},
			{button("📋 Открыть в Notion", VerbOpenReference)},
		}}
	}
}

// Policy holds the day offsets applied by the write verbs and the reference
// text revealed by open-reference. A nil Reference links to the Notion page.
type Policy struct {
	SnoozeDays  int
	RecentDays  int
	MediumDays  int
	LongAgoDays int
	Reference   func(id string) string
}

func (p Policy) reference(id string) string {
	if p.Reference == nil {
		return contacts.ReferenceURL(id)
	}
	return p.Reference(id)
}

func DefaultPolicy() Policy {
	return Policy{SnoozeDays: 7, RecentDays: 7, MediumDays: 45, LongAgoDays: 120}
}
