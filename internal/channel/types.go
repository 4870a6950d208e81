// Package channel defines the chat transport contracts: outbound digest units,
// action menus, and the inbound button-press events they produce.
package channel

import "strings"

// Button is one inline action button. Data is the opaque callback payload.
type Button struct {
	Text string
	Data string
}

// ActionMenu is a grid of buttons attached to one message.
type ActionMenu struct {
	Rows [][]Button
}

func (m *ActionMenu) Empty() bool {
	if m == nil {
		return true
	}
	for _, row := range m.Rows {
		if len(row) > 0 {
			return false
		}
	}
	return true
}

// OutboundMessage is one renderable unit in Telegram HTML.
// A nil Menu sends no buttons; on edit it removes the existing ones.
type OutboundMessage struct {
	Text string
	Menu *ActionMenu
}

// MessageRef identifies a delivered message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}

// Event is one button press.
type Event struct {
	// ID is the transport's monotonically increasing event id; it is the cursor value.
	ID int64
	// CallbackID is what Acknowledge answers.
	CallbackID string
	Data       string
	Message    MessageRef
	// MessageHTML is the originating message re-rendered as Telegram HTML.
	MessageHTML string
}

// Batch is an ordered run of events. HighWater is the highest id the
// transport delivered, including updates that produced no Event.
type Batch struct {
	Events    []Event
	HighWater int64
}

// Ack is the short confirmation shown when a press is answered.
type Ack struct {
	Text  string
	Alert bool
}

// SummarizeText shortens text for log attributes.
func SummarizeText(text string) string {
	const limit = 120
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
