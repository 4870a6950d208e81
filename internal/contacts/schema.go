package contacts

import "strings"

// Schema maps logical contact fields to database property names.
type Schema struct {
	Name             string
	Circle           string
	Priority         string
	LastContact      string
	NextContact      string
	FrequencyDays    string
	Instagram        string
	TelegramChannel  string
	TelegramPersonal string
	YouTube          string
	Birthday         string
	Notes            string
	News             string
	Occupation       string
	Goals            string
}

// DefaultSchema returns the property names of the production contact database.
func DefaultSchema() Schema {
	return Schema{
		Name:             "Имя",
		Circle:           "Круг",
		Priority:         "Приоритет",
		LastContact:      "Последний контакт",
		NextContact:      "Следующий контакт",
		FrequencyDays:    "Частота контактов дни",
		Instagram:        "Insta",
		TelegramChannel:  "Telegram канал",
		TelegramPersonal: "Личный TG",
		YouTube:          "YouTube",
		Birthday:         "ДР",
		Notes:            "Заметки",
		News:             "Новости",
		Occupation:       "Чем занимается",
		Goals:            "Цели",
	}
}

// Priority is the ordered contact priority. The zero value is unknown.
type Priority int

const (
	PriorityUnknown Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// Rank orders priorities for sorting: High first, Unknown last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// PriorityLabels maps database select labels to priorities.
type PriorityLabels struct {
	High   string
	Medium string
	Low    string
}

func DefaultPriorityLabels() PriorityLabels {
	return PriorityLabels{High: "Высокий", Medium: "Средний", Low: "Низкий"}
}

// Parse maps a label to a Priority; unrecognized labels are PriorityUnknown.
func (l PriorityLabels) Parse(label string) Priority {
	label = strings.TrimSpace(label)
	switch {
	case label == "":
		return PriorityUnknown
	case strings.EqualFold(label, l.High):
		return PriorityHigh
	case strings.EqualFold(label, l.Medium):
		return PriorityMedium
	case strings.EqualFold(label, l.Low):
		return PriorityLow
	default:
		return PriorityUnknown
	}
}

// ParseAll maps a list of labels, dropping unknown ones.
func (l PriorityLabels) ParseAll(labels []string) []Priority {
	out := make([]Priority, 0, len(labels))
	for _, label := range labels {
		if p := l.Parse(label); p != PriorityUnknown {
			out = append(out, p)
		}
	}
	return out
}
