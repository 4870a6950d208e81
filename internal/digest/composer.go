package digest

import (
	"fmt"
	"html"
	"strings"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/actions"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

// UnitKind tags each rendered unit so the sender can pace sections.
type UnitKind int

const (
	UnitHeader UnitKind = iota
	UnitDue
	UnitIncompleteHeader
	UnitIncomplete
	UnitNothingDue
)

func (k UnitKind) String() string {
	switch k {
	case UnitHeader:
		return "header"
	case UnitDue:
		return "due"
	case UnitIncompleteHeader:
		return "incomplete_header"
	case UnitIncomplete:
		return "incomplete"
	default:
		return "nothing_due"
	}
}

// Unit is one message of the digest.
type Unit struct {
	Kind      UnitKind
	ContactID string
	Message   channel.OutboundMessage
}

const (
	// NothingDueText is sent instead of the digest when nothing qualifies.
	NothingDueText = "☀️ <b>Доброе утро!</b>\n\nСегодня нет контактов, требующих внимания. Хороший день!"

	maxNewsLines   = 3
	maxNewsLineLen = 300
)

// Compose renders a selection: header, one card per displayed due contact
// with the normal menu, then the incomplete header and its cards with the
// incomplete menu. An empty selection yields the single nothing-due unit.
func Compose(sel Selection) []Unit {
	if sel.Empty() {
		return []Unit{{Kind: UnitNothingDue, Message: channel.OutboundMessage{Text: NothingDueText}}}
	}

	units := []Unit{{Kind: UnitHeader, Message: channel.OutboundMessage{Text: renderHeader(sel)}}}
	for _, c := range sel.Due {
		units = append(units, Unit{
			Kind:      UnitDue,
			ContactID: c.ID,
			Message: channel.OutboundMessage{
				Text: renderDueCard(c, sel),
				Menu: actions.Menu(actions.VariantNormal, c.ID),
			},
		})
	}
	if sel.IncompleteTotal > 0 {
		units = append(units, Unit{Kind: UnitIncompleteHeader, Message: channel.OutboundMessage{Text: renderIncompleteHeader(sel.IncompleteTotal)}})
		for _, c := range sel.Incomplete {
			units = append(units, Unit{
				Kind:      UnitIncomplete,
				ContactID: c.ID,
				Message: channel.OutboundMessage{
					Text: renderIncompleteCard(c),
					Menu: actions.Menu(actions.VariantIncomplete, c.ID),
				},
			})
		}
	}
	return units
}

func renderHeader(sel Selection) string {
	lines := []string{fmt.Sprintf("☀️ <b>Дайджест · %s</b>", sel.Today.Format("02.01.2006"))}

	if len(sel.Birthdays) > 0 {
		lines = append(lines, "", "🎂 <b>Дни рождения:</b>")
		for _, b := range sel.Birthdays {
			name := nameLink(b.Contact)
			switch b.DaysLeft {
			case 0:
				lines = append(lines, fmt.Sprintf("  🎉 %s — сегодня!", name))
			case 1:
				lines = append(lines, fmt.Sprintf("  🎂 %s — завтра", name))
			default:
				lines = append(lines, fmt.Sprintf("  🎂 %s — через %d дн. (%s)", name, b.DaysLeft, b.Date.Format("02.01")))
			}
		}
	}

	var news []string
	for _, c := range sel.Due {
		if lines := c.NewsLines(); len(lines) > 0 {
			news = append(news, fmt.Sprintf("• %s — %s", nameLink(c), escapeLine(lines[0])))
		}
	}
	if len(news) > 0 {
		lines = append(lines, "", "━━━ 📰 <b>НОВОСТИ</b> ━━━")
		lines = append(lines, news...)
	}

	if sel.DueTotal > 0 {
		lines = append(lines, "", "━━━ 📞 <b>ПОРА СВЯЗАТЬСЯ</b> ━━━")
		if sel.Truncated() {
			lines = append(lines, fmt.Sprintf("<i>Показываю %d из %d — самые горячие</i>", len(sel.Due), sel.DueTotal))
		}
	}
	return strings.Join(lines, "\n")
}

func renderDueCard(c contacts.Contact, sel Selection) string {
	lines := []string{fmt.Sprintf("%s %s · %s", priorityMarker(c.Priority), nameLink(c), html.EscapeString(c.Circle))}

	if days, ok := c.DueIn(sel.Today); ok {
		switch {
		case days < 0:
			lines = append(lines, fmt.Sprintf("📅 Просрочено на %d дн.", -days))
		case days == 0:
			lines = append(lines, "📅 Срок сегодня")
		default:
			lines = append(lines, fmt.Sprintf("📅 Через %d дн.", days))
		}
	} else {
		lines = append(lines, "📅 Дата неизвестна")
	}

	if c.Occupation != "" {
		lines = append(lines, "💼 "+html.EscapeString(c.Occupation))
	}

	if news := c.NewsLines(); len(news) > 0 {
		lines = append(lines, "", "📌 <b>Последнее:</b>")
		for _, line := range news[:min(len(news), maxNewsLines)] {
			lines = append(lines, escapeLine(line))
		}
	}

	var links []string
	if u := c.TelegramUsername(); u != "" {
		links = append(links, fmt.Sprintf(`✈️ <a href="%s">Написать в Telegram</a>`, html.EscapeString("https://t.me/"+u)))
	}
	if c.Instagram != "" {
		handle := c.InstagramHandle()
		if handle == "" {
			trimmed := strings.TrimRight(c.Instagram, "/")
			handle = strings.TrimPrefix(trimmed[strings.LastIndex(trimmed, "/")+1:], "@")
		}
		links = append(links, fmt.Sprintf(`📸 <a href="%s">@%s</a> в Instagram`, html.EscapeString(c.Instagram), html.EscapeString(handle)))
	}
	if len(links) > 0 {
		lines = append(lines, "")
		lines = append(lines, links...)
	}
	return strings.Join(lines, "\n")
}

func renderIncompleteHeader(total int) string {
	return fmt.Sprintf("━━━ ❓ <b>ОБНОВЛЕНИЕ БАЗЫ</b> ━━━\nНет данных по %d контактам с высоким приоритетом.\n<i>Когда последний раз общались?</i>", total)
}

func renderIncompleteCard(c contacts.Contact) string {
	return fmt.Sprintf("👤 %s · %s\n📅 Дата последнего контакта неизвестна", nameLink(c), html.EscapeString(c.Circle))
}

// nameLink links the name to the personal Telegram account when known.
func nameLink(c contacts.Contact) string {
	name := html.EscapeString(c.Name)
	if u := c.TelegramUsername(); u != "" {
		return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString("https://t.me/"+u), name)
	}
	return "<b>" + name + "</b>"
}

func priorityMarker(p contacts.Priority) string {
	switch p {
	case contacts.PriorityHigh:
		return "🔴"
	case contacts.PriorityMedium:
		return "🟡"
	case contacts.PriorityLow:
		return "🟢"
	default:
		return "⚪"
	}
}

func escapeLine(s string) string {
	runes := []rune(s)
	if len(runes) > maxNewsLineLen {
		s = string(runes[:maxNewsLineLen]) + "…"
	}
	return html.EscapeString(s)
}
