package telegram

import (
	"html"
	"sort"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// entitiesToHTML rebuilds Telegram HTML from a received message's plain text
// and entities. Offsets are in UTF-16 code units. Unknown entity types are
// rendered as plain (escaped) text.
func entitiesToHTML(text string, entities []tgbotapi.MessageEntity) string {
	if len(entities) == 0 {
		return html.EscapeString(text)
	}

	type span struct {
		start, end int
		open       string
		close      string
	}
	spans := make([]span, 0, len(entities))
	for _, e := range entities {
		open, closeTag := entityTags(e)
		if open == "" || e.Length <= 0 {
			continue
		}
		spans = append(spans, span{start: e.Offset, end: e.Offset + e.Length, open: open, close: closeTag})
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	var (
		b     strings.Builder
		stack []span
		pos   int
	)
	// Overlapping entities that do not nest are split: every tag above the
	// ending one is closed and reopened after it.
	closeUntil := func(at int) {
		first := -1
		for i, sp := range stack {
			if sp.end <= at {
				first = i
				break
			}
		}
		if first < 0 {
			return
		}
		for i := len(stack) - 1; i >= first; i-- {
			b.WriteString(stack[i].close)
		}
		rest := append([]span(nil), stack[first:]...)
		stack = stack[:first]
		for _, sp := range rest {
			if sp.end > at {
				b.WriteString(sp.open)
				stack = append(stack, sp)
			}
		}
	}
	next := 0
	for _, r := range text {
		closeUntil(pos)
		for next < len(spans) && spans[next].start <= pos {
			b.WriteString(spans[next].open)
			stack = append(stack, spans[next])
			next++
		}
		b.WriteString(html.EscapeString(string(r)))
		pos += len(utf16.Encode([]rune{r}))
	}
	for len(stack) > 0 {
		b.WriteString(stack[len(stack)-1].close)
		stack = stack[:len(stack)-1]
	}
	return b.String()
}

func entityTags(e tgbotapi.MessageEntity) (string, string) {
	switch e.Type {
	case "bold":
		return "<b>", "</b>"
	case "italic":
		return "<i>", "</i>"
	case "underline":
		return "<u>", "</u>"
	case "strikethrough":
		return "<s>", "</s>"
	case "spoiler":
		return "<tg-spoiler>", "</tg-spoiler>"
	case "code":
		return "<code>", "</code>"
	case "pre":
		return "<pre>", "</pre>"
	case "text_link":
		if e.URL == "" {
			return "", ""
		}
		return `<a href="` + html.EscapeString(e.URL) + `">`, "</a>"
	default:
		return "", ""
	}
}
