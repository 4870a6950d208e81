package digest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/actions"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

func kinds(units []Unit) []UnitKind {
	out := make([]UnitKind, 0, len(units))
	for _, u := range units {
		out = append(out, u.Kind)
	}
	return out
}

func TestComposeNothingDue(t *testing.T) {
	units := Compose(Selection{Today: day("2024-02-05")})
	require.Len(t, units, 1)
	assert.Equal(t, UnitNothingDue, units[0].Kind)
	assert.Equal(t, NothingDueText, units[0].Message.Text)
	assert.Nil(t, units[0].Message.Menu)
}

func TestComposeOrderAndMenus(t *testing.T) {
	sel := Selection{
		Today:           day("2024-02-05"),
		Due:             []contacts.Contact{dueContact("a", "2024-01-31", contacts.PriorityHigh), dueContact("b", "2024-02-07", contacts.PriorityLow)},
		DueTotal:        2,
		Incomplete:      []contacts.Contact{{ID: "u", Name: "U", Circle: circle, Priority: contacts.PriorityHigh}},
		IncompleteTotal: 1,
	}
	units := Compose(sel)
	assert.Equal(t, []UnitKind{UnitHeader, UnitDue, UnitDue, UnitIncompleteHeader, UnitIncomplete}, kinds(units))

	assert.Nil(t, units[0].Message.Menu)
	assert.Equal(t, actions.Menu(actions.VariantNormal, "a"), units[1].Message.Menu)
	assert.Equal(t, "a", units[1].ContactID)
	assert.Nil(t, units[3].Message.Menu)
	assert.Equal(t, actions.Menu(actions.VariantIncomplete, "u"), units[4].Message.Menu)

	assert.Contains(t, units[0].Message.Text, "Дайджест · 05.02.2024")
	assert.Contains(t, units[1].Message.Text, "📅 Просрочено на 5 дн.")
	assert.Contains(t, units[2].Message.Text, "📅 Через 2 дн.")
	assert.Contains(t, units[3].Message.Text, "Нет данных по 1 контактам")
	assert.Contains(t, units[4].Message.Text, "Дата последнего контакта неизвестна")
}

func TestComposeTruncationNotice(t *testing.T) {
	var due []contacts.Contact
	for i := range 5 {
		due = append(due, dueContact(fmt.Sprintf("c%d", i), "2024-02-05", contacts.PriorityHigh))
	}
	header := Compose(Selection{Today: day("2024-02-05"), Due: due, DueTotal: 8})[0].Message.Text
	assert.Contains(t, header, "Показываю 5 из 8")

	header = Compose(Selection{Today: day("2024-02-05"), Due: due, DueTotal: 5})[0].Message.Text
	assert.NotContains(t, header, "Показываю")
}

func TestComposeBirthdayVariants(t *testing.T) {
	sel := Selection{
		Today: day("2024-03-01"),
		Birthdays: []Birthday{
			{Contact: contacts.Contact{Name: "Аня"}, Date: day("2024-03-01"), DaysLeft: 0},
			{Contact: contacts.Contact{Name: "Борис"}, Date: day("2024-03-02"), DaysLeft: 1},
			{Contact: contacts.Contact{Name: "Вера", TelegramPersonal: "https://t.me/vera"}, Date: day("2024-03-15"), DaysLeft: 14},
		},
	}
	units := Compose(sel)
	require.Len(t, units, 1)
	header := units[0].Message.Text
	assert.Contains(t, header, "🎉 <b>Аня</b> — сегодня!")
	assert.Contains(t, header, "🎂 <b>Борис</b> — завтра")
	assert.Contains(t, header, `🎂 <a href="https://t.me/vera">Вера</a> — через 14 дн. (15.03)`)
	assert.NotContains(t, header, "ПОРА СВЯЗАТЬСЯ")
}

func TestComposeCardEscapesAndLimitsNews(t *testing.T) {
	c := dueContact("x", "2024-02-05", contacts.PriorityMedium)
	c.Name = "Tom & <Jerry>"
	c.Occupation = "CEO <b>ACME</b>"
	c.News = "first\n\nsecond\nthird\nfourth " + strings.Repeat("я", 400)
	c.TelegramPersonal = "https://t.me/tomjerry"
	c.Instagram = "https://instagram.com/tom.j/"

	units := Compose(Selection{Today: day("2024-02-05"), Due: []contacts.Contact{c}, DueTotal: 1})
	require.Len(t, units, 2)
	header, card := units[0].Message.Text, units[1].Message.Text

	assert.Contains(t, header, "📰 <b>НОВОСТИ</b>")
	assert.Contains(t, header, `• <a href="https://t.me/tomjerry">Tom &amp; &lt;Jerry&gt;</a> — first`)

	assert.True(t, strings.HasPrefix(card, "🟡 "), card)
	assert.Contains(t, card, "📅 Срок сегодня")
	assert.Contains(t, card, "💼 CEO &lt;b&gt;ACME&lt;/b&gt;")
	assert.Contains(t, card, "first\nsecond\nthird")
	assert.NotContains(t, card, "fourth")
	assert.Contains(t, card, `✈️ <a href="https://t.me/tomjerry">Написать в Telegram</a>`)
	assert.Contains(t, card, "@tom.j</a> в Instagram")
}

func TestEscapeLineCapsLength(t *testing.T) {
	got := escapeLine(strings.Repeat("ж", 310))
	assert.Equal(t, maxNewsLineLen+1, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
