package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/textgen"
)

const (
	maxBullets        = 4
	maxBulletRunes    = 200
	maxBioRunes       = 300
	noNewsPlaceholder = "• Нет значимых событий"
)

// LLMNews asks the text generator for the key facts in the posts.
type LLMNews struct {
	Gen textgen.Summarizer
}

func (LLMNews) Name() string { return "llm-news" }

func (l LLMNews) Generate(ctx context.Context, s Subject) (string, error) {
	if l.Gen == nil {
		return "", textgen.ErrUnavailable
	}
	if len(s.Posts) == 0 {
		return "", nil
	}
	texts := make([]string, 0, len(s.Posts))
	for _, p := range s.Posts {
		texts = append(texts, p.Text)
	}
	prompt := fmt.Sprintf(`Ты анализируешь публикации человека по имени %s в соцсетях.

Вот его последние посты:
%s

Извлеки ТОЛЬКО ключевые факты и события, которые полезны для личного общения:
- Текущие проекты (с названием и ссылкой если есть)
- Ключевые события (конференции, запуски, достижения)
- Важные изменения в жизни или бизнесе
- Темы, которые его сейчас волнуют

Формат ответа — строго список, каждый пункт начинается с •
Максимум 4-5 пунктов. Только факты, без воды. Если ничего важного нет — напиши "%s"
Отвечай на русском языке.`, s.Name, strings.Join(texts, "\n---\n"), noNewsPlaceholder)
	return l.Gen.Summarize(ctx, prompt)
}

// PostBullets lists the first posts verbatim as bullets.
type PostBullets struct{}

func (PostBullets) Name() string { return "post-bullets" }

func (PostBullets) Generate(_ context.Context, s Subject) (string, error) {
	var lines []string
	for _, p := range s.Posts {
		text := truncateRunes(strings.Join(strings.Fields(p.Text), " "), maxBulletRunes)
		if text == "" {
			continue
		}
		lines = append(lines, "• "+text)
		if len(lines) == maxBullets {
			break
		}
	}
	return strings.Join(lines, "\n"), nil
}

// LLMOccupation asks the text generator for a one-line occupation.
type LLMOccupation struct {
	Gen textgen.Summarizer
}

func (LLMOccupation) Name() string { return "llm-occupation" }

func (l LLMOccupation) Generate(ctx context.Context, s Subject) (string, error) {
	if l.Gen == nil {
		return "", textgen.ErrUnavailable
	}
	var parts []string
	if s.Bio != "" {
		parts = append(parts, "Bio профиля: "+s.Bio)
	}
	if s.ChannelDescription != "" {
		parts = append(parts, "Описание канала: "+s.ChannelDescription)
	}
	if len(s.Posts) > 0 {
		texts := make([]string, 0, len(s.Posts))
		for _, p := range s.Posts {
			texts = append(texts, p.Text)
		}
		parts = append(parts, "Примеры постов:\n"+strings.Join(texts, "\n---\n"))
	}
	if len(parts) == 0 {
		return "", nil
	}
	prompt := fmt.Sprintf(`Ты помогаешь заполнить CRM-карточку контакта.

Человек: %s
Источник информации:
%s

Напиши ОДНО короткое предложение (максимум 15 слов) — чем занимается этот человек профессионально.
Формат: просто текст, без кавычек, без точки в конце, без вводных слов.
Примеры хорошего ответа:
- Основатель EdTech-стартапа, развивает онлайн-образование для взрослых
- Партнёр в венчурном фонде, инвестирует в B2B SaaS
- Маркетолог, помогает брендам расти в соцсетях

Отвечай на русском языке.`, s.Name, strings.Join(parts, "\n\n"))

	out, err := l.Gen.Summarize(ctx, prompt)
	if err != nil {
		return "", err
	}
	return cleanOccupation(out), nil
}

func cleanOccupation(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.Trim(s, `"'«» `))
}

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
	phonePattern   = regexp.MustCompile(`[+\d][\d\s\-()]{7,}`)
)

// CleanBio uses the profile bio with links, mentions and phone numbers removed.
type CleanBio struct{}

func (CleanBio) Name() string { return "clean-bio" }

func (CleanBio) Generate(_ context.Context, s Subject) (string, error) {
	return cleanBio(s.Bio), nil
}

func cleanBio(bio string) string {
	text := urlPattern.ReplaceAllString(bio, "")
	text = mentionPattern.ReplaceAllString(text, "")
	text = phonePattern.ReplaceAllString(text, "")
	return truncateRunes(strings.Join(strings.Fields(text), " "), maxBioRunes)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
