package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/social"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/textgen"
)

var today = time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubGen struct {
	mu      sync.Mutex
	prompts []string
	out     string
	err     error
}

func (s *stubGen) Summarize(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.out, s.err
}

type stubSource struct {
	telegram  map[string][]social.Post
	instagram map[string][]social.Post
	bios      map[string]string
	channels  map[string]social.ChannelInfo
	fail      error
	calls     []string
}

func (s *stubSource) TelegramPosts(_ context.Context, channel string, _ int) ([]social.Post, error) {
	s.calls = append(s.calls, "tg:"+channel)
	if s.fail != nil {
		return nil, s.fail
	}
	return s.telegram[channel], nil
}

func (s *stubSource) InstagramPosts(_ context.Context, username string, _ int) ([]social.Post, error) {
	s.calls = append(s.calls, "ig:"+username)
	return s.instagram[username], nil
}

func (s *stubSource) YouTubeVideos(context.Context, string, int) ([]social.Post, error) {
	return nil, social.ErrNoAPIKey
}

func (s *stubSource) TelegramProfile(_ context.Context, username string) (string, error) {
	return s.bios[username], nil
}

func (s *stubSource) TelegramChannelInfo(_ context.Context, channel string) (social.ChannelInfo, error) {
	return s.channels[channel], nil
}

type row struct {
	id, name, circle, priority string
	next                       string
	channel, instagram, tg     string
	occupation                 string
}

func newStore(rows ...row) (*contacts.MemoryStore, *contacts.Service) {
	schema := contacts.DefaultSchema()
	store := contacts.NewMemoryStore()
	store.CircleField = schema.Circle
	for _, r := range rows {
		fields := map[string]contacts.Value{
			schema.Name:     contacts.TextValue(r.name),
			schema.Circle:   contacts.SelectValue(r.circle),
			schema.Priority: contacts.SelectValue(r.priority),
		}
		if r.next != "" {
			fields[schema.NextContact] = contacts.Value{Kind: contacts.KindDate, Text: r.next}
		}
		if r.channel != "" {
			fields[schema.TelegramChannel] = contacts.URLValue(r.channel)
		}
		if r.instagram != "" {
			fields[schema.Instagram] = contacts.URLValue(r.instagram)
		}
		if r.tg != "" {
			fields[schema.TelegramPersonal] = contacts.URLValue(r.tg)
		}
		if r.occupation != "" {
			fields[schema.Occupation] = contacts.TextValue(r.occupation)
		}
		store.Put(contacts.Row{ID: r.id, Fields: fields})
	}
	return store, contacts.NewService(store, schema, contacts.DefaultPriorityLabels())
}

func opts() Options {
	return Options{
		Circles:  []string{"Партнер", "Знакомый"},
		Location: time.UTC,
		Clock:    func() time.Time { return today },
	}
}

func TestPipelineFallsThrough(t *testing.T) {
	gen := &stubGen{err: errors.New("quota")}
	p := NewPipeline(discard(), LLMNews{Gen: gen}, PostBullets{})
	text, strategy, err := p.Run(context.Background(), Subject{Name: "Анна", Posts: []social.Post{{Text: "Запустила  курс\nпо продукту"}}})
	require.NoError(t, err)
	assert.Equal(t, "post-bullets", strategy)
	assert.Equal(t, "• Запустила курс по продукту", text)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Запустила  курс")

	p = NewPipeline(discard(), LLMNews{Gen: nil}, PostBullets{})
	_, strategy, err = p.Run(context.Background(), Subject{Posts: []social.Post{{Text: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "post-bullets", strategy, "unavailable generator is skipped")
}

func TestPipelineNothing(t *testing.T) {
	p := NewPipeline(discard(), LLMOccupation{Gen: &stubGen{err: textgen.ErrUnavailable}}, CleanBio{})
	text, strategy, err := p.Run(context.Background(), Subject{Name: "Борис"})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, strategy)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewPipeline(discard(), PostBullets{}).Run(ctx, Subject{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostBulletsCapsCountAndLength(t *testing.T) {
	var posts []social.Post
	for range 6 {
		posts = append(posts, social.Post{Text: strings.Repeat("я", 250)})
	}
	text, err := PostBullets{}.Generate(context.Background(), Subject{Posts: posts})
	require.NoError(t, err)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, maxBullets)
	assert.Equal(t, maxBulletRunes+2, len([]rune(lines[0])))
}

func TestCleanBio(t *testing.T) {
	got := cleanBio("Founder @annalab · +7 (999) 123-45-67 · https://annalab.io\nПродукт и образование")
	assert.Equal(t, "Founder · · Продукт и образование", got)
	assert.Empty(t, cleanBio(""))
}

func TestCleanOccupation(t *testing.T) {
	assert.Equal(t, "Партнёр в венчурном фонде", cleanOccupation("\"Партнёр в венчурном фонде\"\nвторая строка"))
	assert.Equal(t, "Маркетолог", cleanOccupation("  «Маркетолог» "))
}

func TestNewsCandidates(t *testing.T) {
	_, svc := newStore(
		row{id: "due", name: "Анна", circle: "Партнер", priority: "Высокий", next: "2024-02-12", channel: "https://t.me/annalab"},
		row{id: "late", name: "Борис", circle: "Партнер", priority: "Средний", next: "2024-02-13", channel: "https://t.me/boris"},
		row{id: "undated", name: "Вера", circle: "Знакомый", priority: "Высокий", instagram: "https://instagram.com/vera"},
		row{id: "undated-medium", name: "Зоя", circle: "Партнер", priority: "Средний", channel: "https://t.me/zoya"},
		row{id: "low", name: "Глеб", circle: "Партнер", priority: "Низкий", next: "2024-02-06", channel: "https://t.me/gleb"},
		row{id: "nolinks", name: "Дина", circle: "Партнер", priority: "Высокий", next: "2024-02-06"},
		row{id: "invite", name: "Ева", circle: "Партнер", priority: "Высокий", next: "2024-02-06", channel: "https://t.me/+abc"},
		row{id: "circle", name: "Жора", circle: "Семья", priority: "Высокий", next: "2024-02-06", channel: "https://t.me/zhora"},
	)
	all, err := svc.List(context.Background(), contacts.Filter{})
	require.NoError(t, err)

	m := NewNewsMonitor(discard(), svc, &stubSource{}, NewPipeline(discard()), opts())
	var ids []string
	for _, c := range m.Candidates(all, contacts.DateOf(today, time.UTC)) {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"due", "undated"}, ids)
}

func TestNewsMonitorRun(t *testing.T) {
	store, svc := newStore(
		row{id: "a", name: "Анна", circle: "Партнер", priority: "Высокий", next: "2024-02-06", channel: "https://t.me/annalab", instagram: "https://instagram.com/anna.ig"},
		row{id: "b", name: "Борис", circle: "Партнер", priority: "Высокий", next: "2024-02-06", channel: "https://t.me/quiet"},
	)
	src := &stubSource{
		telegram:  map[string][]social.Post{"annalab": {{Source: social.SourceTelegram, Text: "Запустила курс по продукту"}}},
		instagram: map[string][]social.Post{"anna.ig": {{Source: social.SourceInstagram, Text: "Новая студия"}}},
	}
	gen := &stubGen{out: "• Запустила курс\n• Открыла студию"}
	m := NewNewsMonitor(discard(), svc, src, NewPipeline(discard(), LLMNews{Gen: gen}, PostBullets{}), opts())

	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 2, Updated: 1, Skipped: 1}, report)
	assert.Equal(t, []string{"ig:anna.ig", "tg:annalab", "tg:quiet"}, src.calls)

	row, ok := store.Row("a")
	require.True(t, ok)
	assert.Equal(t, "[Обновлено 05.02.2024]\n• Запустила курс\n• Открыла студию", row.Text(contacts.DefaultSchema().News))
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Новая студия\n---\nЗапустила курс по продукту")
}

func TestNewsMonitorIsolatesFailures(t *testing.T) {
	store, svc := newStore(
		row{id: "a", name: "Анна", circle: "Партнер", priority: "Высокий", next: "2024-02-06", channel: "https://t.me/annalab"},
		row{id: "b", name: "Борис", circle: "Партнер", priority: "Высокий", next: "2024-02-06", channel: "https://t.me/boris"},
	)
	store.FailUpdate = func(id string) error {
		if id == "a" {
			return errors.New("notion 500")
		}
		return nil
	}
	src := &stubSource{telegram: map[string][]social.Post{
		"annalab": {{Text: "пост Анны про запуск"}},
		"boris":   {{Text: "пост Бориса про конференцию"}},
	}}
	m := NewNewsMonitor(discard(), svc, src, NewPipeline(discard(), PostBullets{}), opts())

	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Updated)
}

func TestNewsMonitorPaces(t *testing.T) {
	_, svc := newStore(
		row{id: "a", name: "Анна", circle: "Партнер", priority: "Высокий", next: "2024-02-06", channel: "https://t.me/a"},
		row{id: "b", name: "Борис", circle: "Партнер", priority: "Высокий", next: "2024-02-06", channel: "https://t.me/b"},
		row{id: "c", name: "Вера", circle: "Партнер", priority: "Высокий", next: "2024-02-06", channel: "https://t.me/c"},
	)
	o := opts()
	o.Pause = 30 * time.Millisecond
	m := NewNewsMonitor(discard(), svc, &stubSource{}, NewPipeline(discard()), o)

	start := time.Now()
	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Skipped)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestOccupationFiller(t *testing.T) {
	store, svc := newStore(
		row{id: "a", name: "Анна", circle: "Партнер", tg: "https://t.me/anna"},
		row{id: "b", name: "Борис", circle: "Партнер", channel: "https://t.me/borislab"},
		row{id: "c", name: "Вера", circle: "Партнер", tg: "https://t.me/vera", occupation: "Юрист"},
		row{id: "d", name: "Глеб", circle: "Партнер"},
		row{id: "e", name: "Дина", circle: "Партнер", tg: "https://t.me/dina"},
	)
	src := &stubSource{
		bios: map[string]string{"anna": "Founder @annalab https://annalab.io"},
		channels: map[string]social.ChannelInfo{"borislab": {
			Description: "Канал про венчур",
			Posts:       []social.Post{{Text: "Закрыли раунд"}},
		}},
	}
	gen := &stubGen{out: "\"Венчурный инвестор\""}
	f := NewOccupationFiller(discard(), svc, src, NewPipeline(discard(), LLMOccupation{Gen: gen}, CleanBio{}), opts())

	report, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 3, Updated: 2, Skipped: 1}, report)

	schema := contacts.DefaultSchema()
	a, _ := store.Row("a")
	assert.Equal(t, "Венчурный инвестор", a.Text(schema.Occupation))
	b, _ := store.Row("b")
	assert.Equal(t, "Венчурный инвестор", b.Text(schema.Occupation))
	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[1], "Описание канала: Канал про венчур")
	assert.Contains(t, gen.prompts[1], "Примеры постов:\nЗакрыли раунд")
}

func TestOccupationFallsBackToBio(t *testing.T) {
	store, svc := newStore(row{id: "a", name: "Анна", circle: "Партнер", tg: "https://t.me/anna"})
	src := &stubSource{bios: map[string]string{"anna": "Основатель школы @annalab https://annalab.io"}}
	f := NewOccupationFiller(discard(), svc, src, NewPipeline(discard(), LLMOccupation{Gen: &stubGen{err: textgen.ErrUnavailable}}, CleanBio{}), opts())

	report, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	a, _ := store.Row("a")
	assert.Equal(t, "Основатель школы", a.Text(contacts.DefaultSchema().Occupation))
}
