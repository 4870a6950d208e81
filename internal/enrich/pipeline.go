// Package enrich fills the free-text contact fields from public sources:
// recent news from social posts and a one-line occupation from Telegram.
// Every step is best effort; one contact's failure never stops a run.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/social"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/textgen"
)

// Subject is what a strategy knows about one contact.
type Subject struct {
	Name               string
	Posts              []social.Post
	Bio                string
	ChannelDescription string
}

// Strategy produces text for a subject, or "" when it has nothing to say.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, s Subject) (string, error)
}

// Pipeline tries strategies in order until one yields text.
type Pipeline struct {
	logger     *slog.Logger
	strategies []Strategy
}

func NewPipeline(log *slog.Logger, strategies ...Strategy) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{logger: log, strategies: strategies}
}

// Run returns the first non-empty result and the strategy that produced it.
// Strategy errors are logged and the next strategy is tried; only
// cancellation is returned.
func (p *Pipeline) Run(ctx context.Context, s Subject) (string, string, error) {
	for _, st := range p.strategies {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		text, err := st.Generate(ctx, s)
		switch {
		case err == nil:
		case errors.Is(err, textgen.ErrUnavailable):
			continue
		case ctx.Err() != nil:
			return "", "", ctx.Err()
		default:
			p.logger.Warn("strategy failed",
				slog.String("strategy", st.Name()),
				slog.String("contact", s.Name),
				slog.Any("error", err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, st.Name(), nil
		}
	}
	return "", "", nil
}
