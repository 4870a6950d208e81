package telegram

import (
	"fmt"
	"log/slog"
	"strings"
)

// slogBotLogger adapts slog.Logger to tgbotapi.BotLogger so library logs go through slog.
// The bot token appears in request URLs, so it is masked before logging.
type slogBotLogger struct {
	log   *slog.Logger
	token string
}

func (s *slogBotLogger) Println(v ...any) {
	s.log.Warn(s.mask(fmt.Sprint(v...)))
}

func (s *slogBotLogger) Printf(format string, v ...any) {
	s.log.Warn(s.mask(fmt.Sprintf(format, v...)))
}

func (s *slogBotLogger) mask(msg string) string {
	if s.token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, s.token, "***")
}
