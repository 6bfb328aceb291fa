package email

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of sending them. Intended for
// development where no provider is configured.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, bodyHTML string) error {
	s.log.Info().Str("to", to).Str("subject", subject).Str("body", bodyHTML).Msg("email not sent: log provider")
	return nil
}
