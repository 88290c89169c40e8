package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogMailer only logs messages. It is used when no SMTP host is configured.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("mailer", "log").Logger()}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("email dispatched (log only)")
	return nil
}

func (m *LogMailer) String() string {
	return "LogMailer"
}
