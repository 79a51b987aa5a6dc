package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

// Mailer delivers out-of-band messages to users. The reset token travels
// only through this interface; it is never written to a response body.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

type logMailer struct {
	logger zerolog.Logger
}

// NewLogMailer returns a development Mailer that records the delivery
// without the token itself.
func NewLogMailer(logger zerolog.Logger) Mailer {
	return &logMailer{logger: logger}
}

func (m *logMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.logger.Info().Str("email", email).Msg("password reset email queued")
	return nil
}
