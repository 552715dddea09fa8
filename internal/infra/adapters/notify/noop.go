package notify

import (
	"context"

	"github.com/rs/zerolog"

	"sme-compliance/internal/domain/model"
)

// LogSMS writes messages to the log instead of a carrier. Used in dev.
type LogSMS struct{ Log *zerolog.Logger }

func (s LogSMS) Send(ctx context.Context, to, message string) error {
	s.Log.Info().Str("to", to).Str("message", message).Msg("sms (not sent)")
	return nil
}

// LogMailer writes mail to the log instead of an email API. Used in dev.
type LogMailer struct{ Log *zerolog.Logger }

func (m LogMailer) Send(ctx context.Context, msg model.EmailPayload) error {
	m.Log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email (not sent)")
	return nil
}
