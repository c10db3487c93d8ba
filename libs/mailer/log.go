package mailer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// LogProvider writes messages to the log instead of delivering them. main
// selects it when RESEND_API_KEY is empty.
type LogProvider struct {
	Logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{Logger: logger}
}

func (l *LogProvider) Name() string {
	return "log"
}

// Send logs the envelope and returns an id prefixed with "log-".
func (l *LogProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	id := "log-" + uuid.NewString()
	attrs := []any{
		"from", msg.From,
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
		"message_id", id,
	}
	if msg.ReplyTo != "" {
		attrs = append(attrs, "reply_to", msg.ReplyTo)
	}
	if category, ok := msg.Tags["category"]; ok {
		attrs = append(attrs, "category", category)
	}
	l.Logger.InfoContext(ctx, "mail not delivered, logging instead", attrs...)
	if msg.Text != "" {
		l.Logger.DebugContext(ctx, "mail text body", "message_id", id, "text", msg.Text)
	}
	return SendResult{ProviderMessageID: id}, nil
}
