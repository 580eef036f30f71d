package console

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// Mailer logs messages instead of sending them. Used when no mail provider is configured.
type Mailer struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []domain.EmailMessage
}

func New(logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{logger: logger}
}

func (m *Mailer) Send(ctx context.Context, msg domain.EmailMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	attachment, size := "", 0
	if msg.Attachment != nil {
		attachment, size = msg.Attachment.Name, len(msg.Attachment.Data)
	}
	m.logger.InfoContext(ctx, "email_logged",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
		"attachment", attachment,
		"attachment_bytes", size,
	)

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of every message logged so far.
func (m *Mailer) Sent() []domain.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.EmailMessage(nil), m.sent...)
}
