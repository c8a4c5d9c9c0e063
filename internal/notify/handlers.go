package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/nhle/deadline-tracker/internal/model"
)

// Handler receives every fired notification.
type Handler interface {
	HandleNotification(ctx context.Context, n model.Notification) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, n model.Notification) error

func (f HandlerFunc) HandleNotification(ctx context.Context, n model.Notification) error {
	return f(ctx, n)
}

// LogHandler writes each notification to a logger.
type LogHandler struct {
	logger *zap.Logger
}

func NewLogHandler(logger *zap.Logger) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{logger: logger.Named("reminder")}
}

func (h *LogHandler) HandleNotification(_ context.Context, n model.Notification) error {
	h.logger.Info(n.Subject,
		zap.String("notification_id", n.ID),
		zap.String("deadline_id", n.DeadlineID),
		zap.String("task", n.Task),
		zap.String("due", n.DueLabel),
		zap.String("time_context", n.TimeContext),
	)
	return nil
}

// mailSender is the part of *gomail.Dialer MailHandler needs.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailHandler emails each notification over SMTP.
type MailHandler struct {
	sender mailSender
	from   string
	to     string
}

// NewMailHandler creates a MailHandler from the SMTP settings.
func NewMailHandler(cfg model.SMTPConfig) *MailHandler {
	return &MailHandler{
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		to:     cfg.To,
	}
}

func (h *MailHandler) HandleNotification(_ context.Context, n model.Notification) error {
	m := gomail.NewMessage()
	m.SetHeader("From", h.from)
	m.SetHeader("To", h.to)
	m.SetHeader("Subject", n.Subject)
	m.SetBody("text/plain", n.Body)

	if err := h.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("mailing notification %s: %w", n.ID, err)
	}
	return nil
}
