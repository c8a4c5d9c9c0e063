package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/metrics"
)

// DefaultGenerateTimeout bounds a single content generation call.
const DefaultGenerateTimeout = 5 * time.Second

// Reminder describes the notification to write.
type Reminder struct {
	Task        string
	DueLabel    string
	TimeContext string
	Details     string
}

// Content is a notification subject and body.
type Content struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// FallbackContent is the deterministic template used whenever the
// service cannot produce content.
func FallbackContent(r Reminder) Content {
	return Content{
		Subject: fmt.Sprintf("REMINDER: %s due %s", r.Task, r.TimeContext),
		Body: fmt.Sprintf("This is a reminder that '%s' is due %s (%s).\n\n%s",
			r.Task, r.TimeContext, r.DueLabel, r.Details),
	}
}

// Generator writes reminder content with the text-generation service and
// falls back to FallbackContent on any failure.
type Generator struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewGenerator creates a Generator. A nil completer always yields the
// fallback; a non-positive timeout means DefaultGenerateTimeout.
func NewGenerator(c Completer, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Generator {
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		completer: c,
		timeout:   timeout,
		logger:    logger.Named("generator"),
		metrics:   m,
	}
}

// Generate returns personalised content for r, or the template when the
// service times out, fails, or answers without both fields.
func (g *Generator) Generate(ctx context.Context, r Reminder) Content {
	if g == nil || g.completer == nil {
		return FallbackContent(r)
	}

	content, err := g.generate(ctx, r)
	if err != nil {
		g.logger.Warn("using fallback notification content",
			zap.String("task", r.Task),
			zap.Error(err),
		)
		g.metrics.ContentFallback()
		return FallbackContent(r)
	}
	return content
}

func (g *Generator) generate(ctx context.Context, r Reminder) (Content, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.completer.Complete(ctx, reminderPrompt(r))
	if err != nil {
		return Content{}, err
	}
	return parseContent(text)
}

var errMissingFields = errors.New("response lacks subject or body")

func parseContent(text string) (Content, error) {
	span, ok := outermostSpan(text, '{', '}')
	if !ok {
		return Content{}, errors.New("no JSON object in response")
	}

	var c Content
	if err := json.Unmarshal([]byte(span), &c); err != nil {
		return Content{}, fmt.Errorf("decoding content: %w", err)
	}
	if strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.Body) == "" {
		return Content{}, errMissingFields
	}
	return c, nil
}

func reminderPrompt(r Reminder) string {
	var sb strings.Builder
	sb.WriteString("Write a short reminder notification for this task.\n")
	fmt.Fprintf(&sb, "Task: %s\n", r.Task)
	fmt.Fprintf(&sb, "Deadline: %s\n", r.DueLabel)
	fmt.Fprintf(&sb, "Time until deadline: %s\n", r.TimeContext)
	fmt.Fprintf(&sb, "Additional details: %s\n\n", r.Details)
	sb.WriteString("Answer with a JSON object holding \"subject\" and \"body\" fields. ")
	sb.WriteString("Keep the subject under 80 characters and the body brief. ")
	sb.WriteString("Use a professional but friendly tone.")
	return sb.String()
}
