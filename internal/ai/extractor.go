package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/match"
	"github.com/nhle/deadline-tracker/internal/model"
)

const (
	// DefaultExtractTimeout bounds a single extraction call.
	DefaultExtractTimeout = 30 * time.Second

	// ISOLayout is the layout extracted due dates are normalised to.
	ISOLayout = "2006-01-02T15:04:05"

	unknownTask = "Unknown task"
)

// Extractor pulls candidate deadlines out of an email.
type Extractor struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewExtractor creates an Extractor. A non-positive timeout means
// DefaultExtractTimeout.
func NewExtractor(c Completer, timeout time.Duration, logger *zap.Logger) *Extractor {
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		completer: c,
		timeout:   timeout,
		logger:    logger.Named("extractor"),
		now:       time.Now,
	}
}

type extractedItem struct {
	Task       string `json:"task"`
	Deadline   string `json:"deadline"`
	Details    string `json:"details"`
	Confidence string `json:"confidence"`
}

// Extract returns the deadlines found in email, stamped with the email's
// provenance. Any service or parse failure yields an empty slice.
func (x *Extractor) Extract(ctx context.Context, email model.EmailRecord) []model.Deadline {
	if x == nil || x.completer == nil {
		return nil
	}

	items, err := x.extract(ctx, email)
	if err != nil {
		x.logger.Warn("extracting deadlines",
			zap.String("email_id", email.ID),
			zap.Error(err),
		)
		return nil
	}

	extractedAt := x.now()
	out := make([]model.Deadline, 0, len(items))
	for _, it := range items {
		task := strings.TrimSpace(it.Task)
		if task == "" {
			task = unknownTask
		}
		at := extractedAt
		out = append(out, model.Deadline{
			Task:               task,
			Due:                normalizeDue(it.Deadline),
			Details:            it.Details,
			Confidence:         model.NormalizeConfidence(it.Confidence),
			SourceEmailID:      email.ID,
			SourceEmailSubject: email.Subject,
			SourceEmailFrom:    email.From,
			ExtractedAt:        &at,
		})
	}
	return out
}

func (x *Extractor) extract(ctx context.Context, email model.EmailRecord) ([]extractedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	text, err := x.completer.Complete(ctx, extractionPrompt(email))
	if err != nil {
		return nil, err
	}
	return parseItems(text)
}

// parseItems decodes the outermost JSON array in text. Elements that are
// not deadline objects are skipped.
func parseItems(text string) ([]extractedItem, error) {
	span, ok := outermostSpan(text, '[', ']')
	if !ok {
		return nil, errors.New("no JSON array in response")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, fmt.Errorf("decoding deadlines: %w", err)
	}

	items := make([]extractedItem, 0, len(raw))
	for _, r := range raw {
		var it extractedItem
		if err := json.Unmarshal(r, &it); err != nil {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// normalizeDue rewrites parseable dates in ISOLayout (local time) and
// keeps anything else verbatim.
func normalizeDue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t, ok := match.ParseDue(s)
	if !ok {
		return s
	}
	return t.In(time.Local).Format(ISOLayout)
}

func extractionPrompt(email model.EmailRecord) string {
	date := "Unknown"
	if !email.Date.IsZero() {
		date = email.Date.Format(time.RFC1123Z)
	}
	subject := email.Subject
	if subject == "" {
		subject = "No Subject"
	}
	from := email.From
	if from == "" {
		from = "Unknown"
	}

	var sb strings.Builder
	sb.WriteString("Find every deadline, due date or time-sensitive task in the email below.\n\n")
	fmt.Fprintf(&sb, "SUBJECT: %s\nFROM: %s\nDATE: %s\n\n", subject, from, date)
	fmt.Fprintf(&sb, "EMAIL CONTENT:\n%s\n\n", email.Body)
	sb.WriteString("Answer with a JSON array. Each element is an object with:\n")
	sb.WriteString(`- "task": what is due` + "\n")
	sb.WriteString(`- "deadline": ISO date and time (YYYY-MM-DDTHH:MM:SS), or YYYY-MM-DD when no time is given` + "\n")
	sb.WriteString(`- "details": any other useful context` + "\n")
	sb.WriteString(`- "confidence": high, medium or low` + "\n")
	sb.WriteString("Answer [] when there are none. Output JSON only.")
	return sb.String()
}
