package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/model"
	"github.com/nhle/deadline-tracker/internal/store"
)

// DefaultHistoryLimit caps the number of notifications kept.
const DefaultHistoryLimit = 100

// History is the append-only log of fired notifications, trimmed from
// the oldest end once it exceeds its limit. A log that cannot be read or
// decoded is treated as empty and is overwritten by the next Append.
type History struct {
	store  store.DocumentStore
	limit  int
	logger *zap.Logger

	mu sync.Mutex
}

// NewHistory creates a History on s. A non-positive limit means
// DefaultHistoryLimit.
func NewHistory(s store.DocumentStore, limit int, logger *zap.Logger) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		store:  s,
		limit:  limit,
		logger: logger.Named("history"),
	}
}

// All returns the logged notifications, oldest first.
func (h *History) All(ctx context.Context) []model.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load(ctx)
}

// Append adds n to the log and drops the oldest entries beyond the limit.
func (h *History) Append(ctx context.Context, n model.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := append(h.load(ctx), n)
	if excess := len(entries) - h.limit; excess > 0 {
		entries = entries[excess:]
	}

	docs := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		blob, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding notification %s: %w", e.ID, err)
		}
		docs = append(docs, blob)
	}

	if err := h.store.WriteAll(ctx, store.CollectionNotifications, docs); err != nil {
		return fmt.Errorf("writing notification history: %w", err)
	}
	return nil
}

// WasRecentlyNotified reports whether the newest entry for deadlineID
// is less than cooldown old at now.
func (h *History) WasRecentlyNotified(
	ctx context.Context,
	deadlineID string,
	now time.Time,
	cooldown time.Duration,
) bool {
	entries := h.All(ctx)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].DeadlineID == deadlineID {
			return now.Sub(entries[i].SentAt) < cooldown
		}
	}
	return false
}

func (h *History) load(ctx context.Context) []model.Notification {
	docs, err := h.store.ReadAll(ctx, store.CollectionNotifications)
	if err != nil {
		h.logger.Warn("notification history unreadable, treating as empty", zap.Error(err))
		return nil
	}

	entries := make([]model.Notification, 0, len(docs))
	for i, doc := range docs {
		var n model.Notification
		if err := json.Unmarshal(doc, &n); err != nil {
			h.logger.Warn("notification history corrupt, treating as empty",
				zap.Int("position", i),
				zap.Error(err),
			)
			return nil
		}
		entries = append(entries, n)
	}
	return entries
}
