// Package sync turns recent email into stored deadlines, either on demand
// or on a polling interval.
package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/model"
)

// Fetcher retrieves recent email.
type Fetcher interface {
	FetchRecent(ctx context.Context, days, limit int) ([]model.EmailRecord, error)
}

// Extractor pulls candidate deadlines out of one email.
type Extractor interface {
	Extract(ctx context.Context, email model.EmailRecord) []model.Deadline
}

// Adder stores a batch of deadlines and returns the accepted ones.
type Adder interface {
	AddMultiple(ctx context.Context, ds []model.Deadline) ([]model.Deadline, error)
}

// Result summarises one sync run.
type Result struct {
	ProcessedEmails int              `json:"processed_emails"`
	AddedDeadlines  int              `json:"added_deadlines"`
	Deadlines       []model.Deadline `json:"deadlines"`
}

// Syncer runs extraction over email and stores what it finds.
type Syncer struct {
	extractor Extractor
	repo      Adder
	limit     int
	logger    *zap.Logger
}

// NewSyncer creates a Syncer that fetches at most limit emails per run.
func NewSyncer(x Extractor, repo Adder, limit int, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		extractor: x,
		repo:      repo,
		limit:     limit,
		logger:    logger.Named("sync"),
	}
}

// ExtractEmail extracts deadlines from a single email and stores the
// non-duplicates. It returns the stored records and everything extracted.
func (s *Syncer) ExtractEmail(
	ctx context.Context, email model.EmailRecord,
) (added, extracted []model.Deadline, err error) {
	extracted = s.extractor.Extract(ctx, email)
	if len(extracted) == 0 {
		return nil, extracted, nil
	}

	added, err = s.repo.AddMultiple(ctx, extracted)
	if err != nil {
		return nil, extracted, fmt.Errorf("storing deadlines from %s: %w", email.ID, err)
	}
	return added, extracted, nil
}

// SyncEmails fetches email from the last days days and extracts deadlines
// from each message. A storage failure stops the run; the partial result
// is returned with the error.
func (s *Syncer) SyncEmails(ctx context.Context, f Fetcher, days int) (Result, error) {
	emails, err := f.FetchRecent(ctx, days, s.limit)
	if err != nil {
		return Result{}, fmt.Errorf("fetching emails: %w", err)
	}

	res := Result{Deadlines: []model.Deadline{}}
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		added, extracted, err := s.ExtractEmail(ctx, email)
		res.ProcessedEmails++
		res.Deadlines = append(res.Deadlines, extracted...)
		if err != nil {
			return res, err
		}
		res.AddedDeadlines += len(added)
	}

	s.logger.Info("email sync complete",
		zap.Int("processed_emails", res.ProcessedEmails),
		zap.Int("extracted", len(res.Deadlines)),
		zap.Int("added", res.AddedDeadlines),
	)
	return res, nil
}
