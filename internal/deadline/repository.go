// Package deadline holds the canonical set of deadlines. It enforces the
// validity and duplicate rules on insert and answers the point and range
// queries used by the API and the notification engine.
package deadline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/match"
	"github.com/nhle/deadline-tracker/internal/metrics"
	"github.com/nhle/deadline-tracker/internal/model"
	"github.com/nhle/deadline-tracker/internal/store"
)

// IDPrefix starts every identifier assigned by the repository.
const IDPrefix = "dl_"

// Options tunes a Repository. The zero value is usable.
type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Repository persists deadlines in a DocumentStore. Every operation reads
// the collection from the store, and every mutation writes the whole
// collection back before returning, so results only reflect durable state.
type Repository struct {
	store   store.DocumentStore
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// mu spans the read-check-write of each operation, batch inserts
	// included.
	mu sync.RWMutex
}

// NewRepository builds a Repository on s. logger and m may be nil.
func NewRepository(
	s store.DocumentStore,
	logger *zap.Logger,
	m *metrics.Metrics,
	opts Options,
) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Repository{
		store:   s,
		logger:  logger.Named("deadline"),
		metrics: m,
		now:     opts.Now,
	}
}

// GetAll returns every stored deadline in persisted order.
func (r *Repository) GetAll(ctx context.Context) ([]model.Deadline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load(ctx)
}

// Get returns the deadline with the given id.
func (r *Repository) Get(ctx context.Context, id string) (model.Deadline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.load(ctx)
	if err != nil {
		return model.Deadline{}, err
	}
	if i := indexOf(all, id); i >= 0 {
		return all[i], nil
	}
	return model.Deadline{}, fmt.Errorf("getting %s: %w", id, ErrNotFound)
}

// Add validates d, rejects it if it duplicates a stored record, and
// appends it. A caller-supplied ID is kept unless it is already in use.
func (r *Repository) Add(ctx context.Context, d model.Deadline) (model.Deadline, error) {
	if !d.Valid() {
		r.metrics.DeadlineRejected(metrics.ReasonInvalid)
		return model.Deadline{}, fmt.Errorf("adding deadline: %w: task and deadline are required", ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		r.metrics.DeadlineRejected(metrics.ReasonStorage)
		return model.Deadline{}, err
	}

	if dup, ok := findDuplicate(all, d); ok {
		r.metrics.DeadlineRejected(metrics.ReasonDuplicate)
		r.logger.Debug("rejected duplicate deadline",
			zap.String("task", d.Task),
			zap.String("existing_id", dup.ID),
		)
		return model.Deadline{}, fmt.Errorf("adding %q: %w of %s", d.Task, ErrDuplicate, dup.ID)
	}

	d.ID = r.assignID(all, d.ID)
	all = append(all, d)

	if err := r.save(ctx, all); err != nil {
		r.metrics.DeadlineRejected(metrics.ReasonStorage)
		return model.Deadline{}, err
	}

	r.metrics.DeadlinesAdded("add", 1)
	return d, nil
}

// AddMultiple inserts each valid, non-duplicate record of ds and returns
// the accepted ones. Each candidate is checked against the stored
// collection plus the records accepted earlier in the same batch. The
// collection is written once, and only when something was accepted.
func (r *Repository) AddMultiple(ctx context.Context, ds []model.Deadline) ([]model.Deadline, error) {
	if len(ds) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	var accepted []model.Deadline
	for _, d := range ds {
		if !d.Valid() {
			r.metrics.DeadlineRejected(metrics.ReasonInvalid)
			continue
		}
		if dup, ok := findDuplicate(all, d); ok {
			r.metrics.DeadlineRejected(metrics.ReasonDuplicate)
			r.logger.Debug("skipped duplicate deadline in batch",
				zap.String("task", d.Task),
				zap.String("existing_id", dup.ID),
			)
			continue
		}

		d.ID = r.assignID(all, d.ID)
		all = append(all, d)
		accepted = append(accepted, d)
	}

	if len(accepted) == 0 {
		return nil, nil
	}

	if err := r.save(ctx, all); err != nil {
		r.metrics.DeadlineRejected(metrics.ReasonStorage)
		return nil, err
	}

	r.metrics.DeadlinesAdded("batch", len(accepted))
	return accepted, nil
}

// Update replaces the record with the given id. The id and any stored
// provenance (source email id and subject) carry over onto the
// replacement; every other field comes from d.
func (r *Repository) Update(ctx context.Context, id string, d model.Deadline) (model.Deadline, error) {
	if !d.Valid() {
		return model.Deadline{}, fmt.Errorf("updating %s: %w: task and deadline are required", id, ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return model.Deadline{}, err
	}

	i := indexOf(all, id)
	if i < 0 {
		return model.Deadline{}, fmt.Errorf("updating %s: %w", id, ErrNotFound)
	}

	existing := all[i]
	d.ID = id
	if existing.SourceEmailID != "" {
		d.SourceEmailID = existing.SourceEmailID
	}
	if existing.SourceEmailSubject != "" {
		d.SourceEmailSubject = existing.SourceEmailSubject
	}
	all[i] = d

	if err := r.save(ctx, all); err != nil {
		return model.Deadline{}, err
	}
	return d, nil
}

// Delete removes the record with the given id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load(ctx)
	if err != nil {
		return err
	}

	i := indexOf(all, id)
	if i < 0 {
		return fmt.Errorf("deleting %s: %w", id, ErrNotFound)
	}

	kept := make([]model.Deadline, 0, len(all)-1)
	kept = append(kept, all[:i]...)
	kept = append(kept, all[i+1:]...)

	return r.save(ctx, kept)
}

// GetUpcoming returns the records due within [now, now+hoursAhead], both
// bounds inclusive. Records whose due value does not parse are left out.
func (r *Repository) GetUpcoming(ctx context.Context, hoursAhead float64) ([]model.Deadline, error) {
	r.mu.RLock()
	all, err := r.load(ctx)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	// Compared in hours so a huge window cannot overflow a Duration.
	now := r.now()
	var upcoming []model.Deadline
	for _, d := range all {
		due, ok := match.ParseDue(d.Due)
		if !ok {
			continue
		}
		if h := due.Sub(now).Hours(); h >= 0 && h <= hoursAhead {
			upcoming = append(upcoming, d)
		}
	}
	return upcoming, nil
}

func (r *Repository) load(ctx context.Context) ([]model.Deadline, error) {
	docs, err := r.store.ReadAll(ctx, store.CollectionDeadlines)
	if err != nil {
		r.logger.Error("reading deadlines", zap.Error(err))
		return nil, &StorageError{Op: "read", Err: err}
	}

	all := make([]model.Deadline, 0, len(docs))
	for i, doc := range docs {
		var d model.Deadline
		if err := json.Unmarshal(doc, &d); err != nil {
			r.logger.Error("decoding stored deadline", zap.Int("position", i), zap.Error(err))
			return nil, &StorageError{
				Op:  "decode",
				Err: fmt.Errorf("document %d: %w", i, err),
			}
		}
		all = append(all, d)
	}
	return all, nil
}

func (r *Repository) save(ctx context.Context, all []model.Deadline) error {
	docs := make([]json.RawMessage, 0, len(all))
	for _, d := range all {
		blob, err := json.Marshal(d)
		if err != nil {
			return &StorageError{Op: "encode", Err: err}
		}
		docs = append(docs, blob)
	}

	if err := r.store.WriteAll(ctx, store.CollectionDeadlines, docs); err != nil {
		r.logger.Error("writing deadlines", zap.Int("count", len(all)), zap.Error(err))
		return &StorageError{Op: "write", Err: err}
	}
	return nil
}

// assignID keeps want if it is set and unused, otherwise mints a new one.
func (r *Repository) assignID(all []model.Deadline, want string) string {
	if want != "" && indexOf(all, want) < 0 {
		return want
	}
	for {
		id := IDPrefix + uuid.New().String()
		if indexOf(all, id) < 0 {
			return id
		}
	}
}

func findDuplicate(all []model.Deadline, d model.Deadline) (model.Deadline, bool) {
	for _, existing := range all {
		if match.IsDuplicate(existing, d) {
			return existing, true
		}
	}
	return model.Deadline{}, false
}

func indexOf(all []model.Deadline, id string) int {
	if id == "" {
		return -1
	}
	for i, d := range all {
		if d.ID == id {
			return i
		}
	}
	return -1
}
