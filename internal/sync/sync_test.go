package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/deadline-tracker/internal/deadline"
	"github.com/nhle/deadline-tracker/internal/model"
	"github.com/nhle/deadline-tracker/internal/testutil"
)

type fakeFetcher struct {
	mu     gosync.Mutex
	emails []model.EmailRecord
	err    error
	calls  int
	days   int
	limit  int
}

func (f *fakeFetcher) FetchRecent(_ context.Context, days, limit int) ([]model.EmailRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.days, f.limit = days, limit
	return f.emails, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeExtractor returns canned deadlines per email ID, stamped with
// the email's provenance.
type fakeExtractor map[string][]string

func (x fakeExtractor) Extract(_ context.Context, email model.EmailRecord) []model.Deadline {
	var out []model.Deadline
	for i, task := range x[email.ID] {
		out = append(out, model.Deadline{
			Task:               task,
			Due:                time.Date(2024, 3, 22+i, 17, 0, 0, 0, time.Local).Format("2006-01-02T15:04:05"),
			Confidence:         model.ConfidenceHigh,
			SourceEmailID:      email.ID,
			SourceEmailSubject: email.Subject,
		})
	}
	return out
}

func newRepo(t *testing.T) *deadline.Repository {
	t.Helper()
	return deadline.NewRepository(testutil.NewTestStore(t), nil, nil, deadline.Options{})
}

func TestSyncEmails(t *testing.T) {
	repo := newRepo(t)
	fetcher := &fakeFetcher{emails: []model.EmailRecord{
		{ID: "m2", Subject: "Reminder"},
		{ID: "m1", Subject: "Project"},
		{ID: "m0", Subject: "Newsletter"},
	}}
	extractor := fakeExtractor{
		"m2": {"Submit the quarterly report"},
		"m1": {"Submit the quarterly report", "Book conference room"},
	}
	s := NewSyncer(extractor, repo, 25, nil)

	res, err := s.SyncEmails(context.Background(), fetcher, 7)
	require.NoError(t, err)

	assert.Equal(t, 7, fetcher.days)
	assert.Equal(t, 25, fetcher.limit)
	assert.Equal(t, 3, res.ProcessedEmails)
	assert.Len(t, res.Deadlines, 3)
	assert.Equal(t, 2, res.AddedDeadlines, "the repeated task from m1 is the same day as m2's")

	all, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	res, err = s.SyncEmails(context.Background(), fetcher, 7)
	require.NoError(t, err)
	assert.Zero(t, res.AddedDeadlines, "a second sync adds nothing")
}

func TestSyncEmails_FetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	s := NewSyncer(fakeExtractor{}, newRepo(t), 10, nil)

	res, err := s.SyncEmails(context.Background(), fetcher, 7)
	require.Error(t, err)
	assert.Zero(t, res.ProcessedEmails)
}

func TestSyncEmails_StorageErrorStopsRun(t *testing.T) {
	fs := testutil.NewFlakyStore(t)
	fs.FailWrites(true)
	repo := deadline.NewRepository(fs, nil, nil, deadline.Options{})
	fetcher := &fakeFetcher{emails: []model.EmailRecord{{ID: "m1"}, {ID: "m2"}}}
	s := NewSyncer(fakeExtractor{"m1": {"Submit report"}, "m2": {"Book flights"}}, repo, 10, nil)

	res, err := s.SyncEmails(context.Background(), fetcher, 7)
	require.Error(t, err)
	assert.True(t, deadline.IsStorageError(err))
	assert.Equal(t, 1, res.ProcessedEmails)
	assert.Zero(t, res.AddedDeadlines)
}

func TestExtractEmail(t *testing.T) {
	s := NewSyncer(fakeExtractor{"m1": {"Submit report", "Book flights"}}, newRepo(t), 10, nil)

	added, extracted, err := s.ExtractEmail(context.Background(), model.EmailRecord{ID: "m1", Subject: "Todo"})
	require.NoError(t, err)
	assert.Len(t, extracted, 2)
	require.Len(t, added, 2)
	assert.NotEmpty(t, added[0].ID)
	assert.Equal(t, "Todo", added[0].SourceEmailSubject)

	added, extracted, err = s.ExtractEmail(context.Background(), model.EmailRecord{ID: "none"})
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Empty(t, extracted)
}

func TestPoller(t *testing.T) {
	repo := newRepo(t)
	fetcher := &fakeFetcher{emails: []model.EmailRecord{{ID: "m1"}}}
	s := NewSyncer(fakeExtractor{"m1": {"Submit report"}}, repo, 10, nil)
	p := NewPoller(s, fetcher, 3, time.Hour, nil)

	p.Start(context.Background())
	p.Start(context.Background())
	require.Eventually(t, func() bool {
		return p.Status().LastResult.ProcessedEmails == 1
	}, 2*time.Second, 10*time.Millisecond)

	st := p.Status()
	assert.Equal(t, SyncIdle, st.State)
	assert.Equal(t, 1, st.LastResult.AddedDeadlines)
	assert.False(t, st.LastSync.IsZero())

	p.Refresh()
	require.Eventually(t, func() bool { return fetcher.callCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	p.Stop()
	p.Stop()
}

func TestPoller_RecordsError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("auth failed")}
	p := NewPoller(NewSyncer(fakeExtractor{}, newRepo(t), 10, nil), fetcher, 3, time.Hour, nil)

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Status().State == SyncError }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorContains(t, p.Status().Error, "auth failed")
	assert.Equal(t, "error", p.Status().State.String())
}

func TestPoller_RestartsAfterContextCancel(t *testing.T) {
	fetcher := &fakeFetcher{emails: []model.EmailRecord{{ID: "m1"}}}
	p := NewPoller(NewSyncer(fakeExtractor{}, newRepo(t), 10, nil), fetcher, 3, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	p.Start(ctx)
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return !p.Running() }, 2*time.Second, 10*time.Millisecond)

	p.Start(context.Background())
	defer p.Stop()
	assert.True(t, p.Running())
	require.Eventually(t, func() bool { return fetcher.callCount() == 2 }, 2*time.Second, 10*time.Millisecond)
}
