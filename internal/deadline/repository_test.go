package deadline

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/deadline-tracker/internal/model"
	"github.com/nhle/deadline-tracker/internal/testutil"
)

var testNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.Local)

func fixedClock() time.Time { return testNow }

func iso(t time.Time) string { return t.Format("2006-01-02T15:04:05") }

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(testutil.NewTestStore(t), nil, nil, Options{Now: fixedClock})
}

func TestAdd_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	d := model.Deadline{
		Task:               "Submit project report",
		Due:                "2024-03-22T17:00:00",
		Details:            "Final version with appendices",
		Confidence:         model.ConfidenceHigh,
		SourceEmailSubject: "Project deadline reminder",
	}

	stored, err := repo.Add(ctx, d)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.ID, IDPrefix))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	d.ID = stored.ID
	assert.Equal(t, d, all[0])

	got, err := repo.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestAdd_KeepsUnusedCallerID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first, err := repo.Add(ctx, model.Deadline{ID: "custom", Task: "Pay rent", Due: "2024-04-01"})
	require.NoError(t, err)
	assert.Equal(t, "custom", first.ID)

	second, err := repo.Add(ctx, model.Deadline{ID: "custom", Task: "Book flights", Due: "2024-05-01"})
	require.NoError(t, err)
	assert.NotEqual(t, "custom", second.ID)
	assert.True(t, strings.HasPrefix(second.ID, IDPrefix))
}

func TestAdd_Invalid(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, d := range []model.Deadline{
		{Task: "", Due: "2024-03-22"},
		{Task: "Submit report", Due: ""},
		{Task: "   ", Due: "2024-03-22"},
	} {
		_, err := repo.Add(ctx, d)
		assert.ErrorIs(t, err, ErrInvalid)
	}

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAdd_DuplicateSameDay(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Add(ctx, model.Deadline{Task: "Submit report", Due: "2024-03-22T09:00:00"})
	require.NoError(t, err)

	_, err = repo.Add(ctx, model.Deadline{Task: "submit report to finance", Due: "2024-03-22T17:00:00"})
	assert.ErrorIs(t, err, ErrDuplicate)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAdd_DuplicateSameSourceAnyDay(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Add(ctx, model.Deadline{Task: "Submit report", Due: "2024-03-22", SourceEmailID: "msg-7"})
	require.NoError(t, err)

	_, err = repo.Add(ctx, model.Deadline{Task: "Submit report", Due: "2024-06-01", SourceEmailID: "msg-7"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = repo.Add(ctx, model.Deadline{Task: "Submit report", Due: "2024-06-01", SourceEmailID: "msg-8"})
	assert.NoError(t, err, "different source and different day is not a duplicate")
}

func TestAdd_StorageFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	fs := testutil.NewFlakyStore(t)
	repo := NewRepository(fs, nil, nil, Options{Now: fixedClock})

	_, err := repo.Add(ctx, model.Deadline{Task: "Pay rent", Due: "2024-04-01"})
	require.NoError(t, err)

	fs.FailWrites(true)
	_, err = repo.Add(ctx, model.Deadline{Task: "Book flights", Due: "2024-05-01"})
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, testutil.ErrInjected)

	fs.FailWrites(false)
	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Pay rent", all[0].Task)
}

func TestGetAll_ReadFailure(t *testing.T) {
	fs := testutil.NewFlakyStore(t)
	repo := NewRepository(fs, nil, nil, Options{})

	fs.FailReads(true)
	_, err := repo.GetAll(context.Background())
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "read", se.Op)
}

func TestGet_NotFound(t *testing.T) {
	_, err := newTestRepo(t).Get(context.Background(), "dl_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddMultiple(t *testing.T) {
	ctx := context.Background()
	fs := testutil.NewFlakyStore(t)
	repo := NewRepository(fs, nil, nil, Options{Now: fixedClock})

	_, err := repo.Add(ctx, model.Deadline{Task: "Submit report", Due: "2024-03-22"})
	require.NoError(t, err)
	writesBefore := fs.Writes()

	accepted, err := repo.AddMultiple(ctx, []model.Deadline{
		{Task: "submit report", Due: "2024-03-22T15:00:00"},   // duplicate of stored
		{Task: "Book flights", Due: "2024-04-10"},             // new
		{Task: "", Due: "2024-04-10"},                         // invalid
		{Task: "Book flights to Berlin", Due: "2024-04-10"},   // duplicate of an earlier batch member
		{Task: "Renew passport", Due: "2024-05-01T10:00:00"},  // new
	})
	require.NoError(t, err)
	require.Len(t, accepted, 2)
	assert.Equal(t, "Book flights", accepted[0].Task)
	assert.Equal(t, "Renew passport", accepted[1].Task)
	for _, d := range accepted {
		assert.True(t, strings.HasPrefix(d.ID, IDPrefix))
	}
	assert.Equal(t, writesBefore+1, fs.Writes(), "a batch is written once")

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAddMultiple_NothingAcceptedSkipsWrite(t *testing.T) {
	ctx := context.Background()
	fs := testutil.NewFlakyStore(t)
	repo := NewRepository(fs, nil, nil, Options{})

	accepted, err := repo.AddMultiple(ctx, []model.Deadline{{Task: "no due"}})
	require.NoError(t, err)
	assert.Empty(t, accepted)
	assert.Zero(t, fs.Writes())

	accepted, err = repo.AddMultiple(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, accepted)
}

func TestAddMultiple_ConcurrentBatchesDoNotLoseRecords(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	var wg sync.WaitGroup
	tasks := []string{"Pay rent", "Book flights", "Renew passport", "File taxes", "Call plumber", "Water plants"}
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task string) {
			defer wg.Done()
			_, err := repo.AddMultiple(ctx, []model.Deadline{
				{Task: task, Due: iso(testNow.Add(time.Duration(i+1) * 24 * time.Hour))},
			})
			assert.NoError(t, err)
		}(i, task)
	}
	wg.Wait()

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(tasks))
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	stored, err := repo.Add(ctx, model.Deadline{
		Task:               "Submit report",
		Due:                "2024-03-22",
		Details:            "draft",
		Confidence:         model.ConfidenceLow,
		SourceEmailID:      "msg-1",
		SourceEmailSubject: "Report due",
		SourceEmailFrom:    "boss@example.com",
	})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, stored.ID, model.Deadline{
		ID:            "dl_other",
		Task:          "Submit final report",
		Due:           "2024-03-23T12:00:00",
		SourceEmailID: "msg-2",
	})
	require.NoError(t, err)

	assert.Equal(t, stored.ID, updated.ID)
	assert.Equal(t, "msg-1", updated.SourceEmailID)
	assert.Equal(t, "Report due", updated.SourceEmailSubject)
	assert.Empty(t, updated.Details, "fields are replaced, not merged")
	assert.Empty(t, updated.SourceEmailFrom)
	assert.Empty(t, updated.Confidence)

	got, err := repo.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestUpdate_UnknownIDLeavesCollectionUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Add(ctx, model.Deadline{Task: "Pay rent", Due: "2024-04-01"})
	require.NoError(t, err)
	before, err := repo.GetAll(ctx)
	require.NoError(t, err)

	_, err = repo.Update(ctx, "dl_missing", model.Deadline{Task: "x", Due: "2024-04-02"})
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	a, err := repo.Add(ctx, model.Deadline{Task: "Pay rent", Due: "2024-04-01"})
	require.NoError(t, err)
	b, err := repo.Add(ctx, model.Deadline{Task: "Book flights", Due: "2024-05-01"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, a.ID))
	assert.ErrorIs(t, repo.Delete(ctx, a.ID), ErrNotFound)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
}

func TestGetUpcoming(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, d := range []model.Deadline{
		{Task: "Past", Due: iso(testNow.Add(-time.Hour))},
		{Task: "Now", Due: iso(testNow)},
		{Task: "In two hours", Due: iso(testNow.Add(2 * time.Hour))},
		{Task: "Edge", Due: iso(testNow.Add(24 * time.Hour))},
		{Task: "Too far", Due: iso(testNow.Add(25 * time.Hour))},
		{Task: "Vague", Due: "sometime next week"},
	} {
		_, err := repo.Add(ctx, d)
		require.NoError(t, err, d.Task)
	}

	upcoming, err := repo.GetUpcoming(ctx, 24)
	require.NoError(t, err)

	var tasks []string
	for _, d := range upcoming {
		tasks = append(tasks, d.Task)
	}
	assert.Equal(t, []string{"Now", "In two hours", "Edge"}, tasks)
}

func TestGetUpcoming_HugeWindow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Add(ctx, model.Deadline{Task: "Soon", Due: iso(testNow.Add(time.Hour))})
	require.NoError(t, err)

	for _, hours := range []float64{3e6, math.MaxFloat64, math.Inf(1)} {
		upcoming, err := repo.GetUpcoming(ctx, hours)
		require.NoError(t, err)
		assert.Len(t, upcoming, 1, "hours=%v", hours)
	}

	upcoming, err := repo.GetUpcoming(ctx, math.NaN())
	require.NoError(t, err)
	assert.Empty(t, upcoming)
}
