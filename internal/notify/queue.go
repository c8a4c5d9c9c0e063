package notify

import (
	"container/heap"
	"sort"
	"time"

	"github.com/nhle/deadline-tracker/internal/model"
)

// jobKey identifies one (deadline, threshold) registration.
type jobKey struct {
	DeadlineID string
	Threshold  Threshold
}

type job struct {
	key      jobKey
	deadline model.Deadline
	fireAt   time.Time
	index    int
}

// PendingJob is a registered notification waiting for its fire time.
type PendingJob struct {
	DeadlineID string    `json:"deadline_id"`
	Threshold  Threshold `json:"threshold"`
	FireAt     time.Time `json:"fire_at"`
}

// jobHeap orders jobs by fire time, then by key.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if !h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].fireAt.Before(h[j].fireAt)
	}
	if h[i].key.DeadlineID != h[j].key.DeadlineID {
		return h[i].key.DeadlineID < h[j].key.DeadlineID
	}
	return h[i].key.Threshold < h[j].key.Threshold
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// timerQueue is a min-heap of jobs with removal by key. It is not safe
// for concurrent use; the engine guards it with its mutex.
type timerQueue struct {
	heap  jobHeap
	byKey map[jobKey]*job
}

func newTimerQueue() *timerQueue {
	return &timerQueue{byKey: make(map[jobKey]*job)}
}

func (q *timerQueue) len() int { return len(q.heap) }

func (q *timerQueue) has(k jobKey) bool {
	_, ok := q.byKey[k]
	return ok
}

// add registers j unless its key is already present.
func (q *timerQueue) add(j *job) bool {
	if q.has(j.key) {
		return false
	}
	heap.Push(&q.heap, j)
	q.byKey[j.key] = j
	return true
}

func (q *timerQueue) remove(k jobKey) bool {
	j, ok := q.byKey[k]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, j.index)
	delete(q.byKey, k)
	return true
}

// next returns the earliest fire time.
func (q *timerQueue) next() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].fireAt, true
}

// popDue removes and returns every job due at or before now, earliest
// first.
func (q *timerQueue) popDue(now time.Time) []*job {
	var due []*job
	for len(q.heap) > 0 && !q.heap[0].fireAt.After(now) {
		j := heap.Pop(&q.heap).(*job)
		delete(q.byKey, j.key)
		due = append(due, j)
	}
	return due
}

func (q *timerQueue) jobs() []*job {
	out := make([]*job, len(q.heap))
	copy(out, q.heap)
	return out
}

// snapshot lists pending jobs in fire order.
func (q *timerQueue) snapshot() []PendingJob {
	sorted := make(jobHeap, len(q.heap))
	copy(sorted, q.heap)
	sort.Slice(sorted, sorted.Less)

	out := make([]PendingJob, 0, len(sorted))
	for _, j := range sorted {
		out = append(out, PendingJob{
			DeadlineID: j.key.DeadlineID,
			Threshold:  j.key.Threshold,
			FireAt:     j.fireAt,
		})
	}
	return out
}

func (q *timerQueue) clear() {
	q.heap = nil
	q.byKey = make(map[jobKey]*job)
}
