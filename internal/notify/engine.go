// Package notify warns about upcoming deadlines. The Engine scans the
// repository on an interval, registers one-shot jobs for the warning
// thresholds each deadline has just crossed, and fires every job at most
// once, subject to a per-deadline cooldown recorded in the History.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/ai"
	"github.com/nhle/deadline-tracker/internal/match"
	"github.com/nhle/deadline-tracker/internal/metrics"
	"github.com/nhle/deadline-tracker/internal/model"
)

const (
	DefaultScanInterval   = 15 * time.Minute
	DefaultCooldown       = time.Hour
	DefaultLookaheadHours = 48.0

	dueLabelLayout = "2006-01-02 15:04"
	unknownDue     = "Unknown time"
	unknownTask    = "Unknown task"
)

// UpcomingSource lists deadlines due within the next hoursAhead hours.
type UpcomingSource interface {
	GetUpcoming(ctx context.Context, hoursAhead float64) ([]model.Deadline, error)
}

// ContentGenerator writes the subject and body of a reminder.
type ContentGenerator interface {
	Generate(ctx context.Context, r ai.Reminder) ai.Content
}

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	Now            func() time.Time
	ScanInterval   time.Duration
	Cooldown       time.Duration
	LookaheadHours float64
}

// Engine is the notification scheduler. Its pending table and the set of
// fired keys belong to the instance and are guarded by mu.
type Engine struct {
	deadlines UpcomingSource
	history   *History
	content   ContentGenerator
	logger    *zap.Logger
	metrics   *metrics.Metrics

	now       func() time.Time
	interval  time.Duration
	cooldown  time.Duration
	lookahead float64

	mu       sync.Mutex
	handlers []Handler
	queue    *timerQueue
	fired    map[jobKey]string
	running  bool
	stopCh   chan struct{}
	done     chan struct{}

	wakeCh chan struct{}
}

// NewEngine creates a stopped Engine. content may be nil, in which case
// every notification uses the template text.
func NewEngine(
	deadlines UpcomingSource,
	history *History,
	content ContentGenerator,
	logger *zap.Logger,
	m *metrics.Metrics,
	opts Options,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.LookaheadHours <= 0 {
		opts.LookaheadHours = DefaultLookaheadHours
	}

	return &Engine{
		deadlines: deadlines,
		history:   history,
		content:   content,
		logger:    logger.Named("notify"),
		metrics:   m,
		now:       opts.Now,
		interval:  opts.ScanInterval,
		cooldown:  opts.Cooldown,
		lookahead: opts.LookaheadHours,
		queue:     newTimerQueue(),
		fired:     make(map[jobKey]string),
		wakeCh:    make(chan struct{}, 1),
	}
}

// AddHandler registers h to receive every fired notification.
func (e *Engine) AddHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Start runs a scan immediately and then on every interval, firing
// registered jobs as they come due. Calling Start on a running engine
// does nothing.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	stopCh, done := e.stopCh, e.done
	e.mu.Unlock()

	go e.run(ctx, stopCh, done)
	e.logger.Info("notification engine started", zap.Duration("scan_interval", e.interval))
}

// Stop drops every pending job and waits for the background loop to
// exit. A notification already being fired is allowed to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.queue.clear()
	done := e.done
	e.mu.Unlock()

	<-done
	e.logger.Info("notification engine stopped")
}

// Running reports whether the background loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Pending lists registered jobs in fire order.
func (e *Engine) Pending() []PendingJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.snapshot()
}

func (e *Engine) run(ctx context.Context, stopCh, done chan struct{}) {
	defer func() {
		// A cancelled context ends the loop without Stop; leave the engine
		// restartable.
		e.mu.Lock()
		if e.running && e.stopCh == stopCh {
			e.running = false
			e.queue.clear()
		}
		e.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	e.scan(ctx)
	for {
		timer.Reset(e.untilNextFire())
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scan(ctx)
		case <-timer.C:
			e.FireDue(ctx)
		case <-e.wakeCh:
		}
	}
}

func (e *Engine) scan(ctx context.Context) {
	if err := e.Scan(ctx); err != nil {
		e.logger.Error("scan failed", zap.Error(err))
	}
}

func (e *Engine) untilNextFire() time.Duration {
	e.mu.Lock()
	next, ok := e.queue.next()
	e.mu.Unlock()
	if !ok {
		return e.interval
	}
	return max(next.Sub(e.now()), 0)
}

func (e *Engine) wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// Scan reads the upcoming deadlines, registers a job for each newly
// qualifying threshold and fires the immediate class synchronously.
func (e *Engine) Scan(ctx context.Context) error {
	start := time.Now()
	defer func() { e.metrics.ObserveScan(time.Since(start)) }()

	upcoming, err := e.deadlines.GetUpcoming(ctx, e.lookahead)
	if err != nil {
		return fmt.Errorf("loading upcoming deadlines: %w", err)
	}

	now := e.now()
	current := make(map[string]model.Deadline, len(upcoming))
	for _, d := range upcoming {
		if d.ID != "" {
			current[d.ID] = d
		}
	}

	var immediate []model.Deadline
	registered := 0

	e.mu.Lock()
	e.reconcile(current)
	for _, d := range upcoming {
		if d.ID == "" {
			continue
		}
		due, ok := match.ParseDue(d.Due)
		if !ok {
			continue
		}
		hours := due.Sub(now).Hours()
		if hours <= 0 {
			continue
		}

		for _, t := range QualifyingThresholds(hours) {
			key := jobKey{DeadlineID: d.ID, Threshold: t}
			if _, done := e.fired[key]; done || e.queue.has(key) {
				continue
			}

			if t == Immediate {
				e.fired[key] = d.Due
				immediate = append(immediate, d)
				continue
			}

			fireAt := due.Add(-time.Duration(t) * time.Hour)
			if fireAt.Before(now) {
				e.metrics.NotificationExpired()
				continue
			}
			e.queue.add(&job{key: key, deadline: d, fireAt: fireAt})
			registered++
			e.logger.Debug("scheduled notification",
				zap.String("deadline_id", d.ID),
				zap.Int("threshold", int(t)),
				zap.Time("fire_at", fireAt),
			)
		}
	}
	pending := e.queue.len()
	e.mu.Unlock()

	if registered > 0 {
		e.wake()
	}

	for _, d := range immediate {
		e.fire(ctx, d, Immediate)
	}

	e.logger.Info("scan complete",
		zap.Int("upcoming", len(upcoming)),
		zap.Int("registered", registered),
		zap.Int("immediate", len(immediate)),
		zap.Int("pending", pending),
	)
	return nil
}

// reconcile drops jobs whose deadline left the upcoming view or changed
// due time, refreshes the snapshot of the rest, and forgets fired keys
// whose deadline left the view or was rescheduled. Callers hold e.mu.
func (e *Engine) reconcile(current map[string]model.Deadline) {
	for _, j := range e.queue.jobs() {
		d, ok := current[j.key.DeadlineID]
		if !ok || d.Due != j.deadline.Due {
			e.queue.remove(j.key)
			continue
		}
		j.deadline = d
	}
	for key, due := range e.fired {
		if d, ok := current[key.DeadlineID]; !ok || d.Due != due {
			delete(e.fired, key)
		}
	}
}

// FireDue fires every registered job whose time has come and returns how
// many were taken off the pending table.
func (e *Engine) FireDue(ctx context.Context) int {
	now := e.now()

	e.mu.Lock()
	due := e.queue.popDue(now)
	for _, j := range due {
		e.fired[j.key] = j.deadline.Due
	}
	e.mu.Unlock()

	for _, j := range due {
		e.fire(ctx, j.deadline, j.key.Threshold)
	}
	return len(due)
}

// fire delivers one notification unless the deadline is in cooldown.
// The cooldown check and the history append are separate critical
// sections, so the guard is best-effort under concurrent FireDue calls.
func (e *Engine) fire(ctx context.Context, d model.Deadline, t Threshold) bool {
	now := e.now()
	if e.history.WasRecentlyNotified(ctx, d.ID, now, e.cooldown) {
		e.metrics.NotificationSuppressed()
		e.logger.Info("notification suppressed by cooldown",
			zap.String("deadline_id", d.ID),
			zap.Int("threshold", int(t)),
		)
		return false
	}

	n := e.buildNotification(ctx, d, t, now)
	e.dispatch(ctx, n)

	if err := e.history.Append(ctx, n); err != nil {
		e.logger.Error("recording notification", zap.String("notification_id", n.ID), zap.Error(err))
	}

	e.metrics.NotificationFired(int(t))
	e.logger.Info("notification sent",
		zap.String("deadline_id", d.ID),
		zap.String("task", n.Task),
		zap.String("time_context", n.TimeContext),
	)
	return true
}

func (e *Engine) buildNotification(ctx context.Context, d model.Deadline, t Threshold, now time.Time) model.Notification {
	task := d.Task
	if strings.TrimSpace(task) == "" {
		task = unknownTask
	}
	dueLabel := unknownDue
	if due, ok := match.ParseDue(d.Due); ok {
		dueLabel = due.Format(dueLabelLayout)
	}

	r := ai.Reminder{
		Task:        task,
		DueLabel:    dueLabel,
		TimeContext: t.TimeContext(),
		Details:     d.Details,
	}
	var c ai.Content
	if e.content != nil {
		c = e.content.Generate(ctx, r)
	} else {
		c = ai.FallbackContent(r)
	}

	return model.Notification{
		ID:          "notif_" + uuid.New().String(),
		DeadlineID:  d.ID,
		Task:        task,
		DueLabel:    dueLabel,
		Threshold:   int(t),
		TimeContext: r.TimeContext,
		Subject:     c.Subject,
		Body:        c.Body,
		SentAt:      now,
	}
}

// dispatch calls every handler in registration order. A failing or
// panicking handler is logged and the rest still run.
func (e *Engine) dispatch(ctx context.Context, n model.Notification) {
	e.mu.Lock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for i, h := range handlers {
		if err := callHandler(ctx, h, n); err != nil {
			e.metrics.HandlerError()
			e.logger.Error("notification handler failed",
				zap.Int("handler", i),
				zap.String("notification_id", n.ID),
				zap.Error(err),
			)
		}
	}
}

func callHandler(ctx context.Context, h Handler, n model.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.HandleNotification(ctx, n)
}
