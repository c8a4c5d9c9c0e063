package sync

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"
)

// SyncState represents the current state of the mail poller.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the outcome of the most recent poll.
type SyncStatus struct {
	State      SyncState
	LastSync   time.Time
	LastResult Result
	Error      error
}

// fetchTimeout is the maximum time allowed for a single sync run.
const fetchTimeout = 5 * time.Minute

// Poller repeats an email sync on a fixed interval.
type Poller struct {
	syncer   *Syncer
	fetcher  Fetcher
	days     int
	interval time.Duration
	logger   *zap.Logger

	status    SyncStatus
	triggerCh chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	mu        gosync.Mutex
	running   bool
}

// NewPoller creates a Poller. A non-positive interval defaults to 15
// minutes.
func NewPoller(s *Syncer, f Fetcher, days int, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		syncer:    s,
		fetcher:   f,
		days:      days,
		interval:  interval,
		logger:    logger.Named("poller"),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the polling goroutine. It does an initial sync
// immediately. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})

	go p.poll(ctx, p.stopCh, p.done)
}

// Stop halts the polling goroutine and waits for an in-flight sync.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	done := p.done
	p.mu.Unlock()

	<-done
}

// Running reports whether the polling goroutine is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Refresh triggers an immediate sync without blocking.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the most recent sync.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) poll(ctx context.Context, stopCh, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		if p.running && p.stopCh == stopCh {
			p.running = false
		}
		p.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.syncOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.syncOnce(ctx)
		case <-p.triggerCh:
			p.syncOnce(ctx)
		}
	}
}

// syncOnce performs a single sync and records its outcome.
func (p *Poller) syncOnce(ctx context.Context) {
	p.setStatus(func(s *SyncStatus) {
		s.State = SyncRunning
	})

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	res, err := p.syncer.SyncEmails(ctx, p.fetcher, p.days)
	if err != nil {
		p.logger.Error("email sync failed", zap.Error(err))
		p.setStatus(func(s *SyncStatus) {
			s.State = SyncError
			s.Error = err
			s.LastResult = res
		})
		return
	}

	p.setStatus(func(s *SyncStatus) {
		s.State = SyncIdle
		s.Error = nil
		s.LastSync = time.Now()
		s.LastResult = res
	})
}

func (p *Poller) setStatus(update func(*SyncStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	update(&p.status)
}
