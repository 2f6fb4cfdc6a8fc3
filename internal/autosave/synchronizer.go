// Package autosave persists a document collection after a quiet period
// without the user asking for it.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"docshub/api/internal/document"
)

const (
	DefaultDebounce   = 2 * time.Second
	DefaultMaxBackoff = time.Minute
	DefaultTimeout    = 30 * time.Second
)

var ErrClosed = errors.New("autosave: synchronizer closed")

type Status string

const (
	StatusSaved  Status = "saved"
	StatusDirty  Status = "pending"
	StatusSaving Status = "saving"
	StatusFailed Status = "failed"
)

// Saver replaces the persisted collections of one project.
type Saver interface {
	Save(ctx context.Context, snapshot document.Snapshot) error
}

type SaverFunc func(ctx context.Context, snapshot document.Snapshot) error

func (f SaverFunc) Save(ctx context.Context, snapshot document.Snapshot) error {
	return f(ctx, snapshot)
}

type Options struct {
	Debounce   time.Duration
	MaxBackoff time.Duration
	Timeout    time.Duration
	Logger     zerolog.Logger
	// OnStatus is called outside the synchronizer's lock on every status
	// transition.
	OnStatus func(Status)
}

// Synchronizer coalesces mutations into debounced whole-collection saves.
//
// Every MarkDirty bumps a generation counter and restarts the timer. When
// the timer fires a single save runs with the current snapshot; the dirty
// flag clears only if no mutation arrived while it was in flight. A failed
// save keeps the flag and re-arms the timer with exponential backoff.
type Synchronizer struct {
	saver    Saver
	snapshot func() document.Snapshot
	opts     Options

	mu        sync.Mutex
	timer     *time.Timer
	timerSeq  uint64
	gen       uint64
	savedGen  uint64
	inFlight  chan struct{}
	failures  int
	status    Status
	lastErr   error
	lastSaved time.Time
	closed    bool
}

func New(saver Saver, snapshot func() document.Snapshot, opts Options) *Synchronizer {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MaxBackoff < opts.Debounce {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Synchronizer{
		saver:    saver,
		snapshot: snapshot,
		opts:     opts,
		status:   StatusSaved,
	}
}

// Watch wires the synchronizer to every mutation of collection.
func Watch(collection *document.Collection, saver Saver, opts Options) *Synchronizer {
	s := New(saver, collection.Snapshot, opts)
	collection.Observe(s.MarkDirty)
	return s
}

// MarkDirty records a local mutation and restarts the debounce window.
func (s *Synchronizer) MarkDirty() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.failures = 0
	changed := false
	if s.inFlight == nil {
		s.scheduleLocked(s.opts.Debounce)
		changed = s.setStatusLocked(StatusDirty)
	}
	s.mu.Unlock()
	s.emit(changed, StatusDirty)
}

func (s *Synchronizer) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != s.savedGen
}

func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Synchronizer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Synchronizer) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// Flush cancels the pending timer and saves synchronously if anything is
// unsaved, waiting out a save that is already in flight.
func (s *Synchronizer) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		if wait := s.inFlight; wait != nil {
			s.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		s.stopTimerLocked()
		if s.gen == s.savedGen {
			s.mu.Unlock()
			return nil
		}
		gen, done := s.beginLocked()
		s.mu.Unlock()
		s.emit(true, StatusSaving)

		return s.persist(ctx, gen, done)
	}
}

// Close flushes pending mutations and stops accepting new ones.
func (s *Synchronizer) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.stopTimerLocked()
	s.mu.Unlock()
	return err
}

func (s *Synchronizer) scheduleLocked(delay time.Duration) {
	s.stopTimerLocked()
	s.timerSeq++
	seq := s.timerSeq
	s.timer = time.AfterFunc(delay, func() { s.fire(seq) })
}

func (s *Synchronizer) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
}

func (s *Synchronizer) fire(seq uint64) {
	s.mu.Lock()
	if seq != s.timerSeq || s.closed || s.inFlight != nil || s.gen == s.savedGen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	gen, done := s.beginLocked()
	s.mu.Unlock()
	s.emit(true, StatusSaving)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()
	_ = s.persist(ctx, gen, done)
}

func (s *Synchronizer) beginLocked() (uint64, chan struct{}) {
	done := make(chan struct{})
	s.inFlight = done
	s.status = StatusSaving
	return s.gen, done
}

// persist runs one save for generation gen and settles the bookkeeping. A
// failure re-arms the timer unless the synchronizer is closed.
func (s *Synchronizer) persist(ctx context.Context, gen uint64, done chan struct{}) error {
	err := s.saver.Save(ctx, s.snapshot())

	s.mu.Lock()
	s.inFlight = nil
	close(done)

	var next Status
	if err != nil {
		s.failures++
		s.lastErr = err
		next = StatusFailed
		s.opts.Logger.Warn().
			Err(err).
			Int("attempt", s.failures).
			Msg("autosave failed; changes kept for retry")
		if !s.closed {
			s.scheduleLocked(s.backoffLocked())
		}
	} else {
		s.lastErr = nil
		s.failures = 0
		s.lastSaved = time.Now()
		if gen > s.savedGen {
			s.savedGen = gen
		}
		next = StatusSaved
		if s.gen != s.savedGen {
			next = StatusDirty
			if !s.closed {
				s.scheduleLocked(s.opts.Debounce)
			}
		}
	}
	changed := s.setStatusLocked(next)
	s.mu.Unlock()
	s.emit(changed, next)
	return err
}

func (s *Synchronizer) backoffLocked() time.Duration {
	delay := s.opts.Debounce
	for i := 1; i < s.failures; i++ {
		delay *= 2
		if delay >= s.opts.MaxBackoff {
			return s.opts.MaxBackoff
		}
	}
	return delay
}

func (s *Synchronizer) setStatusLocked(next Status) bool {
	if s.status == next {
		return false
	}
	s.status = next
	return true
}

func (s *Synchronizer) emit(changed bool, status Status) {
	if changed && s.opts.OnStatus != nil {
		s.opts.OnStatus(status)
	}
}
