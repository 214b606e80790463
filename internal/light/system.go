// Package light batches brightness updates for bus-attached light hardware.
//
// Callers request fades on individual Lights; the System merges dirty
// channels into the fewest possible write bursts, respecting bus adjacency,
// a per-command fade duration and a maximum batch size, and flushes them
// through a Sink on a fixed cadence.
package light

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Update is one entry of a write batch.
type Update struct {
	Light      *Light
	Brightness float64
	FadeMs     int64
}

// Sink applies an ordered, non-empty batch as one hardware transaction.
// A Sink error is fatal to the system; there is no retry at this layer.
type Sink interface {
	WriteBatch(ctx context.Context, batch []Update) error
}

// NumberKey orders lights by bus number.
func NumberKey(l *Light) int64 { return l.Number() }

// NumberAdjacent treats directly consecutive bus numbers as one run.
func NumberAdjacent(prev, next *Light) bool { return next.Number() == prev.Number()+1 }

// Options configure a System. All fields are fixed at construction.
type Options struct {
	// SortKey maps a light to its position in hardware/bus order.
	// Defaults to NumberKey.
	SortKey func(*Light) int64
	// Adjacent reports whether next directly follows prev on the bus, so
	// both can share one write burst. Defaults to NumberAdjacent.
	Adjacent func(prev, next *Light) bool
	// Sink receives every dispatched batch. Required.
	Sink Sink
	// MaxBatchSize bounds the entries in one dispatched batch.
	MaxBatchSize int
	// UpdateHz is the tick rate of the scheduler loop.
	UpdateHz int
	// OnBatch, when set, observes every successfully dispatched batch.
	OnBatch func([]Update)
}

type deferred struct {
	due   time.Time
	light *Light
}

// System owns the dirty set and the time-ordered reschedule queue, and runs
// the cooperative update loop. One instance per hardware platform.
type System struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	dirty    []*Light
	schedule []deferred
	err      error

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates opts and returns a stopped System. Malformed configuration
// fails here, not at first tick.
func New(opts Options) (*System, error) {
	if opts.Sink == nil {
		return nil, errors.New("light: sink is required")
	}
	if opts.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("light: max batch size must be positive, got %d", opts.MaxBatchSize)
	}
	if opts.UpdateHz <= 0 {
		return nil, fmt.Errorf("light: update rate must be positive, got %d Hz", opts.UpdateHz)
	}
	if opts.SortKey == nil {
		opts.SortKey = NumberKey
	}
	if opts.Adjacent == nil {
		opts.Adjacent = NumberAdjacent
	}
	return &System{opts: opts, now: time.Now}, nil
}

// MarkDirty queues l for evaluation on the next tick. Any pending reschedule
// entry for l is dropped first: a light is either deferred or dirty, never
// both. Safe to call from any goroutine.
func (s *System) MarkDirty(l *Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(s.schedule); {
		if s.schedule[i].light == l {
			s.schedule = append(s.schedule[:i], s.schedule[i+1:]...)
			continue
		}
		i++
	}
	s.dirty = append(s.dirty, l)
}

// Run executes the scheduler loop until ctx is cancelled. Cancellation is
// clean shutdown and returns nil; a sink failure terminates the loop and is
// returned unretried.
func (s *System) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.opts.UpdateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Debug().Dur("interval", interval).Int("max_batch", s.opts.MaxBatchSize).Msg("light system loop starting")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("light system loop stopped")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				log.Error().Err(err).Msg("light batch dispatch failed")
				return err
			}
		}
	}
}

// Start runs the loop on a background goroutine. Safe to call once per
// stopped system; a second Start while running is a no-op.
func (s *System) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	go func() {
		err := s.Run(ctx)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(done)
	}()
}

// Stop cancels the loop and waits for it to exit. Stopping a stopped system
// is a no-op.
func (s *System) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

// Done is closed once a started loop has exited, whether by Stop or by a
// sink failure. Returns nil before the first Start.
func (s *System) Done() <-chan struct{} {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.done
}

// Err reports the failure that terminated a started loop, if any.
func (s *System) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// tick promotes due reschedules, sorts and dedupes the dirty set, partitions
// it into maximal adjacent runs and flushes each run.
func (s *System) tick(ctx context.Context) error {
	work := s.takeDirty(s.now())
	if len(work) == 0 {
		return nil
	}
	sort.SliceStable(work, func(i, j int) bool {
		return s.opts.SortKey(work[i]) < s.opts.SortKey(work[j])
	})

	var run []*Light
	var last *Light
	for _, l := range work {
		if l == last {
			// repeated dirty marks within one tick collapse here
			continue
		}
		last = l
		switch {
		case len(run) == 0:
			run = append(run, l)
		case s.opts.Adjacent(run[len(run)-1], l):
			run = append(run, l)
		default:
			if err := s.flushRun(ctx, run); err != nil {
				return err
			}
			run = append(run[:0:0], l)
		}
	}
	if len(run) > 0 {
		return s.flushRun(ctx, run)
	}
	return nil
}

// takeDirty moves due reschedule entries into the dirty set, ordered by due
// time with the sort key breaking ties, then drains the dirty set. Marks
// arriving after the drain land on the next tick.
func (s *System) takeDirty(now time.Time) []*Light {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.schedule) > 0 {
		sort.SliceStable(s.schedule, func(i, j int) bool {
			if !s.schedule[i].due.Equal(s.schedule[j].due) {
				return s.schedule[i].due.Before(s.schedule[j].due)
			}
			return s.opts.SortKey(s.schedule[i].light) < s.opts.SortKey(s.schedule[j].light)
		})
		for len(s.schedule) > 0 && !s.schedule[0].due.After(now) {
			s.dirty = append(s.dirty, s.schedule[0].light)
			s.schedule = s.schedule[1:]
		}
	}
	work := s.dirty
	s.dirty = nil
	return work
}

// flushRun evaluates one adjacent run and dispatches it as sub-batches that
// share a single fade duration and respect MaxBatchSize. Lights whose fade
// has not completed are re-enqueued for the time their fade ends.
func (s *System) flushRun(ctx context.Context, run []*Light) error {
	now := s.now()
	batch := make([]Update, 0, s.opts.MaxBatchSize)
	var fadeMs int64
	for _, l := range run {
		brightness, fade, done := l.Evaluate(now)
		if !done {
			s.reschedule(now.Add(time.Duration(fade)*time.Millisecond), l)
		}
		if len(batch) == 0 {
			fadeMs = fade
		}
		if fade == fadeMs && len(batch) < s.opts.MaxBatchSize {
			batch = append(batch, Update{Light: l, Brightness: brightness, FadeMs: fadeMs})
			continue
		}
		if err := s.dispatch(ctx, batch); err != nil {
			return err
		}
		// the triggering light keeps its value from the previous clock read;
		// only later evaluations see the refreshed time
		now = s.now()
		fadeMs = fade
		batch = make([]Update, 0, s.opts.MaxBatchSize)
		batch = append(batch, Update{Light: l, Brightness: brightness, FadeMs: fadeMs})
	}
	if len(batch) > 0 {
		return s.dispatch(ctx, batch)
	}
	return nil
}

func (s *System) reschedule(due time.Time, l *Light) {
	s.mu.Lock()
	s.schedule = append(s.schedule, deferred{due: due, light: l})
	s.mu.Unlock()
}

func (s *System) dispatch(ctx context.Context, batch []Update) error {
	if err := s.opts.Sink.WriteBatch(ctx, batch); err != nil {
		return fmt.Errorf("write batch of %d: %w", len(batch), err)
	}
	log.Debug().Int("size", len(batch)).Int64("fade_ms", batch[0].FadeMs).Msg("batch dispatched")
	if s.opts.OnBatch != nil {
		s.opts.OnBatch(batch)
	}
	return nil
}
