// Package poll runs periodic refreshes while the OBS session is up.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
	"github.com/dvangennip/web-remote-for-OBS/internal/metrics"
)

// DefaultInterval is the pause between the end of one refresh and the
// start of the next.
const DefaultInterval = 3 * time.Second

// Scheduler calls fn periodically. The interval is measured from the end of
// one call to the start of the next, so a slow refresh delays the loop
// instead of piling up. At most one tick is pending at any time and calls
// never overlap.
type Scheduler struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	clock    clock.Clock
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	runMu  sync.Mutex // serializes fn
	wg     sync.WaitGroup

	mu      sync.Mutex
	timer   *clock.Timer
	gen     uint64
	running bool
	stopped bool
}

// Options configures a Scheduler.
type Options struct {
	// Name labels logs and metrics.
	Name     string
	Interval time.Duration
	// Clock defaults to the wall clock.
	Clock clock.Clock
	Log   zerolog.Logger
}

// New creates a paused scheduler.
func New(fn func(ctx context.Context), opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Name == "" {
		opts.Name = "refresh"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		name:     opts.Name,
		interval: opts.Interval,
		fn:       fn,
		clock:    opts.Clock,
		log:      opts.Log.With().Str("component", "poll").Str("loop", opts.Name).Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the first tick immediately.
func (s *Scheduler) Start() {
	s.schedule(0)
}

// Resume runs the first tick one interval from now.
func (s *Scheduler) Resume() {
	s.schedule(s.interval)
}

// Pause cancels the pending tick. A call in progress completes but does not
// schedule another.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.running = false
	s.stopTimerLocked()
}

// Stop pauses the scheduler for good and waits for a call in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.gen++
	s.running = false
	s.stopTimerLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Running reports whether ticks are being scheduled.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Connected resumes polling once the session is authenticated.
func (s *Scheduler) Connected(context.Context) {
	s.Resume()
}

// Disconnected pauses polling so no request is sent without a session.
func (s *Scheduler) Disconnected(client.DisconnectInfo) {
	s.Pause()
}

func (s *Scheduler) schedule(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopTimerLocked()
	s.gen++
	s.running = true
	s.armLocked(s.gen, d)
}

func (s *Scheduler) armLocked(gen uint64, d time.Duration) {
	s.timer = s.clock.AfterFunc(d, func() { s.fire(gen) })
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.runMu.Lock()
	start := s.clock.Now()
	s.run()
	elapsed := s.clock.Since(start)
	s.runMu.Unlock()
	metrics.PollDuration.WithLabelValues(s.name).Observe(elapsed.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen && s.running && !s.stopped {
		s.armLocked(gen, s.interval)
	}
}

// run calls fn, keeping the loop alive if it panics.
func (s *Scheduler) run() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("refresh panicked")
		}
	}()
	s.fn(s.ctx)
}
