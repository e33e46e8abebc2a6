// Package scheduler replays a frozen weave queue through the motion
// sequencer, diverting to a cleaning routine on request.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"leaflet-weaver/pkg/errors"
	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/weave"
)

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCleaning
	StateDone
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCleaning:
		return "cleaning"
	case StateDone:
		return "done"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Dancer executes one fiber. *motion.Sequencer satisfies it.
type Dancer interface {
	Dance(from, to mgl64.Vec3) error
}

// Cleaner is the external cleaning routine. It returns once the head is
// safe to resume.
type Cleaner interface {
	Clean(ctx context.Context) error
}

// CleanerFunc adapts a function to Cleaner.
type CleanerFunc func(ctx context.Context) error

// Clean calls f(ctx).
func (f CleanerFunc) Clean(ctx context.Context) error { return f(ctx) }

// Observer receives progress callbacks on the scheduler goroutine. Any
// field may be nil.
type Observer struct {
	OnStep     func(index int, step weave.Step, elapsed time.Duration)
	OnCleaning func(index int, elapsed time.Duration)
	OnState    func(state State)
}

// Observers combines several observers; each callback runs in order.
func Observers(obs ...Observer) Observer {
	return Observer{
		OnStep: func(i int, step weave.Step, elapsed time.Duration) {
			for _, o := range obs {
				if o.OnStep != nil {
					o.OnStep(i, step, elapsed)
				}
			}
		},
		OnCleaning: func(i int, elapsed time.Duration) {
			for _, o := range obs {
				if o.OnCleaning != nil {
					o.OnCleaning(i, elapsed)
				}
			}
		},
		OnState: func(state State) {
			for _, o := range obs {
				if o.OnState != nil {
					o.OnState(state)
				}
			}
		},
	}
}

// Options tune a run.
type Options struct {
	// StartAt skips queue entries before this index, for resuming.
	StartAt  int
	Observer Observer
	Logger   *log.Logger
}

// Scheduler owns the step index and the cleaning request signal.
type Scheduler struct {
	queue   *weave.Queue
	dancer  Dancer
	cleaner Cleaner
	opts    Options
	log     *log.Logger

	// interrupt holds at most one pending request. Sends and receives are
	// non-blocking so a request is consumed exactly once.
	interrupt chan struct{}
	// accepting is true while the run can still service a request.
	mu        sync.Mutex
	accepting bool

	state     atomic.Int32
	index     atomic.Int64
	cleanings atomic.Int64
	started   atomic.Bool
}

// New creates an idle scheduler for q.
func New(q *weave.Queue, dancer Dancer, cleaner Cleaner, opts Options) (*Scheduler, error) {
	if q == nil || dancer == nil || cleaner == nil {
		return nil, errors.InvalidConfiguration("scheduler", "queue, dancer and cleaner are required")
	}
	if opts.StartAt < 0 || opts.StartAt > q.Len() {
		return nil, errors.IndexOutOfRange("scheduler", opts.StartAt, q.Len()+1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("scheduler")
	}
	s := &Scheduler{
		queue:     q,
		dancer:    dancer,
		cleaner:   cleaner,
		opts:      opts,
		log:       logger,
		interrupt: make(chan struct{}, 1),
	}
	s.index.Store(int64(opts.StartAt))
	return s, nil
}

// RequestCleaning asks the run to clean before the next step. It is safe to
// call from any goroutine. It returns false when a request is already
// pending, since the two coalesce into one cleaning, and when the run has
// not started or has finished. An accepted request is always serviced
// unless the run halts first.
func (s *Scheduler) RequestCleaning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting {
		return false
	}
	select {
	case s.interrupt <- struct{}{}:
		return true
	default:
		return false
	}
}

// Pending reports whether a cleaning request is waiting.
func (s *Scheduler) Pending() bool {
	return len(s.interrupt) > 0
}

// State returns the current state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Index returns the pending step index.
func (s *Scheduler) Index() int { return int(s.index.Load()) }

// Cleanings returns how many cleanings this run has performed.
func (s *Scheduler) Cleanings() int { return int(s.cleanings.Load()) }

// Len returns the queue length.
func (s *Scheduler) Len() int { return s.queue.Len() }

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	if s.opts.Observer.OnState != nil {
		s.opts.Observer.OnState(st)
	}
}

// takeRequest is the atomic read-and-clear of the cleaning flag.
func (s *Scheduler) takeRequest() bool {
	select {
	case <-s.interrupt:
		return true
	default:
		return false
	}
}

// begin claims the scheduler and opens it for requests. It runs on the
// caller's goroutine so that a request made after Start returns is kept.
func (s *Scheduler) begin() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New(errors.ErrScheduler, "scheduler already started").SetSection("scheduler")
	}
	s.mu.Lock()
	// Requests raised before the run belong to no step.
	s.takeRequest()
	s.accepting = true
	s.mu.Unlock()

	s.log.WithFields(log.Fields{"steps": s.queue.Len(), "start": s.opts.StartAt}).Info("run started")
	s.setState(StateRunning)
	return nil
}

// closeRequests stops accepting requests and reports whether one was
// still pending.
func (s *Scheduler) closeRequests() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepting = false
	return s.takeRequest()
}

// Run executes the queue on the calling goroutine. A scheduler runs once.
// Cancellation takes effect between steps; a fiber that has started is
// always finished.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	return s.loop(ctx)
}

// Start opens the run for requests and executes the queue on a dedicated
// goroutine.
func (s *Scheduler) Start(ctx context.Context) *Completion {
	c := newCompletion()
	if err := s.begin(); err != nil {
		c.complete(err)
		return c
	}
	go func() {
		c.complete(s.loop(ctx))
	}()
	return c
}

func (s *Scheduler) loop(ctx context.Context) error {
	n := s.queue.Len()
	runStart := time.Now()

	for i := s.opts.StartAt; i < n; {
		s.index.Store(int64(i))

		if err := ctx.Err(); err != nil {
			return s.halt(errors.Wrap(err, errors.ErrScheduler, "run cancelled").
				SetSection("scheduler").
				SetContext("step", i))
		}

		if s.takeRequest() {
			if err := s.clean(ctx, i); err != nil {
				return s.halt(err)
			}
			// retry the same index; cancellation may have arrived meanwhile
			continue
		}

		step := s.queue.At(i)
		t0 := time.Now()
		if err := s.dancer.Dance(step.From, step.To); err != nil {
			return s.halt(errors.SinkError(err, i))
		}
		if s.opts.Observer.OnStep != nil {
			s.opts.Observer.OnStep(i, step, time.Since(t0))
		}
		i++
	}

	s.index.Store(int64(n))
	// a request accepted during the last step is serviced after it
	if s.closeRequests() {
		if err := s.clean(ctx, n); err != nil {
			return s.halt(err)
		}
	}
	s.setState(StateDone)
	s.log.WithFields(log.Fields{
		"steps":     n - s.opts.StartAt,
		"cleanings": s.Cleanings(),
		"elapsed":   time.Since(runStart).Round(time.Millisecond).String(),
	}).Info("run complete")
	return nil
}

func (s *Scheduler) clean(ctx context.Context, i int) *errors.HostError {
	s.setState(StateCleaning)
	s.log.WithField("step", i).Info("cleaning requested")
	t0 := time.Now()
	if err := s.cleaner.Clean(ctx); err != nil {
		return errors.CleaningError(err, i)
	}
	s.cleanings.Add(1)
	if s.opts.Observer.OnCleaning != nil {
		s.opts.Observer.OnCleaning(i, time.Since(t0))
	}
	s.setState(StateRunning)
	return nil
}

func (s *Scheduler) halt(err *errors.HostError) error {
	if s.closeRequests() {
		s.log.Warn("pending cleaning request dropped by halt")
	}
	s.setState(StateHalted)
	s.log.WithError(err).Error("run halted")
	return err
}
