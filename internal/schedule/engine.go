package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/logging"
)

// DefaultPollInterval is how often each worker compares the clock with its
// schedule's start minute.
const DefaultPollInterval = time.Second

// Options configures an Engine.
type Options struct {
	// PollInterval overrides DefaultPollInterval
	PollInterval time.Duration
}

// Engine runs one worker per schedule of the current configuration.
//
// A new configuration replaces the whole worker generation: the applier sets
// every old worker's stop flag, waits for it to exit (a run in progress is
// finished first), then starts the new generation.
type Engine struct {
	emitter Emitter
	clock   clockwork.Clock
	poll    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	workers    []*worker
	generation uint64

	updates     chan config.Config
	startOnce   sync.Once
	started     bool
	closeOnce   sync.Once
	applierDone chan struct{}
}

// New creates an engine. A nil clock selects the real clock. No worker runs
// until Start.
func New(emitter Emitter, clock clockwork.Clock, opts Options) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		emitter:     emitter,
		clock:       clock,
		poll:        opts.PollInterval,
		ctx:         ctx,
		cancel:      cancel,
		updates:     make(chan config.Config, 1),
		applierDone: make(chan struct{}),
	}
}

// Start spawns the first generation from cfg and the applier that handles
// later updates. Calls after the first are ignored.
func (e *Engine) Start(cfg config.Config) {
	e.startOnce.Do(func() {
		if e.ctx.Err() != nil {
			return
		}
		e.started = true
		e.spawn(cfg)
		go e.applier()
	})
}

// Update hands cfg to the applier and returns immediately. If an earlier
// update is still waiting it is discarded; the latest configuration wins.
func (e *Engine) Update(cfg config.Config) {
	cfg = cfg.Clone()
	for {
		if e.ctx.Err() != nil {
			return
		}
		select {
		case e.updates <- cfg:
			return
		default:
		}
		select {
		case stale := <-e.updates:
			logging.Debug("Superseded pending schedule update",
				zap.Int("schedules", len(stale.Schedules)),
			)
		default:
		}
	}
}

// Workers returns the number of workers in the current generation.
func (e *Engine) Workers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// Generation returns how many worker generations have been spawned.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Close stops the applier and every worker. A run in progress is
// interrupted and its zones are switched off. Start has no effect after
// Close.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		e.startOnce.Do(func() {})
		if e.started {
			<-e.applierDone
		}
		e.stopAll()
		logging.Info("Schedule engine stopped")
	})
}

func (e *Engine) applier() {
	defer close(e.applierDone)
	for {
		select {
		case <-e.ctx.Done():
			return
		case cfg := <-e.updates:
			e.stopAll()
			if e.ctx.Err() != nil {
				return
			}
			e.spawn(cfg)
		}
	}
}

// spawn starts one worker per schedule of cfg as a new generation.
func (e *Engine) spawn(cfg config.Config) {
	stagger := cfg.Stagger()

	workers := make([]*worker, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		w := &worker{
			schedule: s,
			stagger:  stagger,
			emitter:  e.emitter,
			clock:    e.clock,
			poll:     e.poll,
			done:     make(chan struct{}),
		}
		workers = append(workers, w)
		go w.loop(e.ctx)
	}

	e.mu.Lock()
	e.workers = workers
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	logging.Info("Schedule generation started",
		zap.Uint64("generation", gen),
		zap.Int("schedules", len(workers)),
		zap.Bool("stagger", stagger),
	)
}

// stopAll raises every current worker's stop flag, then joins them.
func (e *Engine) stopAll() {
	e.mu.Lock()
	old := e.workers
	e.mu.Unlock()

	for _, w := range old {
		w.halt()
	}
	for _, w := range old {
		<-w.done
	}

	e.mu.Lock()
	e.workers = nil
	e.mu.Unlock()
}

// worker polls the clock for one schedule.
type worker struct {
	schedule config.Schedule
	stagger  bool
	emitter  Emitter
	clock    clockwork.Clock
	poll     time.Duration

	stop atomic.Bool
	done chan struct{}
}

// halt raises the stop flag. It reports whether this call raised it.
func (w *worker) halt() bool {
	return !w.stop.Swap(true)
}

// loop fires the schedule whenever the current minute matches. It does not
// remember having fired, so a run shorter than one minute fires again in the
// same start minute.
func (w *worker) loop(ctx context.Context) {
	defer close(w.done)

	for {
		if w.stop.Load() {
			return
		}

		now := w.clock.Now()
		if w.schedule.IsActive && w.schedule.StartsAt(now) {
			logging.Info("Schedule starting",
				zap.String("schedule", w.schedule.Name),
				zap.String("start", w.schedule.StartTime()),
				zap.Int("periods", len(w.schedule.ActivePeriods)),
			)
			if err := Run(ctx, w.emitter, w.clock, w.schedule.ActivePeriods, w.stagger); err != nil {
				logging.Info("Schedule run interrupted",
					zap.String("schedule", w.schedule.Name),
					zap.Error(err),
				)
				return
			}
			logging.Info("Schedule finished", zap.String("schedule", w.schedule.Name))

			if w.stop.Load() {
				return
			}
		}

		select {
		case <-w.clock.After(w.poll):
		case <-ctx.Done():
			return
		}
	}
}
