// Package period turns the raw reading stream into oscillation periods.
//
// The estimator looks for a rise followed by a fall in the stream, comparing
// each new reading to the one two samples earlier, and times the interval
// between consecutive peaks. The first two measured periods after a reset are
// treated as settling noise and left out of the statistics and the export.
package period

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Warmup is the number of leading periods excluded from statistics and export.
const Warmup = 2

var (
	// ErrInsufficientData is returned by Statistics until Warmup+1 periods exist.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNoSink is returned by Stop when there is nowhere to export to.
	ErrNoSink = errors.New("no export sink")
	// ErrNotRunning is returned by Stop outside the Running state.
	ErrNotRunning = errors.New("estimator not running")
)

// State of the estimator.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Estimator detects peaks and records the time between them. It is safe to
// call Reset and Stop from a goroutine other than the one calling Feed.
type Estimator struct {
	mu    sync.Mutex
	clock func() time.Duration
	sink  Sink
	log   *slog.Logger

	state      State
	seen       int
	prev       int64
	prevPrev   int64
	rising     bool
	anchored   bool
	cycleStart time.Duration
	periods    []time.Duration
	stats      *accumulator
}

// New returns an Idle estimator. clock must read the same monotonic time
// base as the timestamps passed to Feed. sink may be nil.
//
// Periods are measured between two detected peaks: the first peak after a
// Reset only marks the start of the first cycle, so the time from Reset to
// that peak is never recorded.
func New(clock func() time.Duration, sink Sink, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = func() time.Duration { return 0 }
	}
	return &Estimator{
		clock: clock,
		sink:  sink,
		log:   logger.With("component", "period"),
		stats: newAccumulator(),
	}
}

// Reset clears all measurements and starts a new Running session. The next
// detected peak anchors the first cycle and yields no period.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Running
	e.seen = 0
	e.prev, e.prevPrev = 0, 0
	e.rising = false
	e.anchored = false
	e.cycleStart = e.clock()
	e.periods = nil
	e.stats.reset()
	e.log.Info("period measurement started")
}

// Stop ends the Running session and exports every period except the warm-up
// pair to the sink. The session is stopped and its periods kept even when
// the export fails; the export error is returned.
func (e *Estimator) Stop() error {
	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.state = Stopped
	export := e.exportable()
	sink := e.sink
	e.mu.Unlock()

	if sink == nil {
		e.log.Warn("period export skipped", "err", ErrNoSink, "periods", len(export))
		return ErrNoSink
	}
	if err := sink.Export(export); err != nil {
		e.log.Error("period export failed", "err", err, "periods", len(export))
		return fmt.Errorf("export periods: %w", err)
	}
	e.log.Info("periods exported", "periods", len(export))
	return nil
}

// Feed processes one reading taken at monotonic time t. When the reading
// completes a cycle it returns the measured period and true. Readings are
// ignored unless the estimator is Running.
func (e *Estimator) Feed(v int64, t time.Duration) (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Running {
		return 0, false
	}

	defer func() {
		e.prevPrev, e.prev = e.prev, v
		e.seen++
	}()

	if e.seen < 2 {
		return 0, false
	}

	switch {
	case v > e.prevPrev:
		e.rising = true
	case v < e.prevPrev && e.rising:
		e.rising = false
		// The first peak only marks where the first full cycle begins.
		if !e.anchored {
			e.anchored = true
			e.cycleStart = t
			return 0, false
		}
		p := t - e.cycleStart
		e.cycleStart = t
		e.periods = append(e.periods, p)
		if len(e.periods) > Warmup {
			e.stats.add(p)
		}
		return p, true
	}
	return 0, false
}

// State returns the current state.
func (e *Estimator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Periods returns a copy of every period measured in the current session,
// warm-up included.
func (e *Estimator) Periods() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Duration(nil), e.periods...)
}

// Statistics summarizes the periods measured after the warm-up.
func (e *Estimator) Statistics() (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statistics()
}

func (e *Estimator) statistics() (Stats, error) {
	if len(e.periods) < Warmup+1 {
		return Stats{}, ErrInsufficientData
	}
	return e.stats.summary(e.exportable()), nil
}

func (e *Estimator) exportable() []time.Duration {
	if len(e.periods) <= Warmup {
		return nil
	}
	return append([]time.Duration(nil), e.periods[Warmup:]...)
}

// Snapshot is a consistent view for display.
type Snapshot struct {
	State   State
	Records int
	Last    time.Duration
	Stats   Stats
	// Ready is false while Stats is not yet defined.
	Ready bool
}

// Snapshot returns the current state, record count, last period and statistics.
func (e *Estimator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{State: e.state, Records: len(e.periods)}
	if n := len(e.periods); n > 0 {
		s.Last = e.periods[n-1]
	}
	if st, err := e.statistics(); err == nil {
		s.Stats, s.Ready = st, true
	}
	return s
}
