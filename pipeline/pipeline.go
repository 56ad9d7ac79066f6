// Package pipeline drives the consumer side: on every tick it drains the
// sample queue and hands each reading, in arrival order, to the live
// buffer, the period estimator and the daily log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luhtfiimanal/go-cdc-logger/daylog"
	"github.com/luhtfiimanal/go-cdc-logger/handoff"
	"github.com/luhtfiimanal/go-cdc-logger/monitor"
	"github.com/luhtfiimanal/go-cdc-logger/period"
)

// DefaultInterval is the polling period.
const DefaultInterval = 5 * time.Millisecond

// Options wire a Loop to its producer and consumers. Estimator and DayLog
// may be nil.
type Options struct {
	Queue     *handoff.Queue[monitor.Sample]
	Live      *handoff.LiveBuffer[monitor.Sample]
	Estimator *period.Estimator
	DayLog    *daylog.Logger
	Interval  time.Duration
	Logger    *slog.Logger
}

// Loop is the periodic consumer.
type Loop struct {
	queue    *handoff.Queue[monitor.Sample]
	live     *handoff.LiveBuffer[monitor.Sample]
	est      *period.Estimator
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex // guards dlog and err
	dlog *daylog.Logger
	err  error
}

// New returns a Loop. Queue and Live are required.
func New(opts Options) (*Loop, error) {
	if opts.Queue == nil || opts.Live == nil {
		return nil, errors.New("pipeline: queue and live buffer are required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loop{
		queue:    opts.Queue,
		live:     opts.Live,
		est:      opts.Estimator,
		dlog:     opts.DayLog,
		interval: opts.Interval,
		log:      opts.Logger.With("component", "pipeline"),
	}, nil
}

// Run ticks until ctx is done, then drains the queue one last time.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Tick()
			l.closeLog()
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick drains the queue and processes every sample in arrival order. It
// never blocks on the producer and returns the number of samples handled.
func (l *Loop) Tick() int {
	samples := l.queue.DrainAll()
	if len(samples) == 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	logging := l.dlog != nil && l.dlog.Enabled()
	for _, s := range samples {
		l.live.Push(s)
		if l.est != nil {
			if p, ok := l.est.Feed(s.Value, s.ProducedAt); ok {
				l.log.Debug("period measured", "period", p)
			}
		}
		if logging {
			if err := l.dlog.Write(s.Value); err != nil {
				l.logFailed(err)
				logging = false
			}
		}
	}
	if logging {
		if err := l.dlog.Flush(); err != nil {
			l.logFailed(err)
		}
	}
	return len(samples)
}

// logFailed turns logging off after a write error; acquisition goes on.
func (l *Loop) logFailed(err error) {
	l.err = fmt.Errorf("day log: %w", err)
	l.log.Error("log write failed, logging disabled", "err", err)
	if derr := l.dlog.Disable(); derr != nil {
		l.log.Warn("disabling day log", "err", derr)
	}
}

// EnableLogging starts writing samples to the daily log.
func (l *Loop) EnableLogging() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dlog == nil {
		return errors.New("pipeline: no day log configured")
	}
	return l.dlog.Enable()
}

// DisableLogging stops writing samples and closes the current log file.
func (l *Loop) DisableLogging() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dlog == nil {
		return nil
	}
	return l.dlog.Disable()
}

// Logging reports whether samples are being written to the daily log.
func (l *Loop) Logging() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dlog != nil && l.dlog.Enabled()
}

// Err returns the log write failure that disabled logging, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) closeLog() {
	if err := l.DisableLogging(); err != nil {
		l.log.Warn("closing day log", "err", err)
	}
}
