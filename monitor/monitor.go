// Package monitor runs the acquisition side of the pipeline: a producer
// goroutine that owns the serial line, restarts the converter, and pushes
// every reading it receives onto a queue.
package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/luhtfiimanal/go-cdc-logger/handoff"
	"github.com/luhtfiimanal/go-cdc-logger/serial"
)

// Commands understood by the converter firmware.
const (
	CmdReset  = "r"
	CmdStream = "m"
	Newline   = "\r\n"
)

// Defaults for the startup protocol and the line.
const (
	DefaultBaudRate    = 57600
	DefaultReadTimeout = time.Second
	DefaultResetDelay  = 3 * time.Second
	DefaultStreamDelay = time.Second
)

// Sample is one reading taken from the line.
type Sample struct {
	Value int64
	// ProducedAt is the monotonic time elapsed since the monitor started.
	ProducedAt time.Duration
}

// Port is the part of *serial.SerialReader the monitor depends on.
type Port interface {
	WriteLine(line, newline string) error
	ReadLine() (string, error)
	FlushInput() error
	Close() error
}

// Config describes the line and the startup protocol timing.
type Config struct {
	Serial      serial.Config
	ResetDelay  time.Duration
	StreamDelay time.Duration

	// Open acquires the port. Defaults to serial.Open.
	Open   func(serial.Config) (Port, error)
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = DefaultBaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = DefaultReadTimeout
	}
	if c.ResetDelay == 0 {
		c.ResetDelay = DefaultResetDelay
	}
	if c.StreamDelay == 0 {
		c.StreamDelay = DefaultStreamDelay
	}
	if c.Open == nil {
		c.Open = func(cfg serial.Config) (Port, error) { return serial.Open(cfg) }
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Monitor is the producer side of the pipeline. It is started once, stopped
// cooperatively, and joined with a bounded wait.
type Monitor struct {
	cfg   Config
	queue *handoff.Queue[Sample]
	errs  *handoff.ErrorChannel
	log   *slog.Logger
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	epoch   time.Time
	started bool
	err     error
}

// New returns a Monitor that will push samples to queue and report a port
// open failure to errs.
func New(cfg Config, queue *handoff.Queue[Sample], errs *handoff.ErrorChannel) *Monitor {
	cfg.setDefaults()
	return &Monitor{
		cfg:   cfg,
		queue: queue,
		errs:  errs,
		log:   cfg.Logger.With("component", "monitor", "port", cfg.Serial.Device),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the producer goroutine. It may only be called once.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("monitor already started")
	}
	m.started = true
	m.epoch = time.Now()
	go m.run()
	return nil
}

// Elapsed returns the monotonic time since Start, the clock Sample.ProducedAt uses.
func (m *Monitor) Elapsed() time.Duration {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()
	if epoch.IsZero() {
		return 0
	}
	return time.Since(epoch)
}

// Stop asks the producer to exit. The request is observed at the next read
// timeout boundary at the latest.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
}

// Join stops the producer and waits up to timeout for it to exit. It reports
// whether the producer exited; false means shutdown was not confirmed and
// the goroutine may still hold the port.
func (m *Monitor) Join(timeout time.Duration) bool {
	m.Stop()
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return true
	}
	select {
	case <-m.done:
		return true
	case <-time.After(timeout):
		m.log.Warn("producer did not exit in time", "timeout", timeout)
		return false
	}
}

// Done is closed when the producer goroutine has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// DrainErrors returns the port open failure message, once.
func (m *Monitor) DrainErrors() (string, bool) {
	return m.errs.Take()
}

// Err returns the error that terminated the read loop, if any. A stop
// request is not an error.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Monitor) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.log.Error("producer terminated", "err", err)
}

func (m *Monitor) run() {
	defer close(m.done)

	port, err := m.cfg.Open(m.cfg.Serial)
	if err != nil {
		msg := fmt.Sprintf("cannot open %s: %v", m.cfg.Serial.Device, err)
		m.errs.Put(msg)
		m.log.Error("port open failed", "err", err)
		return
	}
	defer func() {
		if err := port.Close(); err != nil {
			m.log.Warn("closing port", "err", err)
		}
	}()

	if err := m.handshake(port); err != nil {
		if !errors.Is(err, errStopped) {
			m.fail(err)
		}
		return
	}
	m.log.Info("streaming")

	for {
		select {
		case <-m.stop:
			m.log.Info("producer stopped")
			return
		default:
		}

		line, err := port.ReadLine()
		if errors.Is(err, serial.ErrTimeout) {
			continue
		}
		if err != nil {
			m.fail(fmt.Errorf("read: %w", err))
			return
		}

		line = strings.Trim(line, "\r\n ")
		if line == "" {
			continue
		}
		v, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			m.fail(fmt.Errorf("parse line %q: %w", line, err))
			return
		}
		m.queue.Push(Sample{Value: v, ProducedAt: m.Elapsed()})
	}
}

var errStopped = errors.New("stopped during startup")

// handshake resets the converter and switches it to streaming mode, then
// discards whatever arrived while waiting.
func (m *Monitor) handshake(port Port) error {
	steps := []struct {
		cmd   string
		delay time.Duration
	}{
		{CmdReset, m.cfg.ResetDelay},
		{CmdStream, m.cfg.StreamDelay},
	}
	for _, step := range steps {
		if err := port.WriteLine(step.cmd, Newline); err != nil {
			return fmt.Errorf("write %q: %w", step.cmd, err)
		}
		m.log.Debug("command sent", "cmd", step.cmd, "wait", step.delay)
		select {
		case <-time.After(step.delay):
		case <-m.stop:
			return errStopped
		}
	}
	if err := port.FlushInput(); err != nil {
		return err
	}
	return nil
}
