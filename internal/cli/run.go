package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/luhtfiimanal/go-cdc-logger/daylog"
	"github.com/luhtfiimanal/go-cdc-logger/handoff"
	"github.com/luhtfiimanal/go-cdc-logger/internal/config"
	"github.com/luhtfiimanal/go-cdc-logger/internal/display"
	"github.com/luhtfiimanal/go-cdc-logger/internal/logger"
	"github.com/luhtfiimanal/go-cdc-logger/monitor"
	"github.com/luhtfiimanal/go-cdc-logger/period"
	"github.com/luhtfiimanal/go-cdc-logger/pipeline"
	"github.com/luhtfiimanal/go-cdc-logger/serial"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start acquisition from the instrument",
	Long: `Start acquisition from the instrument.

The converter is reset and switched to streaming mode, then every reading
is shown, fed to the period estimator and, with --log, appended to the
file of the current day.

Signals:
  SIGUSR1  start (or restart) period measurement
  SIGUSR2  stop period measurement and export the periods
  SIGINT   stop acquisition`,
	RunE: runRun,
}

func init() {
	registerRunFlags(runCmd)
}

func registerRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("config", "c", "", "YAML configuration file")
	f.StringP("port", "p", "", "serial device, e.g. /dev/ttyUSB0")
	f.IntP("baud", "b", 57600, "baud rate")
	f.Bool("log", false, "append readings to daily log files")
	f.String("log-dir", ".", "directory of the daily log files")
	f.String("export", "", "file receiving the periods on stop (default stdout)")
	f.Duration("interval", pipeline.DefaultInterval, "polling interval")
	f.Bool("period", false, "start period measurement immediately")
	f.Bool("no-display", false, "do not print readings")
	f.String("log-level", "info", "log level: debug, info, warn, error")
}

// resolveConfig merges the config file, if any, with the flags the user set.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	cfg := config.Default()
	if path, _ := f.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if f.Changed("port") {
		cfg.Port, _ = f.GetString("port")
	}
	if f.Changed("baud") {
		cfg.Baud, _ = f.GetInt("baud")
	}
	if f.Changed("log") {
		cfg.Logging, _ = f.GetBool("log")
	}
	if f.Changed("log-dir") {
		cfg.LogDir, _ = f.GetString("log-dir")
	}
	if f.Changed("export") {
		cfg.Export, _ = f.GetString("export")
	}
	if f.Changed("interval") {
		d, _ := f.GetDuration("interval")
		cfg.PollInterval = config.Duration(d)
	}
	if f.Changed("no-display") {
		off, _ := f.GetBool("no-display")
		cfg.Display = !off
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	return cfg, cfg.Validate()
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	startPeriod, _ := cmd.Flags().GetBool("period")

	log := logger.Init(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctl := make(chan os.Signal, 1)
	signal.Notify(ctl, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(ctl)

	s, err := newSession(cfg, cmd, log)
	if err != nil {
		return err
	}
	return s.run(ctx, ctl, startPeriod)
}

// session wires the producer, the poll loop and its consumers.
type session struct {
	cfg     config.Config
	log     *slog.Logger
	mon     *monitor.Monitor
	est     *period.Estimator
	loop    *pipeline.Loop
	console *display.Console
}

func newSession(cfg config.Config, cmd *cobra.Command, log *slog.Logger) (*session, error) {
	queue := handoff.NewQueue[monitor.Sample]()
	live := handoff.NewLiveBuffer[monitor.Sample]()

	mon := monitor.New(monitor.Config{
		Serial: serial.Config{
			Device:      cfg.Port,
			BaudRate:    cfg.Baud,
			StopBits:    cfg.StopBits,
			Parity:      cfg.Parity,
			ReadTimeout: cfg.ReadTimeout.D(),
		},
		ResetDelay:  cfg.ResetDelay.D(),
		StreamDelay: cfg.StreamDelay.D(),
		Logger:      log,
	}, queue, handoff.NewErrorChannel())

	var sink period.Sink = period.TextSink{W: cmd.OutOrStdout()}
	if cfg.Export != "" {
		sink = period.FileSink{Path: cfg.Export}
	}
	est := period.New(mon.Elapsed, sink, log)

	loop, err := pipeline.New(pipeline.Options{
		Queue:     queue,
		Live:      live,
		Estimator: est,
		DayLog:    daylog.New(daylog.Options{Dir: cfg.LogDir, Ext: cfg.LogExt, Logger: log}),
		Interval:  cfg.PollInterval.D(),
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log, mon: mon, est: est, loop: loop}
	if cfg.Display {
		out := cmd.OutOrStdout()
		noColor := true
		if f, ok := out.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
		s.console = display.New(out, live, est, cfg.DisplayInterval.D(), noColor)
	}
	return s, nil
}

func (s *session) run(ctx context.Context, ctl <-chan os.Signal, startPeriod bool) error {
	if s.cfg.Logging {
		if err := s.loop.EnableLogging(); err != nil {
			return err
		}
	}
	if err := s.mon.Start(); err != nil {
		return err
	}
	if startPeriod {
		s.est.Reset()
	}

	consumers, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop.Run(consumers)
	}()
	if s.console != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.console.Run(consumers)
		}()
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutting down")
			break loop
		case <-s.mon.Done():
			if msg, ok := s.mon.DrainErrors(); ok {
				runErr = errors.New(msg)
			} else if err := s.mon.Err(); err != nil {
				runErr = err
			}
			break loop
		case sig := <-ctl:
			s.control(sig)
		}
	}

	if !s.mon.Join(s.cfg.JoinTimeout.D()) {
		s.log.Warn("serial producer still running", "timeout", s.cfg.JoinTimeout)
	}
	cancel()
	wg.Wait()

	if s.est.State() == period.Running {
		s.stopPeriod()
	}
	if err := s.loop.Err(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (s *session) control(sig os.Signal) {
	switch sig {
	case syscall.SIGUSR1:
		s.est.Reset()
	case syscall.SIGUSR2:
		s.stopPeriod()
	}
}

func (s *session) stopPeriod() {
	err := s.est.Stop()
	switch {
	case err == nil:
	case errors.Is(err, period.ErrNotRunning):
		s.log.Warn("period measurement is not running")
	default:
		// The periods stay in memory; only the export was lost.
		s.log.Warn("period export failed", "err", err)
	}
	if st, err := s.est.Statistics(); err == nil {
		s.log.Info("period statistics",
			"count", st.Count,
			"mean", fmt.Sprintf("%.6fs", st.Mean.Seconds()),
			"stddev", fmt.Sprintf("%.6fs", st.StdDev.Seconds()),
			"p50", st.P50, "p99", st.P99,
		)
	}
}
