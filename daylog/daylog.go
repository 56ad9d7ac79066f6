// Package daylog appends raw readings to one file per calendar day.
package daylog

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

const (
	// DateLayout names the daily files.
	DateLayout = "2006-01-02"
	// DefaultExt is appended to the date to form the file name.
	DefaultExt = ".csv"

	lockName = ".cdclogger.lock"
)

// ErrDisabled is returned by Write while logging is disabled.
var ErrDisabled = errors.New("logging disabled")

// Options configure a Logger.
type Options struct {
	Dir    string
	Ext    string
	Now    func() time.Time
	Logger *slog.Logger
}

// Logger writes one reading per line to <Dir>/<YYYY-MM-DD><Ext>, switching
// to a new file when the wall-clock date changes. It is not safe for
// concurrent use.
type Logger struct {
	dir  string
	ext  string
	now  func() time.Time
	log  *slog.Logger
	lock *flock.Flock

	enabled bool
	file    *os.File
	w       *bufio.Writer
	dateKey string
	rows    int
}

// New returns a disabled Logger.
func New(opts Options) *Logger {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Ext == "" {
		opts.Ext = DefaultExt
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Logger{
		dir:  opts.Dir,
		ext:  opts.Ext,
		now:  opts.Now,
		log:  opts.Logger.With("component", "daylog"),
		lock: flock.New(filepath.Join(opts.Dir, lockName)),
	}
}

// PathFor returns the file name used for the calendar date of t.
func (l *Logger) PathFor(t time.Time) string {
	return filepath.Join(l.dir, t.Format(DateLayout)+l.ext)
}

// Enable takes an exclusive lock on the log directory and starts accepting
// writes. The first Write opens the file for the current date.
func (l *Logger) Enable() error {
	if l.enabled {
		return nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock log dir: %w", err)
	}
	if !ok {
		return fmt.Errorf("log dir %s is in use by another logger", l.dir)
	}
	l.enabled = true
	l.log.Info("logging enabled", "dir", l.dir)
	return nil
}

// Disable closes the open file and releases the directory lock.
func (l *Logger) Disable() error {
	if !l.enabled {
		return nil
	}
	l.enabled = false
	err := l.closeFile()
	if uerr := l.lock.Unlock(); uerr != nil && err == nil {
		err = fmt.Errorf("unlock log dir: %w", uerr)
	}
	l.log.Info("logging disabled")
	return err
}

// Enabled reports whether Write accepts readings.
func (l *Logger) Enabled() bool {
	return l.enabled
}

// Write appends value to the file of the current date, rotating first if
// the date changed since the previous write.
func (l *Logger) Write(value int64) error {
	if !l.enabled {
		return ErrDisabled
	}
	now := l.now()
	if key := now.Format(DateLayout); l.file == nil || key != l.dateKey {
		if err := l.rotate(now, key); err != nil {
			return err
		}
	}

	var buf [24]byte
	b := strconv.AppendInt(buf[:0], value, 10)
	b = append(b, '\n')
	if _, err := l.w.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", l.file.Name(), err)
	}
	l.rows++
	return nil
}

// Flush pushes buffered rows to the open file.
func (l *Logger) Flush() error {
	if l.w == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", l.file.Name(), err)
	}
	return nil
}

// Current returns the open file name and the number of rows written to it
// by this Logger. The name is empty when no file is open.
func (l *Logger) Current() (string, int) {
	if l.file == nil {
		return "", 0
	}
	return l.file.Name(), l.rows
}

func (l *Logger) rotate(now time.Time, key string) error {
	prev := l.dateKey
	if err := l.closeFile(); err != nil {
		return err
	}

	path := l.PathFor(now)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.file = f
	l.w = bufio.NewWriter(f)
	l.dateKey = key
	l.rows = 0
	if prev != "" {
		l.log.Info("log file rotated", "from", prev, "to", key)
	} else {
		l.log.Debug("log file opened", "path", path)
	}
	return nil
}

func (l *Logger) closeFile() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	ferr := l.w.Flush()
	cerr := f.Close()
	l.file, l.w = nil, nil
	l.dateKey = ""
	if ferr != nil {
		return fmt.Errorf("flush %s: %w", f.Name(), ferr)
	}
	if cerr != nil {
		return fmt.Errorf("close %s: %w", f.Name(), cerr)
	}
	return nil
}
