package period

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Sink receives the exported periods of a stopped session, in order.
type Sink interface {
	Export(periods []time.Duration) error
}

// TextSink writes one period per line, in seconds.
type TextSink struct {
	W io.Writer
}

// Export implements Sink.
func (s TextSink) Export(periods []time.Duration) error {
	w := bufio.NewWriter(s.W)
	for _, p := range periods {
		w.WriteString(strconv.FormatFloat(p.Seconds(), 'f', -1, 64))
		w.WriteByte('\n')
	}
	return w.Flush()
}

// FileSink replaces the file at Path with the exported periods.
type FileSink struct {
	Path string
}

// Export implements Sink.
func (s FileSink) Export(periods []time.Duration) error {
	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := (TextSink{W: f}).Export(periods); err != nil {
		f.Close()
		return fmt.Errorf("write export file: %w", err)
	}
	return f.Close()
}
