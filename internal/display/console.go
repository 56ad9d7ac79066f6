// Package display refreshes a one-line console readout of the latest
// reading and the period measurement. It reads samples only through the
// live buffer, so it skips whatever arrived between two refreshes.
package display

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/luhtfiimanal/go-cdc-logger/handoff"
	"github.com/luhtfiimanal/go-cdc-logger/monitor"
	"github.com/luhtfiimanal/go-cdc-logger/period"
)

// HistoryLen is the number of displayed readings kept for the min/max summary.
const HistoryLen = 765

type palette struct {
	time    *color.Color
	value   *color.Color
	bounds  *color.Color
	period  *color.Color
	waiting *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		time:    color.New(color.FgHiBlack),
		value:   color.New(color.FgGreen, color.Bold),
		bounds:  color.New(color.FgCyan),
		period:  color.New(color.FgYellow, color.Bold),
		waiting: color.New(color.FgYellow),
	}
	if noColor {
		for _, c := range []*color.Color{p.time, p.value, p.bounds, p.period, p.waiting} {
			c.DisableColor()
		}
	}
	return p
}

// Console writes one line per fresh reading.
type Console struct {
	w        io.Writer
	live     *handoff.LiveBuffer[monitor.Sample]
	est      *period.Estimator
	interval time.Duration
	colors   palette
	history  []int64
}

// New returns a Console. est may be nil.
func New(w io.Writer, live *handoff.LiveBuffer[monitor.Sample], est *period.Estimator, interval time.Duration, noColor bool) *Console {
	return &Console{
		w:        w,
		live:     live,
		est:      est,
		interval: interval,
		colors:   newPalette(noColor),
	}
}

// Run refreshes until ctx is done.
func (c *Console) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh()
		}
	}
}

// Refresh prints the latest reading if one arrived since the last call and
// reports whether it printed.
func (c *Console) Refresh() bool {
	snap, ok := c.live.ReadIfFresh()
	if !ok {
		return false
	}
	c.history = append(c.history, snap.Value.Value)
	if len(c.history) > HistoryLen {
		c.history = c.history[len(c.history)-HistoryLen:]
	}
	fmt.Fprintln(c.w, c.line(snap))
	return true
}

func (c *Console) line(snap handoff.Snapshot[monitor.Sample]) string {
	lo, hi := c.history[0], c.history[0]
	for _, v := range c.history {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	s := fmt.Sprintf("%s  %s  %s",
		c.colors.time.Sprint(snap.At.Format("15:04:05")),
		c.colors.value.Sprintf("%9d", snap.Value.Value),
		c.colors.bounds.Sprintf("[%d..%d]", lo, hi),
	)
	if c.est == nil || c.est.State() == period.Idle {
		return s
	}

	ps := c.est.Snapshot()
	if !ps.Ready {
		return s + "  " + c.colors.waiting.Sprintf("period waiting (%d)", ps.Records)
	}
	return s + "  " + c.colors.period.Sprintf("period %.4fs ±%.4fs n=%d",
		ps.Stats.Mean.Seconds(), ps.Stats.StdDev.Seconds(), ps.Stats.Count)
}
