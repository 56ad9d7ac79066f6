package period

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Stats describes the post-warm-up periods of a session.
type Stats struct {
	Count  int
	Mean   time.Duration
	// StdDev is the sample deviation (divisor n-1). It is undefined for a
	// single period and reported as zero when Count is 1.
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
}

// Histogram range in microseconds: 1µs to 1 hour, 3 significant figures.
const (
	histMin     = 1
	histMax     = 3_600_000_000
	histSigFigs = 3
)

type accumulator struct {
	hist *hdrhistogram.Histogram
}

func newAccumulator() *accumulator {
	return &accumulator{hist: hdrhistogram.New(histMin, histMax, histSigFigs)}
}

func (a *accumulator) reset() {
	a.hist.Reset()
}

func (a *accumulator) add(p time.Duration) {
	us := p.Microseconds()
	if us < histMin {
		us = histMin
	}
	if us > histMax {
		us = histMax
	}
	_ = a.hist.RecordValue(us)
}

// summary computes mean and deviation exactly from periods and takes the
// percentiles from the histogram.
func (a *accumulator) summary(periods []time.Duration) Stats {
	n := len(periods)
	st := Stats{Count: n}
	if n == 0 {
		return st
	}

	var sum float64
	st.Min, st.Max = periods[0], periods[0]
	for _, p := range periods {
		sum += p.Seconds()
		st.Min = min(st.Min, p)
		st.Max = max(st.Max, p)
	}
	mean := sum / float64(n)

	var dev float64
	if n > 1 {
		for _, p := range periods {
			d := p.Seconds() - mean
			dev += d * d
		}
		dev = math.Sqrt(dev / float64(n-1))
	}

	st.Mean = seconds(mean)
	st.StdDev = seconds(dev)
	st.P50 = time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond
	st.P95 = time.Duration(a.hist.ValueAtQuantile(95)) * time.Microsecond
	st.P99 = time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond
	return st
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
