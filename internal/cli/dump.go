package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/luhtfiimanal/go-cdc-logger/daylog"
	"github.com/luhtfiimanal/go-cdc-logger/period"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the readings of a daily log file",
	Long: `Print the readings of a daily log file, one per line.

With --stats the readings are run through the period estimator, taking
--sample-interval as the time between two readings, and the period
statistics are printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	f := dumpCmd.Flags()
	f.Bool("trim", false, "drop the first and the last reading, which may be partial")
	f.Bool("stats", false, "print period statistics instead of readings")
	f.Duration("sample-interval", 100*time.Millisecond, "time between readings for --stats")
}

func runDump(cmd *cobra.Command, args []string) error {
	values, err := daylog.ReadFile(args[0])
	if err != nil {
		return err
	}
	trim, _ := cmd.Flags().GetBool("trim")
	if trim {
		if len(values) < 2 {
			values = nil
		} else {
			values = values[1 : len(values)-1]
		}
	}

	out := cmd.OutOrStdout()
	stats, _ := cmd.Flags().GetBool("stats")
	if !stats {
		for _, v := range values {
			fmt.Fprintln(out, v)
		}
		return nil
	}

	interval, _ := cmd.Flags().GetDuration("sample-interval")
	if interval <= 0 {
		return errors.New("sample-interval must be positive")
	}
	st, periods, err := offlineStats(values, interval)
	fmt.Fprintf(out, "readings: %d\nperiods:  %d\n", len(values), periods)
	if errors.Is(err, period.ErrInsufficientData) {
		fmt.Fprintln(out, "statistics: insufficient data")
		return nil
	}
	fmt.Fprintf(out, "count:  %d\nmean:   %.6fs\nstddev: %.6fs\nmin:    %.6fs\nmax:    %.6fs\np50:    %.6fs\np95:    %.6fs\n",
		st.Count, st.Mean.Seconds(), st.StdDev.Seconds(), st.Min.Seconds(), st.Max.Seconds(),
		st.P50.Seconds(), st.P95.Seconds())
	return nil
}

// offlineStats replays stored readings through an estimator at a fixed sample rate.
func offlineStats(values []int64, interval time.Duration) (period.Stats, int, error) {
	est := period.New(func() time.Duration { return 0 }, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	est.Reset()
	for i, v := range values {
		est.Feed(v, time.Duration(i)*interval)
	}
	st, err := est.Statistics()
	return st, len(est.Periods()), err
}
