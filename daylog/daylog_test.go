package daylog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestLogger(t *testing.T, clock *fakeClock) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	l := New(Options{Dir: dir, Now: clock.Now})
	require.NoError(t, l.Enable())
	t.Cleanup(func() { l.Disable() })
	return l, dir
}

func TestLogger_RotatesOnDateChange(t *testing.T) {
	day := time.Date(2024, 2, 28, 23, 59, 0, 0, time.Local)
	clock := &fakeClock{t: day}
	l, dir := newTestLogger(t, clock)

	for v := int64(1); v <= 5; v++ {
		require.NoError(t, l.Write(v))
	}
	path, rows := l.Current()
	require.Equal(t, filepath.Join(dir, "2024-02-28.csv"), path)
	require.Equal(t, 5, rows)

	clock.t = day.Add(2 * time.Minute)
	require.NoError(t, l.Write(6))

	// The previous day is complete on disk as soon as the new day starts.
	got, err := ReadFile(filepath.Join(dir, "2024-02-28.csv"))
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)

	require.NoError(t, l.Write(7))
	require.NoError(t, l.Write(8))
	path, rows = l.Current()
	require.Equal(t, filepath.Join(dir, "2024-02-29.csv"), path)
	require.Equal(t, 3, rows)

	require.NoError(t, l.Disable())
	got, err = ReadFile(filepath.Join(dir, "2024-02-29.csv"))
	require.NoError(t, err)
	require.Equal(t, []int64{6, 7, 8}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var csvs []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == DefaultExt {
			csvs = append(csvs, e.Name())
		}
	}
	require.Equal(t, []string{"2024-02-28.csv", "2024-02-29.csv"}, csvs)
}

func TestLogger_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)}
	l, _ := newTestLogger(t, clock)

	want := []int64{4194304, 4194310, -12, 0, 4194310, 8388607}
	for _, v := range want {
		require.NoError(t, l.Write(v))
	}
	require.NoError(t, l.Flush())

	path, _ := l.Current()
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLogger_AppendsToExistingDay(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)}
	dir := t.TempDir()

	l := New(Options{Dir: dir, Now: clock.Now})
	require.NoError(t, l.Enable())
	require.NoError(t, l.Write(1))
	require.NoError(t, l.Disable())

	require.NoError(t, l.Enable())
	require.NoError(t, l.Write(2))
	require.NoError(t, l.Disable())

	got, err := ReadFile(l.PathFor(clock.t))
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, got)
}

func TestLogger_Disabled(t *testing.T) {
	l := New(Options{Dir: t.TempDir()})
	require.False(t, l.Enabled())
	require.ErrorIs(t, l.Write(1), ErrDisabled)
	require.NoError(t, l.Disable())
	require.NoError(t, l.Flush())

	name, rows := l.Current()
	require.Empty(t, name)
	require.Zero(t, rows)
}

func TestLogger_DirectoryLock(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{Dir: dir})
	b := New(Options{Dir: dir})

	require.NoError(t, a.Enable())
	require.ErrorContains(t, b.Enable(), "in use")
	require.NoError(t, a.Disable())
	require.NoError(t, b.Enable())
	require.NoError(t, b.Disable())
}

func TestLogger_OpenFailure(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)}
	l := New(Options{Dir: dir, Now: clock.Now})
	require.NoError(t, l.Enable())
	t.Cleanup(func() { l.Disable() })

	// A directory squatting on the file name makes the open fail.
	require.NoError(t, os.Mkdir(l.PathFor(clock.t), 0o755))
	require.ErrorContains(t, l.Write(1), "open log file")
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(path, []byte("1\n\n2,0.5,1700000000\n 3 \n"), 0o644))
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, got)

	require.NoError(t, os.WriteFile(path, []byte("1\nabc\n"), 0o644))
	_, err = ReadFile(path)
	require.ErrorContains(t, err, ":2:")

	_, err = ReadFile(filepath.Join(t.TempDir(), "none.csv"))
	require.Error(t, err)
}
