package monitor

import (
	"bufio"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"

	"github.com/luhtfiimanal/go-cdc-logger/handoff"
	"github.com/luhtfiimanal/go-cdc-logger/serial"
)

// fakePort replays scripted lines, then times out until closed.
type fakePort struct {
	mu      sync.Mutex
	lines   []string
	written []string
	flushed int
	closes  int
	readErr error
	timeout time.Duration
}

func (p *fakePort) WriteLine(line, newline string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, line+newline)
	return nil
}

func (p *fakePort) ReadLine() (string, error) {
	p.mu.Lock()
	if len(p.lines) > 0 {
		line := p.lines[0]
		p.lines = p.lines[1:]
		p.mu.Unlock()
		return line, nil
	}
	err := p.readErr
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	time.Sleep(p.timeout)
	return "", serial.ErrTimeout
}

func (p *fakePort) FlushInput() error {
	p.mu.Lock()
	p.flushed++
	p.mu.Unlock()
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	return nil
}

func (p *fakePort) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

func newTestMonitor(port Port, openErr error) (*Monitor, *handoff.Queue[Sample]) {
	q := handoff.NewQueue[Sample]()
	m := New(Config{
		Serial:      serial.Config{Device: "fake", ReadTimeout: 10 * time.Millisecond},
		ResetDelay:  time.Millisecond,
		StreamDelay: time.Millisecond,
		Open: func(serial.Config) (Port, error) {
			if openErr != nil {
				return nil, openErr
			}
			return port, nil
		},
	}, q, handoff.NewErrorChannel())
	return m, q
}

func waitSamples(t *testing.T, q *handoff.Queue[Sample], n int) []Sample {
	t.Helper()
	var got []Sample
	require.Eventually(t, func() bool {
		got = append(got, q.DrainAll()...)
		return len(got) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestMonitor_OrderAndTimestamps(t *testing.T) {
	port := &fakePort{
		lines:   []string{"5", "", "7\r", "  ", "7", "-3", "100"},
		timeout: 5 * time.Millisecond,
	}
	m, q := newTestMonitor(port, nil)
	require.NoError(t, m.Start())

	got := waitSamples(t, q, 5)
	require.True(t, m.Join(time.Second))
	require.NoError(t, m.Err())

	values := make([]int64, len(got))
	for i, s := range got {
		values[i] = s.Value
		if i > 0 {
			require.GreaterOrEqual(t, s.ProducedAt, got[i-1].ProducedAt)
		}
	}
	require.Equal(t, []int64{5, 7, 7, -3, 100}, values)
	require.Equal(t, []string{"r\r\n", "m\r\n"}, port.written)
	require.Equal(t, 1, port.flushed)
	require.Equal(t, 1, port.closeCount())
}

func TestMonitor_OpenFailure(t *testing.T) {
	port := &fakePort{}
	m, q := newTestMonitor(port, errors.New("no such device"))
	require.NoError(t, m.Start())
	require.True(t, m.Join(time.Second))

	msg, ok := m.DrainErrors()
	require.True(t, ok)
	require.Contains(t, msg, "no such device")
	_, ok = m.DrainErrors()
	require.False(t, ok)

	require.Zero(t, q.Len())
	require.Zero(t, port.closeCount())
}

func TestMonitor_ParseFailureIsFatal(t *testing.T) {
	port := &fakePort{lines: []string{"1", "garbage", "2"}, timeout: time.Millisecond}
	m, q := newTestMonitor(port, nil)
	require.NoError(t, m.Start())

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("producer kept running after a bad line")
	}
	require.ErrorContains(t, m.Err(), "garbage")
	require.Len(t, q.DrainAll(), 1)
	require.Equal(t, 1, port.closeCount())
}

func TestMonitor_ReadFailureIsFatal(t *testing.T) {
	port := &fakePort{readErr: errors.New("input/output error")}
	m, q := newTestMonitor(port, nil)
	require.NoError(t, m.Start())

	// Join would request a stop before the startup protocol completes.
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("producer kept running after a read error")
	}
	require.ErrorContains(t, m.Err(), "read: input/output error")
	require.Equal(t, []string{"r\r\n", "m\r\n"}, port.written)
	require.Zero(t, q.Len())
	require.Equal(t, 1, port.closeCount())
}

func TestMonitor_JoinBound(t *testing.T) {
	port := &fakePort{timeout: 50 * time.Millisecond}
	m, _ := newTestMonitor(port, nil)
	require.NoError(t, m.Start())
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	require.True(t, m.Join(time.Second))
	require.Less(t, time.Since(start), time.Second+50*time.Millisecond)
	require.NoError(t, m.Err())
	require.Equal(t, 1, port.closeCount())

	require.Error(t, m.Start())
}

func TestMonitor_StopDuringStartup(t *testing.T) {
	port := &fakePort{}
	q := handoff.NewQueue[Sample]()
	m := New(Config{
		Serial:     serial.Config{Device: "fake"},
		ResetDelay: time.Hour,
		Open:       func(serial.Config) (Port, error) { return port, nil },
	}, q, handoff.NewErrorChannel())
	require.NoError(t, m.Start())
	require.True(t, m.Join(time.Second))
	require.NoError(t, m.Err())
	require.Equal(t, 1, port.closeCount())
}

func TestMonitor_JoinWithoutStart(t *testing.T) {
	m, _ := newTestMonitor(&fakePort{}, nil)
	require.True(t, m.Join(time.Millisecond))
}

func TestMonitor_PTY(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	q := handoff.NewQueue[Sample]()
	m := New(Config{
		Serial:      serial.Config{Device: slave.Name(), ReadTimeout: 20 * time.Millisecond},
		ResetDelay:  10 * time.Millisecond,
		StreamDelay: 10 * time.Millisecond,
	}, q, handoff.NewErrorChannel())
	require.NoError(t, m.Start())

	r := bufio.NewReader(master)
	cmd, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "r\r\n", cmd)
	cmd, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "m\r\n", cmd)

	// Wait for the input flush that follows the stream command.
	time.Sleep(100 * time.Millisecond)
	_, err = master.Write([]byte("4100123\r\n\r\n4100456\r\n4100001\r\n"))
	require.NoError(t, err)

	got := waitSamples(t, q, 3)
	require.Equal(t, int64(4100123), got[0].Value)
	require.Equal(t, int64(4100456), got[1].Value)
	require.Equal(t, int64(4100001), got[2].Value)

	require.True(t, m.Join(time.Second))
	require.NoError(t, m.Err())
	_, ok := m.DrainErrors()
	require.False(t, ok)
}

func TestMonitor_PTYOpenFailure(t *testing.T) {
	q := handoff.NewQueue[Sample]()
	m := New(Config{Serial: serial.Config{Device: os.DevNull + "/missing"}}, q, handoff.NewErrorChannel())
	require.NoError(t, m.Start())
	require.True(t, m.Join(time.Second))
	msg, ok := m.DrainErrors()
	require.True(t, ok)
	require.Contains(t, msg, "/dev/null/missing")
}
