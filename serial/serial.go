package serial

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrTimeout is returned by ReadLine when no complete line arrived within Config.ReadTimeout.
	ErrTimeout = errors.New("serial: read timeout")
	// ErrClosed is returned by ReadLine once Close has been called.
	ErrClosed = errors.New("serial: reader closed")
)

// Parity names accepted by Config.Parity.
const (
	ParityNone = "none"
	ParityOdd  = "odd"
	ParityEven = "even"
)

// SerialReader provides low-latency, killable, line-oriented access to a Linux serial port.
// ReadLine must be called from a single goroutine; WriteLine and Close may be
// called concurrently with it.
type SerialReader struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	config    Config
	delim     []byte
	pending   []byte
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
}

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device      string
	BaudRate    int
	StopBits    int           // 1 or 2, default 1
	Parity      string        // none, odd, even; default none
	Delimiter   string        // default "\n"
	ReadTimeout time.Duration // zero blocks until a line or Close
}

// Open opens a serial port using the provided Config and returns a SerialReader.
// The port is configured for raw, low-latency, non-buffered operation.
func Open(cfg Config) (*SerialReader, error) {
	baud, err := baudToUnix(cfg.BaudRate)
	if err != nil {
		return nil, err
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = "\n"
	}

	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	if err := configure(fd, baud, cfg); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	// Turn back into blocking mode now that config is done
	syscall.SetNonblock(fd, false)

	// Create self-pipe for killability
	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &SerialReader{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), cfg.Device),
		done:   make(chan struct{}),
		config: cfg,
		delim:  []byte(cfg.Delimiter),
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
	}, nil
}

func configure(fd int, baud uint32, cfg Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	switch cfg.StopBits {
	case 0, 1:
	case 2:
		termios.Cflag |= unix.CSTOPB
	default:
		return fmt.Errorf("unsupported stop bits: %d", cfg.StopBits)
	}

	switch strings.ToLower(cfg.Parity) {
	case "", ParityNone:
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	default:
		return fmt.Errorf("unsupported parity: %q", cfg.Parity)
	}

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	// VMIN=1, VTIME=0: timeouts are handled by poll
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// WriteLine writes a line (with specified newline) to the serial port.
func (s *SerialReader) WriteLine(line string, newline string) error {
	_, err := s.file.WriteString(line + newline)
	return err
}

// FlushInput discards data received by the driver but not yet read,
// including any partial line held by the reader.
func (s *SerialReader) FlushInput() error {
	s.pending = s.pending[:0]
	if err := unix.IoctlSetInt(s.fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	return nil
}

// ReadLine reads a single line from the serial port without the delimiter.
// It returns ErrTimeout if no complete line arrives within Config.ReadTimeout;
// bytes of an incomplete line are kept for the next call.
func (s *SerialReader) ReadLine() (string, error) {
	var deadline time.Time
	if s.config.ReadTimeout > 0 {
		deadline = time.Now().Add(s.config.ReadTimeout)
	}

	buf := make([]byte, 4096)
	for {
		if idx := bytes.Index(s.pending, s.delim); idx >= 0 {
			line := string(s.pending[:idx])
			s.pending = s.pending[idx+len(s.delim):]
			return line, nil
		}

		timeout := -1
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return "", ErrTimeout
			}
			timeout = int((remaining + time.Millisecond - 1) / time.Millisecond)
		}

		// Use poll to wait for data or kill signal
		pfd := []unix.PollFd{
			{Fd: int32(s.fd), Events: unix.POLLIN},
			{Fd: int32(s.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return "", err
		}
		// Check killability
		select {
		case <-s.done:
			return "", ErrClosed
		default:
		}
		if n == 0 {
			return "", ErrTimeout
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return "", ErrClosed
		}
		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := s.file.Read(buf)
			if err != nil {
				return "", err
			}
			s.pending = append(s.pending, buf[:n]...)
		}
	}
}

// Close closes the serial port and unblocks any pending ReadLine call.
// Safe to call multiple times; subsequent calls are no-ops.
func (s *SerialReader) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		// Wake up poll using self-pipe
		if s.pipeW > 0 {
			unix.Write(s.pipeW, []byte{1})
		}
		if s.file != nil {
			err = s.file.Close()
		}
		if s.pipeR > 0 {
			unix.Close(s.pipeR)
		}
		if s.pipeW > 0 {
			unix.Close(s.pipeW)
		}
	})
	return err
}

// SupportedBaud reports whether Open accepts the given baud rate.
func SupportedBaud(baud int) bool {
	_, err := baudToUnix(baud)
	return err == nil
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("unsupported baud rate: %d", baud)
	}
}
