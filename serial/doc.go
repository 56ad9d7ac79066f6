// Package serial provides a minimal, Linux-only serial port reader for
// line-oriented instruments such as the AD7745 capacitive-to-digital
// converter boards that stream one CDC count per line at 57600 baud.
//
// Reads are bounded by Config.ReadTimeout so a caller polling a stop flag
// between reads has a known worst-case shutdown latency. Close may be called
// from another goroutine at any time; it wakes a pending ReadLine through a
// self-pipe.
//
// Features:
//   - Raw termios configuration (baud, stop bits, parity), no buffering delays
//   - Line-based reading with a configurable delimiter (default: \n)
//   - Input buffer flush, as required after device reset
//   - PTY-based tests
//
// This package does **not** support Windows.
//
// Example usage:
//
//	reader, err := serial.Open(serial.Config{
//	    Device:      "/dev/ttyUSB0",
//	    BaudRate:    57600,
//	    ReadTimeout: time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reader.Close()
//
//	if err := reader.WriteLine("m", "\r\n"); err != nil {
//	    log.Println("write failed:", err)
//	}
//	for {
//	    line, err := reader.ReadLine()
//	    if errors.Is(err, serial.ErrTimeout) {
//	        continue
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println("received:", line)
//	}
package serial
