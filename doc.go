// Package serial bridges two Linux serial (TTY) devices, relaying bytes in
// both directions so that the host acts as a transparent pass-through, e.g.
// between a modem TTY and a USB gadget-serial endpoint.
//
// Features:
//   - Raw termios configuration through golang.org/x/sys/unix: speed, parity
//     (including mark/space), data bits, stop bits, RTS/CTS
//   - The device's original settings are saved on Open and restored exactly
//     once on Close
//   - A single-goroutine forwarder multiplexing both descriptors with poll(2),
//     so neither direction waits on the other
//   - Self-pipe mechanism so the forwarder can be stopped from a signal handler
//   - PTY-based tests
//
// The relay is byte-blind: no framing, filtering or flow control beyond
// optional RTS/CTS. This package does **not** support Windows.
//
// Example usage:
//
//	a, err := serial.Open("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	b, err := serial.Open("/dev/ttyGS0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	for _, d := range []*serial.Device{a, b} {
//	    if err := d.Configure(serial.DefaultLineConfig(115200)); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
//	fw, err := serial.NewForwarder(a, b)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Close()
//
//	// Blocks until either side hits EOF or a read error, or fw.Stop is called.
//	err = fw.Run()
package serial
