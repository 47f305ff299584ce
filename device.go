package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// Device is an open serial endpoint. The termios settings found at Open are
// restored by Close. A Device is meant to be used from a single goroutine.
type Device struct {
	fd   int
	name string

	tty  unix.Termios // working settings, built up from zero by Configure
	orig unix.Termios

	closeOnce sync.Once
	closeErr  error
}

// Open opens path read-write without making it the controlling terminal and
// saves its current termios settings. The working settings start zeroed and
// nothing is changed on the device until Configure is called.
func Open(path string) (*Device, error) {
	// O_NONBLOCK keeps the open from waiting on carrier detect.
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("get termios %s: %w", path, err)
	}

	// Back to blocking reads now that the device is open.
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set blocking %s: %w", path, err)
	}

	return &Device{
		fd:   fd,
		name: path,
		orig: *orig,
	}, nil
}

// Configure applies cfg in raw mode. Both queues are flushed and the new
// settings take effect immediately. On failure the working settings are left
// as they were.
func (d *Device) Configure(cfg LineConfig) error {
	tty := d.tty
	cfg.apply(&tty)

	if err := unix.IoctlSetInt(d.fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		return fmt.Errorf("flush %s: %w", d.name, err)
	}
	if err := unix.IoctlSetTermios(d.fd, unix.TCSETS, &tty); err != nil {
		return fmt.Errorf("set termios %s: %w", d.name, err)
	}
	d.tty = tty
	return nil
}

// Termios reads the settings currently in effect on the device.
func (d *Device) Termios() (*unix.Termios, error) {
	t, err := unix.IoctlGetTermios(d.fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("get termios %s: %w", d.name, err)
	}
	return t, nil
}

// Read reads up to len(p) bytes. A zero-length read is reported as io.EOF.
func (d *Device) Read(p []byte) (int, error) {
	n, err := unix.Read(d.fd, p)
	if err != nil {
		return 0, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (d *Device) Write(p []byte) (int, error) {
	n, err := unix.Write(d.fd, p)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Fd returns the file descriptor, or -1 after Close.
func (d *Device) Fd() int { return d.fd }

// Name returns the path the device was opened with.
func (d *Device) Name() string { return d.name }

// Close restores the settings saved by Open and releases the descriptor.
// A nil Device is a no-op; later calls return the result of the first one.
func (d *Device) Close() error {
	if d == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		var errs []error
		if err := unix.IoctlSetTermios(d.fd, unix.TCSETS, &d.orig); err != nil {
			errs = append(errs, fmt.Errorf("restore termios %s: %w", d.name, err))
		}
		if err := unix.Close(d.fd); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", d.name, err))
		}
		d.fd = -1
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}
