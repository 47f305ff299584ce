package main

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	serial "github.com/luhtfiimanal/go-linux-ttyforward"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func execute(args ...string) (*syncBuffer, error) {
	out := &syncBuffer{}
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(out)
	// A nil slice would make cobra fall back to os.Args.
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	return out, cmd.Execute()
}

func TestArgumentCount(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ttyNone")
	for _, args := range [][]string{
		{},
		{missing},
		{missing, missing, missing},
	} {
		out, err := execute(args...)
		require.Error(t, err, "args %v", args)
		require.Contains(t, out.String(), "Usage:")
		require.Contains(t, out.String(), "<device name>[,baud rate]")
		require.NotContains(t, out.String(), "cannot open")
	}
}

func TestBadSpecPrintsUsage(t *testing.T) {
	out, err := execute("/dev/ttyS0,fast", "/dev/ttyS1")
	require.ErrorIs(t, err, serial.ErrInvalidBaud)
	require.Contains(t, out.String(), "Usage:")
	require.NotContains(t, out.String(), "cannot open")
}

func TestOpenFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ttyNone")
	out, err := execute(missing, missing+",9600")
	require.ErrorIs(t, err, unix.ENOENT)
	require.Contains(t, out.String(), "cannot open device")
	require.Contains(t, out.String(), missing)
	require.NotContains(t, out.String(), "Usage:")
}

func TestOpenFailureClosesFirstDevice(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })
	before, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	require.NoError(t, err)

	missing := filepath.Join(t.TempDir(), "ttyNone")
	_, err = execute(slave.Name(), missing)
	require.ErrorIs(t, err, unix.ENOENT)

	after, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestForwardUntilHangup(t *testing.T) {
	masterA, slaveA, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { masterA.Close(); slaveA.Close() })
	masterB, slaveB, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { masterB.Close(); slaveB.Close() })

	beforeB, err := unix.IoctlGetTermios(int(slaveB.Fd()), unix.TCGETS)
	require.NoError(t, err)

	out := &syncBuffer{}
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{slaveA.Name(), slaveB.Name() + ",9600", "--stopbits", "2"})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	// Configure flushes the queues, so only write once forwarding has begun.
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "forwarding")
	}, time.Second, 10*time.Millisecond)

	_, err = masterA.Write([]byte("AT+CSQ\r"))
	require.NoError(t, err)

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 7)
		if _, err := io.ReadFull(masterB, buf); err == nil {
			got <- buf
		}
	}()
	select {
	case b := <-got:
		require.Equal(t, "AT+CSQ\r", string(b))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for relayed bytes")
	}

	require.NoError(t, masterA.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for command to exit")
	}

	logs := out.String()
	require.Contains(t, logs, "relay ended")
	require.Contains(t, logs, "a_to_b=7")

	afterB, err := unix.IoctlGetTermios(int(slaveB.Fd()), unix.TCGETS)
	require.NoError(t, err)
	require.Equal(t, beforeB, afterB)
}

func TestLineConfigFromFlags(t *testing.T) {
	opts := &options{parity: "m", dataBits: 7, stopBits: 2, rtscts: true}
	cfg := opts.lineConfig(57600)
	require.Equal(t, serial.LineConfig{
		BaudRate:     57600,
		Parity:       'm',
		DataBits:     7,
		StopBits:     2,
		HardwareFlow: true,
	}, cfg)

	opts.parity = ""
	require.Equal(t, serial.ParityNone, opts.lineConfig(9600).Parity)
}

func TestReportRun(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		fails   bool
		message string
	}{
		{"signal", serial.ErrStopped, false, "stopped by signal"},
		{"eof", &serial.RelayError{Op: "read", Device: "/dev/ttyS0", Err: io.EOF}, false, "reason=EOF"},
		{"write", &serial.RelayError{Op: "write", Device: "/dev/ttyGS0", Err: unix.EPIPE}, false, "relay ended"},
		{"poll", fmt.Errorf("poll: %w", unix.EINVAL), true, "forwarding failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &syncBuffer{}
			logger, err := newLogger(out, "info")
			require.NoError(t, err)

			err = reportRun(logger, tt.err, serial.Stats{AToB: 3})
			if tt.fails {
				require.ErrorIs(t, err, unix.EINVAL)
				require.NotContains(t, out.String(), "relay statistics")
			} else {
				require.NoError(t, err)
				require.Contains(t, out.String(), "a_to_b=3")
			}
			require.Contains(t, out.String(), tt.message)
		})
	}
}
