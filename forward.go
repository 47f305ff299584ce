package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// ChunkSize is the most a single read moves from one side to the other.
const ChunkSize = 1024

// Endpoint is one side of a relay. Fd must be pollable for reading and
// Read must return io.EOF rather than (0, nil) at end of stream.
type Endpoint interface {
	io.ReadWriter
	Fd() int
	Name() string
}

// Stats counts what a Forwarder has relayed so far.
type Stats struct {
	AToB   uint64 // bytes
	BToA   uint64 // bytes
	Chunks uint64
}

// Forwarder relays bytes between two endpoints from a single goroutine.
// It waits on both descriptors with poll(2) and copies each readable chunk,
// unmodified, to the other side.
type Forwarder struct {
	a, b Endpoint
	log  zerolog.Logger

	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
	stopOnce  sync.Once
	closeOnce sync.Once

	aToB   atomic.Uint64
	bToA   atomic.Uint64
	chunks atomic.Uint64
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger used for per-chunk trace and stop events.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Forwarder) { f.log = l }
}

// NewForwarder creates a Forwarder between a and b. Close must be called to
// release its stop pipe.
func NewForwarder(a, b Endpoint, opts ...Option) (*Forwarder, error) {
	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	f := &Forwarder{
		a:     a,
		b:     b,
		log:   zerolog.Nop(),
		pipeR: pipeFds[0],
		pipeW: pipeFds[1],
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Run relays until a read or write on either side fails, either side reaches
// end of stream, or Stop is called. It always returns a non-nil error:
// ErrStopped after Stop, a *RelayError when a device ended the relay, or a
// wrapped poll error.
//
// When both sides are readable in the same wakeup both are serviced before
// Run returns, and the first failure is reported.
func (f *Forwarder) Run() error {
	buf := make([]byte, ChunkSize)
	pfd := []unix.PollFd{
		{Fd: int32(f.a.Fd()), Events: unix.POLLIN},
		{Fd: int32(f.b.Fd()), Events: unix.POLLIN},
		{Fd: int32(f.pipeR), Events: unix.POLLIN},
	}

	for {
		_, err := unix.Poll(pfd, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}

		if pfd[2].Revents != 0 {
			f.log.Debug().Msg("forwarder stopped")
			return ErrStopped
		}
		for i, ep := range []Endpoint{f.a, f.b} {
			if pfd[i].Revents&unix.POLLNVAL != 0 {
				return fmt.Errorf("poll %s: %w", ep.Name(), unix.EBADF)
			}
		}

		var stop error
		if readable(pfd[0].Revents) {
			stop = f.relay(f.a, f.b, buf, &f.aToB)
		}
		if readable(pfd[1].Revents) {
			if err := f.relay(f.b, f.a, buf, &f.bToA); stop == nil {
				stop = err
			}
		}
		if stop != nil {
			f.log.Debug().Err(stop).Msg("relay ended")
			return stop
		}
	}
}

// Hangups and errors are reported as readable so the following read
// surfaces them.
func readable(revents int16) bool {
	return revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
}

func (f *Forwarder) relay(src, dst Endpoint, buf []byte, counter *atomic.Uint64) error {
	n, err := src.Read(buf)
	if n <= 0 && err == nil {
		err = io.EOF
	}
	if n > 0 {
		if werr := writeAll(dst, buf[:n]); werr != nil {
			return &RelayError{Op: "write", Device: dst.Name(), Err: werr}
		}
		counter.Add(uint64(n))
		f.chunks.Inc()
		f.log.Trace().
			Str("from", src.Name()).
			Str("to", dst.Name()).
			Int("bytes", n).
			Msg("chunk")
	}
	if err != nil {
		return &RelayError{Op: "read", Device: src.Name(), Err: err}
	}
	return nil
}

// writeAll writes p in full. A write that makes no progress is an error.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Stop makes Run return ErrStopped. It may be called from any goroutine,
// before or during Run, any number of times.
func (f *Forwarder) Stop() {
	f.stopOnce.Do(func() {
		unix.Write(f.pipeW, []byte{1})
	})
}

// Stats returns the counters; safe to call while Run is active.
func (f *Forwarder) Stats() Stats {
	return Stats{
		AToB:   f.aToB.Load(),
		BToA:   f.bToA.Load(),
		Chunks: f.chunks.Load(),
	}
}

// Close stops the forwarder and releases the stop pipe. It does not close
// the endpoints.
func (f *Forwarder) Close() error {
	f.Stop()
	var err error
	f.closeOnce.Do(func() {
		err = errors.Join(unix.Close(f.pipeR), unix.Close(f.pipeW))
	})
	return err
}
