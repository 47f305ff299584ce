// Command ttyforward relays bytes between two serial devices.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	serial "github.com/luhtfiimanal/go-linux-ttyforward"
)

type options struct {
	parity   string
	dataBits int
	stopBits int
	rtscts   bool
	logLevel string
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "ttyforward <device name>[,baud rate] <device name>[,baud rate]",
		Short: "Relay bytes between two serial devices",
		Long: `Relay bytes between two serial devices in both directions.

tty device syntax : <device name>[,baud rate]   (default baud rate 115200)`,
		Example: "  ttyforward /dev/ttyP1,115200 /dev/ttyGS0,115200",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stdout)

	f := cmd.Flags()
	f.StringVar(&opts.parity, "parity", "n", "parity: n, e, o, s (space) or m (mark)")
	f.IntVar(&opts.dataBits, "databits", 8, "data bits (5-8)")
	f.IntVar(&opts.stopBits, "stopbits", 1, "stop bits (1 or 2)")
	f.BoolVar(&opts.rtscts, "rtscts", false, "enable RTS/CTS hardware flow control")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	return cmd
}

func (o *options) lineConfig(baud int) serial.LineConfig {
	cfg := serial.LineConfig{
		BaudRate:     baud,
		Parity:       serial.ParityNone,
		DataBits:     o.dataBits,
		StopBits:     o.stopBits,
		HardwareFlow: o.rtscts,
	}
	if o.parity != "" {
		cfg.Parity = serial.Parity(o.parity[0])
	}
	return cfg
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func run(cmd *cobra.Command, args []string, opts *options) error {
	specs := make([]serial.Spec, len(args))
	for i, arg := range args {
		spec, err := serial.ParseSpec(arg)
		if err != nil {
			return err
		}
		specs[i] = spec
	}
	logger, err := newLogger(cmd.OutOrStdout(), opts.logLevel)
	if err != nil {
		return err
	}

	// Usage is for argument mistakes only; from here on failures are logged.
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	devs := make([]*serial.Device, 0, len(specs))
	defer func() {
		for i := len(devs) - 1; i >= 0; i-- {
			if err := devs[i].Close(); err != nil {
				logger.Warn().Err(err).Str("device", devs[i].Name()).Msg("close device")
			}
		}
	}()

	for _, spec := range specs {
		dev, err := serial.Open(spec.Path)
		if err != nil {
			logger.Error().Err(err).Str("device", spec.Path).Msg("cannot open device")
			return err
		}
		devs = append(devs, dev)
	}

	for i, dev := range devs {
		baud := specs[i].BaudRate
		if !serial.SupportedBaudRate(baud) {
			logger.Warn().Int("baud", baud).Str("device", dev.Name()).Msg("unsupported baud rate, speed left unchanged")
		}
		if err := dev.Configure(opts.lineConfig(baud)); err != nil {
			logger.Error().Err(err).Str("device", dev.Name()).Msg("cannot configure device")
			return err
		}
	}

	fw, err := serial.NewForwarder(devs[0], devs[1], serial.WithLogger(logger))
	if err != nil {
		logger.Error().Err(err).Msg("cannot create forwarder")
		return err
	}
	defer fw.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopAfter := context.AfterFunc(ctx, fw.Stop)
	defer stopAfter()

	logger.Info().
		Stringer("a", specs[0]).
		Stringer("b", specs[1]).
		Msg("forwarding")

	return reportRun(logger, fw.Run(), fw.Stats())
}

// reportRun logs why the relay ended. A device ending the relay or a signal
// is a normal shutdown; anything else, such as a poll failure, is returned so
// the process exits non-zero.
func reportRun(logger zerolog.Logger, err error, stats serial.Stats) error {
	var re *serial.RelayError
	switch {
	case errors.Is(err, serial.ErrStopped):
		logger.Info().Msg("stopped by signal")
	case errors.As(err, &re):
		logger.Info().
			Str("op", re.Op).
			Str("device", re.Device).
			Str("reason", re.Reason()).
			Err(re.Err).
			Msg("relay ended")
	default:
		logger.Error().Err(err).Msg("forwarding failed")
		return err
	}

	logger.Info().
		Uint64("a_to_b", stats.AToB).
		Uint64("b_to_a", stats.BToA).
		Uint64("chunks", stats.Chunks).
		Msg("relay statistics")
	return nil
}
