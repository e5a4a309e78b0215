// Command nrfmodem talks to a cellular/GNSS modem on a serial port: an AT
// console, network time, name resolution, a plain HTTP GET and a GNSS
// sentence dump, each holding the radio only while it runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/jaracil/nrfmodem"
	"github.com/jaracil/nrfmodem/atport"
	"github.com/jaracil/nrfmodem/config"
	"github.com/jaracil/nrfmodem/trace"
	"github.com/jessevdk/go-flags"
	"go.bug.st/serial"
)

type globalOptions struct {
	Config   string `short:"c" long:"config" description:"YAML configuration file"`
	Port     string `short:"p" long:"port" description:"AT command serial port (overrides config)"`
	NMEAPort string `long:"nmea-port" description:"NMEA serial port (overrides config)"`
	Trace    string `long:"trace" description:"Append a CBOR command trace to this file"`
	Verbose  bool   `short:"v" long:"verbose" description:"Debug logging"`
}

var opts globalOptions

// session is an open modem with everything it depends on.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	modem   *nrfmodem.Modem
	closers []io.Closer
}

func openSession() (*session, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Port != "" {
		cfg.Device.Port = opts.Port
	}
	if opts.NMEAPort != "" {
		cfg.Device.NMEAPort = opts.NMEAPort
	}
	if opts.Trace != "" {
		cfg.Trace.File = opts.Trace
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}
	if err := s.open(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) open() error {
	cfg := s.cfg

	var tracers trace.Multi
	if cfg.Trace.File != "" {
		ft, err := trace.NewFileTracer(cfg.Trace.File)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, ft)
		tracers = append(tracers, ft)
	}
	if cfg.Trace.Log {
		tracers = append(tracers, trace.NewSlogTracer(s.logger, slog.LevelDebug))
	}

	var nmea serial.Port
	if cfg.Device.NMEAPort != "" {
		var err error
		nmea, err = atport.OpenSerial(cfg.Device.NMEAPort, cfg.Device.NMEABaud)
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.Device.NMEAPort, err)
		}
		s.closers = append(s.closers, nmea)
	}

	port, err := atport.OpenSerial(cfg.Device.Port, cfg.Device.Baud)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Device.Port, err)
	}
	s.closers = append(s.closers, port)

	driverConfig := &atport.Config{
		Port:       port,
		Timeout:    cfg.Device.Timeout,
		MaxHandles: cfg.Device.MaxHandles,
		Logger:     s.logger.With("component", "atport"),
	}
	if nmea != nil {
		driverConfig.NMEA = nmea
	}
	driver, err := atport.New(driverConfig)
	if err != nil {
		return err
	}
	// The driver closes the command port.
	s.closers[len(s.closers)-1] = driver

	mode, err := cfg.Modem.SystemMode.Mode()
	if err != nil {
		return err
	}
	var tracer trace.Tracer
	if len(tracers) > 0 {
		tracer = tracers
	}
	s.modem, err = nrfmodem.NewModem(&nrfmodem.Config{
		Driver:       driver,
		SystemMode:   mode,
		Logger:       s.logger,
		Tracer:       tracer,
		PollInterval: cfg.Modem.PollInterval,
		StateTransition: func(_ *nrfmodem.Modem, prev, next nrfmodem.ResourceState) {
			s.logger.Info("radio state", "prev", prev.String(), "next", next.String())
		},
	})
	return err
}

// context returns a context cancelled on interrupt or after the configured
// connect timeout.
func (s *session) context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Modem.ConnectTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// Close releases everything in reverse opening order.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("console", "Interactive AT console", "Sends AT commands typed at the prompt and prints the responses.", &consoleCommand{})
	parser.AddCommand("clock", "Print network time", "Attaches to the network and prints the time it reports.", &clockCommand{})
	parser.AddCommand("resolve", "Resolve a hostname", "Attaches to the network and resolves a hostname.", &resolveCommand{})
	parser.AddCommand("get", "HTTP GET over TCP", "Attaches to the network and fetches a path with HTTP/1.0.", &getCommand{})
	parser.AddCommand("gnss", "Print GNSS sentences", "Starts the positioning receiver and prints NMEA sentences.", &gnssCommand{})
	parser.AddCommand("trace", "Dump a trace file", "Prints the events recorded in a CBOR trace file.", &traceCommand{})

	// Errors, command failures included, are printed by the parser.
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
