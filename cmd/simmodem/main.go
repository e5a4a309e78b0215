// Command simmodem runs a simulated cellular/GNSS modem on a pseudo-terminal
// so host tools can be exercised without hardware.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaracil/nrfmodem/config"
	"github.com/jaracil/nrfmodem/internal/sim"
	"github.com/jessevdk/go-flags"
)

// ttyDevice is the modem side of a pseudo-terminal.
type ttyDevice interface {
	io.ReadWriteCloser
	Name() string
}

type options struct {
	Config  string `short:"c" long:"config" description:"YAML configuration file"`
	ID      string `long:"id" default:"sim0" description:"Modem identifier used in logs"`
	NMEA    bool   `long:"nmea" description:"Expose NMEA sentences on a second pseudo-terminal"`
	Denied  bool   `long:"denied" description:"Deny network registration"`
	Verbose bool   `short:"v" long:"verbose" description:"Log every command"`
}

func commandHook(logger *slog.Logger) sim.CommandHookType {
	return func(m *sim.Modem, cmdChar string, cmdNum string, cmdAssign bool, cmdQuery bool, cmdAssignVal string) sim.RetCode {
		logger.Debug("command", "id", m.Id(), "cmd", cmdChar, "num", cmdNum, "assign", cmdAssign, "query", cmdQuery, "val", cmdAssignVal)
		return sim.RetCodeSkip
	}
}

func run(opts *options) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return err
	}

	cmdTTY, err := openTTY()
	if err != nil {
		return err
	}
	defer cmdTTY.Close()
	fmt.Printf("tty path: %s\n", cmdTTY.Name())

	var nmea io.Writer
	if opts.NMEA {
		nmeaTTY, err := openTTY()
		if err != nil {
			return err
		}
		defer nmeaTTY.Close()
		fmt.Printf("nmea path: %s\n", nmeaTTY.Name())
		nmea = nmeaTTY
	}

	regStatus := sim.RegHome
	if opts.Denied {
		regStatus = sim.RegDenied
	}
	s := cfg.Simulator
	m, err := sim.NewModem(&sim.Config{
		Id:                 opts.ID,
		TTY:                cmdTTY,
		NMEA:               nmea,
		CommandHook:        commandHook(logger),
		Logger:             logger,
		RegistrationDelay:  s.RegistrationDelay,
		RegistrationStatus: regStatus,
		FixPeriod:          s.FixPeriod,
		Position: sim.Position{
			Latitude:   s.Latitude,
			Longitude:  s.Longitude,
			Altitude:   s.Altitude,
			Satellites: s.Satellites,
		},
		StatusTransition: func(m *sim.Modem, prev, next sim.ModemStatus) {
			logger.Info("status", "id", m.Id(), "prev", prev.String(), "next", next.String())
		},
	})
	if err != nil {
		return err
	}
	defer m.CloseSync()
	logger.Info("modem ready", "id", opts.ID, "status", m.StatusSync().String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	mt := m.MetricsSync()
	logger.Info("modem stopped", "commands", mt.Commands, "errors", mt.CommandErrors, "nmea", mt.NMEASentences)
	return nil
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if err := run(&opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
