package main

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/jaracil/nrfmodem"
	"github.com/jaracil/nrfmodem/trace"
)

type consoleCommand struct {
	History string `long:"history" description:"History file"`
}

func (c *consoleCommand) Execute(args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "AT> ",
		HistoryFile:     c.History,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	m := s.modem
	_, err = nrfmodem.WithCommand(m, func(ch *nrfmodem.CommandChannel) (struct{}, error) {
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return struct{}{}, nil
			}
			if err != nil {
				return struct{}{}, err
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := m.CommandSend(ch, line); err != nil {
				fmt.Fprintln(rl.Stderr(), err)
				continue
			}
			err = m.CommandPollResponse(ch, func(resp string) {
				fmt.Fprintln(rl.Stdout(), resp)
			})
			if err != nil {
				fmt.Fprintln(rl.Stderr(), err)
			}
		}
	})
	return err
}

type clockCommand struct{}

func (c *clockCommand) Execute(args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := s.context()
	defer cancel()
	m := s.modem
	clock, err := nrfmodem.WithLink(ctx, m, func(l *nrfmodem.LinkChannel) (nrfmodem.ClockTime, error) {
		return m.LinkReadClock(l)
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", clock, clock.Time().Format(time.RFC3339))
	return nil
}

type familyOption struct {
	IPv4 bool `short:"4" description:"Prefer IPv4"`
	IPv6 bool `short:"6" description:"Prefer IPv6"`
}

func (f familyOption) family() nrfmodem.Family {
	switch {
	case f.IPv4:
		return nrfmodem.FamilyV4
	case f.IPv6:
		return nrfmodem.FamilyV6
	default:
		return nrfmodem.FamilyEither
	}
}

// resolve attaches to the network long enough to look up host.
func (s *session) resolve(host string, family nrfmodem.Family) (netip.Addr, error) {
	ctx, cancel := s.context()
	defer cancel()
	m := s.modem
	return nrfmodem.WithLink(ctx, m, func(l *nrfmodem.LinkChannel) (netip.Addr, error) {
		return m.Resolve(host, family)
	})
}

type resolveCommand struct {
	familyOption
	Args struct {
		Host string `positional-arg-name:"host" required:"yes"`
	} `positional-args:"yes"`
}

func (c *resolveCommand) Execute(args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	addr, err := s.resolve(c.Args.Host, c.family())
	if err != nil {
		return err
	}
	fmt.Println(addr)
	return nil
}

type getCommand struct {
	familyOption
	Port uint16 `long:"port" default:"80" description:"Server port"`
	Args struct {
		Host string `positional-arg-name:"host" required:"yes"`
		Path string `positional-arg-name:"path"`
	} `positional-args:"yes"`
}

func (c *getCommand) Execute(args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	path := c.Args.Path
	if path == "" {
		path = "/"
	}
	addr, err := s.resolve(c.Args.Host, c.family())
	if err != nil {
		return err
	}

	ctx, cancel := s.context()
	defer cancel()
	m := s.modem
	remote := netip.AddrPortFrom(addr, c.Port)
	n, err := nrfmodem.WithStream(ctx, m, remote, func(st *nrfmodem.StreamChannel) (int, error) {
		req := []byte(fmt.Sprintf("GET %s HTTP/1.0\r\nHost: %s\r\nConnection: close\r\n\r\n", path, c.Args.Host))
		for len(req) > 0 {
			var sent int
			err := nrfmodem.Await(ctx, m.PollInterval(), func() error {
				var err error
				sent, err = m.StreamSend(st, req)
				return err
			})
			if err != nil {
				return 0, err
			}
			req = req[sent:]
		}

		total := 0
		buf := make([]byte, 1024)
		for {
			var n int
			err := nrfmodem.Await(ctx, m.PollInterval(), func() error {
				var err error
				n, err = m.StreamReceive(st, buf)
				return err
			})
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			if err != nil {
				return total, err
			}
			os.Stdout.Write(buf[:n])
			total += n
		}
	})
	s.logger.Debug("get finished", "remote", remote.String(), "bytes", n)
	return err
}

type gnssCommand struct {
	Count    int      `short:"n" long:"count" default:"10" description:"Number of sentences to print"`
	Interval uint16   `long:"interval" default:"1" description:"Seconds between fixes"`
	Cold     bool     `long:"cold" description:"Delete all receiver data before starting"`
	Sentence []string `short:"s" long:"sentence" description:"Sentence type to print (GGA, GLL, GSA, GSV, RMC); repeatable"`
}

func (c *gnssCommand) mask() (nrfmodem.NMEAMask, error) {
	var mask nrfmodem.NMEAMask
	for _, id := range c.Sentence {
		switch strings.ToUpper(id) {
		case "GGA":
			mask |= nrfmodem.NMEAGGA
		case "GLL":
			mask |= nrfmodem.NMEAGLL
		case "GSA":
			mask |= nrfmodem.NMEAGSA
		case "GSV":
			mask |= nrfmodem.NMEAGSV
		case "RMC":
			mask |= nrfmodem.NMEARMC
		default:
			return 0, fmt.Errorf("unknown sentence type %q", id)
		}
	}
	return mask, nil
}

func (c *gnssCommand) Execute(args []string) error {
	mask, err := c.mask()
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	opts := nrfmodem.DefaultPositioningOptions()
	opts.FixInterval = c.Interval
	opts.NMEAMask = mask
	if c.Cold {
		opts.DeleteMask = nrfmodem.DeleteAll
	}

	ctx, cancel := s.context()
	defer cancel()
	m := s.modem
	_, err = nrfmodem.WithPositioning(m, opts, func(p *nrfmodem.PositioningChannel) (struct{}, error) {
		for i := 0; i < c.Count; i++ {
			var data nrfmodem.PositioningData
			err := nrfmodem.Await(ctx, m.PollInterval(), func() error {
				var err error
				data, err = m.PositioningReceive(p)
				return err
			})
			if err != nil {
				return struct{}{}, err
			}
			fmt.Printf("%s %s\n", data.Received.Format(time.TimeOnly), data.Sentence)
		}
		return struct{}{}, nil
	})
	return err
}

type traceCommand struct {
	Args struct {
		File string `positional-arg-name:"file" required:"yes"`
	} `positional-args:"yes"`
}

func (c *traceCommand) Execute(args []string) error {
	f, err := os.Open(c.Args.File)
	if err != nil {
		return err
	}
	defer f.Close()

	events, err := trace.ReadAll(f)
	for _, e := range events {
		fmt.Print(formatEvent(e))
	}
	return err
}

func formatEvent(e trace.Event) string {
	var sb strings.Builder
	sb.WriteString(e.Timestamp.Format(time.StampMilli))
	sb.WriteString(" ")
	sb.WriteString(e.Kind.String())
	if e.ChannelID != "" {
		sb.WriteString(" [" + e.ChannelID + "]")
	}
	if e.Command != "" {
		sb.WriteString(" " + strconv.Quote(e.Command))
	}
	if e.Detail != "" {
		sb.WriteString(" " + e.Detail)
	}
	if e.Duration > 0 {
		sb.WriteString(" " + e.Duration.String())
	}
	if e.Error != "" {
		sb.WriteString(" error: " + e.Error)
	}
	sb.WriteString("\n")
	for _, l := range e.Lines {
		sb.WriteString("    " + l + "\n")
	}
	return sb.String()
}
