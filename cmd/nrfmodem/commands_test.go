package main

import (
	"errors"
	"testing"
	"time"

	"github.com/jaracil/nrfmodem"
	"github.com/jaracil/nrfmodem/trace"
)

func TestGNSSMask(t *testing.T) {
	c := &gnssCommand{Sentence: []string{"gga", "RMC"}}
	mask, err := c.mask()
	if err != nil {
		t.Fatalf("mask() error = %v", err)
	}
	if mask != nrfmodem.NMEAGGA|nrfmodem.NMEARMC {
		t.Errorf("mask() = %v, want GGA|RMC", mask)
	}

	c = &gnssCommand{Sentence: []string{"ZDA"}}
	if _, err := c.mask(); err == nil {
		t.Error("mask() accepted unknown sentence type")
	}
}

func TestFamilyOption(t *testing.T) {
	tests := []struct {
		opt  familyOption
		want nrfmodem.Family
	}{
		{familyOption{}, nrfmodem.FamilyEither},
		{familyOption{IPv4: true}, nrfmodem.FamilyV4},
		{familyOption{IPv6: true}, nrfmodem.FamilyV6},
	}
	for _, tt := range tests {
		if got := tt.opt.family(); got != tt.want {
			t.Errorf("%+v.family() = %v, want %v", tt.opt, got, tt.want)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)
	got := formatEvent(trace.Event{
		Timestamp: ts,
		Kind:      trace.KindCommand,
		Command:   "AT+CEREG?",
		Lines:     []string{"+CEREG: 0,1"},
		Duration:  15 * time.Millisecond,
	})
	want := "May  1 10:20:30.000 COMMAND \"AT+CEREG?\" 15ms\n    +CEREG: 0,1\n"
	if got != want {
		t.Errorf("formatEvent() = %q, want %q", got, want)
	}

	got = formatEvent(trace.Event{
		Timestamp: ts,
		Kind:      trace.KindChannel,
		ChannelID: "c1",
		Detail:    "connect",
		Error:     errors.New("registration denied").Error(),
	})
	want = "May  1 10:20:30.000 CHANNEL [c1] connect error: registration denied\n"
	if got != want {
		t.Errorf("formatEvent() = %q, want %q", got, want)
	}
}
