package trace

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTracerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modem.trace")

	tr, err := NewFileTracer(path)
	require.NoError(t, err)

	tr.Record(Event{
		Timestamp: time.Now(),
		Kind:      KindCommand,
		Command:   "AT+CEREG?",
		Lines:     []string{"+CEREG: 0,1"},
		Duration:  3 * time.Millisecond,
	})
	tr.Record(Event{Timestamp: time.Now(), Kind: KindState, Detail: "cellular 0->1"})
	require.NoError(t, tr.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	events, err := ReadAll(f)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "AT+CEREG?", events[0].Command)
	assert.Equal(t, []string{"+CEREG: 0,1"}, events[0].Lines)
	assert.Equal(t, 3*time.Millisecond, events[0].Duration)
	assert.Equal(t, KindState, events[1].Kind)
	assert.Equal(t, "cellular 0->1", events[1].Detail)
}

func TestFileTracerRecordAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modem.trace")
	tr, err := NewFileTracer(path)
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	tr.Record(Event{Kind: KindCommand, Command: "AT"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileTracerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modem.trace")
	tr, err := NewFileTracer(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				tr.Record(Event{Kind: KindCommand, Command: "AT"})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, tr.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	events, err := ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, events, 200)
}

func TestSlogTracer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	Multi{Nop{}, NewSlogTracer(logger, slog.LevelDebug)}.Record(Event{
		Kind:      KindCommand,
		ChannelID: "chan-1",
		Command:   "AT+CFUN=21",
		Error:     "boom",
	})

	out := buf.String()
	for _, want := range []string{"modem trace", "kind=COMMAND", "channel=chan-1", `cmd="AT+CFUN=21"`, "error=boom"} {
		assert.True(t, strings.Contains(out, want), "output %q missing %q", out, want)
	}
}
