package logger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "court", Preview("court", 50))
	assert.Equal(t, "quel...", Preview("quelle est la posologie", 4))
	assert.Equal(t, "éèà...", Preview("éèàù", 3))
}

func TestInitCreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	err := Init(Options{Level: "debug", File: filepath.Join(dir, "gw.log"), MaxSizeMB: 1})
	require.NoError(t, err)
	defer Close()

	assert.DirExists(t, dir)
	assert.Equal(t, "debug", Get().GetLevel().String())
}

func TestInitFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Options{Level: "nonsense"}))
	assert.Equal(t, "info", Get().GetLevel().String())
}

type captureSink struct {
	mu     sync.Mutex
	events []axiom.Event
}

func (c *captureSink) Send(ev axiom.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestAxiomWriterRedactsPatientText(t *testing.T) {
	sink := &captureSink{}
	w := newAxiomWriter(sink, "", true)

	l := zerolog.New(w)
	l.Info().Str("request_id", "abc").Str("user_message", "douleur thoracique").Msg("chat request")

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "abc", ev["request_id"])
	assert.Equal(t, "chat request", ev["message"])
	assert.NotContains(t, ev, "user_message")
	assert.Equal(t, 18, ev["user_message_chars"])
	assert.Contains(t, ev, ingest.TimestampField)
}

func TestAxiomWriterKeepsFieldsWithoutRedaction(t *testing.T) {
	sink := &captureSink{}
	l := zerolog.New(newAxiomWriter(sink, "info", false))
	l.Info().Str("prompt", "<CAPTION>").Msg("analyzing image")

	require.Len(t, sink.events, 1)
	assert.Equal(t, "<CAPTION>", sink.events[0]["prompt"])
}

func TestAxiomWriterMinLevel(t *testing.T) {
	sink := &captureSink{}
	l := zerolog.New(newAxiomWriter(sink, "warn", true))

	l.Debug().Msg("d")
	l.Info().Msg("i")
	l.Warn().Msg("w")
	l.Error().Msg("e")

	require.Len(t, sink.events, 2)
	assert.Equal(t, "w", sink.events[0]["message"])
}

func TestAxiomWriterNonJSONLine(t *testing.T) {
	sink := &captureSink{}
	n, err := newAxiomWriter(sink, "", true).Write([]byte("plain text"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "plain text", sink.events[0]["message"])
}

func TestBatcherFlushesOnSizeAndClose(t *testing.T) {
	var mu sync.Mutex
	var batches []int
	ingestFn := func(_ context.Context, events []axiom.Event) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, len(events))
		return nil
	}

	b := startBatcher(ingestFn, time.Hour, 3)
	for i := 0; i < 4; i++ {
		b.Send(axiom.Event{"n": i})
	}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3, 1}, batches)
}

func TestBatcherReportsIngestErrors(t *testing.T) {
	calls := 0
	b := startBatcher(func(context.Context, []axiom.Event) error {
		calls++
		return errors.New("401 unauthorized")
	}, time.Hour, 10)
	b.Send(axiom.Event{"n": 1})
	require.NoError(t, b.Close())
	assert.Equal(t, 1, calls)
}
