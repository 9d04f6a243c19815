package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "medgateway"

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Axiom
	SendToAxiom    bool
	AxiomAPIKey    string
	AxiomOrgID     string
	AxiomDataset   string
	AxiomFlush     time.Duration
	AxiomBatchSize int
	// AxiomMinLevel is the lowest level forwarded; empty means info.
	AxiomMinLevel string
	// AxiomRedact strips patient-text fields before events leave the host.
	AxiomRedact bool
}

var (
	global zerolog.Logger
	ax     *axiomClient
)

// Init sets up the global logger: file rotation, console or JSON stdout, optional Axiom forwarding.
func Init(opts Options) error {
	var writers []io.Writer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stdout)
	}

	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush, opts.AxiomBatchSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			ax = client
			writers = append(writers, newAxiomWriter(client, opts.AxiomMinLevel, opts.AxiomRedact))
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	global = zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
	log.Logger = global
	zerolog.DefaultContextLogger = &global
	return nil
}

// Close flushes any buffered external loggers.
func Close() {
	if ax != nil {
		_ = ax.Close()
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// Ctx returns the request-scoped logger stored by the request-id middleware,
// or the global logger when none is attached.
func Ctx(ctx context.Context) *zerolog.Logger { return zerolog.Ctx(ctx) }

// Preview shortens s to at most n runes for log lines.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Fields that may carry patient text. Redacted events keep only their length.
var sensitiveFields = []string{"user_message", "prompt", "response", "raw"}

type eventSink interface {
	Send(ev axiom.Event)
}

// axiomWriter forwards zerolog JSON lines at or above minLevel to Axiom.
type axiomWriter struct {
	sink     eventSink
	minLevel zerolog.Level
	redact   bool
}

func newAxiomWriter(sink eventSink, minLevel string, redact bool) *axiomWriter {
	lvl, err := zerolog.ParseLevel(minLevel)
	if err != nil || minLevel == "" {
		lvl = zerolog.InfoLevel
	}
	return &axiomWriter{sink: sink, minLevel: lvl, redact: redact}
}

func (w *axiomWriter) Write(p []byte) (int, error) {
	var ev map[string]interface{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]interface{}{zerolog.MessageFieldName: string(p), zerolog.LevelFieldName: "info"}
	}
	if s, ok := ev[zerolog.LevelFieldName].(string); ok {
		if lvl, err := zerolog.ParseLevel(s); err == nil && lvl < w.minLevel {
			return len(p), nil
		}
	}
	if w.redact {
		for _, k := range sensitiveFields {
			if v, ok := ev[k].(string); ok {
				delete(ev, k)
				ev[k+"_chars"] = len([]rune(v))
			}
		}
	}
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	w.sink.Send(axiom.Event(ev))
	return len(p), nil
}

type ingestFunc func(ctx context.Context, events []axiom.Event) error

// axiomClient batches events and ships them on size or on a timer.
type axiomClient struct {
	ship      ingestFunc
	batchSize int
	ch        chan axiom.Event
	dropped   atomic.Int64
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration, batchSize int) (*axiomClient, error) {
	if dataset == "" {
		dataset = "dev_" + serviceName
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	ship := func(ctx context.Context, events []axiom.Event) error {
		_, err := c.IngestEvents(ctx, dataset, events)
		return err
	}
	return startBatcher(ship, flushEvery, batchSize), nil
}

func startBatcher(ship ingestFunc, flushEvery time.Duration, batchSize int) *axiomClient {
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	ctx, cancel := context.WithCancel(context.Background())
	ac := &axiomClient{
		ship:      ship,
		batchSize: batchSize,
		ch:        make(chan axiom.Event, 5*batchSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	ac.wg.Add(1)
	go ac.loop(flushEvery)
	return ac
}

// Send enqueues an event; it drops the event when the buffer is full.
func (a *axiomClient) Send(ev axiom.Event) {
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *axiomClient) loop(flushEvery time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()
	batch := make([]axiom.Event, 0, a.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := a.ship(ctx, batch); err != nil {
			// stderr only: logging through zerolog would feed back into this writer
			fmt.Fprintf(os.Stderr, "axiom ingest of %d events failed: %v\n", len(batch), err)
		}
		cancel()
		batch = batch[:0]
	}
	for {
		select {
		case <-a.ctx.Done():
			for {
				select {
				case ev := <-a.ch:
					batch = append(batch, ev)
				default:
					flush()
					if n := a.dropped.Load(); n > 0 {
						fmt.Fprintf(os.Stderr, "axiom dropped %d events (buffer full)\n", n)
					}
					return
				}
			}
		case <-ticker.C:
			flush()
		case ev := <-a.ch:
			batch = append(batch, ev)
			if len(batch) >= a.batchSize {
				flush()
			}
		}
	}
}

func (a *axiomClient) Close() error {
	a.cancel()
	a.wg.Wait()
	return nil
}
