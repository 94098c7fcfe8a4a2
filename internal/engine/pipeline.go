package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bitmex_orderbook/internal/decoder"
	"bitmex_orderbook/internal/event"
	"bitmex_orderbook/pkg/safe"
)

// Source is the stream reader as seen by the consumer.
type Source interface {
	Connected() bool
	Received() uint64
}

// Counter exposes a recorder's successful-write count.
type Counter interface {
	Count() uint64
}

// Config tunes the consumer loop.
type Config struct {
	ReportEvery uint64        // processed envelopes between throughput lines
	PollTimeout time.Duration // max wait for an envelope before re-checking the source
	DumpDir     string        // where panic dumps go; empty disables them
}

func DefaultConfig() Config {
	return Config{
		ReportEvery: 100,
		PollTimeout: 100 * time.Millisecond,
	}
}

// Status aggregates the counters of every stage.
type Status struct {
	Received  uint64 `json:"received"`
	Processed uint64 `json:"processed"`
	Backlog   uint64 `json:"backlog"`
	Queued    int    `json:"queued"`
	Malformed uint64 `json:"malformed"`
	Ignored   uint64 `json:"ignored"`
	BookOps   uint64 `json:"book_ops"`
	Quotes    uint64 `json:"quotes"`
	Trades    uint64 `json:"trades"`
	Failures  uint64 `json:"persist_failures"`
}

// Pipeline is the single consumer of the envelope queue. It is the only
// goroutine that touches the book and the recorders.
type Pipeline struct {
	queue   *event.Queue
	source  Source
	decoder *decoder.Decoder
	quotes  Counter
	trades  Counter
	cfg     Config

	lastProcessed uint64
}

func NewPipeline(q *event.Queue, src Source, dec *decoder.Decoder, quotes, trades Counter, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.ReportEvery == 0 {
		cfg.ReportEvery = def.ReportEvery
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	return &Pipeline{
		queue:   q,
		source:  src,
		decoder: dec,
		quotes:  quotes,
		trades:  trades,
		cfg:     cfg,
	}
}

// Run drains the queue until the source disconnects or ctx is done.
// Envelopes still queued at that point are abandoned.
func (p *Pipeline) Run(ctx context.Context) error {
	slog.Info("Pipeline started (single consumer)",
		slog.Int("queued", p.queue.Len()),
		slog.Uint64("report_every", p.cfg.ReportEvery))

	for {
		if ctx.Err() != nil {
			slog.Info("Pipeline stopping", slog.Int("abandoned", p.queue.Len()))
			return nil
		}
		if !p.source.Connected() {
			slog.Warn("Stream disconnected, pipeline exiting",
				slog.Int("abandoned", p.queue.Len()),
				slog.Uint64("backlog", p.backlog()))
			return nil
		}

		env, ok := p.queue.DequeueTimeout(ctx, p.cfg.PollTimeout)
		if !ok {
			continue
		}
		p.process(ctx, env)
	}
}

func (p *Pipeline) process(ctx context.Context, env *event.Envelope) {
	defer event.ReleaseEnvelope(env)
	defer func() {
		if r := recover(); r != nil {
			p.decoder.CountMalformed()
			slog.Error("CRITICAL_PANIC_RECOVERED",
				slog.Uint64("seq", env.Seq),
				slog.Any("panic", r))
			p.DumpState(env)
		}
	}()

	err := p.decoder.Decode(ctx, env)
	switch {
	case err == nil:
	case errors.Is(err, decoder.ErrMalformedMessage):
		// logged by the decoder
	default:
		slog.Error("Persistence failure",
			slog.Uint64("seq", env.Seq),
			slog.Any("error", err))
	}

	// malformed envelopes leave the count unchanged and never trigger a report
	if n := p.decoder.Processed(); n != p.lastProcessed {
		p.lastProcessed = n
		if n%p.cfg.ReportEvery == 0 {
			p.report()
		}
	}
}

func (p *Pipeline) backlog() uint64 {
	return safe.Backlog(p.source.Received(), p.decoder.Processed())
}

func (p *Pipeline) report() {
	slog.Info("Pipeline throughput",
		slog.Uint64("msgDelta", p.backlog()),
		slog.Uint64("counter", p.decoder.Processed()),
		slog.Uint64("wsCounter", p.source.Received()),
		slog.Uint64("trade", p.trades.Count()),
		slog.Uint64("quotes", p.quotes.Count()))
}

// Status may be called from any goroutine.
func (p *Pipeline) Status() Status {
	st := p.decoder.Stats()
	received := p.source.Received()
	return Status{
		Received:  received,
		Processed: st.Processed,
		Backlog:   safe.Backlog(received, st.Processed),
		Queued:    p.queue.Len(),
		Malformed: st.Malformed,
		Ignored:   st.Ignored,
		BookOps:   st.BookOps,
		Quotes:    p.quotes.Count(),
		Trades:    p.trades.Count(),
		Failures:  st.PersistFailures,
	}
}

// Dump is the post-mortem record DumpState writes. Envelope is in wire form;
// it is nil when the payload was not JSON.
type Dump struct {
	Status   Status          `json:"status"`
	Seq      uint64          `json:"seq"`
	Envelope *event.Envelope `json:"envelope,omitempty"`
	Raw      string          `json:"raw,omitempty"`
}

// DumpState writes the counters and the offending envelope for post-mortem.
func (p *Pipeline) DumpState(env *event.Envelope) {
	if p.cfg.DumpDir == "" {
		return
	}
	filename := filepath.Join(p.cfg.DumpDir, fmt.Sprintf("panic_dump_%d.json", time.Now().UnixNano()))
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := Dump{
		Status: p.Status(),
		Seq:    env.Seq,
	}
	if json.Valid(env.Msg) {
		data.Envelope = env
	} else {
		data.Raw = string(env.Msg)
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
