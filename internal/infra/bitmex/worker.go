package bitmex

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"bitmex_orderbook/internal/event"
	"bitmex_orderbook/internal/infra"
	"bitmex_orderbook/pkg/quant"

	"github.com/gorilla/websocket"
)

// DefaultURL is the production realtime endpoint.
const DefaultURL = "wss://www.bitmex.com/realtime"

// Topics subscribed for the instrument.
var Topics = []string{"instrument", "orderBookL2", "quote", "trade"}

// Config describes one realtime session.
type Config struct {
	URL             string
	Symbol          string
	Signer          *Signer // nil for a public session
	PingInterval    time.Duration
	ReadTimeout     time.Duration
	DialTimeout     time.Duration
	MaxDialAttempts int
}

// Worker reads the BitMEX realtime feed and hands every frame to the queue.
// It implements infra.WebSocketHandler on top of BaseWSWorker.
type Worker struct {
	base     *infra.BaseWSWorker
	cfg      Config
	queue    *event.Queue
	seq      uint64
	received atomic.Uint64
}

// NewWorker creates a worker publishing into q.
func NewWorker(cfg Config, q *event.Queue) *Worker {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	w := &Worker{cfg: cfg, queue: q}
	w.base = infra.NewBaseWSWorker(w)
	if cfg.PingInterval > 0 {
		w.base.PingInterval = cfg.PingInterval
	}
	if cfg.ReadTimeout > 0 {
		w.base.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.DialTimeout > 0 {
		w.base.DialTimeout = cfg.DialTimeout
	}
	w.base.MaxDialAttempts = cfg.MaxDialAttempts
	return w
}

// ID returns the worker identifier.
func (w *Worker) ID() string { return "BITMEX" }

// GetURL returns the endpoint with the subscription encoded in the query.
func (w *Worker) GetURL() string {
	subs := make([]string, 0, len(Topics))
	for _, t := range Topics {
		subs = append(subs, t+":"+w.cfg.Symbol)
	}

	sep := "?"
	if strings.Contains(w.cfg.URL, "?") {
		sep = "&"
	}
	return w.cfg.URL + sep + "subscribe=" + url.QueryEscape(strings.Join(subs, ","))
}

// Header authenticates the handshake when a signer is configured.
func (w *Worker) Header() http.Header {
	if w.cfg.Signer == nil {
		return nil
	}
	return w.cfg.Signer.Header()
}

// OnConnect needs no subscription frame; topics ride on the URL.
func (w *Worker) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	slog.Info("BitMEX feed subscribed",
		slog.String("symbol", w.cfg.Symbol),
		slog.Bool("auth", w.cfg.Signer != nil))
	return nil
}

// OnMessage stamps the frame and enqueues it.
func (w *Worker) OnMessage(ctx context.Context, msg []byte) {
	w.received.Add(1)

	env := event.AcquireEnvelope()
	env.Seq = quant.NextSeq(&w.seq)
	env.Ts = quant.Now()
	if string(msg) == "pong" {
		// keepalive replies are bare text, not JSON
		env.Msg = append(env.Msg[:0], `"pong"`...)
	} else {
		env.Msg = append(env.Msg[:0], msg...)
	}

	w.queue.Enqueue(env)
}

// OnPing sends the application-level keepalive.
func (w *Worker) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.TextMessage, []byte("ping"))
}

// Start dials in the background.
func (w *Worker) Start(ctx context.Context) {
	w.base.Start(ctx)
}

// Stop closes the session and waits for the read loop.
func (w *Worker) Stop() {
	w.base.Stop()
}

// Connected reports whether the session is open.
func (w *Worker) Connected() bool { return w.base.Connected() }

// Received counts every frame read from the socket, including dropped ones.
func (w *Worker) Received() uint64 { return w.received.Load() }

// Done is closed when the worker has stopped for good.
func (w *Worker) Done() <-chan struct{} { return w.base.Done() }

// Err is the reason the worker stopped.
func (w *Worker) Err() error { return w.base.Err() }

// WaitConnected blocks until the first session is open.
func (w *Worker) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if w.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.Done():
			if err := w.Err(); err != nil {
				return err
			}
			return errors.New("bitmex worker stopped before connecting")
		case <-ticker.C:
		}
	}
}
