package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrDialExhausted is reported when every dial attempt failed.
var ErrDialExhausted = errors.New("ws dial attempts exhausted")

// WebSocketHandler defines exchange-specific logic for the BaseWSWorker.
type WebSocketHandler interface {
	GetURL() string
	// Header is sent with the handshake; it may carry authentication.
	Header() http.Header
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	OnMessage(ctx context.Context, msg []byte)
	OnPing(ctx context.Context, conn *websocket.Conn) error
	ID() string
}

// BaseWSWorker manages the lifecycle of one WebSocket session: dial retries
// with backoff, read timeouts and keepalive pings.
//
// The worker stops after the first read error and Connected reports false from
// then on; consumers use that as end of stream.
type BaseWSWorker struct {
	handler WebSocketHandler
	mu      sync.RWMutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	connected atomic.Bool
	done      chan struct{}
	errMu     sync.Mutex
	err       error

	ReadTimeout     time.Duration
	PingInterval    time.Duration
	DialTimeout     time.Duration
	MaxDialAttempts int // 0 retries forever
	Backoff         func(retry int) time.Duration
}

// NewBaseWSWorker creates a new generic WebSocket worker.
func NewBaseWSWorker(handler WebSocketHandler) *BaseWSWorker {
	return &BaseWSWorker{
		handler:      handler,
		done:         make(chan struct{}),
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		DialTimeout:  5 * time.Second,
		Backoff:      CalculateBackoff,
	}
}

// Start initiates the connection loop.
func (w *BaseWSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker.
func (w *BaseWSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

// Connected reports whether a session is currently open.
func (w *BaseWSWorker) Connected() bool { return w.connected.Load() }

// Done is closed once the worker has given up or been stopped.
func (w *BaseWSWorker) Done() <-chan struct{} { return w.done }

// Err returns the reason the worker stopped, if any.
func (w *BaseWSWorker) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *BaseWSWorker) setErr(err error) {
	w.errMu.Lock()
	w.err = err
	w.errMu.Unlock()
}

func (w *BaseWSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.done)
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			retry++
			slog.Warn("WS Connection failed", "id", w.handler.ID(), "err", err, "retry", retry)
			if w.MaxDialAttempts > 0 && retry >= w.MaxDialAttempts {
				w.setErr(fmt.Errorf("%w after %d attempts: %w", ErrDialExhausted, retry, err))
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(w.Backoff(retry - 1)):
				continue
			}
		}

		if err := w.process(ctx); err != nil && ctx.Err() == nil {
			w.setErr(err)
		}
		return
	}
}

func (w *BaseWSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: w.DialTimeout}
	header := w.handler.Header()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("User-Agent", GetUserAgent())

	conn, _, err := dialer.DialContext(ctx, w.handler.GetURL(), header)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, conn); err != nil {
		w.close()
		return fmt.Errorf("OnConnect failed: %w", err)
	}

	w.connected.Store(true)
	if w.PingInterval > 0 {
		go w.pingLoop(ctx, conn)
	}

	slog.Info("WS Connected", "id", w.handler.ID())
	return nil
}

func (w *BaseWSWorker) process(ctx context.Context) error {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return nil
		}

		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			slog.Warn("WS Read error", "id", w.handler.ID(), "err", err)
			w.close()
			return err
		}

		w.handler.OnMessage(ctx, msg)
	}
}

func (w *BaseWSWorker) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			c := w.conn
			w.mu.RUnlock()
			if c != conn {
				return
			}
			// the only writer once the session is up
			if err := w.handler.OnPing(ctx, c); err != nil {
				slog.Warn("WS Ping error", "id", w.handler.ID(), "err", err)
				w.close()
				return
			}
		}
	}
}

func (w *BaseWSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected.Store(false)
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
