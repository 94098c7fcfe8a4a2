// Package decoder turns raw feed envelopes into typed events and routes them
// to the book reconstructor and the quote/trade recorders.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"bitmex_orderbook/internal/book"
	"bitmex_orderbook/internal/domain"
	"bitmex_orderbook/internal/event"
)

var (
	// ErrMalformedMessage marks an envelope that was discarded without applying any of it.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrPersistence marks a decoded message whose side effects were only partly stored.
	ErrPersistence = errors.New("persistence failure")
)

// BookApplier is satisfied by *book.Reconstructor.
type BookApplier interface {
	Apply(ctx context.Context, op domain.DeltaOp) error
}

// QuoteSink is satisfied by *recorder.QuoteRecorder.
type QuoteSink interface {
	Insert(ctx context.Context, tick domain.QuoteTick) error
}

// TradeSink is satisfied by *recorder.TradeRecorder.
type TradeSink interface {
	Insert(ctx context.Context, trade domain.TradeEvent) error
}

// Stats is a point-in-time copy of the decoder counters.
type Stats struct {
	Processed       uint64
	Malformed       uint64
	Ignored         uint64
	BookOps         uint64
	Quotes          uint64
	Trades          uint64
	PersistFailures uint64
}

// Decoder is driven by a single goroutine; Stats may be read from any goroutine.
type Decoder struct {
	book   BookApplier
	quotes QuoteSink
	trades TradeSink

	processed       atomic.Uint64
	malformed       atomic.Uint64
	ignored         atomic.Uint64
	bookOps         atomic.Uint64
	quoteCount      atomic.Uint64
	tradeCount      atomic.Uint64
	persistFailures atomic.Uint64
}

func New(b BookApplier, q QuoteSink, t TradeSink) *Decoder {
	return &Decoder{book: b, quotes: q, trades: t}
}

// Parse decodes env without side effects.
func Parse(env *event.Envelope) (event.Message, error) {
	msg, err := parseMessage(env.Ts, env.Msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// Decode parses env and routes every element in order.
//
// A malformed envelope is dropped whole and does not count as processed.
// Anything else counts as processed exactly once, even when some of its
// writes fail; those failures are returned wrapped in ErrPersistence.
func (d *Decoder) Decode(ctx context.Context, env *event.Envelope) error {
	msg, err := Parse(env)
	if err != nil {
		d.malformed.Add(1)
		slog.Warn("Dropped malformed message",
			slog.Uint64("seq", env.Seq),
			slog.Any("error", err))
		return err
	}
	d.processed.Add(1)

	if err := d.route(ctx, msg); err != nil {
		d.persistFailures.Add(1)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (d *Decoder) route(ctx context.Context, msg event.Message) error {
	var errs []error

	switch m := msg.(type) {
	case event.BookMessage:
		for _, op := range m.Ops {
			d.bookOps.Add(1)
			err := d.book.Apply(ctx, op)
			// the ladder already logged and counted it
			if err == nil || errors.Is(err, book.ErrIndexOutOfRange) {
				continue
			}
			errs = append(errs, err)
		}
	case event.QuoteMessage:
		for _, tick := range m.Ticks {
			d.quoteCount.Add(1)
			if err := d.quotes.Insert(ctx, tick); err != nil {
				errs = append(errs, err)
			}
		}
	case event.TradeMessage:
		for _, trade := range m.Trades {
			d.tradeCount.Add(1)
			if err := d.trades.Insert(ctx, trade); err != nil {
				errs = append(errs, err)
			}
		}
	case event.IgnoredMessage:
		d.ignored.Add(1)
		slog.Debug("Ignored message",
			slog.String("table", m.RawTable),
			slog.String("action", m.RawAction))
	default:
		d.ignored.Add(1)
	}

	return errors.Join(errs...)
}

func (d *Decoder) Stats() Stats {
	return Stats{
		Processed:       d.processed.Load(),
		Malformed:       d.malformed.Load(),
		Ignored:         d.ignored.Load(),
		BookOps:         d.bookOps.Load(),
		Quotes:          d.quoteCount.Load(),
		Trades:          d.tradeCount.Load(),
		PersistFailures: d.persistFailures.Load(),
	}
}

// Processed is the number of envelopes decoded successfully.
func (d *Decoder) Processed() uint64 { return d.processed.Load() }

// CountMalformed records an envelope the caller could not hand to Decode,
// for instance one whose decoding panicked.
func (d *Decoder) CountMalformed() { d.malformed.Add(1) }
