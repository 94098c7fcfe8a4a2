// Package recorder appends quotes and trades to the audit store.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"bitmex_orderbook/internal/domain"
	"bitmex_orderbook/internal/storage"
)

// base is the shared append-and-count logic of both recorders.
type base struct {
	collection string
	store      storage.AuditStore
	count      atomic.Uint64
}

// reset drops collection so every run starts from an empty audit trail.
func (b *base) reset(ctx context.Context, store storage.AuditStore, collection string) error {
	if err := store.DropIfExists(ctx, collection); err != nil {
		return fmt.Errorf("reset %s: %w", collection, err)
	}
	b.collection, b.store = collection, store
	slog.Info("Recorder ready", slog.String("collection", collection))
	return nil
}

func (b *base) insert(ctx context.Context, rec domain.Record) error {
	if err := b.store.InsertOne(ctx, b.collection, rec); err != nil {
		return fmt.Errorf("record %s: %w", b.collection, err)
	}
	b.count.Add(1)
	return nil
}

// QuoteRecorder persists top-of-book quotes.
type QuoteRecorder struct {
	base
}

// NewQuoteRecorder drops any previous quotes collection.
func NewQuoteRecorder(ctx context.Context, store storage.AuditStore) (*QuoteRecorder, error) {
	r := &QuoteRecorder{}
	if err := r.reset(ctx, store, storage.CollectionQuotes); err != nil {
		return nil, err
	}
	return r, nil
}

// Insert records tick as is. Crossed quotes keep their negative spread.
func (r *QuoteRecorder) Insert(ctx context.Context, tick domain.QuoteTick) error {
	return r.insert(ctx, domain.QuoteRecord{QuoteTick: tick})
}

// Count is the number of quotes successfully written.
func (r *QuoteRecorder) Count() uint64 { return r.count.Load() }

// TradeRecorder persists executed trades.
type TradeRecorder struct {
	base
}

// NewTradeRecorder drops any previous trades collection.
func NewTradeRecorder(ctx context.Context, store storage.AuditStore) (*TradeRecorder, error) {
	r := &TradeRecorder{}
	if err := r.reset(ctx, store, storage.CollectionTrades); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *TradeRecorder) Insert(ctx context.Context, trade domain.TradeEvent) error {
	return r.insert(ctx, domain.TradeRecord{TradeEvent: trade})
}

// Count is the number of trades successfully written.
func (r *TradeRecorder) Count() uint64 { return r.count.Load() }
