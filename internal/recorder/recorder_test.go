package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"bitmex_orderbook/internal/domain"
	"bitmex_orderbook/internal/storage"
	"bitmex_orderbook/pkg/quant"
)

type brokenStore struct {
	*storage.MemoryAuditStore
	insertErr error
	dropErr   error
}

func (b *brokenStore) InsertOne(ctx context.Context, c string, rec domain.Record) error {
	if b.insertErr != nil {
		return b.insertErr
	}
	return b.MemoryAuditStore.InsertOne(ctx, c, rec)
}

func (b *brokenStore) DropIfExists(ctx context.Context, c string) error {
	if b.dropErr != nil {
		return b.dropErr
	}
	return b.MemoryAuditStore.DropIfExists(ctx, c)
}

func TestQuoteRecorder_Spread(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAuditStore()
	r, err := NewQuoteRecorder(ctx, store)
	require.NoError(t, err)
	require.Equal(t, 1, store.Drops()[storage.CollectionQuotes])

	ticks := []domain.QuoteTick{
		domain.NewQuoteTick(quant.FromUnixSeconds(1), 100, 10, 100.5, 20),
		domain.NewQuoteTick(quant.FromUnixSeconds(2), 101, 10, 100, 20), // crossed
		domain.NewQuoteTick(quant.FromUnixSeconds(3), 100, 10, 100, 20), // locked
	}
	for _, tick := range ticks {
		require.NoError(t, r.Insert(ctx, tick))
	}
	require.Equal(t, uint64(3), r.Count())

	recs := store.Records(storage.CollectionQuotes)
	require.Len(t, recs, 3)
	for i, raw := range recs {
		var got map[string]float64
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, got["askPrice"]-got["bidPrice"], got["spread"], "record %d", i)
	}

	var crossed map[string]float64
	require.NoError(t, json.Unmarshal(recs[1], &crossed))
	require.Equal(t, -1.0, crossed["spread"])
}

func TestTradeRecorder_Insert(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAuditStore()
	r, err := NewTradeRecorder(ctx, store)
	require.NoError(t, err)

	trade := domain.TradeEvent{Ts: quant.FromUnixSeconds(1000.25), Side: domain.SideSell, Price: 9500.5, Size: 100}
	require.NoError(t, r.Insert(ctx, trade))
	require.Equal(t, uint64(1), r.Count())

	recs := store.Records(storage.CollectionTrades)
	require.Len(t, recs, 1)
	require.JSONEq(t, `{"timestamp":1000.25,"side":"Sell","price":9500.5,"size":100}`, string(recs[0]))
}

func TestRecorder_FailedWriteNotCounted(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("write failed")
	store := &brokenStore{MemoryAuditStore: storage.NewMemoryAuditStore()}

	quotes, err := NewQuoteRecorder(ctx, store)
	require.NoError(t, err)
	trades, err := NewTradeRecorder(ctx, store)
	require.NoError(t, err)

	store.insertErr = boom
	require.ErrorIs(t, quotes.Insert(ctx, domain.QuoteTick{}), boom)
	require.ErrorIs(t, trades.Insert(ctx, domain.TradeEvent{Side: domain.SideBuy}), boom)
	require.Zero(t, quotes.Count())
	require.Zero(t, trades.Count())

	store.insertErr = nil
	require.NoError(t, quotes.Insert(ctx, domain.QuoteTick{}))
	require.Equal(t, uint64(1), quotes.Count())
}

func TestRecorder_ResetFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("drop failed")
	store := &brokenStore{MemoryAuditStore: storage.NewMemoryAuditStore(), dropErr: boom}

	_, err := NewQuoteRecorder(ctx, store)
	require.ErrorIs(t, err, boom)
	_, err = NewTradeRecorder(ctx, store)
	require.ErrorIs(t, err, boom)
}
