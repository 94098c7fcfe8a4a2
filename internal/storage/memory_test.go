package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bitmex_orderbook/internal/domain"
	"bitmex_orderbook/pkg/quant"
)

func TestMemoryAuditStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAuditStore()

	rec := domain.TradeRecord{TradeEvent: domain.TradeEvent{Ts: quant.FromUnixSeconds(5), Side: domain.SideBuy, Price: 1, Size: 2}}
	require.NoError(t, m.InsertOne(ctx, CollectionTrades, rec))
	require.Len(t, m.Records(CollectionTrades), 1)
	require.JSONEq(t, `{"timestamp":5,"side":"Buy","price":1,"size":2}`, string(m.Records(CollectionTrades)[0]))

	require.NoError(t, m.DropIfExists(ctx, CollectionTrades))
	require.Empty(t, m.Records(CollectionTrades))
	require.Equal(t, 1, m.Drops()[CollectionTrades])

	require.ErrorIs(t, m.InsertOne(ctx, "Trades", rec), ErrInvalidCollection)
}

func TestMemoryKeyStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryKeyStore()

	require.NoError(t, m.Set(ctx, "1", "5"))
	v, ok := m.Get("1")
	require.True(t, ok)
	require.Equal(t, "5", v)

	require.NoError(t, m.FlushAll(ctx))
	require.Zero(t, m.Len())
}
