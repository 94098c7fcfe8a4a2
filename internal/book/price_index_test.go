package book

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testIndexParams() IndexParams {
	return IndexParams{
		MaxPrice:    decimal.NewFromInt(1000),
		Granularity: decimal.RequireFromString("0.5"),
	}
}

func newTestIndex(t *testing.T) *PriceIndex {
	t.Helper()
	pi, err := NewPriceIndex(testIndexParams())
	require.NoError(t, err)
	return pi
}

func mustPrice(t testing.TB, pi *PriceIndex, id int64) float64 {
	t.Helper()
	price, err := pi.PriceFromID(id)
	require.NoError(t, err)
	return price
}

func mustID(t testing.TB, pi *PriceIndex, price float64) int64 {
	t.Helper()
	id, err := pi.IDFromPrice(price)
	require.NoError(t, err)
	return id
}

func TestNewPriceIndex_Defaults(t *testing.T) {
	pi := newTestIndex(t)
	require.Equal(t, 2000, pi.Levels())
	require.Equal(t, 1.0, mustPrice(t, pi, DefaultReferenceID-100))
}

func TestNewPriceIndex_Invalid(t *testing.T) {
	tests := []struct {
		name string
		p    IndexParams
	}{
		{"zero granularity", IndexParams{MaxPrice: decimal.NewFromInt(10)}},
		{"negative granularity", IndexParams{MaxPrice: decimal.NewFromInt(10), Granularity: decimal.NewFromInt(-1)}},
		{"zero max price", IndexParams{Granularity: decimal.NewFromInt(1)}},
		{"granularity above max", IndexParams{MaxPrice: decimal.NewFromInt(1), Granularity: decimal.NewFromInt(2)}},
		{"negative scale", IndexParams{MaxPrice: decimal.NewFromInt(10), Granularity: decimal.NewFromInt(1), IDScale: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPriceIndex(tt.p)
			require.Error(t, err)
		})
	}
}

func TestPriceIndex_ToIndex(t *testing.T) {
	pi := newTestIndex(t)

	tests := []struct {
		price float64
		want  int
	}{
		{0, 0},
		{0.4, 0},
		{0.5, 1},
		{1.0, 2},
		{100.0, 200},
		{100.5, 201},
		{100.75, 201},
		{999.5, 1999},
		{999.99, 1999},
	}
	for _, tt := range tests {
		got, err := pi.ToIndex(tt.price)
		require.NoError(t, err, "price %v", tt.price)
		require.Equal(t, tt.want, got, "price %v", tt.price)
	}
}

func TestPriceIndex_ToIndexOutOfRange(t *testing.T) {
	pi := newTestIndex(t)

	for _, price := range []float64{-0.01, -99.99, 1000, 1000.5, 1e9} {
		_, err := pi.ToIndex(price)
		require.ErrorIs(t, err, ErrIndexOutOfRange, "price %v", price)
	}
}

func TestPriceIndex_PriceFromID(t *testing.T) {
	pi := newTestIndex(t)

	require.Equal(t, 1.0, mustPrice(t, pi, 8799999900))
	require.Equal(t, 100.5, mustPrice(t, pi, 8799989950))
	require.Equal(t, 0.0, mustPrice(t, pi, DefaultReferenceID))
	// ids above the reference decode to negative prices
	require.Equal(t, -99.99, mustPrice(t, pi, 8800009999))
}

func TestPriceIndex_IDOverflowIsOutOfRange(t *testing.T) {
	pi := newTestIndex(t)

	// reference - MinInt64 does not fit in int64
	_, err := pi.PriceFromID(math.MinInt64)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = pi.PriceFromID(math.MinInt64 + DefaultReferenceID - 1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	// the far end still decodes to a (negative) price
	_, err = pi.PriceFromID(math.MaxInt64)
	require.NoError(t, err)

	for _, price := range []float64{math.NaN(), math.Inf(1), -1e300, 1e300} {
		_, err = pi.IDFromPrice(price)
		require.ErrorIs(t, err, ErrIndexOutOfRange, "price %v", price)
	}
}

func TestPriceIndex_FastPathMatchesExact(t *testing.T) {
	pi := newTestIndex(t)
	require.Equal(t, int64(10), pi.tickScale)
	require.Equal(t, int64(5), pi.granTicks)
	require.Equal(t, int64(10000), pi.maxTicks)

	prices := []float64{0, 0.1, 0.4, 0.5, 0.9, 1, 99.9, 100, 100.5, 999.4, 999.5, 999.9, 1000, 1000.1, -0.1, -0.5}
	// off-grid prices fall back to the exact path
	prices = append(prices, 0.49999999999, 0.50000000001, 100.05, 999.99999)
	for cents := 0; cents < 100100; cents += 7 {
		prices = append(prices, float64(cents)/100)
	}

	for _, p := range prices {
		want, wantErr := pi.toIndexExact(p)
		got, err := pi.ToIndex(p)
		if wantErr != nil {
			require.ErrorIs(t, err, ErrIndexOutOfRange, "price %v", p)
			continue
		}
		require.NoError(t, err, "price %v", p)
		require.Equal(t, want, got, "price %v", p)
	}
}

func TestPriceIndex_FastPathDoesNotAllocate(t *testing.T) {
	pi := newTestIndex(t)

	allocs := testing.AllocsPerRun(100, func() {
		if _, err := pi.ToIndex(100.5); err != nil {
			t.Fatal(err)
		}
	})
	require.Zero(t, allocs)
}

func TestPriceIndex_FastPathDisabledForHugeScale(t *testing.T) {
	pi, err := NewPriceIndex(IndexParams{
		MaxPrice:    decimal.NewFromInt(1000),
		Granularity: decimal.RequireFromString("0.123456789012345"),
	})
	require.NoError(t, err)
	require.Zero(t, pi.tickScale)

	idx, err := pi.ToIndex(1)
	require.NoError(t, err)
	require.Equal(t, 8, idx)
}

func TestPriceIndex_RoundTrip(t *testing.T) {
	pi := newTestIndex(t)

	// every cent in range
	for cents := int64(0); cents < 100000; cents++ {
		p := float64(cents) / 100
		want, err := pi.ToIndex(p)
		require.NoError(t, err)

		got, err := pi.ToIndex(mustPrice(t, pi, mustID(t, pi, p)))
		require.NoError(t, err)
		require.Equal(t, want, got, "price %v", p)
	}
}

func TestPriceIndex_PriceAt(t *testing.T) {
	pi := newTestIndex(t)

	for _, i := range []int{0, 1, 201, 1999} {
		idx, err := pi.ToIndex(pi.PriceAt(i))
		require.NoError(t, err)
		require.Equal(t, i, idx)
	}
	require.Equal(t, 100.5, pi.PriceAt(201))
}

func TestPriceIndex_CustomEncoding(t *testing.T) {
	pi, err := NewPriceIndex(IndexParams{
		MaxPrice:    decimal.NewFromInt(100),
		Granularity: decimal.RequireFromString("0.01"),
		ReferenceID: 1000000,
		IDScale:     10000,
	})
	require.NoError(t, err)
	require.Equal(t, 10000, pi.Levels())
	require.Equal(t, 1.5, mustPrice(t, pi, 1000000-15000))
	require.Equal(t, int64(1000000-15000), mustID(t, pi, 1.5))
}

func FuzzPriceIndex_ToIndex(f *testing.F) {
	f.Add(100.5)
	f.Add(-1.0)
	f.Add(999.999)
	f.Add(0.0)

	pi, err := NewPriceIndex(testIndexParams())
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, price float64) {
		idx, err := pi.ToIndex(price)
		if math.IsNaN(price) || math.IsInf(price, 0) {
			if err == nil {
				t.Fatalf("ToIndex(%v) accepted a non-finite price", price)
			}
			return
		}
		exact, exactErr := pi.toIndexExact(price)
		if (err == nil) != (exactErr == nil) || idx != exact {
			t.Fatalf("ToIndex(%v) = %d, %v; exact %d, %v", price, idx, err, exact, exactErr)
		}
		if err != nil {
			return
		}
		if idx < 0 || idx >= pi.Levels() {
			t.Fatalf("ToIndex(%v) = %d outside [0, %d)", price, idx, pi.Levels())
		}
	})
}
