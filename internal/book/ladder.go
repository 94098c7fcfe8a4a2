package book

import (
	"log/slog"
	"sync/atomic"

	"bitmex_orderbook/internal/domain"
)

// LadderStats counts the non-fatal conditions a ladder has absorbed.
type LadderStats struct {
	Anomalies  uint64 // inserts onto a level that was already resting
	OutOfRange uint64 // operations dropped because the price had no slot
}

// Ladder is one side of the book: resting size per price slot.
// Mutators must be called from a single goroutine; Stats may be read concurrently.
type Ladder struct {
	side  domain.Side
	index *PriceIndex
	sizes []int64

	anomalies  atomic.Uint64
	outOfRange atomic.Uint64
}

// NewLadder allocates every level up front, all empty.
func NewLadder(side domain.Side, index *PriceIndex) *Ladder {
	return &Ladder{
		side:  side,
		index: index,
		sizes: make([]int64, index.Levels()),
	}
}

func (l *Ladder) Side() domain.Side { return l.side }

// Insert sets the level at price. A non-empty prior level is overwritten and
// counted as an anomaly.
func (l *Ladder) Insert(price float64, size int64) (domain.PriceLevel, error) {
	i, err := l.index.ToIndex(price)
	if err != nil {
		l.dropOutOfRange("insert", price, err)
		return domain.PriceLevel{}, err
	}

	if prior := l.sizes[i]; prior != 0 {
		l.anomalies.Add(1)
		slog.Warn("Insert onto resting level",
			slog.String("side", l.side.String()),
			slog.Float64("price", price),
			slog.Int64("prior", prior),
			slog.Int64("size", size))
	}

	l.sizes[i] = size
	return domain.PriceLevel{Price: price, Index: i, Size: size}, nil
}

// Update sets the size of the level addressed by priceID.
func (l *Ladder) Update(priceID int64, size int64) (domain.PriceLevel, error) {
	return l.set("update", priceID, size)
}

// Delete empties the level addressed by priceID.
func (l *Ladder) Delete(priceID int64) (domain.PriceLevel, error) {
	return l.set("delete", priceID, 0)
}

func (l *Ladder) set(op string, priceID int64, size int64) (domain.PriceLevel, error) {
	price, err := l.index.PriceFromID(priceID)
	if err != nil {
		l.dropOutOfRange(op, price, err)
		return domain.PriceLevel{}, err
	}
	i, err := l.index.ToIndex(price)
	if err != nil {
		l.dropOutOfRange(op, price, err)
		return domain.PriceLevel{}, err
	}

	l.sizes[i] = size
	return domain.PriceLevel{Price: price, Index: i, Size: size}, nil
}

func (l *Ladder) dropOutOfRange(op string, price float64, err error) {
	l.outOfRange.Add(1)
	slog.Warn("Dropped out-of-range book operation",
		slog.String("op", op),
		slog.String("side", l.side.String()),
		slog.Float64("price", price),
		slog.Any("error", err))
}

// SizeAt is the resting size at price, 0 when price has no slot.
func (l *Ladder) SizeAt(price float64) int64 {
	i, err := l.index.ToIndex(price)
	if err != nil {
		return 0
	}
	return l.sizes[i]
}

// Resting lists every non-empty level in ascending price order.
// It walks the whole ladder and is meant for snapshots, not the hot path.
func (l *Ladder) Resting() []domain.PriceLevel {
	var out []domain.PriceLevel
	for i, size := range l.sizes {
		if size == 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: l.index.PriceAt(i), Index: i, Size: size})
	}
	return out
}

func (l *Ladder) Stats() LadderStats {
	return LadderStats{
		Anomalies:  l.anomalies.Load(),
		OutOfRange: l.outOfRange.Load(),
	}
}
