package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"bitmex_orderbook/internal/domain"
	"bitmex_orderbook/internal/storage"
	"bitmex_orderbook/pkg/quant"
)

// Params identifies the book being reconstructed.
type Params struct {
	Instrument string
	OpenedAt   quant.TimeStamp
	Index      IndexParams
}

// Stores are the side-effect sinks of a Reconstructor.
type Stores struct {
	Bids  storage.KeyStore
	Asks  storage.KeyStore
	Audit storage.AuditStore
}

// Stats aggregates reconstructor and ladder counters.
type Stats struct {
	Applied         uint64
	PersistFailures uint64
	Bids            LadderStats
	Asks            LadderStats
}

// Reconstructor owns both ladders of one instrument and mirrors every applied
// delta into the key store and the audit store.
//
// The ladder mutation and the two writes are independent. A failed write is
// returned to the caller but the in-memory ladder keeps the new size, so the
// audit trail is at-most-once.
type Reconstructor struct {
	instrument string
	openedAt   quant.TimeStamp
	index      *PriceIndex

	bids *Ladder
	asks *Ladder

	stores Stores

	applied         atomic.Uint64
	persistFailures atomic.Uint64
}

// NewReconstructor resets the stores and allocates both ladders.
// Startup is O(max price / granularity).
func NewReconstructor(ctx context.Context, p Params, s Stores) (*Reconstructor, error) {
	if s.Bids == nil || s.Asks == nil || s.Audit == nil {
		return nil, errors.New("reconstructor: bids, asks and audit stores are required")
	}

	index, err := NewPriceIndex(p.Index)
	if err != nil {
		return nil, fmt.Errorf("reconstructor: %w", err)
	}

	slog.Info("Initializing order book",
		slog.String("instrument", p.Instrument),
		slog.String("max_price", index.MaxPrice().String()),
		slog.String("granularity", index.Granularity().String()),
		slog.Int("levels", index.Levels()))

	if err := s.Bids.FlushAll(ctx); err != nil {
		return nil, fmt.Errorf("flush bids store: %w", err)
	}
	if err := s.Asks.FlushAll(ctx); err != nil {
		return nil, fmt.Errorf("flush asks store: %w", err)
	}
	for _, c := range []string{storage.CollectionInserts, storage.CollectionUpdates, storage.CollectionDeletes} {
		if err := s.Audit.DropIfExists(ctx, c); err != nil {
			return nil, fmt.Errorf("reset %s: %w", c, err)
		}
	}

	start := time.Now()
	r := &Reconstructor{
		instrument: p.Instrument,
		openedAt:   p.OpenedAt,
		index:      index,
		bids:       NewLadder(domain.SideBuy, index),
		asks:       NewLadder(domain.SideSell, index),
		stores:     s,
	}
	slog.Info("Order book ready", slog.Duration("alloc", time.Since(start)))

	return r, nil
}

func (r *Reconstructor) Instrument() string { return r.instrument }

func (r *Reconstructor) OpenedAt() quant.TimeStamp { return r.openedAt }

func (r *Reconstructor) Index() *PriceIndex { return r.index }

// Ladder returns the ladder for side, nil for an invalid side.
func (r *Reconstructor) Ladder(side domain.Side) *Ladder {
	switch side {
	case domain.SideBuy:
		return r.bids
	case domain.SideSell:
		return r.asks
	default:
		return nil
	}
}

func (r *Reconstructor) keys(side domain.Side) storage.KeyStore {
	if side == domain.SideBuy {
		return r.stores.Bids
	}
	return r.stores.Asks
}

// Apply mutates the ladder for op, then writes the new size to the key store
// and an audit record to the collection matching op.Kind.
// Out-of-range ops change nothing, persist nothing, and return ErrIndexOutOfRange.
func (r *Reconstructor) Apply(ctx context.Context, op domain.DeltaOp) error {
	ladder := r.Ladder(op.Side)
	if ladder == nil {
		return fmt.Errorf("apply %s: invalid side %d", op.Kind, op.Side)
	}

	var (
		level      domain.PriceLevel
		collection string
		err        error
	)
	rec := domain.BookRecord{Ts: op.Ts, Side: op.Side}

	switch op.Kind {
	case domain.DeltaInsert:
		level, err = ladder.Insert(op.Price, op.Size)
		collection = storage.CollectionInserts
		rec.Size, rec.HasSize = op.Size, true
	case domain.DeltaUpdate:
		level, err = ladder.Update(op.PriceID, op.Size)
		collection = storage.CollectionUpdates
		rec.Size, rec.HasSize = op.Size, true
	case domain.DeltaDelete:
		level, err = ladder.Delete(op.PriceID)
		collection = storage.CollectionDeletes
	default:
		return fmt.Errorf("apply: unknown delta kind %d", op.Kind)
	}
	if err != nil {
		return err
	}
	r.applied.Add(1)
	rec.Price = level.Price

	keyErr := r.keys(op.Side).Set(ctx, strconv.Itoa(level.Index), strconv.FormatInt(level.Size, 10))
	if keyErr != nil {
		keyErr = fmt.Errorf("key store %s: %w", op.Side, keyErr)
	}
	auditErr := r.stores.Audit.InsertOne(ctx, collection, rec)
	if auditErr != nil {
		auditErr = fmt.Errorf("audit %s: %w", collection, auditErr)
	}

	if err := errors.Join(keyErr, auditErr); err != nil {
		r.persistFailures.Add(1)
		return err
	}
	return nil
}

// SizeAt reads the resting size at price on side.
func (r *Reconstructor) SizeAt(side domain.Side, price float64) int64 {
	ladder := r.Ladder(side)
	if ladder == nil {
		return 0
	}
	return ladder.SizeAt(price)
}

func (r *Reconstructor) Stats() Stats {
	return Stats{
		Applied:         r.applied.Load(),
		PersistFailures: r.persistFailures.Load(),
		Bids:            r.bids.Stats(),
		Asks:            r.asks.Stats(),
	}
}

// Snapshot captures the resting levels of both sides. It must be called from
// the goroutine that applies deltas, or after it has stopped.
func (r *Reconstructor) Snapshot(processed uint64) *storage.BookSnapshot {
	return &storage.BookSnapshot{
		Instrument: r.instrument,
		Processed:  processed,
		TsUnix:     time.Now().Unix(),
		Bids:       r.bids.Resting(),
		Asks:       r.asks.Resting(),
	}
}
