// Package book reconstructs a price-level order book from exchange deltas.
//
// Both sides are dense ladders indexed by floor(price / granularity). The
// exchange addresses existing levels by an opaque price identifier that decodes
// to a price with a fixed linear formula; see PriceIndex.
//
// A Reconstructor has exactly one writer. Deltas must be applied in arrival
// order: there is no sequence-gap detection and a dropped or reordered delta
// leaves the affected level wrong until the next partial image re-seeds it.
package book

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"bitmex_orderbook/pkg/safe"
)

// Exchange price identifier encoding: price = (ReferenceID - id) / IDScale.
const (
	DefaultReferenceID int64 = 8800000000
	DefaultIDScale     int64 = 100
)

// ErrIndexOutOfRange is returned for prices outside [0, max price) and for
// identifiers whose decoding overflows.
var ErrIndexOutOfRange = errors.New("price index out of range")

// maxFastTicks bounds the scaled-integer path of ToIndex. Below it one float64
// ulp of a price is under half a tick, so two tick counts never share a float.
const maxFastTicks = 1 << 50

// IndexParams sizes a PriceIndex. Zero ReferenceID/IDScale select the defaults.
type IndexParams struct {
	MaxPrice    decimal.Decimal
	Granularity decimal.Decimal
	ReferenceID int64
	IDScale     int64
}

// PriceIndex maps prices and exchange identifiers to ladder slots.
// It is immutable after construction.
type PriceIndex struct {
	maxPrice    decimal.Decimal
	granularity decimal.Decimal
	referenceID int64
	idScale     int64
	levels      int

	// Prices on the tick grid are indexed as integers:
	// ticks = price * tickScale, index = ticks / granTicks. tickScale is 0
	// when the granularity cannot be scaled under maxFastTicks.
	tickScale int64
	granTicks int64
	maxTicks  int64
}

func NewPriceIndex(p IndexParams) (*PriceIndex, error) {
	if !p.Granularity.IsPositive() {
		return nil, fmt.Errorf("granularity must be positive, got %s", p.Granularity)
	}
	if !p.MaxPrice.IsPositive() {
		return nil, fmt.Errorf("max price must be positive, got %s", p.MaxPrice)
	}
	if p.ReferenceID == 0 {
		p.ReferenceID = DefaultReferenceID
	}
	if p.IDScale == 0 {
		p.IDScale = DefaultIDScale
	}
	if p.IDScale < 0 {
		return nil, fmt.Errorf("id scale must be positive, got %d", p.IDScale)
	}

	levels := p.MaxPrice.Div(p.Granularity).Floor()
	if !levels.IsPositive() || levels.GreaterThan(decimal.NewFromInt(1<<31-1)) {
		return nil, fmt.Errorf("unsupported ladder size %s (max %s / granularity %s)", levels, p.MaxPrice, p.Granularity)
	}

	pi := &PriceIndex{
		maxPrice:    p.MaxPrice,
		granularity: p.Granularity,
		referenceID: p.ReferenceID,
		idScale:     p.IDScale,
		levels:      int(levels.IntPart()),
	}
	pi.scaleTicks()
	return pi, nil
}

func (pi *PriceIndex) scaleTicks() {
	digits := -pi.granularity.Exponent()
	if digits < 0 {
		digits = 0
	}
	scale := int64(1)
	for i := int32(0); i < digits; i++ {
		var ok bool
		if scale, ok = safe.Mul(scale, 10); !ok {
			return
		}
	}

	limit := decimal.NewFromInt(maxFastTicks)
	gran := pi.granularity.Shift(digits)
	ceiling := pi.maxPrice.Shift(digits).Ceil()
	if gran.GreaterThan(limit) || ceiling.GreaterThan(limit) {
		return
	}

	pi.tickScale = scale
	pi.granTicks = gran.IntPart()
	pi.maxTicks = ceiling.IntPart()
}

// ticks returns price * tickScale when that product is an exact tick count.
func (pi *PriceIndex) ticks(price float64) (int64, bool) {
	if pi.tickScale == 0 {
		return 0, false
	}
	f := math.Round(price * float64(pi.tickScale))
	if math.Abs(f) > maxFastTicks || f/float64(pi.tickScale) != price {
		return 0, false
	}
	return int64(f), true
}

// ToIndex returns floor(price / granularity) for 0 <= price < max price.
// The division is exact, so prices on a tick boundary never land one slot low.
// Prices on the tick grid take an allocation-free integer path.
func (pi *PriceIndex) ToIndex(price float64) (int, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: price %v", ErrIndexOutOfRange, price)
	}
	if t, ok := pi.ticks(price); ok {
		if t < 0 || t >= pi.maxTicks {
			return 0, fmt.Errorf("%w: price %v not in [0, %s)", ErrIndexOutOfRange, price, pi.maxPrice)
		}
		if idx := int(t / pi.granTicks); idx < pi.levels {
			return idx, nil
		}
		return 0, fmt.Errorf("%w: price %v maps past index %d", ErrIndexOutOfRange, price, pi.levels-1)
	}
	return pi.toIndexExact(price)
}

func (pi *PriceIndex) toIndexExact(price float64) (int, error) {
	d := decimal.NewFromFloat(price)
	if d.IsNegative() || d.GreaterThanOrEqual(pi.maxPrice) {
		return 0, fmt.Errorf("%w: price %v not in [0, %s)", ErrIndexOutOfRange, price, pi.maxPrice)
	}

	idx := int(d.Div(pi.granularity).Floor().IntPart())
	if idx >= pi.levels {
		return 0, fmt.Errorf("%w: price %v maps to index %d of %d", ErrIndexOutOfRange, price, idx, pi.levels)
	}
	return idx, nil
}

// PriceFromID decodes an exchange price identifier. The price itself is not
// range checked; an identifier too far from the reference to decode is.
func (pi *PriceIndex) PriceFromID(id int64) (float64, error) {
	diff, ok := safe.Sub(pi.referenceID, id)
	if !ok {
		return 0, fmt.Errorf("%w: id %d overflows reference %d", ErrIndexOutOfRange, id, pi.referenceID)
	}
	return decimal.NewFromInt(diff).
		Div(decimal.NewFromInt(pi.idScale)).
		InexactFloat64(), nil
}

// IDFromPrice is the inverse of PriceFromID.
func (pi *PriceIndex) IDFromPrice(price float64) (int64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: price %v", ErrIndexOutOfRange, price)
	}
	scaled := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(pi.idScale)).Round(0)
	if scaled.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: price %v has no identifier", ErrIndexOutOfRange, price)
	}
	id, ok := safe.Sub(pi.referenceID, scaled.IntPart())
	if !ok {
		return 0, fmt.Errorf("%w: price %v has no identifier", ErrIndexOutOfRange, price)
	}
	return id, nil
}

// Levels is the ladder length, max price / granularity.
func (pi *PriceIndex) Levels() int { return pi.levels }

// PriceAt is the lowest price mapping to index.
func (pi *PriceIndex) PriceAt(index int) float64 {
	return pi.granularity.Mul(decimal.NewFromInt(int64(index))).InexactFloat64()
}

func (pi *PriceIndex) Granularity() decimal.Decimal { return pi.granularity }

func (pi *PriceIndex) MaxPrice() decimal.Decimal { return pi.maxPrice }
