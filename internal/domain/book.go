package domain

import "bitmex_orderbook/pkg/quant"

// PriceLevel is one slot of a ladder.
// Invariant: Index = floor(Price / granularity).
type PriceLevel struct {
	Price float64 `json:"price"`
	Index int     `json:"index"`
	Size  int64   `json:"size"`
}

// DeltaKind tags the variant carried by a DeltaOp.
type DeltaKind uint8

const (
	DeltaInsert DeltaKind = iota + 1
	DeltaUpdate
	DeltaDelete
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaInsert:
		return "insert"
	case DeltaUpdate:
		return "update"
	case DeltaDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// DeltaOp is one decoded order-book change.
// Insert carries Price, Update and Delete carry PriceID; Delete has no Size.
type DeltaOp struct {
	Kind    DeltaKind
	Side    Side
	Price   float64
	PriceID int64
	Size    int64
	Ts      quant.TimeStamp
}

func NewInsert(ts quant.TimeStamp, side Side, price float64, size int64) DeltaOp {
	return DeltaOp{Kind: DeltaInsert, Side: side, Price: price, Size: size, Ts: ts}
}

func NewUpdate(ts quant.TimeStamp, side Side, priceID int64, size int64) DeltaOp {
	return DeltaOp{Kind: DeltaUpdate, Side: side, PriceID: priceID, Size: size, Ts: ts}
}

func NewDelete(ts quant.TimeStamp, side Side, priceID int64) DeltaOp {
	return DeltaOp{Kind: DeltaDelete, Side: side, PriceID: priceID, Ts: ts}
}
