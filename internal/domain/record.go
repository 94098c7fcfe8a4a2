package domain

import (
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"

	"bitmex_orderbook/pkg/quant"
)

// Record is an audit entry accepted by the append-only stores.
// Fields feeds schemaless backends; MarshalEasyJSON feeds the SQLite payload column.
type Record interface {
	easyjson.Marshaler
	Time() quant.TimeStamp
	Fields() map[string]any
}

// BookRecord is the audit trail of one ladder mutation. Deletes carry no size.
type BookRecord struct {
	Ts      quant.TimeStamp
	Side    Side
	Price   float64
	Size    int64
	HasSize bool
}

func (r BookRecord) Time() quant.TimeStamp { return r.Ts }

func (r BookRecord) Fields() map[string]any {
	f := map[string]any{
		"timestamp": r.Ts.Seconds(),
		"side":      r.Side.String(),
		"price":     r.Price,
	}
	if r.HasSize {
		f["size"] = r.Size
	}
	return f
}

func (r BookRecord) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"timestamp":`)
	w.Float64(r.Ts.Seconds())
	w.RawString(`,"side":`)
	w.String(r.Side.String())
	w.RawString(`,"price":`)
	w.Float64(r.Price)
	if r.HasSize {
		w.RawString(`,"size":`)
		w.Int64(r.Size)
	}
	w.RawByte('}')
}

func (r BookRecord) MarshalJSON() ([]byte, error) {
	return easyjson.Marshal(r)
}

// QuoteRecord wraps a QuoteTick for the audit store.
type QuoteRecord struct {
	QuoteTick
}

func (r QuoteRecord) Time() quant.TimeStamp { return r.Ts }

func (r QuoteRecord) Fields() map[string]any {
	return map[string]any{
		"timestamp": r.Ts.Seconds(),
		"bidPrice":  r.BidPrice,
		"bidSize":   r.BidSize,
		"askPrice":  r.AskPrice,
		"askSize":   r.AskSize,
		"spread":    r.Spread,
	}
}

func (r QuoteRecord) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"timestamp":`)
	w.Float64(r.Ts.Seconds())
	w.RawString(`,"bidPrice":`)
	w.Float64(r.BidPrice)
	w.RawString(`,"bidSize":`)
	w.Int64(r.BidSize)
	w.RawString(`,"askPrice":`)
	w.Float64(r.AskPrice)
	w.RawString(`,"askSize":`)
	w.Int64(r.AskSize)
	w.RawString(`,"spread":`)
	w.Float64(r.Spread)
	w.RawByte('}')
}

func (r QuoteRecord) MarshalJSON() ([]byte, error) {
	return easyjson.Marshal(r)
}

// TradeRecord wraps a TradeEvent for the audit store.
type TradeRecord struct {
	TradeEvent
}

func (r TradeRecord) Time() quant.TimeStamp { return r.Ts }

func (r TradeRecord) Fields() map[string]any {
	return map[string]any{
		"timestamp": r.Ts.Seconds(),
		"side":      r.Side.String(),
		"price":     r.Price,
		"size":      r.Size,
	}
}

func (r TradeRecord) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"timestamp":`)
	w.Float64(r.Ts.Seconds())
	w.RawString(`,"side":`)
	w.String(r.Side.String())
	w.RawString(`,"price":`)
	w.Float64(r.Price)
	w.RawString(`,"size":`)
	w.Int64(r.Size)
	w.RawByte('}')
}

func (r TradeRecord) MarshalJSON() ([]byte, error) {
	return easyjson.Marshal(r)
}
