package domain

import "bitmex_orderbook/pkg/quant"

// QuoteTick is a top-of-book quote as published by the exchange.
// Spread is derived at construction and may be negative for crossed quotes.
type QuoteTick struct {
	Ts       quant.TimeStamp
	BidPrice float64
	BidSize  int64
	AskPrice float64
	AskSize  int64
	Spread   float64
}

func NewQuoteTick(ts quant.TimeStamp, bidPrice float64, bidSize int64, askPrice float64, askSize int64) QuoteTick {
	return QuoteTick{
		Ts:       ts,
		BidPrice: bidPrice,
		BidSize:  bidSize,
		AskPrice: askPrice,
		AskSize:  askSize,
		Spread:   askPrice - bidPrice,
	}
}

// TradeEvent is one executed trade.
type TradeEvent struct {
	Ts    quant.TimeStamp
	Side  Side
	Price float64
	Size  int64
}
