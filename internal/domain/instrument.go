package domain

import "github.com/shopspring/decimal"

// Instrument holds the contract metadata the ladder is sized from.
type Instrument struct {
	Symbol   string
	TickSize decimal.Decimal
	MaxPrice decimal.Decimal
}
