package event

import (
	"bitmex_orderbook/internal/domain"
)

// Table is the closed set of feed tables the decoder understands.
type Table uint8

const (
	TableUnknown Table = iota
	TableOrderBookL2
	TableQuote
	TableTrade
	TableInstrument
)

// ParseTable maps the wire "table" discriminator. Anything else is TableUnknown.
func ParseTable(s string) Table {
	switch s {
	case "orderBookL2":
		return TableOrderBookL2
	case "quote":
		return TableQuote
	case "trade":
		return TableTrade
	case "instrument":
		return TableInstrument
	default:
		return TableUnknown
	}
}

func (t Table) String() string {
	switch t {
	case TableOrderBookL2:
		return "orderBookL2"
	case TableQuote:
		return "quote"
	case TableTrade:
		return "trade"
	case TableInstrument:
		return "instrument"
	default:
		return "unknown"
	}
}

// Action is the closed set of table actions.
type Action uint8

const (
	ActionNone Action = iota
	ActionPartial
	ActionInsert
	ActionUpdate
	ActionDelete
	ActionUnknown
)

// ParseAction maps the wire "action" discriminator. An empty string is ActionNone.
func ParseAction(s string) Action {
	switch s {
	case "":
		return ActionNone
	case "partial":
		return ActionPartial
	case "insert":
		return ActionInsert
	case "update":
		return ActionUpdate
	case "delete":
		return ActionDelete
	default:
		return ActionUnknown
	}
}

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionPartial:
		return "partial"
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Message is a fully decoded envelope payload. The concrete types below are the
// only implementations; consumers switch over them exhaustively.
type Message interface {
	Table() Table
}

// BookMessage carries orderBookL2 deltas in arrival order.
type BookMessage struct {
	Action Action
	Ops    []domain.DeltaOp
}

func (BookMessage) Table() Table { return TableOrderBookL2 }

// QuoteMessage carries decoded quote ticks.
type QuoteMessage struct {
	Ticks []domain.QuoteTick
}

func (QuoteMessage) Table() Table { return TableQuote }

// TradeMessage carries decoded trades.
type TradeMessage struct {
	Trades []domain.TradeEvent
}

func (TradeMessage) Table() Table { return TableTrade }

// IgnoredMessage is a well-formed payload with no consumer (control frames,
// instrument updates, unhandled actions).
type IgnoredMessage struct {
	RawTable  string
	RawAction string
}

func (m IgnoredMessage) Table() Table { return ParseTable(m.RawTable) }
