package decoder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mailru/easyjson/jlexer"

	"bitmex_orderbook/internal/domain"
	"bitmex_orderbook/internal/event"
	"bitmex_orderbook/pkg/quant"
)

// wireMessage is the exchange payload inside an envelope:
// {"table": ..., "action": ..., "data": [...]}. Control frames have no table.
type wireMessage struct {
	table    string
	action   string
	hasTable bool
	data     []byte
}

func (m *wireMessage) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "table":
			m.table = in.String()
			m.hasTable = true
		case "action":
			m.action = in.String()
		case "data":
			m.data = in.Raw()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// bookElement is one orderBookL2 row. Presence is tracked per field because
// the required set depends on the action.
type bookElement struct {
	id    int64
	side  string
	size  int64
	price float64

	hasID, hasSide, hasSize, hasPrice bool
}

func (e *bookElement) UnmarshalEasyJSON(in *jlexer.Lexer) {
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "id":
			e.id, e.hasID = in.Int64(), true
		case "side":
			e.side, e.hasSide = in.String(), true
		case "size":
			e.size, e.hasSize = in.Int64(), true
		case "price":
			e.price, e.hasPrice = in.Float64(), true
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

type quoteElement struct {
	timestamp          string
	bidPrice, askPrice float64
	bidSize, askSize   int64

	hasTimestamp, hasBidPrice, hasAskPrice, hasBidSize, hasAskSize bool
}

func (e *quoteElement) UnmarshalEasyJSON(in *jlexer.Lexer) {
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "timestamp":
			e.timestamp, e.hasTimestamp = in.String(), true
		case "bidPrice":
			e.bidPrice, e.hasBidPrice = in.Float64(), true
		case "bidSize":
			e.bidSize, e.hasBidSize = in.Int64(), true
		case "askPrice":
			e.askPrice, e.hasAskPrice = in.Float64(), true
		case "askSize":
			e.askSize, e.hasAskSize = in.Int64(), true
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

type tradeElement struct {
	timestamp string
	side      string
	size      int64
	price     float64

	hasTimestamp, hasSide, hasSize, hasPrice bool
}

func (e *tradeElement) UnmarshalEasyJSON(in *jlexer.Lexer) {
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "timestamp":
			e.timestamp, e.hasTimestamp = in.String(), true
		case "side":
			e.side, e.hasSide = in.String(), true
		case "size":
			e.size, e.hasSize = in.Int64(), true
		case "price":
			e.price, e.hasPrice = in.Float64(), true
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

// eachElement runs fn once per object of a JSON array.
func eachElement(data []byte, fn func(i int, in *jlexer.Lexer) error) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	in := jlexer.Lexer{Data: data}
	in.Delim('[')
	for i := 0; !in.IsDelim(']') && in.Ok(); i++ {
		if err := fn(i, &in); err != nil {
			return err
		}
		in.WantComma()
	}
	in.Delim(']')
	in.Consumed()
	if err := in.Error(); err != nil {
		return fmt.Errorf("data: %w", err)
	}
	return nil
}

func missing(i int, field string) error {
	return fmt.Errorf("element %d: missing %s", i, field)
}

func parseSide(i int, s string) (domain.Side, error) {
	side, ok := domain.ParseSide(s)
	if !ok {
		return 0, fmt.Errorf("element %d: invalid side %q", i, s)
	}
	return side, nil
}

func checkSize(i int, size int64) error {
	if size < 0 {
		return fmt.Errorf("element %d: negative size %d", i, size)
	}
	return nil
}

// parseMessage decodes a whole payload into exactly one event.Message.
// No element is returned unless every element is valid.
func parseMessage(ts quant.TimeStamp, raw []byte) (event.Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty payload")
	}
	// bare strings such as "pong" are keep-alive replies
	if raw[0] == '"' {
		return event.IgnoredMessage{}, nil
	}
	if raw[0] != '{' {
		return nil, fmt.Errorf("unexpected payload starting with %q", raw[0])
	}

	var wire wireMessage
	in := jlexer.Lexer{Data: raw}
	wire.UnmarshalEasyJSON(&in)
	if err := in.Error(); err != nil {
		return nil, err
	}

	// info/success/error/subscribe frames carry no table
	if !wire.hasTable {
		return event.IgnoredMessage{}, nil
	}

	switch event.ParseTable(wire.table) {
	case event.TableOrderBookL2:
		action := event.ParseAction(wire.action)
		switch action {
		case event.ActionPartial, event.ActionInsert, event.ActionUpdate, event.ActionDelete:
			ops, err := parseBook(ts, action, wire.data)
			if err != nil {
				return nil, err
			}
			return event.BookMessage{Action: action, Ops: ops}, nil
		default:
			return event.IgnoredMessage{RawTable: wire.table, RawAction: wire.action}, nil
		}
	case event.TableQuote:
		ticks, err := parseQuotes(wire.data)
		if err != nil {
			return nil, err
		}
		return event.QuoteMessage{Ticks: ticks}, nil
	case event.TableTrade:
		trades, err := parseTrades(wire.data)
		if err != nil {
			return nil, err
		}
		return event.TradeMessage{Trades: trades}, nil
	default:
		return event.IgnoredMessage{RawTable: wire.table, RawAction: wire.action}, nil
	}
}

// parseBook stamps every op with the envelope arrival time. A partial image
// seeds the book and decodes like a batch of inserts.
func parseBook(ts quant.TimeStamp, action event.Action, data []byte) ([]domain.DeltaOp, error) {
	var ops []domain.DeltaOp
	err := eachElement(data, func(i int, in *jlexer.Lexer) error {
		var el bookElement
		el.UnmarshalEasyJSON(in)
		if err := in.Error(); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}

		if !el.hasSide {
			return missing(i, "side")
		}
		side, err := parseSide(i, el.side)
		if err != nil {
			return err
		}

		switch action {
		case event.ActionPartial, event.ActionInsert:
			if !el.hasPrice {
				return missing(i, "price")
			}
			if !el.hasSize {
				return missing(i, "size")
			}
			if err := checkSize(i, el.size); err != nil {
				return err
			}
			ops = append(ops, domain.NewInsert(ts, side, el.price, el.size))
		case event.ActionUpdate:
			if !el.hasID {
				return missing(i, "id")
			}
			if !el.hasSize {
				return missing(i, "size")
			}
			if err := checkSize(i, el.size); err != nil {
				return err
			}
			ops = append(ops, domain.NewUpdate(ts, side, el.id, el.size))
		case event.ActionDelete:
			if !el.hasID {
				return missing(i, "id")
			}
			ops = append(ops, domain.NewDelete(ts, side, el.id))
		}
		return nil
	})
	return ops, err
}

func parseQuotes(data []byte) ([]domain.QuoteTick, error) {
	var ticks []domain.QuoteTick
	err := eachElement(data, func(i int, in *jlexer.Lexer) error {
		var el quoteElement
		el.UnmarshalEasyJSON(in)
		if err := in.Error(); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}

		switch {
		case !el.hasTimestamp:
			return missing(i, "timestamp")
		case !el.hasBidPrice:
			return missing(i, "bidPrice")
		case !el.hasBidSize:
			return missing(i, "bidSize")
		case !el.hasAskPrice:
			return missing(i, "askPrice")
		case !el.hasAskSize:
			return missing(i, "askSize")
		}

		ts, err := quant.ParseExchangeTime(el.timestamp)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		ticks = append(ticks, domain.NewQuoteTick(ts, el.bidPrice, el.bidSize, el.askPrice, el.askSize))
		return nil
	})
	return ticks, err
}

func parseTrades(data []byte) ([]domain.TradeEvent, error) {
	var trades []domain.TradeEvent
	err := eachElement(data, func(i int, in *jlexer.Lexer) error {
		var el tradeElement
		el.UnmarshalEasyJSON(in)
		if err := in.Error(); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}

		switch {
		case !el.hasTimestamp:
			return missing(i, "timestamp")
		case !el.hasSide:
			return missing(i, "side")
		case !el.hasSize:
			return missing(i, "size")
		case !el.hasPrice:
			return missing(i, "price")
		}

		side, err := parseSide(i, el.side)
		if err != nil {
			return err
		}
		if err := checkSize(i, el.size); err != nil {
			return err
		}
		ts, err := quant.ParseExchangeTime(el.timestamp)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		trades = append(trades, domain.TradeEvent{Ts: ts, Side: side, Price: el.price, Size: el.size})
		return nil
	})
	return trades, err
}
