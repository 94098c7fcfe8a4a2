package domain

// Side is the book side an event refers to.
type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

// ParseSide maps the exchange's "Buy"/"Sell" strings to a Side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "Buy":
		return SideBuy, true
	case "Sell":
		return SideSell, true
	default:
		return 0, false
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "UNKNOWN"
	}
}

// MarshalText keeps the exchange spelling in JSON output.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
