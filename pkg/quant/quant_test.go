package quant

import (
	"testing"
	"time"
)

func TestParseExchangeTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01T00:00:00.000Z", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-01-01T00:00:00.123Z", time.Date(2024, 1, 1, 0, 0, 0, 123_000_000, time.UTC)},
		{"2019-06-11T08:15:30.5Z", time.Date(2019, 6, 11, 8, 15, 30, 500_000_000, time.UTC)},
		{"2019-06-11T08:15:30Z", time.Date(2019, 6, 11, 8, 15, 30, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := ParseExchangeTime(tt.in)
		if err != nil {
			t.Fatalf("ParseExchangeTime(%q) failed: %v", tt.in, err)
		}
		if !got.Time().Equal(tt.want) {
			t.Errorf("ParseExchangeTime(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseExchangeTime_Invalid(t *testing.T) {
	for _, in := range []string{"", "2024-01-01", "2024-01-01T00:00:00.000+09:00", "yesterday"} {
		if _, err := ParseExchangeTime(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestFromUnixSeconds(t *testing.T) {
	ts := FromUnixSeconds(1000.0)
	if ts != 1_000_000_000 {
		t.Errorf("expected 1e9 micros, got %d", ts)
	}
	if ts.Seconds() != 1000.0 {
		t.Errorf("expected 1000.0 seconds, got %f", ts.Seconds())
	}

	frac := FromUnixSeconds(1560240930.123456)
	if frac != 1560240930123456 {
		t.Errorf("fractional seconds lost: got %d", frac)
	}
}

func TestNextSeq(t *testing.T) {
	var seq uint64
	if NextSeq(&seq) != 1 || NextSeq(&seq) != 2 {
		t.Error("NextSeq should increment from zero")
	}
}
