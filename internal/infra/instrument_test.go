package infra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestInstrumentClient(url string) *InstrumentClient {
	c := NewInstrumentClient(url)
	c.limiter = NewRateLimiter(100, 1000)
	c.backoff = Backoff{Base: time.Millisecond, Max: time.Millisecond}
	return c
}

func TestInstrumentClient_Fetch(t *testing.T) {
	var gotUA, gotSymbol string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/instrument" {
			http.NotFound(w, r)
			return
		}
		gotUA = r.Header.Get("User-Agent")
		gotSymbol = r.URL.Query().Get("symbol")
		w.Write([]byte(`[{"symbol":"XBTUSD","state":"Open","tickSize":0.5,"maxPrice":1000000}]`))
	}))
	defer server.Close()

	inst, err := newTestInstrumentClient(server.URL + "/").Fetch(context.Background(), "XBTUSD")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotSymbol != "XBTUSD" {
		t.Errorf("expected symbol query XBTUSD, got %q", gotSymbol)
	}
	if gotUA != GetUserAgent() {
		t.Errorf("expected user agent %q, got %q", GetUserAgent(), gotUA)
	}
	if inst.TickSize.String() != "0.5" || inst.MaxPrice.String() != "1000000" {
		t.Errorf("unexpected instrument %+v", inst)
	}
}

func TestInstrumentClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"symbol":"ETHUSD","tickSize":0.05,"maxPrice":100000}]`))
	}))
	defer server.Close()

	inst, err := newTestInstrumentClient(server.URL).Fetch(context.Background(), "ETHUSD")
	if err != nil {
		t.Fatalf("Fetch failed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if inst.TickSize.String() != "0.05" {
		t.Errorf("unexpected tick size %s", inst.TickSize)
	}
}

func TestInstrumentClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestInstrumentClient(server.URL).Fetch(context.Background(), "XBTUSD")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestInstrumentClient_UnknownSymbol(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := newTestInstrumentClient(server.URL).Fetch(context.Background(), "NOPE")
	if !errors.Is(err, ErrInstrumentNotFound) {
		t.Fatalf("expected ErrInstrumentNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("unknown symbol should not be retried, got %d calls", calls.Load())
	}
}

func TestInstrumentClient_MissingFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"XBTUSD"}]`))
	}))
	defer server.Close()

	if _, err := newTestInstrumentClient(server.URL).Fetch(context.Background(), "XBTUSD"); err == nil {
		t.Error("expected error for instrument without tickSize")
	}
}
