package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bitmex_orderbook/internal/domain"
)

// ErrInstrumentNotFound is returned when the exchange knows no such symbol.
var ErrInstrumentNotFound = errors.New("instrument not found")

// instrumentResponse is one element of GET /api/v1/instrument.
type instrumentResponse struct {
	Symbol   string           `json:"symbol"`
	State    string           `json:"state"`
	TickSize *decimal.Decimal `json:"tickSize"`
	MaxPrice *decimal.Decimal `json:"maxPrice"`
}

// InstrumentClient fetches contract metadata from the BitMEX REST API.
type InstrumentClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	attempts   int
	backoff    Backoff
}

// NewInstrumentClient creates a client against baseURL (e.g. https://www.bitmex.com).
func NewInstrumentClient(baseURL string) *InstrumentClient {
	return &InstrumentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter:  NewBitMEXRESTLimiter(),
		attempts: 3,
		backoff:  Backoff{Base: time.Second, Max: 4 * time.Second},
	}
}

// Fetch returns tick size and max price for symbol, retrying transient failures.
func (c *InstrumentClient) Fetch(ctx context.Context, symbol string) (domain.Instrument, error) {
	var lastErr error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			delay := c.backoff.Delay(i - 1)
			slog.Info("Retrying instrument fetch", slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return domain.Instrument{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		inst, err := c.doFetch(ctx, symbol)
		if err == nil {
			return inst, nil
		}
		// a missing symbol will not appear on retry
		if errors.Is(err, ErrInstrumentNotFound) {
			return domain.Instrument{}, err
		}
		lastErr = err
		slog.Warn("Instrument fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
	}
	return domain.Instrument{}, fmt.Errorf("fetch instrument %s: %w", symbol, lastErr)
}

func (c *InstrumentClient) doFetch(ctx context.Context, symbol string) (domain.Instrument, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Instrument{}, err
	}

	endpoint := c.baseURL + "/api/v1/instrument?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Instrument{}, err
	}
	req.Header.Set("User-Agent", GetUserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Instrument{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Instrument{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Instrument{}, err
	}

	var data []instrumentResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return domain.Instrument{}, err
	}

	for _, d := range data {
		if d.Symbol != symbol {
			continue
		}
		if d.TickSize == nil || d.MaxPrice == nil {
			return domain.Instrument{}, fmt.Errorf("instrument %s lacks tickSize or maxPrice", symbol)
		}
		inst := domain.Instrument{Symbol: d.Symbol, TickSize: *d.TickSize, MaxPrice: *d.MaxPrice}
		slog.Info("Instrument discovered",
			slog.String("symbol", inst.Symbol),
			slog.String("state", d.State),
			slog.String("tick_size", inst.TickSize.String()),
			slog.String("max_price", inst.MaxPrice.String()),
		)
		return inst, nil
	}

	return domain.Instrument{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, symbol)
}
