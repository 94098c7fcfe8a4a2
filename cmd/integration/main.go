package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"bitmex_orderbook/internal/book"
	"bitmex_orderbook/internal/decoder"
	"bitmex_orderbook/internal/domain"
	"bitmex_orderbook/internal/engine"
	"bitmex_orderbook/internal/event"
	"bitmex_orderbook/internal/infra"
	"bitmex_orderbook/internal/infra/bitmex"
	"bitmex_orderbook/internal/recorder"
	"bitmex_orderbook/internal/storage"
	"bitmex_orderbook/pkg/quant"
)

// integration records the BitMEX testnet feed into in-memory stores for a
// fixed duration and checks that the book came alive.
func main() {
	symbol := flag.String("symbol", "XBTUSD", "instrument symbol")
	duration := flag.Duration("for", 20*time.Second, "how long to record")
	secretPath := flag.String("secrets", "secrets/testnet.yaml", "optional BitMEX testnet key file")
	flag.Parse()

	// 1. Setup Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("🚀 Starting BitMEX testnet integration run...")

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// 2. Secrets are optional; the feed is public
	var signer *bitmex.Signer
	if secretCfg, err := infra.LoadSecretConfig(*secretPath); err == nil && secretCfg.API.BitMEX.APIKey != "" {
		signer = bitmex.NewSigner(secretCfg.API.BitMEX.APIKey, secretCfg.API.BitMEX.APISecret, 5*time.Second)
		defer signer.Wipe()
		slog.Info("🔑 Using API key", "path", *secretPath)
	}

	// 3. Instrument
	inst, err := infra.NewInstrumentClient("https://testnet.bitmex.com").Fetch(ctx, *symbol)
	if err != nil {
		slog.Error("❌ Instrument discovery failed", "error", err)
		os.Exit(1)
	}

	// 4. In-memory stores
	audit := storage.NewMemoryAuditStore()
	rec, err := book.NewReconstructor(ctx, book.Params{
		Instrument: inst.Symbol,
		OpenedAt:   quant.Now(),
		Index:      book.IndexParams{MaxPrice: inst.MaxPrice, Granularity: inst.TickSize},
	}, book.Stores{Bids: storage.NewMemoryKeyStore(), Asks: storage.NewMemoryKeyStore(), Audit: audit})
	if err != nil {
		slog.Error("❌ Book init failed", "error", err)
		os.Exit(1)
	}
	quotes, _ := recorder.NewQuoteRecorder(ctx, audit)
	trades, _ := recorder.NewTradeRecorder(ctx, audit)

	q := event.NewQueue()
	worker := bitmex.NewWorker(bitmex.Config{
		URL:             "wss://testnet.bitmex.com/realtime",
		Symbol:          inst.Symbol,
		Signer:          signer,
		PingInterval:    5 * time.Second,
		MaxDialAttempts: 3,
	}, q)
	pipeline := engine.NewPipeline(q, worker, decoder.New(rec, quotes, trades), quotes, trades, engine.DefaultConfig())

	// 5. Record
	worker.Start(ctx)
	defer worker.Stop()
	if err := worker.WaitConnected(ctx); err != nil {
		slog.Error("❌ Feed connect failed", "error", err)
		os.Exit(1)
	}
	pipeline.Run(ctx)

	// 6. Verdict
	st := pipeline.Status()
	bids := rec.Ladder(domain.SideBuy).Resting()
	asks := rec.Ladder(domain.SideSell).Resting()
	slog.Info("Run finished",
		"received", st.Received,
		"processed", st.Processed,
		"malformed", st.Malformed,
		"bid_levels", len(bids),
		"ask_levels", len(asks),
		"quotes", st.Quotes,
		"trades", st.Trades)

	if st.Malformed > 0 || len(bids) == 0 || len(asks) == 0 {
		slog.Error("❌ Integration run failed")
		os.Exit(1)
	}
	slog.Info("🎉 Integration run passed!")
}
