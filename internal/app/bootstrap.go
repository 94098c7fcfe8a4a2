package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
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

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

// Bootstrap orchestrates the recorder startup sequence and owns every resource
// it opens.
type Bootstrap struct {
	// WorkDir overrides the OS workspace directory when set.
	WorkDir string

	Config *infra.Config
	RunID  string
	Dirs   infra.Dirs

	Book      *book.Reconstructor
	Quotes    *recorder.QuoteRecorder
	Trades    *recorder.TradeRecorder
	Decoder   *decoder.Decoder
	Queue     *event.Queue
	Worker    *bitmex.Worker
	Pipeline  *engine.Pipeline
	Snapshots *storage.SnapshotManager

	keyBreaker   *infra.CircuitBreaker
	auditBreaker *infra.CircuitBreaker
	closers      []func() error
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the config file and builds the recorder.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err // Let main handle the error
	}
	return b.Build(ctx, cfg)
}

// Build wires every component from cfg. On error the resources opened so far
// are released.
func (b *Bootstrap) Build(ctx context.Context, cfg *infra.Config) (err error) {
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	b.Config = cfg
	b.RunID = uuid.NewString()

	logger := infra.NewLogger(cfg).With(slog.String("run_id", b.RunID))
	slog.SetDefault(logger)
	slog.Info("🚀 Bootstrapping order book recorder...",
		slog.String("symbol", cfg.Feed.Symbol),
		slog.String("version", cfg.App.Version))

	// 0. Runtime warmup
	event.Warmup()

	// 1. Workspace
	root := b.WorkDir
	if root == "" {
		root = infra.GetWorkspaceDir()
	}
	b.Dirs = infra.ResolveDirs(root)
	if err := b.Dirs.Ensure(); err != nil {
		return err
	}

	// 1.1 Singleton instance lock
	unlock, err := infra.CreateLockFile(b.Dirs.Root)
	if err != nil {
		return err
	}
	b.onClose(func() error { unlock(); return nil })

	// 2. Stores
	bids, asks, err := b.openKeyStores()
	if err != nil {
		return err
	}
	audit, err := b.openAuditStore(ctx)
	if err != nil {
		return err
	}

	// 3. Instrument
	inst, err := b.resolveInstrument(ctx)
	if err != nil {
		return err
	}

	// 4. Core
	b.Book, err = book.NewReconstructor(ctx, book.Params{
		Instrument: inst.Symbol,
		OpenedAt:   quant.Now(),
		Index: book.IndexParams{
			MaxPrice:    inst.MaxPrice,
			Granularity: inst.TickSize,
			ReferenceID: cfg.Book.ReferenceID,
			IDScale:     cfg.Book.IDScale,
		},
	}, book.Stores{Bids: bids, Asks: asks, Audit: audit})
	if err != nil {
		return err
	}

	if b.Quotes, err = recorder.NewQuoteRecorder(ctx, audit); err != nil {
		return err
	}
	if b.Trades, err = recorder.NewTradeRecorder(ctx, audit); err != nil {
		return err
	}
	b.Decoder = decoder.New(b.Book, b.Quotes, b.Trades)

	// 5. Feed
	b.Queue = event.NewQueue()

	var signer *bitmex.Signer
	if cfg.Feed.APIKey != "" {
		signer = bitmex.NewSigner(cfg.Feed.APIKey, cfg.Feed.APISecret, 5*time.Second)
		b.onClose(func() error { signer.Wipe(); return nil })
	}
	b.Worker = bitmex.NewWorker(bitmex.Config{
		URL:             cfg.Feed.WSURL,
		Symbol:          cfg.Feed.Symbol,
		Signer:          signer,
		PingInterval:    cfg.PingInterval(),
		ReadTimeout:     cfg.ReadTimeout(),
		DialTimeout:     cfg.DialTimeout(),
		MaxDialAttempts: cfg.Feed.MaxDialAttempts,
	}, b.Queue)

	// 6. Pipeline
	b.Pipeline = engine.NewPipeline(b.Queue, b.Worker, b.Decoder, b.Quotes, b.Trades, engine.Config{
		ReportEvery: uint64(cfg.Pipeline.ReportEvery),
		PollTimeout: cfg.PollTimeout(),
		DumpDir:     b.Dirs.Dumps,
	})
	b.Snapshots = storage.NewSnapshotManager(b.Dirs.Snapshots)

	slog.Info("✅ Recorder ready",
		slog.String("instrument", inst.Symbol),
		slog.Int("levels", b.Book.Index().Levels()),
		slog.String("audit", cfg.Storage.AuditBackend))
	return nil
}

func (b *Bootstrap) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

func (b *Bootstrap) openKeyStores() (storage.KeyStore, storage.KeyStore, error) {
	dir := filepath.Join(b.Dirs.Data, b.Config.Storage.PebbleDir)
	db, err := storage.OpenPebble(dir, &pebble.Options{})
	if err != nil {
		return nil, nil, err
	}
	b.onClose(db.Close)
	slog.Info("✅ Key store opened (pebble)", slog.String("path", dir))

	b.keyBreaker = infra.NewCircuitBreaker(b.Config.BreakerConfig("keys"))
	bids := storage.GuardKeys(storage.NewPebbleKeyStore(db, "bids"), b.keyBreaker)
	asks := storage.GuardKeys(storage.NewPebbleKeyStore(db, "asks"), b.keyBreaker)
	return bids, asks, nil
}

func (b *Bootstrap) openAuditStore(ctx context.Context) (storage.AuditStore, error) {
	cfg := b.Config

	var store storage.AuditStore
	switch cfg.Storage.AuditBackend {
	case infra.AuditBackendSQLite:
		dbPath := filepath.Join(b.Dirs.Data, cfg.Storage.SQLiteFile)
		s, err := storage.NewSQLiteAuditStore(dbPath)
		if err != nil {
			return nil, err
		}
		b.onClose(s.Close)

		now := time.Now().Unix()
		if err := s.UpsertMetadata(ctx, "run_id", b.RunID, now); err != nil {
			return nil, err
		}
		if err := s.UpsertMetadata(ctx, "symbol", cfg.Feed.Symbol, now); err != nil {
			return nil, err
		}
		slog.Info("✅ Audit store opened (sqlite, WAL-mode)", slog.String("path", dbPath))
		store = s

	case infra.AuditBackendKafka:
		s, err := storage.NewKafkaAuditStore(storage.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			TopicPrefix:  cfg.Kafka.TopicPrefix,
			BatchTimeout: time.Duration(cfg.Kafka.BatchTimeoutMS) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		b.onClose(s.Close)
		slog.Info("✅ Audit store opened (kafka)", slog.Any("brokers", cfg.Kafka.Brokers))
		store = s

	case infra.AuditBackendMemory:
		slog.Warn("Audit records are kept in memory only")
		store = storage.NewMemoryAuditStore()

	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Storage.AuditBackend)
	}

	b.auditBreaker = infra.NewCircuitBreaker(cfg.BreakerConfig("audit"))
	return storage.GuardAudit(store, b.auditBreaker), nil
}

func (b *Bootstrap) resolveInstrument(ctx context.Context) (domain.Instrument, error) {
	cfg := b.Config
	if cfg.Book.AutoDiscover {
		return infra.NewInstrumentClient(cfg.Feed.RestURL).Fetch(ctx, cfg.Feed.Symbol)
	}

	maxPrice, err := cfg.BookMaxPrice()
	if err != nil {
		return domain.Instrument{}, err
	}
	gran, err := cfg.BookGranularity()
	if err != nil {
		return domain.Instrument{}, err
	}
	return domain.Instrument{Symbol: cfg.Feed.Symbol, TickSize: gran, MaxPrice: maxPrice}, nil
}

// Run connects the feed and drains it until disconnect or ctx is done, then
// writes a book snapshot.
func (b *Bootstrap) Run(ctx context.Context) error {
	b.Worker.Start(ctx)
	defer b.Worker.Stop()

	if err := b.Worker.WaitConnected(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("feed connect: %w", err)
	}

	if err := b.Pipeline.Run(ctx); err != nil {
		return err
	}

	b.finish()
	if err := b.Worker.Err(); err != nil && ctx.Err() == nil {
		slog.Warn("Feed ended", slog.Any("error", err))
	}
	return nil
}

func (b *Bootstrap) finish() {
	st := b.Pipeline.Status()
	bs := b.Book.Stats()
	slog.Info("Final status",
		slog.Uint64("received", st.Received),
		slog.Uint64("processed", st.Processed),
		slog.Uint64("backlog", st.Backlog),
		slog.Uint64("malformed", st.Malformed),
		slog.Uint64("book_ops", bs.Applied),
		slog.Uint64("out_of_range", bs.Bids.OutOfRange+bs.Asks.OutOfRange),
		slog.Uint64("anomalies", bs.Bids.Anomalies+bs.Asks.Anomalies),
		slog.Uint64("persist_failures", st.Failures))

	for name, cb := range map[string]*infra.CircuitBreaker{"keys": b.keyBreaker, "audit": b.auditBreaker} {
		if cb == nil {
			continue
		}
		s := cb.Stats()
		if s.Trips > 0 {
			slog.Warn("Store breaker tripped during run",
				slog.String("store", name),
				slog.Uint64("trips", s.Trips),
				slog.Uint64("rejected", s.Rejected),
				slog.String("state", s.State.String()))
		}
	}

	if _, err := b.Snapshots.Save(b.Book.Snapshot(st.Processed)); err != nil {
		slog.Error("Book snapshot failed", slog.Any("error", err))
		return
	}
	if err := b.Snapshots.Cleanup(b.Config.Storage.SnapshotKeep); err != nil {
		slog.Warn("Snapshot cleanup failed", slog.Any("error", err))
	}
}

// Close releases every resource in reverse order of acquisition.
func (b *Bootstrap) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
