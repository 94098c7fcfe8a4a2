package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bitmex_orderbook/internal/domain"
	"bitmex_orderbook/internal/infra"
	"bitmex_orderbook/internal/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, body string) *infra.Config {
	t.Helper()
	t.Setenv("BITMEX_API_KEY", "")
	t.Setenv("BITMEX_API_SECRET", "")
	t.Setenv("BITMEX_WS_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := infra.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func configFor(wsURL, backend string) string {
	return fmt.Sprintf(`
app:
  version: test
feed:
  ws_url: %s
  symbol: XBTUSD
  max_dial_attempts: 1
book:
  max_price: "1000"
  granularity: "0.5"
storage:
  audit_backend: %s
pipeline:
  report_every: 2
  poll_timeout_ms: 5
logging:
  level: warn
`, wsURL, backend)
}

func mockFeed(t *testing.T, frames []string) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// give the consumer time to drain before the stream ends
		time.Sleep(300 * time.Millisecond)
	}))
}

func toWS(u string) string { return strings.Replace(u, "http://", "ws://", 1) + "/realtime" }

func TestBootstrap_RunRecordsFeed(t *testing.T) {
	frames := []string{
		`{"info":"Welcome to the BitMEX Realtime API."}`,
		`{"table":"orderBookL2","action":"partial","data":[{"symbol":"XBTUSD","id":8799999900,"side":"Buy","size":5,"price":1.0},{"symbol":"XBTUSD","id":8799999800,"side":"Sell","size":7,"price":2.0}]}`,
		`{"table":"orderBookL2","action":"update","data":[{"symbol":"XBTUSD","id":8799999900,"side":"Buy","size":9}]}`,
		`{"table":"quote","action":"insert","data":[{"timestamp":"2019-01-01T00:00:00.500Z","symbol":"XBTUSD","bidPrice":1,"bidSize":9,"askPrice":2,"askSize":7}]}`,
		`{"table":"trade","action":"insert","data":[{"timestamp":"2019-01-01T00:00:01.000Z","symbol":"XBTUSD","side":"Sell","size":3,"price":1.5}]}`,
		`{"table":"orderBookL2","action":"delete","data":[{"symbol":"XBTUSD","id":8799999800,"side":"Sell"}]}`,
	}
	server := mockFeed(t, frames)
	defer server.Close()

	b := NewBootstrap()
	b.WorkDir = t.TempDir()
	require.NoError(t, b.Build(context.Background(), loadConfig(t, configFor(toWS(server.URL), "memory"))))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Run(ctx))

	st := b.Pipeline.Status()
	require.Equal(t, uint64(len(frames)), st.Received)
	require.Equal(t, uint64(len(frames)), st.Processed)
	require.Zero(t, st.Malformed)
	require.Equal(t, uint64(1), st.Quotes)
	require.Equal(t, uint64(1), st.Trades)

	require.Equal(t, int64(9), b.Book.SizeAt(domain.SideBuy, 1.0))
	require.Equal(t, int64(0), b.Book.SizeAt(domain.SideSell, 2.0))

	snaps, err := filepath.Glob(filepath.Join(b.Dirs.Snapshots, "book_*.json"))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}

func TestBootstrap_SQLiteRecordsRunID(t *testing.T) {
	b := NewBootstrap()
	b.WorkDir = t.TempDir()
	require.NoError(t, b.Build(context.Background(), loadConfig(t, configFor("ws://127.0.0.1:1/realtime", "sqlite"))))
	runID := b.RunID
	dbPath := filepath.Join(b.Dirs.Data, b.Config.Storage.SQLiteFile)
	require.NoError(t, b.Close())

	store, err := storage.NewSQLiteAuditStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetMetadata(context.Background(), "run_id")
	require.NoError(t, err)
	require.Equal(t, runID, got)
}

func TestBootstrap_SecondInstanceLocked(t *testing.T) {
	dir := t.TempDir()

	first := NewBootstrap()
	first.WorkDir = dir
	require.NoError(t, first.Build(context.Background(), loadConfig(t, configFor("ws://127.0.0.1:1/realtime", "memory"))))
	defer first.Close()

	second := NewBootstrap()
	second.WorkDir = dir
	err := second.Build(context.Background(), loadConfig(t, configFor("ws://127.0.0.1:1/realtime", "memory")))
	require.ErrorContains(t, err, "already running")
}

func TestBootstrap_AutoDiscoverInstrument(t *testing.T) {
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"XBTUSD","state":"Open","tickSize":0.5,"maxPrice":500}]`))
	}))
	defer rest.Close()

	body := fmt.Sprintf(`
feed:
  symbol: XBTUSD
  rest_url: %s
book:
  auto_discover: true
storage:
  audit_backend: memory
logging:
  level: warn
`, rest.URL)

	b := NewBootstrap()
	b.WorkDir = t.TempDir()
	require.NoError(t, b.Build(context.Background(), loadConfig(t, body)))
	defer b.Close()

	require.Equal(t, 1000, b.Book.Index().Levels())
	require.Equal(t, "XBTUSD", b.Book.Instrument())
}

func TestBootstrap_RunFailsWhenFeedUnreachable(t *testing.T) {
	b := NewBootstrap()
	b.WorkDir = t.TempDir()
	require.NoError(t, b.Build(context.Background(), loadConfig(t, configFor("ws://127.0.0.1:1/realtime", "memory"))))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.ErrorContains(t, b.Run(ctx), "feed connect")
}
