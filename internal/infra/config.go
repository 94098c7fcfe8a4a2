package infra

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	// currentUserAgent is protected by a mutex so callers may override it at runtime
	uaMu             sync.RWMutex
	currentUserAgent = GetPlatformUserAgent() // Initialize with OS-appropriate string
)

// GetUserAgent returns the current active User-Agent string. (Thread-safe)
func GetUserAgent() string {
	uaMu.RLock()
	defer uaMu.RUnlock()
	return currentUserAgent
}

// SetUserAgent updates the global User-Agent string. (Thread-safe)
func SetUserAgent(ua string) {
	uaMu.Lock()
	defer uaMu.Unlock()
	currentUserAgent = ua
}

// GetPlatformUserAgent identifies the recorder and the host platform.
func GetPlatformUserAgent() string {
	return fmt.Sprintf("%s/1.0 (%s; %s)", AppName, runtime.GOOS, runtime.GOARCH)
}

// Audit backends.
const (
	AuditBackendSQLite = "sqlite"
	AuditBackendKafka  = "kafka"
	AuditBackendMemory = "memory"
)

// Config holds every setting of the recorder.
// LoadConfig applies defaults, then environment overrides for secrets.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		WSURL           string `yaml:"ws_url"`
		RestURL         string `yaml:"rest_url"`
		Symbol          string `yaml:"symbol"`
		APIKey          string `yaml:"api_key"`
		APISecret       string `yaml:"api_secret"`
		DialTimeoutSec  int    `yaml:"dial_timeout_sec"`
		MaxDialAttempts int    `yaml:"max_dial_attempts"`
		PingIntervalSec int    `yaml:"ping_interval_sec"`
		ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	} `yaml:"feed"`

	Book struct {
		MaxPrice     string `yaml:"max_price"`
		Granularity  string `yaml:"granularity"`
		ReferenceID  int64  `yaml:"reference_id"`
		IDScale      int64  `yaml:"id_scale"`
		AutoDiscover bool   `yaml:"auto_discover"`
	} `yaml:"book"`

	Storage struct {
		AuditBackend string `yaml:"audit_backend"`
		SQLiteFile   string `yaml:"sqlite_file"`
		PebbleDir    string `yaml:"pebble_dir"`
		SnapshotKeep int    `yaml:"snapshot_keep"`
		Breaker      struct {
			FailureThreshold int `yaml:"failure_threshold"`
			SuccessThreshold int `yaml:"success_threshold"`
			TimeoutSec       int `yaml:"timeout_sec"`
		} `yaml:"breaker"`
	} `yaml:"storage"`

	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		TopicPrefix    string   `yaml:"topic_prefix"`
		BatchTimeoutMS int      `yaml:"batch_timeout_ms"`
	} `yaml:"kafka"`

	Pipeline struct {
		ReportEvery   int `yaml:"report_every"`
		PollTimeoutMS int `yaml:"poll_timeout_ms"`
	} `yaml:"pipeline"`

	Health struct {
		Addr string `yaml:"addr"` // empty disables the gRPC health server
	} `yaml:"health"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text | json
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	// environment wins over the file for secrets
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = AppName
	}
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = "wss://www.bitmex.com/realtime"
	}
	if c.Feed.RestURL == "" {
		c.Feed.RestURL = "https://www.bitmex.com"
	}
	if c.Feed.Symbol == "" {
		c.Feed.Symbol = "XBTUSD"
	}
	if c.Feed.DialTimeoutSec == 0 {
		c.Feed.DialTimeoutSec = 5
	}
	if c.Feed.MaxDialAttempts == 0 {
		c.Feed.MaxDialAttempts = 5
	}
	if c.Feed.PingIntervalSec == 0 {
		c.Feed.PingIntervalSec = 5
	}
	if c.Feed.ReadTimeoutSec == 0 {
		c.Feed.ReadTimeoutSec = 60
	}
	if c.Storage.AuditBackend == "" {
		c.Storage.AuditBackend = AuditBackendSQLite
	}
	if c.Storage.SQLiteFile == "" {
		c.Storage.SQLiteFile = "audit.db"
	}
	if c.Storage.PebbleDir == "" {
		c.Storage.PebbleDir = "book"
	}
	if c.Storage.SnapshotKeep == 0 {
		c.Storage.SnapshotKeep = 5
	}
	if c.Storage.Breaker.FailureThreshold == 0 {
		c.Storage.Breaker.FailureThreshold = 5
	}
	if c.Storage.Breaker.SuccessThreshold == 0 {
		c.Storage.Breaker.SuccessThreshold = 2
	}
	if c.Storage.Breaker.TimeoutSec == 0 {
		c.Storage.Breaker.TimeoutSec = 30
	}
	if c.Kafka.TopicPrefix == "" {
		c.Kafka.TopicPrefix = "bitmex."
	}
	if c.Pipeline.ReportEvery == 0 {
		c.Pipeline.ReportEvery = 100
	}
	if c.Pipeline.PollTimeoutMS == 0 {
		c.Pipeline.PollTimeoutMS = 100
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !hasPrefix(c.Feed.WSURL, "ws://") && !hasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
	}
	if c.Feed.Symbol == "" {
		return fmt.Errorf("feed symbol is required")
	}
	if (c.Feed.APIKey == "") != (c.Feed.APISecret == "") {
		return fmt.Errorf("api key and api secret must be set together")
	}

	if c.Book.AutoDiscover {
		if !hasPrefix(c.Feed.RestURL, "http://") && !hasPrefix(c.Feed.RestURL, "https://") {
			return fmt.Errorf("auto_discover needs a valid REST URL, got %q", c.Feed.RestURL)
		}
	} else {
		if _, err := c.BookMaxPrice(); err != nil {
			return err
		}
		if _, err := c.BookGranularity(); err != nil {
			return err
		}
	}

	switch c.Storage.AuditBackend {
	case AuditBackendSQLite, AuditBackendMemory:
	case AuditBackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka audit backend needs at least one broker")
		}
	default:
		return fmt.Errorf("unknown audit backend %q", c.Storage.AuditBackend)
	}

	if c.Pipeline.ReportEvery <= 0 {
		return fmt.Errorf("report interval must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}

func parsePositive(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s must be positive, got %s", name, s)
	}
	return d, nil
}

// BookMaxPrice is the exclusive upper bound of tracked prices.
func (c *Config) BookMaxPrice() (decimal.Decimal, error) {
	return parsePositive("book.max_price", c.Book.MaxPrice)
}

// BookGranularity is the price increment of one ladder slot.
func (c *Config) BookGranularity() (decimal.Decimal, error) {
	return parsePositive("book.granularity", c.Book.Granularity)
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Feed.DialTimeoutSec) * time.Second
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Feed.PingIntervalSec) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Feed.ReadTimeoutSec) * time.Second
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Pipeline.PollTimeoutMS) * time.Millisecond
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv lets environment variables replace file values.
func overrideWithEnv(cfg *Config) {
	if cfg.Feed.APISecret != "" {
		// Using fmt instead of slog: the logger is configured from this file
		fmt.Println("⚠️  SECURITY WARNING: API secret found in config file.")
		fmt.Println("   Recommendation: Use environment variables instead:")
		fmt.Println("   - BITMEX_API_KEY, BITMEX_API_SECRET")
	}

	if key := os.Getenv("BITMEX_API_KEY"); key != "" {
		cfg.Feed.APIKey = key
	}
	if secret := os.Getenv("BITMEX_API_SECRET"); secret != "" {
		cfg.Feed.APISecret = secret
	}
	if url := os.Getenv("BITMEX_WS_URL"); url != "" {
		cfg.Feed.WSURL = url
	}
}
