package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/mailru/easyjson"

	"bitmex_orderbook/internal/domain"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteAuditStore is the default append-only audit store. Each collection is a
// table of (id, ts, payload) rows; payload is the record's JSON form.
type SQLiteAuditStore struct {
	db *sql.DB

	mu      sync.Mutex
	created map[string]struct{}
}

// StoredRecord is one row read back from a collection.
type StoredRecord struct {
	ID      int64
	Ts      int64
	Payload []byte
}

// NewSQLiteAuditStore opens (or creates) the audit database with WAL mode enabled.
func NewSQLiteAuditStore(dbPath string) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Single writer; keeps :memory: and file databases behaving the same.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	return &SQLiteAuditStore{db: db, created: make(map[string]struct{})}, nil
}

func (s *SQLiteAuditStore) ensureCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.created[name]; ok {
		return nil
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`, name))
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	s.created[name] = struct{}{}
	return nil
}

// InsertOne appends rec to collection, creating the collection on first use.
func (s *SQLiteAuditStore) InsertOne(ctx context.Context, collection string, rec domain.Record) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}

	payload, err := easyjson.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (ts, payload) VALUES (?, ?)", collection),
		int64(rec.Time()), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

// DropIfExists removes collection and all of its rows.
func (s *SQLiteAuditStore) DropIfExists(ctx context.Context, collection string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", collection)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", collection, err)
	}
	delete(s.created, collection)
	return nil
}

// Count returns the number of rows in collection; a missing collection counts as empty.
func (s *SQLiteAuditStore) Count(ctx context.Context, collection string) (int64, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}

	exists, err := s.exists(ctx, collection)
	if err != nil || !exists {
		return 0, err
	}

	var n int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", collection)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// Load returns every row of collection in insertion order.
func (s *SQLiteAuditStore) Load(ctx context.Context, collection string) ([]StoredRecord, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	exists, err := s.exists(ctx, collection)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, ts, payload FROM %s ORDER BY id ASC", collection),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var records []StoredRecord
	for rows.Next() {
		var rec StoredRecord
		if err := rows.Scan(&rec.ID, &rec.Ts, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return records, nil
}

func (s *SQLiteAuditStore) exists(ctx context.Context, collection string) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", collection,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", collection, err)
	}
	return true, nil
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (s *SQLiteAuditStore) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table.
func (s *SQLiteAuditStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Close closes the database connection.
func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}
