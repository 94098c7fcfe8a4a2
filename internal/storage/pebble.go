package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// OpenPebble opens the key store database shared by both ladder namespaces.
func OpenPebble(dir string, opts *pebble.Options) (*pebble.DB, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dir, err)
	}
	return db, nil
}

// PebbleKeyStore is one namespace ("bids/", "asks/") of a pebble database.
// Writes skip fsync; the audit store is the durable record.
type PebbleKeyStore struct {
	db     *pebble.DB
	prefix []byte
}

// NewPebbleKeyStore scopes db to namespace. The namespace must be non-empty.
func NewPebbleKeyStore(db *pebble.DB, namespace string) *PebbleKeyStore {
	return &PebbleKeyStore{db: db, prefix: []byte(namespace + "/")}
}

func (s *PebbleKeyStore) key(k string) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	out = append(out, s.prefix...)
	return append(out, k...)
}

// upperBound is the first key past the namespace.
func (s *PebbleKeyStore) upperBound() []byte {
	end := append([]byte(nil), s.prefix...)
	end[len(end)-1]++
	return end
}

func (s *PebbleKeyStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Set(s.key(key), []byte(value), pebble.NoSync); err != nil {
		return fmt.Errorf("pebble set %s%s: %w", s.prefix, key, err)
	}
	return nil
}

// Get returns the stored value and whether the key exists.
func (s *PebbleKeyStore) Get(key string) (string, bool, error) {
	val, closer, err := s.db.Get(s.key(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pebble get %s%s: %w", s.prefix, key, err)
	}
	defer closer.Close()

	return string(val), true, nil
}

// FlushAll removes every key of the namespace.
func (s *PebbleKeyStore) FlushAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DeleteRange(s.prefix, s.upperBound(), pebble.Sync); err != nil {
		return fmt.Errorf("pebble flush %s: %w", s.prefix, err)
	}
	return nil
}

// Scan visits every key of the namespace in byte order.
func (s *PebbleKeyStore) Scan(fn func(key, value string) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: s.prefix,
		UpperBound: s.upperBound(),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(s.prefix):])
		if err := fn(key, string(iter.Value())); err != nil {
			return err
		}
	}
	return iter.Error()
}
