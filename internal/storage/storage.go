// Package storage holds the persistence collaborators of the book recorder:
// a key-indexed store for current ladder sizes and append-only audit stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"bitmex_orderbook/internal/domain"
)

// Audit collections written by the recorder.
const (
	CollectionInserts = "ob_insert"
	CollectionUpdates = "ob_update"
	CollectionDeletes = "ob_delete"
	CollectionQuotes  = "quotes"
	CollectionTrades  = "trades"
)

// ErrInvalidCollection is returned for collection names that are not plain identifiers.
var ErrInvalidCollection = errors.New("invalid collection name")

var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// KeyStore is the fast key-indexed store mirroring ladder sizes.
type KeyStore interface {
	Set(ctx context.Context, key, value string) error
	FlushAll(ctx context.Context) error
}

// AuditStore is an append-only store grouped into named collections.
type AuditStore interface {
	InsertOne(ctx context.Context, collection string, rec domain.Record) error
	DropIfExists(ctx context.Context, collection string) error
}

func validateCollection(name string) error {
	if !collectionPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}
