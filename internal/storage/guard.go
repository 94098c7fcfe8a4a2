package storage

import (
	"context"
	"errors"

	"bitmex_orderbook/internal/domain"
)

// ErrCircuitOpen is returned without touching the backend while its breaker is open.
var ErrCircuitOpen = errors.New("storage circuit open")

// Breaker is satisfied by infra.CircuitBreaker.
type Breaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

func guarded(b Breaker, fn func() error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// GuardedAuditStore fails fast while the wrapped audit backend keeps failing.
type GuardedAuditStore struct {
	inner   AuditStore
	breaker Breaker
}

func GuardAudit(inner AuditStore, b Breaker) *GuardedAuditStore {
	return &GuardedAuditStore{inner: inner, breaker: b}
}

func (g *GuardedAuditStore) InsertOne(ctx context.Context, collection string, rec domain.Record) error {
	return guarded(g.breaker, func() error { return g.inner.InsertOne(ctx, collection, rec) })
}

// DropIfExists bypasses the breaker; it only runs at startup where a failure is fatal anyway.
func (g *GuardedAuditStore) DropIfExists(ctx context.Context, collection string) error {
	return g.inner.DropIfExists(ctx, collection)
}

// GuardedKeyStore is the key-store counterpart of GuardedAuditStore.
type GuardedKeyStore struct {
	inner   KeyStore
	breaker Breaker
}

func GuardKeys(inner KeyStore, b Breaker) *GuardedKeyStore {
	return &GuardedKeyStore{inner: inner, breaker: b}
}

func (g *GuardedKeyStore) Set(ctx context.Context, key, value string) error {
	return guarded(g.breaker, func() error { return g.inner.Set(ctx, key, value) })
}

func (g *GuardedKeyStore) FlushAll(ctx context.Context) error {
	return g.inner.FlushAll(ctx)
}
