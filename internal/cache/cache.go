// Package cache provides the byte caches that sit in front of the audit
// store for analysis lookups: an in-process LRU, a Redis client, and a
// two-tier combination of both.
package cache

import (
	"context"
)

// Cache stores opaque values by key. A miss is reported through the bool
// result, not as an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Tiered checks a fast local cache before a shared one and back-fills the
// local tier on a shared hit.
type Tiered struct {
	local  Cache
	shared Cache
}

// NewTiered combines local and shared caches.
func NewTiered(local, shared Cache) *Tiered {
	return &Tiered{local: local, shared: shared}
}

// Get looks the key up in the local tier, then the shared tier.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := t.local.Get(ctx, key); err == nil && ok {
		return val, true, nil
	}

	val, ok, err := t.shared.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	_ = t.local.Set(ctx, key, val)
	return val, true, nil
}

// Set writes through both tiers.
func (t *Tiered) Set(ctx context.Context, key string, value []byte) error {
	if err := t.local.Set(ctx, key, value); err != nil {
		return err
	}
	return t.shared.Set(ctx, key, value)
}

// Delete removes the key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	if err := t.local.Delete(ctx, key); err != nil {
		return err
	}
	return t.shared.Delete(ctx, key)
}

// Close closes both tiers.
func (t *Tiered) Close() error {
	lerr := t.local.Close()
	if err := t.shared.Close(); err != nil {
		return err
	}
	return lerr
}
