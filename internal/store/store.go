package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/logger"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/metrics"
)

// Fixed keys of the two persisted collections.
const (
	KeyPolicies = "clearpolicy_policies"
	KeyAudit    = "clearpolicy_audit"
)

// Store is a key-value store holding one serialized value per key.
// Get returns (nil, nil) for an absent key. Set replaces the value in a
// single call.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// keyLocks hands out one mutex per key. Backends in this package embed one,
// so collections over different Store values never contend.
type keyLocks struct {
	m sync.Map // map[string]*sync.Mutex
}

func (l *keyLocks) lockFor(key string) *sync.Mutex {
	v, _ := l.m.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

type locker interface {
	lockFor(key string) *sync.Mutex
}

// Stores without their own locks (NoopStore, stores defined elsewhere) share
// one process-wide lock per key.
var sharedLocks keyLocks

func lockFor(s Store, key string) *sync.Mutex {
	if l, ok := s.(locker); ok {
		return l.lockFor(key)
	}
	return sharedLocks.lockFor(key)
}

// Collection is a JSON array of T stored under a fixed key.
type Collection[T any] struct {
	store Store
	key   string
	mu    *sync.Mutex
}

func NewCollection[T any](s Store, key string) *Collection[T] {
	return &Collection[T]{store: s, key: key, mu: lockFor(s, key)}
}

// Key returns the store key backing the collection.
func (c *Collection[T]) Key() string { return c.key }

// Read returns the stored sequence. Absent, unreadable and corrupt values all
// read as an empty sequence.
func (c *Collection[T]) Read(ctx context.Context) []T {
	items, err := c.load(ctx)
	if err != nil {
		logger.Warnf("store: %v, treating as empty", err)
		metrics.StoreCorruptReads.WithLabelValues(c.key).Inc()
		return []T{}
	}
	return items
}

// load fails only when the store itself fails. Malformed JSON reads as an
// empty sequence.
func (c *Collection[T]) load(ctx context.Context) ([]T, error) {
	raw, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.key, err)
	}
	if len(raw) == 0 {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.Warnf("store: %s holds malformed JSON, treating as empty: %v", c.key, err)
		metrics.StoreCorruptReads.WithLabelValues(c.key).Inc()
		return []T{}, nil
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Write replaces the stored sequence.
func (c *Collection[T]) Write(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.key, b)
}

// Update runs a read-modify-write cycle while holding the key's lock. fn
// returns the new sequence and whether it should be written back. A failed
// read aborts before fn runs, so stored items are never replaced blindly.
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, bool)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, err := c.load(ctx)
	if err != nil {
		return err
	}
	next, write := fn(items)
	if !write {
		return nil
	}
	return c.Write(ctx, next)
}
