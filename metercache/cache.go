// Copyright Lightstep Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metercache holds resolved metric handles close to the
// goroutines that use them.
//
// Each worker owns a Local: a bounded map that is never shared, so
// it needs no locking.  A host that manages its own workers creates
// one Local per worker with Cache.NewLocal and attaches it to the
// worker's context with NewContext.  Callers without a worker-local
// instance borrow one from a per-P pool for the duration of a single
// lookup.
//
// A Local retains at most its configured number of entries.  When a
// new identity does not fit, the oldest inserted entry is evicted;
// reading an entry does not refresh it.
package metercache // import "github.com/lightstep/otel-netmetrics-go/metercache"

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultSize is the per-worker bound used when none is configured.
const DefaultSize = 50

// Key is implemented by metric identities.  Keys with equal
// fingerprints are compared with Equal; a colliding key that is not
// Equal is treated as a miss.
type Key[K any] interface {
	Fingerprint() uint64
	Equal(K) bool
}

// Cache produces worker-local caches of one bound.
type Cache[K Key[K], V any] struct {
	size int
	pool atomic.Pointer[sync.Pool]
}

// New returns a Cache whose Locals hold at most size entries.  A
// size below 1 uses DefaultSize.
func New[K Key[K], V any](size int) *Cache[K, V] {
	if size < 1 {
		size = DefaultSize
	}
	c := &Cache[K, V]{size: size}
	c.pool.Store(c.newPool())
	return c
}

func (c *Cache[K, V]) newPool() *sync.Pool {
	return &sync.Pool{
		New: func() any {
			return c.NewLocal()
		},
	}
}

// Size is the per-worker bound.
func (c *Cache[K, V]) Size() int {
	return c.size
}

// NewLocal returns a new, empty worker-local cache.  The caller owns
// it and must not use it from two goroutines at once.
func (c *Cache[K, V]) NewLocal() *Local[K, V] {
	lru, err := simplelru.NewLRU[uint64, *entry[K, V]](c.size, nil)
	if err != nil {
		// size is always positive
		panic(err)
	}
	return &Local[K, V]{lru: lru}
}

// Get looks up k in the worker-local cache bound to ctx, or in a
// pooled instance.
func (c *Cache[K, V]) Get(ctx context.Context, k K) (V, bool) {
	l, pooled := c.acquire(ctx)
	v, ok := l.Get(k)
	c.release(l, pooled)
	return v, ok
}

// Put stores v for k in the worker-local cache bound to ctx, or in
// a pooled instance.
func (c *Cache[K, V]) Put(ctx context.Context, k K, v V) {
	l, pooled := c.acquire(ctx)
	l.Put(k, v)
	c.release(l, pooled)
}

// Lookup returns the cached value for k, calling resolve and caching
// its result on a miss.  The same Local is held for the whole
// operation.
func (c *Cache[K, V]) Lookup(ctx context.Context, k K, resolve func(K) V) V {
	l, pooled := c.acquire(ctx)
	defer c.release(l, pooled)
	if v, ok := l.Get(k); ok {
		return v
	}
	v := resolve(k)
	l.Put(k, v)
	return v
}

// Close drops every pooled Local.  Locals owned by workers are
// unaffected; their owners close them.
func (c *Cache[K, V]) Close() {
	c.pool.Store(c.newPool())
}

func (c *Cache[K, V]) acquire(ctx context.Context) (*Local[K, V], *sync.Pool) {
	if l := FromContext[K, V](ctx); l != nil {
		return l, nil
	}
	p := c.pool.Load()
	return p.Get().(*Local[K, V]), p
}

func (c *Cache[K, V]) release(l *Local[K, V], p *sync.Pool) {
	if p == nil {
		return
	}
	if p != c.pool.Load() {
		// the cache was closed while l was out
		l.Close()
		return
	}
	p.Put(l)
}

type entry[K any, V any] struct {
	key   K
	value V
}

// Local is one worker's bounded cache.  It is not safe for
// concurrent use.
type Local[K Key[K], V any] struct {
	lru *simplelru.LRU[uint64, *entry[K, V]]
}

// Get returns the value last stored for k.
func (l *Local[K, V]) Get(k K) (V, bool) {
	// Peek leaves the insertion order alone.
	e, ok := l.lru.Peek(k.Fingerprint())
	if !ok || !e.key.Equal(k) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores v for k.  Replacing an existing fingerprint keeps its
// position; a new fingerprint may evict the oldest inserted entry.
func (l *Local[K, V]) Put(k K, v V) {
	fp := k.Fingerprint()
	if e, ok := l.lru.Peek(fp); ok {
		e.key = k
		e.value = v
		return
	}
	l.lru.Add(fp, &entry[K, V]{key: k, value: v})
}

// Len is the number of entries held.
func (l *Local[K, V]) Len() int {
	return l.lru.Len()
}

// Close removes every entry.  The Local stays usable.
func (l *Local[K, V]) Close() {
	l.lru.Purge()
}

type ctxKey[K Key[K], V any] struct{}

// NewContext returns a context carrying l.
func NewContext[K Key[K], V any](ctx context.Context, l *Local[K, V]) context.Context {
	return context.WithValue(ctx, ctxKey[K, V]{}, l)
}

// FromContext returns the Local carried by ctx, or nil.
func FromContext[K Key[K], V any](ctx context.Context) *Local[K, V] {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(ctxKey[K, V]{}).(*Local[K, V])
	return l
}
