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

package metercache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type testKey struct {
	name string
	fp   uint64
}

func (k testKey) Fingerprint() uint64 { return k.fp }

func (k testKey) Equal(o testKey) bool { return k.name == o.name }

func key(i int) testKey {
	return testKey{name: fmt.Sprint("k", i), fp: uint64(i) + 1}
}

func collide(name string, fp uint64) testKey {
	return testKey{name: name, fp: fp}
}

func TestEvictsOldestInserted(t *testing.T) {
	const max = 5
	c := New[testKey, int](max)
	l := c.NewLocal()

	for i := 0; i <= max; i++ {
		l.Put(key(i), i)
	}
	require.Equal(t, max, l.Len())

	_, ok := l.Get(key(0))
	require.False(t, ok, "first inserted must be evicted")
	for i := 1; i <= max; i++ {
		v, ok := l.Get(key(i))
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestGetDoesNotRefresh(t *testing.T) {
	c := New[testKey, int](3)
	l := c.NewLocal()

	l.Put(key(1), 1)
	l.Put(key(2), 2)
	l.Put(key(3), 3)

	// an LRU would keep key 1 after this read
	_, ok := l.Get(key(1))
	require.True(t, ok)

	l.Put(key(4), 4)
	_, ok = l.Get(key(1))
	require.False(t, ok)
	_, ok = l.Get(key(2))
	require.True(t, ok)
}

func TestRePutKeepsPosition(t *testing.T) {
	c := New[testKey, int](2)
	l := c.NewLocal()

	l.Put(key(1), 1)
	l.Put(key(2), 2)
	l.Put(key(1), 10)
	l.Put(key(3), 3)

	_, ok := l.Get(key(1))
	require.False(t, ok)
	v, ok := l.Get(key(2))
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestCollisionIsAMiss(t *testing.T) {
	c := New[testKey, string](4)
	l := c.NewLocal()

	l.Put(collide("a", 7), "a")
	_, ok := l.Get(collide("b", 7))
	require.False(t, ok)

	l.Put(collide("b", 7), "b")
	v, ok := l.Get(collide("b", 7))
	require.True(t, ok)
	require.Equal(t, "b", v)
	require.Equal(t, 1, l.Len())
}

func TestLocalsAreIndependent(t *testing.T) {
	const max = 4
	c := New[testKey, int](max)

	var eg errgroup.Group
	locals := make([]*Local[testKey, int], 8)
	for w := range locals {
		w := w
		locals[w] = c.NewLocal()
		eg.Go(func() error {
			l := locals[w]
			for i := 0; i < max+w; i++ {
				l.Put(key(i), w)
			}
			if l.Len() != max {
				return fmt.Errorf("worker %d has %d entries", w, l.Len())
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	// worker 0 inserted exactly max entries and lost none
	v, ok := locals[0].Get(key(0))
	require.True(t, ok)
	require.Equal(t, 0, v)

	// worker 7 lost its first 7 entries
	_, ok = locals[7].Get(key(6))
	require.False(t, ok)
	v, ok = locals[7].Get(key(7))
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestContextLocal(t *testing.T) {
	c := New[testKey, int](2)
	l := c.NewLocal()
	ctx := NewContext(context.Background(), l)

	require.Same(t, l, FromContext[testKey, int](ctx))
	require.Nil(t, FromContext[testKey, int](context.Background()))
	require.Nil(t, FromContext[testKey, string](ctx))

	c.Put(ctx, key(1), 1)
	require.Equal(t, 1, l.Len())

	v, ok := c.Get(ctx, key(1))
	require.True(t, ok)
	require.Equal(t, 1, v)

	calls := 0
	resolve := func(testKey) int {
		calls++
		return 42
	}
	require.Equal(t, 42, c.Lookup(ctx, key(2), resolve))
	require.Equal(t, 42, c.Lookup(ctx, key(2), resolve))
	require.Equal(t, 1, calls)

	l.Close()
	require.Equal(t, 0, l.Len())
	_, ok = c.Get(ctx, key(1))
	require.False(t, ok)
}

func TestPooledLookup(t *testing.T) {
	c := New[testKey, int](8)
	ctx := context.Background()

	var eg errgroup.Group
	for w := 0; w < 16; w++ {
		eg.Go(func() error {
			for i := 0; i < 1000; i++ {
				k := key(i % 16)
				v := c.Lookup(ctx, k, func(k testKey) int { return int(k.fp) })
				if v != int(k.fp) {
					return fmt.Errorf("got %d for %v", v, k)
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	c.Close()
	require.Equal(t, 3, c.Lookup(ctx, key(2), func(k testKey) int { return int(k.fp) }))
}

func TestDefaultSize(t *testing.T) {
	require.Equal(t, DefaultSize, New[testKey, int](0).Size())
	require.Equal(t, 7, New[testKey, int](7).Size())
}
