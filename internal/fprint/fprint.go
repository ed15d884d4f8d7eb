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

// Package fprint computes the 64-bit fingerprints used to key metric
// identities.  Fingerprints are not stable across releases and must
// never be persisted.
package fprint // import "github.com/lightstep/otel-netmetrics-go/internal/fprint"

import (
	"unsafe"

	// farmhash is fast and well distributed; we do not depend on
	// any particular hash function.
	farm "github.com/dgryski/go-farm"
)

// Mix combines multiple fingerprints together.  The result depends
// on argument order.
func Mix(is ...uint64) uint64 {
	if len(is) == 0 {
		return 0
	}
	accumulator := is[0]
	for _, i := range is[1:] {
		accumulator = mix(accumulator, i)
	}
	return accumulator
}

// Borrowed from farmhash.
func mix(x uint64, y uint64) uint64 {
	const mul uint64 = 0x9ddfea08eb382d69
	a := (x ^ y) * mul
	a ^= a >> 47
	b := (y ^ a) * mul
	b ^= b >> 47
	b *= mul
	return b
}

// String fingerprints s without copying it.
func String(s string) uint64 {
	if len(s) == 0 {
		return farm.Fingerprint64(nil)
	}
	// go-farm does not modify its input, so a zero-copy view of the
	// string's backing array is safe here.
	return farm.Fingerprint64(unsafe.Slice(unsafe.StringData(s), len(s)))
}

// Pair fingerprints one key/value pair.  Summing Pair values over a
// collection yields an order-independent fingerprint of the collection.
func Pair(key, value string) uint64 {
	return mix(String(key), String(value))
}
