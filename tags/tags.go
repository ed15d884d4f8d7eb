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

// Package tags holds the dimensional model shared by every metric
// produced by this module: a Tag is one key/value pair and a Set is an
// immutable, insertion-ordered collection of tags with set semantics
// for equality.
package tags // import "github.com/lightstep/otel-netmetrics-go/tags"

import (
	"strings"

	"github.com/lightstep/otel-netmetrics-go/internal/fprint"
	"go.opentelemetry.io/otel/attribute"
)

// Tag is a single dimension of a metric identity.
type Tag struct {
	Key   string
	Value string
}

// Of returns a Tag.
func Of(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// Set is an immutable ordered collection of tags with at most one
// value per key.  The zero value is the empty set.
//
// Order only matters for display; Equal and Fingerprint treat a Set
// as an unordered collection of pairs.
type Set struct {
	tags []Tag
}

// Empty is the empty Set.
var Empty = Set{}

// New returns a Set of the given tags.  A repeated key keeps its
// first position and takes the last value.
func New(ts ...Tag) Set {
	return Empty.And(ts...)
}

// FromPairs builds a Set from alternating keys and values.  A
// trailing key without a value is ignored.
func FromPairs(kvs ...string) Set {
	ts := make([]Tag, 0, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		ts = append(ts, Tag{Key: kvs[i], Value: kvs[i+1]})
	}
	return New(ts...)
}

// And returns a new Set with the given tags added.  Existing keys are
// replaced in place; new keys are appended.  The receiver is not
// modified.
func (s Set) And(ts ...Tag) Set {
	if len(ts) == 0 {
		return s
	}
	out := make([]Tag, len(s.tags), len(s.tags)+len(ts))
	copy(out, s.tags)
outer:
	for _, t := range ts {
		for i := range out {
			if out[i].Key == t.Key {
				out[i].Value = t.Value
				continue outer
			}
		}
		out = append(out, t)
	}
	return Set{tags: out}
}

// AndSet returns s combined with every tag in o.
func (s Set) AndSet(o Set) Set {
	return s.And(o.tags...)
}

// Len returns the number of tags.
func (s Set) Len() int {
	return len(s.tags)
}

// At returns the i'th tag in insertion order.
func (s Set) At(i int) Tag {
	return s.tags[i]
}

// Tags returns a copy of the tags in insertion order.
func (s Set) Tags() []Tag {
	out := make([]Tag, len(s.tags))
	copy(out, s.tags)
	return out
}

// Get returns the value for key, if present.
func (s Set) Get(key string) (string, bool) {
	for _, t := range s.tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Equal reports whether both sets hold the same pairs, ignoring
// order.
func (s Set) Equal(o Set) bool {
	if len(s.tags) != len(o.tags) {
		return false
	}
	for _, t := range s.tags {
		if v, ok := o.Get(t.Key); !ok || v != t.Value {
			return false
		}
	}
	return true
}

// Fingerprint returns an order-independent hash of the set.  Sets
// that are Equal have the same fingerprint; the converse does not
// hold.
func (s Set) Fingerprint() uint64 {
	var sum uint64
	for _, t := range s.tags {
		sum += fprint.Pair(t.Key, t.Value)
	}
	return sum
}

// Attributes converts the set to an OpenTelemetry attribute set.
func (s Set) Attributes() attribute.Set {
	if len(s.tags) == 0 {
		return *attribute.EmptySet()
	}
	kvs := make([]attribute.KeyValue, len(s.tags))
	for i, t := range s.tags {
		kvs[i] = attribute.String(t.Key, t.Value)
	}
	return attribute.NewSet(kvs...)
}

// String formats the set as [k=v,...] in insertion order.
func (s Set) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, t := range s.tags {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(t.Key)
		sb.WriteByte('=')
		sb.WriteString(t.Value)
	}
	sb.WriteByte(']')
	return sb.String()
}
