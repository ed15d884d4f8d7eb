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

package meters

import (
	"github.com/go-logr/logr"
	"github.com/lightstep/otel-netmetrics-go/match"
	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/tags"
)

// Scope is the state shared by every facade of one Metrics instance:
// where meters are registered, how they are named, which labels are
// enabled and how label values are aliased.  It is passed by value
// and never modified after construction.
type Scope struct {
	Registry *Registry
	Names    naming.Names
	Labels   tags.LabelSet
	Matchers *match.Matchers
	Domain   naming.Domain
	Logger   logr.Logger
}

// ForDomain returns a copy of s for domain d, with names prefixed by
// the domain's base name.
func (s Scope) ForDomain(d naming.Domain) Scope {
	s.Domain = d
	s.Names = s.Names.ForDomain(d)
	return s
}

// Name is the metric name of role r in this scope.
func (s Scope) Name(r naming.Role) string {
	return s.Names.Name(r)
}

// Enabled reports whether l is emitted.
func (s Scope) Enabled(l tags.Label) bool {
	return s.Labels.Has(l)
}

// Tag returns the tag for l with its value aliased, or false when l is
// disabled.
func (s Scope) Tag(l tags.Label, value string) (tags.Tag, bool) {
	if !s.Labels.Has(l) {
		return tags.Tag{}, false
	}
	return tags.Tag{Key: l.Key(), Value: s.Matchers.Apply(s.Domain, l, value)}, true
}

// AppendTag appends the tag for l to ts when l is enabled.
func (s Scope) AppendTag(ts []tags.Tag, l tags.Label, value string) []tags.Tag {
	if t, ok := s.Tag(l, value); ok {
		ts = append(ts, t)
	}
	return ts
}

// AppendTagFunc is AppendTag computing the value only when l is
// enabled.
func (s Scope) AppendTagFunc(ts []tags.Tag, l tags.Label, value func() string) []tags.Tag {
	if !s.Labels.Has(l) {
		return ts
	}
	return s.AppendTag(ts, l, value())
}
