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
	"regexp"

	"github.com/lightstep/otel-netmetrics-go/match"
	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/tags"
)

// Filter is consulted once per identity before a meter is created.
// It may rewrite the identity; returning false denies the meter, and
// the caller receives a no-op handle.
type Filter func(ID) (ID, bool)

// DenyNames denies meters with any of the given names.
func DenyNames(names ...string) Filter {
	deny := make(map[string]struct{}, len(names))
	for _, n := range names {
		deny[n] = struct{}{}
	}
	return func(id ID) (ID, bool) {
		_, denied := deny[id.Name]
		return id, !denied
	}
}

// DenyNameRegexp denies meters whose name matches re anywhere.
func DenyNameRegexp(re *regexp.Regexp) Filter {
	return func(id ID) (ID, bool) {
		return id, !re.MatchString(id.Name)
	}
}

// AcceptNames admits only the named meters.
func AcceptNames(names ...string) Filter {
	deny := DenyNames(names...)
	return func(id ID) (ID, bool) {
		_, notListed := deny(id)
		return id, !notListed
	}
}

// AliasFilter rewrites the tags of every identity with m.  The domain
// is inferred from the metric name using names; identities outside
// any known domain only see global rules.  Tags whose key is not a
// recognised label are left alone.
func AliasFilter(m *match.Matchers, names naming.Names) Filter {
	return func(id ID) (ID, bool) {
		if m.Len() == 0 || id.Tags.Len() == 0 {
			return id, true
		}
		dom, known := names.DomainOf(id.Name)
		var rewritten []tags.Tag
		for i := 0; i < id.Tags.Len(); i++ {
			t := id.Tags.At(i)
			l, err := tags.ParseLabel(t.Key)
			if err != nil || l.Key() != t.Key {
				continue
			}
			var v string
			if known {
				v = m.Apply(dom, l, t.Value)
			} else {
				v = m.ApplyGlobal(l, t.Value)
			}
			if v != t.Value {
				rewritten = append(rewritten, tags.Tag{Key: t.Key, Value: v})
			}
		}
		if len(rewritten) != 0 {
			id.Tags = id.Tags.And(rewritten...)
		}
		return id, true
	}
}
