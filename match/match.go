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

// Package match rewrites tag values before they become part of a
// metric identity.  Rules are validated once by Compile; Apply is
// lock free and safe for concurrent use.
package match // import "github.com/lightstep/otel-netmetrics-go/match"

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/tags"
	"go.uber.org/multierr"
)

// Type selects how Match.Value is compared with a tag value.
type Type string

const (
	// Equals compares for string equality.  It is the default.
	Equals Type = "equals"
	// Regex requires the whole tag value to match Value.
	Regex Type = "regex"
)

// Match is one aliasing rule.  When the tag for Label matches Value,
// its value is replaced by Alias.
type Match struct {
	// Domain restricts the rule to one metrics domain, by name
	// ("HTTP_SERVER") or category ("http.server").  Empty applies
	// the rule to every domain.
	Domain string `yaml:"domain" json:"domain,omitempty"`
	Label  string `yaml:"label" json:"label"`
	Type   Type   `yaml:"type" json:"type,omitempty"`
	Value  string `yaml:"value" json:"value"`
	Alias  string `yaml:"alias" json:"alias"`
}

func (m Match) String() string {
	d := m.Domain
	if d == "" {
		d = "*"
	}
	t := m.Type
	if t == "" {
		t = Equals
	}
	return fmt.Sprintf("%s/%s %s %q -> %q", d, m.Label, t, m.Value, m.Alias)
}

type rule struct {
	equals string
	re     *regexp.Regexp
	alias  string
}

func (r *rule) matches(value string) bool {
	if r.re != nil {
		return r.re.MatchString(value)
	}
	return r.equals == value
}

type byLabel map[tags.Label][]rule

// Matchers is a compiled, read-only rule list.  A nil *Matchers
// passes every value through.
type Matchers struct {
	global   byLabel
	byDomain map[naming.Domain]byLabel
	size     int
}

// Compile validates and compiles rules.  Every problem found is
// reported, combined into one error.
func Compile(rules ...Match) (*Matchers, error) {
	m := &Matchers{
		global:   byLabel{},
		byDomain: map[naming.Domain]byLabel{},
	}
	var err error
	for i, r := range rules {
		c, label, dom, global, rerr := compileOne(r)
		if rerr != nil {
			err = multierr.Append(err, fmt.Errorf("label match %d (%s): %w", i, r, rerr))
			continue
		}
		target := m.global
		if !global {
			target = m.byDomain[dom]
			if target == nil {
				target = byLabel{}
				m.byDomain[dom] = target
			}
		}
		target[label] = append(target[label], c)
		m.size++
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func compileOne(r Match) (c rule, label tags.Label, dom naming.Domain, global bool, err error) {
	global = r.Domain == ""
	if !global {
		d, derr := naming.ParseDomain(r.Domain)
		err = multierr.Append(err, derr)
		dom = d
	}
	if r.Label == "" {
		err = multierr.Append(err, fmt.Errorf("empty label"))
	} else {
		l, lerr := tags.ParseLabel(r.Label)
		err = multierr.Append(err, lerr)
		label = l
	}
	if r.Alias == "" {
		err = multierr.Append(err, fmt.Errorf("empty alias"))
	}
	c.alias = r.Alias
	switch Type(strings.ToLower(string(r.Type))) {
	case "", Equals:
		c.equals = r.Value
	case Regex:
		re, rerr := regexp.Compile(`^(?:` + r.Value + `)$`)
		if rerr != nil {
			err = multierr.Append(err, fmt.Errorf("invalid pattern: %w", rerr))
		}
		c.re = re
	default:
		err = multierr.Append(err, fmt.Errorf("unknown match type: %q", r.Type))
	}
	return c, label, dom, global, err
}

// Apply returns the alias of the first rule matching value, trying
// the rules of domain d before global rules.  Without a match the
// value is returned unchanged.
func (m *Matchers) Apply(d naming.Domain, l tags.Label, value string) string {
	if m == nil || m.size == 0 {
		return value
	}
	if dl, ok := m.byDomain[d]; ok {
		if alias, ok := first(dl[l], value); ok {
			return alias
		}
	}
	if alias, ok := first(m.global[l], value); ok {
		return alias
	}
	return value
}

// ApplyGlobal is Apply for values outside any domain: only global
// rules are consulted.
func (m *Matchers) ApplyGlobal(l tags.Label, value string) string {
	if m == nil || m.size == 0 {
		return value
	}
	if alias, ok := first(m.global[l], value); ok {
		return alias
	}
	return value
}

func first(rules []rule, value string) (string, bool) {
	for i := range rules {
		if rules[i].matches(value) {
			return rules[i].alias, true
		}
	}
	return "", false
}

// Len is the number of compiled rules.
func (m *Matchers) Len() int {
	if m == nil {
		return 0
	}
	return m.size
}
