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

package tags

import (
	"fmt"
	"strings"
)

// Label is one of the recognised tag categories.  Each label can be
// enabled or disabled globally; a disabled label never reaches a
// metric identity.
type Label uint8

const (
	Local Label = iota
	Remote
	HTTPPath
	HTTPRoute
	HTTPMethod
	HTTPCode
	ClassName
	EBAddress
	EBSide
	EBFailure
	PoolType
	PoolName
	Namespace

	numLabels
)

var labelKeys = [numLabels]string{
	Local:      "local",
	Remote:     "remote",
	HTTPPath:   "path",
	HTTPRoute:  "route",
	HTTPMethod: "method",
	HTTPCode:   "code",
	ClassName:  "class",
	EBAddress:  "address",
	EBSide:     "side",
	EBFailure:  "failure",
	PoolType:   "pool_type",
	PoolName:   "pool_name",
	Namespace:  "namespace",
}

var labelNames = [numLabels]string{
	Local:      "LOCAL",
	Remote:     "REMOTE",
	HTTPPath:   "HTTP_PATH",
	HTTPRoute:  "HTTP_ROUTE",
	HTTPMethod: "HTTP_METHOD",
	HTTPCode:   "HTTP_CODE",
	ClassName:  "CLASS_NAME",
	EBAddress:  "EB_ADDRESS",
	EBSide:     "EB_SIDE",
	EBFailure:  "EB_FAILURE",
	PoolType:   "POOL_TYPE",
	PoolName:   "POOL_NAME",
	Namespace:  "NAMESPACE",
}

// Key is the tag key written for this label.
func (l Label) Key() string {
	if l >= numLabels {
		return ""
	}
	return labelKeys[l]
}

// Valid reports whether l is a recognised label.
func (l Label) Valid() bool {
	return l < numLabels
}

func (l Label) String() string {
	if l >= numLabels {
		return fmt.Sprintf("Label(%d)", uint8(l))
	}
	return labelNames[l]
}

// ParseLabel accepts either the tag key ("remote") or the constant
// name ("REMOTE", "HTTP_PATH"), case-insensitively.
func ParseLabel(s string) (Label, error) {
	for l := Label(0); l < numLabels; l++ {
		if strings.EqualFold(s, labelKeys[l]) || strings.EqualFold(s, labelNames[l]) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown label: %q", s)
}

// AllLabels returns every recognised label.
func AllLabels() []Label {
	out := make([]Label, numLabels)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}

// LabelSet is a set of enabled labels.  The zero value enables
// nothing.
type LabelSet uint32

// NewLabelSet returns a set holding the given labels.  Invalid labels
// are ignored.
func NewLabelSet(ls ...Label) LabelSet {
	return LabelSet(0).With(ls...)
}

// DefaultLabels is the set enabled when none is configured.  Address
// and path labels are left out since they are unbounded.
func DefaultLabels() LabelSet {
	return NewLabelSet(HTTPMethod, HTTPCode, EBSide, PoolType, PoolName)
}

// Has reports whether l is enabled.
func (s LabelSet) Has(l Label) bool {
	return l < numLabels && s&(1<<l) != 0
}

// With returns s plus ls.
func (s LabelSet) With(ls ...Label) LabelSet {
	for _, l := range ls {
		if l < numLabels {
			s |= 1 << l
		}
	}
	return s
}

// Without returns s minus ls.
func (s LabelSet) Without(ls ...Label) LabelSet {
	for _, l := range ls {
		if l < numLabels {
			s &^= 1 << l
		}
	}
	return s
}

// Labels lists the enabled labels in declaration order.
func (s LabelSet) Labels() []Label {
	var out []Label
	for l := Label(0); l < numLabels; l++ {
		if s.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

func (s LabelSet) String() string {
	ls := s.Labels()
	names := make([]string, len(ls))
	for i, l := range ls {
		names[i] = l.Key()
	}
	return "{" + strings.Join(names, ",") + "}"
}
