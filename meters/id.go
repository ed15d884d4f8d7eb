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

package meters // import "github.com/lightstep/otel-netmetrics-go/meters"

import (
	"fmt"

	"github.com/lightstep/otel-netmetrics-go/internal/fprint"
	"github.com/lightstep/otel-netmetrics-go/tags"
)

// Kind is the type of meter an ID names.
type Kind uint8

const (
	CounterKind Kind = iota + 1
	GaugeKind
	DistributionKind
	TimerKind
)

func (k Kind) String() string {
	switch k {
	case CounterKind:
		return "counter"
	case GaugeKind:
		return "gauge"
	case DistributionKind:
		return "distribution"
	case TimerKind:
		return "timer"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ID is a metric identity: the registration key in the backend and
// the key of the per-worker handle cache.
type ID struct {
	Kind Kind
	Name string
	Tags tags.Set
}

// Fingerprint is independent of tag order.
func (id ID) Fingerprint() uint64 {
	return fprint.Mix(uint64(id.Kind), fprint.String(id.Name), id.Tags.Fingerprint())
}

// Equal compares kind, name and tag contents.
func (id ID) Equal(o ID) bool {
	return id.Kind == o.Kind && id.Name == o.Name && id.Tags.Equal(o.Tags)
}

func (id ID) String() string {
	return id.Name + id.Tags.String()
}
