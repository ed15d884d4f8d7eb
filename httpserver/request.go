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

package httpserver

import (
	"sync/atomic"

	"github.com/lightstep/otel-netmetrics-go/lifecycle"
	"github.com/lightstep/otel-netmetrics-go/meters"
	"github.com/lightstep/otel-netmetrics-go/tags"
)

// RequestMetric is the state of one exchange.  Its tags are fixed at
// begin; routes only affect the tags of the response metrics.
type RequestMetric struct {
	tags         tags.Set
	inFlight     meters.Gauge
	resets       meters.Counter
	requestBytes meters.Distribution
	sample       meters.Sample

	routes     lifecycle.Routes
	state      lifecycle.State
	lateLogged atomic.Bool
}

// Tags are the request tags of the exchange.
func (rm *RequestMetric) Tags() tags.Set {
	return rm.tags
}

// Route is the accumulated route, or "".
func (rm *RequestMetric) Route() string {
	return rm.routes.String()
}

// Phase is the lifecycle phase of the exchange.
func (rm *RequestMetric) Phase() lifecycle.Phase {
	return rm.state.Phase()
}

// WebSocket is an open WebSocket connection.
type WebSocket struct {
	connections meters.Gauge
	closed      atomic.Bool
}
