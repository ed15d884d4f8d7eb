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
	"context"

	"github.com/lightstep/otel-netmetrics-go/netserver"
)

// Noop is the Server of a disabled HTTP server domain.  It returns nil
// handles, which every Server method accepts.
type Noop struct{}

var _ Server = Noop{}

func (Noop) Net() netserver.Server {
	return netserver.Noop{}
}

func (Noop) RequestBegin(context.Context, *netserver.Socket, Request) *RequestMetric {
	return nil
}

func (Noop) ResponsePushed(context.Context, *netserver.Socket, string, string, Response) *RequestMetric {
	return nil
}

func (Noop) Connected(context.Context, *netserver.Socket, *RequestMetric) *WebSocket {
	return nil
}

func (Noop) RequestReset(context.Context, *RequestMetric)                 {}
func (Noop) RequestEnd(context.Context, *RequestMetric, Request, int64)   {}
func (Noop) RequestRouted(context.Context, *RequestMetric, string)        {}
func (Noop) ResponseEnd(context.Context, *RequestMetric, Response, int64) {}
func (Noop) Disconnected(context.Context, *WebSocket)                     {}
