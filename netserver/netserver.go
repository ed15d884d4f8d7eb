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

// Package netserver records socket level metrics of a listening
// server: open connections, bytes read and written, and errors.
package netserver // import "github.com/lightstep/otel-netmetrics-go/netserver"

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/lightstep/otel-netmetrics-go/meters"
	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/tags"
	"go.opentelemetry.io/otel/metric"
)

// Server is the callback surface of one listener.  Every method
// accepts a nil *Socket and then does nothing.
type Server interface {
	Connected(ctx context.Context, remote string) *Socket
	Disconnected(ctx context.Context, s *Socket)
	BytesRead(ctx context.Context, s *Socket, n int64)
	BytesWritten(ctx context.Context, s *Socket, n int64)
	ExceptionOccurred(ctx context.Context, s *Socket, err error)
}

// Metrics produces per-listener Instances for one domain.
type Metrics struct {
	scope meters.Scope

	connectionOpts []metric.Float64ObservableGaugeOption
	readOpts       []metric.Int64CounterOption
	writtenOpts    []metric.Int64CounterOption
	errorOpts      []metric.Int64CounterOption
}

// New returns Metrics registering into scope.  The scope's domain
// decides the metric names, so the HTTP server reuses this type with
// its own domain.
func New(scope meters.Scope) *Metrics {
	return &Metrics{
		scope: scope,
		connectionOpts: []metric.Float64ObservableGaugeOption{
			metric.WithDescription("Number of opened connections to the server"),
			metric.WithUnit("{connection}"),
		},
		readOpts: []metric.Int64CounterOption{
			metric.WithDescription("Number of bytes received by the server"),
			metric.WithUnit(meters.UnitBytes),
		},
		writtenOpts: []metric.Int64CounterOption{
			metric.WithDescription("Number of bytes sent by the server"),
			metric.WithUnit(meters.UnitBytes),
		},
		errorOpts: []metric.Int64CounterOption{
			metric.WithDescription("Number of errors"),
			metric.WithUnit("{error}"),
		},
	}
}

// Scope is the scope metrics are registered with.
func (m *Metrics) Scope() meters.Scope {
	return m.scope
}

// ForAddress returns the Instance for a listener bound to local.
func (m *Metrics) ForAddress(local string) *Instance {
	var ts []tags.Tag
	ts = m.scope.AppendTag(ts, tags.Local, local)
	return &Instance{m: m, local: tags.New(ts...)}
}

// Instance records the sockets of one listener.
type Instance struct {
	m     *Metrics
	local tags.Set
}

var _ Server = (*Instance)(nil)

// Socket is one accepted connection.
type Socket struct {
	tags        tags.Set
	connections meters.Gauge
	closed      atomic.Bool
}

// Tags are the local and remote tags of the connection, after
// aliasing.
func (s *Socket) Tags() tags.Set {
	if s == nil {
		return tags.Empty
	}
	return s.tags
}

// LocalTags are the tags shared by every socket of the listener.
func (i *Instance) LocalTags() tags.Set {
	return i.local
}

// Connected records a new connection from remote.
func (i *Instance) Connected(ctx context.Context, remote string) *Socket {
	s := &Socket{tags: i.SocketTags(remote)}
	s.connections = i.m.scope.Registry.Gauge(ctx, meters.ID{
		Name: i.m.scope.Name(naming.NetActiveConnections),
		Tags: s.tags,
	}, nil, i.m.connectionOpts...)
	s.connections.Increment()
	return s
}

// SocketTags returns the tags of a connection from remote without
// recording it.
func (i *Instance) SocketTags(remote string) tags.Set {
	var ts []tags.Tag
	ts = i.m.scope.AppendTag(ts, tags.Remote, remote)
	return i.local.And(ts...)
}

// Disconnected records the end of a connection.  Only the first call
// for a socket has an effect.
func (i *Instance) Disconnected(_ context.Context, s *Socket) {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.connections.Decrement()
}

func (i *Instance) BytesRead(ctx context.Context, s *Socket, n int64) {
	if s == nil || n <= 0 {
		return
	}
	i.m.scope.Registry.Counter(ctx, meters.ID{
		Name: i.m.scope.Name(naming.NetBytesRead),
		Tags: s.tags,
	}, i.m.readOpts...).Add(ctx, n)
}

func (i *Instance) BytesWritten(ctx context.Context, s *Socket, n int64) {
	if s == nil || n <= 0 {
		return
	}
	i.m.scope.Registry.Counter(ctx, meters.ID{
		Name: i.m.scope.Name(naming.NetBytesWritten),
		Tags: s.tags,
	}, i.m.writtenOpts...).Add(ctx, n)
}

// ExceptionOccurred counts err, tagged with its type when the class
// label is enabled.
func (i *Instance) ExceptionOccurred(ctx context.Context, s *Socket, err error) {
	if s == nil || err == nil {
		return
	}
	ts := i.m.scope.AppendTagFunc(nil, tags.ClassName, func() string {
		return ErrorClass(err)
	})
	i.m.scope.Registry.Counter(ctx, meters.ID{
		Name: i.m.scope.Name(naming.NetErrorCount),
		Tags: s.tags.And(ts...),
	}, i.m.errorOpts...).Increment(ctx)
}

// ErrorClass names the dynamic type of err, looking through
// *net.OpError to the cause.
func ErrorClass(err error) string {
	if op, ok := err.(*net.OpError); ok && op.Err != nil {
		return fmt.Sprintf("%T", op.Err)
	}
	return fmt.Sprintf("%T", err)
}

// Address formats a socket address for tagging.  A nil address is
// empty.
func Address(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// Noop is the Server of a disabled domain.
type Noop struct{}

var _ Server = Noop{}

func (Noop) Connected(context.Context, string) *Socket         { return nil }
func (Noop) Disconnected(context.Context, *Socket)             {}
func (Noop) BytesRead(context.Context, *Socket, int64)         {}
func (Noop) BytesWritten(context.Context, *Socket, int64)      {}
func (Noop) ExceptionOccurred(context.Context, *Socket, error) {}
