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

// Package httpserver turns the lifecycle callbacks of an HTTP server
// into metrics.
//
// Every exchange begins with RequestBegin (or ResponsePushed) and is
// tracked by a RequestMetric.  The in-flight gauge of an exchange is
// incremented once at begin and decremented exactly once: by
// RequestReset, or by whichever of RequestEnd and ResponseEnd arrives
// second.  Each end signal records once, even after a reset;
// duplicates are ignored.
package httpserver // import "github.com/lightstep/otel-netmetrics-go/httpserver"

import (
	"context"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/lightstep/otel-netmetrics-go/meters"
	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/netserver"
	"github.com/lightstep/otel-netmetrics-go/tags"
	"go.opentelemetry.io/otel/metric"
)

// Request is the view of a request needed for tagging.
type Request interface {
	Method() string
	// Path is the request target without its query.
	Path() string
}

// Response is the view of a response needed for tagging.
type Response interface {
	StatusCode() int
}

// RequestTagsProvider returns extra tags for a request.  They are
// added to every metric of the exchange, without label filtering or
// aliasing.
type RequestTagsProvider func(Request) []tags.Tag

// ResponseTagsProvider returns extra tags for the response-time,
// response-size and request-count metrics of an exchange.
type ResponseTagsProvider func(Response) []tags.Tag

// Server is the callback surface of one HTTP listener.  Methods
// taking a *RequestMetric, *netserver.Socket or *WebSocket ignore
// nil.
type Server interface {
	// Net records the connections of the listener.  Sockets it
	// returns are passed to RequestBegin.
	Net() netserver.Server

	RequestBegin(ctx context.Context, socket *netserver.Socket, req Request) *RequestMetric
	ResponsePushed(ctx context.Context, socket *netserver.Socket, method, path string, resp Response) *RequestMetric
	RequestReset(ctx context.Context, rm *RequestMetric)
	RequestEnd(ctx context.Context, rm *RequestMetric, req Request, bytesRead int64)
	RequestRouted(ctx context.Context, rm *RequestMetric, route string)
	ResponseEnd(ctx context.Context, rm *RequestMetric, resp Response, bytesWritten int64)

	// Connected records a WebSocket upgrade of an exchange.
	Connected(ctx context.Context, socket *netserver.Socket, rm *RequestMetric) *WebSocket
	// Disconnected records the close of a WebSocket.
	Disconnected(ctx context.Context, ws *WebSocket)
}

type config struct {
	requestTags  RequestTagsProvider
	responseTags ResponseTagsProvider
}

// Option configures Metrics.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) {
	f(c)
}

func WithRequestTagsProvider(p RequestTagsProvider) Option {
	return optionFunc(func(c *config) {
		c.requestTags = p
	})
}

func WithResponseTagsProvider(p ResponseTagsProvider) Option {
	return optionFunc(func(c *config) {
		c.responseTags = p
	})
}

// Metrics produces per-listener instances of the HTTP server domain.
type Metrics struct {
	net    *netserver.Metrics
	scope  meters.Scope
	logger logr.Logger
	cfg    config

	activeRequestsOpts []metric.Float64ObservableGaugeOption
	resetsOpts         []metric.Int64CounterOption
	requestBytesOpts   []metric.Int64HistogramOption
	requestsOpts       []metric.Int64CounterOption
	responseTimeOpts   []metric.Float64HistogramOption
	responseBytesOpts  []metric.Int64HistogramOption
	wsOpts             []metric.Float64ObservableGaugeOption
}

// New returns Metrics for scope, which must be in the HTTP server
// domain.
func New(scope meters.Scope, opts ...Option) *Metrics {
	var cfg config
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &Metrics{
		net:    netserver.New(scope),
		scope:  scope,
		logger: scope.Logger,
		cfg:    cfg,

		activeRequestsOpts: []metric.Float64ObservableGaugeOption{
			metric.WithDescription("Number of requests being processed"),
			metric.WithUnit(meters.UnitCount),
		},
		resetsOpts: []metric.Int64CounterOption{
			metric.WithDescription("Number of request resets"),
			metric.WithUnit(meters.UnitCount),
		},
		requestBytesOpts: []metric.Int64HistogramOption{
			metric.WithDescription("Size of requests in bytes"),
			metric.WithUnit(meters.UnitBytes),
		},
		requestsOpts: []metric.Int64CounterOption{
			metric.WithDescription("Number of processed requests"),
			metric.WithUnit(meters.UnitCount),
		},
		responseTimeOpts: []metric.Float64HistogramOption{
			metric.WithDescription("Request processing time"),
		},
		responseBytesOpts: []metric.Int64HistogramOption{
			metric.WithDescription("Size of responses in bytes"),
			metric.WithUnit(meters.UnitBytes),
		},
		wsOpts: []metric.Float64ObservableGaugeOption{
			metric.WithDescription("Number of websockets currently opened"),
			metric.WithUnit("{connection}"),
		},
	}
}

// ForAddress returns the Instance for a listener bound to local.
func (m *Metrics) ForAddress(local string) *Instance {
	return &Instance{
		net: m.net.ForAddress(local),
		m:   m,
	}
}

// Instance is the Server of one listener.
type Instance struct {
	net *netserver.Instance
	m   *Metrics
}

var _ Server = (*Instance)(nil)

func (i *Instance) Net() netserver.Server {
	return i.net
}

func (i *Instance) baseTags(socket *netserver.Socket) tags.Set {
	if socket == nil {
		return i.net.LocalTags()
	}
	return socket.Tags()
}

func (i *Instance) id(r naming.Role, t tags.Set) meters.ID {
	return meters.ID{Name: i.m.scope.Name(r), Tags: t}
}

// RequestBegin starts tracking an exchange.
func (i *Instance) RequestBegin(ctx context.Context, socket *netserver.Socket, req Request) *RequestMetric {
	if req == nil {
		return nil
	}
	scope := i.m.scope
	ts := make([]tags.Tag, 0, 4)
	ts = scope.AppendTagFunc(ts, tags.HTTPPath, req.Path)
	ts = scope.AppendTagFunc(ts, tags.HTTPMethod, req.Method)
	if p := i.m.cfg.requestTags; p != nil {
		ts = append(ts, p(req)...)
	}
	return i.begin(ctx, i.baseTags(socket).And(ts...))
}

// ResponsePushed starts tracking a server-pushed exchange.  There is
// no request body, so the exchange completes on ResponseEnd.
func (i *Instance) ResponsePushed(ctx context.Context, socket *netserver.Socket, method, path string, _ Response) *RequestMetric {
	scope := i.m.scope
	ts := make([]tags.Tag, 0, 2)
	ts = scope.AppendTag(ts, tags.HTTPPath, path)
	ts = scope.AppendTag(ts, tags.HTTPMethod, method)
	rm := i.begin(ctx, i.baseTags(socket).And(ts...))
	rm.state.EndRequest()
	return rm
}

func (i *Instance) begin(ctx context.Context, t tags.Set) *RequestMetric {
	reg := i.m.scope.Registry
	rm := &RequestMetric{
		tags:         t,
		inFlight:     reg.Gauge(ctx, i.id(naming.HTTPActiveRequests, t), nil, i.m.activeRequestsOpts...),
		resets:       reg.Counter(ctx, i.id(naming.HTTPRequestResetsCount, t), i.m.resetsOpts...),
		requestBytes: reg.Distribution(ctx, i.id(naming.HTTPRequestBytes, t), i.m.requestBytesOpts...),
		sample:       meters.StartTimer(),
	}
	rm.inFlight.Increment()
	return rm
}

// RequestReset aborts an exchange.  The in-flight slot is released
// unless the exchange already completed.
func (i *Instance) RequestReset(ctx context.Context, rm *RequestMetric) {
	if rm == nil {
		return
	}
	if !rm.state.Reset() {
		i.late(rm, "reset")
		return
	}
	rm.resets.Increment(ctx)
	rm.inFlight.Decrement()
}

// RequestEnd records the request size.
func (i *Instance) RequestEnd(ctx context.Context, rm *RequestMetric, _ Request, bytesRead int64) {
	if rm == nil {
		return
	}
	tr := rm.state.EndRequest()
	if !tr.First {
		i.late(rm, "request end")
		return
	}
	rm.requestBytes.Record(ctx, bytesRead)
	if tr.Release {
		rm.inFlight.Decrement()
	}
}

// RequestRouted appends route to the exchange's route tag.  An empty
// route is ignored.
func (i *Instance) RequestRouted(_ context.Context, rm *RequestMetric, route string) {
	if rm == nil || route == "" {
		return
	}
	if _, responded := rm.state.Ended(); responded {
		i.late(rm, "routed")
		return
	}
	rm.routes.Add(route)
}

// ResponseEnd records the request count, the response time and the
// response size, tagged with the route and status code.
func (i *Instance) ResponseEnd(ctx context.Context, rm *RequestMetric, resp Response, bytesWritten int64) {
	if rm == nil {
		return
	}
	tr := rm.state.EndResponse()
	if !tr.First {
		i.late(rm, "response end")
		return
	}

	scope := i.m.scope
	ts := make([]tags.Tag, 0, 4)
	ts = scope.AppendTagFunc(ts, tags.HTTPRoute, rm.routes.String)
	if resp != nil {
		ts = scope.AppendTagFunc(ts, tags.HTTPCode, func() string {
			return strconv.Itoa(resp.StatusCode())
		})
		if p := i.m.cfg.responseTags; p != nil {
			ts = append(ts, p(resp)...)
		}
	}
	responseTags := rm.tags.And(ts...)

	reg := scope.Registry
	reg.Counter(ctx, i.id(naming.HTTPRequestsCount, responseTags), i.m.requestsOpts...).Increment(ctx)
	rm.sample.Stop(ctx, reg.Timer(ctx, i.id(naming.HTTPResponseTime, responseTags), i.m.responseTimeOpts...))
	reg.Distribution(ctx, i.id(naming.HTTPResponseBytes, responseTags), i.m.responseBytesOpts...).Record(ctx, bytesWritten)

	if tr.Release {
		rm.inFlight.Decrement()
	}
}

// Connected counts an open WebSocket on the socket's tags.
func (i *Instance) Connected(ctx context.Context, socket *netserver.Socket, _ *RequestMetric) *WebSocket {
	g := i.m.scope.Registry.Gauge(ctx, i.id(naming.HTTPActiveWsConnections, i.baseTags(socket)), nil, i.m.wsOpts...)
	g.Increment()
	return &WebSocket{connections: g}
}

// Disconnected releases a WebSocket.  Only the first call has an
// effect.
func (i *Instance) Disconnected(_ context.Context, ws *WebSocket) {
	if ws == nil || !ws.closed.CompareAndSwap(false, true) {
		return
	}
	ws.connections.Decrement()
}

func (i *Instance) late(rm *RequestMetric, signal string) {
	if rm.lateLogged.CompareAndSwap(false, true) {
		i.m.logger.V(1).Info("ignoring late lifecycle signal",
			"signal", signal,
			"phase", rm.state.Phase().String(),
			"tags", rm.tags.String(),
		)
	}
}
