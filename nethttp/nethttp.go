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

// Package nethttp instruments a net/http server with an
// httpserver.Server.
//
//	srv := &http.Server{Addr: ":8080", Handler: mux}
//	nethttp.New(m.HTTPServer(srv.Addr)).Instrument(srv)
//
// Instrument tracks connections through the server's ConnContext and
// ConnState hooks and wraps its handler so that every request is an
// exchange.  A request ends when its body reaches EOF or the handler
// returns; the response ends when the handler returns.  A request
// whose context is cancelled before the handler returns, or whose
// handler panics, is reset.
package nethttp // import "github.com/lightstep/otel-netmetrics-go/nethttp"

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/lightstep/otel-netmetrics-go/httpserver"
	"github.com/lightstep/otel-netmetrics-go/netserver"
)

type config struct {
	routeFunc func(*http.Request) string
}

// Option configures an Instrumentation.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) {
	f(c)
}

// WithRouteFunc names the route of a request when the handler did not
// call AddRoute.  The default is the ServeMux pattern that matched.
func WithRouteFunc(f func(*http.Request) string) Option {
	return optionFunc(func(c *config) {
		c.routeFunc = f
	})
}

// Instrumentation connects one http.Server to one httpserver.Server.
type Instrumentation struct {
	server  httpserver.Server
	cfg     config
	sockets sync.Map // net.Conn -> *netserver.Socket
}

// New returns an Instrumentation recording into server.
func New(server httpserver.Server, opts ...Option) *Instrumentation {
	cfg := config{
		routeFunc: func(r *http.Request) string {
			return r.Pattern
		},
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &Instrumentation{server: server, cfg: cfg}
}

// Instrument installs the connection hooks and the handler wrapper on
// s, chaining any hooks already set.  Call it before s starts
// serving.
func (in *Instrumentation) Instrument(s *http.Server) {
	prevCtx := s.ConnContext
	s.ConnContext = func(ctx context.Context, c net.Conn) context.Context {
		if prevCtx != nil {
			ctx = prevCtx(ctx, c)
		}
		return in.ConnContext(ctx, c)
	}
	prevState := s.ConnState
	s.ConnState = func(c net.Conn, state http.ConnState) {
		in.ConnState(c, state)
		if prevState != nil {
			prevState(c, state)
		}
	}
	next := s.Handler
	if next == nil {
		next = http.DefaultServeMux
	}
	s.Handler = in.Handler(next)
}

type socketKey struct{}

// ConnContext records a new connection.  Use it as
// http.Server.ConnContext together with ConnState.
func (in *Instrumentation) ConnContext(ctx context.Context, c net.Conn) context.Context {
	socket := in.server.Net().Connected(ctx, netserver.Address(c.RemoteAddr()))
	if socket == nil {
		return ctx
	}
	in.sockets.Store(c, socket)
	return context.WithValue(ctx, socketKey{}, socket)
}

// ConnState releases a connection once it is closed.  A hijacked
// connection stays open until the handler closes the returned conn.
func (in *Instrumentation) ConnState(c net.Conn, state http.ConnState) {
	switch state {
	case http.StateClosed:
		if v, ok := in.sockets.LoadAndDelete(c); ok {
			in.server.Net().Disconnected(context.Background(), v.(*netserver.Socket))
		}
	case http.StateHijacked:
		in.sockets.Delete(c)
	}
}

func socketFrom(ctx context.Context) *netserver.Socket {
	s, _ := ctx.Value(socketKey{}).(*netserver.Socket)
	return s
}

type request struct {
	r *http.Request
}

func (r request) Method() string { return r.r.Method }

// Path is the request target as sent, query included.
func (r request) Path() string {
	if u := r.r.RequestURI; strings.HasPrefix(u, "/") {
		return u
	}
	return r.r.URL.RequestURI()
}

type status int

func (s status) StatusCode() int { return int(s) }

type exchangeKey struct{}

type exchange struct {
	server httpserver.Server
	rm     *httpserver.RequestMetric
	routed bool
}

// AddRoute appends route to the route tag of the exchange carried by
// ctx.  Nested routers call it once per routing step; the steps are
// joined with '>'.  It does nothing outside an instrumented handler.
func AddRoute(ctx context.Context, route string) {
	ex, ok := ctx.Value(exchangeKey{}).(*exchange)
	if !ok || route == "" {
		return
	}
	ex.routed = true
	ex.server.RequestRouted(ctx, ex.rm, route)
}

// Handler wraps next so that each request is recorded as an exchange.
func (in *Instrumentation) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		socket := socketFrom(ctx)
		srv := in.server

		rm := srv.RequestBegin(ctx, socket, request{r: r})
		ex := &exchange{server: srv, rm: rm}

		body := &countingBody{ReadCloser: r.Body}
		if r.Body == nil || r.Body == http.NoBody {
			body = nil
		}
		rw := &responseWriter{
			ResponseWriter: w,
			ctx:            ctx,
			srv:            srv,
			socket:         socket,
			rm:             rm,
			upgrade:        isWebSocketUpgrade(r),
		}
		r2 := r.WithContext(context.WithValue(ctx, exchangeKey{}, ex))
		if body != nil {
			body.end = func(n int64) {
				srv.RequestEnd(ctx, rm, request{r: r}, n)
			}
			r2.Body = body
		}

		defer func() {
			if v := recover(); v != nil {
				srv.RequestReset(ctx, rm)
				panic(v)
			}
		}()
		next.ServeHTTP(rw, r2)

		if !ex.routed {
			if route := in.cfg.routeFunc(r2); route != "" {
				srv.RequestRouted(ctx, rm, route)
			}
		}

		var read int64
		if body != nil {
			read = body.count()
		}
		srv.Net().BytesRead(ctx, socket, read)
		srv.Net().BytesWritten(ctx, socket, rw.written)

		if ctx.Err() != nil && !rw.hijacked {
			// the client went away
			srv.RequestReset(ctx, rm)
			return
		}
		srv.ResponseEnd(ctx, rm, status(rw.statusCode()), rw.written)
		if body == nil {
			srv.RequestEnd(ctx, rm, request{r: r}, 0)
		} else {
			body.finish()
		}
	})
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
