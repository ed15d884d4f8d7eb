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

package nethttp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	netmetrics "github.com/lightstep/otel-netmetrics-go"
	"github.com/lightstep/otel-netmetrics-go/internal/metrictest"
	"github.com/lightstep/otel-netmetrics-go/tags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

const (
	requestsName     = "netmetrics.http.server.requests"
	activeName       = "netmetrics.http.server.active.requests"
	resetsName       = "netmetrics.http.server.request.resets"
	requestBytes     = "netmetrics.http.server.request.bytes"
	responseBytes    = "netmetrics.http.server.response.bytes"
	connectionsName  = "netmetrics.http.server.active.connections"
	wsName           = "netmetrics.http.server.active.ws.connections"
	bytesReadName    = "netmetrics.http.server.bytes.read"
	bytesWrittenName = "netmetrics.http.server.bytes.written"

	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func startServer(t *testing.T, handler http.Handler, labels ...tags.Label) (*metrictest.Harness, *httptest.Server) {
	h := metrictest.New(t)
	if len(labels) == 0 {
		labels = []tags.Label{tags.HTTPMethod, tags.HTTPPath, tags.HTTPRoute, tags.HTTPCode}
	}
	m, err := netmetrics.New(
		netmetrics.WithMeterProvider(h.Provider),
		netmetrics.WithLabels(labels...),
		netmetrics.WithLogger(logr.Discard()),
	)
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(handler)
	New(m.HTTPServer("test")).Instrument(ts.Config)
	ts.Start()
	t.Cleanup(ts.Close)
	return h, ts
}

func TestServeMux(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /resource", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write(bytes.Repeat([]byte("x"), 100))
	})
	h, ts := startServer(t, mux)

	resp, err := ts.Client().Post(ts.URL+"/resource", "text/plain", bytes.NewReader(bytes.Repeat([]byte("y"), 50)))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reqAttrs := []attribute.KeyValue{attribute.String("method", "POST"), attribute.String("path", "/resource")}
	respAttrs := append(append([]attribute.KeyValue{}, reqAttrs...),
		attribute.String("route", "POST /resource"),
		attribute.String("code", "200"),
	)

	require.Eventually(t, func() bool {
		n, _ := h.Collect(t).Int64Sum(requestsName, respAttrs...)
		return n == 1
	}, waitFor, tick)

	snap := h.Collect(t)
	rb, ok := snap.Int64Histogram(responseBytes, respAttrs...)
	require.True(t, ok)
	require.Equal(t, int64(100), rb.Sum)

	qb, ok := snap.Int64Histogram(requestBytes, reqAttrs...)
	require.True(t, ok)
	require.Equal(t, int64(50), qb.Sum)

	active, ok := snap.Float64Gauge(activeName, reqAttrs...)
	require.True(t, ok)
	require.Equal(t, 0.0, active)

	read, _ := snap.Int64Sum(bytesReadName)
	require.Equal(t, int64(50), read)
	written, _ := snap.Int64Sum(bytesWrittenName)
	require.Equal(t, int64(100), written)
}

func TestPathKeepsQuery(t *testing.T) {
	h, ts := startServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), tags.HTTPPath)

	resp, err := ts.Client().Get(ts.URL + "/search?q=otel&page=2")
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		n, _ := h.Collect(t).Int64Sum(requestsName, attribute.String("path", "/search?q=otel&page=2"))
		return n == 1
	}, waitFor, tick)

	snap := h.Collect(t)
	_, ok := snap.Int64Sum(requestsName, attribute.String("path", "/search"))
	require.False(t, ok)
}

func TestNotFoundAndStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusEarlyHints)
		w.WriteHeader(http.StatusTeapot)
	})
	h, ts := startServer(t, mux, tags.HTTPCode)

	for _, path := range []string{"/teapot", "/missing"} {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.Eventually(t, func() bool {
		snap := h.Collect(t)
		teapot, _ := snap.Int64Sum(requestsName, attribute.String("code", "418"))
		missing, _ := snap.Int64Sum(requestsName, attribute.String("code", "404"))
		return teapot == 1 && missing == 1
	}, waitFor, tick)
}

func TestAddRoute(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddRoute(r.Context(), "api")
		AddRoute(r.Context(), "")
		AddRoute(r.Context(), "users")
		w.WriteHeader(http.StatusNoContent)
	})
	h, ts := startServer(t, handler, tags.HTTPRoute)

	resp, err := ts.Client().Get(ts.URL + "/api/users")
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		n, _ := h.Collect(t).Int64Sum(requestsName, attribute.String("route", "api>users"))
		return n == 1
	}, waitFor, tick)

	// outside a handler
	AddRoute(context.Background(), "ignored")
}

func TestRouteFunc(t *testing.T) {
	h := metrictest.New(t)
	m, err := netmetrics.New(
		netmetrics.WithMeterProvider(h.Provider),
		netmetrics.WithLabels(tags.HTTPRoute),
		netmetrics.WithLogger(logr.Discard()),
	)
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	New(m.HTTPServer("test"), WithRouteFunc(func(r *http.Request) string {
		return strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)[0]
	})).Instrument(ts.Config)
	ts.Start()
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/orders/42")
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		n, _ := h.Collect(t).Int64Sum(requestsName, attribute.String("route", "orders"))
		return n == 1
	}, waitFor, tick)
}

func TestClientGoneIsReset(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})
	h, ts := startServer(t, handler, tags.HTTPMethod)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	_, err = ts.Client().Do(req)
	require.Error(t, err)

	attr := attribute.String("method", "GET")
	require.Eventually(t, func() bool {
		n, _ := h.Collect(t).Int64Sum(resetsName, attr)
		return n == 1
	}, waitFor, tick)

	snap := h.Collect(t)
	active, _ := snap.Float64Gauge(activeName, attr)
	require.Equal(t, 0.0, active)
	require.False(t, snap.Has(requestsName))
}

func TestPanicIsReset(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})
	h, ts := startServer(t, handler, tags.HTTPMethod)

	_, err := ts.Client().Get(ts.URL)
	require.Error(t, err)

	attr := attribute.String("method", "GET")
	require.Eventually(t, func() bool {
		n, _ := h.Collect(t).Int64Sum(resetsName, attr)
		return n == 1
	}, waitFor, tick)
	active, _ := h.Collect(t).Float64Gauge(activeName, attr)
	require.Equal(t, 0.0, active)
}

func TestConnectionsReleased(t *testing.T) {
	h, ts := startServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	resp, err := ts.Client().Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()

	v, ok := h.Collect(t).Float64Gauge(connectionsName)
	require.True(t, ok)
	require.Equal(t, 1.0, v)

	ts.Client().CloseIdleConnections()
	require.Eventually(t, func() bool {
		v, _ := h.Collect(t).Float64Gauge(connectionsName)
		return v == 0
	}, waitFor, tick)
}

func TestWebSocketUpgrade(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := http.NewResponseController(w).Hijack()
		if !assert.NoError(t, err) {
			return
		}
		_, _ = buf.WriteString("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
		_ = buf.Flush()
		go func() {
			_, _ = io.Copy(io.Discard, conn)
			conn.Close()
		}()
	})
	h, ts := startServer(t, handler, tags.HTTPCode)

	conn, err := net.Dial("tcp", ts.Listener.Addr().String())
	require.NoError(t, err)
	_, err = io.WriteString(conn, "GET /ws HTTP/1.1\r\nHost: test\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "HTTP/1.1 101"))

	require.Eventually(t, func() bool {
		v, _ := h.Collect(t).Float64Gauge(wsName)
		return v == 1
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		n, _ := h.Collect(t).Int64Sum(requestsName, attribute.String("code", "101"))
		return n == 1
	}, waitFor, tick)

	// the upgraded connection is still open
	v, ok := h.Collect(t).Float64Gauge(connectionsName)
	require.True(t, ok)
	require.Equal(t, 1.0, v)

	conn.Close()
	require.Eventually(t, func() bool {
		snap := h.Collect(t)
		ws, _ := snap.Float64Gauge(wsName)
		conns, _ := snap.Float64Gauge(connectionsName)
		return ws == 0 && conns == 0
	}, waitFor, tick)
}

func TestHijackedConnectionHeldUntilClose(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := http.NewResponseController(w).Hijack()
		if !assert.NoError(t, err) {
			return
		}
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
		_ = buf.Flush()
		go func() {
			<-release
			conn.Close()
		}()
	})
	h, ts := startServer(t, handler, tags.HTTPCode)

	conn, err := net.Dial("tcp", ts.Listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET /raw HTTP/1.1\r\nHost: test\r\n\r\n")
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "HTTP/1.1 200"))

	require.Eventually(t, func() bool {
		n, _ := h.Collect(t).Int64Sum(requestsName, attribute.String("code", "200"))
		return n == 1
	}, waitFor, tick)

	snap := h.Collect(t)
	v, ok := snap.Float64Gauge(connectionsName)
	require.True(t, ok)
	require.Equal(t, 1.0, v)
	require.False(t, snap.Has(wsName))

	close(release)
	require.Eventually(t, func() bool {
		v, _ := h.Collect(t).Float64Gauge(connectionsName)
		return v == 0
	}, waitFor, tick)
}

func TestInstrumentChainsHooks(t *testing.T) {
	h := metrictest.New(t)
	m, err := netmetrics.New(netmetrics.WithMeterProvider(h.Provider), netmetrics.WithLogger(logr.Discard()))
	require.NoError(t, err)

	var ctxCalls, stateCalls atomic.Int32
	type key struct{}
	s := &http.Server{
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			ctxCalls.Add(1)
			return context.WithValue(ctx, key{}, "kept")
		},
		ConnState: func(net.Conn, http.ConnState) {
			stateCalls.Add(1)
		},
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, r.Context().Value(key{}).(string))
		}),
	}
	New(m.HTTPServer("test")).Instrument(s)

	ts := httptest.NewUnstartedServer(nil)
	ts.Config = s
	ts.Start()
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	require.Equal(t, "kept", string(body))
	require.Equal(t, int32(1), ctxCalls.Load())
	require.Positive(t, stateCalls.Load())
}

func TestDefaultServeMux(t *testing.T) {
	s := &http.Server{}
	New(nil).Instrument(s)
	require.NotNil(t, s.Handler)
}
