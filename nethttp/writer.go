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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/lightstep/otel-netmetrics-go/httpserver"
	"github.com/lightstep/otel-netmetrics-go/netserver"
)

// countingBody ends the request when the body is drained.
type countingBody struct {
	io.ReadCloser
	n    atomic.Int64
	once sync.Once
	end  func(int64)
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n.Add(int64(n))
	if errors.Is(err, io.EOF) {
		b.finish()
	}
	return n, err
}

func (b *countingBody) count() int64 {
	return b.n.Load()
}

func (b *countingBody) finish() {
	b.once.Do(func() {
		if b.end != nil {
			b.end(b.n.Load())
		}
	})
}

// responseWriter records the status code and the body size.
type responseWriter struct {
	http.ResponseWriter

	ctx     context.Context
	srv     httpserver.Server
	socket  *netserver.Socket
	rm      *httpserver.RequestMetric
	upgrade bool

	status   int
	written  int64
	hijacked bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.status == 0 && (code >= 200 || code == http.StatusSwitchingProtocols) {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *responseWriter) statusCode() int {
	if w.status == 0 {
		if w.hijacked && w.upgrade {
			return http.StatusSwitchingProtocols
		}
		return http.StatusOK
	}
	return w.status
}

// Flush implements http.Flusher.
func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if w.status == 0 {
			w.status = http.StatusOK
		}
		f.Flush()
	}
}

// Hijack implements http.Hijacker.  The connection stays counted
// until the returned conn closes, and a hijacked WebSocket upgrade is
// counted as an open WebSocket for as long.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not implement http.Hijacker", w.ResponseWriter)
	}
	conn, buf, err := h.Hijack()
	if err != nil {
		return conn, buf, err
	}
	w.hijacked = true
	hc := &hijackedConn{
		Conn:   conn,
		srv:    w.srv,
		socket: w.socket,
	}
	if w.upgrade {
		hc.ws = w.srv.Connected(w.ctx, w.socket, w.rm)
	}
	return hc, buf, nil
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type hijackedConn struct {
	net.Conn
	srv    httpserver.Server
	socket *netserver.Socket
	ws     *httpserver.WebSocket
	once   sync.Once
}

func (c *hijackedConn) Close() error {
	c.once.Do(func() {
		ctx := context.Background()
		c.srv.Disconnected(ctx, c.ws)
		c.srv.Net().Disconnected(ctx, c.socket)
	})
	return c.Conn.Close()
}
