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


// Command netmetrics-demo serves a small HTTP API instrumented with
// netmetrics and exposes its metrics for Prometheus.  For example:
//
//	NETMETRICS_LABELS=method,route,code \
//	NETMETRICS_METRICS_OTLP_ENDPOINT=localhost:4317 \
//	NETMETRICS_METRICS_OTLP_INSECURE=true \
//	go run ./cmd/netmetrics-demo -addr :8080 -metrics-addr :9464
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	netmetrics "github.com/lightstep/otel-netmetrics-go"
	"github.com/lightstep/otel-netmetrics-go/config"
	"github.com/lightstep/otel-netmetrics-go/nethttp"
	"github.com/lightstep/otel-netmetrics-go/pipelines"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	addr := flag.String("addr", ":8080", "API listen address")
	metricsAddr := flag.String("metrics-addr", ":9464", "Prometheus listen address")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFile(ctx, *configPath)
	if err != nil {
		logger.Fatal("wrong configuration", zap.Error(err))
	}

	d, err := newDemo(cfg, logger, *addr)
	if err != nil {
		logger.Fatal("setup failed", zap.Error(err))
	}

	appL, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", *addr), zap.Error(err))
	}
	metricsL, err := net.Listen("tcp", *metricsAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", *metricsAddr), zap.Error(err))
	}

	err = d.serve(ctx, appL, metricsL)
	if cerr := d.close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	if err != nil {
		logger.Fatal("stopped", zap.Error(err))
	}
}

type demo struct {
	logger   *zap.Logger
	provider *sdkmetric.MeterProvider
	metrics  *netmetrics.Metrics
	app      *http.Server
	scrape   *http.Server
}

func newDemo(cfg *config.Config, logger *zap.Logger, addr string) (*demo, error) {
	reg := prometheus.NewRegistry()
	pc := cfg.PipelineConfig()
	pc.Registerer = reg
	provider, err := pipelines.NewMeterProvider(pc)
	if err != nil {
		return nil, err
	}

	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	m, err := netmetrics.New(append(opts,
		netmetrics.WithMeterProvider(provider),
		netmetrics.WithLogger(stdr.New(zap.NewStdLog(logger)).WithName("netmetrics")),
	)...)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	app := &http.Server{
		Handler:           routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	nethttp.New(m.HTTPServer(addr)).Instrument(app)

	return &demo{
		logger:   logger,
		provider: provider,
		metrics:  m,
		app:      app,
		scrape: &http.Server{
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /hello/{name}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "hello, %s\n", r.PathValue("name"))
	})
	mux.HandleFunc("POST /echo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(w, r.Body)
	})
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusNoContent)
		case <-r.Context().Done():
		}
	})
	return mux
}

// serve runs both servers until ctx is done or one of them fails.
func (d *demo) serve(ctx context.Context, appL, metricsL net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	run := func(name string, s *http.Server, l net.Listener) {
		g.Go(func() error {
			d.logger.Info("listening", zap.String("server", name), zap.Stringer("addr", l.Addr()))
			if err := s.Serve(l); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
	}
	run("api", d.app, appL)
	run("metrics", d.scrape, metricsL)

	g.Go(func() error {
		<-ctx.Done()
		d.logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(d.app.Shutdown(sctx), d.scrape.Shutdown(sctx))
	})
	return g.Wait()
}

func (d *demo) close() error {
	d.metrics.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return d.provider.Shutdown(ctx)
}
