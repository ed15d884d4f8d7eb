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

// Package netmetrics instruments the request and connection lifecycle
// of network servers with OpenTelemetry metrics.
//
// A Metrics value is built once per process with New and hands out one
// facade per listening address:
//
//	m, err := netmetrics.New(netmetrics.WithMeterProvider(provider))
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//	srv := m.HTTPServer("0.0.0.0:8080")
//
// Tag values pass through the enabled-label filter and the configured
// label matches before they become part of a metric identity, so
// unbounded values such as client addresses can be collapsed.
package netmetrics // import "github.com/lightstep/otel-netmetrics-go"

import (
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/lightstep/otel-netmetrics-go/httpserver"
	"github.com/lightstep/otel-netmetrics-go/match"
	"github.com/lightstep/otel-netmetrics-go/meters"
	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/netserver"
	"github.com/lightstep/otel-netmetrics-go/tags"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
)

// InstrumentationName is the name of the Meter used for every metric.
const InstrumentationName = "github.com/lightstep/otel-netmetrics-go"

// Metrics is the composition root: it owns the registry and builds
// the facades of every enabled domain.
type Metrics struct {
	scope    meters.Scope
	registry *meters.Registry
	enabled  map[naming.Domain]bool

	http *httpserver.Metrics
	net  *netserver.Metrics
}

// newConfig computes a config from a list of Options.
func newConfig(opts ...Option) config {
	c := config{
		MeterProvider:  otel.GetMeterProvider(),
		Labels:         tags.DefaultLabels(),
		MeterCacheSize: DefaultMeterCacheSize,
		Names:          naming.DefaultNames(),
		Logger:         stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("netmetrics"),
	}
	for _, opt := range opts {
		opt.apply(&c)
	}
	return c
}

// DefaultMeterCacheSize is the per-worker handle cache bound.
const DefaultMeterCacheSize = 50

// New validates the options and returns Metrics.  Configuration
// problems are all reported, combined into one error.
func New(opts ...Option) (*Metrics, error) {
	cfg := newConfig(opts...)

	var err error
	matchers, merr := match.Compile(cfg.LabelMatches...)
	if merr != nil {
		err = multierr.Append(err, fmt.Errorf("label matches: %w", merr))
	}
	if nerr := cfg.Names.Validate(); nerr != nil {
		err = multierr.Append(err, nerr)
	}
	if cfg.MeterCacheSize < 1 {
		err = multierr.Append(err, fmt.Errorf("meter cache size must be positive: %d", cfg.MeterCacheSize))
	}
	for _, d := range cfg.DisabledDomains {
		if !d.Valid() {
			err = multierr.Append(err, fmt.Errorf("unknown metrics domain: %v", d))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := meters.NewRegistry(
		cfg.MeterProvider.Meter(InstrumentationName, metric.WithInstrumentationVersion(Version())),
		meters.WithFilters(cfg.RegistryFilters...),
		meters.WithCacheSize(cfg.MeterCacheSize),
		meters.WithLogger(cfg.Logger),
	)
	m := &Metrics{
		scope: meters.Scope{
			Registry: registry,
			Names:    cfg.Names,
			Labels:   cfg.Labels,
			Matchers: matchers,
			Logger:   cfg.Logger,
		},
		registry: registry,
		enabled:  map[naming.Domain]bool{},
	}
	for _, d := range naming.AllDomains() {
		m.enabled[d] = true
	}
	for _, d := range cfg.DisabledDomains {
		m.enabled[d] = false
	}

	if m.enabled[naming.HTTPServer] {
		m.http = httpserver.New(m.scope.ForDomain(naming.HTTPServer),
			httpserver.WithRequestTagsProvider(cfg.RequestTags),
			httpserver.WithResponseTagsProvider(cfg.ResponseTags),
		)
	}
	if m.enabled[naming.NetServer] {
		m.net = netserver.New(m.scope.ForDomain(naming.NetServer))
	}
	cfg.Logger.V(1).Info("metrics configured",
		"labels", cfg.Labels.String(),
		"labelMatches", matchers.Len(),
		"meterCacheSize", cfg.MeterCacheSize,
	)
	return m, nil
}

// Enabled reports whether domain d records metrics.
func (m *Metrics) Enabled(d naming.Domain) bool {
	return m.enabled[d]
}

// HTTPServer returns the facade of an HTTP server bound to local.
func (m *Metrics) HTTPServer(local string) httpserver.Server {
	if m.http == nil {
		return httpserver.Noop{}
	}
	return m.http.ForAddress(local)
}

// NetServer returns the facade of a TCP server bound to local.
func (m *Metrics) NetServer(local string) netserver.Server {
	if m.net == nil {
		return netserver.Noop{}
	}
	return m.net.ForAddress(local)
}

// Registry is the registry shared by every facade.  Custom gauges
// registered through it follow the same filters.
func (m *Metrics) Registry() *meters.Registry {
	return m.registry
}

// Scope is the shared scope, not bound to a domain.
func (m *Metrics) Scope() meters.Scope {
	return m.scope
}

// Logger is the configured logger.
func (m *Metrics) Logger() logr.Logger {
	return m.scope.Logger
}

// Close releases cached handles and stops observing gauges.
func (m *Metrics) Close() {
	m.registry.Close()
}
