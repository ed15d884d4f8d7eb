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

// Package meters adapts an OpenTelemetry Meter into the handles used
// by the facades: counters, distributions, timers and custom gauges,
// each bound to one tag set.
//
// Handles are resolved through a per-worker cache so that the
// registry lock is only taken when a worker meets an identity for the
// first time.  Instrument creation errors never reach callers: they
// are passed to otel.Handle and a no-op handle is returned.
package meters // import "github.com/lightstep/otel-netmetrics-go/meters"

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/lightstep/otel-netmetrics-go/metercache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Units used by the facades.
const (
	UnitBytes   = "By"
	UnitSeconds = "s"
	UnitCount   = "{request}"
)

type registryConfig struct {
	filters   []Filter
	cacheSize int
	logger    logr.Logger
}

// RegistryOption configures a Registry.
type RegistryOption interface {
	apply(*registryConfig)
}

type registryOptionFunc func(*registryConfig)

func (f registryOptionFunc) apply(c *registryConfig) {
	f(c)
}

// WithFilters appends registry filters, consulted in order.
func WithFilters(fs ...Filter) RegistryOption {
	return registryOptionFunc(func(c *registryConfig) {
		c.filters = append(c.filters, fs...)
	})
}

// WithCacheSize bounds each worker's handle cache.
func WithCacheSize(n int) RegistryOption {
	return registryOptionFunc(func(c *registryConfig) {
		c.cacheSize = n
	})
}

// WithLogger sets the logger used for debug output.
func WithLogger(l logr.Logger) RegistryOption {
	return registryOptionFunc(func(c *registryConfig) {
		c.logger = l
	})
}

// Registry creates and caches meter handles.  It is safe for
// concurrent use.
type Registry struct {
	meter   metric.Meter
	filters []Filter
	cache   *metercache.Cache[ID, any]
	logger  logr.Logger

	lock       sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Int64Histogram
	timers     map[string]metric.Float64Histogram
	gauges     map[string]*gaugeFamily
}

// NewRegistry returns a Registry creating instruments with meter.
func NewRegistry(meter metric.Meter, opts ...RegistryOption) *Registry {
	cfg := registryConfig{
		cacheSize: metercache.DefaultSize,
		logger:    logr.Discard(),
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	return &Registry{
		meter:      meter,
		filters:    cfg.filters,
		cache:      metercache.New[ID, any](cfg.cacheSize),
		logger:     cfg.logger,
		counters:   map[string]metric.Int64Counter{},
		histograms: map[string]metric.Int64Histogram{},
		timers:     map[string]metric.Float64Histogram{},
		gauges:     map[string]*gaugeFamily{},
	}
}

// Cache exposes the handle cache so hosts can create worker-local
// instances with Cache().NewLocal().
func (r *Registry) Cache() *metercache.Cache[ID, any] {
	return r.cache
}

// NewWorkerContext attaches a fresh worker-local cache to ctx.  The
// returned release function clears it at worker teardown.
func (r *Registry) NewWorkerContext(ctx context.Context) (context.Context, func()) {
	l := r.cache.NewLocal()
	return metercache.NewContext(ctx, l), l.Close
}

// Close unregisters gauge callbacks and drops pooled caches.  Handles
// already returned keep working but gauges stop being observed.
func (r *Registry) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for name, g := range r.gauges {
		if g.reg != nil {
			if err := g.reg.Unregister(); err != nil {
				otel.Handle(err)
			}
		}
		delete(r.gauges, name)
	}
	r.cache.Close()
}

// admit runs the filters.
func (r *Registry) admit(id ID) (ID, bool) {
	for _, f := range r.filters {
		var ok bool
		if id, ok = f(id); !ok {
			r.logger.V(1).Info("meter denied by filter", "meter", id.String(), "kind", id.Kind.String())
			return id, false
		}
	}
	return id, true
}

// lookup returns the cached handle for id or resolves a new one.
func lookup[H any](ctx context.Context, r *Registry, id ID, resolve func(ID) H) H {
	if v, ok := r.cache.Get(ctx, id); ok {
		if h, ok := v.(H); ok {
			return h
		}
	}
	h := resolve(id)
	r.cache.Put(ctx, id, h)
	return h
}

// Counter returns a monotonic counter bound to the tags of the
// identity.  opts only take effect the first time name is seen.
func (r *Registry) Counter(ctx context.Context, id ID, opts ...metric.Int64CounterOption) Counter {
	id.Kind = CounterKind
	return lookup(ctx, r, id, func(id ID) Counter {
		id, ok := r.admit(id)
		if !ok {
			return Counter{inst: noop.Int64Counter{}}
		}
		r.lock.Lock()
		defer r.lock.Unlock()
		inst, ok := r.counters[id.Name]
		if !ok {
			var err error
			if inst, err = r.meter.Int64Counter(id.Name, opts...); err != nil {
				otel.Handle(err)
				return Counter{inst: noop.Int64Counter{}}
			}
			r.counters[id.Name] = inst
		}
		return Counter{inst: inst, attrs: metric.WithAttributeSet(id.Tags.Attributes())}
	})
}

// Distribution returns an integer histogram bound to the tags of the
// identity.
func (r *Registry) Distribution(ctx context.Context, id ID, opts ...metric.Int64HistogramOption) Distribution {
	id.Kind = DistributionKind
	return lookup(ctx, r, id, func(id ID) Distribution {
		id, ok := r.admit(id)
		if !ok {
			return Distribution{inst: noop.Int64Histogram{}}
		}
		r.lock.Lock()
		defer r.lock.Unlock()
		inst, ok := r.histograms[id.Name]
		if !ok {
			var err error
			if inst, err = r.meter.Int64Histogram(id.Name, opts...); err != nil {
				otel.Handle(err)
				return Distribution{inst: noop.Int64Histogram{}}
			}
			r.histograms[id.Name] = inst
		}
		return Distribution{inst: inst, attrs: metric.WithAttributeSet(id.Tags.Attributes())}
	})
}

// Timer returns a duration histogram, in seconds, bound to the tags
// of the identity.
func (r *Registry) Timer(ctx context.Context, id ID, opts ...metric.Float64HistogramOption) Timer {
	id.Kind = TimerKind
	return lookup(ctx, r, id, func(id ID) Timer {
		id, ok := r.admit(id)
		if !ok {
			return Timer{inst: noop.Float64Histogram{}}
		}
		r.lock.Lock()
		defer r.lock.Unlock()
		inst, ok := r.timers[id.Name]
		if !ok {
			var err error
			opts = append([]metric.Float64HistogramOption{metric.WithUnit(UnitSeconds)}, opts...)
			if inst, err = r.meter.Float64Histogram(id.Name, opts...); err != nil {
				otel.Handle(err)
				return Timer{inst: noop.Float64Histogram{}}
			}
			r.timers[id.Name] = inst
		}
		return Timer{inst: inst, attrs: metric.WithAttributeSet(id.Tags.Attributes())}
	})
}

// Gauge returns the accumulator of a custom gauge.  The same identity
// always yields the same accumulator; a denied identity yields
// NoopGauge.  valueFunc converts the accumulator at collection time;
// nil reports it as is.
func (r *Registry) Gauge(ctx context.Context, id ID, valueFunc func(int64) float64, opts ...metric.Float64ObservableGaugeOption) Gauge {
	id.Kind = GaugeKind
	return lookup(ctx, r, id, func(id ID) Gauge {
		id, ok := r.admit(id)
		if !ok {
			return NoopGauge{}
		}
		r.lock.Lock()
		defer r.lock.Unlock()
		fam, ok := r.gauges[id.Name]
		if !ok {
			var err error
			if fam, err = newGaugeFamily(r.meter, id.Name, opts...); err != nil {
				otel.Handle(err)
				return NoopGauge{}
			}
			r.gauges[id.Name] = fam
		}
		return fam.series(id.Tags, valueFunc)
	})
}
