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

// Package metrictest collects metrics from an in-memory SDK for tests.
package metrictest // import "github.com/lightstep/otel-netmetrics-go/internal/metrictest"

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Harness pairs an SDK MeterProvider with a manual reader.
type Harness struct {
	Provider *sdkmetric.MeterProvider
	Reader   *sdkmetric.ManualReader
}

// New returns a Harness.  The provider is shut down when the test
// ends.
func New(t testing.TB, opts ...sdkmetric.Option) *Harness {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(append([]sdkmetric.Option{sdkmetric.WithReader(reader)}, opts...)...)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	return &Harness{Provider: provider, Reader: reader}
}

// Collect reads every metric.
func (h *Harness) Collect(t testing.TB) Snapshot {
	var rm metricdata.ResourceMetrics
	require.NoError(t, h.Reader.Collect(context.Background(), &rm))
	return Snapshot{rm: rm}
}

// Snapshot is the result of one collection.
type Snapshot struct {
	rm metricdata.ResourceMetrics
}

// Metric returns the named metric.
func (s Snapshot) Metric(name string) (metricdata.Metrics, bool) {
	for _, sm := range s.rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// Has reports whether the named metric was collected.
func (s Snapshot) Has(name string) bool {
	_, ok := s.Metric(name)
	return ok
}

// Names lists every collected metric name.
func (s Snapshot) Names() []string {
	var out []string
	for _, sm := range s.rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out = append(out, m.Name)
		}
	}
	return out
}

// Int64Sum returns the value of the int64 sum point whose attributes
// are exactly attrs.
func (s Snapshot) Int64Sum(name string, attrs ...attribute.KeyValue) (int64, bool) {
	m, ok := s.Metric(name)
	if !ok {
		return 0, false
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return 0, false
	}
	want := attribute.NewSet(attrs...)
	for _, p := range sum.DataPoints {
		if p.Attributes.Equals(&want) {
			return p.Value, true
		}
	}
	return 0, false
}

// Float64Gauge returns the value of the float64 gauge point whose
// attributes are exactly attrs.
func (s Snapshot) Float64Gauge(name string, attrs ...attribute.KeyValue) (float64, bool) {
	m, ok := s.Metric(name)
	if !ok {
		return 0, false
	}
	g, ok := m.Data.(metricdata.Gauge[float64])
	if !ok {
		return 0, false
	}
	want := attribute.NewSet(attrs...)
	for _, p := range g.DataPoints {
		if p.Attributes.Equals(&want) {
			return p.Value, true
		}
	}
	return 0, false
}

// Int64Histogram returns the int64 histogram point whose attributes
// are exactly attrs.
func (s Snapshot) Int64Histogram(name string, attrs ...attribute.KeyValue) (metricdata.HistogramDataPoint[int64], bool) {
	return histogramPoint[int64](s, name, attrs)
}

// Float64Histogram returns the float64 histogram point whose
// attributes are exactly attrs.
func (s Snapshot) Float64Histogram(name string, attrs ...attribute.KeyValue) (metricdata.HistogramDataPoint[float64], bool) {
	return histogramPoint[float64](s, name, attrs)
}

func histogramPoint[N int64 | float64](s Snapshot, name string, attrs []attribute.KeyValue) (metricdata.HistogramDataPoint[N], bool) {
	m, ok := s.Metric(name)
	if !ok {
		return metricdata.HistogramDataPoint[N]{}, false
	}
	h, ok := m.Data.(metricdata.Histogram[N])
	if !ok {
		return metricdata.HistogramDataPoint[N]{}, false
	}
	want := attribute.NewSet(attrs...)
	for _, p := range h.DataPoints {
		if p.Attributes.Equals(&want) {
			return p, true
		}
	}
	return metricdata.HistogramDataPoint[N]{}, false
}

// Points counts the data points of the named metric.
func (s Snapshot) Points(name string) int {
	m, ok := s.Metric(name)
	if !ok {
		return 0
	}
	switch d := m.Data.(type) {
	case metricdata.Sum[int64]:
		return len(d.DataPoints)
	case metricdata.Sum[float64]:
		return len(d.DataPoints)
	case metricdata.Gauge[int64]:
		return len(d.DataPoints)
	case metricdata.Gauge[float64]:
		return len(d.DataPoints)
	case metricdata.Histogram[int64]:
		return len(d.DataPoints)
	case metricdata.Histogram[float64]:
		return len(d.DataPoints)
	}
	return 0
}
