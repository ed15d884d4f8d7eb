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


package pipelines

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"
	"google.golang.org/protobuf/encoding/prototext"

	netmetrics "github.com/lightstep/otel-netmetrics-go"
	"github.com/lightstep/otel-netmetrics-go/pipelines/internal/collectortest"
)

func testResource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		attribute.String("test-r1", "test-v1"),
	)
}

func exportOnce(t *testing.T, server *collectortest.Collector, c PipelineConfig) {
	provider, err := NewMeterProvider(c)
	require.NoError(t, err)

	counter, err := provider.Meter("test-library").Int64Counter("test-counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, provider.Shutdown(context.Background()))

	require.Equal(t, 1, len(server.Requests()))
	txt, err := prototext.Marshal(server.Requests()[0])
	require.NoError(t, err)
	require.Contains(t, string(txt), "test-counter")
	require.Contains(t, string(txt), "test-r1")
	require.Contains(t, string(txt), "test-v1")
	require.Contains(t, string(txt), "test-library")

	require.Equal(t, []string{"test-value"}, server.MDs()[0]["test-header"])
}

func TestInsecureMetrics(t *testing.T) {
	server := collectortest.New(t)

	exportOnce(t, server, PipelineConfig{
		Endpoint: server.Endpoint(false),
		Insecure: true,
		Headers: map[string]string{
			"test-header": "test-value",
		},
		Resource:        testResource(),
		ReportingPeriod: "24h",
	})
}

func TestSecureMetrics(t *testing.T) {
	server := collectortest.New(t)

	exportOnce(t, server, PipelineConfig{
		Endpoint: server.Endpoint(true),
		Headers: map[string]string{
			"test-header": "test-value",
		},
		Resource:        testResource(),
		ReportingPeriod: "24h",
		Credentials:     credentials.NewTLS(collectortest.ClientTLSConfig(t)),
	})
}

func TestNetServerOverOTLP(t *testing.T) {
	server := collectortest.New(t)

	provider, err := NewMeterProvider(PipelineConfig{
		Endpoint:        server.Endpoint(false),
		Insecure:        true,
		ServiceName:     "pipelines-test",
		ReportingPeriod: "24h",
	})
	require.NoError(t, err)

	m, err := netmetrics.New(netmetrics.WithMeterProvider(provider))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	srv := m.NetServer("127.0.0.1:9000")
	socket := srv.Connected(ctx, "127.0.0.1:5000")
	srv.BytesRead(ctx, socket, 10)

	require.NoError(t, provider.Shutdown(ctx))

	names := server.MetricNames()
	assert.Contains(t, names, "netmetrics.net.server.active.connections")
	assert.Contains(t, names, "netmetrics.net.server.bytes.read")

	txt, err := prototext.Marshal(server.Requests()[0])
	require.NoError(t, err)
	require.Contains(t, string(txt), "pipelines-test")
}

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	provider, err := NewMeterProvider(PipelineConfig{
		Prometheus: true,
		Registerer: reg,
		Resource:   testResource(),
	})
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx := context.Background()
	meter := provider.Meter("test-library")
	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	timer, err := meter.Float64Histogram("test.response.time")
	require.NoError(t, err)
	timer.Record(ctx, 0.003)

	sizes, err := meter.Int64Histogram("test.request.bytes")
	require.NoError(t, err)
	sizes.Record(ctx, 100)

	// underscore names, as produced by Prometheus naming
	legacy, err := meter.Float64Histogram("test_response_time")
	require.NoError(t, err)
	legacy.Record(ctx, 0.003)

	// Gather keeps UTF-8 names; only the counter suffix is added.
	c := findFamily(t, reg, "test.counter_total")
	require.Len(t, c.GetMetric(), 1)
	require.Equal(t, 3.0, c.GetMetric()[0].GetCounter().GetValue())

	h := findFamily(t, reg, "test.response.time")
	require.Len(t, h.GetMetric()[0].GetHistogram().GetBucket(), len(ResponseTimeBoundaries))

	s := findFamily(t, reg, "test.request.bytes")
	require.Len(t, s.GetMetric()[0].GetHistogram().GetBucket(), len(SizeBoundaries))

	l := findFamily(t, reg, "test_response_time")
	require.Len(t, l.GetMetric()[0].GetHistogram().GetBucket(), len(ResponseTimeBoundaries))
}

func TestNewMetricsPipelineInstallsGlobal(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	shutdown, err := NewMetricsPipeline(PipelineConfig{
		Prometheus: true,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	_, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	require.True(t, ok)
	require.NoError(t, shutdown())
}

func TestInvalidConfig(t *testing.T) {
	for _, test := range []struct {
		name string
		cfg  PipelineConfig
		want string
	}{
		{"period", PipelineConfig{Prometheus: true, ReportingPeriod: "soon"}, "invalid metric reporting period"},
		{"negative period", PipelineConfig{Prometheus: true, ReportingPeriod: "-1s"}, "invalid metric reporting period"},
		{"temporality", PipelineConfig{Prometheus: true, TemporalityPreference: "sometimes"}, "invalid temporality preference"},
		{"no exporter", PipelineConfig{}, "no OTLP endpoint"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewMeterProvider(test.cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), test.want)
		})
	}
}

func TestTemporalitySelector(t *testing.T) {
	const (
		cumulative = metricdata.CumulativeTemporality
		delta      = metricdata.DeltaTemporality
	)
	kinds := []sdkmetric.InstrumentKind{
		sdkmetric.InstrumentKindCounter,
		sdkmetric.InstrumentKindHistogram,
		sdkmetric.InstrumentKindUpDownCounter,
		sdkmetric.InstrumentKindObservableGauge,
	}
	for pref, want := range map[string][]metricdata.Temporality{
		"":           {cumulative, cumulative, cumulative, cumulative},
		"cumulative": {cumulative, cumulative, cumulative, cumulative},
		"Delta":      {delta, delta, cumulative, delta},
		"stateless":  {delta, delta, cumulative, cumulative},
	} {
		sel, err := TemporalitySelector(pref)
		require.NoError(t, err)
		for i, k := range kinds {
			assert.Equal(t, want[i], sel(k), "%q %v", pref, k)
		}
	}
}
