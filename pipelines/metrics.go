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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/encoding/gzip"
)

// DefaultReportingPeriod is the OTLP export interval used when
// PipelineConfig.ReportingPeriod is empty.
const DefaultReportingPeriod = 30 * time.Second

var (
	// ResponseTimeBoundaries are the response time histogram
	// buckets, in seconds.
	ResponseTimeBoundaries = []float64{
		0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
	}

	// SizeBoundaries are the request and response size histogram
	// buckets, in bytes.
	SizeBoundaries = []float64{
		64, 256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304,
	}
)

// NewMetricsPipeline installs a MeterProvider exporting to the
// configured destinations as the global provider.  The returned
// function flushes and shuts it down.
func NewMetricsPipeline(c PipelineConfig) (func() error, error) {
	provider, err := NewMeterProvider(c)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(provider)
	return func() error {
		return provider.Shutdown(context.Background())
	}, nil
}

// NewMeterProvider builds the MeterProvider described by c without
// installing it.
func NewMeterProvider(c PipelineConfig) (*sdkmetric.MeterProvider, error) {
	var err error

	period := DefaultReportingPeriod

	if c.ReportingPeriod != "" {
		period, err = time.ParseDuration(c.ReportingPeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid metric reporting period: %w", err)
		}
		if period <= 0 {
			return nil, fmt.Errorf("invalid metric reporting period: %v", c.ReportingPeriod)
		}
	}

	tempo, err := TemporalitySelector(c.TemporalityPreference)
	if err != nil {
		return nil, fmt.Errorf("invalid metric view configuration: %w", err)
	}

	if c.Endpoint == "" && !c.Prometheus {
		return nil, errors.New("invalid metric configuration: no OTLP endpoint and Prometheus disabled")
	}

	res := c.Resource
	if res == nil {
		res, err = newResource(c)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithView(views()...),
	}

	if c.Endpoint != "" {
		exp, err := c.newMetricsExporter(tempo)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(period)),
		))
	}

	if c.Prometheus {
		reg := c.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exp))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

func (c PipelineConfig) newMetricsExporter(tempo sdkmetric.TemporalitySelector) (*otlpmetricgrpc.Exporter, error) {
	return otlpmetricgrpc.New(
		context.Background(),
		c.secureMetricOption(),
		otlpmetricgrpc.WithEndpoint(c.Endpoint),
		otlpmetricgrpc.WithHeaders(c.Headers),
		otlpmetricgrpc.WithCompressor(gzip.Name),
		otlpmetricgrpc.WithTemporalitySelector(tempo),
	)
}

// TemporalitySelector maps a temporality preference to a selector.
// UpDownCounters are always cumulative.
func TemporalitySelector(pref string) (sdkmetric.TemporalitySelector, error) {
	syncPref := metricdata.CumulativeTemporality
	asyncPref := metricdata.CumulativeTemporality

	switch lower := strings.ToLower(pref); lower {
	case "delta":
		syncPref = metricdata.DeltaTemporality
		asyncPref = metricdata.DeltaTemporality
	case "stateless":
		// asyncPref set above.
		syncPref = metricdata.DeltaTemporality
	case "", "cumulative":
		// syncPref, asyncPref set above.
	default:
		return nil, fmt.Errorf("invalid temporality preference: %v", pref)
	}
	return func(k sdkmetric.InstrumentKind) metricdata.Temporality {
		switch k {
		case sdkmetric.InstrumentKindUpDownCounter, sdkmetric.InstrumentKindObservableUpDownCounter:
			return metricdata.CumulativeTemporality
		case sdkmetric.InstrumentKindCounter, sdkmetric.InstrumentKindHistogram:
			return syncPref
		default:
			return asyncPref
		}
	}, nil
}

func views() []sdkmetric.View {
	histogram := func(name string, bounds []float64) sdkmetric.View {
		return sdkmetric.NewView(
			sdkmetric.Instrument{Name: name, Kind: sdkmetric.InstrumentKindHistogram},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: bounds,
			}},
		)
	}
	return []sdkmetric.View{
		histogram("*response.time", ResponseTimeBoundaries),
		histogram("*response_time", ResponseTimeBoundaries),
		histogram("*bytes", SizeBoundaries),
	}
}

func newResource(c PipelineConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.TelemetrySDKName("netmetrics"),
		semconv.TelemetrySDKLanguageGo,
	}
	if c.ServiceName != "" {
		attrs = append(attrs, semconv.ServiceName(c.ServiceName))
	}
	if c.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.ServiceVersion))
	}
	if hostname, err := os.Hostname(); err != nil {
		otel.Handle(fmt.Errorf("unable to set host.name: %w", err))
	} else {
		attrs = append(attrs, semconv.HostName(hostname))
	}

	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithFromEnv(),
		resource.WithAttributes(attrs...),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, err
	}
	return res, nil
}
