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


package pipelines // import "github.com/lightstep/otel-netmetrics-go/pipelines"

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"google.golang.org/grpc/credentials"
)

// PipelineConfig describes where metrics are exported.  At least one
// of Endpoint and Prometheus must be set.
type PipelineConfig struct {
	// Endpoint is the OTLP/gRPC metrics endpoint (host:port).
	// Empty disables OTLP export.
	Endpoint string
	Insecure bool
	Headers  map[string]string

	// Resource overrides the resource built from ServiceName and
	// ServiceVersion.
	Resource       *resource.Resource
	ServiceName    string
	ServiceVersion string

	// ReportingPeriod is the OTLP export interval, as parsed by
	// time.ParseDuration.  Defaults to 30s.
	ReportingPeriod string

	// TemporalityPreference is one of "cumulative", "delta", or "stateless"
	TemporalityPreference string

	// Credentials carries the TLS settings.
	Credentials credentials.TransportCredentials

	// Prometheus enables the pull exporter, registered with
	// Registerer or the default Prometheus registry.
	Prometheus bool
	Registerer prometheus.Registerer
}

func (p PipelineConfig) secureMetricOption() otlpmetricgrpc.Option {
	if p.Insecure {
		return otlpmetricgrpc.WithInsecure()
	} else if p.Credentials != nil {
		return otlpmetricgrpc.WithTLSCredentials(p.Credentials)
	}
	return otlpmetricgrpc.WithTLSCredentials(
		credentials.NewClientTLSFromCert(nil, ""),
	)
}
