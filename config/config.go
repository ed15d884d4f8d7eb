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


// Package config loads netmetrics settings from YAML and the
// environment.  Environment variables, prefixed with NETMETRICS_,
// override the file.
//
//	NETMETRICS_LABELS=method,code,route
//	NETMETRICS_METRICS_OTLP_ENDPOINT=collector:4317
package config // import "github.com/lightstep/otel-netmetrics-go/config"

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/sethvargo/go-envconfig"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	netmetrics "github.com/lightstep/otel-netmetrics-go"
	"github.com/lightstep/otel-netmetrics-go/match"
	"github.com/lightstep/otel-netmetrics-go/meters"
	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/pipelines"
	"github.com/lightstep/otel-netmetrics-go/tags"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "NETMETRICS_"

// Config is the file and environment representation of the
// netmetrics options.
type Config struct {
	ServiceName    string `yaml:"service_name" env:"SERVICE_NAME"`
	ServiceVersion string `yaml:"service_version" env:"SERVICE_VERSION"`

	// Labels enables tag keys by key ("method") or name
	// ("HTTP_METHOD").  Empty keeps the defaults.
	Labels       []string      `yaml:"labels" env:"LABELS"`
	LabelMatches []match.Match `yaml:"label_matches"`

	DisabledDomains []string `yaml:"disabled_domains" env:"DISABLED_DOMAINS"`
	MeterCacheSize  int      `yaml:"meter_cache_size" env:"METER_CACHE_SIZE"`

	// NameRoot replaces the "netmetrics" prefix of metric names.
	NameRoot        string `yaml:"name_root" env:"NAME_ROOT"`
	PrometheusNames bool   `yaml:"prometheus_names" env:"PROMETHEUS_NAMES"`

	// DenyMetrics drops every metric whose name matches one of
	// these regular expressions.
	DenyMetrics []string `yaml:"deny_metrics" env:"DENY_METRICS"`

	Metrics MetricsConfig `yaml:"metrics" env:", prefix=METRICS_"`
}

// MetricsConfig selects the exporters.
type MetricsConfig struct {
	Endpoint              string            `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	Insecure              bool              `yaml:"otlp_insecure" env:"OTLP_INSECURE"`
	Headers               map[string]string `yaml:"otlp_headers" env:"OTLP_HEADERS"`
	ReportingPeriod       string            `yaml:"reporting_period" env:"REPORTING_PERIOD"`
	TemporalityPreference string            `yaml:"temporality_preference" env:"TEMPORALITY_PREFERENCE"`
	Prometheus            bool              `yaml:"prometheus" env:"PROMETHEUS"`
}

// DefaultConfig exports to Prometheus with the default labels.
func DefaultConfig() *Config {
	return &Config{
		MeterCacheSize: netmetrics.DefaultMeterCacheSize,
		Metrics: MetricsConfig{
			ReportingPeriod:       pipelines.DefaultReportingPeriod.String(),
			TemporalityPreference: "cumulative",
			Prometheus:            true,
		},
	}
}

// LoadFile reads the YAML file at path, then the environment.  An
// empty path reads only the environment.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		return Load(ctx, nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening configuration: %w", err)
	}
	defer f.Close()
	return Load(ctx, f)
}

// Load reads YAML from file, when not nil, over the defaults and then
// applies the process environment.
func Load(ctx context.Context, file io.Reader) (*Config, error) {
	return LoadWith(ctx, file, envconfig.OsLookuper())
}

// LoadWith is Load with the environment read from lookuper.
func LoadWith(ctx context.Context, file io.Reader, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := DefaultConfig()
	if file != nil {
		buf, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("reading YAML configuration: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML configuration: %w", err)
		}
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, lookuper),
		DefaultOverwrite: true,
	}); err != nil {
		return nil, fmt.Errorf("reading env vars: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem in c, combined.
func (c *Config) Validate() error {
	_, err := c.Options()
	if _, perr := pipelines.TemporalitySelector(c.Metrics.TemporalityPreference); perr != nil {
		err = multierr.Append(err, perr)
	}
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Options converts c to netmetrics options.  Label matches are
// compiled, and checked, by netmetrics.New.
func (c *Config) Options() ([]netmetrics.Option, error) {
	var (
		opts []netmetrics.Option
		err  error
	)

	if len(c.Labels) > 0 {
		labels := make([]tags.Label, 0, len(c.Labels))
		for _, s := range c.Labels {
			l, lerr := tags.ParseLabel(s)
			if lerr != nil {
				err = multierr.Append(err, lerr)
				continue
			}
			labels = append(labels, l)
		}
		opts = append(opts, netmetrics.WithLabels(labels...))
	}
	if len(c.LabelMatches) > 0 {
		opts = append(opts, netmetrics.WithLabelMatches(c.LabelMatches...))
	}

	for _, s := range c.DisabledDomains {
		d, derr := naming.ParseDomain(s)
		if derr != nil {
			err = multierr.Append(err, derr)
			continue
		}
		opts = append(opts, netmetrics.WithDisabledDomains(d))
	}

	if c.MeterCacheSize != 0 {
		if c.MeterCacheSize < 0 {
			err = multierr.Append(err, fmt.Errorf("meter cache size must be positive: %d", c.MeterCacheSize))
		} else {
			opts = append(opts, netmetrics.WithMeterCacheSize(c.MeterCacheSize))
		}
	}

	names := naming.DefaultNames()
	if c.PrometheusNames {
		names = naming.PrometheusNames()
	}
	if c.NameRoot != "" {
		names = names.WithRoot(c.NameRoot)
	}
	opts = append(opts, netmetrics.WithNames(names))

	for _, expr := range c.DenyMetrics {
		re, rerr := regexp.Compile(expr)
		if rerr != nil {
			err = multierr.Append(err, fmt.Errorf("deny metrics %q: %w", expr, rerr))
			continue
		}
		opts = append(opts, netmetrics.WithRegistryFilters(meters.DenyNameRegexp(re)))
	}

	if err != nil {
		return nil, err
	}
	return opts, nil
}

// PipelineConfig returns the exporter settings.  The caller may set
// Registerer or Credentials before building the pipeline.
func (c *Config) PipelineConfig() pipelines.PipelineConfig {
	return pipelines.PipelineConfig{
		Endpoint:              c.Metrics.Endpoint,
		Insecure:              c.Metrics.Insecure,
		Headers:               c.Metrics.Headers,
		ServiceName:           c.ServiceName,
		ServiceVersion:        c.ServiceVersion,
		ReportingPeriod:       c.Metrics.ReportingPeriod,
		TemporalityPreference: c.Metrics.TemporalityPreference,
		Prometheus:            c.Metrics.Prometheus,
	}
}
