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

package netmetrics // import "github.com/lightstep/otel-netmetrics-go"

import (
	"github.com/go-logr/logr"
	"github.com/lightstep/otel-netmetrics-go/httpserver"
	"github.com/lightstep/otel-netmetrics-go/match"
	"github.com/lightstep/otel-netmetrics-go/meters"
	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/tags"
	"go.opentelemetry.io/otel/metric"
)

// config contains the settings of a Metrics.
type config struct {
	// MeterProvider sets the metric.MeterProvider.  If nil, the
	// global Provider will be used.
	MeterProvider metric.MeterProvider

	Labels          tags.LabelSet
	LabelMatches    []match.Match
	MeterCacheSize  int
	Names           naming.Names
	DisabledDomains []naming.Domain
	RegistryFilters []meters.Filter
	Logger          logr.Logger

	RequestTags  httpserver.RequestTagsProvider
	ResponseTags httpserver.ResponseTagsProvider
}

// Option supports configuring optional settings.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) {
	f(c)
}

// WithMeterProvider sets the Metric implementation to use for
// reporting.  If this option is not used, the global
// metric.MeterProvider will be used.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return optionFunc(func(c *config) {
		if provider != nil {
			c.MeterProvider = provider
		}
	})
}

// WithLabels sets the enabled labels, replacing the defaults.
func WithLabels(labels ...tags.Label) Option {
	return optionFunc(func(c *config) {
		c.Labels = tags.NewLabelSet(labels...)
	})
}

// WithLabelMatches appends aliasing rules.
func WithLabelMatches(ms ...match.Match) Option {
	return optionFunc(func(c *config) {
		c.LabelMatches = append(c.LabelMatches, ms...)
	})
}

// WithMeterCacheSize bounds the number of handles cached per worker.
func WithMeterCacheSize(n int) Option {
	return optionFunc(func(c *config) {
		c.MeterCacheSize = n
	})
}

// WithNames replaces the naming table.
func WithNames(n naming.Names) Option {
	return optionFunc(func(c *config) {
		c.Names = n
	})
}

// WithDisabledDomains turns whole domains off.  Their facades record
// nothing.
func WithDisabledDomains(ds ...naming.Domain) Option {
	return optionFunc(func(c *config) {
		c.DisabledDomains = append(c.DisabledDomains, ds...)
	})
}

// WithRequestTagsProvider adds custom tags to every HTTP server
// exchange.
func WithRequestTagsProvider(p httpserver.RequestTagsProvider) Option {
	return optionFunc(func(c *config) {
		c.RequestTags = p
	})
}

// WithResponseTagsProvider adds custom tags to HTTP server response
// metrics.
func WithResponseTagsProvider(p httpserver.ResponseTagsProvider) Option {
	return optionFunc(func(c *config) {
		c.ResponseTags = p
	})
}

// WithRegistryFilters appends registry filters.  A filter that
// denies a meter turns its handles into no-ops.
func WithRegistryFilters(fs ...meters.Filter) Option {
	return optionFunc(func(c *config) {
		c.RegistryFilters = append(c.RegistryFilters, fs...)
	})
}

// WithLogger sets the logger.  Details of ignored lifecycle signals
// and denied meters are logged at V(1).
func WithLogger(l logr.Logger) Option {
	return optionFunc(func(c *config) {
		c.Logger = l
	})
}
