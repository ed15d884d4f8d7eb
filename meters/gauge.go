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

package meters

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lightstep/otel-netmetrics-go/tags"
	"go.opentelemetry.io/otel/metric"
)

// Gauge is an up/down accumulator reported as a gauge.  Both
// implementations are safe for concurrent use; callers need not know
// which one they hold.
type Gauge interface {
	Increment()
	Decrement()
	Add(delta int64)
	// Value is the current accumulator value.  Always 0 for a
	// NoopGauge.
	Value() int64
}

// NoopGauge is returned for denied gauges.
type NoopGauge struct{}

func (NoopGauge) Increment()   {}
func (NoopGauge) Decrement()   {}
func (NoopGauge) Add(int64)    {}
func (NoopGauge) Value() int64 { return 0 }

// GaugeBuilder registers a custom gauge.
type GaugeBuilder struct {
	name        string
	description string
	unit        string
	tags        tags.Set
	valueFunc   func(int64) float64
}

// NewGaugeBuilder starts a gauge named name.  valueFunc converts the
// accumulator when the gauge is observed; nil reports it unchanged.
func NewGaugeBuilder(name string, valueFunc func(int64) float64) *GaugeBuilder {
	return &GaugeBuilder{name: name, valueFunc: valueFunc}
}

func (b *GaugeBuilder) Description(d string) *GaugeBuilder {
	b.description = d
	return b
}

func (b *GaugeBuilder) Unit(u string) *GaugeBuilder {
	b.unit = u
	return b
}

func (b *GaugeBuilder) Tags(t tags.Set) *GaugeBuilder {
	b.tags = t
	return b
}

// Register returns the live accumulator for the gauge, or NoopGauge
// when reg denies it.
func (b *GaugeBuilder) Register(reg *Registry) Gauge {
	return b.RegisterContext(context.Background(), reg)
}

// RegisterContext is Register using the worker-local cache bound to
// ctx.
func (b *GaugeBuilder) RegisterContext(ctx context.Context, reg *Registry) Gauge {
	var opts []metric.Float64ObservableGaugeOption
	if b.description != "" {
		opts = append(opts, metric.WithDescription(b.description))
	}
	if b.unit != "" {
		opts = append(opts, metric.WithUnit(b.unit))
	}
	return reg.Gauge(ctx, ID{Name: b.name, Tags: b.tags}, b.valueFunc, opts...)
}

// liveGauge is one attribute set of a gauge family.
type liveGauge struct {
	acc       atomic.Int64
	tags      tags.Set
	attrs     metric.ObserveOption
	valueFunc func(int64) float64
}

func (g *liveGauge) Increment()      { g.acc.Add(1) }
func (g *liveGauge) Decrement()      { g.acc.Add(-1) }
func (g *liveGauge) Add(delta int64) { g.acc.Add(delta) }
func (g *liveGauge) Value() int64    { return g.acc.Load() }

func (g *liveGauge) observed() float64 {
	v := g.acc.Load()
	if g.valueFunc == nil {
		return float64(v)
	}
	return g.valueFunc(v)
}

// gaugeFamily is every series of one observable gauge, sampled by a
// single callback.
type gaugeFamily struct {
	inst metric.Float64ObservableGauge
	reg  metric.Registration

	lock sync.Mutex
	byFP map[uint64][]*liveGauge
}

func newGaugeFamily(meter metric.Meter, name string, opts ...metric.Float64ObservableGaugeOption) (*gaugeFamily, error) {
	inst, err := meter.Float64ObservableGauge(name, opts...)
	if err != nil {
		return nil, err
	}
	f := &gaugeFamily{
		inst: inst,
		byFP: map[uint64][]*liveGauge{},
	}
	if f.reg, err = meter.RegisterCallback(f.observe, inst); err != nil {
		return nil, err
	}
	return f, nil
}

// series returns the accumulator for t, creating it on first use.
func (f *gaugeFamily) series(t tags.Set, valueFunc func(int64) float64) *liveGauge {
	fp := t.Fingerprint()

	f.lock.Lock()
	defer f.lock.Unlock()

	for _, g := range f.byFP[fp] {
		if g.tags.Equal(t) {
			return g
		}
	}
	g := &liveGauge{
		tags:      t,
		attrs:     metric.WithAttributeSet(t.Attributes()),
		valueFunc: valueFunc,
	}
	f.byFP[fp] = append(f.byFP[fp], g)
	return g
}

func (f *gaugeFamily) observe(_ context.Context, obs metric.Observer) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, list := range f.byFP {
		for _, g := range list {
			obs.ObserveFloat64(f.inst, g.observed(), g.attrs)
		}
	}
	return nil
}
