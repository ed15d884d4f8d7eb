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
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Counter is a monotonic counter with fixed attributes.  The zero
// value discards measurements.
type Counter struct {
	inst  metric.Int64Counter
	attrs metric.MeasurementOption
}

// Increment adds one.
func (c Counter) Increment(ctx context.Context) {
	c.Add(ctx, 1)
}

// Add adds n, which must not be negative.
func (c Counter) Add(ctx context.Context, n int64) {
	if c.inst == nil {
		return
	}
	if c.attrs == nil {
		c.inst.Add(ctx, n)
		return
	}
	c.inst.Add(ctx, n, c.attrs)
}

// Enabled reports whether measurements are kept.
func (c Counter) Enabled() bool {
	_, isNoop := c.inst.(noop.Int64Counter)
	return c.inst != nil && !isNoop
}

// Distribution records sizes.  The zero value discards
// measurements.
type Distribution struct {
	inst  metric.Int64Histogram
	attrs metric.MeasurementOption
}

// Record records v.
func (d Distribution) Record(ctx context.Context, v int64) {
	if d.inst == nil {
		return
	}
	if d.attrs == nil {
		d.inst.Record(ctx, v)
		return
	}
	d.inst.Record(ctx, v, d.attrs)
}

// Enabled reports whether measurements are kept.
func (d Distribution) Enabled() bool {
	_, isNoop := d.inst.(noop.Int64Histogram)
	return d.inst != nil && !isNoop
}

// Timer records durations in seconds.  The zero value discards
// measurements.
type Timer struct {
	inst  metric.Float64Histogram
	attrs metric.MeasurementOption
}

// Record records d.
func (t Timer) Record(ctx context.Context, d time.Duration) {
	if t.inst == nil {
		return
	}
	if t.attrs == nil {
		t.inst.Record(ctx, d.Seconds())
		return
	}
	t.inst.Record(ctx, d.Seconds(), t.attrs)
}

// Enabled reports whether measurements are kept.
func (t Timer) Enabled() bool {
	_, isNoop := t.inst.(noop.Float64Histogram)
	return t.inst != nil && !isNoop
}

// Sample is a started timing.
type Sample struct {
	start time.Time
}

// StartTimer starts a Sample.  The Timer it is recorded into is
// chosen when it stops, once the final tags are known.
func StartTimer() Sample {
	return Sample{start: time.Now()}
}

// Stop records the elapsed time into t and returns it.
func (s Sample) Stop(ctx context.Context, t Timer) time.Duration {
	d := time.Since(s.start)
	t.Record(ctx, d)
	return d
}

// Started reports whether s came from StartTimer.
func (s Sample) Started() bool {
	return !s.start.IsZero()
}
