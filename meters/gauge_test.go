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
	"regexp"
	"testing"

	"github.com/lightstep/otel-netmetrics-go/internal/metrictest"
	"github.com/lightstep/otel-netmetrics-go/match"
	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/tags"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

func TestGaugeIncrementDecrement(t *testing.T) {
	h := metrictest.New(t)
	reg := NewRegistry(h.Provider.Meter("test"))

	g := NewGaugeBuilder("my_gauge", nil).
		Description("a gauge").
		Tags(tags.FromPairs("address", "addr1")).
		Register(reg)
	g.Increment()
	g.Increment()
	g.Decrement()
	require.Equal(t, int64(1), g.Value())

	snap := h.Collect(t)
	v, ok := snap.Float64Gauge("my_gauge", attribute.String("address", "addr1"))
	require.True(t, ok)
	require.Equal(t, 1.0, v)

	m, _ := snap.Metric("my_gauge")
	require.Equal(t, "a gauge", m.Description)
}

func TestGaugeDeniedIsNoop(t *testing.T) {
	h := metrictest.New(t)
	reg := NewRegistry(h.Provider.Meter("test"), WithFilters(DenyNames("my_gauge")))

	g := NewGaugeBuilder("my_gauge", nil).Tags(tags.FromPairs("address", "addr1")).Register(reg)
	require.IsType(t, NoopGauge{}, g)

	g.Increment()
	g.Add(10)
	g.Decrement()
	require.Equal(t, int64(0), g.Value())

	snap := h.Collect(t)
	require.False(t, snap.Has("my_gauge"))
}

func TestGaugeSameIdentitySameAccumulator(t *testing.T) {
	h := metrictest.New(t)
	reg := NewRegistry(h.Provider.Meter("test"))
	ts := tags.FromPairs("a", "1", "b", "2")

	var eg errgroup.Group
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			// each goroutine resolves through its own worker cache
			ctx, done := reg.NewWorkerContext(context.Background())
			defer done()
			for j := 0; j < 100; j++ {
				NewGaugeBuilder("shared", nil).Tags(ts).RegisterContext(ctx, reg).Increment()
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	// tag order does not matter
	g := NewGaugeBuilder("shared", nil).Tags(tags.FromPairs("b", "2", "a", "1")).Register(reg)
	require.Equal(t, int64(800), g.Value())
}

func TestGaugeAliasedSeriesMerge(t *testing.T) {
	h := metrictest.New(t)
	names := naming.DefaultNames()
	m, err := match.Compile(match.Match{Label: "address", Type: match.Regex, Value: ".*", Alias: "_"})
	require.NoError(t, err)
	reg := NewRegistry(h.Provider.Meter("test"), WithFilters(AliasFilter(m, names)))

	for _, addr := range []string{"addr1", "addr2", "addr3"} {
		NewGaugeBuilder("my_gauge", nil).Tags(tags.FromPairs("address", addr)).Register(reg).Increment()
	}

	snap := h.Collect(t)
	v, ok := snap.Float64Gauge("my_gauge", attribute.String("address", "_"))
	require.True(t, ok)
	require.Equal(t, 3.0, v)
	require.Equal(t, 1, snap.Points("my_gauge"))
}

func TestGaugeValueFunc(t *testing.T) {
	h := metrictest.New(t)
	reg := NewRegistry(h.Provider.Meter("test"))

	g := NewGaugeBuilder("halved", func(v int64) float64 { return float64(v) / 2 }).Unit("1").Register(reg)
	g.Add(5)

	v, ok := h.Collect(t).Float64Gauge("halved")
	require.True(t, ok)
	require.Equal(t, 2.5, v)
	require.Equal(t, int64(5), g.Value())
}

func TestGaugeDenyRegexp(t *testing.T) {
	h := metrictest.New(t)
	reg := NewRegistry(h.Provider.Meter("test"), WithFilters(DenyNameRegexp(regexp.MustCompile(`^internal\.`))))

	require.IsType(t, NoopGauge{}, NewGaugeBuilder("internal.queue", nil).Register(reg))
	require.IsType(t, &liveGauge{}, NewGaugeBuilder("public.queue", nil).Register(reg))
}

func TestGaugeUnregisteredOnClose(t *testing.T) {
	h := metrictest.New(t)
	reg := NewRegistry(h.Provider.Meter("test"))

	NewGaugeBuilder("g", nil).Register(reg).Increment()
	require.True(t, h.Collect(t).Has("g"))

	reg.Close()
	require.False(t, h.Collect(t).Has("g"))
}
