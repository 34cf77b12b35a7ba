// Copyright 2024 The OptD-Go Authors.
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

package cost

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/optd-go/optd/plan"
)

// DefaultDecay is the default decay constant for AdaptiveCostModel, chosen
// to forget a single observation's influence over roughly fifty
// subsequent estimates.
const DefaultDecay = 50.0

// RuntimeStats holds the adaptive model's long-lived mutable state: a
// per-group observed row count, shared across optimization sessions and
// guarded by a mutex so Feedback can run concurrently with a running
// Optimize call against a different Optimizer instance using the same
// stats.
type RuntimeStats struct {
	mu       sync.Mutex
	observed map[uint32]float64
}

// NewRuntimeStats builds empty runtime statistics.
func NewRuntimeStats() *RuntimeStats {
	return &RuntimeStats{observed: make(map[uint32]float64)}
}

// Feedback folds one (group, observed row count) execution sample into the
// running estimate: observed' = (observed*decay + sample) / (decay + 1).
func (r *RuntimeStats) Feedback(groupID uint32, observedRowCount, decay float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior, ok := r.observed[groupID]
	if !ok {
		r.observed[groupID] = observedRowCount
		return
	}
	r.observed[groupID] = (prior*decay + observedRowCount) / (decay + 1)
}

func (r *RuntimeStats) get(groupID uint32) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.observed[groupID]
	return v, ok
}

// AdaptiveCostModel wraps a static Model, substituting a group's observed
// runtime row count for the static estimate whenever one is available.
type AdaptiveCostModel struct {
	static Model
	stats  *RuntimeStats
	decay  float64

	observedRowCount prometheus.Gauge
}

// NewAdaptiveCostModel wraps static with runtime-adaptive row-count
// substitution. decay controls how quickly new samples overwrite old ones;
// pass DefaultDecay for normal operation, or a large value (e.g. 1000) for
// a "very slow decay" demo configuration.
func NewAdaptiveCostModel(static Model, stats *RuntimeStats, decay float64) *AdaptiveCostModel {
	return &AdaptiveCostModel{
		static: static,
		stats:  stats,
		decay:  decay,
		observedRowCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "optd",
			Subsystem: "adaptive_cost",
			Name:      "last_observed_row_count",
			Help:      "Most recent runtime-observed row count fed back into the adaptive cost model.",
		}),
	}
}

// Collector exposes the model's gauges for registration with a Prometheus
// registry owned by the embedding process.
func (m *AdaptiveCostModel) Collector() prometheus.Collector {
	return m.observedRowCount
}

// Feedback records a runtime observation for groupID and updates the
// exported gauge.
func (m *AdaptiveCostModel) Feedback(groupID uint32, observedRowCount float64) {
	m.stats.Feedback(groupID, observedRowCount, m.decay)
	m.observedRowCount.Set(observedRowCount)
}

func (m *AdaptiveCostModel) Cost(node *plan.Node, children []Cost, ctx Context) Cost {
	base := m.static.Cost(node, children, ctx)
	if observed, ok := m.stats.get(ctx.GroupID); ok {
		base.RowCount = observed
	}
	return base
}
