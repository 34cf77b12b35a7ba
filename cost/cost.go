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

// Package cost defines the Cost vector, the Model contract the Cascades
// driver scores candidate expressions with, and two implementations: a
// static closed-form model (OptCostModel) and an adaptive wrapper that
// recalibrates row-count estimates from runtime feedback.
package cost

import (
	"github.com/optd-go/optd/plan"
	"github.com/optd-go/optd/stats"
)

// Cost is a fixed-length vector of non-negative reals, compared
// lexicographically (row_count, then compute, then io) after weighting each
// component down to a single comparable scalar.
type Cost struct {
	RowCount float64
	Compute  float64
	IO       float64
}

// Weights scales each Cost component before the components are summed into
// a single comparable score. The zero Weights is invalid; use DefaultWeights.
// The toml tags let config.OptimizerConfig load a [weights] table directly.
type Weights struct {
	RowCount float64 `toml:"row_count"`
	Compute  float64 `toml:"compute"`
	IO       float64 `toml:"io"`
}

// DefaultWeights favors compute and IO over raw row count, matching the
// intuition that row count alone is a proxy, not a cost.
var DefaultWeights = Weights{RowCount: 0.0, Compute: 1.0, IO: 1.0}

// Score collapses c into one comparable number under w.
func (c Cost) Score(w Weights) float64 {
	return c.RowCount*w.RowCount + c.Compute*w.Compute + c.IO*w.IO
}

// Less reports whether c is strictly cheaper than o under w, breaking ties
// lexicographically over (RowCount, Compute, IO) for determinism.
func (c Cost) Less(o Cost, w Weights) bool {
	cs, os := c.Score(w), o.Score(w)
	if cs != os {
		return cs < os
	}
	if c.RowCount != o.RowCount {
		return c.RowCount < o.RowCount
	}
	if c.Compute != o.Compute {
		return c.Compute < o.Compute
	}
	return c.IO < o.IO
}

// Add combines a parent's own incremental cost with its children's total
// costs into the expression's total cost.
func (c Cost) Add(o Cost) Cost {
	return Cost{RowCount: c.RowCount + o.RowCount, Compute: c.Compute + o.Compute, IO: c.IO + o.IO}
}

// Context carries the collaborators a Model needs beyond the expression and
// its children's costs: base-table statistics, the current bound-weights in
// effect, and the id of the group the expression being costed belongs to
// (so a model can substitute group-specific runtime feedback).
type Context struct {
	Stats   stats.Provider
	Weights Weights
	GroupID uint32
}

// Model scores one expression given its children's already-known total
// costs. Children are the relational input positions' costs, in the
// expression's child order (scalar children carry no separate cost).
type Model interface {
	Cost(node *plan.Node, children []Cost, ctx Context) Cost
}
