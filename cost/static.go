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
	"math"

	"github.com/spf13/cast"

	"github.com/optd-go/optd/plan"
	"github.com/optd-go/optd/stats"
)

// defaultRowCount is used for a table with no statistics entry at all.
const defaultRowCount = 1000.0

// defaultSelectivity is used for any predicate shape the estimator does not
// specifically recognize.
const defaultSelectivity = 0.33

// OptCostModel is the static cost model: row counts come from injected
// stats.Provider and closed-form per-operator formulas, with no runtime
// feedback.
type OptCostModel struct{}

// NewOptCostModel builds the static cost model.
func NewOptCostModel() *OptCostModel { return &OptCostModel{} }

func (m *OptCostModel) Cost(node *plan.Node, children []Cost, ctx Context) Cost {
	switch node.Kind {
	case plan.KindScan, plan.KindPhysicalScan:
		rows := tableRowCount(ctx.Stats, node.Table)
		return Cost{RowCount: rows, Compute: rows, IO: rows}

	case plan.KindEmptyRelation, plan.KindPhysicalEmptyRelation:
		return Cost{}

	case plan.KindFilter, plan.KindPhysicalFilter:
		child := children[0]
		sel := filterSelectivity(node.FilterCond(), ctx.Stats)
		rows := sel * child.RowCount
		return Cost{RowCount: rows, Compute: child.Compute + child.RowCount, IO: child.IO}

	case plan.KindProjection, plan.KindPhysicalProjection:
		child := children[0]
		return Cost{RowCount: child.RowCount, Compute: child.Compute + child.RowCount, IO: child.IO}

	case plan.KindSort, plan.KindPhysicalSort:
		child := children[0]
		rows := child.RowCount
		sortCompute := rows
		if rows > 1 {
			sortCompute = rows * log2(rows)
		}
		return Cost{RowCount: rows, Compute: child.Compute + sortCompute, IO: child.IO}

	case plan.KindLimit, plan.KindPhysicalLimit:
		child := children[0]
		limit := float64(node.LimitCount())
		rows := child.RowCount
		if limit < rows {
			rows = limit
		}
		return Cost{RowCount: rows, Compute: child.Compute, IO: child.IO}

	case plan.KindAgg, plan.KindPhysicalAgg:
		child := children[0]
		groupCount := float64(len(node.AggGroupBy()))
		rows := child.RowCount
		if groupCount > 0 && rows > 0 {
			// crude group cardinality estimate: shrink toward sqrt(rows)
			// per additional group-by column, never growing past the input.
			est := rows
			for i := 0.0; i < groupCount; i++ {
				est = sqrt(est)
			}
			rows = est
		} else if groupCount == 0 {
			rows = 1
		}
		return Cost{RowCount: rows, Compute: child.Compute + child.RowCount, IO: child.IO}

	case plan.KindJoin, plan.KindApply:
		return joinCost(node, children, ctx, false)

	case plan.KindPhysicalHashJoin:
		return joinCost(node, children, ctx, true)

	case plan.KindPhysicalNestedLoopJoin:
		left, right := children[0], children[1]
		rows := joinRowCount(node, left.RowCount, right.RowCount, ctx)
		compute := left.Compute + right.Compute + left.RowCount*right.RowCount
		return Cost{RowCount: rows, Compute: compute, IO: left.IO + right.IO}

	default:
		return Cost{}
	}
}

func joinCost(node *plan.Node, children []Cost, ctx Context, hash bool) Cost {
	left, right := children[0], children[1]
	rows := joinRowCount(node, left.RowCount, right.RowCount, ctx)
	compute := left.Compute + right.Compute
	if hash {
		compute += left.RowCount + right.RowCount
	} else {
		compute += left.RowCount * right.RowCount
	}
	return Cost{RowCount: rows, Compute: compute, IO: left.IO + right.IO}
}

// joinRowCount implements `min(l*r/ndv, l*r)`: with no equi-condition (cross
// join) or no usable NDV estimate, the join degenerates to the full
// cross-product row count.
func joinRowCount(node *plan.Node, l, r float64, ctx Context) float64 {
	cross := l * r
	cond := node.JoinCond()
	if node.Kind == plan.KindPhysicalHashJoin {
		// A hash join carries its equi-condition as parallel key lists, not
		// as a predicate child; estimate from the first key pair.
		cond = nil
		if lk, rk := node.HashJoinLeftKeys(), node.HashJoinRightKeys(); len(lk) > 0 && len(rk) > 0 {
			cond = plan.NewBinOp(plan.BinOpEq, lk[0], rk[0])
		}
	}
	if cond == nil {
		return cross
	}
	ndv := joinConditionNDV(cond, ctx.Stats)
	if ndv <= 0 {
		return cross
	}
	divided := cross / ndv
	if divided < cross {
		return divided
	}
	return cross
}

// joinConditionNDV returns the largest NDV among the equi-condition's
// column operands, which is the standard containment-assumption estimator
// for an equi-join's output cardinality.
func joinConditionNDV(cond *plan.Node, provider stats.Provider) float64 {
	if cond.Kind != plan.KindBinOp || cond.Op != plan.BinOpEq {
		return 0
	}
	left, right := cond.Children[0], cond.Children[1]
	if left.Kind != plan.KindColumnRef || right.Kind != plan.KindColumnRef {
		return 0
	}
	lNdv := columnNDV(provider, left.Table, left.Name)
	rNdv := columnNDV(provider, right.Table, right.Name)
	if lNdv > rNdv {
		return lNdv
	}
	return rNdv
}

func columnNDV(provider stats.Provider, table, column string) float64 {
	if provider == nil {
		return 0
	}
	t, ok := provider.Table(table)
	if !ok {
		return 0
	}
	return cast.ToFloat64(t.ColumnStats(column).NDV)
}

func tableRowCount(provider stats.Provider, table string) float64 {
	if provider == nil {
		return defaultRowCount
	}
	t, ok := provider.Table(table)
	if !ok {
		return defaultRowCount
	}
	return cast.ToFloat64(t.RowCount)
}

// filterSelectivity estimates a Filter predicate's selectivity: an
// always-true/false constant predicate is exact, an equality against a
// known column uses 1/ndv, anything else falls back to a fixed default.
func filterSelectivity(cond *plan.Node, provider stats.Provider) float64 {
	switch cond.Kind {
	case plan.KindConstant:
		if cond.Value.Kind == plan.ValueBool {
			if cond.Value.Bool {
				return 1.0
			}
			return 0.0
		}
	case plan.KindBinOp:
		if cond.Op == plan.BinOpEq {
			if colRef, ok := columnOperand(cond); ok {
				if ndv := columnNDV(provider, colRef.Table, colRef.Name); ndv > 0 {
					return 1.0 / ndv
				}
			}
		}
	case plan.KindLogOp:
		switch cond.LOp {
		case plan.LogOpAnd:
			sel := 1.0
			for _, operand := range cond.Children {
				sel *= filterSelectivity(operand, provider)
			}
			return sel
		case plan.LogOpOr:
			sel := 0.0
			for _, operand := range cond.Children {
				s := filterSelectivity(operand, provider)
				sel = sel + s - sel*s
			}
			return sel
		}
	}
	return defaultSelectivity
}

func columnOperand(binop *plan.Node) (*plan.Node, bool) {
	if binop.Children[0].Kind == plan.KindColumnRef {
		return binop.Children[0], true
	}
	if binop.Children[1].Kind == plan.KindColumnRef {
		return binop.Children[1], true
	}
	return nil, false
}

func log2(x float64) float64 { return math.Log2(x) }
func sqrt(x float64) float64 { return math.Sqrt(x) }
