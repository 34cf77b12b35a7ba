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

package rules

import (
	"github.com/optd-go/optd/catalog"
	"github.com/optd-go/optd/pattern"
	"github.com/optd-go/optd/plan"
)

// JoinCommuteRule swaps an inner join's children, wrapped in a restoring
// Projection so the group's output column order stays left-then-right:
// SchemaBuilder/ColumnRefBuilder (props/builders.go) both derive a Join's
// schema positionally, by concatenating the left child's fields then the
// right child's, so swapping children without a restoring projection would
// leave a member of the group whose output order disagrees with every
// other member's — a violation of "equivalence class of expressions
// believed to produce the same relation" (spec §3).
type JoinCommuteRule struct {
	Catalog catalog.Catalog
}

func NewJoinCommuteRule(cat catalog.Catalog) JoinCommuteRule {
	return JoinCommuteRule{Catalog: cat}
}

func (JoinCommuteRule) Name() string             { return "join_commute" }
func (JoinCommuteRule) Type() Type                { return Transformation }
func (JoinCommuteRule) OptimizeType() OptimizeType { return Cascades }

func (JoinCommuteRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindJoin},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "left", Expand: true},
			pattern.PickOne{Name: "right", Expand: true},
			pattern.PickMany{Name: "condTail"},
		},
	}
}

func (r JoinCommuteRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	if node.JType != plan.JoinInner {
		return nil
	}
	left, right := b["left"], b["right"]
	cond := firstOrNil(b["condTail"])
	swapped := plan.NewJoin(plan.JoinInner, right, left, cond)

	leftCols, rightCols := outputColumnRefs(left, r.Catalog), outputColumnRefs(right, r.Catalog)
	if len(leftCols) == 0 || len(rightCols) == 0 {
		// Couldn't resolve a schema for one side (an unrecognized table, or
		// a shape outputColumnRefs doesn't cover) — abstain rather than
		// produce a commuted join with no way to restore column order.
		return nil
	}
	restoring := append(leftCols, rightCols...)
	return []*plan.Node{plan.NewProjection(swapped, restoring...)}
}

// outputColumnRefs returns node's output columns, left-to-right, as the
// ColumnRef expressions a restoring Projection can select. It mirrors
// props.SchemaBuilder's derivation (same per-Kind cases, same
// concatenation order for Join) but returns the columns themselves instead
// of a catalog.Schema, since a rule's Apply has no group/props-framework
// context to call into. A direct passthrough column keeps its original
// (table, name); anything computed (a projection expression beyond a bare
// ColumnRef, an aggregate) has no single origin table and is represented
// by a table-less ColumnRef named after its synthesized field, matching
// projectedField's synthesized-name fallback.
func outputColumnRefs(node *plan.Node, cat catalog.Catalog) []*plan.Node {
	if node == nil || cat == nil {
		return nil
	}
	switch node.Kind {
	case plan.KindScan, plan.KindPhysicalScan:
		schema, err := cat.Table(node.Table)
		if err != nil {
			return nil
		}
		out := make([]*plan.Node, len(schema.Fields))
		for i, f := range schema.Fields {
			out[i] = plan.NewColumnRef(node.Table, f.Name)
		}
		return out

	case plan.KindFilter, plan.KindPhysicalFilter,
		plan.KindSort, plan.KindPhysicalSort,
		plan.KindLimit, plan.KindPhysicalLimit:
		return outputColumnRefs(node.Children[0], cat)

	case plan.KindJoin, plan.KindApply, plan.KindPhysicalHashJoin, plan.KindPhysicalNestedLoopJoin:
		left := outputColumnRefs(node.Children[0], cat)
		right := outputColumnRefs(node.Children[1], cat)
		if left == nil || right == nil {
			return nil
		}
		return append(left, right...)

	case plan.KindProjection, plan.KindPhysicalProjection:
		out := make([]*plan.Node, 0, len(node.ProjectionExprs()))
		for _, expr := range node.ProjectionExprs() {
			if expr.Kind == plan.KindColumnRef {
				out = append(out, expr)
				continue
			}
			out = append(out, plan.NewColumnRef("", expr.String()))
		}
		return out

	case plan.KindAgg, plan.KindPhysicalAgg:
		out := make([]*plan.Node, 0, len(node.AggGroupBy())+len(node.AggExprs()))
		for _, gb := range node.AggGroupBy() {
			if gb.Kind == plan.KindColumnRef {
				out = append(out, gb)
				continue
			}
			out = append(out, plan.NewColumnRef("", gb.String()))
		}
		for _, ae := range node.AggExprs() {
			out = append(out, plan.NewColumnRef("", ae.String()))
		}
		return out

	default:
		return nil
	}
}

// JoinAssocRule reassociates a left-deep three-way inner join,
// `(A join B) join C`, into `A join (B join C)`. It is intentionally
// one-directional: JoinCommuteRule is always registered alongside it so
// both associativity directions are reachable by composing reassociate
// with commute. All original predicates are preserved (conjoined onto the
// new outer join); the new inner join carries no condition of its own,
// which is always sound — repeated JoinAssocRule/JoinCommuteRule firing can
// recover selectivity by exploring further reorderings, which is what the
// cost-based search does.
type JoinAssocRule struct{}

func (JoinAssocRule) Name() string             { return "join_assoc" }
func (JoinAssocRule) Type() Type                { return Transformation }
func (JoinAssocRule) OptimizeType() OptimizeType { return Cascades }

func (JoinAssocRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindJoin},
		Children: []pattern.Pattern{
			pattern.MatchKind{
				Kinds: []plan.Kind{plan.KindJoin},
				Children: []pattern.Pattern{
					pattern.PickOne{Name: "a"},
					pattern.PickOne{Name: "b"},
					pattern.PickMany{Name: "condAB"},
				},
			},
			pattern.PickOne{Name: "c"},
			pattern.PickMany{Name: "condOuter"},
		},
	}
}

func (JoinAssocRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	if node.JType != plan.JoinInner {
		return nil
	}
	condAB := firstOrNil(b["condAB"])
	condOuter := firstOrNil(b["condOuter"])
	combined := andOf(condAB, condOuter)

	innerBC := plan.NewJoin(plan.JoinInner, b["b"], b["c"], nil)
	outer := plan.NewJoin(plan.JoinInner, b["a"], innerBC, combined)
	return []*plan.Node{outer}
}

// ProjectionPullUpJoinRule lifts a Projection sitting on a join's left
// input above the join, so later rules (JoinAssocRule in particular)
// pattern-match the bare join beneath. It only fires when the join's right
// input is a base-table scan, since reconstructing the right side's
// passthrough columns needs a known schema; this covers the common
// left-deep join-chain case; a Projection over a join whose right input is
// anything else is left in place.
type ProjectionPullUpJoinRule struct {
	Catalog catalog.Catalog
}

func NewProjectionPullUpJoinRule(cat catalog.Catalog) ProjectionPullUpJoinRule {
	return ProjectionPullUpJoinRule{Catalog: cat}
}

func (ProjectionPullUpJoinRule) Name() string             { return "projection_pull_up_join" }
func (ProjectionPullUpJoinRule) Type() Type                { return Transformation }
func (ProjectionPullUpJoinRule) OptimizeType() OptimizeType { return Cascades }

func (ProjectionPullUpJoinRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindJoin},
		Children: []pattern.Pattern{
			pattern.MatchKind{
				Kinds: []plan.Kind{plan.KindProjection},
				Children: []pattern.Pattern{
					pattern.PickOne{Name: "left", Expand: true},
					pattern.PickMany{Name: "exprs"},
				},
			},
			pattern.PickOne{Name: "right", Expand: true},
			pattern.PickMany{Name: "condTail"},
		},
	}
}

func (r ProjectionPullUpJoinRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	right := b["right"]
	if right.Kind != plan.KindScan && right.Kind != plan.KindPhysicalScan {
		return nil
	}
	schema, err := r.Catalog.Table(right.Table)
	if err != nil {
		return nil
	}
	exprs := append([]*plan.Node{}, b["exprs"].Children...)
	for _, f := range schema.Fields {
		exprs = append(exprs, plan.NewColumnRef(right.Table, f.Name))
	}
	cond := firstOrNil(b["condTail"])
	newJoin := plan.NewJoin(node.JType, b["left"], right, cond)
	return []*plan.Node{plan.NewProjection(newJoin, exprs...)}
}

// EliminateDuplicatedSortExprRule drops repeated sort keys, keeping the
// first occurrence's position (a later key equal to an earlier one adds no
// information).
type EliminateDuplicatedSortExprRule struct{}

func (EliminateDuplicatedSortExprRule) Name() string             { return "eliminate_duplicated_sort_expr" }
func (EliminateDuplicatedSortExprRule) Type() Type                { return Transformation }
func (EliminateDuplicatedSortExprRule) OptimizeType() OptimizeType { return Cascades }

func (EliminateDuplicatedSortExprRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindSort},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickMany{Name: "keys"},
		},
	}
}

func (EliminateDuplicatedSortExprRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	keys := b["keys"].Children
	deduped := dedupeNodes(keys)
	if len(deduped) == len(keys) {
		return nil
	}
	return []*plan.Node{plan.NewSort(b["child"], deduped...)}
}

// EliminateDuplicatedAggExprRule drops repeated aggregate expressions.
type EliminateDuplicatedAggExprRule struct{}

func (EliminateDuplicatedAggExprRule) Name() string             { return "eliminate_duplicated_agg_expr" }
func (EliminateDuplicatedAggExprRule) Type() Type                { return Transformation }
func (EliminateDuplicatedAggExprRule) OptimizeType() OptimizeType { return Cascades }

func (EliminateDuplicatedAggExprRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindAgg},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickOne{Name: "groupBy"},
			pattern.PickOne{Name: "aggExprs"},
		},
	}
}

func (EliminateDuplicatedAggExprRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	aggExprs := b["aggExprs"].Children
	deduped := dedupeNodes(aggExprs)
	if len(deduped) == len(aggExprs) {
		return nil
	}
	return []*plan.Node{plan.NewAgg(b["child"], b["groupBy"].Children, deduped)}
}

func dedupeNodes(nodes []*plan.Node) []*plan.Node {
	out := make([]*plan.Node, 0, len(nodes))
	for _, n := range nodes {
		dup := false
		for _, kept := range out {
			if kept.Equal(n) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, n)
		}
	}
	return out
}

func firstOrNil(list *plan.Node) *plan.Node {
	if list == nil || len(list.Children) == 0 {
		return nil
	}
	return list.Children[0]
}

func andOf(conds ...*plan.Node) *plan.Node {
	flat := make([]*plan.Node, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			flat = append(flat, c)
		}
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	default:
		return plan.NewLogOp(plan.LogOpAnd, flat...)
	}
}
