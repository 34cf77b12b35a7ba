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
	"github.com/optd-go/optd/pattern"
	"github.com/optd-go/optd/plan"
)

// ScanToPhysicalScanRule implements a logical Scan as a full physical scan
// (no access path chosen). Index selection, if any, is left to a later,
// more specific rule firing against the same group.
type ScanToPhysicalScanRule struct{}

func (ScanToPhysicalScanRule) Name() string             { return "scan_to_physical_scan" }
func (ScanToPhysicalScanRule) Type() Type                { return Implementation }
func (ScanToPhysicalScanRule) OptimizeType() OptimizeType { return Cascades }

func (ScanToPhysicalScanRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{Kinds: []plan.Kind{plan.KindScan}}
}

func (ScanToPhysicalScanRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	return []*plan.Node{plan.NewPhysicalScan(node.Table, "")}
}

// EmptyRelationToPhysicalEmptyRelationRule implements a logical EmptyRelation.
type EmptyRelationToPhysicalEmptyRelationRule struct{}

func (EmptyRelationToPhysicalEmptyRelationRule) Name() string {
	return "empty_relation_to_physical_empty_relation"
}
func (EmptyRelationToPhysicalEmptyRelationRule) Type() Type { return Implementation }
func (EmptyRelationToPhysicalEmptyRelationRule) OptimizeType() OptimizeType {
	return Cascades
}

func (EmptyRelationToPhysicalEmptyRelationRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{Kinds: []plan.Kind{plan.KindEmptyRelation}}
}

func (EmptyRelationToPhysicalEmptyRelationRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	return []*plan.Node{plan.NewPhysicalEmptyRelation()}
}

// FilterToPhysicalFilterRule implements a logical Filter with the physical
// filter operator directly; there is only one way to evaluate a predicate.
type FilterToPhysicalFilterRule struct{}

func (FilterToPhysicalFilterRule) Name() string             { return "filter_to_physical_filter" }
func (FilterToPhysicalFilterRule) Type() Type                { return Implementation }
func (FilterToPhysicalFilterRule) OptimizeType() OptimizeType { return Cascades }

func (FilterToPhysicalFilterRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickOne{Name: "cond"},
		},
	}
}

func (FilterToPhysicalFilterRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	return []*plan.Node{plan.NewPhysicalFilter(b["cond"], b["child"])}
}

// ProjectionToPhysicalProjectionRule implements a logical Projection.
type ProjectionToPhysicalProjectionRule struct{}

func (ProjectionToPhysicalProjectionRule) Name() string { return "projection_to_physical_projection" }
func (ProjectionToPhysicalProjectionRule) Type() Type    { return Implementation }
func (ProjectionToPhysicalProjectionRule) OptimizeType() OptimizeType {
	return Cascades
}

func (ProjectionToPhysicalProjectionRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindProjection},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickMany{Name: "exprs"},
		},
	}
}

func (ProjectionToPhysicalProjectionRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	return []*plan.Node{plan.NewPhysicalProjection(b["child"], b["exprs"].Children...)}
}

// SortToPhysicalSortRule implements a logical Sort.
type SortToPhysicalSortRule struct{}

func (SortToPhysicalSortRule) Name() string             { return "sort_to_physical_sort" }
func (SortToPhysicalSortRule) Type() Type                { return Implementation }
func (SortToPhysicalSortRule) OptimizeType() OptimizeType { return Cascades }

func (SortToPhysicalSortRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindSort},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickMany{Name: "keys"},
		},
	}
}

func (SortToPhysicalSortRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	return []*plan.Node{plan.NewPhysicalSort(b["child"], b["keys"].Children...)}
}

// AggToPhysicalAggRule implements a logical Agg with a single hash-based
// physical aggregate; there is no sort-based alternative in this catalog.
type AggToPhysicalAggRule struct{}

func (AggToPhysicalAggRule) Name() string             { return "agg_to_physical_agg" }
func (AggToPhysicalAggRule) Type() Type                { return Implementation }
func (AggToPhysicalAggRule) OptimizeType() OptimizeType { return Cascades }

func (AggToPhysicalAggRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindAgg},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickOne{Name: "groupBy"},
			pattern.PickOne{Name: "aggExprs"},
		},
	}
}

func (AggToPhysicalAggRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	return []*plan.Node{plan.NewPhysicalAgg(b["child"], b["groupBy"].Children, b["aggExprs"].Children)}
}

// LimitToPhysicalLimitRule implements a logical Limit.
type LimitToPhysicalLimitRule struct{}

func (LimitToPhysicalLimitRule) Name() string             { return "limit_to_physical_limit" }
func (LimitToPhysicalLimitRule) Type() Type                { return Implementation }
func (LimitToPhysicalLimitRule) OptimizeType() OptimizeType { return Cascades }

func (LimitToPhysicalLimitRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds:    []plan.Kind{plan.KindLimit},
		Children: []pattern.Pattern{pattern.PickOne{Name: "child"}},
	}
}

func (LimitToPhysicalLimitRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	return []*plan.Node{plan.NewPhysicalLimit(b["child"], node.LimitCount())}
}

// JoinToPhysicalNestedLoopJoinRule implements any join (any join type, any
// condition shape, including none) as a nested-loop join. It always fires,
// unlike HashJoinRule, so every join group has at least one physical
// alternative even when its condition is not a cross-side equality.
type JoinToPhysicalNestedLoopJoinRule struct{}

func (JoinToPhysicalNestedLoopJoinRule) Name() string { return "join_to_physical_nested_loop_join" }
func (JoinToPhysicalNestedLoopJoinRule) Type() Type    { return Implementation }
func (JoinToPhysicalNestedLoopJoinRule) OptimizeType() OptimizeType {
	return Cascades
}

func (JoinToPhysicalNestedLoopJoinRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindJoin},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "left"},
			pattern.PickOne{Name: "right"},
			pattern.PickMany{Name: "condTail"},
		},
	}
}

func (JoinToPhysicalNestedLoopJoinRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	cond := firstOrNil(b["condTail"])
	return []*plan.Node{plan.NewPhysicalNestedLoopJoin(node.JType, b["left"], b["right"], cond)}
}

// PhysicalConversionRules returns the seven logical-to-physical conversion
// rules, one per relational operator kind that has exactly one physical
// strategy in this catalog. Join is implemented separately by
// JoinToPhysicalNestedLoopJoinRule (always applicable) and HashJoinRule
// (equi-joins only), both registered directly in DefaultCascadesRules.
func PhysicalConversionRules() []Rule {
	return []Rule{
		ScanToPhysicalScanRule{},
		EmptyRelationToPhysicalEmptyRelationRule{},
		FilterToPhysicalFilterRule{},
		ProjectionToPhysicalProjectionRule{},
		SortToPhysicalSortRule{},
		AggToPhysicalAggRule{},
		LimitToPhysicalLimitRule{},
	}
}

// HashJoinRule implements an inner join whose condition is a conjunction of
// equalities between the two sides as a physical hash join, extracting
// parallel left/right key lists from the condition. It does not fire when
// any conjunct isn't a cross-side equality (no hash join is derivable), nor
// for non-inner joins — those are implemented only by
// JoinToPhysicalNestedLoopJoinRule. Both inputs are bound with Expand, and
// a side's tables are the base-table scans visible in its bound expression;
// a side whose expression has only group references below it shows no
// tables, so the rule does not fire for it.
type HashJoinRule struct{}

func (HashJoinRule) Name() string             { return "hash_join" }
func (HashJoinRule) Type() Type                { return Implementation }
func (HashJoinRule) OptimizeType() OptimizeType { return Cascades }

func (HashJoinRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindJoin},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "left", Expand: true},
			pattern.PickOne{Name: "right", Expand: true},
			pattern.PickMany{Name: "condTail"},
		},
	}
}

func (HashJoinRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	if node.JType != plan.JoinInner {
		return nil
	}
	cond := firstOrNil(b["condTail"])
	if cond == nil {
		return nil
	}
	left, right := b["left"], b["right"]
	leftTables, rightTables := tablesOf(left), tablesOf(right)

	var leftKeys, rightKeys []*plan.Node
	for _, c := range flattenAnd(cond) {
		if c.Kind != plan.KindBinOp || c.Op != plan.BinOpEq {
			return nil
		}
		l, r := c.Children[0], c.Children[1]
		if l.Kind != plan.KindColumnRef || r.Kind != plan.KindColumnRef {
			return nil
		}
		switch {
		case leftTables[l.Table] && rightTables[r.Table]:
			leftKeys = append(leftKeys, l)
			rightKeys = append(rightKeys, r)
		case leftTables[r.Table] && rightTables[l.Table]:
			leftKeys = append(leftKeys, r)
			rightKeys = append(rightKeys, l)
		default:
			return nil
		}
	}
	if len(leftKeys) == 0 {
		return nil
	}
	return []*plan.Node{plan.NewPhysicalHashJoin(node.JType, left, right, leftKeys, rightKeys)}
}
