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
	"sort"

	"github.com/optd-go/optd/pattern"
	"github.com/optd-go/optd/plan"
)

// EliminateFilterRule drops a Filter whose predicate is a known constant:
// true makes the filter a no-op, false makes it produce no rows at all.
type EliminateFilterRule struct{}

func (EliminateFilterRule) Name() string             { return "eliminate_filter" }
func (EliminateFilterRule) Type() Type                { return Normalization }
func (EliminateFilterRule) OptimizeType() OptimizeType { return Heuristics }

func (EliminateFilterRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickOne{Name: "cond"},
		},
	}
}

func (EliminateFilterRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	cond := b["cond"]
	if cond.Kind != plan.KindConstant || cond.Value.Kind != plan.ValueBool {
		return nil
	}
	if cond.Value.Bool {
		return []*plan.Node{b["child"]}
	}
	return []*plan.Node{plan.NewEmptyRelation()}
}

// EliminateLimitRule replaces Limit(0, X) with an empty relation.
type EliminateLimitRule struct{}

func (EliminateLimitRule) Name() string             { return "eliminate_limit" }
func (EliminateLimitRule) Type() Type                { return Normalization }
func (EliminateLimitRule) OptimizeType() OptimizeType { return Heuristics }

func (EliminateLimitRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds:    []plan.Kind{plan.KindLimit},
		Children: []pattern.Pattern{pattern.PickOne{Name: "child"}},
	}
}

func (EliminateLimitRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	if node.LimitCount() != 0 {
		return nil
	}
	return []*plan.Node{plan.NewEmptyRelation()}
}

// EliminateJoinRule replaces a join with an empty relation when either
// input is already known to produce no rows.
type EliminateJoinRule struct{}

func (EliminateJoinRule) Name() string             { return "eliminate_join" }
func (EliminateJoinRule) Type() Type                { return Normalization }
func (EliminateJoinRule) OptimizeType() OptimizeType { return Heuristics }

func (EliminateJoinRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindJoin},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "left"},
			pattern.PickOne{Name: "right"},
			pattern.PickMany{Name: "condTail"},
		},
	}
}

func (EliminateJoinRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	if isEmptyRelation(b["left"]) || isEmptyRelation(b["right"]) {
		return []*plan.Node{plan.NewEmptyRelation()}
	}
	return nil
}

func isEmptyRelation(n *plan.Node) bool {
	return n.Kind == plan.KindEmptyRelation || n.Kind == plan.KindPhysicalEmptyRelation
}

// SimplifyFilterRule constant-folds a Filter's predicate over And/Or trees
// and deduplicates operands. Deduplication collects operands by their
// canonical string form (unordered, via a map) and then re-sorts the
// survivors by that string before rebuilding the tree, so repeated runs
// over identical input produce byte-identical output.
type SimplifyFilterRule struct{}

func (SimplifyFilterRule) Name() string             { return "simplify_filter" }
func (SimplifyFilterRule) Type() Type                { return Normalization }
func (SimplifyFilterRule) OptimizeType() OptimizeType { return Heuristics }

func (SimplifyFilterRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickOne{Name: "cond"},
		},
	}
}

func (SimplifyFilterRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	cond := b["cond"]
	simplified := simplifyExpr(cond)
	if simplified.Equal(cond) {
		return nil
	}
	return []*plan.Node{plan.NewFilter(simplified, b["child"])}
}

func simplifyExpr(n *plan.Node) *plan.Node {
	if n.Kind != plan.KindLogOp {
		return n
	}
	operands := make([]*plan.Node, len(n.Children))
	for i, o := range n.Children {
		operands[i] = simplifyExpr(o)
	}

	shortCircuit := false
	if n.LOp == plan.LogOpAnd {
		shortCircuit = false
	} else {
		shortCircuit = true
	}
	for _, o := range operands {
		if isBoolConst(o, shortCircuit) {
			return plan.NewConstant(plan.BoolValue(shortCircuit))
		}
	}

	identity := n.LOp == plan.LogOpAnd // And ignores true operands, Or ignores false operands
	kept := make([]*plan.Node, 0, len(operands))
	for _, o := range operands {
		if isBoolConst(o, identity) {
			continue
		}
		kept = append(kept, o)
	}
	if len(kept) == 0 {
		return plan.NewConstant(plan.BoolValue(identity))
	}

	deduped := dedupeAndSortByString(kept)
	if len(deduped) == 1 {
		return deduped[0]
	}
	return plan.NewLogOp(n.LOp, deduped...)
}

func isBoolConst(n *plan.Node, v bool) bool {
	return n.Kind == plan.KindConstant && n.Value.Kind == plan.ValueBool && n.Value.Bool == v
}

func dedupeAndSortByString(nodes []*plan.Node) []*plan.Node {
	byKey := make(map[string]*plan.Node, len(nodes))
	for _, n := range nodes {
		byKey[n.String()] = n
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*plan.Node, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out
}

// ConvertFilterCrossJoinToInnerJoinRule lifts equi-predicates from a Filter
// sitting atop a cross join into the join's own condition, turning the
// cross join into an inner join. Any remaining (non-equi, or single-sided)
// conjuncts stay in a Filter above the new inner join.
type ConvertFilterCrossJoinToInnerJoinRule struct{}

func (ConvertFilterCrossJoinToInnerJoinRule) Name() string { return "convert_filter_cross_join_to_inner_join" }
func (ConvertFilterCrossJoinToInnerJoinRule) Type() Type    { return Normalization }
func (ConvertFilterCrossJoinToInnerJoinRule) OptimizeType() OptimizeType {
	return Heuristics
}

func (ConvertFilterCrossJoinToInnerJoinRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "join"},
			pattern.PickOne{Name: "cond"},
		},
	}
}

func (ConvertFilterCrossJoinToInnerJoinRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	join := b["join"]
	if join.Kind != plan.KindJoin || join.JType != plan.JoinCross {
		return nil
	}
	left, right := join.Children[0], join.Children[1]
	leftTables, rightTables := tablesOf(left), tablesOf(right)

	conjuncts := flattenAnd(b["cond"])
	var equi, residual []*plan.Node
	for _, c := range conjuncts {
		if isCrossSideEquiPredicate(c, leftTables, rightTables) {
			equi = append(equi, c)
		} else {
			residual = append(residual, c)
		}
	}
	if len(equi) == 0 {
		return nil
	}

	newJoin := plan.NewJoin(plan.JoinInner, left, right, andOf(equi...))
	if len(residual) == 0 {
		return []*plan.Node{newJoin}
	}
	return []*plan.Node{plan.NewFilter(andOf(residual...), newJoin)}
}

func isCrossSideEquiPredicate(c *plan.Node, leftTables, rightTables map[string]bool) bool {
	if c.Kind != plan.KindBinOp || c.Op != plan.BinOpEq {
		return false
	}
	l, r := c.Children[0], c.Children[1]
	if l.Kind != plan.KindColumnRef || r.Kind != plan.KindColumnRef {
		return false
	}
	return (leftTables[l.Table] && rightTables[r.Table]) || (leftTables[r.Table] && rightTables[l.Table])
}

func tablesOf(n *plan.Node) map[string]bool {
	out := make(map[string]bool)
	var walk func(*plan.Node)
	walk = func(x *plan.Node) {
		if x == nil {
			return
		}
		if x.Kind == plan.KindScan || x.Kind == plan.KindPhysicalScan {
			out[x.Table] = true
		}
		for _, c := range x.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

func flattenAnd(cond *plan.Node) []*plan.Node {
	if cond.Kind == plan.KindLogOp && cond.LOp == plan.LogOpAnd {
		var out []*plan.Node
		for _, c := range cond.Children {
			out = append(out, flattenAnd(c)...)
		}
		return out
	}
	return []*plan.Node{cond}
}

// FilterPushdownRule commutes a Filter below a Projection, Sort, Join, or
// Agg input — rewriting predicates through the projection list, splitting
// a join's conjuncts by which side they reference, and restricting
// agg-pushdown to predicates over group-by columns only. It never pushes
// below Limit, since Limit and Filter do not commute.
type FilterPushdownRule struct{}

func (FilterPushdownRule) Name() string             { return "filter_pushdown" }
func (FilterPushdownRule) Type() Type                { return Normalization }
func (FilterPushdownRule) OptimizeType() OptimizeType { return Heuristics }

func (FilterPushdownRule) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickOne{Name: "cond"},
		},
	}
}

func (FilterPushdownRule) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	child := b["child"]
	cond := b["cond"]

	switch child.Kind {
	case plan.KindProjection:
		rewritten, ok := rewriteColumnRefsThroughProjection(cond, child.ProjectionExprs())
		if !ok {
			// Some referenced output column isn't a direct passthrough of a
			// child column (it's computed), so there is no single underlying
			// column to push the predicate down against; abstain rather
			// than push a now-dangling reference below the Projection.
			return nil
		}
		pushed := plan.NewFilter(rewritten, child.Children[0])
		return []*plan.Node{plan.NewProjection(pushed, child.ProjectionExprs()...)}

	case plan.KindSort:
		pushed := plan.NewFilter(cond, child.Children[0])
		return []*plan.Node{plan.NewSort(pushed, child.SortKeys()...)}

	case plan.KindJoin:
		return pushFilterBelowJoin(child, cond)

	case plan.KindAgg:
		return pushFilterBelowAgg(child, cond)

	default:
		return nil
	}
}

func pushFilterBelowJoin(join *plan.Node, cond *plan.Node) []*plan.Node {
	left, right := join.Children[0], join.Children[1]
	leftTables, rightTables := tablesOf(left), tablesOf(right)

	var toLeft, toRight, residual []*plan.Node
	for _, c := range flattenAnd(cond) {
		refs := columnRefsIn(c)
		switch {
		case allTablesIn(refs, leftTables):
			toLeft = append(toLeft, c)
		case allTablesIn(refs, rightTables):
			toRight = append(toRight, c)
		default:
			residual = append(residual, c)
		}
	}
	if len(toLeft) == 0 && len(toRight) == 0 {
		return nil
	}

	newLeft, newRight := left, right
	if len(toLeft) > 0 {
		newLeft = plan.NewFilter(andOf(toLeft...), left)
	}
	if len(toRight) > 0 {
		newRight = plan.NewFilter(andOf(toRight...), right)
	}
	newJoin := plan.NewJoin(join.JType, newLeft, newRight, join.JoinCond())
	if len(residual) == 0 {
		return []*plan.Node{newJoin}
	}
	return []*plan.Node{plan.NewFilter(andOf(residual...), newJoin)}
}

func pushFilterBelowAgg(agg *plan.Node, cond *plan.Node) []*plan.Node {
	groupByNames := make(map[string]bool)
	for _, gb := range agg.AggGroupBy() {
		if gb.Kind == plan.KindColumnRef {
			groupByNames[gb.Name] = true
		}
	}

	var pushable, residual []*plan.Node
	for _, c := range flattenAnd(cond) {
		refs := columnRefsIn(c)
		if allNamesIn(refs, groupByNames) {
			pushable = append(pushable, c)
		} else {
			residual = append(residual, c)
		}
	}
	if len(pushable) == 0 {
		return nil
	}

	newChild := plan.NewFilter(andOf(pushable...), agg.Children[0])
	newAgg := plan.NewAgg(newChild, agg.AggGroupBy(), agg.AggExprs())
	if len(residual) == 0 {
		return []*plan.Node{newAgg}
	}
	return []*plan.Node{plan.NewFilter(andOf(residual...), newAgg)}
}

// rewriteColumnRefsThroughProjection resolves every ColumnRef in n against
// projExprs — the Projection output list n currently sits above — replacing
// each reference to a passthrough output column with the underlying
// expression it projects, so the rewritten predicate is valid once
// commuted below the Projection. It refuses (returns ok=false) as soon as
// any referenced output column is not a bare ColumnRef passthrough (e.g. a
// computed expression projectedField would synthesize a name for), since
// there is then no single underlying column to push the predicate against.
func rewriteColumnRefsThroughProjection(n *plan.Node, projExprs []*plan.Node) (*plan.Node, bool) {
	if n.Kind == plan.KindColumnRef {
		for _, e := range projExprs {
			if projectionOutputName(e) != n.Name {
				continue
			}
			if e.Kind != plan.KindColumnRef {
				return nil, false
			}
			return e, true
		}
		return nil, false
	}
	if len(n.Children) == 0 {
		return n, true
	}
	children := make([]*plan.Node, len(n.Children))
	changed := false
	for i, c := range n.Children {
		rewritten, ok := rewriteColumnRefsThroughProjection(c, projExprs)
		if !ok {
			return nil, false
		}
		children[i] = rewritten
		if rewritten != c {
			changed = true
		}
	}
	if !changed {
		return n, true
	}
	clone := *n
	clone.Children = children
	return &clone, true
}

// projectionOutputName mirrors props.projectedField's name derivation: a
// bare ColumnRef keeps its column name, anything else is named after its
// text form.
func projectionOutputName(expr *plan.Node) string {
	if expr.Kind == plan.KindColumnRef {
		return expr.Name
	}
	return expr.String()
}

func columnRefsIn(n *plan.Node) []*plan.Node {
	var out []*plan.Node
	var walk func(*plan.Node)
	walk = func(x *plan.Node) {
		if x.Kind == plan.KindColumnRef {
			out = append(out, x)
			return
		}
		for _, c := range x.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

func allTablesIn(refs []*plan.Node, tables map[string]bool) bool {
	if len(refs) == 0 {
		return false
	}
	for _, r := range refs {
		if !tables[r.Table] {
			return false
		}
	}
	return true
}

func allNamesIn(refs []*plan.Node, names map[string]bool) bool {
	if len(refs) == 0 {
		return false
	}
	for _, r := range refs {
		if !names[r.Name] {
			return false
		}
	}
	return true
}
