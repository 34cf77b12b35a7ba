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

package heuristic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optd-go/optd/pattern"
	"github.com/optd-go/optd/plan"
)

// eliminateTrueFilter drops a Filter whose predicate is the constant true,
// mirroring rules.EliminateFilter without importing the rules package (to
// keep this package's tests independent of it).
type eliminateTrueFilter struct{}

func (eliminateTrueFilter) Name() string { return "eliminate_true_filter" }
func (eliminateTrueFilter) Pattern() pattern.Pattern {
	return pattern.MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []pattern.Pattern{
			pattern.PickOne{Name: "child"},
			pattern.PickOne{Name: "cond"},
		},
	}
}
func (eliminateTrueFilter) Apply(node *plan.Node, b pattern.Bindings) []*plan.Node {
	cond := b["cond"]
	if cond.Kind == plan.KindConstant && cond.Value.Kind == plan.ValueBool && cond.Value.Bool {
		return []*plan.Node{b["child"]}
	}
	return nil
}

func TestHeuristicDriverRewritesBottomUp(t *testing.T) {
	d := New([]Rule{eliminateTrueFilter{}}, BottomUp, nil)
	tree := plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), plan.NewScan("t1"))

	result, firings := d.Run(tree)
	require.Equal(t, 1, firings)
	require.True(t, result.Equal(plan.NewScan("t1")))
}

func TestHeuristicDriverLeavesNonMatchingTreeUnchanged(t *testing.T) {
	d := New([]Rule{eliminateTrueFilter{}}, BottomUp, nil)
	tree := plan.NewScan("t1")

	result, firings := d.Run(tree)
	require.Equal(t, 0, firings)
	require.True(t, result.Equal(tree))
}

func TestHeuristicDriverIsIdempotent(t *testing.T) {
	d := New([]Rule{eliminateTrueFilter{}}, BottomUp, nil)
	tree := plan.NewFilter(plan.NewConstant(plan.BoolValue(true)),
		plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), plan.NewScan("t1")))

	first, firings1 := d.Run(tree)
	require.Greater(t, firings1, 0)

	_, firings2 := d.Run(first)
	require.Equal(t, 0, firings2)
}

func TestHeuristicDriverRewritesNestedChildren(t *testing.T) {
	d := New([]Rule{eliminateTrueFilter{}}, BottomUp, nil)
	inner := plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), plan.NewScan("t1"))
	outer := plan.NewProjection(inner, plan.NewColumnRef("t1", "a"))

	result, _ := d.Run(outer)
	require.Equal(t, plan.KindScan, result.Children[0].Kind)
}
