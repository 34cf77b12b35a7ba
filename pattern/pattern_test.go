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

package pattern

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optd-go/optd/plan"
)

// fakeGroups is a minimal GroupResolver backed by a plain map, standing in
// for the real memo in these unit tests.
type fakeGroups struct {
	exprs map[uint32][]*plan.Node
	best  map[uint32]*plan.Node
}

func (f *fakeGroups) Expressions(id uint32) []*plan.Node { return f.exprs[id] }
func (f *fakeGroups) Best(id uint32) *plan.Node          { return f.best[id] }

func TestMatchLeafKind(t *testing.T) {
	n := plan.NewScan("t1")
	bs := Match(Kind(plan.KindScan), n, nil)
	require.Len(t, bs, 1)

	bs = Match(Kind(plan.KindFilter), n, nil)
	require.Empty(t, bs)
}

func TestMatchFilterCapturesChildAndCond(t *testing.T) {
	cond := plan.NewConstant(plan.BoolValue(true))
	child := plan.NewScan("t1")
	f := plan.NewFilter(cond, child)

	pat := MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []Pattern{
			PickOne{Name: "child"},
			PickOne{Name: "cond"},
		},
	}
	bs := Match(pat, f, nil)
	require.Len(t, bs, 1)
	require.True(t, bs[0]["child"].Equal(child))
	require.True(t, bs[0]["cond"].Equal(cond))
}

func TestMatchFailsOnWrongArity(t *testing.T) {
	f := plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), plan.NewScan("t1"))
	pat := MatchKind{
		Kinds:    []plan.Kind{plan.KindFilter},
		Children: []Pattern{PickOne{Name: "only"}},
	}
	require.Empty(t, Match(pat, f, nil))
}

func TestMatchThroughGroupReferenceEnumeratesCandidates(t *testing.T) {
	// Group 1 has two member expressions: a Scan and a Filter-over-Scan.
	// The pattern requires the join's right child to be a Scan reached
	// through the group: the plain Scan candidate matches, and the Filter
	// candidate is excluded by kind, so exactly one binding results.
	scan := plan.NewScan("t2")
	filterOverScan := plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), plan.NewScan("t3"))
	res := &fakeGroups{
		exprs: map[uint32][]*plan.Node{
			1: {scan, filterOverScan},
		},
	}

	groupRef := plan.NewGroupRef(1)
	join := plan.NewJoin(plan.JoinInner, plan.NewScan("t1"), groupRef, plan.NewConstant(plan.BoolValue(true)))

	pat := MatchKind{
		Kinds: []plan.Kind{plan.KindJoin},
		Children: []Pattern{
			PickOne{Name: "left"},
			MatchKind{Kinds: []plan.Kind{plan.KindScan}},
			PickOne{Name: "cond"},
		},
	}
	bs := Match(pat, join, res)
	require.Len(t, bs, 1)
	require.True(t, bs[0]["left"].Equal(plan.NewScan("t1")))
}

func TestMatchEnumeratesMultipleCandidatesWhenBothQualify(t *testing.T) {
	// Each candidate binds different nodes; candidates that bind nothing
	// would yield identical bindings, which Match deduplicates.
	filterA := plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), plan.NewScan("a"))
	filterB := plan.NewFilter(plan.NewConstant(plan.BoolValue(false)), plan.NewScan("b"))
	res := &fakeGroups{
		exprs: map[uint32][]*plan.Node{
			1: {filterA, filterB},
		},
	}
	groupRef := plan.NewGroupRef(1)
	filter := plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), groupRef)

	pat := MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []Pattern{
			MatchKind{
				Kinds:    []plan.Kind{plan.KindFilter},
				Children: []Pattern{PickOne{Name: "inner"}, PickOne{Name: "innerCond"}},
			},
			PickOne{Name: "cond"},
		},
	}
	bs := Match(pat, filter, res)
	require.Len(t, bs, 2)
}

func TestPickOneExpandMaterializesGroupBest(t *testing.T) {
	best := plan.NewScan("best")
	res := &fakeGroups{
		best: map[uint32]*plan.Node{1: best},
	}
	groupRef := plan.NewGroupRef(1)
	filter := plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), groupRef)

	pat := MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []Pattern{
			PickOne{Name: "child", Expand: true},
			PickOne{Name: "cond"},
		},
	}
	bs := Match(pat, filter, res)
	require.Len(t, bs, 1)
	require.True(t, bs[0]["child"].Equal(best))
}

func TestPickOneWithoutExpandLeavesGroupRefOpaque(t *testing.T) {
	groupRef := plan.NewGroupRef(7)
	filter := plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), groupRef)

	pat := MatchKind{
		Kinds: []plan.Kind{plan.KindFilter},
		Children: []Pattern{
			PickOne{Name: "child"},
			PickOne{Name: "cond"},
		},
	}
	bs := Match(pat, filter, nil)
	require.Len(t, bs, 1)
	require.Equal(t, uint32(7), bs[0]["child"].GroupID())
}

func TestPickManyCapturesTail(t *testing.T) {
	groupBy := []*plan.Node{}
	aggExprs := []*plan.Node{plan.NewColumnRef("t", "a"), plan.NewColumnRef("t", "b")}
	agg := plan.NewAgg(plan.NewScan("t"), groupBy, aggExprs)

	pat := MatchKind{
		Kinds: []plan.Kind{plan.KindAgg},
		Children: []Pattern{
			PickOne{Name: "child"},
			PickMany{Name: "rest"},
		},
	}
	bs := Match(pat, agg, nil)
	require.Len(t, bs, 1)
	require.Equal(t, plan.KindList, bs[0]["rest"].Kind)
}

func TestMatchAnyKindWhenKindsEmpty(t *testing.T) {
	pat := MatchKind{}
	bs := Match(pat, plan.NewScan("t1"), nil)
	require.Len(t, bs, 1)
}
