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

package memo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optd-go/optd/cost"
	"github.com/optd-go/optd/plan"
)

func TestAddExpressionCreatesGroupAndDedupes(t *testing.T) {
	m := New()
	scan := plan.NewScan("t1")

	g1, stored1 := m.AddExpression(scan)
	g2, stored2 := m.AddExpression(plan.NewScan("t1"))

	require.Equal(t, g1, g2)
	require.True(t, stored1 == stored2, "duplicate insert must return the same canonical node")
}

func TestAddExpressionCanonicalizesRelationalChildrenIntoGroupRefs(t *testing.T) {
	m := New()
	cond := plan.NewConstant(plan.BoolValue(true))
	filter := plan.NewFilter(cond, plan.NewScan("t1"))

	gid, stored := m.AddExpression(filter)
	require.NotZero(t, gid)
	require.Equal(t, plan.KindGroup, stored.Child().Kind)

	scanGroupID := stored.Child().GroupID()
	exprs := m.Expressions(scanGroupID)
	require.Len(t, exprs, 1)
	require.Equal(t, plan.KindScan, exprs[0].Kind)
}

func TestAddExpressionToGroupAppendsAlternative(t *testing.T) {
	m := New()
	gid, _ := m.AddExpression(plan.NewScan("t1"))

	physical := plan.NewPhysicalScan("t1", "")
	stored, owner := m.AddExpressionToGroup(gid, physical)
	require.Equal(t, gid, owner)
	require.Len(t, m.Expressions(uint32(gid)), 2)
	require.True(t, stored.Equal(physical))
}

func TestAddExpressionToGroupIsIdempotent(t *testing.T) {
	m := New()
	gid, _ := m.AddExpression(plan.NewScan("t1"))
	m.AddExpressionToGroup(gid, plan.NewPhysicalScan("t1", ""))
	m.AddExpressionToGroup(gid, plan.NewPhysicalScan("t1", ""))
	require.Len(t, m.Expressions(uint32(gid)), 2)
}

func TestMergeGroupsRewritesReferencesAndUnionsExprs(t *testing.T) {
	m := New()
	scanGid, _ := m.AddExpression(plan.NewScan("t1"))
	otherGid, _ := m.AddExpression(plan.NewScan("t2"))

	filterGid, filterExpr := m.AddExpression(
		plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), plan.NewGroupRef(uint32(scanGid))),
	)
	require.True(t, filterExpr.Child().GroupID() == uint32(scanGid))

	survivor := m.MergeGroups(scanGid, otherGid)
	require.Contains(t, []GroupID{scanGid, otherGid}, survivor)

	// The filter's child reference must now point at the surviving group.
	exprs := m.Expressions(uint32(filterGid))
	require.Equal(t, survivor, GroupID(exprs[0].Child().GroupID()))

	// The absorbed group's member (the other scan) must now live under survivor.
	survivorExprs := m.Expressions(uint32(survivor))
	require.Len(t, survivorExprs, 2)
}

func TestWinnerMonotonicity(t *testing.T) {
	m := New()
	gid, _ := m.AddExpression(plan.NewScan("t1"))
	physical := plan.NewPhysicalScan("t1", "")

	weights := cost.DefaultWeights
	ok := m.SetWinner(gid, NoRequirements, physical, cost.Cost{Compute: 100, IO: 100}, nil, weights)
	require.True(t, ok)

	// A worse cost must be rejected.
	ok = m.SetWinner(gid, NoRequirements, physical, cost.Cost{Compute: 200, IO: 200}, nil, weights)
	require.False(t, ok)

	// A strictly better cost must be accepted.
	ok = m.SetWinner(gid, NoRequirements, physical, cost.Cost{Compute: 50, IO: 50}, nil, weights)
	require.True(t, ok)

	w, ok := m.GetWinner(gid, NoRequirements)
	require.True(t, ok)
	require.Equal(t, 50.0, w.Cost.Compute)
}

func TestSetImpossibleDoesNotOverwriteRealWinner(t *testing.T) {
	m := New()
	gid, _ := m.AddExpression(plan.NewScan("t1"))
	m.SetWinner(gid, NoRequirements, plan.NewPhysicalScan("t1", ""), cost.Cost{}, nil, cost.DefaultWeights)
	m.SetImpossible(gid, NoRequirements)

	w, ok := m.GetWinner(gid, NoRequirements)
	require.True(t, ok)
	require.False(t, w.Impossible)
}

func TestClearWinnersPreservesExpressionsAndExplorationFlags(t *testing.T) {
	m := New()
	gid, _ := m.AddExpression(plan.NewScan("t1"))
	m.SetExplored(gid)
	m.SetWinner(gid, NoRequirements, plan.NewPhysicalScan("t1", ""), cost.Cost{}, nil, cost.DefaultWeights)

	m.ClearWinners()

	require.True(t, m.Explored(gid))
	_, ok := m.GetWinner(gid, NoRequirements)
	require.False(t, ok)
	require.Len(t, m.Expressions(uint32(gid)), 1)
}

func TestClearResetsEverything(t *testing.T) {
	m := New()
	m.AddExpression(plan.NewScan("t1"))
	m.Clear()
	require.Empty(t, m.Groups())
}

func TestDumpIsDeterministic(t *testing.T) {
	build := func() *Memo {
		m := New()
		gid, _ := m.AddExpression(plan.NewScan("t1"))
		m.SetWinner(gid, NoRequirements, plan.NewPhysicalScan("t1", ""), cost.Cost{Compute: 1}, nil, cost.DefaultWeights)
		return m
	}
	require.Equal(t, build().Dump(), build().Dump())
}
