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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optd-go/optd/plan"
	"github.com/optd-go/optd/stats"
)

func TestCostLessUsesWeightedScoreThenLexicographicTiebreak(t *testing.T) {
	w := Weights{Compute: 1, IO: 1}
	cheaper := Cost{Compute: 1, IO: 1}
	pricier := Cost{Compute: 2, IO: 1}
	require.True(t, cheaper.Less(pricier, w))
	require.False(t, pricier.Less(cheaper, w))

	tieA := Cost{RowCount: 5, Compute: 1, IO: 1}
	tieB := Cost{RowCount: 10, Compute: 1, IO: 1}
	require.True(t, tieA.Less(tieB, w))
}

func TestStaticModelScanUsesStatsRowCount(t *testing.T) {
	m := NewOptCostModel()
	provider := stats.NewMemory()
	provider.SetTable("t1", stats.PerTableStats{RowCount: 500})

	c := m.Cost(plan.NewScan("t1"), nil, Context{Stats: provider})
	require.Equal(t, 500.0, c.RowCount)
}

func TestStaticModelScanDefaultsWithoutStats(t *testing.T) {
	m := NewOptCostModel()
	c := m.Cost(plan.NewScan("unknown"), nil, Context{})
	require.Equal(t, defaultRowCount, c.RowCount)
}

func TestStaticModelFilterTrueConstantIsFullySelective(t *testing.T) {
	m := NewOptCostModel()
	cond := plan.NewConstant(plan.BoolValue(true))
	f := plan.NewFilter(cond, plan.NewScan("t1"))
	childCost := Cost{RowCount: 100, Compute: 100, IO: 100}

	c := m.Cost(f, []Cost{childCost}, Context{})
	require.Equal(t, 100.0, c.RowCount)
}

func TestStaticModelFilterFalseConstantEliminatesAllRows(t *testing.T) {
	m := NewOptCostModel()
	cond := plan.NewConstant(plan.BoolValue(false))
	f := plan.NewFilter(cond, plan.NewScan("t1"))
	childCost := Cost{RowCount: 100, Compute: 100, IO: 100}

	c := m.Cost(f, []Cost{childCost}, Context{})
	require.Equal(t, 0.0, c.RowCount)
}

func TestStaticModelJoinUsesMinOfCrossAndNDVDivided(t *testing.T) {
	m := NewOptCostModel()
	provider := stats.NewMemory()
	provider.SetTable("t1", stats.PerTableStats{
		RowCount:  1000,
		PerColumn: map[string]stats.PerColumnStats{"a": {NDV: 100}},
	})
	provider.SetTable("t2", stats.PerTableStats{
		RowCount:  10,
		PerColumn: map[string]stats.PerColumnStats{"a": {NDV: 10}},
	})
	cond := plan.NewBinOp(plan.BinOpEq, plan.NewColumnRef("t1", "a"), plan.NewColumnRef("t2", "a"))
	join := plan.NewJoin(plan.JoinInner, plan.NewScan("t1"), plan.NewScan("t2"), cond)

	c := m.Cost(join, []Cost{{RowCount: 1000}, {RowCount: 10}}, Context{Stats: provider})
	require.Equal(t, 100.0, c.RowCount) // min(1000*10/100, 1000*10) == 100
}

func TestStaticModelCrossJoinUsesFullCrossProduct(t *testing.T) {
	m := NewOptCostModel()
	join := plan.NewJoin(plan.JoinCross, plan.NewScan("t1"), plan.NewScan("t2"), nil)
	c := m.Cost(join, []Cost{{RowCount: 1000}, {RowCount: 10}}, Context{})
	require.Equal(t, 10000.0, c.RowCount)
}

func TestStaticModelLimitCapsRowCount(t *testing.T) {
	m := NewOptCostModel()
	limit := plan.NewLimit(plan.NewScan("t1"), 5)
	c := m.Cost(limit, []Cost{{RowCount: 1000}}, Context{})
	require.Equal(t, 5.0, c.RowCount)
}

func TestAdaptiveModelSubstitutesObservedRowCount(t *testing.T) {
	static := NewOptCostModel()
	rs := NewRuntimeStats()
	adaptive := NewAdaptiveCostModel(static, rs, DefaultDecay)
	adaptive.Feedback(7, 42)

	c := adaptive.Cost(plan.NewScan("t1"), nil, Context{GroupID: 7})
	require.Equal(t, 42.0, c.RowCount)
}

func TestAdaptiveModelDecaysTowardNewSamples(t *testing.T) {
	rs := NewRuntimeStats()
	rs.Feedback(1, 100, 1) // decay=1: first sample just sets the value
	rs.Feedback(1, 0, 1)   // (100*1 + 0) / 2 == 50
	got, ok := rs.get(1)
	require.True(t, ok)
	require.Equal(t, 50.0, got)
}

func TestRuntimeStatsFeedbackIsConcurrencySafe(t *testing.T) {
	rs := NewRuntimeStats()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rs.Feedback(1, float64(i), DefaultDecay)
		}(i)
	}
	wg.Wait()
	_, ok := rs.get(1)
	require.True(t, ok)
}
