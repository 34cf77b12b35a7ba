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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optd-go/optd/catalog"
	"github.com/optd-go/optd/plan"
)

func testCatalog() *catalog.Memory {
	cat := catalog.NewMemory()
	cat.AddTable("t1", catalog.Schema{Fields: []catalog.Field{{Name: "a", Type: catalog.TypeInt}}})
	cat.AddTable("t2", catalog.Schema{Fields: []catalog.Field{{Name: "b", Type: catalog.TypeInt}}})
	return cat
}

func TestJoinCommuteWrapsSwappedJoinInRestoringProjection(t *testing.T) {
	cat := testCatalog()
	r := NewJoinCommuteRule(cat)
	cond := plan.NewBinOp(plan.BinOpEq, plan.NewColumnRef("t1", "a"), plan.NewColumnRef("t2", "b"))
	left, right := plan.NewScan("t1"), plan.NewScan("t2")
	node := plan.NewJoin(plan.JoinInner, left, right, cond)

	out := r.Apply(node, mustMatch(t, r, node))
	require.Len(t, out, 1)

	proj := out[0]
	require.Equal(t, plan.KindProjection, proj.Kind)
	require.Equal(t, plan.KindJoin, proj.Children[0].Kind)
	require.True(t, proj.Children[0].Children[0].Equal(right))
	require.True(t, proj.Children[0].Children[1].Equal(left))

	// Output order restored to left-then-right despite the swapped join.
	exprs := proj.ProjectionExprs()
	require.Len(t, exprs, 2)
	require.True(t, exprs[0].Equal(plan.NewColumnRef("t1", "a")))
	require.True(t, exprs[1].Equal(plan.NewColumnRef("t2", "b")))
}

func TestJoinCommuteRoundTripRestoresOriginalColumnOrder(t *testing.T) {
	cat := testCatalog()
	r := NewJoinCommuteRule(cat)
	cond := plan.NewBinOp(plan.BinOpEq, plan.NewColumnRef("t1", "a"), plan.NewColumnRef("t2", "b"))
	left, right := plan.NewScan("t1"), plan.NewScan("t2")
	original := plan.NewJoin(plan.JoinInner, left, right, cond)

	once := r.Apply(original, mustMatch(t, r, original))
	require.Len(t, once, 1)
	commutedJoin := once[0].Children[0]

	twice := r.Apply(commutedJoin, mustMatch(t, r, commutedJoin))
	require.Len(t, twice, 1)

	// JoinCommute ∘ JoinCommute reproduces the original join shape (spec §8's
	// round-trip law), with a restoring projection that keeps the output
	// order of the join it was applied to: commutedJoin is (t2, t1), so its
	// columns come t2's first, then t1's.
	roundTripped := twice[0]
	require.True(t, roundTripped.Children[0].Equal(original))
	exprs := roundTripped.ProjectionExprs()
	require.True(t, exprs[0].Equal(plan.NewColumnRef("t2", "b")))
	require.True(t, exprs[1].Equal(plan.NewColumnRef("t1", "a")))
}

func TestJoinCommuteIgnoresNonInnerJoin(t *testing.T) {
	cat := testCatalog()
	r := NewJoinCommuteRule(cat)
	node := plan.NewJoin(plan.JoinCross, plan.NewScan("t1"), plan.NewScan("t2"), nil)

	out := r.Apply(node, mustMatch(t, r, node))
	require.Nil(t, out)
}

func TestJoinCommuteAbstainsOnUnknownTable(t *testing.T) {
	r := NewJoinCommuteRule(catalog.NewMemory())
	cond := plan.NewBinOp(plan.BinOpEq, plan.NewColumnRef("t1", "a"), plan.NewColumnRef("t2", "b"))
	node := plan.NewJoin(plan.JoinInner, plan.NewScan("t1"), plan.NewScan("t2"), cond)

	out := r.Apply(node, mustMatch(t, r, node))
	require.Nil(t, out)
}
