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

package props

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optd-go/optd/catalog"
	"github.com/optd-go/optd/plan"
)

// fakeGroups maps group ids directly to representative expressions, mimicking
// the slice of how the real memo would answer Representative.
type fakeGroups map[uint32]*plan.Node

func (g fakeGroups) Representative(id uint32) *plan.Node { return g[id] }

func newTestCatalog() *catalog.Memory {
	cat := catalog.NewMemory()
	cat.AddTable("t1", catalog.Schema{Fields: []catalog.Field{
		{Name: "a", Type: catalog.TypeInt},
		{Name: "b", Type: catalog.TypeInt},
	}})
	cat.AddTable("t2", catalog.Schema{Fields: []catalog.Field{
		{Name: "a", Type: catalog.TypeInt},
		{Name: "c", Type: catalog.TypeString},
	}})
	return cat
}

func TestSchemaOfScan(t *testing.T) {
	cat := newTestCatalog()
	fw := New(cat, SchemaBuilder{}, ColumnRefBuilder{})

	groups := fakeGroups{1: plan.NewScan("t1")}
	bag := fw.Properties(1, groups)
	require.Len(t, bag.Schema.Fields, 2)
	require.Equal(t, "a", bag.Schema.Fields[0].Name)
	require.Equal(t, ColumnProvenance{Table: "t1", Ordinal: 0}, bag.ColumnRefs[0])
}

func TestSchemaPassesThroughFilter(t *testing.T) {
	cat := newTestCatalog()
	fw := New(cat, SchemaBuilder{}, ColumnRefBuilder{})

	groups := fakeGroups{
		1: plan.NewScan("t1"),
		2: plan.NewFilter(plan.NewConstant(plan.BoolValue(true)), plan.NewGroupRef(1)),
	}
	bag := fw.Properties(2, groups)
	require.Len(t, bag.Schema.Fields, 2)
	require.Equal(t, "b", bag.Schema.Fields[1].Name)
}

func TestSchemaConcatenatesJoin(t *testing.T) {
	cat := newTestCatalog()
	fw := New(cat, SchemaBuilder{}, ColumnRefBuilder{})

	groups := fakeGroups{
		1: plan.NewScan("t1"),
		2: plan.NewScan("t2"),
		3: plan.NewJoin(plan.JoinInner, plan.NewGroupRef(1), plan.NewGroupRef(2), nil),
	}
	bag := fw.Properties(3, groups)
	require.Len(t, bag.Schema.Fields, 4)
	require.Equal(t, ColumnProvenance{Table: "t2", Ordinal: 0}, bag.ColumnRefs[2])
}

func TestSchemaProjectionResolvesColumnProvenance(t *testing.T) {
	cat := newTestCatalog()
	fw := New(cat, SchemaBuilder{}, ColumnRefBuilder{})

	groups := fakeGroups{
		1: plan.NewScan("t1"),
		2: plan.NewProjection(plan.NewGroupRef(1), plan.NewColumnRef("t1", "b")),
	}
	bag := fw.Properties(2, groups)
	require.Len(t, bag.Schema.Fields, 1)
	require.Equal(t, "b", bag.Schema.Fields[0].Name)
	require.Equal(t, ColumnProvenance{Table: "t1", Ordinal: 1}, bag.ColumnRefs[0])
}

func TestPropertiesAreCachedPerGroup(t *testing.T) {
	cat := newTestCatalog()
	fw := New(cat, SchemaBuilder{})
	calls := 0
	groups := countingGroups{inner: fakeGroups{1: plan.NewScan("t1")}, calls: &calls}

	fw.Properties(1, groups)
	fw.Properties(1, groups)
	require.Equal(t, 1, calls)
}

type countingGroups struct {
	inner fakeGroups
	calls *int
}

func (c countingGroups) Representative(id uint32) *plan.Node {
	*c.calls++
	return c.inner[id]
}
