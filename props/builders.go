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
	"fmt"

	"github.com/optd-go/optd/catalog"
	"github.com/optd-go/optd/plan"
)

// SchemaBuilder derives a group's output schema.
type SchemaBuilder struct{}

func (SchemaBuilder) Name() string { return "schema" }

func (SchemaBuilder) Derive(node *plan.Node, children []Bag, cat catalog.Catalog) Bag {
	switch node.Kind {
	case plan.KindScan, plan.KindPhysicalScan:
		s, err := cat.Table(node.Table)
		if err != nil {
			return Bag{}
		}
		return Bag{Schema: s}

	case plan.KindEmptyRelation, plan.KindPhysicalEmptyRelation:
		return Bag{}

	case plan.KindFilter, plan.KindPhysicalFilter,
		plan.KindSort, plan.KindPhysicalSort,
		plan.KindLimit, plan.KindPhysicalLimit:
		return Bag{Schema: children[0].Schema}

	case plan.KindJoin, plan.KindApply, plan.KindPhysicalHashJoin, plan.KindPhysicalNestedLoopJoin:
		fields := append(append([]catalog.Field{}, children[0].Schema.Fields...), children[1].Schema.Fields...)
		return Bag{Schema: catalog.Schema{Fields: fields}}

	case plan.KindProjection, plan.KindPhysicalProjection:
		childSchema := children[0].Schema
		fields := make([]catalog.Field, 0, len(node.ProjectionExprs()))
		for _, expr := range node.ProjectionExprs() {
			fields = append(fields, projectedField(expr, childSchema))
		}
		return Bag{Schema: catalog.Schema{Fields: fields}}

	case plan.KindAgg, plan.KindPhysicalAgg:
		childSchema := children[0].Schema
		fields := make([]catalog.Field, 0, len(node.AggGroupBy())+len(node.AggExprs()))
		for _, gb := range node.AggGroupBy() {
			fields = append(fields, projectedField(gb, childSchema))
		}
		for _, ae := range node.AggExprs() {
			fields = append(fields, catalog.Field{Name: ae.String(), Type: catalog.TypeDecimal})
		}
		return Bag{Schema: catalog.Schema{Fields: fields}}

	default:
		return Bag{}
	}
}

// projectedField resolves the output field a scalar expr contributes: a
// direct column reference copies its source field, anything else is a
// synthesized field named after the expression's text form.
func projectedField(expr *plan.Node, childSchema catalog.Schema) catalog.Field {
	if expr.Kind == plan.KindColumnRef {
		if i := childSchema.IndexOf(expr.Name); i >= 0 {
			return childSchema.Fields[i]
		}
		return catalog.Field{Name: expr.Name, Type: catalog.TypeInt}
	}
	return catalog.Field{Name: fmt.Sprintf("%s", expr), Type: catalog.TypeInt}
}

// ColumnRefBuilder derives per-output-column (table, ordinal) provenance,
// tracing each output column back to a base column where it has one. No
// rule in the catalog reads it: HashJoinRule assigns equi-join keys to a
// side by the base tables visible in that side's bound expression.
type ColumnRefBuilder struct{}

func (ColumnRefBuilder) Name() string { return "column_refs" }

func (ColumnRefBuilder) Derive(node *plan.Node, children []Bag, cat catalog.Catalog) Bag {
	switch node.Kind {
	case plan.KindScan, plan.KindPhysicalScan:
		s, err := cat.Table(node.Table)
		if err != nil {
			return Bag{}
		}
		refs := make([]ColumnProvenance, len(s.Fields))
		for i := range s.Fields {
			refs[i] = ColumnProvenance{Table: node.Table, Ordinal: i}
		}
		return Bag{ColumnRefs: refs}

	case plan.KindEmptyRelation, plan.KindPhysicalEmptyRelation:
		return Bag{}

	case plan.KindFilter, plan.KindPhysicalFilter,
		plan.KindSort, plan.KindPhysicalSort,
		plan.KindLimit, plan.KindPhysicalLimit:
		return Bag{ColumnRefs: children[0].ColumnRefs}

	case plan.KindJoin, plan.KindApply, plan.KindPhysicalHashJoin, plan.KindPhysicalNestedLoopJoin:
		refs := append(append([]ColumnProvenance{}, children[0].ColumnRefs...), children[1].ColumnRefs...)
		return Bag{ColumnRefs: refs}

	case plan.KindProjection, plan.KindPhysicalProjection:
		childSchema, childRefs := schemaAndRefsForProjection(node, children)
		refs := make([]ColumnProvenance, 0, len(node.ProjectionExprs()))
		for _, expr := range node.ProjectionExprs() {
			refs = append(refs, projectedProvenance(expr, childSchema, childRefs))
		}
		return Bag{ColumnRefs: refs}

	case plan.KindAgg, plan.KindPhysicalAgg:
		// Aggregate output columns are either group-by passthroughs (the
		// only ones with real provenance) or synthesized aggregates.
		refs := make([]ColumnProvenance, 0, len(node.AggGroupBy())+len(node.AggExprs()))
		for range node.AggGroupBy() {
			refs = append(refs, ColumnProvenance{Table: "", Ordinal: -1})
		}
		for range node.AggExprs() {
			refs = append(refs, ColumnProvenance{Table: "", Ordinal: -1})
		}
		return Bag{ColumnRefs: refs}

	default:
		return Bag{}
	}
}

func schemaAndRefsForProjection(node *plan.Node, children []Bag) (catalog.Schema, []ColumnProvenance) {
	if len(children) == 0 {
		return catalog.Schema{}, nil
	}
	return children[0].Schema, children[0].ColumnRefs
}

func projectedProvenance(expr *plan.Node, childSchema catalog.Schema, childRefs []ColumnProvenance) ColumnProvenance {
	if expr.Kind == plan.KindColumnRef {
		if i := childSchema.IndexOf(expr.Name); i >= 0 && i < len(childRefs) {
			return childRefs[i]
		}
	}
	return ColumnProvenance{Table: "", Ordinal: -1}
}
