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

// Package plan defines the single, uniform tree representation shared by
// logical operators, physical operators, and scalar expressions. A Node is
// immutable once constructed; the memo (package memo) reuses the exact same
// type for its "expressions" by requiring every relational child to be a
// KindGroup leaf that carries a group id instead of a materialized subtree;
// scalar children stay embedded.
package plan

import (
	"fmt"
	"strings"
)

// Kind is the closed set of node kinds. The set is centrally defined here;
// adding a kind is a source-level change to this file and to the pattern
// matcher and rule catalog that dispatch on it.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Logical operators.
	KindScan
	KindFilter
	KindProjection
	KindJoin
	KindAgg
	KindSort
	KindLimit
	KindEmptyRelation
	KindApply

	// Physical operators.
	KindPhysicalScan
	KindPhysicalFilter
	KindPhysicalHashJoin
	KindPhysicalNestedLoopJoin
	KindPhysicalProjection
	KindPhysicalSort
	KindPhysicalAgg
	KindPhysicalLimit
	KindPhysicalEmptyRelation

	// Scalar expressions.
	KindColumnRef
	KindConstant
	KindBinOp
	KindLogOp
	KindFunc
	KindList

	// KindGroup is a sentinel used only inside the memo: a Node of this kind
	// carries no children and stores a group id in Value.Int, standing in for
	// a group reference rather than a materialized subtree.
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindScan:
		return "Scan"
	case KindFilter:
		return "Filter"
	case KindProjection:
		return "Projection"
	case KindJoin:
		return "Join"
	case KindAgg:
		return "Agg"
	case KindSort:
		return "Sort"
	case KindLimit:
		return "Limit"
	case KindEmptyRelation:
		return "EmptyRelation"
	case KindApply:
		return "Apply"
	case KindPhysicalScan:
		return "PhysicalScan"
	case KindPhysicalFilter:
		return "PhysicalFilter"
	case KindPhysicalHashJoin:
		return "PhysicalHashJoin"
	case KindPhysicalNestedLoopJoin:
		return "PhysicalNestedLoopJoin"
	case KindPhysicalProjection:
		return "PhysicalProjection"
	case KindPhysicalSort:
		return "PhysicalSort"
	case KindPhysicalAgg:
		return "PhysicalAgg"
	case KindPhysicalLimit:
		return "PhysicalLimit"
	case KindPhysicalEmptyRelation:
		return "PhysicalEmptyRelation"
	case KindColumnRef:
		return "ColumnRef"
	case KindConstant:
		return "Constant"
	case KindBinOp:
		return "BinOp"
	case KindLogOp:
		return "LogOp"
	case KindFunc:
		return "Func"
	case KindList:
		return "List"
	case KindGroup:
		return "Group"
	default:
		return "Invalid"
	}
}

// IsLogical reports whether k is a logical relational operator.
func (k Kind) IsLogical() bool {
	return k >= KindScan && k <= KindApply
}

// IsPhysical reports whether k is a physical relational operator.
func (k Kind) IsPhysical() bool {
	return k >= KindPhysicalScan && k <= KindPhysicalEmptyRelation
}

// IsScalar reports whether k is a scalar expression kind.
func (k Kind) IsScalar() bool {
	return k >= KindColumnRef && k <= KindList
}

// JoinType parametrizes KindJoin and KindApply nodes.
type JoinType uint8

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

func (jt JoinType) String() string {
	switch jt {
	case JoinInner:
		return "Inner"
	case JoinLeft:
		return "Left"
	case JoinRight:
		return "Right"
	case JoinFull:
		return "Full"
	case JoinCross:
		return "Cross"
	default:
		return "Unknown"
	}
}

// BinOp is the operator code carried by KindBinOp nodes.
type BinOp uint8

const (
	BinOpEq BinOp = iota
	BinOpNe
	BinOpLt
	BinOpLe
	BinOpGt
	BinOpGe
	BinOpAdd
	BinOpSub
	BinOpMul
	BinOpDiv
)

func (op BinOp) String() string {
	switch op {
	case BinOpEq:
		return "="
	case BinOpNe:
		return "!="
	case BinOpLt:
		return "<"
	case BinOpLe:
		return "<="
	case BinOpGt:
		return ">"
	case BinOpGe:
		return ">="
	case BinOpAdd:
		return "+"
	case BinOpSub:
		return "-"
	case BinOpMul:
		return "*"
	case BinOpDiv:
		return "/"
	default:
		return "?"
	}
}

// LogOp is the operator code carried by KindLogOp nodes.
type LogOp uint8

const (
	LogOpAnd LogOp = iota
	LogOpOr
)

func (op LogOp) String() string {
	if op == LogOpAnd {
		return "AND"
	}
	return "OR"
}

// ValueKind is the discriminant of the inline scalar Value carried by
// Constant and Group leaves and by Limit/PhysicalLimit (the row count).
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueInt
	ValueBool
	ValueString
	ValueDecimal
)

// Value is the fixed-length inline scalar payload a leaf Node may carry.
// Only one field is meaningful at a time, selected by Kind.
type Value struct {
	Kind ValueKind
	Int  int64
	Bool bool
	// Str holds the string payload for ValueString, and the decimal's
	// textual representation for ValueDecimal (kept as text to avoid
	// pulling in a decimal library the core otherwise has no use for).
	Str string
}

// Equal reports whether v and o carry the same discriminant and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueInt:
		return v.Int == o.Int
	case ValueBool:
		return v.Bool == o.Bool
	case ValueString, ValueDecimal:
		return v.Str == o.Str
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueInt:
		return fmt.Sprintf("%d", v.Int)
	case ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	case ValueString:
		return fmt.Sprintf("%q", v.Str)
	case ValueDecimal:
		return v.Str
	default:
		return "<none>"
	}
}

func IntValue(i int64) Value      { return Value{Kind: ValueInt, Int: i} }
func BoolValue(b bool) Value      { return Value{Kind: ValueBool, Bool: b} }
func StringValue(s string) Value  { return Value{Kind: ValueString, Str: s} }
func DecimalValue(s string) Value { return Value{Kind: ValueDecimal, Str: s} }

// Node is the uniform tagged tree node. Only the fields relevant to Kind are
// populated; the rest are zero values. Nodes are never mutated after
// construction — callers that need a modified node build a new one with New.
type Node struct {
	Kind     Kind
	Children []*Node

	// Value is the optional inline scalar, meaningful for KindConstant,
	// KindGroup (group id stored as an int Value) and KindLimit/
	// KindPhysicalLimit (row count stored as an int Value), unused otherwise.
	Value Value

	// Table is the table name, meaningful for KindScan/KindPhysicalScan.
	Table string

	// Name is a generic identifier: the column name for KindColumnRef, or
	// the function name for KindFunc.
	Name string

	// JType parametrizes KindJoin, KindPhysicalHashJoin,
	// KindPhysicalNestedLoopJoin, and KindApply nodes.
	JType JoinType

	// Op parametrizes KindBinOp nodes.
	Op BinOp

	// LOp parametrizes KindLogOp nodes.
	LOp LogOp

	// IndexName is the access-path name chosen for a physical scan, set by
	// an implementation rule rather than present on the logical scan.
	IndexName string
}

// New builds a node of the given kind with the given children. Most callers
// should prefer one of the typed constructors below.
func New(kind Kind, children ...*Node) *Node {
	return &Node{Kind: kind, Children: children}
}

func NewScan(table string) *Node {
	return &Node{Kind: KindScan, Table: table}
}

func NewFilter(cond, child *Node) *Node {
	return &Node{Kind: KindFilter, Children: []*Node{child, cond}}
}

// Child returns the relational input of a Filter node (children are stored
// as [child, cond] so that pattern matching can treat position 0 uniformly
// as "the relational input" across unary operators).
func (n *Node) Child() *Node {
	return n.Children[0]
}

func (n *Node) FilterCond() *Node {
	return n.Children[1]
}

func NewProjection(child *Node, exprs ...*Node) *Node {
	children := append([]*Node{child}, exprs...)
	return &Node{Kind: KindProjection, Children: children}
}

func (n *Node) ProjectionExprs() []*Node {
	return n.Children[1:]
}

func NewJoin(jt JoinType, left, right, cond *Node) *Node {
	children := []*Node{left, right}
	if cond != nil {
		children = append(children, cond)
	}
	return &Node{Kind: KindJoin, JType: jt, Children: children}
}

func (n *Node) JoinLeft() *Node  { return n.Children[0] }
func (n *Node) JoinRight() *Node { return n.Children[1] }

// JoinCond returns the join predicate, or nil for a cross join with no
// condition attached.
func (n *Node) JoinCond() *Node {
	if len(n.Children) < 3 {
		return nil
	}
	return n.Children[2]
}

func NewAgg(child *Node, groupBy []*Node, aggExprs []*Node) *Node {
	children := []*Node{child}
	children = append(children, New(KindList, groupBy...))
	children = append(children, New(KindList, aggExprs...))
	return &Node{Kind: KindAgg, Children: children}
}

func (n *Node) AggGroupBy() []*Node  { return n.Children[1].Children }
func (n *Node) AggExprs() []*Node    { return n.Children[2].Children }

func NewSort(child *Node, keys ...*Node) *Node {
	children := append([]*Node{child}, keys...)
	return &Node{Kind: KindSort, Children: children}
}

func (n *Node) SortKeys() []*Node { return n.Children[1:] }

func NewLimit(child *Node, limit int64) *Node {
	return &Node{Kind: KindLimit, Value: IntValue(limit), Children: []*Node{child}}
}

func (n *Node) LimitCount() int64 { return n.Value.Int }

func NewEmptyRelation() *Node {
	return &Node{Kind: KindEmptyRelation}
}

func NewApply(jt JoinType, left, right *Node) *Node {
	return &Node{Kind: KindApply, JType: jt, Children: []*Node{left, right}}
}

func NewColumnRef(table, column string) *Node {
	return &Node{Kind: KindColumnRef, Table: table, Name: column}
}

func NewConstant(v Value) *Node {
	return &Node{Kind: KindConstant, Value: v}
}

func NewBinOp(op BinOp, left, right *Node) *Node {
	return &Node{Kind: KindBinOp, Op: op, Children: []*Node{left, right}}
}

func NewLogOp(op LogOp, operands ...*Node) *Node {
	return &Node{Kind: KindLogOp, LOp: op, Children: operands}
}

func NewFunc(name string, args ...*Node) *Node {
	return &Node{Kind: KindFunc, Name: name, Children: args}
}

func NewList(items ...*Node) *Node {
	return &Node{Kind: KindList, Children: items}
}

// Physical constructors. These mirror their logical counterparts positionally
// so implementation rules can reuse the same child layout.

func NewPhysicalScan(table, index string) *Node {
	return &Node{Kind: KindPhysicalScan, Table: table, IndexName: index}
}

func NewPhysicalFilter(cond, child *Node) *Node {
	return &Node{Kind: KindPhysicalFilter, Children: []*Node{child, cond}}
}

func NewPhysicalProjection(child *Node, exprs ...*Node) *Node {
	children := append([]*Node{child}, exprs...)
	return &Node{Kind: KindPhysicalProjection, Children: children}
}

// NewPhysicalHashJoin builds a hash join physical node. leftKeys/rightKeys
// are parallel equi-join key lists extracted from the logical condition.
func NewPhysicalHashJoin(jt JoinType, left, right *Node, leftKeys, rightKeys []*Node) *Node {
	children := []*Node{left, right, New(KindList, leftKeys...), New(KindList, rightKeys...)}
	return &Node{Kind: KindPhysicalHashJoin, JType: jt, Children: children}
}

func (n *Node) HashJoinLeftKeys() []*Node  { return n.Children[2].Children }
func (n *Node) HashJoinRightKeys() []*Node { return n.Children[3].Children }

func NewPhysicalNestedLoopJoin(jt JoinType, left, right, cond *Node) *Node {
	children := []*Node{left, right}
	if cond != nil {
		children = append(children, cond)
	}
	return &Node{Kind: KindPhysicalNestedLoopJoin, JType: jt, Children: children}
}

func NewPhysicalSort(child *Node, keys ...*Node) *Node {
	children := append([]*Node{child}, keys...)
	return &Node{Kind: KindPhysicalSort, Children: children}
}

func NewPhysicalAgg(child *Node, groupBy, aggExprs []*Node) *Node {
	children := []*Node{child, New(KindList, groupBy...), New(KindList, aggExprs...)}
	return &Node{Kind: KindPhysicalAgg, Children: children}
}

func NewPhysicalLimit(child *Node, limit int64) *Node {
	return &Node{Kind: KindPhysicalLimit, Value: IntValue(limit), Children: []*Node{child}}
}

func NewPhysicalEmptyRelation() *Node {
	return &Node{Kind: KindPhysicalEmptyRelation}
}

// NewGroupRef builds a KindGroup leaf carrying a group id. The memo package
// uses this to represent a memo "expression": a Node whose relational
// children are group references rather than materialized subtrees.
func NewGroupRef(id uint32) *Node {
	return &Node{Kind: KindGroup, Value: IntValue(int64(id))}
}

// GroupID reads back the group id stored by NewGroupRef. Panics if n is not
// a KindGroup node; callers are expected to check Kind first.
func (n *Node) GroupID() uint32 {
	if n.Kind != KindGroup {
		panic("plan: GroupID called on non-group node")
	}
	return uint32(n.Value.Int)
}

// RelationalChildPositions reports which child indices of a node of kind k
// are relational inputs — as opposed to embedded scalar subtrees like a
// Filter's predicate or a Projection's expression list — and therefore the
// positions the memo replaces with group references and the property
// framework recurses through. Shared by package memo (canonicalization) and
// package props (bottom-up property derivation) so the two never disagree
// about which children are "structural" versus "scalar".
func RelationalChildPositions(k Kind) []int {
	switch k {
	case KindScan, KindPhysicalScan, KindEmptyRelation, KindPhysicalEmptyRelation:
		return nil
	case KindFilter, KindPhysicalFilter,
		KindProjection, KindPhysicalProjection,
		KindAgg, KindPhysicalAgg,
		KindSort, KindPhysicalSort,
		KindLimit, KindPhysicalLimit:
		return []int{0}
	case KindJoin, KindApply, KindPhysicalHashJoin, KindPhysicalNestedLoopJoin:
		return []int{0, 1}
	default:
		return nil
	}
}

// Equal reports structural equality: same kind, same sub-tag fields, same
// inline value, and recursively equal children in order. This is the
// building block for the memo's canonical-key comparisons and is also used
// directly by tests asserting round-trip laws.
func (n *Node) Equal(o *Node) bool {
	if n == o {
		return true
	}
	if n == nil || o == nil {
		return false
	}
	if n.Kind != o.Kind || n.Table != o.Table || n.Name != o.Name ||
		n.JType != o.JType || n.Op != o.Op || n.LOp != o.LOp ||
		n.IndexName != o.IndexName || !n.Value.Equal(o.Value) {
		return false
	}
	if len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// String returns a multi-line, indented pretty-print of the subtree rooted
// at n, in the style of the teacher's LogicalPlan/PhysicalPlan.String().
func (n *Node) String() string {
	var b strings.Builder
	n.writeTo(&b, 0)
	return b.String()
}

func (n *Node) writeTo(b *strings.Builder, indent int) {
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString(n.Kind.String())
	switch n.Kind {
	case KindScan, KindPhysicalScan:
		fmt.Fprintf(b, "(%s)", n.Table)
		if n.IndexName != "" {
			fmt.Fprintf(b, " using %s", n.IndexName)
		}
	case KindJoin, KindApply, KindPhysicalHashJoin, KindPhysicalNestedLoopJoin:
		fmt.Fprintf(b, "(%s)", n.JType)
	case KindColumnRef:
		fmt.Fprintf(b, "(%s.%s)", n.Table, n.Name)
	case KindConstant, KindGroup:
		fmt.Fprintf(b, "(%s)", n.Value)
	case KindBinOp:
		fmt.Fprintf(b, "(%s)", n.Op)
	case KindLogOp:
		fmt.Fprintf(b, "(%s)", n.LOp)
	case KindFunc:
		fmt.Fprintf(b, "(%s)", n.Name)
	case KindLimit, KindPhysicalLimit:
		fmt.Fprintf(b, "(%d)", n.Value.Int)
	}
	for _, c := range n.Children {
		b.WriteString("\n")
		c.writeTo(b, indent+1)
	}
}
