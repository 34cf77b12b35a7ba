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

// Package props implements the synthesized-property framework: given a
// memo group, derive facts (output schema, column provenance) about it
// bottom-up from its member expressions' relational children, caching the
// result per group. Properties never participate in group equality; they
// are a read-only view computed on demand.
package props

import (
	"sync"

	"github.com/optd-go/optd/catalog"
	"github.com/optd-go/optd/plan"
)

// ColumnProvenance identifies the table and ordinal a synthesized output
// column traces back to. A synthesized expression with no single-table
// origin (e.g. a computed scalar function) carries Table == "" and
// Ordinal == -1.
type ColumnProvenance struct {
	Table   string
	Ordinal int
}

// Bag is the set of synthesized properties computed for one group, one
// field per built-in builder.
type Bag struct {
	Schema     catalog.Schema
	ColumnRefs []ColumnProvenance
}

// GroupResolver is the capability the framework needs from the memo: a
// representative member expression for a group (any one logical member
// suffices, since synthesized properties must agree across equivalent
// expressions).
type GroupResolver interface {
	Representative(groupID uint32) *plan.Node
}

// Builder derives one group's Bag contribution from its representative
// expression and its already-derived relational children bags, in
// left-to-right child order. A builder only needs to fill in the field(s)
// of Bag it owns; Framework merges contributions from every registered
// builder into one Bag per group.
type Builder interface {
	Name() string
	Derive(node *plan.Node, children []Bag, cat catalog.Catalog) Bag
}

// Framework computes and caches Bags per group id.
type Framework struct {
	builders []Builder
	catalog  catalog.Catalog

	mu    sync.Mutex
	cache map[uint32]Bag
}

// New builds a property framework backed by cat, running every builder
// (in registration order) over each group the first time it is asked for.
func New(cat catalog.Catalog, builders ...Builder) *Framework {
	return &Framework{
		builders: builders,
		catalog:  cat,
		cache:    make(map[uint32]Bag),
	}
}

// Properties returns the cached Bag for groupID, computing it (and any
// relational child group it depends on) on first access.
func (f *Framework) Properties(groupID uint32, res GroupResolver) Bag {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.propertiesLocked(groupID, res)
}

func (f *Framework) propertiesLocked(groupID uint32, res GroupResolver) Bag {
	if b, ok := f.cache[groupID]; ok {
		return b
	}
	node := res.Representative(groupID)
	children := relationalChildBags(f, node, res)

	var bag Bag
	for _, b := range f.builders {
		contribution := b.Derive(node, children, f.catalog)
		if contribution.Schema.Fields != nil {
			bag.Schema = contribution.Schema
		}
		if contribution.ColumnRefs != nil {
			bag.ColumnRefs = contribution.ColumnRefs
		}
	}
	f.cache[groupID] = bag
	return bag
}

// relationalChildBags resolves the Bag of every relational-input child of
// node (Scan has none; unary operators have one; binary joins/applies have
// two), recursing through the memo via res. Scalar children (predicates,
// projection lists, sort keys) are not groups and are not represented here.
func relationalChildBags(f *Framework, node *plan.Node, res GroupResolver) []Bag {
	positions := plan.RelationalChildPositions(node.Kind)
	if len(positions) == 0 {
		return nil
	}
	out := make([]Bag, 0, len(positions))
	for _, i := range positions {
		if i >= len(node.Children) {
			continue
		}
		child := node.Children[i]
		if child.Kind != plan.KindGroup {
			continue
		}
		out = append(out, f.propertiesLocked(child.GroupID(), res))
	}
	return out
}
