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

// Package memo implements the content-addressed, group-structured store of
// relational expressions at the heart of the search engine: groups are
// equivalence classes of expressions, expressions are plan.Node shapes
// whose relational children are group references, and a canonical hash
// index de-duplicates structurally identical expressions.
package memo

import (
	"github.com/mitchellh/hashstructure"

	"github.com/optd-go/optd/plan"
)

// GroupID identifies a memo group. The zero value is never assigned to a
// real group; New starts numbering at 1 so a zero GroupID reliably
// means "absent" in callers that use it as a map key default.
type GroupID uint32

// Group is an equivalence class of expressions believed to produce the
// same relation.
type Group struct {
	ID       GroupID
	Exprs    []*plan.Node
	Explored bool
	Winners  map[string]*Winner
}

// HasPhysical reports whether the group already contains at least one
// physical expression.
func (g *Group) HasPhysical() bool {
	for _, e := range g.Exprs {
		if e.Kind.IsPhysical() {
			return true
		}
	}
	return false
}

type exprLocation struct {
	group GroupID
	index int
}

// Memo is the canonical expression store. It is not safe for concurrent
// use: per the single-threaded cooperative driver model, all mutation
// happens from one Cascades/heuristic driver goroutine.
type Memo struct {
	groups      map[GroupID]*Group
	groupOrder  []GroupID
	nextGroupID GroupID

	// index buckets candidate locations by structural hash; each bucket is
	// linearly scanned with plan.Node.Equal to resolve hash collisions.
	index map[uint64][]exprLocation
}

// New builds an empty memo.
func New() *Memo {
	return &Memo{
		groups:      make(map[GroupID]*Group),
		nextGroupID: 1,
		index:       make(map[uint64][]exprLocation),
	}
}

// AddExpression canonicalizes node (recursively memoizing any relational
// child that is not already a group reference) and inserts it, returning
// the owning group id and the canonical stored node — on first insertion
// that is node itself if no child needed memoizing, otherwise a copy of node
// with group references in those positions; on a duplicate it is the
// pre-existing canonical expression.
func (m *Memo) AddExpression(node *plan.Node) (GroupID, *plan.Node) {
	canon := m.canonicalizeChildren(node)
	if gid, existing, ok := m.lookup(canon); ok {
		return gid, existing
	}
	gid := m.newGroup()
	m.appendToGroup(gid, canon)
	return gid, canon
}

// AddExpressionToGroup inserts node as an additional member of group owner
// (used by transformation/implementation rules, whose output must stay in
// the originating equivalence class). If an identical expression already
// exists in a *different* group, the two groups are merged and the merged
// id is returned. If node is already present in owner, it is a no-op.
func (m *Memo) AddExpressionToGroup(owner GroupID, node *plan.Node) (*plan.Node, GroupID) {
	canon := m.canonicalizeChildren(node)
	if gid, existing, ok := m.lookup(canon); ok {
		if gid == owner {
			return existing, owner
		}
		merged := m.MergeGroups(owner, gid)
		return existing, merged
	}
	m.appendToGroup(owner, canon)
	return canon, owner
}

func (m *Memo) newGroup() GroupID {
	gid := m.nextGroupID
	m.nextGroupID++
	m.groups[gid] = &Group{ID: gid, Winners: make(map[string]*Winner)}
	m.groupOrder = append(m.groupOrder, gid)
	return gid
}

func (m *Memo) appendToGroup(gid GroupID, node *plan.Node) {
	g := m.groups[gid]
	idx := len(g.Exprs)
	g.Exprs = append(g.Exprs, node)
	h := structuralHash(node)
	m.index[h] = append(m.index[h], exprLocation{group: gid, index: idx})
}

func (m *Memo) lookup(node *plan.Node) (GroupID, *plan.Node, bool) {
	h := structuralHash(node)
	for _, loc := range m.index[h] {
		g, ok := m.groups[loc.group]
		if !ok {
			continue
		}
		if loc.index >= len(g.Exprs) {
			continue
		}
		candidate := g.Exprs[loc.index]
		if candidate.Equal(node) {
			return loc.group, candidate, true
		}
	}
	return 0, nil, false
}

// canonicalizeChildren recursively memoizes any relational child of node
// that is not already a group reference, replacing it with one, and
// returns the resulting canonical-shaped node (a new Node if any child
// changed, else node itself).
func (m *Memo) canonicalizeChildren(node *plan.Node) *plan.Node {
	positions := plan.RelationalChildPositions(node.Kind)
	if len(positions) == 0 {
		return node
	}
	changed := false
	children := append([]*plan.Node{}, node.Children...)
	for _, i := range positions {
		if i >= len(children) {
			continue
		}
		child := children[i]
		if child.Kind == plan.KindGroup {
			continue
		}
		gid, _ := m.AddExpression(child)
		children[i] = plan.NewGroupRef(uint32(gid))
		changed = true
	}
	if !changed {
		return node
	}
	clone := *node
	clone.Children = children
	return &clone
}

// structuralHash buckets node by a structural hash of its full shape,
// including child group ids (for relational children) and embedded scalar
// subtrees. Collisions are resolved by exact plan.Node.Equal comparison in
// lookup, so a degraded/zero hash on error still behaves correctly, just
// slower.
func structuralHash(node *plan.Node) uint64 {
	h, err := hashstructure.Hash(node, nil)
	if err != nil {
		return 0
	}
	return h
}

// Expressions returns group groupID's member expressions in insertion
// order. Implements pattern.GroupResolver.
func (m *Memo) Expressions(groupID uint32) []*plan.Node {
	g, ok := m.groups[GroupID(groupID)]
	if !ok {
		return nil
	}
	return g.Exprs
}

// Best returns the group's current best logical representation: its first
// logical member expression (Representative). Recorded winners are physical
// expressions and are never returned here. Implements pattern.GroupResolver.
func (m *Memo) Best(groupID uint32) *plan.Node {
	return m.Representative(groupID)
}

// Representative returns any one member expression of the group, preferring
// a logical one, since synthesized properties must agree across every
// equivalent expression. Implements props.GroupResolver.
func (m *Memo) Representative(groupID uint32) *plan.Node {
	g, ok := m.groups[GroupID(groupID)]
	if !ok || len(g.Exprs) == 0 {
		return nil
	}
	for _, e := range g.Exprs {
		if e.Kind.IsLogical() {
			return e
		}
	}
	return g.Exprs[0]
}

// Group returns the group record for gid, or nil if absent.
func (m *Memo) Group(gid GroupID) *Group {
	return m.groups[gid]
}

// Groups returns every group id in creation order.
func (m *Memo) Groups() []GroupID {
	return m.groupOrder
}

// MergeGroups unions b into a (the smaller into the larger by member
// count), rewriting every expression's child references from the absorbed
// id to the surviving one, and unioning exploration/winner state. Where both
// groups hold a winner for the same requirement, the survivor's winner is
// kept and the absorbed group's is dropped, whichever is cheaper; costs are
// not compared. It returns the surviving group id.
func (m *Memo) MergeGroups(a, b GroupID) GroupID {
	if a == b {
		return a
	}
	survivor, absorbed := a, b
	if len(m.groups[b].Exprs) > len(m.groups[a].Exprs) {
		survivor, absorbed = b, a
	}

	sg, ag := m.groups[survivor], m.groups[absorbed]

	for _, e := range ag.Exprs {
		rewritten := rewriteGroupRef(e, absorbed, survivor)
		if gid, _, ok := m.lookup(rewritten); ok && gid == survivor {
			continue
		}
		m.appendToGroup(survivor, rewritten)
	}

	// Comparing costs here would need bound weights, which the memo does
	// not carry; the driver re-derives the cheaper winner on the next
	// OptimizeGroup pass over the survivor. Filling gaps now just avoids
	// losing a winner the survivor never had.
	for key, w := range ag.Winners {
		if _, ok := sg.Winners[key]; !ok {
			sg.Winners[key] = w
		}
	}
	sg.Explored = sg.Explored || ag.Explored

	delete(m.groups, absorbed)
	m.removeFromOrder(absorbed)
	m.rewriteAllReferences(absorbed, survivor)

	return survivor
}

func (m *Memo) removeFromOrder(gid GroupID) {
	for i, id := range m.groupOrder {
		if id == gid {
			m.groupOrder = append(m.groupOrder[:i], m.groupOrder[i+1:]...)
			return
		}
	}
}

// rewriteAllReferences walks every remaining expression memo-wide and
// rewrites any reference to `from` into a reference to `to`, rebuilding the
// hash index since structural hashes change.
func (m *Memo) rewriteAllReferences(from, to GroupID) {
	m.index = make(map[uint64][]exprLocation)
	for _, gid := range m.groupOrder {
		g := m.groups[gid]
		for i, e := range g.Exprs {
			g.Exprs[i] = rewriteGroupRef(e, from, to)
			h := structuralHash(g.Exprs[i])
			m.index[h] = append(m.index[h], exprLocation{group: gid, index: i})
		}
	}
}

func rewriteGroupRef(node *plan.Node, from, to GroupID) *plan.Node {
	positions := plan.RelationalChildPositions(node.Kind)
	if len(positions) == 0 {
		return node
	}
	changed := false
	children := append([]*plan.Node{}, node.Children...)
	for _, i := range positions {
		if i >= len(children) {
			continue
		}
		c := children[i]
		if c.Kind == plan.KindGroup && GroupID(c.GroupID()) == from {
			children[i] = plan.NewGroupRef(uint32(to))
			changed = true
		}
	}
	if !changed {
		return node
	}
	clone := *node
	clone.Children = children
	return &clone
}

// Clear resets the memo to empty, discarding every group, expression, and
// winner.
func (m *Memo) Clear() {
	m.groups = make(map[GroupID]*Group)
	m.groupOrder = nil
	m.nextGroupID = 1
	m.index = make(map[uint64][]exprLocation)
}

// ClearWinners resets winner state for every group while preserving
// expressions and exploration flags, used between adaptive-cost-model
// iterations so costs are recomputed against fresh runtime feedback without
// re-discovering the same logical alternatives the driver already explored.
func (m *Memo) ClearWinners() {
	for _, g := range m.groups {
		g.Winners = make(map[string]*Winner)
	}
}
