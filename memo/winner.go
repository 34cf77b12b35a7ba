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
	"sort"
	"strings"

	"github.com/optd-go/optd/cost"
	"github.com/optd-go/optd/plan"
)

// RequiredProps is the physical property a parent demands from a group's
// winning plan — currently just a required sort order, since that is the
// only physical property a rule (a hypothetical MergeJoin, say) would need
// to express. No rule in the catalog currently demands one.
type RequiredProps struct {
	SortKeys []string
}

// NoRequirements is the required-properties value used for a plan's overall
// root and for children with no physical demands.
var NoRequirements = RequiredProps{}

// Key returns a canonical string uniquely identifying this requirement, fit
// for use as a map key.
func (r RequiredProps) Key() string {
	if len(r.SortKeys) == 0 {
		return ""
	}
	return strings.Join(r.SortKeys, ",")
}

// ChildWinner names the (group, required properties) pair a winner's child
// was optimized under, so Dump can recursively print the full winning tree.
type ChildWinner struct {
	Group GroupID
	Req   RequiredProps
}

// Winner records the cheapest known physical expression for a (group,
// required-properties) pair, or that the search proved no plan exists
// meeting the requirement.
type Winner struct {
	Expr       *plan.Node
	Cost       cost.Cost
	Children   []ChildWinner
	Impossible bool
}

// GetWinner looks up the recorded winner for (gid, req).
func (m *Memo) GetWinner(gid GroupID, req RequiredProps) (*Winner, bool) {
	g, ok := m.groups[gid]
	if !ok {
		return nil, false
	}
	w, ok := g.Winners[req.Key()]
	return w, ok
}

// SetWinner records expr as the winner for (gid, req) if it strictly
// improves on any existing winner (monotone update). Returns whether the
// new winner was accepted.
func (m *Memo) SetWinner(gid GroupID, req RequiredProps, expr *plan.Node, c cost.Cost, children []ChildWinner, weights cost.Weights) bool {
	g, ok := m.groups[gid]
	if !ok {
		return false
	}
	key := req.Key()
	if existing, ok := g.Winners[key]; ok && !existing.Impossible {
		if !c.Less(existing.Cost, weights) {
			return false
		}
	}
	g.Winners[key] = &Winner{Expr: expr, Cost: c, Children: children}
	return true
}

// SetImpossible records that no plan satisfying req exists in gid. It never
// overwrites an already-recorded winner (a concrete plan is always better
// news than "impossible").
func (m *Memo) SetImpossible(gid GroupID, req RequiredProps) {
	g, ok := m.groups[gid]
	if !ok {
		return
	}
	key := req.Key()
	if _, ok := g.Winners[key]; ok {
		return
	}
	g.Winners[key] = &Winner{Impossible: true}
}

// SetExplored marks gid as explored (ExploreGroup need not revisit it).
func (m *Memo) SetExplored(gid GroupID) {
	if g, ok := m.groups[gid]; ok {
		g.Explored = true
	}
}

// Explored reports whether gid has already been explored.
func (m *Memo) Explored(gid GroupID) bool {
	g, ok := m.groups[gid]
	return ok && g.Explored
}

// sortedRequirementKeys is a small helper used by Dump for deterministic
// output across runs with the same winners.
func sortedRequirementKeys(g *Group) []string {
	keys := make([]string, 0, len(g.Winners))
	for k := range g.Winners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
