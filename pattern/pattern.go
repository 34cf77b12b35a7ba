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

// Package pattern implements the declarative tree-pattern matcher used by
// the rule catalog (package rules) to recognize the plan shapes a rule
// applies to, and to capture the pieces it needs under named slots.
package pattern

import (
	"fmt"
	"sort"
	"strings"

	"github.com/optd-go/optd/plan"
)

// Pattern is a tree of match instructions. The three concrete shapes are
// MatchKind, PickOne, and PickMany; there are no others, so a type switch
// over Pattern is exhaustive by construction.
type Pattern interface {
	isPattern()
}

// MatchKind requires the root to have one of Kinds (or, if Kinds is empty,
// any kind at all) and recursively matches Children against the node's
// children. A nil Children slice means "do not constrain or bind the
// children" — useful for leaf checks like Scan or Constant.
type MatchKind struct {
	Kinds    []plan.Kind
	Children []Pattern
}

func (MatchKind) isPattern() {}

// Kind is a convenience constructor for a single-kind MatchKind with no
// child constraint.
func Kind(k plan.Kind) MatchKind {
	return MatchKind{Kinds: []plan.Kind{k}}
}

// PickOne captures the subtree (or opaque group reference) at this position
// under Name. If Expand is true and the position currently holds a group
// reference, the binding is materialized to the group's best known logical
// representation via GroupResolver.Best; otherwise the raw node (which may
// itself be a group reference) is bound unchanged.
type PickOne struct {
	Name   string
	Expand bool
}

func (PickOne) isPattern() {}

// PickMany captures a variadic tail of children under Name as a synthetic
// plan.KindList node. It is only meaningful as the last element of a
// MatchKind.Children list.
type PickMany struct {
	Name   string
	Expand bool
}

func (PickMany) isPattern() {}

// GroupResolver is the capability the matcher needs from the memo: the
// ability to enumerate a group's current member expressions (to try each as
// a candidate when a pattern needs to look inside a group reference) and to
// fetch a group's current best logical representation (for Expand bindings).
type GroupResolver interface {
	// Expressions returns every expression currently stored in the group.
	Expressions(groupID uint32) []*plan.Node
	// Best returns the group's best known logical representation, or nil if
	// none is known yet. Only that one node is materialized: with the memo
	// as resolver, its own relational children are still group references.
	Best(groupID uint32) *plan.Node
}

// Bindings maps capture names to the node each PickOne/PickMany slot bound.
type Bindings map[string]*plan.Node

// Match attempts pat against root. root is typically a memo expression
// (its immediate children are plan.KindGroup references) but may also be a
// plain plan.Node tree, in which case matching proceeds directly with no
// group resolution required — res may be nil in that case as long as no
// pattern in the tree needs to dereference a group.
//
// Match returns zero bindings on failure, or one binding per distinct way
// the pattern can be satisfied — more than one only when a MatchKind
// pattern sits over a group reference and several of the group's member
// expressions satisfy it. Bindings that capture identical nodes are
// deduplicated.
func Match(pat Pattern, root *plan.Node, res GroupResolver) []Bindings {
	return matchNode(pat, root, res)
}

func matchNode(pat Pattern, node *plan.Node, res GroupResolver) []Bindings {
	switch p := pat.(type) {
	case MatchKind:
		return matchMatchKind(p, node, res)
	case PickOne:
		bound := node
		if p.Expand && node.Kind == plan.KindGroup && res != nil {
			if best := res.Best(node.GroupID()); best != nil {
				bound = best
			}
		}
		if p.Name == "" {
			return []Bindings{{}}
		}
		return []Bindings{{p.Name: bound}}
	case PickMany:
		// A bare PickMany outside of matchChildren's tail handling binds the
		// single node as a one-element list, which keeps the function total.
		item := node
		if p.Expand && node.Kind == plan.KindGroup && res != nil {
			if best := res.Best(node.GroupID()); best != nil {
				item = best
			}
		}
		list := plan.NewList(item)
		if p.Name == "" {
			return []Bindings{{}}
		}
		return []Bindings{{p.Name: list}}
	default:
		panic(fmt.Sprintf("pattern: unknown pattern type %T", pat))
	}
}

func matchMatchKind(p MatchKind, node *plan.Node, res GroupResolver) []Bindings {
	if node.Kind == plan.KindGroup {
		if res == nil {
			return nil
		}
		var out []Bindings
		for _, cand := range res.Expressions(node.GroupID()) {
			if !kindAllowed(p.Kinds, cand.Kind) {
				continue
			}
			out = append(out, matchMatchKindDirect(p, cand, res)...)
		}
		return dedupBindings(out)
	}
	if !kindAllowed(p.Kinds, node.Kind) {
		return nil
	}
	return matchMatchKindDirect(p, node, res)
}

func matchMatchKindDirect(p MatchKind, node *plan.Node, res GroupResolver) []Bindings {
	if p.Children == nil {
		return []Bindings{{}}
	}
	return matchChildren(p.Children, node.Children, res)
}

// matchChildren matches an ordered list of child patterns against an ordered
// list of actual children, left to right, failing the whole pattern on any
// mismatch. A trailing PickMany absorbs every child from its position to the
// end instead of requiring a 1:1 count.
func matchChildren(pats []Pattern, nodes []*plan.Node, res GroupResolver) []Bindings {
	if len(pats) == 0 {
		if len(nodes) == 0 {
			return []Bindings{{}}
		}
		return nil
	}

	if pm, ok := pats[len(pats)-1].(PickMany); ok {
		fixedPats := pats[:len(pats)-1]
		if len(nodes) < len(fixedPats) {
			return nil
		}
		fixedNodes := nodes[:len(fixedPats)]
		tail := nodes[len(fixedPats):]

		headBindings := matchChildren(fixedPats, fixedNodes, res)
		if len(headBindings) == 0 {
			return nil
		}

		items := make([]*plan.Node, len(tail))
		for i, t := range tail {
			item := t
			if pm.Expand && t.Kind == plan.KindGroup && res != nil {
				if best := res.Best(t.GroupID()); best != nil {
					item = best
				}
			}
			items[i] = item
		}
		list := plan.NewList(items...)

		out := make([]Bindings, 0, len(headBindings))
		for _, hb := range headBindings {
			merged := cloneBindings(hb)
			if pm.Name != "" {
				merged[pm.Name] = list
			}
			out = append(out, merged)
		}
		return out
	}

	if len(nodes) != len(pats) {
		return nil
	}

	results := []Bindings{{}}
	for i, p := range pats {
		positional := matchNode(p, nodes[i], res)
		if len(positional) == 0 {
			return nil
		}
		next := make([]Bindings, 0, len(results)*len(positional))
		for _, base := range results {
			for _, add := range positional {
				merged := cloneBindings(base)
				for k, v := range add {
					merged[k] = v
				}
				next = append(next, merged)
			}
		}
		results = next
		if len(results) == 0 {
			return nil
		}
	}
	return dedupBindings(results)
}

func kindAllowed(kinds []plan.Kind, k plan.Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, allowed := range kinds {
		if allowed == k {
			return true
		}
	}
	return false
}

func cloneBindings(b Bindings) Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// dedupBindings suppresses duplicate binding maps. Two maps are duplicates
// if they capture the same names bound to pointer-identical nodes — since
// the memo never stores two distinct-but-structurally-equal expressions in
// the same group (canonical dedup happens at insertion time), pointer
// identity is a safe and cheap proxy for "the same binding".
func dedupBindings(in []Bindings) []Bindings {
	if len(in) <= 1 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]Bindings, 0, len(in))
	for _, b := range in {
		names := make([]string, 0, len(b))
		for name := range b {
			names = append(names, name)
		}
		sort.Strings(names)
		var key strings.Builder
		for _, name := range names {
			key.WriteString(name)
			key.WriteByte('=')
			fmt.Fprintf(&key, "%p", b[name])
			key.WriteByte(';')
		}
		k := key.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, b)
	}
	return out
}
