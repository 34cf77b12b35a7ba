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

// Package rules is the concrete rule catalog: declarative patterns paired
// with apply functions, covering logical transformations, always-apply
// normalizations, and logical-to-physical implementations.
package rules

import (
	"github.com/optd-go/optd/catalog"
	"github.com/optd-go/optd/pattern"
	"github.com/optd-go/optd/plan"
)

// Type classifies when and how a rule's rewrite is used.
type Type int

const (
	Transformation Type = iota
	Implementation
	Normalization
)

func (t Type) String() string {
	switch t {
	case Transformation:
		return "Transformation"
	case Implementation:
		return "Implementation"
	case Normalization:
		return "Normalization"
	default:
		return "Unknown"
	}
}

// OptimizeType tags whether a rule participates in Cascades search or is
// applied once, eagerly, by the heuristic driver before search starts.
type OptimizeType int

const (
	Cascades OptimizeType = iota
	Heuristics
)

// Rule is the contract every catalog entry satisfies. Apply operates purely
// on the matched node and its bound captures, returning zero or more
// replacement candidates (an empty slice, not an error or panic, is the
// normal "does not apply" outcome). Passing the matched node alongside the
// bindings lets Apply read root-level tags (join type, operator, sort keys)
// that PickOne/PickMany alone cannot capture.
type Rule interface {
	Name() string
	Type() Type
	OptimizeType() OptimizeType
	Pattern() pattern.Pattern
	Apply(node *plan.Node, bindings pattern.Bindings) []*plan.Node
}

// DefaultCascadesRules returns the rule set the Cascades driver searches
// with: every Transformation and Implementation rule in the catalog. It
// takes a catalog because ProjectionPullUpJoinRule needs schema lookups to
// reconstruct a join's right-side passthrough columns.
func DefaultCascadesRules(cat catalog.Catalog) []Rule {
	rules := []Rule{
		NewJoinCommuteRule(cat),
		JoinAssocRule{},
		NewProjectionPullUpJoinRule(cat),
		EliminateDuplicatedSortExprRule{},
		EliminateDuplicatedAggExprRule{},
		JoinToPhysicalNestedLoopJoinRule{},
		HashJoinRule{},
	}
	rules = append(rules, PhysicalConversionRules()...)
	return rules
}

// DefaultHeuristicRules returns the rule set the heuristic driver applies
// eagerly, bottom-up, before Cascades search begins.
func DefaultHeuristicRules() []Rule {
	return []Rule{
		EliminateFilterRule{},
		EliminateLimitRule{},
		EliminateJoinRule{},
		SimplifyFilterRule{},
		ConvertFilterCrossJoinToInnerJoinRule{},
		FilterPushdownRule{},
	}
}
