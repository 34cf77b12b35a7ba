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

package optd

import "gopkg.in/src-d/go-errors.v1"

// The five error kinds an Optimizer session can surface. RuleApplyFailure
// never escapes Optimize directly — it is isolated at the rule-application
// task boundary and only visible through the optimizer's log — but it is declared
// here alongside the rest since it is still part of the session's error
// vocabulary.
var (
	// ErrCatalogMiss is returned when a Scan references a table the
	// configured catalog.Catalog has no schema for.
	ErrCatalogMiss = errors.NewKind("catalog miss: unknown table %q")

	// ErrInvalidPlan is returned when the incoming plan violates a
	// structural rule, such as a scalar expression appearing where a
	// relational child is required.
	ErrInvalidPlan = errors.NewKind("invalid plan: %s")

	// ErrNoPlan is returned when search exhausted the configured space and
	// still produced no winner meeting the requested properties.
	ErrNoPlan = errors.NewKind("no plan found satisfying required properties %q")

	// ErrBudgetExhausted never escapes as an error return; Optimize instead
	// reports it via LastRunExhaustedBudget and a log line, matching the
	// "non-fatal warning + result" propagation policy. It is declared here
	// so callers have a stable *errors.Kind to match against if they choose
	// to log or re-wrap it themselves.
	ErrBudgetExhausted = errors.NewKind("optimization budget exhausted after %d tasks / %d expressions")

	// ErrRuleApplyFailure names the failure of a rule recovered at the
	// ExploreExpr/ApplyRule task boundary. The driver itself does not build
	// values of this kind: the errors it aggregates into its multierror are
	// plain errors.
	ErrRuleApplyFailure = errors.NewKind("rule %q failed to apply: %s")
)
