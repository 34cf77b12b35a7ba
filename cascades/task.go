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

package cascades

import (
	"github.com/optd-go/optd/cost"
	"github.com/optd-go/optd/memo"
	"github.com/optd-go/optd/plan"
	"github.com/optd-go/optd/rules"
)

// task is one unit of driver work. Each task either runs to completion,
// mutating the memo, or enqueues successor tasks and returns — no task
// suspends mid-execution.
type task interface {
	run(d *Driver)
}

// optimizeGroupTask ensures group has a recorded winner for req, bounded by
// upperBound (the best cost a caller is still willing to accept).
type optimizeGroupTask struct {
	group      memo.GroupID
	req        memo.RequiredProps
	upperBound cost.Cost
}

// exploreGroupTask fires ExploreExpr over every logical member of group, once.
type exploreGroupTask struct {
	group memo.GroupID
}

// exploreExprTask fires every registered transformation rule against expr,
// inserting any new logical alternatives back into the owning group.
type exploreExprTask struct {
	group memo.GroupID
	expr  *plan.Node
}

// applyRuleTask tries a single implementation rule against expr, inserting
// any physical alternatives and scheduling them for input optimization.
type applyRuleTask struct {
	group memo.GroupID
	expr  *plan.Node
	rule  rules.Rule
}

// optimizeInputsTask computes expr's total cost once every relational
// child's group has a winner under its required properties, and attempts to
// install expr as the new group winner. retries bounds how many times this
// task re-enqueues itself waiting on a child — a practical safety valve on
// top of the session-wide iteration cap, since a child group that can never
// acquire a winner (no implementable physical expression reachable) would
// otherwise requeue indefinitely.
type optimizeInputsTask struct {
	group      memo.GroupID
	expr       *plan.Node
	req        memo.RequiredProps
	upperBound cost.Cost
	retries    int
}

const maxOptimizeInputsRetries = 8

func (t optimizeGroupTask) run(d *Driver)    { d.runOptimizeGroup(t) }
func (t exploreGroupTask) run(d *Driver)     { d.runExploreGroup(t) }
func (t exploreExprTask) run(d *Driver)      { d.runExploreExpr(t) }
func (t applyRuleTask) run(d *Driver)        { d.runApplyRule(t) }
func (t optimizeInputsTask) run(d *Driver)   { d.runOptimizeInputs(t) }
