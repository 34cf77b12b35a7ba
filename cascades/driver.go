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

// Package cascades implements the task-based, cost-based search driver: a
// single-threaded, cooperative state machine of OptimizeGroup / ExploreGroup
// / ExploreExpr / ApplyRule / OptimizeInputs tasks that mutates a memo.Memo
// until a winning physical expression is recorded for the requested group,
// or a configured exploration budget is exhausted.
package cascades

import (
	"context"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/optd-go/optd/cost"
	"github.com/optd-go/optd/memo"
	"github.com/optd-go/optd/pattern"
	"github.com/optd-go/optd/plan"
	"github.com/optd-go/optd/rules"
	"github.com/optd-go/optd/stats"
)

// DefaultMaxIterations is the default partial_explore_iter bound: the
// absolute cap on total tasks executed in one session.
const DefaultMaxIterations = 1 << 20

// DefaultMaxExpressions is the default partial_explore_space bound: the cap
// on total expressions inserted into the memo in one session.
const DefaultMaxExpressions = 1 << 10

var infiniteCost = cost.Cost{RowCount: math.MaxFloat64, Compute: math.MaxFloat64, IO: math.MaxFloat64}

// Option configures a Driver at construction time.
type Option func(*Driver)

func WithWeights(w cost.Weights) Option        { return func(d *Driver) { d.weights = w } }
func WithMaxIterations(n int) Option           { return func(d *Driver) { d.maxIterations = n } }
func WithMaxExpressions(n int) Option          { return func(d *Driver) { d.maxExpressions = n } }
func WithLogger(l logrus.FieldLogger) Option   { return func(d *Driver) { d.logger = l } }
func WithTracer(t opentracing.Tracer) Option   { return func(d *Driver) { d.tracer = t } }

// Driver runs Cascades search over a memo using a fixed rule set.
type Driver struct {
	memo *memo.Memo

	transformationRules []rules.Rule
	implementationRules []rules.Rule

	model   cost.Model
	stats   stats.Provider
	weights cost.Weights

	logger logrus.FieldLogger
	tracer opentracing.Tracer

	maxIterations  int
	maxExpressions int

	tasksExecuted int
	exprsInserted int
	exhausted     bool

	stack []task

	ruleErrs *multierror.Error
}

// New builds a Driver over m, searching with the Cascades-tagged rules in
// allRules (Normalization-tagged rules are ignored — those belong to the
// heuristic pre-pass) and scoring candidates with model against provider.
func New(m *memo.Memo, allRules []rules.Rule, model cost.Model, provider stats.Provider, opts ...Option) *Driver {
	d := &Driver{
		memo:           m,
		model:          model,
		stats:          provider,
		weights:        cost.DefaultWeights,
		logger:         logrus.StandardLogger(),
		tracer:         opentracing.NoopTracer{},
		maxIterations:  DefaultMaxIterations,
		maxExpressions: DefaultMaxExpressions,
	}
	for _, r := range allRules {
		switch r.Type() {
		case rules.Transformation:
			d.transformationRules = append(d.transformationRules, r)
		case rules.Implementation:
			d.implementationRules = append(d.implementationRules, r)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run searches for a winning physical expression for (root, req), starting
// a fresh task stack. It returns whether the session stopped early due to
// budget exhaustion or context cancellation, and any isolated rule failures
// aggregated during the run.
func (d *Driver) Run(ctx context.Context, root memo.GroupID, req memo.RequiredProps) (bool, error) {
	d.stack = nil
	d.tasksExecuted = 0
	d.exprsInserted = 0
	d.exhausted = false
	d.ruleErrs = nil

	d.push(optimizeGroupTask{group: root, req: req, upperBound: infiniteCost})
	for len(d.stack) > 0 {
		if ctx.Err() != nil {
			d.exhausted = true
			break
		}
		if d.tasksExecuted >= d.maxIterations {
			d.exhausted = true
			break
		}
		t := d.pop()
		d.tasksExecuted++
		t.run(d)
	}
	d.logger.WithFields(logrus.Fields{
		"tasks_executed":  d.tasksExecuted,
		"exprs_inserted":  d.exprsInserted,
		"exhausted":       d.exhausted,
	}).Debug("cascades session complete")
	return d.exhausted, errorOrNil(d.ruleErrs)
}

func errorOrNil(e *multierror.Error) error {
	if e == nil {
		return nil
	}
	return e.ErrorOrNil()
}

func (d *Driver) push(t task) { d.stack = append(d.stack, t) }

func (d *Driver) pop() task {
	n := len(d.stack) - 1
	t := d.stack[n]
	d.stack = d.stack[:n]
	return t
}

func (d *Driver) spaceExhausted() bool {
	if d.exprsInserted >= d.maxExpressions {
		d.exhausted = true
		return true
	}
	return false
}

func (d *Driver) startSpan(op string, group memo.GroupID, req memo.RequiredProps) opentracing.Span {
	span := d.tracer.StartSpan(op)
	span.SetTag("group", uint32(group))
	span.SetTag("req", req.Key())
	return span
}

// requiredChildProps derives the physical property a parent expression
// demands from one of its relational children. No rule in this catalog
// requires a particular child ordering (both join implementation rules,
// HashJoinRule and JoinToPhysicalNestedLoopJoinRule, accept either input
// order), so every child is
// always optimized under memo.NoRequirements; the parameters exist so a
// future rule (a merge join demanding sorted inputs, say) can be wired in
// without changing OptimizeInputs' call site.
func (d *Driver) requiredChildProps(expr *plan.Node, childPosition int) memo.RequiredProps {
	return memo.NoRequirements
}

func (d *Driver) runOptimizeGroup(t optimizeGroupTask) {
	span := d.startSpan("OptimizeGroup", t.group, t.req)
	defer span.Finish()

	if d.memo.Group(t.group) == nil {
		return
	}

	upperBound := t.upperBound
	if w, ok := d.memo.GetWinner(t.group, t.req); ok && !w.Impossible {
		if w.Cost.Score(d.weights) < upperBound.Score(d.weights) {
			upperBound = w.Cost
		}
	}

	exprs := d.memo.Expressions(uint32(t.group))
	// Push in reverse of desired execution order (LIFO): ExploreGroup should
	// run first, so it is pushed last.
	for i := len(exprs) - 1; i >= 0; i-- {
		e := exprs[i]
		if e.Kind.IsPhysical() {
			d.push(optimizeInputsTask{group: t.group, expr: e, req: t.req, upperBound: upperBound})
		}
	}
	d.push(exploreGroupTask{group: t.group})
}

func (d *Driver) runExploreGroup(t exploreGroupTask) {
	if d.memo.Explored(t.group) {
		return
	}
	d.memo.SetExplored(t.group)

	exprs := d.memo.Expressions(uint32(t.group))
	for i := len(exprs) - 1; i >= 0; i-- {
		e := exprs[i]
		if e.Kind.IsLogical() {
			d.push(exploreExprTask{group: t.group, expr: e})
		}
	}
}

func (d *Driver) runExploreExpr(t exploreExprTask) {
	defer d.recoverRule("ExploreExpr", t.expr)
	if d.spaceExhausted() {
		return
	}

	// Deepen exploration of this expression's relational children first, so
	// later rule matches (including against any new logical alternatives
	// this call discovers) see a fuller set of child-group alternatives.
	// This is a conservative, uniform stand-in for the spec's "expand=true"
	// per-pattern deep-match requirement (see DESIGN.md).
	positions := plan.RelationalChildPositions(t.expr.Kind)
	for i := len(positions) - 1; i >= 0; i-- {
		c := t.expr.Children[positions[i]]
		if c.Kind == plan.KindGroup {
			childGroup := memo.GroupID(c.GroupID())
			if !d.memo.Explored(childGroup) {
				d.push(exploreGroupTask{group: childGroup})
			}
		}
	}

	owner := t.group
	for _, r := range d.transformationRules {
		bindings := pattern.Match(r.Pattern(), t.expr, d.memo)
		for _, b := range bindings {
			outs := d.safeApply(r, t.expr, b)
			for _, out := range outs {
				if out == nil || d.spaceExhausted() {
					continue
				}
				canon, newGroup := d.memo.AddExpressionToGroup(owner, out)
				d.exprsInserted++
				if newGroup != owner {
					owner = newGroup
				}
				if canon == out {
					d.push(exploreExprTask{group: owner, expr: canon})
				}
			}
		}
	}

	for _, r := range d.implementationRules {
		d.push(applyRuleTask{group: owner, expr: t.expr, rule: r})
	}
}

func (d *Driver) runApplyRule(t applyRuleTask) {
	defer d.recoverRule("ApplyRule", t.expr)
	if d.spaceExhausted() {
		return
	}

	bindings := pattern.Match(t.rule.Pattern(), t.expr, d.memo)
	for _, b := range bindings {
		outs := d.safeApply(t.rule, t.expr, b)
		for _, out := range outs {
			if out == nil || d.spaceExhausted() {
				continue
			}
			physExpr, group := d.memo.AddExpressionToGroup(t.group, out)
			d.exprsInserted++
			d.push(optimizeInputsTask{group: group, expr: physExpr, req: memo.NoRequirements, upperBound: infiniteCost})
		}
	}
}

func (d *Driver) runOptimizeInputs(t optimizeInputsTask) {
	span := d.startSpan("OptimizeInputs", t.group, t.req)
	defer span.Finish()

	positions := plan.RelationalChildPositions(t.expr.Kind)
	childCosts := make([]cost.Cost, 0, len(positions))
	childWinners := make([]memo.ChildWinner, 0, len(positions))
	running := cost.Cost{}

	for _, i := range positions {
		if i >= len(t.expr.Children) {
			continue
		}
		c := t.expr.Children[i]
		if c.Kind != plan.KindGroup {
			continue
		}
		childGroup := memo.GroupID(c.GroupID())
		childReq := d.requiredChildProps(t.expr, i)

		w, ok := d.memo.GetWinner(childGroup, childReq)
		if !ok {
			if t.retries >= maxOptimizeInputsRetries {
				d.logger.WithFields(logrus.Fields{"group": t.group, "child": childGroup}).
					Warn("abandoning optimize-inputs after exceeding retry bound")
				return
			}
			retry := t
			retry.retries++
			d.push(retry)
			d.push(optimizeGroupTask{group: childGroup, req: childReq, upperBound: t.upperBound})
			return
		}
		if w.Impossible {
			d.memo.SetImpossible(t.group, t.req)
			return
		}

		childCosts = append(childCosts, w.Cost)
		childWinners = append(childWinners, memo.ChildWinner{Group: childGroup, Req: childReq})

		running = running.Add(w.Cost)
		if running.Score(d.weights) >= t.upperBound.Score(d.weights) {
			// Partial cost already exceeds the inherited bound: no point
			// finishing this candidate, it cannot win.
			return
		}
	}

	costCtx := cost.Context{Stats: d.stats, Weights: d.weights, GroupID: uint32(t.group)}
	total := d.model.Cost(t.expr, childCosts, costCtx)
	d.memo.SetWinner(t.group, t.req, t.expr, total, childWinners, d.weights)
}

func (d *Driver) safeApply(r rules.Rule, expr *plan.Node, b pattern.Bindings) (out []*plan.Node) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.WithField("rule", r.Name()).Errorf("rule application panicked: %v", rec)
			d.ruleErrs = multierror.Append(d.ruleErrs, fmt.Errorf("rule %s panicked: %v", r.Name(), rec))
			out = nil
		}
	}()
	return r.Apply(expr, b)
}

func (d *Driver) recoverRule(task string, expr *plan.Node) {
	if rec := recover(); rec != nil {
		d.logger.WithField("task", task).Errorf("task panicked: %v", rec)
		d.ruleErrs = multierror.Append(d.ruleErrs, fmt.Errorf("%s task panicked: %v", task, rec))
	}
}

// TasksExecuted reports how many tasks the most recent Run executed.
func (d *Driver) TasksExecuted() int { return d.tasksExecuted }

// ExpressionsInserted reports how many expressions the most recent Run
// inserted into the memo.
func (d *Driver) ExpressionsInserted() int { return d.exprsInserted }
