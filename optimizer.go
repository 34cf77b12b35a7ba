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

// Package optd wires the memo, Cascades driver, heuristic driver, rule
// catalog, cost model, and property framework into one session-oriented
// facade: construct an Optimizer once per query shape, call Optimize per
// plan, and read back a winning physical plan or a typed failure.
package optd

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	uuid "github.com/satori/go.uuid"

	"github.com/optd-go/optd/cascades"
	"github.com/optd-go/optd/catalog"
	"github.com/optd-go/optd/config"
	"github.com/optd-go/optd/cost"
	"github.com/optd-go/optd/heuristic"
	"github.com/optd-go/optd/memo"
	"github.com/optd-go/optd/plan"
	"github.com/optd-go/optd/props"
	"github.com/optd-go/optd/rules"
	"github.com/optd-go/optd/stats"
)

// GroupID re-exports memo.GroupID so callers of Optimize don't need to
// import package memo themselves for the simple case.
type GroupID = memo.GroupID

// Option configures an Optimizer at construction time.
type Option func(*Optimizer)

// WithConfig overrides the default OptimizerConfig.
func WithConfig(cfg *config.OptimizerConfig) Option {
	return func(o *Optimizer) { o.cfg = cfg }
}

// WithLogger overrides the default logrus logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// WithTracer overrides the default no-op opentracing tracer.
func WithTracer(t opentracing.Tracer) Option {
	return func(o *Optimizer) { o.tracer = t }
}

// WithStats supplies a stats.Provider; callers that never call it get an
// empty stats.Memory (conservative defaults throughout the cost model).
func WithStats(s stats.Provider) Option {
	return func(o *Optimizer) { o.stats = s }
}

// Optimizer is the facade External Interfaces §6 describes: one instance
// per query shape (or long-lived across a family of shapes sharing a rule
// catalog and cost model), each Optimize call running a fresh memo and
// session id.
type Optimizer struct {
	cfg          *config.OptimizerConfig
	catalog      catalog.Catalog
	costModel    cost.Model
	propBuilders []props.Builder
	cascadesRules  []rules.Rule
	heuristicRules []rules.Rule
	logger         logrus.FieldLogger
	tracer         opentracing.Tracer
	stats          stats.Provider

	lastExhausted bool
	lastSessionID uuid.UUID
	lastMemo      *memo.Memo
	lastFramework *props.Framework
}

// statsForDriver returns the configured stats.Provider, defaulting to an
// empty in-memory one so the cost model's conservative-default path is
// always exercised rather than handed a nil interface.
func (o *Optimizer) statsForDriver() stats.Provider {
	if o.stats == nil {
		return stats.NewMemory()
	}
	return o.stats
}

var (
	tasksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "optd_optimizer_last_run_tasks",
		Help: "Tasks executed by the most recent Optimize call.",
	})
	exprsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "optd_optimizer_last_run_expressions",
		Help: "Expressions inserted by the most recent Optimize call.",
	})
)

func init() {
	prometheus.MustRegister(tasksGauge, exprsGauge)
}

// New builds an Optimizer from an explicit rule set, cost model, and
// property builders. allRules is split by rules.OptimizeType(): Cascades
// rules search; Heuristics rules run once, eagerly, via HeuristicOptimize
// and as the first phase of Optimize.
func New(allRules []rules.Rule, costModel cost.Model, cat catalog.Catalog, propBuilders []props.Builder, opts ...Option) *Optimizer {
	o := &Optimizer{
		cfg:          config.Default(),
		catalog:      cat,
		costModel:    costModel,
		propBuilders: propBuilders,
		logger:       logrus.StandardLogger(),
		tracer:       opentracing.NoopTracer{},
	}
	for _, r := range allRules {
		if r.OptimizeType() == rules.Heuristics {
			o.heuristicRules = append(o.heuristicRules, r)
		} else {
			o.cascadesRules = append(o.cascadesRules, r)
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// heuristicDriverRules adapts o.heuristicRules to heuristic.Rule, skipping
// anything the config disables.
func (o *Optimizer) heuristicDriverRules() []heuristic.Rule {
	out := make([]heuristic.Rule, 0, len(o.heuristicRules))
	for _, r := range o.heuristicRules {
		if o.cfg.RuleDisabled(r.Name()) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (o *Optimizer) cascadesDriverRules() []rules.Rule {
	out := make([]rules.Rule, 0, len(o.cascadesRules))
	for _, r := range o.cascadesRules {
		if o.cfg.RuleDisabled(r.Name()) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// HeuristicOptimize runs only the normalization pass over root, bypassing
// Cascades search entirely.
func (o *Optimizer) HeuristicOptimize(root *plan.Node) (*plan.Node, error) {
	if err := validatePlan(root); err != nil {
		return nil, err
	}
	h := heuristic.New(o.heuristicDriverRules(), o.cfg.HeuristicOrder, o.logger)
	out, _ := h.Run(root)
	return out, nil
}

// Optimize runs the full pipeline: validate, heuristic normalization, then
// Cascades search to a winner under memo.NoRequirements. The returned error
// is non-nil only for CatalogMiss, InvalidPlan, or NoPlan; budget exhaustion
// is instead reported via LastRunExhaustedBudget.
func (o *Optimizer) Optimize(ctx context.Context, root *plan.Node) (GroupID, *plan.Node, error) {
	sessionID, err := uuid.NewV4()
	if err != nil {
		sessionID = uuid.UUID{}
	}
	o.lastSessionID = sessionID
	log := o.logger.WithField("session", sessionID.String())

	if err := validatePlan(root); err != nil {
		return 0, nil, err
	}
	if err := o.checkCatalog(root); err != nil {
		return 0, nil, err
	}

	normalized, _ := o.HeuristicOptimize(root)

	m := memo.New()
	rootGroup, _ := m.AddExpression(normalized)
	o.lastMemo = m
	o.lastFramework = props.New(o.catalog, o.propBuilders...)

	driver := cascades.New(m, o.cascadesDriverRules(), o.costModel, o.statsForDriver(),
		cascades.WithWeights(o.cfg.Weights),
		cascades.WithMaxIterations(o.cfg.PartialExploreIter),
		cascades.WithMaxExpressions(o.cfg.PartialExploreSpace),
		cascades.WithLogger(log),
		cascades.WithTracer(o.tracer),
	)

	exhausted, err := driver.Run(ctx, rootGroup, memo.NoRequirements)
	o.lastExhausted = exhausted
	tasksGauge.Set(float64(driver.TasksExecuted()))
	exprsGauge.Set(float64(driver.ExpressionsInserted()))
	if err != nil {
		log.WithError(err).Warn("cascades session recorded rule failures")
	}

	if exhausted {
		log.WithFields(logrus.Fields{
			"tasks":       driver.TasksExecuted(),
			"expressions": driver.ExpressionsInserted(),
		}).Warn("optimization budget exhausted")
	}

	winner, ok := m.GetWinner(rootGroup, memo.NoRequirements)
	if !ok || winner.Impossible {
		return 0, nil, ErrNoPlan.New(memo.NoRequirements.Key())
	}
	return rootGroup, winner.Expr, nil
}

// StepClear resets the Optimizer's per-session bookkeeping (the last run's
// exhaustion flag and session id) without discarding configuration, rules,
// the cost model, or the catalog/property framework — a fresh Optimize call
// after StepClear behaves exactly like the Optimizer's first call.
func (o *Optimizer) StepClear() {
	o.lastExhausted = false
	o.lastSessionID = uuid.UUID{}
	o.lastMemo = nil
	o.lastFramework = nil
}

// StepClearWinner is the narrower reset: it forgets only the exhaustion
// flag from the previous run, letting a caller re-check LastRunExhaustedBudget
// meaningfully after a subsequent, unrelated Optimize call without losing
// the session id used to correlate prior log lines.
func (o *Optimizer) StepClearWinner() {
	o.lastExhausted = false
}

// LastRunExhaustedBudget reports whether the most recent Optimize call hit
// partial_explore_iter/partial_explore_space (or context cancellation)
// before converging, per the non-fatal "warning + result" propagation
// policy for BudgetExhausted.
func (o *Optimizer) LastRunExhaustedBudget() bool {
	return o.lastExhausted
}

// Dump renders a developer-facing text summary of the most recent Optimize
// call's memo, tagged with the session id for log correlation: with group
// nil it dumps every group memo.Memo.Dump knows about, otherwise just the
// named group's schema and members. There is nothing to dump before the
// first Optimize call.
func (o *Optimizer) Dump(group *GroupID) string {
	if o.lastMemo == nil {
		return fmt.Sprintf("optd optimizer session=%s (no run yet)", o.lastSessionID)
	}
	header := fmt.Sprintf("optd optimizer session=%s exhausted=%v\n", o.lastSessionID, o.lastExhausted)
	if group == nil {
		return header + o.lastMemo.Dump()
	}

	g := o.lastMemo.Group(*group)
	if g == nil {
		return fmt.Sprintf("%sgroup %d: no such group", header, *group)
	}
	bag := o.lastFramework.Properties(uint32(*group), o.lastMemo)
	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "group %d: %d expression(s), explored=%v, schema=%d column(s)\n", *group, len(g.Exprs), g.Explored, len(bag.Schema.Fields))
	for i, e := range g.Exprs {
		fmt.Fprintf(&b, "  expr %d: %s\n", i, e)
	}
	return b.String()
}

// validatePlan walks root and rejects a plan violating the structural rule
// that relational child positions hold relational nodes (logical, physical,
// or a memo KindGroup reference) and never a bare scalar expression.
func validatePlan(root *plan.Node) error {
	if root == nil {
		return ErrInvalidPlan.New("nil root")
	}
	if root.Kind.IsScalar() {
		return ErrInvalidPlan.New(fmt.Sprintf("root is scalar kind %s, expected a relational operator", root.Kind))
	}
	for _, pos := range plan.RelationalChildPositions(root.Kind) {
		if pos >= len(root.Children) {
			continue
		}
		child := root.Children[pos]
		if child.Kind.IsScalar() {
			return ErrInvalidPlan.New(fmt.Sprintf("%s child at position %d is scalar kind %s, expected relational", root.Kind, pos, child.Kind))
		}
		if err := validatePlan(child); err != nil {
			return err
		}
	}
	return nil
}

// checkCatalog walks root and confirms every Scan/PhysicalScan table name
// resolves in o.catalog, surfacing the first miss as CatalogMiss rather than
// letting the property framework fail silently deep inside Cascades search.
func (o *Optimizer) checkCatalog(node *plan.Node) error {
	if node.Kind == plan.KindScan || node.Kind == plan.KindPhysicalScan {
		if _, err := o.catalog.Table(node.Table); err != nil {
			return ErrCatalogMiss.Wrap(errors.WithStack(err), node.Table)
		}
		return nil
	}
	for _, pos := range plan.RelationalChildPositions(node.Kind) {
		if pos >= len(node.Children) {
			continue
		}
		if err := o.checkCatalog(node.Children[pos]); err != nil {
			return err
		}
	}
	return nil
}
