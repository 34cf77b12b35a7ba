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

// Package heuristic implements the always-apply normalization driver: a
// plain bottom-up (or top-down) walk over a plan.Node tree, rewriting each
// node to a fixed point before moving on, with no memo involved.
package heuristic

import (
	"github.com/sirupsen/logrus"

	"github.com/optd-go/optd/pattern"
	"github.com/optd-go/optd/plan"
)

// Order selects whether children are normalized before or after their
// parent.
type Order int

const (
	BottomUp Order = iota
	TopDown
)

// Rule is the minimal contract the heuristic driver needs: a pattern to
// try and an apply function returning replacement candidates (or none).
// package rules' Normalization rules satisfy this directly.
type Rule interface {
	Name() string
	Pattern() pattern.Pattern
	Apply(node *plan.Node, bindings pattern.Bindings) []*plan.Node
}

// maxIterationsPerNode bounds the per-node fixed-point loop so a rule that
// (incorrectly) keeps producing a "different but re-matchable" rewrite
// cannot hang the driver.
const maxIterationsPerNode = 64

// Driver runs a fixed rule set over plan trees.
type Driver struct {
	rules  []Rule
	order  Order
	logger logrus.FieldLogger
}

// New builds a heuristic driver applying rules in registration order under
// the given traversal order. A nil logger defaults to logrus's standard logger.
func New(rules []Rule, order Order, logger logrus.FieldLogger) *Driver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Driver{rules: rules, order: order, logger: logger}
}

// Run rewrites root to a fixed point and returns the result. It also
// reports how many rule firings occurred, letting callers assert the
// heuristic-idempotence property (a second Run firing zero rules).
func (d *Driver) Run(root *plan.Node) (*plan.Node, int) {
	firings := 0
	result := d.visit(root, &firings)
	d.logger.WithField("firings", firings).Debug("heuristic pass complete")
	return result, firings
}

func (d *Driver) visit(node *plan.Node, firings *int) *plan.Node {
	if d.order == TopDown {
		node = d.applyToFixedPoint(node, firings)
		return d.rewriteChildren(node, firings)
	}
	node = d.rewriteChildren(node, firings)
	return d.applyToFixedPoint(node, firings)
}

func (d *Driver) rewriteChildren(node *plan.Node, firings *int) *plan.Node {
	if len(node.Children) == 0 {
		return node
	}
	children := make([]*plan.Node, len(node.Children))
	changed := false
	for i, c := range node.Children {
		children[i] = d.visit(c, firings)
		if children[i] != c {
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

func (d *Driver) applyToFixedPoint(node *plan.Node, firings *int) *plan.Node {
	for i := 0; i < maxIterationsPerNode; i++ {
		rewritten, fired := d.applyOnce(node)
		if !fired {
			return node
		}
		*firings++
		d.logger.WithField("iteration", i).Trace("heuristic rule fired")
		node = rewritten
	}
	return node
}

func (d *Driver) applyOnce(node *plan.Node) (*plan.Node, bool) {
	for _, r := range d.rules {
		bindings := pattern.Match(r.Pattern(), node, nil)
		if len(bindings) == 0 {
			continue
		}
		out := r.Apply(node, bindings[0])
		if len(out) == 0 {
			continue
		}
		return out[0], true
	}
	return node, false
}
