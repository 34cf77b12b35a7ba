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

// Package config holds the tunables an embedding application sets once,
// before constructing an Optimizer: cost weights, partial-exploration
// bounds, adaptive-decay constant, and heuristic apply order.
package config

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/optd-go/optd/cost"
	"github.com/optd-go/optd/heuristic"
)

// OptimizerConfig is the full set of knobs an Optimizer is built from.
// Zero-valued fields are filled in by Default before use.
type OptimizerConfig struct {
	Weights cost.Weights `toml:"weights"`

	// PartialExploreIter caps the total number of tasks the Cascades driver
	// executes in one Optimize call.
	PartialExploreIter int `toml:"partial_explore_iter"`
	// PartialExploreSpace caps the total number of expressions inserted
	// into the memo in one Optimize call.
	PartialExploreSpace int `toml:"partial_explore_space"`

	// AdaptiveDecay is a decay constant for cost.NewAdaptiveCostModel. The
	// Optimizer does not read it: the cost model is built by the caller and
	// passed to optd.New.
	AdaptiveDecay float64 `toml:"adaptive_decay"`

	// HeuristicOrder selects BottomUp (default) or TopDown traversal for
	// the normalization pass that runs before Cascades search.
	HeuristicOrder heuristic.Order `toml:"-"`
	HeuristicOrderName string      `toml:"heuristic_order"`

	// DisabledRules lists rule names (Rule.Name()) excluded from both the
	// heuristic and Cascades catalogs, letting an embedder turn off a rule
	// without forking the catalog.
	DisabledRules []string `toml:"disabled_rules"`
}

// Default returns the configuration the optimizer uses when none is
// supplied: the bounds and weights named throughout the design, bottom-up
// heuristic order, cost.DefaultDecay as the adaptive decay, nothing disabled.
func Default() *OptimizerConfig {
	return &OptimizerConfig{
		Weights:             cost.DefaultWeights,
		PartialExploreIter:  1 << 20,
		PartialExploreSpace: 1 << 10,
		AdaptiveDecay:       cost.DefaultDecay,
		HeuristicOrder:      heuristic.BottomUp,
		HeuristicOrderName:  "bottom_up",
	}
}

// Load reads an OptimizerConfig from a TOML file at path, starting from
// Default and overriding only the fields the file sets. A missing file is
// not an error — the caller gets Default back unchanged, matching the "an
// optional TOML file path" wording of the facade's contract.
func Load(path string) (*OptimizerConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parsing %s", path)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve fills derived fields (HeuristicOrder from HeuristicOrderName)
// and validates cross-field constraints after a TOML unmarshal.
func (c *OptimizerConfig) resolve() error {
	switch c.HeuristicOrderName {
	case "", "bottom_up":
		c.HeuristicOrder = heuristic.BottomUp
	case "top_down":
		c.HeuristicOrder = heuristic.TopDown
	default:
		return errors.Errorf("config: unknown heuristic_order %q", c.HeuristicOrderName)
	}
	if c.PartialExploreIter <= 0 {
		return errors.Errorf("config: partial_explore_iter must be positive, got %d", c.PartialExploreIter)
	}
	if c.PartialExploreSpace <= 0 {
		return errors.Errorf("config: partial_explore_space must be positive, got %d", c.PartialExploreSpace)
	}
	return nil
}

// RuleDisabled reports whether name appears in DisabledRules.
func (c *OptimizerConfig) RuleDisabled(name string) bool {
	for _, n := range c.DisabledRules {
		if n == name {
			return true
		}
	}
	return false
}
