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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optd-go/optd/heuristic"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.Equal(t, heuristic.BottomUp, cfg.HeuristicOrder)
	require.Greater(t, cfg.PartialExploreIter, 0)
	require.Greater(t, cfg.PartialExploreSpace, 0)
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesOnlySetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optd.toml")
	contents := `
partial_explore_iter = 100
heuristic_order = "top_down"

[weights]
row_count = 1.0
compute = 2.0
io = 3.0
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.PartialExploreIter)
	require.Equal(t, heuristic.TopDown, cfg.HeuristicOrder)
	require.Equal(t, 1.0, cfg.Weights.RowCount)
	require.Equal(t, 2.0, cfg.Weights.Compute)
	require.Equal(t, 3.0, cfg.Weights.IO)
	// Untouched fields keep their Default() value.
	require.Equal(t, Default().PartialExploreSpace, cfg.PartialExploreSpace)
}

func TestLoadMalformedTomlReturnsWrappedErrorNotPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid toml"), 0o644))

	require.NotPanics(t, func() {
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestLoadRejectsUnknownHeuristicOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`heuristic_order = "sideways"`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`partial_explore_iter = 0`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestRuleDisabled(t *testing.T) {
	cfg := Default()
	cfg.DisabledRules = []string{"join_commute"}
	require.True(t, cfg.RuleDisabled("join_commute"))
	require.False(t, cfg.RuleDisabled("join_assoc"))
}
