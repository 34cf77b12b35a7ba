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

// Package stats defines the base-table statistics the static cost model
// consumes, plus an in-memory reference Provider for tests and demos.
// Missing entries default conservatively, as callers of PerColumnStats are
// expected to: ndv defaults to the table's row count and null_frac to zero,
// which is the same "assume nothing is known, so assume the worst for
// selectivity" posture the cost model formulas rely on.
package stats

// PerColumnStats summarizes one column for selectivity/row-count estimation.
type PerColumnStats struct {
	NDV      float64 // distinct value estimate
	NullFrac float64
	// TopK holds the most frequent values and their observed frequency.
	// The static cost model does not read it: its equality selectivity is
	// always the uniform 1/NDV.
	TopK map[string]float64
}

// PerTableStats summarizes one table.
type PerTableStats struct {
	RowCount  float64
	PerColumn map[string]PerColumnStats
}

// ColumnStats returns the stats for a column, defaulting conservatively
// (ndv = row count, uniform distribution, zero nulls) when the column has
// no recorded entry.
func (t PerTableStats) ColumnStats(column string) PerColumnStats {
	if cs, ok := t.PerColumn[column]; ok {
		return cs
	}
	return PerColumnStats{NDV: t.RowCount, NullFrac: 0}
}

// Provider resolves table names to PerTableStats. Consulting it is optional:
// a cost model that finds no entry falls back to its own defaults.
type Provider interface {
	Table(name string) (PerTableStats, bool)
}

// Memory is an in-memory reference Provider backed by a map.
type Memory struct {
	tables map[string]PerTableStats
}

// NewMemory builds an empty in-memory stats provider.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]PerTableStats)}
}

// SetTable records (or replaces) a table's statistics.
func (m *Memory) SetTable(name string, s PerTableStats) {
	m.tables[name] = s
}

func (m *Memory) Table(name string) (PerTableStats, bool) {
	s, ok := m.tables[name]
	return s, ok
}
