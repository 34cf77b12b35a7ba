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

// Package catalog defines the table-schema lookup interface the property
// framework consumes when deriving a Scan leaf's output schema, plus an
// in-memory reference implementation for tests and demos.
package catalog

import "fmt"

// FieldType is a closed set of column types a Schema field may carry.
type FieldType uint8

const (
	TypeInt FieldType = iota
	TypeString
	TypeBool
	TypeDecimal
)

// Field describes one column of a table's schema.
type Field struct {
	Name string
	Type FieldType
}

// Schema is an ordered list of fields, the unit the Schema property builder
// attaches to every group.
type Schema struct {
	Fields []Field
}

// IndexOf returns the ordinal of the named field, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Catalog resolves table names to schemas. Implementations are pure lookups
// with no persistence obligations.
type Catalog interface {
	Table(name string) (Schema, error)
}

// ErrUnknownTable is returned by Memory when a table name has no schema
// registered. Callers typically translate this into the optimizer's
// CatalogMiss error kind.
type ErrUnknownTable struct {
	Table string
}

func (e *ErrUnknownTable) Error() string {
	return fmt.Sprintf("catalog: unknown table %q", e.Table)
}

// Memory is a simple in-process reference Catalog backed by a map, built the
// same way the rest of this module ships an in-memory reference
// implementation for every external interface it consumes.
type Memory struct {
	tables map[string]Schema
}

// NewMemory builds an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]Schema)}
}

// AddTable registers (or replaces) a table's schema.
func (m *Memory) AddTable(name string, schema Schema) {
	m.tables[name] = schema
}

func (m *Memory) Table(name string) (Schema, error) {
	s, ok := m.tables[name]
	if !ok {
		return Schema{}, &ErrUnknownTable{Table: name}
	}
	return s, nil
}
