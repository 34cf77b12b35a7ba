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

package memo

import (
	"fmt"
	"strings"
)

// Dump renders every group's member expressions and recorded winners as
// text, in group-creation order, for developer diagnostics. Output is
// deterministic across repeated runs over identical input: expression
// order is insertion order and winner keys are sorted.
func (m *Memo) Dump() string {
	var b strings.Builder
	for _, gid := range m.groupOrder {
		g := m.groups[gid]
		fmt.Fprintf(&b, "group %d (explored=%v):\n", gid, g.Explored)
		for i, e := range g.Exprs {
			fmt.Fprintf(&b, "  expr %d: %s\n", i, e.String())
		}
		for _, key := range sortedRequirementKeys(g) {
			w := g.Winners[key]
			label := key
			if label == "" {
				label = "<none>"
			}
			if w.Impossible {
				fmt.Fprintf(&b, "  winner[%s]: impossible\n", label)
				continue
			}
			fmt.Fprintf(&b, "  winner[%s]: cost=%+v expr=%s\n", label, w.Cost, w.Expr.String())
		}
	}
	return b.String()
}
