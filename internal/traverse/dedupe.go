// Copyright 2024 Move Loader Authors
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

package traverse

import (
	"sort"

	"github.com/mpvl/unique"

	"github.com/move-lang/moveloader/internal/moduleid"
)

// byRuntimeID sorts a []moduleid.RuntimeId lexically by their string
// form so unique.Sort can collapse adjacent duplicates, the same
// sort-then-dedupe shape the teacher uses to dedupe import-path lists in
// internal/mod/modimports.
type byRuntimeID []moduleid.RuntimeId

func (s byRuntimeID) Len() int      { return len(s) }
func (s byRuntimeID) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byRuntimeID) Less(i, j int) bool {
	return s[i].String() < s[j].String()
}

// Equal satisfies unique.Interface (sort.Interface plus Equal), the
// extra method unique.Sort needs to collapse adjacent duplicates after
// sorting.
func (s byRuntimeID) Equal(i, j int) bool {
	return s[i] == s[j]
}

// dedupeDeps sorts and deduplicates a module's declared dependency list
// before any DFS frame is pushed for it, so a module naming the same
// dependency twice in its handle table is only visited once.
func dedupeDeps(deps []moduleid.RuntimeId) []moduleid.RuntimeId {
	if len(deps) < 2 {
		return deps
	}
	cp := append([]moduleid.RuntimeId(nil), deps...)
	s := byRuntimeID(cp)
	sort.Sort(s)
	n := unique.Sort(s)
	return cp[:n]
}
