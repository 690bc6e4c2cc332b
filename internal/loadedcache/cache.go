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

package loadedcache

import "github.com/move-lang/moveloader/internal/moduleid"

// Cache is the (ctx, runtime_id) -> LoadedModule map. No internal
// locking: internal/loader serializes mutation under its exclusive lock.
type Cache struct {
	byKey map[moduleid.ContextKey]*LoadedModule
}

func New() *Cache {
	return &Cache{byKey: map[moduleid.ContextKey]*LoadedModule{}}
}

func (c *Cache) Get(ctx moduleid.LinkContext, runtimeID moduleid.RuntimeId) (*LoadedModule, bool) {
	lm, ok := c.byKey[moduleid.Key(ctx, runtimeID)]
	return lm, ok
}

func (c *Cache) Insert(ctx moduleid.LinkContext, runtimeID moduleid.RuntimeId, lm *LoadedModule) {
	c.byKey[moduleid.Key(ctx, runtimeID)] = lm
}

// Len reports how many (ctx, runtime_id) views have been built; mostly
// useful for tests asserting S3/S4-style isolation properties.
func (c *Cache) Len() int { return len(c.byKey) }

// VerifiedSet returns the set of (ctx, runtime_id) pairs that already
// have a built LoadedModule, i.e. have already passed link verification
// once. internal/loader feeds this to DependencyTraverser as its
// alreadyVerified short-circuit (spec.md §4.7).
func (c *Cache) VerifiedSet() map[moduleid.ContextKey]bool {
	out := make(map[moduleid.ContextKey]bool, len(c.byKey))
	for k := range c.byKey {
		out[k] = true
	}
	return out
}
