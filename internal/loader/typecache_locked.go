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

package loader

import (
	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/layout"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// lockedTypeCache adapts *typecache.Cache to resolver.TypeCache, taking
// l.typeMu for every call. A cache hit only ever needs the read lock in
// principle, but typecache.Cache's get-or-compute methods are single
// calls that may write on a miss, so this wrapper takes the exclusive
// lock unconditionally rather than speculatively upgrading a read lock —
// simpler, and still lets concurrent readers of the ModuleCache (a
// different lock) proceed uninterrupted.
type lockedTypeCache struct {
	l *Loader
}

func (c lockedTypeCache) RuntimeTag(t typerepr.TypeRepr, reg *datatype.Registry) (layout.TypeTag, error) {
	c.l.typeMu.Lock()
	defer c.l.typeMu.Unlock()
	return c.l.types.RuntimeTag(t, reg)
}

func (c lockedTypeCache) DefiningTag(t typerepr.TypeRepr, reg *datatype.Registry, defining layout.DefiningLookup) (layout.TypeTag, error) {
	c.l.typeMu.Lock()
	defer c.l.typeMu.Unlock()
	return c.l.types.DefiningTag(t, reg, defining)
}

func (c lockedTypeCache) Layout(t typerepr.TypeRepr, reg *datatype.Registry) (layout.RuntimeLayout, error) {
	c.l.typeMu.Lock()
	defer c.l.typeMu.Unlock()
	return c.l.types.Layout(t, reg)
}

func (c lockedTypeCache) AnnotatedLayout(t typerepr.TypeRepr, reg *datatype.Registry, defining layout.DefiningLookup) (layout.AnnotatedLayout, error) {
	c.l.typeMu.Lock()
	defer c.l.typeMu.Unlock()
	return c.l.types.AnnotatedLayout(t, reg, defining)
}
