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

// Package typecache implements TypeCache: a write-once memoization layer
// in front of internal/layout's pure tag/layout walks, keyed by the
// instantiated type's canonical string form. Like DatatypeRegistry and
// FunctionRegistry, it has no internal locking of its own — internal/loader
// serializes access under its TypeCache RWMutex (spec.md §5).
package typecache

import (
	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/layout"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// Cache memoizes the four Layout/Tag engine products. A miss computes
// and stores; a hit returns the stored value without re-walking.
type Cache struct {
	runtimeTags    map[string]layout.TypeTag
	definingTags   map[string]layout.TypeTag
	runtimeLayouts map[string]layout.RuntimeLayout
	annotated      map[string]layout.AnnotatedLayout

	// identMappings records, per annotated-layout key, the side-list of
	// node paths flagged during the walk for the optional identifier-
	// mapping pass (SUPPLEMENTED FEATURES #3 in SPEC_FULL.md). Empty
	// unless a caller opts in via AnnotatedLayoutWithIdentifierMappings.
	identMappings map[string][]string
}

func New() *Cache {
	return &Cache{
		runtimeTags:    map[string]layout.TypeTag{},
		definingTags:   map[string]layout.TypeTag{},
		runtimeLayouts: map[string]layout.RuntimeLayout{},
		annotated:      map[string]layout.AnnotatedLayout{},
		identMappings:  map[string][]string{},
	}
}

// key memoizes on the type's canonical string form. This is sound only
// because TypeRepr.String() is injective over well-formed types (distinct
// TypeRepr values that would reach different tags/layouts always render to
// distinct strings) -- every TypeRepr constructor in internal/typerepr
// preserves that, so a collision here would mean a malformed TypeRepr slipped
// past the datatype registry, not a genuine false cache hit.
func key(t typerepr.TypeRepr) string { return t.String() }

// RuntimeTag returns t's TypeTag under the datatype's current runtime
// module identity, memoized.
func (c *Cache) RuntimeTag(t typerepr.TypeRepr, reg *datatype.Registry) (layout.TypeTag, error) {
	k := key(t)
	if tag, ok := c.runtimeTags[k]; ok {
		return tag, nil
	}
	tag, _, err := layout.ToTag(t, reg, layout.RuntimeFlavor, nil)
	if err != nil {
		return layout.TypeTag{}, err
	}
	c.runtimeTags[k] = tag
	return tag, nil
}

// DefiningTag returns t's TypeTag under the defining-module identity,
// resolved via defining, memoized.
func (c *Cache) DefiningTag(t typerepr.TypeRepr, reg *datatype.Registry, defining layout.DefiningLookup) (layout.TypeTag, error) {
	k := key(t)
	if tag, ok := c.definingTags[k]; ok {
		return tag, nil
	}
	tag, _, err := layout.ToTag(t, reg, layout.DefiningFlavor, defining)
	if err != nil {
		return layout.TypeTag{}, err
	}
	c.definingTags[k] = tag
	return tag, nil
}

// Layout returns t's runtime value layout, memoized.
func (c *Cache) Layout(t typerepr.TypeRepr, reg *datatype.Registry) (layout.RuntimeLayout, error) {
	k := key(t)
	if l, ok := c.runtimeLayouts[k]; ok {
		return l, nil
	}
	l, _, err := layout.ToLayout(t, reg)
	if err != nil {
		return layout.RuntimeLayout{}, err
	}
	c.runtimeLayouts[k] = l
	return l, nil
}

// AnnotatedLayout returns t's fully-annotated layout, memoized.
func (c *Cache) AnnotatedLayout(t typerepr.TypeRepr, reg *datatype.Registry, defining layout.DefiningLookup) (layout.AnnotatedLayout, error) {
	l, _, err := c.annotatedLayout(t, reg, defining, false)
	return l, err
}

// AnnotatedLayoutWithIdentifierMappings is the opt-in variant from
// SUPPLEMENTED FEATURES #3: alongside the layout, it returns the node
// paths (dot-separated field/variant names) that a subsequent annotation
// pass should revisit. Off by default because most callers never need it.
func (c *Cache) AnnotatedLayoutWithIdentifierMappings(t typerepr.TypeRepr, reg *datatype.Registry, defining layout.DefiningLookup) (layout.AnnotatedLayout, []string, error) {
	return c.annotatedLayout(t, reg, defining, true)
}

func (c *Cache) annotatedLayout(t typerepr.TypeRepr, reg *datatype.Registry, defining layout.DefiningLookup, withMappings bool) (layout.AnnotatedLayout, []string, error) {
	k := key(t)
	if l, ok := c.annotated[k]; ok {
		if withMappings {
			return l, c.identMappings[k], nil
		}
		return l, nil, nil
	}
	l, _, err := layout.ToAnnotatedLayout(t, reg, defining)
	if err != nil {
		return layout.AnnotatedLayout{}, nil, err
	}
	c.annotated[k] = l
	var paths []string
	if withMappings {
		paths = identifierMappingPaths(l, "")
		c.identMappings[k] = paths
	}
	return l, paths, nil
}

// identifierMappingPaths walks an already-built AnnotatedLayout and
// records the path to every struct/enum node, the granularity the
// original's identifier-mapping pass operates at.
func identifierMappingPaths(l layout.AnnotatedLayout, prefix string) []string {
	var paths []string
	if l.Struct != nil {
		paths = append(paths, prefix)
	}
	for _, f := range l.Fields {
		paths = append(paths, identifierMappingPaths(f.Layout, joinPath(prefix, f.Name))...)
	}
	for _, v := range l.Variants {
		for _, f := range v.Fields {
			paths = append(paths, identifierMappingPaths(f.Layout, joinPath(prefix, v.Name+"."+f.Name))...)
		}
	}
	if l.Vector != nil {
		paths = append(paths, identifierMappingPaths(*l.Vector, joinPath(prefix, "[]"))...)
	}
	return paths
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}

// Len reports how many distinct types have a memoized runtime layout,
// used by tests asserting the cache actually avoids re-walking.
func (c *Cache) Len() int { return len(c.runtimeLayouts) }
