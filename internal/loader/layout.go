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
	"context"

	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/layout"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// LayoutOf is a module-independent convenience entry point over the
// Layout/Tag engine (spec.md §4.9): it loads ty's datatype dependencies
// (if any, via LoadType's recursive module loading) then returns the
// runtime layout, without requiring the caller to first obtain a
// Resolver for some particular module. Used by cmd/moveloader's
// inspect-layout subcommand, which has no single "current module" to
// build a Resolver for. A type of more than MaxTypeToLayoutNodes nodes is
// rejected with TooManyTypeNodes before the layout walk starts.
func (l *Loader) LayoutOf(ctx context.Context, linkCtx moduleid.LinkContext, tag layout.TypeTag) (layout.RuntimeLayout, error) {
	ty, err := l.LoadType(ctx, linkCtx, tag)
	if err != nil {
		return layout.RuntimeLayout{}, err
	}
	if n := ty.NodeCount(); n > layout.MaxTypeToLayoutNodes {
		return layout.RuntimeLayout{}, errloc.New(errloc.TooManyTypeNodes, errloc.Location{},
			"type has %d nodes, exceeding the %d node cap", n, layout.MaxTypeToLayoutNodes)
	}
	return l.layoutOfType(ty)
}

// AnnotatedLayoutOf is LayoutOf's fully-annotated counterpart.
func (l *Loader) AnnotatedLayoutOf(ctx context.Context, linkCtx moduleid.LinkContext, tag layout.TypeTag) (layout.AnnotatedLayout, error) {
	ty, err := l.LoadType(ctx, linkCtx, tag)
	if err != nil {
		return layout.AnnotatedLayout{}, err
	}
	l.typeMu.Lock()
	defer l.typeMu.Unlock()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.types.AnnotatedLayout(ty, l.datatypes, l.definingLookup(ctx))
}

func (l *Loader) layoutOfType(ty typerepr.TypeRepr) (layout.RuntimeLayout, error) {
	l.typeMu.Lock()
	defer l.typeMu.Unlock()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.types.Layout(ty, l.datatypes)
}
