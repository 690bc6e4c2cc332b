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

// Package loader implements the Loader façade from spec.md §4.8: the
// single entry point orchestrating DependencyTraverser, the two interned
// registries, LoadedModuleCache and TypeCache behind the concurrency
// policy in spec.md §5 — a shared lock for fast-path reads, an exclusive
// lock for mutation, with rollback performed under the same exclusive
// hold that produced the partial state.
package loader

import (
	"context"
	"log"
	"sync"

	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/cursor"
	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/function"
	"github.com/move-lang/moveloader/internal/layout"
	"github.com/move-lang/moveloader/internal/loadedcache"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/natives"
	"github.com/move-lang/moveloader/internal/resolver"
	"github.com/move-lang/moveloader/internal/store"
	"github.com/move-lang/moveloader/internal/traverse"
	"github.com/move-lang/moveloader/internal/typecache"
	"github.com/move-lang/moveloader/internal/typerepr"
	"github.com/move-lang/moveloader/internal/verifier"
)

// Config gathers the collaborators and feature flags a Loader is built
// from. Held by value rather than behind package-level state, per
// spec.md §9's "expose as a parameter" design note.
type Config struct {
	Store       store.Store
	Verifier    verifier.Verifier
	Natives     natives.Registry
	VerifyCfg   verifier.Config
	BinaryCfg   compiledcache.BinaryConfig
	LazyNatives bool
}

// Loader is the process-wide façade. One Loader is shared by every
// concurrent caller; mu and typeMu guard its two shared caches (spec.md
// §5: ModuleCache and TypeCache are each guarded by their own RWMutex),
// and versions carries its own mutex. Where both mu and typeMu are held
// (LayoutOf, AnnotatedLayoutOf), typeMu is always taken first.
type Loader struct {
	cfg Config

	mu        sync.RWMutex // guards compiled, loaded, datatypes, functions
	compiled  *compiledcache.Cache
	loaded    *loadedcache.Cache
	datatypes *datatype.Registry
	functions *function.Registry

	typeMu sync.RWMutex // guards types
	types  *typecache.Cache

	versions *versionTracker
}

// New builds an empty Loader.
func New(cfg Config) *Loader {
	return &Loader{
		cfg:       cfg,
		compiled:  compiledcache.New(),
		loaded:    loadedcache.New(),
		datatypes: datatype.New(),
		functions: function.New(),
		types:     typecache.New(),
		versions:  newVersionTracker(),
	}
}

// definingLookup adapts Loader.cfg.Store.DefiningModule to
// layout.DefiningLookup, used by every entry point that needs a
// defining-flavor tag or annotated layout.
func (l *Loader) definingLookup(ctx context.Context) layout.DefiningLookup {
	return func(runtimeID moduleid.RuntimeId, name string) (moduleid.ModuleId, error) {
		sid, err := l.cfg.Store.DefiningModule(ctx, runtimeID, name)
		if err != nil {
			return moduleid.ModuleId{}, errloc.Wrap(errloc.MissingDependency, errloc.AtModule(runtimeID.String()), err,
				"resolving defining module for %s::%s", runtimeID, name)
		}
		return sid.ModuleId, nil
	}
}

// ResolverFor returns the Resolver for runtimeID under linkCtx, loading
// (and link-verifying) its full dependency closure first if necessary.
func (l *Loader) ResolverFor(ctx context.Context, linkCtx moduleid.LinkContext, runtimeID moduleid.RuntimeId) (*resolver.Resolver, error) {
	return l.resolverFor(ctx, linkCtx, runtimeID, true)
}

func (l *Loader) resolverFor(ctx context.Context, linkCtx moduleid.LinkContext, runtimeID moduleid.RuntimeId, allowRootFetchFailure bool) (*resolver.Resolver, error) {
	if lm, ok := l.fastPathGet(linkCtx, runtimeID); ok {
		return l.buildResolver(ctx, lm), nil
	}

	if err := l.ensureLoaded(ctx, linkCtx, runtimeID, allowRootFetchFailure); err != nil {
		return nil, err
	}

	lm, ok := l.fastPathGet(linkCtx, runtimeID)
	if !ok {
		return nil, errloc.New(errloc.UnknownInvariantViolation, errloc.AtModule(runtimeID.String()),
			"module was just loaded but is missing from LoadedModuleCache")
	}
	return l.buildResolver(ctx, lm), nil
}

func (l *Loader) fastPathGet(linkCtx moduleid.LinkContext, runtimeID moduleid.RuntimeId) (*loadedcache.LoadedModule, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded.Get(linkCtx, runtimeID)
}

func (l *Loader) buildResolver(ctx context.Context, lm *loadedcache.LoadedModule) *resolver.Resolver {
	return resolver.New(lm.Compiled, lm, l.datatypes, l.functions, lockedTypeCache{l}, l.definingLookup(ctx), func() typerepr.ModuleView {
		return l.moduleView(lm)
	})
}

// moduleView builds the typerepr.ModuleView for lm's own module, used by
// the resolver to translate raw signature tokens that reference lm's own
// handle table.
func (l *Loader) moduleView(lm *loadedcache.LoadedModule) typerepr.ModuleView {
	return typerepr.ModuleView{SelfAddress: lm.RuntimeID.Address, Module: lm.Compiled.Module}
}

// ensureLoaded performs the exclusive-lock mutation path: traverse the
// dependency closure, intern every new module's datatypes and functions,
// build each one's LoadedModule, or roll every registry back to the
// pre-attempt snapshot on any failure (spec.md §4.6).
func (l *Loader) ensureLoaded(ctx context.Context, linkCtx moduleid.LinkContext, runtimeID moduleid.RuntimeId, allowRootFetchFailure bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.loaded.Get(linkCtx, runtimeID); ok {
		return nil // a racing caller already finished this exact load
	}

	snap := cursor.Take(l.datatypes, l.functions)

	trav := traverse.New(ctx, l.cfg.Store, l.cfg.Verifier, l.cfg.VerifyCfg, l.cfg.BinaryCfg, linkCtx, l.compiled, l.loaded.VerifiedSet())
	result, err := trav.Run(runtimeID, allowRootFetchFailure)
	if err != nil {
		if rerr := cursor.Rollback(l.datatypes, l.functions, snap); rerr != nil {
			// A failed rollback leaves the registries' high-watermark
			// invariant corrupted; there is no recovery available under
			// this lock, so log and proceed with the original error.
			log.Printf("move loader: rollback after failed load of %s also failed: %v", runtimeID, rerr)
		}
		return err
	}

	for _, rid := range result.Order {
		if _, ok := l.loaded.Get(linkCtx, rid); ok {
			continue
		}
		cm := result.Verified[rid]
		if err := l.internModule(linkCtx, rid, cm); err != nil {
			if rerr := cursor.Rollback(l.datatypes, l.functions, snap); rerr != nil {
				log.Printf("move loader: rollback after failed intern of %s also failed: %v", rid, rerr)
			}
			return err
		}
	}

	return nil
}
