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

// Package traverse implements DependencyTraverser: an explicit,
// iterative DFS over a module's dependency DAG that individually
// verifies each node, detects cycles via a frame stack rather than
// language-level recursion (unsafe on adversarial module graphs per
// spec.md §9), and performs link verification of each module in
// post-order against its already-verified dependencies.
package traverse

import (
	"context"

	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/store"
	"github.com/move-lang/moveloader/internal/verifier"
)

// frame is one stack entry: a compiled module whose dependency list is
// being walked.
type frame struct {
	runtimeID        moduleid.RuntimeId
	compiled         *compiledcache.CompiledModule
	deps             []moduleid.RuntimeId // remaining unvisited deps, in declared (deduped) order
	insertedVisiting bool
}

// Traverser owns the state for a single load-closure walk. It is built
// fresh for each root load attempt by internal/loader.
type Traverser struct {
	ctx       context.Context
	st        store.Store
	ver       verifier.Verifier
	vcfg      verifier.Config
	bcfg      compiledcache.BinaryConfig
	linkCtx   moduleid.LinkContext
	compiled  *compiledcache.Cache

	// alreadyVerified short-circuits re-walking a subtree whose (ctx,
	// runtime id) has already passed link verification in a prior call;
	// populated only after success (§4.7).
	alreadyVerified map[moduleid.ContextKey]bool

	resolveModuleID func(mh fileformat.ModuleHandle, mod *fileformat.Module) moduleid.RuntimeId
}

// New builds a Traverser for one load-closure walk. It is used only for
// the eager, by-invocation load path (internal/loader's ensureLoaded);
// publish_bundle's verify-only dry run uses VerifyForPublication instead,
// which never touches compiled, datatypes, functions, or loaded.
func New(
	ctx context.Context,
	st store.Store,
	ver verifier.Verifier,
	vcfg verifier.Config,
	bcfg compiledcache.BinaryConfig,
	linkCtx moduleid.LinkContext,
	compiled *compiledcache.Cache,
	alreadyVerified map[moduleid.ContextKey]bool,
) *Traverser {
	return &Traverser{
		ctx: ctx, st: st, ver: ver, vcfg: vcfg, bcfg: bcfg, linkCtx: linkCtx,
		compiled:        compiled,
		alreadyVerified: alreadyVerified,
		resolveModuleID: resolveModuleID,
	}
}

// Result is the outcome of a successful Run: every module touched,
// link-checked, in post order (dependencies before dependents).
type Result struct {
	Order    []moduleid.RuntimeId
	Verified map[moduleid.RuntimeId]*compiledcache.CompiledModule
}

// Run walks the transitive closure of root under t's link context,
// individually verifying each node, detecting cycles, and performing
// link verification of each node in post-order against its dependencies.
func (t *Traverser) Run(root moduleid.RuntimeId, allowRootFetchFailure bool) (*Result, error) {
	visiting := map[moduleid.RuntimeId]bool{}
	verified := map[moduleid.RuntimeId]*compiledcache.CompiledModule{}
	var order []moduleid.RuntimeId

	rootFrame, err := t.loadFrame(root, allowRootFetchFailure)
	if err != nil {
		return nil, err
	}
	stack := []*frame{rootFrame}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if !top.insertedVisiting {
			if visiting[top.runtimeID] {
				return nil, errloc.New(errloc.CyclicModuleDependency, errloc.AtModule(top.compiled.StorageID.String()),
					"module %s is reachable from itself", top.runtimeID)
			}
			visiting[top.runtimeID] = true
			top.insertedVisiting = true
		}

		ck := moduleid.Key(t.linkCtx, top.runtimeID)
		if t.alreadyVerified[ck] {
			// Subtree already known-good; treat as post-order complete
			// without walking its declared dependencies again.
			top.deps = nil
		}

		if len(top.deps) > 0 {
			next := top.deps[0]
			top.deps = top.deps[1:]
			if visiting[next] {
				return nil, errloc.New(errloc.CyclicModuleDependency, errloc.AtModule(top.compiled.StorageID.String()),
					"module %s depends on %s, which is already on the current path", top.runtimeID, next)
			}
			if _, done := verified[next]; done {
				continue
			}
			childFrame, err := t.loadFrame(next, false)
			if err != nil {
				return nil, err
			}
			stack = append(stack, childFrame)
			continue
		}

		// Post-order: link-verify top against its already-verified deps.
		depModules := t.collectDepModules(top, verified)
		if err := t.ver.LinkVerify(top.compiled.Module, depModules); err != nil {
			loc := errloc.AtModule(top.compiled.StorageID.String())
			if top.runtimeID == root {
				return nil, errloc.Wrap(errloc.LinkVerifierFailure, loc, err, "link verification failed")
			}
			// Not expected on a non-root node: the store is supposed to
			// contain only already-verified code.
			return nil, errloc.InvariantViolation(loc, err)
		}

		// A second, oracle-based cycle check over the same closure, mirroring
		// verify_module_cyclic_relations's position right after the downward
		// dependency walk in original_source's load_module_internal. The
		// frame-stack visiting set above already rejects any cycle reachable
		// through top's own deps list, so this should never fire in
		// practice; treat a hit as a bug in that structural check rather than
		// a caller-facing condition, except on root where the failure is
		// surfaced the same way LinkVerify's is above.
		if err := t.ver.CyclicDependenciesVerify(top.compiled.Module, verifiedResolver(verified)); err != nil {
			loc := errloc.AtModule(top.compiled.StorageID.String())
			if top.runtimeID == root {
				return nil, errloc.Wrap(errloc.CyclicModuleDependency, loc, err, "cyclic dependency verification failed")
			}
			return nil, errloc.InvariantViolation(loc, err)
		}

		stack = stack[:len(stack)-1]
		delete(visiting, top.runtimeID)
		verified[top.runtimeID] = top.compiled
		order = append(order, top.runtimeID)
	}

	return &Result{Order: order, Verified: verified}, nil
}

// loadFrame resolves runtimeID's storage location, individually verifies
// the module (via compiledcache.Cache.Insert, §4.4), and builds a frame
// over its deduped dependency list.
func (t *Traverser) loadFrame(runtimeID moduleid.RuntimeId, allowFetchFailure bool) (*frame, error) {
	storageID, err := t.st.Relocate(t.ctx, t.linkCtx, runtimeID)
	if err != nil {
		loc := errloc.AtModule(runtimeID.String())
		if allowFetchFailure {
			return nil, errloc.Wrap(errloc.MissingDependency, loc, err, "relocating runtime id")
		}
		return nil, errloc.InvariantViolation(loc, err)
	}

	cm, err := t.compiled.Insert(t.ctx, t.st, t.ver, t.vcfg, t.bcfg, storageID, allowFetchFailure)
	if err != nil {
		return nil, err
	}

	deps := make([]moduleid.RuntimeId, 0, len(cm.Module.Dependencies))
	for _, mhIdx := range cm.Module.Dependencies {
		deps = append(deps, t.resolveModuleID(cm.Module.ModuleHandles[mhIdx], cm.Module))
	}
	deps = dedupeDeps(deps)

	return &frame{runtimeID: runtimeID, compiled: cm, deps: deps}, nil
}

func (t *Traverser) collectDepModules(f *frame, verified map[moduleid.RuntimeId]*compiledcache.CompiledModule) []*fileformat.Module {
	var mods []*fileformat.Module
	for _, mhIdx := range f.compiled.Module.Dependencies {
		rid := t.resolveModuleID(f.compiled.Module.ModuleHandles[mhIdx], f.compiled.Module)
		if cm, ok := verified[rid]; ok {
			mods = append(mods, cm.Module)
		}
	}
	return mods
}

// verifiedResolver adapts the post-order Verified map accumulated so far
// into the resolve closure Verifier.CyclicDependenciesVerify expects: by
// the time a frame reaches post-order, every module in its transitive
// closure is already a key of verified.
func verifiedResolver(verified map[moduleid.RuntimeId]*compiledcache.CompiledModule) func(moduleid.RuntimeId) (*fileformat.Module, bool) {
	return func(rid moduleid.RuntimeId) (*fileformat.Module, bool) {
		cm, ok := verified[rid]
		if !ok {
			return nil, false
		}
		return cm.Module, true
	}
}

func resolveModuleID(mh fileformat.ModuleHandle, mod *fileformat.Module) moduleid.RuntimeId {
	var addr moduleid.Address
	copy(addr[:], mod.AddressIdentifiers[mh.AddressIndex][:])
	name := mod.Identifiers[mh.IdentifierIndex]
	return moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: addr, Name: name}}
}

// VerifyForPublication implements spec.md §4.8's publish_bundle verify
// step, grounded in original_source's verify_module_bundle_for_publication
// / verify_module_for_publication / verify_module_cyclic_relations: every
// module in mods, in declared bundle order, is individually bytecode-
// verified, checked for known natives, and has its dependency graph
// (including references to other modules of the same bundle) verified
// for linkage and cycles -- without ever calling into a
// compiledcache.Cache, datatype.Registry, function.Registry, or
// loadedcache.Cache. A module earlier in the bundle becomes visible to a
// later one through a bundle-local map (bundleVerified below), mirroring
// the original's bundle_verified BTreeMap; nothing here is committed to
// any process-wide cache. The actual interning happens later, lazily,
// the first time a function or resolver for one of these modules is
// requested through the normal ResolverFor/LoadFunction path.
func VerifyForPublication(
	ctx context.Context,
	st store.Store,
	ver verifier.Verifier,
	vcfg verifier.Config,
	bcfg compiledcache.BinaryConfig,
	linkCtx moduleid.LinkContext,
	mods []*fileformat.Module,
) error {
	bv := &bundleVerifier{
		ctx: ctx, st: st, ver: ver, vcfg: vcfg, bcfg: bcfg, linkCtx: linkCtx,
		bundleVerified: map[moduleid.RuntimeId]*fileformat.Module{},
		external:       map[moduleid.RuntimeId]*fileformat.Module{},
	}
	for _, mod := range mods {
		rid := resolveModuleID(mod.ModuleHandles[mod.SelfModuleHandle], mod)
		if err := bv.verifyOne(rid, mod); err != nil {
			return err
		}
		bv.bundleVerified[rid] = mod
	}
	return nil
}

// bundleVerifier holds the state for one publish_bundle dry run: the
// bundle-local map of modules already verified earlier in this same
// batch, plus a scratch cache of modules fetched from storage purely to
// satisfy link and cycle checks. Both maps are discarded once
// VerifyForPublication returns; neither is a process-wide cache.
type bundleVerifier struct {
	ctx     context.Context
	st      store.Store
	ver     verifier.Verifier
	vcfg    verifier.Config
	bcfg    compiledcache.BinaryConfig
	linkCtx moduleid.LinkContext

	bundleVerified map[moduleid.RuntimeId]*fileformat.Module
	external       map[moduleid.RuntimeId]*fileformat.Module
}

// verifyOne runs verify_module_for_publication for one module: isolated
// bytecode verification, native presence, a downward walk of its
// dependency graph, and linkage/cyclic verification against the
// dependencies that walk resolves.
func (bv *bundleVerifier) verifyOne(rid moduleid.RuntimeId, mod *fileformat.Module) error {
	loc := errloc.AtModule(rid.String())

	if err := bv.ver.VerifyModule(mod, bv.vcfg); err != nil {
		return errloc.Wrap(errloc.BytecodeVerifierFailure, loc, err, "isolated bytecode verification failed")
	}
	if !bv.vcfg.LazyNatives {
		if err := compiledcache.CheckNativesPresence(mod); err != nil {
			return errloc.Wrap(errloc.UnknownInvariantViolation, loc, err, "native function presence check failed")
		}
	}

	visiting := map[moduleid.RuntimeId]bool{rid: true}
	depMods, err := bv.verifyDependencies(rid, mod, visiting)
	if err != nil {
		return err
	}
	if err := bv.ver.LinkVerify(mod, depMods); err != nil {
		return errloc.Wrap(errloc.LinkVerifierFailure, loc, err, "link verification failed")
	}

	// verify_module_for_publication runs this same oracle-based cycle check
	// after linkage, resolving against whatever the bundle dry run has
	// already verified (bundle-local first, then anything walked in from
	// storage) -- every module published in a bundle stands in for "root"
	// here, so a failure surfaces unwrapped to the caller.
	if err := bv.ver.CyclicDependenciesVerify(mod, bv.resolve); err != nil {
		return errloc.Wrap(errloc.CyclicModuleDependency, loc, err, "cyclic dependency verification failed")
	}
	return nil
}

// resolve answers Verifier.CyclicDependenciesVerify's lookups against
// whatever this dry run has verified so far: modules earlier in the same
// bundle take priority, falling back to modules pulled in from storage to
// satisfy an external dependency.
func (bv *bundleVerifier) resolve(rid moduleid.RuntimeId) (*fileformat.Module, bool) {
	if mod, ok := bv.bundleVerified[rid]; ok {
		return mod, true
	}
	if mod, ok := bv.external[rid]; ok {
		return mod, true
	}
	return nil, false
}

// verifyDependencies resolves mod's immediate dependencies, each either
// already present earlier in the same bundle or walked down from
// storage, detecting cycles via visiting, and returns their modules in
// declared order for the caller's link check.
func (bv *bundleVerifier) verifyDependencies(rid moduleid.RuntimeId, mod *fileformat.Module, visiting map[moduleid.RuntimeId]bool) ([]*fileformat.Module, error) {
	var depMods []*fileformat.Module
	for _, mhIdx := range mod.Dependencies {
		depID := resolveModuleID(mod.ModuleHandles[mhIdx], mod)

		if bm, ok := bv.bundleVerified[depID]; ok {
			depMods = append(depMods, bm)
			continue
		}

		dm, err := bv.resolveExternal(depID, visiting)
		if err != nil {
			return nil, errloc.Wrap(errloc.MissingDependency, errloc.AtModule(rid.String()), err,
				"resolving dependency %s", depID)
		}
		depMods = append(depMods, dm)
	}
	return depMods, nil
}

// resolveExternal fetches and isolated-verifies a dependency that lives
// outside the current bundle (i.e. already published in an earlier
// transaction), walking its own dependency graph in turn so a
// dependency-of-a-dependency cycle is still caught. Resolved modules are
// memoized in bv.external for the remainder of this dry run only; none
// of this reaches compiledcache, datatype, function, or loadedcache.
func (bv *bundleVerifier) resolveExternal(rid moduleid.RuntimeId, visiting map[moduleid.RuntimeId]bool) (*fileformat.Module, error) {
	if mod, ok := bv.external[rid]; ok {
		return mod, nil
	}
	if visiting[rid] {
		return nil, errloc.New(errloc.CyclicModuleDependency, errloc.AtModule(rid.String()),
			"module %s is reachable from itself", rid)
	}

	storageID, err := bv.st.Relocate(bv.ctx, bv.linkCtx, rid)
	if err != nil {
		return nil, err
	}
	raw, err := bv.st.LoadModule(bv.ctx, storageID)
	if err != nil {
		return nil, err
	}
	mod, err := compiledcache.Deserialize(raw, bv.bcfg)
	if err != nil {
		return nil, err
	}
	if err := bv.ver.VerifyModule(mod, bv.vcfg); err != nil {
		return nil, err
	}

	visiting[rid] = true
	if _, err := bv.verifyDependencies(rid, mod, visiting); err != nil {
		delete(visiting, rid)
		return nil, err
	}
	delete(visiting, rid)

	bv.external[rid] = mod
	return mod, nil
}
