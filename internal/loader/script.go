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

	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/loadedcache"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// LoadedScriptInstantiation is LoadScript's dominant-path return value:
// the script's entry function's fully-substituted parameter types, plus
// the dependency modules it was linked against.
type LoadedScriptInstantiation struct {
	Parameters   []typerepr.TypeRepr
	Dependencies []*loadedcache.LoadedModule
}

// LoadScript implements SPEC_FULL.md's supplemented load_script: the same
// verify/link pipeline LoadFunction runs for a module, minus datatype and
// function interning, for a standalone CompiledScript with no module
// identity of its own (errloc.AtScript, not errloc.AtModule, attributes
// any failure). raw is a gob-encoded fileformat.Script
// (compiledcache.SerializeScript's counterpart); unlike a module, a
// script is never published to a Store, so it is supplied directly at
// call time.
func (l *Loader) LoadScript(ctx context.Context, linkCtx moduleid.LinkContext, raw []byte, tyArgs []typerepr.TypeRepr) (*LoadedScriptInstantiation, error) {
	script, err := compiledcache.DeserializeScript(raw, l.cfg.BinaryCfg)
	if err != nil {
		return nil, errloc.Wrap(errloc.CodeDeserializationError, errloc.AtScript(), err, "deserializing script")
	}

	if err := l.cfg.Verifier.VerifyScript(script, l.cfg.VerifyCfg); err != nil {
		return nil, errloc.Wrap(errloc.BytecodeVerifierFailure, errloc.AtScript(), err, "isolated bytecode verification failed")
	}

	deps := make([]*loadedcache.LoadedModule, 0, len(script.Dependencies))
	depMods := make([]*fileformat.Module, 0, len(script.Dependencies))
	for _, mhIdx := range script.Dependencies {
		rid := scriptModuleID(script, mhIdx)
		if err := l.ensureLoadedPublic(ctx, linkCtx, rid); err != nil {
			return nil, err
		}
		lm, ok := l.fastPathGet(linkCtx, rid)
		if !ok {
			return nil, errloc.New(errloc.UnknownInvariantViolation, errloc.AtModule(rid.String()),
				"dependency was just loaded but is missing from LoadedModuleCache")
		}
		deps = append(deps, lm)
		depMods = append(depMods, lm.Compiled.Module)
	}

	if err := l.cfg.Verifier.LinkVerifyScript(script, depMods); err != nil {
		return nil, errloc.Wrap(errloc.LinkVerifierFailure, errloc.AtScript(), err, "link verification failed")
	}

	constraints := make([]typerepr.AbilitySet, len(script.TypeParameters))
	for i, c := range script.TypeParameters {
		constraints[i] = typerepr.AbilitySet(c)
	}
	if err := l.checkTypeArgConstraints(constraints, tyArgs); err != nil {
		return nil, err
	}

	shell := script.AsModuleShell()
	view := typerepr.ModuleView{Module: shell}
	l.mu.RLock()
	params, err := signatureTypes(view, l.datatypes.ResolveFunc(), shell, script.Parameters)
	l.mu.RUnlock()
	if err != nil {
		return nil, errloc.Wrap(errloc.TypeResolutionFailure, errloc.AtScript(), err, "resolving entry function parameter types")
	}

	substituted := make([]typerepr.TypeRepr, len(params))
	for i, p := range params {
		s, err := typerepr.Subst(p, tyArgs)
		if err != nil {
			return nil, err
		}
		substituted[i] = s
	}

	return &LoadedScriptInstantiation{Parameters: substituted, Dependencies: deps}, nil
}

func scriptModuleID(script *fileformat.Script, mhIdx uint16) moduleid.RuntimeId {
	mh := script.ModuleHandles[mhIdx]
	var addr moduleid.Address
	copy(addr[:], script.AddressIdentifiers[mh.AddressIndex][:])
	name := script.Identifiers[mh.IdentifierIndex]
	return moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: addr, Name: name}}
}
