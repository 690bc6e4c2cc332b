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
	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/function"
	"github.com/move-lang/moveloader/internal/loadedcache"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/natives"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// internModule interns cm's local datatype and function definitions into
// the process-wide registries, computes the new datatypes' depth
// formulas, and builds and inserts cm's LoadedModule. Called once per
// module, in the post-order DependencyTraverser produced, so every
// dependency a field or signature refers to is already interned.
func (l *Loader) internModule(linkCtx moduleid.LinkContext, rid moduleid.RuntimeId, cm *compiledcache.CompiledModule) error {
	loc := errloc.AtModule(cm.StorageID.String())
	view := typerepr.ModuleView{SelfAddress: rid.Address, Module: cm.Module}
	resolve := l.datatypes.ResolveFunc()

	selfDatatypeFrom := l.datatypes.Len()
	datatypeIndices, err := internDatatypeShells(l.datatypes, rid, cm.Module)
	if err != nil {
		return errloc.Wrap(errloc.TypeResolutionFailure, loc, err, "interning datatype shells")
	}

	if err := fillDatatypeFields(l.datatypes, view, resolve, cm.Module, datatypeIndices); err != nil {
		return errloc.Wrap(errloc.TypeResolutionFailure, loc, err, "resolving datatype field types")
	}

	if err := l.datatypes.ComputeDepths(datatypeIndices); err != nil {
		return errloc.Wrap(errloc.UnknownInvariantViolation, loc, err, "computing datatype depths")
	}

	selfFunctionFrom := l.functions.Len()
	if err := internFunctions(l.functions, l.cfg.Natives, l.cfg.LazyNatives, view, resolve, rid, cm.Module); err != nil {
		return errloc.Wrap(errloc.FunctionResolutionFailure, loc, err, "interning functions")
	}

	lm, err := loadedcache.Build(loadedcache.BuildInput{
		RuntimeID:            rid,
		Compiled:             cm,
		Datatypes:            l.datatypes,
		Functions:            l.functions,
		SelfDatatypeScanFrom: &selfDatatypeFrom,
		SelfFunctionScanFrom: &selfFunctionFrom,
	})
	if err != nil {
		return err
	}

	l.loaded.Insert(linkCtx, rid, lm)
	return nil
}

// internDatatypeShells interns a Shell (abilities, type-parameter
// metadata, variant names/tags) for every local DatatypeDef, before any
// field type is resolved — so sibling datatypes in the same module can
// reference each other regardless of declaration order.
func internDatatypeShells(reg *datatype.Registry, rid moduleid.RuntimeId, mod *fileformat.Module) ([]int, error) {
	indices := make([]int, len(mod.DatatypeDefs))
	for i, def := range mod.DatatypeDefs {
		handle := mod.DatatypeHandles[def.Handle]
		shell := datatype.Shell{
			Key:          datatype.Key{Module: rid, Name: handle.Name},
			Abilities:    typerepr.AbilitySet(handle.Abilities),
			PhantomFlags: make([]bool, len(handle.TypeParameters)),
			Constraints:  make([]typerepr.AbilitySet, len(handle.TypeParameters)),
			DefIndex:     uint16(i),
		}
		for pi, tp := range handle.TypeParameters {
			shell.PhantomFlags[pi] = tp.IsPhantom
			shell.Constraints[pi] = typerepr.AbilitySet(tp.Constraints)
		}
		switch def.Kind {
		case fileformat.DefStruct:
			shell.Kind = datatype.KindStruct
		case fileformat.DefEnum:
			shell.Kind = datatype.KindEnum
			shell.VariantNames = make([]string, len(def.Variants))
			shell.VariantTags = make([]uint16, len(def.Variants))
			for vi, v := range def.Variants {
				shell.VariantNames[vi] = v.Name
				shell.VariantTags[vi] = uint16(vi)
			}
		}
		idx, err := reg.Intern(shell)
		if err != nil {
			return nil, err
		}
		indices[i] = idx
	}
	return indices, nil
}

// fillDatatypeFields resolves every local DatatypeDef's field types,
// second pass after all of this module's shells exist.
func fillDatatypeFields(reg *datatype.Registry, view typerepr.ModuleView, resolve typerepr.DatatypeResolver, mod *fileformat.Module, indices []int) error {
	for i, def := range mod.DatatypeDefs {
		idx := indices[i]
		switch def.Kind {
		case fileformat.DefStruct:
			fields := make([]datatype.FieldDef, len(def.Fields))
			for fi, f := range def.Fields {
				t, err := typerepr.MakeType(view, f.Type, resolve)
				if err != nil {
					return err
				}
				fields[fi] = datatype.FieldDef{Name: f.Name, Type: t}
			}
			if err := reg.FillFields(idx, fields); err != nil {
				return err
			}
		case fileformat.DefEnum:
			for vi, v := range def.Variants {
				fields := make([]datatype.FieldDef, len(v.Fields))
				for fi, f := range v.Fields {
					t, err := typerepr.MakeType(view, f.Type, resolve)
					if err != nil {
						return err
					}
					fields[fi] = datatype.FieldDef{Name: f.Name, Type: t}
				}
				if err := reg.FillVariantFields(idx, vi, fields); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// internFunctions interns every local FunctionDefinition, resolving its
// parameter/return signatures and binding natives.
func internFunctions(reg *function.Registry, nativesReg natives.Registry, lazyNatives bool, view typerepr.ModuleView, resolve typerepr.DatatypeResolver, rid moduleid.RuntimeId, mod *fileformat.Module) error {
	for defIdx, def := range mod.FunctionDefs {
		handle := mod.FunctionHandles[def.Handle]

		params, err := signatureTypes(view, resolve, mod, handle.Parameters)
		if err != nil {
			return err
		}
		rets, err := signatureTypes(view, resolve, mod, handle.Return)
		if err != nil {
			return err
		}
		constraints := make([]typerepr.AbilitySet, len(handle.TypeParameters))
		for i, c := range handle.TypeParameters {
			constraints[i] = typerepr.AbilitySet(c)
		}

		in := function.InternInput{
			Key:                  function.Key{Module: rid, Name: handle.Name},
			ParameterTypes:       params,
			ReturnTypes:          rets,
			TypeParamConstraints: constraints,
			ParameterCount:       def.ParameterCount,
			LocalsCount:          def.LocalsCount,
			ReturnCount:          def.ReturnCount,
			IsNative:             def.IsNative,
			Code:                 def.Code,
			JumpTables:           def.JumpTables,
			DefIndex:             uint16(defIdx),
		}
		if _, err := reg.Intern(in, rid.Address, nativesReg, lazyNatives); err != nil {
			return err
		}
	}
	return nil
}

func signatureTypes(view typerepr.ModuleView, resolve typerepr.DatatypeResolver, mod *fileformat.Module, sigIdx uint16) ([]typerepr.TypeRepr, error) {
	sig := mod.Signatures[sigIdx]
	out := make([]typerepr.TypeRepr, len(sig.Tokens))
	for i, tok := range sig.Tokens {
		t, err := typerepr.MakeType(view, tok, resolve)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
