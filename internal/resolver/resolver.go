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

// Package resolver implements the Resolver from spec.md §4.10: a thin
// (CompiledModule, LoadedModule) pair that answers every file-format
// index in O(1), bridging raw bytecode indices to the interned registries
// and the Layout/Tag engine.
package resolver

import (
	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/constval"
	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/function"
	"github.com/move-lang/moveloader/internal/layout"
	"github.com/move-lang/moveloader/internal/loadedcache"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// MaxTypeInstantiationNodes mirrors typerepr.Subst's bound; re-exported
// here because instantiate_generic_function is this package's own entry
// point into substitution, not typerepr's.
const MaxTypeInstantiationNodes = typerepr.MaxTypeInstantiationNodes

// TypeCache is the subset of typecache.Cache's API the resolver needs.
// internal/loader supplies an implementation that serializes access
// under its own TypeCache RWMutex (spec.md §5); tests can supply a bare
// *typecache.Cache directly since it is safe for single-goroutine use.
type TypeCache interface {
	RuntimeTag(t typerepr.TypeRepr, reg *datatype.Registry) (layout.TypeTag, error)
	DefiningTag(t typerepr.TypeRepr, reg *datatype.Registry, defining layout.DefiningLookup) (layout.TypeTag, error)
	Layout(t typerepr.TypeRepr, reg *datatype.Registry) (layout.RuntimeLayout, error)
	AnnotatedLayout(t typerepr.TypeRepr, reg *datatype.Registry, defining layout.DefiningLookup) (layout.AnnotatedLayout, error)
}

// Resolver pairs one module's compiled bytes with its link-checked
// resolution against the process-wide registries and the TypeCache.
type Resolver struct {
	Compiled  *compiledcache.CompiledModule
	Loaded    *loadedcache.LoadedModule
	Datatypes *datatype.Registry
	Functions *function.Registry
	Types     TypeCache
	Defining  layout.DefiningLookup

	module ModuleViewFn
}

// ModuleViewFn builds the typerepr.ModuleView needed to translate a raw
// signature token into a TypeRepr, threading through the resolver's own
// datatype lookups.
type ModuleViewFn func() typerepr.ModuleView

// New builds a Resolver. viewFn is supplied by internal/loader, which
// knows the module's self address.
func New(compiled *compiledcache.CompiledModule, loaded *loadedcache.LoadedModule, datatypes *datatype.Registry, functions *function.Registry, types TypeCache, defining layout.DefiningLookup, viewFn ModuleViewFn) *Resolver {
	return &Resolver{Compiled: compiled, Loaded: loaded, Datatypes: datatypes, Functions: functions, Types: types, Defining: defining, module: viewFn}
}

func (r *Resolver) loc() errloc.Location { return errloc.AtModule(r.Compiled.StorageID.String()) }

func (r *Resolver) makeType(tok fileformat.SignatureToken) (typerepr.TypeRepr, error) {
	return typerepr.MakeType(r.module(), tok, r.Datatypes.ResolveFunc())
}

// ConstantAt decodes constant-pool entry idx.
func (r *Resolver) ConstantAt(idx uint16) (constval.Value, error) {
	if int(idx) >= len(r.Compiled.Module.Constants) {
		return constval.Value{}, errloc.New(errloc.UnknownInvariantViolation, r.loc(), "constant index %d out of range", idx)
	}
	c := r.Compiled.Module.Constants[idx]
	return constval.Decode(c.Type, c.Data)
}

// FunctionFromHandle resolves a FunctionHandle index to its interned
// definition and index.
func (r *Resolver) FunctionFromHandle(handleIdx uint16) (int, *function.Def, error) {
	if int(handleIdx) >= len(r.Loaded.FunctionHandleToIndex) {
		return 0, nil, errloc.New(errloc.UnknownInvariantViolation, r.loc(), "function handle %d out of range", handleIdx)
	}
	idx := r.Loaded.FunctionHandleToIndex[handleIdx]
	return idx, r.Functions.Get(idx), nil
}

// FunctionFromInstantiation resolves a FunctionInstantiation index to its
// base function plus the (unsubstituted) type-argument list.
func (r *Resolver) FunctionFromInstantiation(instIdx uint16) (int, *function.Def, []typerepr.TypeRepr, error) {
	if int(instIdx) >= len(r.Compiled.Module.FunctionInstantiations) {
		return 0, nil, nil, errloc.New(errloc.UnknownInvariantViolation, r.loc(), "function instantiation %d out of range", instIdx)
	}
	fi := r.Compiled.Module.FunctionInstantiations[instIdx]
	baseIdx, def, err := r.FunctionFromHandle(fi.Handle)
	if err != nil {
		return 0, nil, nil, err
	}
	args, err := r.Loaded.InstantiationAt(fi.Instantiation, r.makeType)
	if err != nil {
		return 0, nil, nil, err
	}
	return baseIdx, def, args, nil
}

// InstantiateGenericFunction substitutes tyArgs into def's parameter and
// return types, bounded by MaxTypeInstantiationNodes per substitution.
func (r *Resolver) InstantiateGenericFunction(def *function.Def, tyArgs []typerepr.TypeRepr) ([]typerepr.TypeRepr, []typerepr.TypeRepr, error) {
	params := make([]typerepr.TypeRepr, len(def.ParameterTypes))
	for i, p := range def.ParameterTypes {
		s, err := typerepr.Subst(p, tyArgs)
		if err != nil {
			return nil, nil, err
		}
		params[i] = s
	}
	rets := make([]typerepr.TypeRepr, len(def.ReturnTypes))
	for i, p := range def.ReturnTypes {
		s, err := typerepr.Subst(p, tyArgs)
		if err != nil {
			return nil, nil, err
		}
		rets[i] = s
	}
	return params, rets, nil
}

// GetStructType and GetEnumType resolve a DatatypeHandle to its interned
// index, validating the expected definition kind.
func (r *Resolver) GetStructType(handleIdx uint16) (int, error) {
	return r.getDatatype(handleIdx, datatype.KindStruct)
}

func (r *Resolver) GetEnumType(handleIdx uint16) (int, error) {
	return r.getDatatype(handleIdx, datatype.KindEnum)
}

func (r *Resolver) getDatatype(handleIdx uint16, want datatype.DefKind) (int, error) {
	if int(handleIdx) >= len(r.Loaded.DatatypeHandleToIndex) {
		return 0, errloc.New(errloc.UnknownInvariantViolation, r.loc(), "datatype handle %d out of range", handleIdx)
	}
	idx := r.Loaded.DatatypeHandleToIndex[handleIdx]
	if r.Datatypes.Get(idx).Kind != want {
		return 0, errloc.New(errloc.UnknownInvariantViolation, r.loc(), "datatype handle %d is not the expected definition kind", handleIdx)
	}
	return idx, nil
}

// InstantiateStructType and InstantiateEnumType build the DatatypeInstantiation
// TypeRepr for a generic datatype given concrete type arguments.
func (r *Resolver) InstantiateStructType(idx int, tyArgs []typerepr.TypeRepr) (typerepr.TypeRepr, error) {
	return instantiateDatatype(idx, tyArgs)
}

func (r *Resolver) InstantiateEnumType(idx int, tyArgs []typerepr.TypeRepr) (typerepr.TypeRepr, error) {
	return instantiateDatatype(idx, tyArgs)
}

func instantiateDatatype(idx int, tyArgs []typerepr.TypeRepr) (typerepr.TypeRepr, error) {
	if len(tyArgs) == 0 {
		return typerepr.Datatype(idx), nil
	}
	ty := typerepr.DatatypeInstantiation(idx, tyArgs)
	if n := ty.NodeCount(); n > MaxTypeInstantiationNodes {
		return typerepr.TypeRepr{}, errloc.New(errloc.TooManyTypeNodes, errloc.Location{},
			"instantiated datatype would have %d nodes, exceeding the %d node cap", n, MaxTypeInstantiationNodes)
	}
	return ty, nil
}

// FieldOffset and FieldInstantiationOffset resolve a FieldHandle to its
// owning datatype plus field offset. Both forms answer the same question;
// the "instantiation" form additionally validates the instantiation's
// node count, matching the original's split between unparameterized and
// generic field access opcodes.
func (r *Resolver) FieldOffset(fieldHandleIdx uint16) (ownerIdx int, offset int, err error) {
	if int(fieldHandleIdx) >= len(r.Loaded.FieldHandles) {
		return 0, 0, errloc.New(errloc.UnknownInvariantViolation, r.loc(), "field handle %d out of range", fieldHandleIdx)
	}
	fr := r.Loaded.FieldHandles[fieldHandleIdx]
	return fr.OwnerDatatypeIndex, fr.FieldOffset, nil
}

func (r *Resolver) FieldInstantiationOffset(fieldHandleIdx uint16, tyArgs []typerepr.TypeRepr) (ownerIdx int, offset int, err error) {
	ownerIdx, offset, err = r.FieldOffset(fieldHandleIdx)
	if err != nil {
		return 0, 0, err
	}
	if _, err := instantiateDatatype(ownerIdx, tyArgs); err != nil {
		return 0, 0, err
	}
	return ownerIdx, offset, nil
}

// FieldCount returns the number of fields of the struct at datatypeIdx.
func (r *Resolver) FieldCount(datatypeIdx int) (int, error) {
	d := r.Datatypes.Get(datatypeIdx)
	if d.Kind != datatype.KindStruct {
		return 0, errloc.New(errloc.UnknownInvariantViolation, r.loc(), "field_count called on a non-struct datatype")
	}
	return len(d.Fields), nil
}

// VariantFieldCountAndTag and VariantInstantiationFieldCountAndTag resolve
// a VariantHandle to its owning enum, field count and tag.
func (r *Resolver) VariantFieldCountAndTag(variantHandleIdx uint16) (ownerIdx int, fieldCount int, tag int, err error) {
	if int(variantHandleIdx) >= len(r.Loaded.VariantHandles) {
		return 0, 0, 0, errloc.New(errloc.UnknownInvariantViolation, r.loc(), "variant handle %d out of range", variantHandleIdx)
	}
	vr := r.Loaded.VariantHandles[variantHandleIdx]
	d := r.Datatypes.Get(vr.OwnerDatatypeIndex)
	if d.Kind != datatype.KindEnum || vr.VariantTag >= len(d.Variants) {
		return 0, 0, 0, errloc.New(errloc.UnknownInvariantViolation, r.loc(), "variant handle %d does not resolve to a valid variant", variantHandleIdx)
	}
	return vr.OwnerDatatypeIndex, len(d.Variants[vr.VariantTag].Fields), vr.VariantTag, nil
}

func (r *Resolver) VariantInstantiationFieldCountAndTag(variantHandleIdx uint16, tyArgs []typerepr.TypeRepr) (ownerIdx int, fieldCount int, tag int, err error) {
	ownerIdx, fieldCount, tag, err = r.VariantFieldCountAndTag(variantHandleIdx)
	if err != nil {
		return 0, 0, 0, err
	}
	if _, err := instantiateDatatype(ownerIdx, tyArgs); err != nil {
		return 0, 0, 0, err
	}
	return ownerIdx, fieldCount, tag, nil
}

// SingleTypeAt and InstantiateSingleType resolve vector-family bytecode's
// single-type signature reference, optionally substituting the caller's
// current type-argument bindings.
func (r *Resolver) SingleTypeAt(sigIdx uint16) (typerepr.TypeRepr, error) {
	return r.Loaded.SingleTypeAt(sigIdx, r.makeType)
}

func (r *Resolver) InstantiateSingleType(sigIdx uint16, tyArgs []typerepr.TypeRepr) (typerepr.TypeRepr, error) {
	t, err := r.SingleTypeAt(sigIdx)
	if err != nil {
		return typerepr.TypeRepr{}, err
	}
	if len(tyArgs) == 0 {
		return t, nil
	}
	return typerepr.Subst(t, tyArgs)
}

// TypeToTypeLayout and TypeToFullyAnnotatedLayout delegate to the
// process-wide TypeCache, memoizing the underlying Layout/Tag walk.
func (r *Resolver) TypeToTypeLayout(t typerepr.TypeRepr) (layout.RuntimeLayout, error) {
	return r.Types.Layout(t, r.Datatypes)
}

func (r *Resolver) TypeToFullyAnnotatedLayout(t typerepr.TypeRepr) (layout.AnnotatedLayout, error) {
	return r.Types.AnnotatedLayout(t, r.Datatypes, r.Defining)
}

// RuntimeTag and DefiningTag delegate to the TypeCache for the two tag
// flavors described in spec.md §4.9.
func (r *Resolver) RuntimeTag(t typerepr.TypeRepr) (layout.TypeTag, error) {
	return r.Types.RuntimeTag(t, r.Datatypes)
}

func (r *Resolver) DefiningTag(t typerepr.TypeRepr) (layout.TypeTag, error) {
	return r.Types.DefiningTag(t, r.Datatypes, r.Defining)
}
