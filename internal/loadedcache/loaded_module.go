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

// Package loadedcache implements LoadedModuleCache: the link-checked,
// per-(context, runtime-id) execution view of a compiled module, with
// every file-format handle rewritten into an interned index (or a local
// table pointing into the global registries).
package loadedcache

import (
	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/function"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// FieldResolution is a FieldHandle resolved to the datatype it belongs
// to plus a field offset.
type FieldResolution struct {
	OwnerDatatypeIndex int
	FieldOffset        int
}

// VariantResolution is a VariantHandle resolved the same way, plus the
// variant's tag.
type VariantResolution struct {
	OwnerDatatypeIndex int
	VariantTag         int
}

// LoadedModule is the execution-ready view of one compiled module under
// one link context. Never mutated after insertion; dropped only by
// transactional rollback.
type LoadedModule struct {
	RuntimeID moduleid.RuntimeId
	Compiled  *compiledcache.CompiledModule

	DatatypeHandleToIndex []int
	FunctionHandleToIndex []int
	FieldHandles          []FieldResolution
	VariantHandles        []VariantResolution

	FunctionMap map[string]int

	// single_signature_token_map and instantiation_signatures are built
	// lazily: only as bytecode in this module actually references them.
	singleSignatureTokenMap map[uint16]typerepr.TypeRepr
	instantiationSignatures map[uint16][]typerepr.TypeRepr
}

// BuildInput carries everything Build needs to resolve a freshly (or
// already) interned module's handles into the two global registries.
type BuildInput struct {
	RuntimeID moduleid.RuntimeId
	Compiled  *compiledcache.CompiledModule
	Datatypes *datatype.Registry
	Functions *function.Registry

	// SelfDatatypeScanFrom and SelfFunctionScanFrom, when non-nil, are the
	// datatype/function registry high-watermarks taken just before
	// RuntimeID's own definitions were interned. When set, handle
	// resolution for entries belonging to RuntimeID itself falls back,
	// if the global map misses, to a backward scan down to that watermark
	// (see ResolveSelfByScan on both registries).
	SelfDatatypeScanFrom *int
	SelfFunctionScanFrom *int
}

// Build constructs the LoadedModule view for in.Compiled under
// in.RuntimeID. It assumes in.Compiled's datatypes and functions have
// already been interned into the two registries (by internal/loader,
// immediately before calling Build) — every handle lookup here is
// expected to succeed.
func Build(in BuildInput) (*LoadedModule, error) {
	mod := in.Compiled.Module
	loc := errloc.AtModule(in.Compiled.StorageID.String())

	lm := &LoadedModule{
		RuntimeID:   in.RuntimeID,
		Compiled:    in.Compiled,
		FunctionMap: map[string]int{},
	}

	lm.DatatypeHandleToIndex = make([]int, len(mod.DatatypeHandles))
	for i, dh := range mod.DatatypeHandles {
		rid := moduleIDOf(mod, dh.ModuleHandle)
		idx, err := resolveDatatype(in, rid, dh.Name)
		if err != nil {
			return nil, errloc.Wrap(errloc.TypeResolutionFailure, loc, err,
				"resolving datatype handle %d (%s::%s)", i, rid, dh.Name)
		}
		lm.DatatypeHandleToIndex[i] = idx
	}

	lm.FunctionHandleToIndex = make([]int, len(mod.FunctionHandles))
	for i, fh := range mod.FunctionHandles {
		rid := moduleIDOf(mod, fh.ModuleHandle)
		idx, err := resolveFunction(in, rid, fh.Name)
		if err != nil {
			return nil, errloc.Wrap(errloc.FunctionResolutionFailure, loc, err,
				"resolving function handle %d (%s::%s)", i, rid, fh.Name)
		}
		lm.FunctionHandleToIndex[i] = idx
		if rid == in.RuntimeID {
			lm.FunctionMap[fh.Name] = idx
		}
	}

	lm.FieldHandles = make([]FieldResolution, len(mod.FieldHandles))
	for i, fh := range mod.FieldHandles {
		def := mod.DatatypeDefs[fh.Owner]
		lm.FieldHandles[i] = FieldResolution{
			OwnerDatatypeIndex: lm.DatatypeHandleToIndex[def.Handle],
			FieldOffset:        int(fh.Field),
		}
	}

	lm.VariantHandles = make([]VariantResolution, len(mod.VariantHandles))
	for i, vh := range mod.VariantHandles {
		def := mod.DatatypeDefs[vh.Owner]
		lm.VariantHandles[i] = VariantResolution{
			OwnerDatatypeIndex: lm.DatatypeHandleToIndex[def.Handle],
			VariantTag:         int(vh.Variant),
		}
	}

	return lm, nil
}

func resolveDatatype(in BuildInput, rid moduleid.RuntimeId, name string) (int, error) {
	idx, _, err := in.Datatypes.Resolve(rid, name)
	if err == nil {
		return idx, nil
	}
	if rid == in.RuntimeID && in.SelfDatatypeScanFrom != nil {
		if idx, ok := in.Datatypes.ResolveSelfByScan(*in.SelfDatatypeScanFrom, rid, name); ok {
			return idx, nil
		}
	}
	return 0, err
}

func resolveFunction(in BuildInput, rid moduleid.RuntimeId, name string) (int, error) {
	idx, _, err := in.Functions.Resolve(rid, name)
	if err == nil {
		return idx, nil
	}
	if rid == in.RuntimeID && in.SelfFunctionScanFrom != nil {
		if idx, ok := in.Functions.ResolveSelfByScan(*in.SelfFunctionScanFrom, rid, name); ok {
			return idx, nil
		}
	}
	return 0, err
}

func moduleIDOf(mod *fileformat.Module, handleIdx uint16) moduleid.RuntimeId {
	mh := mod.ModuleHandles[handleIdx]
	var addr moduleid.Address
	copy(addr[:], mod.AddressIdentifiers[mh.AddressIndex][:])
	name := mod.Identifiers[mh.IdentifierIndex]
	return moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: addr, Name: name}}
}

// SingleTypeAt returns the TypeRepr for a vector-family bytecode's
// single-type signature reference at sigIdx, building and caching it on
// first use via makeType.
func (lm *LoadedModule) SingleTypeAt(sigIdx uint16, makeType func(tok fileformat.SignatureToken) (typerepr.TypeRepr, error)) (typerepr.TypeRepr, error) {
	if lm.singleSignatureTokenMap == nil {
		lm.singleSignatureTokenMap = map[uint16]typerepr.TypeRepr{}
	}
	if t, ok := lm.singleSignatureTokenMap[sigIdx]; ok {
		return t, nil
	}
	sig := lm.Compiled.Module.Signatures[sigIdx]
	if len(sig.Tokens) != 1 {
		return typerepr.TypeRepr{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{},
			"single_signature_token_map entry %d does not have exactly one token", sigIdx)
	}
	t, err := makeType(sig.Tokens[0])
	if err != nil {
		return typerepr.TypeRepr{}, err
	}
	lm.singleSignatureTokenMap[sigIdx] = t
	return t, nil
}

// InstantiationAt returns the []TypeRepr for a function/struct/enum
// instantiation signature at sigIdx, building and caching it on first
// use.
func (lm *LoadedModule) InstantiationAt(sigIdx uint16, makeType func(tok fileformat.SignatureToken) (typerepr.TypeRepr, error)) ([]typerepr.TypeRepr, error) {
	if lm.instantiationSignatures == nil {
		lm.instantiationSignatures = map[uint16][]typerepr.TypeRepr{}
	}
	if ts, ok := lm.instantiationSignatures[sigIdx]; ok {
		return ts, nil
	}
	sig := lm.Compiled.Module.Signatures[sigIdx]
	ts := make([]typerepr.TypeRepr, len(sig.Tokens))
	for i, tok := range sig.Tokens {
		t, err := makeType(tok)
		if err != nil {
			return nil, err
		}
		ts[i] = t
	}
	lm.instantiationSignatures[sigIdx] = ts
	return ts, nil
}
