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

package typerepr

import (
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/moduleid"
)

// DatatypeResolver resolves a (runtime module id, name) pair to its
// interned datatype index. Implemented by internal/datatype.Registry.
// Implementations must return TypeResolutionFailure on miss: under
// normal operation this must not occur because dependencies are interned
// before their dependents (DependencyTraverser's post-order guarantee).
type DatatypeResolver func(runtimeID moduleid.RuntimeId, name string) (int, error)

// ModuleView supplies the pieces of a fileformat.Module that MakeType
// needs to turn a DatatypeHandle index into a (runtime module id, name)
// pair: the module's own handle table plus its address/identifier pools.
type ModuleView struct {
	SelfAddress moduleid.Address
	Module      *fileformat.Module
}

func (v ModuleView) moduleIDOf(moduleHandleIdx uint16) moduleid.RuntimeId {
	mh := v.Module.ModuleHandles[moduleHandleIdx]
	var addr moduleid.Address
	copy(addr[:], v.Module.AddressIdentifiers[mh.AddressIndex][:])
	name := v.Module.Identifiers[mh.IdentifierIndex]
	return moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: addr, Name: name}}
}

// MakeType translates a file-format signature token into a TypeRepr,
// resolving each datatype handle into an interned index via resolve.
func MakeType(view ModuleView, tok fileformat.SignatureToken, resolve DatatypeResolver) (TypeRepr, error) {
	switch tok.Kind {
	case fileformat.SigBool:
		return Bool(), nil
	case fileformat.SigU8:
		return U8(), nil
	case fileformat.SigU16:
		return U16(), nil
	case fileformat.SigU32:
		return U32(), nil
	case fileformat.SigU64:
		return U64(), nil
	case fileformat.SigU128:
		return U128(), nil
	case fileformat.SigU256:
		return U256(), nil
	case fileformat.SigAddress:
		return Address(), nil
	case fileformat.SigSigner:
		return Signer(), nil
	case fileformat.SigVector:
		inner, err := MakeType(view, *tok.Inner, resolve)
		if err != nil {
			return TypeRepr{}, err
		}
		return Vector(inner), nil
	case fileformat.SigReference:
		inner, err := MakeType(view, *tok.Inner, resolve)
		if err != nil {
			return TypeRepr{}, err
		}
		return Reference(inner), nil
	case fileformat.SigMutableReference:
		inner, err := MakeType(view, *tok.Inner, resolve)
		if err != nil {
			return TypeRepr{}, err
		}
		return MutableReference(inner), nil
	case fileformat.SigTypeParameter:
		return TypeParameter(tok.TypeParamIndex), nil
	case fileformat.SigDatatype:
		idx, err := resolveHandle(view, tok.DatatypeHandle, resolve)
		if err != nil {
			return TypeRepr{}, err
		}
		return Datatype(idx), nil
	case fileformat.SigDatatypeInstantiation:
		idx, err := resolveHandle(view, tok.DatatypeHandle, resolve)
		if err != nil {
			return TypeRepr{}, err
		}
		args := make([]TypeRepr, len(tok.TypeArgs))
		for i, a := range tok.TypeArgs {
			ta, err := MakeType(view, a, resolve)
			if err != nil {
				return TypeRepr{}, err
			}
			args[i] = ta
		}
		return DatatypeInstantiation(idx, args), nil
	default:
		return TypeRepr{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "unknown signature token kind %d", tok.Kind)
	}
}

func resolveHandle(view ModuleView, handleIdx uint16, resolve DatatypeResolver) (int, error) {
	dh := view.Module.DatatypeHandles[handleIdx]
	runtimeID := view.moduleIDOf(dh.ModuleHandle)
	idx, err := resolve(runtimeID, dh.Name)
	if err != nil {
		return 0, errloc.Wrap(errloc.TypeResolutionFailure, errloc.Location{}, err,
			"datatype %s::%s not yet interned", runtimeID, dh.Name)
	}
	return idx, nil
}
