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

// Package typerepr is the flat, interned representation of Move types
// used throughout the loader: file-format signature tokens are translated
// into TypeRepr once, with datatype references resolved to stable
// interned indices rather than carried as names.
package typerepr

import (
	"fmt"

	"github.com/move-lang/moveloader/internal/errloc"
)

// MaxTypeInstantiationNodes bounds the total node count of any
// substitution result: the sum of the argument list's nodes plus the
// nodes already present in the instantiation being substituted into.
const MaxTypeInstantiationNodes = 128

// Kind discriminates the TypeRepr variants.
type Kind int

const (
	KBool Kind = iota
	KU8
	KU16
	KU32
	KU64
	KU128
	KU256
	KAddress
	KSigner
	KVector
	KReference
	KMutableReference
	KTypeParameter
	KDatatype
	KDatatypeInstantiation
)

// TypeRepr is the flat Move type representation. Only the fields
// relevant to Kind are populated; it is an immutable value once
// constructed (Vector/Reference/MutableReference own their Inner by
// value, so sharing is safe).
type TypeRepr struct {
	Kind Kind

	Inner *TypeRepr // Vector, Reference, MutableReference

	TypeParamIndex uint16 // TypeParameter

	DatatypeIndex int        // Datatype, DatatypeInstantiation
	TypeArgs      []TypeRepr // DatatypeInstantiation
}

func Bool() TypeRepr    { return TypeRepr{Kind: KBool} }
func U8() TypeRepr      { return TypeRepr{Kind: KU8} }
func U16() TypeRepr     { return TypeRepr{Kind: KU16} }
func U32() TypeRepr     { return TypeRepr{Kind: KU32} }
func U64() TypeRepr     { return TypeRepr{Kind: KU64} }
func U128() TypeRepr    { return TypeRepr{Kind: KU128} }
func U256() TypeRepr    { return TypeRepr{Kind: KU256} }
func Address() TypeRepr { return TypeRepr{Kind: KAddress} }
func Signer() TypeRepr  { return TypeRepr{Kind: KSigner} }

func Vector(inner TypeRepr) TypeRepr {
	return TypeRepr{Kind: KVector, Inner: &inner}
}

func Reference(inner TypeRepr) TypeRepr {
	return TypeRepr{Kind: KReference, Inner: &inner}
}

func MutableReference(inner TypeRepr) TypeRepr {
	return TypeRepr{Kind: KMutableReference, Inner: &inner}
}

func TypeParameter(i uint16) TypeRepr {
	return TypeRepr{Kind: KTypeParameter, TypeParamIndex: i}
}

func Datatype(idx int) TypeRepr {
	return TypeRepr{Kind: KDatatype, DatatypeIndex: idx}
}

func DatatypeInstantiation(idx int, args []TypeRepr) TypeRepr {
	return TypeRepr{Kind: KDatatypeInstantiation, DatatypeIndex: idx, TypeArgs: args}
}

func (t TypeRepr) IsPrimitive() bool {
	switch t.Kind {
	case KBool, KU8, KU16, KU32, KU64, KU128, KU256, KAddress:
		return true
	default:
		return false
	}
}

// NodeCount returns the number of TypeRepr nodes in the tree, used to
// enforce MaxTypeInstantiationNodes and MaxTypeToLayoutNodes.
func (t TypeRepr) NodeCount() int {
	switch t.Kind {
	case KVector, KReference, KMutableReference:
		return 1 + t.Inner.NodeCount()
	case KDatatypeInstantiation:
		n := 1
		for _, a := range t.TypeArgs {
			n += a.NodeCount()
		}
		return n
	default:
		return 1
	}
}

func (t TypeRepr) String() string {
	switch t.Kind {
	case KBool:
		return "bool"
	case KU8:
		return "u8"
	case KU16:
		return "u16"
	case KU32:
		return "u32"
	case KU64:
		return "u64"
	case KU128:
		return "u128"
	case KU256:
		return "u256"
	case KAddress:
		return "address"
	case KSigner:
		return "signer"
	case KVector:
		return fmt.Sprintf("vector<%s>", t.Inner)
	case KReference:
		return fmt.Sprintf("&%s", t.Inner)
	case KMutableReference:
		return fmt.Sprintf("&mut %s", t.Inner)
	case KTypeParameter:
		return fmt.Sprintf("T%d", t.TypeParamIndex)
	case KDatatype:
		return fmt.Sprintf("datatype#%d", t.DatatypeIndex)
	case KDatatypeInstantiation:
		return fmt.Sprintf("datatype#%d<%v>", t.DatatypeIndex, t.TypeArgs)
	default:
		return "?"
	}
}

// DatatypeInfo is the minimal view of an interned datatype that
// typerepr needs, supplied by internal/datatype to avoid an import
// cycle (datatype depends on typerepr, not the reverse).
type DatatypeInfo interface {
	DeclaredAbilities() AbilitySet
	PhantomFlags() []bool
}

// Abilities implements spec.md §4.1's ability table. lookup resolves a
// Datatype/DatatypeInstantiation's interned index to its declared
// abilities and phantom flags.
func Abilities(t TypeRepr, lookup func(idx int) DatatypeInfo) (AbilitySet, error) {
	switch t.Kind {
	case KBool, KU8, KU16, KU32, KU64, KU128, KU256, KAddress:
		return PRIMITIVES, nil
	case KReference, KMutableReference:
		return REFERENCES, nil
	case KSigner:
		return SIGNER, nil
	case KVector:
		inner, err := Abilities(*t.Inner, lookup)
		if err != nil {
			return 0, err
		}
		return PolymorphicAbilities(VECTOR, []bool{false}, []AbilitySet{inner}), nil
	case KDatatype:
		info := lookup(t.DatatypeIndex)
		return PolymorphicAbilities(info.DeclaredAbilities(), nil, nil), nil
	case KDatatypeInstantiation:
		info := lookup(t.DatatypeIndex)
		argAbilities := make([]AbilitySet, len(t.TypeArgs))
		for i, arg := range t.TypeArgs {
			a, err := Abilities(arg, lookup)
			if err != nil {
				return 0, err
			}
			argAbilities[i] = a
		}
		return PolymorphicAbilities(info.DeclaredAbilities(), info.PhantomFlags(), argAbilities), nil
	case KTypeParameter:
		return 0, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{},
			"abilities() called on a bare type parameter; caller must substitute first")
	default:
		return 0, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "unknown type kind")
	}
}
