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

// Package fileformat defines the minimal compiled-module wire shape the
// loader consumes. Per spec it is treated as bit-exact: the loader must
// answer every index kind it exposes in O(1) after loading, but the
// format itself is an external contract, not something this repository
// redesigns.
package fileformat

// SignatureTokenKind is the kind of one SignatureToken node.
type SignatureTokenKind int

const (
	SigBool SignatureTokenKind = iota
	SigU8
	SigU16
	SigU32
	SigU64
	SigU128
	SigU256
	SigAddress
	SigSigner
	SigVector
	SigReference
	SigMutableReference
	SigTypeParameter
	SigDatatype
	SigDatatypeInstantiation
)

// SignatureToken is one node of a file-format type signature, prior to
// translation into internal/typerepr.TypeRepr.
type SignatureToken struct {
	Kind SignatureTokenKind
	// Inner is used by Vector/Reference/MutableReference.
	Inner *SignatureToken
	// TypeParamIndex is used by SigTypeParameter.
	TypeParamIndex uint16
	// DatatypeHandle indexes Module.DatatypeHandles; used by
	// SigDatatype/SigDatatypeInstantiation.
	DatatypeHandle uint16
	// TypeArgs is used by SigDatatypeInstantiation.
	TypeArgs []SignatureToken
}

// Signature is a pool entry: a list of signature tokens (e.g. a function's
// parameters, or a struct's field types).
type Signature struct {
	Tokens []SignatureToken
}

// ModuleHandle names a module by (address index into AddressIdentifiers,
// identifier index into Identifiers).
type ModuleHandle struct {
	AddressIndex    uint16
	IdentifierIndex uint16
}

// DatatypeHandle unifies struct and enum handles: the file format does
// not distinguish them at the handle level, only at the definition level.
type DatatypeHandle struct {
	ModuleHandle    uint16
	Name            string
	Abilities       uint8 // bitset, see internal/typerepr.AbilitySet
	TypeParameters  []DatatypeTyParameter
}

type DatatypeTyParameter struct {
	Constraints uint8 // abilities required of the instantiating argument
	IsPhantom   bool
}

// FieldHandle points at one field of a datatype definition.
type FieldHandle struct {
	Owner uint16 // index into DatatypeDefs
	Field uint16 // field offset within the owning struct (or a single variant)
}

// VariantHandle points at one variant of an enum definition.
type VariantHandle struct {
	Owner   uint16 // index into DatatypeDefs
	Variant uint16 // variant tag
}

// FunctionHandle names a function by owning module + name + signatures.
type FunctionHandle struct {
	ModuleHandle   uint16
	Name           string
	Parameters     uint16 // index into Signatures
	Return         uint16 // index into Signatures
	TypeParameters []uint8 // ability constraints per type parameter
}

// FunctionInstantiation pairs a FunctionHandle with an instantiation
// signature (a Signature whose tokens are the type arguments).
type FunctionInstantiation struct {
	Handle        uint16
	Instantiation uint16 // index into Signatures
}

// DatatypeDefKind distinguishes struct bodies from enum bodies; the
// file format unifies both under "DatatypeDef".
type DatatypeDefKind int

const (
	DefStruct DatatypeDefKind = iota
	DefEnum
)

type FieldDefinition struct {
	Name     string
	Type     SignatureToken
}

type VariantDefinition struct {
	Name   string
	Fields []FieldDefinition
}

// DatatypeDef is the definition body referenced by a DatatypeHandle.
type DatatypeDef struct {
	Handle uint16 // index into DatatypeHandles
	Kind   DatatypeDefKind
	Fields []FieldDefinition   // DefStruct
	Variants []VariantDefinition // DefEnum
}

// JumpTable supports Move's variant-switch bytecode.
type JumpTable struct {
	// Targets[variant_tag] = code offset.
	Targets []uint16
}

// Bytecode is a deliberately opaque placeholder for a function's
// instruction stream; the interpreter (out of scope) is the only
// consumer that inspects its contents.
type Bytecode struct {
	Raw []byte
}

// FunctionDefinition is the definition body referenced by a
// FunctionHandle.
type FunctionDefinition struct {
	Handle     uint16 // index into FunctionHandles
	IsNative   bool
	Code       Bytecode
	JumpTables []JumpTable
	ParameterCount int
	LocalsCount    int
	ReturnCount    int
}

// Constant is one entry of the constant pool.
type Constant struct {
	Type SignatureToken
	Data []byte
}

// Module is the deserialized, not-yet-verified compiled module. Binary
// decoding from raw bytes into this shape is delegated to the (opaque,
// out of scope) deserializer; this repository only defines and consumes
// the shape.
type Module struct {
	SelfModuleHandle uint16

	AddressIdentifiers []Address16
	Identifiers        []string

	ModuleHandles   []ModuleHandle
	DatatypeHandles []DatatypeHandle
	FunctionHandles []FunctionHandle

	FunctionInstantiations []FunctionInstantiation

	Signatures []Signature
	Constants  []Constant

	DatatypeDefs []DatatypeDef
	FunctionDefs []FunctionDefinition

	FieldHandles   []FieldHandle
	VariantHandles []VariantHandle

	// Dependencies lists the module handles (by index) this module
	// declares as immediate dependencies, in declaration order.
	Dependencies []uint16
}

// Address16 is the file-format representation of a 32-byte address; kept
// distinct from moduleid.Address so the file-format package has no
// dependency on the higher-level id scheme.
type Address16 [32]byte

// SelfHandle returns this module's own ModuleHandle.
func (m *Module) SelfHandle() ModuleHandle {
	return m.ModuleHandles[m.SelfModuleHandle]
}
