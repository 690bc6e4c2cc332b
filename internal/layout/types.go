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

// Package layout is the Layout/Tag engine: it walks a TypeRepr to
// produce type tags (in two flavors) and value layouts (runtime and
// fully-annotated), enforcing the node-count and depth caps that defeat
// pathological types.
package layout

import "github.com/move-lang/moveloader/internal/moduleid"

// MaxTypeToLayoutNodes and ValueDepthMax are the hard limits from
// spec.md §4.9/§5.
const (
	MaxTypeToLayoutNodes = 256
	ValueDepthMax        = 128
)

// Flavor selects which identity a struct/enum tag embeds.
type Flavor int

const (
	// RuntimeFlavor uses the datatype's current runtime module id.
	RuntimeFlavor Flavor = iota
	// DefiningFlavor uses the module that originally introduced the
	// type, stable across republishes.
	DefiningFlavor
)

// PrimKind enumerates the tag/layout leaf kinds, mirroring
// typerepr.Kind's primitive variants without importing typerepr's
// datatype-index-bearing variants (tags/layouts never carry raw indices,
// only resolved identity).
type PrimKind int

const (
	PBool PrimKind = iota
	PU8
	PU16
	PU32
	PU64
	PU128
	PU256
	PAddress
	PSigner
)

// TypeTag is the external, interned-index-free type identity: address +
// module + name + type parameters for datatypes, or a bare primitive /
// vector kind otherwise.
type TypeTag struct {
	Prim     *PrimKind
	Vector   *TypeTag
	Struct   *StructTag
}

// StructTag identifies a struct or enum instantiation by its (flavor-
// selected) module identity.
type StructTag struct {
	Address    moduleid.Address
	Module     string
	Name       string
	TypeParams []TypeTag
}

// RuntimeLayout is the value-shape layout used by the interpreter: field
// names are erased.
type RuntimeLayout struct {
	Prim     *PrimKind
	Vector   *RuntimeLayout
	Fields   []RuntimeLayout   // struct
	Variants [][]RuntimeLayout // enum: variant tag -> field layouts
}

// AnnotatedField pairs a field name with its annotated layout.
type AnnotatedField struct {
	Name   string
	Layout AnnotatedLayout
}

// AnnotatedVariant pairs a variant's (name, tag) with its fields.
type AnnotatedVariant struct {
	Name   string
	Tag    int
	Fields []AnnotatedField
}

// AnnotatedLayout is like RuntimeLayout but carries field names, variant
// names, and the defining struct tag for every datatype node.
type AnnotatedLayout struct {
	Prim     *PrimKind
	Vector   *AnnotatedLayout
	Struct   *StructTag
	Fields   []AnnotatedField
	Variants []AnnotatedVariant
}
