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

package layout

import (
	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// DefiningLookup resolves (runtime module id, name) to the defining
// module identity (the module that originally introduced the type),
// supplied by internal/loader from the store collaborator.
type DefiningLookup func(runtimeID moduleid.RuntimeId, name string) (moduleid.ModuleId, error)

func primKindOf(k typerepr.Kind) (PrimKind, bool) {
	switch k {
	case typerepr.KBool:
		return PBool, true
	case typerepr.KU8:
		return PU8, true
	case typerepr.KU16:
		return PU16, true
	case typerepr.KU32:
		return PU32, true
	case typerepr.KU64:
		return PU64, true
	case typerepr.KU128:
		return PU128, true
	case typerepr.KU256:
		return PU256, true
	case typerepr.KAddress:
		return PAddress, true
	case typerepr.KSigner:
		return PSigner, true
	default:
		return 0, false
	}
}

// identityOf resolves the owning module's (address, name) for the
// datatype at idx under flavor: its own runtime module identity, or
// (under DefiningFlavor) the module that originally introduced it.
func identityOf(reg *datatype.Registry, idx int, flavor Flavor, defining DefiningLookup) (moduleid.Address, string, error) {
	d := reg.Get(idx)
	if flavor == RuntimeFlavor {
		return d.Key.Module.Address, d.Key.Module.Name, nil
	}
	mid, err := defining(d.Key.Module, d.Key.Name)
	if err != nil {
		return moduleid.Address{}, "", err
	}
	return mid.Address, mid.Name, nil
}

// walker carries the shared node-count budget across one ToTag / ToLayout
// / ToAnnotatedLayout call.
type walker struct {
	reg      *datatype.Registry
	flavor   Flavor
	defining DefiningLookup
	nodes    int
}

func (w *walker) bump() error {
	w.nodes++
	if w.nodes > MaxTypeToLayoutNodes {
		return errloc.New(errloc.TooManyTypeNodes, errloc.Location{},
			"layout/tag walk exceeded %d nodes", MaxTypeToLayoutNodes)
	}
	return nil
}

// ToTag computes a TypeTag for t under flavor. References, mutable
// references, and bare type parameters are invalid inputs (spec.md §4.9)
// and error immediately.
func ToTag(t typerepr.TypeRepr, reg *datatype.Registry, flavor Flavor, defining DefiningLookup) (TypeTag, int, error) {
	w := &walker{reg: reg, flavor: flavor, defining: defining}
	tag, err := w.tag(t)
	return tag, w.nodes, err
}

func (w *walker) tag(t typerepr.TypeRepr) (TypeTag, error) {
	if err := w.bump(); err != nil {
		return TypeTag{}, err
	}
	if pk, ok := primKindOf(t.Kind); ok {
		return TypeTag{Prim: &pk}, nil
	}
	switch t.Kind {
	case typerepr.KVector:
		inner, err := w.tag(*t.Inner)
		if err != nil {
			return TypeTag{}, err
		}
		return TypeTag{Vector: &inner}, nil
	case typerepr.KReference, typerepr.KMutableReference:
		return TypeTag{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "cannot tag a reference type")
	case typerepr.KTypeParameter:
		return TypeTag{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "cannot tag a bare type parameter")
	case typerepr.KDatatype, typerepr.KDatatypeInstantiation:
		moduleAddr, moduleName, err := identityOf(w.reg, t.DatatypeIndex, w.flavor, w.defining)
		if err != nil {
			return TypeTag{}, err
		}
		d := w.reg.Get(t.DatatypeIndex)
		var params []TypeTag
		for _, arg := range t.TypeArgs {
			pt, err := w.tag(arg)
			if err != nil {
				return TypeTag{}, err
			}
			params = append(params, pt)
		}
		return TypeTag{Struct: &StructTag{Address: moduleAddr, Module: moduleName, Name: d.Key.Name, TypeParams: params}}, nil
	default:
		return TypeTag{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "unknown type kind in tag walk")
	}
}

// ToLayout computes the runtime layout (field names erased) for t.
func ToLayout(t typerepr.TypeRepr, reg *datatype.Registry) (RuntimeLayout, int, error) {
	w := &walker{reg: reg}
	l, err := w.layout(t, 0)
	return l, w.nodes, err
}

func (w *walker) layout(t typerepr.TypeRepr, depthSoFar int) (RuntimeLayout, error) {
	if depthSoFar > ValueDepthMax {
		return RuntimeLayout{}, errloc.New(errloc.VmMaxValueDepthReached, errloc.Location{},
			"layout depth exceeded %d", ValueDepthMax)
	}
	if err := w.bump(); err != nil {
		return RuntimeLayout{}, err
	}
	if pk, ok := primKindOf(t.Kind); ok {
		return RuntimeLayout{Prim: &pk}, nil
	}
	switch t.Kind {
	case typerepr.KVector:
		inner, err := w.layout(*t.Inner, depthSoFar+1)
		if err != nil {
			return RuntimeLayout{}, err
		}
		return RuntimeLayout{Vector: &inner}, nil
	case typerepr.KReference, typerepr.KMutableReference:
		return RuntimeLayout{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "cannot lay out a reference type")
	case typerepr.KTypeParameter:
		return RuntimeLayout{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "cannot lay out a bare type parameter")
	case typerepr.KDatatype, typerepr.KDatatypeInstantiation:
		d := w.reg.Get(t.DatatypeIndex)
		switch d.Kind {
		case datatype.KindStruct:
			fields := make([]RuntimeLayout, len(d.Fields))
			for i, f := range d.Fields {
				ft := substField(f.Type, t.TypeArgs)
				fl, err := w.layout(ft, depthSoFar+1)
				if err != nil {
					return RuntimeLayout{}, err
				}
				fields[i] = fl
			}
			return RuntimeLayout{Fields: fields}, nil
		case datatype.KindEnum:
			variants := make([][]RuntimeLayout, len(d.Variants))
			for vi, v := range d.Variants {
				fields := make([]RuntimeLayout, len(v.Fields))
				for i, f := range v.Fields {
					ft := substField(f.Type, t.TypeArgs)
					fl, err := w.layout(ft, depthSoFar+1)
					if err != nil {
						return RuntimeLayout{}, err
					}
					fields[i] = fl
				}
				variants[vi] = fields
			}
			return RuntimeLayout{Variants: variants}, nil
		}
	}
	return RuntimeLayout{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "unknown type kind in layout walk")
}

func substField(fieldType typerepr.TypeRepr, args []typerepr.TypeRepr) typerepr.TypeRepr {
	if len(args) == 0 {
		return fieldType
	}
	return typerepr.SubstUnchecked(fieldType, args)
}

// ToAnnotatedLayout computes the fully-annotated layout: field names,
// variant names (keyed by (variant-name, variant-tag) per spec.md
// §4.9), and a defining struct tag for every datatype node.
func ToAnnotatedLayout(t typerepr.TypeRepr, reg *datatype.Registry, defining DefiningLookup) (AnnotatedLayout, int, error) {
	w := &walker{reg: reg, flavor: DefiningFlavor, defining: defining}
	l, err := w.annotated(t, 0)
	return l, w.nodes, err
}

func (w *walker) annotated(t typerepr.TypeRepr, depthSoFar int) (AnnotatedLayout, error) {
	if depthSoFar > ValueDepthMax {
		return AnnotatedLayout{}, errloc.New(errloc.VmMaxValueDepthReached, errloc.Location{},
			"annotated layout depth exceeded %d", ValueDepthMax)
	}
	if err := w.bump(); err != nil {
		return AnnotatedLayout{}, err
	}
	if pk, ok := primKindOf(t.Kind); ok {
		return AnnotatedLayout{Prim: &pk}, nil
	}
	switch t.Kind {
	case typerepr.KVector:
		inner, err := w.annotated(*t.Inner, depthSoFar+1)
		if err != nil {
			return AnnotatedLayout{}, err
		}
		return AnnotatedLayout{Vector: &inner}, nil
	case typerepr.KReference, typerepr.KMutableReference:
		return AnnotatedLayout{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "cannot lay out a reference type")
	case typerepr.KTypeParameter:
		return AnnotatedLayout{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "cannot lay out a bare type parameter")
	case typerepr.KDatatype, typerepr.KDatatypeInstantiation:
		tag, err := w.tag(t)
		if err != nil {
			return AnnotatedLayout{}, err
		}
		d := w.reg.Get(t.DatatypeIndex)
		switch d.Kind {
		case datatype.KindStruct:
			fields := make([]AnnotatedField, len(d.Fields))
			for i, f := range d.Fields {
				ft := substField(f.Type, t.TypeArgs)
				fl, err := w.annotated(ft, depthSoFar+1)
				if err != nil {
					return AnnotatedLayout{}, err
				}
				fields[i] = AnnotatedField{Name: f.Name, Layout: fl}
			}
			return AnnotatedLayout{Struct: tag.Struct, Fields: fields}, nil
		case datatype.KindEnum:
			variants := make([]AnnotatedVariant, len(d.Variants))
			for vi, v := range d.Variants {
				fields := make([]AnnotatedField, len(v.Fields))
				for i, f := range v.Fields {
					ft := substField(f.Type, t.TypeArgs)
					fl, err := w.annotated(ft, depthSoFar+1)
					if err != nil {
						return AnnotatedLayout{}, err
					}
					fields[i] = AnnotatedField{Name: f.Name, Layout: fl}
				}
				variants[vi] = AnnotatedVariant{Name: v.Name, Tag: int(v.Tag), Fields: fields}
			}
			return AnnotatedLayout{Struct: tag.Struct, Variants: variants}, nil
		}
	}
	return AnnotatedLayout{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "unknown type kind in annotated layout walk")
}
