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

package layout_test

import (
	"errors"
	"testing"

	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/layout"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

func runtimeID(name string) moduleid.RuntimeId {
	return moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: moduleid.Address{9}, Name: name}}
}

func deepVector(depth int) typerepr.TypeRepr {
	ty := typerepr.U8()
	for i := 0; i < depth; i++ {
		ty = typerepr.Vector(ty)
	}
	return ty
}

func TestToTagRejectsOversizedType(t *testing.T) {
	reg := datatype.New()
	_, _, err := layout.ToTag(deepVector(layout.MaxTypeToLayoutNodes+1), reg, layout.RuntimeFlavor, nil)
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.TooManyTypeNodes {
		t.Fatalf("expected TooManyTypeNodes, got %v", err)
	}
}

func TestToTagAcceptsTypeAtTheBoundary(t *testing.T) {
	reg := datatype.New()
	// MaxTypeToLayoutNodes-1 vector wrappers plus the u8 leaf is exactly
	// the node budget; it must not be rejected.
	_, nodes, err := layout.ToTag(deepVector(layout.MaxTypeToLayoutNodes-1), reg, layout.RuntimeFlavor, nil)
	if err != nil {
		t.Fatalf("ToTag at the boundary: %v", err)
	}
	if nodes != layout.MaxTypeToLayoutNodes {
		t.Errorf("nodes = %d, want %d", nodes, layout.MaxTypeToLayoutNodes)
	}
}

func TestToTagRejectsReferenceAndTypeParameter(t *testing.T) {
	reg := datatype.New()
	if _, _, err := layout.ToTag(typerepr.Reference(typerepr.U8()), reg, layout.RuntimeFlavor, nil); err == nil {
		t.Error("expected an error tagging a reference type")
	}
	if _, _, err := layout.ToTag(typerepr.TypeParameter(0), reg, layout.RuntimeFlavor, nil); err == nil {
		t.Error("expected an error tagging a bare type parameter")
	}
}

func TestToTagRuntimeFlavorCarriesModuleAndTypeName(t *testing.T) {
	reg := datatype.New()
	idx, err := reg.Intern(datatype.Shell{Key: datatype.Key{Module: runtimeID("coin"), Name: "Balance"}, Kind: datatype.KindStruct})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}

	tag, _, err := layout.ToTag(typerepr.Datatype(idx), reg, layout.RuntimeFlavor, nil)
	if err != nil {
		t.Fatalf("ToTag: %v", err)
	}
	if tag.Struct == nil || tag.Struct.Module != "coin" || tag.Struct.Name != "Balance" || tag.Struct.Address != (moduleid.Address{9}) {
		t.Errorf("tag.Struct = %+v, want module coin, name Balance, address {9}", tag.Struct)
	}
}

func TestToLayoutRejectsDeepNesting(t *testing.T) {
	reg := datatype.New()
	_, _, err := layout.ToLayout(deepVector(layout.ValueDepthMax+2), reg)
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.VmMaxValueDepthReached {
		t.Fatalf("expected VmMaxValueDepthReached, got %v", err)
	}
}

func TestToLayoutStructSubstitutesGenericFields(t *testing.T) {
	reg := datatype.New()
	idx, err := reg.Intern(datatype.Shell{Key: datatype.Key{Module: runtimeID("m"), Name: "Box"}, Kind: datatype.KindStruct, PhantomFlags: []bool{false}})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if err := reg.FillFields(idx, []datatype.FieldDef{{Name: "x", Type: typerepr.TypeParameter(0)}}); err != nil {
		t.Fatalf("FillFields: %v", err)
	}

	ty := typerepr.DatatypeInstantiation(idx, []typerepr.TypeRepr{typerepr.U64()})
	l, _, err := layout.ToLayout(ty, reg)
	if err != nil {
		t.Fatalf("ToLayout: %v", err)
	}
	if len(l.Fields) != 1 || l.Fields[0].Prim == nil || *l.Fields[0].Prim != layout.PU64 {
		t.Errorf("layout = %+v, want one u64 field", l)
	}
}

func TestToAnnotatedLayoutNamesFieldsAndUsesDefiningFlavor(t *testing.T) {
	reg := datatype.New()
	idx, err := reg.Intern(datatype.Shell{Key: datatype.Key{Module: runtimeID("m"), Name: "Pair"}, Kind: datatype.KindStruct})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if err := reg.FillFields(idx, []datatype.FieldDef{{Name: "a", Type: typerepr.Bool()}}); err != nil {
		t.Fatalf("FillFields: %v", err)
	}

	definingAddr := moduleid.Address{42}
	defining := func(runtimeID moduleid.RuntimeId, name string) (moduleid.ModuleId, error) {
		return moduleid.ModuleId{Address: definingAddr, Name: "defining_mod"}, nil
	}

	al, _, err := layout.ToAnnotatedLayout(typerepr.Datatype(idx), reg, defining)
	if err != nil {
		t.Fatalf("ToAnnotatedLayout: %v", err)
	}
	if len(al.Fields) != 1 || al.Fields[0].Name != "a" {
		t.Fatalf("Fields = %+v, want one field named a", al.Fields)
	}
	if al.Struct == nil || al.Struct.Address != definingAddr || al.Struct.Module != "defining_mod" || al.Struct.Name != "Pair" {
		t.Errorf("Struct = %+v, want defining-flavor module identity with struct name Pair", al.Struct)
	}
}
