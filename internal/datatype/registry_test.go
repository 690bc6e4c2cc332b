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

package datatype_test

import (
	"errors"
	"testing"

	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

func rid(name string) moduleid.RuntimeId {
	return moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: moduleid.Address{1}, Name: name}}
}

func TestInternThenFillFieldsThenResolve(t *testing.T) {
	reg := datatype.New()
	idx, err := reg.Intern(datatype.Shell{
		Key:       datatype.Key{Module: rid("m"), Name: "S"},
		Abilities: typerepr.PRIMITIVES,
		Kind:      datatype.KindStruct,
	})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if err := reg.FillFields(idx, []datatype.FieldDef{{Name: "x", Type: typerepr.U64()}}); err != nil {
		t.Fatalf("FillFields: %v", err)
	}

	gotIdx, def, err := reg.Resolve(rid("m"), "S")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if gotIdx != idx {
		t.Errorf("Resolve index = %d, want %d", gotIdx, idx)
	}
	if len(def.Fields) != 1 || def.Fields[0].Name != "x" {
		t.Errorf("Fields = %+v, want one field named x", def.Fields)
	}
}

func TestResolveMissUnknownTypeResolutionFailure(t *testing.T) {
	reg := datatype.New()
	_, _, err := reg.Resolve(rid("m"), "Missing")
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.TypeResolutionFailure {
		t.Fatalf("expected TypeResolutionFailure, got %v", err)
	}
}

func TestComputeDepthsStructOverVector(t *testing.T) {
	reg := datatype.New()
	idx, err := reg.Intern(datatype.Shell{Key: datatype.Key{Module: rid("m"), Name: "S"}, Kind: datatype.KindStruct})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if err := reg.FillFields(idx, []datatype.FieldDef{{Name: "xs", Type: typerepr.Vector(typerepr.U8())}}); err != nil {
		t.Fatalf("FillFields: %v", err)
	}
	if err := reg.ComputeDepths([]int{idx}); err != nil {
		t.Fatalf("ComputeDepths: %v", err)
	}
	// vector<u8>: 1 (primitive) + 1 (vector) = 2, plus 1 for the struct = 3.
	if got := reg.Get(idx).Depth.Solve(nil); got != 3 {
		t.Errorf("depth = %d, want 3", got)
	}
}

func TestComputeDepthsDetectsFieldCycle(t *testing.T) {
	reg := datatype.New()
	idx, err := reg.Intern(datatype.Shell{Key: datatype.Key{Module: rid("m"), Name: "S"}, Kind: datatype.KindStruct})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	// A field referencing its own datatype index, as if the dependency
	// traverser had failed to reject a self-cycle.
	if err := reg.FillFields(idx, []datatype.FieldDef{{Name: "self", Type: typerepr.Datatype(idx)}}); err != nil {
		t.Fatalf("FillFields: %v", err)
	}
	err = reg.ComputeDepths([]int{idx})
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.UnknownInvariantViolation {
		t.Fatalf("expected UnknownInvariantViolation for a field cycle, got %v", err)
	}
}

func TestRollbackToRemovesOnlyDroppedSlots(t *testing.T) {
	reg := datatype.New()
	idx0, _ := reg.Intern(datatype.Shell{Key: datatype.Key{Module: rid("m"), Name: "A"}, Kind: datatype.KindStruct})
	snapshot := reg.Len()
	_, _ = reg.Intern(datatype.Shell{Key: datatype.Key{Module: rid("m"), Name: "B"}, Kind: datatype.KindStruct})

	if err := reg.RollbackTo(snapshot); err != nil {
		t.Fatalf("RollbackTo: %v", err)
	}

	if _, _, err := reg.Resolve(rid("m"), "A"); err != nil {
		t.Errorf("A should still resolve after rollback, got %v", err)
	}
	if _, _, err := reg.Resolve(rid("m"), "B"); err == nil {
		t.Errorf("B should no longer resolve after rollback")
	}
	if reg.Len() != snapshot {
		t.Errorf("Len() = %d, want %d", reg.Len(), snapshot)
	}
	_ = idx0
}

func TestResolveSelfByScanFindsForwardEntriesOnly(t *testing.T) {
	reg := datatype.New()
	_, _ = reg.Intern(datatype.Shell{Key: datatype.Key{Module: rid("m"), Name: "Before"}, Kind: datatype.KindStruct})
	from := reg.Len()
	idx, _ := reg.Intern(datatype.Shell{Key: datatype.Key{Module: rid("m"), Name: "Self"}, Kind: datatype.KindStruct})

	got, ok := reg.ResolveSelfByScan(from, rid("m"), "Self")
	if !ok || got != idx {
		t.Errorf("ResolveSelfByScan() = (%d, %v), want (%d, true)", got, ok, idx)
	}
	if _, ok := reg.ResolveSelfByScan(from, rid("m"), "Before"); ok {
		t.Errorf("ResolveSelfByScan should not find entries before `from`")
	}
}
