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

package function_test

import (
	"errors"
	"testing"

	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/function"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/natives"
)

func rid(name string) moduleid.RuntimeId {
	return moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: moduleid.Address{1}, Name: name}}
}

func TestInternThenResolve(t *testing.T) {
	reg := function.New()
	idx, err := reg.Intern(function.InternInput{
		Key:            function.Key{Module: rid("m"), Name: "f"},
		ParameterCount: 0,
		ReturnCount:    1,
	}, moduleid.Address{1}, nil, true)
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}

	gotIdx, def, err := reg.Resolve(rid("m"), "f")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if gotIdx != idx {
		t.Errorf("Resolve index = %d, want %d", gotIdx, idx)
	}
	if def.ReturnCount != 1 {
		t.Errorf("ReturnCount = %d, want 1", def.ReturnCount)
	}
	if reg.Get(idx) != def {
		t.Errorf("Get(%d) did not return the same entry as Resolve", idx)
	}
}

func TestResolveMissFunctionResolutionFailure(t *testing.T) {
	reg := function.New()
	_, _, err := reg.Resolve(rid("m"), "missing")
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.FunctionResolutionFailure {
		t.Fatalf("err = %v, want FunctionResolutionFailure", err)
	}
}

func TestNativeLazyModeTolerated(t *testing.T) {
	reg := function.New()
	idx, err := reg.Intern(function.InternInput{
		Key:      function.Key{Module: rid("m"), Name: "n"},
		IsNative: true,
	}, moduleid.Address{1}, natives.NewMapRegistry(), true)
	if err != nil {
		t.Fatalf("Intern with lazy natives should tolerate a missing binding: %v", err)
	}
	if reg.Get(idx).Native != nil {
		t.Errorf("Native should stay nil until bound")
	}
}

func TestNativeStrictModeFailsOnMissingBinding(t *testing.T) {
	reg := function.New()
	_, err := reg.Intern(function.InternInput{
		Key:      function.Key{Module: rid("m"), Name: "n"},
		IsNative: true,
	}, moduleid.Address{1}, natives.NewMapRegistry(), false)
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.UnknownInvariantViolation {
		t.Fatalf("err = %v, want UnknownInvariantViolation for missing native under strict mode", err)
	}
}

func TestNativeBoundFromRegistry(t *testing.T) {
	reg := function.New()
	fns := natives.NewMapRegistry()
	marker := func() {}
	fns.Register(moduleid.Address{1}, "m", "n", marker)

	idx, err := reg.Intern(function.InternInput{
		Key:      function.Key{Module: rid("m"), Name: "n"},
		IsNative: true,
	}, moduleid.Address{1}, fns, false)
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if reg.Get(idx).Native == nil {
		t.Errorf("Native should be bound from the registry")
	}
}

func TestResolveSelfByScan(t *testing.T) {
	reg := function.New()
	from := reg.Len()
	if _, err := reg.Intern(function.InternInput{Key: function.Key{Module: rid("m"), Name: "a"}}, moduleid.Address{1}, nil, true); err != nil {
		t.Fatalf("Intern a: %v", err)
	}
	if _, err := reg.Intern(function.InternInput{Key: function.Key{Module: rid("m"), Name: "b"}}, moduleid.Address{1}, nil, true); err != nil {
		t.Fatalf("Intern b: %v", err)
	}
	idx, ok := reg.ResolveSelfByScan(from, rid("m"), "b")
	if !ok || reg.Get(idx).Name != "b" {
		t.Fatalf("ResolveSelfByScan(%d, m, b) = (%d, %v), want b's slot", from, idx, ok)
	}
	if _, ok := reg.ResolveSelfByScan(from, rid("m"), "missing"); ok {
		t.Errorf("ResolveSelfByScan should miss for an unknown name")
	}
}

func TestRollbackToRemovesIndexEntries(t *testing.T) {
	reg := function.New()
	snap := reg.Len()
	if _, err := reg.Intern(function.InternInput{Key: function.Key{Module: rid("m"), Name: "a"}}, moduleid.Address{1}, nil, true); err != nil {
		t.Fatalf("Intern a: %v", err)
	}
	if _, err := reg.Intern(function.InternInput{Key: function.Key{Module: rid("m"), Name: "b"}}, moduleid.Address{1}, nil, true); err != nil {
		t.Fatalf("Intern b: %v", err)
	}
	if err := reg.RollbackTo(snap); err != nil {
		t.Fatalf("RollbackTo: %v", err)
	}
	if reg.Len() != snap {
		t.Fatalf("Len = %d, want %d after rollback", reg.Len(), snap)
	}
	if _, _, err := reg.Resolve(rid("m"), "a"); err == nil {
		t.Errorf("Resolve(a) should fail after rollback")
	}
	if _, _, err := reg.Resolve(rid("m"), "b"); err == nil {
		t.Errorf("Resolve(b) should fail after rollback")
	}
}
