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

package typerepr_test

import (
	"errors"
	"testing"

	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/typerepr"
)

type fakeDatatypeInfo struct {
	abilities typerepr.AbilitySet
	phantoms  []bool
}

func (f fakeDatatypeInfo) DeclaredAbilities() typerepr.AbilitySet { return f.abilities }
func (f fakeDatatypeInfo) PhantomFlags() []bool                  { return f.phantoms }

func TestAbilitiesOfPrimitives(t *testing.T) {
	lookup := func(int) typerepr.DatatypeInfo { return nil }
	cases := []struct {
		ty   typerepr.TypeRepr
		want typerepr.AbilitySet
	}{
		{typerepr.U64(), typerepr.PRIMITIVES},
		{typerepr.Bool(), typerepr.PRIMITIVES},
		{typerepr.Signer(), typerepr.SIGNER},
		{typerepr.Reference(typerepr.U8()), typerepr.REFERENCES},
		{typerepr.MutableReference(typerepr.U8()), typerepr.REFERENCES},
	}
	for _, tc := range cases {
		got, err := typerepr.Abilities(tc.ty, lookup)
		if err != nil {
			t.Fatalf("Abilities(%v): %v", tc.ty, err)
		}
		if got != tc.want {
			t.Errorf("Abilities(%v) = %v, want %v", tc.ty, got, tc.want)
		}
	}
}

func TestAbilitiesOfTypeParameterIsAnError(t *testing.T) {
	_, err := typerepr.Abilities(typerepr.TypeParameter(0), func(int) typerepr.DatatypeInfo { return nil })
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.UnknownInvariantViolation {
		t.Fatalf("expected UnknownInvariantViolation, got %v", err)
	}
}

func TestPolymorphicAbilitiesVectorIntersectsElementAbilities(t *testing.T) {
	lookup := func(int) typerepr.DatatypeInfo { return nil }

	// vector<u64> keeps all of PRIMITIVES since u64's abilities are a
	// superset of VECTOR's declared set.
	got, err := typerepr.Abilities(typerepr.Vector(typerepr.U64()), lookup)
	if err != nil {
		t.Fatalf("Abilities: %v", err)
	}
	if got != typerepr.VECTOR {
		t.Errorf("Abilities(vector<u64>) = %v, want %v", got, typerepr.VECTOR)
	}

	// vector<&u8> drops Store/Key since references only have Copy/Drop.
	got, err = typerepr.Abilities(typerepr.Vector(typerepr.Reference(typerepr.U8())), lookup)
	if err != nil {
		t.Fatalf("Abilities: %v", err)
	}
	if got != typerepr.REFERENCES {
		t.Errorf("Abilities(vector<&u8>) = %v, want %v", got, typerepr.REFERENCES)
	}
}

func TestPolymorphicAbilitiesPhantomParamsDoNotConstrain(t *testing.T) {
	// A datatype declared with Key+Store, one phantom type parameter: the
	// container keeps its full declared set regardless of the phantom
	// argument's own abilities.
	info := fakeDatatypeInfo{
		abilities: typerepr.AbilitySet(typerepr.Key | typerepr.Store),
		phantoms:  []bool{true},
	}
	lookup := func(int) typerepr.DatatypeInfo { return info }

	ty := typerepr.DatatypeInstantiation(0, []typerepr.TypeRepr{typerepr.Reference(typerepr.U8())})
	got, err := typerepr.Abilities(ty, lookup)
	if err != nil {
		t.Fatalf("Abilities: %v", err)
	}
	want := typerepr.AbilitySet(typerepr.Key | typerepr.Store)
	if got != want {
		t.Errorf("Abilities() = %v, want %v (phantom argument must not constrain the container)", got, want)
	}
}

func TestPolymorphicAbilitiesNonPhantomParamConstrains(t *testing.T) {
	info := fakeDatatypeInfo{
		abilities: typerepr.AbilitySet(typerepr.Key | typerepr.Store),
		phantoms:  []bool{false},
	}
	lookup := func(int) typerepr.DatatypeInfo { return info }

	ty := typerepr.DatatypeInstantiation(0, []typerepr.TypeRepr{typerepr.Reference(typerepr.U8())})
	got, err := typerepr.Abilities(ty, lookup)
	if err != nil {
		t.Fatalf("Abilities: %v", err)
	}
	if got != 0 {
		t.Errorf("Abilities() = %v, want 0 (Key|Store intersected with REFERENCES is empty)", got)
	}
}
