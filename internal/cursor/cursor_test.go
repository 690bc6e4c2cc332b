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

package cursor_test

import (
	"testing"

	"github.com/move-lang/moveloader/internal/cursor"
	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/function"
	"github.com/move-lang/moveloader/internal/moduleid"
)

func runtimeID(name string) moduleid.RuntimeId {
	return moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: moduleid.Address{1}, Name: name}}
}

func TestTakeCapturesBothRegistryLengths(t *testing.T) {
	datatypes := datatype.New()
	functions := function.New()

	_, _ = datatypes.Intern(datatype.Shell{Key: datatype.Key{Module: runtimeID("m"), Name: "A"}, Kind: datatype.KindStruct})
	_, _ = functions.Intern(function.InternInput{Key: function.Key{Module: runtimeID("m"), Name: "f"}}, moduleid.Address{}, nil, true)

	snap := cursor.Take(datatypes, functions)
	if snap.DatatypeCount != 1 {
		t.Errorf("DatatypeCount = %d, want 1", snap.DatatypeCount)
	}
	if snap.FunctionCount != 1 {
		t.Errorf("FunctionCount = %d, want 1", snap.FunctionCount)
	}
	if snap.AttemptID.String() == "" {
		t.Errorf("AttemptID should be populated")
	}
}

func TestRollbackTruncatesBothRegistriesTogether(t *testing.T) {
	datatypes := datatype.New()
	functions := function.New()

	_, _ = datatypes.Intern(datatype.Shell{Key: datatype.Key{Module: runtimeID("m"), Name: "Kept"}, Kind: datatype.KindStruct})
	_, _ = functions.Intern(function.InternInput{Key: function.Key{Module: runtimeID("m"), Name: "kept"}}, moduleid.Address{}, nil, true)

	snap := cursor.Take(datatypes, functions)

	_, _ = datatypes.Intern(datatype.Shell{Key: datatype.Key{Module: runtimeID("m"), Name: "Dropped"}, Kind: datatype.KindStruct})
	_, _ = functions.Intern(function.InternInput{Key: function.Key{Module: runtimeID("m"), Name: "dropped"}}, moduleid.Address{}, nil, true)

	if err := cursor.Rollback(datatypes, functions, snap); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if datatypes.Len() != 1 {
		t.Errorf("datatypes.Len() = %d, want 1", datatypes.Len())
	}
	if functions.Len() != 1 {
		t.Errorf("functions.Len() = %d, want 1", functions.Len())
	}
	if _, _, err := datatypes.Resolve(runtimeID("m"), "Dropped"); err == nil {
		t.Errorf("Dropped datatype should no longer resolve after rollback")
	}
	if _, _, err := functions.Resolve(runtimeID("m"), "dropped"); err == nil {
		t.Errorf("dropped function should no longer resolve after rollback")
	}
	if _, _, err := datatypes.Resolve(runtimeID("m"), "Kept"); err != nil {
		t.Errorf("Kept datatype should still resolve after rollback, got %v", err)
	}
}
