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

package compiledcache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/store"
	"github.com/move-lang/moveloader/internal/verifier"
)

func storageID(name string) moduleid.StorageId {
	return moduleid.StorageId{ModuleId: moduleid.ModuleId{Address: moduleid.Address{1}, Name: name}}
}

func putModule(t *testing.T, st *store.MemStore, sid moduleid.StorageId, mod *fileformat.Module) {
	t.Helper()
	raw, err := compiledcache.Serialize(mod)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	st.PutModule(sid, raw)
}

func TestInsertThenGetReturnsCached(t *testing.T) {
	st := store.NewMemStore()
	sid := storageID("m")
	putModule(t, st, sid, &fileformat.Module{})

	c := compiledcache.New()
	cm, err := c.Insert(context.Background(), st, verifier.Permissive{}, verifier.Config{}, compiledcache.BinaryConfig{}, sid, false)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if cm.StorageID != sid {
		t.Errorf("StorageID = %v, want %v", cm.StorageID, sid)
	}

	cm2, ok := c.Get(sid)
	if !ok || cm2 != cm {
		t.Errorf("Get after Insert = (%v, %v), want the same pointer back", cm2, ok)
	}

	// A second Insert for the same storage id must not re-fetch or
	// replace the cached entry.
	cm3, err := c.Insert(context.Background(), st, verifier.Permissive{}, verifier.Config{}, compiledcache.BinaryConfig{}, sid, false)
	if err != nil {
		t.Fatalf("second Insert: %v", err)
	}
	if cm3 != cm {
		t.Errorf("second Insert returned a different pointer than the cached one")
	}
}

func TestInsertRootFetchFailureSurfacesAsMissingDependency(t *testing.T) {
	st := store.NewMemStore()
	sid := storageID("missing")

	c := compiledcache.New()
	_, err := c.Insert(context.Background(), st, verifier.Permissive{}, verifier.Config{}, compiledcache.BinaryConfig{}, sid, true)
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.MissingDependency {
		t.Fatalf("err = %v, want MissingDependency for an allowed root fetch failure", err)
	}
}

func TestInsertNonRootFetchFailureIsInvariantViolation(t *testing.T) {
	st := store.NewMemStore()
	sid := storageID("missing")

	c := compiledcache.New()
	_, err := c.Insert(context.Background(), st, verifier.Permissive{}, verifier.Config{}, compiledcache.BinaryConfig{}, sid, false)
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.UnknownInvariantViolation {
		t.Fatalf("err = %v, want UnknownInvariantViolation for a non-root fetch failure", err)
	}
}

type failingVerifier struct{ verifier.Permissive }

func (failingVerifier) VerifyModule(*fileformat.Module, verifier.Config) error {
	return errors.New("boom")
}

func TestInsertVerifierFailureWrapsAsBytecodeVerifierFailure(t *testing.T) {
	st := store.NewMemStore()
	sid := storageID("m")
	putModule(t, st, sid, &fileformat.Module{})

	c := compiledcache.New()
	_, err := c.Insert(context.Background(), st, failingVerifier{}, verifier.Config{}, compiledcache.BinaryConfig{}, sid, false)
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.BytecodeVerifierFailure {
		t.Fatalf("err = %v, want BytecodeVerifierFailure", err)
	}
	if _, ok := c.Get(sid); ok {
		t.Errorf("a failed Insert must not leave a cached entry behind")
	}
}

func TestCheckNativesPresenceRejectsNonEmptyNativeBody(t *testing.T) {
	mod := &fileformat.Module{
		FunctionDefs: []fileformat.FunctionDefinition{
			{Handle: 0, IsNative: true, Code: fileformat.Bytecode{Raw: []byte{1}}},
		},
	}
	if err := compiledcache.CheckNativesPresence(mod); err == nil {
		t.Errorf("CheckNativesPresence should reject a native with a non-empty code unit")
	}
}

func TestCheckNativesPresenceAllowsEmptyNativeBody(t *testing.T) {
	mod := &fileformat.Module{
		FunctionDefs: []fileformat.FunctionDefinition{
			{Handle: 0, IsNative: true},
			{Handle: 1, IsNative: false, Code: fileformat.Bytecode{Raw: []byte{1, 2, 3}}},
		},
	}
	if err := compiledcache.CheckNativesPresence(mod); err != nil {
		t.Errorf("CheckNativesPresence = %v, want nil", err)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	mod := &fileformat.Module{
		Identifiers: []string{"m", "S"},
		DatatypeDefs: []fileformat.DatatypeDef{
			{Handle: 0, Kind: fileformat.DefStruct, Fields: []fileformat.FieldDefinition{{Name: "x"}}},
		},
	}
	raw, err := compiledcache.Serialize(mod)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := compiledcache.Deserialize(raw, compiledcache.BinaryConfig{})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(got.Identifiers) != 2 || got.Identifiers[1] != "S" {
		t.Errorf("round trip lost Identifiers: %+v", got.Identifiers)
	}
	if len(got.DatatypeDefs) != 1 || got.DatatypeDefs[0].Fields[0].Name != "x" {
		t.Errorf("round trip lost DatatypeDefs: %+v", got.DatatypeDefs)
	}
}
