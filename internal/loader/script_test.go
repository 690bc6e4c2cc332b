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

package loader_test

import (
	"context"
	"errors"
	"testing"

	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/loader"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/store"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// buildScript assembles a script whose single entry-function parameter
// is a u64 and whose only declared dependency is depName.
func buildScript(depName string) *fileformat.Script {
	var addr fileformat.Address16
	copy(addr[:], testAddr[:])

	return &fileformat.Script{
		AddressIdentifiers: []fileformat.Address16{addr},
		Identifiers:        []string{depName},
		ModuleHandles:      []fileformat.ModuleHandle{{AddressIndex: 0, IdentifierIndex: 0}},
		Dependencies:       []uint16{0},
		Signatures:         []fileformat.Signature{{Tokens: []fileformat.SignatureToken{{Kind: fileformat.SigU64}}}},
		Parameters:         0,
	}
}

func TestLoadScriptResolvesDependencyAndSubstitutesParameters(t *testing.T) {
	st := store.NewMemStore()
	l := newLoader(st)
	linkCtx := moduleid.LinkContext{Address: testAddr}

	in := publishInput(t, testModule{name: "M"}, "v1.0.0")
	if err := l.PublishBundle(context.Background(), linkCtx, []loader.PublishInput{in}); err != nil {
		t.Fatalf("PublishBundle: %v", err)
	}

	raw, err := compiledcache.SerializeScript(buildScript("M"))
	if err != nil {
		t.Fatalf("SerializeScript: %v", err)
	}

	res, err := l.LoadScript(context.Background(), linkCtx, raw, nil)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	if len(res.Parameters) != 1 || res.Parameters[0] != typerepr.U64() {
		t.Errorf("Parameters = %v, want [u64]", res.Parameters)
	}
	if len(res.Dependencies) != 1 || res.Dependencies[0].RuntimeID != runtimeID("M") {
		t.Errorf("Dependencies = %v, want [M]", res.Dependencies)
	}
}

func TestLoadScriptRejectsMissingDependency(t *testing.T) {
	st := store.NewMemStore()
	l := newLoader(st)
	linkCtx := moduleid.LinkContext{Address: testAddr}

	raw, err := compiledcache.SerializeScript(buildScript("Missing"))
	if err != nil {
		t.Fatalf("SerializeScript: %v", err)
	}

	_, err = l.LoadScript(context.Background(), linkCtx, raw, nil)
	if err == nil {
		t.Fatal("expected a missing dependency error, got nil")
	}
	var e *errloc.Error
	if !errors.As(err, &e) || e.Kind != errloc.MissingDependency {
		t.Fatalf("expected MissingDependency, got %v", err)
	}
}
