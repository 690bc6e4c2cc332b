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

package moduleid_test

import (
	"testing"

	digest "github.com/opencontainers/go-digest"

	"github.com/move-lang/moveloader/internal/moduleid"
)

func TestStorageIdStringOmitsEmptyDigest(t *testing.T) {
	sid := moduleid.StorageId{ModuleId: moduleid.ModuleId{Address: moduleid.Address{1}, Name: "m"}}
	if got, want := sid.String(), sid.ModuleId.String(); got != want {
		t.Errorf("String() = %q, want %q (no digest suffix)", got, want)
	}
}

func TestStorageIdStringIncludesDigest(t *testing.T) {
	d := digest.FromString("payload")
	sid := moduleid.StorageId{ModuleId: moduleid.ModuleId{Address: moduleid.Address{1}, Name: "m"}, Digest: d}
	got := sid.String()
	want := sid.ModuleId.String() + "@" + d.String()
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestContextKeyIgnoresTrace(t *testing.T) {
	addr := moduleid.Address{2}
	rid := moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: addr, Name: "m"}}

	ctx1 := moduleid.NewLinkContext(addr)
	ctx2 := moduleid.NewLinkContext(addr)
	if ctx1.Trace == ctx2.Trace {
		t.Fatal("two NewLinkContext calls should not collide on Trace")
	}

	if moduleid.Key(ctx1, rid) != moduleid.Key(ctx2, rid) {
		t.Errorf("ContextKey should collide across distinct Trace values for the same address")
	}
}

func TestContextKeyDistinguishesAddresses(t *testing.T) {
	rid := moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: moduleid.Address{2}, Name: "m"}}
	ctx1 := moduleid.LinkContext{Address: moduleid.Address{1}}
	ctx2 := moduleid.LinkContext{Address: moduleid.Address{2}}

	if moduleid.Key(ctx1, rid) == moduleid.Key(ctx2, rid) {
		t.Errorf("ContextKey should differ across distinct context addresses")
	}
}

func TestModuleIdStringFormat(t *testing.T) {
	mid := moduleid.ModuleId{Address: moduleid.Address{0xab}, Name: "coin"}
	const want = "ab00000000000000000000000000000000000000000000000000000000000000::coin"
	if got := mid.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
