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

package loader

import (
	"context"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/store"
	"github.com/move-lang/moveloader/internal/traverse"
)

// versionTracker records the last-published semver version per runtime
// id, guarded by its own mutex since PublishBundle's store writes happen
// outside the ModuleCache exclusive lock (the store, unlike the
// registries, is safe for concurrent publish of distinct modules).
type versionTracker struct {
	mu       sync.Mutex
	versions map[moduleid.RuntimeId]string
}

func newVersionTracker() *versionTracker {
	return &versionTracker{versions: map[moduleid.RuntimeId]string{}}
}

// checkAndRecord returns an error if version does not strictly supersede
// the previously published version for rid, else records it.
func (vt *versionTracker) checkAndRecord(rid moduleid.RuntimeId, version string) error {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	if prev, ok := vt.versions[rid]; ok {
		if !semver.IsValid(version) || !semver.IsValid(prev) {
			return errloc.New(errloc.UnknownInvariantViolation, errloc.AtModule(rid.String()),
				"republish of %s requires valid semver versions, got %q and %q", rid, prev, version)
		}
		if semver.Compare(version, prev) <= 0 {
			return errloc.New(errloc.UnknownInvariantViolation, errloc.AtModule(rid.String()),
				"republish of %s at version %s does not supersede the current %s", rid, version, prev)
		}
	}
	vt.versions[rid] = version
	return nil
}

// PublishInput is one module of a publish_bundle call: its runtime
// identity, the compiled bytes to store, and a semver version used only
// to order same-address republishes (spec.md's defining-module identity
// itself never changes on republish).
type PublishInput struct {
	RuntimeID moduleid.RuntimeId
	Version   string
	Bytes     []byte
}

// PublishBundle implements spec.md §4.8's publish_bundle: it verifies
// that every module in mods would be loadable -- individually,
// cross-bundle, and against whatever is already published -- without
// committing any of it to the loaded cache (traverse.VerifyForPublication,
// grounded in original_source's verify_module_bundle_for_publication),
// then stores every module's bytes (requiring the Store also implement
// store.Publisher) and pins each one's relocation under linkCtx
// (requiring store.Relocator), enforcing that a republish under an
// already-seen runtime id carries a strictly newer semver version. The
// published modules are not interned into the datatype/function
// registries or LoadedModuleCache here; that happens later, lazily, the
// first time ResolverFor or LoadFunction is asked to resolve one of them.
func (l *Loader) PublishBundle(ctx context.Context, linkCtx moduleid.LinkContext, mods []PublishInput) error {
	pub, ok := l.cfg.Store.(store.Publisher)
	if !ok {
		return errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "configured store does not support publishing")
	}
	reloc, ok := l.cfg.Store.(store.Relocator)
	if !ok {
		return errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "configured store does not support relocation pinning")
	}

	decoded := make([]*fileformat.Module, len(mods))
	for i, m := range mods {
		mod, err := compiledcache.Deserialize(m.Bytes, l.cfg.BinaryCfg)
		if err != nil {
			return errloc.Wrap(errloc.CodeDeserializationError, errloc.AtModule(m.RuntimeID.String()), err, "deserializing module")
		}
		decoded[i] = mod
	}

	if err := traverse.VerifyForPublication(ctx, l.cfg.Store, l.cfg.Verifier, l.cfg.VerifyCfg, l.cfg.BinaryCfg, linkCtx, decoded); err != nil {
		return err
	}

	for _, m := range mods {
		if err := l.versions.checkAndRecord(m.RuntimeID, m.Version); err != nil {
			return err
		}
		digest := store.DigestOf(m.Bytes)
		storageID := moduleid.StorageId{ModuleId: m.RuntimeID.ModuleId, Digest: digest}
		if err := pub.PublishModule(ctx, storageID, m.Bytes); err != nil {
			return errloc.Wrap(errloc.UnknownInvariantViolation, errloc.AtModule(m.RuntimeID.String()), err, "publishing module bytes")
		}
		reloc.SetRelocation(linkCtx, m.RuntimeID, storageID)
	}

	return nil
}
