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

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cuelabs.dev/go/oci/ociregistry"
	"cuelabs.dev/go/oci/ociregistry/ociclient"
	digest "github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/moduleid"
)

var specVersioned2 = specs.Versioned{SchemaVersion: 2}

// moduleArtifactType is the media type this loader publishes compiled
// modules under, analogous to the teacher's moduleArtifactType constant
// for CUE module artifacts.
const moduleArtifactType = "application/vnd.move.module.v1+json"

// RegistryStore is a Store backed by an OCI registry: a module's runtime
// address selects a repository, and its storage-id digest selects the
// manifest within that repository, mirroring
// modregistry.Client.GetModule's resolve-manifest-then-fetch-blob
// sequence.
type RegistryStore struct {
	registry ociregistry.Interface
	prefix   string

	// relocations and definingModules hold the link-context and
	// defining-module metadata the registry itself doesn't model; a
	// production deployment would keep these in a small sidecar index
	// published alongside each module's manifest. Kept in memory here to
	// match the scope of this subsystem (the store's relocate/defining
	// semantics are an opaque oracle per spec.md §6, not something this
	// package re-derives from registry contents).
	relocations     map[relocateKey]moduleid.StorageId
	definingModules map[definingKey]moduleid.StorageId
}

// NewRegistryStore dials an OCI registry at registryURL; prefix is
// prepended to every repository name, the way CUE's modregistry.Client
// namespaces module repositories.
func NewRegistryStore(registryURL, prefix string) *RegistryStore {
	r := ociclient.New(registryURL, nil)
	return &RegistryStore{
		registry:        r,
		prefix:          prefix,
		relocations:     map[relocateKey]moduleid.StorageId{},
		definingModules: map[definingKey]moduleid.StorageId{},
	}
}

func (s *RegistryStore) repoName(addr moduleid.Address) string {
	return fmt.Sprintf("%s%x", s.prefix, addr[:])
}

// LoadModule resolves storageID's digest to a manifest in the address's
// repository, then fetches the first layer blob — the serialized module
// bytes.
func (s *RegistryStore) LoadModule(ctx context.Context, storageID moduleid.StorageId) ([]byte, error) {
	loc := errloc.AtModule(storageID.String())
	repo := s.repoName(storageID.Address)
	tag := storageID.Digest.String()
	if tag == "" {
		tag = "latest"
	}
	desc, err := s.registry.ResolveTag(ctx, repo, tag)
	if err != nil {
		return nil, errloc.Wrap(errloc.MissingDependency, loc, err, "resolving module manifest in repo %q", repo)
	}
	if !isModuleManifest(desc) {
		return nil, errloc.New(errloc.CodeDeserializationError, loc,
			"unexpected media type %q for module manifest", desc.MediaType)
	}
	rc, err := s.registry.GetBlob(ctx, repo, desc.Digest)
	if err != nil {
		return nil, errloc.Wrap(errloc.MissingDependency, loc, err, "fetching module blob")
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, errloc.Wrap(errloc.CodeDeserializationError, loc, err, "reading module blob")
	}
	return buf.Bytes(), nil
}

func isModuleManifest(desc ocispec.Descriptor) bool {
	return desc.MediaType == moduleArtifactType || desc.MediaType == ocispec.MediaTypeImageManifest
}

// SetRelocation and SetDefiningModule let the embedder pin the
// link-context and defining-module metadata that the registry's content
// addressing alone cannot express (see the comment on RegistryStore).
func (s *RegistryStore) SetRelocation(ctx moduleid.LinkContext, runtimeID moduleid.RuntimeId, storageID moduleid.StorageId) {
	s.relocations[relocateKey{ctx.Address, runtimeID}] = storageID
}

func (s *RegistryStore) SetDefiningModule(runtimeID moduleid.RuntimeId, name string, storageID moduleid.StorageId) {
	s.definingModules[definingKey{runtimeID, name}] = storageID
}

func (s *RegistryStore) Relocate(ctx context.Context, linkCtx moduleid.LinkContext, runtimeID moduleid.RuntimeId) (moduleid.StorageId, error) {
	if sid, ok := s.relocations[relocateKey{linkCtx.Address, runtimeID}]; ok {
		return sid, nil
	}
	return moduleid.StorageId{ModuleId: runtimeID.ModuleId}, nil
}

func (s *RegistryStore) DefiningModule(ctx context.Context, runtimeID moduleid.RuntimeId, name string) (moduleid.StorageId, error) {
	if sid, ok := s.definingModules[definingKey{runtimeID, name}]; ok {
		return sid, nil
	}
	return moduleid.StorageId{ModuleId: runtimeID.ModuleId}, nil
}

// PublishModule pushes bytes as a single-layer manifest tagged by
// storageID's digest, the minimal analogue of
// modregistry.Client.PutModule's push-layers-then-push-manifest
// sequence (no dependency-layer bookkeeping: that lives in
// internal/loader, one level up, via the relocation/defining-module side
// maps).
func (s *RegistryStore) PublishModule(ctx context.Context, storageID moduleid.StorageId, raw []byte) error {
	repo := s.repoName(storageID.Address)
	desc := ocispec.Descriptor{
		Digest:    storageID.Digest,
		MediaType: moduleArtifactType,
		Size:      int64(len(raw)),
	}
	if _, err := s.registry.PushBlob(ctx, repo, desc, bytes.NewReader(raw)); err != nil {
		return errloc.Wrap(errloc.UnknownInvariantViolation, errloc.AtModule(storageID.String()), err, "pushing module blob")
	}
	manifest := ocispec.Manifest{
		Versioned: specVersioned2,
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    desc,
		Layers:    []ocispec.Descriptor{desc},
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return errloc.Wrap(errloc.UnknownInvariantViolation, errloc.AtModule(storageID.String()), err, "marshaling manifest")
	}
	tag := storageID.Digest.String()
	if _, err := s.registry.PushManifest(ctx, repo, tag, data, ocispec.MediaTypeImageManifest); err != nil {
		return errloc.Wrap(errloc.UnknownInvariantViolation, errloc.AtModule(storageID.String()), err, "pushing manifest")
	}
	return nil
}

// DigestOf is a small helper callers use when publishing a module:
// storage ids are content digests of the serialized bytes, exactly as
// CUE module blobs are addressed in the registry manifest. Exported so
// internal/loader's PublishBundle can compute a StorageId.Digest without
// duplicating the hash choice used by the registry-backed Store.
func DigestOf(b []byte) digest.Digest {
	return digest.FromBytes(b)
}
