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

// Package store defines the Store collaborator from spec.md §6: an
// opaque byte-blob fetch plus the link-context oracle, and everything in
// the loader treats it as external. This package provides the interface
// plus two implementations: an in-memory one for tests, and a
// production one backed by an OCI registry.
package store

import (
	"context"

	"github.com/move-lang/moveloader/internal/moduleid"
)

// Store is the external storage/link-context collaborator. The loader
// never mutates it; all calls are read-only from the loader's
// perspective.
type Store interface {
	// LoadModule returns the serialized bytes for storageID. Per
	// spec.md §4.4, a failure here is recoverable only at the root of a
	// load attempt; a failure resolving a non-root dependency's bytes is
	// an invariant violation.
	LoadModule(ctx context.Context, storageID moduleid.StorageId) ([]byte, error)

	// Relocate is the only legitimate bridge between the runtime and
	// storage id namespaces.
	Relocate(ctx context.Context, linkCtx moduleid.LinkContext, runtimeID moduleid.RuntimeId) (moduleid.StorageId, error)

	// DefiningModule returns the module that originally introduced the
	// named type, preserved across republishes.
	DefiningModule(ctx context.Context, runtimeID moduleid.RuntimeId, name string) (moduleid.StorageId, error)
}

// Publisher is the write-side counterpart a Store may additionally
// implement; internal/loader.PublishBundle type-asserts for it rather
// than adding publish methods to the read-only Store contract every
// collaborator must satisfy.
type Publisher interface {
	// PublishModule stores bytes under storageID, making it visible to
	// subsequent LoadModule calls for the same id.
	PublishModule(ctx context.Context, storageID moduleid.StorageId, bytes []byte) error
}

// Relocator is the companion write-side interface for pinning a runtime
// id's relocation under a given link context, the metadata the content-
// addressed Store alone cannot express (see the comment on
// RegistryStore.relocations).
type Relocator interface {
	SetRelocation(ctx moduleid.LinkContext, runtimeID moduleid.RuntimeId, storageID moduleid.StorageId)
}
