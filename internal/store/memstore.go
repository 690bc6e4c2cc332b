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
	"context"
	"sync"

	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/moduleid"
)

// MemStore is an in-memory Store, used by tests and by the CLI's
// in-process demo mode.
type MemStore struct {
	mu sync.RWMutex

	bytesByStorage map[moduleid.StorageId][]byte
	relocate       map[relocateKey]moduleid.StorageId
	defining       map[definingKey]moduleid.StorageId
}

type relocateKey struct {
	ctxAddr moduleid.Address
	runtime moduleid.RuntimeId
}

type definingKey struct {
	runtime moduleid.RuntimeId
	name    string
}

func NewMemStore() *MemStore {
	return &MemStore{
		bytesByStorage: map[moduleid.StorageId][]byte{},
		relocate:       map[relocateKey]moduleid.StorageId{},
		defining:       map[definingKey]moduleid.StorageId{},
	}
}

// PutModule registers the bytes for a storage id.
func (s *MemStore) PutModule(storageID moduleid.StorageId, bytes []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesByStorage[storageID] = bytes
}

// PublishModule implements store.Publisher.
func (s *MemStore) PublishModule(ctx context.Context, storageID moduleid.StorageId, bytes []byte) error {
	s.PutModule(storageID, bytes)
	return nil
}

// SetRelocation wires relocate(runtimeID, ctx) = storageID.
func (s *MemStore) SetRelocation(ctx moduleid.LinkContext, runtimeID moduleid.RuntimeId, storageID moduleid.StorageId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relocate[relocateKey{ctx.Address, runtimeID}] = storageID
}

// SetDefiningModule wires defining_module(runtimeID, name) = storageID.
func (s *MemStore) SetDefiningModule(runtimeID moduleid.RuntimeId, name string, storageID moduleid.StorageId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defining[definingKey{runtimeID, name}] = storageID
}

func (s *MemStore) LoadModule(ctx context.Context, storageID moduleid.StorageId) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bytesByStorage[storageID]
	if !ok {
		return nil, errloc.New(errloc.MissingDependency, errloc.AtModule(storageID.String()),
			"no bytes registered for storage id %s", storageID)
	}
	return b, nil
}

func (s *MemStore) Relocate(ctx context.Context, linkCtx moduleid.LinkContext, runtimeID moduleid.RuntimeId) (moduleid.StorageId, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sid, ok := s.relocate[relocateKey{linkCtx.Address, runtimeID}]
	if !ok {
		// Default: identity relocation (storage id == runtime id, no
		// digest pinning) when the test has not configured an override.
		return moduleid.StorageId{ModuleId: runtimeID.ModuleId}, nil
	}
	return sid, nil
}

func (s *MemStore) DefiningModule(ctx context.Context, runtimeID moduleid.RuntimeId, name string) (moduleid.StorageId, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sid, ok := s.defining[definingKey{runtimeID, name}]
	if !ok {
		return moduleid.StorageId{ModuleId: runtimeID.ModuleId}, nil
	}
	return sid, nil
}
