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

// Package moduleid defines the two distinct identifier namespaces the
// loader bridges: runtime ids (how code refers to a module) and storage
// ids (where the bytes actually live), plus the per-transaction link
// context that connects them.
package moduleid

import (
	"fmt"

	"github.com/google/uuid"
	digest "github.com/opencontainers/go-digest"
)

// Address is a 32-byte Move account address.
type Address [32]byte

func (a Address) String() string {
	return fmt.Sprintf("%x", a[:])
}

// ModuleId is a (address, name) pair. It is a value type: every cache
// entry that depends on relocation keys by (LinkContext, ModuleId) rather
// than by pointer identity.
type ModuleId struct {
	Address Address
	Name    string
}

func (m ModuleId) String() string {
	return fmt.Sprintf("%s::%s", m.Address, m.Name)
}

// RuntimeId is the identifier code uses to refer to a module. It is a
// distinct named type over ModuleId so the two namespaces can never be
// silently interchanged by the Go type checker.
type RuntimeId struct{ ModuleId }

// StorageId is the identifier under which a module's bytes are actually
// stored in the backing store. Content-addressed by digest, mirroring
// the teacher's registry-by-digest module storage.
type StorageId struct {
	ModuleId
	Digest digest.Digest
}

func (s StorageId) String() string {
	if s.Digest == "" {
		return s.ModuleId.String()
	}
	return fmt.Sprintf("%s@%s", s.ModuleId.String(), s.Digest)
}

// LinkContext is the per-transaction address-valued key that
// disambiguates which concrete storage module a runtime reference
// resolves to. Trace is an opaque correlation id (not used for equality
// or as a map key component) carried for diagnostics, the way the
// teacher's registry client tags outbound requests.
type LinkContext struct {
	Address Address
	Trace   uuid.UUID
}

// NewLinkContext builds a LinkContext for the given address, stamping a
// fresh correlation id.
func NewLinkContext(addr Address) LinkContext {
	return LinkContext{Address: addr, Trace: uuid.New()}
}

func (c LinkContext) String() string {
	return fmt.Sprintf("ctx(%x)", c.Address[:])
}

// ContextKey is the map key shape every link-context-scoped cache uses:
// (ctx address, runtime id). Trace is deliberately excluded from the key
// so two LinkContext values over the same address collide on purpose.
type ContextKey struct {
	CtxAddress Address
	Runtime    RuntimeId
}

// Key builds the ContextKey for (ctx, runtimeID).
func Key(ctx LinkContext, runtimeID RuntimeId) ContextKey {
	return ContextKey{CtxAddress: ctx.Address, Runtime: runtimeID}
}
