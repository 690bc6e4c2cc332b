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

// Package natives defines the native-function registry collaborator:
// an opaque name -> function-pointer map supplied by the embedder. The
// loader only ever calls Resolve; it never registers or invokes natives
// itself (that is the interpreter's job, out of scope per spec.md §1).
package natives

import "github.com/move-lang/moveloader/internal/moduleid"

// Fn is an opaque native function pointer. Its actual signature is owned
// by the interpreter; the loader only stores and forwards it.
type Fn any

// Registry resolves a (address, module name, function name) triple to a
// bound native, if one is registered.
type Registry interface {
	Resolve(addr moduleid.Address, moduleName, functionName string) (Fn, bool)
}

// MapRegistry is a simple in-memory Registry, useful for tests and for
// embedding a statically-known native table.
type MapRegistry struct {
	fns map[key]Fn
}

type key struct {
	addr moduleid.Address
	mod  string
	fn   string
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{fns: make(map[key]Fn)}
}

func (r *MapRegistry) Register(addr moduleid.Address, moduleName, functionName string, f Fn) {
	r.fns[key{addr, moduleName, functionName}] = f
}

func (r *MapRegistry) Resolve(addr moduleid.Address, moduleName, functionName string) (Fn, bool) {
	f, ok := r.fns[key{addr, moduleName, functionName}]
	return f, ok
}
