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

// Package function implements FunctionRegistry: the append-only,
// process-wide table of interned function definitions, with constant
// O(1) resolution by interned index and native-function binding
// performed at intern time.
package function

import (
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/natives"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// Key addresses an interned function by (runtime module id, name).
type Key struct {
	Module moduleid.RuntimeId
	Name   string
}

// Def is one interned function.
type Def struct {
	Key

	ParameterTypes []typerepr.TypeRepr
	ReturnTypes    []typerepr.TypeRepr
	TypeParamConstraints []typerepr.AbilitySet

	ParameterCount int
	LocalsCount    int
	ReturnCount    int

	IsNative bool
	// Native is nil until successfully bound. Under lazy_natives
	// (default, see SPEC_FULL.md's "lazy_natives mode" supplement) a
	// missing native at intern time is tolerated; Native stays nil and
	// the failure is deferred to call time. With lazy_natives disabled,
	// Intern itself fails for an unbound native function.
	Native natives.Fn

	Code       fileformat.Bytecode
	JumpTables []fileformat.JumpTable

	DefIndex uint16 // file-format FunctionDefs index, for diagnostics
}

// Registry is the append-only interned function table. Like
// datatype.Registry, all mutation is serialized by internal/loader's
// exclusive lock; this type has no internal locking of its own.
type Registry struct {
	entries []*Def
	index   map[Key]int
}

func New() *Registry {
	return &Registry{index: make(map[Key]int)}
}

func (r *Registry) Len() int { return len(r.entries) }

// InternInput is everything Intern needs beyond native binding.
type InternInput struct {
	Key
	ParameterTypes       []typerepr.TypeRepr
	ReturnTypes          []typerepr.TypeRepr
	TypeParamConstraints []typerepr.AbilitySet
	ParameterCount       int
	LocalsCount          int
	ReturnCount          int
	IsNative             bool
	Code                 fileformat.Bytecode
	JumpTables           []fileformat.JumpTable
	DefIndex             uint16
}

// Intern appends a new function definition. If in.IsNative, it consults
// reg for a binding; a missing native is only an error when lazyNatives
// is false.
func (r *Registry) Intern(in InternInput, addr moduleid.Address, reg natives.Registry, lazyNatives bool) (int, error) {
	def := &Def{
		Key:                  in.Key,
		ParameterTypes:       in.ParameterTypes,
		ReturnTypes:          in.ReturnTypes,
		TypeParamConstraints: in.TypeParamConstraints,
		ParameterCount:       in.ParameterCount,
		LocalsCount:          in.LocalsCount,
		ReturnCount:          in.ReturnCount,
		IsNative:             in.IsNative,
		Code:                 in.Code,
		JumpTables:           in.JumpTables,
		DefIndex:             in.DefIndex,
	}
	if in.IsNative {
		if reg != nil {
			if fn, ok := reg.Resolve(addr, in.Key.Module.Name, in.Key.Name); ok {
				def.Native = fn
			}
		}
		if def.Native == nil && !lazyNatives {
			return 0, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{},
				"native function %s::%s has no registered implementation", in.Key.Module, in.Key.Name)
		}
	}
	idx := len(r.entries)
	r.entries = append(r.entries, def)
	r.index[in.Key] = idx
	return idx, nil
}

// Resolve looks up the interned index for (runtimeID, name), failing
// with FunctionResolutionFailure on miss.
func (r *Registry) Resolve(runtimeID moduleid.RuntimeId, name string) (int, *Def, error) {
	key := Key{Module: runtimeID, Name: name}
	idx, ok := r.index[key]
	if !ok {
		return 0, nil, errloc.New(errloc.FunctionResolutionFailure, errloc.Location{},
			"function %s::%s not interned", runtimeID, name)
	}
	return idx, r.entries[idx], nil
}

// Get returns the function at idx; out-of-range is an invariant
// violation (caller holds a stale index), so it panics.
func (r *Registry) Get(idx int) *Def {
	if idx < 0 || idx >= len(r.entries) {
		panic("function.Registry.Get: index out of range, caller holds a stale index")
	}
	return r.entries[idx]
}

// ResolveSelfByScan linearly scans entries[from:] for (runtimeID, name),
// newest entry first, returning the first match. loadedcache.Build uses
// it as the fallback for a module's own function handles when the
// (runtime id, name) -> index map has no entry; from is the registry
// high-watermark taken just before that module's functions were
// interned, so only entries added for the module itself are considered.
// See DESIGN.md's Open Question on self_id handling.
func (r *Registry) ResolveSelfByScan(from int, runtimeID moduleid.RuntimeId, name string) (int, bool) {
	for i := len(r.entries) - 1; i >= from; i-- {
		if r.entries[i].Module == runtimeID && r.entries[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// RollbackTo truncates the registry back to snapshot, removing the index
// entries for every key whose slot is dropped.
func (r *Registry) RollbackTo(snapshot int) error {
	for i := len(r.entries) - 1; i >= snapshot; i-- {
		d := r.entries[i]
		if cur, ok := r.index[d.Key]; ok && cur == i {
			delete(r.index, d.Key)
		}
	}
	r.entries = r.entries[:snapshot]
	return nil
}
