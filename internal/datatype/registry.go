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

// Package datatype implements DatatypeRegistry: the append-only,
// process-wide interned table of struct/enum definitions keyed by
// (runtime module id, name), plus the recursive-depth formula computed
// for each entry once its field types are known.
package datatype

import (
	"github.com/move-lang/moveloader/internal/depth"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// Key is the (runtime module id, name) pair every interned datatype is
// addressed by.
type Key struct {
	Module moduleid.RuntimeId
	Name   string
}

// FieldDef is one field of a struct, or one field of an enum variant.
type FieldDef struct {
	Name string
	Type typerepr.TypeRepr
}

// VariantDef is one enum variant.
type VariantDef struct {
	Name   string
	Tag    uint16
	Fields []FieldDef
}

// DefKind distinguishes struct bodies from enum bodies.
type DefKind int

const (
	KindStruct DefKind = iota
	KindEnum
)

// Def is an interned datatype entry.
type Def struct {
	Key
	Abilities     typerepr.AbilitySet
	TyParamCount  int
	PhantomFlags  []bool
	Constraints   []typerepr.AbilitySet

	Kind     DefKind
	DefIndex uint16 // the file-format DatatypeDefs index, for diagnostics only

	// Struct body (Kind == KindStruct).
	Fields []FieldDef
	// Enum body (Kind == KindEnum).
	Variants []VariantDef

	// Depth is filled in by ComputeDepths after Fields/Variants are set.
	Depth      depth.Formula
	depthKnown bool
}

// typerepr.DatatypeInfo adapter.
type infoView struct{ d *Def }

func (v infoView) DeclaredAbilities() typerepr.AbilitySet { return v.d.Abilities }
func (v infoView) PhantomFlags() []bool                   { return v.d.PhantomFlags }

// Shell is the pre-field-resolution shape passed to Intern: abilities and
// type parameter metadata are known up front, but Fields/Variants are
// filled in later via FillFields once every sibling datatype in the same
// batch has been interned.
type Shell struct {
	Key
	Abilities    typerepr.AbilitySet
	PhantomFlags []bool
	Constraints  []typerepr.AbilitySet
	Kind         DefKind
	DefIndex     uint16
	// VariantNames/VariantTags are known at shell time even though field
	// types are filled later (a variant's existence doesn't depend on
	// sibling types).
	VariantNames []string
	VariantTags  []uint16
}

// Registry is the append-only interned table. It is not safe for
// concurrent use on its own: internal/loader serializes all mutation
// under its exclusive lock, matching the policy in spec.md §5.
type Registry struct {
	entries []*Def
	index   map[Key]int
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{index: make(map[Key]int)}
}

// Len returns the current high-watermark, used by TransactionalCursor's
// snapshot.
func (r *Registry) Len() int { return len(r.entries) }

// Intern appends a new entry from shell, with empty Fields/Variants (to
// be filled by FillFields). It fails only on an internal invariant
// violation; the caller guarantees no concurrent conflicting writes for
// the same key. If the key already maps to an index, the last write wins
// for lookup purposes (Resolve returns the newest index) — the registry
// never overwrites or removes the older slot, per the Open Question
// decision in DESIGN.md: conflicting writes are caller error, not loader
// policy, so the old entry is simply left unreferenced rather than
// reconciled.
func (r *Registry) Intern(shell Shell) (int, error) {
	def := &Def{
		Key:          shell.Key,
		Abilities:    shell.Abilities,
		TyParamCount: len(shell.PhantomFlags),
		PhantomFlags: shell.PhantomFlags,
		Constraints:  shell.Constraints,
		Kind:         shell.Kind,
		DefIndex:     shell.DefIndex,
	}
	if shell.Kind == KindEnum {
		def.Variants = make([]VariantDef, len(shell.VariantNames))
		for i, name := range shell.VariantNames {
			def.Variants[i] = VariantDef{Name: name, Tag: shell.VariantTags[i]}
		}
	}
	idx := len(r.entries)
	r.entries = append(r.entries, def)
	r.index[shell.Key] = idx
	return idx, nil
}

// FillFields sets the Fields of a struct entry previously created by
// Intern.
func (r *Registry) FillFields(idx int, fields []FieldDef) error {
	if idx < 0 || idx >= len(r.entries) {
		return errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "datatype index %d out of range", idx)
	}
	d := r.entries[idx]
	if d.Kind != KindStruct {
		return errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "FillFields called on non-struct datatype %s", d.Key.Name)
	}
	d.Fields = fields
	return nil
}

// FillVariantFields sets the fields of variant `variant` of an enum
// entry previously created by Intern.
func (r *Registry) FillVariantFields(idx int, variant int, fields []FieldDef) error {
	if idx < 0 || idx >= len(r.entries) {
		return errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "datatype index %d out of range", idx)
	}
	d := r.entries[idx]
	if d.Kind != KindEnum {
		return errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "FillVariantFields called on non-enum datatype %s", d.Key.Name)
	}
	if variant < 0 || variant >= len(d.Variants) {
		return errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "variant %d out of range for %s", variant, d.Key.Name)
	}
	d.Variants[variant].Fields = fields
	return nil
}

// Resolve looks up the interned index and definition for (runtimeID,
// name), failing with TypeResolutionFailure on miss.
func (r *Registry) Resolve(runtimeID moduleid.RuntimeId, name string) (int, *Def, error) {
	key := Key{Module: runtimeID, Name: name}
	idx, ok := r.index[key]
	if !ok {
		return 0, nil, errloc.New(errloc.TypeResolutionFailure, errloc.Location{},
			"datatype %s::%s not interned", runtimeID, name)
	}
	return idx, r.entries[idx], nil
}

// ResolveFunc adapts Resolve to the typerepr.DatatypeResolver shape.
func (r *Registry) ResolveFunc() func(moduleid.RuntimeId, string) (int, error) {
	return func(runtimeID moduleid.RuntimeId, name string) (int, error) {
		idx, _, err := r.Resolve(runtimeID, name)
		return idx, err
	}
}

// Get returns the definition at idx. It must be total for indices the
// caller previously observed; an out-of-range index is a hard invariant
// violation (a programming error in the loader, never a user-triggerable
// failure), so it panics rather than returning an error.
func (r *Registry) Get(idx int) *Def {
	if idx < 0 || idx >= len(r.entries) {
		panic("datatype.Registry.Get: index out of range, caller holds a stale index")
	}
	return r.entries[idx]
}

// Info adapts Get to typerepr.Abilities' lookup signature.
func (r *Registry) Info(idx int) typerepr.DatatypeInfo {
	return infoView{r.Get(idx)}
}

// DebugName returns a printable (module, name) for diagnostics, per the
// supplemented "struct name indexing for error messages" feature in
// SPEC_FULL.md — not used on any hot path.
func (r *Registry) DebugName(idx int) string {
	d := r.Get(idx)
	return d.Key.Module.String() + "::" + d.Key.Name
}

// ResolveSelfByScan is datatype.Registry's analogue of
// function.Registry.ResolveSelfByScan: a newest-first scan of
// entries[from:], used as the fallback for a module's own datatype
// handles.
func (r *Registry) ResolveSelfByScan(from int, runtimeID moduleid.RuntimeId, name string) (int, bool) {
	for i := len(r.entries) - 1; i >= from; i-- {
		if r.entries[i].Key.Module == runtimeID && r.entries[i].Key.Name == name {
			return i, true
		}
	}
	return 0, false
}

// RollbackTo truncates the registry back to snapshot, removing the index
// entries for every key whose slot is being dropped. It asserts that
// every removed slot's key was indeed still pointing at that slot before
// removing it, the key/slot agreement TransactionalCursor.rollback is
// documented to check.
func (r *Registry) RollbackTo(snapshot int) error {
	for i := len(r.entries) - 1; i >= snapshot; i-- {
		d := r.entries[i]
		cur, ok := r.index[d.Key]
		if ok && cur != i {
			return errloc.New(errloc.UnknownInvariantViolation, errloc.Location{},
				"rollback: key %s::%s points at slot %d, not dropped slot %d", d.Key.Module, d.Key.Name, cur, i)
		}
		if ok {
			delete(r.index, d.Key)
		}
	}
	r.entries = r.entries[:snapshot]
	return nil
}
