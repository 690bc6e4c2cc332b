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

// Package verifier defines the bytecode-verifier collaborator from
// spec.md §6: a pure pass/fail oracle with no caching and no side
// effects. The actual verification algorithms are explicitly out of
// scope (spec.md §1); this package only defines the contract the loader
// calls through, plus a permissive default used by tests.
package verifier

import (
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/moduleid"
)

// Config gates verifier features; passed explicitly rather than held in
// a global, per spec.md §9's "expose as a parameter" mandate.
type Config struct {
	MaxBinaryFormatVersion uint32
	LazyNatives            bool
}

// Verifier is the external bytecode verifier collaborator.
type Verifier interface {
	// VerifyModule verifies a module in isolation (no linking).
	VerifyModule(m *fileformat.Module, cfg Config) error

	// LinkVerify verifies m against its already-verified dependencies.
	LinkVerify(m *fileformat.Module, deps []*fileformat.Module) error

	// CyclicDependenciesVerify checks for cycles reachable from m using
	// resolve to look up each dependency's module by handle.
	CyclicDependenciesVerify(m *fileformat.Module, resolve func(moduleid.RuntimeId) (*fileformat.Module, bool)) error

	// VerifyScript verifies a standalone script in isolation, the
	// script-flavored counterpart of VerifyModule (the original's
	// move_bytecode_verifier exposes verify_script separately from
	// verify_module since a script has no self datatype/function defs to
	// check).
	VerifyScript(s *fileformat.Script, cfg Config) error

	// LinkVerifyScript verifies a script's references against its
	// resolved dependency modules, the script-flavored counterpart of
	// LinkVerify.
	LinkVerifyScript(s *fileformat.Script, deps []*fileformat.Module) error
}

// Permissive is a Verifier that always succeeds; it is the default used
// by in-process tests and the CLI's demo mode, where the actual
// verification algorithm is irrelevant to exercising the loader.
type Permissive struct{}

func (Permissive) VerifyModule(*fileformat.Module, Config) error { return nil }
func (Permissive) LinkVerify(*fileformat.Module, []*fileformat.Module) error { return nil }
func (Permissive) CyclicDependenciesVerify(*fileformat.Module, func(moduleid.RuntimeId) (*fileformat.Module, bool)) error {
	return nil
}
func (Permissive) VerifyScript(*fileformat.Script, Config) error { return nil }
func (Permissive) LinkVerifyScript(*fileformat.Script, []*fileformat.Module) error { return nil }
