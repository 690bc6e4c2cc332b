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

package fileformat

// Script is the deserialized, not-yet-verified compiled script: a single
// entry-point function body with no self module identity, sharing its
// handle/identifier pools with Module but referencing other modules only
// as declared Dependencies, never as a self handle.
type Script struct {
	AddressIdentifiers []Address16
	Identifiers        []string

	ModuleHandles   []ModuleHandle
	DatatypeHandles []DatatypeHandle
	FunctionHandles []FunctionHandle

	FunctionInstantiations []FunctionInstantiation

	Signatures []Signature
	Constants  []Constant

	// Parameters indexes Signatures for the entry function's parameter
	// list; TypeParameters is its ability-constraint list, one per type
	// parameter, same encoding as FunctionHandle.TypeParameters.
	Parameters     uint16
	TypeParameters []uint8

	Code       Bytecode
	JumpTables []JumpTable

	// Dependencies lists the module handles (by index) this script
	// declares as immediate dependencies, in declaration order.
	Dependencies []uint16
}

// AsModuleShell adapts s's handle/identifier pools into a *Module with no
// definitions of its own, for reuse by code that only needs to translate
// a signature token or a module handle (e.g. typerepr.MakeType's
// ModuleView) and has no reason to know it is looking at a script.
func (s *Script) AsModuleShell() *Module {
	return &Module{
		AddressIdentifiers: s.AddressIdentifiers,
		Identifiers:        s.Identifiers,
		ModuleHandles:      s.ModuleHandles,
		DatatypeHandles:    s.DatatypeHandles,
		Signatures:         s.Signatures,
	}
}
