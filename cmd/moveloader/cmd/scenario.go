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

// Package cmd implements the moveloader CLI subcommands. It reads a
// small JSON scenario describing one or more modules (structs, enums,
// functions) and drives the loader end to end, for manual exercising of
// the pipeline without a real Move compiler front end (explicitly out of
// scope per spec.md §1).
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// FieldSpec is one field of a struct or enum variant.
type FieldSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// StructSpec describes one struct datatype.
type StructSpec struct {
	Name       string      `json:"name"`
	Abilities  []string    `json:"abilities"`
	TypeParams []TyParam   `json:"typeParams"`
	Fields     []FieldSpec `json:"fields"`
}

// VariantSpec is one enum variant.
type VariantSpec struct {
	Name   string      `json:"name"`
	Fields []FieldSpec `json:"fields"`
}

// EnumSpec describes one enum datatype.
type EnumSpec struct {
	Name       string        `json:"name"`
	Abilities  []string      `json:"abilities"`
	TypeParams []TyParam     `json:"typeParams"`
	Variants   []VariantSpec `json:"variants"`
}

// TyParam describes one generic type parameter's constraints.
type TyParam struct {
	Constraints []string `json:"constraints"`
	Phantom     bool     `json:"phantom"`
}

// FunctionSpec describes one function definition.
type FunctionSpec struct {
	Name       string    `json:"name"`
	TypeParams []TyParam `json:"typeParams"`
	Parameters []string  `json:"parameters"`
	Return     []string  `json:"return"`
	Native     bool      `json:"native"`
}

// ModuleSpec describes one module to publish.
type ModuleSpec struct {
	Address string         `json:"address"`
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Structs []StructSpec   `json:"structs"`
	Enums   []EnumSpec     `json:"enums"`
	Funcs   []FunctionSpec `json:"functions"`
}

// Scenario is the top-level CLI input document.
type Scenario struct {
	Modules       []ModuleSpec    `json:"modules"`
	RunFunction   *RunFunctionReq `json:"runFunction,omitempty"`
	InspectLayout *TypeTagReq     `json:"inspectLayout,omitempty"`
}

// RunFunctionReq names the function to call after publishing.
type RunFunctionReq struct {
	Module  string   `json:"module"` // "addr::name"
	Name    string   `json:"name"`
	TyArgs  []string `json:"typeArgs"`
	Context string   `json:"context"` // link context address, defaults to the first module's address
}

// TypeTagReq is a type string to resolve into a layout, e.g.
// "0x1::m::S" or "vector<u64>".
type TypeTagReq struct {
	Type    string `json:"type"`
	Context string `json:"context"`
}

// LoadScenario parses a scenario document from path.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario JSON: %w", err)
	}
	return &sc, nil
}

// parseAddress parses a "0x..."-or-bare hex string into a 32-byte
// address, left-padding with zeros.
func parseAddress(s string) (moduleid.Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	var addr moduleid.Address
	n := len(s) / 2
	if n > len(addr) {
		return addr, fmt.Errorf("address %q is longer than 32 bytes", s)
	}
	for i := 0; i < n; i++ {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return addr, fmt.Errorf("invalid hex in address %q: %w", s, err)
		}
		addr[len(addr)-n+i] = b
	}
	return addr, nil
}

// parseModuleRef splits "addr::module" into its parts.
func parseModuleRef(s string) (moduleid.Address, string, error) {
	parts := strings.SplitN(s, "::", 2)
	if len(parts) != 2 {
		return moduleid.Address{}, "", fmt.Errorf("expected addr::module, got %q", s)
	}
	addr, err := parseAddress(parts[0])
	if err != nil {
		return moduleid.Address{}, "", err
	}
	return addr, parts[1], nil
}

// parseAbilities maps ability names to a file-format ability bitset.
func parseAbilities(names []string) uint8 {
	var set typerepr.AbilitySet
	for _, n := range names {
		switch strings.ToLower(n) {
		case "copy":
			set = set.Union(typerepr.AbilitySet(typerepr.Copy))
		case "drop":
			set = set.Union(typerepr.AbilitySet(typerepr.Drop))
		case "store":
			set = set.Union(typerepr.AbilitySet(typerepr.Store))
		case "key":
			set = set.Union(typerepr.AbilitySet(typerepr.Key))
		}
	}
	return uint8(set)
}

func toFileformatTyParams(tps []TyParam) []fileformat.DatatypeTyParameter {
	out := make([]fileformat.DatatypeTyParameter, len(tps))
	for i, tp := range tps {
		out[i] = fileformat.DatatypeTyParameter{
			Constraints: parseAbilities(tp.Constraints),
			IsPhantom:   tp.Phantom,
		}
	}
	return out
}

// splitTopLevelArgs splits s by commas that are not nested inside
// matching <...>, for parsing generic type argument lists.
func splitTopLevelArgs(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

// datatypeHandleResolver returns the interned handle index for a foreign
// or local (addr, module, name) datatype reference, implemented by
// moduleBuilder.resolveDatatypeHandle.
type datatypeHandleResolver func(addr moduleid.Address, module, name string) (uint16, error)

// parseTypeToken parses a type string into a fileformat.SignatureToken.
// Datatype references ("addr::module::Name" or "...Name<args>") are
// resolved to a handle index via resolve, which also registers a module
// dependency when the reference is foreign.
func parseTypeToken(s string, resolve datatypeHandleResolver) (fileformat.SignatureToken, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "bool":
		return fileformat.SignatureToken{Kind: fileformat.SigBool}, nil
	case "u8":
		return fileformat.SignatureToken{Kind: fileformat.SigU8}, nil
	case "u16":
		return fileformat.SignatureToken{Kind: fileformat.SigU16}, nil
	case "u32":
		return fileformat.SignatureToken{Kind: fileformat.SigU32}, nil
	case "u64":
		return fileformat.SignatureToken{Kind: fileformat.SigU64}, nil
	case "u128":
		return fileformat.SignatureToken{Kind: fileformat.SigU128}, nil
	case "u256":
		return fileformat.SignatureToken{Kind: fileformat.SigU256}, nil
	case "address":
		return fileformat.SignatureToken{Kind: fileformat.SigAddress}, nil
	case "signer":
		return fileformat.SignatureToken{Kind: fileformat.SigSigner}, nil
	}
	if strings.HasPrefix(s, "&mut ") {
		inner, err := parseTypeToken(s[len("&mut "):], resolve)
		if err != nil {
			return fileformat.SignatureToken{}, err
		}
		return fileformat.SignatureToken{Kind: fileformat.SigMutableReference, Inner: &inner}, nil
	}
	if strings.HasPrefix(s, "&") {
		inner, err := parseTypeToken(s[1:], resolve)
		if err != nil {
			return fileformat.SignatureToken{}, err
		}
		return fileformat.SignatureToken{Kind: fileformat.SigReference, Inner: &inner}, nil
	}
	if strings.HasPrefix(s, "vector<") && strings.HasSuffix(s, ">") {
		inner, err := parseTypeToken(s[len("vector<"):len(s)-1], resolve)
		if err != nil {
			return fileformat.SignatureToken{}, err
		}
		return fileformat.SignatureToken{Kind: fileformat.SigVector, Inner: &inner}, nil
	}
	if strings.HasPrefix(s, "$") {
		var idx uint16
		if _, err := fmt.Sscanf(s[1:], "%d", &idx); err != nil {
			return fileformat.SignatureToken{}, fmt.Errorf("invalid type parameter %q", s)
		}
		return fileformat.SignatureToken{Kind: fileformat.SigTypeParameter, TypeParamIndex: idx}, nil
	}

	// Datatype reference: addr::module::Name[<args>].
	base := s
	var argsStr string
	if i := strings.Index(s, "<"); i >= 0 && strings.HasSuffix(s, ">") {
		base = s[:i]
		argsStr = s[i+1 : len(s)-1]
	}
	parts := strings.Split(base, "::")
	if len(parts) != 3 {
		return fileformat.SignatureToken{}, fmt.Errorf("invalid type reference %q, expected addr::module::Name", base)
	}
	addr, err := parseAddress(parts[0])
	if err != nil {
		return fileformat.SignatureToken{}, err
	}
	handleIdx, err := resolve(addr, parts[1], parts[2])
	if err != nil {
		return fileformat.SignatureToken{}, err
	}

	tok := fileformat.SignatureToken{Kind: fileformat.SigDatatype, DatatypeHandle: handleIdx}
	if argsStr != "" {
		tok.Kind = fileformat.SigDatatypeInstantiation
		for _, a := range splitTopLevelArgs(argsStr) {
			at, err := parseTypeToken(a, resolve)
			if err != nil {
				return fileformat.SignatureToken{}, err
			}
			tok.TypeArgs = append(tok.TypeArgs, at)
		}
	}
	return tok, nil
}
