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

package cmd

import (
	"fmt"

	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/fileformat"
	"github.com/move-lang/moveloader/internal/loader"
	"github.com/move-lang/moveloader/internal/moduleid"
)

// datatypeInfo is the abilities/type-parameter shape of one struct or
// enum, gathered once across every module in a scenario so a
// moduleBuilder can fill in a correct DatatypeHandle for a dependency it
// did not itself define.
type datatypeInfo struct {
	abilities  uint8
	typeParams []fileformat.DatatypeTyParameter
}

type datatypeKey struct {
	addr moduleid.Address
	mod  string
	name string
}

// buildCatalog indexes every struct and enum declared across the
// scenario's modules by (address, module, name), so foreign datatype
// references can be resolved to a correctly-shaped handle without
// requiring the referencing module to repeat the target's declaration.
func buildCatalog(sc *Scenario) (map[datatypeKey]datatypeInfo, error) {
	catalog := map[datatypeKey]datatypeInfo{}
	for _, m := range sc.Modules {
		addr, err := parseAddress(m.Address)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Name, err)
		}
		for _, st := range m.Structs {
			catalog[datatypeKey{addr, m.Name, st.Name}] = datatypeInfo{
				abilities:  parseAbilities(st.Abilities),
				typeParams: toFileformatTyParams(st.TypeParams),
			}
		}
		for _, en := range m.Enums {
			catalog[datatypeKey{addr, m.Name, en.Name}] = datatypeInfo{
				abilities:  parseAbilities(en.Abilities),
				typeParams: toFileformatTyParams(en.TypeParams),
			}
		}
	}
	return catalog, nil
}

// moduleBuilder assembles one fileformat.Module from a ModuleSpec: it
// interns the module's own identifier/address/signature pools and
// resolves every datatype reference it encounters (local or foreign)
// against a scenario-wide catalog, recording a dependency the first time
// it interns a handle into a different module.
type moduleBuilder struct {
	addr moduleid.Address
	name string

	catalog map[datatypeKey]datatypeInfo

	addrIdents []fileformat.Address16
	addrIndex  map[moduleid.Address]uint16

	idents     []string
	identIndex map[string]uint16

	moduleHandles []fileformat.ModuleHandle
	moduleIndex   map[moduleid.ModuleId]uint16

	datatypeHandles []fileformat.DatatypeHandle
	datatypeIndex   map[datatypeKey]uint16

	functionHandles []fileformat.FunctionHandle
	signatures      []fileformat.Signature

	datatypeDefs []fileformat.DatatypeDef
	functionDefs []fileformat.FunctionDefinition

	fieldHandles   []fileformat.FieldHandle
	variantHandles []fileformat.VariantHandle

	selfHandle   uint16
	dependencies []uint16
	depSeen      map[uint16]bool
}

func newModuleBuilder(addr moduleid.Address, name string, catalog map[datatypeKey]datatypeInfo) *moduleBuilder {
	b := &moduleBuilder{
		addr:          addr,
		name:          name,
		catalog:       catalog,
		addrIndex:     map[moduleid.Address]uint16{},
		identIndex:    map[string]uint16{},
		moduleIndex:   map[moduleid.ModuleId]uint16{},
		datatypeIndex: map[datatypeKey]uint16{},
		depSeen:       map[uint16]bool{},
	}
	b.selfHandle = b.moduleHandle(addr, name)
	return b
}

func (b *moduleBuilder) internAddress(addr moduleid.Address) uint16 {
	if idx, ok := b.addrIndex[addr]; ok {
		return idx
	}
	idx := uint16(len(b.addrIdents))
	b.addrIdents = append(b.addrIdents, fileformat.Address16(addr))
	b.addrIndex[addr] = idx
	return idx
}

func (b *moduleBuilder) internIdent(s string) uint16 {
	if idx, ok := b.identIndex[s]; ok {
		return idx
	}
	idx := uint16(len(b.idents))
	b.idents = append(b.idents, s)
	b.identIndex[s] = idx
	return idx
}

// moduleHandle interns the handle for addr::name, recording it as a
// dependency the first time it is seen for any module other than this
// builder's own.
func (b *moduleBuilder) moduleHandle(addr moduleid.Address, name string) uint16 {
	mid := moduleid.ModuleId{Address: addr, Name: name}
	if idx, ok := b.moduleIndex[mid]; ok {
		return idx
	}
	idx := uint16(len(b.moduleHandles))
	b.moduleHandles = append(b.moduleHandles, fileformat.ModuleHandle{
		AddressIndex:    b.internAddress(addr),
		IdentifierIndex: b.internIdent(name),
	})
	b.moduleIndex[mid] = idx
	if (addr != b.addr || name != b.name) && !b.depSeen[idx] {
		b.depSeen[idx] = true
		b.dependencies = append(b.dependencies, idx)
	}
	return idx
}

// resolveDatatypeHandle implements datatypeHandleResolver: it interns a
// DatatypeHandle for (addr, module, name), looking up its abilities and
// type parameters in the scenario-wide catalog.
func (b *moduleBuilder) resolveDatatypeHandle(addr moduleid.Address, module, name string) (uint16, error) {
	key := datatypeKey{addr, module, name}
	if idx, ok := b.datatypeIndex[key]; ok {
		return idx, nil
	}
	info, ok := b.catalog[key]
	if !ok {
		return 0, fmt.Errorf("unknown datatype %x::%s::%s (not declared by any module in this scenario)", addr[:], module, name)
	}
	idx := uint16(len(b.datatypeHandles))
	b.datatypeHandles = append(b.datatypeHandles, fileformat.DatatypeHandle{
		ModuleHandle:   b.moduleHandle(addr, module),
		Name:           name,
		Abilities:      info.abilities,
		TypeParameters: info.typeParams,
	})
	b.datatypeIndex[key] = idx
	return idx, nil
}

func (b *moduleBuilder) internSignature(tokens []fileformat.SignatureToken) uint16 {
	idx := uint16(len(b.signatures))
	b.signatures = append(b.signatures, fileformat.Signature{Tokens: tokens})
	return idx
}

func constraintBytes(tps []TyParam) []uint8 {
	out := make([]uint8, len(tps))
	for i, tp := range tps {
		out[i] = parseAbilities(tp.Constraints)
	}
	return out
}

// buildModule turns one ModuleSpec into a complete fileformat.Module,
// resolving every field, variant-field, and function signature type
// against catalog.
func buildModule(spec ModuleSpec, catalog map[datatypeKey]datatypeInfo) (*fileformat.Module, error) {
	addr, err := parseAddress(spec.Address)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", spec.Name, err)
	}
	b := newModuleBuilder(addr, spec.Name, catalog)
	resolve := b.resolveDatatypeHandle

	for _, st := range spec.Structs {
		hIdx, err := b.resolveDatatypeHandle(addr, spec.Name, st.Name)
		if err != nil {
			return nil, err
		}
		defIdx := uint16(len(b.datatypeDefs))
		var fields []fileformat.FieldDefinition
		for fi, f := range st.Fields {
			tok, err := parseTypeToken(f.Type, resolve)
			if err != nil {
				return nil, fmt.Errorf("struct %s field %s: %w", st.Name, f.Name, err)
			}
			fields = append(fields, fileformat.FieldDefinition{Name: f.Name, Type: tok})
			b.fieldHandles = append(b.fieldHandles, fileformat.FieldHandle{Owner: defIdx, Field: uint16(fi)})
		}
		b.datatypeDefs = append(b.datatypeDefs, fileformat.DatatypeDef{
			Handle: hIdx,
			Kind:   fileformat.DefStruct,
			Fields: fields,
		})
	}

	for _, en := range spec.Enums {
		hIdx, err := b.resolveDatatypeHandle(addr, spec.Name, en.Name)
		if err != nil {
			return nil, err
		}
		defIdx := uint16(len(b.datatypeDefs))
		var variants []fileformat.VariantDefinition
		for vi, v := range en.Variants {
			var fields []fileformat.FieldDefinition
			for _, f := range v.Fields {
				tok, err := parseTypeToken(f.Type, resolve)
				if err != nil {
					return nil, fmt.Errorf("enum %s variant %s field %s: %w", en.Name, v.Name, f.Name, err)
				}
				fields = append(fields, fileformat.FieldDefinition{Name: f.Name, Type: tok})
			}
			variants = append(variants, fileformat.VariantDefinition{Name: v.Name, Fields: fields})
			b.variantHandles = append(b.variantHandles, fileformat.VariantHandle{Owner: defIdx, Variant: uint16(vi)})
		}
		b.datatypeDefs = append(b.datatypeDefs, fileformat.DatatypeDef{
			Handle:   hIdx,
			Kind:     fileformat.DefEnum,
			Variants: variants,
		})
	}

	for _, fn := range spec.Funcs {
		var params, rets []fileformat.SignatureToken
		for _, p := range fn.Parameters {
			tok, err := parseTypeToken(p, resolve)
			if err != nil {
				return nil, fmt.Errorf("function %s parameter: %w", fn.Name, err)
			}
			params = append(params, tok)
		}
		for _, r := range fn.Return {
			tok, err := parseTypeToken(r, resolve)
			if err != nil {
				return nil, fmt.Errorf("function %s return: %w", fn.Name, err)
			}
			rets = append(rets, tok)
		}
		hIdx := uint16(len(b.functionHandles))
		b.functionHandles = append(b.functionHandles, fileformat.FunctionHandle{
			ModuleHandle:   b.selfHandle,
			Name:           fn.Name,
			Parameters:     b.internSignature(params),
			Return:         b.internSignature(rets),
			TypeParameters: constraintBytes(fn.TypeParams),
		})
		b.functionDefs = append(b.functionDefs, fileformat.FunctionDefinition{
			Handle:         hIdx,
			IsNative:       fn.Native,
			ParameterCount: len(params),
			ReturnCount:    len(rets),
		})
	}

	return &fileformat.Module{
		SelfModuleHandle:       b.selfHandle,
		AddressIdentifiers:     b.addrIdents,
		Identifiers:            b.idents,
		ModuleHandles:          b.moduleHandles,
		DatatypeHandles:        b.datatypeHandles,
		FunctionHandles:        b.functionHandles,
		Signatures:             b.signatures,
		DatatypeDefs:           b.datatypeDefs,
		FunctionDefs:           b.functionDefs,
		FieldHandles:           b.fieldHandles,
		VariantHandles:         b.variantHandles,
		Dependencies:           b.dependencies,
	}, nil
}

// buildPublishInputs builds and serializes every module in sc, ready for
// Loader.PublishBundle.
func buildPublishInputs(sc *Scenario) ([]loader.PublishInput, error) {
	catalog, err := buildCatalog(sc)
	if err != nil {
		return nil, err
	}
	inputs := make([]loader.PublishInput, 0, len(sc.Modules))
	for _, spec := range sc.Modules {
		mod, err := buildModule(spec, catalog)
		if err != nil {
			return nil, err
		}
		addr, err := parseAddress(spec.Address)
		if err != nil {
			return nil, err
		}
		raw, err := compiledcache.Serialize(mod)
		if err != nil {
			return nil, fmt.Errorf("serializing module %s: %w", spec.Name, err)
		}
		version := spec.Version
		if version == "" {
			version = "v0.0.1"
		}
		inputs = append(inputs, loader.PublishInput{
			RuntimeID: moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: addr, Name: spec.Name}},
			Version:   version,
			Bytes:     raw,
		})
	}
	return inputs, nil
}
