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
	"strings"

	"github.com/move-lang/moveloader/internal/layout"
)

// parseTypeTagString parses a type-tag string such as "u64",
// "vector<u64>", or "0x1::m::S<u64>" into a layout.TypeTag, for the
// run-function and inspect-layout subcommands, which have no signature
// pool of their own to resolve a handle against.
func parseTypeTagString(s string) (layout.TypeTag, error) {
	s = strings.TrimSpace(s)
	if pk, ok := primKindOf(s); ok {
		return layout.TypeTag{Prim: &pk}, nil
	}
	if strings.HasPrefix(s, "vector<") && strings.HasSuffix(s, ">") {
		inner, err := parseTypeTagString(s[len("vector<") : len(s)-1])
		if err != nil {
			return layout.TypeTag{}, err
		}
		return layout.TypeTag{Vector: &inner}, nil
	}

	base := s
	var argsStr string
	if i := strings.Index(s, "<"); i >= 0 && strings.HasSuffix(s, ">") {
		base = s[:i]
		argsStr = s[i+1 : len(s)-1]
	}
	parts := strings.Split(base, "::")
	if len(parts) != 3 {
		return layout.TypeTag{}, fmt.Errorf("invalid type tag %q, expected addr::module::Name", s)
	}
	addr, err := parseAddress(parts[0])
	if err != nil {
		return layout.TypeTag{}, err
	}
	st := &layout.StructTag{Address: addr, Module: parts[1], Name: parts[2]}
	if argsStr != "" {
		for _, a := range splitTopLevelArgs(argsStr) {
			tag, err := parseTypeTagString(a)
			if err != nil {
				return layout.TypeTag{}, err
			}
			st.TypeParams = append(st.TypeParams, tag)
		}
	}
	return layout.TypeTag{Struct: st}, nil
}

func primKindOf(s string) (layout.PrimKind, bool) {
	switch strings.ToLower(s) {
	case "bool":
		return layout.PBool, true
	case "u8":
		return layout.PU8, true
	case "u16":
		return layout.PU16, true
	case "u32":
		return layout.PU32, true
	case "u64":
		return layout.PU64, true
	case "u128":
		return layout.PU128, true
	case "u256":
		return layout.PU256, true
	case "address":
		return layout.PAddress, true
	case "signer":
		return layout.PSigner, true
	}
	return 0, false
}
