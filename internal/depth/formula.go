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

// Package depth implements DepthFormula, a closed-form recursive-depth
// upper bound for a (possibly generic) datatype: max(const, max_i(term_i))
// where each term_i is (type-parameter-index, offset). Encoding the depth
// as a closed form rather than a plain number lets a generic datatype's
// depth be expressed independently of its arguments and specialized later
// via Subst, making the per-datatype depth check O(#fields) at
// definition time rather than recomputed per call.
package depth

// Formula is immutable once constructed; every combinator returns a new
// value.
type Formula struct {
	Const int
	// Terms maps type-parameter-index to the largest offset contributed
	// by that parameter.
	Terms map[uint16]int
}

// Constant builds a Formula with depth = n regardless of type arguments.
func Constant(n int) Formula {
	return Formula{Const: n}
}

// TypeParameter builds a Formula whose depth equals the depth of the
// i-th type argument (offset 0).
func TypeParameter(i uint16) Formula {
	return Formula{Terms: map[uint16]int{i: 0}}
}

// Normalize takes the pointwise max over a list of formulas: the
// constant becomes the max of all constants, and each parameter's offset
// becomes the max offset contributed to that parameter across the list.
func Normalize(fs []Formula) Formula {
	out := Formula{Terms: map[uint16]int{}}
	for _, f := range fs {
		if f.Const > out.Const {
			out.Const = f.Const
		}
		for p, off := range f.Terms {
			if cur, ok := out.Terms[p]; !ok || off > cur {
				out.Terms[p] = off
			}
		}
	}
	if len(out.Terms) == 0 {
		out.Terms = nil
	}
	return out
}

// Add returns a new Formula with k added to the constant and to every
// term's offset.
func (f Formula) Add(k int) Formula {
	out := Formula{Const: f.Const + k}
	if len(f.Terms) > 0 {
		out.Terms = make(map[uint16]int, len(f.Terms))
		for p, off := range f.Terms {
			out.Terms[p] = off + k
		}
	}
	return out
}

// Subst replaces every parameter term by the corresponding formula in
// map, offsetting it by the term's own offset, and folds the results
// (plus the original constant) via Normalize. Parameters with no entry
// in the map are dropped (treated as depth 0 contribution), which can
// only happen if map is incomplete relative to the formula's free
// parameters — callers must supply a total substitution.
func (f Formula) Subst(args map[uint16]Formula) Formula {
	parts := []Formula{Constant(f.Const)}
	for p, off := range f.Terms {
		if sub, ok := args[p]; ok {
			parts = append(parts, sub.Add(off))
		}
	}
	return Normalize(parts)
}

// Solve evaluates the formula given a concrete depth for each type
// parameter (e.g. when fully instantiated), returning the resulting
// integer depth.
func (f Formula) Solve(paramDepths map[uint16]int) int {
	result := f.Const
	for p, off := range f.Terms {
		if d, ok := paramDepths[p]; ok {
			if v := d + off; v > result {
				result = v
			}
		}
	}
	return result
}
