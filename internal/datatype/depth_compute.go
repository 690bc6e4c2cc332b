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

package datatype

import (
	"github.com/move-lang/moveloader/internal/depth"
	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// ComputeDepths walks the newly-added datatypes named by newIndices in
// reverse order, computing each one's depth.Formula. Per spec.md §4.2:
// the formula for a datatype is the depth of the deepest field over all
// variants (enum) or over all fields (struct), plus one for the datatype
// itself. A per-call memo detects cycles — dependency cycles are
// supposed to have already been rejected by the dependency traverser, so
// encountering one here is an invariant violation, not a user error.
func (r *Registry) ComputeDepths(newIndices []int) error {
	memo := map[int]bool{} // idx -> in-progress
	for i := len(newIndices) - 1; i >= 0; i-- {
		if _, err := r.computeDepth(newIndices[i], memo); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) computeDepth(idx int, memo map[int]bool) (depth.Formula, error) {
	d := r.entries[idx]
	if d.depthKnown {
		return d.Depth, nil
	}
	if memo[idx] {
		return depth.Formula{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{},
			"recursive type? datatype %s participates in a field cycle that should have been rejected earlier", d.Key.Name)
	}
	memo[idx] = true

	var fieldFormulas []depth.Formula
	switch d.Kind {
	case KindStruct:
		for _, f := range d.Fields {
			ff, err := r.computeDepthOfType(f.Type, memo)
			if err != nil {
				return depth.Formula{}, err
			}
			fieldFormulas = append(fieldFormulas, ff)
		}
	case KindEnum:
		for _, v := range d.Variants {
			for _, f := range v.Fields {
				ff, err := r.computeDepthOfType(f.Type, memo)
				if err != nil {
					return depth.Formula{}, err
				}
				fieldFormulas = append(fieldFormulas, ff)
			}
		}
	}

	result := depth.Normalize(fieldFormulas).Add(1)
	d.Depth = result
	d.depthKnown = true
	delete(memo, idx)
	return result, nil
}

// computeDepthOfType maps a TypeRepr to a depth.Formula: primitives are
// constant(1); vector/reference add one level over their inner type;
// type parameters become an unresolved term; datatypes (possibly
// instantiated) defer to that datatype's own formula, substituted with
// the instantiation's argument formulas.
func (r *Registry) computeDepthOfType(t typerepr.TypeRepr, memo map[int]bool) (depth.Formula, error) {
	switch t.Kind {
	case typerepr.KVector, typerepr.KReference, typerepr.KMutableReference:
		inner, err := r.computeDepthOfType(*t.Inner, memo)
		if err != nil {
			return depth.Formula{}, err
		}
		return inner.Add(1), nil
	case typerepr.KTypeParameter:
		return depth.TypeParameter(t.TypeParamIndex), nil
	case typerepr.KDatatype:
		return r.computeDepth(t.DatatypeIndex, memo)
	case typerepr.KDatatypeInstantiation:
		base, err := r.computeDepth(t.DatatypeIndex, memo)
		if err != nil {
			return depth.Formula{}, err
		}
		argMap := make(map[uint16]depth.Formula, len(t.TypeArgs))
		for i, arg := range t.TypeArgs {
			af, err := r.computeDepthOfType(arg, memo)
			if err != nil {
				return depth.Formula{}, err
			}
			argMap[uint16(i)] = af
		}
		return base.Subst(argMap), nil
	default:
		return depth.Constant(1), nil
	}
}
