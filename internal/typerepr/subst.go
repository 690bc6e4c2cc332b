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

package typerepr

import "github.com/move-lang/moveloader/internal/errloc"

// Subst substitutes every TypeParameter(i) in ty with args[i]. It bounds
// the total node count of the result (pre-walked, not discovered
// mid-substitution) by MaxTypeInstantiationNodes, returning
// TooManyTypeNodes before doing any substitution work if the bound would
// be exceeded. This mirrors the design note in spec.md §9: the natural
// recursive subst is adversary-bait, so the bound is checked up front.
func Subst(ty TypeRepr, args []TypeRepr) (TypeRepr, error) {
	total := ty.NodeCount() + sumNodeCounts(args)
	if total > MaxTypeInstantiationNodes {
		return TypeRepr{}, errloc.New(errloc.TooManyTypeNodes, errloc.Location{},
			"substitution would produce %d nodes, exceeding the %d node cap", total, MaxTypeInstantiationNodes)
	}
	return substUnchecked(ty, args), nil
}

// SubstUnchecked performs the same substitution as Subst but without the
// MaxTypeInstantiationNodes bound. Callers that enforce their own,
// differently-sized bound (e.g. internal/layout's 256-node cap) use this
// instead of re-applying the 128-node make_type/subst bound.
func SubstUnchecked(ty TypeRepr, args []TypeRepr) TypeRepr {
	return substUnchecked(ty, args)
}

func sumNodeCounts(args []TypeRepr) int {
	n := 0
	for _, a := range args {
		n += a.NodeCount()
	}
	return n
}

func substUnchecked(ty TypeRepr, args []TypeRepr) TypeRepr {
	switch ty.Kind {
	case KTypeParameter:
		if int(ty.TypeParamIndex) >= len(args) {
			// Caller error: an out-of-range type parameter reference can
			// only happen if the signature was malformed; the verifier
			// is supposed to have rejected that already.
			return ty
		}
		return args[ty.TypeParamIndex]
	case KVector:
		inner := substUnchecked(*ty.Inner, args)
		return Vector(inner)
	case KReference:
		inner := substUnchecked(*ty.Inner, args)
		return Reference(inner)
	case KMutableReference:
		inner := substUnchecked(*ty.Inner, args)
		return MutableReference(inner)
	case KDatatypeInstantiation:
		newArgs := make([]TypeRepr, len(ty.TypeArgs))
		for i, a := range ty.TypeArgs {
			newArgs[i] = substUnchecked(a, args)
		}
		return DatatypeInstantiation(ty.DatatypeIndex, newArgs)
	default:
		return ty
	}
}
