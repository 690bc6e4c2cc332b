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

package loader

import (
	"context"

	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/function"
	"github.com/move-lang/moveloader/internal/layout"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

// LoadedFunctionInstantiation is the dominant-path return value of
// LoadFunction: the function definition plus its fully-substituted
// parameter and return types.
type LoadedFunctionInstantiation struct {
	Def        *function.Def
	Parameters []typerepr.TypeRepr
	Return     []typerepr.TypeRepr
}

// LoadFunction is the dominant-path operation from spec.md §4.8:
// load_module, then a function_map lookup, then an ability check of
// ty_args against the function's declared constraints, then
// substitution of the function's signature.
func (l *Loader) LoadFunction(ctx context.Context, linkCtx moduleid.LinkContext, runtimeID moduleid.RuntimeId, name string, tyArgs []typerepr.TypeRepr) (*LoadedFunctionInstantiation, error) {
	res, err := l.resolverFor(ctx, linkCtx, runtimeID, true)
	if err != nil {
		return nil, err
	}

	idx, ok := res.Loaded.FunctionMap[name]
	if !ok {
		return nil, errloc.New(errloc.FunctionResolutionFailure, errloc.AtModule(res.Compiled.StorageID.String()),
			"function %s not found in %s", name, runtimeID)
	}
	def := res.Functions.Get(idx)

	if err := l.checkTypeArgConstraints(def.TypeParamConstraints, tyArgs); err != nil {
		return nil, err
	}

	params, rets, err := res.InstantiateGenericFunction(def, tyArgs)
	if err != nil {
		return nil, err
	}
	return &LoadedFunctionInstantiation{Def: def, Parameters: params, Return: rets}, nil
}

// checkTypeArgConstraints is spec.md §4.8's verify_ty_args: first the
// arity check (NumberOfTypeArgumentsMismatch, required by spec.md's
// error taxonomy and mirrored from original_source's verify_ty_args,
// loader.rs: "if constraints.len() != ty_args.len() { return
// Err(NUMBER_OF_TYPE_ARGUMENTS_MISMATCH) }"), then each type argument's
// computed abilities against its corresponding declared constraint
// (ConstraintNotSatisfied, S5).
func (l *Loader) checkTypeArgConstraints(constraints []typerepr.AbilitySet, tyArgs []typerepr.TypeRepr) error {
	if len(tyArgs) != len(constraints) {
		return errloc.New(errloc.NumberOfTypeArgumentsMismatch, errloc.Location{},
			"expected %d type argument(s), got %d", len(constraints), len(tyArgs))
	}
	lookup := func(idx int) typerepr.DatatypeInfo { return l.datatypes.Info(idx) }
	for i, arg := range tyArgs {
		ab, err := typerepr.Abilities(arg, lookup)
		if err != nil {
			return err
		}
		if !ab.Subset(constraints[i]) {
			return errloc.New(errloc.ConstraintNotSatisfied, errloc.Location{},
				"type argument %d (%s) does not satisfy required abilities", i, arg)
		}
	}
	return nil
}

// LoadType is spec.md §4.8's fully recursive type_tag -> TypeRepr
// operation: instantiations trigger load_module for every referenced
// datatype's runtime module, and type-argument abilities are checked
// against the datatype's declared constraints.
func (l *Loader) LoadType(ctx context.Context, linkCtx moduleid.LinkContext, tag layout.TypeTag) (typerepr.TypeRepr, error) {
	if tag.Prim != nil {
		return primToType(*tag.Prim), nil
	}
	if tag.Vector != nil {
		inner, err := l.LoadType(ctx, linkCtx, *tag.Vector)
		if err != nil {
			return typerepr.TypeRepr{}, err
		}
		return typerepr.Vector(inner), nil
	}
	if tag.Struct == nil {
		return typerepr.TypeRepr{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "empty type tag")
	}

	st := tag.Struct
	runtimeID := moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: st.Address, Name: st.Module}}
	if err := l.ensureLoadedPublic(ctx, linkCtx, runtimeID); err != nil {
		return typerepr.TypeRepr{}, err
	}

	l.mu.RLock()
	idx, def, err := l.datatypes.Resolve(runtimeID, st.Name)
	l.mu.RUnlock()
	if err != nil {
		return typerepr.TypeRepr{}, err
	}

	args := make([]typerepr.TypeRepr, len(st.TypeParams))
	for i, p := range st.TypeParams {
		a, err := l.LoadType(ctx, linkCtx, p)
		if err != nil {
			return typerepr.TypeRepr{}, err
		}
		args[i] = a
	}

	if err := l.checkTypeArgConstraints(def.Constraints, args); err != nil {
		return typerepr.TypeRepr{}, err
	}

	if len(args) == 0 {
		return typerepr.Datatype(idx), nil
	}
	return typerepr.DatatypeInstantiation(idx, args), nil
}

// ensureLoadedPublic is the exported-call entry point into ensureLoaded
// used by LoadType, which only needs the module loaded (not a Resolver).
func (l *Loader) ensureLoadedPublic(ctx context.Context, linkCtx moduleid.LinkContext, runtimeID moduleid.RuntimeId) error {
	if _, ok := l.fastPathGet(linkCtx, runtimeID); ok {
		return nil
	}
	return l.ensureLoaded(ctx, linkCtx, runtimeID, true)
}

func primToType(pk layout.PrimKind) typerepr.TypeRepr {
	switch pk {
	case layout.PBool:
		return typerepr.Bool()
	case layout.PU8:
		return typerepr.U8()
	case layout.PU16:
		return typerepr.U16()
	case layout.PU32:
		return typerepr.U32()
	case layout.PU64:
		return typerepr.U64()
	case layout.PU128:
		return typerepr.U128()
	case layout.PU256:
		return typerepr.U256()
	case layout.PAddress:
		return typerepr.Address()
	default:
		return typerepr.Signer()
	}
}
