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

package errloc_test

import (
	"errors"
	"testing"

	"github.com/move-lang/moveloader/internal/errloc"
)

func TestErrorStringIncludesKindLocationAndMessage(t *testing.T) {
	err := errloc.New(errloc.MissingDependency, errloc.AtModule("abc::coin"), "dependency %s not found", "0x1::coin")
	got := err.Error()
	want := "MISSING_DEPENDENCY at module(abc::coin): dependency 0x1::coin not found"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorStringIncludesCategoryAndCause(t *testing.T) {
	cause := errors.New("bad bytes")
	err := errloc.Wrap(errloc.BytecodeVerifierFailure, errloc.AtScript(), cause, "verification failed")
	err.Category = "STACK_OVERFLOW"
	got := err.Error()
	want := "BYTECODE_VERIFIER_FAILURE[STACK_OVERFLOW] at script: verification failed: bad bytes"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := errloc.Wrap(errloc.LinkVerifierFailure, errloc.Location{}, cause, "link check failed")
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
}

func TestErrorIsMatchesOnKindOnly(t *testing.T) {
	a := errloc.New(errloc.TooManyTypeNodes, errloc.AtScript(), "too many nodes: %d", 300)
	b := errloc.New(errloc.TooManyTypeNodes, errloc.AtModule("x"), "different message entirely")
	if !errors.Is(a, b) {
		t.Errorf("errors.Is should match on Kind regardless of message or location")
	}

	c := errloc.New(errloc.VmMaxValueDepthReached, errloc.AtScript(), "too many nodes: %d", 300)
	if errors.Is(a, c) {
		t.Errorf("errors.Is should not match across distinct Kinds")
	}
}

func TestInvariantViolationWrapsCauseAsUnknownInvariantViolation(t *testing.T) {
	cause := errors.New("dependency was never verified")
	err := errloc.InvariantViolation(errloc.AtModule("0x2::m"), cause)
	if err.Kind != errloc.UnknownInvariantViolation {
		t.Errorf("Kind = %v, want UnknownInvariantViolation", err.Kind)
	}
	if !errors.Is(err, cause) {
		t.Errorf("InvariantViolation should wrap cause for errors.Is")
	}
}

func TestAsRecoversConcreteErrorFromAChainedCause(t *testing.T) {
	base := errloc.New(errloc.ConstraintNotSatisfied, errloc.AtScript(), "ability missing")
	outer := errloc.Wrap(errloc.FunctionResolutionFailure, errloc.AtScript(), base, "could not resolve function")

	var e *errloc.Error
	if !errors.As(error(outer), &e) || e.Kind != errloc.FunctionResolutionFailure {
		t.Fatalf("errors.As should recover the outermost concrete *Error, got %+v", e)
	}
	if !errors.Is(outer, base) {
		t.Errorf("errors.Is should walk Unwrap down to the wrapped base error")
	}
}

func TestListErrorJoinsEachEntryOnItsOwnLine(t *testing.T) {
	var l errloc.List
	l = errloc.Append(l, errloc.New(errloc.MissingDependency, errloc.AtScript(), "first"))
	l = errloc.Append(l, errloc.New(errloc.CyclicModuleDependency, errloc.AtScript(), "second"))
	if len(l) != 2 {
		t.Fatalf("len(l) = %d, want 2", len(l))
	}
	want := l[0].Error() + "\n" + l[1].Error()
	if got := l.Error(); got != want {
		t.Errorf("List.Error() = %q, want %q", got, want)
	}
}

func TestAppendIsANoOpForNilError(t *testing.T) {
	var l errloc.List
	l = errloc.Append(l, nil)
	if len(l) != 0 {
		t.Errorf("len(l) = %d, want 0 after appending nil", len(l))
	}
}

func TestAppendFlattensANestedList(t *testing.T) {
	var inner errloc.List
	inner = errloc.Append(inner, errloc.New(errloc.MissingDependency, errloc.AtScript(), "a"))
	inner = errloc.Append(inner, errloc.New(errloc.MissingDependency, errloc.AtScript(), "b"))

	var outer errloc.List
	outer = errloc.Append(outer, errloc.New(errloc.CyclicModuleDependency, errloc.AtScript(), "c"))
	outer = errloc.Append(outer, inner)
	if len(outer) != 3 {
		t.Fatalf("len(outer) = %d, want 3 (flattened, not nested)", len(outer))
	}
}

func TestAppendWrapsAnOrdinaryErrorAsUnknownInvariantViolation(t *testing.T) {
	var l errloc.List
	l = errloc.Append(l, errors.New("plain error"))
	if len(l) != 1 || l[0].Kind != errloc.UnknownInvariantViolation {
		t.Fatalf("plain error should be wrapped as UnknownInvariantViolation, got %+v", l)
	}
}

func TestAsListOrNilReturnsNilForEmptyList(t *testing.T) {
	var l errloc.List
	if err := l.AsListOrNil(); err != nil {
		t.Errorf("AsListOrNil() = %v, want nil for an empty list", err)
	}
	l = errloc.Append(l, errloc.New(errloc.MissingDependency, errloc.AtScript(), "x"))
	if err := l.AsListOrNil(); err == nil {
		t.Errorf("AsListOrNil() = nil, want non-nil for a non-empty list")
	}
}

func TestLocationStringVariants(t *testing.T) {
	cases := []struct {
		loc  errloc.Location
		want string
	}{
		{errloc.Location{}, "undefined"},
		{errloc.AtScript(), "script"},
		{errloc.AtModule("0x1::coin"), "module(0x1::coin)"},
	}
	for _, c := range cases {
		if got := c.loc.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
