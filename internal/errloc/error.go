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

package errloc

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the abstract error kinds from the loader's error
// taxonomy. Each kind is surfaced through a typed constructor below so
// callers can errors.As into the concrete shape rather than matching on
// message text.
type Kind int

const (
	CyclicModuleDependency Kind = iota
	MissingDependency
	CodeDeserializationError
	BytecodeVerifierFailure
	LinkVerifierFailure
	TypeResolutionFailure
	FunctionResolutionFailure
	ConstraintNotSatisfied
	NumberOfTypeArgumentsMismatch
	TooManyTypeNodes
	VmMaxValueDepthReached
	UnknownInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case CyclicModuleDependency:
		return "CYCLIC_MODULE_DEPENDENCY"
	case MissingDependency:
		return "MISSING_DEPENDENCY"
	case CodeDeserializationError:
		return "CODE_DESERIALIZATION_ERROR"
	case BytecodeVerifierFailure:
		return "BYTECODE_VERIFIER_FAILURE"
	case LinkVerifierFailure:
		return "LINK_VERIFIER_FAILURE"
	case TypeResolutionFailure:
		return "TYPE_RESOLUTION_FAILURE"
	case FunctionResolutionFailure:
		return "FUNCTION_RESOLUTION_FAILURE"
	case ConstraintNotSatisfied:
		return "CONSTRAINT_NOT_SATISFIED"
	case NumberOfTypeArgumentsMismatch:
		return "NUMBER_OF_TYPE_ARGUMENTS_MISMATCH"
	case TooManyTypeNodes:
		return "TOO_MANY_TYPE_NODES"
	case VmMaxValueDepthReached:
		return "VM_MAX_VALUE_DEPTH_REACHED"
	case UnknownInvariantViolation:
		return "UNKNOWN_INVARIANT_VIOLATION"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type produced by every loader component. It
// always carries a Kind, a Location and a human message, and optionally
// wraps an underlying cause (e.g. a verifier or store failure).
type Error struct {
	Kind     Kind
	Loc      Location
	Message  string
	Category string // sub-category for BytecodeVerifierFailure / LinkVerifierFailure
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Category != "" {
		b.WriteString("[")
		b.WriteString(e.Category)
		b.WriteString("]")
	}
	b.WriteString(" at ")
	b.WriteString(e.Loc.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, mirroring
// the narrow matching behavior callers need from errors.Is without
// requiring message equality.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// New builds a bare Error of the given kind at the given location.
func New(kind Kind, loc Location, format string, args ...any) *Error {
	return &Error{Kind: kind, Loc: loc, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind, attributing an underlying cause.
func Wrap(kind Kind, loc Location, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Loc: loc, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// InvariantViolation wraps any error as an UnknownInvariantViolation, the
// shape every non-root dependency failure must take per spec.
func InvariantViolation(loc Location, cause error) *Error {
	return &Error{
		Kind:    UnknownInvariantViolation,
		Loc:     loc,
		Message: "expected dependency to already be verified",
		Cause:   cause,
	}
}

// List accumulates multiple Errors, mirroring the teacher's errors.Append
// / errors.Errors list idiom for batch operations like PublishBundle.
type List []*Error

func (l List) Error() string {
	parts := make([]string, len(l))
	for i, e := range l {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "\n")
}

// Append adds err to the list. A nil err is a no-op; a List is flattened.
func Append(l List, err error) List {
	if err == nil {
		return l
	}
	if sub, ok := err.(List); ok {
		return append(l, sub...)
	}
	var e *Error
	if errors.As(err, &e) {
		return append(l, e)
	}
	return append(l, &Error{Kind: UnknownInvariantViolation, Message: err.Error()})
}

// AsListOrNil returns nil if the list is empty, else the list as an error.
func (l List) AsListOrNil() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
