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

// Package cursor implements TransactionalCursor: a high-watermark
// snapshot of the datatype and function registries, and the rollback
// that truncates both back to that watermark when a load attempt fails
// partway through. Rollback is invoked only from internal/loader's
// ensureLoaded, on the two failure paths (traversal and interning) of a
// top-level load attempt.
package cursor

import (
	"github.com/google/uuid"

	"github.com/move-lang/moveloader/internal/datatype"
	"github.com/move-lang/moveloader/internal/function"
)

// Snapshot captures the registries' append-only high-watermarks. AttemptID
// tags the snapshot with a uuid so a failed (and rolled back) attempt can
// be correlated across logs, the same way LinkContext.Trace tags a link
// context.
type Snapshot struct {
	AttemptID     uuid.UUID
	DatatypeCount int
	FunctionCount int
}

// Take captures the current snapshot of both registries.
func Take(datatypes *datatype.Registry, functions *function.Registry) Snapshot {
	return Snapshot{
		AttemptID:     uuid.New(),
		DatatypeCount: datatypes.Len(),
		FunctionCount: functions.Len(),
	}
}

// Rollback truncates both registries back to snap, erasing every
// datatype and function interned since the snapshot was taken. Callers
// must hold the loader's exclusive lock across the failed attempt and
// this call, so the truncation is never observed by a concurrent reader.
func Rollback(datatypes *datatype.Registry, functions *function.Registry, snap Snapshot) error {
	if err := datatypes.RollbackTo(snap.DatatypeCount); err != nil {
		return err
	}
	if err := functions.RollbackTo(snap.FunctionCount); err != nil {
		return err
	}
	return nil
}
