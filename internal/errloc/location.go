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

// Package errloc defines the error taxonomy and location attribution shared
// across the loader's components.
package errloc

import "fmt"

// LocationKind distinguishes the three places an error can be attributed to.
type LocationKind int

const (
	// Undefined means the error has no useful attribution.
	Undefined LocationKind = iota
	// Module attributes the error to a specific storage id.
	Module
	// Script attributes the error to a standalone script (no module identity).
	Script
)

// Location is attached to every Error so higher layers can report where a
// failure occurred.
type Location struct {
	Kind      LocationKind
	StorageID string // only meaningful when Kind == Module
}

func (l Location) String() string {
	switch l.Kind {
	case Module:
		return fmt.Sprintf("module(%s)", l.StorageID)
	case Script:
		return "script"
	default:
		return "undefined"
	}
}

// AtModule builds a Location pinned to a storage id.
func AtModule(storageID string) Location {
	return Location{Kind: Module, StorageID: storageID}
}

// AtScript builds a Location for a standalone script.
func AtScript() Location {
	return Location{Kind: Script}
}
