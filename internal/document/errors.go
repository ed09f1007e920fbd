/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package document

import "errors"

// Lookup and structure errors. Operations report these instead of panicking;
// callers are expected to check them.
var (
	// ErrNotFound indicates that a path does not resolve to a document.
	ErrNotFound = errors.New("document not found")

	// ErrNameTaken indicates that the target name is already used by a sibling.
	ErrNameTaken = errors.New("document name already taken")

	// ErrRootPath indicates an attempt to address the root as a document.
	ErrRootPath = errors.New("root document is not addressable")

	// ErrInvalidName indicates a name that cannot be used as a path segment.
	ErrInvalidName = errors.New("invalid document name")

	// ErrInvalidMove indicates a move of a document into its own subtree.
	ErrInvalidMove = errors.New("cannot move a document into itself")

	// ErrAttached indicates that a document already has a parent.
	ErrAttached = errors.New("document already attached to a parent")
)
