/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements project persistence.
// A project is saved as a JSON manifest next to a directory of the same base name that holds one
// <docPath>/__content.html file per document. The directory also carries an images/ folder for staged
// assets and a .docuweave/ state folder with manifest backups and the per-project SQLite index used for
// search and backlinks. The index is derived from the manifest and is rebuildable/disposable by design.
package storage
