/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

// Event names sent by the application. Properties never carry document names,
// paths or content.
const (
	EventAppStarted      = "app_started"
	EventProjectOpened   = "project_opened"
	EventProjectSaved    = "project_saved"
	EventDocumentMoved   = "document_moved"
	EventLegacyMigration = "legacy_manifest_migrated"
)

// AppStarted reports a start of the desktop shell and which renderer it uses.
func AppStarted(markdown bool) {
	renderer := "html"
	if markdown {
		renderer = "markdown"
	}
	Event(EventAppStarted, Props{"renderer": renderer})
}

// ProjectSaved reports a save with the number of documents written.
func ProjectSaved(documents int) {
	Event(EventProjectSaved, Props{"documents": bucket(documents)})
}

// ProjectOpened reports a successful load.
func ProjectOpened(documents int) {
	Event(EventProjectOpened, Props{"documents": bucket(documents)})
}

// LegacyMigrated reports that a manifest in the old flat format was converted.
func LegacyMigrated() { Event(EventLegacyMigration, nil) }

// bucket coarsens counts so events cannot fingerprint a project.
func bucket(n int) string {
	switch {
	case n <= 0:
		return "0"
	case n < 10:
		return "1-9"
	case n < 100:
		return "10-99"
	case n < 1000:
		return "100-999"
	default:
		return "1000+"
	}
}
