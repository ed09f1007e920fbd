/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDetectAndRebuildIndex_OnCorruption(t *testing.T) {
	root := t.TempDir()
	p := sampleProject(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := UpdateIndex(ctx, root, p); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	idx := IndexPath(root)
	removeIndexFiles(idx)
	if err := os.WriteFile(idx, []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	rebuilt, err := DetectAndRebuildIndex(ctx, root, p)
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected rebuild to occur")
	}
	res, err := Search(ctx, root, SearchQuery{Text: "hello"})
	if err != nil {
		t.Fatalf("Search after rebuild: %v", err)
	}
	if len(res) != 1 || res[0].Path != "Intro" {
		t.Fatalf("results after rebuild = %+v", res)
	}
	bdir := filepath.Join(StateDir(root), BackupsDirName)
	entries, _ := os.ReadDir(bdir)
	if len(entries) == 0 {
		t.Fatalf("expected backup file in %s", bdir)
	}
}

func TestDetectAndRebuildIndex_HealthyIndexIsKept(t *testing.T) {
	root := t.TempDir()
	p := sampleProject(t)
	ctx := context.Background()
	if err := UpdateIndex(ctx, root, p); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	rebuilt, err := DetectAndRebuildIndex(ctx, root, p)
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex: %v", err)
	}
	if rebuilt {
		t.Fatalf("healthy index should not be rebuilt")
	}
}

func TestDetectAndRebuildIndex_MissingIndexIsBuilt(t *testing.T) {
	root := t.TempDir()
	p := sampleProject(t)
	ctx := context.Background()
	rebuilt, err := DetectAndRebuildIndex(ctx, root, p)
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected a missing index to be built")
	}
	res, err := Search(ctx, root, SearchQuery{Text: "hello"})
	if err != nil || len(res) != 1 {
		t.Fatalf("Search = %+v, %v", res, err)
	}
}
