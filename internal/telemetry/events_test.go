/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestBucket(t *testing.T) {
	cases := map[int]string{-1: "0", 0: "0", 3: "1-9", 42: "10-99", 500: "100-999", 12000: "1000+"}
	for n, want := range cases {
		if got := bucket(n); got != want {
			t.Errorf("bucket(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestProjectEventsUseDefaultClient(t *testing.T) {
	col := newCollector(t)
	NewDefault(col.config())

	AppStarted(true)
	ProjectOpened(5)
	LegacyMigrated()
	ProjectSaved(12)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	Shutdown(ctx)

	ev := col.events()
	want := []string{EventAppStarted, EventProjectOpened, EventLegacyMigration, EventProjectSaved}
	if len(ev) != len(want) {
		t.Fatalf("events = %+v, want %v", ev, want)
	}
	for i, name := range want {
		if ev[i].Name != name {
			t.Errorf("event %d = %q, want %q", i, ev[i].Name, name)
		}
	}
	if ev[0].Props["renderer"] != "markdown" || ev[1].Props["documents"] != "1-9" || ev[3].Props["documents"] != "10-99" {
		t.Fatalf("unexpected props: %+v", ev)
	}
}

func TestWithOptIn(t *testing.T) {
	if !(Config{}).WithOptIn(true).OptIn {
		t.Fatalf("user opt-in should enable telemetry")
	}
	if (Config{}).WithOptIn(false).OptIn {
		t.Fatalf("telemetry must stay off without opt-in")
	}
	if !(Config{OptIn: true}).WithOptIn(false).OptIn {
		t.Fatalf("env opt-in should be kept")
	}
}

func TestNewDefaultReplacesClient(t *testing.T) {
	NewDefault(Config{OptIn: true, EventsURL: "http://127.0.0.1:1", Timeout: 10 * time.Millisecond})
	first := current()
	NewDefault(Config{})
	if current() == first {
		t.Fatalf("NewDefault kept the old client")
	}
	select {
	case <-first.done:
	default:
		t.Fatalf("replaced client was not closed")
	}
	if Enabled() {
		t.Fatalf("new default without opt-in must be disabled")
	}
	Shutdown(context.Background())
	Shutdown(context.Background())
}
