/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// collector is a fake endpoint recording event batches and crash reports.
type collector struct {
	srv *httptest.Server

	mu       sync.Mutex
	batches  [][]payload
	crashes  []string
	sessions []string
	posted   chan struct{}
}

func newCollector(t *testing.T) *collector {
	t.Helper()
	c := &collector{posted: make(chan struct{}, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var batch []payload
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.batches = append(c.batches, batch)
		c.mu.Unlock()
		c.posted <- struct{}{}
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.crashes = append(c.crashes, string(b))
		c.sessions = append(c.sessions, r.Header.Get("X-DocuWeave-Session"))
		c.mu.Unlock()
	})
	c.srv = httptest.NewServer(mux)
	t.Cleanup(c.srv.Close)
	return c
}

func (c *collector) config() Config {
	return Config{
		OptIn:         true,
		EventsURL:     c.srv.URL + "/events",
		CrashURL:      c.srv.URL + "/crash",
		Timeout:       2 * time.Second,
		FlushInterval: time.Hour,
	}
}

func (c *collector) events() []payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []payload
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func TestClient_FlushSendsOneBatch(t *testing.T) {
	col := newCollector(t)
	c := New(col.config())
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}

	c.Event("first", nil)
	c.Event("second", Props{"documents": "1-9", "path": "Guide/Secret"})
	c.Event("third", nil)
	c.Flush(context.Background())

	col.mu.Lock()
	nb := len(col.batches)
	col.mu.Unlock()
	if nb != 1 {
		t.Fatalf("batches = %d, want 1", nb)
	}
	ev := col.events()
	if len(ev) != 3 || ev[0].Name != "first" || ev[1].Name != "second" || ev[2].Name != "third" {
		t.Fatalf("events = %+v", ev)
	}
	if ev[0].Session == "" || ev[0].Session != ev[2].Session || ev[0].Session != c.session {
		t.Fatalf("events must share the client session: %+v", ev)
	}
	if len(ev[1].Props) != 1 || ev[1].Props["documents"] != "1-9" {
		t.Fatalf("unexpected props sent: %v", ev[1].Props)
	}
	if ev[0].TS.IsZero() || ev[0].Version == "" || ev[0].OS == "" {
		t.Fatalf("missing envelope fields: %+v", ev[0])
	}
}

func TestClient_BatchSizeTriggersSend(t *testing.T) {
	col := newCollector(t)
	cfg := col.config()
	cfg.BatchSize = 2
	c := New(cfg)
	defer c.Close()

	c.Event("a", nil)
	c.Event("b", nil)
	select {
	case <-col.posted:
	case <-time.After(2 * time.Second):
		t.Fatalf("a full batch was not sent")
	}
	if ev := col.events(); len(ev) != 2 {
		t.Fatalf("events = %+v", ev)
	}
}

func TestClient_UploadCrashIsAwaited(t *testing.T) {
	col := newCollector(t)
	c := New(col.config())
	defer c.Close()

	c.UploadCrash([]byte("STACKTRACE"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.waitUploads(ctx)

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.crashes) != 1 || col.crashes[0] != "STACKTRACE" {
		t.Fatalf("crashes = %q", col.crashes)
	}
	if col.sessions[0] != c.session {
		t.Fatalf("crash session header = %q, want %q", col.sessions[0], c.session)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DW_TELEMETRY_OPT_IN", "yes")
	t.Setenv("DW_TELEMETRY_URL", " http://127.0.0.1:9/events ")
	t.Setenv("DW_CRASH_UPLOAD_URL", "")
	t.Setenv("DW_TELEMETRY_TIMEOUT_MS", "100")
	t.Setenv("DW_TELEMETRY_DEBUG", "")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL != "http://127.0.0.1:9/events" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}

	t.Setenv("DW_TELEMETRY_TIMEOUT_MS", "soon")
	if got := FromEnv().Timeout; got != defaultTimeout {
		t.Fatalf("bad timeout should fall back to default, got %v", got)
	}
}
