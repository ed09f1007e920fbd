/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends anonymous usage events and crash reports, only when
// the user opted in and an endpoint is configured. Events are batched by a
// background sender and never block the caller.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	applog "docuweave/internal/log"
	"docuweave/internal/version"
)

const (
	defaultTimeout       = 1500 * time.Millisecond
	defaultBatchSize     = 20
	defaultFlushInterval = 10 * time.Second
	queueSize            = 64
)

// Config holds runtime configuration for telemetry and crash uploads.
//
// Environment variables (read by FromEnv):
//   - DW_TELEMETRY_OPT_IN: "1", "true", "yes" or "on" to enable
//   - DW_TELEMETRY_URL: endpoint receiving JSON arrays of events
//   - DW_CRASH_UPLOAD_URL: endpoint receiving plain-text crash reports
//   - DW_TELEMETRY_TIMEOUT_MS: request timeout, default 1500
//   - DW_TELEMETRY_DEBUG: log send attempts at debug level
type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	Timeout   time.Duration
	// BatchSize events are posted together; a partial batch goes out after
	// FlushInterval or on Flush.
	BatchSize     int
	FlushInterval time.Duration
	DebugLogging  bool
}

// FromEnv reads Config from the DW_TELEMETRY_* environment.
func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("DW_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("DW_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("DW_CRASH_UPLOAD_URL")),
		Timeout:      defaultTimeout,
		DebugLogging: os.Getenv("DW_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("DW_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil && v > 0 {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// WithOptIn returns cfg with OptIn also enabled when the user turned telemetry
// on in the application config.
func (cfg Config) WithOptIn(userOptIn bool) Config {
	cfg.OptIn = cfg.OptIn || userOptIn
	return cfg
}

// Props are event properties. Keys outside allowedProps are dropped so a
// careless caller cannot leak names or paths.
type Props map[string]string

var allowedProps = map[string]bool{
	"documents": true,
	"renderer":  true,
}

// payload is the wire form of one event.
type payload struct {
	Name    string            `json:"name"`
	TS      time.Time         `json:"ts"`
	Session string            `json:"session"`
	Version string            `json:"version"`
	OS      string            `json:"os"`
	Arch    string            `json:"arch"`
	Props   map[string]string `json:"props,omitempty"`
}

// Client batches events on a background goroutine. Session is a random id
// per client so events of one run can be grouped without identifying a user.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	session string

	q       chan payload
	flush   chan chan struct{}
	closed  chan struct{}
	done    chan struct{}
	once    sync.Once
	uploads sync.WaitGroup
}

// New constructs a client and starts its sender.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	c := &Client{
		cfg:     cfg,
		log:     applog.WithComponent("telemetry"),
		cli:     &http.Client{Timeout: cfg.Timeout},
		session: uuid.NewString(),
		q:       make(chan payload, queueSize),
		flush:   make(chan chan struct{}),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events are sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues an event. Full queues drop it.
func (c *Client) Event(name string, props Props) {
	if !c.Enabled() || name == "" {
		return
	}
	p := payload{
		Name:    name,
		TS:      time.Now().UTC(),
		Session: c.session,
		Version: version.String(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
	for k, v := range props {
		if !allowedProps[k] {
			c.debug("telemetry property dropped", slog.String("key", k))
			continue
		}
		if p.Props == nil {
			p.Props = make(map[string]string, len(props))
		}
		p.Props[k] = v
	}
	select {
	case c.q <- p:
	default:
		c.debug("telemetry queue full; event dropped", slog.String("event", name))
	}
}

// Flush posts everything queued so far and waits for the post to finish or
// ctx to end.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	ack := make(chan struct{})
	select {
	case c.flush <- ack:
	case <-c.done:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}

// Close stops the sender. Events not flushed before are dropped.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.closed) })
	<-c.done
}

func (c *Client) loop() {
	defer close(c.done)
	tick := time.NewTicker(c.cfg.FlushInterval)
	defer tick.Stop()
	var batch []payload
	send := func() {
		if len(batch) > 0 {
			c.post(batch)
			batch = nil
		}
	}
	for {
		select {
		case <-c.closed:
			return
		case p := <-c.q:
			batch = append(batch, p)
			if len(batch) >= c.cfg.BatchSize {
				send()
			}
		case ack := <-c.flush:
			for drained := false; !drained; {
				select {
				case p := <-c.q:
					batch = append(batch, p)
				default:
					drained = true
				}
			}
			send()
			close(ack)
		case <-tick.C:
			send()
		}
	}
}

func (c *Client) post(batch []payload) {
	buf, err := json.Marshal(batch)
	if err != nil {
		return
	}
	if err := c.postBody(c.cfg.EventsURL, "application/json", buf); err != nil {
		c.debug("telemetry send failed", slog.Int("events", len(batch)), slog.Any("err", err))
		return
	}
	c.debug("telemetry events sent", slog.Int("events", len(batch)))
}

func (c *Client) postBody(url, contentType string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-DocuWeave-Session", c.session)
	resp, err := c.cli.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return nil
}

func (c *Client) debug(msg string, attrs ...any) {
	if c.cfg.DebugLogging {
		c.log.Debug(msg, attrs...)
	}
}

// UploadCrash posts a crash report in the background if the user opted in and
// a crash URL is configured. Shutdown waits for pending uploads.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	b := append([]byte(nil), report...)
	c.uploads.Add(1)
	go func() {
		defer c.uploads.Done()
		if err := c.postBody(c.cfg.CrashURL, "text/plain; charset=utf-8", b); err != nil {
			c.debug("crash upload failed", slog.Any("err", err))
			return
		}
		c.debug("crash report uploaded")
	}()
}

// waitUploads blocks until pending crash uploads finish or ctx ends.
func (c *Client) waitUploads(ctx context.Context) {
	finished := make(chan struct{})
	go func() {
		c.uploads.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// current returns the default client, creating one from the environment on
// first use.
func current() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// NewDefault installs a client built from cfg as the default, closing the
// previous one.
func NewDefault(cfg Config) {
	c := New(cfg)
	defaultMu.Lock()
	old := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	old.Close()
}

// Enabled reports whether the default client sends events.
func Enabled() bool { return current().Enabled() }

// Event queues an event on the default client.
func Event(name string, props Props) { current().Event(name, props) }

// UploadCrash uploads a crash report with the default client.
func UploadCrash(report []byte) { current().UploadCrash(report) }

// Shutdown flushes queued events, waits for crash uploads and stops the
// default client. A later Event starts a fresh client.
func Shutdown(ctx context.Context) {
	defaultMu.Lock()
	c := defaultClient
	defaultClient = nil
	defaultMu.Unlock()
	if c == nil {
		return
	}
	c.Flush(ctx)
	c.waitUploads(ctx)
	c.Close()
}
