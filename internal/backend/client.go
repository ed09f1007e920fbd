/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"docuweave/internal/storage"
)

// Client is a minimal HTTP client for the read-only backend API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server %s %s: %s", method, u.Path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Authenticate requests a token for subject and keeps it for later calls.
func (c *Client) Authenticate(ctx context.Context, subject string) (Token, error) {
	var tok Token
	body := map[string]any{"subject": subject}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", body, &tok); err != nil {
		return Token{}, err
	}
	c.Token = tok.Token
	return tok, nil
}

// ListProjects returns the published projects.
func (c *Client) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	var list []ProjectInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Search runs q against a published project.
func (c *Client) Search(ctx context.Context, projectID int64, q storage.SearchQuery) ([]storage.SearchResult, error) {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.Under != "" {
		v.Set("under", q.Under)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	path := fmt.Sprintf("/api/projects/%d/search", projectID)
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var hits []SearchHit
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &hits); err != nil {
		return nil, err
	}
	out := make([]storage.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, storage.SearchResult(h))
	}
	return out, nil
}

// Backlinks returns the published documents linking to path.
func (c *Client) Backlinks(ctx context.Context, projectID int64, path string) ([]string, error) {
	var out []string
	p := fmt.Sprintf("/api/projects/%d/backlinks?path=%s", projectID, url.QueryEscape(path))
	if err := c.doJSON(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
