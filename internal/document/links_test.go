/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteLinksExactAndPrefix(t *testing.T) {
	in := `<a href="docuweave://document/A">a</a><a href="docuweave://document/A/child">c</a>`
	out := RewriteLinks(in, "A", "B")
	assert.Equal(t, `<a href="docuweave://document/B">a</a><a href="docuweave://document/B/child">c</a>`, out)
}

func TestRewriteLinksRespectsSegmentBoundary(t *testing.T) {
	in := `<a href="docuweave://document/Guidebook">x</a>`
	assert.Equal(t, in, RewriteLinks(in, "Guide", "Manual"))
}

func TestRewriteLinksEncodedKeepsEncoding(t *testing.T) {
	in := `<a href="docuweave://document/My%20Guide/Set%20up">e</a> <a href='docuweave://document/My Guide'>p</a>`
	out := RewriteLinks(in, "My Guide", "Your Manual")
	assert.Equal(t, `<a href="docuweave://document/Your%20Manual/Set%20up">e</a> <a href='docuweave://document/Your Manual'>p</a>`, out)
	assert.NotContains(t, out, "My%20Guide")
	assert.NotContains(t, out, "My Guide")
}

func TestRewriteLinksPlainPathWithSpaces(t *testing.T) {
	in := `<a href="docuweave://document/My Guide/Set up#top">a</a><a href='docuweave://document/My Guide'>b</a>`
	out := RewriteLinks(in, "My Guide", "Manual")
	assert.Equal(t, `<a href="docuweave://document/Manual/Set up#top">a</a><a href='docuweave://document/Manual'>b</a>`, out)
}

func TestRewriteLinksSkipsSpacedSibling(t *testing.T) {
	in := `<a href="docuweave://document/X 1">a</a><a href="docuweave://document/X 1/Deep">b</a>[c](docuweave://document/X)`
	out := RewriteLinks(in, "X", "Y")
	assert.Equal(t, `<a href="docuweave://document/X 1">a</a><a href="docuweave://document/X 1/Deep">b</a>[c](docuweave://document/Y)`, out)

	in = `<a href="docuweave://document/My Guide 2">a</a><a href="docuweave://document/My%20Guide%202">b</a>`
	assert.Equal(t, in, RewriteLinks(in, "My Guide", "Manual"))
}

func TestRewriteLinksUnescapedNameWritesEncodedLink(t *testing.T) {
	in := `<a href="` + LinkTo("A") + `/Child">a</a>`
	out := RewriteLinks(in, "A", "B C")
	assert.Equal(t, `<a href="docuweave://document/B%20C/Child">a</a>`, out)
	assert.Equal(t, []string{"B C/Child"}, ExtractLinks(out))
}

func TestExtractLinksPlainPathWithSpaces(t *testing.T) {
	content := `<a href="docuweave://document/Untitled 1">1</a><a href="docuweave://document/Untitled">2</a>` +
		`<p>see docuweave://document/My Guide/Set up</p>[x](docuweave://document/X%201)`
	assert.Equal(t, []string{"My Guide/Set up", "Untitled", "Untitled 1", "X 1"}, ExtractLinks(content))
}

func TestRewriteLinksIgnoresOtherSchemes(t *testing.T) {
	in := `<a href="https://example.com/A/child">x</a>`
	assert.Equal(t, in, RewriteLinks(in, "A", "B"))
}

func TestRewriteLinksNoop(t *testing.T) {
	in := `docuweave://document/A`
	assert.Equal(t, in, RewriteLinks(in, "", "B"))
	assert.Equal(t, in, RewriteLinks(in, "A", "A"))
	assert.Equal(t, "docuweave://document/B", RewriteLinks(in, "A", "B"))
}

func TestLinkToAndExtractLinks(t *testing.T) {
	link := LinkTo("My Guide/Setup")
	assert.Equal(t, "docuweave://document/My%20Guide/Setup", link)

	content := `<a href="` + link + `">1</a><a href="docuweave://document/Intro#top">2</a><a href="docuweave://document/Intro">3</a>`
	assert.Equal(t, []string{"Intro", "My Guide/Setup"}, ExtractLinks(content))
	assert.Empty(t, ExtractLinks("<p>no links</p>"))
}
