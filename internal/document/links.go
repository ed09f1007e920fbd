/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package document

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"docuweave/internal/docpath"
)

// LinkScheme is the URL scheme of internal links between documents.
const LinkScheme = "docuweave"

// LinkPrefix precedes the target path of every internal link.
const LinkPrefix = LinkScheme + "://document/"

// A plain reference may contain spaces, so it ends only at a deeper segment,
// the end of an attribute, tag or Markdown link, a fragment or query, a line
// break or the end of the content. An encoded reference cannot contain
// whitespace and also ends there.
const (
	plainEnd   = `(?:/|["'<>#?)\r\n]|$)`
	encodedEnd = `(?:/|["'<>#?)\s]|$)`
)

var linkPattern = regexp.MustCompile(regexp.QuoteMeta(LinkPrefix) + `([^"'<>#?)\r\n]+)`)

// LinkTo returns the percent-encoded internal link for path.
func LinkTo(path string) string {
	return LinkPrefix + docpath.Parse(path).Escape()
}

// RewriteLinks rewrites internal links that point at oldPath, or at a document
// below it, so that they point at newPath. The remainder of a deeper link is
// kept. Plain and percent-encoded references are both rewritten and keep their
// form. When both forms of oldPath are identical the reference is matched with
// the plain boundaries and rewritten in the encoded form LinkTo produces.
func RewriteLinks(content, oldPath, newPath string) string {
	from, to := docpath.Parse(oldPath), docpath.Parse(newPath)
	if from.IsRoot() || from.Equal(to) {
		return content
	}
	enc := from.Escape()
	if enc == from.String() {
		return rewriteVariant(content, enc, to.Escape(), plainEnd)
	}
	content = rewriteVariant(content, from.String(), to.String(), plainEnd)
	return rewriteVariant(content, enc, to.Escape(), encodedEnd)
}

func rewriteVariant(content, oldRef, newRef, end string) string {
	match := LinkPrefix + oldRef
	re := regexp.MustCompile(regexp.QuoteMeta(match) + end)
	replacement := LinkPrefix + newRef
	return re.ReplaceAllStringFunc(content, func(m string) string {
		return replacement + m[len(match):]
	})
}

// ExtractLinks returns the sorted, de-duplicated document paths referenced by
// internal links in content. Encoded references are decoded.
func ExtractLinks(content string) []string {
	seen := make(map[string]struct{})
	for _, m := range linkPattern.FindAllStringSubmatch(content, -1) {
		raw := strings.TrimRightFunc(m[1], unicode.IsSpace)
		if dec, err := url.PathUnescape(raw); err == nil {
			raw = dec
		}
		p := docpath.Parse(raw)
		if p.IsRoot() {
			continue
		}
		seen[p.String()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
