/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package docpath defines the path value used to address documents in a project tree.
// A path is an ordered list of document names; the empty path is the project root.
package docpath

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Separator joins segments in the string form of a path.
const Separator = "/"

// Names taken by the on-disk layout. Every document directory holds its own
// content in ContentFileName and the project directory keeps backups and the
// index in StateDirName.
const (
	ContentFileName = "__content.html"
	StateDirName    = ".docuweave"
)

var (
	// ErrEmptySegment is returned for names that are empty after trimming.
	ErrEmptySegment = errors.New("empty path segment")
	// ErrReservedSegment is returned for ".", ".." and the names of the on-disk layout.
	ErrReservedSegment = errors.New("reserved path segment")
	// ErrSeparatorInName is returned when a single name contains the separator.
	ErrSeparatorInName = errors.New("name contains path separator")
)

// Path is an immutable sequence of document names.
type Path struct {
	segs []string
}

// Root is the empty path.
var Root = Path{}

// Parse splits s on the separator. Empty segments (leading, trailing or doubled
// slashes) are dropped and every segment is NFC-normalized and trimmed.
func Parse(s string) Path {
	if s == "" {
		return Root
	}
	parts := strings.Split(s, Separator)
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = NormalizeName(p)
		if p == "" {
			continue
		}
		segs = append(segs, p)
	}
	return Path{segs: segs}
}

// New builds a path from already separated names.
func New(names ...string) Path {
	segs := make([]string, 0, len(names))
	for _, n := range names {
		if n = NormalizeName(n); n != "" {
			segs = append(segs, n)
		}
	}
	return Path{segs: segs}
}

// NormalizeName trims surrounding whitespace and applies Unicode NFC so that
// visually identical names compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName reports whether name can be used as a single path segment.
func ValidateName(name string) error {
	n := NormalizeName(name)
	switch {
	case n == "":
		return ErrEmptySegment
	case n == "." || n == "..", strings.EqualFold(n, ContentFileName), strings.EqualFold(n, StateDirName):
		return ErrReservedSegment
	case strings.Contains(n, Separator):
		return ErrSeparatorInName
	}
	return nil
}

func (p Path) String() string { return strings.Join(p.segs, Separator) }

// IsRoot reports whether p is the empty path.
func (p Path) IsRoot() bool { return len(p.segs) == 0 }

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segs) }

// Segments returns a copy of the segments.
func (p Path) Segments() []string { return append([]string(nil), p.segs...) }

// Base returns the last segment, or "" for the root.
func (p Path) Base() string {
	if len(p.segs) == 0 {
		return ""
	}
	return p.segs[len(p.segs)-1]
}

// Parent returns p without its last segment. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p.segs) <= 1 {
		return Root
	}
	return Path{segs: p.segs[:len(p.segs)-1 : len(p.segs)-1]}
}

// Join appends names to p.
func (p Path) Join(names ...string) Path {
	out := make([]string, 0, len(p.segs)+len(names))
	out = append(out, p.segs...)
	for _, n := range names {
		if n = NormalizeName(n); n != "" {
			out = append(out, n)
		}
	}
	return Path{segs: out}
}

// Equal reports segment-wise equality.
func (p Path) Equal(o Path) bool {
	if len(p.segs) != len(o.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i] != o.segs[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is p itself or one of its ancestors.
// Every path has the root as prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segs) > len(p.segs) {
		return false
	}
	for i := range prefix.segs {
		if p.segs[i] != prefix.segs[i] {
			return false
		}
	}
	return true
}

// Rebase replaces the leading oldPrefix of p with newPrefix. The second result
// is false when p does not start with oldPrefix.
func (p Path) Rebase(oldPrefix, newPrefix Path) (Path, bool) {
	if !p.HasPrefix(oldPrefix) {
		return p, false
	}
	out := make([]string, 0, len(newPrefix.segs)+len(p.segs)-len(oldPrefix.segs))
	out = append(out, newPrefix.segs...)
	out = append(out, p.segs[len(oldPrefix.segs):]...)
	return Path{segs: out}, true
}

// Escape percent-encodes every segment, keeping the separator. Only the RFC 3986
// unreserved characters are left as is.
func (p Path) Escape() string {
	var b strings.Builder
	for i, s := range p.segs {
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(EscapeSegment(s))
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

// EscapeSegment percent-encodes s byte-wise outside the unreserved set.
func EscapeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
