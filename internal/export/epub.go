/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes projects to formats meant for reading outside DocuWeave.
package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"docuweave/internal/docpath"
	"docuweave/internal/document"
	applog "docuweave/internal/log"
	"docuweave/internal/storage"
)

// Renderer turns stored document content into HTML. A nil Renderer treats
// content as HTML already.
type Renderer interface {
	Render(content string) (string, error)
}

// EPUBOptions controls EPUB export behavior.
type EPUBOptions struct {
	Title       string // defaults to the project name
	Author      string
	Language    string // e.g., "en"
	Publisher   string
	Description string
	// Headings prefixes every chapter with the document name as a heading
	// whose level follows the tree depth.
	Headings bool
}

// ExportsDirName is the folder inside the state directory that receives
// exports written to relative paths.
const ExportsDirName = "exports"

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
}

// ExportEPUB writes p as a reflowable EPUB 3 book: one chapter per document in
// tree order, a nested table of contents mirroring the tree, internal links
// pointing at chapters and referenced project images packaged alongside.
// A relative outPath is placed in the exports folder of the project's state
// directory.
func ExportEPUB(p *document.Project, outPath string, r Renderer, opt EPUBOptions) (string, error) {
	if p == nil {
		return "", errors.New("project is nil")
	}
	if p.Len() == 0 {
		return "", errors.New("no documents to export")
	}
	l := applog.WithOperation(applog.WithComponent("export"), "epub")

	// Defaults
	if opt.Language == "" {
		opt.Language = "en"
	}
	if opt.Title == "" {
		opt.Title = p.Name
	}

	// Resolve output path
	if !filepath.IsAbs(outPath) && p.ProjectPath != "" {
		outPath = filepath.Join(storage.StateDir(storage.ProjectDir(p.ProjectPath)), ExportsDirName, outPath)
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".epub") {
		outPath += ".epub"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure out dir: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	e := &epubWriter{
		p:        p,
		zw:       zw,
		opt:      opt,
		renderer: r,
		chapters: make(map[string]string),
		images:   make(map[string]string),
		log:      l,
	}
	if err := e.write(); err != nil {
		_ = zw.Close()
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close zip: %w", err)
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write epub: %w", err)
	}
	l.Info("epub exported", slog.String("path", outPath), slog.Int("chapters", len(e.order)), slog.Int("images", len(e.imageOrder)))
	return outPath, nil
}

type epubWriter struct {
	p        *document.Project
	zw       *zip.Writer
	opt      EPUBOptions
	renderer Renderer
	log      *slog.Logger

	// document path -> chapter file, in spine order
	chapters map[string]string
	order    []string
	// resolved file -> packaged name, in packaging order
	images     map[string]string
	imageOrder []string
}

func (e *epubWriter) write() error {
	// 1) Write mimetype first, uncompressed
	if err := addStoredZipFile(e.zw, "mimetype", []byte("application/epub+zip")); err != nil {
		return fmt.Errorf("write mimetype: %w", err)
	}

	// 2) META-INF/container.xml
	containerXML := "" +
		"<?xml version=\"1.0\" encoding=\"utf-8\"?>\n" +
		"<container version=\"1.0\" xmlns=\"urn:oasis:names:tc:opendocument:xmlns:container\">\n" +
		"  <rootfiles>\n" +
		"    <rootfile full-path=\"OEBPS/content.opf\" media-type=\"application/oebps-package+xml\"/>\n" +
		"  </rootfiles>\n" +
		"</container>\n"
	if err := addZipFile(e.zw, "META-INF/container.xml", []byte(containerXML)); err != nil {
		return fmt.Errorf("write container.xml: %w", err)
	}

	// 3) Chapter names first so links can point forward
	pad := len(fmt.Sprint(e.p.Len()))
	_ = e.p.Walk(func(path string, _ *document.Document) error {
		e.order = append(e.order, path)
		e.chapters[path] = fmt.Sprintf("doc-%0*d.xhtml", pad, len(e.order))
		return nil
	})
	for _, path := range e.order {
		if err := e.writeChapter(path); err != nil {
			return err
		}
	}

	css := "body { font-family: serif; line-height: 1.4; }\n" +
		"img { max-width: 100%; }\n"
	if err := addZipFile(e.zw, "OEBPS/styles/epub.css", []byte(css)); err != nil {
		return fmt.Errorf("write css: %w", err)
	}

	nav := &bytes.Buffer{}
	nav.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	nav.WriteString("<html xmlns=\"http://www.w3.org/1999/xhtml\" xmlns:epub=\"http://www.idpf.org/2007/ops\">\n<head><title>Table of Contents</title></head>\n<body>\n")
	nav.WriteString("<nav epub:type=\"toc\" id=\"toc\">\n")
	e.writeNav(nav, e.p.Root())
	nav.WriteString("</nav>\n</body>\n</html>\n")
	if err := addZipFile(e.zw, "OEBPS/nav.xhtml", nav.Bytes()); err != nil {
		return fmt.Errorf("write nav.xhtml: %w", err)
	}

	// 4) content.opf
	if err := addZipFile(e.zw, "OEBPS/content.opf", e.packageDocument()); err != nil {
		return fmt.Errorf("write content.opf: %w", err)
	}
	return nil
}

func (e *epubWriter) writeChapter(path string) error {
	content, _ := e.p.Content(path)
	if e.renderer != nil {
		out, err := e.renderer.Render(content)
		if err != nil {
			return fmt.Errorf("render %q: %w", path, err)
		}
		content = out
	}
	body, err := e.xhtmlBody(content)
	if err != nil {
		return fmt.Errorf("convert %q: %w", path, err)
	}
	name := docpath.Parse(path).Base()
	var heading string
	if e.opt.Headings {
		level := docpath.Parse(path).Len()
		if level > 6 {
			level = 6
		}
		heading = fmt.Sprintf("<h%d>%s</h%d>\n", level, html.EscapeString(name), level)
	}
	page := fmt.Sprintf("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n"+
		"<!DOCTYPE html>\n"+
		"<html xmlns=\"http://www.w3.org/1999/xhtml\" xmlns:epub=\"http://www.idpf.org/2007/ops\" xml:lang=\"%s\">\n<head>\n"+
		"<meta charset=\"utf-8\"/>\n"+
		"<title>%s</title>\n"+
		"<link rel=\"stylesheet\" type=\"text/css\" href=\"styles/epub.css\"/>\n"+
		"</head>\n<body>\n<section epub:type=\"chapter\">\n%s%s\n</section>\n"+
		"</body>\n</html>\n", html.EscapeString(e.opt.Language), html.EscapeString(name), heading, body)
	if err := addZipFile(e.zw, "OEBPS/"+e.chapters[path], []byte(page)); err != nil {
		return fmt.Errorf("write chapter: %w", err)
	}
	return nil
}

// xhtmlBody parses content as HTML and serializes the body as XHTML. Scripts
// are dropped, internal links and project images are rewritten.
func (e *epubWriter) xhtmlBody(content string) (string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", err
	}
	body := findBody(doc)
	if body == nil {
		return "", nil
	}
	e.rewrite(body)
	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func (e *epubWriter) rewrite(n *html.Node) {
	if n.Type == html.ElementNode {
		for i, a := range n.Attr {
			switch {
			case n.DataAtom == atom.A && a.Key == "href":
				n.Attr[i].Val = e.chapterHref(a.Val)
			case n.DataAtom == atom.Img && a.Key == "src":
				n.Attr[i].Val = e.packImage(a.Val)
			}
		}
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.DataAtom == atom.Script {
			n.RemoveChild(c)
		} else {
			e.rewrite(c)
		}
		c = next
	}
}

// chapterHref maps an internal link to the chapter of its target, keeping a
// fragment. Links to documents outside the book become "#".
func (e *epubWriter) chapterHref(href string) string {
	if !strings.HasPrefix(href, document.LinkPrefix) {
		return href
	}
	rest, frag := strings.TrimPrefix(href, document.LinkPrefix), ""
	if i := strings.IndexAny(rest, "#?"); i >= 0 {
		if j := strings.IndexByte(rest[i:], '#'); j >= 0 {
			frag = rest[i+j:]
		}
		rest = rest[:i]
	}
	if un, err := url.PathUnescape(rest); err == nil {
		rest = un
	}
	file, ok := e.chapters[docpath.Parse(rest).String()]
	if !ok {
		e.log.Debug("dangling internal link", slog.String("href", href))
		return "#"
	}
	return file + frag
}

// packImage adds a project image to the book once and returns its new src.
// URLs and images that cannot be read are left as they are.
func (e *epubWriter) packImage(src string) string {
	if strings.Contains(src, "://") || strings.HasPrefix(src, "data:") {
		return src
	}
	ext := strings.ToLower(filepath.Ext(src))
	if _, ok := imageTypes[ext]; !ok {
		return src
	}
	file, err := storage.ResolveAsset(e.p, src)
	if err != nil {
		e.log.Debug("image not resolvable", slog.String("src", src), slog.Any("err", err))
		return src
	}
	if name, ok := e.images[file]; ok {
		return name
	}
	data, err := os.ReadFile(file)
	if err != nil {
		e.log.Warn("image missing", slog.String("src", src), slog.Any("err", err))
		return src
	}
	name := fmt.Sprintf("images/img-%d%s", len(e.imageOrder)+1, ext)
	if err := addZipFile(e.zw, "OEBPS/"+name, data); err != nil {
		e.log.Warn("zip add image failed", slog.String("src", src), slog.Any("err", err))
		return src
	}
	e.images[file] = name
	e.imageOrder = append(e.imageOrder, file)
	return name
}

func (e *epubWriter) writeNav(buf *bytes.Buffer, d *document.Document) {
	kids := d.Children()
	if len(kids) == 0 {
		return
	}
	buf.WriteString("<ol>\n")
	for _, c := range kids {
		fmt.Fprintf(buf, "<li><a href=\"%s\">%s</a>", e.chapters[c.FullPath()], html.EscapeString(c.Name()))
		e.writeNav(buf, c)
		buf.WriteString("</li>\n")
	}
	buf.WriteString("</ol>\n")
}

// bookID identifies the book across re-exports of the same saved project so
// readers treat a new export as an update. Unsaved projects get a random id.
func bookID(p *document.Project) uuid.UUID {
	if p.ProjectPath == "" {
		return uuid.New()
	}
	abs, err := filepath.Abs(p.ProjectPath)
	if err != nil {
		abs = p.ProjectPath
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs)))
}

func (e *epubWriter) packageDocument() []byte {
	mod := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	uid := "urn:uuid:" + bookID(e.p).String()

	opf := &bytes.Buffer{}
	opf.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	opf.WriteString("<package version=\"3.0\" unique-identifier=\"pub-id\" xmlns=\"http://www.idpf.org/2007/opf\">\n")
	opf.WriteString("  <metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\" xmlns:opf=\"http://www.idpf.org/2007/opf\">\n")
	fmt.Fprintf(opf, "    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", uid)
	fmt.Fprintf(opf, "    <dc:title>%s</dc:title>\n", html.EscapeString(e.opt.Title))
	fmt.Fprintf(opf, "    <dc:language>%s</dc:language>\n", html.EscapeString(e.opt.Language))
	for _, m := range []struct{ tag, val string }{
		{"creator", e.opt.Author},
		{"publisher", e.opt.Publisher},
		{"description", e.opt.Description},
	} {
		if strings.TrimSpace(m.val) != "" {
			fmt.Fprintf(opf, "    <dc:%s>%s</dc:%s>\n", m.tag, html.EscapeString(m.val), m.tag)
		}
	}
	fmt.Fprintf(opf, "    <meta property=\"dcterms:modified\">%s</meta>\n", mod)
	opf.WriteString("  </metadata>\n")
	opf.WriteString("  <manifest>\n")
	opf.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	opf.WriteString("    <item id=\"css\" href=\"styles/epub.css\" media-type=\"text/css\"/>\n")
	for i, path := range e.order {
		fmt.Fprintf(opf, "    <item id=\"doc-%d\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n", i+1, e.chapters[path])
	}
	for i, file := range e.imageOrder {
		name := e.images[file]
		fmt.Fprintf(opf, "    <item id=\"img-%d\" href=\"%s\" media-type=\"%s\"/>\n", i+1, name, imageTypes[filepath.Ext(name)])
	}
	opf.WriteString("  </manifest>\n")
	opf.WriteString("  <spine>\n")
	for i := range e.order {
		fmt.Fprintf(opf, "    <itemref idref=\"doc-%d\"/>\n", i+1)
	}
	opf.WriteString("  </spine>\n")
	opf.WriteString("</package>\n")
	return opf.Bytes()
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// addStoredZipFile writes an entry with STORE method (no compression), required for EPUB mimetype.
func addStoredZipFile(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Store}
	// Set modification time without using deprecated SetModTime
	hdr.Modified = time.Now()
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
