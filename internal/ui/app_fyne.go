//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"docuweave/internal/config"
	"docuweave/internal/crash"
	"docuweave/internal/docpath"
	"docuweave/internal/document"
	"docuweave/internal/editor"
	"docuweave/internal/export"
	applog "docuweave/internal/log"
	"docuweave/internal/storage"
	"docuweave/internal/version"
)

const previewDelay = 300 * time.Millisecond

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// fyneSurface is the editing surface: a source entry and a plain text preview
// of the rendered document.
type fyneSurface struct {
	source    *widget.Entry
	preview   *widget.Label
	onChange  func(string)
	afterEdit func(string)
	updating  bool
}

func newFyneSurface() *fyneSurface {
	s := &fyneSurface{source: widget.NewMultiLineEntry(), preview: widget.NewLabel("")}
	s.source.Wrapping = fyne.TextWrapWord
	s.preview.Wrapping = fyne.TextWrapWord
	s.source.OnChanged = func(text string) {
		if s.updating {
			return
		}
		if s.onChange != nil {
			s.onChange(text)
		}
		if s.afterEdit != nil {
			s.afterEdit(text)
		}
	}
	return s
}

func (s *fyneSurface) Display(source, rendered string) {
	s.updating = true
	s.source.SetText(source)
	s.updating = false
	s.preview.SetText(storage.PlainText(rendered))
}

func (s *fyneSurface) OnContentChanged(fn func(string)) { s.onChange = fn }

// Run starts the Fyne desktop shell: the document tree on the left, the source
// editor and its preview on the right.
func Run(opts Options) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()), slog.Bool("debug", opts.Debug))

	cfg := opts.Config
	renderer, err := NewRenderer(cfg)
	if err != nil {
		return err
	}
	surface := newFyneSurface()
	sess := editor.NewSession(nil, surface, renderer)
	defer crash.RecoverFunc(sess.Project)

	fyneApp := app.NewWithID("docuweave")
	applyTheme(fyneApp, cfg.General.Theme)
	w := fyneApp.NewWindow("DocuWeave")
	// Restore window size from preferences (with sane minimums)
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1100)
	winH := prefs.IntWithFallback("window.height", 760)
	if winW < 640 {
		winW = 640
	}
	if winH < 480 {
		winH = 480
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")

	updateTitle := func() {
		p := sess.Project()
		mark := ""
		if sess.Dirty() {
			mark = " *"
		}
		title := "DocuWeave - " + p.Name + mark
		if cur := sess.Current(); cur != "" {
			title += " - " + cur
		}
		w.SetTitle(title)
	}
	showErr := func(err error) {
		l.Error("ui action failed", slog.Any("err", err))
		dialog.ShowError(err, w)
	}

	// Document tree (left)
	syncing := false
	tree := widget.NewTree(
		func(id widget.TreeNodeID) []widget.TreeNodeID { return childIDs(sess.Project(), id) },
		func(id widget.TreeNodeID) bool { return isBranch(sess.Project(), id) },
		func(bool) fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.TreeNodeID, _ bool, o fyne.CanvasObject) { o.(*widget.Label).SetText(displayName(id)) },
	)
	tree.OnSelected = func(id widget.TreeNodeID) {
		if syncing || id == sess.Current() {
			return
		}
		if err := sess.Open(id); err != nil {
			showErr(err)
			return
		}
		updateTitle()
	}
	syncTree := func() {
		syncing = true
		defer func() { syncing = false }()
		tree.Refresh()
		cur := sess.Current()
		if cur == "" {
			tree.UnselectAll()
			return
		}
		for parent := docpath.Parse(cur).Parent(); !parent.IsRoot(); parent = parent.Parent() {
			tree.OpenBranch(parent.String())
		}
		tree.Select(cur)
		tree.ScrollTo(cur)
	}
	refreshAll := func() {
		syncTree()
		updateTitle()
	}

	// Re-render the preview once typing pauses
	var previewTimer *time.Timer
	surface.afterEdit = func(string) {
		updateTitle()
		if previewTimer != nil {
			previewTimer.Stop()
		}
		previewTimer = time.AfterFunc(previewDelay, func() {
			fyne.Do(func() {
				out, err := renderer.Render(surface.source.Text)
				if err != nil {
					status.SetText("Preview failed: " + err.Error())
					return
				}
				surface.preview.SetText(storage.PlainText(out))
			})
		})
	}

	rememberProject := func(path string) {
		cfg.AddRecentProject(path)
		if err := config.Save(cfg); err != nil {
			l.Warn("save config failed", slog.Any("err", err))
		}
	}
	confirmDiscard := func(then func()) {
		if !sess.Dirty() {
			then()
			return
		}
		dialog.ShowConfirm("Unsaved Changes", "Discard unsaved changes?", func(ok bool) {
			if ok {
				then()
			}
		}, w)
	}
	checkIndex := func(path string) {
		go func(p *document.Project) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			rebuilt, err := storage.DetectAndRebuildIndex(ctx, storage.ProjectDir(path), p)
			fyne.Do(func() {
				switch {
				case err != nil:
					l.Warn("index check failed", slog.Any("err", err))
					status.SetText("Index unavailable; use Tools > Rebuild Index.")
				case rebuilt:
					status.SetText("Index rebuilt.")
				}
			})
		}(sess.Project().Clone())
	}
	loadManifest := func(path string) {
		err := sess.Load(path)
		if err == nil {
			rememberProject(path)
			refreshAll()
			status.SetText("Opened " + path)
			checkIndex(path)
			return
		}
		if !canRestore(err) {
			showErr(err)
			return
		}
		l.Warn("manifest damaged; offering backup", slog.String("manifest", path), slog.Any("err", err))
		dialog.ShowConfirm("Project Damaged", fmt.Sprintf("%v\n\nRestore the latest backup?", err), func(ok bool) {
			if !ok {
				return
			}
			p, rerr := storage.RestoreLatestBackup(path)
			if rerr != nil {
				showErr(rerr)
				return
			}
			if rerr = sess.Replace(p, true); rerr != nil {
				showErr(rerr)
				return
			}
			rememberProject(path)
			refreshAll()
			status.SetText("Restored from backup. Save to keep it.")
		}, w)
	}
	saveTo := func(path string) {
		if err := sess.Save(path); err != nil {
			showErr(err)
			return
		}
		rememberProject(sess.Project().ProjectPath)
		updateTitle()
		status.SetText("Saved " + sess.Project().ProjectPath)
	}
	saveAs := func() {
		save := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
			if err != nil {
				showErr(err)
				return
			}
			if uc == nil {
				return
			}
			path := uc.URI().Path()
			_ = uc.Close()
			if !strings.HasSuffix(strings.ToLower(path), storage.ManifestExt) {
				path += storage.ManifestExt
			}
			saveTo(path)
		}, w)
		save.SetFileName(sess.Project().Name + storage.ManifestExt)
		save.SetFilter(fstorage.NewExtensionFileFilter([]string{storage.ManifestExt}))
		save.Show()
	}
	// projectDir returns the folder holding the index, or "" after telling the
	// user that the action needs a saved project.
	projectDir := func(action string) string {
		if sess.Project().ProjectPath == "" {
			dialog.ShowInformation(action, "Save the project first.", w)
			return ""
		}
		return storage.ProjectDir(sess.Project().ProjectPath)
	}
	showResults := func(title string, paths, labels []string) {
		if len(paths) == 0 {
			dialog.ShowInformation(title, "Nothing found.", w)
			return
		}
		list := widget.NewList(
			func() int { return len(labels) },
			func() fyne.CanvasObject { return widget.NewLabel("") },
			func(i widget.ListItemID, o fyne.CanvasObject) { o.(*widget.Label).SetText(labels[i]) },
		)
		d := dialog.NewCustom(title, "Close", list, w)
		list.OnSelected = func(i widget.ListItemID) {
			d.Hide()
			if err := sess.Open(paths[i]); err != nil {
				showErr(err)
				return
			}
			refreshAll()
		}
		d.Resize(fyne.NewSize(560, 400))
		d.Show()
	}

	newItem := fyne.NewMenuItem("New Project", func() {
		confirmDiscard(func() {
			l.Info("menu: new project")
			if err := sess.Replace(nil, false); err != nil {
				showErr(err)
			}
			refreshAll()
		})
	})
	openItem := fyne.NewMenuItem("Open…", func() {
		confirmDiscard(func() {
			open := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
				if err != nil {
					showErr(err)
					return
				}
				if ur == nil {
					return
				}
				path := ur.URI().Path()
				_ = ur.Close()
				loadManifest(path)
			}, w)
			open.SetFilter(fstorage.NewExtensionFileFilter([]string{storage.ManifestExt}))
			open.Show()
		})
	})
	var recentItems []*fyne.MenuItem
	for _, path := range cfg.General.RecentProjects {
		recentItems = append(recentItems, fyne.NewMenuItem(path, func() {
			confirmDiscard(func() { loadManifest(path) })
		}))
	}
	recentItem := fyne.NewMenuItem("Open Recent", nil)
	recentItem.ChildMenu = fyne.NewMenu("", recentItems...)
	recentItem.Disabled = len(recentItems) == 0

	saveItem := fyne.NewMenuItem("Save", func() {
		if sess.Project().ProjectPath == "" {
			saveAs()
			return
		}
		saveTo("")
	})
	saveAsItem := fyne.NewMenuItem("Save As…", saveAs)
	reloadItem := fyne.NewMenuItem("Reload", func() {
		confirmDiscard(func() {
			if err := sess.Reload(); err != nil {
				showErr(err)
				return
			}
			refreshAll()
			status.SetText("Reloaded from disk.")
		})
	})

	newDocument := func(asChild bool) {
		parent := ""
		if asChild {
			parent = sess.Current()
		}
		name := widget.NewEntry()
		name.SetPlaceHolder("Leave empty for an untitled document")
		dialog.ShowForm("New Document", "Create", "Cancel", []*widget.FormItem{
			widget.NewFormItem("Name", name),
		}, func(ok bool) {
			if !ok {
				return
			}
			if _, err := sess.Create(strings.TrimSpace(name.Text), parent); err != nil {
				showErr(err)
				return
			}
			refreshAll()
		}, w)
	}
	newDocItem := fyne.NewMenuItem("New Document", func() { newDocument(false) })
	newChildItem := fyne.NewMenuItem("New Child Document", func() { newDocument(true) })
	renameItem := fyne.NewMenuItem("Rename or Move…", func() {
		cur := sess.Current()
		if cur == "" {
			dialog.ShowInformation("Rename", "No document selected.", w)
			return
		}
		entry := widget.NewEntry()
		entry.SetText(displayName(cur))
		dialog.ShowForm("Rename or Move", "Apply", "Cancel", []*widget.FormItem{
			widget.NewFormItemWithHint("Name or path", entry, "A path with \"/\" moves the document"),
		}, func(ok bool) {
			if !ok {
				return
			}
			if err := sess.Rename(cur, renameTarget(cur, entry.Text)); err != nil {
				showErr(err)
				return
			}
			refreshAll()
		}, w)
	})
	deleteItem := fyne.NewMenuItem("Delete", func() {
		cur := sess.Current()
		if cur == "" {
			dialog.ShowInformation("Delete", "No document selected.", w)
			return
		}
		dialog.ShowConfirm("Delete Document", fmt.Sprintf("Delete %q and every document below it?", cur), func(ok bool) {
			if !ok {
				return
			}
			if err := sess.Remove(cur); err != nil {
				showErr(err)
				return
			}
			refreshAll()
		}, w)
	})
	// insertText appends snippet to the current document.
	insertText := func(snippet string) {
		text := surface.source.Text + snippet
		surface.source.SetText(text)
		if err := sess.Edit(text); err != nil {
			showErr(err)
		}
		updateTitle()
	}
	insertLinkItem := fyne.NewMenuItem("Insert Link…", func() {
		cur := sess.Current()
		if cur == "" {
			dialog.ShowInformation("Insert Link", "No document selected.", w)
			return
		}
		var targets []string
		_ = sess.Project().Walk(func(path string, _ *document.Document) error {
			if path != cur {
				targets = append(targets, path)
			}
			return nil
		})
		if len(targets) == 0 {
			dialog.ShowInformation("Insert Link", "There is no other document to link to.", w)
			return
		}
		target := widget.NewSelect(targets, nil)
		target.SetSelectedIndex(0)
		dialog.ShowForm("Insert Link", "Insert", "Cancel", []*widget.FormItem{
			widget.NewFormItem("Document", target),
		}, func(ok bool) {
			if ok && target.Selected != "" {
				insertText(internalLink(target.Selected, cfg.Editor.Markdown))
			}
		}, w)
	})
	insertExternalItem := fyne.NewMenuItem("Insert External Link…", func() {
		if sess.Current() == "" {
			dialog.ShowInformation("Insert External Link", "No document selected.", w)
			return
		}
		urlEntry := widget.NewEntry()
		urlEntry.SetPlaceHolder("https://example.com")
		textEntry := widget.NewEntry()
		textEntry.SetPlaceHolder("Shown text (optional)")
		dialog.ShowForm("Insert External Link", "Insert", "Cancel", []*widget.FormItem{
			widget.NewFormItemWithHint("URL", urlEntry, "http:// is added when no scheme is given"),
			widget.NewFormItem("Text", textEntry),
		}, func(ok bool) {
			if ok && strings.TrimSpace(urlEntry.Text) != "" {
				insertText(externalLink(urlEntry.Text, textEntry.Text, cfg.Editor.Markdown))
			}
		}, w)
	})
	insertImageItem := fyne.NewMenuItem("Insert Image…", func() {
		if sess.Current() == "" {
			dialog.ShowInformation("Insert Image", "No document selected.", w)
			return
		}
		open := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
			if err != nil {
				showErr(err)
				return
			}
			if ur == nil {
				return
			}
			path := ur.URI().Path()
			_ = ur.Close()
			ref, err := sess.ResolveAsset(path)
			if errors.Is(err, storage.ErrUnsaved) {
				dialog.ShowInformation("Insert Image", "Save the project before inserting images.", w)
				return
			}
			if err != nil {
				showErr(err)
				return
			}
			insertText(imageMarkup(ref, cfg.Editor.Markdown))
		}, w)
		open.SetFilter(fstorage.NewExtensionFileFilter(imageExts))
		open.Show()
	})

	searchItem := fyne.NewMenuItem("Search…", func() {
		dir := projectDir("Search")
		if dir == "" {
			return
		}
		qEntry := widget.NewEntry()
		qEntry.SetPlaceHolder("Search terms (FTS5; use quotes for phrases)")
		underEntry := widget.NewEntry()
		underEntry.SetPlaceHolder("Limit to a subtree, e.g. Guide")
		dialog.ShowForm("Search", "Run", "Cancel", []*widget.FormItem{
			widget.NewFormItem("Query", qEntry),
			widget.NewFormItem("Under", underEntry),
		}, func(ok bool) {
			if !ok {
				return
			}
			q := storage.SearchQuery{Text: strings.TrimSpace(qEntry.Text), Under: strings.TrimSpace(underEntry.Text)}
			status.SetText("Searching…")
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				res, err := storage.Search(ctx, dir, q)
				fyne.Do(func() {
					if err != nil {
						status.SetText("Search failed.")
						showErr(err)
						return
					}
					status.SetText(fmt.Sprintf("%d results", len(res)))
					paths := make([]string, len(res))
					labels := make([]string, len(res))
					for i, r := range res {
						paths[i] = r.Path
						sn := []rune(strings.TrimSpace(r.Snippet))
						if len(sn) > 120 {
							sn = append(sn[:117], '…')
						}
						labels[i] = r.Path
						if len(sn) > 0 {
							labels[i] += " - " + string(sn)
						}
					}
					showResults("Search Results", paths, labels)
				})
			}()
		}, w)
	})
	backlinksItem := fyne.NewMenuItem("Backlinks", func() {
		cur := sess.Current()
		dir := projectDir("Backlinks")
		if dir == "" || cur == "" {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			refs, err := storage.Backlinks(ctx, dir, cur)
			fyne.Do(func() {
				if err != nil {
					showErr(err)
					return
				}
				showResults("Documents linking to "+cur, refs, refs)
			})
		}()
	})
	exportItem := fyne.NewMenuItem("Export EPUB…", func() {
		if sess.Project().Len() == 0 {
			dialog.ShowInformation("Export EPUB", "The project has no documents.", w)
			return
		}
		save := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
			if err != nil {
				showErr(err)
				return
			}
			if uc == nil {
				return
			}
			outPath := uc.URI().Path()
			_ = uc.Close()
			out, err := export.ExportEPUB(sess.Project(), outPath, renderer, export.EPUBOptions{Headings: true})
			if err != nil {
				showErr(err)
				return
			}
			dialog.ShowInformation("Export EPUB", "Exported to "+out, w)
		}, w)
		save.SetFileName(sess.Project().Name + ".epub")
		save.SetFilter(fstorage.NewExtensionFileFilter([]string{".epub"}))
		save.Show()
	})
	rebuildIndexItem := fyne.NewMenuItem("Rebuild Index", func() {
		dir := projectDir("Rebuild Index")
		if dir == "" {
			return
		}
		l.Info("menu: rebuild index")
		status.SetText("Rebuilding index…")
		go func(p *document.Project) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			err := storage.RebuildIndex(ctx, dir, p)
			fyne.Do(func() {
				if err != nil {
					status.SetText("Rebuild failed.")
					showErr(err)
					return
				}
				status.SetText("Index rebuilt.")
			})
		}(sess.Project().Clone())
	})
	historyStep := func(step func() (bool, error), nothing string) {
		ok, err := step()
		if err != nil {
			showErr(err)
			return
		}
		if !ok {
			status.SetText(nothing)
			return
		}
		updateTitle()
	}
	undoItem := fyne.NewMenuItem("Undo Document Edit", func() { historyStep(sess.Undo, "Nothing to undo.") })
	redoItem := fyne.NewMenuItem("Redo Document Edit", func() { historyStep(sess.Redo, "Nothing to redo.") })
	aboutItem := fyne.NewMenuItem("About DocuWeave", func() {
		dialog.ShowInformation("About", "DocuWeave "+version.String(), w)
	})

	newItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyN, Modifier: fyne.KeyModifierControl}
	openItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierControl}
	saveItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: fyne.KeyModifierControl}
	searchItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyF, Modifier: fyne.KeyModifierControl | fyne.KeyModifierShift}

	fileMenu := fyne.NewMenu("File", newItem, openItem, recentItem, saveItem, saveAsItem, reloadItem, fyne.NewMenuItemSeparator(), exportItem)
	editMenu := fyne.NewMenu("Edit", undoItem, redoItem)
	docMenu := fyne.NewMenu("Document", newDocItem, newChildItem, renameItem, deleteItem, fyne.NewMenuItemSeparator(), insertLinkItem, insertExternalItem, insertImageItem, fyne.NewMenuItemSeparator(), backlinksItem)
	toolsMenu := fyne.NewMenu("Tools", searchItem, rebuildIndexItem)
	helpMenu := fyne.NewMenu("Help", aboutItem)
	w.SetMainMenu(fyne.NewMainMenu(fileMenu, editMenu, docMenu, toolsMenu, helpMenu))

	editorPane := container.NewVSplit(surface.source, container.NewVScroll(surface.preview))
	editorPane.Offset = 0.65
	split := container.NewHSplit(tree, editorPane)
	split.Offset = 0.25
	w.SetContent(container.NewBorder(nil, status, nil, nil, split))

	// Persist preferences on close
	w.SetCloseIntercept(func() {
		closeWin := func() {
			sz := w.Canvas().Size()
			prefs.SetInt("window.width", int(sz.Width))
			prefs.SetInt("window.height", int(sz.Height))
			w.Close()
		}
		confirmDiscard(closeWin)
	})

	// Try to open a project if provided
	if opts.ProjectPath != "" {
		loadManifest(opts.ProjectPath)
	}
	refreshAll()

	w.ShowAndRun()
	l.Info("UI exited")
	return nil
}

// variantTheme pins the default theme to one variant regardless of the OS
// setting.
type variantTheme struct {
	fyne.Theme
	variant fyne.ThemeVariant
}

func (t variantTheme) Color(n fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	return t.Theme.Color(n, t.variant)
}

// applyTheme honours the configured theme; "system" and unknown values follow
// the OS.
func applyTheme(a fyne.App, name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dark":
		a.Settings().SetTheme(variantTheme{Theme: theme.DefaultTheme(), variant: theme.VariantDark})
	case "light":
		a.Settings().SetTheme(variantTheme{Theme: theme.DefaultTheme(), variant: theme.VariantLight})
	}
}
