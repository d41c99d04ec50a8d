// Package editor renders tax documents into editable panels and turns the
// panels' controls back into committable documents.
//
// Each panel's control list is the only home of uncommitted edits. Every
// structural change (add item, remove item, field toggle) first
// reconstructs the document from the controls, applies the change to that
// copy and re-renders, so edits elsewhere in the document survive.
package editor

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tax-intake/internal/field"
	"github.com/sells-group/tax-intake/internal/model"
)

var (
	ErrUnknownDocument = eris.New("editor: unknown document")
	ErrUnknownControl  = eris.New("editor: unknown control")
	ErrUnknownGroup    = eris.New("editor: unknown item group")
	ErrReadOnly        = eris.New("editor: control is read-only")
	ErrSaveInProgress  = eris.New("editor: save in progress")
	ErrNotRendered     = eris.New("editor: nothing rendered")
)

// retrySuppressed lists error-record reasons for which re-uploading the
// same file cannot help. Matched case-insensitively.
var retrySuppressed = []string{"not supported", "duplicate"}

// Catalog is the read-only form type configuration.
type Catalog interface {
	FieldsFor(formType string) []string
	Declares(formType, field string) bool
}

// API is the slice of the backend the editor commits through.
type API interface {
	UpdateForm(ctx context.Context, customer string, doc model.Document) ([]model.Document, error)
	DeleteFile(ctx context.Context, customer, fileID string) error
}

// Listener is told about document-level changes so list-level state can
// refresh.
type Listener interface {
	// DocumentsChanged is called after a save or delete with the current
	// document list.
	DocumentsChanged(docs []model.Document)
	// ReloadRequired is called when the rendered tree can no longer be
	// patched in place.
	ReloadRequired()
}

// Option configures an Editor.
type Option func(*Editor)

// WithListener registers the host notified of document changes.
func WithListener(l Listener) Option {
	return func(e *Editor) {
		e.listener = l
	}
}

// WithIDGenerator overrides the item id source.
func WithIDGenerator(gen func() string) Option {
	return func(e *Editor) {
		e.newID = gen
	}
}

// Editor owns the rendered tree of one workspace.
type Editor struct {
	fmt      *field.Formatter
	catalog  Catalog
	api      API
	listener Listener
	newID    func() string

	mu       sync.Mutex
	customer string
	view     *View
	backup   *Backup
	saves    uint64
}

// New creates an editor.
func New(f *field.Formatter, catalog Catalog, api API, opts ...Option) *Editor {
	e := &Editor{
		fmt:     f,
		catalog: catalog,
		api:     api,
		newID:   newItemID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetCustomer sets the workspace that saves and deletes are issued for.
func (e *Editor) SetCustomer(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customer = name
}

// SetListener replaces the host listener.
func (e *Editor) SetListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// Render replaces the whole tree. docs is the live list; backup is the
// caller's committed snapshot of the same list. When showAllFields is set,
// catalog fields missing from a document get placeholder controls. When
// isNewUpload is set, the year group of the last document is expanded.
func (e *Editor) Render(docs []model.Document, backup *Backup, showAllFields, isNewUpload bool) *View {
	e.mu.Lock()
	defer e.mu.Unlock()

	byKey := map[string]*YearGroup{}
	view := &View{}
	for _, d := range docs {
		key := d.YearKey()
		g, ok := byKey[key]
		if !ok {
			g = &YearGroup{Key: key}
			byKey[key] = g
			view.Groups = append(view.Groups, g)
		}
		if d.IsError() {
			g.Files = append(g.Files, FileItemFor(d))
			continue
		}
		g.Panels = append(g.Panels, e.buildPanel(d, nil, showAllFields, nil))
	}
	sortGroups(view.Groups)

	if isNewUpload && len(docs) > 0 {
		if g := byKey[docs[len(docs)-1].YearKey()]; g != nil {
			g.Expanded = true
		}
	}

	e.view = view
	e.backup = backup
	return view.clone()
}

// View returns a snapshot of the rendered tree.
func (e *Editor) View() *View {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.view == nil {
		return &View{}
	}
	return e.view.clone()
}

// Clear drops the rendered tree without committing anything.
func (e *Editor) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = nil
	e.backup = nil
}

// SetExpanded opens or closes a year group for the current render.
func (e *Editor) SetExpanded(key string, expanded bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.view.Group(key)
	if g == nil {
		return eris.Wrapf(ErrUnknownGroup, "year %q", key)
	}
	g.Expanded = expanded
	return nil
}

// FileItemFor renders a document as a plain list entry.
func FileItemFor(d model.Document) FileItem {
	fi := FileItem{
		FileID:   d.FileID,
		FileName: d.FileName,
		FormType: d.Type,
		TaxYear:  d.TaxYear,
		Reason:   d.ReasonText,
	}
	if d.IsError() && !retryIsPointless(d.ReasonText) {
		fi.RetryFileID = d.FileID
	}
	return fi
}

func retryIsPointless(reason string) bool {
	r := strings.ToLower(reason)
	for _, p := range retrySuppressed {
		if strings.Contains(r, p) {
			return true
		}
	}
	return false
}

// sortGroups puts the no-year group first, then numeric years descending.
func sortGroups(groups []*YearGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if a == model.NoYearGroup || b == model.NoYearGroup {
			return a == model.NoYearGroup && b != model.NoYearGroup
		}
		ya, errA := strconv.Atoi(a)
		yb, errB := strconv.Atoi(b)
		switch {
		case errA == nil && errB == nil:
			return ya > yb
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return a < b
		}
	})
}

// panelLocked finds a panel and its year group. e.mu must be held.
func (e *Editor) panelLocked(fileID string) (*Panel, *YearGroup, error) {
	if e.view == nil {
		return nil, nil, ErrNotRendered
	}
	for _, g := range e.view.Groups {
		for _, p := range g.Panels {
			if p.FileID == fileID {
				return p, g, nil
			}
		}
	}
	return nil, nil, eris.Wrapf(ErrUnknownDocument, "file %s", fileID)
}

// replacePanelLocked swaps old for p in its year group.
func (e *Editor) replacePanelLocked(old, p *Panel) {
	for _, g := range e.view.Groups {
		for i := range g.Panels {
			if g.Panels[i] == old {
				g.Panels[i] = p
				return
			}
		}
	}
}
