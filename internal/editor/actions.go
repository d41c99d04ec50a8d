package editor

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/field"
	"github.com/sells-group/tax-intake/internal/model"
)

// Reconstruct builds the committable document from the panel's controls.
func (e *Editor) Reconstruct(fileID string) (model.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, _, err := e.panelLocked(fileID)
	if err != nil {
		return model.Document{}, err
	}
	doc, _ := e.reconstructLocked(p)
	return doc, nil
}

// reconstructLocked starts from the panel's last-known document and
// overlays every control. Header controls and direct attributes go to the
// top level; other controls go to the fields map when the catalog
// declares them or the document already carries them. Item groups are
// rebuilt from scratch in control order. The returned map holds the item
// ids per group in the same order.
func (e *Editor) reconstructLocked(p *Panel) (model.Document, map[string][]string) {
	doc := p.doc.Clone()

	for _, c := range p.Header {
		doc.SetAttribute(c.Name, e.fmt.Wire(c.Spec.Kind, c.Value))
	}
	for _, c := range p.Body {
		wire := e.fmt.Wire(c.Spec.Kind, c.Value)
		if doc.SetAttribute(c.Name, wire) {
			continue
		}
		_, present := doc.Fields[c.Name]
		if !present && !e.catalog.Declares(doc.Type, c.Name) {
			continue
		}
		if doc.Fields == nil {
			doc.Fields = map[string]model.Value{}
		}
		doc.Fields[c.Name] = model.Value(wire)
	}

	ids := make(map[string][]string, len(p.Groups))
	for _, g := range p.Groups {
		groupIDs := make([]string, 0, len(g.Items))
		switch g.Name {
		case model.GroupChildren:
			doc.Children = make([]model.Child, 0, len(g.Items))
			for _, it := range g.Items {
				var ch model.Child
				for _, c := range it.Controls {
					ch.Set(c.Name, e.fmt.Wire(c.Spec.Kind, c.Value))
				}
				doc.Children = append(doc.Children, ch)
				groupIDs = append(groupIDs, it.ID)
			}
		case model.GroupGenericFields:
			doc.GenericFields = make([]model.GenericField, 0, len(g.Items))
			for _, it := range g.Items {
				var gf model.GenericField
				for _, c := range it.Controls {
					gf.Set(c.Name, e.fmt.Wire(c.Spec.Kind, c.Value))
				}
				doc.GenericFields = append(doc.GenericFields, gf)
				groupIDs = append(groupIDs, it.ID)
			}
		}
		ids[g.Name] = groupIDs
	}
	return doc, ids
}

// Save commits the reconstructed document. On success the backup and the
// panel are replaced by the server's canonical copy and the listener is
// notified. On failure the panel stays dirty and its changed controls are
// marked as errors. Edits made while the request is in flight are kept and
// leave the panel dirty.
func (e *Editor) Save(ctx context.Context, fileID string) error {
	e.mu.Lock()
	p, _, err := e.panelLocked(fileID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if p.State == Saving {
		e.mu.Unlock()
		return eris.Wrapf(ErrSaveInProgress, "file %s", fileID)
	}
	payload, _ := e.reconstructLocked(p)
	p.State = Saving
	e.saves++
	p.save = e.saves
	save, rev := p.save, p.rev
	customer := e.customer
	e.mu.Unlock()

	log := zap.L().With(zap.String("file_id", fileID), zap.String("customer", customer))
	docs, err := e.api.UpdateForm(ctx, customer, payload)

	e.mu.Lock()
	cur, _, lookupErr := e.panelLocked(fileID)
	if lookupErr != nil || cur.State != Saving || cur.save != save {
		// The tree was re-rendered or cleared while the request was in flight.
		e.mu.Unlock()
		if err != nil {
			return eris.Wrap(err, "editor: save")
		}
		return nil
	}

	if err != nil {
		cur.State = Dirty
		for _, c := range cur.controls() {
			if c.Changed {
				c.Error = true
			}
		}
		e.mu.Unlock()
		log.Warn("editor: save failed", zap.Error(err))
		return eris.Wrap(err, "editor: save")
	}

	canonical := payload
	if i := model.FindDocument(docs, fileID); i >= 0 {
		canonical = docs[i]
	}
	backup := e.backup
	if backup != nil {
		backup.replace(canonical)
	}
	if cur == p && cur.rev == rev {
		e.replacePanelLocked(cur, e.buildPanel(canonical, nil, cur.ShowAll, nil))
	} else {
		// Edits made in flight stay pending on top of the new baseline.
		cur.doc = canonical.Clone()
		cur.State = Dirty
	}
	listener := e.listener
	e.mu.Unlock()

	log.Info("editor: saved")
	if listener != nil {
		if docs == nil && backup != nil {
			docs = backup.Docs()
		}
		listener.DocumentsChanged(docs)
	}
	return nil
}

// Export reconstructs the document for a local download. No network call
// is made and the panel state is untouched. The internal file id is
// cleared.
func (e *Editor) Export(fileID string) (model.Document, error) {
	doc, err := e.Reconstruct(fileID)
	if err != nil {
		return model.Document{}, err
	}
	doc.FileID = ""
	return doc, nil
}

// Cancel re-renders the panel from its backup entry, discarding every
// uncommitted edit.
func (e *Editor) Cancel(fileID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, _, err := e.panelLocked(fileID)
	if err != nil {
		return err
	}
	if p.State == Saving {
		return eris.Wrapf(ErrSaveInProgress, "file %s", fileID)
	}
	doc := p.doc
	if e.backup != nil {
		if b, ok := e.backup.Get(fileID); ok {
			doc = b
		}
	}
	e.replacePanelLocked(p, e.buildPanel(doc, nil, p.ShowAll, nil))
	return nil
}

// Delete removes a document on the server and then from the tree and the
// backup. A year group left empty is removed and the listener is asked
// for a full reload. On failure nothing changes locally.
func (e *Editor) Delete(ctx context.Context, fileID string) error {
	e.mu.Lock()
	if _, err := e.entryLocked(fileID); err != nil {
		e.mu.Unlock()
		return err
	}
	customer := e.customer
	e.mu.Unlock()

	if err := e.api.DeleteFile(ctx, customer, fileID); err != nil {
		return eris.Wrap(err, "editor: delete")
	}

	e.mu.Lock()
	reload := false
	if g, err := e.entryLocked(fileID); err == nil {
		removeEntry(g, fileID)
		if g.Empty() {
			e.removeGroupLocked(g)
			reload = true
		}
	}
	if e.backup != nil {
		e.backup.remove(fileID)
	}
	listener := e.listener
	backup := e.backup
	e.mu.Unlock()

	zap.L().Info("editor: deleted", zap.String("file_id", fileID), zap.String("customer", customer))
	if listener == nil {
		return nil
	}
	if reload {
		listener.ReloadRequired()
	} else if backup != nil {
		listener.DocumentsChanged(backup.Docs())
	}
	return nil
}

// entryLocked finds the year group holding fileID as a panel or file item.
func (e *Editor) entryLocked(fileID string) (*YearGroup, error) {
	if e.view == nil {
		return nil, ErrNotRendered
	}
	for _, g := range e.view.Groups {
		for _, p := range g.Panels {
			if p.FileID == fileID {
				return g, nil
			}
		}
		for _, f := range g.Files {
			if f.FileID == fileID {
				return g, nil
			}
		}
	}
	return nil, eris.Wrapf(ErrUnknownDocument, "file %s", fileID)
}

func removeEntry(g *YearGroup, fileID string) {
	for i, p := range g.Panels {
		if p.FileID == fileID {
			g.Panels = append(g.Panels[:i], g.Panels[i+1:]...)
			return
		}
	}
	for i, f := range g.Files {
		if f.FileID == fileID {
			g.Files = append(g.Files[:i], g.Files[i+1:]...)
			return
		}
	}
}

func (e *Editor) removeGroupLocked(g *YearGroup) {
	for i, cur := range e.view.Groups {
		if cur == g {
			e.view.Groups = append(e.view.Groups[:i], e.view.Groups[i+1:]...)
			return
		}
	}
}

// AddItem appends a default item to a repeating group and returns its id.
func (e *Editor) AddItem(fileID, group string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, _, err := e.panelLocked(fileID)
	if err != nil {
		return "", err
	}
	if !hasGroup(p, group) {
		return "", eris.Wrapf(ErrUnknownGroup, "file %s group %s", fileID, group)
	}

	doc, ids := e.reconstructLocked(p)
	id := e.newID()
	switch group {
	case model.GroupChildren:
		doc.Children = append(doc.Children, model.NewChild())
	case model.GroupGenericFields:
		doc.GenericFields = append(doc.GenericFields, model.NewGenericField())
	}
	ids[group] = append(ids[group], id)

	e.rebuildLocked(p, doc, ids, p.ShowAll, true)
	return id, nil
}

// RemoveItem deletes one item from its repeating group.
func (e *Editor) RemoveItem(fileID, itemID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, _, err := e.panelLocked(fileID)
	if err != nil {
		return err
	}

	doc, ids := e.reconstructLocked(p)
	group, idx := "", -1
	for g, list := range ids {
		for i, id := range list {
			if id == itemID {
				group, idx = g, i
			}
		}
	}
	if idx < 0 {
		return eris.Wrapf(ErrUnknownControl, "file %s item %s", fileID, itemID)
	}

	switch group {
	case model.GroupChildren:
		doc.Children = append(doc.Children[:idx], doc.Children[idx+1:]...)
	case model.GroupGenericFields:
		doc.GenericFields = append(doc.GenericFields[:idx], doc.GenericFields[idx+1:]...)
	}
	ids[group] = append(ids[group][:idx], ids[group][idx+1:]...)

	e.rebuildLocked(p, doc, ids, p.ShowAll, true)
	return nil
}

// ToggleAllFields switches the panel between showing only filled fields
// and showing every catalog field. Turning it off drops the placeholders
// the toggle synthesized that are still unfilled.
func (e *Editor) ToggleAllFields(fileID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, _, err := e.panelLocked(fileID)
	if err != nil {
		return false, err
	}

	doc, ids := e.reconstructLocked(p)
	showAll := !p.ShowAll
	if !showAll {
		for name := range p.synthesized {
			if v, ok := doc.Fields[name]; ok && e.unfilled(name, string(v)) {
				delete(doc.Fields, name)
			}
		}
		p.synthesized = map[string]bool{}
	}

	e.rebuildLocked(p, doc, ids, showAll, false)
	return showAll, nil
}

// unfilled reports whether a wire value is still the placeholder of the
// field's kind.
func (e *Editor) unfilled(name, wire string) bool {
	return wire == e.fmt.Placeholder(e.fmt.Kind(name)) || field.IsPlaceholder(wire)
}

// rebuildLocked re-renders p from doc, keeping marks of surviving
// controls. Item changes leave the document dirty.
func (e *Editor) rebuildLocked(p *Panel, doc model.Document, ids map[string][]string, showAll, changed bool) {
	np := e.buildPanel(doc, ids, showAll, p)
	np.rev = p.rev + 1
	if changed && np.State == Clean {
		np.State = Dirty
	}
	e.replacePanelLocked(p, np)
}

func hasGroup(p *Panel, group string) bool {
	for _, g := range p.Groups {
		if g.Name == group {
			return true
		}
	}
	return false
}
