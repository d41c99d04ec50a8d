package editor

import (
	"github.com/google/uuid"

	"github.com/sells-group/tax-intake/internal/field"
	"github.com/sells-group/tax-intake/internal/model"
)

// headerFields are read from the header line and always written to the
// top-level document.
var headerFields = []string{
	model.AttrDocumentType,
	model.AttrOrganizationName,
	model.AttrClientName,
	model.AttrClientID,
}

// bodyAttributes are top-level attributes edited in the panel body.
var bodyAttributes = []string{
	model.AttrTaxYear,
	model.AttrNoteText,
}

var itemGroups = []string{model.GroupChildren, model.GroupGenericFields}

func newItemID() string {
	return uuid.NewString()
}

func controlID(itemID, name string) string {
	if itemID == "" {
		return name
	}
	return itemID + "/" + name
}

func isGroupName(name string) bool {
	return name == model.GroupChildren || name == model.GroupGenericFields
}

// buildPanel renders doc. itemIDs carries the stable ids of existing items
// per group; prev, when set, donates render-time baselines and marks for
// controls that survive.
func (e *Editor) buildPanel(doc model.Document, itemIDs map[string][]string, showAll bool, prev *Panel) *Panel {
	p := &Panel{
		FileID:      doc.FileID,
		FormType:    doc.Type,
		TaxYear:     doc.TaxYear,
		ShowAll:     showAll,
		doc:         doc.Clone(),
		synthesized: map[string]bool{},
	}
	if prev != nil {
		p.State = prev.State
		p.save = prev.save
		for k := range prev.synthesized {
			p.synthesized[k] = true
		}
	}

	for _, name := range headerFields {
		v, _ := doc.Attribute(name)
		p.Header = append(p.Header, e.newControl(SectionHeader, "", "", name, v, ""))
	}
	for _, name := range bodyAttributes {
		v, _ := doc.Attribute(name)
		p.Body = append(p.Body, e.newControl(SectionBody, "", "", name, v, ""))
	}

	for _, name := range e.fieldOrder(doc) {
		if isGroupName(name) || model.IsAttribute(name) || e.fmt.Kind(name) == field.KindItemType {
			continue
		}
		value, present := doc.Fields[name]
		if !present {
			if !showAll {
				continue
			}
			value = model.Value(e.fmt.Placeholder(e.fmt.Kind(name)))
			p.synthesized[name] = true
		} else if !showAll && field.IsPlaceholder(string(value)) {
			continue
		}
		if e.fmt.Suppressed(name, doc.TaxYear, string(value)) {
			continue
		}
		p.Body = append(p.Body, e.newControl(SectionBody, "", "", name, string(value), ""))
	}

	for _, group := range itemGroups {
		if !e.rendersGroup(doc, group) {
			continue
		}
		p.Groups = append(p.Groups, e.buildGroup(doc, group, itemIDs[group]))
	}

	if prev != nil {
		for _, c := range p.controls() {
			if pc := prev.Control(c.ID); pc != nil {
				c.Initial = pc.Initial
				c.Changed = pc.Changed
				c.Error = pc.Error
			}
		}
	}
	return p
}

// fieldOrder lists catalog fields in catalog order followed by any other
// fields present on the document.
func (e *Editor) fieldOrder(doc model.Document) []string {
	declared := e.catalog.FieldsFor(doc.Type)
	seen := make(map[string]bool, len(declared))
	out := make([]string, 0, len(declared)+len(doc.Fields))
	for _, name := range declared {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range doc.SortedFieldNames() {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}

func (e *Editor) rendersGroup(doc model.Document, group string) bool {
	switch group {
	case model.GroupChildren:
		if doc.Children != nil {
			return true
		}
	case model.GroupGenericFields:
		if doc.GenericFields != nil {
			return true
		}
	}
	return e.catalog.Declares(doc.Type, group)
}

func (e *Editor) buildGroup(doc model.Document, group string, ids []string) *ItemGroup {
	g := &ItemGroup{Name: group, Label: e.fmt.Spec(group, "").Label}
	idAt := func(i int) string {
		if i < len(ids) && ids[i] != "" {
			return ids[i]
		}
		return e.newID()
	}

	switch group {
	case model.GroupChildren:
		for i, ch := range doc.Children {
			it := &Item{ID: idAt(i)}
			for _, name := range model.ChildFieldNames {
				it.Controls = append(it.Controls, e.newControl(SectionItem, group, it.ID, name, ch.Get(name), ""))
			}
			g.Items = append(g.Items, it)
		}
	case model.GroupGenericFields:
		for i, gf := range doc.GenericFields {
			it := &Item{ID: idAt(i)}
			for _, name := range model.GenericFieldNames {
				declared := ""
				if name == model.GenericValue {
					declared = e.valueKindFor(gf.GenericFieldType)
				}
				it.Controls = append(it.Controls, e.newControl(SectionItem, group, it.ID, name, gf.Get(name), declared))
			}
			g.Items = append(g.Items, it)
		}
	}
	return g
}

// valueKindFor returns the declared kind of a generic item's value given
// its type selector.
func (e *Editor) valueKindFor(itemType string) string {
	if e.fmt.IsExceptionalInteger(itemType) {
		return field.DeclaredInteger
	}
	return ""
}

func (e *Editor) newControl(section Section, group, itemID, name, wire, declared string) *Control {
	spec := e.fmt.Spec(name, declared)
	value := e.fmt.Display(spec.Kind, wire)
	return &Control{
		ID:      controlID(itemID, name),
		Name:    name,
		Section: section,
		Group:   group,
		ItemID:  itemID,
		Spec:    spec,
		Value:   value,
		Display: e.fmt.Mask(name, value),
		Initial: value,
	}
}
