package editor

import (
	"github.com/sells-group/tax-intake/internal/field"
	"github.com/sells-group/tax-intake/internal/model"
)

// State is the edit state of one document panel.
type State int

const (
	Clean State = iota
	Dirty
	Saving
)

func (s State) String() string {
	switch s {
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	default:
		return "clean"
	}
}

// MarshalText renders the state by name in JSON views.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name. Unknown names read as Clean.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "dirty":
		*s = Dirty
	case "saving":
		*s = Saving
	default:
		*s = Clean
	}
	return nil
}

// Section locates a control within a panel.
type Section string

const (
	SectionHeader Section = "header"
	SectionBody   Section = "body"
	SectionItem   Section = "item"
)

// Control is one editable value. Value is held in edit form; Initial is
// the value at render time and is what Blur compares against.
type Control struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Section Section    `json:"section"`
	Group   string     `json:"group,omitempty"`
	ItemID  string     `json:"itemId,omitempty"`
	Spec    field.Spec `json:"spec"`
	Value   string     `json:"value"`
	Display string     `json:"display"`
	Initial string     `json:"-"`
	Changed bool       `json:"changed"`
	Error   bool       `json:"error"`
}

// Item is one entry of a repeating group. ID is stable for the life of
// the panel and survives re-renders caused by add or remove.
type Item struct {
	ID       string     `json:"id"`
	Controls []*Control `json:"controls"`
}

// ItemGroup is a repeating sub-record list such as children.
type ItemGroup struct {
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Items []*Item `json:"items"`
}

// Panel is the editable rendering of one document.
type Panel struct {
	FileID   string       `json:"fileId"`
	FormType string       `json:"formType"`
	TaxYear  string       `json:"taxYear"`
	Header   []*Control   `json:"header"`
	Body     []*Control   `json:"body"`
	Groups   []*ItemGroup `json:"groups"`
	State    State        `json:"state"`
	ShowAll  bool         `json:"showAll"`

	doc         model.Document
	synthesized map[string]bool
	// rev counts edits; Save compares it to spot edits made in flight.
	rev int
	// save identifies the in-flight Save; structural rebuilds carry it over.
	save uint64
}

// CanSave reports whether Save and Cancel are enabled.
func (p *Panel) CanSave() bool {
	return p.State == Dirty
}

// FileItem is the plain list rendering of a document. Error records are
// always rendered this way.
type FileItem struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FormType string `json:"formType"`
	TaxYear  string `json:"taxYear,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// RetryFileID is set when a retry upload may replace this record.
	RetryFileID string `json:"retryFileId,omitempty"`
}

// YearGroup holds the documents of one tax year.
type YearGroup struct {
	Key      string     `json:"key"`
	Expanded bool       `json:"expanded"`
	Panels   []*Panel   `json:"panels"`
	Files    []FileItem `json:"files"`
}

// Empty reports whether the group has nothing left to show.
func (g *YearGroup) Empty() bool {
	return len(g.Panels) == 0 && len(g.Files) == 0
}

// View is the full rendered tree.
type View struct {
	Groups []*YearGroup `json:"groups"`
}

// Group returns the year group with key, or nil.
func (v *View) Group(key string) *YearGroup {
	if v == nil {
		return nil
	}
	for _, g := range v.Groups {
		if g.Key == key {
			return g
		}
	}
	return nil
}

// Keys returns the year-group keys in display order.
func (v *View) Keys() []string {
	if v == nil {
		return nil
	}
	keys := make([]string, len(v.Groups))
	for i, g := range v.Groups {
		keys[i] = g.Key
	}
	return keys
}

// Panel returns the panel of fileID, or nil.
func (v *View) Panel(fileID string) *Panel {
	if v == nil {
		return nil
	}
	for _, g := range v.Groups {
		for _, p := range g.Panels {
			if p.FileID == fileID {
				return p
			}
		}
	}
	return nil
}

// Control returns the control with id, or nil.
func (p *Panel) Control(id string) *Control {
	for _, c := range p.controls() {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// controls lists every control in document order.
func (p *Panel) controls() []*Control {
	out := make([]*Control, 0, len(p.Header)+len(p.Body))
	out = append(out, p.Header...)
	out = append(out, p.Body...)
	for _, g := range p.Groups {
		for _, it := range g.Items {
			out = append(out, it.Controls...)
		}
	}
	return out
}

func (p *Panel) clone() *Panel {
	out := *p
	out.Header = cloneControls(p.Header)
	out.Body = cloneControls(p.Body)
	out.Groups = make([]*ItemGroup, len(p.Groups))
	for i, g := range p.Groups {
		ng := *g
		ng.Items = make([]*Item, len(g.Items))
		for j, it := range g.Items {
			ng.Items[j] = &Item{ID: it.ID, Controls: cloneControls(it.Controls)}
		}
		out.Groups[i] = &ng
	}
	out.doc = p.doc.Clone()
	out.synthesized = make(map[string]bool, len(p.synthesized))
	for k, v := range p.synthesized {
		out.synthesized[k] = v
	}
	return &out
}

func cloneControls(in []*Control) []*Control {
	out := make([]*Control, len(in))
	for i, c := range in {
		cc := *c
		cc.Spec.Options = append([]string(nil), c.Spec.Options...)
		out[i] = &cc
	}
	return out
}

func (v *View) clone() *View {
	out := &View{Groups: make([]*YearGroup, len(v.Groups))}
	for i, g := range v.Groups {
		ng := &YearGroup{Key: g.Key, Expanded: g.Expanded, Files: append([]FileItem(nil), g.Files...)}
		ng.Panels = make([]*Panel, len(g.Panels))
		for j, p := range g.Panels {
			ng.Panels[j] = p.clone()
		}
		out.Groups[i] = ng
	}
	return out
}
