package editor

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/tax-intake/internal/field"
	"github.com/sells-group/tax-intake/internal/model"
)

// SetValue applies typed input to a control. Input is filtered to what
// the control's kind accepts; the control is marked changed and the
// document becomes dirty. It returns the stored value.
func (e *Editor) SetValue(fileID, controlID, input string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, c, err := e.controlLocked(fileID, controlID)
	if err != nil {
		return "", err
	}
	if c.Spec.ReadOnly {
		return "", eris.Wrapf(ErrReadOnly, "control %s", controlID)
	}
	if c.Spec.Kind == field.KindItemType {
		e.setItemTypeLocked(p, c, input)
		return c.Value, nil
	}

	e.touchLocked(p, c, e.fmt.Filter(c.Spec.Kind, input))
	return c.Value, nil
}

// Blur normalizes a control's value as when it loses focus, and clears
// the changed mark if the value is back to its render-time value. An
// unparsable date resets the control to empty and returns
// field.ErrInvalidDate for the caller to alert on.
func (e *Editor) Blur(fileID, controlID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, c, err := e.controlLocked(fileID, controlID)
	if err != nil {
		return "", err
	}

	v, blurErr := e.fmt.Blur(c.Spec.Kind, c.Value)
	c.Value = v
	c.Display = e.fmt.Mask(c.Name, v)
	if c.Value == c.Initial {
		c.Changed = false
	}
	return c.Value, blurErr
}

// SetItemType changes the type selector of a generic item and reformats
// the item's value between currency and integer as needed.
func (e *Editor) SetItemType(fileID, itemID, itemType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, c, err := e.controlLocked(fileID, controlID(itemID, model.GenericType))
	if err != nil {
		return err
	}
	e.setItemTypeLocked(p, c, itemType)
	return nil
}

func (e *Editor) setItemTypeLocked(p *Panel, typeCtl *Control, itemType string) {
	e.touchLocked(p, typeCtl, itemType)

	valueCtl := p.Control(controlID(typeCtl.ItemID, model.GenericValue))
	if valueCtl == nil {
		return
	}
	spec := e.fmt.Spec(model.GenericValue, e.valueKindFor(itemType))
	if spec.Kind == valueCtl.Spec.Kind {
		return
	}
	raw := e.fmt.Wire(valueCtl.Spec.Kind, valueCtl.Value)
	valueCtl.Spec = spec
	valueCtl.Value = e.fmt.Display(spec.Kind, raw)
	valueCtl.Display = valueCtl.Value
	valueCtl.Changed = valueCtl.Value != valueCtl.Initial
}

// touchLocked records an edit: changed mark set, error mark cleared,
// document dirty unless a save is in flight.
func (e *Editor) touchLocked(p *Panel, c *Control, value string) {
	c.Value = value
	c.Display = e.fmt.Mask(c.Name, value)
	c.Changed = true
	c.Error = false
	p.rev++
	if p.State == Clean {
		p.State = Dirty
	}
}

func (e *Editor) controlLocked(fileID, id string) (*Panel, *Control, error) {
	p, _, err := e.panelLocked(fileID)
	if err != nil {
		return nil, nil, err
	}
	c := p.Control(id)
	if c == nil {
		return nil, nil, eris.Wrapf(ErrUnknownControl, "file %s control %s", fileID, id)
	}
	return p, c, nil
}
