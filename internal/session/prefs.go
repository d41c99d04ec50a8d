package session

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tax-intake/internal/store"
)

// TermsAccepted reports the durable terms-acceptance flag.
func (c *Context) TermsAccepted(ctx context.Context) bool {
	v, _, err := c.durable.Get(ctx, KeyTermsAccepted)
	if err != nil {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// SetTermsAccepted persists the flag and emits TermsChanged on change.
func (c *Context) SetTermsAccepted(ctx context.Context, accepted bool) error {
	if c.TermsAccepted(ctx) == accepted {
		return nil
	}
	if err := c.durable.Set(ctx, KeyTermsAccepted, strconv.FormatBool(accepted)); err != nil {
		return eris.Wrap(err, "session: set terms")
	}
	c.emit(Event{Kind: TermsChanged, TermsAccepted: accepted})
	return nil
}

// EditableView reports whether documents are shown as editable panels
// rather than a plain file list. Defaults to true.
func (c *Context) EditableView(ctx context.Context) bool {
	v, ok, err := c.sess.Get(ctx, KeyEditableView)
	if err != nil || !ok {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

// SetEditableView stores the view mode for the rest of the session.
func (c *Context) SetEditableView(ctx context.Context, editable bool) error {
	return eris.Wrap(c.sess.Set(ctx, KeyEditableView, strconv.FormatBool(editable)), "session: set editable view")
}

// FormTypeCounts returns how often each form type was created by hand.
func (c *Context) FormTypeCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	if _, err := store.GetJSON(ctx, c.durable, KeyFormTypeCounts, &counts); err != nil {
		return nil, eris.Wrap(err, "session: form type counts")
	}
	return counts, nil
}

// RecordFormType increments the selection count of formType.
func (c *Context) RecordFormType(ctx context.Context, formType string) error {
	counts, err := c.FormTypeCounts(ctx)
	if err != nil {
		return err
	}
	counts[formType]++
	return eris.Wrap(store.SetJSON(ctx, c.durable, KeyFormTypeCounts, counts), "session: record form type")
}
