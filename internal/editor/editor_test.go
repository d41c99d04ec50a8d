package editor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tax-intake/internal/catalog"
	"github.com/sells-group/tax-intake/internal/field"
	"github.com/sells-group/tax-intake/internal/model"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) UpdateForm(ctx context.Context, customer string, doc model.Document) ([]model.Document, error) {
	args := m.Called(ctx, customer, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *mockAPI) DeleteFile(ctx context.Context, customer, fileID string) error {
	args := m.Called(ctx, customer, fileID)
	return args.Error(0)
}

type recordingListener struct {
	changed [][]model.Document
	reloads int
}

func (l *recordingListener) DocumentsChanged(docs []model.Document) {
	l.changed = append(l.changed, docs)
}

func (l *recordingListener) ReloadRequired() { l.reloads++ }

func testCatalog() *catalog.Catalog {
	return catalog.NewStatic([]model.FormType{
		{FormType: "FORM_106", FormName: "Form 106", UserCanAdd: true, FieldTypes: []string{
			"grossSalary", "taxWithheld", "pensionStartDate", "temporaryReliefCredit", "overtimeBoolean",
			model.GroupChildren, model.GroupGenericFields,
		}},
		{FormType: "FORM_867", FormName: "Form 867", FieldTypes: []string{"interest"}},
	})
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestEditor(t *testing.T, api API, opts ...field.Option) (*Editor, *recordingListener) {
	t.Helper()
	l := &recordingListener{}
	e := New(field.NewFormatter(opts...), testCatalog(), api, WithListener(l), WithIDGenerator(seqIDs()))
	e.SetCustomer("Dana")
	return e, l
}

func sampleDoc() model.Document {
	return model.Document{
		FileID:                     "f1",
		DocumentType:               "Form 106",
		Type:                       "FORM_106",
		TaxYear:                    "2023",
		ClientName:                 "Dana Levi",
		OrganizationName:           "Acme",
		ClientIdentificationNumber: "012345678",
		Fields: map[string]model.Value{
			"grossSalary":      "1234",
			"taxWithheld":      "100.5",
			"pensionStartDate": "05/04/2023",
		},
		Children: []model.Child{{
			BirthDate:              "01/02/2015",
			HomeChildBoolean:       "true",
			ParentAllowanceBoolean: "false",
			DisabledChildBoolean:   "false",
			SharedCustodyBoolean:   "false",
		}},
		GenericFields: []model.GenericField{{GenericFieldType: "NONE", Value: "1500", ExplanationText: "bonus"}},
	}
}

// normalizedSample is sampleDoc after currency normalization.
func normalizedSample() model.Document {
	d := sampleDoc()
	d.Fields["grossSalary"] = "1234.00"
	d.Fields["taxWithheld"] = "100.50"
	d.GenericFields[0].Value = "1500.00"
	return d
}

func renderOne(e *Editor, doc model.Document, showAll bool) *Backup {
	docs := []model.Document{doc}
	b := NewBackup(docs)
	e.Render(docs, b, showAll, false)
	return b
}

func TestRender_YearGroupOrder(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	docs := []model.Document{
		{FileID: "a", Type: "FORM_867", TaxYear: "2023"},
		{FileID: "b", Type: "FORM_867", TaxYear: "2022"},
		{FileID: "c", Type: "FORM_867"},
		{FileID: "d", Type: "FORM_867", TaxYear: "2021"},
		{FileID: "e", Type: "FORM_867", TaxYear: "2023"},
	}
	v := e.Render(docs, NewBackup(docs), false, false)

	assert.Equal(t, []string{model.NoYearGroup, "2023", "2022", "2021"}, v.Keys())
	assert.Len(t, v.Group("2023").Panels, 2)
	for _, g := range v.Groups {
		assert.False(t, g.Expanded)
	}
}

func TestRender_ErrorRecordsAreFileItems(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	docs := []model.Document{
		{FileID: "ok", Type: "FORM_867", TaxYear: "2023"},
		{FileID: "bad", Type: model.ErrorFormType, TaxYear: "2023", FileName: "scan.pdf", ReasonText: "Could not read the page"},
		{FileID: "dup", Type: model.ErrorFormType, ReasonText: "Duplicate file"},
		{FileID: "fmt", Type: model.ErrorFormType, ReasonText: "File type not supported"},
	}
	v := e.Render(docs, NewBackup(docs), false, true)

	g := v.Group(model.NoYearGroup)
	require.NotNil(t, g)
	assert.Empty(t, g.Panels)
	require.Len(t, g.Files, 3)
	assert.Equal(t, "bad", g.Files[0].RetryFileID)
	assert.Equal(t, "Could not read the page", g.Files[0].Reason)
	assert.Empty(t, g.Files[1].RetryFileID)
	assert.Empty(t, g.Files[2].RetryFileID)

	// The last document is an error record, so the no-year group opens.
	assert.True(t, g.Expanded)
	assert.False(t, v.Group("2023").Expanded)
	assert.Nil(t, v.Panel("bad"))
}

func TestRender_AutoExpandOnlyForNewUpload(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	docs := []model.Document{
		{FileID: "a", Type: "FORM_867", TaxYear: "2023"},
		{FileID: "b", Type: "FORM_867", TaxYear: "2022"},
	}

	v := e.Render(docs, NewBackup(docs), false, true)
	assert.True(t, v.Group("2022").Expanded)
	assert.False(t, v.Group("2023").Expanded)

	v = e.Render(docs, NewBackup(docs), false, false)
	assert.False(t, v.Group("2022").Expanded)

	require.NoError(t, e.SetExpanded("2023", true))
	assert.True(t, e.View().Group("2023").Expanded)
	assert.ErrorIs(t, e.SetExpanded("1999", true), ErrUnknownGroup)
}

func TestRender_HeaderAndControls(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	p := e.View().Panel("f1")
	require.NotNil(t, p)
	assert.Equal(t, Clean, p.State)
	assert.False(t, p.CanSave())

	names := make([]string, 0, len(p.Header))
	for _, c := range p.Header {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"documentType", "organizationName", "clientName", "clientIdentificationNumber"}, names)
	assert.True(t, p.Control("documentType").Spec.ReadOnly)

	assert.Equal(t, "₪1,234.00", p.Control("grossSalary").Value)
	assert.Equal(t, "2023-04-05", p.Control("pensionStartDate").Value)
	assert.Equal(t, field.KindDate, p.Control("pensionStartDate").Spec.Kind)

	require.Len(t, p.Groups, 2)
	assert.Equal(t, model.GroupChildren, p.Groups[0].Name)
	child := p.Groups[0].Items[0]
	assert.Equal(t, "id-1", child.ID)
	assert.Equal(t, "2015-02-01", p.Control("id-1/birthDate").Value)
	assert.Equal(t, "true", p.Control("id-1/homeChildBoolean").Value)

	generic := p.Groups[1].Items[0]
	assert.Equal(t, field.KindItemType, p.Control(generic.ID+"/genericFieldType").Spec.Kind)
	assert.Equal(t, "₪1,500.00", p.Control(generic.ID+"/value").Value)
}

func TestRender_PlaceholderFieldsHiddenUnlessShowAll(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	doc := sampleDoc()
	doc.Fields["taxWithheld"] = "0.00"
	renderOne(e, doc, false)

	p := e.View().Panel("f1")
	assert.Nil(t, p.Control("taxWithheld"))
	assert.Nil(t, p.Control("overtimeBoolean"))

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, model.Value("0.00"), got.Fields["taxWithheld"])
}

func TestReconstruct_RoundTrip(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, normalizedSample(), got)

	// Rendering the reconstruction and reconstructing again is stable.
	renderOne(e, got, false)
	again, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestReconstruct_DeclaredAndPresentFields(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	doc := model.Document{FileID: "x", Type: "FORM_867", TaxYear: "2023", Fields: map[string]model.Value{"extraAmount": "5"}}
	renderOne(e, doc, true)

	got, err := e.Reconstruct("x")
	require.NoError(t, err)
	assert.Equal(t, model.Value("5.00"), got.Fields["extraAmount"])
	assert.Equal(t, model.Value("0.00"), got.Fields["interest"])
}

func TestSetValue_CurrencyNormalization(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	v, err := e.SetValue("f1", "grossSalary", "1,234.5")
	require.NoError(t, err)
	assert.Equal(t, "1234.5", v)

	p := e.View().Panel("f1")
	assert.Equal(t, Dirty, p.State)
	assert.True(t, p.CanSave())
	assert.True(t, p.Control("grossSalary").Changed)

	v, err = e.Blur("f1", "grossSalary")
	require.NoError(t, err)
	assert.Equal(t, "₪1,234.50", v)

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, model.Value("1234.50"), got.Fields["grossSalary"])

	_, err = e.SetValue("f1", "taxWithheld", "abc")
	require.NoError(t, err)
	got, err = e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, model.Value("0.00"), got.Fields["taxWithheld"])
}

func TestBlur_ClearsChangedWhenBackToInitial(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", "grossSalary", "1234")
	require.NoError(t, err)
	assert.True(t, e.View().Panel("f1").Control("grossSalary").Changed)

	_, err = e.Blur("f1", "grossSalary")
	require.NoError(t, err)
	p := e.View().Panel("f1")
	assert.False(t, p.Control("grossSalary").Changed)
	assert.Equal(t, Dirty, p.State)
}

func TestBlur_InvalidDateResets(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", "pensionStartDate", "2023-13-45")
	require.NoError(t, err)

	v, err := e.Blur("f1", "pensionStartDate")
	assert.ErrorIs(t, err, field.ErrInvalidDate)
	assert.Empty(t, v)

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, model.Value(""), got.Fields["pensionStartDate"])
}

func TestDate_EditFormatReconstructsToWire(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", "pensionStartDate", "2023-04-05")
	require.NoError(t, err)
	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, model.Value("05/04/2023"), got.Fields["pensionStartDate"])

	renderOne(e, got, false)
	assert.Equal(t, "2023-04-05", e.View().Panel("f1").Control("pensionStartDate").Value)
}

func TestReconstruct_KeepsUntouchedDateInOtherLayout(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	doc := sampleDoc()
	doc.Fields["pensionStartDate"] = "5/4/2023"
	renderOne(e, doc, false)

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, model.Value("05/04/2023"), got.Fields["pensionStartDate"])
}

func TestIdentificationNumberPadsOnBlur(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", model.AttrClientID, "12a3")
	require.NoError(t, err)
	v, err := e.Blur("f1", model.AttrClientID)
	require.NoError(t, err)
	assert.Equal(t, "000000123", v)

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, "000000123", got.ClientIdentificationNumber)
}

func TestSetValue_Errors(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})

	_, err := e.SetValue("f1", "grossSalary", "1")
	assert.ErrorIs(t, err, ErrNotRendered)

	renderOne(e, sampleDoc(), false)
	_, err = e.SetValue("f1", "documentType", "Other")
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = e.SetValue("f1", "nope", "1")
	assert.ErrorIs(t, err, ErrUnknownControl)
	_, err = e.SetValue("zzz", "grossSalary", "1")
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestAnonymizeIsDisplayOnly(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{}, field.WithAnonymize(true))
	renderOne(e, sampleDoc(), false)

	p := e.View().Panel("f1")
	assert.Equal(t, "D***", p.Control(model.AttrClientName).Display)
	assert.Equal(t, "*****5678", p.Control(model.AttrClientID).Display)
	assert.Equal(t, "Dana Levi", p.Control(model.AttrClientName).Value)

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, "Dana Levi", got.ClientName)
	assert.Equal(t, "012345678", got.ClientIdentificationNumber)
}

func TestCancel_RestoresBackup(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)
	before := e.View().Panel("f1")

	_, _ = e.SetValue("f1", "grossSalary", "99")
	_, _ = e.SetValue("f1", model.AttrOrganizationName, "Other Ltd")
	_, err := e.AddItem("f1", model.GroupChildren)
	require.NoError(t, err)

	require.NoError(t, e.Cancel("f1"))

	after := e.View().Panel("f1")
	assert.Equal(t, Clean, after.State)
	require.Len(t, after.Groups[0].Items, 1)
	for _, c := range before.Header {
		assert.Equal(t, c.Value, after.Control(c.ID).Value)
	}
	for _, c := range before.Body {
		assert.Equal(t, c.Value, after.Control(c.ID).Value)
		assert.False(t, after.Control(c.ID).Changed)
	}

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, normalizedSample(), got)
}

func TestAddThenRemoveItem_RestoresPayload(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	before, err := e.Reconstruct("f1")
	require.NoError(t, err)

	for _, group := range []string{model.GroupChildren, model.GroupGenericFields} {
		id, err := e.AddItem("f1", group)
		require.NoError(t, err)

		mid, err := e.Reconstruct("f1")
		require.NoError(t, err)
		if group == model.GroupChildren {
			require.Len(t, mid.Children, 2)
			assert.Equal(t, model.NewChild(), mid.Children[1])
		} else {
			require.Len(t, mid.GenericFields, 2)
			assert.Equal(t, model.NewGenericField(), mid.GenericFields[1])
		}

		require.NoError(t, e.RemoveItem("f1", id))
	}

	after, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, Dirty, e.View().Panel("f1").State)
}

func TestAddItem_PreservesUnsavedEdits(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", "grossSalary", "777")
	require.NoError(t, err)
	_, err = e.SetValue("f1", "id-1/birthDate", "2016-03-04")
	require.NoError(t, err)

	_, err = e.AddItem("f1", model.GroupChildren)
	require.NoError(t, err)

	p := e.View().Panel("f1")
	ctl := p.Control("grossSalary")
	assert.True(t, ctl.Changed)
	assert.Equal(t, "₪1,234.00", ctl.Initial)
	assert.Equal(t, "2016-03-04", p.Control("id-1/birthDate").Value)

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, model.Value("777.00"), got.Fields["grossSalary"])
	assert.Equal(t, "04/03/2016", got.Children[0].BirthDate)
}

func TestRemoveItem_ByStableID(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	doc := sampleDoc()
	second := model.NewChild()
	second.BirthDate = "09/09/2019"
	doc.Children = append(doc.Children, second)
	renderOne(e, doc, false)

	p := e.View().Panel("f1")
	firstID := p.Groups[0].Items[0].ID
	secondID := p.Groups[0].Items[1].ID

	require.NoError(t, e.RemoveItem("f1", firstID))

	p = e.View().Panel("f1")
	require.Len(t, p.Groups[0].Items, 1)
	assert.Equal(t, secondID, p.Groups[0].Items[0].ID)
	assert.Equal(t, "2019-09-09", p.Control(secondID+"/birthDate").Value)

	assert.ErrorIs(t, e.RemoveItem("f1", firstID), ErrUnknownControl)
}

func TestAddItem_UnknownGroup(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	docs := []model.Document{{FileID: "x", Type: "FORM_867", TaxYear: "2023"}}
	e.Render(docs, NewBackup(docs), false, false)

	_, err := e.AddItem("x", model.GroupChildren)
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestToggleAllFields_OnThenOffRemovesSynthesized(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)
	before, err := e.Reconstruct("f1")
	require.NoError(t, err)

	on, err := e.ToggleAllFields("f1")
	require.NoError(t, err)
	assert.True(t, on)

	p := e.View().Panel("f1")
	require.NotNil(t, p.Control("overtimeBoolean"))
	assert.Equal(t, "false", p.Control("overtimeBoolean").Value)
	// Relief credit predates 2024 and is still zero.
	assert.Nil(t, p.Control(field.TemporaryReliefField))
	assert.Equal(t, Clean, p.State)

	on, err = e.ToggleAllFields("f1")
	require.NoError(t, err)
	assert.False(t, on)

	after, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestToggleAllFields_KeepsFilledSynthesized(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	_, err := e.ToggleAllFields("f1")
	require.NoError(t, err)
	_, err = e.SetValue("f1", "overtimeBoolean", "true")
	require.NoError(t, err)
	_, err = e.ToggleAllFields("f1")
	require.NoError(t, err)

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, model.Value("true"), got.Fields["overtimeBoolean"])
	assert.NotNil(t, e.View().Panel("f1").Control("overtimeBoolean"))
}

func TestReliefFieldShownFrom2024(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	doc := sampleDoc()
	doc.TaxYear = "2024"
	renderOne(e, doc, true)
	assert.NotNil(t, e.View().Panel("f1").Control(field.TemporaryReliefField))

	doc.TaxYear = "2023"
	doc.Fields[field.TemporaryReliefField] = "0.00"
	renderOne(e, doc, true)
	assert.Nil(t, e.View().Panel("f1").Control(field.TemporaryReliefField))

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, model.Value("0.00"), got.Fields[field.TemporaryReliefField])
}

func TestSetItemType_ReformatsValue(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)
	id := e.View().Panel("f1").Groups[1].Items[0].ID

	require.NoError(t, e.SetItemType("f1", id, "numberOfDeals"))
	p := e.View().Panel("f1")
	assert.Equal(t, field.KindInteger, p.Control(id+"/value").Spec.Kind)
	assert.Equal(t, "1500", p.Control(id+"/value").Value)

	got, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Equal(t, "numberOfDeals", got.GenericFields[0].GenericFieldType)
	assert.Equal(t, model.Value("1500"), got.GenericFields[0].Value)

	// The selector routes through SetValue too.
	_, err = e.SetValue("f1", id+"/genericFieldType", model.NeutralGenericType)
	require.NoError(t, err)
	p = e.View().Panel("f1")
	assert.Equal(t, field.KindCurrency, p.Control(id+"/value").Spec.Kind)
	assert.Equal(t, "₪1,500.00", p.Control(id+"/value").Value)
}

func TestSave_Success(t *testing.T) {
	api := &mockAPI{}
	e, l := newTestEditor(t, api)
	backup := renderOne(e, sampleDoc(), false)

	canonical := normalizedSample()
	canonical.Fields["grossSalary"] = "2000.00"
	canonical.Fields["bonusAmount"] = "10.00"
	api.On("UpdateForm", mock.Anything, "Dana", mock.MatchedBy(func(d model.Document) bool {
		return d.FileID == "f1" && d.Fields["grossSalary"] == "2000.00"
	})).Return([]model.Document{canonical}, nil).Once()

	_, err := e.SetValue("f1", "grossSalary", "2000")
	require.NoError(t, err)
	require.NoError(t, e.Save(context.Background(), "f1"))

	p := e.View().Panel("f1")
	assert.Equal(t, Clean, p.State)
	assert.Equal(t, "₪2,000.00", p.Control("grossSalary").Value)
	assert.False(t, p.Control("grossSalary").Changed)
	assert.NotNil(t, p.Control("bonusAmount"))

	saved, ok := backup.Get("f1")
	require.True(t, ok)
	assert.Equal(t, model.Value("2000.00"), saved.Fields["grossSalary"])

	require.Len(t, l.changed, 1)
	assert.Equal(t, []model.Document{canonical}, l.changed[0])
	api.AssertExpectations(t)
}

func TestSave_FailureKeepsEdits(t *testing.T) {
	api := &mockAPI{}
	e, l := newTestEditor(t, api)
	backup := renderOne(e, sampleDoc(), false)

	api.On("UpdateForm", mock.Anything, "Dana", mock.Anything).Return(nil, errors.New("boom")).Once()

	_, err := e.SetValue("f1", "grossSalary", "2000")
	require.NoError(t, err)
	assert.Error(t, e.Save(context.Background(), "f1"))

	p := e.View().Panel("f1")
	assert.Equal(t, Dirty, p.State)
	assert.Equal(t, "2000", p.Control("grossSalary").Value)
	assert.True(t, p.Control("grossSalary").Error)
	assert.False(t, p.Control("taxWithheld").Error)

	saved, _ := backup.Get("f1")
	assert.Equal(t, model.Value("1234"), saved.Fields["grossSalary"])
	assert.Empty(t, l.changed)

	// A new edit clears the error mark.
	_, err = e.SetValue("f1", "grossSalary", "2001")
	require.NoError(t, err)
	assert.False(t, e.View().Panel("f1").Control("grossSalary").Error)
}

// saveInFlight starts Save on f1 with UpdateForm held until release is
// closed. The returned channel yields Save's result.
func saveInFlight(t *testing.T, e *Editor, api *mockAPI, docs []model.Document, saveErr error) (release chan struct{}, done chan error) {
	t.Helper()
	started := make(chan struct{})
	release = make(chan struct{})
	api.On("UpdateForm", mock.Anything, "Dana", mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(docs, saveErr).Once()

	done = make(chan error, 1)
	go func() { done <- e.Save(context.Background(), "f1") }()
	<-started
	return release, done
}

func TestSave_AddItemWhileInFlight(t *testing.T) {
	api := &mockAPI{}
	e, l := newTestEditor(t, api)
	backup := renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", "grossSalary", "2000")
	require.NoError(t, err)

	canonical := normalizedSample()
	canonical.Fields["grossSalary"] = "2000.00"
	release, done := saveInFlight(t, e, api, []model.Document{canonical}, nil)

	assert.ErrorIs(t, e.Save(context.Background(), "f1"), ErrSaveInProgress)
	_, err = e.AddItem("f1", model.GroupChildren)
	require.NoError(t, err)
	assert.Equal(t, Saving, e.View().Panel("f1").State)

	close(release)
	require.NoError(t, <-done)

	p := e.View().Panel("f1")
	assert.Equal(t, Dirty, p.State)
	require.Len(t, l.changed, 1)
	saved, _ := backup.Get("f1")
	assert.Equal(t, model.Value("2000.00"), saved.Fields["grossSalary"])
	assert.Len(t, saved.Children, 1)

	doc, err := e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Len(t, doc.Children, 2)

	// The panel is not stuck: the pending item can be saved or cancelled.
	require.NoError(t, e.Cancel("f1"))
	p = e.View().Panel("f1")
	assert.Equal(t, Clean, p.State)
	doc, err = e.Reconstruct("f1")
	require.NoError(t, err)
	assert.Len(t, doc.Children, 1)
	assert.Equal(t, model.Value("2000.00"), doc.Fields["grossSalary"])
	api.AssertExpectations(t)
}

func TestSave_EditWhileInFlightStaysPending(t *testing.T) {
	api := &mockAPI{}
	e, l := newTestEditor(t, api)
	renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", "grossSalary", "2000")
	require.NoError(t, err)

	canonical := normalizedSample()
	canonical.Fields["grossSalary"] = "2000.00"
	release, done := saveInFlight(t, e, api, []model.Document{canonical}, nil)

	_, err = e.SetValue("f1", "taxWithheld", "200")
	require.NoError(t, err)
	_, err = e.SetValue("f1", "grossSalary", "2500")
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	p := e.View().Panel("f1")
	assert.Equal(t, Dirty, p.State)
	assert.True(t, p.Control("taxWithheld").Changed)
	require.Len(t, l.changed, 1)

	api.On("UpdateForm", mock.Anything, "Dana", mock.MatchedBy(func(d model.Document) bool {
		return d.Fields["taxWithheld"] == "200.00" && d.Fields["grossSalary"] == "2500.00"
	})).Return(nil, nil).Once()
	require.NoError(t, e.Save(context.Background(), "f1"))
	assert.Equal(t, Clean, e.View().Panel("f1").State)
	api.AssertExpectations(t)
}

func TestSave_FailureAfterStructuralEditIsDirty(t *testing.T) {
	api := &mockAPI{}
	e, l := newTestEditor(t, api)
	renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", "grossSalary", "2000")
	require.NoError(t, err)
	release, done := saveInFlight(t, e, api, nil, errors.New("boom"))

	_, err = e.ToggleAllFields("f1")
	require.NoError(t, err)
	close(release)
	assert.Error(t, <-done)

	p := e.View().Panel("f1")
	assert.Equal(t, Dirty, p.State)
	assert.True(t, p.Control("grossSalary").Error)
	assert.Empty(t, l.changed)
	require.NoError(t, e.Cancel("f1"))
}

func TestSave_RerenderWhileInFlightIsLeftAlone(t *testing.T) {
	api := &mockAPI{}
	e, l := newTestEditor(t, api)
	renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", "grossSalary", "2000")
	require.NoError(t, err)
	release, done := saveInFlight(t, e, api, []model.Document{normalizedSample()}, nil)

	renderOne(e, sampleDoc(), false)
	close(release)
	require.NoError(t, <-done)

	p := e.View().Panel("f1")
	assert.Equal(t, Clean, p.State)
	assert.Equal(t, "₪1,234.00", p.Control("grossSalary").Value)
	assert.Empty(t, l.changed)
}

func TestExport_NoNetworkAndNoFileID(t *testing.T) {
	api := &mockAPI{}
	e, _ := newTestEditor(t, api)
	renderOne(e, sampleDoc(), false)

	_, err := e.SetValue("f1", "grossSalary", "50")
	require.NoError(t, err)

	got, err := e.Export("f1")
	require.NoError(t, err)
	assert.Empty(t, got.FileID)
	assert.Equal(t, model.Value("50.00"), got.Fields["grossSalary"])
	assert.Equal(t, Dirty, e.View().Panel("f1").State)
	api.AssertNotCalled(t, "UpdateForm", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete(t *testing.T) {
	api := &mockAPI{}
	e, l := newTestEditor(t, api)
	docs := []model.Document{
		{FileID: "a", Type: "FORM_867", TaxYear: "2023"},
		{FileID: "b", Type: "FORM_867", TaxYear: "2022"},
		{FileID: "c", Type: "FORM_867", TaxYear: "2023"},
		{FileID: "err", Type: model.ErrorFormType, ReasonText: "unreadable"},
	}
	backup := NewBackup(docs)
	e.Render(docs, backup, false, false)

	api.On("DeleteFile", mock.Anything, "Dana", mock.Anything).Return(nil)

	// Sibling remains: the group stays and the host refreshes counts.
	require.NoError(t, e.Delete(context.Background(), "c"))
	assert.Equal(t, []string{model.NoYearGroup, "2023", "2022"}, e.View().Keys())
	assert.Equal(t, 0, l.reloads)
	require.Len(t, l.changed, 1)
	assert.Len(t, l.changed[0], 3)

	// Last in its group: the group goes and a reload is requested.
	require.NoError(t, e.Delete(context.Background(), "b"))
	assert.Equal(t, []string{model.NoYearGroup, "2023"}, e.View().Keys())
	assert.Equal(t, 1, l.reloads)

	// Error records are deletable too.
	require.NoError(t, e.Delete(context.Background(), "err"))
	assert.Equal(t, []string{"2023"}, e.View().Keys())
	assert.Equal(t, 2, l.reloads)

	assert.Equal(t, 1, backup.Len())
	assert.ErrorIs(t, e.Delete(context.Background(), "b"), ErrUnknownDocument)
}

func TestDelete_FailureLeavesState(t *testing.T) {
	api := &mockAPI{}
	e, l := newTestEditor(t, api)
	backup := renderOne(e, sampleDoc(), false)

	api.On("DeleteFile", mock.Anything, "Dana", "f1").Return(errors.New("boom"))

	assert.Error(t, e.Delete(context.Background(), "f1"))
	assert.NotNil(t, e.View().Panel("f1"))
	assert.Equal(t, 1, backup.Len())
	assert.Empty(t, l.changed)
	assert.Zero(t, l.reloads)
}

func TestClear_DropsUnsavedEdits(t *testing.T) {
	api := &mockAPI{}
	e, _ := newTestEditor(t, api)
	renderOne(e, sampleDoc(), false)
	_, err := e.SetValue("f1", "grossSalary", "2000")
	require.NoError(t, err)

	e.Clear()

	assert.Empty(t, e.View().Groups)
	_, err = e.Reconstruct("f1")
	assert.ErrorIs(t, err, ErrNotRendered)
	api.AssertNotCalled(t, "UpdateForm", mock.Anything, mock.Anything, mock.Anything)
}

func TestViewIsSnapshot(t *testing.T) {
	e, _ := newTestEditor(t, &mockAPI{})
	renderOne(e, sampleDoc(), false)

	v := e.View()
	v.Panel("f1").Control("grossSalary").Value = "mutated"
	assert.Equal(t, "₪1,234.00", e.View().Panel("f1").Control("grossSalary").Value)
}
