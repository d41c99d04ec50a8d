// Package workspace is the host around the document editor: it owns the
// committed snapshot of the selected customer's documents, reacts to
// session transitions and keeps results in step with document changes.
package workspace

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tax-intake/internal/editor"
	"github.com/sells-group/tax-intake/internal/model"
	"github.com/sells-group/tax-intake/internal/session"
	"github.com/sells-group/tax-intake/internal/upload"
	"github.com/sells-group/tax-intake/pkg/taxapi"
)

var (
	ErrNoCustomer   = eris.New("workspace: no customer selected")
	ErrNotCreatable = eris.New("workspace: form type cannot be created")
	ErrNoUploader   = eris.New("workspace: uploads not configured")
	ErrEmptyTaxYear = eris.New("workspace: tax year is required")
)

// API is the slice of the backend the workspace calls directly.
type API interface {
	GetFilesInfo(ctx context.Context, customer string) ([]model.Document, error)
	GetResultsInfo(ctx context.Context, customer string) ([]model.ResultDescriptor, error)
	CreateForm(ctx context.Context, req taxapi.CreateFormRequest) ([]model.Document, error)
	DeleteAllFiles(ctx context.Context, customer string) error
	CalculateTax(ctx context.Context, customer, taxYear string) ([]model.TaxResultRow, error)
}

// Catalog is the form type configuration.
type Catalog interface {
	Load(ctx context.Context) error
	Lookup(formType string) (model.FormType, bool)
	Creatable(counts map[string]int) []model.FormType
}

// Uploader sends file batches.
type Uploader interface {
	Upload(ctx context.Context, customer string, files []upload.File, replacedFileID string) (*upload.Report, error)
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithShowAllFields renders placeholder controls for every catalog field.
func WithShowAllFields(on bool) Option {
	return func(w *Workspace) {
		w.showAll = on
	}
}

// WithUploader enables Upload.
func WithUploader(u Uploader) Option {
	return func(w *Workspace) {
		w.uploader = u
	}
}

// Workspace ties the session, the catalog and the editor together for the
// selected customer.
type Workspace struct {
	api      API
	catalog  Catalog
	sess     *session.Context
	editor   *editor.Editor
	uploader Uploader
	showAll  bool

	mu       sync.Mutex
	baseCtx  context.Context
	unsub    func()
	customer string
	backup   *editor.Backup
	results  []model.ResultDescriptor
}

// New creates a workspace and registers it as the editor's listener.
func New(api API, catalog Catalog, sess *session.Context, ed *editor.Editor, opts ...Option) *Workspace {
	w := &Workspace{
		api:     api,
		catalog: catalog,
		sess:    sess,
		editor:  ed,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(w)
	}
	ed.SetListener(w)
	return w
}

// Start subscribes to session events. ctx is used for reloads the
// workspace triggers on its own.
func (w *Workspace) Start(ctx context.Context) {
	unsub := w.sess.Subscribe(w.handleEvent)
	w.mu.Lock()
	w.baseCtx = ctx
	w.unsub = unsub
	w.mu.Unlock()
}

// Close unsubscribes from session events.
func (w *Workspace) Close() {
	w.mu.Lock()
	unsub := w.unsub
	w.unsub = nil
	w.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (w *Workspace) handleEvent(ev session.Event) {
	ctx := w.ctx()
	switch ev.Kind {
	case session.SignInChanged:
		if !ev.SignedIn {
			// Unsaved edits are dropped, never committed.
			w.clear()
			return
		}
		w.reloadLogged(ctx, "sign-in")
	case session.CustomerChanged:
		if ev.Customer == w.Customer() {
			return
		}
		w.reloadLogged(ctx, "customer change")
	}
}

func (w *Workspace) reloadLogged(ctx context.Context, reason string) {
	if err := w.Reload(ctx); err != nil {
		zap.L().Warn("workspace: reload failed", zap.String("reason", reason), zap.Error(err))
	}
}

func (w *Workspace) ctx() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.baseCtx
}

// Customer returns the workspace currently rendered.
func (w *Workspace) Customer() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.customer
}

// Documents returns the committed document list.
func (w *Workspace) Documents() []model.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.backup == nil {
		return nil
	}
	return w.backup.Docs()
}

// Files returns the plain list rendering used when the editable view is off.
func (w *Workspace) Files() []editor.FileItem {
	docs := w.Documents()
	out := make([]editor.FileItem, 0, len(docs))
	for _, d := range docs {
		out = append(out, editor.FileItemFor(d))
	}
	return out
}

// Results returns the last fetched result descriptors.
func (w *Workspace) Results() []model.ResultDescriptor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.ResultDescriptor(nil), w.results...)
}

// Editor returns the editor rendering this workspace.
func (w *Workspace) Editor() *editor.Editor {
	return w.editor
}

func (w *Workspace) clear() {
	w.editor.Clear()
	w.mu.Lock()
	w.customer = ""
	w.backup = nil
	w.results = nil
	w.mu.Unlock()
	zap.L().Info("workspace: cleared")
}

// resolveCustomer returns the selected customer, selecting the first
// listed one when nothing is selected yet.
func (w *Workspace) resolveCustomer(ctx context.Context) (string, error) {
	cur, err := w.sess.SelectedCustomer(ctx)
	if err != nil {
		return "", err
	}
	if cur != "" {
		return cur, nil
	}

	customers, err := w.sess.Customers(ctx, false)
	if err != nil {
		return "", err
	}
	if len(customers) == 0 {
		return "", nil
	}
	name := customers[0].Name
	w.mu.Lock()
	w.customer = name
	w.mu.Unlock()
	if err := w.sess.SelectCustomer(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

// Reload fetches the catalog, the documents and the results of the
// selected customer concurrently and renders from scratch.
func (w *Workspace) Reload(ctx context.Context) error {
	customer, err := w.resolveCustomer(ctx)
	if err != nil {
		return w.sess.Check(ctx, eris.Wrap(err, "workspace: resolve customer"))
	}
	if customer == "" {
		w.clear()
		return nil
	}

	var (
		docs    []model.Document
		results []model.ResultDescriptor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.catalog.Load(gctx)
	})
	g.Go(func() error {
		var err error
		docs, err = w.api.GetFilesInfo(gctx, customer)
		return err
	})
	g.Go(func() error {
		var err error
		results, err = w.api.GetResultsInfo(gctx, customer)
		return err
	})
	if err := g.Wait(); err != nil {
		return w.sess.Check(ctx, eris.Wrap(err, "workspace: reload"))
	}

	w.mu.Lock()
	w.customer = customer
	w.results = results
	w.mu.Unlock()
	w.render(customer, docs, false)

	zap.L().Info("workspace: reloaded",
		zap.String("customer", customer),
		zap.Int("documents", len(docs)),
		zap.Int("results", len(results)),
	)
	return nil
}

func (w *Workspace) render(customer string, docs []model.Document, isNewUpload bool) *editor.View {
	backup := editor.NewBackup(docs)
	w.mu.Lock()
	w.backup = backup
	showAll := w.showAll
	w.mu.Unlock()

	w.editor.SetCustomer(customer)
	return w.editor.Render(docs, backup, showAll, isNewUpload)
}

// RenderUploaded renders a list returned by an upload or create call,
// expanding the year group of the newest document.
func (w *Workspace) RenderUploaded(ctx context.Context, docs []model.Document) *editor.View {
	view := w.render(w.Customer(), docs, true)
	w.refreshResults(ctx)
	return view
}

// SetShowAllFields changes the default for subsequent renders.
func (w *Workspace) SetShowAllFields(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.showAll = on
}

func (w *Workspace) requireCustomer() (string, error) {
	c := w.Customer()
	if c == "" {
		return "", ErrNoCustomer
	}
	return c, nil
}

// Upload sends files through the uploader and renders whatever the
// backend returned last, even when the batch stopped early.
func (w *Workspace) Upload(ctx context.Context, files []upload.File, replacedFileID string) (*upload.Report, error) {
	if w.uploader == nil {
		return nil, ErrNoUploader
	}
	customer, err := w.requireCustomer()
	if err != nil {
		return nil, err
	}

	report, err := w.uploader.Upload(ctx, customer, files, replacedFileID)
	if report != nil && report.Documents != nil {
		w.RenderUploaded(ctx, report.Documents)
	}
	if err != nil {
		return report, w.sess.Check(ctx, err)
	}
	return report, nil
}

// CreatableForms lists the form types the user may create, most used
// first.
func (w *Workspace) CreatableForms(ctx context.Context) ([]model.FormType, error) {
	if err := w.catalog.Load(ctx); err != nil {
		return nil, w.sess.Check(ctx, eris.Wrap(err, "workspace: load catalog"))
	}
	counts, err := w.sess.FormTypeCounts(ctx)
	if err != nil {
		return nil, err
	}
	return w.catalog.Creatable(counts), nil
}

// CreateForm asks the backend for an empty form of formType and renders
// the refreshed list.
func (w *Workspace) CreateForm(ctx context.Context, formType, identificationNumber string) (*editor.View, error) {
	customer, err := w.requireCustomer()
	if err != nil {
		return nil, err
	}
	if err := w.catalog.Load(ctx); err != nil {
		return nil, w.sess.Check(ctx, eris.Wrap(err, "workspace: load catalog"))
	}
	ft, ok := w.catalog.Lookup(formType)
	if !ok || !ft.UserCanAdd {
		return nil, eris.Wrapf(ErrNotCreatable, "form type %q", formType)
	}

	docs, err := w.api.CreateForm(ctx, taxapi.CreateFormRequest{
		Customer:             customer,
		FormType:             formType,
		IdentificationNumber: identificationNumber,
	})
	if err != nil {
		return nil, w.sess.Check(ctx, eris.Wrap(err, "workspace: create form"))
	}
	if err := w.sess.RecordFormType(ctx, formType); err != nil {
		zap.L().Warn("workspace: record form type", zap.String("form_type", formType), zap.Error(err))
	}

	zap.L().Info("workspace: form created", zap.String("customer", customer), zap.String("form_type", formType))
	return w.RenderUploaded(ctx, docs), nil
}

// Save commits the edits of one document. A session-ended response signs
// the user out.
func (w *Workspace) Save(ctx context.Context, fileID string) error {
	if err := w.editor.Save(ctx, fileID); err != nil {
		return w.sess.Check(ctx, err)
	}
	return nil
}

// Delete removes one document. A session-ended response signs the user
// out.
func (w *Workspace) Delete(ctx context.Context, fileID string) error {
	if err := w.editor.Delete(ctx, fileID); err != nil {
		return w.sess.Check(ctx, err)
	}
	return nil
}

// DeleteAll removes every document of the customer and reloads.
func (w *Workspace) DeleteAll(ctx context.Context) error {
	customer, err := w.requireCustomer()
	if err != nil {
		return err
	}
	if err := w.api.DeleteAllFiles(ctx, customer); err != nil {
		return w.sess.Check(ctx, eris.Wrap(err, "workspace: delete all"))
	}
	zap.L().Info("workspace: all files deleted", zap.String("customer", customer))
	return w.Reload(ctx)
}

// CalculateTax runs the tax calculation for taxYear and refreshes the
// result list.
func (w *Workspace) CalculateTax(ctx context.Context, taxYear string) ([]model.TaxResultRow, error) {
	customer, err := w.requireCustomer()
	if err != nil {
		return nil, err
	}
	if taxYear == "" {
		return nil, ErrEmptyTaxYear
	}
	rows, err := w.api.CalculateTax(ctx, customer, taxYear)
	if err != nil {
		return nil, w.sess.Check(ctx, eris.Wrap(err, "workspace: calculate tax"))
	}
	w.refreshResults(ctx)
	return rows, nil
}

// RefreshResults re-fetches the result descriptors.
func (w *Workspace) RefreshResults(ctx context.Context) error {
	customer, err := w.requireCustomer()
	if err != nil {
		return err
	}
	results, err := w.api.GetResultsInfo(ctx, customer)
	if err != nil {
		return w.sess.Check(ctx, eris.Wrap(err, "workspace: results"))
	}
	w.mu.Lock()
	w.results = results
	w.mu.Unlock()
	return nil
}

func (w *Workspace) refreshResults(ctx context.Context) {
	if err := w.RefreshResults(ctx); err != nil {
		zap.L().Warn("workspace: refresh results", zap.Error(err))
	}
}

// DocumentsChanged implements editor.Listener.
func (w *Workspace) DocumentsChanged(docs []model.Document) {
	zap.L().Debug("workspace: documents changed", zap.Int("documents", len(docs)))
	w.refreshResults(w.ctx())
}

// ReloadRequired implements editor.Listener.
func (w *Workspace) ReloadRequired() {
	w.reloadLogged(w.ctx(), "editor request")
}
