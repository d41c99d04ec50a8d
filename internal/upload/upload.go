// Package upload sends files to the backend one at a time, asking for a
// password whenever the backend reports an encrypted document.
package upload

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/imageprep"
	"github.com/sells-group/tax-intake/internal/model"
	"github.com/sells-group/tax-intake/pkg/taxapi"
)

// ErrCancelled is returned when the user stopped the batch.
var ErrCancelled = eris.New("upload: operation cancelled by user")

// API is the upload endpoint.
type API interface {
	UploadFile(ctx context.Context, req taxapi.UploadRequest) ([]model.Document, error)
}

// PasswordPrompter asks the user for a document password. retry is true
// when a previous password for the same file was rejected. ok is false
// when the user declined, which skips only that file.
type PasswordPrompter interface {
	PromptPassword(ctx context.Context, fileName string, retry bool) (password string, ok bool, err error)
}

// File is one local file chosen for upload. Password, when set, is sent
// with the first attempt.
type File struct {
	Name     string
	Data     []byte
	Password string
}

// Options configures validation and preprocessing.
type Options struct {
	MaxFileBytes      int64
	AllowedExtensions []string
	Image             imageprep.Options
}

// Report describes a finished or interrupted batch.
type Report struct {
	// Documents is the latest full list returned by the backend; nil when
	// nothing was uploaded.
	Documents []model.Document
	Uploaded  []string
	Skipped   []string
}

// Orchestrator runs upload batches. Cancel may be called from any
// goroutine; it takes effect before the next file starts.
type Orchestrator struct {
	api      API
	prompter PasswordPrompter
	opts     Options
	allowed  map[string]bool

	pageCount func([]byte) (int, error)
	cancelled atomic.Bool
}

// New creates an orchestrator. prompter may be nil, in which case
// encrypted files fail the batch.
func New(api API, prompter PasswordPrompter, opts Options) *Orchestrator {
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	return &Orchestrator{
		api:       api,
		prompter:  prompter,
		opts:      opts,
		allowed:   allowed,
		pageCount: pdfPageCount,
	}
}

// Cancel stops the running batch before its next file.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
}

// Upload validates every file, then sends them in order. replacedFileID,
// when set, tells the backend the batch retries that error record.
// Files already sent stay committed when a later one fails.
func (o *Orchestrator) Upload(ctx context.Context, customer string, files []File, replacedFileID string) (*Report, error) {
	o.cancelled.Store(false)

	batch, err := o.validate(files)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, f := range batch {
		if o.cancelled.Load() {
			zap.L().Info("upload: cancelled", zap.Int("remaining", len(batch)-len(report.Uploaded)-len(report.Skipped)))
			return report, ErrCancelled
		}

		docs, sent, err := o.send(ctx, customer, f, replacedFileID)
		if err != nil {
			return report, err
		}
		if !sent {
			report.Skipped = append(report.Skipped, f.name)
			continue
		}
		report.Documents = docs
		report.Uploaded = append(report.Uploaded, f.name)
	}
	return report, nil
}

// send uploads one file, looping on password prompts. sent is false when
// the user skipped the file.
func (o *Orchestrator) send(ctx context.Context, customer string, f prepared, replacedFileID string) ([]model.Document, bool, error) {
	log := zap.L().With(zap.String("customer", customer), zap.String("file", f.name))
	req := taxapi.UploadRequest{
		Customer:       customer,
		FileName:       f.name,
		Content:        f.content,
		Password:       f.password,
		ReplacedFileID: replacedFileID,
		ImageHash:      f.imageHash,
	}

	retry := f.password != ""
	for {
		docs, err := o.api.UploadFile(ctx, req)
		if err == nil {
			log.Info("upload: sent", zap.Int("pages", f.pages), zap.Int("documents", len(docs)))
			return docs, true, nil
		}
		if !taxapi.IsPasswordRequired(err) || o.prompter == nil {
			return nil, false, eris.Wrapf(err, "upload: %s", f.name)
		}

		pw, ok, perr := o.prompter.PromptPassword(ctx, f.name, retry)
		if perr != nil {
			return nil, false, eris.Wrap(perr, "upload: password prompt")
		}
		if !ok {
			log.Info("upload: skipped encrypted file")
			return nil, false, nil
		}
		req.Password = pw
		retry = true
	}
}
