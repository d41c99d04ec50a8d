package upload

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/imageprep"
)

// ValidationError lists files rejected before any network call.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "upload: " + strings.Join(e.Problems, "; ")
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return eris.As(err, &ve)
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// prepared is a validated file ready to send.
type prepared struct {
	name      string
	content   []byte
	imageHash string
	password  string
	pages     int
}

func (o *Orchestrator) validate(files []File) ([]prepared, error) {
	if len(files) == 0 {
		return nil, &ValidationError{Problems: []string{"no files selected"}}
	}

	var problems []string
	out := make([]prepared, 0, len(files))
	for _, f := range files {
		p, problem := o.prepare(f)
		if problem != "" {
			problems = append(problems, problem)
			continue
		}
		out = append(out, p)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return out, nil
}

func (o *Orchestrator) prepare(f File) (prepared, string) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if !o.allowed[ext] {
		return prepared{}, fmt.Sprintf("%s: file type %q is not supported", f.Name, ext)
	}
	if len(f.Data) == 0 {
		return prepared{}, fmt.Sprintf("%s: file is empty", f.Name)
	}
	if o.opts.MaxFileBytes > 0 && int64(len(f.Data)) > o.opts.MaxFileBytes {
		return prepared{}, fmt.Sprintf("%s: file is larger than %d MB", f.Name, o.opts.MaxFileBytes>>20)
	}

	p, problem := o.transform(f, ext)
	p.password = f.Password
	return p, problem
}

func (o *Orchestrator) transform(f File, ext string) (prepared, string) {
	if imageExtensions[ext] {
		res, err := imageprep.Prepare(f.Data, o.opts.Image)
		if err != nil {
			return prepared{}, fmt.Sprintf("%s: image cannot be read", f.Name)
		}
		name := strings.TrimSuffix(f.Name, filepath.Ext(f.Name)) + ".jpg"
		return prepared{name: name, content: res.Data, imageHash: res.Hash}, ""
	}

	pages, err := o.pageCount(f.Data)
	if err != nil {
		if looksEncrypted(err) {
			// The server drives the password prompt for encrypted files.
			zap.L().Debug("upload: encrypted pdf", zap.String("file", f.Name))
			return prepared{name: f.Name, content: f.Data}, ""
		}
		return prepared{}, fmt.Sprintf("%s: not a readable PDF", f.Name)
	}
	return prepared{name: f.Name, content: f.Data, pages: pages}, ""
}

func pdfPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, eris.Wrap(err, "upload: pdf page count")
	}
	return n, nil
}

func looksEncrypted(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
