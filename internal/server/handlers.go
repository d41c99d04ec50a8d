package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/editor"
	"github.com/sells-group/tax-intake/internal/export"
	"github.com/sells-group/tax-intake/internal/field"
	"github.com/sells-group/tax-intake/internal/model"
	"github.com/sells-group/tax-intake/internal/upload"
	"github.com/sells-group/tax-intake/pkg/taxapi"
)

type sessionResponse struct {
	SignedIn      bool   `json:"signedIn"`
	Email         string `json:"email,omitempty"`
	Anonymous     bool   `json:"anonymous"`
	TermsAccepted bool   `json:"termsAccepted"`
	Customer      string `json:"customer,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{
		SignedIn:      s.sess.SignedIn(),
		Email:         s.sess.Email(),
		Anonymous:     s.sess.Anonymous(),
		TermsAccepted: s.sess.TermsAccepted(r.Context()),
		Customer:      s.ws.Customer(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		Anonymous bool   `json:"anonymous"`
	}
	if !decode(w, r, &body) {
		return
	}
	var err error
	if body.Anonymous {
		err = s.flow.LoginAnonymous(r.Context())
	} else {
		err = s.flow.Login(r.Context(), body.Email, body.Password)
	}
	if err != nil {
		if apiErr, ok := taxapi.AsAPIError(err); ok && apiErr.StatusCode == http.StatusUnauthorized {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "wrong email or password"})
			return
		}
		writeError(w, err)
		return
	}
	s.handleSession(w, r)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.flow.SignOut(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Accepted bool `json:"accepted"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := s.flow.AcceptTerms(r.Context(), body.Accepted); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type viewResponse struct {
	Customer string                   `json:"customer"`
	Editable bool                     `json:"editable"`
	View     *editor.View             `json:"view,omitempty"`
	Files    []editor.FileItem        `json:"files,omitempty"`
	Results  []model.ResultDescriptor `json:"results"`
}

func (s *Server) viewResponse(r *http.Request) viewResponse {
	resp := viewResponse{
		Customer: s.ws.Customer(),
		Editable: s.sess.EditableView(r.Context()),
		Results:  s.ws.Results(),
	}
	if resp.Editable {
		resp.View = s.ws.Editor().View()
	} else {
		resp.Files = s.ws.Files()
	}
	return resp
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("editable"); v != "" {
		if err := s.sess.SetEditableView(r.Context(), v == "true"); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.viewResponse(r))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Reload(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewResponse(r))
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Expanded bool `json:"expanded"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := s.ws.Editor().SetExpanded(chi.URLParam(r, "key"), body.Expanded); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type customerResponse struct {
	Selected  string           `json:"selected"`
	Customers []model.Customer `json:"customers"`
}

func (s *Server) handleCustomer(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"
	cs, err := s.flow.Customers(r.Context(), force)
	if err != nil {
		writeError(w, err)
		return
	}
	sel, err := s.sess.SelectedCustomer(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customerResponse{Selected: sel, Customers: cs})
}

func (s *Server) handleSelectCustomer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := s.flow.SelectCustomer(r.Context(), body.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewResponse(r))
}

func (s *Server) handleCreatableForms(w http.ResponseWriter, r *http.Request) {
	forms, err := s.ws.CreatableForms(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forms)
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FormType             string `json:"formType"`
		IdentificationNumber string `json:"identificationNumber"`
	}
	if !decode(w, r, &body) {
		return
	}
	if _, err := s.ws.CreateForm(r.Context(), body.FormType, body.IdentificationNumber); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewResponse(r))
}

type uploadResponse struct {
	Uploaded []string     `json:"uploaded"`
	Skipped  []string     `json:"skipped,omitempty"`
	View     viewResponse `json:"state"`
}

// handleUpload takes multipart "files", an optional "password" applied to
// every file and an optional "replacedFileId".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid upload form"})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	password := r.FormValue("password")
	var files []upload.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, err)
			return
		}
		files = append(files, upload.File{Name: fh.Filename, Data: data, Password: password})
	}

	report, err := s.ws.Upload(r.Context(), files, r.FormValue("replacedFileId"))
	if err != nil && !errors.Is(err, upload.ErrCancelled) {
		writeError(w, err)
		return
	}
	resp := uploadResponse{View: s.viewResponse(r)}
	if report != nil {
		resp.Uploaded = report.Uploaded
		resp.Skipped = report.Skipped
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleUploadCancel(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Uploads != nil {
		s.opts.Uploads.Cancel()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := s.ws.RefreshResults(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.ws.Results())
}

// handleCalculate runs the tax calculation. With ?format=xlsx the rows
// come back as a spreadsheet.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaxYear string `json:"taxYear"`
	}
	if !decode(w, r, &body) {
		return
	}
	rows, err := s.ws.CalculateTax(r.Context(), body.TaxYear)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") != "xlsx" {
		writeJSON(w, http.StatusOK, rows)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteResultsXLSX(&buf, body.TaxYear, rows); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "results_"+body.TaxYear+".xlsx"))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.DeleteAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewResponse(r))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Delete(r.Context(), chi.URLParam(r, "fileID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewResponse(r))
}

type controlRequest struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type controlResponse struct {
	Value string `json:"value"`
	Alert string `json:"alert,omitempty"`
}

func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	var body controlRequest
	if !decode(w, r, &body) {
		return
	}
	v, err := s.ws.Editor().SetValue(chi.URLParam(r, "fileID"), body.ID, body.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Value: v})
}

func (s *Server) handleBlur(w http.ResponseWriter, r *http.Request) {
	var body controlRequest
	if !decode(w, r, &body) {
		return
	}
	v, err := s.ws.Editor().Blur(chi.URLParam(r, "fileID"), body.ID)
	if errors.Is(err, field.ErrInvalidDate) {
		writeJSON(w, http.StatusOK, controlResponse{Value: v, Alert: "The date is not valid."})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Value: v})
}

func (s *Server) writePanel(w http.ResponseWriter, fileID string) {
	p := s.ws.Editor().View().Panel(fileID)
	if p == nil {
		writeError(w, editor.ErrUnknownDocument)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if err := s.ws.Save(r.Context(), fileID); err != nil {
		writeError(w, err)
		return
	}
	s.writePanel(w, fileID)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ws.Editor().Export(chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteDocumentJSON(&buf, doc); err != nil {
		zap.L().Warn("server: export rejected", zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.DocumentFileName(doc)))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if err := s.ws.Editor().Cancel(fileID); err != nil {
		writeError(w, err)
		return
	}
	s.writePanel(w, fileID)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if _, err := s.ws.Editor().ToggleAllFields(fileID); err != nil {
		writeError(w, err)
		return
	}
	s.writePanel(w, fileID)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Group string `json:"group"`
	}
	if !decode(w, r, &body) {
		return
	}
	fileID := chi.URLParam(r, "fileID")
	if _, err := s.ws.Editor().AddItem(fileID, body.Group); err != nil {
		writeError(w, err)
		return
	}
	s.writePanel(w, fileID)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if err := s.ws.Editor().RemoveItem(fileID, chi.URLParam(r, "itemID")); err != nil {
		writeError(w, err)
		return
	}
	s.writePanel(w, fileID)
}

func (s *Server) handleItemType(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type string `json:"type"`
	}
	if !decode(w, r, &body) {
		return
	}
	fileID := chi.URLParam(r, "fileID")
	if err := s.ws.Editor().SetItemType(fileID, chi.URLParam(r, "itemID"), body.Type); err != nil {
		writeError(w, err)
		return
	}
	s.writePanel(w, fileID)
}
