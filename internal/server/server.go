// Package server exposes the workspace editor over HTTP for a thin browser
// front end.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/authflow"
	"github.com/sells-group/tax-intake/internal/editor"
	"github.com/sells-group/tax-intake/internal/field"
	"github.com/sells-group/tax-intake/internal/session"
	"github.com/sells-group/tax-intake/internal/upload"
	"github.com/sells-group/tax-intake/internal/workspace"
	"github.com/sells-group/tax-intake/pkg/taxapi"
)

// genericMessage replaces unexpected errors in responses.
const genericMessage = "Something went wrong. Please try again."

// Canceler stops a running upload batch.
type Canceler interface {
	Cancel()
}

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	Uploads        Canceler
}

// Server routes HTTP requests to the workspace, the auth flow and the
// session.
type Server struct {
	ws   *workspace.Workspace
	flow *authflow.Flow
	sess *session.Context
	opts Options
}

// New creates a Server.
func New(ws *workspace.Workspace, flow *authflow.Flow, sess *session.Context, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Server{ws: ws, flow: flow, sess: sess, opts: opts}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Post("/terms", s.handleTerms)
		r.Get("/view", s.handleView)
		r.Post("/reload", s.handleReload)
		r.Put("/groups/{key}", s.handleExpand)

		r.Get("/customer", s.handleCustomer)
		r.Put("/customer", s.handleSelectCustomer)

		r.Get("/forms", s.handleCreatableForms)
		r.Post("/forms", s.handleCreateForm)

		r.Post("/upload", s.handleUpload)
		r.Post("/upload/cancel", s.handleUploadCancel)

		r.Get("/results", s.handleResults)
		r.Post("/calculate", s.handleCalculate)

		r.Delete("/documents", s.handleDeleteAll)
		r.Route("/documents/{fileID}", func(r chi.Router) {
			r.Delete("/", s.handleDelete)
			r.Put("/controls", s.handleSetValue)
			r.Post("/controls/blur", s.handleBlur)
			r.Post("/save", s.handleSave)
			r.Post("/export", s.handleExport)
			r.Post("/cancel", s.handleCancel)
			r.Post("/toggle", s.handleToggle)
			r.Post("/items", s.handleAddItem)
			r.Delete("/items/{itemID}", s.handleRemoveItem)
			r.Put("/items/{itemID}/type", s.handleItemType)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

type errorBody struct {
	Error            string          `json:"error"`
	Notice           *session.Notice `json:"notice,omitempty"`
	Problems         []string        `json:"problems,omitempty"`
	PasswordRequired bool            `json:"passwordRequired,omitempty"`
}

var badRequest = []error{
	editor.ErrReadOnly,
	field.ErrInvalidDate,
	authflow.ErrInvalidEmail,
	authflow.ErrPasswordRequired,
	authflow.ErrWeakPassword,
	authflow.ErrPasswordMismatch,
	authflow.ErrConfirmation,
	authflow.ErrEmptyName,
	authflow.ErrNameTooLong,
	workspace.ErrEmptyTaxYear,
	workspace.ErrNotCreatable,
}

var notFound = []error{
	editor.ErrUnknownDocument,
	editor.ErrUnknownControl,
	editor.ErrUnknownGroup,
	authflow.ErrUnknownCustomer,
}

var conflict = []error{
	editor.ErrSaveInProgress,
	editor.ErrNotRendered,
	workspace.ErrNoCustomer,
	authflow.ErrDuplicateName,
	upload.ErrCancelled,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeError is the single catch point for handler errors. Known errors
// keep their message; anything else becomes a generic message.
func writeError(w http.ResponseWriter, err error) {
	if ended, ok := session.AsEnded(err); ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: ended.Notice.Message, Notice: &ended.Notice})
		return
	}
	var ve *upload.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "upload rejected", Problems: ve.Problems})
		return
	}
	if taxapi.IsPasswordRequired(err) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "the file is password protected", PasswordRequired: true})
		return
	}

	switch {
	case isAny(err, badRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case isAny(err, notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case isAny(err, conflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		zap.L().Error("server: request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: genericMessage})
	}
}

// decode reads a JSON body, answering 400 itself when it is malformed.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}
