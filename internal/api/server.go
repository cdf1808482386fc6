// Package api exposes a domain.Gateway over HTTP so editors can persist
// through a remote process (see storage.HTTPGateway for the client).
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sitebuilder/internal/domain"
)

// ── Wire types ─────────────────────────────────────────────

// CreateBlockRequest is the body of POST /pages/{pageID}/blocks.
type CreateBlockRequest struct {
	Type    domain.BlockType `json:"type"`
	Content json.RawMessage  `json:"content,omitempty"`
	Styles  domain.Styles    `json:"styles,omitempty"`
	Order   int              `json:"order"`
}

// UpdateBlockRequest is the body of PATCH /blocks/{id}. Type is required
// when Content is set.
type UpdateBlockRequest struct {
	Type    domain.BlockType `json:"type,omitempty"`
	Content json.RawMessage  `json:"content,omitempty"`
	Styles  domain.Styles    `json:"styles,omitempty"`
}

// CreateVersionRequest is the body of POST /pages/{pageID}/versions.
type CreateVersionRequest struct {
	Version     string           `json:"version"`
	Description string           `json:"description,omitempty"`
	Tag         string           `json:"tag,omitempty"`
	State       domain.PageState `json:"state"`
}

type CreateVersionResponse struct {
	ID string `json:"id"`
}

// ErrorResponse carries a domain error code across the wire.
type ErrorResponse struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

// ── Server ─────────────────────────────────────────────────

type Server struct {
	gw  domain.Gateway
	log *log.Logger
}

func NewServer(gw domain.Gateway, l *log.Logger) *Server {
	if l == nil {
		l = log.Default()
	}
	return &Server{gw: gw, log: l.WithPrefix("api")}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/pages/{pageID}", func(r chi.Router) {
		r.Get("/", s.loadPage)
		r.Put("/", s.replacePage)
		r.Post("/changes", s.saveChanges)
		r.Get("/blocks", s.listBlocks)
		r.Post("/blocks", s.createBlock)
		r.Get("/versions", s.listVersions)
		r.Post("/versions", s.createVersion)
	})
	r.Patch("/blocks/{id}", s.updateBlock)
	r.Delete("/blocks/{id}", s.deleteBlock)
	r.Get("/versions/{id}", s.loadVersion)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur", time.Since(start),
			"req", middleware.GetReqID(r.Context()))
	})
}

// ── Pages ──────────────────────────────────────────────────

func (s *Server) loadPage(w http.ResponseWriter, r *http.Request) {
	st, err := s.gw.LoadPage(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) replacePage(w http.ResponseWriter, r *http.Request) {
	var st domain.PageState
	if !s.decode(w, r, &st) {
		return
	}
	if err := s.gw.ReplacePage(r.Context(), chi.URLParam(r, "pageID"), st); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) saveChanges(w http.ResponseWriter, r *http.Request) {
	var cs domain.ChangeSet
	if !s.decode(w, r, &cs) {
		return
	}
	cs.PageID = chi.URLParam(r, "pageID")
	if err := s.gw.SaveChanges(r.Context(), cs); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Blocks ─────────────────────────────────────────────────

func (s *Server) listBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.gw.ListBlocks(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if blocks == nil {
		blocks = []domain.Block{}
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (s *Server) createBlock(w http.ResponseWriter, r *http.Request) {
	var req CreateBlockRequest
	if !s.decode(w, r, &req) {
		return
	}
	var content domain.Content
	if len(req.Content) > 0 {
		c, err := domain.DecodeContent(req.Type, req.Content)
		if err != nil {
			s.fail(w, err)
			return
		}
		content = c
	}
	b, err := s.gw.CreateBlock(r.Context(), chi.URLParam(r, "pageID"), req.Type, content, req.Styles, req.Order)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) updateBlock(w http.ResponseWriter, r *http.Request) {
	var req UpdateBlockRequest
	if !s.decode(w, r, &req) {
		return
	}
	var content domain.Content
	if len(req.Content) > 0 {
		if req.Type == "" {
			s.fail(w, domain.ErrValidation("content update needs a block type"))
			return
		}
		c, err := domain.DecodeContent(req.Type, req.Content)
		if err != nil {
			s.fail(w, err)
			return
		}
		content = c
	}
	b, err := s.gw.UpdateBlock(r.Context(), chi.URLParam(r, "id"), content, req.Styles)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) deleteBlock(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.DeleteBlock(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Versions ───────────────────────────────────────────────

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	list, err := s.gw.ListVersions(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if list == nil {
		list = []domain.Version{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createVersion(w http.ResponseWriter, r *http.Request) {
	var req CreateVersionRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.gw.CreateVersion(r.Context(), chi.URLParam(r, "pageID"), req.Version, req.Description, req.Tag, req.State)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateVersionResponse{ID: id})
}

func (s *Server) loadVersion(w http.ResponseWriter, r *http.Request) {
	st, err := s.gw.LoadVersion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ── Helpers ────────────────────────────────────────────────

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, domain.WrapError(domain.ErrCodeValidation, err, "decode request body"))
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := domain.GetCode(err)
	status := StatusFor(code)
	if code == "" {
		code = domain.ErrCodePersistence
	}
	if status >= 500 {
		s.log.Error("request failed", "err", err)
	}
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
		if de.Cause != nil {
			msg += ": " + de.Cause.Error()
		}
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code domain.Code) int {
	switch code {
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeLocked, domain.ErrCodeBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
