package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/marginalia/internal/library"
	"github.com/starford/marginalia/internal/workspace"
)

// multipartOverhead is the slack allowed on top of the file size limit for
// multipart boundaries and headers.
const multipartOverhead = 64 << 10

// DocumentHandler accepts, lists and serves PDF documents.
type DocumentHandler struct {
	lib      *library.Library
	ws       *workspace.Workspace
	maxBytes int64
}

// NewDocumentHandler creates a document handler. maxBytes bounds a single upload.
func NewDocumentHandler(lib *library.Library, ws *workspace.Workspace, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{lib: lib, ws: ws, maxBytes: maxBytes}
}

// Upload handles POST /api/documents (multipart/form-data, field "file").
// The stored document becomes the active one.
//
//	@Summary		Upload a PDF and make it the active document
//	@Tags			documents
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"PDF file"
//	@Success		201		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Failure		415		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("file exceeds upload limit"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("file exceeds upload limit"))
		return
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/pdf" && ct != "application/octet-stream" {
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody("only PDF files are accepted"))
		return
	}

	doc, err := h.lib.Upload(header.Filename, file)
	if err != nil {
		writeError(w, "upload document", err)
		return
	}
	h.ws.Load(*doc)
	writeJSON(w, http.StatusCreated, doc)
}

// List handles GET /api/documents.
//
//	@Summary		List catalogued documents, newest first
//	@Tags			documents
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	docs, total, err := h.lib.List(limit, offset)
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: total})
}

// Activate handles POST /api/documents/{id}/activate.
//
//	@Summary		Make a catalogued document the active one
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document identifier"
//	@Success		200	{object}	Document
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/activate [post]
func (h *DocumentHandler) Activate(w http.ResponseWriter, r *http.Request) {
	doc, err := h.lib.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "activate document", err)
		return
	}
	h.ws.Load(*doc)
	writeJSON(w, http.StatusOK, doc)
}

// PageText handles GET /api/documents/{id}/pages/{page}/text.
//
//	@Summary		Extract the plain text of one page
//	@Tags			documents
//	@Produce		json
//	@Param			id		path		string	true	"Document identifier"
//	@Param			page	path		int		true	"1-based page number"
//	@Success		200		{object}	PageTextResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/pages/{page}/text [get]
func (h *DocumentHandler) PageText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, err := pageParam(r)
	if err != nil {
		writeError(w, "page text", err)
		return
	}
	if _, err := h.lib.Get(id); err != nil {
		writeError(w, "page text", err)
		return
	}
	text, err := h.lib.PageText(id, page)
	if err != nil {
		writeError(w, "page text", err)
		return
	}
	writeJSON(w, http.StatusOK, PageTextResponse{Page: page, Text: text})
}

// Active handles GET /api/documents/active.
//
//	@Summary		Get the active document
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	Document
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/active [get]
func (h *DocumentHandler) Active(w http.ResponseWriter, _ *http.Request) {
	doc, ok := h.ws.Active()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no active document"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Reset handles DELETE /api/documents/active. Highlights and session state
// are discarded with the document.
//
//	@Summary		Close the active document
//	@Tags			documents
//	@Success		204	"Workspace reset"
//	@Security		BearerAuth
//	@Router			/documents/active [delete]
func (h *DocumentHandler) Reset(w http.ResponseWriter, _ *http.Request) {
	h.ws.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// ServeFile handles GET /files/{name}.
func (h *DocumentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	doc, err := h.lib.Get(name)
	if err != nil {
		writeError(w, "serve file", err)
		return
	}
	f, err := h.lib.Open(doc.Identifier)
	if err != nil {
		writeError(w, "serve file", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeContent(w, r, doc.Identifier, doc.UploadedAt, f)
}
