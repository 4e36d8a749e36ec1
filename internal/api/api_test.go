package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/starford/marginalia/internal/geometry"
	"github.com/starford/marginalia/internal/highlight"
	"github.com/starford/marginalia/internal/highlightservice"
	"github.com/starford/marginalia/internal/library"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
	"github.com/starford/marginalia/internal/session"
	"github.com/starford/marginalia/internal/testutil"
	"github.com/starford/marginalia/internal/workspace"
)

const testMaxUpload = 1 << 20

type testEnv struct {
	router http.Handler
	svc    *highlightservice.Service
	lib    *library.Library
	dir    string
}

// newTestEnv wires a full service stack on a temp documents dir and catalog.
// An empty token means auth is disabled.
func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	return newTestEnvWithSSE(t, token, nil)
}

func newTestEnvWithSSE(t *testing.T, token string, sseHandler http.Handler) *testEnv {
	t.Helper()
	dir, docs := testutil.TestDocs(t)
	db := testutil.TestDB(t)
	logger := testutil.Logger()

	store := highlight.NewStore()
	sess := session.NewController(store, models.DefaultColor)
	ws := workspace.New(store, sess, logger, nil)
	svc := highlightservice.New(store, sess, ws, render.New(), logger)
	lib := library.New(docs, db, logger, testMaxUpload)

	deps := Deps{Highlights: svc, Library: lib, MaxUploadBytes: testMaxUpload}
	r := chi.NewRouter()
	r.Mount("/api", NewRouter(deps, token != "", token, sseHandler))
	r.Mount("/files", NewFileRouter(deps, token != "", token))
	return &testEnv{router: r, svc: svc, lib: lib, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func selectionBody(text string) SelectionRequest {
	return SelectionRequest{
		Text:          text,
		SelectionRect: geometry.Rect{Left: 150, Top: 220, Width: 80, Height: 18},
		PageRect:      geometry.Rect{Left: 100, Top: 200, Width: 800, Height: 1000},
	}
}

func TestCaptureAndListHighlights(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/pages/2/selections", selectionBody("quoted text"))
	if w.Code != http.StatusCreated {
		t.Fatalf("capture = %d, body = %s", w.Code, w.Body.String())
	}
	h := decode[Highlight](t, w)
	if h.ID == "" || h.Text != "quoted text" || h.PageNumber != 2 || h.Color != models.DefaultColor {
		t.Errorf("highlight = %+v", h)
	}
	if h.Position != (geometry.Position{X: 50, Y: 20, Width: 80, Height: 18}) {
		t.Errorf("position = %+v", h.Position)
	}

	w = env.do(t, http.MethodGet, "/api/highlights", nil)
	list := decode[HighlightListResponse](t, w)
	if len(list.Highlights) != 1 || list.Highlights[0].ID != h.ID {
		t.Errorf("list = %+v", list)
	}

	w = env.do(t, http.MethodGet, "/api/highlights?page=1", nil)
	if got := decode[HighlightListResponse](t, w); len(got.Highlights) != 0 {
		t.Errorf("page 1 list = %+v", got)
	}

	w = env.do(t, http.MethodGet, "/api/highlights/"+h.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get = %d", w.Code)
	}
}

func TestCaptureEmptySelection(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody(" \n\t"))
	if w.Code != http.StatusNoContent {
		t.Errorf("whitespace capture = %d, want 204", w.Code)
	}
	collapsed := selectionBody("x")
	collapsed.SelectionRect.Width = 0
	collapsed.SelectionRect.Height = 0
	if w := env.do(t, http.MethodPost, "/api/pages/1/selections", collapsed); w.Code != http.StatusNoContent {
		t.Errorf("collapsed capture = %d, want 204", w.Code)
	}
	if n := len(env.svc.List(context.Background(), 0)); n != 0 {
		t.Errorf("store has %d highlights", n)
	}
}

func TestCaptureBadPage(t *testing.T) {
	env := newTestEnv(t, "")
	for _, page := range []string{"0", "-1", "abc"} {
		w := env.do(t, http.MethodPost, "/api/pages/"+page+"/selections", selectionBody("x"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("page %s = %d, want 400", page, w.Code)
		}
	}
}

func TestCaptureInvalidJSON(t *testing.T) {
	env := newTestEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/pages/1/selections", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestDeleteHighlightIsIdempotent(t *testing.T) {
	env := newTestEnv(t, "")
	h := decode[Highlight](t, env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody("x")))

	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodDelete, "/api/highlights/"+h.ID, nil); w.Code != http.StatusNoContent {
			t.Errorf("delete #%d = %d, want 204", i+1, w.Code)
		}
	}
	if w := env.do(t, http.MethodGet, "/api/highlights/"+h.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", w.Code)
	}
}

func TestUpdateNote(t *testing.T) {
	env := newTestEnv(t, "")
	h := decode[Highlight](t, env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody("x")))

	w := env.do(t, http.MethodPut, "/api/highlights/"+h.ID+"/note", NoteRequest{Note: "  remember  "})
	if w.Code != http.StatusOK {
		t.Fatalf("update note = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[Highlight](t, w)
	if got.Note == nil || *got.Note != "remember" {
		t.Errorf("note = %v", got.Note)
	}

	got = decode[Highlight](t, env.do(t, http.MethodPut, "/api/highlights/"+h.ID+"/note", NoteRequest{Note: ""}))
	if got.Note != nil {
		t.Errorf("empty note should clear, got %q", *got.Note)
	}

	if w := env.do(t, http.MethodPut, "/api/highlights/ghost/note", NoteRequest{Note: "x"}); w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestClearHighlights(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody("a"))
	env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody("b"))

	w := env.do(t, http.MethodDelete, "/api/highlights", nil)
	if got := decode[ClearResponse](t, w); got.Removed != 2 {
		t.Errorf("removed = %d, want 2", got.Removed)
	}
}

func TestPageOverlays(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody("a"))

	w := env.do(t, http.MethodPost, "/api/pages/1/overlays", OverlayRequest{Container: geometry.Size{Width: 400, Height: 500}})
	if w.Code != http.StatusOK {
		t.Fatalf("overlays = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[OverlayResponse](t, w)
	if len(resp.Overlays) != 1 {
		t.Fatalf("overlays = %+v", resp.Overlays)
	}
	o := resp.Overlays[0]
	want := geometry.Rect{Left: 25, Top: 10, Width: 40, Height: 9}
	if diff := cmp.Diff(want, o.Box, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("box mismatch (-want +got):\n%s", diff)
	}
	if o.PointerEvents != "none" || o.BlendMode != "multiply" || o.Opacity != 0.4 {
		t.Errorf("overlay style = %+v", o)
	}

	w = env.do(t, http.MethodPost, "/api/pages/2/overlays", OverlayRequest{Container: geometry.Size{Width: 400, Height: 500}})
	if got := decode[OverlayResponse](t, w); got.Overlays == nil || len(got.Overlays) != 0 {
		t.Errorf("page 2 overlays = %+v", got.Overlays)
	}
}

func TestSessionColor(t *testing.T) {
	env := newTestEnv(t, "")

	st := decode[session.State](t, env.do(t, http.MethodGet, "/api/session/color", nil))
	if st.Color != models.DefaultColor {
		t.Errorf("default color = %q", st.Color)
	}

	w := env.do(t, http.MethodPut, "/api/session/color", ColorRequest{Color: "#4caf50"})
	if w.Code != http.StatusOK {
		t.Fatalf("set color = %d, body = %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPut, "/api/session/color", ColorRequest{Color: "#123456"}); w.Code != http.StatusBadRequest {
		t.Errorf("off-palette = %d, want 400", w.Code)
	}

	h := decode[Highlight](t, env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody("x")))
	if h.Color != models.Green {
		t.Errorf("captured color = %q, want green", h.Color)
	}
}

func TestSessionEditFlow(t *testing.T) {
	env := newTestEnv(t, "")
	h := decode[Highlight](t, env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody("x")))

	if w := env.do(t, http.MethodPost, "/api/session/edit", EditRequest{ID: "ghost"}); w.Code != http.StatusNotFound {
		t.Errorf("edit missing = %d, want 404", w.Code)
	}

	st := decode[session.State](t, env.do(t, http.MethodPost, "/api/session/edit", EditRequest{ID: h.ID}))
	if st.Editing != h.ID {
		t.Errorf("editing = %q", st.Editing)
	}
	st = decode[session.State](t, env.do(t, http.MethodDelete, "/api/session/edit", nil))
	if st.Editing != "" {
		t.Errorf("editing after cancel = %q", st.Editing)
	}

	env.do(t, http.MethodPost, "/api/session/edit", EditRequest{ID: h.ID})
	got := decode[Highlight](t, env.do(t, http.MethodPost, "/api/session/edit/commit", CommitRequest{ID: h.ID, Note: "done"}))
	if got.Note == nil || *got.Note != "done" {
		t.Errorf("committed note = %v", got.Note)
	}
	st = decode[session.State](t, env.do(t, http.MethodGet, "/api/session/color", nil))
	if st.Editing != "" {
		t.Errorf("editing after commit = %q", st.Editing)
	}
}

func TestPalette(t *testing.T) {
	env := newTestEnv(t, "")
	resp := decode[PaletteResponse](t, env.do(t, http.MethodGet, "/api/palette", nil))
	if len(resp.Colors) != 5 || resp.Colors[0].Value != models.Yellow || resp.Default != models.Yellow {
		t.Errorf("palette = %+v", resp)
	}
}

// Document tests.

func TestUploadActivatesDocument(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody("stale"))

	w := env.upload(t, "paper.pdf", testutil.MinimalPDF("first page", "second page"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	doc := decode[Document](t, w)
	if doc.Pages != 2 || doc.OriginalName != "paper.pdf" || !strings.HasPrefix(doc.URL, "/files/") {
		t.Errorf("document = %+v", doc)
	}

	if n := len(env.svc.List(context.Background(), 0)); n != 0 {
		t.Errorf("highlights survived upload: %d", n)
	}
	active := decode[Document](t, env.do(t, http.MethodGet, "/api/documents/active", nil))
	if active.Identifier != doc.Identifier {
		t.Errorf("active = %q, want %q", active.Identifier, doc.Identifier)
	}

	// Pages past the end of the active document are rejected.
	if w := env.do(t, http.MethodPost, "/api/pages/3/selections", selectionBody("x")); w.Code != http.StatusBadRequest {
		t.Errorf("capture past last page = %d, want 400", w.Code)
	}

	list := decode[DocumentListResponse](t, env.do(t, http.MethodGet, "/api/documents", nil))
	if list.Total != 1 || len(list.Documents) != 1 {
		t.Errorf("documents = %+v", list)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.upload(t, "notes.pdf", []byte("plain text, not a pdf"))
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("non-pdf upload = %d, want 415", w.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, "")
	big := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), testMaxUpload+1)...)
	w := env.upload(t, "big.pdf", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload = %d, want 413", w.Code)
	}
}

func TestUploadMissingFileField(t *testing.T) {
	env := newTestEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestResetActiveDocument(t *testing.T) {
	env := newTestEnv(t, "")
	env.upload(t, "paper.pdf", testutil.MinimalPDF("only page"))
	env.do(t, http.MethodPost, "/api/pages/1/selections", selectionBody("x"))

	if w := env.do(t, http.MethodDelete, "/api/documents/active", nil); w.Code != http.StatusNoContent {
		t.Errorf("reset = %d, want 204", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/documents/active", nil); w.Code != http.StatusNotFound {
		t.Errorf("active after reset = %d, want 404", w.Code)
	}
	if n := len(env.svc.List(context.Background(), 0)); n != 0 {
		t.Errorf("highlights after reset = %d", n)
	}
}

func TestActivateAndPageText(t *testing.T) {
	env := newTestEnv(t, "")
	doc := decode[Document](t, env.upload(t, "paper.pdf", testutil.MinimalPDF("Hello margin")))
	env.do(t, http.MethodDelete, "/api/documents/active", nil)

	if w := env.do(t, http.MethodPost, "/api/documents/"+doc.Identifier+"/activate", nil); w.Code != http.StatusOK {
		t.Fatalf("activate = %d, body = %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/api/documents/missing.pdf/activate", nil); w.Code != http.StatusNotFound {
		t.Errorf("activate missing = %d, want 404", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/documents/"+doc.Identifier+"/pages/1/text", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("page text = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[PageTextResponse](t, w); !strings.Contains(got.Text, "Hello") {
		t.Errorf("text = %q", got.Text)
	}
	if w := env.do(t, http.MethodGet, "/api/documents/"+doc.Identifier+"/pages/9/text", nil); w.Code != http.StatusBadRequest {
		t.Errorf("page out of range = %d, want 400", w.Code)
	}
}

func TestServeFile(t *testing.T) {
	env := newTestEnv(t, "")
	content := testutil.MinimalPDF("served")
	doc := decode[Document](t, env.upload(t, "paper.pdf", content))

	w := env.do(t, http.MethodGet, doc.URL, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("serve = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Error("served bytes differ from upload")
	}

	if w := env.do(t, http.MethodGet, "/files/nope.pdf", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing file = %d, want 404", w.Code)
	}
}

// Auth tests.

func TestAuthMiddleware_TokenMode(t *testing.T) {
	env := newTestEnv(t, "secret")

	if w := env.do(t, http.MethodGet, "/api/highlights", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no auth = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/highlights", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/highlights", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}

	if w := env.do(t, http.MethodGet, "/files/any.pdf", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("files no auth = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := newTestEnv(t, "")
	if w := env.do(t, http.MethodGet, "/api/highlights", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func blockingSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := newTestEnvWithSSE(t, "secret", blockingSSE())
	if w := env.do(t, http.MethodGet, "/api/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := newTestEnvWithSSE(t, "tok", blockingSSE())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestExportHighlights(t *testing.T) {
	env := newTestEnv(t, "")
	env.upload(t, "reading.pdf", testutil.MinimalPDF("one", "two"))
	env.do(t, http.MethodPost, "/api/pages/2/selections", selectionBody("worth keeping"))

	w := env.do(t, http.MethodGet, "/api/highlights/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"title: reading\n", "## Page 2", "> worth keeping"} {
		if !strings.Contains(body, want) {
			t.Errorf("export missing %q:\n%s", want, body)
		}
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	env := newTestEnv(t, "secret")

	if w := env.do(t, http.MethodGet, "/api/highlights?access_token=secret", nil); w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/highlights?access_token=nope", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("GET with wrong query token = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/highlights?access_token=secret", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("DELETE with query token = %d, want 401", w.Code)
	}
}
