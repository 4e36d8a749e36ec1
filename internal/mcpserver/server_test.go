package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/marginalia/internal/highlight"
	"github.com/starford/marginalia/internal/highlightservice"
	"github.com/starford/marginalia/internal/library"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
	"github.com/starford/marginalia/internal/session"
	"github.com/starford/marginalia/internal/testutil"
	"github.com/starford/marginalia/internal/workspace"
)

func testServer(t *testing.T) (*Server, *library.Library) {
	t.Helper()
	_, docs := testutil.TestDocs(t)
	db := testutil.TestDB(t)
	logger := testutil.Logger()

	store := highlight.NewStore()
	sess := session.NewController(store, models.DefaultColor)
	ws := workspace.New(store, sess, logger, nil)
	svc := highlightservice.New(store, sess, ws, render.New(), logger)
	lib := library.New(docs, db, logger, 0)

	return New(svc, lib, "test"), lib
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_documents":          srv.listDocuments,
		"open_document":           srv.openDocument,
		"get_active_document":     srv.getActiveDocument,
		"read_page_text":          srv.readPageText,
		"list_highlights":         srv.listHighlights,
		"capture_selection":       srv.captureSelection,
		"update_note":             srv.updateNote,
		"delete_highlight":        srv.deleteHighlight,
		"get_palette":             srv.getPalette,
		"set_color":               srv.setColor,
		"export_markdown":         srv.exportMarkdown,
		"get_coordinate_contract": srv.getCoordinateContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func selectionArgs(page int, text string) map[string]any {
	return map[string]any{
		"page":             float64(page),
		"text":             text,
		"selection_left":   150.0,
		"selection_top":    220.0,
		"selection_width":  80.0,
		"selection_height": 18.0,
		"page_left":        100.0,
		"page_top":         200.0,
		"page_width":       800.0,
		"page_height":      1000.0,
	}
}

func TestCaptureAndList(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "capture_selection", selectionArgs(1, "important claim"))
	if r.IsError {
		t.Fatalf("capture failed: %s", resultText(r))
	}
	var h models.Highlight
	if err := json.Unmarshal([]byte(resultText(r)), &h); err != nil {
		t.Fatal(err)
	}
	if h.Text != "important claim" || h.Position.X != 50 || h.Position.Y != 20 {
		t.Errorf("highlight = %+v", h)
	}

	r = callTool(t, srv, "list_highlights", map[string]any{"page": float64(1)})
	var list []models.Highlight
	if err := json.Unmarshal([]byte(resultText(r)), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != h.ID {
		t.Errorf("list = %+v", list)
	}
}

func TestCaptureEmptySelection(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "capture_selection", selectionArgs(1, "   "))
	if r.IsError || !strings.Contains(resultText(r), "nothing stored") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestCaptureMissingGeometry(t *testing.T) {
	srv, _ := testServer(t)
	args := selectionArgs(1, "x")
	delete(args, "page_height")
	if r := callTool(t, srv, "capture_selection", args); !r.IsError {
		t.Error("expected error for missing page_height")
	}
}

func TestNoteAndDelete(t *testing.T) {
	srv, _ := testServer(t)
	var h models.Highlight
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "capture_selection", selectionArgs(1, "x")))), &h)

	r := callTool(t, srv, "update_note", map[string]any{"id": h.ID, "note": "follow up"})
	if r.IsError || !strings.Contains(resultText(r), "follow up") {
		t.Errorf("update_note = %q", resultText(r))
	}
	if r := callTool(t, srv, "update_note", map[string]any{"id": "ghost", "note": "x"}); !r.IsError {
		t.Error("expected error for missing highlight")
	}

	if r := callTool(t, srv, "delete_highlight", map[string]any{"id": h.ID}); resultText(r) != "deleted: "+h.ID {
		t.Errorf("delete = %q", resultText(r))
	}
	if r := callTool(t, srv, "delete_highlight", map[string]any{"id": h.ID}); r.IsError {
		t.Error("second delete should not be an error")
	}
}

func TestPaletteAndColor(t *testing.T) {
	srv, _ := testServer(t)

	if r := callTool(t, srv, "set_color", map[string]any{"color": "#123456"}); !r.IsError {
		t.Error("off-palette color accepted")
	}
	if r := callTool(t, srv, "set_color", map[string]any{"color": "#2196f3"}); r.IsError {
		t.Fatalf("set_color: %s", resultText(r))
	}
	text := resultText(callTool(t, srv, "get_palette", nil))
	if !strings.Contains(text, "* #2196F3 Blue") {
		t.Errorf("palette = %q", text)
	}
	if strings.Count(text, "\n") != len(models.Palette) {
		t.Errorf("palette lines = %q", text)
	}
}

func TestDocumentTools(t *testing.T) {
	srv, lib := testServer(t)

	if r := callTool(t, srv, "read_page_text", map[string]any{"page": float64(1)}); !r.IsError {
		t.Error("expected error without an active document")
	}

	doc, err := lib.Upload("paper.pdf", bytes.NewReader(testutil.MinimalPDF("Alpha page", "Bravo page")))
	if err != nil {
		t.Fatal(err)
	}

	if r := callTool(t, srv, "open_document", map[string]any{"identifier": "nope.pdf"}); !r.IsError {
		t.Error("expected error for unknown document")
	}
	if r := callTool(t, srv, "open_document", map[string]any{"identifier": doc.Identifier}); r.IsError {
		t.Fatalf("open_document: %s", resultText(r))
	}
	if text := resultText(callTool(t, srv, "get_active_document", nil)); !strings.Contains(text, doc.Identifier) {
		t.Errorf("active = %q", text)
	}
	if text := resultText(callTool(t, srv, "list_documents", nil)); !strings.Contains(text, `"total": 1`) {
		t.Errorf("documents = %q", text)
	}

	r := callTool(t, srv, "read_page_text", map[string]any{"page": float64(2)})
	if r.IsError || !strings.Contains(resultText(r), "Bravo") {
		t.Errorf("page text = %q", resultText(r))
	}

	if r := callTool(t, srv, "capture_selection", selectionArgs(3, "x")); !r.IsError {
		t.Error("expected error for page past the end of the document")
	}
}

func TestCoordinateContract(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_coordinate_contract", nil))
	if text != CoordinateContract {
		t.Error("tool text differs from contract")
	}

	contents, err := srv.readCoordinatesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != coordinatesURI || !strings.Contains(tc.Text, "position.x") {
		t.Errorf("resource = %+v", contents)
	}
}

func TestExportMarkdown(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "capture_selection", selectionArgs(4, "keep this"))
	text := resultText(callTool(t, srv, "export_markdown", nil))
	if !strings.HasPrefix(text, "---\n") || !strings.Contains(text, "## Page 4") {
		t.Errorf("export = %q", text)
	}
}
