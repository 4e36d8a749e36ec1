// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes highlight capture and review tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/geometry"
	"github.com/starford/marginalia/internal/highlightservice"
	"github.com/starford/marginalia/internal/library"
)

const coordinatesURI = "marginalia://coordinates"

// Server wraps the MCP server with Marginalia tools.
type Server struct {
	mcp *server.MCPServer
	svc *highlightservice.Service
	lib *library.Library
}

// New creates a new MCP server with all tools registered.
func New(svc *highlightservice.Service, lib *library.Library, version string) *Server {
	s := &Server{svc: svc, lib: lib}

	s.mcp = server.NewMCPServer(
		"Marginalia",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the PDF documents in the library, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents (default 50)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Make a library document the active one. "+
			"Highlights of the previously active document are discarded."),
		mcp.WithString("identifier", mcp.Required(), mcp.Description("Document identifier as returned by list_documents")),
	), s.openDocument)

	s.mcp.AddTool(mcp.NewTool("get_active_document",
		mcp.WithDescription("Return the active document, including its page count and page sizes."),
	), s.getActiveDocument)

	s.mcp.AddTool(mcp.NewTool("read_page_text",
		mcp.WithDescription("Extract the plain text of one page of the active document."),
		mcp.WithNumber("page", mcp.Required(), mcp.Description("1-based page number")),
	), s.readPageText)

	s.mcp.AddTool(mcp.NewTool("list_highlights",
		mcp.WithDescription("List highlights in creation order, optionally for one page only."),
		mcp.WithNumber("page", mcp.Description("1-based page number; omit for all pages")),
	), s.listHighlights)

	s.mcp.AddTool(mcp.NewTool("capture_selection",
		mcp.WithDescription("Turn a measured text selection into a highlight using the active color. "+
			"Rectangles are viewport-relative; read the coordinate contract via "+
			"get_coordinate_contract or the "+coordinatesURI+" resource first."),
		mcp.WithNumber("page", mcp.Required(), mcp.Description("1-based page number that received the selection")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Selected text")),
		mcp.WithNumber("selection_left", mcp.Required(), mcp.Description("Selection bounding box left")),
		mcp.WithNumber("selection_top", mcp.Required(), mcp.Description("Selection bounding box top")),
		mcp.WithNumber("selection_width", mcp.Required(), mcp.Description("Selection bounding box width")),
		mcp.WithNumber("selection_height", mcp.Required(), mcp.Description("Selection bounding box height")),
		mcp.WithNumber("page_left", mcp.Required(), mcp.Description("Page container left")),
		mcp.WithNumber("page_top", mcp.Required(), mcp.Description("Page container top")),
		mcp.WithNumber("page_width", mcp.Required(), mcp.Description("Page container width")),
		mcp.WithNumber("page_height", mcp.Required(), mcp.Description("Page container height")),
	), s.captureSelection)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Set the note of a highlight. An empty note removes it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Highlight id")),
		mcp.WithString("note", mcp.Description("Note text")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_highlight",
		mcp.WithDescription("Delete a highlight. Unknown ids are ignored."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Highlight id")),
	), s.deleteHighlight)

	s.mcp.AddTool(mcp.NewTool("get_palette",
		mcp.WithDescription("List the selectable highlight colors and the active one."),
	), s.getPalette)

	s.mcp.AddTool(mcp.NewTool("set_color",
		mcp.WithDescription("Change the active highlight color. Only palette colors are accepted."),
		mcp.WithString("color", mcp.Required(), mcp.Description("Hex color from get_palette, e.g. #4CAF50")),
	), s.setColor)

	s.mcp.AddTool(mcp.NewTool("export_markdown",
		mcp.WithDescription("Export the highlights and notes of the active document as a Markdown note with YAML frontmatter."),
	), s.exportMarkdown)

	s.mcp.AddTool(mcp.NewTool("get_coordinate_contract",
		mcp.WithDescription("Returns how selection geometry is measured and stored."),
	), s.getCoordinateContract)

	s.mcp.AddResource(
		mcp.NewResource(coordinatesURI, "Coordinate Contract",
			mcp.WithResourceDescription("How selection rectangles map to stored highlight positions."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCoordinatesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, total, err := s.lib.List(req.GetInt("limit", 50), 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"documents": docs, "total": total}), nil
}

func (s *Server) openDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("identifier")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.lib.Get(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("document not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.svc.Workspace().Load(*doc)
	return jsonResult(doc), nil
}

func (s *Server) getActiveDocument(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, ok := s.svc.Workspace().Active()
	if !ok {
		return mcp.NewToolResultText("no active document"), nil
	}
	return jsonResult(doc), nil
}

func (s *Server) readPageText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := req.RequireInt("page")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, ok := s.svc.Workspace().Active()
	if !ok {
		return mcp.NewToolResultError("no active document; call open_document first"), nil
	}
	text, err := s.lib.PageText(doc.Identifier, page)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) listHighlights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := req.GetInt("page", 0)
	return jsonResult(s.svc.List(ctx, page)), nil
}

func (s *Server) captureSelection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := req.RequireInt("page")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sel, err := requireRect(req, "selection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	container, err := requireRect(req, "page")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, err := s.svc.Capture(ctx, highlightservice.SelectionRequest{
		Page:          page,
		Text:          text,
		SelectionRect: sel,
		PageRect:      container,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if h == nil {
		return mcp.NewToolResultText("empty selection, nothing stored"), nil
	}
	return jsonResult(h), nil
}

func requireRect(req mcp.CallToolRequest, prefix string) (geometry.Rect, error) {
	var r geometry.Rect
	fields := []struct {
		name string
		dst  *float64
	}{
		{"left", &r.Left},
		{"top", &r.Top},
		{"width", &r.Width},
		{"height", &r.Height},
	}
	for _, f := range fields {
		v, err := req.RequireFloat(prefix + "_" + f.name)
		if err != nil {
			return geometry.Rect{}, err
		}
		*f.dst = v
	}
	return r, nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h, err := s.svc.UpdateNote(ctx, id, req.GetString("note", ""))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("highlight not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(h), nil
}

func (s *Server) deleteHighlight(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !s.svc.Delete(ctx, id) {
		return mcp.NewToolResultText(fmt.Sprintf("no highlight with id %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) getPalette(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	active := s.svc.Session(ctx).Color
	for _, sw := range s.svc.Palette() {
		marker := " "
		if sw.Value == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s %s\n", marker, sw.Value, sw.Name)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) setColor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	color, err := req.RequireString("color")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.svc.SetColor(ctx, color)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("active color: %s", st.Color)), nil
}

func (s *Server) exportMarkdown(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.svc.ExportMarkdown(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getCoordinateContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CoordinateContract), nil
}

func (s *Server) readCoordinatesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      coordinatesURI,
			MIMEType: "text/markdown",
			Text:     CoordinateContract,
		},
	}, nil
}
