// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes quire note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/noteservice"
)

// NoteFormatURI is the resource holding NoteFormatContract.
const NoteFormatURI = "quire://note-format"

// Server wraps the MCP server with quire tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all quire tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"quire",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_providers",
		mcp.WithDescription("List the note providers (local directory, online accounts) and their capabilities."),
	), s.listProviders)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the notes exposed so far, sorted by title. "+
			"Call load_more_notes while the result reports pending notes."),
		mcp.WithBoolean("trash", mcp.Description("List the trash instead of the notes")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("load_more_notes",
		mcp.WithDescription("Expose the next batch of notes and return the updated listing."),
		mcp.WithBoolean("trash", mcp.Description("Page the trash instead of the notes")),
	), s.loadMoreNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note: title, plain-text content, raw stored body and etag."),
		mcp.WithString("provider", mcp.Required(), mcp.Description("Provider uid, e.g. local")),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Note uid within the provider")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. Content is plain text; the first line of a note is always its title. "+
			"Read the quire://note-format resource before writing raw bodies."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Plain-text body")),
		mcp.WithString("provider", mcp.Description("Provider uid; empty for the default provider")),
		mcp.WithString("color", mcp.Description("Color such as #ff0000, for providers that support color")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Change the title, content or color of a note. Pass the etag from read_note "+
			"to fail instead of overwriting a concurrent edit."),
		mcp.WithString("provider", mcp.Required(), mcp.Description("Provider uid")),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Note uid")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New plain-text body")),
		mcp.WithString("color", mcp.Description("New color")),
		mcp.WithString("etag", mcp.Description("Expected etag")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("trash_note",
		mcp.WithDescription("Move a note to its provider's trash."),
		mcp.WithString("provider", mcp.Required(), mcp.Description("Provider uid")),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Note uid")),
	), s.trashNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchNotes)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(NoteFormatURI, "Note Format Contract",
			mcp.WithResourceDescription("How quire stores notes and how tool content maps onto them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

// errorResult turns domain errors into tool errors the model can act on.
func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("conflict: the note changed or is in the trash; read it again")
	case errors.Is(err, apperr.ErrNotSupported):
		return mcp.NewToolResultError("the provider does not support this operation")
	}
	return mcp.NewToolResultError(err.Error())
}

func requireKey(req mcp.CallToolRequest) (string, string, error) {
	p, err := req.RequireString("provider")
	if err != nil {
		return "", "", err
	}
	uid, err := req.RequireString("uid")
	if err != nil {
		return "", "", err
	}
	return p, uid, nil
}

func (s *Server) listProviders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Providers(ctx)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.ListNotes(ctx, req.GetBool("trash", false))), nil
}

func (s *Server) loadMoreNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.LoadMore(ctx, req.GetBool("trash", false))), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, uid, err := requireKey(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, p, uid)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(note), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.CreateNote(ctx, noteservice.CreateInput{
		Provider: req.GetString("provider", ""),
		Title:    title,
		Content:  req.GetString("content", ""),
		Color:    req.GetString("color", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s/%s", note.Provider, note.UID)), nil
}

// optional returns a pointer to the argument when the caller passed it.
func optional(req mcp.CallToolRequest, name string) *string {
	if _, ok := req.GetArguments()[name]; !ok {
		return nil
	}
	v := req.GetString(name, "")
	return &v
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, uid, err := requireKey(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := noteservice.UpdateInput{
		Title:   optional(req, "title"),
		Content: optional(req, "content"),
		Color:   optional(req, "color"),
	}
	if in.Title == nil && in.Content == nil && in.Color == nil {
		return mcp.NewToolResultError("nothing to update: pass title, content or color"), nil
	}
	note, err := s.svc.UpdateNote(ctx, p, uid, in, req.GetString("etag", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(note), nil
}

func (s *Server) trashNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, uid, err := requireKey(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.TrashNote(ctx, p, uid); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("trashed: %s/%s", p, uid)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NoteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
