package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quire/internal/noteservice"
	"github.com/starford/quire/internal/testutil"
)

func testServer(t *testing.T, files map[string]string) *Server {
	t.Helper()
	env := testutil.NewEnv(t, files, true)
	return New(noteservice.NewService(env.Manager, nil, nil), "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called
	// directly.
	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "list_providers":
		result, err = srv.listProviders(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "load_more_notes":
		result, err = srv.loadMoreNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "update_note":
		result, err = srv.updateNote(ctx, req)
	case "trash_note":
		result, err = srv.trashNote(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

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

func TestCreateAndReadNote(t *testing.T) {
	srv := testServer(t, nil)

	r := callTool(t, srv, "create_note", map[string]any{
		"title":   "Test",
		"content": "Hello <world>",
	})
	text := resultText(r)
	uid, ok := strings.CutPrefix(text, "created: local/")
	if r.IsError || !ok || uid == "" {
		t.Fatalf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]any{"provider": "local", "uid": uid})
	var note noteservice.NoteDetail
	if err := json.Unmarshal([]byte(resultText(r)), &note); err != nil {
		t.Fatalf("read result %q: %v", resultText(r), err)
	}
	if note.Title != "Test" || note.Content != "Hello <world>" || note.Raw != "Hello &lt;world&gt;" {
		t.Errorf("note = %+v", note)
	}
}

func TestUpdateNote(t *testing.T) {
	srv := testServer(t, map[string]string{"a.note": testutil.TomboyNote("Alpha", "one")})

	r := callTool(t, srv, "update_note", map[string]any{"provider": "local", "uid": "a"})
	if !r.IsError {
		t.Error("expected error when nothing changes")
	}
	r = callTool(t, srv, "update_note", map[string]any{"provider": "local", "uid": "a", "content": "two", "etag": "stale"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "conflict") {
		t.Errorf("stale etag result = %q", resultText(r))
	}
	r = callTool(t, srv, "update_note", map[string]any{"provider": "local", "uid": "a", "content": "two"})
	if r.IsError {
		t.Fatalf("update: %s", resultText(r))
	}
	var note noteservice.NoteDetail
	_ = json.Unmarshal([]byte(resultText(r)), &note)
	if note.Title != "Alpha" || note.Content != "two" {
		t.Errorf("note = %+v", note)
	}
}

func TestListAndTrash(t *testing.T) {
	srv := testServer(t, map[string]string{
		"a.note": testutil.TomboyNote("Alpha", "x"),
		"b.note": testutil.TomboyNote("Beta", "y"),
	})

	var page noteservice.Page
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "list_notes", map[string]any{}))), &page)
	if len(page.Notes) != 2 || page.Pending != 0 {
		t.Fatalf("page = %+v", page)
	}

	r := callTool(t, srv, "trash_note", map[string]any{"provider": "local", "uid": "a"})
	if resultText(r) != "trashed: local/a" {
		t.Fatalf("trash result = %q", resultText(r))
	}
	r = callTool(t, srv, "trash_note", map[string]any{"provider": "local", "uid": "a"})
	if !r.IsError {
		t.Error("trashing twice should fail")
	}

	testutil.Eventually(t, func() bool {
		var trash noteservice.Page
		_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "load_more_notes", map[string]any{"trash": true}))), &trash)
		return len(trash.Notes) == 1 && trash.Notes[0].UID == "a"
	}, "trash listing not updated")
}

func TestSearchAndProviders(t *testing.T) {
	srv := testServer(t, map[string]string{
		"a.note": testutil.TomboyNote("Alpha", "needle"),
		"b.note": testutil.TomboyNote("Beta", "hay"),
	})

	r := callTool(t, srv, "search_notes", map[string]any{"query": "needle"})
	var hits []noteservice.NoteListItem
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatalf("search result %q: %v", resultText(r), err)
	}
	if len(hits) != 1 || hits[0].UID != "a" {
		t.Errorf("hits = %+v", hits)
	}

	r = callTool(t, srv, "search_notes", map[string]any{})
	if !r.IsError {
		t.Error("missing query should fail")
	}

	r = callTool(t, srv, "list_providers", map[string]any{})
	if !strings.Contains(resultText(r), `"uid": "local"`) {
		t.Errorf("providers = %s", resultText(r))
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv := testServer(t, nil)
	r := callTool(t, srv, "read_note", map[string]any{"provider": "local", "uid": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestNoteFormatResource(t *testing.T) {
	srv := testServer(t, nil)
	contents, err := srv.readNoteFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != NoteFormatURI || !strings.Contains(tc.Text, "Tomboy") {
		t.Errorf("resource = %+v", contents)
	}
}
