package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/quire/internal/noteservice"
	"github.com/starford/quire/internal/testutil"
)

// testEnv sets up a temp notes dir, SQLite index, manager, service and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string, files map[string]string) (*noteservice.Service, http.Handler) {
	t.Helper()
	env := testutil.NewEnv(t, files, true)
	svc := noteservice.NewService(env.Manager, nil, env.DB)
	return svc, NewRouter(svc, authToken != "", authToken, nil)
}

func do(t *testing.T, router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
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

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "", nil)

	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Title: "Hello", Content: "World"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[NoteDetail](t, w)
	if created.Provider != "local" || created.UID == "" {
		t.Fatalf("created = %+v", created)
	}

	w = do(t, router, http.MethodGet, "/notes/local/"+created.UID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != `"`+created.ETag+`"` {
		t.Errorf("ETag header = %q", got)
	}
	note := decode[NoteDetail](t, w)
	if note.Title != "Hello" || note.Content != "World" || note.Format != "tomboy" {
		t.Errorf("note = %+v", note)
	}
}

func TestCreateValidation(t *testing.T) {
	_, router := testEnv(t, "", nil)

	if w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Title: ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty title = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Provider: "nope", Title: "x"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown provider = %d, want 404", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "", nil)

	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Title: "Lock", Content: "v1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	created := decode[NoteDetail](t, w)
	target := "/notes/local/" + created.UID

	v2 := "v2"
	w = do(t, router, http.MethodPut, target, UpdateNoteRequest{Content: &v2}, "If-Match", `"`+created.ETag+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update with current etag = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[NoteDetail](t, w); got.Content != "v2" || got.Title != "Lock" {
		t.Errorf("updated = %+v", got)
	}

	// Stale ETag → 409.
	w = do(t, router, http.MethodPut, target, UpdateNoteRequest{Content: &v2}, "If-Match", created.ETag)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale etag = %d, want 409", w.Code)
	}

	// No If-Match → no locking enforced.
	v3 := "v3"
	if w = do(t, router, http.MethodPut, target, UpdateNoteRequest{Content: &v3}); w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}

	if w = do(t, router, http.MethodPut, target, UpdateNoteRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty update = %d, want 400", w.Code)
	}
}

func TestTrashRestoreDelete(t *testing.T) {
	_, router := testEnv(t, "", map[string]string{"bye.note": testutil.TomboyNote("Bye", "gone")})

	if w := do(t, router, http.MethodPost, "/notes/local/bye/trash", nil); w.Code != http.StatusNoContent {
		t.Fatalf("trash = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/notes/local/bye/trash", nil); w.Code != http.StatusNotFound {
		t.Errorf("trash twice = %d, want 404", w.Code)
	}
	testutil.Eventually(t, func() bool {
		w := do(t, router, http.MethodGet, "/trash", nil)
		return len(decode[NoteListResponse](t, w).Notes) == 1
	}, "trash listing not updated")

	if w := do(t, router, http.MethodPost, "/trash/local/bye/restore", nil); w.Code != http.StatusNoContent {
		t.Fatalf("restore = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/trash/local/bye", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete live note via trash = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/notes/local/bye/trash", nil); w.Code != http.StatusNoContent {
		t.Fatalf("trash again = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/trash/local/bye", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes/local/bye", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestListAndLoadMore(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 35; i++ {
		name := string(rune('a'+i/26)) + string(rune('a'+i%26))
		files[name+".note"] = testutil.TomboyNote("Note "+name, "body")
	}
	_, router := testEnv(t, "", files)

	w := do(t, router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	page := decode[NoteListResponse](t, w)
	if len(page.Notes) != 30 || page.Pending != 5 || page.State.String() != "partially-exposed" {
		t.Fatalf("first page: %d notes, pending %d, state %v", len(page.Notes), page.Pending, page.State)
	}
	if page.Notes[0].Title != "Note aa" {
		t.Errorf("first = %q", page.Notes[0].Title)
	}

	page = decode[NoteListResponse](t, do(t, router, http.MethodPost, "/notes/more", nil))
	if len(page.Notes) != 35 || page.Pending != 0 || page.State.String() != "fully-exposed" {
		t.Errorf("after more: %d notes, pending %d, state %v", len(page.Notes), page.Pending, page.State)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "", map[string]string{
		"find.note":  testutil.TomboyNote("Find", "uniquetoken here"),
		"other.note": testutil.TomboyNote("Other", "nothing"),
	})

	w := do(t, router, http.MethodGet, "/search?q=uniquetoken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[SearchResponse](t, w)
	if len(resp.Results) != 1 || resp.Results[0].UID != "find" {
		t.Errorf("search results = %+v", resp.Results)
	}

	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestProvidersAndTags(t *testing.T) {
	_, router := testEnv(t, "", nil)

	providers := decode[ProvidersResponse](t, do(t, router, http.MethodGet, "/providers", nil))
	if len(providers.Providers) != 1 || providers.Providers[0].UID != "local" {
		t.Errorf("providers = %+v", providers)
	}

	if w := do(t, router, http.MethodPost, "/tags", TagRequest{Name: "work", Color: "#3465a4"}); w.Code != http.StatusCreated {
		t.Fatalf("add tag = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/tags", TagRequest{Name: ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty tag = %d, want 400", w.Code)
	}
	tags := decode[TagsResponse](t, do(t, router, http.MethodGet, "/tags", nil))
	if len(tags.Tags) != 1 || tags.Tags[0].Name != "work" || !tags.Tags[0].HasColor {
		t.Errorf("tags = %+v", tags)
	}
}

func TestNotFound(t *testing.T) {
	_, router := testEnv(t, "", nil)

	if w := do(t, router, http.MethodGet, "/notes/local/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
	x := "x"
	if w := do(t, router, http.MethodPut, "/notes/local/ghost", UpdateNoteRequest{Content: &x}); w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes/ghost/provider", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing provider = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123", nil)

	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Title: "Auth"}, "Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123", nil)

	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123", nil)

	if w := do(t, router, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "", nil)

	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	// No token → 401.
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testEnvWithSSE(t, false, "")

	// Disabled mode → should not 401. SSE handler will write 200 and block,
	// so we cancel the context after a short time.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	env := testutil.NewEnv(t, nil, false)
	svc := noteservice.NewService(env.Manager, nil, nil)

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	return NewRouter(svc, authEnabled, token, sseHandler)
}
