package api

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomantics/gitmcp/api/web"
	"github.com/gomantics/gitmcp/domains/executor"
	"github.com/gomantics/gitmcp/domains/handles"
	"github.com/gomantics/gitmcp/domains/tools"
	"github.com/gomantics/gitmcp/libs/gitengine"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type server struct {
	e   *echo.Echo
	dir string
}

func newServer(t *testing.T) *server {
	t.Helper()
	l := zap.NewNop()

	engine := gitengine.New(l, gitengine.Config{AuthorName: "Test", AuthorEmail: "test@example.com"})
	registry := handles.NewRegistry(l, engine, 8)
	t.Cleanup(func() { _ = registry.Close() })

	exec := executor.New(l, executor.Config{Workers: 2, QueueSize: 4, LockRetries: 2, RetryDelay: time.Millisecond})
	t.Cleanup(exec.Shutdown)

	dir := t.TempDir()
	d := tools.NewDispatcher(l, tools.NewCatalog(), engine, registry, exec, dir)
	return &server{e: New(l, d), dir: dir}
}

func (s *server) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *server) invoke(t *testing.T, tool string, args any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]any{"tool_name": tool, "arguments": args})
	require.NoError(t, err)
	return s.do(t, http.MethodPost, "/v1/invoke", string(body))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "no tool error in %s", rec.Body.String())
	return e["kind"].(string)
}

func ndjson(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		lines = append(lines, ev)
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, tools.CatalogVersion, body["catalog_version"])
	assert.EqualValues(t, 31, body["tools"])
	assert.EqualValues(t, 0, body["active_invocations"])
}

func TestListTools(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/v1/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, tools.CatalogVersion, body["version"])
	assert.Len(t, body["tools"], 31)

	rec = s.do(t, http.MethodGet, "/v1/tools?group=worktree", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["tools"], 6)

	rec = s.do(t, http.MethodGet, "/v1/tools?group=nope", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["tools"])

	rec = s.do(t, http.MethodGet, "/v1/tools/git_log", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stream", decode(t, rec)["mode"])

	rec = s.do(t, http.MethodGet, "/v1/tools/git_bisect", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvokeUnaryAndStream(t *testing.T) {
	s := newServer(t)

	rec := s.invoke(t, "git_init", map[string]any{"path": "repo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(web.HeaderInvocationID))

	rec = s.invoke(t, "git_commit", map[string]any{"path": "repo", "message": "first", "all": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "git_commit", body["tool"])
	result := body["result"].(map[string]any)
	commit := result["commit"].(map[string]any)
	assert.Equal(t, "first", commit["summary"])

	rec = s.invoke(t, "git_log", map[string]any{"path": "repo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, web.MIMEApplicationNDJSON, rec.Header().Get(echo.HeaderContentType))

	lines := ndjson(t, rec)
	require.Len(t, lines, 2)
	assert.Equal(t, "partial", lines[0]["type"])
	assert.Equal(t, commit["id"], lines[0]["item"].(map[string]any)["id"])
	assert.Equal(t, "complete", lines[1]["type"])
	assert.NotContains(t, lines[1], "cancelled")
}

func TestCallByPath(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/v1/tools/git_init?invocation_id=init-1", `{"path":"repo"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "init-1", rec.Header().Get(web.HeaderInvocationID))
	assert.Equal(t, "init-1", decode(t, rec)["invocation_id"])

	rec = s.do(t, http.MethodPost, "/v1/tools/git_status?timeout_ms=soon", `{"path":"repo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvokeErrorStatus(t *testing.T) {
	s := newServer(t)

	require.Equal(t, http.StatusOK, s.invoke(t, "git_init", map[string]any{"path": "repo"}).Code)
	require.Equal(t, http.StatusOK, s.invoke(t, "git_commit", map[string]any{"path": "repo", "message": "m", "all": true}).Code)

	tests := []struct {
		name   string
		tool   string
		args   any
		status int
		kind   string
	}{
		{"unknown field", "git_status", map[string]any{"path": "repo", "verbose": true}, http.StatusBadRequest, "invalid_arguments"},
		{"unknown tool", "git_bisect", map[string]any{"path": "repo"}, http.StatusBadRequest, "invalid_arguments"},
		{"invalid option", "git_branch_create", map[string]any{"path": "repo", "branch": "bad..name"}, http.StatusBadRequest, "invalid_options"},
		{"missing repository", "git_status", map[string]any{"path": "missing"}, http.StatusNotFound, "repository_not_found"},
		{"missing repository stream", "git_log", map[string]any{"path": "missing"}, http.StatusNotFound, "repository_not_found"},
		{"existing branch", "git_branch_create", map[string]any{"path": "repo", "branch": "main"}, http.StatusConflict, "already_exists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.invoke(t, tt.tool, tt.args)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, errorKind(t, rec))
		})
	}
}

func TestInvokeRejectsBadBody(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/v1/invoke", `{"tool":"git_status"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/invoke", `{"arguments":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/invoke", `{"tool_name":"git_status","timeout_ms":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelUnknownInvocation(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodDelete, "/v1/invocations/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
