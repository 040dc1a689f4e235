package server

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/orchestrator"
	"github.com/we11as22/deepresearch/pkg/scraper"
	"github.com/we11as22/deepresearch/pkg/searchsvc"
	"github.com/we11as22/deepresearch/pkg/session"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

type serverFixture struct {
	server   *Server
	engine   *Engine
	sessions *session.Manager
}

func newServerFixture(t *testing.T, provider llms.Provider) *serverFixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	sessions, err := session.NewManager(context.Background(), db, "sqlite3")
	require.NoError(t, err)

	cfg := &config.Config{
		Research: config.ResearchConfig{
			NumAgents:               2,
			MaxSupervisorCalls:      10,
			AgentMaxSteps:           4,
			SupervisorMaxIterations: 4,
			DefaultMaxIterations:    1,
			ChatHistoryLimit:        20,
			SourcesLimit:            15,
			Speed:                   config.ModeBudget{MaxIterations: 1, MaxConcurrent: 2},
			Balanced:                config.ModeBudget{MaxIterations: 4, MaxConcurrent: 3},
			Quality:                 config.ModeBudget{MaxIterations: 8, MaxConcurrent: 3},
		},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: 1},
	}

	searchSvc := searchsvc.New(provider, nil, scraper.New(5*time.Second), &cfg.Research)
	orch := orchestrator.New(orchestrator.Deps{
		LLM:       provider,
		SearchSvc: searchSvc,
		Scraper:   scraper.New(5 * time.Second),
		Sessions:  sessions,
		Files:     agentfs.NewStore(t.TempDir()),
		Config:    &cfg.Research,
	})

	engine := NewEngine(provider, sessions, searchSvc, orch, streaming.NewHub(), cfg)
	return &serverFixture{
		server:   New(&cfg.Server, engine),
		engine:   engine,
		sessions: sessions,
	}
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func streamRequest(body string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestParseModeAliases(t *testing.T) {
	cases := map[string]session.Mode{
		"chat":          session.ModeChat,
		"simple":        session.ModeChat,
		"conversation":  session.ModeChat,
		"search":        session.ModeWeb,
		"web":           session.ModeWeb,
		"web_search":    session.ModeWeb,
		"speed":         session.ModeWeb,
		"deep_search":   session.ModeDeepSearch,
		"deep":          session.ModeDeepSearch,
		"balanced":      session.ModeDeepSearch,
		"deep_research": session.ModeDeepResearch,
		"research":      session.ModeDeepResearch,
		"quality":       session.ModeDeepResearch,
		" Deep_Search ": session.ModeDeepSearch,
	}
	for raw, want := range cases {
		mode, ok := ParseMode(raw)
		require.True(t, ok, "alias %q", raw)
		assert.Equal(t, want, mode, "alias %q", raw)
	}

	for _, raw := range []string{"", "turbo", "gpt-4"} {
		_, ok := ParseMode(raw)
		assert.False(t, ok, "non-alias %q", raw)
	}
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t, llms.NewScriptedProvider())
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChatStreamAnswersInline(t *testing.T) {
	provider := llms.NewScriptedProvider(llms.TextResponse("Hello! Ask me anything."))
	f := newServerFixture(t, provider)

	rec := f.do(streamRequest(
		`{"messages":[{"role":"user","content":"hi"}],"chat_id":"c1"}`,
		map[string]string{"X-Research-Mode": "chat"},
	))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "chat", rec.Header().Get("X-Research-Mode"))
	assert.NotEmpty(t, rec.Header().Get("X-Session-ID"))

	body := rec.Body.String()
	assert.Contains(t, body, `"type":"init"`)
	assert.Contains(t, body, "Hello! Ask me anything.")
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"), "stream must end with [DONE]")
}

func TestWebStreamCompletesSession(t *testing.T) {
	provider := llms.NewScriptedProvider(
		llms.TextResponse("gathered notes"),
		llms.TextResponse("Go 1.24 shipped generic type aliases."),
	)
	f := newServerFixture(t, provider)

	rec := f.do(streamRequest(
		`{"messages":[{"role":"user","content":"what is new in go 1.24"}],"chat_id":"c1"}`,
		map[string]string{"X-Research-Mode": "web"},
	))

	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get("X-Session-ID")
	require.NotEmpty(t, sessionID)
	assert.Contains(t, rec.Body.String(), "generic type aliases")

	sess, err := f.sessions.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Contains(t, sess.DeepSearchResult, "generic type aliases")
}

func TestChatStreamRejectsEmptyMessage(t *testing.T) {
	f := newServerFixture(t, llms.NewScriptedProvider())
	rec := f.do(streamRequest(`{"messages":[{"role":"assistant","content":"hi"}]}`, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModeHeaderFallsBackToModelField(t *testing.T) {
	provider := llms.NewScriptedProvider(llms.TextResponse("sure"))
	f := newServerFixture(t, provider)

	rec := f.do(streamRequest(
		`{"messages":[{"role":"user","content":"hi"}],"model":"conversation","chat_id":"c2"}`, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chat", rec.Header().Get("X-Research-Mode"))
}

func TestCancelUnknownSession(t *testing.T) {
	f := newServerFixture(t, llms.NewScriptedProvider())
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/chat/stream/nope/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPDFExport(t *testing.T) {
	f := newServerFixture(t, llms.NewScriptedProvider())
	ctx := context.Background()

	require.NoError(t, f.sessions.EnsureChat(ctx, "c1"))
	sess, err := f.sessions.CreateSession(ctx, "c1", "test query", session.ModeDeepResearch)
	require.NoError(t, err)
	require.NoError(t, f.sessions.CompleteSession(ctx, sess.ID,
		"# Findings\n\nSteady progress across the field.\n\n## Sources\n\n[1] [Example](https://example.com)\n"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/chat/stream/"+sess.ID+"/pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestPDFExportWithoutReport(t *testing.T) {
	f := newServerFixture(t, llms.NewScriptedProvider())
	ctx := context.Background()

	require.NoError(t, f.sessions.EnsureChat(ctx, "c1"))
	sess, err := f.sessions.CreateSession(ctx, "c1", "test query", session.ModeDeepResearch)
	require.NoError(t, err)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/chat/stream/"+sess.ID+"/pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
