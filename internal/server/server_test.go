package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/vaultwiz/internal/app"
	"github.com/raphaelgruber/vaultwiz/internal/config"
	"github.com/raphaelgruber/vaultwiz/internal/controller"
	"github.com/raphaelgruber/vaultwiz/internal/llm"
	"github.com/raphaelgruber/vaultwiz/internal/models"
)

type echoInvoker struct{}

func (echoInvoker) Stream(ctx context.Context, req llm.Request, onChunk func(string)) (*models.TokenUsage, error) {
	onChunk("echo: ")
	onChunk(req.Prompt)
	return &models.TokenUsage{InputTokens: 5, OutputTokens: 2}, nil
}

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	vault := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(vault, "note.md"), []byte("alpha\nbeta"), 0o644))

	a, err := app.New(context.Background(), config.Config{
		VaultDir:    vault,
		PluginDir:   ".vaultwiz",
		Persistence: "local",
		ChatFolder:  ".vaultwiz/chats",
	}, app.Options{
		Factory: llm.NewFactory(map[models.Provider]llm.Invoker{models.ProviderOllama: echoInvoker{}}),
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, ok, err := a.Controller.SaveConfiguredModel(context.Background(), models.NewConfiguredModelInput{
		Provider:  models.ProviderOllama,
		ModelName: "llama",
		Settings:  map[string]string{models.SettingModel: "llama3.2"},
	})
	require.NoError(t, err)
	require.True(t, ok)

	srv := New(a, "test-version", testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	h := decode[healthResponse](t, resp)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "test-version", h.Version)
}

func TestPostMessageRunsTurn(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/messages", messageRequest{Text: "hi there", Note: "note.md"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[controller.State](t, resp)

	require.NotEmpty(t, state.Messages)
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Equal(t, "echo: hi there", last.Content)
	assert.Equal(t, "note.md", state.ActiveNotePath)
	require.Len(t, state.DebugTraces, 1)
	assert.Equal(t, int64(5), state.Usage.InputTokens)
	assert.False(t, state.Streaming)

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	var stats struct {
		Turn *struct {
			Count int64 `json:"count"`
		} `json:"turn"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	require.NotNil(t, stats.Turn)
	assert.Equal(t, int64(1), stats.Turn.Count)
}

func TestPostMessageValidation(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/messages", messageRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "text is required", decode[errorResponse](t, resp).Error)

	resp, err := http.Post(ts.URL+"/messages", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/messages", messageRequest{Text: "hi", Note: "missing.md"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/messages")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func TestHistoryAndDeepLink(t *testing.T) {
	_, ts := newTestServer(t)

	first := decode[controller.State](t, postJSON(t, ts.URL+"/messages", messageRequest{Text: "first question"}))
	fresh := decode[controller.State](t, postJSON(t, ts.URL+"/new", nil))
	assert.NotEqual(t, first.ConversationID, fresh.ConversationID)

	resp, err := http.Get(ts.URL + "/history?n=5")
	require.NoError(t, err)
	history := decode[[]models.ConversationSummary](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, first.ConversationID, history[0].ConversationID)
	assert.Equal(t, "first question", history[0].Title)

	resp, err = http.Get(ts.URL + "/history?n=abc")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/vault-wizard-chat?chatId=" + first.ConversationID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	opened := decode[controller.State](t, resp)
	assert.Equal(t, first.ConversationID, opened.ConversationID)
	assert.Equal(t, first.Messages[len(first.Messages)-1].Content, opened.Messages[len(opened.Messages)-1].Content)

	resp, err = http.Get(ts.URL + "/vault-wizard-chat?id=%20" + first.ConversationID + "%20")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/vault-wizard-chat?chatId=conv_missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Conversation not found", decode[errorResponse](t, resp).Error)

	resp, err = http.Get(ts.URL + "/vault-wizard-chat")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestWebsocketStreamsState(t *testing.T) {
	srv, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var initial controller.State
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&initial))
	assert.NotEmpty(t, initial.ConversationID)
	assert.Eventually(t, func() bool { return srv.Hub().Clients() == 1 }, time.Second, 10*time.Millisecond)

	resp := postJSON(t, ts.URL+"/messages", messageRequest{Text: "streamed"})
	resp.Body.Close()

	// Notifications are coalesced, so read until the finished turn shows up.
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var s controller.State
		require.NoError(t, conn.ReadJSON(&s))
		if n := len(s.Messages); n > 0 && !s.Streaming && s.Messages[n-1].Content == "echo: streamed" {
			break
		}
	}

	srv.Hub().Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, srv.Hub().Clients())
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(slowRequestThreshold + 20*time.Millisecond)
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	h := LoggingMiddleware(logger)(mux)

	tests := []struct {
		path  string
		level string
		msg   string
	}{
		{"/ok?x=1", "level=DEBUG", "request completed"},
		{"/slow", "level=WARN", "slow request"},
		{"/fail", "level=ERROR", "request failed"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf.Reset()
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
			out := buf.String()
			assert.Contains(t, out, tt.level)
			assert.Contains(t, out, tt.msg)
			assert.Contains(t, out, "duration_ms=")
		})
	}

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	assert.Contains(t, buf.String(), `query="x=1"`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
