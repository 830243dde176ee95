package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentd/internal/llm"
	"github.com/haasonsaas/agentd/internal/storage"
	"github.com/haasonsaas/agentd/pkg/models"
)

// scriptedProvider returns queued responses, one per Generate call.
type scriptedProvider struct {
	mu    sync.Mutex
	turns []models.Turn
	gate  chan struct{}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, _ *llm.Request) (*llm.Response, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.turns) == 0 {
		return &llm.Response{Blocks: []models.ContentBlock{models.AssistantText("done")}}, nil
	}
	turn := p.turns[0]
	p.turns = p.turns[1:]
	return &llm.Response{Blocks: turn}, nil
}

type testEnv struct {
	srv    *Server
	store  *storage.Store
	http   *httptest.Server
	wsURL  string
	apiURL string
}

func newTestEnv(t *testing.T, provider llm.Provider) *testEnv {
	t.Helper()
	root := t.TempDir()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := New(provider, store, Config{
		WorkspaceRoot: root,
		ShellTimeout:  5 * time.Second,
		Headless:      true,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		srv:    srv,
		store:  store,
		http:   ts,
		wsURL:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		apiURL: ts.URL,
	}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	sock, _, err := websocket.DefaultDialer.Dial(e.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })

	hello := readEvent(t, sock)
	require.Equal(t, models.EventConnectionEstablished, hello.Type)
	require.Equal(t, "Connected to Agent WebSocket Server", hello.Content["message"])
	require.NotEmpty(t, hello.Content["workspace_path"])
	return sock
}

func readEvent(t *testing.T, sock *websocket.Conn) models.Event {
	t.Helper()
	sock.SetReadDeadline(time.Now().Add(10 * time.Second))
	var event models.Event
	require.NoError(t, sock.ReadJSON(&event))
	return event
}

// waitFor reads events until one of the wanted type arrives, returning it
// plus everything seen before it.
func waitFor(t *testing.T, sock *websocket.Conn, want models.EventType) (models.Event, []models.Event) {
	t.Helper()
	var seen []models.Event
	for {
		event := readEvent(t, sock)
		if event.Type == want {
			return event, seen
		}
		require.NotEqual(t, models.EventError, event.Type, "unexpected error event: %v", event.Content)
		seen = append(seen, event)
	}
}

func sendMessage(t *testing.T, sock *websocket.Conn, typ string, content map[string]any) {
	t.Helper()
	require.NoError(t, sock.WriteJSON(map[string]any{"type": typ, "content": content}))
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	sock := env.dial(t)

	sendMessage(t, sock, "ping", nil)
	event := readEvent(t, sock)
	assert.Equal(t, models.EventPong, event.Type)
}

func TestWorkspaceInfo(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	sock := env.dial(t)

	sendMessage(t, sock, "workspace_info", nil)
	event := readEvent(t, sock)
	require.Equal(t, models.EventWorkspaceInfo, event.Type)
	assert.NotEmpty(t, event.Content["path"])
}

func TestInvalidJSON(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	sock := env.dial(t)

	require.NoError(t, sock.WriteMessage(websocket.TextMessage, []byte("{not json")))
	event := readEvent(t, sock)
	require.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "Invalid JSON format", event.Content["message"])
}

func TestUnknownMessageType(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	sock := env.dial(t)

	sendMessage(t, sock, "bogus", nil)
	event := readEvent(t, sock)
	require.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "Unknown message type: bogus", event.Content["message"])
}

func TestCancelWithoutAgent(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	sock := env.dial(t)

	sendMessage(t, sock, "cancel", nil)
	event := readEvent(t, sock)
	require.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "No active agent for this connection", event.Content["message"])
}

func TestQueryWithoutAgent(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	sock := env.dial(t)

	sendMessage(t, sock, "query", map[string]any{"text": "hi"})
	event := readEvent(t, sock)
	require.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "Agent not initialized for this connection", event.Content["message"])
}

func TestEnhancePrompt(t *testing.T) {
	provider := &scriptedProvider{turns: []models.Turn{
		{models.AssistantText("Write a haiku about Go, three lines, 5-7-5.")},
	}}
	env := newTestEnv(t, provider)
	sock := env.dial(t)

	sendMessage(t, sock, "enhance_prompt", map[string]any{
		"text":  "haiku about go",
		"files": []string{"./notes.txt"},
	})
	event := readEvent(t, sock)
	require.Equal(t, models.EventPromptGenerated, event.Type)
	assert.Equal(t, "Write a haiku about Go, three lines, 5-7-5.", event.Content["result"])
	assert.Equal(t, "haiku about go", event.Content["original_request"])
}

func TestInitAgentAndQuery(t *testing.T) {
	provider := &scriptedProvider{turns: []models.Turn{
		{models.AssistantText("all finished")},
	}}
	env := newTestEnv(t, provider)
	sock := env.dial(t)

	sendMessage(t, sock, "init_agent", map[string]any{"tool_args": map[string]any{}})
	event := readEvent(t, sock)
	require.Equal(t, models.EventAgentInitialized, event.Type)
	assert.Equal(t, "Agent initialized", event.Content["message"])

	sendMessage(t, sock, "query", map[string]any{"text": "do the thing"})
	response, before := waitFor(t, sock, models.EventAgentResponse)
	assert.Equal(t, "all finished", response.Content["text"])

	types := make([]models.EventType, len(before))
	for i, ev := range before {
		types[i] = ev.Type
	}
	assert.Contains(t, types, models.EventProcessing)
}

func TestQueryRejectedWhileBusy(t *testing.T) {
	gate := make(chan struct{})
	provider := &scriptedProvider{gate: gate}
	env := newTestEnv(t, provider)
	sock := env.dial(t)

	sendMessage(t, sock, "init_agent", nil)
	require.Equal(t, models.EventAgentInitialized, readEvent(t, sock).Type)

	sendMessage(t, sock, "query", map[string]any{"text": "first"})
	require.Equal(t, models.EventProcessing, readEvent(t, sock).Type)

	sendMessage(t, sock, "query", map[string]any{"text": "second"})
	event := readEvent(t, sock)
	require.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "A query is already being processed", event.Content["message"])

	close(gate)
	response, _ := waitFor(t, sock, models.EventAgentResponse)
	assert.Equal(t, "done", response.Content["text"])
}

func uploadBody(sessionID, path, content string) *bytes.Reader {
	payload, _ := json.Marshal(map[string]any{
		"session_id": sessionID,
		"file":       map[string]any{"path": path, "content": content},
	})
	return bytes.NewReader(payload)
}

func postUpload(t *testing.T, env *testEnv, body *bytes.Reader) map[string]any {
	t.Helper()
	resp, err := http.Post(env.apiURL+"/api/upload", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestUploadTextFile(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	out := postUpload(t, env, uploadBody("sess1", "dir/notes.txt", "hello"))
	assert.Equal(t, "File uploaded successfully", out["message"])

	file := out["file"].(map[string]any)
	assert.Equal(t, "/uploads/notes.txt", file["path"])

	data, err := os.ReadFile(file["saved_path"].(string))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestUploadCollisionRename(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	postUpload(t, env, uploadBody("sess1", "notes.txt", "one"))
	out := postUpload(t, env, uploadBody("sess1", "notes.txt", "two"))

	file := out["file"].(map[string]any)
	assert.Equal(t, "/uploads/notes_1.txt", file["path"])

	data, err := os.ReadFile(file["saved_path"].(string))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestUploadDataURL(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	content := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
	out := postUpload(t, env, uploadBody("sess1", "pic.png", content))

	file := out["file"].(map[string]any)
	data, err := os.ReadFile(file["saved_path"].(string))
	require.NoError(t, err)
	assert.Equal(t, raw, data)
}

func TestSessionsAndEventsEndpoints(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	ctx := context.Background()

	require.NoError(t, env.store.CreateSession(ctx, models.Session{
		ID:           "sess1",
		WorkspaceDir: "/tmp/sess1",
		CreatedAt:    time.Now(),
		DeviceID:     "device-a",
	}))
	require.NoError(t, env.store.AppendEvent(ctx, "sess1",
		models.NewEvent(models.EventUserMessage, map[string]any{"text": "hello"})))

	resp, err := http.Get(env.apiURL + "/api/sessions/device-a")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sessions struct {
		Sessions []models.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, "sess1", sessions.Sessions[0].ID)

	resp2, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/events", env.apiURL, "sess1"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var events struct {
		Events []models.EventRecord `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&events))
	require.Len(t, events.Events, 1)
	assert.Equal(t, "user_message", events.Events[0].EventType)
}
