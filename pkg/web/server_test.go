package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceagents/pkg/agent"
	"github.com/teslashibe/go-voiceagents/pkg/livekit"
	"github.com/teslashibe/go-voiceagents/pkg/metrics"
	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

const testSecret = "dashboard-secret"

type fixture struct {
	server *Server
	worker *agent.Worker

	mu    sync.Mutex
	mocks map[string]*voice.MockPipeline
}

func (f *fixture) mock(room string) *voice.MockPipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mocks[room]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{mocks: make(map[string]*voice.MockPipeline)}

	var (
		pending []*voice.MockPipeline
		pmu     sync.Mutex
	)
	w, err := agent.NewWorker(agent.WorkerOptions{
		Name: "barista",
		Entrypoint: func(jc *agent.JobContext) error {
			_, err := jc.StartSession(agent.Agent{
				Name:         "barista",
				Instructions: "Take orders.",
				Tools: []voice.Tool{{
					Name:        "update_order",
					Description: "Record order details.",
					Parameters:  voice.ObjectSchema(map[string]any{"size": voice.StringParam("Size")}),
					Handler: func(args map[string]any) (string, error) {
						return "Noted size " + args["size"].(string), nil
					},
				}},
			})
			return err
		},
		NewPipeline: func(cfg voice.Config) (voice.Pipeline, error) {
			m := voice.NewMockPipeline(cfg)
			pmu.Lock()
			pending = append(pending, m)
			pmu.Unlock()
			return m, nil
		},
		OnSessionStart: func(jc *agent.JobContext, s *agent.Session) {
			f.mu.Lock()
			f.mocks[jc.Job.ID] = s.Pipeline().(*voice.MockPipeline)
			f.mu.Unlock()
		},
	})
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Demo:    "barista",
		Worker:  w,
		Metrics: metrics.NewCollector("barista"),
		LiveKit: LiveKit{URL: "ws://localhost:7880", APIKey: "devkey", APISecret: testSecret},
	})
	require.NoError(t, err)
	w.AddSessionHook(srv.Observe)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))

	f.server = srv
	f.worker = w
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.App().Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// createSession dispatches a job and waits for its session to start.
func (f *fixture) createSession(t *testing.T) CreateSessionResponse {
	t.Helper()
	resp := f.do(t, "POST", "/api/sessions", CreateSessionRequest{Identity: "sam", Name: "Sam"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	created := decode[CreateSessionResponse](t, resp)

	jc, ok := f.worker.Job(created.ID)
	require.True(t, ok)
	_, err := jc.WaitSession(context.Background())
	require.NoError(t, err)
	return created
}

func TestNewServerRequiresWorker(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "GET", "/api/status", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	st := decode[Status](t, resp)
	assert.Equal(t, "barista", st.Demo)
	assert.Equal(t, 0, st.Sessions)
	assert.Equal(t, "ws://localhost:7880", st.LiveKitURL)
}

func TestCreateSessionIssuesRoomToken(t *testing.T) {
	f := newFixture(t)
	created := f.createSession(t)

	assert.NotEmpty(t, created.ID)
	assert.True(t, strings.HasPrefix(created.Room, "barista-"))
	assert.Equal(t, "sam", created.Identity)
	assert.Equal(t, "ws://localhost:7880", created.URL)

	claims, err := livekit.VerifyRoom(testSecret, created.Token, created.Room)
	require.NoError(t, err)
	assert.Equal(t, "sam", claims.Subject)
	assert.Equal(t, "Sam", claims.Name)

	resp := f.do(t, "GET", "/api/sessions", nil)
	sessions := decode[[]SessionInfo](t, resp)
	require.Len(t, sessions, 1)
	assert.Equal(t, created.ID, sessions[0].ID)
	assert.Equal(t, "barista", sessions[0].Agent)
}

func TestSay(t *testing.T) {
	f := newFixture(t)
	created := f.createSession(t)

	resp := f.do(t, "POST", "/api/sessions/"+created.ID+"/say", SayRequest{Text: "A large mocha please"})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"A large mocha please"}, f.mock(created.ID).Texts)

	resp = f.do(t, "POST", "/api/sessions/"+created.ID+"/say", SayRequest{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTools(t *testing.T) {
	f := newFixture(t)
	created := f.createSession(t)

	resp := f.do(t, "GET", "/api/sessions/"+created.ID+"/tools", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	listed := decode[struct {
		Agent string     `json:"agent"`
		Tools []ToolInfo `json:"tools"`
	}](t, resp)
	assert.Equal(t, "barista", listed.Agent)
	require.Len(t, listed.Tools, 1)
	assert.Equal(t, "update_order", listed.Tools[0].Name)

	resp = f.do(t, "POST", "/api/sessions/"+created.ID+"/tools/update_order", TriggerToolRequest{
		Args: map[string]any{"size": "Large"},
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	result := decode[map[string]string](t, resp)
	assert.Equal(t, "Noted size Large", result["result"])

	resp = f.do(t, "POST", "/api/sessions/"+created.ID+"/tools/save_everything", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	logs := f.server.Logs()
	var manual, tool bool
	for _, l := range logs {
		manual = manual || strings.HasPrefix(l.Message, "Manual: update_order")
		tool = tool || (l.Type == "tool" && l.Message == "update_order → Noted size Large")
	}
	assert.True(t, manual, "manual trigger logged")
	assert.True(t, tool, "tool event logged through Observe")
}

func TestEndSession(t *testing.T) {
	f := newFixture(t)
	created := f.createSession(t)
	jc, _ := f.worker.Job(created.ID)

	resp := f.do(t, "DELETE", "/api/sessions/"+created.ID, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	select {
	case <-jc.Finished():
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}
	assert.Equal(t, fiber.StatusNotFound, f.do(t, "GET", "/api/sessions/"+created.ID, nil).StatusCode)
	assert.Equal(t, fiber.StatusNotFound, f.do(t, "DELETE", "/api/sessions/"+created.ID, nil).StatusCode)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/sessions/nope"},
		{"POST", "/api/sessions/nope/say"},
		{"GET", "/api/sessions/nope/tools"},
		{"POST", "/api/sessions/nope/tools/update_order"},
	} {
		resp := f.do(t, tc.method, tc.path, nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, tc.path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createSession(t)

	resp := f.do(t, "GET", "/metrics", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "voiceagents_")
}

func TestAudioRequiresToken(t *testing.T) {
	f := newFixture(t)
	created := f.createSession(t)

	upgrade := func(path string) *http.Response {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Sec-WebSocket-Version", "13")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		resp, err := f.server.App().Test(req, 5000)
		require.NoError(t, err)
		return resp
	}

	assert.Equal(t, fiber.StatusUpgradeRequired,
		f.do(t, "GET", "/ws/sessions/"+created.ID+"/audio", nil).StatusCode)

	assert.Equal(t, fiber.StatusNotFound, upgrade("/ws/sessions/nope/audio?token=x").StatusCode)
	assert.Equal(t, fiber.StatusUnauthorized, upgrade("/ws/sessions/"+created.ID+"/audio?token=garbage").StatusCode)

	other, err := livekit.AccessToken("devkey", testSecret, livekit.Grant{Room: "other-room", Identity: "eve"})
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, upgrade("/ws/sessions/"+created.ID+"/audio?token="+other).StatusCode)
}

type stubRoutes struct{}

func (stubRoutes) Routes(api fiber.Router) {
	api.Get("/orders", func(c *fiber.Ctx) error { return c.JSON([]string{"latte"}) })
}

func TestMount(t *testing.T) {
	f := newFixture(t)
	f.server.Mount(stubRoutes{})

	resp := f.do(t, "GET", "/api/orders", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"latte"}, decode[[]string](t, resp))
}

func TestLogEntry(t *testing.T) {
	at := time.Date(2025, 1, 1, 14, 5, 9, 0, time.UTC)
	tests := []struct {
		e    agent.Event
		want LogEntry
		ok   bool
	}{
		{agent.Event{Type: agent.EventTranscript, Text: "hi", Time: at}, LogEntry{Time: "14:05:09", Type: "user", Message: "hi"}, true},
		{agent.Event{Type: agent.EventResponse, Agent: "quiz", Text: "Ready?", Time: at}, LogEntry{Time: "14:05:09", Type: "agent", Message: "quiz: Ready?"}, true},
		{agent.Event{Type: agent.EventHandoff, From: "greeter", To: "learn", Time: at}, LogEntry{Time: "14:05:09", Type: "handoff", Message: "greeter → learn"}, true},
		{agent.Event{Type: agent.EventTool, Tool: "save_order", Result: "boom", Failed: true, Time: at}, LogEntry{Time: "14:05:09", Type: "error", Message: "save_order → boom"}, true},
		{agent.Event{Type: agent.EventUsage, Time: at}, LogEntry{}, false},
	}
	for _, tt := range tests {
		got, ok := logEntry(tt.e)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.want, got)
	}
}
