package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceagents/pkg/agent"
	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

func sampleContent() *Content {
	return NewContent(
		Concept{ID: "variables", Title: "Variables", Summary: "Named storage.", SampleQuestion: "What is a variable?"},
		Concept{ID: "loops", Title: "Loops", Summary: "Repeat code.", SampleQuestion: "For or while?"},
		Concept{ID: "funcs", Title: "Functions", Summary: "Reusable code.", SampleQuestion: "What is a parameter?"},
	)
}

func testDemo(t *testing.T) *Demo {
	t.Helper()
	d, err := New(sampleContent())
	require.NoError(t, err)
	return d
}

// handoffs records agents handed off to.
type handoffs struct {
	mu     sync.Mutex
	agents []agent.Agent
	err    error
}

func (h *handoffs) fn(a agent.Agent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.agents = append(h.agents, a)
	return nil
}

func TestLoadContent(t *testing.T) {
	c := LoadContent(filepath.Join("..", "..", "day4_tutor_content.json"), nil)
	require.Equal(t, 4, c.Len())
	assert.Equal(t, []string{"Variables", "Loops", "Functions", "Conditionals"}, c.Titles())
}

func TestLoadContentFailuresAreNotFatal(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte(`[{"id": `), 0o644))

	for name, path := range map[string]string{
		"missing": filepath.Join(dir, "nope.json"),
		"corrupt": corrupt,
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			c := LoadContent(path, logger)
			assert.Equal(t, 0, c.Len())
			assert.Contains(t, buf.String(), "level=ERROR")
			assert.Equal(t, "I couldn't find that concept. Available concepts are: .", c.NotFound())
		})
	}
}

func TestLoadContentSkipsIncompleteEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "loops", "title": "Loops", "summary": "Repeat work.", "sample_question": "Why loop?"},
		{"id": "", "title": "Nameless", "summary": "x", "sample_question": "y"},
		{"id": "blank-title", "title": "  ", "summary": "x", "sample_question": "y"}
	]`), 0o644))

	var buf bytes.Buffer
	c := LoadContent(path, slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Equal(t, []string{"Loops"}, c.Titles())
	assert.Contains(t, buf.String(), "skipping tutor concept without id or title")
}

func TestLookup(t *testing.T) {
	c := sampleContent()

	tests := []struct {
		query string
		want  string
		ok    bool
	}{
		{"variables", "variables", true},
		{"VARIABLES", "variables", true},
		{"  Loops ", "loops", true},
		{"functions", "funcs", true},
		{"FUNCS", "funcs", true},
		{"loop", "", false},
		{"recursion", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, ok := c.Lookup(tt.query)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestLookupFirstMatchWins(t *testing.T) {
	c := NewContent(
		Concept{ID: "a", Title: "Shared"},
		Concept{ID: "shared", Title: "Other"},
	)
	got, ok := c.Lookup("shared")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"learn", ModeLearn, true},
		{"Quiz", ModeQuiz, true},
		{"teach back", ModeTeachBack, true},
		{"Teach-Back", ModeTeachBack, true},
		{"teach_back", ModeTeachBack, true},
		{" GREETER ", ModeGreeter, true},
		{"teachback", "", false},
		{"study", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseMode(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDefaultTableValid(t *testing.T) {
	require.NoError(t, DefaultTable.Validate(Personas()))
}

func TestTableValidateRejects(t *testing.T) {
	personas := Personas()

	tests := []struct {
		name     string
		table    Table
		personas map[Mode]Persona
		want     string
	}{
		{
			name:     "unknown target",
			table:    Table{ModeGreeter: {ModeLearn, ModeQuiz, ModeTeachBack, "dance"}, ModeLearn: {ModeGreeter}, ModeQuiz: {ModeGreeter}, ModeTeachBack: {ModeGreeter}},
			personas: personas,
			want:     `unknown target "dance"`,
		},
		{
			name:     "dead end",
			table:    Table{ModeGreeter: {ModeLearn, ModeQuiz, ModeTeachBack}, ModeLearn: {ModeGreeter}, ModeQuiz: {ModeGreeter}},
			personas: personas,
			want:     "teach_back: no outgoing transition",
		},
		{
			name:     "unreachable",
			table:    Table{ModeGreeter: {ModeLearn}, ModeLearn: {ModeGreeter}, ModeQuiz: {ModeGreeter}, ModeTeachBack: {ModeGreeter}},
			personas: personas,
			want:     "quiz: unreachable from greeter",
		},
		{
			name:     "missing persona",
			table:    DefaultTable,
			personas: map[Mode]Persona{ModeGreeter: personas[ModeGreeter]},
			want:     "learn: no persona",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate(tt.personas)
			require.ErrorIs(t, err, ErrInvalidTable)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := New(sampleContent(), WithTable(Table{ModeGreeter: {ModeLearn}}))
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestPersonaVoices(t *testing.T) {
	p := Personas()
	assert.Equal(t, "en-US-matthew", p[ModeGreeter].Voice.ID)
	assert.Equal(t, "en-US-matthew", p[ModeLearn].Voice.ID)
	assert.Equal(t, "en-US-alicia", p[ModeQuiz].Voice.ID)
	assert.Equal(t, "en-US-ken", p[ModeTeachBack].Voice.ID)
}

func TestToolsPerMode(t *testing.T) {
	d := testDemo(t)
	h := &handoffs{}
	conv := NewConversation()

	names := func(m Mode) []string {
		return d.Agent(m, conv, h.fn, nil).ToolNames()
	}
	assert.Equal(t, []string{"list_concepts", "switch_mode"}, names(ModeGreeter))
	assert.Equal(t, []string{"list_concepts", "explain_concept", "switch_mode"}, names(ModeLearn))
	assert.Equal(t, []string{"list_concepts", "get_quiz_question", "switch_mode"}, names(ModeQuiz))
	assert.Equal(t, []string{"list_concepts", "get_teach_back_prompt", "switch_mode"}, names(ModeTeachBack))

	assert.Equal(t, Greeting, d.Agent(ModeGreeter, conv, h.fn, nil).Greeting)
	assert.Empty(t, d.Agent(ModeQuiz, conv, h.fn, nil).Greeting)
}

func TestContentTools(t *testing.T) {
	d := testDemo(t)
	h := &handoffs{}
	conv := NewConversation()

	call := func(m Mode, tool string, args map[string]any) string {
		res := voice.Invoke(d.Tools(m, conv, h.fn, nil), voice.ToolCall{Name: tool, Arguments: args})
		require.NoError(t, res.Error)
		return res.Result
	}

	assert.Equal(t, "Variables: Named storage.", call(ModeLearn, "explain_concept", map[string]any{"concept": "VARIABLES"}))
	assert.Equal(t, "Quiz question about Loops: For or while?", call(ModeQuiz, "get_quiz_question", map[string]any{"concept": "loops"}))
	assert.Contains(t, call(ModeTeachBack, "get_teach_back_prompt", map[string]any{"concept": "Functions"}), "Reference summary: Reusable code.")
	assert.Equal(t, "Available concepts are: Variables, Loops, Functions.", call(ModeGreeter, "list_concepts", nil))

	notFound := "I couldn't find that concept. Available concepts are: Variables, Loops, Functions."
	assert.Equal(t, notFound, call(ModeLearn, "explain_concept", map[string]any{"concept": "recursion"}))
	assert.Equal(t, notFound, call(ModeQuiz, "get_quiz_question", map[string]any{"concept": "loop"}))
}

func TestSwitchMode(t *testing.T) {
	d := testDemo(t)
	h := &handoffs{}
	conv := NewConversation()

	msg := d.SwitchMode(conv, "Teach Back", h.fn, nil)
	assert.Equal(t, ModeTeachBack, conv.Mode())
	assert.Contains(t, msg, "Switched to teach back mode.")
	require.Len(t, h.agents, 1)
	assert.Equal(t, "teach_back", h.agents[0].Name)
	assert.Equal(t, "en-US-ken", h.agents[0].Voice.ID)

	d.SwitchMode(conv, "greeter", h.fn, nil)
	assert.Equal(t, ModeGreeter, conv.Mode())
	require.Len(t, h.agents, 2)
}

func TestSwitchModeRejectsOutsideVocabulary(t *testing.T) {
	d := testDemo(t)
	h := &handoffs{}
	conv := NewConversation()

	for _, requested := range []string{"dance", "teachback", "", "greeter"} {
		msg := d.SwitchMode(conv, requested, h.fn, nil)
		assert.Equal(t, "I can switch to: learn, quiz, teach back. Which would you like?", msg, requested)
	}
	assert.Empty(t, h.agents, "no transfer")
	assert.Equal(t, ModeGreeter, conv.Mode())

	d.SwitchMode(conv, "quiz", h.fn, nil)
	msg := d.SwitchMode(conv, "quiz", h.fn, nil)
	assert.Equal(t, "I can switch to: learn, teach back, greeter. Which would you like?", msg)
	assert.Len(t, h.agents, 1)
}

func TestSwitchModeHandoffFailure(t *testing.T) {
	d := testDemo(t)
	h := &handoffs{err: errors.New("session gone")}
	conv := NewConversation()

	assert.Equal(t, switchFailedMsg, d.SwitchMode(conv, "learn", h.fn, nil))
	assert.Equal(t, ModeGreeter, conv.Mode())
}

func TestEntrypointHandoff(t *testing.T) {
	d := testDemo(t)

	var (
		mu   sync.Mutex
		mock *voice.MockPipeline
	)
	w, err := agent.NewWorker(agent.WorkerOptions{
		Name:       Name,
		Entrypoint: d.Entrypoint,
		Pipeline:   voice.DefaultConfig(),
		NewPipeline: func(cfg voice.Config) (voice.Pipeline, error) {
			mu.Lock()
			defer mu.Unlock()
			mock = voice.NewMockPipeline(cfg)
			return mock, nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	jc, err := w.Dispatch(agent.Job{})
	require.NoError(t, err)
	s, err := jc.WaitSession(ctx)
	require.NoError(t, err)

	var handoffEvents []agent.Event
	s.Subscribe(func(e agent.Event) {
		if e.Type == agent.EventHandoff {
			handoffEvents = append(handoffEvents, e)
		}
	})

	mu.Lock()
	m := mock
	mu.Unlock()
	assert.Equal(t, "greeter", s.Agent().Name)

	res := m.CallTool("c1", "switch_mode", map[string]any{"mode": "quiz"})
	require.NoError(t, res.Error)
	assert.Contains(t, res.Result, "Switched to quiz mode.")
	assert.Equal(t, "quiz", s.Agent().Name)
	assert.Equal(t, "en-US-alicia", m.Config().TTSVoice)

	res = m.CallTool("c2", "get_quiz_question", map[string]any{"concept": "variables"})
	require.NoError(t, res.Error)
	assert.Equal(t, "Quiz question about Variables: What is a variable?", res.Result)

	require.Len(t, handoffEvents, 1)
	assert.Equal(t, "greeter", handoffEvents[0].From)
	assert.Equal(t, "quiz", handoffEvents[0].To)

	jc.End()
	<-jc.Finished()
}

func TestRoutes(t *testing.T) {
	d := testDemo(t)
	app := fiber.New()
	d.Routes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/concepts", nil))
	require.NoError(t, err)
	var concepts []Concept
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&concepts))
	assert.Len(t, concepts, 3)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/concepts/LOOPS", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/concepts/recursion", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/modes", nil))
	require.NoError(t, err)
	var modes []ModeInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&modes))
	require.Len(t, modes, 4)
	assert.Equal(t, ModeQuiz, modes[2].Mode)
	assert.Equal(t, "Alicia", modes[2].Persona)
	assert.Equal(t, []string{"learn", "quiz", "teach_back"}, modes[0].Next)
}
