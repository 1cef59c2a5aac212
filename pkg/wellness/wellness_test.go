package wellness

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

var fixedNow = time.Date(2025, 11, 25, 8, 0, 0, 0, time.UTC)

func testDemo(t *testing.T, opts ...Option) *Demo {
	t.Helper()
	store, err := NewLogStore(filepath.Join(t.TempDir(), "wellness_log.json"))
	require.NoError(t, err)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(store, opts...)
}

func alexRequest() CheckInRequest {
	return CheckInRequest{
		UserName:   "Alex",
		Mood:       "a bit tired but hopeful",
		Energy:     "medium",
		Objectives: "finish the report, go for a walk",
		Stressors:  "deadline",
	}
}

func TestCheckInRequest(t *testing.T) {
	c := alexRequest().CheckIn(fixedNow)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, []string{"finish the report", "go for a walk"}, c.Objectives)
	require.NotNil(t, c.Stressors)
	assert.Equal(t, "deadline", *c.Stressors)
	assert.Equal(t, "Alex felt a bit tired but hopeful with medium energy, focusing on finish the report, "+
		"go for a walk; stressors: deadline.", c.Summary)

	for _, s := range []string{"", "  ", "none", "None", "NONE"} {
		req := alexRequest()
		req.Stressors = s
		assert.Nil(t, req.CheckIn(fixedNow).Stressors, "%q", s)
	}

	req := alexRequest()
	req.Objectives = "none"
	assert.Equal(t, []string{}, req.CheckIn(fixedNow).Objectives)
}

func TestCheckInStressorsSerializeAsNull(t *testing.T) {
	req := alexRequest()
	req.Stressors = "none"
	data, err := json.Marshal(req.CheckIn(fixedNow))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stressors":null`)
	assert.Contains(t, string(data), `"objectives":["finish the report","go for a walk"]`)
}

func TestCheckInRequestValidate(t *testing.T) {
	require.NoError(t, alexRequest().Validate())

	err := CheckInRequest{Mood: "ok"}.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"name", "energy level"}, verr.Fields)
}

func TestLogStoreAppendOnly(t *testing.T) {
	d := testDemo(t)

	for i := 0; i < 3; i++ {
		req := alexRequest()
		req.Mood = fmt.Sprintf("mood %d", i)
		require.NoError(t, d.Store().Append(req.CheckIn(fixedNow)))
	}
	before, err := d.Store().List()
	require.NoError(t, err)
	require.Len(t, before, 3)

	msg := d.SaveCheckIn(NewConversation(nil), alexRequest(), nil)
	assert.Contains(t, msg, "Your check-in is saved.")

	after, err := d.Store().List()
	require.NoError(t, err)
	require.Len(t, after, 4)
	assert.Equal(t, before, after[:3])
	assert.Equal(t, "a bit tired but hopeful", after[3].Mood)

	data, err := os.ReadFile(d.Store().Path())
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "check_ins")
}

func TestLogStoreKeepsExistingRecords(t *testing.T) {
	d := testDemo(t)
	legacy := `{"id":"legacy-1","timestamp":"2025-11-24T10:15:30.123456","user_name":"Sam",` +
		`"mood":"calm","energy":"high","objectives":[],"stressors":null,"summary":"Sam felt calm.","notes":"keep me"}`
	seed := `{"version": 1, "check_ins": [` + legacy + `]}`
	require.NoError(t, os.WriteFile(d.Store().Path(), []byte(seed), 0o644))

	last, err := d.Store().Last()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "legacy-1", last.ID)
	assert.Equal(t, time.Date(2025, 11, 24, 10, 15, 30, 123456000, time.Local), last.Timestamp)

	msg := d.SaveCheckIn(NewConversation(nil), alexRequest(), nil)
	assert.Contains(t, msg, "Your check-in is saved.")

	data, err := os.ReadFile(d.Store().Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), legacy)
	assert.Contains(t, string(data), `"version": 1`)

	all, err := d.Store().List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "legacy-1", all[0].ID)
	assert.Equal(t, "Alex", all[1].UserName)
	assert.Equal(t, fixedNow, all[1].Timestamp.UTC())

	require.NoError(t, d.Store().Append(alexRequest().CheckIn(fixedNow)))
	again, err := os.ReadFile(d.Store().Path())
	require.NoError(t, err)
	head := string(data[:strings.LastIndex(string(data), "\n  ]")])
	assert.True(t, strings.HasPrefix(string(again), head), "earlier records are copied through unchanged")
}

func TestCheckInTimestampLayouts(t *testing.T) {
	for _, ts := range []string{"2025-11-24T10:15:30Z", "2025-11-24T10:15:30.5+02:00", "2025-11-24T10:15:30", "2025-11-24 10:15:30.25"} {
		var c CheckIn
		require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"`+ts+`"}`), &c), ts)
		assert.Equal(t, 2025, c.Timestamp.Year(), ts)
	}
	var c CheckIn
	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &c))
}

func TestLogStoreConcurrentAppends(t *testing.T) {
	d := testDemo(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Store().Append(alexRequest().CheckIn(fixedNow)))
		}()
	}
	wg.Wait()

	all, err := d.Store().List()
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestLogStoreEmpty(t *testing.T) {
	d := testDemo(t)

	all, err := d.Store().List()
	require.NoError(t, err)
	assert.Empty(t, all)

	last, err := d.Store().Last()
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestSaveCheckInCorruptLog(t *testing.T) {
	d := testDemo(t)
	require.NoError(t, os.WriteFile(d.Store().Path(), []byte("{not json"), 0o644))

	conv := NewConversation(nil)
	msg := d.SaveCheckIn(conv, alexRequest(), nil)
	assert.Equal(t, saveFailedMsg, msg)
	assert.Empty(t, conv.SavedID())

	data, err := os.ReadFile(d.Store().Path())
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data), "unreadable log is left alone")
}

func TestSaveCheckInMissingFields(t *testing.T) {
	d := testDemo(t)

	msg := d.SaveCheckIn(NewConversation(nil), CheckInRequest{UserName: "Alex", Energy: "high"}, nil)
	assert.Equal(t, "Before I save, I still need your mood.", msg)

	all, err := d.Store().List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSaveCheckInUpdatesConversation(t *testing.T) {
	var saved []CheckIn
	d := testDemo(t, OnCheckInSaved(func(c CheckIn) { saved = append(saved, c) }))
	conv := NewConversation(nil)

	res := voice.Invoke(d.Tools(conv, nil), voice.ToolCall{ID: "1", Name: "save_check_in", Arguments: map[string]any{
		"user_name":  "Alex",
		"mood":       "calm",
		"energy":     "high",
		"objectives": []any{"write", "read"},
		"stressors":  "None",
	}})
	require.NoError(t, res.Error)
	assert.Equal(t, "Thank you, Alex. Your check-in is saved. Alex felt calm with high energy, focusing on write, read.", res.Result)

	require.Len(t, saved, 1)
	assert.Equal(t, saved[0].ID, conv.SavedID())
	assert.Equal(t, CheckInState{
		UserName:   "Alex",
		Mood:       "calm",
		Energy:     "high",
		Objectives: []string{"write", "read"},
	}, conv.State())
}

func TestPreviousCheckIn(t *testing.T) {
	d := testDemo(t)
	tools := d.Tools(NewConversation(nil), nil)

	res := voice.Invoke(tools, voice.ToolCall{Name: "get_previous_check_in"})
	assert.Equal(t, noPreviousMsg, res.Result)

	require.NoError(t, d.Store().Append(alexRequest().CheckIn(fixedNow)))
	res = voice.Invoke(tools, voice.ToolCall{Name: "get_previous_check_in"})
	assert.Contains(t, res.Result, "The last check-in was on Tuesday, November 25.")
	assert.Contains(t, res.Result, "Alex felt a bit tired")
}

func TestInstructionsReferencePreviousCheckIn(t *testing.T) {
	assert.Equal(t, baseInstructions, Instructions(nil))

	prev := alexRequest().CheckIn(fixedNow)
	got := Instructions(&prev)
	assert.Contains(t, got, baseInstructions)
	assert.Contains(t, got, "Tuesday, November 25")
	assert.Contains(t, got, prev.Summary)
	assert.Contains(t, Greeting(&prev), "Alex")

	d := testDemo(t)
	a := d.Agent(NewConversation(&prev), nil)
	assert.Equal(t, Name, a.Name)
	assert.Equal(t, []string{"save_check_in", "get_previous_check_in"}, a.ToolNames())
	assert.Equal(t, got, a.Instructions)
}

func TestRoutes(t *testing.T) {
	d := testDemo(t)
	require.NoError(t, d.Store().Append(alexRequest().CheckIn(fixedNow)))

	app := fiber.New()
	d.Routes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/check-ins", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var all []CheckIn
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	assert.Len(t, all, 1)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/check-ins/last", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/journal/status", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"enabled":false}`, string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/api/journal/auth", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
