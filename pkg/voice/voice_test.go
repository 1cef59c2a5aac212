package voice

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"none", []string{}},
		{"None", []string{}},
		{"  NONE ", []string{}},
		{"Extra Shot, Vanilla Syrup", []string{"Extra Shot", "Vanilla Syrup"}},
		{"a,,b, ,c", []string{"a", "b", "c"}},
		{" whipped cream ", []string{"whipped cream"}},
		{"none, caramel", []string{"none", "caramel"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SplitList(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitList(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestListArgument(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"string", map[string]any{"extras": "Extra Shot, Caramel"}, []string{"Extra Shot", "Caramel"}},
		{"array", map[string]any{"extras": []any{"Extra Shot", " Caramel "}}, []string{"Extra Shot", "Caramel"}},
		{"array none", map[string]any{"extras": []any{"none"}}, []string{}},
		{"empty array", map[string]any{"extras": []any{}}, []string{}},
		{"null", map[string]any{"extras": nil}, []string{}},
		{"missing", map[string]any{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req struct {
				Extras List `json:"extras"`
			}
			if err := DecodeArgs(tt.args, &req); err != nil {
				t.Fatalf("DecodeArgs: %v", err)
			}
			if got := req.Extras.Items(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Items() = %#v, want %#v", got, tt.want)
			}
		})
	}

	var req struct {
		Extras List `json:"extras"`
	}
	if err := DecodeArgs(map[string]any{"extras": 3}, &req); err == nil {
		t.Error("expected an error for a number")
	}
}

func TestDecodeArgs(t *testing.T) {
	var req struct {
		Drink string `json:"drink_type"`
		Size  string `json:"size"`
	}
	err := DecodeArgs(map[string]any{"drink_type": "Latte", "size": "Medium", "extra": 1}, &req)
	if err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if req.Drink != "Latte" || req.Size != "Medium" {
		t.Errorf("unexpected decode: %+v", req)
	}

	err = DecodeArgs(map[string]any{"size": 12}, &req)
	if err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestInvoke(t *testing.T) {
	tools := []Tool{
		{
			Name: "echo",
			Handler: func(args map[string]any) (string, error) {
				return args["text"].(string), nil
			},
		},
		{
			Name: "fail",
			Handler: func(args map[string]any) (string, error) {
				return "", errors.New("boom")
			},
		},
	}

	res := Invoke(tools, ToolCall{ID: "1", Name: "echo", Arguments: map[string]any{"text": "hi"}})
	if res.Result != "hi" || res.Error != nil || res.CallID != "1" {
		t.Errorf("echo result = %+v", res)
	}

	res = Invoke(tools, ToolCall{ID: "2", Name: "fail"})
	if res.Error == nil || !strings.Contains(res.Result, "boom") {
		t.Errorf("fail result = %+v", res)
	}

	res = Invoke(tools, ToolCall{ID: "3", Name: "missing"})
	if res.Error == nil || !strings.Contains(res.Result, "unknown tool") {
		t.Errorf("missing result = %+v", res)
	}
}

func TestObjectSchema(t *testing.T) {
	s := ObjectSchema(map[string]any{"mode": EnumParam("mode", "learn", "quiz")}, "mode")
	if s["type"] != "object" {
		t.Errorf("type = %v", s["type"])
	}
	if req := s["required"].([]string); len(req) != 1 || req[0] != "mode" {
		t.Errorf("required = %v", req)
	}

	empty := ObjectSchema(nil)
	if req := empty["required"].([]string); req == nil || len(req) != 0 {
		t.Errorf("required should be an empty list, got %#v", empty["required"])
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"cascade full", withKeys(DefaultConfig(), "g", "dg", "m", ""), false},
		{"cascade no llm key", withKeys(DefaultConfig(), "", "dg", "m", ""), true},
		{"cascade no stt key", withKeys(DefaultConfig(), "g", "", "m", ""), true},
		{"cascade text only", withKeys(DefaultConfig(), "g", "", "", "").WithTextOnly(true), false},
		{"cascade openai tts", withKeys(DefaultConfig(), "g", "dg", "", "sk"), false},
		{"realtime", withKeys(DefaultRealtimeConfig(), "", "", "", "sk"), false},
		{"realtime no key", DefaultRealtimeConfig(), true},
		{"unknown provider", withKeys(DefaultConfig(), "g", "dg", "m", "").WithProvider("pigeon"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	bad := withKeys(DefaultConfig(), "g", "dg", "m", "")
	bad.VADThreshold = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected VAD threshold error")
	}
}

func withKeys(c Config, google, deepgram, murf, openai string) Config {
	c.GoogleAPIKey = google
	c.DeepgramKey = deepgram
	c.MurfKey = murf
	c.OpenAIKey = openai
	return c
}

func TestConfigWithVoice(t *testing.T) {
	c := DefaultConfig().WithVoice("en-US-alicia", "")
	if c.TTSVoice != "en-US-alicia" || c.TTSStyle != DefaultTTSStyle {
		t.Errorf("WithVoice = %q/%q", c.TTSVoice, c.TTSStyle)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	cfg := withKeys(DefaultConfig(), "g", "dg", "m", "").WithProvider("pigeon")
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error")
	}

	Register("test", func(cfg Config) (Pipeline, error) { return NewMockPipeline(cfg), nil })
	factoriesMu.RLock()
	_, ok := factories["test"]
	factoriesMu.RUnlock()
	if !ok {
		t.Error("factory not registered")
	}
}

func TestUsageCollector(t *testing.T) {
	c := NewUsageCollector()
	c.Collect(Usage{LLMPromptTokens: 10, LLMCompletionTokens: 5})
	c.Collect(Usage{TTSCharacters: 42, STTAudioDuration: 1500 * time.Millisecond})
	c.Collect(Usage{LLMPromptTokens: 3})

	got := c.Summary()
	want := Usage{LLMPromptTokens: 13, LLMCompletionTokens: 5, TTSCharacters: 42, STTAudioDuration: 1500 * time.Millisecond}
	if got != want {
		t.Errorf("Summary() = %+v, want %+v", got, want)
	}
	if s := got.String(); !strings.Contains(s, "tts_characters=42") || !strings.Contains(s, "stt_audio_duration=1.5s") {
		t.Errorf("String() = %q", s)
	}
}

func TestLoadVAD(t *testing.T) {
	v, err := LoadVAD(WithMinSilence(800 * time.Millisecond))
	if err != nil {
		t.Fatalf("LoadVAD: %v", err)
	}
	if v.EndpointingMS() != 800 {
		t.Errorf("EndpointingMS() = %d", v.EndpointingMS())
	}

	cfg := DefaultConfig().WithVAD(v)
	if cfg.VADSilenceDuration != 800*time.Millisecond {
		t.Errorf("WithVAD did not apply silence: %v", cfg.VADSilenceDuration)
	}

	if _, err := LoadVAD(WithThreshold(2)); err == nil {
		t.Error("expected threshold error")
	}
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()
	m.MarkSpeechEnd()
	time.Sleep(2 * time.Millisecond)
	m.MarkTranscript()
	m.MarkFirstToken()
	m.MarkFirstAudio()
	m.MarkToolCall()
	m.MarkResponseDone()

	cur := m.Current()
	if cur.ASRLatency <= 0 || cur.TotalLatency < cur.ASRLatency {
		t.Errorf("unexpected latencies: %+v", cur)
	}
	if cur.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d", cur.ToolCalls)
	}
	if avg := m.Average(); avg.TotalLatency != cur.TotalLatency {
		t.Errorf("Average over one turn = %v, want %v", avg.TotalLatency, cur.TotalLatency)
	}
}

func TestMockPipelineToolOverride(t *testing.T) {
	p := NewMockPipeline(DefaultConfig())
	p.SetTools([]Tool{{Name: "ping", Handler: func(map[string]any) (string, error) { return "pong", nil }}})

	if res := p.CallTool("a", "ping", nil); res.Result != "pong" {
		t.Errorf("in-place result = %q", res.Result)
	}

	p.OnToolCall(func(call ToolCall) {
		_ = p.SubmitToolResult(call.ID, "override")
	})
	if res := p.CallTool("b", "ping", nil); res.Result != "override" {
		t.Errorf("override result = %q", res.Result)
	}
}
