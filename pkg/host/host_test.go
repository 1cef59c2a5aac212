package host

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceagents/internal/config"
	"github.com/teslashibe/go-voiceagents/internal/log"
	"github.com/teslashibe/go-voiceagents/pkg/agent"
	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// echoPipeline answers every text turn straight away.
type echoPipeline struct {
	*voice.MockPipeline
}

func (e echoPipeline) SendText(text string) error {
	if err := e.MockPipeline.SendText(text); err != nil {
		return err
	}
	e.EmitResponse("You said: "+text, true)
	return nil
}

func echoFactory(cfg voice.Config) (voice.Pipeline, error) {
	return echoPipeline{voice.NewMockPipeline(cfg)}, nil
}

type echoDemo struct{}

func (echoDemo) Name() string { return "echo" }

func (echoDemo) Entrypoint(jc *agent.JobContext) error {
	_, err := jc.StartSession(agent.Agent{Name: "echo", Instructions: "Repeat the user."})
	return err
}

type routedDemo struct{ echoDemo }

func (routedDemo) Routes(api fiber.Router) {
	api.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Demo = "echo"
	cfg.DataDir = t.TempDir()
	return &cfg
}

func TestPipelineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keys = config.Keys{Deepgram: "dg", Google: "g", Murf: "m", OpenAI: "o"}
	cfg.Speech.TTSVoice = "en-US-alicia"
	cfg.Speech.LLMBaseURL = "http://localhost:11434/v1"

	vc := PipelineConfig(cfg)
	assert.Equal(t, voice.ProviderCascade, vc.Provider)
	assert.Equal(t, "nova-3", vc.STTModel)
	assert.Equal(t, "gemini-2.5-flash", vc.LLMModel)
	assert.Equal(t, "en-US-alicia", vc.TTSVoice)
	assert.Equal(t, "http://localhost:11434/v1", vc.LLMBaseURL)
	assert.Equal(t, "dg", vc.DeepgramKey)
	assert.Equal(t, "m", vc.MurfKey)
	assert.False(t, vc.TextOnly)

	cfg.Pipeline = config.PipelineRealtime
	cfg.Speech.RealtimeVoice = "cedar"
	cfg.Console = true
	vc = PipelineConfig(cfg)
	assert.Equal(t, voice.ProviderOpenAI, vc.Provider)
	assert.Equal(t, voice.TurnDetectionServerVAD, vc.TurnDetection)
	assert.Equal(t, "cedar", vc.TTSVoice)
	assert.Equal(t, "o", vc.OpenAIKey)
	assert.True(t, vc.TextOnly)
}

func TestNewValidatesKeys(t *testing.T) {
	_, err := New(testConfig(t), echoDemo{})
	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Keys.Google", cerr.Field)

	_, err = New(nil, echoDemo{})
	assert.Error(t, err)

	app, err := New(testConfig(t), echoDemo{}, WithPipelineFactory(echoFactory))
	require.NoError(t, err)
	assert.Error(t, app.Run(context.Background()), "Run before Init")
}

func TestConsole(t *testing.T) {
	cfg := testConfig(t)
	cfg.Console = true

	var out bytes.Buffer
	app, err := New(cfg, echoDemo{},
		WithPipelineFactory(echoFactory),
		WithConsoleIO(strings.NewReader("hello there\n\n/quit\nignored\n"), &out),
	)
	require.NoError(t, err)
	require.NoError(t, app.Init())
	defer app.Shutdown()
	assert.Nil(t, app.Web())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Run(ctx))

	assert.Contains(t, out.String(), "🤖 echo: You said: hello there")
	assert.NotContains(t, out.String(), "ignored")
}

func TestPrewarmStoresVAD(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(cfg, echoDemo{}, WithPipelineFactory(echoFactory))
	require.NoError(t, err)
	require.NoError(t, app.Init())

	require.NoError(t, app.Worker().Prewarm())
	vad := app.Worker().Process().VAD()
	require.NotNil(t, vad)
	assert.Equal(t, 0.5, vad.Threshold)
	assert.Equal(t, 500*time.Millisecond, vad.MinSilence)
}

func TestDashboardMountsDemoRoutes(t *testing.T) {
	app, err := New(testConfig(t), routedDemo{}, WithPipelineFactory(echoFactory))
	require.NoError(t, err)
	require.NoError(t, app.Init())
	require.NotNil(t, app.Web())
	require.NotNil(t, app.Metrics())

	resp, err := app.Web().App().Test(httptest.NewRequest("GET", "/api/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Web().App().Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestInitWarnsAboutDevSecret(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf, "info")
	t.Cleanup(func() { log.SetOutput(os.Stderr, "info") })

	app, err := New(testConfig(t), echoDemo{}, WithPipelineFactory(echoFactory))
	require.NoError(t, err)
	require.NoError(t, app.Init())
	assert.Contains(t, buf.String(), "LIVEKIT_API_SECRET is the dev default")
}

func TestLoadConfigFlags(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("WEB_PORT", "")
	t.Setenv("VOICE_PIPELINE", "")
	t.Setenv("DATA_DIR", "")

	cfg, err := LoadConfig("wellness", []string{
		"-console", "-debug", "-port", "9090", "-pipeline", "realtime", "-data-dir", dir,
	})
	require.NoError(t, err)

	assert.Equal(t, "wellness", cfg.Demo)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "9090", cfg.WebPort)
	assert.Equal(t, config.PipelineRealtime, cfg.Pipeline)
	assert.Equal(t, filepath.Join(dir, "wellness_log.json"), cfg.WellnessLog)
	assert.Equal(t, "http://localhost:9090/api/journal/callback", cfg.Journal.RedirectURL)

	_, err = LoadConfig("wellness", []string{"-nope"})
	assert.Error(t, err)
}
