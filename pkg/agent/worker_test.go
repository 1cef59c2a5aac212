package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// echoPipeline answers every text turn immediately.
type echoPipeline struct {
	*voice.MockPipeline
}

func (e *echoPipeline) SendText(text string) error {
	if err := e.MockPipeline.SendText(text); err != nil {
		return err
	}
	e.EmitResponse("You said: "+text, true)
	return nil
}

func (e *echoPipeline) GenerateReply(instructions string) error {
	if err := e.MockPipeline.GenerateReply(instructions); err != nil {
		return err
	}
	go e.EmitResponse("Welcome!", true)
	return nil
}

type pipelines struct {
	mu   sync.Mutex
	made []*voice.MockPipeline
}

func (p *pipelines) factory(cfg voice.Config) (voice.Pipeline, error) {
	m := voice.NewMockPipeline(cfg)
	p.mu.Lock()
	p.made = append(p.made, m)
	p.mu.Unlock()
	return &echoPipeline{m}, nil
}

func (p *pipelines) last() *voice.MockPipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.made[len(p.made)-1]
}

func TestNewWorkerRequiresEntrypoint(t *testing.T) {
	_, err := NewWorker(WorkerOptions{})
	assert.ErrorIs(t, err, ErrNoEntrypoint)
}

func TestWorkerPrewarmOnce(t *testing.T) {
	var calls atomic.Int32
	w, err := NewWorker(WorkerOptions{
		Name:       "test",
		Entrypoint: func(*JobContext) error { return nil },
		Prewarm: func(p *Process) error {
			calls.Add(1)
			vad, err := voice.LoadVAD(voice.WithMinSilence(700 * time.Millisecond))
			p.Set(VADKey, vad)
			return err
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Prewarm())

	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, w.Process().VAD())
	assert.Equal(t, 700*time.Millisecond, w.Process().VAD().MinSilence)
}

func TestWorkerPrewarmError(t *testing.T) {
	w, err := NewWorker(WorkerOptions{
		Entrypoint: func(*JobContext) error { return nil },
		Prewarm:    func(*Process) error { return errors.New("no model") },
	})
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
}

func TestWorkerDispatchRequiresRunning(t *testing.T) {
	w, err := NewWorker(WorkerOptions{Entrypoint: func(*JobContext) error { return nil }})
	require.NoError(t, err)
	_, err = w.Dispatch(Job{})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestWorkerJobLifecycle(t *testing.T) {
	var made pipelines
	var order []string
	var mu sync.Mutex
	note := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	base := voice.DefaultConfig()
	w, err := NewWorker(WorkerOptions{
		Name:        "barista",
		Pipeline:    base,
		NewPipeline: made.factory,
		Prewarm: func(p *Process) error {
			vad, err := voice.LoadVAD(voice.WithMinSilence(800 * time.Millisecond))
			p.Set(VADKey, vad)
			return err
		},
		Entrypoint: func(jc *JobContext) error {
			jc.AddShutdownCallback(func() { note("first") })
			jc.AddShutdownCallback(func() { note("second") })
			_, err := jc.StartSession(Agent{Name: "barista", Instructions: "Serve coffee."})
			return err
		},
		OnJobEnd: func(*JobContext) { note("ended") },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	jc, err := w.Dispatch(Job{ID: "job-42"})
	require.NoError(t, err)
	assert.Equal(t, "barista-job-42", jc.Room())

	s, err := jc.WaitSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "barista", s.Agent().Name)

	cfg := made.last().Config()
	assert.Equal(t, 800*time.Millisecond, cfg.VADSilenceDuration)
	assert.Equal(t, "Serve coffee.", cfg.Instructions)

	_, ok := w.Job("job-42")
	assert.True(t, ok)
	_, err = w.Dispatch(Job{ID: "job-42"})
	assert.ErrorIs(t, err, ErrJobExists)

	require.NoError(t, w.End("job-42"))
	<-jc.Finished()
	assert.False(t, made.last().IsConnected())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"first", "second", "ended"}, order)
	mu.Unlock()

	assert.ErrorIs(t, w.End("job-42"), ErrJobNotFound)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerEntrypointErrorEndsJob(t *testing.T) {
	w, err := NewWorker(WorkerOptions{
		Entrypoint: func(*JobContext) error { return errors.New("boom") },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	jc, err := w.Dispatch(Job{})
	require.NoError(t, err)
	select {
	case <-jc.Finished():
	case <-time.After(time.Second):
		t.Fatal("job did not end")
	}
	assert.Empty(t, w.Jobs())
}

func TestWorkerEntrypointPanicRecovered(t *testing.T) {
	w, err := NewWorker(WorkerOptions{
		Entrypoint: func(*JobContext) error { panic("bad entrypoint") },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	jc, err := w.Dispatch(Job{})
	require.NoError(t, err)
	select {
	case <-jc.Finished():
	case <-time.After(time.Second):
		t.Fatal("job did not end")
	}
}

func TestRunConsole(t *testing.T) {
	var made pipelines
	usage := make(chan voice.Usage, 1)

	w, err := NewWorker(WorkerOptions{
		Name:        "tutor",
		Pipeline:    voice.DefaultConfig(),
		NewPipeline: made.factory,
		Entrypoint: func(jc *JobContext) error {
			s, err := jc.StartSession(Agent{Name: "greeter", Greeting: "Say hello."})
			if err != nil {
				return err
			}
			jc.AddShutdownCallback(func() { usage <- s.Usage() })
			return nil
		},
	})
	require.NoError(t, err)

	in := strings.NewReader("hello there\n\n/quit\nnever sent\n")
	var out bytes.Buffer
	require.NoError(t, RunConsole(context.Background(), w, in, &out))

	text := out.String()
	assert.Contains(t, text, "🤖 greeter: Welcome!")
	assert.Contains(t, text, "🤖 greeter: You said: hello there")
	assert.NotContains(t, text, "never sent")

	m := made.last()
	assert.True(t, m.Config().TextOnly)
	assert.Equal(t, []string{"hello there"}, m.Texts)

	select {
	case <-usage:
	default:
		t.Fatal("shutdown callback did not run")
	}
}
