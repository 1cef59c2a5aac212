package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// Worker errors.
var (
	ErrNoEntrypoint = errors.New("agent: entrypoint required")
	ErrNotRunning   = errors.New("agent: worker not running")
	ErrJobNotFound  = errors.New("agent: job not found")
	ErrJobExists    = errors.New("agent: job already exists")
)

// VADKey is the Process userdata key under which prewarm stores *voice.VAD.
const VADKey = "vad"

// Process holds state shared by every job in the worker process.
type Process struct {
	mu       sync.RWMutex
	userdata map[string]any
}

func newProcess() *Process {
	return &Process{userdata: make(map[string]any)}
}

// Set stores a value in the process userdata.
func (p *Process) Set(key string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userdata[key] = v
}

// Get returns a value from the process userdata.
func (p *Process) Get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.userdata[key]
	return v, ok
}

// VAD returns the VAD settings loaded by prewarm, or nil.
func (p *Process) VAD() *voice.VAD {
	v, _ := p.Get(VADKey)
	vad, _ := v.(*voice.VAD)
	return vad
}

// Job is a unit of work: one conversation in one room.
type Job struct {
	ID       string            `json:"id"`
	Room     string            `json:"room"`
	Identity string            `json:"identity,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// TextOnly runs the session without audio stages.
	TextOnly bool `json:"text_only"`

	CreatedAt time.Time `json:"created_at"`
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	// Name identifies the demo in logs.
	Name string

	// Entrypoint runs once per job. The job stays alive after it returns,
	// until it is ended. An error ends the job.
	Entrypoint func(jc *JobContext) error

	// Prewarm runs exactly once per process, before the first job.
	Prewarm func(p *Process) error

	// Pipeline is the base configuration for every session.
	Pipeline voice.Config

	// NewPipeline creates pipelines. Defaults to voice.New.
	NewPipeline voice.PipelineFactory

	// OnSessionStart is called when a job's session is created, before it
	// starts, so subscribers registered there see every event.
	OnSessionStart func(jc *JobContext, s *Session)

	// OnJobEnd is called after a job's shutdown callbacks ran.
	OnJobEnd func(jc *JobContext)

	Logger *slog.Logger
}

// Worker runs jobs concurrently, each through the entrypoint.
type Worker struct {
	opts   WorkerOptions
	proc   *Process
	logger *slog.Logger

	prewarmOnce sync.Once
	prewarmErr  error

	mu    sync.RWMutex
	ctx   context.Context
	jobs  map[string]*JobContext
	hooks []func(*JobContext, *Session)
	wg    sync.WaitGroup
}

// NewWorker creates a worker.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Entrypoint == nil {
		return nil, ErrNoEntrypoint
	}
	if opts.NewPipeline == nil {
		opts.NewPipeline = voice.New
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Worker{
		opts:   opts,
		proc:   newProcess(),
		logger: opts.Logger.With("demo", opts.Name),
		jobs:   make(map[string]*JobContext),
	}, nil
}

// AddSessionHook registers fn to run, like OnSessionStart, for every
// session created from now on.
func (w *Worker) AddSessionHook(fn func(jc *JobContext, s *Session)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, fn)
}

// Process returns the worker's process state.
func (w *Worker) Process() *Process { return w.proc }

// Name returns the demo name.
func (w *Worker) Name() string { return w.opts.Name }

// Prewarm runs the prewarm hook. Only the first call runs it; later calls
// return the first result.
func (w *Worker) Prewarm() error {
	w.prewarmOnce.Do(func() {
		if w.opts.Prewarm == nil {
			return
		}
		start := time.Now()
		w.prewarmErr = w.opts.Prewarm(w.proc)
		w.logger.Info("prewarm done", "elapsed", time.Since(start), "error", w.prewarmErr)
	})
	return w.prewarmErr
}

// Start prewarms and begins accepting jobs. Jobs end when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Prewarm(); err != nil {
		return fmt.Errorf("agent: prewarm: %w", err)
	}
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()
	return nil
}

// Run starts the worker and blocks until ctx is cancelled and every job has
// finished its shutdown callbacks.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	w.logger.Info("worker ready")

	<-ctx.Done()
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

// Dispatch starts a job. Missing ID and room are generated.
func (w *Worker) Dispatch(job Job) (*JobContext, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx == nil || w.ctx.Err() != nil {
		return nil, ErrNotRunning
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, ok := w.jobs[job.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	if job.Room == "" {
		id := job.ID
		if len(id) > 8 {
			id = id[:8]
		}
		job.Room = w.opts.Name + "-" + id
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	jc := newJobContext(w, job)
	w.jobs[job.ID] = jc
	w.wg.Add(1)
	go w.runJob(jc)

	return jc, nil
}

func (w *Worker) runJob(jc *JobContext) {
	defer w.wg.Done()
	defer func() {
		jc.finish()
		w.mu.Lock()
		delete(w.jobs, jc.Job.ID)
		w.mu.Unlock()
		if w.opts.OnJobEnd != nil {
			w.opts.OnJobEnd(jc)
		}
	}()

	jc.Logger.Info("job started")

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("entrypoint panicked: %v", r)
			}
		}()
		return w.opts.Entrypoint(jc)
	}()
	if err != nil {
		jc.Logger.Error("entrypoint failed", "error", err)
		jc.End()
	}

	<-jc.Done()
}

// End ends a running job.
func (w *Worker) End(id string) error {
	jc, ok := w.Job(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	jc.End()
	return nil
}

// Job returns a running job.
func (w *Worker) Job(id string) (*JobContext, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	jc, ok := w.jobs[id]
	return jc, ok
}

// Jobs returns the running jobs, oldest first.
func (w *Worker) Jobs() []*JobContext {
	w.mu.RLock()
	out := make([]*JobContext, 0, len(w.jobs))
	for _, jc := range w.jobs {
		out = append(out, jc)
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Job.CreatedAt.Before(out[j].Job.CreatedAt)
	})
	return out
}

// JobContext is what an entrypoint receives: the job, the process state, a
// logger carrying the room, and the means to start the session.
type JobContext struct {
	Job    Job
	Proc   *Process
	Logger *slog.Logger

	worker *Worker
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	session   *Session
	ready     chan struct{}
	shutdown  []func()
	finished  chan struct{}
	endedOnce sync.Once
}

func newJobContext(w *Worker, job Job) *JobContext {
	ctx, cancel := context.WithCancel(w.ctx)
	return &JobContext{
		Job:      job,
		Proc:     w.proc,
		Logger:   w.logger.With("room", job.Room, "job_id", job.ID),
		worker:   w,
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Context is cancelled when the job ends.
func (j *JobContext) Context() context.Context { return j.ctx }

// Room returns the job's room name.
func (j *JobContext) Room() string { return j.Job.Room }

// Done is closed when the job has been asked to end.
func (j *JobContext) Done() <-chan struct{} { return j.ctx.Done() }

// Finished is closed once shutdown callbacks ran and the session closed.
func (j *JobContext) Finished() <-chan struct{} { return j.finished }

// End asks the job to end.
func (j *JobContext) End() {
	j.cancel()
}

// AddShutdownCallback registers fn to run when the job ends, in order of
// registration, before the session closes.
func (j *JobContext) AddShutdownCallback(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.shutdown = append(j.shutdown, fn)
}

// PipelineConfig returns the session configuration for this job: the
// worker's base config with the prewarmed VAD and the job's text mode.
func (j *JobContext) PipelineConfig() voice.Config {
	cfg := j.worker.opts.Pipeline.WithVAD(j.Proc.VAD())
	if j.Job.TextOnly {
		cfg = cfg.WithTextOnly(true)
	}
	return cfg
}

// StartSession creates the pipeline and starts a session with agent a.
// A job has at most one session.
func (j *JobContext) StartSession(a Agent) (*Session, error) {
	j.mu.Lock()
	if j.session != nil {
		j.mu.Unlock()
		return nil, voice.ErrAlreadyStarted
	}
	j.mu.Unlock()

	p, err := j.worker.opts.NewPipeline(j.PipelineConfig())
	if err != nil {
		return nil, fmt.Errorf("agent: create pipeline: %w", err)
	}

	s := NewSession(j.Job.ID, j.Job.Room, p, j.Logger)

	j.mu.Lock()
	j.session = s
	j.mu.Unlock()

	if j.worker.opts.OnSessionStart != nil {
		j.worker.opts.OnSessionStart(j, s)
	}
	j.worker.mu.RLock()
	hooks := j.worker.hooks
	j.worker.mu.RUnlock()
	for _, fn := range hooks {
		fn(j, s)
	}
	if err := s.Start(j.ctx, a); err != nil {
		return nil, err
	}
	close(j.ready)
	return s, nil
}

// Session returns the job's session, or nil before StartSession.
func (j *JobContext) Session() *Session {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session
}

// WaitSession blocks until the session has started or ctx/the job ends.
func (j *JobContext) WaitSession(ctx context.Context) (*Session, error) {
	select {
	case <-j.ready:
		return j.Session(), nil
	case <-j.ctx.Done():
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finish runs the shutdown callbacks and closes the session.
func (j *JobContext) finish() {
	j.endedOnce.Do(func() {
		j.cancel()

		j.mu.Lock()
		callbacks := j.shutdown
		s := j.session
		j.mu.Unlock()

		for _, fn := range callbacks {
			func() {
				defer func() {
					if r := recover(); r != nil {
						j.Logger.Error("shutdown callback panicked", "panic", r)
					}
				}()
				fn()
			}()
		}

		if s != nil {
			if err := s.Close(); err != nil {
				j.Logger.Warn("close session", "error", err)
			}
		}
		j.Logger.Info("job ended")
		close(j.finished)
	})
}
