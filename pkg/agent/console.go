package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// consoleTurnTimeout bounds the wait for the agent's reply to one line.
const consoleTurnTimeout = 90 * time.Second

// RunConsole runs a single text-only job in the terminal. Each input line is
// a user turn; replies are printed to out. It returns when in is exhausted,
// the user types /quit, or ctx is cancelled. The job's shutdown callbacks
// have run by the time it returns.
func RunConsole(ctx context.Context, w *Worker, in io.Reader, out io.Writer) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	replies := make(chan struct{}, 16)
	signal := func() {
		select {
		case replies <- struct{}{}:
		default:
		}
	}
	show := func(e Event) {
		switch e.Type {
		case EventResponse:
			fmt.Fprintf(out, "🤖 %s: %s\n", e.Agent, e.Text)
			signal()
		case EventHandoff:
			fmt.Fprintf(out, "🔀 %s → %s\n", e.From, e.To)
		case EventTool:
			if e.Failed {
				fmt.Fprintf(out, "⚠️  %s failed: %s\n", e.Tool, e.Result)
			}
		case EventError:
			fmt.Fprintf(out, "⚠️  %s\n", e.Text)
			signal()
		}
	}

	id := uuid.NewString()
	w.AddSessionHook(func(jc *JobContext, s *Session) {
		if jc.Job.ID == id {
			s.Subscribe(show)
		}
	})

	jc, err := w.Dispatch(Job{ID: id, Room: "console", TextOnly: true})
	if err != nil {
		return err
	}
	defer func() {
		jc.End()
		<-jc.Finished()
	}()

	s, err := jc.WaitSession(ctx)
	if err != nil {
		return fmt.Errorf("agent: console session: %w", err)
	}

	wait := func() {
		select {
		case <-replies:
		case <-time.After(consoleTurnTimeout):
		case <-ctx.Done():
		case <-jc.Done():
		}
	}

	if s.Agent().Greeting != "" {
		wait()
	}

	fmt.Fprintln(out, "💬 Type to talk, /quit to leave.")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if err := s.SendText(line); err != nil {
			return err
		}
		wait()

		select {
		case <-ctx.Done():
			return nil
		case <-jc.Done():
			return nil
		default:
		}
	}
	return scanner.Err()
}
