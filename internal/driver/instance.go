// Package driver contains the orchestration core: it supervises the
// external agent process, consumes its event feed, accumulates streamed
// message output, auto-approves permission prompts, and settles session
// completion waits.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/workspace/agent-driver/internal/config"
	"github.com/workspace/agent-driver/internal/control"
	"github.com/workspace/agent-driver/internal/events"
	"github.com/workspace/agent-driver/internal/retry"
	"github.com/workspace/agent-driver/internal/transcript"
)

// State is the lifecycle state of an Instance. Disposed is terminal.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateDisposed      State = "disposed"
)

// approvalTimeout bounds the detached permission approval call.
const approvalTimeout = 30 * time.Second

// controlAPI is the slice of the agent control channel the driver uses.
type controlAPI interface {
	OpenSession(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, sessionID, content string) error
	ApprovePermission(ctx context.Context, sessionID, permissionID, response string) error
}

// processHandle is the supervised agent process.
type processHandle interface {
	Stop() error
}

// RunResult is the outcome of a completed session run.
type RunResult struct {
	SessionID   string
	LastMessage string
}

// Instance is the service object coordinating one agent process, its event
// feed, and any number of concurrent session waits. Instances are created
// and owned by a Manager; disposal is a one-way latch.
type Instance struct {
	registry *completions
	observer Observer

	api   controlAPI
	proc  processHandle
	store *transcript.Store

	mu       sync.Mutex
	state    State
	sessions map[string]*session

	consumerCancel context.CancelFunc
	consumerDone   chan struct{}
}

// controlSource adapts the control client to the consumer's eventSource.
type controlSource struct {
	client *control.Client
}

func (s controlSource) Subscribe(ctx context.Context) (eventStream, error) {
	sub, err := s.client.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// newInstance creates an uninitialized instance. Call initialize to spawn
// the agent process and start the event consumer.
func newInstance(observer Observer) *Instance {
	if observer == nil {
		observer = slogObserver{}
	}
	return &Instance{
		registry: newCompletions(),
		observer: observer,
		state:    StateUninitialized,
		sessions: make(map[string]*session),
	}
}

// initialize spawns the agent process, waits for its control channel to
// come up, opens the transcript store, and starts the event consumer. On
// failure nothing is left running and the instance latches to Disposed.
func (i *Instance) initialize(ctx context.Context, cfg *config.Config) error {
	i.setState(StateInitializing)

	proc, err := control.StartProcess(ctx, control.ProcessConfig{
		Command: cfg.AgentCommand,
		Args:    cfg.AgentArgs,
		Host:    cfg.AgentHost,
		Port:    cfg.AgentPort,
		WorkDir: cfg.WorkspaceDir,
	})
	if err != nil {
		i.setState(StateDisposed)
		return fmt.Errorf("spawn agent: %w", err)
	}

	client := control.NewClient(cfg.BaseURL())
	readyCfg := retry.Config{Interval: cfg.ReadyInterval, MaxAttempts: cfg.ReadyAttempts}
	if err := client.WaitReady(ctx, readyCfg); err != nil {
		proc.Stop()
		i.setState(StateDisposed)
		return fmt.Errorf("agent control channel not ready: %w", err)
	}

	store, err := transcript.Open(cfg.TranscriptPath)
	if err != nil {
		proc.Stop()
		i.setState(StateDisposed)
		return fmt.Errorf("open transcript store: %w", err)
	}

	i.api = client
	i.proc = proc
	i.store = store
	i.startConsumer(controlSource{client: client})
	i.setState(StateReady)

	slog.Info("Driver: instance ready", "pid", proc.Pid(), "baseURL", cfg.BaseURL())
	return nil
}

// startConsumer launches the event consumer goroutine. The consumer's
// context is owned by the instance, not by any caller: it lives until
// Dispose.
func (i *Instance) startConsumer(source eventSource) {
	ctx, cancel := context.WithCancel(context.Background())
	i.consumerCancel = cancel
	i.consumerDone = make(chan struct{})

	c := &consumer{
		source:   source,
		registry: i.registry,
		dispatch: i.handleEvent,
	}
	go func() {
		defer close(i.consumerDone)
		c.run(ctx)
	}()
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

// checkReady rejects operations on instances that are not in Ready state.
func (i *Instance) checkReady() error {
	switch i.State() {
	case StateReady:
		return nil
	case StateDisposed:
		return ErrDisposed
	default:
		return fmt.Errorf("instance not initialized")
	}
}

// RunSession opens a new session, sends the prompt, and waits for the
// session to settle. The wait ends with the first of: idle, agent error,
// timeout, ctx cancellation, or instance disposal.
func (i *Instance) RunSession(ctx context.Context, prompt string, timeout time.Duration) (RunResult, error) {
	if err := i.checkReady(); err != nil {
		return RunResult{}, err
	}

	sessionID, err := i.api.OpenSession(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("open session: %w", err)
	}
	slog.Info("Driver: session opened", "sessionID", sessionID)

	i.mu.Lock()
	i.sessions[sessionID] = &session{id: sessionID}
	i.mu.Unlock()

	result, err := i.sendAndWait(ctx, sessionID, prompt, timeout)
	i.record(sessionID, prompt, result.LastMessage, err)
	return result, err
}

// SendFollowUp sends another message on an existing session and waits for
// it to settle. Returns the session's last complete message.
func (i *Instance) SendFollowUp(ctx context.Context, sessionID, content string, timeout time.Duration) (string, error) {
	if err := i.checkReady(); err != nil {
		return "", err
	}

	i.mu.Lock()
	_, ok := i.sessions[sessionID]
	i.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown session: %s", sessionID)
	}

	result, err := i.sendAndWait(ctx, sessionID, content, timeout)
	i.record(sessionID, content, result.LastMessage, err)
	return result.LastMessage, err
}

// sendAndWait registers the completion wait before sending so a fast
// terminal event cannot be missed, then sends the message and blocks until
// the wait settles.
func (i *Instance) sendAndWait(ctx context.Context, sessionID, content string, timeout time.Duration) (RunResult, error) {
	i.mu.Lock()
	if s := i.sessions[sessionID]; s != nil {
		s.beginMessage()
	}
	i.mu.Unlock()

	waitCh, err := i.registry.register(ctx, sessionID, timeout)
	if err != nil {
		return RunResult{SessionID: sessionID}, err
	}

	if err := i.api.SendMessage(ctx, sessionID, content); err != nil {
		i.registry.settle(sessionID, fmt.Errorf("send message: %w", err))
		return RunResult{SessionID: sessionID}, <-waitCh
	}

	waitErr := <-waitCh

	i.mu.Lock()
	last := ""
	if s := i.sessions[sessionID]; s != nil {
		last = s.lastMessage
	}
	i.mu.Unlock()

	return RunResult{SessionID: sessionID, LastMessage: last}, waitErr
}

// handleEvent dispatches one event from the consumer. The closed event set
// keeps this switch exhaustive.
func (i *Instance) handleEvent(ev events.Event) {
	switch ev := ev.(type) {
	case events.SessionIdle:
		i.finishSession(ev.SessionID, nil)
	case events.SessionStatus:
		switch ev.Status {
		case events.StatusIdle:
			i.finishSession(ev.SessionID, nil)
		case events.StatusError, events.StatusDisconnected:
			i.finishSession(ev.SessionID, &SessionError{SessionID: ev.SessionID, Status: ev.Status, Detail: ev.Error})
		default:
			slog.Debug("Driver: ignoring session status", "sessionID", ev.SessionID, "status", ev.Status)
		}
	case events.MessagePartUpdated:
		i.applyPart(ev)
	case events.PermissionUpdated:
		i.approvePermission(ev)
	}
}

// finishSession snapshots the session buffer before settling the wait so a
// caller reading the result after completion sees a consistent value.
func (i *Instance) finishSession(sessionID string, outcome error) {
	i.mu.Lock()
	if s := i.sessions[sessionID]; s != nil {
		s.snapshot()
	}
	i.mu.Unlock()

	i.registry.settle(sessionID, outcome)
}

// applyPart routes one message part. Text fragments append to the session
// buffer in arrival order; tool parts only surface tool status.
func (i *Instance) applyPart(ev events.MessagePartUpdated) {
	switch ev.Type {
	case events.PartText:
		i.mu.Lock()
		s := i.sessions[ev.SessionID]
		appended := s != nil && s.appendFragment(ev.MessageID, ev.Text)
		i.mu.Unlock()
		if appended {
			i.observer.OnText(ev.SessionID, ev.Text)
		}
	case events.PartTool:
		i.observer.OnTool(ev.SessionID, ev.Tool, ev.ToolStatus)
	default:
		slog.Debug("Driver: ignoring message part", "sessionID", ev.SessionID, "type", ev.Type)
	}
}

// approvePermission issues the fixed "always" approval from a detached
// goroutine. The call's only sink is the logger: a failure is logged and
// never reaches the event loop or the session.
func (i *Instance) approvePermission(ev events.PermissionUpdated) {
	if ev.SessionID == "" || ev.PermissionID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), approvalTimeout)
		defer cancel()
		if err := i.api.ApprovePermission(ctx, ev.SessionID, ev.PermissionID, control.ResponseAlways); err != nil {
			slog.Warn("Driver: permission approval failed",
				"sessionID", ev.SessionID, "permissionID", ev.PermissionID, "error", err)
			return
		}
		slog.Debug("Driver: permission approved", "sessionID", ev.SessionID, "permissionID", ev.PermissionID)
	}()
}

// record persists the run outcome to the transcript store, when enabled.
func (i *Instance) record(sessionID, prompt, lastMessage string, runErr error) {
	if i.store == nil {
		return
	}
	run := transcript.Run{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Prompt:      prompt,
		LastMessage: lastMessage,
		Status:      runStatus(runErr),
		FinishedAt:  time.Now().UTC(),
	}
	if err := i.store.SaveRun(run); err != nil {
		slog.Warn("Driver: failed to persist run transcript", "sessionID", sessionID, "error", err)
	}
}

func runStatus(err error) string {
	var te *TimeoutError
	switch {
	case err == nil:
		return transcript.StatusSuccess
	case errors.Is(err, ErrCancelled):
		return transcript.StatusCancelled
	case errors.As(err, &te):
		return transcript.StatusTimeout
	default:
		return transcript.StatusError
	}
}

// Dispose tears the instance down: it cancels the event consumer, rejects
// every pending completion with ErrDisposed, stops the agent process, and
// closes the transcript store. Dispose is idempotent.
func (i *Instance) Dispose() error {
	i.mu.Lock()
	if i.state == StateDisposed {
		i.mu.Unlock()
		return nil
	}
	i.state = StateDisposed
	i.mu.Unlock()

	slog.Info("Driver: disposing instance")

	if i.consumerCancel != nil {
		i.consumerCancel()
		<-i.consumerDone
	}

	i.registry.dispose()

	var firstErr error
	if i.proc != nil {
		if err := i.proc.Stop(); err != nil {
			firstErr = fmt.Errorf("stop agent process: %w", err)
		}
	}
	if i.store != nil {
		if err := i.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close transcript store: %w", err)
		}
	}
	return firstErr
}
