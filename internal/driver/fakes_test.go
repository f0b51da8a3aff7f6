package driver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/workspace/agent-driver/internal/events"
)

// streamItem is one scripted delivery from a fake stream: an event or a
// stream failure.
type streamItem struct {
	ev  events.Event
	err error
}

// fakeStream delivers scripted items and unblocks on ctx cancellation.
type fakeStream struct {
	items chan streamItem
}

func newFakeStream(buffer int) *fakeStream {
	return &fakeStream{items: make(chan streamItem, buffer)}
}

func (s *fakeStream) emit(ev events.Event) {
	s.items <- streamItem{ev: ev}
}

func (s *fakeStream) fail(err error) {
	s.items <- streamItem{err: err}
}

func (s *fakeStream) Next(ctx context.Context) (events.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item := <-s.items:
		return item.ev, item.err
	}
}

func (s *fakeStream) Close() error { return nil }

// fakeSource hands out a fixed sequence of subscription results. Once the
// script is exhausted it blocks until ctx is cancelled, mimicking an agent
// that never comes back.
type fakeSource struct {
	mu         sync.Mutex
	script     []func() (eventStream, error)
	subscribes int
	attemptsAt []time.Time
}

func (f *fakeSource) pushStream(s *fakeStream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, func() (eventStream, error) { return s, nil })
}

func (f *fakeSource) pushError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, func() (eventStream, error) { return nil, err })
}

func (f *fakeSource) Subscribe(ctx context.Context) (eventStream, error) {
	f.mu.Lock()
	f.subscribes++
	f.attemptsAt = append(f.attemptsAt, time.Now())
	var next func() (eventStream, error)
	if len(f.script) > 0 {
		next = f.script[0]
		f.script = f.script[1:]
	}
	f.mu.Unlock()

	if next == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return next()
}

func (f *fakeSource) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

// fakeAPI records control-channel calls and returns scripted results.
type fakeAPI struct {
	mu          sync.Mutex
	nextID      string
	openErr     error
	sendErr     error
	approveErr  error
	opened      int
	sent        []string
	approvals   []string
	approveDone chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: "ses_1", approveDone: make(chan struct{}, 16)}
}

func (a *fakeAPI) OpenSession(_ context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openErr != nil {
		return "", a.openErr
	}
	a.opened++
	return a.nextID, nil
}

func (a *fakeAPI) SendMessage(_ context.Context, sessionID, content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return a.sendErr
	}
	a.sent = append(a.sent, sessionID+":"+content)
	return nil
}

func (a *fakeAPI) ApprovePermission(_ context.Context, sessionID, permissionID, response string) error {
	a.mu.Lock()
	err := a.approveErr
	a.approvals = append(a.approvals, sessionID+"/"+permissionID+"/"+response)
	a.mu.Unlock()
	a.approveDone <- struct{}{}
	return err
}

func (a *fakeAPI) approvalCalls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.approvals...)
}

// recordingObserver captures surfaced output for assertions.
type recordingObserver struct {
	mu    sync.Mutex
	texts []string
	tools []string
}

func (o *recordingObserver) OnText(sessionID, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, text)
}

func (o *recordingObserver) OnTool(sessionID, tool, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tools = append(o.tools, tool+"="+status)
}

func (o *recordingObserver) allTexts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.texts...)
}

func (o *recordingObserver) allTools() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.tools...)
}

// newTestInstance wires an instance from fakes, skipping process spawn.
func newTestInstance(api controlAPI, source eventSource, observer Observer) *Instance {
	inst := newInstance(observer)
	inst.api = api
	inst.startConsumer(source)
	inst.setState(StateReady)
	return inst
}

var errStreamBroken = errors.New("stream broken")
