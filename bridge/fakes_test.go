package bridge

import (
	"context"
	"sync"

	"github.com/keerthikanthn/streambridge/streams"
)

// eventLog records lifecycle events across doubles so tests can assert
// ordering.
type eventLog struct {
	mu    sync.Mutex
	names []string
}

func (e *eventLog) add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = append(e.names, name)
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.names...)
}

// fakeSubscription records demand requests and cancellations.
type fakeSubscription struct {
	mu        sync.Mutex
	requested []int64
	cancels   int
	ev        *eventLog
}

func (f *fakeSubscription) Request(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, n)
}

func (f *fakeSubscription) Cancel() {
	f.mu.Lock()
	f.cancels++
	ev := f.ev
	f.mu.Unlock()
	if ev != nil {
		ev.add("cancel")
	}
}

func (f *fakeSubscription) requests() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.requested...)
}

func (f *fakeSubscription) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

// fakeSource captures every subscriber handed to it. Unless manual is set
// it completes the handshake immediately with a fresh fakeSubscription.
type fakeSource struct {
	mu     sync.Mutex
	manual bool
	ev     *eventLog
	subs   []streams.Subscriber
	gates  []*fakeSubscription
}

func (f *fakeSource) Subscribe(sub streams.Subscriber) {
	f.mu.Lock()
	gate := &fakeSubscription{ev: f.ev}
	f.subs = append(f.subs, sub)
	f.gates = append(f.gates, gate)
	manual, ev := f.manual, f.ev
	f.mu.Unlock()
	if ev != nil {
		ev.add("subscribe")
	}
	if !manual {
		sub.OnSubscribe(gate)
	}
}

func (f *fakeSource) last() (streams.Subscriber, *fakeSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil, nil
	}
	return f.subs[len(f.subs)-1], f.gates[len(f.gates)-1]
}

func (f *fakeSource) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// recordingSubscriber records every signal. failOn makes OnNext return
// failErr for a matching payload; panicOn makes it panic.
type recordingSubscriber struct {
	mu         sync.Mutex
	sub        streams.Subscription
	subscribes int
	payloads   []any
	errs       []error
	completes  int
	failOn     any
	failErr    error
	panicOn    any
}

func (r *recordingSubscriber) OnSubscribe(sub streams.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sub = sub
	r.subscribes++
}

func (r *recordingSubscriber) OnNext(msg *streams.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, msg.Payload())
	if r.panicOn != nil && msg.Payload() == r.panicOn {
		panic("subscriber exploded")
	}
	if r.failOn != nil && msg.Payload() == r.failOn {
		return r.failErr
	}
	return nil
}

func (r *recordingSubscriber) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingSubscriber) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
}

func (r *recordingSubscriber) seen() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.payloads...)
}

func (r *recordingSubscriber) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recordingSubscriber) completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes
}

func (r *recordingSubscriber) subscribed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribes
}

// lifecycleSubscriber is a raw subscriber with a start/stop capability.
type lifecycleSubscriber struct {
	recordingSubscriber
	lmu      sync.Mutex
	running  bool
	startErr error
	stopErr  error
	ev       *eventLog
}

func (s *lifecycleSubscriber) Start() error {
	if s.ev != nil {
		s.ev.add("subscriber start")
	}
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	return nil
}

func (s *lifecycleSubscriber) Stop() error {
	if s.ev != nil {
		s.ev.add("subscriber stop")
	}
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.running = false
	return s.stopErr
}

func (s *lifecycleSubscriber) IsRunning() bool {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	return s.running
}

// recordingHandler remembers the payloads it handled and can fail on one.
type recordingHandler struct {
	mu       sync.Mutex
	payloads []any
	failOn   any
	failErr  error
}

func (h *recordingHandler) Handle(msg *streams.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, msg.Payload())
	if h.failOn != nil && msg.Payload() == h.failOn {
		return h.failErr
	}
	return nil
}

func (h *recordingHandler) seen() []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]any(nil), h.payloads...)
}

// lifecycleHandler adds a start/stop capability to recordingHandler.
type lifecycleHandler struct {
	recordingHandler
	lmu      sync.Mutex
	running  bool
	startErr error
	stopErr  error
}

func (h *lifecycleHandler) Start() error {
	h.lmu.Lock()
	defer h.lmu.Unlock()
	if h.startErr != nil {
		return h.startErr
	}
	h.running = true
	return nil
}

func (h *lifecycleHandler) Stop() error {
	h.lmu.Lock()
	defer h.lmu.Unlock()
	h.running = false
	return h.stopErr
}

func (h *lifecycleHandler) IsRunning() bool {
	h.lmu.Lock()
	defer h.lmu.Unlock()
	return h.running
}

// routingHandler exposes an output channel through the Producer capability.
type routingHandler struct {
	recordingHandler
	out streams.Channel
}

func (h *routingHandler) Output() streams.Channel { return h.out }

// subscriberHandler implements both Handler and streams.Subscriber with
// its own demand policy; constructors must use it directly.
type subscriberHandler struct {
	recordingSubscriber
	demand int64
}

func (s *subscriberHandler) Handle(msg *streams.Message) error { return s.OnNext(msg) }

func (s *subscriberHandler) OnSubscribe(sub streams.Subscription) {
	s.recordingSubscriber.OnSubscribe(sub)
	sub.Request(s.demand)
}

// recordingErrorHandler collects every reported error.
type recordingErrorHandler struct {
	mu   sync.Mutex
	errs []error
}

func (h *recordingErrorHandler) HandleError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *recordingErrorHandler) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

// fakeChannel records sent messages, or rejects them when err is set.
type fakeChannel struct {
	mu   sync.Mutex
	msgs []*streams.Message
	err  error
}

func (c *fakeChannel) Send(_ context.Context, msg *streams.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeChannel) sent() []*streams.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*streams.Message(nil), c.msgs...)
}

type logEntry struct {
	level string
	msg   string
}

// recordingLogger captures log calls at every level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("error", msg) }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}
