package usecase

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gdsim/internal/clock"
	"gdsim/internal/domain"
	"gdsim/internal/ports"
	"gdsim/internal/recovery"
	"gdsim/internal/store"
)

type raiseReply struct {
	result domain.RaiseHandResult
	err    error
}

type fakeService struct {
	mu sync.Mutex

	startResult domain.StartResult
	startErr    error
	startCalls  int

	raiseReplies []raiseReply
	raiseCalls   int

	openErrs      []error
	streams       []*fakeTokenStream
	speakMessages []string
	aiCalls       int
	open          int
	maxOpen       int

	evaluation string
	endErr     error
	endIDs     []string
}

func (f *fakeService) Start(_ context.Context, _ string, _ int) (domain.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startResult, f.startErr
}

func (f *fakeService) RaiseHand(_ context.Context, _ string) (domain.RaiseHandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raiseCalls++
	if len(f.raiseReplies) == 0 {
		return domain.RaiseHandResult{}, errors.New("no raise-hand reply scripted")
	}
	reply := f.raiseReplies[0]
	f.raiseReplies = f.raiseReplies[1:]
	return reply.result, reply.err
}

func (f *fakeService) Speak(_ context.Context, _ string, message string) (ports.TokenStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speakMessages = append(f.speakMessages, message)
	return f.openLocked()
}

func (f *fakeService) AISpeak(_ context.Context, _ string) (ports.TokenStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aiCalls++
	return f.openLocked()
}

func (f *fakeService) openLocked() (ports.TokenStream, error) {
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := &fakeTokenStream{svc: f, events: make(chan domain.StreamEvent, 16)}
	f.streams = append(f.streams, s)
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	return s, nil
}

func (f *fakeService) End(_ context.Context, sessionID string) (domain.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endIDs = append(f.endIDs, sessionID)
	return domain.Evaluation{Text: f.evaluation}, f.endErr
}

func (f *fakeService) scriptRaise(replies ...raiseReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raiseReplies = append(f.raiseReplies, replies...)
}

func (f *fakeService) scriptOpenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErrs = append(f.openErrs, err)
}

type serviceCounts struct {
	start, raise, ai, speak, end, streams, maxOpen int
}

func (f *fakeService) counts() serviceCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return serviceCounts{
		start:   f.startCalls,
		raise:   f.raiseCalls,
		ai:      f.aiCalls,
		speak:   len(f.speakMessages),
		end:     len(f.endIDs),
		streams: len(f.streams),
		maxOpen: f.maxOpen,
	}
}

func (f *fakeService) ended() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.endIDs...)
}

func (f *fakeService) setStartResult(result domain.StartResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startResult = result
}

func (f *fakeService) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.speakMessages...)
}

func (f *fakeService) stream(i int) *fakeTokenStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.streams) {
		return nil
	}
	return f.streams[i]
}

type fakeTokenStream struct {
	svc    *fakeService
	events chan domain.StreamEvent

	mu       sync.Mutex
	err      error
	finished bool
	closed   bool
}

func (s *fakeTokenStream) Events() <-chan domain.StreamEvent { return s.events }

func (s *fakeTokenStream) Wait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeTokenStream) Close() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if !already {
		s.svc.mu.Lock()
		s.svc.open--
		s.svc.mu.Unlock()
	}
	return nil
}

func (s *fakeTokenStream) fragment(text string) {
	s.events <- domain.StreamEvent{Kind: domain.StreamEventFragment, Text: text}
}

func (s *fakeTokenStream) done(result domain.TurnResult) {
	s.events <- domain.StreamEvent{Kind: domain.StreamEventDone, Turn: &result}
	s.finish(nil)
}

func (s *fakeTokenStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.events)
}

type fakeReconciler struct {
	snapshot domain.Snapshot
	outcome  recovery.Outcome
	err      error
}

func (f *fakeReconciler) Reconcile(context.Context) (domain.Snapshot, recovery.Outcome, error) {
	return f.snapshot, f.outcome, f.err
}

type stateEvent struct {
	state  domain.TurnState
	reason domain.StateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu sync.Mutex

	states      []stateEvent
	messages    []domain.Message
	restored    [][]domain.Message
	partials    []string
	finished    []string
	ticks       []int
	turns       []int
	errors      []errEvent
	evaluations []string
}

func (f *fakeEventSink) SessionStateChanged(state domain.TurnState, reason domain.StateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) MessageAppended(msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *fakeEventSink) TranscriptRestored(_ string, transcript []domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, transcript)
}

func (f *fakeEventSink) PartialResponse(_ string, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, text)
}

func (f *fakeEventSink) ResponseFinished(speaker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, speaker)
}

func (f *fakeEventSink) CountdownTick(secondsLeft int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, secondsLeft)
}

func (f *fakeEventSink) TurnCountChanged(turns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turns)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) EvaluationReady(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluations = append(f.evaluations, text)
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotMessages() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.messages...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotEvaluations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evaluations...)
}

func (f *fakeEventSink) snapshotPartials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.partials...)
}

type harness struct {
	t          *testing.T
	clock      *clock.Fake
	service    *fakeService
	store      *store.MemoryStore
	events     *fakeEventSink
	controller *SessionController
}

func newHarness(t *testing.T, reconciler Reconciler) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		clock: clock.NewFake(time.Date(2026, 2, 3, 14, 0, 0, 0, time.UTC)),
		service: &fakeService{
			startResult: domain.StartResult{SessionID: "s-1", Message: "Welcome to today's discussion."},
			evaluation:  "Clear arguments, good listening.",
		},
		store:  store.NewMemoryStore(),
		events: &fakeEventSink{},
	}
	logger := zerolog.Nop()
	h.controller = NewSessionController(h.service, h.store, reconciler, h.events, h.clock, Config{
		Rand:   rand.New(rand.NewSource(11)),
		Logger: &logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.controller.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// sync waits until the loop has processed everything queued so far.
func (h *harness) sync() {
	h.t.Helper()
	if err := h.controller.call(context.Background(), func() {}); err != nil {
		h.t.Fatalf("sync failed: %v", err)
	}
}

// advance moves the fake clock in small steps so timers re-armed on the
// loop are registered before the next step.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	const step = 50 * time.Millisecond
	for d > 0 {
		next := step
		if d < next {
			next = d
		}
		h.clock.Advance(next)
		h.sync()
		d -= next
	}
}

func (h *harness) eventually(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.sync()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) start(topic string, duration int) {
	h.t.Helper()
	if err := h.controller.Start(context.Background(), topic, duration); err != nil {
		h.t.Fatalf("start failed: %v", err)
	}
}

func (h *harness) waitState(want domain.TurnState) {
	h.t.Helper()
	h.eventually("state "+string(want), func() bool { return h.controller.Status().State == want })
}

// openAIStream lets the silence timer elapse and returns the AI stream.
func (h *harness) openAIStream() *fakeTokenStream {
	h.t.Helper()
	before := h.service.counts().streams
	const step = 50 * time.Millisecond
	for waited := time.Duration(0); h.controller.Status().State != domain.TurnStateAISpeaking; waited += step {
		if waited > 15*time.Second {
			h.t.Fatalf("silence timer never fired")
		}
		h.advance(step)
	}
	h.eventually("ai stream", func() bool { return h.service.counts().streams == before+1 })
	return h.service.stream(before)
}

func (h *harness) storedSnapshot() (domain.Snapshot, bool) {
	h.t.Helper()
	snapshot, ok, err := h.store.Load(context.Background())
	if err != nil {
		h.t.Fatalf("load snapshot: %v", err)
	}
	return snapshot, ok
}
