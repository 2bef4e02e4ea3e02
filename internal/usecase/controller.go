package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gdsim/internal/clock"
	"gdsim/internal/domain"
	"gdsim/internal/ports"
	"gdsim/internal/recovery"
	"gdsim/internal/timer"
	"gdsim/internal/turn"
)

var (
	ErrNoActiveSession   = errors.New("no active discussion session")
	ErrFloorNotHeld      = errors.New("participant does not hold the floor")
	ErrSessionInProgress = errors.New("a discussion session is already in progress")
	ErrControllerStopped = errors.New("session controller stopped")
)

// Config controls turn-taking timing.
type Config struct {
	MinDuration   int
	ResumeSeconds int
	SilenceDelay  time.Duration
	SilenceJitter time.Duration
	ConflictGrace time.Duration
	QueuedRetry   time.Duration
	EndWait       time.Duration
	Rand          *rand.Rand
	Logger        *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.MinDuration <= 0 {
		c.MinDuration = 10
	}
	if c.ResumeSeconds <= 0 {
		c.ResumeSeconds = 30
	}
	if c.SilenceDelay <= 0 {
		c.SilenceDelay = 5 * time.Second
	}
	if c.SilenceJitter <= 0 {
		c.SilenceJitter = time.Second
	}
	if c.ConflictGrace <= 0 {
		c.ConflictGrace = 50 * time.Millisecond
	}
	if c.QueuedRetry <= 0 {
		c.QueuedRetry = 2 * time.Second
	}
	if c.EndWait <= 0 {
		c.EndWait = 8 * time.Second
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Reconciler decides whether a stored session may be resumed.
type Reconciler interface {
	Reconcile(ctx context.Context) (domain.Snapshot, recovery.Outcome, error)
}

// SessionController orchestrates one discussion at a time. Every state
// change happens on the goroutine running Run; commands, timer fires, and
// network completions reach it through the inbox. EventSink methods are
// invoked from that goroutine and must not call back into the controller.
type SessionController struct {
	service    ports.DiscussionService
	reconciler Reconciler
	events     ports.EventSink
	clock      clock.Clock
	evaluator  evaluationFetcher
	persist    *persister
	cfg        Config
	logger     zerolog.Logger

	inbox   chan func()
	stopped chan struct{}
	runOnce sync.Once

	mu       sync.Mutex
	runCtx   context.Context
	epoch    uint64
	starting bool
	session  *discussion
	machine  *turn.Machine

	countdown   *timer.Countdown
	silence     *timer.Silence
	grace       *timer.OneShot
	queuedRetry *timer.OneShot
	endWait     *timer.OneShot
}

func NewSessionController(
	service ports.DiscussionService,
	store ports.SnapshotStore,
	reconciler Reconciler,
	events ports.EventSink,
	clk clock.Clock,
	cfg Config,
) *SessionController {
	if clk == nil {
		clk = clock.Real()
	}
	cfg = cfg.withDefaults()
	logger := log.With().Str("component", "session").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "session").Logger()
	}

	c := &SessionController{
		service:    service,
		reconciler: reconciler,
		events:     events,
		clock:      clk,
		evaluator:  newEvaluationFetcher(service),
		persist:    newPersister(store, logger),
		cfg:        cfg,
		logger:     logger,
		inbox:      make(chan func(), 64),
		stopped:    make(chan struct{}),
		runCtx:     context.Background(),
		machine:    turn.NewMachine(),
	}

	dispatch := func(fn func()) { c.post(fn) }
	c.countdown = timer.NewCountdown(clk, dispatch, c.onCountdownTick, c.onCountdownExpired)
	c.silence = timer.NewSilence(clk, dispatch, cfg.SilenceDelay, cfg.SilenceJitter, cfg.Rand, c.onSilence)
	c.grace = timer.NewOneShot(clk, dispatch)
	c.queuedRetry = timer.NewOneShot(clk, dispatch)
	c.endWait = timer.NewOneShot(clk, dispatch)
	return c
}

// Run executes the controller loop until ctx is cancelled. Cancellation also
// aborts in-flight requests. A stored snapshot is left in place so the
// session can be resumed later.
func (c *SessionController) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("session controller already running")
	}

	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	persistDone := make(chan struct{})
	go func() {
		c.persist.run()
		close(persistDone)
	}()
	defer func() {
		close(c.stopped)
		c.persist.close()
		<-persistDone
	}()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.stopTimers()
			c.mu.Unlock()
			return nil
		case fn := <-c.inbox:
			c.mu.Lock()
			fn()
			c.mu.Unlock()
		}
	}
}

// post queues fn for the loop. It reports false once the loop has stopped.
func (c *SessionController) post(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (c *SessionController) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case c.inbox <- wrapped:
	case <-c.stopped:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start creates a new discussion on the service and opens the floor.
func (c *SessionController) Start(ctx context.Context, topic string, duration int) error {
	topic = strings.TrimSpace(topic)
	if err := validateStart(topic, duration, c.cfg.MinDuration); err != nil {
		_ = c.call(ctx, func() { c.events.SessionError(domain.ErrorCodeValidation, err.Error()) })
		return err
	}

	var busy error
	if err := c.call(ctx, func() { busy = c.reserveStart() }); err != nil {
		return err
	}
	if busy != nil {
		return busy
	}

	result, err := c.service.Start(ctx, topic, duration)
	if callErr := c.call(context.WithoutCancel(ctx), func() {
		c.starting = false
		if err != nil {
			c.events.SessionError(domain.ErrorCodeStart, fmt.Sprintf("Could not start session: %s", err))
			return
		}
		c.beginSession(topic, duration, result)
	}); callErr != nil {
		return callErr
	}
	return err
}

// Resume reinstates a stored session when the service still knows it.
func (c *SessionController) Resume(ctx context.Context) (bool, error) {
	if c.reconciler == nil {
		return false, nil
	}

	var busy error
	if err := c.call(ctx, func() { busy = c.reserveStart() }); err != nil {
		return false, err
	}
	if busy != nil {
		return false, busy
	}

	snapshot, outcome, err := c.reconciler.Reconcile(ctx)
	c.logger.Debug().Str("outcome", string(outcome)).Msg("reconciled stored session")

	resumed := false
	if callErr := c.call(context.WithoutCancel(ctx), func() {
		c.starting = false
		if err == nil && outcome == recovery.OutcomeResumable {
			c.resumeSession(snapshot)
			resumed = true
		}
	}); callErr != nil {
		return false, callErr
	}
	return resumed, err
}

// RaiseHand asks for the floor. Requests outside the accepted states are
// ignored.
func (c *SessionController) RaiseHand(ctx context.Context) error {
	var result error
	err := c.call(ctx, func() {
		if !c.session.live() {
			result = ErrNoActiveSession
			return
		}
		c.raiseHand()
	})
	if err != nil {
		return err
	}
	return result
}

// SendMessage speaks while the participant holds the floor.
func (c *SessionController) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var result error
	err := c.call(ctx, func() {
		switch {
		case !c.session.live():
			result = ErrNoActiveSession
		case !c.machine.AcceptsMessage() || c.session.stream.Open():
			result = ErrFloorNotHeld
		default:
			c.sendMessage(text)
		}
	})
	if err != nil {
		return err
	}
	return result
}

// End closes the discussion and requests the evaluation. Ending twice is a
// no-op.
func (c *SessionController) End(ctx context.Context) error {
	return c.call(ctx, func() { c.endSession(false) })
}

// Status returns the current controller view.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		State:  c.machine.State(),
		Stream: domain.StreamIdle,
	}
	s := c.session
	if s == nil {
		return status
	}
	status.Active = s.active
	status.Ended = s.ended
	status.SessionID = s.id
	status.Topic = s.topic
	status.TurnCount = s.turns
	status.RemainingSeconds = c.countdown.Remaining()
	status.Stream = s.stream
	status.HandRaisePending = s.handRaisePending
	status.EndPending = s.endPending
	status.TranscriptLength = s.transcript.Len()
	return status
}

// Transcript returns a copy of the current history.
func (c *SessionController) Transcript() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return c.session.transcript.Messages()
}

func validateStart(topic string, duration int, minDuration int) error {
	if topic == "" {
		return &domain.ValidationError{Field: "topic", Reason: "Please enter a discussion topic."}
	}
	if duration < minDuration {
		return &domain.ValidationError{
			Field:  "duration",
			Reason: fmt.Sprintf("Duration must be at least %d seconds.", minDuration),
		}
	}
	return nil
}

func (c *SessionController) reserveStart() error {
	if c.starting || c.session.live() {
		return ErrSessionInProgress
	}
	c.starting = true
	return nil
}

// transition fires trigger and announces the new state when it changed.
func (c *SessionController) transition(trigger turn.Trigger, reason domain.StateReason) bool {
	from := c.machine.State()
	to, err := c.machine.Fire(trigger)
	if err != nil {
		c.logger.Debug().Err(err).Msg("transition rejected")
		return false
	}
	if to != from {
		c.events.SessionStateChanged(to, reason)
	}
	return true
}

func (c *SessionController) stopTimers() {
	c.countdown.Stop()
	c.silence.Cancel()
	c.grace.Cancel()
	c.queuedRetry.Cancel()
	c.endWait.Cancel()
}
