package usecase

import (
	"gdsim/internal/domain"
	"gdsim/internal/turn"
)

func (c *SessionController) beginSession(topic string, duration int, result domain.StartResult) {
	c.settlePrevious()
	c.stopTimers()
	c.epoch++
	c.session = newDiscussion(result.SessionID, topic)

	c.transition(turn.Started, domain.ReasonSessionStarted)
	c.events.TurnCountChanged(0)
	c.countdown.Start(duration)
	c.appendMessage(domain.SpeakerModerator, result.Message)
	c.transition(turn.IntroDelivered, domain.ReasonIntroDelivered)
	c.armSilence()

	c.logger.Info().Str("session_id", result.SessionID).Str("topic", topic).Int("duration", duration).Msg("discussion started")
}

func (c *SessionController) resumeSession(snapshot domain.Snapshot) {
	c.settlePrevious()
	c.stopTimers()
	c.epoch++
	s := newDiscussion(snapshot.SessionID, snapshot.Topic)
	s.turns = snapshot.TurnCount
	s.transcript = restoredTranscript(snapshot.Transcript, snapshot.TranscriptLength)
	c.session = s

	c.events.TranscriptRestored(s.topic, s.transcript.Messages())
	c.events.TurnCountChanged(s.turns)

	remaining := snapshot.RemainingSeconds
	if remaining <= 0 {
		remaining = c.cfg.ResumeSeconds
	}
	c.countdown.Start(remaining)
	c.transition(turn.Resumed, domain.ReasonSessionResumed)
	c.armSilence()

	c.logger.Info().Str("session_id", s.id).Int("remaining", remaining).Int("replayed", snapshot.TranscriptLength).Msg("discussion resumed")
}

// appendMessage adds a discrete message to the history and snapshots it.
func (c *SessionController) appendMessage(speaker string, text string) {
	s := c.session
	msg := domain.Message{Speaker: speaker, Text: text, At: c.clock.Now()}
	if !s.transcript.Append(msg) {
		return
	}
	c.events.MessageAppended(msg)
	c.saveSnapshot()
}

// recordReply adds a streamed reply, which the view has already rendered
// fragment by fragment.
func (c *SessionController) recordReply(speaker string, text string) {
	s := c.session
	if s.transcript.Record(domain.Message{Speaker: speaker, Text: text, At: c.clock.Now()}) {
		c.saveSnapshot()
	}
	c.events.ResponseFinished(speaker)
}

func (c *SessionController) saveSnapshot() {
	s := c.session
	if !s.live() || s.id == "" {
		return
	}
	snapshot := s.snapshot(c.countdown.Remaining())
	snapshot.SavedAt = c.clock.Now()
	c.persist.save(snapshot)
}

func (c *SessionController) onCountdownTick(left int) {
	c.events.CountdownTick(left)
}

func (c *SessionController) onCountdownExpired() {
	s := c.session
	if !s.live() {
		return
	}
	if s.stream.Open() {
		s.endPending = true
		s.stream = domain.StreamDraining
		c.silence.Cancel()
		c.logger.Debug().Str("session_id", s.id).Msg("countdown expired with stream open; deferring end")
		return
	}
	c.endSession(true)
}

// endSession terminates the discussion. The evaluation is requested once
// any open stream has settled, or after the end wait elapses.
func (c *SessionController) endSession(auto bool) {
	s := c.session
	if !s.live() {
		return
	}
	s.active = false
	s.ended = true
	s.endPending = false
	s.handRaisePending = false
	c.stopTimers()
	c.persist.clear()

	reason := domain.ReasonSessionEnded
	if auto {
		reason = domain.ReasonSessionExpired
	}
	c.transition(turn.EndRequested, reason)
	c.appendMessage(domain.SpeakerModerator, closingMessage(auto))

	if s.stream.Open() {
		s.stream = domain.StreamDraining
		s.awaitingEvaluation = true
		c.endWait.Arm(c.cfg.EndWait, func() { c.requestEvaluation(s) })
		return
	}
	c.requestEvaluation(s)
}

// settlePrevious closes out an ended discussion still waiting on its stream
// before another one replaces it. The service still gets its end request,
// but the result belongs to the old epoch and is not shown.
func (c *SessionController) settlePrevious() {
	if prev := c.session; prev != nil && prev.awaitingEvaluation {
		c.requestEvaluation(prev)
	}
}

func (c *SessionController) requestEvaluation(s *discussion) {
	if s == nil || s.evaluationRequested {
		return
	}
	s.evaluationRequested = true
	s.awaitingEvaluation = false
	c.endWait.Cancel()

	epoch := c.epoch
	sessionID := s.id
	ctx := c.runCtx
	go func() {
		text, err := c.evaluator.Fetch(ctx, sessionID)
		if err != nil {
			c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("evaluation request failed")
		}
		c.post(func() {
			if c.epoch != epoch {
				return
			}
			c.events.EvaluationReady(text)
		})
	}()
}

// loseSession ends a discussion the service no longer knows. No evaluation
// is requested.
func (c *SessionController) loseSession(announce bool) {
	s := c.session
	if !s.live() {
		return
	}
	s.active = false
	s.ended = true
	s.endPending = false
	s.handRaisePending = false
	c.stopTimers()
	c.persist.clear()
	c.transition(turn.SessionLost, domain.ReasonSessionLost)
	if announce {
		c.events.SessionError(domain.ErrorCodeSessionNotFound, "Session not found on server. Please start a new session.")
	}
	c.logger.Info().Str("session_id", s.id).Msg("session lost")
}
