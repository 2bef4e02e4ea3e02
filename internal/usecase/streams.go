package usecase

import (
	"context"
	"fmt"

	"gdsim/internal/domain"
	"gdsim/internal/ports"
	"gdsim/internal/stream"
	"gdsim/internal/turn"
)

func (c *SessionController) sendMessage(text string) {
	s := c.session
	s.turns++
	c.events.TurnCountChanged(s.turns)
	c.appendMessage(domain.SpeakerUser, text)
	c.silence.Cancel()
	c.transition(turn.MessageSent, domain.ReasonMessageSent)

	sessionID := s.id
	c.openStream(streamReply, func(ctx context.Context) (ports.TokenStream, error) {
		return c.service.Speak(ctx, sessionID, text)
	})
}

// aiSpeak lets the AI take its turn after a silence. Overlapping fires are
// dropped, and every precondition is checked again before the stream opens.
func (c *SessionController) aiSpeak() {
	s := c.session
	if c.machine.State() != domain.TurnStateAITurnAssigned || s.aiInFlight {
		return
	}
	s.aiInFlight = true
	if !s.live() || s.endPending || s.stream.Open() || s.floorInFlight {
		s.aiInFlight = false
		return
	}

	c.silence.Cancel()
	c.grace.Cancel()
	c.transition(turn.SilenceElapsed, domain.ReasonSilenceElapsed)

	sessionID := s.id
	c.openStream(streamAI, func(ctx context.Context) (ports.TokenStream, error) {
		return c.service.AISpeak(ctx, sessionID)
	})
}

// openStream marks the stream open and drains it on a worker. Fragments and
// the outcome come back through the inbox.
func (c *SessionController) openStream(kind streamKind, open func(ctx context.Context) (ports.TokenStream, error)) {
	s := c.session
	s.stream = domain.StreamOpen

	epoch := c.epoch
	ctx := c.runCtx
	go func() {
		var result stream.Result
		source, err := open(ctx)
		if err == nil {
			result, err = stream.Consume(ctx, source, func(text string) {
				c.post(func() {
					if c.epoch == epoch {
						c.events.PartialResponse(domain.SpeakerAI, text)
					}
				})
			})
			_ = source.Close()
		}
		c.post(func() {
			if c.epoch != epoch {
				return
			}
			c.finishStream(kind, result, err)
		})
	}()
}

func (c *SessionController) finishStream(kind streamKind, result stream.Result, err error) {
	s := c.session
	s.stream = domain.StreamIdle
	if kind == streamAI {
		s.aiInFlight = false
	}

	speaker := domain.SpeakerAI
	if result.Turn != nil && result.Turn.Speaker != "" {
		speaker = result.Turn.Speaker
	}
	if result.Text != "" || result.Finished() {
		c.recordReply(speaker, result.Text)
	}

	if !s.live() {
		// The session ended while the stream was open.
		s.handRaisePending = false
		if s.awaitingEvaluation {
			c.requestEvaluation(s)
		}
		return
	}
	if err != nil {
		c.streamFailed(kind, err)
		return
	}
	c.streamFinished(result)
}

func (c *SessionController) streamFinished(result stream.Result) {
	s := c.session
	if s.endPending {
		s.endPending = false
		c.endSession(true)
		return
	}

	var outcome domain.TurnResult
	if result.Turn != nil {
		outcome = *result.Turn
	} else {
		c.logger.Warn().Str("session_id", s.id).Msg("stream closed without a terminal event")
	}

	c.appendMessage(domain.SpeakerModerator, outcome.ModeratorMessage)
	c.transition(turn.StreamDone, domain.ReasonResponseFinished)
	if outcome.HandQueuedGranted || s.handRaisePending {
		s.handRaisePending = false
		c.raiseHand()
		return
	}
	c.armSilence()
}

func (c *SessionController) streamFailed(kind streamKind, err error) {
	s := c.session
	errKind := domain.KindOf(err)
	c.logger.Warn().Err(err).Str("stream", string(kind)).Str("kind", string(errKind)).Msg("stream failed")

	switch errKind {
	case domain.KindNotFound:
		c.loseSession(true)
		return
	case domain.KindGone:
		c.loseSession(false)
		return
	}

	if s.endPending {
		s.endPending = false
		s.handRaisePending = false
		c.endSession(true)
		return
	}

	// A conflict on auto-speak means someone else took the turn first.
	conflict := kind == streamAI && errKind == domain.KindConflict
	if !conflict && errKind != domain.KindForbidden {
		if kind == streamAI {
			c.events.SessionError(domain.ErrorCodeAIResponse, fmt.Sprintf("AI response error: %s", err))
		} else {
			c.events.SessionError(domain.ErrorCodeStream, fmt.Sprintf("Stream interrupted: %s. Returning to discussion.", err))
		}
	}

	c.transition(turn.FloorReverted, domain.ReasonFloorReverted)
	if s.handRaisePending {
		s.handRaisePending = false
		c.raiseHand()
		return
	}
	if conflict {
		c.grace.Arm(c.cfg.ConflictGrace, c.armSilence)
		return
	}
	c.armSilence()
}
