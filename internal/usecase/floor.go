package usecase

import (
	"fmt"

	"gdsim/internal/domain"
	"gdsim/internal/turn"
)

// raiseHand requests the floor. While a stream is open no request is sent;
// the intent is recorded and honored once the stream settles.
func (c *SessionController) raiseHand() {
	s := c.session
	if !s.live() || !c.machine.AcceptsFloorRequest() {
		return
	}
	if s.stream.Open() {
		s.handRaisePending = true
		c.transition(turn.HandQueued, domain.ReasonHandQueued)
		return
	}
	c.requestFloor()
}

func (c *SessionController) requestFloor() {
	s := c.session
	if s.floorInFlight {
		return
	}
	s.floorInFlight = true
	c.silence.Cancel()
	c.queuedRetry.Cancel()

	epoch := c.epoch
	sessionID := s.id
	ctx := c.runCtx
	go func() {
		result, err := c.service.RaiseHand(ctx, sessionID)
		c.post(func() {
			if c.epoch != epoch {
				return
			}
			c.floorAnswered(result, err)
		})
	}()
}

func (c *SessionController) floorAnswered(result domain.RaiseHandResult, err error) {
	s := c.session
	s.floorInFlight = false
	if !s.live() {
		return
	}

	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindNotFound:
			c.loseSession(true)
		case domain.KindGone:
			c.loseSession(false)
		case domain.KindConflict, domain.KindForbidden:
			c.logger.Debug().Err(err).Msg("floor request refused")
			c.revertFloor()
		default:
			c.events.SessionError(domain.ErrorCodeRaiseHand, fmt.Sprintf("Hand raise failed: %s", err))
			c.revertFloor()
		}
		return
	}

	switch result.Status {
	case domain.FloorGranted:
		c.appendMessage(domain.SpeakerModerator, result.ModeratorMessage)
		c.transition(turn.FloorGranted, domain.ReasonFloorGranted)
	case domain.FloorAlreadyGranted:
		c.transition(turn.FloorGranted, domain.ReasonFloorGranted)
	case domain.FloorQueued:
		c.transition(turn.FloorQueued, domain.ReasonFloorQueued)
		c.queuedRetry.Arm(c.cfg.QueuedRetry, c.retryQueuedFloor)
	default:
		c.logger.Warn().Str("status", string(result.Status)).Msg("unknown floor status")
		c.revertFloor()
	}
}

// retryQueuedFloor re-asks for a floor the service queued while nothing was
// speaking, since no stream completion will pick the request up.
func (c *SessionController) retryQueuedFloor() {
	s := c.session
	if !s.live() || s.endPending || s.stream.Open() || c.machine.State() != domain.TurnStateQueued {
		return
	}
	c.requestFloor()
}

func (c *SessionController) revertFloor() {
	c.transition(turn.FloorReverted, domain.ReasonFloorReverted)
	c.armSilence()
}

// armSilence (re)starts the silence timer when the AI is waiting on the
// participant and nothing else is in flight.
func (c *SessionController) armSilence() {
	c.silence.Cancel()
	s := c.session
	if !s.live() || s.endPending || s.stream.Open() || s.floorInFlight {
		return
	}
	if c.machine.State() != domain.TurnStateAITurnAssigned {
		return
	}
	delay := c.silence.Arm()
	c.logger.Debug().Dur("delay", delay).Msg("silence timer armed")
}

func (c *SessionController) onSilence() {
	s := c.session
	if !s.live() || c.machine.State() != domain.TurnStateAITurnAssigned {
		return
	}
	c.aiSpeak()
}
