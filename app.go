package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"gdsim/internal/bootstrap"
	"gdsim/internal/config"
	"gdsim/internal/domain"
	"gdsim/internal/usecase"
)

const (
	eventState      = "gdsim:state"
	eventMessage    = "gdsim:message"
	eventPartial    = "gdsim:partial"
	eventStreamEnd  = "gdsim:stream-end"
	eventTranscript = "gdsim:transcript"
	eventTick       = "gdsim:tick"
	eventTurns      = "gdsim:turns"
	eventError      = "gdsim:error"
	eventEvaluation = "gdsim:evaluation"
)

const loopShutdownTimeout = 5 * time.Second

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	services   bootstrap.Services
	cfg        config.Config
	bootErr    error

	stopLoop context.CancelFunc
	loopDone chan struct{}
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.controller = services.Controller

	loopCtx, cancel := context.WithCancel(context.Background())
	a.stopLoop = cancel
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		if err := a.controller.Run(loopCtx); err != nil {
			log.Error().Err(err).Msg("session loop stopped")
		}
	}()

	a.SessionStateChanged(domain.TurnStateInactive, "")
	go a.restore()
}

// restore resumes an interrupted discussion left by a previous launch.
func (a *App) restore() {
	resumed, err := a.controller.Resume(a.ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not reconcile stored session")
		return
	}
	if resumed {
		log.Info().Msg("resumed interrupted discussion")
	}
}

func (a *App) shutdown(_ context.Context) {
	if a.stopLoop != nil && !bootstrap.Shutdown(a.stopLoop, a.loopDone, loopShutdownTimeout) {
		log.Warn().Msg("session loop did not stop in time")
	}
	if err := a.services.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close snapshot store")
	}
}

// StartDiscussion opens a new discussion on topic lasting duration seconds.
func (a *App) StartDiscussion(topic string, duration int) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Start(a.ctx, topic, duration); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// RaiseHand asks the moderator for the floor.
func (a *App) RaiseHand() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.RaiseHand(a.ctx); err != nil {
		if errors.Is(err, usecase.ErrNoActiveSession) {
			return nil
		}
		return err
	}
	return nil
}

// SendMessage speaks while the participant holds the floor.
func (a *App) SendMessage(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SendMessage(a.ctx, text)
}

// EndDiscussion closes the discussion and requests the evaluation.
func (a *App) EndDiscussion() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.End(a.ctx)
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{State: domain.TurnStateInactive, Stream: domain.StreamIdle}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// GetTranscript returns the discussion history.
func (a *App) GetTranscript() []domain.Message {
	if a.controller == nil {
		return nil
	}
	return a.controller.Transcript()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"server":          a.cfg.Server.BaseURL,
		"store":           a.cfg.Store.Driver,
		"minDuration":     strconv.Itoa(a.cfg.Session.MinDuration),
		"defaultDuration": strconv.Itoa(a.cfg.Session.DefaultDuration),
		"configFile":      a.cfg.File,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits turn state updates to the frontend.
func (a *App) SessionStateChanged(state domain.TurnState, reason domain.StateReason) {
	a.emit(eventState, map[string]any{
		"state":         string(state),
		"reason":        string(reason),
		"message":       sessionReasonMessage(reason),
		"acceptsInput":  state == domain.TurnStateUserSpeaking,
		"canRaiseHand":  state == domain.TurnStateAISpeaking || state == domain.TurnStateAITurnAssigned,
		"sessionActive": state != domain.TurnStateInactive && !state.Terminal(),
	})
}

// MessageAppended emits a discrete transcript entry.
func (a *App) MessageAppended(msg domain.Message) {
	a.emit(eventMessage, msg)
}

// TranscriptRestored replaces the rendered history after a resume.
func (a *App) TranscriptRestored(topic string, transcript []domain.Message) {
	a.emit(eventTranscript, map[string]any{
		"topic":    topic,
		"messages": transcript,
	})
}

// PartialResponse emits streamed reply text.
func (a *App) PartialResponse(speaker string, text string) {
	a.emit(eventPartial, map[string]string{"speaker": speaker, "text": text})
}

// ResponseFinished closes the streamed reply bubble.
func (a *App) ResponseFinished(speaker string) {
	a.emit(eventStreamEnd, map[string]string{"speaker": speaker})
}

func (a *App) CountdownTick(secondsLeft int) {
	a.emit(eventTick, map[string]int{"secondsLeft": secondsLeft})
}

func (a *App) TurnCountChanged(turns int) {
	a.emit(eventTurns, map[string]int{"turns": turns})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// EvaluationReady emits the closing assessment.
func (a *App) EvaluationReady(text string) {
	a.emit(eventEvaluation, map[string]string{"text": text})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func sessionReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonSessionStarted:
		return "Discussion started"
	case domain.ReasonIntroDelivered:
		return "The panel is listening. Raise your hand to speak."
	case domain.ReasonSilenceElapsed:
		return "The panel is responding"
	case domain.ReasonHandQueued:
		return "Hand raised; waiting for the speaker to finish"
	case domain.ReasonFloorGranted:
		return "You have the floor"
	case domain.ReasonFloorQueued:
		return "You are in the queue"
	case domain.ReasonFloorReverted:
		return "Back to open discussion"
	case domain.ReasonMessageSent:
		return "Message sent. Awaiting response..."
	case domain.ReasonResponseFinished:
		return "Response finished"
	case domain.ReasonSessionEnded:
		return "Discussion ended"
	case domain.ReasonSessionExpired:
		return "Time is up"
	case domain.ReasonSessionLost:
		return "Session no longer available"
	case domain.ReasonSessionResumed:
		return "Discussion resumed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeValidation:
		if detail != "" {
			return detail
		}
		return "Invalid input"
	case domain.ErrorCodeStart:
		return "Could not start session"
	case domain.ErrorCodeRaiseHand:
		return "Hand raise failed"
	case domain.ErrorCodeStream:
		return "Stream interrupted"
	case domain.ErrorCodeAIResponse:
		return "AI response error"
	case domain.ErrorCodeSessionNotFound:
		return "Session not found"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
