// Package turn owns the floor-control state of a discussion session.
package turn

import (
	"errors"
	"fmt"

	"gdsim/internal/domain"
)

// ErrInvalidTransition is returned when a trigger does not apply to the
// current state. The state is left unchanged.
var ErrInvalidTransition = errors.New("invalid turn transition")

// Trigger is an input to the state machine.
type Trigger string

const (
	Started        Trigger = "started"
	Resumed        Trigger = "resumed"
	IntroDelivered Trigger = "intro_delivered"
	SilenceElapsed Trigger = "silence_elapsed"
	HandQueued     Trigger = "hand_queued"
	FloorGranted   Trigger = "floor_granted"
	FloorQueued    Trigger = "floor_queued"
	FloorReverted  Trigger = "floor_reverted"
	MessageSent    Trigger = "message_sent"
	StreamDone     Trigger = "stream_done"
	EndRequested   Trigger = "end_requested"
	SessionLost    Trigger = "session_lost"
)

type edge struct {
	from    domain.TurnState
	trigger Trigger
}

var (
	fresh     = []domain.TurnState{domain.TurnStateInactive, domain.TurnStateEnded}
	floorable = []domain.TurnState{domain.TurnStateAITurnAssigned, domain.TurnStateAISpeaking, domain.TurnStateQueued}
	live      = []domain.TurnState{
		domain.TurnStateInactive,
		domain.TurnStateAISpeaking,
		domain.TurnStateAITurnAssigned,
		domain.TurnStateQueued,
		domain.TurnStateUserSpeaking,
	}
)

var transitions = buildTransitions()

func buildTransitions() map[edge]domain.TurnState {
	table := map[edge]domain.TurnState{
		{domain.TurnStateAISpeaking, IntroDelivered}:     domain.TurnStateAITurnAssigned,
		{domain.TurnStateAITurnAssigned, SilenceElapsed}: domain.TurnStateAISpeaking,
		{domain.TurnStateAITurnAssigned, HandQueued}:     domain.TurnStateQueued,
		{domain.TurnStateAISpeaking, HandQueued}:         domain.TurnStateQueued,
		{domain.TurnStateUserSpeaking, MessageSent}:      domain.TurnStateAISpeaking,
		{domain.TurnStateAISpeaking, StreamDone}:         domain.TurnStateAITurnAssigned,
		{domain.TurnStateQueued, StreamDone}:             domain.TurnStateAITurnAssigned,
	}
	for _, from := range fresh {
		table[edge{from, Started}] = domain.TurnStateAISpeaking
		table[edge{from, Resumed}] = domain.TurnStateAITurnAssigned
	}
	for _, from := range floorable {
		table[edge{from, FloorGranted}] = domain.TurnStateUserSpeaking
		table[edge{from, FloorQueued}] = domain.TurnStateQueued
		table[edge{from, FloorReverted}] = domain.TurnStateAITurnAssigned
	}
	for _, from := range live {
		table[edge{from, EndRequested}] = domain.TurnStateEnded
		table[edge{from, SessionLost}] = domain.TurnStateEnded
	}
	return table
}

// Machine holds the current turn state. It is not safe for concurrent use;
// the session controller serializes access on its event loop.
type Machine struct {
	state domain.TurnState
}

func NewMachine() *Machine {
	return &Machine{state: domain.TurnStateInactive}
}

func (m *Machine) State() domain.TurnState {
	return m.state
}

// Next reports the state trigger would lead to without applying it.
func Next(from domain.TurnState, trigger Trigger) (domain.TurnState, bool) {
	to, ok := transitions[edge{from, trigger}]
	return to, ok
}

// Fire applies trigger and returns the new state.
func (m *Machine) Fire(trigger Trigger) (domain.TurnState, error) {
	to, ok := Next(m.state, trigger)
	if !ok {
		return m.state, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, m.state)
	}
	m.state = to
	return to, nil
}

// AcceptsMessage reports whether the human may send a message.
func (m *Machine) AcceptsMessage() bool {
	return AcceptsMessage(m.state)
}

// AcceptsFloorRequest reports whether the human may raise a hand.
func (m *Machine) AcceptsFloorRequest() bool {
	return AcceptsFloorRequest(m.state)
}

func AcceptsMessage(state domain.TurnState) bool {
	return state == domain.TurnStateUserSpeaking
}

func AcceptsFloorRequest(state domain.TurnState) bool {
	return state == domain.TurnStateAISpeaking || state == domain.TurnStateAITurnAssigned
}
