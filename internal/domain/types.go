package domain

import "time"

// TurnState models who currently holds the floor.
type TurnState string

const (
	TurnStateInactive       TurnState = "INACTIVE"
	TurnStateAISpeaking     TurnState = "AI_SPEAKING"
	TurnStateAITurnAssigned TurnState = "AI_TURN_ASSIGNED"
	TurnStateQueued         TurnState = "QUEUED"
	TurnStateUserSpeaking   TurnState = "USER_SPEAKING"
	TurnStateEnded          TurnState = "ENDED"
)

// TurnStates lists every state in declaration order.
var TurnStates = []TurnState{
	TurnStateInactive,
	TurnStateAISpeaking,
	TurnStateAITurnAssigned,
	TurnStateQueued,
	TurnStateUserSpeaking,
	TurnStateEnded,
}

// Terminal reports whether the state only allows a fresh start or resume.
func (s TurnState) Terminal() bool {
	return s == TurnStateEnded
}

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonSessionStarted   StateReason = "session_started"
	ReasonIntroDelivered   StateReason = "intro_delivered"
	ReasonSilenceElapsed   StateReason = "silence_elapsed"
	ReasonHandQueued       StateReason = "hand_queued"
	ReasonFloorGranted     StateReason = "floor_granted"
	ReasonFloorQueued      StateReason = "floor_queued"
	ReasonFloorReverted    StateReason = "floor_reverted"
	ReasonMessageSent      StateReason = "message_sent"
	ReasonResponseFinished StateReason = "response_finished"
	ReasonSessionEnded     StateReason = "session_ended"
	ReasonSessionExpired   StateReason = "session_expired"
	ReasonSessionLost      StateReason = "session_lost"
	ReasonSessionResumed   StateReason = "session_resumed"
)

// ErrorCode identifies user-facing failures.
type ErrorCode string

const (
	ErrorCodeStartup         ErrorCode = "startup"
	ErrorCodeValidation      ErrorCode = "validation"
	ErrorCodeStart           ErrorCode = "start"
	ErrorCodeRaiseHand       ErrorCode = "raise_hand"
	ErrorCodeStream          ErrorCode = "stream"
	ErrorCodeAIResponse      ErrorCode = "ai_response"
	ErrorCodeSessionNotFound ErrorCode = "session_not_found"
)

// StreamPhase is the lifecycle of the single stream a session may hold open.
type StreamPhase string

const (
	StreamIdle StreamPhase = "idle"
	StreamOpen StreamPhase = "open"
	// StreamDraining marks an open stream whose session has ended or is about to.
	StreamDraining StreamPhase = "draining"
)

// Open reports whether a stream currently occupies the floor.
func (p StreamPhase) Open() bool {
	return p == StreamOpen || p == StreamDraining
}

// Well-known speakers. Panel participants use their own names.
const (
	SpeakerUser      = "user"
	SpeakerModerator = "moderator"
	SpeakerAI        = "ai"
)

// Message is one transcript entry.
type Message struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// StreamEventKind distinguishes content fragments from the terminal event.
type StreamEventKind string

const (
	StreamEventFragment StreamEventKind = "token"
	StreamEventDone     StreamEventKind = "done"
)

// StreamEvent is one item of a token stream.
type StreamEvent struct {
	Kind StreamEventKind
	Text string
	Turn *TurnResult
}

// TurnResult is the structured payload of a stream's terminal event.
type TurnResult struct {
	Speaker           string `json:"speaker"`
	ModeratorMessage  string `json:"moderator_message"`
	HandQueuedGranted bool   `json:"hand_queued_granted"`
}

// StartResult is returned by the service when a session is created.
type StartResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// FloorStatus is the server's answer to a floor request.
type FloorStatus string

const (
	FloorGranted        FloorStatus = "granted"
	FloorQueued         FloorStatus = "queued"
	FloorAlreadyGranted FloorStatus = "already_granted"
)

// RaiseHandResult is returned by the service for a floor request.
type RaiseHandResult struct {
	Status           FloorStatus `json:"status"`
	ModeratorMessage string      `json:"moderator_message"`
}

// Evaluation is the final assessment of the human participant.
type Evaluation struct {
	Text string `json:"evaluation"`
}

// Snapshot is the durable record used to resume an interrupted session.
type Snapshot struct {
	SessionID        string    `json:"sessionId"`
	Topic            string    `json:"topic"`
	Transcript       []Message `json:"transcript"`
	TurnCount        int       `json:"turnCount"`
	RemainingSeconds int       `json:"remainingTime"`
	TranscriptLength int       `json:"lastMsgCount"`
	SavedAt          time.Time `json:"savedAt"`
}

// Status summarizes the controller for surfaces.
type Status struct {
	State            TurnState   `json:"state"`
	Active           bool        `json:"active"`
	Ended            bool        `json:"ended"`
	SessionID        string      `json:"sessionId,omitempty"`
	Topic            string      `json:"topic,omitempty"`
	TurnCount        int         `json:"turnCount"`
	RemainingSeconds int         `json:"remainingSeconds"`
	Stream           StreamPhase `json:"stream"`
	HandRaisePending bool        `json:"handRaisePending"`
	EndPending       bool        `json:"endPending"`
	TranscriptLength int         `json:"transcriptLength"`
	Message          string      `json:"message,omitempty"`
}
