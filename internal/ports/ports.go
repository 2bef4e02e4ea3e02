package ports

import (
	"context"

	"gdsim/internal/domain"
)

// TokenStream is an open streaming response from the discussion service.
type TokenStream interface {
	Events() <-chan domain.StreamEvent
	Wait() error
	Close() error
}

// DiscussionService is the remote service that hosts discussion sessions.
type DiscussionService interface {
	Start(ctx context.Context, topic string, duration int) (domain.StartResult, error)
	RaiseHand(ctx context.Context, sessionID string) (domain.RaiseHandResult, error)
	Speak(ctx context.Context, sessionID string, message string) (TokenStream, error)
	AISpeak(ctx context.Context, sessionID string) (TokenStream, error)
	End(ctx context.Context, sessionID string) (domain.Evaluation, error)
}

// SessionProber checks whether the service still knows a session.
type SessionProber interface {
	Probe(ctx context.Context, sessionID string) error
}

// SnapshotStore persists the single resumable session record.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot domain.Snapshot) error
	Load(ctx context.Context) (domain.Snapshot, bool, error)
	Clear(ctx context.Context) error
}

// EventSink emits controller state/events to the view.
type EventSink interface {
	SessionStateChanged(state domain.TurnState, reason domain.StateReason)
	MessageAppended(msg domain.Message)
	TranscriptRestored(topic string, transcript []domain.Message)
	PartialResponse(speaker string, text string)
	ResponseFinished(speaker string)
	CountdownTick(secondsLeft int)
	TurnCountChanged(turns int)
	SessionError(code domain.ErrorCode, detail string)
	EvaluationReady(text string)
}
