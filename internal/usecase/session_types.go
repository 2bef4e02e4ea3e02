package usecase

import (
	"gdsim/internal/domain"
)

type streamKind string

const (
	streamReply streamKind = "speak"
	streamAI    streamKind = "ai_speak"
)

// discussion is the session aggregate. Only the controller loop touches it.
type discussion struct {
	id    string
	topic string

	active bool
	ended  bool

	turns      int
	transcript transcript

	stream           domain.StreamPhase
	handRaisePending bool
	endPending       bool

	aiInFlight    bool
	floorInFlight bool

	awaitingEvaluation  bool
	evaluationRequested bool
}

func newDiscussion(id string, topic string) *discussion {
	return &discussion{
		id:     id,
		topic:  topic,
		active: true,
		stream: domain.StreamIdle,
	}
}

// live reports whether handlers may still act on the session.
func (d *discussion) live() bool {
	return d != nil && d.active && !d.ended
}

func (d *discussion) snapshot(remaining int) domain.Snapshot {
	messages := d.transcript.Messages()
	return domain.Snapshot{
		SessionID:        d.id,
		Topic:            d.topic,
		Transcript:       messages,
		TurnCount:        d.turns,
		RemainingSeconds: remaining,
		TranscriptLength: len(messages),
	}
}
