package usecase

import (
	"strings"

	"gdsim/internal/domain"
)

// transcript is the ordered message history of a discussion. After a resume
// the first appends replay messages the restored history already holds; the
// suppress counter drops exactly that many.
type transcript struct {
	messages []domain.Message
	suppress int
}

func restoredTranscript(messages []domain.Message, replayed int) transcript {
	if replayed < 0 {
		replayed = 0
	}
	return transcript{
		messages: append([]domain.Message(nil), messages...),
		suppress: replayed,
	}
}

// Append records msg unless it is empty or a suppressed replay.
func (t *transcript) Append(msg domain.Message) bool {
	if strings.TrimSpace(msg.Text) == "" {
		return false
	}
	if t.suppress > 0 {
		t.suppress--
		return false
	}
	t.messages = append(t.messages, msg)
	return true
}

// Record adds streamed content, which never replays.
func (t *transcript) Record(msg domain.Message) bool {
	if strings.TrimSpace(msg.Text) == "" {
		return false
	}
	t.messages = append(t.messages, msg)
	return true
}

func (t *transcript) Len() int {
	return len(t.messages)
}

func (t *transcript) Messages() []domain.Message {
	return append([]domain.Message(nil), t.messages...)
}
