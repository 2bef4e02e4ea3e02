package gdserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gdsim/internal/domain"
)

const maxLineSize = 1 << 20

type ndjsonStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	logger zerolog.Logger

	events  chan domain.StreamEvent
	done    chan struct{}
	closing chan struct{}

	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func newNDJSONStream(body io.ReadCloser, cancel context.CancelFunc, logger zerolog.Logger) *ndjsonStream {
	s := &ndjsonStream{
		body:    body,
		cancel:  cancel,
		logger:  logger,
		events:  make(chan domain.StreamEvent, 64),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go func() {
		s.readLoop()
		close(s.events)
		_ = body.Close()
		cancel()
		close(s.done)
	}()
	return s
}

func (s *ndjsonStream) Events() <-chan domain.StreamEvent {
	return s.events
}

func (s *ndjsonStream) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *ndjsonStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.cancel()
		_ = s.body.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *ndjsonStream) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *ndjsonStream) setErr(err error) {
	if err == nil {
		return
	}
	select {
	case <-s.closing:
		// Reads fail once the body is closed locally; that is not a stream error.
		return
	default:
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

type wireEvent struct {
	Type              string `json:"type"`
	Text              string `json:"text"`
	Speaker           string `json:"speaker"`
	ModeratorMessage  string `json:"moderator_message"`
	HandQueuedGranted bool   `json:"hand_queued_granted"`
}

func (s *ndjsonStream) readLoop() {
	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var wire wireEvent
		if err := json.Unmarshal([]byte(line), &wire); err != nil {
			s.setErr(&domain.RemoteError{
				Kind:   domain.KindServer,
				Detail: "malformed stream line",
				Err:    errors.Wrap(err, "decode stream line"),
			})
			return
		}

		switch wire.Type {
		case string(domain.StreamEventFragment):
			if !s.emit(domain.StreamEvent{Kind: domain.StreamEventFragment, Text: wire.Text}) {
				return
			}
		case string(domain.StreamEventDone):
			turn := &domain.TurnResult{
				Speaker:           wire.Speaker,
				ModeratorMessage:  wire.ModeratorMessage,
				HandQueuedGranted: wire.HandQueuedGranted,
			}
			if !s.emit(domain.StreamEvent{Kind: domain.StreamEventDone, Turn: turn}) {
				return
			}
		default:
			s.logger.Debug().Str("type", wire.Type).Msg("ignoring unknown stream event")
		}
	}

	if err := scanner.Err(); err != nil {
		s.setErr(&domain.RemoteError{
			Kind: domain.KindTransport,
			Err:  errors.Wrap(err, "read stream"),
		})
	}
}

// emit blocks until the consumer takes the event or the stream is closed.
func (s *ndjsonStream) emit(event domain.StreamEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.closing:
		return false
	}
}
