// Package stream drains token streams from the discussion service.
package stream

import (
	"context"
	"strings"

	"gdsim/internal/domain"
	"gdsim/internal/ports"
)

// Result is what a drained stream produced. Text holds every fragment seen,
// even when the stream failed part way.
type Result struct {
	Text string
	Turn *domain.TurnResult
}

// Finished reports whether the stream delivered its terminal event.
func (r Result) Finished() bool {
	return r.Turn != nil
}

// Consume reads source until it closes, passing each fragment to onFragment
// in arrival order. A stream that ends without a terminal event is not an
// error; Result.Turn is nil in that case. Context cancellation closes the
// source.
func Consume(ctx context.Context, source ports.TokenStream, onFragment func(text string)) (Result, error) {
	if onFragment == nil {
		onFragment = func(string) {}
	}

	var (
		result Result
		text   strings.Builder
	)
	events := source.Events()
	for {
		select {
		case <-ctx.Done():
			_ = source.Close()
			result.Text = text.String()
			return result, ctx.Err()
		case event, ok := <-events:
			if !ok {
				result.Text = text.String()
				if err := source.Wait(); err != nil {
					return result, err
				}
				return result, nil
			}
			switch event.Kind {
			case domain.StreamEventFragment:
				if event.Text == "" {
					continue
				}
				text.WriteString(event.Text)
				onFragment(event.Text)
			case domain.StreamEventDone:
				if event.Turn != nil {
					turn := *event.Turn
					result.Turn = &turn
				}
			}
		}
	}
}
