package usecase

import (
	"context"
	"fmt"
	"strings"

	"gdsim/internal/ports"
)

// evaluationFetcher requests the closing assessment and turns failures
// into the text shown in its place.
type evaluationFetcher struct {
	service ports.DiscussionService
}

func newEvaluationFetcher(service ports.DiscussionService) evaluationFetcher {
	return evaluationFetcher{service: service}
}

func (f evaluationFetcher) Fetch(ctx context.Context, sessionID string) (string, error) {
	evaluation, err := f.service.End(ctx, sessionID)
	if err != nil {
		return unavailableEvaluation(err), err
	}
	text := strings.TrimSpace(evaluation.Text)
	if text == "" {
		return unavailableEvaluation(fmt.Errorf("empty evaluation")), nil
	}
	return text, nil
}

func unavailableEvaluation(err error) string {
	return "Evaluation unavailable.\n\n" + err.Error()
}

func closingMessage(auto bool) string {
	if auto {
		return "Time is up! The discussion has ended. Generating your evaluation…"
	}
	return "The discussion has ended. Generating your evaluation…"
}
