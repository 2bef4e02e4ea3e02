// Package recovery decides whether a stored session may be resumed.
package recovery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"gdsim/internal/clock"
	"gdsim/internal/domain"
	"gdsim/internal/ports"
)

// DefaultTTL is the freshness window for stored snapshots.
const DefaultTTL = 2 * time.Hour

// Outcome explains a reconciliation decision.
type Outcome string

const (
	OutcomeNone        Outcome = "none"
	OutcomeStale       Outcome = "stale"
	OutcomeSessionGone Outcome = "session_gone"
	OutcomeUnreachable Outcome = "unreachable"
	OutcomeResumable   Outcome = "resumable"
)

// Reconciler validates the stored snapshot against the live service. Every
// outcome other than OutcomeResumable clears the store.
type Reconciler struct {
	Store  ports.SnapshotStore
	Prober ports.SessionProber
	Clock  clock.Clock
	TTL    time.Duration
}

// Reconcile returns the snapshot to resume, if any.
func (r Reconciler) Reconcile(ctx context.Context) (domain.Snapshot, Outcome, error) {
	logger := log.With().Str("component", "recovery").Logger()

	snapshot, ok, err := r.Store.Load(ctx)
	if err != nil {
		return domain.Snapshot{}, OutcomeNone, err
	}
	if !ok {
		return domain.Snapshot{}, OutcomeNone, nil
	}

	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	if r.Clock != nil {
		now = r.Clock.Now()
	}
	if snapshot.SavedAt.IsZero() || now.Sub(snapshot.SavedAt) > ttl {
		logger.Info().Str("session_id", snapshot.SessionID).Time("saved_at", snapshot.SavedAt).Msg("discarding stale snapshot")
		return domain.Snapshot{}, OutcomeStale, r.Store.Clear(ctx)
	}

	if err := r.Prober.Probe(ctx, snapshot.SessionID); err != nil {
		outcome := OutcomeUnreachable
		if domain.IsSessionGone(err) {
			outcome = OutcomeSessionGone
		}
		logger.Info().Err(err).Str("session_id", snapshot.SessionID).Str("outcome", string(outcome)).Msg("discarding snapshot")
		return domain.Snapshot{}, outcome, r.Store.Clear(ctx)
	}

	return snapshot, OutcomeResumable, nil
}
