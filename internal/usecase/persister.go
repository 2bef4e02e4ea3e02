package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gdsim/internal/domain"
	"gdsim/internal/ports"
)

const persistTimeout = 5 * time.Second

type persistOp struct {
	snapshot *domain.Snapshot
}

// persister applies snapshot writes off the controller loop. Each write
// replaces the stored state, so only the newest pending op is kept and
// save never blocks the caller.
type persister struct {
	store  ports.SnapshotStore
	logger zerolog.Logger

	mu      sync.Mutex
	pending *persistOp
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newPersister(store ports.SnapshotStore, logger zerolog.Logger) *persister {
	return &persister{
		store:  store,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (p *persister) save(snapshot domain.Snapshot) {
	p.submit(persistOp{snapshot: &snapshot})
}

func (p *persister) clear() {
	p.submit(persistOp{})
}

func (p *persister) submit(op persistOp) {
	p.mu.Lock()
	if p.pending != nil {
		p.logger.Debug().Msg("coalescing pending snapshot write")
	}
	p.pending = &op
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// close stops the worker; run applies the last pending op and returns.
func (p *persister) close() {
	p.once.Do(func() { close(p.done) })
}

func (p *persister) run() {
	for {
		select {
		case <-p.wake:
			p.flush()
		case <-p.done:
			p.flush()
			return
		}
	}
}

func (p *persister) flush() {
	p.mu.Lock()
	op := p.pending
	p.pending = nil
	p.mu.Unlock()
	if op == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if op.snapshot == nil {
		if err := p.store.Clear(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("failed to clear session snapshot")
		}
		return
	}
	if err := p.store.Save(ctx, *op.snapshot); err != nil {
		p.logger.Warn().Err(err).Str("session_id", op.snapshot.SessionID).Msg("failed to save session snapshot")
	}
}
