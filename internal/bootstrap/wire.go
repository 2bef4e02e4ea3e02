package bootstrap

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"gdsim/internal/clock"
	"gdsim/internal/config"
	"gdsim/internal/ports"
	"gdsim/internal/providers/gdserver"
	"gdsim/internal/recovery"
	"gdsim/internal/store"
	"gdsim/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Client     *gdserver.Client
	Store      store.Store
	Config     config.Config
}

// Close releases the snapshot store.
func (s Services) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}

// Build wires all backend dependencies from the loaded configuration.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(cfg, eventSink)
}

// BuildWithConfig wires the runtime graph for cfg.
func BuildWithConfig(cfg config.Config, eventSink ports.EventSink) (Services, error) {
	snapshots, err := OpenStore(cfg)
	if err != nil {
		return Services{}, err
	}

	client := gdserver.NewClient(gdserver.Config{
		BaseURL:        cfg.Server.BaseURL,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	clk := clock.Real()

	controller := usecase.NewSessionController(
		client,
		snapshots,
		recovery.Reconciler{
			Store:  snapshots,
			Prober: client,
			Clock:  clk,
			TTL:    cfg.Session.SnapshotTTL,
		},
		eventSink,
		clk,
		usecase.Config{
			MinDuration:   cfg.Session.MinDuration,
			ResumeSeconds: cfg.Session.ResumeSeconds,
			SilenceDelay:  cfg.Session.SilenceDelay,
			SilenceJitter: cfg.Session.SilenceJitter,
			ConflictGrace: cfg.Session.ConflictGrace,
			QueuedRetry:   cfg.Session.QueuedRetry,
			EndWait:       cfg.Session.EndWait,
		},
	)

	return Services{
		Controller: controller,
		Client:     client,
		Store:      snapshots,
		Config:     cfg,
	}, nil
}

// OpenStore opens the configured snapshot backend.
func OpenStore(cfg config.Config) (store.Store, error) {
	snapshots, err := store.Open(store.Config{
		Driver:    cfg.Store.Driver,
		Path:      cfg.Store.Path,
		RedisAddr: cfg.Store.RedisAddr,
		Key:       cfg.Store.Key,
		TTL:       cfg.Session.SnapshotTTL,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s snapshot store", cfg.Store.Driver)
	}
	return snapshots, nil
}

// Shutdown gives the controller loop time to flush queued snapshot writes.
func Shutdown(cancel context.CancelFunc, done <-chan struct{}, timeout time.Duration) bool {
	cancel()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
