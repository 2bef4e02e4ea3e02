package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gdsim/internal/bootstrap"
	"gdsim/internal/config"
	"gdsim/internal/domain"
)

func TestSnapshotCommands(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GDSIM_CONFIG", "")
	t.Setenv("GDSIM_STORE_DRIVER", "file")
	t.Setenv("GDSIM_STORE_PATH", filepath.Join(home, "session.json"))

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	snapshots, err := bootstrap.OpenStore(cfg)
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	saved := domain.Snapshot{
		SessionID:        "s-42",
		Topic:            "Urban farming",
		TurnCount:        3,
		RemainingSeconds: 95,
		TranscriptLength: 7,
		SavedAt:          time.Date(2026, 2, 3, 14, 0, 0, 0, time.UTC),
	}
	if err := snapshots.Save(context.Background(), saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	_ = snapshots.Close()

	out := execute(t, "snapshot", "show")
	for _, want := range []string{"s-42", "Urban farming", "1:35", "turns:     3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	if out := execute(t, "snapshot", "clear"); !strings.Contains(out, "cleared") {
		t.Fatalf("unexpected clear output: %s", out)
	}
	if out := execute(t, "snapshot", "show"); !strings.Contains(out, "No stored session.") {
		t.Fatalf("expected empty store, got: %s", out)
	}
}

func TestHandleLineRejectsMessageWithoutFloor(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	services, err := bootstrap.BuildWithConfig(cfg, nopSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	var out bytes.Buffer
	quit, err := handleLine(context.Background(), services.Controller, "/quit", &out)
	if err != nil || !quit {
		t.Fatalf("expected quit, got %v %v", quit, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = services.Controller.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	quit, err = handleLine(context.Background(), services.Controller, "hello", &out)
	if err != nil || quit {
		t.Fatalf("unexpected result %v %v", quit, err)
	}
	if !strings.Contains(out.String(), "The discussion is over") {
		t.Fatalf("unexpected output: %s", out.String())
	}

	out.Reset()
	if _, err := handleLine(context.Background(), services.Controller, "/status", &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "state=INACTIVE") {
		t.Fatalf("unexpected status output: %s", out.String())
	}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute %v failed: %v", args, err)
	}
	return out.String()
}

type nopSink struct{}

func (nopSink) SessionStateChanged(domain.TurnState, domain.StateReason) {}
func (nopSink) MessageAppended(domain.Message)                           {}
func (nopSink) TranscriptRestored(string, []domain.Message)              {}
func (nopSink) PartialResponse(string, string)                           {}
func (nopSink) ResponseFinished(string)                                  {}
func (nopSink) CountdownTick(int)                                        {}
func (nopSink) TurnCountChanged(int)                                     {}
func (nopSink) SessionError(domain.ErrorCode, string)                    {}
func (nopSink) EvaluationReady(string)                                   {}
