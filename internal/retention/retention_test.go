package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"zerozero/pkg/config"
	"zerozero/pkg/models"
	"zerozero/pkg/store"
)

func newDeps(t *testing.T) (Deps, string) {
	t.Helper()
	dataPath := t.TempDir()
	s, err := store.Open(filepath.Join(dataPath, "store"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	pins, err := store.NewPins(s)
	if err != nil {
		t.Fatalf("new pins: %v", err)
	}
	return Deps{Queue: store.NewQueue(s), Pins: pins}, dataPath
}

func TestRunOncePurgesAndReports(t *testing.T) {
	deps, dataPath := newDeps(t)
	deps.Queue.Append(store.QueueAppendParams{Type: models.QueuePinMessage, PinID: "p", Content: "old", TTL: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	rep, err := RunOnce(deps, dataPath, false)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if rep.QueuePurged != 1 {
		t.Fatalf("want 1 purged, got %d", rep.QueuePurged)
	}
	entries, err := os.ReadDir(filepath.Join(dataPath, "state", "retention"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("missing sweep report: %v %v", err, entries)
	}
}

func TestRunOnceDryRunKeepsItems(t *testing.T) {
	deps, dataPath := newDeps(t)
	deps.Queue.Append(store.QueueAppendParams{Type: models.QueuePinMessage, PinID: "p", Content: "old", TTL: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	rep, err := RunOnce(deps, dataPath, true)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if rep.QueuePurged != 1 || !rep.DryRun {
		t.Fatalf("unexpected report: %+v", rep)
	}
	items, _ := deps.Queue.LoadAll()
	if len(items) != 1 {
		t.Fatalf("dry run removed items: %+v", items)
	}
}

func TestStartValidatesCron(t *testing.T) {
	deps, dataPath := newDeps(t)
	if _, err := Start(context.Background(), config.RetentionConfig{Enabled: true, Cron: "not a cron"}, deps, dataPath); err == nil {
		t.Fatal("bad cron accepted")
	}
	cancel, err := Start(context.Background(), config.RetentionConfig{Enabled: false}, deps, dataPath)
	if err != nil {
		t.Fatalf("disabled start: %v", err)
	}
	cancel()
}
