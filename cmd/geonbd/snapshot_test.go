package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/config"
	"github.com/rexliu/geonb/pkg/layers"
	"github.com/rexliu/geonb/pkg/session"
	gitvcs "github.com/rexliu/geonb/pkg/vcs/git"
)

type countingSink struct{ n int }

func (c *countingSink) Record(string, session.MapState) { c.n++ }

func TestArchiveFlushCommitsSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sink := &countingSink{}
	vcs := config.DefaultProfile("t").VCS
	vcs.Enabled = true
	a := newArchive(dir, vcs, sink, zerolog.Nop())
	if err := a.init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	a.flush(ctx, "shutdown")
	if _, err := os.Stat(filepath.Join(dir, snapshotFile)); !os.IsNotExist(err) {
		t.Fatalf("expected no snapshot before first state, got %v", err)
	}

	a.Record("s1", session.MapState{Center: []float64{1, 2, 3}, Layers: []layers.State{}})
	if sink.n != 1 {
		t.Fatalf("expected store to record, got %d", sink.n)
	}
	a.flush(ctx, "shutdown")

	raw, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Session != "s1" || len(snap.State.Center) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	repo := &gitvcs.Repo{Path: dir}
	if err := repo.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	log, err := repo.Log(0)
	if err != nil || len(log) != 1 {
		t.Fatalf("expected one commit, got %v %v", log, err)
	}
}
