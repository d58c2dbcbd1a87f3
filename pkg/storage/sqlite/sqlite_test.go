package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/layers"
	"github.com/rexliu/geonb/pkg/session"
)

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestStoreSessionsAndState(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, WithJournalMode("wal"), WithSynchronous("normal"))

	if err := store.StartSession(ctx, "s1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := store.LatestState(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	z := 0
	st := session.MapState{
		Center: []float64{-73.9, 40.7, 10},
		Layers: []layers.State{{Name: "osm_base", Kind: layers.KindNoData, ZIndex: &z}},
	}
	if err := store.SaveState(ctx, "s1", session.MapState{Layers: []layers.State{}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveState(ctx, "s1", st); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LatestState(ctx, "s1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(got.Center) != 3 || len(got.Layers) != 1 || got.Layers[0].Name != "osm_base" || *got.Layers[0].ZIndex != 0 {
		t.Fatalf("unexpected state %+v", got)
	}

	if err := store.EndSession(ctx, "s1", "shutdown"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := store.EndSession(ctx, "s1", "again"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for ended session, got %v", err)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Snapshots != 2 || sessions[0].EndedAt == nil || sessions[0].EndReason != "shutdown" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
	if latest, err := store.LatestSession(ctx); err != nil || latest != "s1" {
		t.Fatalf("expected latest session s1, got %q %v", latest, err)
	}
}

func TestSinkPrunes(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	sink := NewSink(store, zerolog.Nop(), 2)
	for i := 0; i < 5; i++ {
		sink.Record("s2", session.MapState{Center: []float64{float64(i), 0, 1}, Layers: []layers.State{}})
	}
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Snapshots != 2 {
		t.Fatalf("expected 2 snapshots kept, got %+v", sessions)
	}
	got, _ := store.LatestState(ctx, "s2")
	if got.Center[0] != 4 {
		t.Fatalf("expected newest state kept, got %v", got.Center)
	}
}

func TestInitRejectsBadPragma(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "x.db"), WithJournalMode("bogus; DROP TABLE x"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if err := store.Init(context.Background()); err == nil {
		t.Fatal("expected unsupported journal mode error")
	}
}
