package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/config"
	"github.com/rexliu/geonb/pkg/session"
	gitvcs "github.com/rexliu/geonb/pkg/vcs/git"
)

const (
	snapshotFile  = "snapshot.json"
	snapshotsKept = 200
)

// archive records acknowledged states into the store and keeps the latest
// one for snapshot.json, committed to Git on restart and shutdown.
type archive struct {
	profileDir string
	vcs        config.VCSConfig
	store      session.StateSink
	repo       *gitvcs.Repo
	logger     zerolog.Logger

	mu      sync.Mutex
	session string
	latest  *session.MapState
}

func newArchive(profileDir string, vcs config.VCSConfig, store session.StateSink, logger zerolog.Logger) *archive {
	return &archive{profileDir: profileDir, vcs: vcs, store: store, logger: logger}
}

func (a *archive) init(ctx context.Context) error {
	if !a.vcs.Enabled {
		return nil
	}
	repo := &gitvcs.Repo{
		Path:        a.profileDir,
		Branch:      a.vcs.Branch,
		AuthorName:  a.vcs.AuthorName,
		AuthorEmail: a.vcs.AuthorEmail,
	}
	if err := repo.Init(ctx); err != nil {
		return err
	}
	if a.vcs.Remote.URL != "" {
		if err := repo.SetRemote(a.vcs.Remote.URL); err != nil {
			return fmt.Errorf("set remote: %w", err)
		}
	}
	a.repo = repo
	return nil
}

// Record implements session.StateSink.
func (a *archive) Record(sessionID string, st session.MapState) {
	a.store.Record(sessionID, st)
	a.mu.Lock()
	a.session = sessionID
	a.latest = &st
	a.mu.Unlock()
}

// flush writes snapshot.json and commits it. Nothing is written before the
// first acknowledged state.
func (a *archive) flush(ctx context.Context, reason string) {
	a.mu.Lock()
	id, latest := a.session, a.latest
	a.mu.Unlock()
	if latest == nil {
		return
	}
	if err := writeSnapshot(a.profileDir, id, *latest); err != nil {
		a.logger.Error().Err(err).Msg("snapshot write failed")
		return
	}
	if a.repo == nil {
		return
	}
	message := fmt.Sprintf("%s: session %s, %d layers", reason, id, len(latest.Layers))
	status, err := a.repo.Commit(ctx, message, snapshotFile)
	if err != nil {
		a.logger.Error().Err(err).Msg("commit failed")
		return
	}
	if !status.Committed {
		return
	}
	a.logger.Info().Str("hash", status.Hash).Msg("snapshot committed")
	if a.vcs.AutoPush {
		if err := a.repo.Push(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("push failed")
		}
	}
}

type snapshot struct {
	Session string           `json:"session"`
	SavedAt time.Time        `json:"savedAt"`
	State   session.MapState `json:"state"`
}

func writeSnapshot(profileDir, sessionID string, st session.MapState) error {
	path := filepath.Join(profileDir, snapshotFile)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot{Session: sessionID, SavedAt: time.Now().UTC(), State: st})
}
