package sqlite

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/session"
)

// Sink records acknowledged map states into a Store. Failures are logged;
// persistence never blocks the channel for long.
type Sink struct {
	store   *Store
	logger  zerolog.Logger
	keep    int
	timeout time.Duration
}

// NewSink keeps at most keep snapshots per session; keep <= 0 keeps all.
func NewSink(store *Store, logger zerolog.Logger, keep int) *Sink {
	return &Sink{store: store, logger: logger, keep: keep, timeout: 2 * time.Second}
}

// Record implements session.StateSink.
func (k *Sink) Record(sessionID string, st session.MapState) {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	if err := k.store.SaveState(ctx, sessionID, st); err != nil {
		k.logger.Error().Err(err).Str("session", sessionID).Msg("save state failed")
		return
	}
	if k.keep > 0 {
		if _, err := k.store.Prune(ctx, sessionID, k.keep); err != nil {
			k.logger.Warn().Err(err).Str("session", sessionID).Msg("prune snapshots failed")
		}
	}
}
