package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rexliu/geonb/pkg/ipc"
	"github.com/rexliu/geonb/pkg/metrics"
	"github.com/rexliu/geonb/pkg/session"
)

func (d *daemon) currentSession() string {
	var id string
	d.adapter.Do(func(s *session.Session) error {
		id = s.ID()
		return nil
	})
	return id
}

func (d *daemon) sessionStarted(ctx context.Context) {
	id := d.currentSession()
	if id == "" {
		return
	}
	if err := d.store.StartSession(ctx, id); err != nil {
		d.logger.Error().Err(err).Str("session", id).Msg("record session start failed")
	}
	d.logger.Info().Str("session", id).Msg("session started")
}

func (d *daemon) sessionEnded(ctx context.Context, id, reason string) {
	if id == "" {
		return
	}
	if err := d.store.EndSession(ctx, id, reason); err != nil {
		d.logger.Warn().Err(err).Str("session", id).Msg("record session end failed")
	}
}

// restart replaces the session on the open channel.
func (d *daemon) restart(ctx context.Context) error {
	old := d.currentSession()
	d.archive.flush(ctx, "restart")
	if err := d.adapter.OnShutdown(ctx, true); err != nil {
		return err
	}
	d.sessionEnded(ctx, old, "restart")
	d.sessionStarted(ctx)
	return nil
}

func (d *daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id := d.currentSession()
	d.archive.flush(ctx, "shutdown")
	if err := d.adapter.OnShutdown(ctx, false); err != nil {
		d.logger.Warn().Err(err).Msg("session shutdown failed")
	}
	d.sessionEnded(ctx, id, "shutdown")
}

// httpServers builds one server per configured address. The WebSocket
// channel and the metrics endpoint share a server when their addresses match.
func (d *daemon) httpServers(srv *ipc.Server, reg *prometheus.Registry) []*http.Server {
	muxes := map[string]*http.ServeMux{}
	mux := func(addr string) *http.ServeMux {
		if m, ok := muxes[addr]; ok {
			return m
		}
		m := http.NewServeMux()
		muxes[addr] = m
		return m
	}
	if addr := d.cfg.IPC.WebSocketAddr; addr != "" {
		mux(addr).Handle("/ws", srv.WebSocket())
	}
	if addr := d.cfg.Metrics.Addr; addr != "" {
		m := mux(addr)
		m.Handle("/metrics", metrics.HandlerFor(reg))
		m.HandleFunc("/state", d.handleState)
	}
	servers := make([]*http.Server, 0, len(muxes))
	for addr, m := range muxes {
		servers = append(servers, &http.Server{Addr: addr, Handler: m, ReadHeaderTimeout: 5 * time.Second})
	}
	return servers
}

// handleState serves the acknowledged map state of the active session.
func (d *daemon) handleState(w http.ResponseWriter, r *http.Request) {
	var (
		id string
		st session.MapState
	)
	err := d.adapter.Do(func(s *session.Session) error {
		id, st = s.ID(), s.MapState()
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"session":   id,
		"connected": d.adapter.Connected(),
		"state":     st,
	})
}
