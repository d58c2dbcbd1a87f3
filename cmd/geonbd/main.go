package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/config"
	"github.com/rexliu/geonb/pkg/host"
	"github.com/rexliu/geonb/pkg/ipc"
	"github.com/rexliu/geonb/pkg/logging"
	"github.com/rexliu/geonb/pkg/metrics"
	"github.com/rexliu/geonb/pkg/storage/sqlite"
	"github.com/rexliu/geonb/pkg/visserver"
)

func main() {
	profile := flag.String("profile", "./_dev_profile", "Path to profile directory")
	socket := flag.String("socket", "", "Override IPC socket path (optional)")
	flag.Parse()

	cfg, err := config.LoadProfile(*profile)
	if errors.Is(err, config.ErrNoConfig) {
		cfg = config.DefaultProfile("dev")
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, closer, err := logging.Configure("geonbd", *profile, cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configure logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	logger.Info().Str("profile", *profile).Msg("starting daemon")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *profile, *socket, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("fatal error")
		closer.Close()
		os.Exit(1)
	}
}

type daemon struct {
	profileDir string
	cfg        *config.ProfileConfig
	store      *sqlite.Store
	archive    *archive
	adapter    *host.Adapter
	logger     zerolog.Logger
}

func run(ctx context.Context, profileDir, socketOverride string, cfg *config.ProfileConfig, logger zerolog.Logger) error {
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return err
	}
	store, err := sqlite.Open(config.ResolvePath(profileDir, cfg.Storage.DBPath),
		sqlite.WithJournalMode(cfg.Storage.JournalMode),
		sqlite.WithSynchronous(cfg.Storage.Synchronous))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}

	d := &daemon{profileDir: profileDir, cfg: cfg, store: store, logger: logger}
	d.archive = newArchive(profileDir, cfg.VCS, sqlite.NewSink(store, logger, snapshotsKept), logger)
	if err := d.archive.init(ctx); err != nil {
		logger.Warn().Err(err).Msg("vcs unavailable; snapshots will not be committed")
	}

	reg := prometheus.NewRegistry()
	rpcMetrics, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	opts := []host.Option{
		host.WithLogger(logger),
		host.WithMetrics(rpcMetrics),
		host.WithStateSink(d.archive),
		host.WithBasemap(host.Basemap{URL: cfg.Basemap.URL, Attribution: cfg.Basemap.Attribution}),
	}
	if cfg.VisServer.URL != "" {
		vis, err := visserver.New(cfg.VisServer.URL,
			visserver.WithLogger(logger),
			visserver.WithProvider(cfg.VisServer.Provider))
		if err != nil {
			return fmt.Errorf("vis server: %w", err)
		}
		opts = append(opts, host.WithVisServer(vis))
	}
	d.adapter = host.New(opts...)
	if err := d.adapter.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	d.sessionStarted(ctx)

	socketPath := socketOverride
	if socketPath == "" {
		socketPath = config.ResolvePath(profileDir, cfg.IPC.SocketPath)
	}
	if err := cleanupSocket(socketPath); err != nil {
		return err
	}

	srv := ipc.NewServer(func(ctx context.Context, ch ipc.Channel, frame []byte) error {
		return d.adapter.HandleFrame(ctx, ch, frame)
	}, logger)
	srv.OnDisconnect(func(ipc.Channel) { d.adapter.OnClose() })
	if err := srv.Start(ctx, socketPath); err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	defer func() {
		srv.Stop()
		cleanupSocket(socketPath)
	}()

	servers := d.httpServers(srv, reg)
	for _, hs := range servers {
		go func(hs *http.Server) {
			logger.Info().Str("addr", hs.Addr).Msg("http listening")
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", hs.Addr).Msg("http server failed")
			}
		}(hs)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, hs := range servers {
			hs.Shutdown(shutdownCtx)
		}
	}()

	logger.Info().Str("socket", socketPath).Msg("daemon ready")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-hup:
			if err := d.restart(ctx); err != nil {
				logger.Error().Err(err).Msg("restart failed")
			}
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			d.shutdown()
			return nil
		}
	}
}

func cleanupSocket(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}
