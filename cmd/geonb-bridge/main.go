// Command geonb-bridge relays a native messaging host's stdio to the daemon
// socket. Both sides carry the same length-prefixed frames.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rexliu/geonb/pkg/config"
	"github.com/rexliu/geonb/pkg/ipc"
	"github.com/rexliu/geonb/pkg/logging"
)

func main() {
	profile := flag.String("profile", "", "Profile directory (defaults to ~/.geonb)")
	socket := flag.String("socket", "", "Override socket path")
	flag.Parse()

	logger := logging.NewTo(os.Stderr, "bridge")
	socketPath, err := socketPath(*profile, *socket)
	if err != nil {
		logger.Error().Err(err).Msg("resolve socket")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	conn, err := ipc.Dial(ctx, socketPath)
	if err != nil {
		logger.Error().Err(err).Str("socket", socketPath).Msg("dial daemon")
		os.Exit(1)
	}
	defer conn.Close()

	errc := make(chan error, 2)
	go func() { errc <- relay(os.Stdin, conn, "stdin", logger) }()
	go func() { errc <- relay(conn, os.Stdout, "socket", logger) }()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("bridge exiting")
			os.Exit(1)
		}
		logger.Info().Msg("bridge exiting")
	case <-ctx.Done():
	}
}

// relay copies frames from src to dst until src ends. A clean EOF returns nil.
func relay(src io.Reader, dst io.Writer, from string, logger zerolog.Logger) error {
	for {
		frame, err := ipc.ReadFrame(src)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		logger.Debug().Str("from", from).Int("bytes", len(frame)).Msg("frame")
		if err := ipc.WriteFrame(dst, frame); err != nil {
			return err
		}
	}
}

func socketPath(profile, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if profile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		profile = filepath.Join(home, ".geonb")
	}
	cfg, err := config.LoadProfile(profile)
	if err != nil {
		return "", err
	}
	return config.ResolvePath(profile, cfg.IPC.SocketPath), nil
}
