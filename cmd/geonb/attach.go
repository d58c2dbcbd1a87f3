package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rexliu/geonb/pkg/ipc"
	"github.com/rexliu/geonb/pkg/logging"
	"github.com/rexliu/geonb/pkg/peer"
	"github.com/rexliu/geonb/pkg/session"
)

// attachCommand connects as the map client. The daemon serves one client, so
// attaching replaces any connected browser.
func attachCommand(args []string) error {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	socket := fs.String("socket", "", "Override socket path")
	showState := fs.Bool("state", false, "Print the host map state and exit")
	center := fs.String("center", "", "Report a viewport change as x,y,z and exit")
	wait := fs.Duration("timeout", 5*time.Second, "Handshake timeout")
	_ = fs.Parse(args)

	socketPath, err := resolveSocketPath(*profile, *socket)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := ipc.Dial(ctx, socketPath)
	if err != nil {
		return fmt.Errorf("dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	logger := logging.NewTo(os.Stderr, "attach")
	var wmu sync.Mutex
	p, err := peer.New(func(frame []byte) error {
		wmu.Lock()
		defer wmu.Unlock()
		return ipc.WriteFrame(conn, frame)
	}, logger)
	if err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			frame, err := ipc.ReadFrame(conn)
			if err != nil {
				readErr <- err
				return
			}
			if err := p.HandleFrame(frame); err != nil {
				logger.Warn().Err(err).Msg("frame handling failed")
			}
		}
	}()

	if err := p.Open(); err != nil {
		return err
	}
	select {
	case <-p.Ready():
	case err := <-readErr:
		return fmt.Errorf("connection lost before handshake: %w", err)
	case <-time.After(*wait):
		return errors.New("handshake timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
	defer p.Close()

	switch {
	case *showState:
		st, err := p.MapState(ctx)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	case *center != "":
		xyz, err := parseCenter(*center)
		if err != nil {
			return err
		}
		if _, err := p.Call(ctx, session.ProcSetCenter, xyz[0], xyz[1], xyz[2]); err != nil {
			return err
		}
		fmt.Printf("center set to %v\n", xyz)
		return nil
	}

	fmt.Fprintln(os.Stderr, "attached (Ctrl+C to detach)")
	select {
	case <-ctx.Done():
	case err := <-readErr:
		return fmt.Errorf("connection lost: %w", err)
	}
	fmt.Printf("layers: %s\n", strings.Join(p.Layers(), ", "))
	if c := p.Center(); len(c) > 0 {
		fmt.Printf("center: %v\n", c)
	}
	return nil
}

func parseCenter(raw string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("center must be x,y,z")
	}
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return out, fmt.Errorf("center: %w", err)
		}
		out[i] = v
	}
	return out, nil
}
