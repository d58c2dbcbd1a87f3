package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rexliu/geonb/pkg/config"
	"github.com/rexliu/geonb/pkg/storage/sqlite"
)

func openStore(ctx context.Context, profile string) (*sqlite.Store, error) {
	cfg, err := loadProfile(profile)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(config.ResolvePath(profile, cfg.Storage.DBPath),
		sqlite.WithJournalMode(cfg.Storage.JournalMode),
		sqlite.WithSynchronous(cfg.Storage.Synchronous))
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func stateCommand(args []string) error {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	id := fs.String("session", "", "Session id (defaults to the latest)")
	_ = fs.Parse(args)

	ctx := context.Background()
	store, err := openStore(ctx, *profile)
	if err != nil {
		return err
	}
	defer store.Close()

	sessionID := *id
	if sessionID == "" {
		if sessionID, err = store.LatestSession(ctx); err != nil {
			return fmt.Errorf("no sessions recorded: %w", err)
		}
	}
	st, err := store.LatestState(ctx, sessionID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(map[string]any{"session": sessionID, "state": st}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func sessionsCommand(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	asJSON := fs.Bool("json", false, "Print JSON")
	_ = fs.Parse(args)

	ctx := context.Background()
	store, err := openStore(ctx, *profile)
	if err != nil {
		return err
	}
	defer store.Close()
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		out, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tENDED\tSNAPSHOTS")
	for _, s := range sessions {
		ended := "-"
		if s.EndedAt != nil {
			ended = s.EndedAt.Format(time.RFC3339) + " (" + s.EndReason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.StartedAt.Format(time.RFC3339), ended, s.Snapshots)
	}
	return tw.Flush()
}
