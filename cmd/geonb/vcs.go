package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rexliu/geonb/pkg/config"
	gitvcs "github.com/rexliu/geonb/pkg/vcs/git"
)

func remoteCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: geonb remote <set|show> [options]")
	}
	sub := args[0]
	switch sub {
	case "set":
		fs := flag.NewFlagSet("remote set", flag.ExitOnError)
		profile := fs.String("profile", "./_dev_profile", "Profile directory")
		url := fs.String("url", "", "Remote Git URL")
		cred := fs.String("credential", "", "Credential reference (optional)")
		_ = fs.Parse(args[1:])
		if *url == "" {
			return fmt.Errorf("--url is required")
		}
		cfg, err := loadProfile(*profile)
		if err != nil {
			return err
		}
		cfg.VCS.Remote.URL = *url
		cfg.VCS.Remote.CredentialRef = *cred
		cfg.VCS.Enabled = true
		path, err := config.ConfigPath(*profile)
		if err != nil {
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Printf("remote set to %s\n", *url)
		return nil
	case "show":
		fs := flag.NewFlagSet("remote show", flag.ExitOnError)
		profile := fs.String("profile", "./_dev_profile", "Profile directory")
		_ = fs.Parse(args[1:])
		cfg, err := loadProfile(*profile)
		if err != nil {
			return err
		}
		if cfg.VCS.Remote.URL == "" {
			fmt.Println("remote not configured")
		} else {
			fmt.Printf("remote URL: %s\n", cfg.VCS.Remote.URL)
			if cfg.VCS.Remote.CredentialRef != "" {
				fmt.Printf("credential ref: %s\n", cfg.VCS.Remote.CredentialRef)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown remote subcommand %q", sub)
	}
}

func vcsCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: geonb vcs <push|pull|log> [options]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("vcs", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	limit := fs.Int("n", 10, "Entries to show for log")
	_ = fs.Parse(args[1:])

	cfg, err := loadProfile(*profile)
	if err != nil {
		return err
	}
	if !cfg.VCS.Enabled {
		return fmt.Errorf("vcs disabled in profile %s", cfg.ProfileName)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	repo := &gitvcs.Repo{
		Path:        *profile,
		Branch:      cfg.VCS.Branch,
		AuthorName:  cfg.VCS.AuthorName,
		AuthorEmail: cfg.VCS.AuthorEmail,
	}
	if err := repo.Init(ctx); err != nil {
		return err
	}
	if cfg.VCS.Remote.URL != "" {
		if err := repo.SetRemote(cfg.VCS.Remote.URL); err != nil {
			return err
		}
	}

	switch sub {
	case "push":
		if err := repo.Push(ctx); err != nil {
			return err
		}
		fmt.Println("pushed")
	case "pull":
		if err := repo.Pull(ctx); err != nil {
			return err
		}
		fmt.Println("pulled")
	case "log":
		commits, err := repo.Log(*limit)
		if err != nil {
			return err
		}
		for _, c := range commits {
			fmt.Printf("%s  %s  %s\n", c.Hash[:12], c.When.Format(time.RFC3339), firstLine(c.Message))
		}
	default:
		return fmt.Errorf("unknown vcs subcommand %q", sub)
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
