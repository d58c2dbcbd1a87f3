package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rexliu/geonb/pkg/config"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "init":
		initProfile()
	case "version":
		fmt.Printf("geonb %s\n", version)
	case "diag":
		if err := diagCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "diag error: %v\n", err)
			os.Exit(1)
		}
	case "state":
		if err := stateCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "state error: %v\n", err)
			os.Exit(1)
		}
	case "sessions":
		if err := sessionsCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "sessions error: %v\n", err)
			os.Exit(1)
		}
	case "attach":
		if err := attachCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "attach error: %v\n", err)
			os.Exit(1)
		}
	case "remote":
		if err := remoteCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "remote error: %v\n", err)
			os.Exit(1)
		}
	case "vcs":
		if err := vcsCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "vcs error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: geonb <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init      Initialize a local profile (writes config.toml or config.yaml)")
	fmt.Println("  diag      Print profile configuration paths")
	fmt.Println("  state     Print the latest stored map state of a session")
	fmt.Println("  sessions  List stored sessions")
	fmt.Println("  attach    Connect to the daemon as a headless map client")
	fmt.Println("  remote    Manage Git remote configuration (set/show)")
	fmt.Println("  vcs push|pull|log  Operate on the snapshot archive")
	fmt.Println("  version   Print CLI version")
}

func initProfile() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	profilePath := fs.String("profile", "./_dev_profile", "Profile directory")
	name := fs.String("name", "dev", "Profile name")
	format := fs.String("format", "toml", "Config format (toml or yaml)")
	force := fs.Bool("force", false, "Overwrite existing config if present")
	_ = fs.Parse(os.Args[2:])
	if err := os.MkdirAll(*profilePath, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "init error: %v\n", err)
		os.Exit(1)
	}
	if existing, err := config.ConfigPath(*profilePath); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "config already exists at %s (use --force to overwrite)\n", existing)
		os.Exit(1)
	}
	var configPath string
	switch *format {
	case "toml":
		configPath = filepath.Join(*profilePath, "config.toml")
	case "yaml", "yml":
		configPath = filepath.Join(*profilePath, "config.yaml")
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q\n", *format)
		os.Exit(1)
	}
	cfg := config.DefaultProfile(*name)
	if err := config.Save(configPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "init error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("initialized profile %s at %s\n", cfg.ProfileName, *profilePath)
}

func diagCommand(args []string) error {
	fs := flag.NewFlagSet("diag", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	_ = fs.Parse(args)
	cfg, err := loadProfile(*profile)
	if err != nil {
		return err
	}
	path, _ := config.ConfigPath(*profile)
	fmt.Printf("Profile: %s\n", cfg.ProfileName)
	fmt.Printf("Config: %s\n", path)
	fmt.Printf("DB Path: %s\n", config.ResolvePath(*profile, cfg.Storage.DBPath))
	fmt.Printf("Socket: %s\n", config.ResolvePath(*profile, cfg.IPC.SocketPath))
	if cfg.IPC.WebSocketAddr != "" {
		fmt.Printf("WebSocket: ws://%s/ws\n", cfg.IPC.WebSocketAddr)
	}
	if cfg.Metrics.Addr != "" {
		fmt.Printf("Metrics: http://%s/metrics\n", cfg.Metrics.Addr)
	}
	if cfg.Logging.FilePath != "" {
		fmt.Printf("Log File: %s\n", config.ResolvePath(*profile, cfg.Logging.FilePath))
	}
	fmt.Printf("Basemap: %s\n", cfg.Basemap.URL)
	if cfg.VisServer.URL != "" {
		fmt.Printf("Vis Server: %s (provider=%s)\n", cfg.VisServer.URL, cfg.VisServer.Provider)
	}
	fmt.Printf("VCS Branch: %s (enabled=%t)\n", cfg.VCS.Branch, cfg.VCS.Enabled)
	if cfg.VCS.Remote.URL != "" {
		fmt.Printf("Remote URL: %s\n", cfg.VCS.Remote.URL)
	}
	return nil
}

func loadProfile(profile string) (*config.ProfileConfig, error) {
	cfg, err := config.LoadProfile(profile)
	if errors.Is(err, config.ErrNoConfig) {
		return nil, fmt.Errorf("config not found in %s (run 'geonb init --profile %s')", profile, profile)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func resolveSocketPath(profile, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := loadProfile(profile)
	if err != nil {
		return "", err
	}
	return config.ResolvePath(profile, cfg.IPC.SocketPath), nil
}
