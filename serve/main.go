// Command askdird is the askdir daemon.
// It watches a directory tree and sends every new file to a vision model,
// asking the question named by the file's parent directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	askdir "github.com/Paranoid-AF/askdir"
	"github.com/Paranoid-AF/askdir/dispatch"
	"github.com/Paranoid-AF/askdir/watch"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "log every request to stderr")
	dir := flag.String("dir", "", "directory to watch (overrides config and ASKDIR_WATCH_DIRECTORY)")
	flag.Parse()

	if *showVersion {
		fmt.Println("askdird", Version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := askdir.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := askdir.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "path", askdir.ConfigPath(), "error", err)
		os.Exit(1)
	}
	for _, w := range askdir.ValidateConfig(cfg) {
		slog.Warn(w)
	}

	root, err := resolveRoot(*dir, cfg)
	if err != nil {
		slog.Error("no watch directory", "error", err)
		os.Exit(1)
	}

	srv, err := NewServer(root, cfg, dispatch.NewFromConfig(cfg, dispatch.Config{Out: os.Stdout}))
	if err != nil {
		var startErr *watch.StartupError
		if errors.As(err, &startErr) {
			slog.Error("cannot watch directory", "root", startErr.Root, "error", startErr.Err)
		} else {
			slog.Error("failed to start", "error", err)
		}
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	slog.Info("ready", "root", srv.Root(), "model", askdir.ResolveModel(cfg))
	if err := srv.Serve(ctx); err != nil {
		os.Exit(1)
	}
}

// resolveRoot picks the watch root: the -dir flag, then the environment and
// config file.
func resolveRoot(flagDir string, cfg *askdir.Config) (string, error) {
	if flagDir != "" {
		return filepath.Abs(flagDir)
	}
	return askdir.ResolveWatchDirectory(cfg)
}
