package main

import (
	"context"
	"log/slog"
	"sync"

	askdir "github.com/Paranoid-AF/askdir"
	"github.com/Paranoid-AF/askdir/watch"
)

// Worker consumes creation events until ctx is done or events is closed.
type Worker interface {
	Run(ctx context.Context, events <-chan askdir.Event)
}

// Server couples a directory watcher with a single dispatch worker.
type Server struct {
	watcher *watch.Watcher
	worker  Worker
}

// NewServer validates root and registers its watches.
// The returned error is a *watch.StartupError when root cannot be watched.
func NewServer(root string, cfg *askdir.Config, worker Worker) (*Server, error) {
	w, err := watch.New(watch.Config{
		Root:      root,
		Settle:    askdir.SettleDuration(cfg),
		Ignore:    cfg.Watch.Ignore,
		QueueSize: cfg.Watch.QueueSize,
	})
	if err != nil {
		return nil, err
	}
	return &Server{watcher: w, worker: worker}, nil
}

// Root returns the absolute watch root.
func (s *Server) Root() string { return s.watcher.Root() }

// Serve runs until ctx is cancelled. It returns once the worker has finished
// any request it had started.
func (s *Server) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.worker.Run(ctx, s.watcher.Events())
	}()

	err := s.watcher.Run(ctx)
	wg.Wait()
	if err != nil {
		slog.Error("watcher stopped", "error", err)
	}
	return err
}

// Close releases the watch handle. It is only needed when Serve never ran.
func (s *Server) Close() {
	s.watcher.Close()
}
