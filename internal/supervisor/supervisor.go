// Package supervisor ties together the filesystem watcher and the
// session manager: it starts and stops their lifetimes together, keeps
// the watched set in sync with the repository registry, and reports
// aggregate statistics.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mateuslacerda/devpeace/internal/rules"
	"github.com/mateuslacerda/devpeace/internal/session"
	"github.com/mateuslacerda/devpeace/internal/store"
	"github.com/mateuslacerda/devpeace/internal/tracker"
	"github.com/mateuslacerda/devpeace/internal/watch"
)

// Supervisor owns one store, one tracker client, one rules engine, one
// session manager, and one filesystem watcher, and coordinates their
// start/stop/refresh lifecycle.
type Supervisor struct {
	store   *store.Store
	tracker tracker.Tracker
	rules   *rules.Engine
	manager *session.Manager
	watcher *watch.Watcher

	mu             sync.Mutex
	running        bool
	monitoredPaths map[string]bool
}

// New constructs a Supervisor. Nothing is watched and no session
// processing happens until Start is called.
func New(st *store.Store, trk tracker.Tracker, engine *rules.Engine, sessCfg session.Config, watchOpts watch.Options) *Supervisor {
	return &Supervisor{
		store:          st,
		tracker:        trk,
		rules:          engine,
		manager:        session.NewManager(st, trk, engine, sessCfg),
		watcher:        watch.New(watchOpts),
		monitoredPaths: make(map[string]bool),
	}
}

// Start begins watching paths (or, if empty, every active repository
// currently registered in the store) and starts the session manager.
// Calling Start twice is a no-op.
func (s *Supervisor) Start(ctx context.Context, paths []string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if len(paths) == 0 {
		active, err := s.store.ListActiveRepositories(ctx)
		if err != nil {
			return fmt.Errorf("list active repositories: %w", err)
		}
		for _, repo := range active {
			paths = append(paths, repo.Path)
		}
	}

	s.manager.Start(ctx)
	// Start dispatching before adding roots: AddRoot emits the root's
	// repo-entry signal immediately, and a signal emitted before
	// onSignal is wired up is silently dropped.
	s.watcher.Start(ctx, s.manager.Submit)

	for _, path := range paths {
		if err := s.watcher.AddRoot(path); err != nil {
			log.Printf("supervisor: failed to watch %s: %v", path, err)
			continue
		}
		s.mu.Lock()
		s.monitoredPaths[path] = true
		s.mu.Unlock()
	}
	if len(paths) == 0 {
		log.Print("supervisor: no repositories configured yet, waiting for new ones")
	}
	return nil
}

// Stop drains the watcher and ends every active session, blocking until
// both have finished.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if err := s.watcher.Close(); err != nil {
		log.Printf("supervisor: closing watcher: %v", err)
	}
	s.manager.Stop(ctx)

	s.mu.Lock()
	s.monitoredPaths = make(map[string]bool)
	s.mu.Unlock()
	return nil
}

// Refresh re-reads the active repository list from the store and begins
// watching any path that became active since the last refresh. Paths
// that became inactive are left alone until the next restart.
func (s *Supervisor) Refresh(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil
	}

	active, err := s.store.ListActiveRepositories(ctx)
	if err != nil {
		return fmt.Errorf("list active repositories: %w", err)
	}

	for _, repo := range active {
		s.mu.Lock()
		already := s.monitoredPaths[repo.Path]
		s.mu.Unlock()
		if already {
			continue
		}
		if err := s.watcher.AddRoot(repo.Path); err != nil {
			log.Printf("supervisor: failed to watch new repository %s: %v", repo.Path, err)
			continue
		}
		s.mu.Lock()
		s.monitoredPaths[repo.Path] = true
		s.mu.Unlock()
		log.Printf("supervisor: now watching newly active repository %s", repo.Path)
	}
	return nil
}

// Stats is an aggregate snapshot of supervisor and repository state.
type Stats struct {
	TotalRepositories  int
	ActiveRepositories int
	ActiveSessions     int
	OrphanRecords      int
	MonitoredPaths     int
	Running            bool
}

// Stats reports aggregate counts across the repository registry, the
// in-memory session set, and the watched path set.
func (s *Supervisor) Stats(ctx context.Context) (Stats, error) {
	repos, err := s.store.ListRepositories(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list repositories: %w", err)
	}
	orphans, err := s.store.ListUnassignedOrphans(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list orphans: %w", err)
	}

	var activeRepos int
	for _, r := range repos {
		if r.IsActive {
			activeRepos++
		}
	}

	s.mu.Lock()
	monitored := len(s.monitoredPaths)
	running := s.running
	s.mu.Unlock()

	return Stats{
		TotalRepositories:  len(repos),
		ActiveRepositories: activeRepos,
		ActiveSessions:     s.manager.ActiveCount(),
		OrphanRecords:      len(orphans),
		MonitoredPaths:     monitored,
		Running:            running,
	}, nil
}

// Running reports whether the supervisor is currently started.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
