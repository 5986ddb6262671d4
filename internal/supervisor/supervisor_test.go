package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mateuslacerda/devpeace/internal/rules"
	"github.com/mateuslacerda/devpeace/internal/session"
	"github.com/mateuslacerda/devpeace/internal/store"
	"github.com/mateuslacerda/devpeace/internal/tracker/faketracker"
	"github.com/mateuslacerda/devpeace/internal/watch"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	f := faketracker.New()
	engine := rules.New(rules.RuleDocument{}, f)
	cfg := session.DefaultConfig()
	cfg.AutoWorklog = false
	sup := New(st, f, engine, cfg, watch.Options{})
	return sup, st
}

// newRepoDir returns a temporary directory with an empty .git directory,
// enough for the watcher to accept it as a repository root.
func newRepoDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestStartWatchesActiveRepositories(t *testing.T) {
	t.Parallel()
	sup, st := newTestSupervisor(t)
	ctx := context.Background()

	repoPath := newRepoDir(t)
	if _, err := st.AddRepository(ctx, repoPath, "repo"); err != nil {
		t.Fatal(err)
	}

	if err := sup.Start(ctx, nil); err != nil {
		t.Fatal(err)
	}
	defer sup.Stop(ctx)

	if !sup.Running() {
		t.Error("Running() = false after Start")
	}

	stats, err := sup.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.MonitoredPaths != 1 {
		t.Errorf("MonitoredPaths = %d, want 1", stats.MonitoredPaths)
	}
	if stats.TotalRepositories != 1 || stats.ActiveRepositories != 1 {
		t.Errorf("Stats = %+v, want 1/1 repositories", stats)
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	t.Parallel()
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	if err := sup.Start(ctx, []string{newRepoDir(t)}); err != nil {
		t.Fatal(err)
	}
	defer sup.Stop(ctx)

	if err := sup.Start(ctx, []string{newRepoDir(t)}); err != nil {
		t.Fatal(err)
	}
	stats, err := sup.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.MonitoredPaths != 1 {
		t.Errorf("MonitoredPaths after second Start = %d, want 1 (no-op)", stats.MonitoredPaths)
	}
}

func TestRefreshPicksUpNewlyActiveRepositories(t *testing.T) {
	t.Parallel()
	sup, st := newTestSupervisor(t)
	ctx := context.Background()

	first := newRepoDir(t)
	if _, err := st.AddRepository(ctx, first, "first"); err != nil {
		t.Fatal(err)
	}
	if err := sup.Start(ctx, nil); err != nil {
		t.Fatal(err)
	}
	defer sup.Stop(ctx)

	second := newRepoDir(t)
	if _, err := st.AddRepository(ctx, second, "second"); err != nil {
		t.Fatal(err)
	}

	if err := sup.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	stats, err := sup.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.MonitoredPaths != 2 {
		t.Errorf("MonitoredPaths after Refresh = %d, want 2", stats.MonitoredPaths)
	}
}

func TestStopClearsRunningState(t *testing.T) {
	t.Parallel()
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	if err := sup.Start(ctx, []string{t.TempDir()}); err != nil {
		t.Fatal(err)
	}
	if err := sup.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if sup.Running() {
		t.Error("Running() = true after Stop")
	}

	stats, err := sup.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.MonitoredPaths != 0 {
		t.Errorf("MonitoredPaths after Stop = %d, want 0", stats.MonitoredPaths)
	}
}
