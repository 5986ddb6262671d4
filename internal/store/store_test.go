package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateAddsJiraStatusColumns(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "migrate.db")

	// Simulate a database created before the status columns existed.
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE repositories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_activity TIMESTAMP
	)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE work_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repository_id INTEGER NOT NULL,
		branch_name TEXT NOT NULL,
		jira_issue TEXT,
		start_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		end_time TIMESTAMP,
		total_minutes INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		jira_worklog_id TEXT,
		status TEXT NOT NULL DEFAULT 'active'
	)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() on pre-existing db error = %v", err)
	}
	defer s.Close()

	rows, err := s.db.Query("PRAGMA table_info(work_sessions)")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			t.Fatal(err)
		}
		cols[name] = true
	}
	for _, want := range []string{"original_jira_status", "current_jira_status"} {
		if !cols[want] {
			t.Errorf("migrate() did not add column %q", want)
		}
	}
}

func TestRepositoryCRUD(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddRepository(ctx, "/repos/a", "a")
	if err != nil {
		t.Fatalf("AddRepository() error = %v", err)
	}

	byPath, err := s.GetRepositoryByPath(ctx, "/repos/a")
	if err != nil || byPath == nil {
		t.Fatalf("GetRepositoryByPath() = %v, %v", byPath, err)
	}
	if byPath.ID != id || !byPath.IsActive {
		t.Errorf("GetRepositoryByPath() = %+v, want id=%d active=true", byPath, id)
	}

	byID, err := s.GetRepositoryByID(ctx, id)
	if err != nil || byID == nil || byID.Path != "/repos/a" {
		t.Fatalf("GetRepositoryByID() = %+v, %v", byID, err)
	}

	ok, err := s.ToggleRepositoryActive(ctx, id)
	if err != nil || !ok {
		t.Fatalf("ToggleRepositoryActive() = %v, %v", ok, err)
	}
	after, _ := s.GetRepositoryByID(ctx, id)
	if after.IsActive {
		t.Error("ToggleRepositoryActive() did not flip is_active")
	}

	all, err := s.ListRepositories(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListRepositories() = %v, %v", all, err)
	}

	missing, err := s.GetRepositoryByPath(ctx, "/nope")
	if err != nil || missing != nil {
		t.Fatalf("GetRepositoryByPath(missing) = %v, %v", missing, err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	repoID, err := s.AddRepository(ctx, "/repos/b", "b")
	if err != nil {
		t.Fatal(err)
	}

	issue := "PROJ-7"
	sessID, err := s.StartSession(ctx, StartSessionParams{
		RepositoryID: repoID,
		BranchName:   "feature/PROJ-7-thing",
		JiraIssue:    &issue,
	})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	active, err := s.GetActiveSessionForRepo(ctx, repoID)
	if err != nil || active == nil {
		t.Fatalf("GetActiveSessionForRepo() = %v, %v", active, err)
	}
	if active.ID != sessID || !active.IsActive || active.JiraIssue == nil || *active.JiraIssue != issue {
		t.Errorf("GetActiveSessionForRepo() = %+v", active)
	}

	if _, err := s.AddActivity(ctx, AddActivityParams{SessionID: sessID, Type: ActivityRepoEntered}); err != nil {
		t.Fatal(err)
	}
	hash := "deadbeef"
	if _, err := s.AddActivity(ctx, AddActivityParams{SessionID: sessID, Type: ActivityCommit, CommitHash: &hash}); err != nil {
		t.Fatal(err)
	}

	has, err := s.HasCommitActivity(ctx, sessID, hash)
	if err != nil || !has {
		t.Fatalf("HasCommitActivity() = %v, %v, want true", has, err)
	}
	hasNot, err := s.HasCommitActivity(ctx, sessID, "nonexistent")
	if err != nil || hasNot {
		t.Fatalf("HasCommitActivity(nonexistent) = %v, %v, want false", hasNot, err)
	}

	count, err := s.CountActivities(ctx, sessID)
	if err != nil || count != 2 {
		t.Fatalf("CountActivities() = %d, %v, want 2", count, err)
	}

	newStatus := "In Progress"
	if err := s.UpdateSessionJiraStatus(ctx, sessID, nil, &newStatus); err != nil {
		t.Fatal(err)
	}
	reloaded, _ := s.GetSession(ctx, sessID)
	if reloaded.CurrentJiraStatus == nil || *reloaded.CurrentJiraStatus != newStatus {
		t.Errorf("UpdateSessionJiraStatus() current = %v, want %q", reloaded.CurrentJiraStatus, newStatus)
	}
	if reloaded.OriginalJiraStatus != nil {
		t.Errorf("UpdateSessionJiraStatus() touched original unexpectedly: %v", reloaded.OriginalJiraStatus)
	}

	start := active.StartTime
	end := start.Add(37 * time.Minute)
	if err := s.EndSession(ctx, sessID, end); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	ended, err := s.GetSession(ctx, sessID)
	if err != nil || ended == nil {
		t.Fatalf("GetSession() after end = %v, %v", ended, err)
	}
	if ended.IsActive {
		t.Error("EndSession() left is_active = true")
	}
	if ended.TotalMinutes != 37 {
		t.Errorf("EndSession() total_minutes = %d, want 37", ended.TotalMinutes)
	}
	if ended.Status != SessionCompleted {
		t.Errorf("EndSession() status = %q, want completed", ended.Status)
	}

	stillActive, err := s.GetActiveSessionForRepo(ctx, repoID)
	if err != nil || stillActive != nil {
		t.Fatalf("GetActiveSessionForRepo() after end = %v, %v, want nil", stillActive, err)
	}
}

func TestOrphanLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	repoID, err := s.AddRepository(ctx, "/repos/c", "c")
	if err != nil {
		t.Fatal(err)
	}
	sessID, err := s.StartSession(ctx, StartSessionParams{RepositoryID: repoID, BranchName: "quick-fix"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddActivity(ctx, AddActivityParams{SessionID: sessID, Type: ActivityFileModified}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddActivity(ctx, AddActivityParams{SessionID: sessID, Type: ActivityFileModified}); err != nil {
		t.Fatal(err)
	}

	orphanID, err := s.CreateOrphan(ctx, sessID, "quick-fix")
	if err != nil {
		t.Fatalf("CreateOrphan() error = %v", err)
	}

	unassigned, err := s.ListUnassignedOrphans(ctx)
	if err != nil || len(unassigned) != 1 {
		t.Fatalf("ListUnassignedOrphans() = %v, %v, want 1 entry", unassigned, err)
	}
	if unassigned[0].ActivitiesCount != 2 {
		t.Errorf("CreateOrphan() snapshotted activities_count = %d, want 2", unassigned[0].ActivitiesCount)
	}
	if unassigned[0].Status != OrphanUnassigned {
		t.Errorf("orphan status = %q, want orphaned", unassigned[0].Status)
	}

	if err := s.AssignOrphan(ctx, orphanID, "PROJ-99"); err != nil {
		t.Fatalf("AssignOrphan() error = %v", err)
	}
	afterAssign, err := s.ListUnassignedOrphans(ctx)
	if err != nil || len(afterAssign) != 0 {
		t.Fatalf("ListUnassignedOrphans() after assign = %v, %v, want empty", afterAssign, err)
	}

	if err := s.DeleteOrphan(ctx, orphanID); err != nil {
		t.Fatalf("DeleteOrphan() error = %v", err)
	}
}

func TestAddWorklog(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	repoID, err := s.AddRepository(ctx, "/repos/d", "d")
	if err != nil {
		t.Fatal(err)
	}
	sessID, err := s.StartSession(ctx, StartSessionParams{RepositoryID: repoID, BranchName: "main"})
	if err != nil {
		t.Fatal(err)
	}

	id, err := s.AddWorklog(ctx, AddWorklogParams{
		SessionID:        sessID,
		JiraIssue:        "PROJ-1",
		JiraWorklogID:    "10042",
		TimeSpentMinutes: 45,
		Description:      "Worked on PROJ-1",
		Status:           WorklogSent,
	})
	if err != nil || id == 0 {
		t.Fatalf("AddWorklog() = %d, %v", id, err)
	}
}
