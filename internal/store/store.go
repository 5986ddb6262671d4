// Package store is the durable, single-writer persistence layer for
// repositories, work sessions, activities, tracker worklogs, and orphan
// records. It wraps an embedded SQLite database and evolves its schema
// forward-only: at open, any column the running code expects but the
// table does not yet have is added via ALTER TABLE.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the embedded database connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at dbPath, initializing its
// schema and applying any pending forward-only migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	escapedPath := strings.ReplaceAll(dbPath, " ", "%20")
	connStr := "file:" + escapedPath + "?_time_format=sqlite"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// migrate introspects the live work_sessions schema and adds any column
// the current code expects but the table lacks. No column is ever
// removed or renamed.
func (s *Store) migrate() error {
	rows, err := s.db.Query("PRAGMA table_info(work_sessions)")
	if err != nil {
		return err
	}
	present := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, col := range []string{"original_jira_status", "current_jira_status"} {
		if present[col] {
			continue
		}
		if _, err := s.db.Exec("ALTER TABLE work_sessions ADD COLUMN " + col + " TEXT"); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for callers that need raw access
// (e.g. CLI projections).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Now returns the current time in UTC with its monotonic reading
// stripped, producing clean timestamps for SQLite storage.
func Now() time.Time {
	return time.Now().UTC().Round(0)
}

// DefaultPath returns the default database path,
// "${config_dir}/dev-peace/database.db".
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "dev-peace", "database.db")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

// ---- Repository operations ----

// AddRepository inserts a new repository and returns its id.
func (s *Store) AddRepository(ctx context.Context, path, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories (path, name) VALUES (?, ?)`, path, name)
	if err != nil {
		return 0, fmt.Errorf("add repository: %w", err)
	}
	return res.LastInsertId()
}

// GetRepositoryByPath returns the repository at path, or nil if none is
// registered there.
func (s *Store) GetRepositoryByPath(ctx context.Context, path string) (*Repository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, name, is_active, created_at, last_activity
		   FROM repositories WHERE path = ?`, path)
	return scanRepository(row)
}

// GetRepositoryByID returns the repository with the given id, or nil.
func (s *Store) GetRepositoryByID(ctx context.Context, id int64) (*Repository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, name, is_active, created_at, last_activity
		   FROM repositories WHERE id = ?`, id)
	return scanRepository(row)
}

// ListRepositories returns every registered repository ordered by name.
func (s *Store) ListRepositories(ctx context.Context) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, name, is_active, created_at, last_activity
		   FROM repositories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		var r Repository
		var lastActivity sql.NullTime
		if err := rows.Scan(&r.ID, &r.Path, &r.Name, &r.IsActive, &r.CreatedAt, &lastActivity); err != nil {
			return nil, err
		}
		r.LastActivity = timePtr(lastActivity)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListActiveRepositories returns only repositories with is_active = true.
func (s *Store) ListActiveRepositories(ctx context.Context) ([]Repository, error) {
	all, err := s.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	var active []Repository
	for _, r := range all {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

// ToggleRepositoryActive flips a repository's active flag.
func (s *Store) ToggleRepositoryActive(ctx context.Context, id int64) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT is_active FROM repositories WHERE id = ?`, id)
	var active bool
	if err := row.Scan(&active); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	active = !active
	if _, err := s.db.ExecContext(ctx, `UPDATE repositories SET is_active = ? WHERE id = ?`, active, id); err != nil {
		return false, err
	}
	return true, nil
}

// TouchRepositoryActivity updates a repository's last-activity timestamp.
func (s *Store) TouchRepositoryActivity(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE repositories SET last_activity = ? WHERE id = ?`, at, id)
	return err
}

func scanRepository(row *sql.Row) (*Repository, error) {
	var r Repository
	var lastActivity sql.NullTime
	if err := row.Scan(&r.ID, &r.Path, &r.Name, &r.IsActive, &r.CreatedAt, &lastActivity); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	r.LastActivity = timePtr(lastActivity)
	return &r, nil
}

// ---- WorkSession operations ----

// StartSessionParams are the fields needed to open a new session.
type StartSessionParams struct {
	RepositoryID       int64
	BranchName         string
	JiraIssue          *string
	OriginalJiraStatus *string
	CurrentJiraStatus  *string
}

// StartSession inserts a new active work session and returns its id.
func (s *Store) StartSession(ctx context.Context, p StartSessionParams) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO work_sessions
		   (repository_id, branch_name, jira_issue, original_jira_status, current_jira_status)
		 VALUES (?, ?, ?, ?, ?)`,
		p.RepositoryID, p.BranchName, nullString(p.JiraIssue),
		nullString(p.OriginalJiraStatus), nullString(p.CurrentJiraStatus))
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	return res.LastInsertId()
}

// EndSession marks a session completed, computing its duration as
// now-start (I2: computed once, never recomputed).
func (s *Store) EndSession(ctx context.Context, id int64, now time.Time) error {
	row := s.db.QueryRowContext(ctx, `SELECT start_time FROM work_sessions WHERE id = ?`, id)
	var start time.Time
	if err := row.Scan(&start); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("end session: no such session %d", id)
		}
		return err
	}

	minutes := int(now.Sub(start).Minutes())
	if minutes < 0 {
		minutes = 0
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE work_sessions
		   SET end_time = ?, total_minutes = ?, is_active = 0, status = 'completed'
		 WHERE id = ?`,
		now, minutes, id)
	return err
}

// UpdateSessionJiraStatus patches original/current tracker status fields;
// a nil argument leaves the corresponding column untouched.
func (s *Store) UpdateSessionJiraStatus(ctx context.Context, id int64, original, current *string) error {
	if original == nil && current == nil {
		return nil
	}
	var sets []string
	var args []any
	if original != nil {
		sets = append(sets, "original_jira_status = ?")
		args = append(args, *original)
	}
	if current != nil {
		sets = append(sets, "current_jira_status = ?")
		args = append(args, *current)
	}
	args = append(args, id)
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE work_sessions SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	return err
}

// GetActiveSessionForRepo returns the active session for a repository, or
// nil if the repository is idle.
func (s *Store) GetActiveSessionForRepo(ctx context.Context, repoID int64) (*WorkSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, repository_id, branch_name, jira_issue, start_time, end_time,
		        total_minutes, is_active, jira_worklog_id, status,
		        original_jira_status, current_jira_status
		   FROM work_sessions
		  WHERE repository_id = ? AND is_active = 1
		  ORDER BY start_time DESC LIMIT 1`, repoID)
	return scanSession(row)
}

// GetSession returns a session by id, or nil.
func (s *Store) GetSession(ctx context.Context, id int64) (*WorkSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, repository_id, branch_name, jira_issue, start_time, end_time,
		        total_minutes, is_active, jira_worklog_id, status,
		        original_jira_status, current_jira_status
		   FROM work_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListActiveSessions returns every session currently marked active.
func (s *Store) ListActiveSessions(ctx context.Context) ([]WorkSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repository_id, branch_name, jira_issue, start_time, end_time,
		        total_minutes, is_active, jira_worklog_id, status,
		        original_jira_status, current_jira_status
		   FROM work_sessions WHERE is_active = 1 ORDER BY start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkSession
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*WorkSession, error) {
	var w WorkSession
	var jiraIssue, jiraWorklogID, origStatus, currStatus sql.NullString
	var endTime sql.NullTime
	var status string
	if err := row.Scan(&w.ID, &w.RepositoryID, &w.BranchName, &jiraIssue, &w.StartTime, &endTime,
		&w.TotalMinutes, &w.IsActive, &jiraWorklogID, &status, &origStatus, &currStatus); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	w.JiraIssue = stringPtr(jiraIssue)
	w.JiraWorklogID = stringPtr(jiraWorklogID)
	w.OriginalJiraStatus = stringPtr(origStatus)
	w.CurrentJiraStatus = stringPtr(currStatus)
	w.EndTime = timePtr(endTime)
	w.Status = SessionStatus(status)
	return &w, nil
}

func scanSessionRows(rows *sql.Rows) (*WorkSession, error) {
	var w WorkSession
	var jiraIssue, jiraWorklogID, origStatus, currStatus sql.NullString
	var endTime sql.NullTime
	var status string
	if err := rows.Scan(&w.ID, &w.RepositoryID, &w.BranchName, &jiraIssue, &w.StartTime, &endTime,
		&w.TotalMinutes, &w.IsActive, &jiraWorklogID, &status, &origStatus, &currStatus); err != nil {
		return nil, err
	}
	w.JiraIssue = stringPtr(jiraIssue)
	w.JiraWorklogID = stringPtr(jiraWorklogID)
	w.OriginalJiraStatus = stringPtr(origStatus)
	w.CurrentJiraStatus = stringPtr(currStatus)
	w.EndTime = timePtr(endTime)
	w.Status = SessionStatus(status)
	return &w, nil
}

// ---- Activity operations ----

// AddActivityParams are the optional fields an activity may carry.
type AddActivityParams struct {
	SessionID     int64
	Type          ActivityType
	FilePath      *string
	CommitHash    *string
	CommitMessage *string
	Details       *string
}

// AddActivity appends an activity row and returns its id.
func (s *Store) AddActivity(ctx context.Context, p AddActivityParams) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (session_id, activity_type, file_path, commit_hash, commit_message, details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.SessionID, string(p.Type), nullString(p.FilePath), nullString(p.CommitHash),
		nullString(p.CommitMessage), nullString(p.Details))
	if err != nil {
		return 0, fmt.Errorf("add activity: %w", err)
	}
	return res.LastInsertId()
}

// ListActivities returns every activity recorded for a session, oldest
// first.
func (s *Store) ListActivities(ctx context.Context, sessionID int64) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, activity_type, file_path, commit_hash, commit_message, timestamp, details
		   FROM activities WHERE session_id = ? ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		var filePath, commitHash, commitMessage, details sql.NullString
		var typ string
		if err := rows.Scan(&a.ID, &a.SessionID, &typ, &filePath, &commitHash, &commitMessage, &a.Timestamp, &details); err != nil {
			return nil, err
		}
		a.Type = ActivityType(typ)
		a.FilePath = stringPtr(filePath)
		a.CommitHash = stringPtr(commitHash)
		a.CommitMessage = stringPtr(commitMessage)
		a.Details = stringPtr(details)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountActivities returns the number of activities recorded for a
// session.
func (s *Store) CountActivities(ctx context.Context, sessionID int64) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE session_id = ?`, sessionID)
	var n int
	err := row.Scan(&n)
	return n, err
}

// HasCommitActivity reports whether a commit with the given hash has
// already been recorded for the session, used to make commit detection
// idempotent across duplicate ref-log events.
func (s *Store) HasCommitActivity(ctx context.Context, sessionID int64, commitHash string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activities WHERE session_id = ? AND activity_type = 'commit' AND commit_hash = ?`,
		sessionID, commitHash)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---- Worklog operations ----

// AddWorklogParams describes a worklog attempt to record, successful or
// not.
type AddWorklogParams struct {
	SessionID        int64
	JiraIssue        string
	JiraWorklogID    string
	TimeSpentMinutes int
	Description      string
	Status           WorklogStatus
}

// AddWorklog records the outcome of a worklog post attempt.
func (s *Store) AddWorklog(ctx context.Context, p AddWorklogParams) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jira_worklogs (session_id, jira_issue, jira_worklog_id, time_spent_minutes, description, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.JiraIssue, p.JiraWorklogID, p.TimeSpentMinutes, p.Description, string(p.Status))
	if err != nil {
		return 0, fmt.Errorf("add worklog: %w", err)
	}
	return res.LastInsertId()
}

// ---- Orphan operations ----

// CreateOrphan snapshots a session's activity count and total minutes
// into a new orphan record and returns its id.
func (s *Store) CreateOrphan(ctx context.Context, sessionID int64, branchName string) (int64, error) {
	count, err := s.CountActivities(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	var totalMinutes int
	row := s.db.QueryRowContext(ctx, `SELECT total_minutes FROM work_sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&totalMinutes); err != nil && err != sql.ErrNoRows {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO orphan_records (session_id, branch_name, total_minutes, activities_count)
		 VALUES (?, ?, ?, ?)`, sessionID, branchName, totalMinutes, count)
	if err != nil {
		return 0, fmt.Errorf("create orphan: %w", err)
	}
	return res.LastInsertId()
}

// ListUnassignedOrphans returns orphan records awaiting assignment, most
// recent first.
func (s *Store) ListUnassignedOrphans(ctx context.Context) ([]OrphanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, branch_name, total_minutes, activities_count, created_at, assigned_issue, status
		   FROM orphan_records WHERE status = 'orphaned' ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrphanRecord
	for rows.Next() {
		var o OrphanRecord
		var assigned sql.NullString
		var status string
		if err := rows.Scan(&o.ID, &o.SessionID, &o.BranchName, &o.TotalMinutes, &o.ActivitiesCount,
			&o.CreatedAt, &assigned, &status); err != nil {
			return nil, err
		}
		o.AssignedIssue = stringPtr(assigned)
		o.Status = OrphanStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// AssignOrphan records the issue key assigned to an orphan.
func (s *Store) AssignOrphan(ctx context.Context, id int64, issueKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orphan_records SET assigned_issue = ?, status = 'assigned' WHERE id = ?`, issueKey, id)
	return err
}

// DeleteOrphan removes an orphan record.
func (s *Store) DeleteOrphan(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM orphan_records WHERE id = ?`, id)
	return err
}
