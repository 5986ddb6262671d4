package store

import "time"

// Repository is a monitored working tree.
type Repository struct {
	ID           int64
	Path         string
	Name         string
	IsActive     bool
	CreatedAt    time.Time
	LastActivity *time.Time
}

// SessionStatus enumerates the lifecycle states of a WorkSession.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// WorkSession is a bounded interval of observed work on one repository and
// branch, optionally correlated with a tracker issue.
type WorkSession struct {
	ID                  int64
	RepositoryID        int64
	BranchName          string
	JiraIssue           *string
	StartTime           time.Time
	EndTime             *time.Time
	TotalMinutes         int
	IsActive            bool
	JiraWorklogID       *string
	Status              SessionStatus
	OriginalJiraStatus  *string
	CurrentJiraStatus   *string
}

// ActivityType enumerates the kinds of Activity rows recorded against a
// session.
type ActivityType string

const (
	ActivityRepoEntered   ActivityType = "repo_entered"
	ActivityBranchChanged ActivityType = "branch_changed"
	ActivityFileModified  ActivityType = "file_modified"
	ActivityCommit        ActivityType = "commit"
)

// Activity is an append-only record of an observed event within a
// WorkSession.
type Activity struct {
	ID            int64
	SessionID     int64
	Type          ActivityType
	FilePath      *string
	CommitHash    *string
	CommitMessage *string
	Timestamp     time.Time
	Details       *string
}

// WorklogStatus enumerates the outcome of attempting to post a worklog.
type WorklogStatus string

const (
	WorklogSent    WorklogStatus = "sent"
	WorklogFailed  WorklogStatus = "failed"
	WorklogPending WorklogStatus = "pending"
)

// Worklog is a time-tracking entry recorded against a tracker issue.
type Worklog struct {
	ID                int64
	SessionID         int64
	JiraIssue         string
	JiraWorklogID     string
	TimeSpentMinutes  int
	Description       string
	SentAt            time.Time
	Status            WorklogStatus
}

// OrphanStatus enumerates the lifecycle of an OrphanRecord.
type OrphanStatus string

const (
	OrphanUnassigned OrphanStatus = "orphaned"
	OrphanAssigned   OrphanStatus = "assigned"
)

// OrphanRecord tracks a session that began without a derivable issue key.
type OrphanRecord struct {
	ID              int64
	SessionID       int64
	BranchName      string
	TotalMinutes    int
	ActivitiesCount int
	CreatedAt       time.Time
	AssignedIssue   *string
	Status          OrphanStatus
}
