// Package session owns the per-repository work-session state machine: it
// turns classified filesystem signals into session lifecycle transitions,
// persists them, and drives the status-automation and worklog side
// effects that accompany them.
package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mateuslacerda/devpeace/internal/branch"
	"github.com/mateuslacerda/devpeace/internal/rules"
	"github.com/mateuslacerda/devpeace/internal/store"
	"github.com/mateuslacerda/devpeace/internal/tracker"
	"github.com/mateuslacerda/devpeace/internal/watch"
)

// Config holds the session manager's behavioral knobs, sourced from
// config.json's top-level keys.
type Config struct {
	AutoWorklog                bool
	MinSessionMinutes          int
	CommitCommentThreshold     int
	WorklogDescriptionTemplate string
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		AutoWorklog:            true,
		MinSessionMinutes:      5,
		CommitCommentThreshold: 1,
	}
}

// Manager is the single serialized processor that owns all session-state
// mutations. Signals are delivered to it in FIFO order over a channel and
// handled one at a time, which is what makes invariant I1 (at most one
// active session per repository) trivial to enforce without locking the
// active-session map against concurrent writers.
type Manager struct {
	store   *store.Store
	tracker tracker.Tracker
	rules   *rules.Engine
	cfg     Config

	events chan watch.Signal
	stopCh chan struct{}
	doneCh chan struct{}

	mu              sync.Mutex
	running         bool
	active          map[string]int64 // repo path -> active session id
	firstCommitSeen map[int64]bool
}

// NewManager constructs a Manager bound to its collaborators. Nothing
// starts running until Start is called.
func NewManager(st *store.Store, trk tracker.Tracker, engine *rules.Engine, cfg Config) *Manager {
	return &Manager{
		store:           st,
		tracker:         trk,
		rules:           engine,
		cfg:             cfg,
		events:          make(chan watch.Signal, 256),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
		active:          make(map[string]int64),
		firstCommitSeen: make(map[int64]bool),
	}
}

// Start launches the serialized consumer goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.run(ctx)
}

// Submit enqueues a classified signal for processing. It blocks if the
// internal queue is full, providing natural back-pressure on the watcher.
func (m *Manager) Submit(sig watch.Signal) {
	m.events <- sig
}

// Stop drains the queue, ends every active session, then returns.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
	m.endAllSessions(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)
	for {
		select {
		case sig := <-m.events:
			m.handle(ctx, sig)
		case <-m.stopCh:
			// Drain whatever is already queued before returning so no
			// signal that arrived before shutdown is silently dropped.
			for {
				select {
				case sig := <-m.events:
					m.handle(ctx, sig)
				default:
					m.mu.Lock()
					m.running = false
					m.mu.Unlock()
					return
				}
			}
		}
	}
}

func (m *Manager) handle(ctx context.Context, sig watch.Signal) {
	if sig.CorrelationID != "" {
		log.Printf("session: [%s] handling %s for %s", sig.CorrelationID, sig.Kind, sig.Root)
	}
	switch sig.Kind {
	case watch.SignalRepoEntry:
		m.handleRepoEntry(ctx, sig.Root, sig.Branch)
	case watch.SignalBranchChange:
		m.handleBranchChange(ctx, sig.Root, sig.PreviousBranch, sig.Branch)
	case watch.SignalCommit:
		m.handleCommit(ctx, sig.Root, sig.CommitID, sig.CommitMessage)
	case watch.SignalFileModification:
		m.handleFileModification(ctx, sig.Root, sig.RelPath)
	}
}

func (m *Manager) lookupRepo(ctx context.Context, root string) *store.Repository {
	repo, err := m.store.GetRepositoryByPath(ctx, root)
	if err != nil {
		log.Printf("session: lookup repository %s: %v", root, err)
		return nil
	}
	if repo == nil {
		log.Printf("session: %s is not a registered repository, dropping signal", root)
		return nil
	}
	return repo
}

// handleRepoEntry implements the idle->active and same-branch-continue
// transitions for repo-entry.
func (m *Manager) handleRepoEntry(ctx context.Context, root, branchName string) {
	repo := m.lookupRepo(ctx, root)
	if repo == nil {
		return
	}

	if existingID, continuing, ok := m.currentSession(ctx, repo, root, branchName); ok {
		if continuing {
			m.active[root] = existingID
			return
		}
		m.endSession(ctx, root, existingID)
	}

	sessionID, err := m.openSession(ctx, repo, branchName)
	if err != nil {
		log.Printf("session: open session for %s: %v", root, err)
		return
	}
	if _, err := m.store.AddActivity(ctx, store.AddActivityParams{
		SessionID: sessionID,
		Type:      store.ActivityRepoEntered,
		Details:   strPtr(fmt.Sprintf("entered repository %s on branch %s", repo.Name, branchName)),
	}); err != nil {
		log.Printf("session: record repo-entered activity: %v", err)
	}
}

// handleBranchChange implements the branch-change handoff: the current
// session always ends, regardless of whether the new branch is already
// the one being entered (branch-change is only delivered when the branch
// actually differs from what the classifier last observed).
func (m *Manager) handleBranchChange(ctx context.Context, root, oldBranch, newBranch string) {
	repo := m.lookupRepo(ctx, root)
	if repo == nil {
		return
	}

	if existingID, ok := m.active[root]; ok {
		m.endSession(ctx, root, existingID)
	} else if dbSess, err := m.store.GetActiveSessionForRepo(ctx, repo.ID); err == nil && dbSess != nil {
		m.endSession(ctx, root, dbSess.ID)
	}

	sessionID, err := m.openSession(ctx, repo, newBranch)
	if err != nil {
		log.Printf("session: open session for %s after branch change: %v", root, err)
		return
	}
	if _, err := m.store.AddActivity(ctx, store.AddActivityParams{
		SessionID: sessionID,
		Type:      store.ActivityBranchChanged,
		Details:   strPtr(fmt.Sprintf("branch changed: %s -> %s", oldBranch, newBranch)),
	}); err != nil {
		log.Printf("session: record branch-changed activity: %v", err)
	}
}

// currentSession reports the session already open for root, if any, and
// whether it should simply be continued (same branch) rather than ended.
func (m *Manager) currentSession(ctx context.Context, repo *store.Repository, root, branchName string) (id int64, continuing bool, found bool) {
	if existingID, ok := m.active[root]; ok {
		sess, err := m.store.GetSession(ctx, existingID)
		if err == nil && sess != nil {
			return existingID, sess.BranchName == branchName, true
		}
		return existingID, false, true
	}
	dbSess, err := m.store.GetActiveSessionForRepo(ctx, repo.ID)
	if err != nil || dbSess == nil {
		return 0, false, false
	}
	return dbSess.ID, dbSess.BranchName == branchName, true
}

// openSession is the single factored procedure behind both repo-entry and
// branch-change handoff: derive an issue key from the branch name,
// capture the issue's original remote status if one was derived, create
// the session row, evaluate on_work_start, and create an OrphanRecord
// when no issue key could be derived.
func (m *Manager) openSession(ctx context.Context, repo *store.Repository, branchName string) (int64, error) {
	issueKey := branch.ExtractIssue(branchName)

	var issueKeyPtr, origStatus, currStatus *string
	if issueKey != "" {
		issueKeyPtr = &issueKey
		if issue, ok := m.tracker.GetIssue(ctx, issueKey); ok {
			status := issue.Status
			origStatus = &status
			currStatus = &status
		}
	}

	sessionID, err := m.store.StartSession(ctx, store.StartSessionParams{
		RepositoryID:       repo.ID,
		BranchName:         branchName,
		JiraIssue:          issueKeyPtr,
		OriginalJiraStatus: origStatus,
		CurrentJiraStatus:  currStatus,
	})
	if err != nil {
		return 0, err
	}
	m.active[repo.Path] = sessionID

	if issueKey == "" {
		if _, err := m.store.CreateOrphan(ctx, sessionID, branchName); err != nil {
			log.Printf("session: create orphan record for %s: %v", repo.Path, err)
		}
		return sessionID, nil
	}

	if m.rules.Evaluate(ctx, rules.EventWorkStart, issueKey) {
		if issue, ok := m.tracker.GetIssue(ctx, issueKey); ok {
			newStatus := issue.Status
			if err := m.store.UpdateSessionJiraStatus(ctx, sessionID, nil, &newStatus); err != nil {
				log.Printf("session: update current status after work-start: %v", err)
			}
		}
	}
	return sessionID, nil
}

// handleFileModification records a file-modification activity. The
// classifier has already performed the lazy branch-recheck upstream and,
// when the branch moved, delivered a branch-change signal ahead of this
// one in the same batch — by the time this runs m.active already reflects
// the new session.
func (m *Manager) handleFileModification(ctx context.Context, root, relPath string) {
	sessionID, ok := m.active[root]
	if !ok {
		return
	}
	if _, err := m.store.AddActivity(ctx, store.AddActivityParams{
		SessionID: sessionID,
		Type:      store.ActivityFileModified,
		FilePath:  &relPath,
		Details:   strPtr(fmt.Sprintf("file modified: %s", relPath)),
	}); err != nil {
		log.Printf("session: record file-modified activity: %v", err)
	}
}

// handleCommit records a commit activity, fires on_first_commit exactly
// once per session, and posts a comment when the message spans more than
// the configured threshold of lines.
func (m *Manager) handleCommit(ctx context.Context, root, commitID, commitMessage string) {
	sessionID, ok := m.active[root]
	if !ok {
		return
	}

	dup, err := m.store.HasCommitActivity(ctx, sessionID, commitID)
	if err != nil {
		log.Printf("session: check duplicate commit: %v", err)
		return
	}
	if dup {
		return
	}

	if _, err := m.store.AddActivity(ctx, store.AddActivityParams{
		SessionID:     sessionID,
		Type:          store.ActivityCommit,
		CommitHash:    &commitID,
		CommitMessage: &commitMessage,
		Details:       strPtr(fmt.Sprintf("commit %s: %s", shortID(commitID), firstLine(commitMessage))),
	}); err != nil {
		log.Printf("session: record commit activity: %v", err)
		return
	}

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil || sess == nil {
		return
	}

	if !m.firstCommitSeen[sessionID] {
		m.firstCommitSeen[sessionID] = true
		if sess.JiraIssue != nil {
			if m.rules.Evaluate(ctx, rules.EventFirstCommit, *sess.JiraIssue) {
				if issue, ok := m.tracker.GetIssue(ctx, *sess.JiraIssue); ok {
					newStatus := issue.Status
					if err := m.store.UpdateSessionJiraStatus(ctx, sessionID, nil, &newStatus); err != nil {
						log.Printf("session: update current status after first commit: %v", err)
					}
				}
			}
		}
	}

	if sess.JiraIssue != nil && lineCount(commitMessage) > m.cfg.CommitCommentThreshold {
		body := fmt.Sprintf("Commit: %s\nDate: %s\nMessage: %s", shortID(commitID), store.Now().Format("2006-01-02 15:04"), commitMessage)
		m.tracker.AddComment(ctx, *sess.JiraIssue, body)
	}
}

// endSession implements the session-end procedure: mark completed,
// auto-revert if configured, and (best-effort) emit a worklog.
func (m *Manager) endSession(ctx context.Context, root string, sessionID int64) {
	defer func() {
		m.mu.Lock()
		delete(m.active, root)
		delete(m.firstCommitSeen, sessionID)
		m.mu.Unlock()
	}()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil || sess == nil {
		return
	}

	now := store.Now()
	if err := m.store.EndSession(ctx, sessionID, now); err != nil {
		log.Printf("session: end session %d: %v", sessionID, err)
		return
	}

	if sess.JiraIssue != nil && sess.OriginalJiraStatus != nil {
		m.rules.OnSessionEnd(ctx, *sess.JiraIssue, *sess.OriginalJiraStatus)
	}

	if m.cfg.AutoWorklog {
		m.emitWorklog(ctx, sessionID)
	}
}

// emitWorklog posts a time-tracking entry for a just-ended session, if it
// met the minimum duration, has a derivable issue, and generated any
// activity worth describing. Failure here never unwinds the session end:
// its outcome is only ever recorded in the jira_worklogs table.
func (m *Manager) emitWorklog(ctx context.Context, sessionID int64) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil || sess == nil || sess.JiraIssue == nil {
		return
	}
	if sess.TotalMinutes < m.cfg.MinSessionMinutes {
		return
	}

	activities, err := m.store.ListActivities(ctx, sessionID)
	if err != nil {
		log.Printf("session: list activities for worklog: %v", err)
		return
	}
	description := synthesizeDescription(activities, m.cfg.WorklogDescriptionTemplate)
	if description == "" {
		return
	}

	worklogID, ok := m.tracker.AddWorklog(ctx, *sess.JiraIssue, sess.TotalMinutes, description)
	status := store.WorklogSent
	if !ok {
		status = store.WorklogFailed
	}
	if _, err := m.store.AddWorklog(ctx, store.AddWorklogParams{
		SessionID:        sessionID,
		JiraIssue:        *sess.JiraIssue,
		JiraWorklogID:    worklogID,
		TimeSpentMinutes: sess.TotalMinutes,
		Description:      description,
		Status:           status,
	}); err != nil {
		log.Printf("session: record worklog outcome: %v", err)
	}
}

// synthesizeDescription groups a session's activities into a short
// summary: a header line, file/commit counts, and up to the three most
// recent commit messages. Returns "" (suppress worklog) when there is no
// activity to describe and no fallback template is configured.
func synthesizeDescription(activities []store.Activity, fallback string) string {
	if len(activities) == 0 {
		return fallback
	}

	var files, commits int
	var recentCommits []string
	for _, a := range activities {
		switch a.Type {
		case store.ActivityFileModified:
			files++
		case store.ActivityCommit:
			commits++
			if a.CommitMessage != nil {
				recentCommits = append(recentCommits, firstLine(*a.CommitMessage))
			}
		}
	}
	if files == 0 && commits == 0 {
		return fallback
	}
	if len(recentCommits) > 3 {
		recentCommits = recentCommits[len(recentCommits)-3:]
	}

	var b strings.Builder
	b.WriteString("Work session summary:\n")
	if files > 0 {
		fmt.Fprintf(&b, "- %d file(s) modified\n", files)
	}
	if commits > 0 {
		fmt.Fprintf(&b, "- %d commit(s) made\n", commits)
	}
	for _, msg := range recentCommits {
		fmt.Fprintf(&b, "  * %s\n", msg)
	}
	return strings.TrimRight(b.String(), "\n")
}

// endAllSessions ends every repository's active session concurrently:
// different repositories have no ordering requirement between them,
// while ordering of tracker calls for a single issue stays intact
// because each repository's end procedure is still a single sequential
// call chain run on its own goroutine.
func (m *Manager) endAllSessions(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for root, sessionID := range copyActive(m.active) {
		root, sessionID := root, sessionID
		g.Go(func() error {
			m.endSession(gctx, root, sessionID)
			return nil
		})
	}
	_ = g.Wait()
}

func copyActive(active map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(active))
	for k, v := range active {
		out[k] = v
	}
	return out
}

// ActiveCount reports how many sessions this manager currently considers
// active in memory.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func strPtr(s string) *string { return &s }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}

func lineCount(msg string) int {
	trimmed := strings.TrimRight(msg, "\n")
	if trimmed == "" {
		return 1
	}
	return strings.Count(trimmed, "\n") + 1
}
