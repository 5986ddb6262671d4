// Package faketracker is a hand-rolled in-memory stand-in for
// tracker.Client, used by tests that exercise the session manager and
// status rules engine without a live tracker.
package faketracker

import (
	"context"
	"strings"
	"sync"

	"github.com/mateuslacerda/devpeace/internal/tracker"
)

// Fake implements tracker.Tracker entirely in memory.
type Fake struct {
	mu sync.Mutex

	Connected bool
	Issues    map[string]tracker.Issue
	// Transitions maps an issue key to the transitions available on it.
	Transitions map[string][]tracker.Transition
	Projects    []tracker.Project
	AllStatuses []string

	Worklogs   map[string][]tracker.Worklog
	Comments   map[string][]string
	nextWorklogID int

	// TransitionCalls records every (key, targetStatus) pair passed to
	// Transition, in order, for assertions.
	TransitionCalls []TransitionCall
}

// TransitionCall records one Transition invocation.
type TransitionCall struct {
	Key    string
	Target string
}

// New returns an empty Fake ready for its zero-value maps to be
// populated by the test.
func New() *Fake {
	return &Fake{
		Issues:      make(map[string]tracker.Issue),
		Transitions: make(map[string][]tracker.Transition),
		Worklogs:    make(map[string][]tracker.Worklog),
		Comments:    make(map[string][]string),
	}
}

func (f *Fake) Connect(ctx context.Context) bool {
	return f.Connected
}

func (f *Fake) GetIssue(ctx context.Context, key string) (tracker.Issue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.Issues[key]
	return issue, ok
}

func (f *Fake) IssueExists(ctx context.Context, key string) bool {
	_, ok := f.GetIssue(ctx, key)
	return ok
}

func (f *Fake) AddWorklog(ctx context.Context, key string, minutes int, comment string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Issues[key]; !ok {
		return "", false
	}
	f.nextWorklogID++
	id := tracker.FormatDuration(f.nextWorklogID)
	f.Worklogs[key] = append(f.Worklogs[key], tracker.Worklog{
		ID: id, TimeSpentMinutes: minutes, Comment: comment,
	})
	return id, true
}

func (f *Fake) AddComment(ctx context.Context, key, body string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Issues[key]; !ok {
		return false
	}
	f.Comments[key] = append(f.Comments[key], body)
	return true
}

func (f *Fake) Search(ctx context.Context, jql string, max int) []tracker.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tracker.Issue
	for _, issue := range f.Issues {
		out = append(out, issue)
		if len(out) >= max {
			break
		}
	}
	return out
}

func (f *Fake) MyIssues(ctx context.Context, status string) []tracker.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tracker.Issue
	for _, issue := range f.Issues {
		if status == "" || strings.EqualFold(issue.Status, status) {
			out = append(out, issue)
		}
	}
	return out
}

func (f *Fake) ListTransitions(ctx context.Context, key string) []tracker.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Transitions[key]
}

func (f *Fake) Transition(ctx context.Context, key, targetStatusName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TransitionCalls = append(f.TransitionCalls, TransitionCall{Key: key, Target: targetStatusName})

	for _, t := range f.Transitions[key] {
		if strings.EqualFold(t.ToStatus, targetStatusName) {
			issue := f.Issues[key]
			issue.Status = t.ToStatus
			f.Issues[key] = issue
			return true
		}
	}
	return false
}

func (f *Fake) ListProjects(ctx context.Context) []tracker.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Projects
}

func (f *Fake) ListProjectStatuses(ctx context.Context, key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AllStatuses
}

func (f *Fake) ListAllStatuses(ctx context.Context) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AllStatuses
}

func (f *Fake) IssueWorkflow(ctx context.Context, key string) (tracker.Workflow, bool) {
	issue, ok := f.GetIssue(ctx, key)
	if !ok {
		return tracker.Workflow{}, false
	}
	transitions := f.ListTransitions(ctx, key)

	seen := map[string]bool{issue.Status: true}
	all := []string{issue.Status}
	for _, t := range transitions {
		if !seen[t.ToStatus] {
			seen[t.ToStatus] = true
			all = append(all, t.ToStatus)
		}
	}
	return tracker.Workflow{CurrentStatus: issue.Status, Transitions: transitions, AllStatuses: all}, true
}

func (f *Fake) ListWorklogs(ctx context.Context, key string) []tracker.Worklog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Worklogs[key]
}

var _ tracker.Tracker = (*Fake)(nil)
