// Package tracker is a typed façade over a remote, workflow-capable
// issue tracker: basic-auth REST handshake, issue lookup, worklogs,
// comments, search, and transition discovery/execution.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client talks to the tracker's REST API over HTTP basic auth.
type Client struct {
	baseURL    string
	user       string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	stats      *Stats

	connected bool
}

// Options configures a Client.
type Options struct {
	StatsEnabled bool
}

// NewClient returns a Client for baseURL (e.g. "https://example.atlassian.net").
func NewClient(baseURL, user, token string) *Client {
	return NewClientWithOptions(baseURL, user, token, Options{})
}

// NewClientWithOptions is NewClient with explicit options.
func NewClientWithOptions(baseURL, user, token string, opts Options) *Client {
	// Conservative budget that keeps well clear of most trackers'
	// per-minute request ceilings: sustained 4/sec with a burst of 20
	// for cold-cache bursts (project/issue discovery on startup).
	limiter := rate.NewLimiter(rate.Limit(4), 20)

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		user:       user,
		token:      token,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		limiter:    limiter,
		stats:      NewStats(opts.StatsEnabled),
	}
}

// Close releases background resources held by the client.
func (c *Client) Close() {
	if c.stats != nil {
		c.stats.Close()
	}
}

// Stats returns the client's request-stats tracker.
func (c *Client) Stats() *Stats {
	return c.stats
}

// Connect performs a basic-auth handshake against the current-user
// endpoint and records whether authentication succeeded.
func (c *Client) Connect(ctx context.Context) bool {
	var who struct {
		AccountID string `json:"accountId"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/myself", nil, &who); err != nil {
		log.Printf("tracker: connect failed: %v", err)
		c.connected = false
		return false
	}
	c.connected = true
	return true
}

type issuePayload struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Created string `json:"created"`
		Updated string `json:"updated"`
	} `json:"fields"`
}

func (p issuePayload) toIssue() Issue {
	issue := Issue{
		Key:         p.Key,
		Summary:     p.Fields.Summary,
		Description: p.Fields.Description,
		Status:      p.Fields.Status.Name,
		Project:     p.Fields.Project.Key,
		Type:        p.Fields.IssueType.Name,
	}
	if p.Fields.Assignee != nil {
		issue.Assignee = p.Fields.Assignee.DisplayName
	}
	issue.Created, _ = time.Parse(time.RFC3339, p.Fields.Created)
	issue.Updated, _ = time.Parse(time.RFC3339, p.Fields.Updated)
	return issue
}

// GetIssue fetches an issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (Issue, bool) {
	var payload issuePayload
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key, nil, &payload); err != nil {
		log.Printf("tracker: get issue %s failed: %v", key, err)
		return Issue{}, false
	}
	return payload.toIssue(), true
}

// IssueExists wraps GetIssue to answer a simple existence question.
func (c *Client) IssueExists(ctx context.Context, key string) bool {
	_, ok := c.GetIssue(ctx, key)
	return ok
}

// AddWorklog posts a worklog entry; minutes is encoded via
// FormatDuration. Returns the created worklog's id.
func (c *Client) AddWorklog(ctx context.Context, key string, minutes int, comment string) (string, bool) {
	body := map[string]any{
		"timeSpent": FormatDuration(minutes),
		"comment":   comment,
		"started":   time.Now().UTC().Format("2006-01-02T15:04:05.000-0700"),
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+key+"/worklog", body, &resp); err != nil {
		log.Printf("tracker: add worklog on %s failed: %v", key, err)
		return "", false
	}
	return resp.ID, true
}

// AddComment posts a plain-text comment.
func (c *Client) AddComment(ctx context.Context, key, body string) bool {
	payload := map[string]any{"body": body}
	if err := c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+key+"/comment", payload, nil); err != nil {
		log.Printf("tracker: add comment on %s failed: %v", key, err)
		return false
	}
	return true
}

// Search runs a JQL query and returns up to max matching issues.
func (c *Client) Search(ctx context.Context, jql string, max int) []Issue {
	body := map[string]any{"jql": jql, "maxResults": max}
	var resp struct {
		Issues []issuePayload `json:"issues"`
	}
	if err := c.do(ctx, http.MethodPost, "/rest/api/2/search", body, &resp); err != nil {
		log.Printf("tracker: search failed: %v", err)
		return nil
	}
	issues := make([]Issue, 0, len(resp.Issues))
	for _, p := range resp.Issues {
		issues = append(issues, p.toIssue())
	}
	return issues
}

// MyIssues returns issues assigned to the authenticated user, optionally
// filtered by status.
func (c *Client) MyIssues(ctx context.Context, status string) []Issue {
	jql := "assignee = currentUser()"
	if status != "" {
		jql += fmt.Sprintf(` AND status = "%s"`, status)
	}
	return c.Search(ctx, jql, 100)
}

// ListTransitions returns the transitions currently available on key.
func (c *Client) ListTransitions(ctx context.Context, key string) []Transition {
	var resp struct {
		Transitions []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			To   struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key+"/transitions", nil, &resp); err != nil {
		log.Printf("tracker: list transitions on %s failed: %v", key, err)
		return nil
	}
	out := make([]Transition, 0, len(resp.Transitions))
	for _, t := range resp.Transitions {
		out = append(out, Transition{ID: t.ID, Name: t.Name, ToStatus: t.To.Name})
	}
	return out
}

// Transition finds the transition whose ToStatus matches
// targetStatusName case-insensitively and executes it.
func (c *Client) Transition(ctx context.Context, key, targetStatusName string) bool {
	for _, t := range c.ListTransitions(ctx, key) {
		if strings.EqualFold(t.ToStatus, targetStatusName) {
			body := map[string]any{"transition": map[string]string{"id": t.ID}}
			if err := c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+key+"/transitions", body, nil); err != nil {
				log.Printf("tracker: transition %s to %s failed: %v", key, targetStatusName, err)
				return false
			}
			return true
		}
	}
	log.Printf("tracker: no transition on %s leads to status %q", key, targetStatusName)
	return false
}

// ListProjects returns every project visible to the authenticated user.
func (c *Client) ListProjects(ctx context.Context) []Project {
	var resp []struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/project", nil, &resp); err != nil {
		log.Printf("tracker: list projects failed: %v", err)
		return nil
	}
	out := make([]Project, 0, len(resp))
	for _, p := range resp {
		out = append(out, Project{Key: p.Key, Name: p.Name})
	}
	return out
}

// ListProjectStatuses returns the distinct status names usable within a
// project.
func (c *Client) ListProjectStatuses(ctx context.Context, key string) []string {
	var resp []struct {
		Statuses []struct {
			Name string `json:"name"`
		} `json:"statuses"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/project/"+key+"/statuses", nil, &resp); err != nil {
		log.Printf("tracker: list project statuses for %s failed: %v", key, err)
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, issueType := range resp {
		for _, s := range issueType.Statuses {
			if !seen[s.Name] {
				seen[s.Name] = true
				out = append(out, s.Name)
			}
		}
	}
	return out
}

// ListAllStatuses returns every status known to the tracker instance.
func (c *Client) ListAllStatuses(ctx context.Context) []string {
	var resp []struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/status", nil, &resp); err != nil {
		log.Printf("tracker: list all statuses failed: %v", err)
		return nil
	}
	out := make([]string, 0, len(resp))
	for _, s := range resp {
		out = append(out, s.Name)
	}
	return out
}

// IssueWorkflow returns an issue's current status, available
// transitions, and all-possible statuses (the union of every
// transition's target plus the current status).
func (c *Client) IssueWorkflow(ctx context.Context, key string) (Workflow, bool) {
	issue, ok := c.GetIssue(ctx, key)
	if !ok {
		return Workflow{}, false
	}
	transitions := c.ListTransitions(ctx, key)

	seen := map[string]bool{issue.Status: true}
	all := []string{issue.Status}
	for _, t := range transitions {
		if !seen[t.ToStatus] {
			seen[t.ToStatus] = true
			all = append(all, t.ToStatus)
		}
	}

	return Workflow{CurrentStatus: issue.Status, Transitions: transitions, AllStatuses: all}, true
}

// ListWorklogs returns the worklogs recorded against an issue.
func (c *Client) ListWorklogs(ctx context.Context, key string) []Worklog {
	var resp struct {
		Worklogs []struct {
			ID        string `json:"id"`
			TimeSpent int    `json:"timeSpentSeconds"`
			Comment   string `json:"comment"`
			Started   string `json:"started"`
		} `json:"worklogs"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key+"/worklog", nil, &resp); err != nil {
		log.Printf("tracker: list worklogs for %s failed: %v", key, err)
		return nil
	}
	out := make([]Worklog, 0, len(resp.Worklogs))
	for _, w := range resp.Worklogs {
		started, _ := time.Parse("2006-01-02T15:04:05.000-0700", w.Started)
		out = append(out, Worklog{ID: w.ID, TimeSpentMinutes: w.TimeSpent / 60, Comment: w.Comment, Started: started})
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	opName := method + " " + path

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	reqStart := time.Now()
	var reqErr error
	defer func() { c.stats.Record(opName, time.Since(reqStart), reqErr) }()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			reqErr = fmt.Errorf("marshal request: %w", err)
			return reqErr
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		reqErr = fmt.Errorf("build request: %w", err)
		return reqErr
	}
	req.SetBasicAuth(c.user, c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reqErr = fmt.Errorf("execute request: %w", err)
		return reqErr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		reqErr = fmt.Errorf("read response: %w", err)
		return reqErr
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		reqErr = fmt.Errorf("rate limited (status %d)", resp.StatusCode)
		log.Printf("tracker: rate limited on %s", opName)
		return reqErr
	}
	if resp.StatusCode >= 400 {
		reqErr = fmt.Errorf("tracker error (status %d): %s", resp.StatusCode, string(respBody))
		return reqErr
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		reqErr = fmt.Errorf("parse response: %w", err)
		return reqErr
	}
	return nil
}
