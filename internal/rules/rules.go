// Package rules evaluates status-automation transitions against a
// remote issue tracker: picking the rule whose from-status matches an
// issue's current state, and reverting a session's issue to its
// original status when auto-revert is configured.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mateuslacerda/devpeace/internal/tracker"
)

// Event names recognized in a RuleDocument's events mapping.
const (
	EventWorkStart    = "on_work_start"
	EventFirstCommit  = "on_first_commit"
	EventWorkComplete = "on_work_complete"
)

// FromSpec is either a single status name or a sequence of status
// names; it matches whichever shape config.json was written with.
type FromSpec struct {
	single string
	any    []string
}

// Single builds a FromSpec matching one status name.
func Single(status string) FromSpec { return FromSpec{single: status} }

// Any builds a FromSpec matching any of the given status names.
func Any(statuses []string) FromSpec { return FromSpec{any: statuses} }

// Matches reports whether status satisfies this FromSpec.
func (f FromSpec) Matches(status string) bool {
	if f.single != "" {
		return strings.EqualFold(f.single, status)
	}
	for _, s := range f.any {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

// MarshalJSON serializes a single-value FromSpec as a bare string and a
// multi-value one as an array, matching the two shapes config.json may
// carry.
func (f FromSpec) MarshalJSON() ([]byte, error) {
	if f.any != nil {
		return json.Marshal(f.any)
	}
	return json.Marshal(f.single)
}

// UnmarshalJSON accepts either a bare string or an array of strings.
func (f *FromSpec) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = Single(single)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("from must be a string or array of strings: %w", err)
	}
	*f = Any(many)
	return nil
}

// Rule is one transition rule: if the issue's current status matches
// From, transition it to To.
type Rule struct {
	From FromSpec `json:"from"`
	To   string   `json:"to"`
}

// RuleDocument is the full status-automation configuration (the
// events-shaped document; see legacy.go for the older rules-shaped
// document this is converted from on read).
type RuleDocument struct {
	Enabled                bool               `json:"enabled"`
	AutoRevertOnSessionEnd bool               `json:"auto_revert_on_session_end"`
	Events                 map[string][]Rule  `json:"events"`
}

// DefaultRuleSet returns the rule document the original shipped as its
// out-of-the-box defaults.
func DefaultRuleSet() RuleDocument {
	return RuleDocument{
		Enabled:                false,
		AutoRevertOnSessionEnd: false,
		Events: map[string][]Rule{
			EventWorkStart: {
				{From: Any([]string{"To Do", "Open", "Backlog", "New"}), To: "In Progress"},
			},
		},
	}
}

// Engine evaluates a RuleDocument against a tracker.
type Engine struct {
	doc     RuleDocument
	tracker tracker.Tracker
}

// New returns an Engine bound to doc and the given tracker.
func New(doc RuleDocument, t tracker.Tracker) *Engine {
	return &Engine{doc: doc, tracker: t}
}

// SetDocument replaces the bound rule document.
func (e *Engine) SetDocument(doc RuleDocument) {
	e.doc = doc
}

// Document returns the currently bound rule document.
func (e *Engine) Document() RuleDocument {
	return e.doc
}

// Evaluate runs the rules for eventName against issueKey's current
// remote status and executes the first matching transition. Returns
// false (not an error) when automation is disabled or no rule matches.
func (e *Engine) Evaluate(ctx context.Context, eventName, issueKey string) bool {
	if !e.doc.Enabled {
		return false
	}

	issue, ok := e.tracker.GetIssue(ctx, issueKey)
	if !ok {
		log.Printf("rules: could not fetch %s for event %s", issueKey, eventName)
		return false
	}

	target, matched := e.selectTarget(eventName, issue.Status)
	if !matched {
		return false
	}

	return e.tracker.Transition(ctx, issueKey, target)
}

func (e *Engine) selectTarget(eventName, currentStatus string) (string, bool) {
	for _, rule := range e.doc.Events[eventName] {
		if rule.From.Matches(currentStatus) {
			return rule.To, true
		}
	}
	return "", false
}

// OnSessionEnd implements the auto-revert entry point: if enabled and
// auto-revert is configured, and the issue's current remote status
// differs from originalStatus, it attempts to transition back. If the
// current status already equals originalStatus, it is a no-op success.
func (e *Engine) OnSessionEnd(ctx context.Context, issueKey, originalStatus string) bool {
	if !e.doc.Enabled || !e.doc.AutoRevertOnSessionEnd {
		return false
	}

	issue, ok := e.tracker.GetIssue(ctx, issueKey)
	if !ok {
		log.Printf("rules: could not fetch %s for auto-revert", issueKey)
		return false
	}

	if strings.EqualFold(issue.Status, originalStatus) {
		return true
	}

	return e.tracker.Transition(ctx, issueKey, originalStatus)
}

// ValidationResult reports whether every "to" target in a RuleDocument
// is a status name the tracker knows, for CLI-side sanity checks before
// saving configuration.
type ValidationResult struct {
	Valid    bool
	Warnings []string
}

// ValidateRule checks a RuleDocument's "to" targets against the live set
// of status names a tracker knows about, flagging any target that does
// not correspond to a known status (a likely typo).
func ValidateRule(ctx context.Context, doc RuleDocument, t tracker.Tracker) ValidationResult {
	known := make(map[string]bool)
	for _, s := range t.ListAllStatuses(ctx) {
		known[strings.ToLower(s)] = true
	}

	var warnings []string
	for event, rs := range doc.Events {
		for _, r := range rs {
			if len(known) > 0 && !known[strings.ToLower(r.To)] {
				warnings = append(warnings, fmt.Sprintf("%s: target status %q is not a known tracker status", event, r.To))
			}
		}
	}
	return ValidationResult{Valid: len(warnings) == 0, Warnings: warnings}
}
