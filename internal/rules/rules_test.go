package rules

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mateuslacerda/devpeace/internal/tracker"
	"github.com/mateuslacerda/devpeace/internal/tracker/faketracker"
)

func setupFake(key, status string) *faketracker.Fake {
	f := faketracker.New()
	f.Issues[key] = tracker.Issue{Key: key, Status: status}
	f.Transitions[key] = []tracker.Transition{
		{ID: "1", Name: "Start", ToStatus: "In Progress"},
		{ID: "2", Name: "Revert", ToStatus: "To Do"},
		{ID: "3", Name: "Begin", ToStatus: "Implementando"},
	}
	return f
}

func TestEvaluateDisabledIsNoop(t *testing.T) {
	t.Parallel()
	f := setupFake("PROJ-1", "To Do")
	doc := RuleDocument{Enabled: false, Events: map[string][]Rule{
		EventWorkStart: {{From: Any([]string{"To Do"}), To: "In Progress"}},
	}}
	e := New(doc, f)
	if e.Evaluate(context.Background(), EventWorkStart, "PROJ-1") {
		t.Error("Evaluate() with enabled=false = true, want false")
	}
	if len(f.TransitionCalls) != 0 {
		t.Errorf("Evaluate() with enabled=false made %d transition calls, want 0", len(f.TransitionCalls))
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	t.Parallel()
	f := setupFake("PROJ-1", "To Do")
	doc := RuleDocument{Enabled: true, Events: map[string][]Rule{
		EventWorkStart: {
			{From: Any([]string{"Backlog"}), To: "Triage"},
			{From: Any([]string{"To Do", "Open"}), To: "In Progress"},
			{From: Any([]string{"To Do"}), To: "Should Never Win"},
		},
	}}
	e := New(doc, f)
	if !e.Evaluate(context.Background(), EventWorkStart, "PROJ-1") {
		t.Fatal("Evaluate() = false, want true")
	}
	got := f.Issues["PROJ-1"]
	if got.Status != "In Progress" {
		t.Errorf("issue status = %q, want In Progress", got.Status)
	}
}

func TestEvaluateNoMatch(t *testing.T) {
	t.Parallel()
	f := setupFake("PROJ-1", "Done")
	doc := RuleDocument{Enabled: true, Events: map[string][]Rule{
		EventWorkStart: {{From: Any([]string{"To Do"}), To: "In Progress"}},
	}}
	e := New(doc, f)
	if e.Evaluate(context.Background(), EventWorkStart, "PROJ-1") {
		t.Error("Evaluate() with no matching from = true, want false")
	}
}

func TestEvaluateSingleFromSpec(t *testing.T) {
	t.Parallel()
	f := setupFake("PROJ-1", "in progress") // case-insensitive match
	doc := RuleDocument{Enabled: true, Events: map[string][]Rule{
		EventWorkComplete: {{From: Single("In Progress"), To: "Done"}},
	}}
	f.Transitions["PROJ-1"] = append(f.Transitions["PROJ-1"], tracker.Transition{ID: "9", Name: "Finish", ToStatus: "Done"})
	e := New(doc, f)
	if !e.Evaluate(context.Background(), EventWorkComplete, "PROJ-1") {
		t.Error("Evaluate() with case-differing single from = false, want true")
	}
}

func TestOnSessionEndReverts(t *testing.T) {
	t.Parallel()
	f := setupFake("PROJ-5", "Implementando")
	f.Transitions["PROJ-5"] = append(f.Transitions["PROJ-5"], tracker.Transition{ID: "4", Name: "Back to queue", ToStatus: "Fila"})
	doc := RuleDocument{Enabled: true, AutoRevertOnSessionEnd: true}
	e := New(doc, f)

	if !e.OnSessionEnd(context.Background(), "PROJ-5", "Fila") {
		t.Fatal("OnSessionEnd() = false, want true")
	}
	if f.Issues["PROJ-5"].Status != "Fila" {
		t.Errorf("issue status after revert = %q, want Fila", f.Issues["PROJ-5"].Status)
	}
}

func TestOnSessionEndNoopIfAlreadyReverted(t *testing.T) {
	t.Parallel()
	f := setupFake("PROJ-5", "Fila")
	doc := RuleDocument{Enabled: true, AutoRevertOnSessionEnd: true}
	e := New(doc, f)

	if !e.OnSessionEnd(context.Background(), "PROJ-5", "Fila") {
		t.Fatal("OnSessionEnd() already-reverted = false, want true")
	}
	if len(f.TransitionCalls) != 0 {
		t.Errorf("OnSessionEnd() already-reverted made %d transition calls, want 0 (no-op)", len(f.TransitionCalls))
	}
}

func TestOnSessionEndDisabled(t *testing.T) {
	t.Parallel()
	f := setupFake("PROJ-5", "Implementando")
	doc := RuleDocument{Enabled: true, AutoRevertOnSessionEnd: false}
	e := New(doc, f)

	if e.OnSessionEnd(context.Background(), "PROJ-5", "Fila") {
		t.Error("OnSessionEnd() with auto-revert disabled = true, want false")
	}
}

func TestFromSpecJSONRoundTrip(t *testing.T) {
	t.Parallel()

	single := Single("To Do")
	data, err := json.Marshal(single)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"To Do"` {
		t.Errorf("Marshal(Single) = %s, want a bare string", data)
	}
	var back FromSpec
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Matches("To Do") {
		t.Error("round-tripped Single does not match its own value")
	}

	many := Any([]string{"To Do", "Open"})
	data, err = json.Marshal(many)
	if err != nil {
		t.Fatal(err)
	}
	var backMany FromSpec
	if err := json.Unmarshal(data, &backMany); err != nil {
		t.Fatal(err)
	}
	if !backMany.Matches("Open") || backMany.Matches("Done") {
		t.Errorf("round-tripped Any does not preserve membership")
	}
}

func TestParseLegacyDropsDisabledRules(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"enabled": true,
		"auto_revert_on_session_end": false,
		"rules": {
			"on_work_start": {"enabled": true, "from_status": ["To Do", "Open"], "to_status": "In Progress"},
			"on_work_complete": {"enabled": false, "from_status": ["In Progress"], "to_status": "Done"}
		}
	}`)
	if !IsLegacyShape(raw) {
		t.Fatal("IsLegacyShape() = false, want true")
	}

	doc, err := ParseLegacy(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Enabled {
		t.Error("ParseLegacy() lost top-level enabled flag")
	}
	if _, ok := doc.Events[EventWorkStart]; !ok {
		t.Error("ParseLegacy() dropped the enabled on_work_start rule")
	}
	if _, ok := doc.Events[EventWorkComplete]; ok {
		t.Error("ParseLegacy() kept a disabled rule")
	}
}

func TestParseLegacyYAMLMatchesJSONEquivalent(t *testing.T) {
	t.Parallel()
	yamlDoc := []byte(`
enabled: true
auto_revert_on_session_end: false
rules:
  on_work_start:
    enabled: true
    from_status: ["To Do", "Open"]
    to_status: "In Progress"
  on_work_complete:
    enabled: false
    from_status: ["In Progress"]
    to_status: "Done"
`)
	doc, err := ParseLegacyYAML(yamlDoc)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Enabled {
		t.Error("ParseLegacyYAML() lost top-level enabled flag")
	}
	rule, ok := doc.Events[EventWorkStart]
	if !ok {
		t.Fatal("ParseLegacyYAML() dropped the enabled on_work_start rule")
	}
	if rule[0].To != "In Progress" {
		t.Errorf("ParseLegacyYAML() to = %q, want %q", rule[0].To, "In Progress")
	}
	if _, ok := doc.Events[EventWorkComplete]; ok {
		t.Error("ParseLegacyYAML() kept a disabled rule")
	}
}

func TestValidateRuleFlagsUnknownTarget(t *testing.T) {
	t.Parallel()
	f := faketracker.New()
	f.AllStatuses = []string{"To Do", "In Progress", "Done"}

	doc := RuleDocument{Events: map[string][]Rule{
		EventWorkStart: {{From: Any([]string{"To Do"}), To: "Sprint Ready"}},
	}}
	result := ValidateRule(context.Background(), doc, f)
	if result.Valid {
		t.Error("ValidateRule() = valid, want invalid for an unknown target status")
	}
	if len(result.Warnings) != 1 {
		t.Errorf("ValidateRule() warnings = %v, want exactly one", result.Warnings)
	}
}
