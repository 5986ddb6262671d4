package rules

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// legacyRule is the older rules-shaped document: one rule per event,
// keyed by name, with a from_status list/to_status pair and its own
// enabled flag. The events-shaped RuleDocument is authoritative;
// config read from this shape is converted once at load time and never
// carried as a second code path through evaluation.
type legacyRule struct {
	Enabled    bool     `json:"enabled"`
	FromStatus []string `json:"from_status"`
	ToStatus   string   `json:"to_status"`
}

type legacyDocument struct {
	Enabled                bool                  `json:"enabled"`
	AutoRevertOnSessionEnd bool                  `json:"auto_revert_on_session_end"`
	Rules                  map[string]legacyRule `json:"rules"`
}

// IsLegacyShape reports whether raw JSON looks like the older
// rules-keyed document rather than the events-keyed one.
func IsLegacyShape(raw []byte) bool {
	var probe struct {
		Rules  json.RawMessage `json:"rules"`
		Events json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Rules != nil && probe.Events == nil
}

// ParseLegacy converts the older rules-shaped document into the
// authoritative events-shaped RuleDocument. A legacy rule with
// enabled=false is dropped rather than carried forward as a disabled,
// always-losing rule.
func ParseLegacy(raw []byte) (RuleDocument, error) {
	var legacy legacyDocument
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return RuleDocument{}, err
	}

	doc := RuleDocument{
		Enabled:                legacy.Enabled,
		AutoRevertOnSessionEnd: legacy.AutoRevertOnSessionEnd,
		Events:                 make(map[string][]Rule),
	}
	for event, r := range legacy.Rules {
		if !r.Enabled || r.ToStatus == "" {
			continue
		}
		doc.Events[event] = []Rule{{From: Any(r.FromStatus), To: r.ToStatus}}
	}
	return doc, nil
}

// ParseLegacyYAML accepts the same rules-shaped document carried as
// YAML rather than JSON. It decodes generically and re-encodes to JSON
// so ParseLegacy stays the single conversion path regardless of source
// encoding.
func ParseLegacyYAML(raw []byte) (RuleDocument, error) {
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return RuleDocument{}, err
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return RuleDocument{}, err
	}
	return ParseLegacy(asJSON)
}
