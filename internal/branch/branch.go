// Package branch parses source-control branch names into structured issue
// references. It is a pure function library: no I/O, no package state.
package branch

import (
	"regexp"
	"strings"
)

// patterns are evaluated top-down; the first match wins. Each must define
// at most the named groups "type", "issue", and "desc".
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?P<type>[^/]+)/(?P<issue>[A-Z]+-\d+)(?:-(?P<desc>.+))?$`),
	regexp.MustCompile(`(?i)^(?P<type>[^/]+)/(?P<issue>[A-Z]+-\d+)$`),
	regexp.MustCompile(`(?i)^(?P<issue>[A-Z]+-\d+)(?:-(?P<desc>.+))?$`),
	regexp.MustCompile(`(?i)^(?P<issue>[A-Z]+-\d+)$`),
	regexp.MustCompile(`(?i)^(?P<type>[^/]+)/(?P<issue>[A-Z]+\d+)$`),
	regexp.MustCompile(`(?i)^(?P<issue>[A-Z]+\d+)$`),
}

var validIssueFormat = regexp.MustCompile(`^[A-Z]+-?\d+$`)

// commonTypes are the branch-type segments Validate treats as recognized
// and Suggest accepts without falling back to "feature".
var commonTypes = map[string]bool{
	"feature": true, "feat": true, "bugfix": true, "fix": true, "hotfix": true,
	"release": true, "chore": true, "docs": true, "style": true, "refactor": true,
	"test": true, "perf": true, "build": true, "ci": true,
}

// Info is the structured result of parsing a branch name.
type Info struct {
	Original        string
	Type            string // empty if not present
	Issue           string // empty if not present
	Description     string
	ValidIssueFormat bool
}

// Parse extracts issue and type information from a branch name. It never
// fails: an unparseable name yields a zero-value Info beyond Original.
func Parse(name string) Info {
	info := Info{Original: name}
	if name == "" {
		return info
	}

	for _, p := range patterns {
		m := p.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		names := p.SubexpNames()
		for i, g := range names {
			if g == "" || m[i] == "" {
				continue
			}
			switch g {
			case "type":
				info.Type = strings.ToLower(m[i])
			case "issue":
				issue := strings.ToUpper(m[i])
				info.Issue = issue
				info.ValidIssueFormat = validIssueFormat.MatchString(issue)
			case "desc":
				desc := strings.ReplaceAll(m[i], "-", " ")
				desc = strings.ReplaceAll(desc, "_", " ")
				info.Description = desc
			}
		}
		break
	}

	return info
}

// ExtractIssue returns the issue key only when it is in valid format.
func ExtractIssue(name string) string {
	info := Parse(name)
	if !info.ValidIssueFormat {
		return ""
	}
	return info.Issue
}

// Category classifies a branch type into a coarse grouping, used by
// read-only status/list projections.
func Category(name string) string {
	info := Parse(name)
	if info.Type == "" {
		return "other"
	}
	switch info.Type {
	case "feature", "feat":
		return "feature"
	case "bugfix", "fix", "hotfix":
		return "bugfix"
	case "release":
		return "release"
	case "chore", "docs", "style", "refactor":
		return "maintenance"
	case "test":
		return "test"
	default:
		return "other"
	}
}

// IsFeature reports whether the branch's type segment denotes feature work.
func IsFeature(name string) bool {
	t := Parse(name).Type
	return t == "feature" || t == "feat"
}

// IsBugfix reports whether the branch's type segment denotes bugfix work.
func IsBugfix(name string) bool {
	t := Parse(name).Type
	return t == "bugfix" || t == "fix" || t == "hotfix"
}

var nonAlnumSpace = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
var runsOfSpace = regexp.MustCompile(`\s+`)

// Suggest builds a conventional branch name from an issue key, branch type,
// and free-text description. Unrecognized types fall back to "feature".
func Suggest(issueKey, branchType, description string) string {
	if issueKey == "" {
		return ""
	}
	branchType = strings.ToLower(branchType)
	if !commonTypes[branchType] {
		branchType = "feature"
	}
	if description == "" {
		return branchType + "/" + issueKey
	}
	desc := nonAlnumSpace.ReplaceAllString(description, "")
	desc = strings.ToLower(runsOfSpace.ReplaceAllString(strings.TrimSpace(desc), "-"))
	return branchType + "/" + issueKey + "-" + desc
}

// Validation is a non-authoritative advisory result from Validate. It never
// gates session creation; it only surfaces hints to CLI projections.
type Validation struct {
	IsValid      bool
	HasIssue     bool
	HasValidType bool
	Suggestions  []string
	Warnings     []string
}

// Validate checks a branch name for the presence of a recognizable issue
// key and branch type, returning advisory warnings and suggestions.
func Validate(name string) Validation {
	info := Parse(name)
	var v Validation

	if info.Issue != "" && info.ValidIssueFormat {
		v.HasIssue = true
	} else {
		v.Warnings = append(v.Warnings, "branch does not contain a valid issue reference")
	}

	if info.Type != "" && commonTypes[info.Type] {
		v.HasValidType = true
	} else {
		v.Warnings = append(v.Warnings, "branch has no recognized type")
		v.Suggestions = append(v.Suggestions, "use types like: feature, bugfix, hotfix, chore")
	}

	v.IsValid = v.HasIssue
	return v
}
