package branch

import "testing"

func TestParse(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name       string
		branch     string
		wantType   string
		wantIssue  string
		wantDesc   string
		wantValid  bool
	}{
		{"type+key+digits+desc", "feature/PROJ-42-add-login", "feature", "PROJ-42", "add login", true},
		{"type+key+digits", "bugfix/ABC-7", "bugfix", "ABC-7", "", true},
		{"key+digits+desc", "PROJ-42-add-login", "", "PROJ-42", "add login", true},
		{"key+digits", "PROJ-42", "", "PROJ-42", "", true},
		{"type+key-no-hyphen", "feature/PROJ42", "feature", "PROJ42", "", true},
		{"key-no-hyphen", "PROJ42", "", "PROJ42", "", true},
		{"no issue", "wip-local", "", "", "", false},
		{"case insensitive type", "Feature/proj-9", "feature", "PROJ-9", "", true},
		{"underscore desc", "feature/PROJ-1-fix_the_thing", "feature", "PROJ-1", "fix the thing", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Parse(c.branch)
			if got.Type != c.wantType {
				t.Errorf("Type = %q, want %q", got.Type, c.wantType)
			}
			if got.Issue != c.wantIssue {
				t.Errorf("Issue = %q, want %q", got.Issue, c.wantIssue)
			}
			if got.Description != c.wantDesc {
				t.Errorf("Description = %q, want %q", got.Description, c.wantDesc)
			}
			if got.ValidIssueFormat != c.wantValid {
				t.Errorf("ValidIssueFormat = %v, want %v", got.ValidIssueFormat, c.wantValid)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()
	got := Parse("")
	if got.Original != "" || got.Issue != "" {
		t.Errorf("Parse(\"\") = %+v, want zero value", got)
	}
}

func TestExtractIssue(t *testing.T) {
	t.Parallel()
	if got := ExtractIssue("feature/PROJ-42-login"); got != "PROJ-42" {
		t.Errorf("ExtractIssue() = %q, want PROJ-42", got)
	}
	if got := ExtractIssue("wip-local"); got != "" {
		t.Errorf("ExtractIssue() = %q, want empty", got)
	}
}

func TestCategory(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"feature/PROJ-1":  "feature",
		"feat/PROJ-1":     "feature",
		"bugfix/PROJ-1":   "bugfix",
		"hotfix/PROJ-1":   "bugfix",
		"release/PROJ-1":  "release",
		"chore/PROJ-1":    "maintenance",
		"docs/PROJ-1":     "maintenance",
		"test/PROJ-1":     "test",
		"PROJ-1":          "other",
		"something-weird": "other",
	}
	for branch, want := range cases {
		if got := Category(branch); got != want {
			t.Errorf("Category(%q) = %q, want %q", branch, got, want)
		}
	}
}

func TestIsFeatureIsBugfix(t *testing.T) {
	t.Parallel()
	if !IsFeature("feature/PROJ-1") {
		t.Error("IsFeature(feature/PROJ-1) = false, want true")
	}
	if !IsBugfix("hotfix/PROJ-1") {
		t.Error("IsBugfix(hotfix/PROJ-1) = false, want true")
	}
	if IsFeature("hotfix/PROJ-1") {
		t.Error("IsFeature(hotfix/PROJ-1) = true, want false")
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()
	if got := Suggest("PROJ-42", "feature", "Add Login!"); got != "feature/PROJ-42-add-login" {
		t.Errorf("Suggest() = %q, want feature/PROJ-42-add-login", got)
	}
	if got := Suggest("PROJ-42", "bogus-type", ""); got != "feature/PROJ-42" {
		t.Errorf("Suggest() with unrecognized type = %q, want feature/PROJ-42", got)
	}
	if got := Suggest("", "feature", "x"); got != "" {
		t.Errorf("Suggest() with empty issue = %q, want empty", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	v := Validate("feature/PROJ-1")
	if !v.IsValid || !v.HasIssue || !v.HasValidType {
		t.Errorf("Validate(feature/PROJ-1) = %+v, want all true", v)
	}

	v = Validate("wip-local")
	if v.IsValid || v.HasIssue {
		t.Errorf("Validate(wip-local) = %+v, want invalid/no issue", v)
	}
	if len(v.Warnings) == 0 {
		t.Error("Validate(wip-local) should produce warnings")
	}
}

// Round-trip property: parsing a name built by Suggest recovers the issue
// and type that were used to build it.
func TestRoundTrip(t *testing.T) {
	t.Parallel()
	tuples := []struct{ typ, key, desc string }{
		{"feature", "PROJ-42", "login flow"},
		{"bugfix", "ABC-7", ""},
		{"hotfix", "XY-100", "urgent patch"},
	}
	for _, tup := range tuples {
		built := Suggest(tup.key, tup.typ, tup.desc)
		got := Parse(built)
		if got.Issue != tup.key {
			t.Errorf("round trip Issue = %q, want %q (built %q)", got.Issue, tup.key, built)
		}
		if got.Type != tup.typ {
			t.Errorf("round trip Type = %q, want %q (built %q)", got.Type, tup.typ, built)
		}
	}
}
