package scim

import (
	"reflect"
	"testing"
)

// ============================================================
// Filter Parser Tests
// ============================================================

func TestParseFilter_SimpleComparisons(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		wantBranch Branch
	}{
		{
			name:       "quoted string equality",
			expression: `userName eq "john"`,
			wantBranch: Branch{"userName": Comparison{Op: "eq", Value: "john", HasValue: true}},
		},
		{
			name:       "unquoted string value",
			expression: `userName eq john`,
			wantBranch: Branch{"userName": Comparison{Op: "eq", Value: "john", HasValue: true}},
		},
		{
			name:       "boolean value",
			expression: `active eq true`,
			wantBranch: Branch{"active": Comparison{Op: "eq", Value: true, HasValue: true}},
		},
		{
			name:       "number value",
			expression: `quota gt 1.5`,
			wantBranch: Branch{"quota": Comparison{Op: "gt", Value: 1.5, HasValue: true}},
		},
		{
			name:       "negative number value",
			expression: `offset ge -3`,
			wantBranch: Branch{"offset": Comparison{Op: "ge", Value: -3.0, HasValue: true}},
		},
		{
			name:       "null value",
			expression: `manager eq null`,
			wantBranch: Branch{"manager": Comparison{Op: "eq", Value: nil, HasValue: true}},
		},
		{
			name:       "presence",
			expression: `title pr`,
			wantBranch: Branch{"title": Comparison{Op: "pr"}},
		},
		{
			name:       "absence",
			expression: `title np`,
			wantBranch: Branch{"title": Comparison{Op: "np"}},
		},
		{
			name:       "dotted sub-attribute path",
			expression: `name.givenName sw "J"`,
			wantBranch: Branch{"name": Branch{"givenName": Comparison{Op: "sw", Value: "J", HasValue: true}}},
		},
		{
			name:       "leading upper-case folds to lower",
			expression: `UserName eq "john"`,
			wantBranch: Branch{"userName": Comparison{Op: "eq", Value: "john", HasValue: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.expression)
			if err != nil {
				t.Fatalf("ParseFilter(%q) returned error: %v", tt.expression, err)
			}
			branches := f.Branches()
			if len(branches) != 1 {
				t.Fatalf("ParseFilter(%q) produced %d branches, want 1", tt.expression, len(branches))
			}
			if !reflect.DeepEqual(branches[0], tt.wantBranch) {
				t.Errorf("ParseFilter(%q) branch = %#v, want %#v", tt.expression, branches[0], tt.wantBranch)
			}
		})
	}
}

func TestParseFilter_LogicAndGrouping(t *testing.T) {
	tests := []struct {
		name         string
		expression   string
		wantBranches int
	}{
		{"and chain stays one branch", `userName eq "john" and active eq true`, 1},
		{"or splits branches", `userName eq "john" or userName eq "jane"`, 2},
		{"group distributes over and", `(userName eq "john" or userName eq "jane") and active eq true`, 2},
		{"two groups cross multiply", `(a eq 1 or a eq 2) and (b eq 1 or b eq 2)`, 4},
		{"nested groups", `((userName eq "john"))`, 1},
		{"not group", `not (userName eq "john")`, 1},
		{"bracket filter with or", `emails[type eq "work" or type eq "home"].value pr`, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.expression)
			if err != nil {
				t.Fatalf("ParseFilter(%q) returned error: %v", tt.expression, err)
			}
			if got := len(f.Branches()); got != tt.wantBranches {
				t.Errorf("ParseFilter(%q) produced %d branches, want %d", tt.expression, got, tt.wantBranches)
			}
		})
	}
}

func TestParseFilter_PresenceChains(t *testing.T) {
	// pr and np take no operand; a following word must lex as an operator,
	// since attribute selectors are built as chains of presence terms
	f, err := ParseFilter(`userName pr and title pr`)
	if err != nil {
		t.Fatalf("ParseFilter returned error: %v", err)
	}
	branches := f.Branches()
	if len(branches) != 1 {
		t.Fatalf("ParseFilter produced %d branches, want 1", len(branches))
	}
	want := Branch{
		"userName": Comparison{Op: "pr"},
		"title":    Comparison{Op: "pr"},
	}
	if !reflect.DeepEqual(branches[0], want) {
		t.Errorf("branch = %#v, want %#v", branches[0], want)
	}

	f, err = ParseFilter(`emails np or title np`)
	if err != nil {
		t.Fatalf("ParseFilter returned error: %v", err)
	}
	if got := len(f.Branches()); got != 2 {
		t.Errorf("ParseFilter produced %d branches, want 2", got)
	}

	// A bare word after a value-taking comparator is still an implicit string
	f, err = ParseFilter(`userName eq and`)
	if err != nil {
		t.Fatalf("ParseFilter returned error: %v", err)
	}
	want = Branch{"userName": Comparison{Op: "eq", Value: "and", HasValue: true}}
	if !reflect.DeepEqual(f.Branches()[0], want) {
		t.Errorf("branch = %#v, want %#v", f.Branches()[0], want)
	}
}

func TestParseFilter_BracketFilters(t *testing.T) {
	f, err := ParseFilter(`emails[type eq "work"].value co "example"`)
	if err != nil {
		t.Fatalf("ParseFilter returned error: %v", err)
	}
	want := Branch{
		"emails": Branch{
			"type":  Comparison{Op: "eq", Value: "work", HasValue: true},
			"value": Comparison{Op: "co", Value: "example", HasValue: true},
		},
	}
	branches := f.Branches()
	if len(branches) != 1 {
		t.Fatalf("got %d branches, want 1", len(branches))
	}
	if !reflect.DeepEqual(branches[0], want) {
		t.Errorf("branch = %#v, want %#v", branches[0], want)
	}
}

func TestParseFilter_RepeatedAttributeBecomesList(t *testing.T) {
	f, err := ParseFilter(`quota gt 1 and quota lt 10`)
	if err != nil {
		t.Fatalf("ParseFilter returned error: %v", err)
	}
	branches := f.Branches()
	list, ok := branches[0]["quota"].([]Comparison)
	if !ok {
		t.Fatalf("quota condition = %#v, want []Comparison", branches[0]["quota"])
	}
	if len(list) != 2 || list[0].Op != "gt" || list[1].Op != "lt" {
		t.Errorf("comparison list = %#v, want gt then lt", list)
	}
}

// The single-comparison shortcut must agree with the full parse of the same
// expression wrapped in a redundant group, which always takes the long road.
func TestParseFilter_ShortcutAgreesWithFullParse(t *testing.T) {
	expressions := []string{
		`userName eq "john"`,
		`active eq true`,
		`title pr`,
		`name.familyName co "son"`,
		`meta.lastModified gt "2024-01-01T00:00:00Z"`,
	}
	for _, expr := range expressions {
		short, err := ParseFilter(expr)
		if err != nil {
			t.Fatalf("ParseFilter(%q) returned error: %v", expr, err)
		}
		long, err := ParseFilter("(" + expr + ")")
		if err != nil {
			t.Fatalf("ParseFilter(%q) returned error: %v", "("+expr+")", err)
		}
		if !reflect.DeepEqual(short.Branches(), long.Branches()) {
			t.Errorf("ParseFilter(%q) = %#v, grouped parse = %#v", expr, short.Branches(), long.Branches())
		}
	}
}

func TestParseFilter_Errors(t *testing.T) {
	tests := []struct {
		name       string
		expression string
	}{
		{"empty expression", ""},
		{"missing comparator", "userName"},
		{"missing value", "userName eq"},
		{"value after presence", "userName pr john"},
		{"unclosed quote", `userName eq "john`},
		{"unclosed group", `(userName eq "john"`},
		{"unclosed bracket", `emails[type eq "work"`},
		{"dangling and", `userName eq "john" and`},
		{"dangling or", `userName eq "john" or`},
		{"bare not", "not"},
		{"leading bracket", `[type eq "work"]`},
		{"double comparator", "userName eq eq john"},
		{"invalid character", "userName eq %"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(tt.expression)
			if err == nil {
				t.Fatalf("ParseFilter(%q) succeeded, want error", tt.expression)
			}
			if !IsScimType(err, ScimTypeInvalidFilter) {
				t.Errorf("ParseFilter(%q) error = %v, want scimType %q", tt.expression, err, ScimTypeInvalidFilter)
			}
		})
	}
}

// ============================================================
// Expression Object Construction Tests
// ============================================================

func TestNewFilter(t *testing.T) {
	f, err := NewFilter(Branch{
		"userName": Comparison{Op: "eq", Value: "john", HasValue: true},
		"name":     Branch{"givenName": Comparison{Op: "pr"}},
	})
	if err != nil {
		t.Fatalf("NewFilter returned error: %v", err)
	}
	if !f.Match(map[string]any{"userName": "john", "name": map[string]any{"givenName": "John"}}) {
		t.Error("constructed filter did not match a conforming record")
	}
	if f.Match(map[string]any{"userName": "jane", "name": map[string]any{"givenName": "Jane"}}) {
		t.Error("constructed filter matched a non-conforming record")
	}
	if f.String() == "" {
		t.Error("constructed filter has no derived expression")
	}
}

func TestNewFilter_StringRoundTrip(t *testing.T) {
	f, err := NewFilter(Branch{"userName": Comparison{Op: "eq", Value: "john", HasValue: true}})
	if err != nil {
		t.Fatalf("NewFilter returned error: %v", err)
	}
	reparsed, err := ParseFilter(f.String())
	if err != nil {
		t.Fatalf("ParseFilter(%q) returned error: %v", f.String(), err)
	}
	if !reflect.DeepEqual(reparsed.Branches(), f.Branches()) {
		t.Errorf("round trip through %q changed branches: %#v vs %#v", f.String(), reparsed.Branches(), f.Branches())
	}
}

func TestNewFilter_Validation(t *testing.T) {
	tests := []struct {
		name     string
		branches []Branch
	}{
		{"no branches", nil},
		{"empty branch", []Branch{{}}},
		{"invalid comparator", []Branch{{"userName": Comparison{Op: "zz", Value: "x", HasValue: true}}}},
		{"value on presence", []Branch{{"userName": Comparison{Op: "pr", Value: "x", HasValue: true}}}},
		{"missing value", []Branch{{"userName": Comparison{Op: "eq"}}}},
		{"non-expression leaf", []Branch{{"userName": 42}}},
		{"empty nested branch", []Branch{{"name": Branch{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFilter(tt.branches...); err == nil {
				t.Errorf("NewFilter(%#v) succeeded, want error", tt.branches)
			}
		})
	}
}

func TestFilter_BranchesIsolatesState(t *testing.T) {
	f := MustParseFilter(`userName eq "john"`)
	branches := f.Branches()
	branches[0]["userName"] = Comparison{Op: "eq", Value: "mallory", HasValue: true}
	if !f.Match(map[string]any{"userName": "john"}) {
		t.Error("mutating the returned branches changed the filter")
	}
}

// ============================================================
// Filter Matching Tests
// ============================================================

func testRecord() map[string]any {
	return map[string]any{
		"userName": "john.doe",
		"active":   true,
		"quota":    5.0,
		"title":    "Engineer",
		"name": map[string]any{
			"givenName":  "John",
			"familyName": "Doe",
		},
		"emails": []any{
			map[string]any{"value": "john@example.com", "type": "work", "primary": true},
			map[string]any{"value": "jd@home.net", "type": "home"},
		},
		"meta": map[string]any{
			"lastModified": "2024-06-15T12:00:00Z",
		},
	}
}

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		want       bool
	}{
		{"eq match", `userName eq "john.doe"`, true},
		{"eq mismatch", `userName eq "jane.doe"`, false},
		{"eq is case sensitive without definition", `userName eq "John.Doe"`, false},
		{"ne match", `userName ne "jane.doe"`, true},
		{"ne mismatch", `userName ne "john.doe"`, false},
		{"boolean eq", `active eq true`, true},
		{"boolean eq against string literal", `active eq "True"`, true},
		{"co match", `userName co "hn.d"`, true},
		{"co mismatch", `userName co "xyz"`, false},
		{"sw match", `userName sw "john"`, true},
		{"ew match", `userName ew "doe"`, true},
		{"pr present", `title pr`, true},
		{"pr absent", `nickName pr`, false},
		{"np absent", `nickName np`, true},
		{"np on absent sub-attribute", `name.middleName np`, true},
		{"np on absent parent", `manager.displayName np`, true},
		{"numeric gt", `quota gt 4`, true},
		{"numeric gt boundary", `quota gt 5`, false},
		{"numeric ge boundary", `quota ge 5`, true},
		{"numeric lt", `quota lt 6`, true},
		{"numeric le", `quota le 4`, false},
		{"type mismatch never matches order", `userName gt 4`, false},
		{"string ordering", `title ge "Engineer"`, true},
		{"dateTime gt", `meta.lastModified gt "2024-01-01T00:00:00Z"`, true},
		{"dateTime lt", `meta.lastModified lt "2024-01-01T00:00:00Z"`, false},
		{"dotted eq", `name.givenName eq "John"`, true},
		{"multi-valued some element", `emails.type eq "home"`, true},
		{"multi-valued no element", `emails.type eq "other"`, false},
		{"bracket filter conjunction", `emails[type eq "work"].primary eq true`, true},
		{"bracket filter no single element satisfies both", `emails[type eq "home"].primary eq true`, false},
		{"and both hold", `userName sw "john" and active eq true`, true},
		{"and one fails", `userName sw "john" and active eq false`, false},
		{"or either holds", `userName eq "nobody" or active eq true`, true},
		{"or neither holds", `userName eq "nobody" or active eq false`, false},
		{"not group", `not (userName eq "jane.doe")`, true},
		{"not group inverted", `not (userName eq "john.doe")`, false},
		{"grouped distribution", `(title eq "Engineer" or title eq "Manager") and active eq true`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.expression)
			if err != nil {
				t.Fatalf("ParseFilter(%q) returned error: %v", tt.expression, err)
			}
			if got := f.Match(testRecord()); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.expression, got, tt.want)
			}
		})
	}
}

func TestFilter_MatchCaseExactFromDefinition(t *testing.T) {
	def := MustSchemaDefinition("Thing", "urn:example:params:scim:schemas:Thing", "",
		MustAttribute(TypeString, "label", Config{}),
		MustAttribute(TypeString, "code", Config{CaseExact: true}),
	)

	record := map[string]any{"label": "Widget", "code": "Widget"}

	insensitive := MustParseFilter(`label eq "widget"`).ForDefinition(def)
	if !insensitive.Match(record) {
		t.Error("case-insensitive attribute did not match differently-cased value")
	}
	exact := MustParseFilter(`code eq "widget"`).ForDefinition(def)
	if exact.Match(record) {
		t.Error("case-exact attribute matched differently-cased value")
	}
}

func TestFilter_Select(t *testing.T) {
	records := []map[string]any{
		{"userName": "alice", "active": true},
		{"userName": "bob", "active": false},
		{"userName": "carol", "active": true},
	}
	f := MustParseFilter("active eq true")
	got := f.Select(records)
	if len(got) != 2 {
		t.Fatalf("Select returned %d records, want 2", len(got))
	}
	if got[0]["userName"] != "alice" || got[1]["userName"] != "carol" {
		t.Errorf("Select order = %v, %v; want alice, carol", got[0]["userName"], got[1]["userName"])
	}
}

// ============================================================
// Path Splitting Tests
// ============================================================

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"userName", []string{"userName"}},
		{"name.givenName", []string{"name", "givenName"}},
		{`emails[type eq "work"].value`, []string{`emails[type eq "work"]`, "value"}},
		{`emails[value co "a.b"].display`, []string{`emails[value co "a.b"]`, "display"}},
		{"urn:ietf:params:scim:schemas:extension:enterprise:2.0:User", []string{"urn:ietf:params:scim:schemas:extension:enterprise:2.0:User"}},
	}
	for _, tt := range tests {
		if got := SplitPath(tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitPath(%q) = %#v, want %#v", tt.path, got, tt.want)
		}
	}
}

func TestCutFilter(t *testing.T) {
	name, expr, found := CutFilter(`emails[type eq "work"]`)
	if !found || name != "emails" || expr != `type eq "work"` {
		t.Errorf("CutFilter = (%q, %q, %v), want (emails, type eq \"work\", true)", name, expr, found)
	}
	name, _, found = CutFilter("userName")
	if found || name != "userName" {
		t.Errorf("CutFilter(userName) = (%q, _, %v), want (userName, false)", name, found)
	}
}
