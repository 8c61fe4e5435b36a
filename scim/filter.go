package scim

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================
// Filter (RFC 7644 3.4.2.2)
// ============================================================

// Filter is a parsed SCIM filter expression: an ordered set of OR branches
// evaluated against in-memory records, and doubling as the structural
// attribute selector behind the attributes/excludedAttributes parameters.
// Instances are immutable after construction.
type Filter struct {
	// Expression is the original filter string, or the canonical
	// re-derivation when the filter was built from expression objects
	Expression string

	branches   []Branch
	definition *SchemaDefinition
	scope      *Attribute
}

// ParseFilter parses a filter expression string. Failures are 400
// invalidFilter protocol errors.
func ParseFilter(expression string) (*Filter, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return nil, InvalidFilter(err.Error())
	}
	if len(tokens) == 0 {
		return nil, InvalidFilter("empty filter expression")
	}

	var flat [][]flatExpr
	if reallySimple(tokens) {
		// Fast path: a single comparison with no grouping, logic, or
		// bracket filters
		flat, err = parseSimple(tokens, false)
	} else {
		flat, err = parseFlat(tokens)
	}
	if err != nil {
		return nil, InvalidFilter(err.Error())
	}
	branches, err := objectify(flat)
	if err != nil {
		return nil, InvalidFilter(err.Error())
	}
	return &Filter{Expression: expression, branches: branches}, nil
}

// MustParseFilter is like ParseFilter but panics on error. Intended for
// static selector expressions.
func MustParseFilter(expression string) *Filter {
	f, err := ParseFilter(expression)
	if err != nil {
		panic(err)
	}
	return f
}

// reallySimple reports whether the token stream is a single plain
// comparison, allowing the parser to skip grouping and cross-product work
func reallySimple(tokens []token) bool {
	for _, t := range tokens {
		if t.kind == tokOperator || t.kind == tokGroup {
			return false
		}
		if t.kind == tokWord && strings.Contains(t.value, "[") {
			return false
		}
	}
	return true
}

// NewFilter builds a filter from pre-built expression objects. The objects
// are validated, deep-cloned, and the canonical expression string is
// derived from them.
func NewFilter(branches ...Branch) (*Filter, error) {
	if len(branches) == 0 {
		return nil, InvalidFilter("empty filter expression")
	}
	cloned := make([]Branch, 0, len(branches))
	for _, branch := range branches {
		if err := validateBranch(branch, ""); err != nil {
			return nil, InvalidFilter(err.Error())
		}
		cloned = append(cloned, cloneBranch(branch))
	}
	return &Filter{Expression: stringifyBranches(cloned), branches: cloned}, nil
}

// ForDefinition returns a copy of the filter that consults the given schema
// definition for attribute configuration (case-exactness) during matching
func (f *Filter) ForDefinition(definition *SchemaDefinition) *Filter {
	return &Filter{Expression: f.Expression, branches: f.branches, definition: definition}
}

// ForAttribute returns a copy of the filter that resolves attribute paths
// against a complex attribute's sub-attributes. Used for bracket sub-filters,
// whose paths are relative to the enclosing collection attribute.
func (f *Filter) ForAttribute(attr *Attribute) *Filter {
	return &Filter{Expression: f.Expression, branches: f.branches, scope: attr}
}

// Branches returns a deep copy of the filter's expression objects
func (f *Filter) Branches() []Branch {
	out := make([]Branch, 0, len(f.branches))
	for _, branch := range f.branches {
		out = append(out, cloneBranch(branch))
	}
	return out
}

// String returns the filter expression
func (f *Filter) String() string {
	return f.Expression
}

// ============================================================
// Matching
// ============================================================

// Match reports whether a record satisfies the filter: any OR branch where
// every attribute condition holds
func (f *Filter) Match(record map[string]any) bool {
	for _, branch := range f.branches {
		if f.matchBranch(branch, record, "") {
			return true
		}
	}
	return false
}

// Select returns the records the filter matches, preserving order
func (f *Filter) Select(records []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		if f.Match(record) {
			out = append(out, record)
		}
	}
	return out
}

func (f *Filter) matchBranch(branch Branch, record map[string]any, prefix string) bool {
	for key, cond := range branch {
		actual, _ := LookupKey(record, key)
		if !f.matchCondition(cond, actual, joinPath(prefix, key)) {
			return false
		}
	}
	return true
}

func (f *Filter) matchCondition(cond, actual any, path string) bool {
	actual = NormalizeValue(actual)

	// Multi-valued semantics: the condition holds if some element satisfies
	if values, ok := actual.([]any); ok {
		for _, element := range values {
			if f.matchCondition(cond, element, path) {
				return true
			}
		}
		return false
	}

	switch c := cond.(type) {
	case Branch:
		sub, ok := actual.(map[string]any)
		if !ok {
			// Missing or scalar parents still evaluate, so np conditions on
			// absent sub-attributes can hold
			sub = map[string]any{}
		}
		return f.matchBranch(c, sub, path)
	case map[string]any:
		return f.matchCondition(Branch(c), actual, path)
	case Comparison:
		return f.compare(c, actual, path)
	case []Comparison:
		for _, cmp := range c {
			if !f.compare(cmp, actual, path) {
				return false
			}
		}
		return true
	}
	return false
}

func (f *Filter) compare(c Comparison, actual any, path string) bool {
	result := f.evalComparator(c, actual, path)
	if c.Negate {
		return !result
	}
	return result
}

func (f *Filter) evalComparator(c Comparison, actual any, path string) bool {
	switch c.Op {
	case "pr":
		return actual != nil
	case "np":
		return actual == nil
	case "eq":
		return equalValues(actual, c.Value, f.caseExactFor(path))
	case "ne":
		return !equalValues(actual, c.Value, f.caseExactFor(path))
	case "co", "sw", "ew":
		return stringCompare(c.Op, actual, c.Value, f.caseExactFor(path))
	case "gt", "lt", "ge", "le":
		cmp, ok := orderCompare(actual, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case "gt":
			return cmp > 0
		case "lt":
			return cmp < 0
		case "ge":
			return cmp >= 0
		default:
			return cmp <= 0
		}
	}
	return false
}

// caseExactFor resolves the case-exactness of string comparisons from the
// bound schema definition or attribute scope; without either, comparisons
// are case-sensitive
func (f *Filter) caseExactFor(path string) bool {
	if f.scope != nil {
		attr := f.scope
		for _, segment := range strings.Split(path, ".") {
			if attr = attr.SubAttribute(segment); attr == nil {
				return true
			}
		}
		return attr.config.CaseExact
	}
	if f.definition == nil {
		return true
	}
	attr, err := f.definition.Attribute(path)
	if err != nil || attr == nil {
		return true
	}
	return attr.config.CaseExact
}

// equalValues applies eq semantics, including the string-to-boolean
// accommodation for clients (notably Entra ID) that send "True"/"False"
// strings for boolean attributes
func equalValues(actual, expected any, caseExact bool) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	if b, ok := actual.(bool); ok {
		if s, isStr := expected.(string); isStr {
			if parsed, ok := parseBoolString(s); ok {
				return b == parsed
			}
			return false
		}
	}
	if s, ok := actual.(string); ok {
		if b, isBool := expected.(bool); isBool {
			if parsed, ok := parseBoolString(s); ok {
				return parsed == b
			}
			return false
		}
	}
	if sa, ok := actual.(string); ok {
		if se, ok := expected.(string); ok {
			if caseExact {
				return sa == se
			}
			return strings.EqualFold(sa, se)
		}
		return false
	}
	return DeepEqualValue(actual, expected)
}

func parseBoolString(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// stringCompare applies co/sw/ew on string-cast operands
func stringCompare(op string, actual, expected any, caseExact bool) bool {
	if actual == nil || expected == nil {
		return false
	}
	sa := stringOf(actual)
	se := stringOf(expected)
	if !caseExact {
		sa = strings.ToLower(sa)
		se = strings.ToLower(se)
	}
	switch op {
	case "co":
		return strings.Contains(sa, se)
	case "sw":
		return strings.HasPrefix(sa, se)
	case "ew":
		return strings.HasSuffix(sa, se)
	}
	return false
}

func stringOf(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// orderCompare compares operands for the ordering comparators: as instants
// when the expected value looks ISO 8601-shaped, as numbers when both are
// numeric, and lexically when both are strings. Mismatched types never
// match and never raise.
func orderCompare(actual, expected any) (int, bool) {
	if se, ok := expected.(string); ok && dateTimeRegex.MatchString(se) {
		sa, ok := actual.(string)
		if !ok || !dateTimeRegex.MatchString(sa) {
			return 0, false
		}
		ta, okA := parseDateTime(sa)
		te, okE := parseDateTime(se)
		if okA && okE {
			switch {
			case ta.Before(te):
				return -1, true
			case ta.After(te):
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	switch a := actual.(type) {
	case float64:
		if e, ok := expected.(float64); ok {
			switch {
			case a < e:
				return -1, true
			case a > e:
				return 1, true
			default:
				return 0, true
			}
		}
	case string:
		if e, ok := expected.(string); ok {
			return strings.Compare(a, e), true
		}
	}
	return 0, false
}
