package scim

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ============================================================
// Filter Expression Parser
// ============================================================
//
// The parser reduces the token stream to the normalized object model: an
// ordered list of OR branches, each mapping attribute paths to comparison
// conditions. Grouping and bracketed complex-attribute filters are expanded
// by cross-multiplying their OR branches against the enclosing AND chain,
// so `(A or B) and C` distributes into {A,C} and {B,C}.

// Comparison is a single comparator application: an optional negation, a
// comparator keyword, and (for all comparators except pr/np) an expected
// value.
type Comparison struct {
	Negate   bool
	Op       string
	Value    any
	HasValue bool
}

// Branch maps attribute names to conditions within one OR branch of a
// filter. A condition is a Comparison, a []Comparison (implicit AND on the
// same attribute), or a nested Branch (dotted sub-path).
type Branch map[string]any

// flatExpr is the parser's intermediate form: one comparison at a fully
// dotted attribute path
type flatExpr struct {
	negate   bool
	path     string
	op       string
	value    any
	hasValue bool
}

// parseFlat reduces tokens into OR branches of ANDed flat expressions
func parseFlat(tokens []token) ([][]flatExpr, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty filter expression")
	}

	var result [][]flatExpr
	for _, orChunk := range splitOperator(tokens, "or") {
		if len(orChunk) == 0 {
			return nil, fmt.Errorf("unexpected 'or' token in filter expression")
		}

		// Each AND-chain element yields its own set of OR branches (from
		// grouping or bracket filters); the chain is their cross product
		combined := [][]flatExpr{{}}
		for _, andChunk := range splitOperator(orChunk, "and") {
			if len(andChunk) == 0 {
				return nil, fmt.Errorf("unexpected 'and' token in filter expression")
			}

			negate := false
			if andChunk[0].kind == tokOperator && andChunk[0].value == "not" {
				negate = true
				andChunk = andChunk[1:]
				if len(andChunk) == 0 {
					return nil, fmt.Errorf("unexpected 'not' token in filter expression")
				}
			}

			var set [][]flatExpr
			var err error
			if len(andChunk) == 1 && andChunk[0].kind == tokGroup {
				set, err = parseGroup(andChunk[0].value, negate)
			} else {
				set, err = parseSimple(andChunk, negate)
			}
			if err != nil {
				return nil, err
			}

			next := make([][]flatExpr, 0, len(combined)*len(set))
			for _, existing := range combined {
				for _, branch := range set {
					merged := make([]flatExpr, 0, len(existing)+len(branch))
					merged = append(merged, existing...)
					merged = append(merged, branch...)
					next = append(next, merged)
				}
			}
			combined = next
		}
		result = append(result, combined...)
	}
	return result, nil
}

// parseGroup recursively parses a parenthesized sub-expression. Negation
// distributes onto each contained comparison.
func parseGroup(contents string, negate bool) ([][]flatExpr, error) {
	tokens, err := tokenize(contents)
	if err != nil {
		return nil, err
	}
	set, err := parseFlat(tokens)
	if err != nil {
		return nil, err
	}
	if negate {
		for _, branch := range set {
			for i := range branch {
				branch[i].negate = !branch[i].negate
			}
		}
	}
	return set, nil
}

// parseSimple handles one AND-chain element: an attribute path with an
// optional comparator and value, where the path may carry bracketed
// complex-attribute filters
func parseSimple(tokens []token, negate bool) ([][]flatExpr, error) {
	if tokens[0].kind != tokWord {
		return nil, fmt.Errorf("unexpected token '%s' in filter expression", tokens[0].value)
	}
	path := tokens[0].value
	rest := tokens[1:]

	var op string
	var value any
	hasValue := false
	hasComparison := false

	if len(rest) > 0 {
		if rest[0].kind != tokComparator {
			return nil, fmt.Errorf("expected comparator after '%s' in filter expression", path)
		}
		op = rest[0].value
		hasComparison = true
		rest = rest[1:]

		if op == "pr" || op == "np" {
			if len(rest) > 0 {
				return nil, fmt.Errorf("unexpected token '%s' after '%s' in filter expression", rest[0].value, op)
			}
		} else {
			if len(rest) == 0 {
				return nil, fmt.Errorf("missing expected value for '%s' comparator in filter expression", op)
			}
			if len(rest) > 1 {
				return nil, fmt.Errorf("unexpected token '%s' in filter expression", rest[1].value)
			}
			switch rest[0].kind {
			case tokString:
				value = rest[0].value
			case tokNumber:
				f, err := strconv.ParseFloat(rest[0].value, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid number '%s' in filter expression", rest[0].value)
				}
				value = f
			case tokBoolean:
				value = rest[0].value == "true"
			case tokNull:
				value = nil
			default:
				return nil, fmt.Errorf("unexpected token '%s' in filter expression", rest[0].value)
			}
			hasValue = true
		}
	} else if !strings.Contains(path, "[") {
		return nil, fmt.Errorf("missing comparator for '%s' in filter expression", path)
	}

	// Expand bracketed complex-attribute filters along the path, computing
	// the cross product of the OR branches each bracket level contributes
	branches := [][]flatExpr{{}}
	var prefix string
	for _, segment := range SplitPath(path) {
		name, filterExpr, hasFilter := CutFilter(segment)
		if name == "" {
			return nil, fmt.Errorf("missing attribute name in filter path '%s'", path)
		}
		full := joinPath(prefix, name)
		if hasFilter {
			sub, err := parseGroup(filterExpr, negate && !hasComparison)
			if err != nil {
				return nil, err
			}
			next := make([][]flatExpr, 0, len(branches)*len(sub))
			for _, existing := range branches {
				for _, subBranch := range sub {
					merged := append([]flatExpr(nil), existing...)
					for _, expr := range subBranch {
						expr.path = joinPath(full, expr.path)
						merged = append(merged, expr)
					}
					next = append(next, merged)
				}
			}
			branches = next
		}
		prefix = full
	}

	if hasComparison {
		expr := flatExpr{negate: negate, path: prefix, op: op, value: value, hasValue: hasValue}
		for i := range branches {
			branches[i] = append(branches[i], expr)
		}
	}
	return branches, nil
}

// splitOperator splits tokens on a top-level logical operator
func splitOperator(tokens []token, operator string) [][]token {
	var chunks [][]token
	start := 0
	for i, t := range tokens {
		if t.kind == tokOperator && t.value == operator {
			chunks = append(chunks, tokens[start:i])
			start = i + 1
		}
	}
	chunks = append(chunks, tokens[start:])
	return chunks
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}

// ============================================================
// Object-ification
// ============================================================

// objectify nests flat expressions into the branch object model, lower-
// casing only the first character of each path segment per SCIM attribute
// naming convention, and merging repeated attributes into comparison lists
func objectify(flat [][]flatExpr) ([]Branch, error) {
	branches := make([]Branch, 0, len(flat))
	for _, exprs := range flat {
		branch := Branch{}
		for _, expr := range exprs {
			segments := SplitPath(expr.path)
			node := branch
			for i, seg := range segments {
				key := lowerFirst(seg)
				if i == len(segments)-1 {
					cmp := Comparison{Negate: expr.negate, Op: expr.op, Value: expr.value, HasValue: expr.hasValue}
					switch existing := node[key].(type) {
					case nil:
						node[key] = cmp
					case Comparison:
						node[key] = []Comparison{existing, cmp}
					case []Comparison:
						node[key] = append(existing, cmp)
					default:
						return nil, fmt.Errorf("inconsistent filter paths for attribute '%s'", expr.path)
					}
					continue
				}
				switch existing := node[key].(type) {
				case nil:
					child := Branch{}
					node[key] = child
					node = child
				case Branch:
					node = existing
				default:
					return nil, fmt.Errorf("inconsistent filter paths for attribute '%s'", expr.path)
				}
			}
		}
		if len(branch) == 0 {
			return nil, fmt.Errorf("empty filter expression")
		}
		branches = append(branches, branch)
	}
	return branches, nil
}

func lowerFirst(s string) string {
	if s == "" || strings.HasPrefix(s, "urn:") {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// ============================================================
// Validation of Pre-Built Expression Objects
// ============================================================

// validateBranch checks the shape of an externally supplied expression
// object: every leaf must be a well-formed comparison and every branch must
// carry at least one property
func validateBranch(branch Branch, path string) error {
	if len(branch) == 0 {
		at := ""
		if path != "" {
			at = fmt.Sprintf(" for attribute '%s'", path)
		}
		return fmt.Errorf("missing expression properties%s", at)
	}
	for key, cond := range branch {
		full := joinPath(path, key)
		switch c := cond.(type) {
		case Comparison:
			if err := validateComparison(c, full); err != nil {
				return err
			}
		case []Comparison:
			if len(c) == 0 {
				return fmt.Errorf("empty comparison list for attribute '%s'", full)
			}
			for _, cmp := range c {
				if err := validateComparison(cmp, full); err != nil {
					return err
				}
			}
		case Branch:
			if err := validateBranch(c, full); err != nil {
				return err
			}
		case map[string]any:
			if err := validateBranch(Branch(c), full); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid expression for attribute '%s'", full)
		}
	}
	return nil
}

func validateComparison(c Comparison, path string) error {
	if !comparatorSet[c.Op] {
		return fmt.Errorf("invalid comparator '%s' for attribute '%s'", c.Op, path)
	}
	if c.Op == "pr" || c.Op == "np" {
		if c.HasValue {
			return fmt.Errorf("unexpected value for '%s' comparator on attribute '%s'", c.Op, path)
		}
		return nil
	}
	if !c.HasValue {
		return fmt.Errorf("missing expected value for '%s' comparator on attribute '%s'", c.Op, path)
	}
	return nil
}

// cloneBranch deep-copies an expression object so a constructed filter
// cannot be corrupted through shared references
func cloneBranch(branch Branch) Branch {
	out := make(Branch, len(branch))
	for key, cond := range branch {
		switch c := cond.(type) {
		case Comparison:
			c.Value = DeepCopyValue(c.Value)
			out[key] = c
		case []Comparison:
			list := make([]Comparison, len(c))
			for i, cmp := range c {
				cmp.Value = DeepCopyValue(cmp.Value)
				list[i] = cmp
			}
			out[key] = list
		case Branch:
			out[key] = cloneBranch(c)
		case map[string]any:
			out[key] = cloneBranch(Branch(c))
		}
	}
	return out
}

// ============================================================
// Stringification
// ============================================================

// stringifyBranches re-derives a canonical filter expression from the
// object model. Keys are emitted in sorted order so the output is
// deterministic; AND is commutative so matching is unaffected.
func stringifyBranches(branches []Branch) string {
	parts := make([]string, 0, len(branches))
	for _, branch := range branches {
		parts = append(parts, stringifyBranch(branch, ""))
	}
	return strings.Join(parts, " or ")
}

func stringifyBranch(branch Branch, prefix string) string {
	keys := make([]string, 0, len(branch))
	for key := range branch {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		full := joinPath(prefix, key)
		switch c := branch[key].(type) {
		case Comparison:
			parts = append(parts, stringifyComparison(full, c))
		case []Comparison:
			for _, cmp := range c {
				parts = append(parts, stringifyComparison(full, cmp))
			}
		case Branch:
			parts = append(parts, stringifyBranch(c, full))
		case map[string]any:
			parts = append(parts, stringifyBranch(Branch(c), full))
		}
	}
	return strings.Join(parts, " and ")
}

func stringifyComparison(path string, c Comparison) string {
	var sb strings.Builder
	if c.Negate {
		sb.WriteString("not ")
	}
	sb.WriteString(path)
	sb.WriteByte(' ')
	sb.WriteString(c.Op)
	if c.Op == "pr" || c.Op == "np" {
		return sb.String()
	}
	sb.WriteByte(' ')
	switch v := c.Value.(type) {
	case nil:
		sb.WriteString("null")
	case string:
		sb.WriteString(strconv.Quote(v))
	case bool:
		sb.WriteString(strconv.FormatBool(v))
	case float64:
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		sb.WriteString(fmt.Sprintf("%v", v))
	}
	return sb.String()
}
