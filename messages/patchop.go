package messages

import (
	"fmt"
	"strings"

	"github.com/openidx/scimcore/scim"
)

// ============================================================
// PatchOp (RFC 7644 3.5.2)
// ============================================================

// PatchOpURN is the message schema identifier for patch requests
const PatchOpURN = "urn:ietf:params:scim:api:messages:2.0:PatchOp"

// PatchOperation is one entry of a patch request's Operations list
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`
}

// PatchOp is a validated patch request. Apply executes its operations in
// order against a resource, atomically: any failing operation rejects the
// whole request.
type PatchOp struct {
	Schemas    []string         `json:"schemas"`
	Operations []PatchOperation `json:"Operations"`
}

// Finalizer lets the host re-process the patched resource (enrichment,
// persistence round-trip) before the no-op detection comparison
type Finalizer func(*scim.Resource) (map[string]any, error)

// NewPatchOp validates a decoded patch request body. Structural violations
// are 400 invalidSyntax or invalidValue errors.
func NewPatchOp(body map[string]any) (*PatchOp, error) {
	rawSchemas, _ := scim.LookupKey(body, "schemas")
	schemas, ok := scim.NormalizeValue(rawSchemas).([]any)
	if !ok || len(schemas) != 1 || schemas[0] != PatchOpURN {
		return nil, scim.InvalidSyntax(fmt.Sprintf("patch request body must exclusively specify schema as '%s'", PatchOpURN))
	}

	rawOps, _ := scim.LookupKey(body, "Operations")
	list, ok := scim.NormalizeValue(rawOps).([]any)
	if !ok || len(list) == 0 {
		return nil, scim.InvalidValue("patch request body must contain 'Operations' attribute with at least one operation")
	}

	p := &PatchOp{Schemas: []string{PatchOpURN}}
	for i, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, scim.InvalidValue(fmt.Sprintf("patch operation %d must be a complex value", i+1))
		}
		op, err := parseOperation(entry, i+1)
		if err != nil {
			return nil, err
		}
		p.Operations = append(p.Operations, op)
	}
	return p, nil
}

func parseOperation(entry map[string]any, index int) (PatchOperation, error) {
	var op PatchOperation

	rawOp, _ := scim.LookupKey(entry, "op")
	name, ok := rawOp.(string)
	if !ok {
		return op, scim.InvalidSyntax(fmt.Sprintf("missing required attribute 'op' from operation %d in patch request body", index))
	}
	name = strings.ToLower(name)
	switch name {
	case "add", "remove", "replace":
	default:
		return op, scim.InvalidSyntax(fmt.Sprintf("invalid operation '%s' for operation %d in patch request body", name, index))
	}
	op.Op = name

	if rawPath, found := scim.LookupKey(entry, "path"); found {
		path, ok := rawPath.(string)
		if !ok || path == "" {
			return op, scim.InvalidPath(fmt.Sprintf("invalid path value for operation %d in patch request body", index))
		}
		if err := checkPathSyntax(path); err != nil {
			return op, scim.InvalidPath(fmt.Sprintf("invalid path '%s' for operation %d in patch request body", path, index))
		}
		op.Path = path
	}

	value, _ := scim.LookupKey(entry, "value")
	op.Value = scim.NormalizeValue(value)

	switch {
	case op.Op == "add" && op.Value == nil:
		return op, scim.InvalidValue(fmt.Sprintf("missing required attribute 'value' for 'add' op of operation %d in patch request body", index))
	case op.Op == "remove" && op.Path == "":
		return op, scim.NoTarget(fmt.Sprintf("missing required attribute 'path' for 'remove' op of operation %d in patch request body", index))
	}
	return op, nil
}

// checkPathSyntax validates a patch path's shape without a schema
// definition: every bracketed segment must hold a parseable filter
func checkPathSyntax(path string) error {
	remainder := path
	if urnPrefix(remainder) {
		if i := strings.LastIndex(remainder, ":"); i >= 0 {
			remainder = remainder[i+1:]
		}
	}
	for _, segment := range scim.SplitPath(remainder) {
		name, filterExpr, found := scim.CutFilter(segment)
		if name == "" {
			return scim.InvalidPath(fmt.Sprintf("missing attribute name in path '%s'", path))
		}
		if found {
			if _, err := scim.ParseFilter(filterExpr); err != nil {
				return err
			}
		}
	}
	return nil
}

func urnPrefix(path string) bool {
	return strings.HasPrefix(strings.ToLower(path), "urn:")
}

// ============================================================
// Apply
// ============================================================

// Apply executes all operations against a working copy of the resource and
// returns the patched resource. A nil resource result (with nil error)
// means the patch produced no net change, compared with meta stripped.
func (p *PatchOp) Apply(resource *scim.Resource, finalise Finalizer) (*scim.Resource, error) {
	if resource == nil {
		return nil, scim.NoTarget("no resource supplied to apply patch operations to")
	}

	def := resource.Definition()
	source := resource.Values()
	working := resource.Values()

	for i, op := range p.Operations {
		var err error
		switch op.Op {
		case "add":
			err = applyAdd(def, working, op.Path, op.Value)
		case "remove":
			err = applyRemove(def, working, op.Path, op.Value)
		case "replace":
			err = applyReplace(def, working, op.Path, op.Value)
		}
		if err != nil {
			return nil, annotate(err, op.Op, i+1)
		}

		// Re-coerce after every operation so violations surface with the
		// failing operation's index
		coerced, err := def.Coerce(working, resource.Direction(), "")
		if err != nil {
			return nil, annotate(scim.InvalidValue(err.Error()), op.Op, i+1)
		}
		if err := checkMutability(def, source, coerced); err != nil {
			return nil, annotate(err, op.Op, i+1)
		}
		working = coerced
	}

	target, err := resource.Rebuild(working)
	if err != nil {
		return nil, err
	}
	if finalise != nil {
		data, err := finalise(target)
		if err != nil {
			return nil, err
		}
		if target, err = resource.Rebuild(data); err != nil {
			return nil, err
		}
	}

	if scim.DeepEqualValue(stripMeta(source), stripMeta(target.Values())) {
		return nil, nil
	}
	return target, nil
}

// annotate appends the operation context breadcrumb to protocol errors
func annotate(err error, op string, index int) error {
	suffix := fmt.Sprintf(" for '%s' op of operation %d in patch request body", op, index)
	if e, ok := err.(*scim.Error); ok {
		return &scim.Error{Status: e.Status, ScimType: e.ScimType, Detail: e.Detail + suffix}
	}
	return fmt.Errorf("%w%s", err, suffix)
}

// checkMutability rejects operations that changed an already-defined value
// of a read-only or immutable attribute, including the read-only common
// attributes such as id. meta is server-owned and exempt.
func checkMutability(def *scim.SchemaDefinition, source, target map[string]any) error {
	attrs := def.Attributes()
	for _, attr := range def.CommonAttributes() {
		if strings.EqualFold(attr.Name, "meta") {
			continue
		}
		attrs = append(attrs, attr)
	}
	for _, attr := range attrs {
		cfg := attr.Config()
		switch cfg.Mutability {
		case scim.ReadOnly, scim.Immutable:
		default:
			continue
		}
		old, found := scim.LookupKey(source, attr.Name)
		if !found || old == nil {
			continue
		}
		current, _ := scim.LookupKey(target, attr.Name)
		if !scim.DeepEqualValue(old, current) {
			return scim.MutabilityError(fmt.Sprintf("attribute '%s' already defined and is not mutable", attr.Name))
		}
	}
	return nil
}

func stripMeta(data map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range data {
		if strings.EqualFold(key, "meta") {
			continue
		}
		out[key] = value
	}
	return out
}

// ============================================================
// Path Resolution
// ============================================================

// patchTarget is one resolved destination: the object holding the final
// path segment's key, and the segment's filter when it carried one
type patchTarget struct {
	parent map[string]any
	key    string
	filter *scim.Filter
}

// resolveTargets walks a patch path through the working record, fanning out
// across collection elements matched by bracketed filters. For add,
// missing intermediate complex containers are materialized.
func resolveTargets(def *scim.SchemaDefinition, data map[string]any, path, op string) ([]patchTarget, error) {
	containers := []map[string]any{data}
	lookupDef := def

	remainder := path
	if urnPrefix(path) {
		ext, rest, err := extensionFor(def, path)
		if err != nil {
			return nil, scim.InvalidPath(err.Error())
		}
		lookupDef = ext.Definition
		value, found := scim.LookupKey(data, ext.Definition.ID)
		child, ok := value.(map[string]any)
		if !found || !ok {
			if op != "add" {
				return nil, nil
			}
			child = map[string]any{}
			data[ext.Definition.ID] = child
		}
		if rest == "" {
			return []patchTarget{{parent: data, key: actualKey(data, ext.Definition.ID)}}, nil
		}
		containers = []map[string]any{child}
		remainder = rest
	}

	segments := scim.SplitPath(remainder)
	if len(segments) == 0 {
		return nil, scim.InvalidPath("empty path in patch request body")
	}

	names := make([]string, 0, len(segments))
	for i, segment := range segments {
		name, filterExpr, hasFilter := scim.CutFilter(segment)
		names = append(names, name)
		last := i == len(segments)-1

		var filter *scim.Filter
		if hasFilter {
			parsed, err := scim.ParseFilter(filterExpr)
			if err != nil {
				return nil, err
			}
			// Sub-filter paths are relative to the collection attribute
			filter = parsed.ForDefinition(def)
			if attr, err := lookupDef.Attribute(strings.Join(names, ".")); err == nil && attr != nil {
				filter = parsed.ForAttribute(attr)
			}
		}

		if last {
			targets := make([]patchTarget, 0, len(containers))
			for _, container := range containers {
				targets = append(targets, patchTarget{parent: container, key: actualKey(container, name), filter: filter})
			}
			return targets, nil
		}

		var next []map[string]any
		for _, container := range containers {
			value, found := scim.LookupKey(container, name)
			value = scim.NormalizeValue(value)

			if filter != nil {
				list, ok := value.([]any)
				if !found || !ok {
					continue
				}
				for _, element := range list {
					if m, ok := element.(map[string]any); ok && filter.Match(m) {
						next = append(next, m)
					}
				}
				continue
			}

			switch v := value.(type) {
			case map[string]any:
				next = append(next, v)
			case []any:
				for _, element := range v {
					if m, ok := element.(map[string]any); ok {
						next = append(next, m)
					}
				}
			default:
				if op == "add" {
					child := map[string]any{}
					storeKey(container, name, child)
					next = append(next, child)
				}
			}
		}
		containers = next
	}
	return nil, nil
}

// extensionFor matches a URN-prefixed path to one of the definition's
// extension bindings, returning the attribute path remainder
func extensionFor(def *scim.SchemaDefinition, path string) (*scim.ExtensionBinding, string, error) {
	lower := strings.ToLower(path)
	extensions := def.Extensions()
	for i := range extensions {
		id := strings.ToLower(extensions[i].Definition.ID)
		if lower == id {
			return &extensions[i], "", nil
		}
		if strings.HasPrefix(lower, id+":") {
			return &extensions[i], path[len(id)+1:], nil
		}
	}
	return nil, "", fmt.Errorf("no schema extension matches namespace of path '%s'", path)
}

// stripFilters reduces a patch path to its bare attribute path for schema
// definition lookups
func stripFilters(path string) string {
	if urnPrefix(path) {
		return path
	}
	segments := scim.SplitPath(path)
	names := make([]string, 0, len(segments))
	for _, segment := range segments {
		name, _, _ := scim.CutFilter(segment)
		names = append(names, name)
	}
	return strings.Join(names, ".")
}

func actualKey(data map[string]any, key string) string {
	for existing := range data {
		if strings.EqualFold(existing, key) {
			return existing
		}
	}
	return key
}

func storeKey(data map[string]any, key string, value any) {
	data[actualKey(data, key)] = value
}

// ============================================================
// Operations
// ============================================================

// applyAdd implements the add operation: merge per key without a path;
// append for multi-valued targets, complex merge for complex targets, and
// direct assignment otherwise
func applyAdd(def *scim.SchemaDefinition, data map[string]any, path string, value any) error {
	if path == "" {
		values, ok := value.(map[string]any)
		if !ok {
			return scim.InvalidValue("attribute 'value' must be a complex value when no path is supplied")
		}
		for key, sub := range values {
			if err := applyAdd(def, data, key, scim.NormalizeValue(sub)); err != nil {
				return err
			}
		}
		return nil
	}

	attr, err := def.Attribute(stripFilters(path))
	if err != nil {
		return scim.InvalidPath(err.Error())
	}
	targets, err := resolveTargets(def, data, path, "add")
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return scim.NoTarget(fmt.Sprintf("no target found for supplied path '%s'", path))
	}

	for _, target := range targets {
		current, found := scim.LookupKey(target.parent, target.key)
		current = scim.NormalizeValue(current)

		if target.filter != nil {
			// Merge into the collection elements the filter matches
			list, ok := current.([]any)
			if !found || !ok {
				return scim.NoTarget(fmt.Sprintf("no target found for supplied path '%s'", path))
			}
			values, ok := value.(map[string]any)
			if !ok {
				return scim.InvalidValue(fmt.Sprintf("attribute 'value' must be a complex value for filtered path '%s'", path))
			}
			matched := false
			for _, element := range list {
				m, ok := element.(map[string]any)
				if !ok || !target.filter.Match(m) {
					continue
				}
				matched = true
				if err := mergeComplex(attr, m, values); err != nil {
					return err
				}
			}
			if !matched {
				return scim.NoTarget(fmt.Sprintf("no target found for supplied path '%s'", path))
			}
			continue
		}

		cfg := attr.Config()
		switch {
		case cfg.MultiValued:
			additions, ok := value.([]any)
			if !ok {
				additions = []any{value}
			}
			existing, _ := current.([]any)
			storeKey(target.parent, target.key, append(existing, additions...))
		case attr.Type == scim.TypeComplex:
			values, ok := value.(map[string]any)
			if !ok {
				storeKey(target.parent, target.key, value)
				continue
			}
			existing, ok := current.(map[string]any)
			if !ok {
				existing = map[string]any{}
				storeKey(target.parent, target.key, existing)
			}
			if err := mergeComplex(attr, existing, values); err != nil {
				return err
			}
		default:
			storeKey(target.parent, target.key, value)
		}
	}
	return nil
}

// mergeComplex assigns supplied sub-values onto a complex value, rejecting
// sub-attributes the complex type does not declare
func mergeComplex(attr *scim.Attribute, target, values map[string]any) error {
	for key, value := range values {
		if attr.SubAttribute(key) == nil {
			return scim.InvalidPath(fmt.Sprintf("invalid attribute path '%s' in supplied value", key))
		}
		storeKey(target, key, scim.NormalizeValue(value))
	}
	return nil
}

// applyRemove implements the remove operation. An unresolvable target is a
// legal no-op.
func applyRemove(def *scim.SchemaDefinition, data map[string]any, path string, value any) error {
	if path == "" {
		return scim.NoTarget("missing required attribute 'path' for 'remove' op")
	}
	attr, err := def.Attribute(stripFilters(path))
	if err != nil {
		return scim.InvalidPath(err.Error())
	}
	targets, err := resolveTargets(def, data, path, "remove")
	if err != nil {
		return err
	}

	for _, target := range targets {
		current, found := scim.LookupKey(target.parent, target.key)
		if !found {
			continue
		}
		current = scim.NormalizeValue(current)

		if target.filter != nil {
			list, ok := current.([]any)
			if !ok {
				continue
			}
			kept := make([]any, 0, len(list))
			for _, element := range list {
				m, isMap := element.(map[string]any)
				if isMap && target.filter.Match(m) && (value == nil || removeValueMatches(element, value)) {
					continue
				}
				kept = append(kept, element)
			}
			replaceOrDelete(target.parent, target.key, kept)
			continue
		}

		if value == nil || !attr.Config().MultiValued {
			deleteKey(target.parent, target.key)
			continue
		}

		list, ok := current.([]any)
		if !ok {
			deleteKey(target.parent, target.key)
			continue
		}
		kept := make([]any, 0, len(list))
		for _, element := range list {
			if removeValueMatches(element, value) {
				continue
			}
			kept = append(kept, element)
		}
		replaceOrDelete(target.parent, target.key, kept)
	}
	return nil
}

// removeValueMatches reports whether a collection element is named for
// removal by a supplied value: a complex value matches when every defined
// key compares equal, a scalar by structural equality, and a collection
// when any of its entries match
func removeValueMatches(element, value any) bool {
	switch v := scim.NormalizeValue(value).(type) {
	case []any:
		for _, entry := range v {
			if removeValueMatches(element, entry) {
				return true
			}
		}
		return false
	case map[string]any:
		m, ok := scim.NormalizeValue(element).(map[string]any)
		if !ok {
			return false
		}
		matched := false
		for key, expected := range v {
			if expected == nil {
				continue
			}
			actual, _ := scim.LookupKey(m, key)
			if !scim.DeepEqualValue(actual, expected) {
				return false
			}
			matched = true
		}
		return matched
	default:
		return scim.DeepEqualValue(element, value)
	}
}

func replaceOrDelete(data map[string]any, key string, values []any) {
	if len(values) == 0 {
		deleteKey(data, key)
		return
	}
	storeKey(data, key, values)
}

func deleteKey(data map[string]any, key string) {
	delete(data, actualKey(data, key))
}

// applyReplace implements replace as remove-then-add, tolerating a failed
// remove. When add reports noTarget against a filtered or nested path, the
// add retries against the parent collection so replace can create a
// not-yet-existing multi-valued value.
func applyReplace(def *scim.SchemaDefinition, data map[string]any, path string, value any) error {
	if path == "" {
		values, ok := value.(map[string]any)
		if !ok {
			return scim.InvalidValue("attribute 'value' must be a complex value when no path is supplied")
		}
		for key, sub := range values {
			_ = applyRemove(def, data, key, nil)
			if err := applyAdd(def, data, key, scim.NormalizeValue(sub)); err != nil {
				return err
			}
		}
		return nil
	}

	// A missing prior value is not an error for replace
	_ = applyRemove(def, data, path, nil)

	err := applyAdd(def, data, path, value)
	if err != nil && scim.IsScimType(err, scim.ScimTypeNoTarget) {
		if parent := parentPath(path); parent != "" && parent != path {
			return applyAdd(def, data, parent, value)
		}
	}
	return err
}

// parentPath reduces a path to its enclosing collection: trailing filter
// and sub-attribute segments are dropped
func parentPath(path string) string {
	if urnPrefix(path) {
		return ""
	}
	segments := scim.SplitPath(path)
	for i, segment := range segments {
		name, _, hasFilter := scim.CutFilter(segment)
		if hasFilter {
			names := make([]string, 0, i+1)
			for _, prior := range segments[:i] {
				priorName, _, _ := scim.CutFilter(prior)
				names = append(names, priorName)
			}
			return strings.Join(append(names, name), ".")
		}
	}
	if len(segments) > 1 {
		return stripFilters(strings.Join(segments[:len(segments)-1], "."))
	}
	return ""
}
