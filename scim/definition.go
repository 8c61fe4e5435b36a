package scim

import (
	"fmt"
	"strings"
)

// ============================================================
// Schema Definition (RFC 7643 2.0)
// ============================================================

// ExtensionBinding attaches a schema extension to a parent definition. The
// definition is shared; the required flag belongs to the binding, so one
// extension instance can be attached to several parents with independent
// requiredness.
type ExtensionBinding struct {
	Definition *SchemaDefinition
	Required   bool
}

// SchemaDefinition composes attributes and extension bindings into a named,
// URN-identified resource schema. It orchestrates coercion across every
// field and applies filter-driven attribute selection for the
// attributes/excludedAttributes parameters.
type SchemaDefinition struct {
	Name        string
	ID          string
	Description string

	attributes []*Attribute
	extensions []ExtensionBinding
}

// NewSchemaDefinition constructs a definition with the given declared
// attributes. The common attributes (schemas, id, externalId, meta) are
// prepended automatically.
func NewSchemaDefinition(name, id, description string, attributes ...*Attribute) (*SchemaDefinition, error) {
	if name == "" {
		return nil, fmt.Errorf("schema definition requires a name")
	}
	if !strings.HasPrefix(id, "urn:") {
		return nil, fmt.Errorf("schema definition '%s' requires a URN id", name)
	}
	d := &SchemaDefinition{Name: name, ID: id, Description: description}
	d.attributes = commonAttributes()
	if err := d.Extend(attributes...); err != nil {
		return nil, err
	}
	return d, nil
}

// MustSchemaDefinition is like NewSchemaDefinition but panics on error.
// Intended for the static core schema tables.
func MustSchemaDefinition(name, id, description string, attributes ...*Attribute) *SchemaDefinition {
	d, err := NewSchemaDefinition(name, id, description, attributes...)
	if err != nil {
		panic(err)
	}
	return d
}

// commonAttributes builds the per-resource common attribute set from
// RFC 7643 3.1. They are shadow attributes: coerced like any other, but
// excluded from schema documents and extension exposure.
func commonAttributes() []*Attribute {
	return []*Attribute{
		MustAttribute(TypeReference, "schemas", Config{
			MultiValued: true, ReferenceTypes: []string{"uri"},
			Shadow: true,
		}),
		MustAttribute(TypeString, "id", Config{
			Direction: Out, Returned: Always, Required: true,
			Mutability: ReadOnly, CaseExact: true, Uniqueness: Global,
			Shadow: true,
		}),
		MustAttribute(TypeString, "externalId", Config{
			Direction: In, CaseExact: true,
			Shadow: true,
		}),
		MustAttribute(TypeComplex, "meta", Config{
			Required: true, Mutability: ReadOnly,
			Shadow: true,
		}, []*Attribute{
			MustAttribute(TypeString, "resourceType", Config{Required: true, Mutability: ReadOnly, CaseExact: true}),
			MustAttribute(TypeDateTime, "created", Config{Direction: Out, Mutability: ReadOnly}),
			MustAttribute(TypeDateTime, "lastModified", Config{Direction: Out, Mutability: ReadOnly}),
			MustAttribute(TypeString, "location", Config{Direction: Out, Mutability: ReadOnly}),
			MustAttribute(TypeString, "version", Config{Direction: Out, Mutability: ReadOnly}),
		}...),
	}
}

// Attributes returns the definition's declared attributes, excluding the
// shadow common attributes
func (d *SchemaDefinition) Attributes() []*Attribute {
	out := make([]*Attribute, 0, len(d.attributes))
	for _, attr := range d.attributes {
		if attr.config.Shadow {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// CommonAttributes returns the shadow common attributes (schemas, id,
// externalId, meta)
func (d *SchemaDefinition) CommonAttributes() []*Attribute {
	out := make([]*Attribute, 0, 4)
	for _, attr := range d.attributes {
		if attr.config.Shadow {
			out = append(out, attr)
		}
	}
	return out
}

// Extensions returns the definition's extension bindings
func (d *SchemaDefinition) Extensions() []ExtensionBinding {
	return append([]ExtensionBinding(nil), d.extensions...)
}

// Extend adds attributes to the definition, enforcing name uniqueness
func (d *SchemaDefinition) Extend(attributes ...*Attribute) error {
	for _, attr := range attributes {
		if attr == nil {
			return fmt.Errorf("cannot extend schema definition '%s' with a nil attribute", d.Name)
		}
		if existing := d.attributeByName(attr.Name); existing != nil {
			if existing == attr {
				continue
			}
			return fmt.Errorf("schema definition '%s' already declares attribute '%s'", d.Name, attr.Name)
		}
		d.attributes = append(d.attributes, attr)
	}
	return nil
}

// AddExtension attaches a schema extension, enforcing URN uniqueness across
// the definition's own id and previously attached extensions
func (d *SchemaDefinition) AddExtension(definition *SchemaDefinition, required bool) error {
	if definition == nil {
		return fmt.Errorf("cannot extend schema definition '%s' with a nil extension", d.Name)
	}
	if strings.EqualFold(definition.ID, d.ID) {
		return fmt.Errorf("schema extension id '%s' collides with schema definition '%s'", definition.ID, d.Name)
	}
	for i, ext := range d.extensions {
		if strings.EqualFold(ext.Definition.ID, definition.ID) {
			if ext.Definition == definition {
				d.extensions[i].Required = required
				return nil
			}
			return fmt.Errorf("schema definition '%s' already declares extension '%s'", d.Name, definition.ID)
		}
	}
	d.extensions = append(d.extensions, ExtensionBinding{Definition: definition, Required: required})
	return nil
}

// Truncate removes declared attributes by name, by instance, or removes an
// extension by definition or URN. Missing targets are a no-op.
func (d *SchemaDefinition) Truncate(targets ...any) error {
	for _, target := range targets {
		switch t := target.(type) {
		case string:
			if strings.HasPrefix(strings.ToLower(t), "urn:") {
				d.removeExtensionByID(t)
				continue
			}
			if name, rest, nested := strings.Cut(t, "."); nested {
				if attr := d.attributeByName(name); attr != nil {
					attr.Truncate(rest)
				}
				continue
			}
			d.removeAttributeByName(t)
		case *Attribute:
			for i, attr := range d.attributes {
				if attr == t {
					d.attributes = append(d.attributes[:i], d.attributes[i+1:]...)
					break
				}
			}
		case *SchemaDefinition:
			for i, ext := range d.extensions {
				if ext.Definition == t {
					d.extensions = append(d.extensions[:i], d.extensions[i+1:]...)
					break
				}
			}
		default:
			return fmt.Errorf("cannot truncate schema definition '%s' by %T target", d.Name, target)
		}
	}
	return nil
}

func (d *SchemaDefinition) removeAttributeByName(name string) {
	for i, attr := range d.attributes {
		if strings.EqualFold(attr.Name, name) {
			d.attributes = append(d.attributes[:i], d.attributes[i+1:]...)
			return
		}
	}
}

func (d *SchemaDefinition) removeExtensionByID(id string) {
	for i, ext := range d.extensions {
		if strings.EqualFold(ext.Definition.ID, id) {
			d.extensions = append(d.extensions[:i], d.extensions[i+1:]...)
			return
		}
	}
}

func (d *SchemaDefinition) attributeByName(name string) *Attribute {
	for _, attr := range d.attributes {
		if strings.EqualFold(attr.Name, name) {
			return attr
		}
	}
	return nil
}

// Extension resolves an extension binding by URN, or nil
func (d *SchemaDefinition) Extension(id string) *ExtensionBinding {
	for i, ext := range d.extensions {
		if strings.EqualFold(ext.Definition.ID, id) {
			return &d.extensions[i]
		}
	}
	return nil
}

// ============================================================
// Attribute Path Resolution
// ============================================================

// Attribute resolves a dotted or URN-namespaced path to a declared
// attribute, descending through complex sub-attributes and extension
// definitions
func (d *SchemaDefinition) Attribute(path string) (*Attribute, error) {
	if strings.HasPrefix(strings.ToLower(path), "urn:") {
		ext, remainder, err := d.extensionFor(path)
		if err != nil {
			return nil, err
		}
		if remainder == "" {
			return nil, fmt.Errorf("schema extension '%s' is not an attribute of schema definition '%s'", ext.Definition.ID, d.Name)
		}
		attr, err := ext.Definition.Attribute(remainder)
		if err != nil {
			return nil, fmt.Errorf("%w in schema extension '%s'", err, ext.Definition.ID)
		}
		return attr, nil
	}

	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty attribute path for schema definition '%s'", d.Name)
	}

	name, _, _ := CutFilter(segments[0])
	attr := d.attributeByName(name)
	if attr == nil {
		return nil, fmt.Errorf("schema definition '%s' does not declare attribute '%s'", d.Name, name)
	}
	for _, segment := range segments[1:] {
		subName, _, _ := CutFilter(segment)
		if attr.Type != TypeComplex {
			return nil, fmt.Errorf("attribute '%s' of schema definition '%s' is not complex and has no sub-attribute '%s'", attr.Name, d.Name, subName)
		}
		sub := attr.SubAttribute(subName)
		if sub == nil {
			return nil, fmt.Errorf("attribute '%s' of schema definition '%s' has no sub-attribute '%s'", attr.Name, d.Name, subName)
		}
		attr = sub
	}
	return attr, nil
}

// extensionFor finds the extension binding whose URN prefixes the path, and
// the attribute path remainder after the namespace separator
func (d *SchemaDefinition) extensionFor(path string) (*ExtensionBinding, string, error) {
	lower := strings.ToLower(path)
	for i, ext := range d.extensions {
		id := strings.ToLower(ext.Definition.ID)
		if lower == id {
			return &d.extensions[i], "", nil
		}
		if strings.HasPrefix(lower, id+":") {
			return &d.extensions[i], path[len(id)+1:], nil
		}
	}
	return nil, "", fmt.Errorf("schema definition '%s' has no extension matching namespace of '%s'", d.Name, path)
}

// ============================================================
// Coercion
// ============================================================

// Coerce validates and normalizes a raw record against the definition:
// common attributes, every declared attribute, and every extension
// (gathering colon-namespaced flat keys into the extension's object form).
// The optional filter applies attribute selection to the result.
func (d *SchemaDefinition) Coerce(data map[string]any, direction Direction, basepath string, filters ...*Filter) (map[string]any, error) {
	if data == nil {
		return nil, fmt.Errorf("expected data to be a single complex value in coercion of schema definition '%s'", d.Name)
	}

	source := make(map[string]any, len(data))
	for key, value := range data {
		source[strings.ToLower(key)] = NormalizeValue(value)
	}

	// The qualifying schemas list: this definition plus every extension
	// that has data or was already declared by the caller
	declared := map[string]bool{}
	if listed, ok := source["schemas"].([]any); ok {
		for _, entry := range listed {
			if s, ok := entry.(string); ok {
				declared[strings.ToLower(s)] = true
			}
		}
	}
	schemas := []any{d.ID}

	meta, _ := source["meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["resourceType"] = d.Name
	if basepath != "" {
		location := basepath
		if id, ok := source["id"].(string); ok && id != "" && !strings.HasSuffix(basepath, "/"+id) {
			location = strings.TrimSuffix(basepath, "/") + "/" + id
		}
		meta["location"] = location
	}
	source["meta"] = meta

	out := map[string]any{}
	for _, attr := range d.attributes {
		if strings.EqualFold(attr.Name, "schemas") {
			continue
		}
		value, err := attr.Coerce(source[strings.ToLower(attr.Name)], direction)
		if err != nil {
			return nil, err
		}
		if value != nil {
			out[attr.Name] = value
		}
	}

	for _, ext := range d.extensions {
		merged := gatherExtensionData(source, ext.Definition.ID)
		if len(merged) == 0 {
			if ext.Required || declared[strings.ToLower(ext.Definition.ID)] {
				if !ext.Required {
					schemas = append(schemas, ext.Definition.ID)
					out[ext.Definition.ID] = map[string]any{}
					continue
				}
				return nil, fmt.Errorf("missing values for required schema extension '%s'", ext.Definition.ID)
			}
			continue
		}
		coerced, err := ext.Definition.coerceExtension(merged, direction)
		if err != nil {
			return nil, fmt.Errorf("%w in schema extension '%s'", err, ext.Definition.ID)
		}
		schemas = append(schemas, ext.Definition.ID)
		out[ext.Definition.ID] = coerced
	}
	out["schemas"] = schemas

	if len(filters) > 0 && filters[0] != nil && len(filters[0].branches) > 0 {
		out = d.filterData(filters[0].branches[0], out)
	}
	return out, nil
}

// coerceExtension coerces a record against the extension's declared
// attributes only; the shadow common attributes belong to the parent
func (d *SchemaDefinition) coerceExtension(data map[string]any, direction Direction) (map[string]any, error) {
	source := make(map[string]any, len(data))
	for key, value := range data {
		source[strings.ToLower(key)] = NormalizeValue(value)
	}
	out := map[string]any{}
	for _, attr := range d.attributes {
		if attr.config.Shadow {
			continue
		}
		value, err := attr.Coerce(source[strings.ToLower(attr.Name)], direction)
		if err != nil {
			return nil, err
		}
		if value != nil {
			out[attr.Name] = value
		}
	}
	return out, nil
}

// gatherExtensionData collects an extension's values from a record: the
// object stored under the bare extension URN, deep-merged with any flat
// colon-namespaced keys (urn:...:attr or urn:...:nested.path)
func gatherExtensionData(source map[string]any, id string) map[string]any {
	lowerID := strings.ToLower(id)
	merged := map[string]any{}
	if direct, ok := source[lowerID].(map[string]any); ok {
		merged = deepMerge(merged, direct)
	}
	for key, value := range source {
		if !strings.HasPrefix(key, lowerID+":") {
			continue
		}
		path := key[len(lowerID)+1:]
		if path == "" {
			continue
		}
		nested := map[string]any{}
		node := nested
		segments := strings.Split(path, ".")
		for i, segment := range segments {
			if i == len(segments)-1 {
				node[segment] = value
				break
			}
			child := map[string]any{}
			node[segment] = child
			node = child
		}
		merged = deepMerge(merged, nested)
	}
	return merged
}

// deepMerge merges b into a: objects recurse, arrays concatenate,
// primitives overwrite
func deepMerge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for key, value := range a {
		out[key] = value
	}
	for key, value := range b {
		existingKey := key
		existing, found := LookupKey(out, key)
		if found {
			for k := range out {
				if strings.EqualFold(k, key) {
					existingKey = k
					break
				}
			}
		}
		switch v := NormalizeValue(value).(type) {
		case map[string]any:
			if e, ok := existing.(map[string]any); ok {
				out[existingKey] = deepMerge(e, v)
				continue
			}
			out[existingKey] = v
		case []any:
			if e, ok := existing.([]any); ok {
				out[existingKey] = append(append([]any{}, e...), v...)
				continue
			}
			out[existingKey] = v
		default:
			out[existingKey] = v
		}
	}
	return out
}

// ============================================================
// Attribute Selection
// ============================================================

// filterData applies a filter branch as an attribute selector: pr
// conditions include, np conditions exclude, and a purely negative filter
// acts as a default-allow list (excludedAttributes semantics)
func (d *SchemaDefinition) filterData(branch Branch, data map[string]any) map[string]any {
	defaultAllow := isExclusionBranch(branch)
	out := map[string]any{}

	for key, value := range data {
		if ext := d.Extension(key); ext != nil {
			cond, addressed := LookupKey(map[string]any(branch), key)
			switch {
			case addressed && isExclusion(cond):
				continue
			case addressed || defaultAllow || !IsEmptyValue(value):
				out[key] = value
			}
			continue
		}

		attr := d.attributeByName(key)
		var cfg Config
		if attr != nil {
			cfg = attr.config
		}
		if cfg.Returned == Always || strings.EqualFold(key, "schemas") {
			out[key] = value
			continue
		}
		if cfg.Returned == Never {
			continue
		}

		cond, addressed := LookupKey(map[string]any(branch), key)
		switch {
		case !addressed:
			// meta rides along with the minimum attribute set unless the
			// selector excludes it by name
			if defaultAllow || strings.EqualFold(key, "meta") {
				out[key] = value
			}
		case isExclusion(cond):
			continue
		case isSubBranch(cond):
			filtered := filterSubData(asBranch(cond), value, defaultAllow)
			if !IsEmptyValue(filtered) {
				out[key] = filtered
			}
		default:
			out[key] = value
		}
	}
	return out
}

// filterSubData applies a nested selector branch to a complex value or,
// element-wise, to a collection of complex values (dropping emptied
// elements)
func filterSubData(branch Branch, value any, defaultAllow bool) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, element := range v {
			filtered := filterSubData(branch, element, defaultAllow)
			if !IsEmptyValue(filtered) {
				out = append(out, filtered)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case map[string]any:
		out := map[string]any{}
		for key, sub := range v {
			cond, addressed := LookupKey(map[string]any(branch), key)
			switch {
			case !addressed:
				if defaultAllow {
					out[key] = sub
				}
			case isExclusion(cond):
				continue
			case isSubBranch(cond):
				filtered := filterSubData(asBranch(cond), sub, defaultAllow)
				if !IsEmptyValue(filtered) {
					out[key] = filtered
				}
			default:
				out[key] = sub
			}
		}
		return out
	default:
		return value
	}
}

// isExclusion reports whether a selector condition excludes its attribute:
// an np comparison or a negated pr
func isExclusion(cond any) bool {
	switch c := cond.(type) {
	case Comparison:
		return (c.Op == "np") != c.Negate
	case []Comparison:
		for _, cmp := range c {
			if (cmp.Op == "np") != cmp.Negate {
				return true
			}
		}
	}
	return false
}

// isExclusionBranch reports whether every leaf of a selector branch is an
// exclusion, making the branch a pure excludedAttributes selector
func isExclusionBranch(branch Branch) bool {
	for _, cond := range branch {
		switch c := cond.(type) {
		case Branch:
			if !isExclusionBranch(c) {
				return false
			}
		case map[string]any:
			if !isExclusionBranch(Branch(c)) {
				return false
			}
		default:
			if !isExclusion(cond) {
				return false
			}
		}
	}
	return true
}

func isSubBranch(cond any) bool {
	switch cond.(type) {
	case Branch, map[string]any:
		return true
	}
	return false
}

func asBranch(cond any) Branch {
	switch c := cond.(type) {
	case Branch:
		return c
	case map[string]any:
		return Branch(c)
	}
	return nil
}

// ============================================================
// Schema Document
// ============================================================

// Describe renders the definition as a SCIM schema document per
// RFC 7643 7, excluding the shadow common attributes
func (d *SchemaDefinition) Describe(basepath string) map[string]any {
	attributes := make([]any, 0, len(d.attributes))
	for _, attr := range d.attributes {
		if attr.config.Shadow {
			continue
		}
		attributes = append(attributes, attr.Describe())
	}
	doc := map[string]any{
		"schemas":    []any{"urn:ietf:params:scim:schemas:core:2.0:Schema"},
		"id":         d.ID,
		"name":       d.Name,
		"attributes": attributes,
		"meta": map[string]any{
			"resourceType": "Schema",
		},
	}
	if d.Description != "" {
		doc["description"] = d.Description
	}
	if basepath != "" {
		doc["meta"].(map[string]any)["location"] = strings.TrimSuffix(basepath, "/") + "/" + d.ID
	}
	return doc
}
