package scim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ============================================================
// Resource Instance
// ============================================================

// Resource is a live record bound to a schema definition. All reads and
// writes route through the definition's attribute configuration, so type,
// cardinality, and mutability rules hold for the record's whole lifetime.
type Resource struct {
	definition *SchemaDefinition
	direction  Direction
	basepath   string
	data       map[string]any
}

// NewResource coerces raw data into a resource instance. The data's
// schemas list, when present, must declare the definition's id and every
// required extension.
func NewResource(definition *SchemaDefinition, data map[string]any, direction Direction, basepath string, filters ...*Filter) (*Resource, error) {
	if definition == nil {
		return nil, fmt.Errorf("resource requires a schema definition")
	}
	if data == nil {
		data = map[string]any{}
	}
	if err := checkDeclaredSchemas(definition, data); err != nil {
		return nil, err
	}
	coerced, err := definition.Coerce(data, direction, basepath, filters...)
	if err != nil {
		return nil, InvalidValue(err.Error())
	}
	return &Resource{definition: definition, direction: direction, basepath: basepath, data: coerced}, nil
}

// checkDeclaredSchemas validates a supplied schemas list against the
// definition: the definition's own id must be listed, along with every
// required extension's id
func checkDeclaredSchemas(definition *SchemaDefinition, data map[string]any) error {
	raw, found := LookupKey(data, "schemas")
	if !found {
		return nil
	}
	listed, ok := NormalizeValue(raw).([]any)
	if !ok {
		return InvalidValue("expected 'schemas' attribute to be a collection")
	}
	declared := map[string]bool{}
	for _, entry := range listed {
		if s, ok := entry.(string); ok {
			declared[strings.ToLower(s)] = true
		}
	}
	if len(declared) == 0 {
		return nil
	}
	if !declared[strings.ToLower(definition.ID)] {
		return InvalidValue("the request body supplied a schema type that is incompatible with this resource")
	}
	for _, ext := range definition.extensions {
		if ext.Required && !declared[strings.ToLower(ext.Definition.ID)] {
			return InvalidValue(fmt.Sprintf("the request body is missing schema extension '%s' required by this resource type", ext.Definition.ID))
		}
	}
	return nil
}

// Definition returns the resource's schema definition
func (r *Resource) Definition() *SchemaDefinition {
	return r.definition
}

// Direction returns the flow the resource was constructed for
func (r *Resource) Direction() Direction {
	return r.direction
}

// ============================================================
// Property Access
// ============================================================

// Get resolves a dotted or URN-namespaced path and returns a deep copy of
// the value, or nil when unset. Unknown paths are invalidPath errors.
func (r *Resource) Get(path string) (any, error) {
	if _, err := r.definition.Attribute(path); err != nil {
		return nil, InvalidPath(err.Error())
	}
	node := any(r.data)
	for _, key := range r.pathKeys(path) {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, nil
		}
		value, found := LookupKey(m, key)
		if !found {
			return nil, nil
		}
		node = value
	}
	return DeepCopyValue(node), nil
}

// Set coerces and writes a value at a dotted or URN-namespaced path,
// enforcing the attribute's mutability. A nil value unsets the attribute.
func (r *Resource) Set(path string, value any) error {
	attr, err := r.definition.Attribute(path)
	if err != nil {
		return InvalidPath(err.Error())
	}

	current, _ := r.Get(path)
	if value == nil {
		if current == nil {
			return nil
		}
		if err := r.checkMutable(attr, current, nil); err != nil {
			return err
		}
		r.unset(path)
		return nil
	}

	coerced, err := attr.Coerce(NormalizeValue(value), r.direction)
	if err != nil {
		return InvalidValue(err.Error())
	}
	if err := r.checkMutable(attr, current, coerced); err != nil {
		return err
	}
	r.write(path, coerced)
	return nil
}

// Delete unsets the attribute at path
func (r *Resource) Delete(path string) error {
	return r.Set(path, nil)
}

// checkMutable rejects writes that would change an already-defined value of
// a read-only or immutable attribute. Writing an equal value is permitted.
func (r *Resource) checkMutable(attr *Attribute, current, proposed any) error {
	switch attr.config.Mutability {
	case ReadOnly, Immutable:
		if current != nil && !DeepEqualValue(current, proposed) {
			return MutabilityError(fmt.Sprintf("attribute '%s' already defined and is not mutable", attr.Name))
		}
	}
	return nil
}

// pathKeys converts a resolvable path into the storage key sequence: the
// extension URN becomes a single top-level key, dotted remainders descend
func (r *Resource) pathKeys(path string) []string {
	if strings.HasPrefix(strings.ToLower(path), "urn:") {
		if ext, remainder, err := r.definition.extensionFor(path); err == nil {
			keys := []string{ext.Definition.ID}
			if remainder != "" {
				keys = append(keys, SplitPath(remainder)...)
			}
			return keys
		}
	}
	return SplitPath(path)
}

// write stores a value at path, materializing missing intermediate complex
// containers
func (r *Resource) write(path string, value any) {
	keys := r.pathKeys(path)
	node := r.data
	for i, key := range keys {
		if i == len(keys)-1 {
			storeKey(node, key, value)
			break
		}
		next, _ := LookupKey(node, key)
		child, ok := next.(map[string]any)
		if !ok {
			child = map[string]any{}
			storeKey(node, key, child)
		}
		node = child
	}
	if strings.HasPrefix(strings.ToLower(path), "urn:") {
		r.syncSchemas()
	}
}

// unset removes the value at path, pruning emptied extension containers
func (r *Resource) unset(path string) {
	keys := r.pathKeys(path)
	node := r.data
	for i, key := range keys {
		if i == len(keys)-1 {
			deleteKey(node, key)
			break
		}
		next, _ := LookupKey(node, key)
		child, ok := next.(map[string]any)
		if !ok {
			return
		}
		node = child
	}
	if strings.HasPrefix(strings.ToLower(path), "urn:") {
		if ext, _, err := r.definition.extensionFor(path); err == nil {
			if value, found := LookupKey(r.data, ext.Definition.ID); found && IsEmptyValue(value) {
				deleteKey(r.data, ext.Definition.ID)
			}
		}
		r.syncSchemas()
	}
}

// syncSchemas recomputes the schemas list from extension data presence
func (r *Resource) syncSchemas() {
	schemas := []any{r.definition.ID}
	for _, ext := range r.definition.extensions {
		if value, found := LookupKey(r.data, ext.Definition.ID); found && !IsEmptyValue(value) {
			schemas = append(schemas, ext.Definition.ID)
		}
	}
	r.data["schemas"] = schemas
}

func storeKey(data map[string]any, key string, value any) {
	for existing := range data {
		if strings.EqualFold(existing, key) {
			data[existing] = value
			return
		}
	}
	data[key] = value
}

func deleteKey(data map[string]any, key string) {
	for existing := range data {
		if strings.EqualFold(existing, key) {
			delete(data, existing)
			return
		}
	}
}

// ============================================================
// Collections
// ============================================================

// Collection returns a validating wrapper over a multi-valued attribute's
// elements. Mutations through the wrapper re-coerce inserted elements and
// write back to the resource.
func (r *Resource) Collection(path string) (*Collection, error) {
	attr, err := r.definition.Attribute(path)
	if err != nil {
		return nil, InvalidPath(err.Error())
	}
	if !attr.config.MultiValued {
		return nil, InvalidPath(fmt.Sprintf("attribute '%s' is not multi-valued", attr.Name))
	}
	current, err := r.Get(path)
	if err != nil {
		return nil, err
	}
	initial, _ := current.([]any)
	collection, err := NewCollection(attr, r.direction, initial)
	if err != nil {
		return nil, InvalidValue(err.Error())
	}
	collection.bind(func(values []any) {
		if len(values) == 0 {
			r.unset(path)
			return
		}
		r.write(path, values)
	})
	return collection, nil
}

// ============================================================
// Serialization
// ============================================================

// Values returns a deep copy of the full record, including never-returned
// attributes. Intended for callers that transform the record and rebuild a
// resource from the result.
func (r *Resource) Values() map[string]any {
	out := map[string]any{}
	for key, value := range r.data {
		out[key] = DeepCopyValue(value)
	}
	return out
}

// ToMap returns a deep copy of the record with never-returned attributes
// and empty branches suppressed
func (r *Resource) ToMap() map[string]any {
	out := map[string]any{}
	for key, value := range r.data {
		if ext := r.definition.Extension(key); ext != nil {
			if trimmed := trimEmpty(DeepCopyValue(value)); trimmed != nil {
				out[key] = trimmed
			}
			continue
		}
		attr := r.definition.attributeByName(key)
		if attr != nil && attr.config.Returned == Never {
			continue
		}
		if trimmed := trimEmpty(DeepCopyValue(value)); trimmed != nil {
			out[key] = trimmed
		}
	}
	return out
}

// Clone builds an independent resource of the same definition from the
// record's current state
func (r *Resource) Clone() (*Resource, error) {
	return r.Rebuild(r.Values())
}

// Rebuild constructs a sibling resource from transformed data, keeping the
// definition, direction, and base path
func (r *Resource) Rebuild(data map[string]any) (*Resource, error) {
	return NewResource(r.definition, data, r.direction, r.basepath)
}

func (r *Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// trimEmpty drops empty sub-trees: objects with no defined leaves and
// collections with no surviving elements
func trimEmpty(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := map[string]any{}
		for key, sub := range v {
			if trimmed := trimEmpty(sub); trimmed != nil {
				out[key] = trimmed
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, element := range v {
			if trimmed := trimEmpty(element); trimmed != nil {
				out = append(out, trimmed)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return value
	}
}
