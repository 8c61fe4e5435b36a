// Package registry tracks the schema definitions and resource type
// declarations of one service deployment. A registry is built at startup
// and injected into the layers that need declaration lookups; nothing here
// is global.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openidx/scimcore/scim"
)

// ResourceTypeDecl describes one declared resource type: its endpoint, its
// backing schema definition, and any schema extensions
type ResourceTypeDecl struct {
	Name        string
	Description string
	Endpoint    string
	Definition  *scim.SchemaDefinition
}

// Registry holds declared schema definitions and resource types, keyed by
// name and URN, enforcing uniqueness in both directions: a name maps to
// exactly one instance and an instance to exactly one name.
type Registry struct {
	mu            sync.RWMutex
	definitions   map[string]*scim.SchemaDefinition
	resourceTypes map[string]*ResourceTypeDecl
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		definitions:   map[string]*scim.SchemaDefinition{},
		resourceTypes: map[string]*ResourceTypeDecl{},
	}
}

// DeclareSchema registers a schema definition by URN. Re-declaring the same
// instance is a no-op; a URN collision with a different instance, or the
// same instance under two URNs, is an error.
func (r *Registry) DeclareSchema(definition *scim.SchemaDefinition) error {
	if definition == nil {
		return fmt.Errorf("cannot declare a nil schema definition")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(definition.ID)
	if existing, ok := r.definitions[key]; ok {
		if existing == definition {
			return nil
		}
		return fmt.Errorf("schema id '%s' already declared by another definition", definition.ID)
	}
	for _, existing := range r.definitions {
		if existing == definition {
			return fmt.Errorf("schema definition '%s' already declared under a different id", definition.Name)
		}
	}
	r.definitions[key] = definition
	return nil
}

// Schema resolves a declared definition by URN, or nil
func (r *Registry) Schema(id string) *scim.SchemaDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.definitions[strings.ToLower(id)]
}

// Schemas returns all declared definitions ordered by URN
func (r *Registry) Schemas() []*scim.SchemaDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.definitions))
	for key := range r.definitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*scim.SchemaDefinition, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.definitions[key])
	}
	return out
}

// DeclareResourceType registers a resource type and, implicitly, its schema
// definition and every attached extension definition
func (r *Registry) DeclareResourceType(decl ResourceTypeDecl) error {
	if decl.Name == "" {
		return fmt.Errorf("cannot declare a resource type without a name")
	}
	if decl.Definition == nil {
		return fmt.Errorf("resource type '%s' requires a schema definition", decl.Name)
	}
	if decl.Endpoint == "" || !strings.HasPrefix(decl.Endpoint, "/") {
		return fmt.Errorf("resource type '%s' requires an endpoint path", decl.Name)
	}

	if err := r.DeclareSchema(decl.Definition); err != nil {
		return err
	}
	for _, ext := range decl.Definition.Extensions() {
		if err := r.DeclareSchema(ext.Definition); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(decl.Name)
	if existing, ok := r.resourceTypes[key]; ok {
		if existing.Definition == decl.Definition && existing.Endpoint == decl.Endpoint {
			return nil
		}
		return fmt.Errorf("resource type '%s' already declared", decl.Name)
	}
	for _, existing := range r.resourceTypes {
		if existing.Endpoint == decl.Endpoint {
			return fmt.Errorf("endpoint '%s' already declared by resource type '%s'", decl.Endpoint, existing.Name)
		}
	}
	stored := decl
	r.resourceTypes[key] = &stored
	return nil
}

// ResourceType resolves a declared resource type by name, or nil
func (r *Registry) ResourceType(name string) *ResourceTypeDecl {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resourceTypes[strings.ToLower(name)]
}

// ResourceTypes returns all declared resource types ordered by name
func (r *Registry) ResourceTypes() []*ResourceTypeDecl {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.resourceTypes))
	for key := range r.resourceTypes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*ResourceTypeDecl, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.resourceTypes[key])
	}
	return out
}

// Describe renders a resource type as its ResourceType document
// (RFC 7643 6)
func (d *ResourceTypeDecl) Describe(basepath string) map[string]any {
	doc := map[string]any{
		"schemas":  []any{"urn:ietf:params:scim:schemas:core:2.0:ResourceType"},
		"id":       d.Name,
		"name":     d.Name,
		"endpoint": d.Endpoint,
		"schema":   d.Definition.ID,
		"meta": map[string]any{
			"resourceType": "ResourceType",
		},
	}
	if d.Description != "" {
		doc["description"] = d.Description
	}
	if basepath != "" {
		doc["meta"].(map[string]any)["location"] = strings.TrimSuffix(basepath, "/") + "/" + d.Name
	}
	extensions := d.Definition.Extensions()
	if len(extensions) > 0 {
		list := make([]any, 0, len(extensions))
		for _, ext := range extensions {
			list = append(list, map[string]any{
				"schema":   ext.Definition.ID,
				"required": ext.Required,
			})
		}
		doc["schemaExtensions"] = list
	}
	return doc
}
