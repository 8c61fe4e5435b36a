// Package resources implements the resource dispatch layer: thin adapters
// that parse request parameters, route records through schema coercion in
// both directions, and delegate storage to a backend supplied by the
// embedding application.
package resources

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/openidx/scimcore/messages"
	"github.com/openidx/scimcore/registry"
	"github.com/openidx/scimcore/scim"
)

// Params carries the parsed construction parameters of a resource request
type Params struct {
	Filter      *scim.Filter
	Selector    *scim.Filter
	Constraints messages.ListConstraints
}

// ParseParams parses resource query parameters: filter, the
// attributes/excludedAttributes selectors (rewritten to pr/np filters),
// and sort/pagination constraints
func ParseParams(query map[string]string) (*Params, error) {
	p := &Params{}

	if expression := query["filter"]; expression != "" {
		filter, err := scim.ParseFilter(expression)
		if err != nil {
			return nil, err
		}
		p.Filter = filter
	}

	attributes := splitNames(query["attributes"])
	excluded := splitNames(query["excludedAttributes"])
	if len(attributes) > 0 && len(excluded) > 0 {
		return nil, scim.InvalidValue("request must not specify both 'attributes' and 'excludedAttributes'")
	}
	selector, err := messages.SelectorFilter(attributes, excluded)
	if err != nil {
		return nil, err
	}
	p.Selector = selector

	p.Constraints.SortBy = query["sortBy"]
	p.Constraints.SortOrder = query["sortOrder"]
	if raw := query["startIndex"]; raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			return nil, scim.InvalidValue(fmt.Sprintf("invalid startIndex value '%s'", raw))
		}
		p.Constraints.StartIndex = index
	}
	if raw := query["count"]; raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, scim.InvalidValue(fmt.Sprintf("invalid count value '%s'", raw))
		}
		p.Constraints.Count = count
	}
	return p, nil
}

func splitNames(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Backend is the storage interface the embedding application supplies.
// Records cross the boundary as decoded-JSON maps; the service layer owns
// all coercion and filtering.
type Backend interface {
	List(ctx context.Context, endpoint string) ([]map[string]any, error)
	Get(ctx context.Context, endpoint, id string) (map[string]any, error)
	Create(ctx context.Context, endpoint string, data map[string]any) (map[string]any, error)
	Replace(ctx context.Context, endpoint, id string, data map[string]any) (map[string]any, error)
	Delete(ctx context.Context, endpoint, id string) error
}

// ErrNotFound is the protocol error backends return for unknown ids
func ErrNotFound(id string) error {
	return scim.NewError(http.StatusNotFound, "", fmt.Sprintf("resource %s not found", id))
}

// Service dispatches resource operations for every resource type declared
// in the registry
type Service struct {
	registry *registry.Registry
	backend  Backend
	baseURL  string
}

// NewService creates a dispatch service over a declared registry and a
// storage backend
func NewService(reg *registry.Registry, backend Backend, baseURL string) *Service {
	return &Service{registry: reg, backend: backend, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *Service) declared(typeName string) (*registry.ResourceTypeDecl, error) {
	decl := s.registry.ResourceType(typeName)
	if decl == nil {
		return nil, scim.NewError(http.StatusNotFound, "", fmt.Sprintf("resource type '%s' not declared", typeName))
	}
	return decl, nil
}

func (s *Service) basepath(decl *registry.ResourceTypeDecl) string {
	return s.baseURL + decl.Endpoint
}

// egress coerces an outbound record, applying the request's attribute
// selector
func (s *Service) egress(decl *registry.ResourceTypeDecl, record map[string]any, selector *scim.Filter) (map[string]any, error) {
	var filters []*scim.Filter
	if selector != nil {
		filters = append(filters, selector)
	}
	resource, err := scim.NewResource(decl.Definition, record, scim.Out, s.basepath(decl), filters...)
	if err != nil {
		return nil, err
	}
	return resource.ToMap(), nil
}

// Query lists records of a resource type: filter, egress coercion with
// attribute selection, then sort and pagination
func (s *Service) Query(ctx context.Context, typeName string, params *Params) (*messages.ListResponse, error) {
	decl, err := s.declared(typeName)
	if err != nil {
		return nil, err
	}
	records, err := s.backend.List(ctx, decl.Endpoint)
	if err != nil {
		return nil, err
	}
	if params.Filter != nil {
		records = params.Filter.ForDefinition(decl.Definition).Select(records)
	}
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		coerced, err := s.egress(decl, record, params.Selector)
		if err != nil {
			return nil, err
		}
		out = append(out, coerced)
	}
	return messages.NewListResponse(out, params.Constraints)
}

// Read retrieves one record by id
func (s *Service) Read(ctx context.Context, typeName, id string, params *Params) (map[string]any, error) {
	decl, err := s.declared(typeName)
	if err != nil {
		return nil, err
	}
	record, err := s.backend.Get(ctx, decl.Endpoint, id)
	if err != nil {
		return nil, err
	}
	return s.egress(decl, record, params.Selector)
}

// Create validates an inbound record and stores it
func (s *Service) Create(ctx context.Context, typeName string, body map[string]any) (map[string]any, error) {
	decl, err := s.declared(typeName)
	if err != nil {
		return nil, err
	}
	resource, err := scim.NewResource(decl.Definition, body, scim.In, s.basepath(decl))
	if err != nil {
		return nil, err
	}
	stored, err := s.backend.Create(ctx, decl.Endpoint, resource.Values())
	if err != nil {
		return nil, err
	}
	return s.egress(decl, stored, nil)
}

// Replace validates an inbound record and overwrites the stored one
func (s *Service) Replace(ctx context.Context, typeName, id string, body map[string]any) (map[string]any, error) {
	decl, err := s.declared(typeName)
	if err != nil {
		return nil, err
	}
	resource, err := scim.NewResource(decl.Definition, body, scim.In, s.basepath(decl))
	if err != nil {
		return nil, err
	}
	stored, err := s.backend.Replace(ctx, decl.Endpoint, id, resource.Values())
	if err != nil {
		return nil, err
	}
	return s.egress(decl, stored, nil)
}

// Patch applies a patch request to a stored record. A nil result with nil
// error means the patch produced no net change.
func (s *Service) Patch(ctx context.Context, typeName, id string, body map[string]any) (map[string]any, error) {
	decl, err := s.declared(typeName)
	if err != nil {
		return nil, err
	}
	patch, err := messages.NewPatchOp(body)
	if err != nil {
		return nil, err
	}
	record, err := s.backend.Get(ctx, decl.Endpoint, id)
	if err != nil {
		return nil, err
	}
	resource, err := scim.NewResource(decl.Definition, record, scim.Both, s.basepath(decl))
	if err != nil {
		return nil, err
	}
	patched, err := patch.Apply(resource, nil)
	if err != nil {
		return nil, err
	}
	if patched == nil {
		return nil, nil
	}
	stored, err := s.backend.Replace(ctx, decl.Endpoint, id, patched.Values())
	if err != nil {
		return nil, err
	}
	return s.egress(decl, stored, nil)
}

// Delete removes a stored record
func (s *Service) Delete(ctx context.Context, typeName, id string) error {
	decl, err := s.declared(typeName)
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, decl.Endpoint, id)
}
