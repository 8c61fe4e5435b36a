package messages

import (
	"fmt"
	"strings"

	"github.com/openidx/scimcore/scim"
)

// SearchRequestURN is the message schema identifier for .search requests
const SearchRequestURN = "urn:ietf:params:scim:api:messages:2.0:SearchRequest"

// SearchRequest is a validated .search request body (RFC 7644 3.4.3).
// Filter and the attribute selectors are parsed into filter instances; raw
// request fields are kept for re-serialization.
type SearchRequest struct {
	Schemas            []string `json:"schemas"`
	FilterExpression   string   `json:"filter,omitempty"`
	Attributes         []string `json:"attributes,omitempty"`
	ExcludedAttributes []string `json:"excludedAttributes,omitempty"`
	SortBy             string   `json:"sortBy,omitempty"`
	SortOrder          string   `json:"sortOrder,omitempty"`
	StartIndex         int      `json:"startIndex,omitempty"`
	Count              int      `json:"count,omitempty"`

	filter   *scim.Filter
	selector *scim.Filter
}

// NewSearchRequest validates a decoded .search request body
func NewSearchRequest(body map[string]any) (*SearchRequest, error) {
	rawSchemas, _ := scim.LookupKey(body, "schemas")
	schemas, ok := scim.NormalizeValue(rawSchemas).([]any)
	if !ok || len(schemas) != 1 || schemas[0] != SearchRequestURN {
		return nil, scim.InvalidSyntax(fmt.Sprintf("search request body must exclusively specify schema as '%s'", SearchRequestURN))
	}

	r := &SearchRequest{Schemas: []string{SearchRequestURN}}

	if raw, found := scim.LookupKey(body, "filter"); found {
		expression, ok := raw.(string)
		if !ok || expression == "" {
			return nil, scim.InvalidFilter("expected filter to be a non-empty string")
		}
		filter, err := scim.ParseFilter(expression)
		if err != nil {
			return nil, err
		}
		r.FilterExpression = expression
		r.filter = filter
	}

	attributes, err := stringList(body, "attributes")
	if err != nil {
		return nil, err
	}
	excluded, err := stringList(body, "excludedAttributes")
	if err != nil {
		return nil, err
	}
	if len(attributes) > 0 && len(excluded) > 0 {
		return nil, scim.InvalidValue("search request must not specify both 'attributes' and 'excludedAttributes'")
	}
	r.Attributes = attributes
	r.ExcludedAttributes = excluded
	if r.selector, err = SelectorFilter(attributes, excluded); err != nil {
		return nil, err
	}

	if raw, found := scim.LookupKey(body, "sortBy"); found {
		if s, ok := raw.(string); ok {
			r.SortBy = s
		}
	}
	if raw, found := scim.LookupKey(body, "sortOrder"); found {
		if s, ok := raw.(string); ok {
			r.SortOrder = s
		}
	}
	if raw, found := scim.LookupKey(body, "startIndex"); found {
		if f, ok := scim.NormalizeValue(raw).(float64); ok {
			r.StartIndex = int(f)
		}
	}
	if raw, found := scim.LookupKey(body, "count"); found {
		if f, ok := scim.NormalizeValue(raw).(float64); ok {
			r.Count = int(f)
		}
	}
	return r, nil
}

// Filter returns the parsed filter, or nil when the request had none
func (r *SearchRequest) Filter() *scim.Filter {
	return r.filter
}

// Selector returns the attribute-selection filter derived from the
// attributes or excludedAttributes list, or nil
func (r *SearchRequest) Selector() *scim.Filter {
	return r.selector
}

// Constraints returns the request's sort and pagination parameters
func (r *SearchRequest) Constraints() ListConstraints {
	return ListConstraints{
		SortBy:     r.SortBy,
		SortOrder:  r.SortOrder,
		StartIndex: r.StartIndex,
		Count:      r.Count,
	}
}

// SelectorFilter rewrites attribute name lists into a selection filter:
// attributes become pr conditions, excludedAttributes become np conditions
func SelectorFilter(attributes, excluded []string) (*scim.Filter, error) {
	names := attributes
	op := "pr"
	if len(names) == 0 {
		names = excluded
		op = "np"
	}
	if len(names) == 0 {
		return nil, nil
	}
	terms := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		terms = append(terms, name+" "+op)
	}
	if len(terms) == 0 {
		return nil, nil
	}
	filter, err := scim.ParseFilter(strings.Join(terms, " and "))
	if err != nil {
		return nil, err
	}
	return filter, nil
}

func stringList(body map[string]any, key string) ([]string, error) {
	raw, found := scim.LookupKey(body, key)
	if !found {
		return nil, nil
	}
	switch v := scim.NormalizeValue(raw).(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		return strings.Split(v, ","), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, scim.InvalidValue(fmt.Sprintf("expected '%s' to be a collection of strings", key))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, scim.InvalidValue(fmt.Sprintf("expected '%s' to be a collection of strings", key))
	}
}
