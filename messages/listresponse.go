package messages

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openidx/scimcore/scim"
)

// ListResponseURN is the message schema identifier for query responses
const ListResponseURN = "urn:ietf:params:scim:api:messages:2.0:ListResponse"

// SortOrder values accepted by list constraints
const (
	SortAscending  = "ascending"
	SortDescending = "descending"
)

// ListConstraints carries the sort and pagination parameters of a query
// (RFC 7644 3.4.2.3-4). The zero value means unsorted, first page, default
// count.
type ListConstraints struct {
	SortBy     string
	SortOrder  string
	StartIndex int
	Count      int
}

// ListResponse is the query response envelope (RFC 7644 3.4.2)
type ListResponse struct {
	Schemas      []string         `json:"schemas"`
	TotalResults int              `json:"totalResults"`
	Resources    []map[string]any `json:"Resources,omitempty"`
	StartIndex   int              `json:"startIndex"`
	ItemsPerPage int              `json:"itemsPerPage"`
}

// NewListResponse sorts and paginates records into a response envelope.
// totalResults reflects the full set; Resources holds only the requested
// page.
func NewListResponse(records []map[string]any, constraints ListConstraints) (*ListResponse, error) {
	if err := constraints.validate(); err != nil {
		return nil, err
	}

	sorted := append([]map[string]any(nil), records...)
	if constraints.SortBy != "" {
		sortRecords(sorted, constraints.SortBy, constraints.SortOrder == SortDescending)
	}

	start := constraints.StartIndex
	if start < 1 {
		start = 1
	}
	count := constraints.Count
	if count <= 0 {
		count = 20
	}

	page := []map[string]any{}
	if start-1 < len(sorted) {
		end := start - 1 + count
		if end > len(sorted) {
			end = len(sorted)
		}
		page = sorted[start-1 : end]
	}

	return &ListResponse{
		Schemas:      []string{ListResponseURN},
		TotalResults: len(sorted),
		Resources:    page,
		StartIndex:   start,
		ItemsPerPage: len(page),
	}, nil
}

func (c ListConstraints) validate() error {
	switch c.SortOrder {
	case "", SortAscending, SortDescending:
	default:
		return scim.InvalidValue(fmt.Sprintf("invalid sortOrder value '%s'", c.SortOrder))
	}
	if c.StartIndex < 0 {
		return scim.InvalidValue("startIndex must be a positive integer")
	}
	if c.Count < 0 {
		return scim.InvalidValue("count must not be negative")
	}
	return nil
}

// sortRecords orders records by the value at a dotted attribute path.
// Records without a value sort last; the sort is stable so equal records
// keep their arrival order.
func sortRecords(records []map[string]any, sortBy string, descending bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a := sortValue(records[i], sortBy)
		b := sortValue(records[j], sortBy)
		less, comparable := compareSortValues(a, b)
		if !comparable {
			return a != nil && b == nil
		}
		if descending {
			return !less && !scim.DeepEqualValue(a, b)
		}
		return less
	})
}

// sortValue resolves the sort key: dotted paths descend into complex
// values, and a collection contributes its first element's value
func sortValue(record map[string]any, path string) any {
	node := any(record)
	for _, key := range scim.SplitPath(path) {
		name, _, _ := scim.CutFilter(key)
		if list, ok := scim.NormalizeValue(node).([]any); ok && len(list) > 0 {
			node = list[0]
		}
		m, ok := scim.NormalizeValue(node).(map[string]any)
		if !ok {
			return nil
		}
		value, found := scim.LookupKey(m, name)
		if !found {
			return nil
		}
		node = value
	}
	if list, ok := scim.NormalizeValue(node).([]any); ok {
		if len(list) == 0 {
			return nil
		}
		node = list[0]
	}
	return scim.NormalizeValue(node)
}

func compareSortValues(a, b any) (less, comparable bool) {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.ToLower(av) < strings.ToLower(bv), true
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv, true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return !av && bv, true
		}
	}
	return false, false
}
