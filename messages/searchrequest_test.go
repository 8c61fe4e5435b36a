package messages

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openidx/scimcore/scim"
)

func TestNewSearchRequest(t *testing.T) {
	r, err := NewSearchRequest(map[string]any{
		"schemas":    []any{SearchRequestURN},
		"filter":     `userName sw "j"`,
		"attributes": []any{"userName", "title"},
		"sortBy":     "userName",
		"sortOrder":  SortDescending,
		"startIndex": 5.0,
		"count":      10.0,
	})
	require.NoError(t, err)

	require.NotNil(t, r.Filter())
	assert.True(t, r.Filter().Match(map[string]any{"userName": "john"}))
	assert.False(t, r.Filter().Match(map[string]any{"userName": "alice"}))

	require.NotNil(t, r.Selector())
	assert.Equal(t, []string{"userName", "title"}, r.Attributes)

	constraints := r.Constraints()
	assert.Equal(t, "userName", constraints.SortBy)
	assert.Equal(t, SortDescending, constraints.SortOrder)
	assert.Equal(t, 5, constraints.StartIndex)
	assert.Equal(t, 10, constraints.Count)
}

func TestNewSearchRequest_MinimalBody(t *testing.T) {
	r, err := NewSearchRequest(map[string]any{"schemas": []any{SearchRequestURN}})
	require.NoError(t, err)
	assert.Nil(t, r.Filter())
	assert.Nil(t, r.Selector())
	assert.Equal(t, ListConstraints{}, r.Constraints())
}

func TestNewSearchRequest_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		scimType string
	}{
		{
			name:     "missing schemas",
			body:     map[string]any{"filter": "userName pr"},
			scimType: scim.ScimTypeInvalidSyntax,
		},
		{
			name: "malformed filter",
			body: map[string]any{
				"schemas": []any{SearchRequestURN},
				"filter":  "userName eq",
			},
			scimType: scim.ScimTypeInvalidFilter,
		},
		{
			name: "empty filter string",
			body: map[string]any{
				"schemas": []any{SearchRequestURN},
				"filter":  "",
			},
			scimType: scim.ScimTypeInvalidFilter,
		},
		{
			name: "attributes and excludedAttributes together",
			body: map[string]any{
				"schemas":            []any{SearchRequestURN},
				"attributes":         []any{"userName"},
				"excludedAttributes": []any{"title"},
			},
			scimType: scim.ScimTypeInvalidValue,
		},
		{
			name: "non-string attributes entry",
			body: map[string]any{
				"schemas":    []any{SearchRequestURN},
				"attributes": []any{42.0},
			},
			scimType: scim.ScimTypeInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSearchRequest(tt.body)
			require.Error(t, err)
			assert.True(t, scim.IsScimType(err, tt.scimType), "error = %v, want scimType %s", err, tt.scimType)
		})
	}
}

func TestSelectorFilter(t *testing.T) {
	// Inclusion selectors become pr terms
	selector, err := SelectorFilter([]string{"userName", "name.givenName"}, nil)
	require.NoError(t, err)
	require.NotNil(t, selector)
	assert.Equal(t, `userName pr and name.givenName pr`, selector.Expression)

	// Exclusion selectors become np terms
	selector, err = SelectorFilter(nil, []string{"emails"})
	require.NoError(t, err)
	require.NotNil(t, selector)
	assert.Equal(t, `emails np`, selector.Expression)

	// Nothing requested means no selector
	selector, err = SelectorFilter(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, selector)

	// Blank entries are skipped
	selector, err = SelectorFilter([]string{" ", ""}, nil)
	require.NoError(t, err)
	assert.Nil(t, selector)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(scim.InvalidFilter("bad filter"))
	assert.Equal(t, []string{ErrorURN}, msg.Schemas)
	assert.Equal(t, "400", msg.Status)
	assert.Equal(t, scim.ScimTypeInvalidFilter, msg.ScimType)
	assert.Equal(t, "bad filter", msg.Detail)
	assert.Equal(t, http.StatusBadRequest, msg.StatusCode())

	msg = NewErrorMessage(assert.AnError)
	assert.Equal(t, "500", msg.Status)
	assert.Empty(t, msg.ScimType)
	assert.Equal(t, http.StatusInternalServerError, msg.StatusCode())
}
