package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("scimd")
	require.NoError(t, err)

	assert.Equal(t, "scimd", cfg.ServiceName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http://localhost:8080/scim/v2", cfg.BaseURL)

	assert.True(t, cfg.ServiceProvider.Patch.Supported)
	assert.False(t, cfg.ServiceProvider.Bulk.Supported)
	assert.Equal(t, 1000, cfg.ServiceProvider.Bulk.MaxOperations)
	assert.Equal(t, 1048576, cfg.ServiceProvider.Bulk.MaxPayloadSize)
	assert.True(t, cfg.ServiceProvider.Filter.Supported)
	assert.Equal(t, 200, cfg.ServiceProvider.Filter.MaxResults)
	assert.True(t, cfg.ServiceProvider.Sort.Supported)
	assert.False(t, cfg.ServiceProvider.ETag.Supported)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SCIMCORE_PORT", "9090")
	t.Setenv("SCIMCORE_LOG_LEVEL", "debug")
	t.Setenv("SCIMCORE_BASE_URL", "https://scim.example.com/scim/v2")

	cfg, err := Load("scimd")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://scim.example.com/scim/v2", cfg.BaseURL)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Environment: "development",
			Port:        8080,
			ServiceProvider: ServiceProvider{
				Bulk:   BulkConfig{Supported: false},
				Filter: FilterConfig{Supported: true, MaxResults: 200},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Port = 0 },
			wantErr: "invalid port",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: "invalid port",
		},
		{
			name: "bulk without operation limit",
			mutate: func(c *Config) {
				c.ServiceProvider.Bulk = BulkConfig{Supported: true}
			},
			wantErr: "max_operations",
		},
		{
			name: "filter without result limit",
			mutate: func(c *Config) {
				c.ServiceProvider.Filter = FilterConfig{Supported: true}
			},
			wantErr: "max_results",
		},
		{
			name:    "production without credentials",
			mutate:  func(c *Config) { c.Environment = "production" },
			wantErr: "bearer_token or jwt_secret",
		},
		{
			name: "production with bearer token",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.BearerToken = "provision-me"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestServiceProvider_Document(t *testing.T) {
	sp := ServiceProvider{
		DocumentationURI: "https://example.com/docs",
		Patch:            FeatureConfig{Supported: true},
		Bulk:             BulkConfig{Supported: false, MaxOperations: 1000, MaxPayloadSize: 1048576},
		Filter:           FilterConfig{Supported: true, MaxResults: 200},
		Sort:             FeatureConfig{Supported: true},
		AuthenticationSchemes: []AuthenticationScheme{
			{
				Type:        "oauthbearertoken",
				Name:        "OAuth Bearer Token",
				Description: "Authentication scheme using the OAuth Bearer Token Standard",
				SpecURI:     "https://www.rfc-editor.org/info/rfc6750",
			},
		},
	}

	doc := sp.Document("https://example.com/scim/v2")

	assert.Equal(t, []any{"urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"}, doc["schemas"])
	assert.Equal(t, "https://example.com/docs", doc["documentationUri"])
	assert.Equal(t, map[string]any{"supported": true}, doc["patch"])
	assert.Equal(t, map[string]any{
		"supported":      false,
		"maxOperations":  float64(1000),
		"maxPayloadSize": float64(1048576),
	}, doc["bulk"])
	assert.Equal(t, map[string]any{"supported": true, "maxResults": float64(200)}, doc["filter"])

	schemes := doc["authenticationSchemes"].([]any)
	require.Len(t, schemes, 1)
	scheme := schemes[0].(map[string]any)
	assert.Equal(t, "OAuth Bearer Token", scheme["name"])
	assert.Equal(t, "https://www.rfc-editor.org/info/rfc6750", scheme["specUri"])

	meta := doc["meta"].(map[string]any)
	assert.Equal(t, "ServiceProviderConfig", meta["resourceType"])
	assert.Equal(t, "https://example.com/scim/v2/ServiceProviderConfig", meta["location"])
}

func TestServiceProvider_DocumentOmitsEmptyFields(t *testing.T) {
	doc := ServiceProvider{}.Document("")

	assert.NotContains(t, doc, "documentationUri")
	assert.Empty(t, doc["authenticationSchemes"])
	assert.NotContains(t, doc["meta"].(map[string]any), "location")
}
