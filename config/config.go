// Package config holds the service provider configuration: the feature
// blocks announced through the ServiceProviderConfig endpoint plus the
// daemon's runtime settings, loadable from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FeatureConfig is one supported/unsupported feature block of the service
// provider configuration document (RFC 7643 5)
type FeatureConfig struct {
	Supported bool `mapstructure:"supported"`
}

// BulkConfig is the bulk feature block with its operation limits
type BulkConfig struct {
	Supported      bool `mapstructure:"supported"`
	MaxOperations  int  `mapstructure:"max_operations"`
	MaxPayloadSize int  `mapstructure:"max_payload_size"`
}

// FilterConfig is the filter feature block with its result limit
type FilterConfig struct {
	Supported  bool `mapstructure:"supported"`
	MaxResults int  `mapstructure:"max_results"`
}

// AuthenticationScheme describes one supported authentication scheme
type AuthenticationScheme struct {
	Type        string `mapstructure:"type"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	SpecURI     string `mapstructure:"spec_uri"`
}

// ServiceProvider is the validated service provider configuration
type ServiceProvider struct {
	DocumentationURI      string                 `mapstructure:"documentation_uri"`
	Patch                 FeatureConfig          `mapstructure:"patch"`
	Bulk                  BulkConfig             `mapstructure:"bulk"`
	Filter                FilterConfig           `mapstructure:"filter"`
	ChangePassword        FeatureConfig          `mapstructure:"change_password"`
	Sort                  FeatureConfig          `mapstructure:"sort"`
	ETag                  FeatureConfig          `mapstructure:"etag"`
	AuthenticationSchemes []AuthenticationScheme `mapstructure:"authentication_schemes"`
}

// Config holds all configuration for the daemon
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`
	BaseURL     string `mapstructure:"base_url"`

	// Security settings
	BearerToken string `mapstructure:"bearer_token"`
	JWTSecret   string `mapstructure:"jwt_secret"`

	ServiceProvider ServiceProvider `mapstructure:"service_provider"`
}

// Load reads configuration from file and environment
func Load(serviceName string) (*Config, error) {
	v := viper.New()

	setDefaults(v, serviceName)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/scimcore")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SCIMCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.ServiceName = serviceName

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, serviceName string) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("base_url", "http://localhost:8080/scim/v2")

	v.SetDefault("service_provider.patch.supported", true)
	v.SetDefault("service_provider.bulk.supported", false)
	v.SetDefault("service_provider.bulk.max_operations", 1000)
	v.SetDefault("service_provider.bulk.max_payload_size", 1048576)
	v.SetDefault("service_provider.filter.supported", true)
	v.SetDefault("service_provider.filter.max_results", 200)
	v.SetDefault("service_provider.change_password.supported", false)
	v.SetDefault("service_provider.sort.supported", true)
	v.SetDefault("service_provider.etag.supported", false)
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.ServiceProvider.Bulk.Supported && cfg.ServiceProvider.Bulk.MaxOperations <= 0 {
		return fmt.Errorf("bulk support requires a positive max_operations")
	}
	if cfg.ServiceProvider.Filter.Supported && cfg.ServiceProvider.Filter.MaxResults <= 0 {
		return fmt.Errorf("filter support requires a positive max_results")
	}
	if cfg.Environment == "production" && cfg.BearerToken == "" && cfg.JWTSecret == "" {
		return fmt.Errorf("production requires a bearer_token or jwt_secret")
	}
	return nil
}

// Document renders the service provider configuration as its SCIM document
// (RFC 7643 5)
func (sp ServiceProvider) Document(basepath string) map[string]any {
	schemes := make([]any, 0, len(sp.AuthenticationSchemes))
	for _, scheme := range sp.AuthenticationSchemes {
		entry := map[string]any{
			"type":        scheme.Type,
			"name":        scheme.Name,
			"description": scheme.Description,
		}
		if scheme.SpecURI != "" {
			entry["specUri"] = scheme.SpecURI
		}
		schemes = append(schemes, entry)
	}

	doc := map[string]any{
		"schemas": []any{"urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"},
		"patch":   map[string]any{"supported": sp.Patch.Supported},
		"bulk": map[string]any{
			"supported":      sp.Bulk.Supported,
			"maxOperations":  float64(sp.Bulk.MaxOperations),
			"maxPayloadSize": float64(sp.Bulk.MaxPayloadSize),
		},
		"filter": map[string]any{
			"supported":  sp.Filter.Supported,
			"maxResults": float64(sp.Filter.MaxResults),
		},
		"changePassword":        map[string]any{"supported": sp.ChangePassword.Supported},
		"sort":                  map[string]any{"supported": sp.Sort.Supported},
		"etag":                  map[string]any{"supported": sp.ETag.Supported},
		"authenticationSchemes": schemes,
		"meta": map[string]any{
			"resourceType": "ServiceProviderConfig",
		},
	}
	if sp.DocumentationURI != "" {
		doc["documentationUri"] = sp.DocumentationURI
	}
	if basepath != "" {
		doc["meta"].(map[string]any)["location"] = strings.TrimSuffix(basepath, "/") + "/ServiceProviderConfig"
	}
	return doc
}
