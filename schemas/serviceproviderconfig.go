package schemas

import "github.com/openidx/scimcore/scim"

// ServiceProviderConfigURN identifies the ServiceProviderConfig schema
const ServiceProviderConfigURN = "urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"

// ServiceProviderConfig is the service provider configuration schema
// definition (RFC 7643 5)
var ServiceProviderConfig = scim.MustSchemaDefinition(
	"ServiceProviderConfig", ServiceProviderConfigURN,
	"Schema for representing the service provider's configuration",
	scim.MustAttribute(scim.TypeReference, "documentationUri", scim.Config{
		Mutability: scim.ReadOnly, ReferenceTypes: []string{"external"},
		Description: "An HTTP-addressable URL pointing to the service provider's human-consumable help documentation.",
	}),
	supportedBlock("patch", "A complex type that specifies PATCH configuration options."),
	scim.MustAttribute(scim.TypeComplex, "bulk", scim.Config{
		Required: true, Mutability: scim.ReadOnly,
	}, []*scim.Attribute{
		supportedSub(),
		scim.MustAttribute(scim.TypeInteger, "maxOperations", scim.Config{Required: true, Mutability: scim.ReadOnly}),
		scim.MustAttribute(scim.TypeInteger, "maxPayloadSize", scim.Config{Required: true, Mutability: scim.ReadOnly}),
	}...),
	scim.MustAttribute(scim.TypeComplex, "filter", scim.Config{
		Required: true, Mutability: scim.ReadOnly,
	}, []*scim.Attribute{
		supportedSub(),
		scim.MustAttribute(scim.TypeInteger, "maxResults", scim.Config{Required: true, Mutability: scim.ReadOnly}),
	}...),
	supportedBlock("changePassword", "A complex type that specifies configuration options related to changing a password."),
	supportedBlock("sort", "A complex type that specifies Sort configuration options."),
	supportedBlock("etag", "A complex type that specifies ETag configuration options."),
	scim.MustAttribute(scim.TypeComplex, "authenticationSchemes", scim.Config{
		MultiValued: true, Required: true, Mutability: scim.ReadOnly,
		Description: "A multi-valued complex type that specifies supported authentication scheme properties.",
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeString, "type", scim.Config{
			Required: true, Mutability: scim.ReadOnly,
			CanonicalValues: []string{"oauth", "oauth2", "oauthbearertoken", "httpbasic", "httpdigest"},
		}),
		scim.MustAttribute(scim.TypeString, "name", scim.Config{Required: true, Mutability: scim.ReadOnly}),
		scim.MustAttribute(scim.TypeString, "description", scim.Config{Required: true, Mutability: scim.ReadOnly}),
		scim.MustAttribute(scim.TypeReference, "specUri", scim.Config{Mutability: scim.ReadOnly, ReferenceTypes: []string{"external"}}),
		scim.MustAttribute(scim.TypeReference, "documentationUri", scim.Config{Mutability: scim.ReadOnly, ReferenceTypes: []string{"external"}}),
	}...),
)

func supportedBlock(name, description string) *scim.Attribute {
	return scim.MustAttribute(scim.TypeComplex, name, scim.Config{
		Required: true, Mutability: scim.ReadOnly, Description: description,
	}, supportedSub())
}

func supportedSub() *scim.Attribute {
	return scim.MustAttribute(scim.TypeBoolean, "supported", scim.Config{
		Required: true, Mutability: scim.ReadOnly,
		Description: "A Boolean value specifying whether or not the operation is supported.",
	})
}
