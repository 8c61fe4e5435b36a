package schemas

import "github.com/openidx/scimcore/scim"

// ResourceTypeURN identifies the ResourceType schema
const ResourceTypeURN = "urn:ietf:params:scim:schemas:core:2.0:ResourceType"

// ResourceType is the ResourceType schema definition (RFC 7643 6)
var ResourceType = scim.MustSchemaDefinition(
	"ResourceType", ResourceTypeURN,
	"Specifies the schema that describes a SCIM resource type",
	scim.MustAttribute(scim.TypeString, "name", scim.Config{
		Required: true, Mutability: scim.ReadOnly,
		Description: "The resource type name.",
	}),
	scim.MustAttribute(scim.TypeString, "description", scim.Config{Mutability: scim.ReadOnly}),
	scim.MustAttribute(scim.TypeReference, "endpoint", scim.Config{
		Required: true, Mutability: scim.ReadOnly, ReferenceTypes: []string{"uri"},
		Description: "The resource type's HTTP-addressable endpoint relative to the Base URL.",
	}),
	scim.MustAttribute(scim.TypeReference, "schema", scim.Config{
		Required: true, Mutability: scim.ReadOnly, CaseExact: true, ReferenceTypes: []string{"uri"},
	}),
	scim.MustAttribute(scim.TypeComplex, "schemaExtensions", scim.Config{
		MultiValued: true, Mutability: scim.ReadOnly,
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeReference, "schema", scim.Config{Required: true, Mutability: scim.ReadOnly, CaseExact: true, ReferenceTypes: []string{"uri"}}),
		scim.MustAttribute(scim.TypeBoolean, "required", scim.Config{Required: true, Mutability: scim.ReadOnly}),
	}...),
)
