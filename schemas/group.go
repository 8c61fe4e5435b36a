package schemas

import "github.com/openidx/scimcore/scim"

// GroupURN identifies the core Group schema
const GroupURN = "urn:ietf:params:scim:schemas:core:2.0:Group"

// Group is the core Group schema definition (RFC 7643 4.2)
var Group = scim.MustSchemaDefinition(
	"Group", GroupURN,
	"Group",
	scim.MustAttribute(scim.TypeString, "displayName", scim.Config{
		Required:    true,
		Description: "A human-readable name for the Group.",
	}),
	scim.MustAttribute(scim.TypeComplex, "members", scim.Config{
		MultiValued: true,
		Description: "A list of members of the Group.",
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeString, "value", scim.Config{Mutability: scim.Immutable}),
		scim.MustAttribute(scim.TypeReference, "$ref", scim.Config{Mutability: scim.Immutable, ReferenceTypes: []string{"User", "Group"}}),
		scim.MustAttribute(scim.TypeString, "display", scim.Config{Mutability: scim.Immutable}),
		scim.MustAttribute(scim.TypeString, "type", scim.Config{Mutability: scim.Immutable, CanonicalValues: []string{"User", "Group"}}),
	}...),
)
