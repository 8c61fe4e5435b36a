package schemas

import "github.com/openidx/scimcore/scim"

// EnterpriseUserURN identifies the EnterpriseUser schema extension
const EnterpriseUserURN = "urn:ietf:params:scim:schemas:extension:enterprise:2.0:User"

// EnterpriseUser is the enterprise User schema extension (RFC 7643 4.3),
// typically attached to User via AddExtension
var EnterpriseUser = scim.MustSchemaDefinition(
	"EnterpriseUser", EnterpriseUserURN,
	"Enterprise User",
	scim.MustAttribute(scim.TypeString, "employeeNumber", scim.Config{
		Description: "A string identifier, typically numeric or alphanumeric, assigned to a person by the organization.",
	}),
	scim.MustAttribute(scim.TypeString, "costCenter", scim.Config{}),
	scim.MustAttribute(scim.TypeString, "organization", scim.Config{}),
	scim.MustAttribute(scim.TypeString, "division", scim.Config{}),
	scim.MustAttribute(scim.TypeString, "department", scim.Config{}),
	scim.MustAttribute(scim.TypeComplex, "manager", scim.Config{
		Description: "The user's manager.",
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeString, "value", scim.Config{}),
		scim.MustAttribute(scim.TypeReference, "$ref", scim.Config{ReferenceTypes: []string{"User"}}),
		scim.MustAttribute(scim.TypeString, "displayName", scim.Config{Mutability: scim.ReadOnly}),
	}...),
)
