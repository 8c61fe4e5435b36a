// Package schemas declares the SCIM core resource schemas per RFC 7643 as
// shared schema definition singletons.
package schemas

import "github.com/openidx/scimcore/scim"

// UserURN identifies the core User schema
const UserURN = "urn:ietf:params:scim:schemas:core:2.0:User"

// User is the core User schema definition (RFC 7643 4.1)
var User = scim.MustSchemaDefinition(
	"User", UserURN,
	"User Account",
	scim.MustAttribute(scim.TypeString, "userName", scim.Config{
		Required: true, Uniqueness: scim.Server,
		Description: "Unique identifier for the User, typically used by the user to directly authenticate to the service provider.",
	}),
	scim.MustAttribute(scim.TypeComplex, "name", scim.Config{
		Description: "The components of the user's real name.",
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeString, "formatted", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "familyName", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "givenName", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "middleName", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "honorificPrefix", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "honorificSuffix", scim.Config{}),
	}...),
	scim.MustAttribute(scim.TypeString, "displayName", scim.Config{
		Description: "The name of the User, suitable for display to end-users.",
	}),
	scim.MustAttribute(scim.TypeString, "nickName", scim.Config{}),
	scim.MustAttribute(scim.TypeReference, "profileUrl", scim.Config{
		ReferenceTypes: []string{"external"},
	}),
	scim.MustAttribute(scim.TypeString, "title", scim.Config{}),
	scim.MustAttribute(scim.TypeString, "userType", scim.Config{}),
	scim.MustAttribute(scim.TypeString, "preferredLanguage", scim.Config{}),
	scim.MustAttribute(scim.TypeString, "locale", scim.Config{}),
	scim.MustAttribute(scim.TypeString, "timezone", scim.Config{}),
	scim.MustAttribute(scim.TypeBoolean, "active", scim.Config{
		Description: "A Boolean value indicating the User's administrative status.",
	}),
	scim.MustAttribute(scim.TypeString, "password", scim.Config{
		Mutability: scim.WriteOnly, Returned: scim.Never, Direction: scim.In,
		Description: "The User's cleartext password, used for initial setting or reset.",
	}),
	multiValuedTyped("emails", []string{"work", "home", "other"},
		"Email addresses for the user."),
	multiValuedTyped("phoneNumbers", []string{"work", "home", "mobile", "fax", "pager", "other"},
		"Phone numbers for the User."),
	multiValuedTyped("ims", []string{"aim", "gtalk", "icq", "xmpp", "msn", "skype", "qq", "yahoo"},
		"Instant messaging addresses for the User."),
	scim.MustAttribute(scim.TypeComplex, "photos", scim.Config{
		MultiValued: true,
		Description: "URLs of photos of the User.",
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeReference, "value", scim.Config{ReferenceTypes: []string{"external"}}),
		scim.MustAttribute(scim.TypeString, "display", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "type", scim.Config{CanonicalValues: []string{"photo", "thumbnail"}}),
		scim.MustAttribute(scim.TypeBoolean, "primary", scim.Config{}),
	}...),
	scim.MustAttribute(scim.TypeComplex, "addresses", scim.Config{
		MultiValued: true,
		Description: "A physical mailing address for this User.",
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeString, "formatted", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "streetAddress", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "locality", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "region", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "postalCode", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "country", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "type", scim.Config{CanonicalValues: []string{"work", "home", "other"}}),
		scim.MustAttribute(scim.TypeBoolean, "primary", scim.Config{}),
	}...),
	scim.MustAttribute(scim.TypeComplex, "groups", scim.Config{
		MultiValued: true, Mutability: scim.ReadOnly, Direction: scim.Out,
		Description: "A list of groups to which the user belongs.",
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeString, "value", scim.Config{Mutability: scim.ReadOnly}),
		scim.MustAttribute(scim.TypeReference, "$ref", scim.Config{Mutability: scim.ReadOnly, ReferenceTypes: []string{"User", "Group"}}),
		scim.MustAttribute(scim.TypeString, "display", scim.Config{Mutability: scim.ReadOnly}),
		scim.MustAttribute(scim.TypeString, "type", scim.Config{Mutability: scim.ReadOnly, CanonicalValues: []string{"direct", "indirect"}}),
	}...),
	multiValued("entitlements", "A list of entitlements for the User."),
	multiValued("roles", "A list of roles for the User."),
	multiValued("x509Certificates", "A list of certificates issued to the User."),
)

// multiValued builds a plain multi-valued complex attribute with the
// standard value/display/type/primary sub-attributes and no canonical type
// set
func multiValued(name, description string) *scim.Attribute {
	return scim.MustAttribute(scim.TypeComplex, name, scim.Config{
		MultiValued: true, Description: description,
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeString, "value", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "display", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "type", scim.Config{}),
		scim.MustAttribute(scim.TypeBoolean, "primary", scim.Config{}),
	}...)
}

// multiValuedTyped is multiValued with a canonical type value set
func multiValuedTyped(name string, types []string, description string) *scim.Attribute {
	return scim.MustAttribute(scim.TypeComplex, name, scim.Config{
		MultiValued: true, Description: description,
	}, []*scim.Attribute{
		scim.MustAttribute(scim.TypeString, "value", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "display", scim.Config{}),
		scim.MustAttribute(scim.TypeString, "type", scim.Config{CanonicalValues: types}),
		scim.MustAttribute(scim.TypeBoolean, "primary", scim.Config{}),
	}...)
}
