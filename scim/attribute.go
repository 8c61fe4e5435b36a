package scim

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Attribute Definitions (RFC 7643 Section 2)
// ============================================================

// Type is a SCIM attribute data type
type Type string

const (
	TypeString    Type = "string"
	TypeComplex   Type = "complex"
	TypeBoolean   Type = "boolean"
	TypeBinary    Type = "binary"
	TypeDecimal   Type = "decimal"
	TypeInteger   Type = "integer"
	TypeDateTime  Type = "dateTime"
	TypeReference Type = "reference"
)

// Mutability describes whether and how an attribute value may change
type Mutability string

const (
	ReadWrite Mutability = "readWrite"
	ReadOnly  Mutability = "readOnly"
	WriteOnly Mutability = "writeOnly"
	Immutable Mutability = "immutable"
)

// Returned describes when an attribute appears in responses
type Returned string

const (
	Default Returned = "default"
	Always  Returned = "always"
	Never   Returned = "never"
	Request Returned = "request"
)

// Uniqueness describes the uniqueness constraint on an attribute
type Uniqueness string

const (
	None   Uniqueness = "none"
	Server Uniqueness = "server"
	Global Uniqueness = "global"
)

// Direction describes which request flows an attribute participates in:
// inbound ("in"), outbound ("out"), or both
type Direction string

const (
	In   Direction = "in"
	Out  Direction = "out"
	Both Direction = "both"
)

// Config holds the constraint set for a single attribute. The zero value
// means: single-valued, optional, case-insensitive, readWrite, returned by
// default, no uniqueness, both directions.
type Config struct {
	MultiValued     bool
	Required        bool
	CanonicalValues []string
	CaseExact       bool
	Mutability      Mutability
	Returned        Returned
	ReferenceTypes  []string
	Uniqueness      Uniqueness
	Direction       Direction
	Shadow          bool
	Description     string
}

var attributeNameRegex = regexp.MustCompile(`^[-$\w][-$\w]*$`)

// Attribute defines one schema field's contract: its type, name, constraint
// configuration, and (for complex types) sub-attributes. Attributes are
// constructed once at schema-definition time and not mutated afterwards,
// except for validated sub-attribute membership changes.
type Attribute struct {
	Type Type
	Name string

	config        Config
	subAttributes []*Attribute
}

// NewAttribute creates and validates an attribute definition. Construction
// failures are configuration mistakes and should abort startup.
func NewAttribute(typ Type, name string, config Config, subAttributes ...*Attribute) (*Attribute, error) {
	switch typ {
	case TypeString, TypeComplex, TypeBoolean, TypeBinary, TypeDecimal, TypeInteger, TypeDateTime, TypeReference:
	default:
		return nil, fmt.Errorf("invalid attribute type %q for attribute %q", typ, name)
	}
	if !attributeNameRegex.MatchString(name) {
		return nil, fmt.Errorf("invalid attribute name %q", name)
	}
	if len(subAttributes) > 0 && typ != TypeComplex {
		return nil, fmt.Errorf("attribute %q of type %q may not declare sub-attributes", name, typ)
	}

	// Normalize zero-value config fields to their SCIM defaults
	if config.Mutability == "" {
		config.Mutability = ReadWrite
	}
	if config.Returned == "" {
		config.Returned = Default
	}
	if config.Uniqueness == "" {
		config.Uniqueness = None
	}
	if config.Direction == "" {
		config.Direction = Both
	}
	switch config.Mutability {
	case ReadWrite, ReadOnly, WriteOnly, Immutable:
	default:
		return nil, fmt.Errorf("invalid mutability %q for attribute %q", config.Mutability, name)
	}
	switch config.Returned {
	case Default, Always, Never, Request:
	default:
		return nil, fmt.Errorf("invalid returned %q for attribute %q", config.Returned, name)
	}
	switch config.Uniqueness {
	case None, Server, Global:
	default:
		return nil, fmt.Errorf("invalid uniqueness %q for attribute %q", config.Uniqueness, name)
	}
	switch config.Direction {
	case In, Out, Both:
	default:
		return nil, fmt.Errorf("invalid direction %q for attribute %q", config.Direction, name)
	}

	config.CanonicalValues = append([]string(nil), config.CanonicalValues...)
	config.ReferenceTypes = append([]string(nil), config.ReferenceTypes...)

	attr := &Attribute{Type: typ, Name: name, config: config}
	for _, sub := range subAttributes {
		if err := attr.Extend(sub); err != nil {
			return nil, err
		}
	}
	return attr, nil
}

// MustAttribute is like NewAttribute but panics on configuration errors.
// Intended for the static schema tables.
func MustAttribute(typ Type, name string, config Config, subAttributes ...*Attribute) *Attribute {
	attr, err := NewAttribute(typ, name, config, subAttributes...)
	if err != nil {
		panic(err)
	}
	return attr
}

// Config returns a copy of the attribute's constraint configuration
func (a *Attribute) Config() Config {
	cfg := a.config
	cfg.CanonicalValues = append([]string(nil), cfg.CanonicalValues...)
	cfg.ReferenceTypes = append([]string(nil), cfg.ReferenceTypes...)
	return cfg
}

// SubAttributes returns the complex attribute's sub-attributes
func (a *Attribute) SubAttributes() []*Attribute {
	return append([]*Attribute(nil), a.subAttributes...)
}

// SubAttribute finds a sub-attribute by case-insensitive name, returning nil
// if the attribute is not complex or the name is not declared
func (a *Attribute) SubAttribute(name string) *Attribute {
	lower := strings.ToLower(name)
	for _, sub := range a.subAttributes {
		if strings.ToLower(sub.Name) == lower {
			return sub
		}
	}
	return nil
}

// Extend adds sub-attributes to a complex attribute, enforcing name
// uniqueness per insert
func (a *Attribute) Extend(subAttributes ...*Attribute) error {
	if a.Type != TypeComplex {
		return fmt.Errorf("attribute %q of type %q may not declare sub-attributes", a.Name, a.Type)
	}
	for _, sub := range subAttributes {
		if sub == nil {
			return fmt.Errorf("nil sub-attribute for attribute %q", a.Name)
		}
		if a.SubAttribute(sub.Name) != nil {
			return fmt.Errorf("duplicate sub-attribute %q for attribute %q", sub.Name, a.Name)
		}
		a.subAttributes = append(a.subAttributes, sub)
	}
	return nil
}

// Truncate removes sub-attributes identified by name (dotted names recurse)
// or by instance. Targets that are not present are ignored, so truncation is
// idempotent and side-effect-free when nothing matches.
func (a *Attribute) Truncate(targets ...any) *Attribute {
	if a.Type != TypeComplex {
		return a
	}
	for _, target := range targets {
		switch t := target.(type) {
		case string:
			name, rest, nested := strings.Cut(t, ".")
			if nested {
				if sub := a.SubAttribute(name); sub != nil {
					sub.Truncate(rest)
				}
				continue
			}
			a.removeSub(a.SubAttribute(name))
		case *Attribute:
			a.removeSub(t)
		}
	}
	return a
}

func (a *Attribute) removeSub(target *Attribute) {
	if target == nil {
		return
	}
	for i, sub := range a.subAttributes {
		if sub == target {
			a.subAttributes = append(a.subAttributes[:i], a.subAttributes[i+1:]...)
			return
		}
	}
}

// ============================================================
// Value Coercion
// ============================================================

// Coerce validates source against the attribute's contract for the given
// request flow direction and returns the normalized value. A nil result with
// a nil error means the attribute does not participate (direction mismatch)
// or the optional value was absent.
func (a *Attribute) Coerce(source any, direction Direction) (any, error) {
	return a.coerce(source, direction, false)
}

func (a *Attribute) coerce(source any, direction Direction, isComplexMultiValue bool) (any, error) {
	if direction == "" {
		direction = Both
	}
	cfg := a.config

	// Direction gating: an attribute configured for "both" always
	// participates; otherwise the flows must match exactly
	if direction != Both && cfg.Direction != Both && cfg.Direction != direction {
		return nil, nil
	}

	source = NormalizeValue(source)

	if source == nil {
		if cfg.Required && (direction == Both || cfg.Direction == Both || cfg.Direction == direction) {
			return nil, fmt.Errorf("required attribute '%s' is missing", a.Name)
		}
		if a.Type == TypeComplex && !cfg.MultiValued && !isComplexMultiValue && len(a.subAttributes) > 0 {
			// Empty shell so sub-attributes of a previously-unset complex
			// attribute remain settable
			return map[string]any{}, nil
		}
		return nil, nil
	}

	arr, isCollection := source.([]any)
	if cfg.MultiValued && !isCollection && !isComplexMultiValue {
		return nil, fmt.Errorf("attribute '%s' expected to be a collection", a.Name)
	}
	if !cfg.MultiValued && isCollection {
		return nil, fmt.Errorf("attribute '%s' is not multi-valued and must not be a collection", a.Name)
	}

	if len(cfg.CanonicalValues) > 0 {
		values := []any{source}
		if isCollection {
			values = arr
		}
		for _, v := range values {
			if !a.isCanonical(v) {
				return nil, fmt.Errorf("attribute '%s' contains non-canonical value", a.Name)
			}
		}
	}

	if cfg.MultiValued && !isComplexMultiValue {
		out := make([]any, 0, len(arr))
		for _, item := range arr {
			coerced, err := a.coerceSingle(item, direction)
			if err != nil {
				return nil, err
			}
			out = append(out, coerced)
		}
		return out, nil
	}
	return a.coerceSingle(source, direction)
}

// isCanonical reports whether a value (or for complex members, its "value"
// or "type" sub-value) belongs to the canonical value set
func (a *Attribute) isCanonical(value any) bool {
	s, ok := value.(string)
	if !ok {
		if m, isMap := value.(map[string]any); isMap {
			if tv, found := LookupKey(m, "type"); found {
				s, ok = tv.(string)
			}
		}
		if !ok {
			return false
		}
	}
	for _, canon := range a.config.CanonicalValues {
		if canon == s {
			return true
		}
	}
	return false
}

func (a *Attribute) coerceSingle(value any, direction Direction) (any, error) {
	switch a.Type {
	case TypeString:
		if value == nil {
			return nil, nil
		}
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, a.typeError("string", value)

	case TypeDateTime:
		return a.coerceDateTime(value)

	case TypeDecimal, TypeInteger:
		return a.coerceNumber(value)

	case TypeBinary:
		return a.coerceBinary(value)

	case TypeBoolean:
		return a.coerceBoolean(value)

	case TypeReference:
		return a.coerceReference(value)

	case TypeComplex:
		return a.coerceComplex(value, direction)
	}

	// Unrecognized types pass through untouched
	return value, nil
}

var dateTimeRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?)?$`)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDateTime parses an ISO 8601-shaped timestamp, trying the full layout
// set from most to least specific
func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// coerceDateTime applies the two-stage check: a strict ISO 8601 shape match
// plus an actual parse, since a lenient parse alone accepts malformed input
func (a *Attribute) coerceDateTime(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, a.typeError("dateTime", value)
	}
	if !dateTimeRegex.MatchString(s) {
		return nil, a.typeError("dateTime", value)
	}
	t, ok := parseDateTime(s)
	if !ok {
		return nil, a.typeError("dateTime", value)
	}
	return t.UTC().Format(time.RFC3339), nil
}

var numberRegex = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// coerceNumber enforces cross-type strictness between integer and decimal:
// a whole number is rejected by a decimal attribute and vice versa
func (a *Attribute) coerceNumber(value any) (any, error) {
	f, ok := value.(float64)
	if !ok {
		return nil, a.typeError(string(a.Type), value)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !numberRegex.MatchString(s) {
		return nil, a.typeError(string(a.Type), value)
	}
	whole := !strings.Contains(s, ".")
	if a.Type == TypeInteger && !whole {
		return nil, fmt.Errorf("attribute '%s' expected value type 'integer' but found type 'decimal'", a.Name)
	}
	if a.Type == TypeDecimal && whole {
		return nil, fmt.Errorf("attribute '%s' expected value type 'decimal' but found type 'integer'", a.Name)
	}
	return f, nil
}

func (a *Attribute) coerceBinary(value any) (any, error) {
	switch value.(type) {
	case map[string]any, []any:
		return nil, a.typeError("binary", value)
	}
	s, ok := value.(string)
	if !ok {
		return nil, a.typeError("binary", value)
	}
	if _, err := base64.StdEncoding.DecodeString(s); err != nil {
		if _, err := base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("attribute '%s' expected value to be a base64 encoded string or binary octet-stream", a.Name)
		}
	}
	return s, nil
}

func (a *Attribute) coerceBoolean(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case nil:
		return nil, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, a.typeError("boolean", value)
}

func (a *Attribute) coerceReference(value any) (any, error) {
	if value == nil || value == "" {
		if !a.config.Required {
			return nil, nil
		}
	}
	s, ok := value.(string)
	if !ok {
		return nil, a.typeError("reference", value)
	}
	types := a.config.ReferenceTypes
	if len(types) == 0 {
		return nil, fmt.Errorf("attribute '%s' with type 'reference' does not specify any referenceTypes", a.Name)
	}
	for _, refType := range types {
		switch refType {
		case "external":
			if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
				return s, nil
			}
		case "uri":
			if strings.HasPrefix(s, "/") {
				return s, nil
			}
			if u, err := url.Parse(s); err == nil && u.Scheme != "" {
				return s, nil
			}
		default:
			if strings.HasPrefix(s, refType) || strings.Contains(s, "/"+refType) {
				return s, nil
			}
		}
	}
	return nil, fmt.Errorf("attribute '%s' expected value to be a reference of type %s", a.Name, quotedList(types))
}

// coerceComplex recursively coerces every declared sub-attribute, folding
// source keys case-insensitively
func (a *Attribute) coerceComplex(value any, direction Direction) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, a.typeError("complex", value)
	}
	out := make(map[string]any, len(a.subAttributes))
	for _, sub := range a.subAttributes {
		raw, _ := LookupKey(m, sub.Name)
		coerced, err := sub.Coerce(raw, direction)
		if err != nil {
			return nil, fmt.Errorf("%w from complex attribute '%s'", err, a.Name)
		}
		if coerced != nil {
			out[sub.Name] = coerced
		}
	}
	return out, nil
}

func (a *Attribute) typeError(expected string, actual any) error {
	if _, ok := actual.([]any); ok {
		return fmt.Errorf("attribute '%s' expected single value of type '%s'", a.Name, expected)
	}
	return fmt.Errorf("attribute '%s' expected value type '%s' but found type '%s'", a.Name, expected, valueTypeName(actual))
}

func quotedList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ", ")
}

// ============================================================
// Schema Document Rendering
// ============================================================

// Describe renders the attribute as a SCIM attribute-definition document
// per RFC 7643 Section 7. Shadow sub-attributes are excluded.
func (a *Attribute) Describe() map[string]any {
	out := map[string]any{
		"name":        a.Name,
		"type":        string(a.Type),
		"multiValued": a.config.MultiValued,
		"description": a.config.Description,
		"required":    a.config.Required,
		"mutability":  string(a.config.Mutability),
		"returned":    string(a.config.Returned),
	}
	if a.Type != TypeComplex && a.Type != TypeBoolean {
		out["caseExact"] = a.config.CaseExact
		out["uniqueness"] = string(a.config.Uniqueness)
	}
	if len(a.config.CanonicalValues) > 0 {
		out["canonicalValues"] = append([]string(nil), a.config.CanonicalValues...)
	}
	if a.Type == TypeReference {
		out["referenceTypes"] = append([]string(nil), a.config.ReferenceTypes...)
	}
	if a.Type == TypeComplex {
		subs := make([]map[string]any, 0, len(a.subAttributes))
		for _, sub := range a.subAttributes {
			if sub.config.Shadow {
				continue
			}
			subs = append(subs, sub.Describe())
		}
		out["subAttributes"] = subs
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (a *Attribute) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Describe())
}
