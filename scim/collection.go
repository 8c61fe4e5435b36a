package scim

import (
	"encoding/json"
	"fmt"
)

// ============================================================
// Validated Multi-Valued Collections
// ============================================================

// Collection is a live view over a multi-valued attribute's values. Every
// mutation re-runs the same element coercion applied at construction, so
// values written after the fact cannot bypass type or canonical rules.
// Reads return copies; the backing slice is never exposed.
type Collection struct {
	attribute *Attribute
	direction Direction
	values    []any
	onChange  func([]any)
}

// NewCollection creates a validated collection for a multi-valued attribute,
// coercing any initial values
func NewCollection(attribute *Attribute, direction Direction, initial []any) (*Collection, error) {
	if attribute == nil {
		return nil, fmt.Errorf("collection requires an attribute definition")
	}
	if !attribute.config.MultiValued {
		return nil, fmt.Errorf("attribute '%s' is not multi-valued", attribute.Name)
	}
	c := &Collection{attribute: attribute, direction: direction}
	for _, v := range initial {
		if err := c.Append(v); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// bind registers a callback invoked with the new backing slice after every
// successful mutation, letting an owning resource observe writes
func (c *Collection) bind(onChange func([]any)) {
	c.onChange = onChange
}

// Len returns the number of elements
func (c *Collection) Len() int {
	return len(c.values)
}

// At returns a copy of the element at index i
func (c *Collection) At(i int) any {
	if i < 0 || i >= len(c.values) {
		return nil
	}
	return DeepCopyValue(c.values[i])
}

// Values returns a copy of all elements
func (c *Collection) Values() []any {
	out := make([]any, len(c.values))
	for i, v := range c.values {
		out[i] = DeepCopyValue(v)
	}
	return out
}

// Append coerces and appends elements
func (c *Collection) Append(values ...any) error {
	for _, v := range values {
		coerced, err := c.coerceElement(v)
		if err != nil {
			return err
		}
		c.values = append(c.values, coerced)
	}
	c.changed()
	return nil
}

// ReplaceAt coerces value and writes it at index i
func (c *Collection) ReplaceAt(i int, value any) error {
	if i < 0 || i >= len(c.values) {
		return fmt.Errorf("index %d out of range for attribute '%s'", i, c.attribute.Name)
	}
	coerced, err := c.coerceElement(value)
	if err != nil {
		return err
	}
	c.values[i] = coerced
	c.changed()
	return nil
}

// Remove deletes every element deep-equal to one of the given values and
// returns how many were removed
func (c *Collection) Remove(values ...any) int {
	kept := c.values[:0]
	removed := 0
	for _, existing := range c.values {
		match := false
		for _, v := range values {
			if DeepEqualValue(existing, NormalizeValue(v)) {
				match = true
				break
			}
		}
		if match {
			removed++
		} else {
			kept = append(kept, existing)
		}
	}
	c.values = kept
	if removed > 0 {
		c.changed()
	}
	return removed
}

// RemoveMatching deletes every element the filter matches and returns how
// many were removed. Non-complex elements never match.
func (c *Collection) RemoveMatching(filter *Filter) int {
	kept := c.values[:0]
	removed := 0
	for _, existing := range c.values {
		if m, ok := existing.(map[string]any); ok && filter != nil && filter.Match(m) {
			removed++
		} else {
			kept = append(kept, existing)
		}
	}
	c.values = kept
	if removed > 0 {
		c.changed()
	}
	return removed
}

func (c *Collection) coerceElement(value any) (any, error) {
	value = NormalizeValue(value)
	if _, isArr := value.([]any); isArr {
		return nil, c.attribute.typeError(string(c.attribute.Type), value)
	}
	if len(c.attribute.config.CanonicalValues) > 0 && !c.attribute.isCanonical(value) {
		return nil, fmt.Errorf("attribute '%s' contains non-canonical value", c.attribute.Name)
	}
	return c.attribute.coerceSingle(value, c.direction)
}

func (c *Collection) changed() {
	if c.onChange != nil {
		c.onChange(c.Values())
	}
}

// MarshalJSON implements json.Marshaler
func (c *Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.values)
}
