package rules

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schema declares the value kind of known record attributes. Attributes not
// declared are accepted and type-checked only when a condition reaches them.
type Schema struct {
	attributes map[string]ValueKind
}

// NewSchema builds a schema from attribute name to kind.
func NewSchema(attributes map[string]ValueKind) *Schema {
	s := &Schema{attributes: make(map[string]ValueKind, len(attributes))}
	for name, kind := range attributes {
		s.attributes[name] = kind
	}
	return s
}

// DefaultSchema declares the attributes the rule forms submit:
// age, salary and experience are numbers, department is a string.
func DefaultSchema() *Schema {
	return NewSchema(map[string]ValueKind{
		"age":        KindNumber,
		"salary":     KindNumber,
		"experience": KindNumber,
		"department": KindString,
	})
}

// Lookup returns the declared kind of an attribute.
func (s *Schema) Lookup(name string) (ValueKind, bool) {
	if s == nil {
		return "", false
	}
	k, ok := s.attributes[name]
	return k, ok
}

// Attributes returns the declared attribute names, sorted.
func (s *Schema) Attributes() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.attributes))
	for name := range s.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateRecord checks declared attributes present in rec against their kind.
// Missing attributes are not an error here.
func (s *Schema) ValidateRecord(rec Record) error {
	for _, name := range s.Attributes() {
		v, ok := rec[name]
		if !ok {
			continue
		}
		if want := s.attributes[name]; v.Kind != want {
			return typeMismatchf("attribute %q must be a %s, got %s", name, want, v.Kind)
		}
	}
	return nil
}

// CheckRule rejects conditions that can never evaluate: ordering operators on
// non-numeric literals, and literals whose kind differs from the declared kind.
func (s *Schema) CheckRule(n Node) error {
	for _, c := range Conditions(n) {
		if c.Operator.Ordering() && c.Value.Kind != KindNumber {
			return typeMismatchf("operator %q needs a number, %q is compared with a %s", c.Operator, c.Attribute, c.Value.Kind)
		}
		want, ok := s.Lookup(c.Attribute)
		if !ok {
			continue
		}
		if c.Value.Kind != want {
			return typeMismatchf("attribute %q is a %s but is compared with a %s", c.Attribute, want, c.Value.Kind)
		}
	}
	return nil
}

type schemaFile struct {
	Attributes map[string]string `yaml:"attributes"`
}

// LoadSchemaFile reads a YAML schema:
//
//	attributes:
//	  age: number
//	  department: string
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}
	if len(f.Attributes) == 0 {
		return nil, fmt.Errorf("schema file %s declares no attributes", path)
	}
	attrs := make(map[string]ValueKind, len(f.Attributes))
	for name, kind := range f.Attributes {
		k, ok := parseValueKind(kind)
		if !ok {
			return nil, fmt.Errorf("schema attribute %q: unknown kind %q (want number, string or bool)", name, kind)
		}
		attrs[name] = k
	}
	return NewSchema(attrs), nil
}

func parseValueKind(s string) (ValueKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number", "numeric", "float", "int", "integer":
		return KindNumber, true
	case "string", "text":
		return KindString, true
	case "bool", "boolean":
		return KindBool, true
	default:
		return "", false
	}
}
