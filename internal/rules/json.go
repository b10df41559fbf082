package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type conditionJSON struct {
	Type      NodeKind `json:"type"`
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Value     Value    `json:"value"`
}

type logicalJSON struct {
	Type       NodeKind   `json:"type"`
	Connective Connective `json:"connective"`
	Children   []Node     `json:"children"`
}

// EncodeJSON is json.Marshal without HTML escaping, so operators such as
// ">" and "<=" stay readable in rule strings and trees.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalJSON encodes the condition as
// {"type":"condition","attribute":...,"operator":...,"value":...}.
func (c *Condition) MarshalJSON() ([]byte, error) {
	return EncodeJSON(conditionJSON{
		Type:      KindCondition,
		Attribute: c.Attribute,
		Operator:  c.Operator,
		Value:     c.Value,
	})
}

// MarshalJSON encodes the node as {"type":"logical","connective":...,"children":[...]}.
func (l *Logical) MarshalJSON() ([]byte, error) {
	return EncodeJSON(logicalJSON{
		Type:       KindLogical,
		Connective: l.Connective,
		Children:   l.Children,
	})
}

// MarshalJSON encodes the value as a bare JSON number, string or boolean.
func (v Value) MarshalJSON() ([]byte, error) {
	return EncodeJSON(v.Interface())
}

// UnmarshalJSON accepts a bare JSON number, string or boolean.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	val, err := valueFromAny(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

type nodeEnvelope struct {
	Type       NodeKind          `json:"type"`
	Attribute  string            `json:"attribute"`
	Operator   string            `json:"operator"`
	Value      json.RawMessage   `json:"value"`
	Connective string            `json:"connective"`
	Children   []json.RawMessage `json:"children"`
}

// DecodeNode parses the JSON form produced by MarshalJSON, validates it and
// returns the normalized tree. Malformed documents fail with ErrValidation.
func DecodeNode(data []byte) (Node, error) {
	n, err := decodeNode(data, 1)
	if err != nil {
		return nil, err
	}
	return Normalize(n), nil
}

func decodeNode(data []byte, depth int) (Node, error) {
	if depth > MaxDepth {
		return nil, validationErrorf("structure nesting exceeds %d", MaxDepth)
	}
	var env nodeEnvelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, validationErrorf("invalid node: %v", err)
	}

	switch env.Type {
	case KindCondition:
		if env.Attribute == "" {
			return nil, validationErrorf("condition attribute must not be empty")
		}
		op, ok := ParseOperator(env.Operator)
		if !ok {
			return nil, validationErrorf("condition operator %q is not supported", env.Operator)
		}
		if len(env.Value) == 0 {
			return nil, validationErrorf("condition on %q has no value", env.Attribute)
		}
		var v Value
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, validationErrorf("condition on %q: %v", env.Attribute, err)
		}
		return &Condition{Attribute: env.Attribute, Operator: op, Value: v}, nil

	case KindLogical:
		conn, ok := ParseConnective(env.Connective)
		if !ok {
			return nil, validationErrorf("connective %q is not supported", env.Connective)
		}
		if len(env.Children) == 0 {
			return nil, validationErrorf("logical node must have at least one child")
		}
		children := make([]Node, 0, len(env.Children))
		for _, raw := range env.Children {
			c, err := decodeNode(raw, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return &Logical{Connective: conn, Children: children}, nil

	default:
		return nil, validationErrorf("unknown node type %q", env.Type)
	}
}

func valueFromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	default:
		return Value{}, fmt.Errorf("value must be a number, string or boolean, got %T", raw)
	}
}
