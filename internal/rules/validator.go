package rules

import (
	"fmt"
)

// Sentinel errors returned by ValidateNode. Each also matches ErrValidation.
var (
	ErrInvalidOperator   = fmt.Errorf("%w: invalid operator", ErrValidation)
	ErrInvalidCondition  = fmt.Errorf("%w: invalid condition", ErrValidation)
	ErrInvalidValueType  = fmt.Errorf("%w: invalid value type", ErrValidation)
	ErrInvalidConnective = fmt.Errorf("%w: invalid connective", ErrValidation)
	ErrEmptyLogical      = fmt.Errorf("%w: logical node without children", ErrValidation)
	ErrTooDeep           = fmt.Errorf("%w: tree too deep", ErrValidation)
)

var validOperators = map[Operator]struct{}{
	OpEq:  {},
	OpNeq: {},
	OpGt:  {},
	OpGte: {},
	OpLt:  {},
	OpLte: {},
}

// ValidateNode performs strict validation of a tree built outside the parser.
// It is a pure function: it never mutates n.
func ValidateNode(n Node) error {
	return validateNode(n, "root", 1)
}

func validateNode(n Node, path string, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w: %s exceeds depth %d", ErrTooDeep, path, MaxDepth)
	}
	switch x := n.(type) {
	case *Condition:
		return validateCondition(x, path)
	case *Logical:
		if x.Connective != And && x.Connective != Or {
			return fmt.Errorf("%w: %s connective %q is not supported", ErrInvalidConnective, path, x.Connective)
		}
		if len(x.Children) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyLogical, path)
		}
		for i, c := range x.Children {
			if err := validateNode(c, fmt.Sprintf("%s.children[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s is nil", ErrInvalidCondition, path)
	}
}

func validateCondition(c *Condition, path string) error {
	if c == nil {
		return fmt.Errorf("%w: %s is nil", ErrInvalidCondition, path)
	}
	if c.Attribute == "" {
		return fmt.Errorf("%w: %s attribute must not be empty", ErrInvalidCondition, path)
	}
	if _, ok := validOperators[c.Operator]; !ok {
		return fmt.Errorf("%w: %s operator %q is not supported", ErrInvalidOperator, path, c.Operator)
	}
	switch c.Value.Kind {
	case KindNumber, KindString, KindBool:
	default:
		return fmt.Errorf("%w: %s value kind %q", ErrInvalidValueType, path, c.Value.Kind)
	}
	return nil
}
