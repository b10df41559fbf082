package rules

import (
	"strconv"
)

// Operator represents a comparison operator used in a condition node.
type Operator string

// Supported comparison operators (canonical spellings, also used in JSON).
const (
	OpEq  Operator = "="
	OpNeq Operator = "!="
	OpGt  Operator = ">"
	OpGte Operator = ">="
	OpLt  Operator = "<"
	OpLte Operator = "<="
)

// Ordering reports whether the operator needs ordered (numeric) operands.
func (op Operator) Ordering() bool {
	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// Connective joins the children of a logical node.
type Connective string

const (
	And Connective = "AND"
	Or  Connective = "OR"
)

// NodeKind discriminates the two node types of a rule tree.
type NodeKind string

const (
	KindCondition NodeKind = "condition"
	KindLogical   NodeKind = "logical"
)

// Node is an element of a parsed rule tree.
// Trees are never mutated after construction; callers share them freely.
type Node interface {
	Kind() NodeKind
	isNode()
}

// Condition is a leaf comparing one record attribute against a literal.
type Condition struct {
	Attribute string
	Operator  Operator
	Value     Value
}

func (*Condition) Kind() NodeKind { return KindCondition }
func (*Condition) isNode()        {}

// Logical is an AND/OR connective over an ordered list of children.
// Children are evaluated in the order stored.
type Logical struct {
	Connective Connective
	Children   []Node
}

func (*Logical) Kind() NodeKind { return KindLogical }
func (*Logical) isNode()        {}

// ValueKind is the type of a literal or record value.
type ValueKind string

const (
	KindNumber ValueKind = "number"
	KindString ValueKind = "string"
	KindBool   ValueKind = "bool"
)

// Value is a typed scalar: a condition literal or a record attribute.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
}

// Number returns a numeric Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Interface returns the value as a plain Go value (float64, string or bool).
func (v Value) Interface() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return v.Str
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	default:
		return v.Str == o.Str
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return formatNumber(v.Num)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return quoteString(v.Str)
	}
}

// Walk calls fn for every node in depth-first, left-to-right order.
// Returning false from fn stops descent into that node's children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	if l, ok := n.(*Logical); ok {
		for _, c := range l.Children {
			Walk(c, fn)
		}
	}
}

// Conditions returns every condition of the tree in stored order.
func Conditions(n Node) []*Condition {
	var out []*Condition
	Walk(n, func(n Node) bool {
		if c, ok := n.(*Condition); ok {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Depth returns the height of the tree; a single condition has depth 1.
func Depth(n Node) int {
	l, ok := n.(*Logical)
	if !ok {
		return 1
	}
	deepest := 0
	for _, c := range l.Children {
		if d := Depth(c); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// Normalize flattens nested logical nodes that share their parent's connective
// and unwraps logical nodes with a single child. The input is not modified.
func Normalize(n Node) Node {
	l, ok := n.(*Logical)
	if !ok {
		return n
	}
	children := make([]Node, 0, len(l.Children))
	for _, c := range l.Children {
		c = Normalize(c)
		if cl, ok := c.(*Logical); ok && cl.Connective == l.Connective {
			children = append(children, cl.Children...)
			continue
		}
		children = append(children, c)
	}
	if len(children) == 1 {
		return children[0]
	}
	return &Logical{Connective: l.Connective, Children: children}
}

// Equal reports whether two trees are structurally identical.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case *Condition:
		y, ok := b.(*Condition)
		return ok && x.Attribute == y.Attribute && x.Operator == y.Operator && x.Value.Equal(y.Value)
	case *Logical:
		y, ok := b.(*Logical)
		if !ok || x.Connective != y.Connective || len(x.Children) != len(y.Children) {
			return false
		}
		for i := range x.Children {
			if !Equal(x.Children[i], y.Children[i]) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}
