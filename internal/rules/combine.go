package rules

import "fmt"

// MinCombineInputs is the fewest rules Combine accepts.
const MinCombineInputs = 2

// Combine merges parsed rules under strategy (AND or OR).
//
// Inputs whose top-level node already uses the strategy connective are folded:
// their children are spliced in place. Every other input becomes one child.
// Structurally identical children are kept once, at their first position, so
// the result depends only on input order. A single surviving child is
// returned unwrapped. The inputs are not modified.
func Combine(inputs []Node, strategy Connective) (Node, error) {
	if len(inputs) < MinCombineInputs {
		return nil, validationErrorf("at least %d rules are required to combine, got %d", MinCombineInputs, len(inputs))
	}
	if strategy != And && strategy != Or {
		return nil, validationErrorf("combine operator %q is not supported", strategy)
	}

	seen := make(map[string]struct{})
	children := make([]Node, 0, len(inputs))
	add := func(n Node) {
		key := Format(n)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		children = append(children, n)
	}

	for i, in := range inputs {
		if in == nil {
			return nil, validationErrorf("rule %d is empty", i)
		}
		if err := ValidateNode(in); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		n := Normalize(in)
		if l, ok := n.(*Logical); ok && l.Connective == strategy {
			for _, c := range l.Children {
				add(c)
			}
			continue
		}
		add(n)
	}

	if len(children) == 1 {
		return children[0], nil
	}
	return &Logical{Connective: strategy, Children: children}, nil
}

// CombineStrings parses each input and combines the results. A parse failure
// in any input aborts the whole call with ErrValidation wrapping the
// *SyntaxError and naming the offending input index.
func CombineStrings(inputs []string, strategy Connective) (Node, error) {
	if len(inputs) < MinCombineInputs {
		return nil, validationErrorf("at least %d rules are required to combine, got %d", MinCombineInputs, len(inputs))
	}
	nodes := make([]Node, 0, len(inputs))
	for i, s := range inputs {
		n, err := Parse(s)
		if err != nil {
			return nil, validationErrorf("rule %d: %w", i, err)
		}
		nodes = append(nodes, n)
	}
	return Combine(nodes, strategy)
}
