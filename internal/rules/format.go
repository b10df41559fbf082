package rules

import (
	"strconv"
	"strings"
)

// Format renders the canonical string form of a tree. Parsing the result
// yields a tree Equal to Normalize(n).
func Format(n Node) string {
	var b strings.Builder
	writeNode(&b, n, false)
	return b.String()
}

func writeNode(b *strings.Builder, n Node, nested bool) {
	switch x := n.(type) {
	case *Condition:
		b.WriteString(x.Attribute)
		b.WriteByte(' ')
		b.WriteString(string(x.Operator))
		b.WriteByte(' ')
		b.WriteString(x.Value.String())
	case *Logical:
		if len(x.Children) == 1 {
			writeNode(b, x.Children[0], nested)
			return
		}
		if nested {
			b.WriteByte('(')
		}
		for i, c := range x.Children {
			if i > 0 {
				b.WriteByte(' ')
				b.WriteString(string(x.Connective))
				b.WriteByte(' ')
			}
			writeNode(b, c, true)
		}
		if nested {
			b.WriteByte(')')
		}
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func quoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	return b.String()
}
