package rules

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

const (
	// MaxRuleLength is the longest rule string accepted, in bytes.
	MaxRuleLength = 4096
	// MaxDepth bounds the height of a parsed tree.
	MaxDepth = 64
)

// ruleLexer tokenizes rule expressions. AND/OR and boolean literals are
// case-insensitive; order matters, keywords must precede Ident. Each rule is
// matched against the remaining input, so a leading \b always holds;
// checkKeywordSpacing rejects keywords glued to the previous operand.
var ruleLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "And", Pattern: `(?i:\band\b)|&&`},
	{Name: "Or", Pattern: `(?i:\bor\b)|\|\|`},
	{Name: "Bool", Pattern: `(?i:\b(?:true|false)\b)`},
	{Name: "Number", Pattern: `[-+]?(?:\d+(?:\.\d+)?|\.\d+)(?:[eE][-+]?\d+)?`},
	{Name: "String", Pattern: `'(?:\\.|[^'\\])*'|"(?:\\.|[^"\\])*"`},
	{Name: "Operator", Pattern: `==|!=|<>|>=|<=|=|>|<`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[()]`},
})

// Grammar, lowest precedence first:
//
//	expr := and (OR and)*
//	and  := term (AND term)*
//	term := '(' expr ')' | cond
//	cond := Ident Operator literal
type orExpr struct {
	Terms []*andExpr `parser:"@@ ( Or @@ )*"`
}

type andExpr struct {
	Terms []*term `parser:"@@ ( And @@ )*"`
}

type term struct {
	Group     *orExpr        `parser:"  '(' @@ ')'"`
	Condition *conditionExpr `parser:"| @@"`
}

type conditionExpr struct {
	Pos       lexer.Position
	Attribute string      `parser:"@Ident"`
	Operator  string      `parser:"@Operator"`
	Value     literalExpr `parser:"@@"`
}

type literalExpr struct {
	Pos    lexer.Position
	Number *string `parser:"  @Number"`
	String *string `parser:"| @String"`
	Bool   *string `parser:"| @Bool"`
}

var ruleParser = participle.MustBuild[orExpr](
	participle.Lexer(ruleLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse converts a rule string into a normalized tree.
// It is a pure function; every failure is a *SyntaxError.
func Parse(input string) (Node, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, &SyntaxError{Msg: "rule must not be empty"}
	}
	if len(input) > MaxRuleLength {
		return nil, &SyntaxError{Msg: "rule exceeds " + strconv.Itoa(MaxRuleLength) + " bytes"}
	}

	if serr := checkKeywordSpacing(input); serr != nil {
		return nil, serr
	}

	parsed, err := ruleParser.ParseString("", input)
	if err != nil {
		return nil, toSyntaxError(err)
	}

	node, err := buildOr(parsed)
	if err != nil {
		return nil, err
	}
	node = Normalize(node)
	if d := Depth(node); d > MaxDepth {
		return nil, &SyntaxError{Msg: "rule nesting depth " + strconv.Itoa(d) + " exceeds " + strconv.Itoa(MaxDepth)}
	}
	return node, nil
}

// MustParse is Parse for statically known rules; it panics on error.
func MustParse(input string) Node {
	n, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return n
}

var (
	andToken     = ruleLexer.Symbols()["And"]
	orToken      = ruleLexer.Symbols()["Or"]
	operandTypes = map[lexer.TokenType]bool{
		ruleLexer.Symbols()["Number"]: true,
		ruleLexer.Symbols()["String"]: true,
		ruleLexer.Symbols()["Bool"]:   true,
		ruleLexer.Symbols()["Ident"]:  true,
	}
)

// checkKeywordSpacing reports a word keyword (AND, OR) that directly follows
// an operand, as in "30and". Lexer failures are left to the parser.
func checkKeywordSpacing(input string) *SyntaxError {
	lex, err := ruleLexer.LexString("", input)
	if err != nil {
		return nil
	}
	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil
	}
	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Type != andToken && tok.Type != orToken {
			continue
		}
		if tok.Value == "&&" || tok.Value == "||" {
			continue
		}
		if operandTypes[tokens[i-1].Type] {
			return &SyntaxError{
				Line:   tok.Pos.Line,
				Column: tok.Pos.Column,
				Msg:    fmt.Sprintf("expected whitespace before %q", tok.Value),
			}
		}
	}
	return nil
}

// grammarNames maps grammar node names in parser messages to user terms.
var grammarNames = strings.NewReplacer(
	"LiteralExpr", "a value",
	"ConditionExpr", "a condition",
	"OrExpr", "an expression",
	"AndExpr", "an expression",
	"Term", "a condition or group",
)

func toSyntaxError(err error) *SyntaxError {
	var perr participle.Error
	if errors.As(err, &perr) {
		pos := perr.Position()
		msg := perr.Message()
		var uerr *participle.UnexpectedTokenError
		if errors.As(err, &uerr) {
			if head := fmt.Sprintf("unexpected token %q", uerr.Unexpected); strings.HasPrefix(msg, head) {
				msg = head + grammarNames.Replace(msg[len(head):])
			}
		}
		return &SyntaxError{Line: pos.Line, Column: pos.Column, Msg: msg}
	}
	return &SyntaxError{Msg: err.Error()}
}

func buildOr(e *orExpr) (Node, error) {
	children := make([]Node, 0, len(e.Terms))
	for _, t := range e.Terms {
		n, err := buildAnd(t)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Logical{Connective: Or, Children: children}, nil
}

func buildAnd(e *andExpr) (Node, error) {
	children := make([]Node, 0, len(e.Terms))
	for _, t := range e.Terms {
		n, err := buildTerm(t)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Logical{Connective: And, Children: children}, nil
}

func buildTerm(t *term) (Node, error) {
	if t.Group != nil {
		return buildOr(t.Group)
	}
	return buildCondition(t.Condition)
}

func buildCondition(c *conditionExpr) (Node, error) {
	op, ok := ParseOperator(c.Operator)
	if !ok {
		return nil, &SyntaxError{Line: c.Pos.Line, Column: c.Pos.Column, Msg: "unknown operator " + strconv.Quote(c.Operator)}
	}
	v, err := buildLiteral(&c.Value)
	if err != nil {
		return nil, err
	}
	return &Condition{Attribute: c.Attribute, Operator: op, Value: v}, nil
}

func buildLiteral(l *literalExpr) (Value, error) {
	switch {
	case l.Number != nil:
		n, err := strconv.ParseFloat(*l.Number, 64)
		if err != nil || math.IsInf(n, 0) {
			return Value{}, &SyntaxError{Line: l.Pos.Line, Column: l.Pos.Column, Msg: "number out of range: " + *l.Number}
		}
		return Number(n), nil
	case l.String != nil:
		return String(unquoteString(*l.String)), nil
	case l.Bool != nil:
		return Bool(strings.EqualFold(*l.Bool, "true")), nil
	default:
		return Value{}, &SyntaxError{Line: l.Pos.Line, Column: l.Pos.Column, Msg: "missing operand"}
	}
}

// ParseOperator maps accepted operator spellings to their canonical form.
func ParseOperator(s string) (Operator, bool) {
	switch strings.TrimSpace(s) {
	case "=", "==":
		return OpEq, true
	case "!=", "<>":
		return OpNeq, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGte, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLte, true
	default:
		return "", false
	}
}

// ParseConnective accepts AND/OR in any case.
func ParseConnective(s string) (Connective, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AND", "&&":
		return And, true
	case "OR", "||":
		return Or, true
	default:
		return "", false
	}
}

// unquoteString strips the surrounding quotes and resolves backslash escapes;
// a backslash makes the following character literal.
func unquoteString(quoted string) string {
	body := quoted[1 : len(quoted)-1]
	if !strings.Contains(body, `\`) {
		return body
	}
	var b strings.Builder
	b.Grow(len(body))
	escaped := false
	for _, r := range body {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}
