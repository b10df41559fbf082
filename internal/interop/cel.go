package interop

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/google/cel-go/cel"
)

// ToCEL renders n as a CEL expression. Numbers are written as doubles so
// they compare against double-typed variables.
func ToCEL(n rules.Node) string {
	var b strings.Builder
	writeCEL(&b, n, false)
	return b.String()
}

func writeCEL(b *strings.Builder, n rules.Node, nested bool) {
	switch x := n.(type) {
	case *rules.Condition:
		op := string(x.Operator)
		if x.Operator == rules.OpEq {
			op = "=="
		}
		b.WriteString(x.Attribute)
		b.WriteByte(' ')
		b.WriteString(op)
		b.WriteByte(' ')
		b.WriteString(celLiteral(x.Value))
	case *rules.Logical:
		if len(x.Children) == 1 {
			writeCEL(b, x.Children[0], nested)
			return
		}
		sep := " && "
		if x.Connective == rules.Or {
			sep = " || "
		}
		if nested {
			b.WriteByte('(')
		}
		for i, c := range x.Children {
			if i > 0 {
				b.WriteString(sep)
			}
			writeCEL(b, c, true)
		}
		if nested {
			b.WriteByte(')')
		}
	}
}

func celLiteral(v rules.Value) string {
	switch v.Kind {
	case rules.KindNumber:
		s := strconv.FormatFloat(v.Num, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case rules.KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return strconv.Quote(v.Str)
	}
}

// CompileCEL type-checks the CEL form of n and returns a runnable program.
// Attributes declared in schema get their declared type; others take the
// type of the literal they are compared with. A failed type check wraps
// rules.ErrTypeMismatch.
func CompileCEL(n rules.Node, schema *rules.Schema) (cel.Program, error) {
	env, err := cel.NewEnv(celVariables(n, schema)...)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	ast, iss := env.Compile(ToCEL(n))
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", rules.ErrTypeMismatch, iss.Err())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("%w: expression yields %s, not bool", rules.ErrTypeMismatch, ast.OutputType())
	}
	return env.Program(ast)
}

// EvaluateCEL runs a compiled program against rec.
func EvaluateCEL(prg cel.Program, rec rules.Record) (bool, error) {
	out, _, err := prg.Eval(rec.Map())
	if err != nil {
		return false, fmt.Errorf("cel: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: cel result is %T", rules.ErrTypeMismatch, out.Value())
	}
	return result, nil
}

func celVariables(n rules.Node, schema *rules.Schema) []cel.EnvOption {
	kinds := make(map[string]rules.ValueKind)
	if schema != nil {
		for _, name := range schema.Attributes() {
			kind, _ := schema.Lookup(name)
			kinds[name] = kind
		}
	}
	for _, c := range rules.Conditions(n) {
		if _, ok := kinds[c.Attribute]; !ok {
			kinds[c.Attribute] = c.Value.Kind
		}
	}

	opts := make([]cel.EnvOption, 0, len(kinds))
	for name, kind := range kinds {
		opts = append(opts, cel.Variable(name, celType(kind)))
	}
	return opts
}

func celType(k rules.ValueKind) *cel.Type {
	switch k {
	case rules.KindNumber:
		return cel.DoubleType
	case rules.KindBool:
		return cel.BoolType
	default:
		return cel.StringType
	}
}
