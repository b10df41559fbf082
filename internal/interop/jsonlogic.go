// Package interop exports rule trees to other expression languages:
// JSON Logic (jsonlogic.com) and CEL.
package interop

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/diegoholiveira/jsonlogic/v3"
)

// Strict comparisons keep JSON Logic from coercing between kinds.
var jsonLogicOps = map[rules.Operator]string{
	rules.OpEq:  "===",
	rules.OpNeq: "!==",
	rules.OpGt:  ">",
	rules.OpGte: ">=",
	rules.OpLt:  "<",
	rules.OpLte: "<=",
}

// ToJSONLogic converts a rule tree into a JSON Logic document.
func ToJSONLogic(n rules.Node) (map[string]any, error) {
	switch x := n.(type) {
	case *rules.Condition:
		op, ok := jsonLogicOps[x.Operator]
		if !ok {
			return nil, fmt.Errorf("%w: operator %q", rules.ErrInvalidOperator, x.Operator)
		}
		return map[string]any{
			op: []any{map[string]any{"var": x.Attribute}, x.Value.Interface()},
		}, nil
	case *rules.Logical:
		children := make([]any, 0, len(x.Children))
		for _, c := range x.Children {
			doc, err := ToJSONLogic(c)
			if err != nil {
				return nil, err
			}
			children = append(children, doc)
		}
		key := "and"
		if x.Connective == rules.Or {
			key = "or"
		}
		return map[string]any{key: children}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported node %T", rules.ErrInvalidCondition, n)
	}
}

// EvaluateJSONLogic runs the JSON Logic form of n against rec.
// For complete, well-typed records it agrees with engine.Evaluate.
func EvaluateJSONLogic(n rules.Node, rec rules.Record) (bool, error) {
	doc, err := ToJSONLogic(n)
	if err != nil {
		return false, err
	}
	ruleBytes, err := rules.EncodeJSON(doc)
	if err != nil {
		return false, err
	}
	dataBytes, err := json.Marshal(rec.Map())
	if err != nil {
		return false, err
	}

	var resultBuf bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(ruleBytes), bytes.NewReader(dataBytes), &resultBuf); err != nil {
		return false, fmt.Errorf("json logic: %w", err)
	}

	var result any
	if err := json.Unmarshal(resultBuf.Bytes(), &result); err != nil {
		return false, err
	}
	return isTruthy(result), nil
}

// isTruthy follows JavaScript-like truthiness rules.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
