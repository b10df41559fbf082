package engine

import (
	"fmt"

	"github.com/TimurManjosov/gorules/internal/rules"
)

// OperatorHandler evaluates one condition operator. recordValue comes from the
// evaluation record, literal from the rule. Incompatible kinds fail with
// rules.ErrTypeMismatch instead of returning false.
type OperatorHandler interface {
	Check(recordValue, literal rules.Value) (bool, error)
}

var operatorHandlers = map[rules.Operator]OperatorHandler{
	rules.OpEq:  equalsHandler{},
	rules.OpNeq: notEqualsHandler{},
	rules.OpGt:  numericCompareHandler{op: rules.OpGt, cmp: func(a, b float64) bool { return a > b }},
	rules.OpLt:  numericCompareHandler{op: rules.OpLt, cmp: func(a, b float64) bool { return a < b }},
	rules.OpGte: numericCompareHandler{op: rules.OpGte, cmp: func(a, b float64) bool { return a >= b }},
	rules.OpLte: numericCompareHandler{op: rules.OpLte, cmp: func(a, b float64) bool { return a <= b }},
}

func getOperatorHandler(op rules.Operator) (OperatorHandler, bool) {
	normalized, ok := rules.ParseOperator(string(op))
	if !ok {
		return nil, false
	}
	h, ok := operatorHandlers[normalized]
	return h, ok
}

type equalsHandler struct{}

func (equalsHandler) Check(recordValue, literal rules.Value) (bool, error) {
	if recordValue.Kind != literal.Kind {
		return false, mismatch(rules.OpEq, recordValue, literal)
	}
	return recordValue.Equal(literal), nil
}

type notEqualsHandler struct{}

func (notEqualsHandler) Check(recordValue, literal rules.Value) (bool, error) {
	eq, err := equalsHandler{}.Check(recordValue, literal)
	if err != nil {
		return false, mismatch(rules.OpNeq, recordValue, literal)
	}
	return !eq, nil
}

type numericCompareHandler struct {
	op  rules.Operator
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(recordValue, literal rules.Value) (bool, error) {
	if recordValue.Kind != rules.KindNumber || literal.Kind != rules.KindNumber {
		return false, mismatch(h.op, recordValue, literal)
	}
	return h.cmp(recordValue.Num, literal.Num), nil
}

func mismatch(op rules.Operator, recordValue, literal rules.Value) error {
	return fmt.Errorf("%w: cannot apply %q to %s %s and %s %s",
		rules.ErrTypeMismatch, op, recordValue.Kind, recordValue, literal.Kind, literal)
}
