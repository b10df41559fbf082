package engine

import (
	"fmt"

	"github.com/TimurManjosov/gorules/internal/rules"
)

// Evaluate applies a rule tree to a record.
//
// Children of a logical node are evaluated left to right in stored order.
// AND stops at the first false child and OR at the first true child, so
// conditions after the deciding child are never resolved. A condition whose
// attribute is absent from rec fails with rules.ErrValidation; an attribute
// whose kind does not fit the operator or literal fails with
// rules.ErrTypeMismatch.
func Evaluate(node rules.Node, rec rules.Record) (bool, error) {
	return evalNode(node, rec, nil, 0)
}

// Evaluator checks rules and records against a schema before evaluating,
// so declared attributes report type conflicts before any condition runs.
type Evaluator struct {
	schema *rules.Schema
}

// New returns an Evaluator. A nil schema disables the up-front checks.
func New(schema *rules.Schema) *Evaluator {
	return &Evaluator{schema: schema}
}

// Schema returns the attribute schema in use, possibly nil.
func (e *Evaluator) Schema() *rules.Schema {
	return e.schema
}

// Check runs the schema checks only.
func (e *Evaluator) Check(node rules.Node, rec rules.Record) error {
	if node == nil {
		return fmt.Errorf("%w: rule has no structure", rules.ErrValidation)
	}
	if e.schema == nil {
		return nil
	}
	if err := e.schema.CheckRule(node); err != nil {
		return err
	}
	return e.schema.ValidateRecord(rec)
}

// CheckAll runs the schema checks and then resolves every condition in
// node, without short-circuiting. Each attribute must be present in rec
// and fit its operator and literal. Engines that do not stop early, or
// that coerce missing values, must pass this before running.
func (e *Evaluator) CheckAll(node rules.Node, rec rules.Record) error {
	if err := e.Check(node, rec); err != nil {
		return err
	}
	for _, c := range rules.Conditions(node) {
		if _, err := evalCondition(c, rec); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate checks node and rec against the schema, then evaluates.
func (e *Evaluator) Evaluate(node rules.Node, rec rules.Record) (bool, error) {
	if err := e.Check(node, rec); err != nil {
		return false, err
	}
	return Evaluate(node, rec)
}

// EvaluateWithTrace is Evaluate, also recording each node visited.
func (e *Evaluator) EvaluateWithTrace(node rules.Node, rec rules.Record) (EvaluationResult, error) {
	if err := e.Check(node, rec); err != nil {
		return EvaluationResult{}, err
	}
	tr := &tracer{}
	ok, err := evalNode(node, rec, tr, 0)
	if err != nil {
		return EvaluationResult{}, err
	}
	return EvaluationResult{Result: ok, Trace: tr.steps}, nil
}

type tracer struct {
	steps []TraceStep
}

func (t *tracer) begin(n rules.Node, depth int) int {
	if t == nil {
		return -1
	}
	t.steps = append(t.steps, TraceStep{Expression: rules.Format(n), Depth: depth})
	return len(t.steps) - 1
}

func (t *tracer) end(idx int, result bool) {
	if t == nil || idx < 0 {
		return
	}
	t.steps[idx].Result = result
	if result {
		t.steps[idx].Reason = ReasonMatched
	} else {
		t.steps[idx].Reason = ReasonNotMatched
	}
}

func (t *tracer) skip(nodes []rules.Node, depth int) {
	if t == nil {
		return
	}
	for _, n := range nodes {
		t.steps = append(t.steps, TraceStep{Expression: rules.Format(n), Depth: depth, Reason: ReasonSkipped})
	}
}

func evalNode(n rules.Node, rec rules.Record, tr *tracer, depth int) (bool, error) {
	idx := tr.begin(n, depth)
	var (
		ok  bool
		err error
	)
	switch x := n.(type) {
	case *rules.Condition:
		ok, err = evalCondition(x, rec)
	case *rules.Logical:
		ok, err = evalLogical(x, rec, tr, depth)
	default:
		err = fmt.Errorf("%w: unsupported node %T", rules.ErrValidation, n)
	}
	if err != nil {
		return false, err
	}
	tr.end(idx, ok)
	return ok, nil
}

func evalLogical(l *rules.Logical, rec rules.Record, tr *tracer, depth int) (bool, error) {
	if len(l.Children) == 0 {
		return false, fmt.Errorf("%w: %s node has no children", rules.ErrValidation, l.Connective)
	}
	// AND short-circuits on false, OR on true.
	stopOn := l.Connective == rules.Or
	if l.Connective != rules.And && l.Connective != rules.Or {
		return false, fmt.Errorf("%w: unsupported connective %q", rules.ErrValidation, l.Connective)
	}
	for i, c := range l.Children {
		ok, err := evalNode(c, rec, tr, depth+1)
		if err != nil {
			return false, err
		}
		if ok == stopOn {
			tr.skip(l.Children[i+1:], depth+1)
			return stopOn, nil
		}
	}
	return !stopOn, nil
}

func evalCondition(c *rules.Condition, rec rules.Record) (bool, error) {
	v, ok := rec[c.Attribute]
	if !ok {
		return false, fmt.Errorf("%w: record has no attribute %q", rules.ErrValidation, c.Attribute)
	}
	h, ok := getOperatorHandler(c.Operator)
	if !ok {
		return false, fmt.Errorf("%w: unsupported operator %q", rules.ErrValidation, c.Operator)
	}
	res, err := h.Check(v, c.Value)
	if err != nil {
		return false, fmt.Errorf("attribute %q: %w", c.Attribute, err)
	}
	return res, nil
}
