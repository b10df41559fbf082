package engine

// Reason explains the outcome of one traced node.
type Reason string

const (
	ReasonMatched    Reason = "MATCHED"
	ReasonNotMatched Reason = "NOT_MATCHED"
	// ReasonSkipped marks a child never evaluated because an earlier
	// sibling already decided its parent.
	ReasonSkipped Reason = "SKIPPED"
)

// TraceStep records the verdict of one node, in evaluation order.
type TraceStep struct {
	Expression string `json:"expression"`
	Depth      int    `json:"depth"`
	Result     bool   `json:"result"`
	Reason     Reason `json:"reason"`
}

// EvaluationResult is the output of EvaluateWithTrace.
type EvaluationResult struct {
	Result bool        `json:"result"`
	Trace  []TraceStep `json:"trace,omitempty"`
}
