package api

import (
	"encoding/json"

	"github.com/TimurManjosov/gorules/internal/rules"
)

// createRuleRequest is the body of POST /api/rules/create.
type createRuleRequest struct {
	RuleString string `json:"ruleString"`
}

// modifyRuleRequest is the body of POST /api/rules/modify.
type modifyRuleRequest struct {
	RuleID        string `json:"ruleId"`
	NewRuleString string `json:"newRuleString"`
}

// combineRequest is the body of POST /api/rules/combine.
// Operator defaults to the configured strategy; Save stores the result.
type combineRequest struct {
	Rules    []string `json:"rules"`
	Operator string   `json:"operator,omitempty"`
	Save     bool     `json:"save,omitempty"`
}

type combineResponse struct {
	CombinedAST rules.Node `json:"combinedAST"`
	RuleString  string     `json:"ruleString"`
	ID          string     `json:"_id,omitempty"`
}

// evaluateRequest is the body of POST /api/rules/evaluate.
type evaluateRequest struct {
	RuleID  string          `json:"ruleId"`
	Data    json.RawMessage `json:"data"`
	Explain bool            `json:"explain,omitempty"`
	Engine  string          `json:"engine,omitempty"`
}

type exportResponse struct {
	ID         string `json:"_id"`
	Format     string `json:"format"`
	Expression any    `json:"expression"`
}
