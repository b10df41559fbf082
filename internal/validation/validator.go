// Package validation checks the shape of API requests before they reach the
// rule service. Rule syntax itself is checked by the parser.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/TimurManjosov/gorules/internal/rules"
)

const (
	// MaxRuleStringLength is the maximum length of a rule string in bytes
	MaxRuleStringLength = rules.MaxRuleLength
	// MaxIDLength is the maximum length of a rule id
	MaxIDLength = 64
	// MaxCombineRules is the maximum number of rules in one combine request
	MaxCombineRules = 100
)

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool
	Errors map[string]string
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  true,
		Errors: make(map[string]string),
	}
}

// AddError adds a field error and marks the result as invalid
func (v *ValidationResult) AddError(field, message string) {
	v.Valid = false
	v.Errors[field] = message
}

// Merge combines another validation result into this one
func (v *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	for field, message := range other.Errors {
		v.AddError(field, message)
	}
}

// ValidateRuleString validates a rule string field
func ValidateRuleString(field, s string) *ValidationResult {
	result := NewValidationResult()

	if strings.TrimSpace(s) == "" {
		result.AddError(field, "Rule string is required")
		return result
	}
	if len(s) > MaxRuleStringLength {
		result.AddError(field, fmt.Sprintf("Rule string must not exceed %d bytes", MaxRuleStringLength))
		return result
	}
	if !utf8.ValidString(s) {
		result.AddError(field, "Rule string must be valid UTF-8")
	}
	return result
}

// ValidateRuleID validates a rule id field
func ValidateRuleID(field, id string) *ValidationResult {
	result := NewValidationResult()
	id = strings.TrimSpace(id)

	if id == "" {
		result.AddError(field, "Rule id is required")
		return result
	}
	if utf8.RuneCountInString(id) > MaxIDLength {
		result.AddError(field, fmt.Sprintf("Rule id must not exceed %d characters", MaxIDLength))
	}
	return result
}

// ValidateModify validates a modify request
func ValidateModify(id, ruleString string) *ValidationResult {
	result := ValidateRuleID("ruleId", id)
	result.Merge(ValidateRuleString("newRuleString", ruleString))
	return result
}

// ValidateCombine validates a combine request. Fewer than two rules is left
// to the combiner, which reports it as a rule error.
func ValidateCombine(ruleStrings []string, operator string) *ValidationResult {
	result := NewValidationResult()

	if ruleStrings == nil {
		result.AddError("rules", "Rules are required")
		return result
	}
	if len(ruleStrings) > MaxCombineRules {
		result.AddError("rules", fmt.Sprintf("At most %d rules can be combined", MaxCombineRules))
	}
	for i, s := range ruleStrings {
		if len(s) > MaxRuleStringLength {
			result.AddError(fmt.Sprintf("rules[%d]", i), fmt.Sprintf("Rule string must not exceed %d bytes", MaxRuleStringLength))
		}
	}
	if op := strings.TrimSpace(operator); op != "" {
		if _, ok := rules.ParseConnective(op); !ok {
			result.AddError("operator", "Operator must be AND or OR")
		}
	}
	return result
}

// ValidateEvaluate validates an evaluate request
func ValidateEvaluate(ruleID string, hasData bool) *ValidationResult {
	result := ValidateRuleID("ruleId", ruleID)
	if !hasData {
		result.AddError("data", "Data is required")
	}
	return result
}
