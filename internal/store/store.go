package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TimurManjosov/gorules/internal/rules"
)

// ErrRuleNotFound is returned by Get, Update and Delete for unknown ids.
// It matches rules.ErrNotFound.
var ErrRuleNotFound = fmt.Errorf("rule %w", rules.ErrNotFound)

// ErrDuplicateID is returned by Create when the id is already taken.
var ErrDuplicateID = errors.New("rule id already exists")

// Store defines the interface for rule persistence operations.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	// Create persists a new rule. ID, RuleString and AST must be set;
	// timestamps are assigned by the store.
	Create(ctx context.Context, rule Rule) (*Rule, error)

	// Get retrieves a single rule by id.
	// Returns ErrRuleNotFound if no rule has that id.
	Get(ctx context.Context, id string) (*Rule, error)

	// List returns every rule in insertion order.
	// Returns an empty slice if the store is empty.
	List(ctx context.Context) ([]Rule, error)

	// Update replaces the rule string and AST of an existing rule in one step.
	// Concurrent readers observe either the old or the new rule.
	// Returns ErrRuleNotFound if no rule has that id.
	Update(ctx context.Context, rule Rule) (*Rule, error)

	// Delete removes a rule. Returns ErrRuleNotFound if no rule has that id.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	// After Close is called, the store should not be used.
	Close() error
}

// Rule is a stored rule: its id, canonical rule string and parsed tree.
// RuleString and AST always describe the same rule.
type Rule struct {
	ID         string     `json:"_id"`
	RuleString string     `json:"ruleString"`
	AST        rules.Node `json:"ast"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type ruleJSON struct {
	ID         string          `json:"_id"`
	RuleString string          `json:"ruleString"`
	AST        json.RawMessage `json:"ast"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// UnmarshalJSON decodes the AST through rules.DecodeNode.
// A missing AST is rebuilt from the rule string.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var (
		node rules.Node
		err  error
	)
	switch {
	case len(raw.AST) > 0 && string(raw.AST) != "null":
		node, err = rules.DecodeNode(raw.AST)
	case raw.RuleString != "":
		node, err = rules.Parse(raw.RuleString)
	}
	if err != nil {
		return fmt.Errorf("rule %s: %w", raw.ID, err)
	}
	*r = Rule{
		ID:         raw.ID,
		RuleString: raw.RuleString,
		AST:        node,
		CreatedAt:  raw.CreatedAt,
		UpdatedAt:  raw.UpdatedAt,
	}
	return nil
}

func validateForWrite(rule Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id must not be empty", rules.ErrValidation)
	}
	if rule.RuleString == "" || rule.AST == nil {
		return fmt.Errorf("%w: rule %s has no rule string or structure", rules.ErrValidation, rule.ID)
	}
	return nil
}
