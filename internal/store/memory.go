package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It keeps rules in a map plus an id slice for insertion order, guarded by an
// RWMutex. Stored values are replaced, never mutated, so a reader holding a
// Rule keeps a consistent copy.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]Rule
	order []string
	now   func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules: make(map[string]Rule),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new rule at the end of the insertion order.
func (m *MemoryStore) Create(ctx context.Context, rule Rule) (*Rule, error) {
	if err := validateForWrite(rule); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[rule.ID]; exists {
		return nil, ErrDuplicateID
	}
	now := m.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	m.rules[rule.ID] = rule
	m.order = append(m.order, rule.ID)
	return &rule, nil
}

// Get retrieves a single rule by id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, exists := m.rules[id]
	if !exists {
		return nil, ErrRuleNotFound
	}
	return &rule, nil
}

// List returns all rules in insertion order.
func (m *MemoryStore) List(ctx context.Context) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Rule, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.rules[id])
	}
	return result, nil
}

// Update swaps in the new rule string and AST under the write lock.
func (m *MemoryStore) Update(ctx context.Context, rule Rule) (*Rule, error) {
	if err := validateForWrite(rule); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.rules[rule.ID]
	if !exists {
		return nil, ErrRuleNotFound
	}
	updated := Rule{
		ID:         existing.ID,
		RuleString: rule.RuleString,
		AST:        rule.AST,
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  m.now(),
	}
	m.rules[rule.ID] = updated
	return &updated, nil
}

// Delete removes a rule and its position in the insertion order.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[id]; !exists {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op for MemoryStore as there are no resources to release.
func (m *MemoryStore) Close() error {
	return nil
}
