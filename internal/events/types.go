// Package events publishes rule change notifications to an external sink.
package events

import (
	"time"

	"github.com/TimurManjosov/gorules/internal/store"
)

// Event types emitted after successful writes.
const (
	EventRuleCreated  = "rule.created"
	EventRuleModified = "rule.modified"
	EventRuleDeleted  = "rule.deleted"
)

// Event describes one change to a stored rule.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Resource  Resource  `json:"resource"`
	Data      EventData `json:"data"`
	Metadata  Metadata  `json:"metadata"`
}

// Resource identifies the rule that changed.
type Resource struct {
	Type string `json:"type"` // always "rule"
	ID   string `json:"id"`
}

// EventData holds the rule before and after the change. Before is nil on
// create and After is nil on delete.
type EventData struct {
	Before *store.Rule `json:"before,omitempty"`
	After  *store.Rule `json:"after,omitempty"`
}

// Metadata carries request context.
type Metadata struct {
	RequestID string `json:"requestId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// Publisher accepts events for asynchronous delivery. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
