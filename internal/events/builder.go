package events

import (
	"context"
	"time"

	"github.com/TimurManjosov/gorules/internal/store"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ipKey struct{}

// WithIPAddress stores the client address for NewEventBuilder.
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// EventBuilder provides a fluent API for constructing events.
//
// Usage:
//
//	event := events.NewEventBuilder(ctx).
//		ForRule(id).
//		WithStates(before, after).
//		Build()
type EventBuilder struct {
	event Event
}

// NewEventBuilder creates a builder with metadata taken from ctx: the chi
// request id and the address stored by WithIPAddress.
func NewEventBuilder(ctx context.Context) *EventBuilder {
	md := Metadata{RequestID: middleware.GetReqID(ctx)}
	if ip, ok := ctx.Value(ipKey{}).(string); ok {
		md.IPAddress = ip
	}
	return &EventBuilder{
		event: Event{
			Timestamp: time.Now().UTC(),
			Metadata:  md,
		},
	}
}

// ForRule sets the resource to the rule with the given id.
func (b *EventBuilder) ForRule(id string) *EventBuilder {
	b.event.Resource = Resource{Type: "rule", ID: id}
	return b
}

// WithStates sets the before and after states. The event type follows:
//   - before=nil, after!=nil → created
//   - before!=nil, after=nil → deleted
//   - both non-nil → modified
func (b *EventBuilder) WithStates(before, after *store.Rule) *EventBuilder {
	b.event.Data.Before = before
	b.event.Data.After = after

	switch {
	case before == nil && after != nil:
		b.event.Type = EventRuleCreated
	case before != nil && after == nil:
		b.event.Type = EventRuleDeleted
	case before != nil && after != nil:
		b.event.Type = EventRuleModified
	}
	return b
}

// Build returns the event with a fresh delivery id.
func (b *EventBuilder) Build() Event {
	ev := b.event
	ev.ID = uuid.NewString()
	return ev
}
