// Package notify implements the Notifier sink named by the supervisor's
// external-collaborator boundary: a small interface the supervisor calls
// opportunistically on lifecycle events, with concrete Log/Webhook/Multi
// implementations. Grounded on
// original_source/crates/oxidepm-notify/src/lib.rs's Notifier trait and
// NotificationManager (event-type filtering via should_notify, best-effort
// fan-out to configured channels), adapted from its single Telegram backend
// to a Log + Webhook pair matching what the teacher's own outbound sinks
// use (internal/history's multi-sink fan-out: every sink best-effort,
// errors logged not propagated).
package notify

import (
	"context"
)

// Notifier delivers process events to an external channel. Implementations
// must not block the supervisor for long; Notify should return quickly or
// be called from a goroutine by the caller.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Filter restricts delivery to a subset of event types. An empty Filter
// notifies every event type, matching should_notify's "events.is_empty()"
// fallback.
type Filter struct {
	types map[EventType]struct{}
}

// NewFilter builds a Filter from a list of event type names. An empty or
// nil list means "notify everything".
func NewFilter(types []EventType) Filter {
	if len(types) == 0 {
		return Filter{}
	}
	m := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		m[t] = struct{}{}
	}
	return Filter{types: m}
}

func (f Filter) allows(t EventType) bool {
	if len(f.types) == 0 {
		return true
	}
	_, ok := f.types[t]
	return ok
}
