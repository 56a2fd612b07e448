package observer

import "collections-engine/internal/calls"

// OutcomeApplied publishes a call.outcome event, so a Bus can be handed to
// the dispatcher as its notifier.
func (b *Bus) OutcomeApplied(l calls.CallLog) {
	b.Publish(Event{Type: TypeCallOutcome, Data: l})
}
