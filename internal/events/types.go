package events

// Event enumerates high-level topics inside the gateway.
type Event string

const (
	EventConnState     Event = "conn_state"
	EventOrderPlaced   Event = "order.placed"
	EventOrderRejected Event = "order.rejected"
	EventPositionClose Event = "position.closed"
)

// sticky reports whether the topic is state-like (latest value retained
// and replayed to new subscribers) rather than a stream of occurrences.
func (e Event) sticky() bool {
	return e == EventConnState
}
