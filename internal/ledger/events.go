package ledger

type EventType string

const (
	EventProviderRegistered EventType = "provider_registered"
	EventProviderUpdated    EventType = "provider_updated"
	EventFundsAdded         EventType = "funds_added"
	EventJobRequested       EventType = "job_requested"
	EventJobCompleted       EventType = "job_completed"
	EventEarningsWithdrawn  EventType = "earnings_withdrawn"
)

// Event describes one committed ledger operation.
//
// For provider events Resources and Amount carry the new capacity and price.
// For job events Amount is the job's total cost and Counterparty the other
// side of the job.
type Event struct {
	Type         EventType `json:"type"`
	Caller       string    `json:"caller"`
	Counterparty string    `json:"counterparty,omitempty"`
	JobID        uint64    `json:"job_id,omitempty"`
	Resources    uint64    `json:"resources,omitempty"`
	Amount       uint64    `json:"amount,omitempty"`
}

// Listener is notified after each committed operation, in commit order.
// OnEvent runs while the ledger is locked: it must not block and must not
// call back into the ledger.
type Listener interface {
	OnEvent(e Event)
}

type ListenerFunc func(e Event)

func (f ListenerFunc) OnEvent(e Event) {
	f(e)
}
