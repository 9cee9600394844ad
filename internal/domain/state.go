package domain

// State is a user's position in the gating flow.
type State string

const (
	StateNew                  State = "NEW"
	StateAwaitingSubscription State = "AWAITING_SUBSCRIPTION"
	// StateConfirmed only exists while a confirmation is applied; StateOf
	// never returns it.
	StateConfirmed            State = "CONFIRMED"
	StateAwaitingCode         State = "AWAITING_CODE"
)

// StateOf derives the state from the stored record. CONFIRMED is transient:
// a confirmed user is always waiting for the next code.
func StateOf(record UserRecord, exists bool) State {
	switch {
	case !exists:
		return StateNew
	case record.Confirmed:
		return StateAwaitingCode
	default:
		return StateAwaitingSubscription
	}
}
