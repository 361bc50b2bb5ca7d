package payments

// Status is the lifecycle state of a checkout attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{StatusPending, StatusSucceeded, StatusFailed, StatusCancelled}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	for _, candidate := range allStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Terminal statuses never change again, except by rewriting the same value.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusCancelled
}

// CanTransition reports whether a record in from may be moved to to.
// Rewriting the current status is always allowed so webhook replays are no-ops.
// failed is not terminal: a buyer can retry a declined card inside the same
// checkout session and complete it.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.Terminal() || to == StatusPending {
		return false
	}
	return from.Valid() && to.Valid()
}

// allowedSources lists the statuses a record may be in for a write of to to apply.
func allowedSources(to Status) []string {
	var out []string
	for _, from := range allStatuses {
		if CanTransition(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}
