// Package persist holds the write policy shared by every storage call site.
package persist

import (
	"github.com/wolfman30/onboardpro/internal/apperr"
	"github.com/wolfman30/onboardpro/pkg/logging"
)

// Criticality states whether a storage write is the point of the request or a
// side effect of it.
type Criticality int

const (
	// BestEffort writes are logged on failure and never reach the caller.
	BestEffort Criticality = iota
	// Required writes fail the request with a persistence error.
	Required
)

func (c Criticality) String() string {
	if c == Required {
		return "required"
	}
	return "best_effort"
}

// Observer is notified of every swallowed failure. Metrics implement it.
type Observer interface {
	ObserveBestEffortFailure(operation string)
}

// Handle applies the policy to the outcome of a write. For BestEffort it
// always returns nil. For Required it returns a persistence error carrying
// message for the caller.
func (c Criticality) Handle(logger *logging.Logger, obs Observer, operation, message string, err error, attrs ...any) error {
	if err == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	args := append([]any{"operation", operation, "criticality", c.String(), "error", err}, attrs...)
	if c == Required {
		logger.Error("storage write failed", args...)
		return apperr.Persistence(message, err)
	}
	logger.Warn("best-effort storage write failed", args...)
	if obs != nil {
		obs.ObserveBestEffortFailure(operation)
	}
	return nil
}
