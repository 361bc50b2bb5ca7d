package intake

import "errors"

var (
	// ErrNotFound is returned when no intake matches the id.
	ErrNotFound = errors.New("intake not found")

	// ErrInvalidBody is returned when the submission is not a JSON object.
	ErrInvalidBody = errors.New("request body must be a JSON object")
)
