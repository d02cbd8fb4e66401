// Package assignment distributes new appointments and chats across the agent
// roster in round-robin order.
package assignment

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAgentsAvailable is returned when the roster is empty at assignment time.
	ErrNoAgentsAvailable = errors.New("assignment: no agents available")
	// ErrInvalidCount is returned for counter values below 1.
	ErrInvalidCount = errors.New("assignment: counter value must be >= 1")
)

// Assign maps the counter value produced for a new document onto a roster index.
// The first document ever counted (count 1) lands on index 0.
func Assign(count int64, rosterSize int) (int, error) {
	if rosterSize <= 0 {
		return 0, ErrNoAgentsAvailable
	}
	if count < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}
	return int((count - 1) % int64(rosterSize)), nil
}
