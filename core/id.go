package core

import "github.com/google/uuid"

// NewID generates a new unique identifier used for correlation ids, span ids
// and handoff records.
func NewID() string { return uuid.NewString() }
