package util

import "github.com/google/uuid"

// NewID returns a random (version 4) UUID string.
func NewID() string {
	return uuid.NewString()
}

// IsID reports whether s is a canonical hyphenated UUID, the shape NewID issues.
func IsID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}
