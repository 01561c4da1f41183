// Package id provides unique identifier generation for jobs.
package id

import "github.com/google/uuid"

// Generate creates a new random (version 4) job ID in canonical form.
// Example: 3b241101-e2bb-4255-8caf-4136c566a962
func Generate() string {
	return uuid.NewString()
}

// Valid reports whether s is a job ID produced by Generate. Anything else,
// including path fragments, is rejected.
func Valid(s string) bool {
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.String() == s && u.Version() == 4
}
