// internal/models/contractor.go
package models

import "time"

// Contractor is the profile record this core reads to validate claim
// eligibility. It is owned by the (external) account workflows; only the
// fields the dispatch core consumes are modeled here.
type Contractor struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Skills     []string  `json:"skills"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}
