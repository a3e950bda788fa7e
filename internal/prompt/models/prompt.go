// Package models defines generation prompt templates.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Type selects which pipeline a prompt template serves.
type Type string

const (
	// TypeFixed prompts generate the one-time fixed numbers for new names.
	TypeFixed Type = "fixed"
	// TypeWeekly prompts generate the per-round numbers for active names.
	TypeWeekly Type = "weekly"
)

// Valid reports whether t is a known prompt type.
func (t Type) Valid() bool {
	return t == TypeFixed || t == TypeWeekly
}

// Prompt is a stored template. Content must contain the {names} placeholder,
// replaced at generation time with a JSON array of names. At most one prompt
// per type is active at any moment.
type Prompt struct {
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
