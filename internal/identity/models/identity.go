// Package models defines the registered-name identity and its lifecycle.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is an identity's lifecycle state.
type Status string

const (
	// StatusPending means the name is registered but has no fixed numbers yet.
	StatusPending Status = "pending"
	// StatusActive means fixed numbers are assigned and the name joins draws.
	StatusActive Status = "active"
	// StatusRejected means an operator declined the name.
	StatusRejected Status = "rejected"
	// StatusDeleted means the name was removed; it can be revived by
	// registering it again.
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusRejected, StatusDeleted:
		return true
	}
	return false
}

// Identity is a registered name. Name is unique and immutable for the life of
// the record; FixedNumbers is set when the identity becomes active and is
// preserved across later status changes.
type Identity struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	FixedNumbers []int     `json:"fixed_numbers,omitempty"`
	RejectReason string    `json:"reject_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewIdentity creates a pending identity for a normalized name.
func NewIdentity(name string, now time.Time) Identity {
	return Identity{
		ID:        uuid.New(),
		Name:      name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Activate assigns fixed numbers and moves the identity to active.
func (i *Identity) Activate(numbers []int, now time.Time) {
	i.Status = StatusActive
	i.FixedNumbers = numbers
	i.RejectReason = ""
	i.UpdatedAt = now
}

// Reject moves the identity to rejected with an optional reason.
func (i *Identity) Reject(reason string, now time.Time) {
	i.Status = StatusRejected
	i.RejectReason = reason
	i.UpdatedAt = now
}

// Delete marks the identity deleted. The record is retained so the name can
// be revived later.
func (i *Identity) Delete(now time.Time) {
	i.Status = StatusDeleted
	i.UpdatedAt = now
}

// Revive returns a rejected or deleted identity to the pending queue.
func (i *Identity) Revive(now time.Time) {
	i.Status = StatusPending
	i.RejectReason = ""
	i.UpdatedAt = now
}
