// Package storage defines the persistence port shared by every backend.
//
// The port is interface-driven so the domain services stay testable against
// the in-memory backend while deployments choose the versioned file store or
// postgres without rewiring business code.
package storage

import (
	"context"

	identity "notto/internal/identity/models"
	lotto "notto/internal/lotto/models"
	prompt "notto/internal/prompt/models"
)

// Store is the full persistence surface. Single-record reads return
// sentinel.ErrNotFound when nothing matches; uniqueness violations surface
// sentinel.ErrConflict.
type Store interface {
	// SaveIdentity upserts by ID. Inserting a second identity with an
	// existing name fails with sentinel.ErrConflict.
	SaveIdentity(ctx context.Context, id identity.Identity) error
	FindIdentityByName(ctx context.Context, name string) (identity.Identity, error)
	ListIdentities(ctx context.Context) ([]identity.Identity, error)
	ListIdentitiesByStatus(ctx context.Context, status identity.Status) ([]identity.Identity, error)

	// CreateRound fails with sentinel.ErrConflict when the round number
	// already exists.
	CreateRound(ctx context.Context, r lotto.Round) error
	FindRound(ctx context.Context, roundNumber int) (lotto.Round, error)
	LatestRound(ctx context.Context) (lotto.Round, error)
	UpdateRound(ctx context.Context, r lotto.Round) error

	// UpsertIdentityRound replaces any existing row with the same
	// (identity, round) pair.
	UpsertIdentityRound(ctx context.Context, row lotto.IdentityRound) error
	ListIdentityRounds(ctx context.Context, roundNumber int) ([]lotto.IdentityRound, error)

	// SavePrompt upserts by ID. When p.IsActive is set, other prompts of the
	// same type are deactivated in the same write.
	SavePrompt(ctx context.Context, p prompt.Prompt) error
	ActivePrompt(ctx context.Context, t prompt.Type) (prompt.Prompt, error)
	ActivatePrompt(ctx context.Context, id string) error
	ListPrompts(ctx context.Context) ([]prompt.Prompt, error)

	// Version returns an opaque token identifying the current identity-set
	// state. ApplyChanges persists a batch of identity upserts atomically,
	// failing with sentinel.ErrVersionConflict when the store has moved past
	// baseVersion since it was read.
	Version(ctx context.Context) (string, error)
	ApplyChanges(ctx context.Context, baseVersion string, writes []identity.Identity) error
}
