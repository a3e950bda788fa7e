// Package models defines the per-round records: the round itself and the
// numbers each identity played in it.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Round is one weekly draw. WinningNumbers and BonusNumber stay empty until
// an operator records the official result.
type Round struct {
	ID             uuid.UUID  `json:"id"`
	RoundNumber    int        `json:"round_number"`
	DrawDate       string     `json:"draw_date"`
	WinningNumbers []int      `json:"winning_numbers,omitempty"`
	BonusNumber    *int       `json:"bonus_number,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	WinningSetAt   *time.Time `json:"winning_set_at,omitempty"`
}

// HasWinningNumbers reports whether the official result has been recorded.
func (r Round) HasWinningNumbers() bool {
	return len(r.WinningNumbers) > 0
}

// IdentityRound is the number set one identity played in one round. The
// (IdentityID, RoundNumber) pair is unique; re-generation replaces the row.
// MatchedCount is nil until winning numbers are known.
type IdentityRound struct {
	ID           uuid.UUID `json:"id"`
	IdentityID   uuid.UUID `json:"identity_id"`
	Name         string    `json:"name"`
	RoundNumber  int       `json:"round_number"`
	Numbers      []int     `json:"numbers"`
	MatchedCount *int      `json:"matched_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
