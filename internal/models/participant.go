package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a per-board session record for a user who joined the board
// through its access key. One row per (board, user); rejoining refreshes
// LastSeenAt. Participant rows are removed with the board by the cascade
// delete.
type Participant struct {
	ID         uuid.UUID `json:"id" db:"id"`
	BoardID    uuid.UUID `json:"board_id" db:"board_id"`
	UserHash   string    `json:"user_hash" db:"user_hash"`
	Name       string    `json:"name" db:"name"`
	JoinedAt   time.Time `json:"joined_at" db:"joined_at"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// NewParticipant creates a participant session for userHash on the board
func NewParticipant(boardID uuid.UUID, userHash, name string) *Participant {
	now := time.Now()
	return &Participant{
		ID:         uuid.New(),
		BoardID:    boardID,
		UserHash:   userHash,
		Name:       name,
		JoinedAt:   now,
		LastSeenAt: now,
	}
}
