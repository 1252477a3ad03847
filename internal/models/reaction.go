package models

import (
	"time"

	"github.com/google/uuid"
)

// Reaction records a single user's reaction to a card. A user holds at most
// one reaction per card, enforced by a unique (card_id, user_hash) constraint
// in the store; the card's counters are the aggregate view, the reaction rows
// are the ledger.
type Reaction struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CardID    uuid.UUID `json:"card_id" db:"card_id"`
	UserHash  string    `json:"-" db:"user_hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewReaction creates a reaction by userHash on the given card
func NewReaction(cardID uuid.UUID, userHash string) *Reaction {
	return &Reaction{
		ID:        uuid.New(),
		CardID:    cardID,
		UserHash:  userHash,
		CreatedAt: time.Now(),
	}
}
