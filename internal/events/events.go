// Package events defines the broadcast intents the core emits after each
// committed mutation. Intents describe what changed; delivery is the
// broadcaster's concern and is best-effort.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/retroflect/backend/internal/models"
)

// Type identifies the kind of mutation an event describes
type Type string

const (
	TypeBoardRenamed    Type = "board.renamed"
	TypeBoardClosed     Type = "board.closed"
	TypeBoardDeleted    Type = "board.deleted"
	TypeColumnRenamed   Type = "board.column_renamed"
	TypeCardCreated     Type = "card.created"
	TypeCardUpdated     Type = "card.updated"
	TypeCardMoved       Type = "card.moved"
	TypeCardDeleted     Type = "card.deleted"
	TypeCardLinked      Type = "card.linked"
	TypeCardUnlinked    Type = "card.unlinked"
	TypeReactionAdded   Type = "reaction.added"
	TypeReactionRemoved Type = "reaction.removed"
)

// Event is one committed mutation, addressed to everyone watching the board
type Event struct {
	Type    Type      `json:"type"`
	BoardID uuid.UUID `json:"board_id"`
	At      time.Time `json:"at"`
	Data    any       `json:"data,omitempty"`
}

// BoardRenamedData carries the board's new name
type BoardRenamedData struct {
	Name string `json:"name"`
}

// BoardClosedData carries when the board was closed
type BoardClosedData struct {
	ClosedAt time.Time `json:"closed_at"`
}

// ColumnRenamedData carries a column's new name
type ColumnRenamedData struct {
	ColumnID uuid.UUID `json:"column_id"`
	Name     string    `json:"name"`
}

// CardUpdatedData carries a card's edited content
type CardUpdatedData struct {
	CardID    uuid.UUID  `json:"card_id"`
	Content   string     `json:"content"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// CardMovedData carries a card's new column
type CardMovedData struct {
	CardID   uuid.UUID `json:"card_id"`
	ColumnID uuid.UUID `json:"column_id"`
}

// CardDeletedData identifies a removed card
type CardDeletedData struct {
	CardID uuid.UUID `json:"card_id"`
}

// CardLinkData describes a link made or removed between two cards
type CardLinkData struct {
	SourceID uuid.UUID       `json:"source_id"`
	TargetID uuid.UUID       `json:"target_id"`
	Kind     models.LinkKind `json:"kind"`
}

// ReactionData carries a card's counters after a reaction change. ParentID is
// set when the card is nested, so clients can refresh the parent's aggregate
// without another read.
type ReactionData struct {
	CardID                 uuid.UUID  `json:"card_id"`
	ReactionCount          int        `json:"reaction_count"`
	AggregateReactionCount int        `json:"aggregate_reaction_count"`
	ParentID               *uuid.UUID `json:"parent_id,omitempty"`
}

func newEvent(t Type, boardID uuid.UUID, data any) Event {
	return Event{Type: t, BoardID: boardID, At: time.Now().UTC(), Data: data}
}

// BoardRenamed builds a board-renamed intent
func BoardRenamed(boardID uuid.UUID, name string) Event {
	return newEvent(TypeBoardRenamed, boardID, BoardRenamedData{Name: name})
}

// BoardClosed builds a board-closed intent
func BoardClosed(boardID uuid.UUID, closedAt time.Time) Event {
	return newEvent(TypeBoardClosed, boardID, BoardClosedData{ClosedAt: closedAt})
}

// BoardDeleted builds a board-deleted intent
func BoardDeleted(boardID uuid.UUID) Event {
	return newEvent(TypeBoardDeleted, boardID, nil)
}

// ColumnRenamed builds a column-renamed intent
func ColumnRenamed(boardID, columnID uuid.UUID, name string) Event {
	return newEvent(TypeColumnRenamed, boardID, ColumnRenamedData{ColumnID: columnID, Name: name})
}

// CardCreated builds a card-created intent carrying the full card snapshot
func CardCreated(card *models.Card) Event {
	return newEvent(TypeCardCreated, card.BoardID, card)
}

// CardUpdated builds a card-updated intent
func CardUpdated(card *models.Card) Event {
	return newEvent(TypeCardUpdated, card.BoardID, CardUpdatedData{
		CardID:    card.ID,
		Content:   card.Content,
		UpdatedAt: card.UpdatedAt,
	})
}

// CardMoved builds a card-moved intent
func CardMoved(card *models.Card) Event {
	return newEvent(TypeCardMoved, card.BoardID, CardMovedData{CardID: card.ID, ColumnID: card.ColumnID})
}

// CardDeleted builds a card-deleted intent
func CardDeleted(boardID, cardID uuid.UUID) Event {
	return newEvent(TypeCardDeleted, boardID, CardDeletedData{CardID: cardID})
}

// CardLinked builds a card-linked intent
func CardLinked(boardID, sourceID, targetID uuid.UUID, kind models.LinkKind) Event {
	return newEvent(TypeCardLinked, boardID, CardLinkData{SourceID: sourceID, TargetID: targetID, Kind: kind})
}

// CardUnlinked builds a card-unlinked intent
func CardUnlinked(boardID, sourceID, targetID uuid.UUID, kind models.LinkKind) Event {
	return newEvent(TypeCardUnlinked, boardID, CardLinkData{SourceID: sourceID, TargetID: targetID, Kind: kind})
}

// ReactionAdded builds a reaction-added intent from the card's updated counters
func ReactionAdded(card *models.Card) Event {
	return newEvent(TypeReactionAdded, card.BoardID, reactionData(card))
}

// ReactionRemoved builds a reaction-removed intent from the card's updated counters
func ReactionRemoved(card *models.Card) Event {
	return newEvent(TypeReactionRemoved, card.BoardID, reactionData(card))
}

func reactionData(card *models.Card) ReactionData {
	return ReactionData{
		CardID:                 card.ID,
		ReactionCount:          card.ReactionCount,
		AggregateReactionCount: card.AggregateReactionCount,
		ParentID:               card.ParentID,
	}
}
