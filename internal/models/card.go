package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CardKind distinguishes feedback cards from action items
type CardKind string

const (
	// CardKindFeedback indicates a retrospective feedback card
	CardKindFeedback CardKind = "feedback"
	// CardKindAction indicates an action item
	CardKindAction CardKind = "action"
)

// Valid reports whether k is a known card kind
func (k CardKind) Valid() bool {
	return k == CardKindFeedback || k == CardKindAction
}

// LinkKind is the type of relationship between two cards
type LinkKind string

const (
	// LinkParentOf nests the target feedback card under the source feedback card
	LinkParentOf LinkKind = "parent_of"
	// LinkLinkedTo references a feedback card from an action card
	LinkLinkedTo LinkKind = "linked_to"
)

// Valid reports whether k is a known link kind
func (k LinkKind) Valid() bool {
	return k == LinkParentOf || k == LinkLinkedTo
}

// Card represents a feedback or action item inside a board column.
//
// ReactionCount holds reactions placed on the card itself.
// AggregateReactionCount additionally folds in the direct counts of the card's
// children, so for a childless card the two are equal and for a parent
// aggregate = direct + Σ direct(children). Both are maintained incrementally
// by the mutation paths, never recomputed by scan.
//
// ParentID points at the card's parent feedback card (one level deep at most);
// LinkedCardIDs is the set of feedback cards an action card references. Both
// live on the card document itself so every link transition is a single-row
// guarded update.
type Card struct {
	ID                     uuid.UUID      `json:"id" db:"id"`
	BoardID                uuid.UUID      `json:"board_id" db:"board_id"`
	ColumnID               uuid.UUID      `json:"column_id" db:"column_id"`
	Content                string         `json:"content" db:"content"`
	Kind                   CardKind       `json:"kind" db:"kind"`
	Anonymous              bool           `json:"anonymous" db:"anonymous"`
	AuthorAlias            *string        `json:"author_alias,omitempty" db:"author_alias"`
	AuthorHash             string         `json:"-" db:"author_hash"`
	ReactionCount          int            `json:"reaction_count" db:"reaction_count"`
	AggregateReactionCount int            `json:"aggregate_reaction_count" db:"aggregate_reaction_count"`
	ParentID               *uuid.UUID     `json:"parent_id,omitempty" db:"parent_id"`
	LinkedCardIDs          pq.StringArray `json:"linked_card_ids" db:"linked_card_ids"`
	CreatedAt              time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt              *time.Time     `json:"updated_at,omitempty" db:"updated_at"`
}

// NewCard creates a card on the given board and column. The author hash is
// always recorded for authorization; the alias is withheld when the card is
// anonymous.
func NewCard(boardID, columnID uuid.UUID, content string, kind CardKind, anonymous bool, authorHash string, authorAlias string) *Card {
	var alias *string
	if !anonymous && authorAlias != "" {
		alias = &authorAlias
	}

	return &Card{
		ID:            uuid.New(),
		BoardID:       boardID,
		ColumnID:      columnID,
		Content:       content,
		Kind:          kind,
		Anonymous:     anonymous,
		AuthorAlias:   alias,
		AuthorHash:    authorHash,
		LinkedCardIDs: pq.StringArray{},
		CreatedAt:     time.Now(),
	}
}

// IsAuthor reports whether userHash created the card
func (c *Card) IsAuthor(userHash string) bool {
	return c.AuthorHash == userHash
}

// Parent returns the parent card id and whether the card is linked under one.
// The comma-ok form is the card's link state: (_, false) is standalone,
// (id, true) is linked.
func (c *Card) Parent() (uuid.UUID, bool) {
	if c.ParentID == nil {
		return uuid.Nil, false
	}
	return *c.ParentID, true
}

// LinksTo reports whether the card's linked-feedback set contains id
func (c *Card) LinksTo(id uuid.UUID) bool {
	for _, linked := range c.LinkedCardIDs {
		if linked == id.String() {
			return true
		}
	}
	return false
}

// CardWithRelations is the read-path shape for a top-level card: the card
// itself plus its materialized children and, for action cards, the feedback
// cards it links to. Computed from the live pointers on every read.
type CardWithRelations struct {
	*Card
	Children       []*Card `json:"children"`
	LinkedFeedback []*Card `json:"linked_feedback,omitempty"`
}
