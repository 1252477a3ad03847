package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/retroflect/backend/internal/models"
)

// CardRepository defines the interface for card-related database operations.
//
// Guarded writes return (nil, nil) when their predicate did not match any
// row. The counter methods update both counters of a card in a single
// statement and return the post-update row, so callers can read parent_id and
// reaction_count from a row the store has locked for the rest of the
// enclosing transaction.
type CardRepository interface {
	Create(ctx context.Context, card *models.Card) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Card, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Card, error)
	GetByBoardID(ctx context.Context, boardID uuid.UUID) ([]*models.Card, error)
	GetChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Card, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Card, error)
	IDsByBoardID(ctx context.Context, boardID uuid.UUID) ([]uuid.UUID, error)
	CountByBoardAndAuthor(ctx context.Context, boardID uuid.UUID, authorHash string) (int, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string, authorHash string, updatedAt time.Time) (*models.Card, error)
	MoveToColumn(ctx context.Context, id uuid.UUID, columnID uuid.UUID, authorHash string) (*models.Card, error)
	SetParent(ctx context.Context, childID uuid.UUID, parentID uuid.UUID) (*models.Card, error)
	ClearParent(ctx context.Context, childID uuid.UUID, parentID uuid.UUID) (*models.Card, error)
	OrphanChildren(ctx context.Context, parentID uuid.UUID) (int64, error)
	AddLinkedCard(ctx context.Context, actionID uuid.UUID, feedbackID uuid.UUID) (*models.Card, error)
	RemoveLinkedCard(ctx context.Context, actionID uuid.UUID, feedbackID uuid.UUID) (*models.Card, error)
	RemoveLinkedCardEverywhere(ctx context.Context, boardID uuid.UUID, cardID uuid.UUID) error
	AdjustReactionCounts(ctx context.Context, id uuid.UUID, delta int) (*models.Card, error)
	AdjustAggregateCount(ctx context.Context, id uuid.UUID, delta int) (*models.Card, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByBoardID(ctx context.Context, boardID uuid.UUID) (int64, error)
}

// cardRepository implements the CardRepository interface
type cardRepository struct {
	*BaseRepository
}

// NewCardRepository creates a new CardRepository
func NewCardRepository(db *sqlx.DB) CardRepository {
	return &cardRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new card into the database
func (r *cardRepository) Create(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO cards (id, board_id, column_id, content, kind, anonymous, author_alias,
		                   author_hash, reaction_count, aggregate_reaction_count, parent_id,
		                   linked_card_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.ext(ctx).ExecContext(
		ctx,
		query,
		card.ID,
		card.BoardID,
		card.ColumnID,
		card.Content,
		card.Kind,
		card.Anonymous,
		card.AuthorAlias,
		card.AuthorHash,
		card.ReactionCount,
		card.AggregateReactionCount,
		card.ParentID,
		card.LinkedCardIDs,
		card.CreatedAt,
		card.UpdatedAt,
	)

	return err
}

// GetByID retrieves a card by ID
func (r *cardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	var card models.Card
	query := `SELECT * FROM cards WHERE id = $1`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, err
	}

	return &card, nil
}

// GetByIDForUpdate retrieves a card and takes its row lock for the duration
// of the enclosing transaction. Outside a transaction this degenerates to a
// plain read.
func (r *cardRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	var card models.Card
	query := `SELECT * FROM cards WHERE id = $1 FOR UPDATE`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, err
	}

	return &card, nil
}

// GetByBoardID retrieves all cards for a board, newest first
func (r *cardRepository) GetByBoardID(ctx context.Context, boardID uuid.UUID) ([]*models.Card, error) {
	var cards []*models.Card
	query := `SELECT * FROM cards WHERE board_id = $1 ORDER BY created_at DESC`

	err := sqlx.SelectContext(ctx, r.ext(ctx), &cards, query, boardID)
	if err != nil {
		return nil, err
	}

	return cards, nil
}

// GetChildren retrieves the cards whose parent reference is parentID, newest first
func (r *cardRepository) GetChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Card, error) {
	var cards []*models.Card
	query := `SELECT * FROM cards WHERE parent_id = $1 ORDER BY created_at DESC`

	err := sqlx.SelectContext(ctx, r.ext(ctx), &cards, query, parentID)
	if err != nil {
		return nil, err
	}

	return cards, nil
}

// GetByIDs retrieves the cards named by ids. Missing ids are skipped, so the
// result may be shorter than the input.
func (r *cardRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var cards []*models.Card
	query := `SELECT * FROM cards WHERE id = ANY($1::uuid[])`

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	err := sqlx.SelectContext(ctx, r.ext(ctx), &cards, query, pq.Array(idStrings))
	if err != nil {
		return nil, err
	}

	return cards, nil
}

// IDsByBoardID retrieves the ids of every card on a board
func (r *cardRepository) IDsByBoardID(ctx context.Context, boardID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `SELECT id FROM cards WHERE board_id = $1`

	err := sqlx.SelectContext(ctx, r.ext(ctx), &ids, query, boardID)
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// CountByBoardAndAuthor counts the cards a single author has on a board
func (r *cardRepository) CountByBoardAndAuthor(ctx context.Context, boardID uuid.UUID, authorHash string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM cards WHERE board_id = $1 AND author_hash = $2`

	err := sqlx.GetContext(ctx, r.ext(ctx), &count, query, boardID, authorHash)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// UpdateContent replaces the card's content provided authorHash matches the
// card's author. Sets updated_at; a column move does not.
func (r *cardRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string, authorHash string, updatedAt time.Time) (*models.Card, error) {
	var card models.Card
	query := `
		UPDATE cards
		SET content = $2, updated_at = $3
		WHERE id = $1 AND author_hash = $4
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, id, content, updatedAt, authorHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &card, nil
}

// MoveToColumn changes the card's column provided authorHash matches the
// card's author. Column existence on the board is the caller's check.
func (r *cardRepository) MoveToColumn(ctx context.Context, id uuid.UUID, columnID uuid.UUID, authorHash string) (*models.Card, error) {
	var card models.Card
	query := `
		UPDATE cards
		SET column_id = $2
		WHERE id = $1 AND author_hash = $3
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, id, columnID, authorHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &card, nil
}

// SetParent performs the standalone-to-linked transition on the child card.
// The guard requires the child to be a feedback card with no current parent,
// so of two concurrent link attempts exactly one is applied. The returned row
// carries the child's reaction_count under the row lock, which the caller
// adds to the parent's aggregate inside the same transaction.
func (r *cardRepository) SetParent(ctx context.Context, childID uuid.UUID, parentID uuid.UUID) (*models.Card, error) {
	var card models.Card
	query := `
		UPDATE cards
		SET parent_id = $2
		WHERE id = $1 AND parent_id IS NULL AND kind = 'feedback'
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, childID, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &card, nil
}

// ClearParent performs the linked-to-standalone transition, guarded on the
// child still pointing at the expected parent.
func (r *cardRepository) ClearParent(ctx context.Context, childID uuid.UUID, parentID uuid.UUID) (*models.Card, error) {
	var card models.Card
	query := `
		UPDATE cards
		SET parent_id = NULL
		WHERE id = $1 AND parent_id = $2
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, childID, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &card, nil
}

// OrphanChildren clears the parent reference of every child of parentID and
// reports how many cards were orphaned
func (r *cardRepository) OrphanChildren(ctx context.Context, parentID uuid.UUID) (int64, error) {
	query := `UPDATE cards SET parent_id = NULL WHERE parent_id = $1`

	result, err := r.ext(ctx).ExecContext(ctx, query, parentID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// AddLinkedCard appends feedbackID to the action card's linked-feedback set.
// The guard makes the append idempotent: if the reference is already present
// the write is not applied, which the caller reports as success.
func (r *cardRepository) AddLinkedCard(ctx context.Context, actionID uuid.UUID, feedbackID uuid.UUID) (*models.Card, error) {
	var card models.Card
	query := `
		UPDATE cards
		SET linked_card_ids = array_append(linked_card_ids, $2::text)
		WHERE id = $1 AND kind = 'action' AND NOT ($2::text = ANY(linked_card_ids))
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, actionID, feedbackID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &card, nil
}

// RemoveLinkedCard removes feedbackID from the action card's linked-feedback
// set. Removing an absent reference is not applied and the caller reports
// success.
func (r *cardRepository) RemoveLinkedCard(ctx context.Context, actionID uuid.UUID, feedbackID uuid.UUID) (*models.Card, error) {
	var card models.Card
	query := `
		UPDATE cards
		SET linked_card_ids = array_remove(linked_card_ids, $2::text)
		WHERE id = $1 AND $2::text = ANY(linked_card_ids)
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, actionID, feedbackID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &card, nil
}

// RemoveLinkedCardEverywhere scrubs cardID from the linked-feedback set of
// every action card on the board. Used when a feedback card is deleted.
func (r *cardRepository) RemoveLinkedCardEverywhere(ctx context.Context, boardID uuid.UUID, cardID uuid.UUID) error {
	query := `
		UPDATE cards
		SET linked_card_ids = array_remove(linked_card_ids, $2::text)
		WHERE board_id = $1 AND $2::text = ANY(linked_card_ids)
	`

	_, err := r.ext(ctx).ExecContext(ctx, query, boardID, cardID.String())
	return err
}

// AdjustReactionCounts moves the card's direct count and its own aggregate
// count by delta in one statement, so the two can never drift apart. The
// returned row is locked until the enclosing transaction ends; callers read
// parent_id from it to decide whether a parent aggregate needs the same
// delta.
func (r *cardRepository) AdjustReactionCounts(ctx context.Context, id uuid.UUID, delta int) (*models.Card, error) {
	var card models.Card
	query := `
		UPDATE cards
		SET reaction_count = reaction_count + $2,
		    aggregate_reaction_count = aggregate_reaction_count + $2
		WHERE id = $1
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, id, delta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, err
	}

	return &card, nil
}

// AdjustAggregateCount moves only the aggregate count, for parent-side
// updates driven by reactions on children and by link changes
func (r *cardRepository) AdjustAggregateCount(ctx context.Context, id uuid.UUID, delta int) (*models.Card, error) {
	var card models.Card
	query := `
		UPDATE cards
		SET aggregate_reaction_count = aggregate_reaction_count + $2
		WHERE id = $1
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &card, query, id, delta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, err
	}

	return &card, nil
}

// Delete removes a single card document. Reactions, children and inbound
// links are the caller's responsibility within the same transaction.
func (r *cardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM cards WHERE id = $1`
	_, err := r.ext(ctx).ExecContext(ctx, query, id)
	return err
}

// DeleteByBoardID removes every card on a board and reports how many were
// deleted
func (r *cardRepository) DeleteByBoardID(ctx context.Context, boardID uuid.UUID) (int64, error) {
	query := `DELETE FROM cards WHERE board_id = $1`

	result, err := r.ext(ctx).ExecContext(ctx, query, boardID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
