package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/retroflect/backend/internal/models"
)

// ReactionRepository defines the interface for reaction-related database
// operations. Reactions are plain (card, user) records; the counters they
// drive live on the cards and are moved by the service in the same
// transaction as the insert or delete here.
type ReactionRepository interface {
	Create(ctx context.Context, reaction *models.Reaction) (bool, error)
	GetByCardAndUser(ctx context.Context, cardID uuid.UUID, userHash string) (*models.Reaction, error)
	Delete(ctx context.Context, cardID uuid.UUID, userHash string) (bool, error)
	CountByBoardAndUser(ctx context.Context, boardID uuid.UUID, userHash string) (int, error)
	DeleteByCardID(ctx context.Context, cardID uuid.UUID) (int64, error)
	DeleteByCardIDs(ctx context.Context, cardIDs []uuid.UUID) (int64, error)
}

// reactionRepository implements the ReactionRepository interface
type reactionRepository struct {
	*BaseRepository
}

// NewReactionRepository creates a new ReactionRepository
func NewReactionRepository(db *sqlx.DB) ReactionRepository {
	return &reactionRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a reaction record. The (card_id, user_hash) uniqueness
// constraint enforces one reaction per user per card; a duplicate insert is
// absorbed and reported as false so the caller skips the counter update.
func (r *reactionRepository) Create(ctx context.Context, reaction *models.Reaction) (bool, error) {
	query := `
		INSERT INTO reactions (id, card_id, user_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (card_id, user_hash) DO NOTHING
	`

	result, err := r.ext(ctx).ExecContext(
		ctx,
		query,
		reaction.ID,
		reaction.CardID,
		reaction.UserHash,
		reaction.CreatedAt,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// GetByCardAndUser retrieves a user's reaction on a card, if any
func (r *reactionRepository) GetByCardAndUser(ctx context.Context, cardID uuid.UUID, userHash string) (*models.Reaction, error) {
	var reaction models.Reaction
	query := `SELECT * FROM reactions WHERE card_id = $1 AND user_hash = $2`

	err := sqlx.GetContext(ctx, r.ext(ctx), &reaction, query, cardID, userHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Reaction not found
		}
		return nil, err
	}

	return &reaction, nil
}

// Delete removes a user's reaction on a card and reports whether a record
// was actually removed. Removing an absent reaction is false, not an error.
func (r *reactionRepository) Delete(ctx context.Context, cardID uuid.UUID, userHash string) (bool, error) {
	query := `DELETE FROM reactions WHERE card_id = $1 AND user_hash = $2`

	result, err := r.ext(ctx).ExecContext(ctx, query, cardID, userHash)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// CountByBoardAndUser counts a user's reactions across all cards of a board
func (r *reactionRepository) CountByBoardAndUser(ctx context.Context, boardID uuid.UUID, userHash string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM reactions r
		JOIN cards c ON c.id = r.card_id
		WHERE c.board_id = $1 AND r.user_hash = $2
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &count, query, boardID, userHash)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteByCardID removes every reaction on one card and reports how many
// were removed
func (r *reactionRepository) DeleteByCardID(ctx context.Context, cardID uuid.UUID) (int64, error) {
	query := `DELETE FROM reactions WHERE card_id = $1`

	result, err := r.ext(ctx).ExecContext(ctx, query, cardID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// DeleteByCardIDs removes every reaction referencing any of cardIDs
func (r *reactionRepository) DeleteByCardIDs(ctx context.Context, cardIDs []uuid.UUID) (int64, error) {
	if len(cardIDs) == 0 {
		return 0, nil
	}

	idStrings := make([]string, len(cardIDs))
	for i, id := range cardIDs {
		idStrings[i] = id.String()
	}

	query := `DELETE FROM reactions WHERE card_id = ANY($1::uuid[])`

	result, err := r.ext(ctx).ExecContext(ctx, query, pq.Array(idStrings))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
