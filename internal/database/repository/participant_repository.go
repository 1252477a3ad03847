package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/retroflect/backend/internal/models"
)

// ParticipantRepository defines the interface for participant-session
// database operations
type ParticipantRepository interface {
	Upsert(ctx context.Context, participant *models.Participant) (*models.Participant, error)
	GetByBoardAndUser(ctx context.Context, boardID uuid.UUID, userHash string) (*models.Participant, error)
	GetByBoardID(ctx context.Context, boardID uuid.UUID) ([]*models.Participant, error)
	Touch(ctx context.Context, boardID uuid.UUID, userHash string, seenAt time.Time) error
	DeleteByBoardID(ctx context.Context, boardID uuid.UUID) (int64, error)
}

// participantRepository implements the ParticipantRepository interface
type participantRepository struct {
	*BaseRepository
}

// NewParticipantRepository creates a new ParticipantRepository
func NewParticipantRepository(db *sqlx.DB) ParticipantRepository {
	return &participantRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Upsert records a participant session. Rejoining a board refreshes the
// display name and last-seen time on the existing record instead of
// creating a second session.
func (r *participantRepository) Upsert(ctx context.Context, participant *models.Participant) (*models.Participant, error) {
	var stored models.Participant
	query := `
		INSERT INTO participants (id, board_id, user_hash, name, joined_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (board_id, user_hash)
		DO UPDATE SET name = EXCLUDED.name, last_seen_at = EXCLUDED.last_seen_at
		RETURNING *
	`

	err := sqlx.GetContext(
		ctx,
		r.ext(ctx),
		&stored,
		query,
		participant.ID,
		participant.BoardID,
		participant.UserHash,
		participant.Name,
		participant.JoinedAt,
		participant.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	return &stored, nil
}

// GetByBoardAndUser retrieves a user's session on a board, if any
func (r *participantRepository) GetByBoardAndUser(ctx context.Context, boardID uuid.UUID, userHash string) (*models.Participant, error) {
	var participant models.Participant
	query := `SELECT * FROM participants WHERE board_id = $1 AND user_hash = $2`

	err := sqlx.GetContext(ctx, r.ext(ctx), &participant, query, boardID, userHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Participant not found
		}
		return nil, err
	}

	return &participant, nil
}

// GetByBoardID retrieves every session on a board, oldest join first
func (r *participantRepository) GetByBoardID(ctx context.Context, boardID uuid.UUID) ([]*models.Participant, error) {
	var participants []*models.Participant
	query := `SELECT * FROM participants WHERE board_id = $1 ORDER BY joined_at ASC`

	err := sqlx.SelectContext(ctx, r.ext(ctx), &participants, query, boardID)
	if err != nil {
		return nil, err
	}

	return participants, nil
}

// Touch refreshes a session's last-seen time. Touching an absent session is
// a no-op.
func (r *participantRepository) Touch(ctx context.Context, boardID uuid.UUID, userHash string, seenAt time.Time) error {
	query := `UPDATE participants SET last_seen_at = $3 WHERE board_id = $1 AND user_hash = $2`

	_, err := r.ext(ctx).ExecContext(ctx, query, boardID, userHash, seenAt)
	return err
}

// DeleteByBoardID removes every session on a board and reports how many
// were removed
func (r *participantRepository) DeleteByBoardID(ctx context.Context, boardID uuid.UUID) (int64, error) {
	query := `DELETE FROM participants WHERE board_id = $1`

	result, err := r.ext(ctx).ExecContext(ctx, query, boardID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
