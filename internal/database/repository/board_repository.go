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

// BoardRepository defines the interface for board-related database operations.
//
// The mutating methods below Rename, Close, AddAdmin and RenameColumn are
// guarded writes: the authorization and state predicates are part of the
// UPDATE's WHERE clause, so check and mutation are one atomic operation as
// seen by the store. A guarded write that matches nothing returns (nil, nil) —
// not applied — and the caller decides what that means with a separate
// diagnostic read.
type BoardRepository interface {
	Create(ctx context.Context, board *models.Board) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Board, error)
	GetByAccessKey(ctx context.Context, accessKey string) (*models.Board, error)
	Rename(ctx context.Context, id uuid.UUID, name string, actorHash string, override bool) (*models.Board, error)
	Close(ctx context.Context, id uuid.UUID, closedAt time.Time, actorHash string, override bool) (*models.Board, error)
	AddAdmin(ctx context.Context, id uuid.UUID, adminHash string, actorHash string, override bool) (*models.Board, error)
	RenameColumn(ctx context.Context, id uuid.UUID, columnID uuid.UUID, name string, actorHash string, override bool) (*models.Board, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// boardRepository implements the BoardRepository interface
type boardRepository struct {
	*BaseRepository
}

// NewBoardRepository creates a new BoardRepository
func NewBoardRepository(db *sqlx.DB) BoardRepository {
	return &boardRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new board into the database. A unique-constraint violation
// on the access key is returned untranslated so the caller can retry with a
// fresh key.
func (r *boardRepository) Create(ctx context.Context, board *models.Board) error {
	query := `
		INSERT INTO boards (id, name, access_key, columns, state, max_cards_per_user,
		                    max_reactions_per_user, created_by, admins, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.ext(ctx).ExecContext(
		ctx,
		query,
		board.ID,
		board.Name,
		board.AccessKey,
		board.Columns,
		board.State,
		board.MaxCardsPerUser,
		board.MaxReactionsPerUser,
		board.CreatedBy,
		board.Admins,
		board.CreatedAt,
		board.ClosedAt,
	)

	return err
}

// GetByID retrieves a board by ID
func (r *boardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	var board models.Board
	query := `SELECT * FROM boards WHERE id = $1`

	err := sqlx.GetContext(ctx, r.ext(ctx), &board, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Board not found
		}
		return nil, err
	}

	return &board, nil
}

// GetByAccessKey retrieves a board by its shareable access key
func (r *boardRepository) GetByAccessKey(ctx context.Context, accessKey string) (*models.Board, error) {
	var board models.Board
	query := `SELECT * FROM boards WHERE access_key = $1`

	err := sqlx.GetContext(ctx, r.ext(ctx), &board, query, accessKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Board not found
		}
		return nil, err
	}

	return &board, nil
}

// Rename sets the board's name provided the board is active and the actor is
// an admin (or override is set).
func (r *boardRepository) Rename(ctx context.Context, id uuid.UUID, name string, actorHash string, override bool) (*models.Board, error) {
	var board models.Board
	query := `
		UPDATE boards
		SET name = $2
		WHERE id = $1 AND state = 'active' AND ($3 = ANY(admins) OR $4)
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &board, query, id, name, actorHash, override)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &board, nil
}

// Close transitions the board to closed. Only an active board matches, so at
// most one concurrent caller performs the transition; the rest see not
// applied and must re-read to observe the closed end state.
func (r *boardRepository) Close(ctx context.Context, id uuid.UUID, closedAt time.Time, actorHash string, override bool) (*models.Board, error) {
	var board models.Board
	query := `
		UPDATE boards
		SET state = 'closed', closed_at = $2
		WHERE id = $1 AND state = 'active' AND ($3 = ANY(admins) OR $4)
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &board, query, id, closedAt, actorHash, override)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &board, nil
}

// AddAdmin appends adminHash to the admin set provided the board is active,
// the actor is the creator (or override is set), and the hash is not already
// present. Adding an existing admin is not applied here; the caller treats it
// as an idempotent success.
func (r *boardRepository) AddAdmin(ctx context.Context, id uuid.UUID, adminHash string, actorHash string, override bool) (*models.Board, error) {
	var board models.Board
	query := `
		UPDATE boards
		SET admins = array_append(admins, $2)
		WHERE id = $1 AND state = 'active' AND (created_by = $3 OR $4)
		  AND NOT ($2 = ANY(admins))
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &board, query, id, adminHash, actorHash, override)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &board, nil
}

// RenameColumn renames one column inside the board's column set. The column's
// existence is part of the guard, so renaming a vanished column is not
// applied rather than an error.
func (r *boardRepository) RenameColumn(ctx context.Context, id uuid.UUID, columnID uuid.UUID, name string, actorHash string, override bool) (*models.Board, error) {
	var board models.Board
	query := `
		UPDATE boards
		SET columns = (
			SELECT jsonb_agg(
				CASE WHEN col->>'id' = $2::text
				     THEN jsonb_set(col, '{name}', to_jsonb($3::text))
				     ELSE col
				END
			)
			FROM jsonb_array_elements(columns) AS col
		)
		WHERE id = $1 AND state = 'active' AND ($4 = ANY(admins) OR $5)
		  AND columns @> jsonb_build_array(jsonb_build_object('id', $2::text))
		RETURNING *
	`

	err := sqlx.GetContext(ctx, r.ext(ctx), &board, query, id, columnID, name, actorHash, override)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not applied
		}
		return nil, err
	}

	return &board, nil
}

// Delete removes the board document. Dependent rows are the cascade
// coordinator's responsibility and must already be gone.
func (r *boardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM boards WHERE id = $1`
	_, err := r.ext(ctx).ExecContext(ctx, query, id)
	return err
}
