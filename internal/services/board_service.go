package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/retroflect/backend/internal/broadcast"
	"github.com/retroflect/backend/internal/database/repository"
	"github.com/retroflect/backend/internal/events"
	"github.com/retroflect/backend/internal/models"
	"github.com/retroflect/backend/pkg/logger"
)

// accessKeyAttempts bounds how often board creation retries after an access
// key collision before giving up.
const accessKeyAttempts = 5

// BoardService handles board-related business logic.
//
// Every mutation follows the same shape: a diagnostic read for precise
// errors, then a guarded write whose predicates are checked atomically with
// the mutation, then a translation of "not applied" back into a precise
// error by re-reading. The diagnostic read alone is never trusted for
// authorization; only the guarded write is.
type BoardService interface {
	CreateBoard(ctx context.Context, name string, columns []models.Column, creatorHash string, maxCards, maxReactions *int) (*models.Board, error)
	GetBoardByID(ctx context.Context, id uuid.UUID) (*models.Board, error)
	GetBoardByAccessKey(ctx context.Context, accessKey string) (*models.Board, error)
	RenameBoard(ctx context.Context, id uuid.UUID, name string, actorHash string, override bool) (*models.Board, error)
	CloseBoard(ctx context.Context, id uuid.UUID, actorHash string, override bool) (*models.Board, error)
	AddAdmin(ctx context.Context, id uuid.UUID, adminHash string, actorHash string, override bool) (*models.Board, error)
	RenameColumn(ctx context.Context, id uuid.UUID, columnID uuid.UUID, name string, actorHash string, override bool) (*models.Board, error)
	DeleteBoard(ctx context.Context, id uuid.UUID, actorHash string, override bool) error
}

type boardService struct {
	boardRepo   repository.BoardRepository
	cascade     CascadeDeleter
	broadcaster broadcast.Broadcaster
	archiver    Archiver
}

// NewBoardService creates a new BoardService. archiver may be nil when
// closed-board archiving is not configured.
func NewBoardService(
	boardRepo repository.BoardRepository,
	cascade CascadeDeleter,
	broadcaster broadcast.Broadcaster,
	archiver Archiver,
) BoardService {
	return &boardService{
		boardRepo:   boardRepo,
		cascade:     cascade,
		broadcaster: broadcaster,
		archiver:    archiver,
	}
}

// CreateBoard creates a new active board owned by creatorHash
func (s *boardService) CreateBoard(ctx context.Context, name string, columns []models.Column, creatorHash string, maxCards, maxReactions *int) (*models.Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	for _, col := range columns {
		if strings.TrimSpace(col.Name) == "" {
			return nil, ErrEmptyName
		}
	}

	board := models.NewBoard(name, columns, creatorHash, maxCards, maxReactions)

	// The access key is globally unique; on a collision regenerate and try
	// again up to the attempt bound.
	for attempt := 0; attempt < accessKeyAttempts; attempt++ {
		key, err := generateAccessKey()
		if err != nil {
			return nil, err
		}
		board.AccessKey = key

		err = s.boardRepo.Create(ctx, board)
		if err == nil {
			return board, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}

	return nil, ErrAccessKeyExhausted
}

// GetBoardByID retrieves a board by ID
func (s *boardService) GetBoardByID(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	board, err := s.boardRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}
	return board, nil
}

// GetBoardByAccessKey retrieves a board by its shareable access key
func (s *boardService) GetBoardByAccessKey(ctx context.Context, accessKey string) (*models.Board, error) {
	board, err := s.boardRepo.GetByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}
	return board, nil
}

// RenameBoard renames a board. Requires an active board and admin
// membership (or override).
func (s *boardService) RenameBoard(ctx context.Context, id uuid.UUID, name string, actorHash string, override bool) (*models.Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	// Diagnostic read for a precise error
	board, err := s.boardRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}
	if !board.IsActive() {
		return nil, ErrBoardClosed
	}

	// Guarded write
	renamed, err := s.boardRepo.Rename(ctx, id, name, actorHash, override)
	if err != nil {
		return nil, err
	}
	if renamed == nil {
		return nil, s.translateBoardOutcome(ctx, id)
	}

	s.broadcaster.Broadcast(ctx, events.BoardRenamed(renamed.ID, renamed.Name))

	return renamed, nil
}

// CloseBoard transitions a board to its terminal closed state. Closing an
// already closed board succeeds without re-checking admin membership and
// without a second broadcast.
func (s *boardService) CloseBoard(ctx context.Context, id uuid.UUID, actorHash string, override bool) (*models.Board, error) {
	board, err := s.boardRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}
	if !board.IsActive() {
		return board, nil
	}

	closed, err := s.boardRepo.Close(ctx, id, time.Now(), actorHash, override)
	if err != nil {
		return nil, err
	}
	if closed == nil {
		// Either a concurrent close won the transition or the actor is not
		// an admin. Re-read to tell the two apart.
		board, err = s.boardRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if board == nil {
			return nil, ErrBoardNotFound
		}
		if !board.IsActive() {
			return board, nil
		}
		return nil, ErrForbidden
	}

	s.broadcaster.Broadcast(ctx, events.BoardClosed(closed.ID, *closed.ClosedAt))
	s.archiveBoard(ctx, closed)

	return closed, nil
}

// AddAdmin grants admin membership. Only the board's creator may grant it
// (or override). Adding an existing admin is a no-op success.
func (s *boardService) AddAdmin(ctx context.Context, id uuid.UUID, adminHash string, actorHash string, override bool) (*models.Board, error) {
	board, err := s.boardRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}
	if !board.IsActive() {
		return nil, ErrBoardClosed
	}
	if board.HasAdmin(adminHash) {
		return board, nil
	}

	updated, err := s.boardRepo.AddAdmin(ctx, id, adminHash, actorHash, override)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// A concurrent grant of the same admin is a success; anything else
		// is diagnosed from a fresh read.
		board, err = s.boardRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if board == nil {
			return nil, ErrBoardNotFound
		}
		if board.HasAdmin(adminHash) {
			return board, nil
		}
		if !board.IsActive() {
			return nil, ErrBoardClosed
		}
		return nil, ErrForbidden
	}

	return updated, nil
}

// RenameColumn renames a single column on the board. Requires an active
// board, admin membership (or override), and the column to exist.
func (s *boardService) RenameColumn(ctx context.Context, id uuid.UUID, columnID uuid.UUID, name string, actorHash string, override bool) (*models.Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	board, err := s.boardRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}
	if !board.IsActive() {
		return nil, ErrBoardClosed
	}
	if _, ok := board.Column(columnID); !ok {
		return nil, ErrColumnNotFound
	}

	updated, err := s.boardRepo.RenameColumn(ctx, id, columnID, name, actorHash, override)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, s.translateColumnOutcome(ctx, id, columnID)
	}

	s.broadcaster.Broadcast(ctx, events.ColumnRenamed(updated.ID, columnID, name))

	return updated, nil
}

// DeleteBoard removes a board and everything reachable from it. Only the
// creator may delete (or override). The creator is immutable, so checking it
// on a plain read is not a check-then-act race.
func (s *boardService) DeleteBoard(ctx context.Context, id uuid.UUID, actorHash string, override bool) error {
	board, err := s.boardRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if board == nil {
		return ErrBoardNotFound
	}
	if !board.IsCreator(actorHash) && !override {
		return ErrForbidden
	}

	return s.cascade.DeleteBoard(ctx, board.ID)
}

// translateBoardOutcome turns a not-applied guarded write into a precise
// error by re-reading the board.
func (s *boardService) translateBoardOutcome(ctx context.Context, id uuid.UUID) error {
	board, err := s.boardRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if board == nil {
		return ErrBoardNotFound
	}
	if !board.IsActive() {
		return ErrBoardClosed
	}
	return ErrForbidden
}

// translateColumnOutcome is translateBoardOutcome plus the column existence
// check that the rename-column guard carries.
func (s *boardService) translateColumnOutcome(ctx context.Context, id uuid.UUID, columnID uuid.UUID) error {
	board, err := s.boardRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if board == nil {
		return ErrBoardNotFound
	}
	if !board.IsActive() {
		return ErrBoardClosed
	}
	if _, ok := board.Column(columnID); !ok {
		return ErrColumnNotFound
	}
	return ErrForbidden
}

// archiveBoard snapshots a freshly closed board. Best effort: failures are
// logged, never surfaced to the closer.
func (s *boardService) archiveBoard(ctx context.Context, board *models.Board) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveBoard(ctx, board); err != nil {
		logger.Error.Printf("archiving board %s: %v", board.ID, err)
	}
}

// generateAccessKey produces a short shareable board code
func generateAccessKey() (string, error) {
	bytes := make([]byte, 8)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}

	// Convert to base64 and clean it up
	key := base64.URLEncoding.EncodeToString(bytes)
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, "_", "")

	// Truncate to 10 characters and uppercase
	if len(key) > 10 {
		key = key[:10]
	}
	return strings.ToUpper(key), nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
