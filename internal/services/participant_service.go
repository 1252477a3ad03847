package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retroflect/backend/internal/database/repository"
	"github.com/retroflect/backend/internal/models"
)

// ParticipantService handles participant-session business logic. Joining is
// allowed on closed boards too: a session is how a user views a board, not a
// content mutation.
type ParticipantService interface {
	JoinBoard(ctx context.Context, boardID uuid.UUID, userHash, name string) (*models.Participant, error)
	JoinBoardByAccessKey(ctx context.Context, accessKey string, userHash, name string) (*models.Board, *models.Participant, error)
	GetParticipants(ctx context.Context, boardID uuid.UUID) ([]*models.Participant, error)
	TouchParticipant(ctx context.Context, boardID uuid.UUID, userHash string) error
}

type participantService struct {
	participantRepo repository.ParticipantRepository
	boardRepo       repository.BoardRepository
}

// NewParticipantService creates a new ParticipantService
func NewParticipantService(
	participantRepo repository.ParticipantRepository,
	boardRepo repository.BoardRepository,
) ParticipantService {
	return &participantService{
		participantRepo: participantRepo,
		boardRepo:       boardRepo,
	}
}

// JoinBoard records userHash as a participant of the board. Rejoining
// refreshes the stored name and last-seen time.
func (s *participantService) JoinBoard(ctx context.Context, boardID uuid.UUID, userHash, name string) (*models.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	board, err := s.boardRepo.GetByID(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}

	return s.participantRepo.Upsert(ctx, models.NewParticipant(boardID, userHash, name))
}

// JoinBoardByAccessKey resolves the shareable access key and joins the
// board, returning both so one call serves the share-link flow.
func (s *participantService) JoinBoardByAccessKey(ctx context.Context, accessKey string, userHash, name string) (*models.Board, *models.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, ErrEmptyName
	}

	board, err := s.boardRepo.GetByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, nil, err
	}
	if board == nil {
		return nil, nil, ErrBoardNotFound
	}

	participant, err := s.participantRepo.Upsert(ctx, models.NewParticipant(board.ID, userHash, name))
	if err != nil {
		return nil, nil, err
	}

	return board, participant, nil
}

// GetParticipants lists the board's sessions in join order
func (s *participantService) GetParticipants(ctx context.Context, boardID uuid.UUID) ([]*models.Participant, error) {
	board, err := s.boardRepo.GetByID(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}

	return s.participantRepo.GetByBoardID(ctx, boardID)
}

// TouchParticipant refreshes a session's last-seen time. Touching a session
// that does not exist is a silent no-op.
func (s *participantService) TouchParticipant(ctx context.Context, boardID uuid.UUID, userHash string) error {
	return s.participantRepo.Touch(ctx, boardID, userHash, time.Now())
}
