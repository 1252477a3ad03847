package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/retroflect/backend/internal/broadcast"
	"github.com/retroflect/backend/internal/database/repository"
	"github.com/retroflect/backend/internal/events"
)

// CascadeDeleter removes a board together with every card, reaction, and
// participant session reachable from it.
type CascadeDeleter interface {
	DeleteBoard(ctx context.Context, boardID uuid.UUID) error
}

type cascadeService struct {
	boardRepo       repository.BoardRepository
	cardRepo        repository.CardRepository
	reactionRepo    repository.ReactionRepository
	participantRepo repository.ParticipantRepository
	uow             repository.UnitOfWork
	broadcaster     broadcast.Broadcaster
}

// NewCascadeService creates a new CascadeDeleter. The injected unit of work
// decides the atomicity of the cascade: against the SQL store the five steps
// run in one transaction and either all apply or none do; with the
// sequential unit of work they run one after another and a mid-cascade
// failure leaves the completed steps in place. That relaxation is what the
// caller chose by injecting it, not a silent downgrade.
func NewCascadeService(
	boardRepo repository.BoardRepository,
	cardRepo repository.CardRepository,
	reactionRepo repository.ReactionRepository,
	participantRepo repository.ParticipantRepository,
	uow repository.UnitOfWork,
	broadcaster broadcast.Broadcaster,
) CascadeDeleter {
	return &cascadeService{
		boardRepo:       boardRepo,
		cardRepo:        cardRepo,
		reactionRepo:    reactionRepo,
		participantRepo: participantRepo,
		uow:             uow,
		broadcaster:     broadcaster,
	}
}

// DeleteBoard tears the board down leaf-first: reactions, then cards, then
// participant sessions, then the board document itself. Authorization is the
// caller's job; deletion is not gated on board state, so closed boards can
// still be deleted.
func (s *cascadeService) DeleteBoard(ctx context.Context, boardID uuid.UUID) error {
	err := s.uow.RunAtomic(ctx, func(ctx context.Context) error {
		cardIDs, err := s.cardRepo.IDsByBoardID(ctx, boardID)
		if err != nil {
			return err
		}

		if _, err := s.reactionRepo.DeleteByCardIDs(ctx, cardIDs); err != nil {
			return err
		}

		if _, err := s.cardRepo.DeleteByBoardID(ctx, boardID); err != nil {
			return err
		}

		if _, err := s.participantRepo.DeleteByBoardID(ctx, boardID); err != nil {
			return err
		}

		return s.boardRepo.Delete(ctx, boardID)
	})
	if err != nil {
		return err
	}

	s.broadcaster.Broadcast(ctx, events.BoardDeleted(boardID))

	return nil
}
