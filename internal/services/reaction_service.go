package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/retroflect/backend/internal/broadcast"
	"github.com/retroflect/backend/internal/database/repository"
	"github.com/retroflect/backend/internal/events"
	"github.com/retroflect/backend/internal/models"
)

// ReactionService handles reaction-related business logic. A user holds at
// most one reaction per card; adding or removing one moves the card's direct
// count and its own aggregate together, and a nested card's parent aggregate
// moves by the same amount inside the same transaction.
type ReactionService interface {
	AddReaction(ctx context.Context, cardID uuid.UUID, userHash string) (*models.Card, error)
	RemoveReaction(ctx context.Context, cardID uuid.UUID, userHash string) (*models.Card, error)
}

type reactionService struct {
	reactionRepo repository.ReactionRepository
	cardRepo     repository.CardRepository
	boardRepo    repository.BoardRepository
	uow          repository.UnitOfWork
	broadcaster  broadcast.Broadcaster
}

// NewReactionService creates a new ReactionService
func NewReactionService(
	reactionRepo repository.ReactionRepository,
	cardRepo repository.CardRepository,
	boardRepo repository.BoardRepository,
	uow repository.UnitOfWork,
	broadcaster broadcast.Broadcaster,
) ReactionService {
	return &reactionService{
		reactionRepo: reactionRepo,
		cardRepo:     cardRepo,
		boardRepo:    boardRepo,
		uow:          uow,
		broadcaster:  broadcaster,
	}
}

// AddReaction places userHash's reaction on a card. Reacting twice to the
// same card is a no-op success that leaves every counter untouched.
func (s *reactionService) AddReaction(ctx context.Context, cardID uuid.UUID, userHash string) (*models.Card, error) {
	card, err := s.cardRepo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}

	board, err := s.boardRepo.GetByID(ctx, card.BoardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}
	if !board.IsActive() {
		return nil, ErrBoardClosed
	}

	if board.MaxReactionsPerUser != nil {
		count, err := s.reactionRepo.CountByBoardAndUser(ctx, board.ID, userHash)
		if err != nil {
			return nil, err
		}
		if count >= *board.MaxReactionsPerUser {
			return nil, ErrReactionQuotaReached
		}
	}

	var updated *models.Card

	err = s.uow.RunAtomic(ctx, func(ctx context.Context) error {
		inserted, err := s.reactionRepo.Create(ctx, models.NewReaction(cardID, userHash))
		if err != nil {
			return err
		}
		if !inserted {
			return nil // Already reacted; counters stay put
		}

		// The returned row is locked until commit, so the parent pointer it
		// carries cannot change under us while we update the parent.
		updated, err = s.cardRepo.AdjustReactionCounts(ctx, cardID, 1)
		if err != nil {
			return err
		}
		if updated == nil {
			return ErrCardNotFound
		}

		if parentID, ok := updated.Parent(); ok {
			if _, err := s.cardRepo.AdjustAggregateCount(ctx, parentID, 1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated == nil {
		return card, nil
	}

	s.broadcaster.Broadcast(ctx, events.ReactionAdded(updated))

	return updated, nil
}

// RemoveReaction takes userHash's reaction off a card. Removing a reaction
// that was never placed is a no-op success.
func (s *reactionService) RemoveReaction(ctx context.Context, cardID uuid.UUID, userHash string) (*models.Card, error) {
	card, err := s.cardRepo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}

	board, err := s.boardRepo.GetByID(ctx, card.BoardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}
	if !board.IsActive() {
		return nil, ErrBoardClosed
	}

	var updated *models.Card

	err = s.uow.RunAtomic(ctx, func(ctx context.Context) error {
		removed, err := s.reactionRepo.Delete(ctx, cardID, userHash)
		if err != nil {
			return err
		}
		if !removed {
			return nil // No reaction to remove
		}

		updated, err = s.cardRepo.AdjustReactionCounts(ctx, cardID, -1)
		if err != nil {
			return err
		}
		if updated == nil {
			return ErrCardNotFound
		}

		if parentID, ok := updated.Parent(); ok {
			if _, err := s.cardRepo.AdjustAggregateCount(ctx, parentID, -1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated == nil {
		return card, nil
	}

	s.broadcaster.Broadcast(ctx, events.ReactionRemoved(updated))

	return updated, nil
}
