package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retroflect/backend/internal/broadcast"
	"github.com/retroflect/backend/internal/database/repository"
	"github.com/retroflect/backend/internal/events"
	"github.com/retroflect/backend/internal/models"
)

// maxAncestorWalk bounds the parent-chain walk during cycle checks. A chain
// longer than this can only come from corrupted data and is treated as
// circular rather than walked forever.
const maxAncestorWalk = 16

// CardService handles card-related business logic: creation, edits, the
// parent/link hierarchy, and deletion with its counter bookkeeping.
type CardService interface {
	CreateCard(ctx context.Context, boardID, columnID uuid.UUID, content string, kind models.CardKind, anonymous bool, authorAlias string, authorHash string) (*models.Card, error)
	GetCardByID(ctx context.Context, id uuid.UUID) (*models.Card, error)
	GetCardsByBoardID(ctx context.Context, boardID uuid.UUID) ([]*models.CardWithRelations, error)
	UpdateCardContent(ctx context.Context, id uuid.UUID, content string, actorHash string) (*models.Card, error)
	MoveCard(ctx context.Context, id uuid.UUID, columnID uuid.UUID, actorHash string) (*models.Card, error)
	LinkCards(ctx context.Context, sourceID, targetID uuid.UUID, kind models.LinkKind, actorHash string) error
	UnlinkCards(ctx context.Context, sourceID, targetID uuid.UUID, kind models.LinkKind, actorHash string) error
	DeleteCard(ctx context.Context, id uuid.UUID, actorHash string) error
}

type cardService struct {
	cardRepo     repository.CardRepository
	boardRepo    repository.BoardRepository
	reactionRepo repository.ReactionRepository
	uow          repository.UnitOfWork
	broadcaster  broadcast.Broadcaster
}

// NewCardService creates a new CardService
func NewCardService(
	cardRepo repository.CardRepository,
	boardRepo repository.BoardRepository,
	reactionRepo repository.ReactionRepository,
	uow repository.UnitOfWork,
	broadcaster broadcast.Broadcaster,
) CardService {
	return &cardService{
		cardRepo:     cardRepo,
		boardRepo:    boardRepo,
		reactionRepo: reactionRepo,
		uow:          uow,
		broadcaster:  broadcaster,
	}
}

// CreateCard creates a card on an active board. When the board carries a
// per-user card limit, the author's current count is consulted first.
func (s *cardService) CreateCard(ctx context.Context, boardID, columnID uuid.UUID, content string, kind models.CardKind, anonymous bool, authorAlias string, authorHash string) (*models.Card, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if !kind.Valid() {
		return nil, ErrInvalidCardKind
	}

	board, err := s.boardRepo.GetByID(ctx, boardID)
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

	if board.MaxCardsPerUser != nil {
		count, err := s.cardRepo.CountByBoardAndAuthor(ctx, boardID, authorHash)
		if err != nil {
			return nil, err
		}
		if count >= *board.MaxCardsPerUser {
			return nil, ErrCardQuotaReached
		}
	}

	card := models.NewCard(boardID, columnID, content, kind, anonymous, authorHash, authorAlias)
	if err := s.cardRepo.Create(ctx, card); err != nil {
		return nil, err
	}

	s.broadcaster.Broadcast(ctx, events.CardCreated(card))

	return card, nil
}

// GetCardByID retrieves a card by ID
func (s *cardService) GetCardByID(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	card, err := s.cardRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

// GetCardsByBoardID returns the board's top-level cards with their children
// and linked feedback materialized. The shape is recomputed from the live
// parent and link pointers on every call, from a single board-wide read.
func (s *cardService) GetCardsByBoardID(ctx context.Context, boardID uuid.UUID) ([]*models.CardWithRelations, error) {
	board, err := s.boardRepo.GetByID(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, ErrBoardNotFound
	}

	cards, err := s.cardRepo.GetByBoardID(ctx, boardID)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Card, len(cards))
	for _, card := range cards {
		byID[card.ID] = card
	}

	childrenOf := make(map[uuid.UUID][]*models.Card)
	for _, card := range cards {
		if parentID, ok := card.Parent(); ok {
			childrenOf[parentID] = append(childrenOf[parentID], card)
		}
	}

	var topLevel []*models.CardWithRelations
	for _, card := range cards {
		if _, ok := card.Parent(); ok {
			continue
		}

		withRelations := &models.CardWithRelations{
			Card:     card,
			Children: childrenOf[card.ID],
		}

		if card.Kind == models.CardKindAction {
			for _, linkedID := range card.LinkedCardIDs {
				id, err := uuid.Parse(linkedID)
				if err != nil {
					continue
				}
				if linked, ok := byID[id]; ok {
					withRelations.LinkedFeedback = append(withRelations.LinkedFeedback, linked)
				}
			}
		}

		topLevel = append(topLevel, withRelations)
	}

	return topLevel, nil
}

// UpdateCardContent replaces a card's content. Author only; the author match
// is part of the write's guard.
func (s *cardService) UpdateCardContent(ctx context.Context, id uuid.UUID, content string, actorHash string) (*models.Card, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	card, err := s.cardRepo.GetByID(ctx, id)
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

	updated, err := s.cardRepo.UpdateContent(ctx, id, content, actorHash, time.Now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// The author never changes, so a not-applied write with the card
		// still present can only mean the actor is not the author.
		card, err = s.cardRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if card == nil {
			return nil, ErrCardNotFound
		}
		return nil, ErrForbidden
	}

	s.broadcaster.Broadcast(ctx, events.CardUpdated(updated))

	return updated, nil
}

// MoveCard moves a card to another column on its board. Author only.
func (s *cardService) MoveCard(ctx context.Context, id uuid.UUID, columnID uuid.UUID, actorHash string) (*models.Card, error) {
	card, err := s.cardRepo.GetByID(ctx, id)
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
	if _, ok := board.Column(columnID); !ok {
		return nil, ErrColumnNotFound
	}

	moved, err := s.cardRepo.MoveToColumn(ctx, id, columnID, actorHash)
	if err != nil {
		return nil, err
	}
	if moved == nil {
		card, err = s.cardRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if card == nil {
			return nil, ErrCardNotFound
		}
		return nil, ErrForbidden
	}

	s.broadcaster.Broadcast(ctx, events.CardMoved(moved))

	return moved, nil
}

// LinkCards relates two cards on the same active board. parent_of nests the
// target feedback card under the source feedback card and folds the target's
// direct reactions into the source's aggregate; linked_to adds the target to
// the source action card's reference set.
func (s *cardService) LinkCards(ctx context.Context, sourceID, targetID uuid.UUID, kind models.LinkKind, actorHash string) error {
	if !kind.Valid() {
		return ErrInvalidLinkKind
	}
	if sourceID == targetID {
		return ErrCircularRelationship
	}

	source, target, board, err := s.loadLinkPair(ctx, sourceID, targetID)
	if err != nil {
		return err
	}
	if !source.IsAuthor(actorHash) && !board.HasAdmin(actorHash) {
		return ErrForbidden
	}

	switch kind {
	case models.LinkParentOf:
		return s.linkParent(ctx, source, target)
	case models.LinkLinkedTo:
		return s.linkReference(ctx, source, target)
	}
	return ErrInvalidLinkKind
}

// UnlinkCards removes a relation between two cards. Unlinking a pair that is
// not linked is a no-op success, so concurrent unlinks cannot fail each
// other.
func (s *cardService) UnlinkCards(ctx context.Context, sourceID, targetID uuid.UUID, kind models.LinkKind, actorHash string) error {
	if !kind.Valid() {
		return ErrInvalidLinkKind
	}
	if sourceID == targetID {
		return ErrCircularRelationship
	}

	source, target, board, err := s.loadLinkPair(ctx, sourceID, targetID)
	if err != nil {
		return err
	}
	if !source.IsAuthor(actorHash) && !board.HasAdmin(actorHash) {
		return ErrForbidden
	}

	switch kind {
	case models.LinkParentOf:
		return s.unlinkParent(ctx, source, target)
	case models.LinkLinkedTo:
		return s.unlinkReference(ctx, source, target)
	}
	return ErrInvalidLinkKind
}

// DeleteCard removes a card and repairs everything that pointed at it: its
// reactions go away, its children are orphaned without re-attribution, every
// action card referencing it drops the reference, and a parent's aggregate
// gives back the card's direct count. Author only; board admins cannot
// delete another user's card.
func (s *cardService) DeleteCard(ctx context.Context, id uuid.UUID, actorHash string) error {
	card, err := s.cardRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if card == nil {
		return ErrCardNotFound
	}

	board, err := s.boardRepo.GetByID(ctx, card.BoardID)
	if err != nil {
		return err
	}
	if board == nil {
		return ErrBoardNotFound
	}
	if !board.IsActive() {
		return ErrBoardClosed
	}
	if !card.IsAuthor(actorHash) {
		return ErrForbidden
	}

	boardID := card.BoardID

	err = s.uow.RunAtomic(ctx, func(ctx context.Context) error {
		// Take the card's row lock first so concurrent reactions and links
		// against it settle before the teardown starts.
		locked, err := s.cardRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return nil // Concurrently deleted; nothing left to do
		}

		if _, err := s.reactionRepo.DeleteByCardID(ctx, id); err != nil {
			return err
		}

		if _, err := s.cardRepo.OrphanChildren(ctx, id); err != nil {
			return err
		}

		if err := s.cardRepo.RemoveLinkedCardEverywhere(ctx, boardID, id); err != nil {
			return err
		}

		if parentID, ok := locked.Parent(); ok && locked.ReactionCount != 0 {
			if _, err := s.cardRepo.AdjustAggregateCount(ctx, parentID, -locked.ReactionCount); err != nil {
				return err
			}
		}

		return s.cardRepo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.broadcaster.Broadcast(ctx, events.CardDeleted(boardID, id))

	return nil
}

// loadLinkPair loads both ends of a link operation and their shared board,
// producing the precise precondition errors for the link ladder.
func (s *cardService) loadLinkPair(ctx context.Context, sourceID, targetID uuid.UUID) (*models.Card, *models.Card, *models.Board, error) {
	source, err := s.cardRepo.GetByID(ctx, sourceID)
	if err != nil {
		return nil, nil, nil, err
	}
	if source == nil {
		return nil, nil, nil, ErrCardNotFound
	}

	target, err := s.cardRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, nil, nil, err
	}
	if target == nil {
		return nil, nil, nil, ErrCardNotFound
	}

	if source.BoardID != target.BoardID {
		return nil, nil, nil, ErrDifferentBoards
	}

	board, err := s.boardRepo.GetByID(ctx, source.BoardID)
	if err != nil {
		return nil, nil, nil, err
	}
	if board == nil {
		return nil, nil, nil, ErrBoardNotFound
	}
	if !board.IsActive() {
		return nil, nil, nil, ErrBoardClosed
	}

	return source, target, board, nil
}

// linkParent performs the standalone-to-linked transition for target under
// source and moves the target's direct count into the source's aggregate in
// the same transaction.
func (s *cardService) linkParent(ctx context.Context, source, target *models.Card) error {
	if source.Kind != models.CardKindFeedback || target.Kind != models.CardKindFeedback {
		return ErrParentKindMismatch
	}

	// The hierarchy is a forest of depth one. A source that is itself a
	// child cannot take children, and a target with children cannot become
	// one; both would create a two-level chain.
	if _, ok := source.Parent(); ok {
		return ErrCircularRelationship
	}
	onChain, err := s.isAncestor(ctx, target, source.ID)
	if err != nil {
		return err
	}
	if onChain {
		return ErrCircularRelationship
	}
	if _, ok := target.Parent(); ok {
		return ErrAlreadyHasParent
	}
	children, err := s.cardRepo.GetChildren(ctx, target.ID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return ErrCircularRelationship
	}

	err = s.uow.RunAtomic(ctx, func(ctx context.Context) error {
		child, err := s.cardRepo.SetParent(ctx, target.ID, source.ID)
		if err != nil {
			return err
		}
		if child == nil {
			// Lost the race to a concurrent link
			return ErrAlreadyHasParent
		}
		if child.ReactionCount != 0 {
			if _, err := s.cardRepo.AdjustAggregateCount(ctx, source.ID, child.ReactionCount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcaster.Broadcast(ctx, events.CardLinked(source.BoardID, source.ID, target.ID, models.LinkParentOf))

	return nil
}

// unlinkParent clears target's parent reference provided it still points at
// source, returning the target's direct count from the source's aggregate.
// If the pair is not linked the call is a no-op success.
func (s *cardService) unlinkParent(ctx context.Context, source, target *models.Card) error {
	var applied bool

	err := s.uow.RunAtomic(ctx, func(ctx context.Context) error {
		child, err := s.cardRepo.ClearParent(ctx, target.ID, source.ID)
		if err != nil {
			return err
		}
		if child == nil {
			return nil // Not linked (anymore); nothing to undo
		}
		applied = true
		if child.ReactionCount != 0 {
			if _, err := s.cardRepo.AdjustAggregateCount(ctx, source.ID, -child.ReactionCount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if applied {
		s.broadcaster.Broadcast(ctx, events.CardUnlinked(source.BoardID, source.ID, target.ID, models.LinkParentOf))
	}

	return nil
}

// linkReference adds target to the source action card's linked-feedback set.
// Adding a reference that is already present is a no-op success.
func (s *cardService) linkReference(ctx context.Context, source, target *models.Card) error {
	if source.Kind != models.CardKindAction {
		return ErrSourceNotAction
	}
	if target.Kind != models.CardKindFeedback {
		return ErrTargetNotFeedback
	}

	updated, err := s.cardRepo.AddLinkedCard(ctx, source.ID, target.ID)
	if err != nil {
		return err
	}
	if updated == nil {
		// The kind guard cannot fail here since kinds never change, so not
		// applied means the reference already exists.
		current, err := s.cardRepo.GetByID(ctx, source.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrCardNotFound
		}
		return nil
	}

	s.broadcaster.Broadcast(ctx, events.CardLinked(source.BoardID, source.ID, target.ID, models.LinkLinkedTo))

	return nil
}

// unlinkReference removes target from the source card's linked-feedback set.
// Removing an absent reference is a no-op success.
func (s *cardService) unlinkReference(ctx context.Context, source, target *models.Card) error {
	updated, err := s.cardRepo.RemoveLinkedCard(ctx, source.ID, target.ID)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	s.broadcaster.Broadcast(ctx, events.CardUnlinked(source.BoardID, source.ID, target.ID, models.LinkLinkedTo))

	return nil
}

// isAncestor reports whether candidateID appears on card's parent chain. The
// walk is bounded; a chain deeper than the bound is reported as circular.
func (s *cardService) isAncestor(ctx context.Context, card *models.Card, candidateID uuid.UUID) (bool, error) {
	current := card
	for i := 0; i < maxAncestorWalk; i++ {
		parentID, ok := current.Parent()
		if !ok {
			return false, nil
		}
		if parentID == candidateID {
			return true, nil
		}
		parent, err := s.cardRepo.GetByID(ctx, parentID)
		if err != nil {
			return false, err
		}
		if parent == nil {
			return false, nil
		}
		current = parent
	}
	return true, nil
}
