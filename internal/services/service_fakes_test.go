package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/retroflect/backend/internal/broadcast"
	"github.com/retroflect/backend/internal/events"
	"github.com/retroflect/backend/internal/models"
)

// The fakes below mirror the store's guarded-write semantics in memory:
// every predicate a SQL guard carries is checked here too, and a failed
// guard yields (nil, nil) exactly like a zero-row UPDATE ... RETURNING.

type fakeBoardRepo struct {
	mu     sync.Mutex
	boards map[uuid.UUID]*models.Board

	// failCreates forces the next n Create calls to report an access key
	// collision, for exercising the retry budget.
	failCreates int
}

func newFakeBoardRepo() *fakeBoardRepo {
	return &fakeBoardRepo{boards: make(map[uuid.UUID]*models.Board)}
}

func cloneBoard(b *models.Board) *models.Board {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Columns = append(models.ColumnList(nil), b.Columns...)
	clone.Admins = append(pq.StringArray(nil), b.Admins...)
	if b.ClosedAt != nil {
		t := *b.ClosedAt
		clone.ClosedAt = &t
	}
	if b.MaxCardsPerUser != nil {
		v := *b.MaxCardsPerUser
		clone.MaxCardsPerUser = &v
	}
	if b.MaxReactionsPerUser != nil {
		v := *b.MaxReactionsPerUser
		clone.MaxReactionsPerUser = &v
	}
	return &clone
}

func (r *fakeBoardRepo) Create(ctx context.Context, board *models.Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreates > 0 {
		r.failCreates--
		return &pq.Error{Code: "23505"}
	}
	for _, existing := range r.boards {
		if existing.AccessKey == board.AccessKey {
			return &pq.Error{Code: "23505"}
		}
	}
	r.boards[board.ID] = cloneBoard(board)
	return nil
}

func (r *fakeBoardRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneBoard(r.boards[id]), nil
}

func (r *fakeBoardRepo) GetByAccessKey(ctx context.Context, accessKey string) (*models.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, board := range r.boards {
		if board.AccessKey == accessKey {
			return cloneBoard(board), nil
		}
	}
	return nil, nil
}

func (r *fakeBoardRepo) Rename(ctx context.Context, id uuid.UUID, name string, actorHash string, override bool) (*models.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	board, ok := r.boards[id]
	if !ok || !board.IsActive() || !(board.HasAdmin(actorHash) || override) {
		return nil, nil
	}
	board.Name = name
	return cloneBoard(board), nil
}

func (r *fakeBoardRepo) Close(ctx context.Context, id uuid.UUID, closedAt time.Time, actorHash string, override bool) (*models.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	board, ok := r.boards[id]
	if !ok || !board.IsActive() || !(board.HasAdmin(actorHash) || override) {
		return nil, nil
	}
	board.State = models.BoardStateClosed
	board.ClosedAt = &closedAt
	return cloneBoard(board), nil
}

func (r *fakeBoardRepo) AddAdmin(ctx context.Context, id uuid.UUID, adminHash string, actorHash string, override bool) (*models.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	board, ok := r.boards[id]
	if !ok || !board.IsActive() || !(board.IsCreator(actorHash) || override) || board.HasAdmin(adminHash) {
		return nil, nil
	}
	board.Admins = append(board.Admins, adminHash)
	return cloneBoard(board), nil
}

func (r *fakeBoardRepo) RenameColumn(ctx context.Context, id uuid.UUID, columnID uuid.UUID, name string, actorHash string, override bool) (*models.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	board, ok := r.boards[id]
	if !ok || !board.IsActive() || !(board.HasAdmin(actorHash) || override) {
		return nil, nil
	}
	renamed := false
	for i := range board.Columns {
		if board.Columns[i].ID == columnID {
			board.Columns[i].Name = name
			renamed = true
		}
	}
	if !renamed {
		return nil, nil
	}
	return cloneBoard(board), nil
}

func (r *fakeBoardRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boards, id)
	return nil
}

type fakeCardRepo struct {
	mu    sync.Mutex
	cards map[uuid.UUID]*models.Card
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: make(map[uuid.UUID]*models.Card)}
}

func cloneCard(c *models.Card) *models.Card {
	if c == nil {
		return nil
	}
	clone := *c
	clone.LinkedCardIDs = append(pq.StringArray(nil), c.LinkedCardIDs...)
	if c.ParentID != nil {
		id := *c.ParentID
		clone.ParentID = &id
	}
	if c.UpdatedAt != nil {
		t := *c.UpdatedAt
		clone.UpdatedAt = &t
	}
	if c.AuthorAlias != nil {
		a := *c.AuthorAlias
		clone.AuthorAlias = &a
	}
	return &clone
}

func (r *fakeCardRepo) Create(ctx context.Context, card *models.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards[card.ID] = cloneCard(card)
	return nil
}

func (r *fakeCardRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneCard(r.cards[id]), nil
}

func (r *fakeCardRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeCardRepo) GetByBoardID(ctx context.Context, boardID uuid.UUID) ([]*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cards []*models.Card
	for _, card := range r.cards {
		if card.BoardID == boardID {
			cards = append(cards, cloneCard(card))
		}
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].CreatedAt.After(cards[j].CreatedAt)
	})
	return cards, nil
}

func (r *fakeCardRepo) GetChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cards []*models.Card
	for _, card := range r.cards {
		if card.ParentID != nil && *card.ParentID == parentID {
			cards = append(cards, cloneCard(card))
		}
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].CreatedAt.After(cards[j].CreatedAt)
	})
	return cards, nil
}

func (r *fakeCardRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cards []*models.Card
	for _, id := range ids {
		if card, ok := r.cards[id]; ok {
			cards = append(cards, cloneCard(card))
		}
	}
	return cards, nil
}

func (r *fakeCardRepo) IDsByBoardID(ctx context.Context, boardID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, card := range r.cards {
		if card.BoardID == boardID {
			ids = append(ids, card.ID)
		}
	}
	return ids, nil
}

func (r *fakeCardRepo) CountByBoardAndAuthor(ctx context.Context, boardID uuid.UUID, authorHash string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, card := range r.cards {
		if card.BoardID == boardID && card.AuthorHash == authorHash {
			count++
		}
	}
	return count, nil
}

func (r *fakeCardRepo) UpdateContent(ctx context.Context, id uuid.UUID, content string, authorHash string, updatedAt time.Time) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	if !ok || card.AuthorHash != authorHash {
		return nil, nil
	}
	card.Content = content
	card.UpdatedAt = &updatedAt
	return cloneCard(card), nil
}

func (r *fakeCardRepo) MoveToColumn(ctx context.Context, id uuid.UUID, columnID uuid.UUID, authorHash string) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	if !ok || card.AuthorHash != authorHash {
		return nil, nil
	}
	card.ColumnID = columnID
	return cloneCard(card), nil
}

func (r *fakeCardRepo) SetParent(ctx context.Context, childID uuid.UUID, parentID uuid.UUID) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[childID]
	if !ok || card.ParentID != nil || card.Kind != models.CardKindFeedback {
		return nil, nil
	}
	id := parentID
	card.ParentID = &id
	return cloneCard(card), nil
}

func (r *fakeCardRepo) ClearParent(ctx context.Context, childID uuid.UUID, parentID uuid.UUID) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[childID]
	if !ok || card.ParentID == nil || *card.ParentID != parentID {
		return nil, nil
	}
	card.ParentID = nil
	return cloneCard(card), nil
}

func (r *fakeCardRepo) OrphanChildren(ctx context.Context, parentID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orphaned int64
	for _, card := range r.cards {
		if card.ParentID != nil && *card.ParentID == parentID {
			card.ParentID = nil
			orphaned++
		}
	}
	return orphaned, nil
}

func (r *fakeCardRepo) AddLinkedCard(ctx context.Context, actionID uuid.UUID, feedbackID uuid.UUID) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[actionID]
	if !ok || card.Kind != models.CardKindAction || card.LinksTo(feedbackID) {
		return nil, nil
	}
	card.LinkedCardIDs = append(card.LinkedCardIDs, feedbackID.String())
	return cloneCard(card), nil
}

func (r *fakeCardRepo) RemoveLinkedCard(ctx context.Context, actionID uuid.UUID, feedbackID uuid.UUID) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[actionID]
	if !ok || !card.LinksTo(feedbackID) {
		return nil, nil
	}
	card.LinkedCardIDs = removeString(card.LinkedCardIDs, feedbackID.String())
	return cloneCard(card), nil
}

func (r *fakeCardRepo) RemoveLinkedCardEverywhere(ctx context.Context, boardID uuid.UUID, cardID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range r.cards {
		if card.BoardID == boardID && card.LinksTo(cardID) {
			card.LinkedCardIDs = removeString(card.LinkedCardIDs, cardID.String())
		}
	}
	return nil
}

func (r *fakeCardRepo) AdjustReactionCounts(ctx context.Context, id uuid.UUID, delta int) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	if !ok {
		return nil, nil
	}
	card.ReactionCount += delta
	card.AggregateReactionCount += delta
	return cloneCard(card), nil
}

func (r *fakeCardRepo) AdjustAggregateCount(ctx context.Context, id uuid.UUID, delta int) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	if !ok {
		return nil, nil
	}
	card.AggregateReactionCount += delta
	return cloneCard(card), nil
}

func (r *fakeCardRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cards, id)
	return nil
}

func (r *fakeCardRepo) DeleteByBoardID(ctx context.Context, boardID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, card := range r.cards {
		if card.BoardID == boardID {
			delete(r.cards, id)
			deleted++
		}
	}
	return deleted, nil
}

func removeString(list pq.StringArray, value string) pq.StringArray {
	out := list[:0]
	for _, s := range list {
		if s != value {
			out = append(out, s)
		}
	}
	return out
}

type fakeReactionRepo struct {
	mu        sync.Mutex
	reactions map[string]*models.Reaction
	cards     *fakeCardRepo
}

func newFakeReactionRepo(cards *fakeCardRepo) *fakeReactionRepo {
	return &fakeReactionRepo{reactions: make(map[string]*models.Reaction), cards: cards}
}

func reactionKey(cardID uuid.UUID, userHash string) string {
	return cardID.String() + "|" + userHash
}

func (r *fakeReactionRepo) Create(ctx context.Context, reaction *models.Reaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reactionKey(reaction.CardID, reaction.UserHash)
	if _, ok := r.reactions[key]; ok {
		return false, nil
	}
	clone := *reaction
	r.reactions[key] = &clone
	return true, nil
}

func (r *fakeReactionRepo) GetByCardAndUser(ctx context.Context, cardID uuid.UUID, userHash string) (*models.Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reaction, ok := r.reactions[reactionKey(cardID, userHash)]
	if !ok {
		return nil, nil
	}
	clone := *reaction
	return &clone, nil
}

func (r *fakeReactionRepo) Delete(ctx context.Context, cardID uuid.UUID, userHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reactionKey(cardID, userHash)
	if _, ok := r.reactions[key]; !ok {
		return false, nil
	}
	delete(r.reactions, key)
	return true, nil
}

func (r *fakeReactionRepo) CountByBoardAndUser(ctx context.Context, boardID uuid.UUID, userHash string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, reaction := range r.reactions {
		if reaction.UserHash != userHash {
			continue
		}
		card, _ := r.cards.GetByID(ctx, reaction.CardID)
		if card != nil && card.BoardID == boardID {
			count++
		}
	}
	return count, nil
}

func (r *fakeReactionRepo) DeleteByCardID(ctx context.Context, cardID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for key, reaction := range r.reactions {
		if reaction.CardID == cardID {
			delete(r.reactions, key)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeReactionRepo) DeleteByCardIDs(ctx context.Context, cardIDs []uuid.UUID) (int64, error) {
	var deleted int64
	for _, id := range cardIDs {
		n, _ := r.DeleteByCardID(ctx, id)
		deleted += n
	}
	return deleted, nil
}

func (r *fakeReactionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reactions)
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	participants map[string]*models.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{participants: make(map[string]*models.Participant)}
}

func participantKey(boardID uuid.UUID, userHash string) string {
	return boardID.String() + "|" + userHash
}

func (r *fakeParticipantRepo) Upsert(ctx context.Context, participant *models.Participant) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := participantKey(participant.BoardID, participant.UserHash)
	if existing, ok := r.participants[key]; ok {
		existing.Name = participant.Name
		existing.LastSeenAt = participant.LastSeenAt
		clone := *existing
		return &clone, nil
	}
	clone := *participant
	r.participants[key] = &clone
	stored := clone
	return &stored, nil
}

func (r *fakeParticipantRepo) GetByBoardAndUser(ctx context.Context, boardID uuid.UUID, userHash string) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	participant, ok := r.participants[participantKey(boardID, userHash)]
	if !ok {
		return nil, nil
	}
	clone := *participant
	return &clone, nil
}

func (r *fakeParticipantRepo) GetByBoardID(ctx context.Context, boardID uuid.UUID) ([]*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var participants []*models.Participant
	for _, participant := range r.participants {
		if participant.BoardID == boardID {
			clone := *participant
			participants = append(participants, &clone)
		}
	}
	sort.SliceStable(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return participants, nil
}

func (r *fakeParticipantRepo) Touch(ctx context.Context, boardID uuid.UUID, userHash string, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if participant, ok := r.participants[participantKey(boardID, userHash)]; ok {
		participant.LastSeenAt = seenAt
	}
	return nil
}

func (r *fakeParticipantRepo) DeleteByBoardID(ctx context.Context, boardID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for key, participant := range r.participants {
		if participant.BoardID == boardID {
			delete(r.participants, key)
			deleted++
		}
	}
	return deleted, nil
}

// fakeUnitOfWork runs the function directly, like the sequential unit of
// work does in production fallback mode.
type fakeUnitOfWork struct{}

func (fakeUnitOfWork) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// testEnv wires every service against the in-memory fakes with a recording
// broadcaster.
type testEnv struct {
	ctx context.Context

	boards       *fakeBoardRepo
	cards        *fakeCardRepo
	reactions    *fakeReactionRepo
	participants *fakeParticipantRepo
	recorder     *broadcast.Recorder

	boardService       BoardService
	cardService        CardService
	reactionService    ReactionService
	participantService ParticipantService
	cascade            CascadeDeleter
}

func newTestEnv() *testEnv {
	boards := newFakeBoardRepo()
	cards := newFakeCardRepo()
	reactions := newFakeReactionRepo(cards)
	participants := newFakeParticipantRepo()
	recorder := &broadcast.Recorder{}
	uow := fakeUnitOfWork{}

	cascade := NewCascadeService(boards, cards, reactions, participants, uow, recorder)

	return &testEnv{
		ctx:                context.Background(),
		boards:             boards,
		cards:              cards,
		reactions:          reactions,
		participants:       participants,
		recorder:           recorder,
		boardService:       NewBoardService(boards, cascade, recorder, nil),
		cardService:        NewCardService(cards, boards, reactions, uow, recorder),
		reactionService:    NewReactionService(reactions, cards, boards, uow, recorder),
		participantService: NewParticipantService(participants, boards),
		cascade:            cascade,
	}
}

// createBoard seeds an active board with the given creator and two columns
func (env *testEnv) createBoard(t *testing.T, creatorHash string) *models.Board {
	t.Helper()
	board, err := env.boardService.CreateBoard(env.ctx, "Sprint 12 Retro", []models.Column{
		{Name: "Went well"},
		{Name: "To improve"},
	}, creatorHash, nil, nil)
	if err != nil {
		t.Fatalf("creating board: %v", err)
	}
	return board
}

// createCard seeds a card through the service
func (env *testEnv) createCard(t *testing.T, board *models.Board, kind models.CardKind, authorHash string) *models.Card {
	t.Helper()
	card, err := env.cardService.CreateCard(env.ctx, board.ID, board.Columns[0].ID, "card by "+authorHash, kind, false, authorHash, authorHash)
	if err != nil {
		t.Fatalf("creating card: %v", err)
	}
	return card
}

// eventsOfType filters the recorded broadcasts down to one intent type
func (env *testEnv) eventsOfType(eventType events.Type) []events.Event {
	var matched []events.Event
	for _, event := range env.recorder.Events() {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}
