package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/retroflect/backend/config"
	"github.com/retroflect/backend/internal/identity"
	"github.com/retroflect/backend/internal/middleware"
	"github.com/retroflect/backend/internal/models"
	"github.com/retroflect/backend/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Service stubs embed the interface and override only what a test needs, so
// an unexpected call panics instead of passing silently.

type stubBoardService struct {
	services.BoardService
	create  func(ctx context.Context, name string, columns []models.Column, creatorHash string, maxCards, maxReactions *int) (*models.Board, error)
	getByID func(ctx context.Context, id uuid.UUID) (*models.Board, error)
	rename  func(ctx context.Context, id uuid.UUID, name string, actorHash string, override bool) (*models.Board, error)
	close   func(ctx context.Context, id uuid.UUID, actorHash string, override bool) (*models.Board, error)
	delete  func(ctx context.Context, id uuid.UUID, actorHash string, override bool) error
}

func (s *stubBoardService) CreateBoard(ctx context.Context, name string, columns []models.Column, creatorHash string, maxCards, maxReactions *int) (*models.Board, error) {
	return s.create(ctx, name, columns, creatorHash, maxCards, maxReactions)
}

func (s *stubBoardService) GetBoardByID(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	return s.getByID(ctx, id)
}

func (s *stubBoardService) RenameBoard(ctx context.Context, id uuid.UUID, name string, actorHash string, override bool) (*models.Board, error) {
	return s.rename(ctx, id, name, actorHash, override)
}

func (s *stubBoardService) CloseBoard(ctx context.Context, id uuid.UUID, actorHash string, override bool) (*models.Board, error) {
	return s.close(ctx, id, actorHash, override)
}

func (s *stubBoardService) DeleteBoard(ctx context.Context, id uuid.UUID, actorHash string, override bool) error {
	return s.delete(ctx, id, actorHash, override)
}

type stubCardService struct {
	services.CardService
	create func(ctx context.Context, boardID, columnID uuid.UUID, content string, kind models.CardKind, anonymous bool, authorAlias string, authorHash string) (*models.Card, error)
	link   func(ctx context.Context, sourceID, targetID uuid.UUID, kind models.LinkKind, actorHash string) error
	unlink func(ctx context.Context, sourceID, targetID uuid.UUID, kind models.LinkKind, actorHash string) error
}

func (s *stubCardService) CreateCard(ctx context.Context, boardID, columnID uuid.UUID, content string, kind models.CardKind, anonymous bool, authorAlias string, authorHash string) (*models.Card, error) {
	return s.create(ctx, boardID, columnID, content, kind, anonymous, authorAlias, authorHash)
}

func (s *stubCardService) LinkCards(ctx context.Context, sourceID, targetID uuid.UUID, kind models.LinkKind, actorHash string) error {
	return s.link(ctx, sourceID, targetID, kind, actorHash)
}

func (s *stubCardService) UnlinkCards(ctx context.Context, sourceID, targetID uuid.UUID, kind models.LinkKind, actorHash string) error {
	return s.unlink(ctx, sourceID, targetID, kind, actorHash)
}

type stubReactionService struct {
	services.ReactionService
	add func(ctx context.Context, cardID uuid.UUID, userHash string) (*models.Card, error)
}

func (s *stubReactionService) AddReaction(ctx context.Context, cardID uuid.UUID, userHash string) (*models.Card, error) {
	return s.add(ctx, cardID, userHash)
}

type stubParticipantService struct {
	services.ParticipantService
	joinByKey func(ctx context.Context, accessKey string, userHash, name string) (*models.Board, *models.Participant, error)
}

func (s *stubParticipantService) JoinBoardByAccessKey(ctx context.Context, accessKey string, userHash, name string) (*models.Board, *models.Participant, error) {
	return s.joinByKey(ctx, accessKey, userHash, name)
}

type routeRegistrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// handlerEnv runs the handlers behind the real identity and override
// middlewares so the hash and override flag flow exactly as in production
type handlerEnv struct {
	router *gin.Engine
	token  string
	hash   string
}

func newHandlerEnv(t *testing.T, adminSecretHash string, registrars ...routeRegistrar) *handlerEnv {
	t.Helper()

	issuer := identity.NewIssuer("test-secret", time.Hour)
	token, hash, err := issuer.Issue()
	require.NoError(t, err)

	cfg := &config.Config{
		Environment:           "test",
		IdentityTokenDuration: time.Hour,
	}

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.Identity(issuer, cfg))
	api.Use(middleware.Override(adminSecretHash))
	for _, registrar := range registrars {
		registrar.RegisterRoutes(api)
	}

	return &handlerEnv{router: router, token: token, hash: hash}
}

func (env *handlerEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestCreateBoardRoute(t *testing.T) {
	var gotCreator string
	stub := &stubBoardService{
		create: func(ctx context.Context, name string, columns []models.Column, creatorHash string, maxCards, maxReactions *int) (*models.Board, error) {
			gotCreator = creatorHash
			return models.NewBoard(name, columns, creatorHash, maxCards, maxReactions), nil
		},
	}
	env := newHandlerEnv(t, "", NewBoardHandler(stub))

	w := env.do(t, http.MethodPost, "/api/v1/boards", gin.H{
		"name": "Sprint Retro",
		"columns": []gin.H{
			{"name": "Went well"},
			{"name": "To improve", "color": "#f00"},
		},
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Sprint Retro")
	assert.Equal(t, env.hash, gotCreator)
}

func TestCreateBoardRouteBadRequest(t *testing.T) {
	stub := &stubBoardService{
		create: func(ctx context.Context, name string, columns []models.Column, creatorHash string, maxCards, maxReactions *int) (*models.Board, error) {
			t.Fatal("service must not be called on a binding failure")
			return nil, nil
		},
	}
	env := newHandlerEnv(t, "", NewBoardHandler(stub))

	// No columns
	w := env.do(t, http.MethodPost, "/api/v1/boards", gin.H{"name": "Retro"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBoardRouteNotFound(t *testing.T) {
	stub := &stubBoardService{
		getByID: func(ctx context.Context, id uuid.UUID) (*models.Board, error) {
			return nil, services.ErrBoardNotFound
		},
	}
	env := newHandlerEnv(t, "", NewBoardHandler(stub))

	w := env.do(t, http.MethodGet, "/api/v1/boards/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetBoardRouteBadID(t *testing.T) {
	env := newHandlerEnv(t, "", NewBoardHandler(&stubBoardService{}))

	w := env.do(t, http.MethodGet, "/api/v1/boards/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenameBoardRouteMapsClosed(t *testing.T) {
	stub := &stubBoardService{
		rename: func(ctx context.Context, id uuid.UUID, name string, actorHash string, override bool) (*models.Board, error) {
			return nil, services.ErrBoardClosed
		},
	}
	env := newHandlerEnv(t, "", NewBoardHandler(stub))

	w := env.do(t, http.MethodPut, "/api/v1/boards/"+uuid.NewString()+"/name", gin.H{"name": "Renamed"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCloseBoardRouteMapsForbidden(t *testing.T) {
	stub := &stubBoardService{
		close: func(ctx context.Context, id uuid.UUID, actorHash string, override bool) (*models.Board, error) {
			return nil, services.ErrForbidden
		},
	}
	env := newHandlerEnv(t, "", NewBoardHandler(stub))

	w := env.do(t, http.MethodPost, "/api/v1/boards/"+uuid.NewString()+"/close", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteBoardRouteCarriesOverride(t *testing.T) {
	secretHash, err := bcrypt.GenerateFromPassword([]byte("opensesame"), bcrypt.MinCost)
	require.NoError(t, err)

	var gotOverride bool
	stub := &stubBoardService{
		delete: func(ctx context.Context, id uuid.UUID, actorHash string, override bool) error {
			gotOverride = override
			return nil
		},
	}
	env := newHandlerEnv(t, string(secretHash), NewBoardHandler(stub))

	w := env.do(t, http.MethodDelete, "/api/v1/boards/"+uuid.NewString(), nil, map[string]string{
		"X-Admin-Secret": "opensesame",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOverride)
}

func TestCreateCardRouteMapsQuota(t *testing.T) {
	stub := &stubCardService{
		create: func(ctx context.Context, boardID, columnID uuid.UUID, content string, kind models.CardKind, anonymous bool, authorAlias string, authorHash string) (*models.Card, error) {
			return nil, services.ErrCardQuotaReached
		},
	}
	env := newHandlerEnv(t, "", NewCardHandler(stub))

	w := env.do(t, http.MethodPost, "/api/v1/cards", gin.H{
		"board_id":  uuid.NewString(),
		"column_id": uuid.NewString(),
		"content":   "one card too many",
		"kind":      "feedback",
	}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLinkCardsRoute(t *testing.T) {
	sourceID := uuid.New()
	targetID := uuid.New()

	var gotSource, gotTarget uuid.UUID
	var gotKind models.LinkKind
	stub := &stubCardService{
		link: func(ctx context.Context, src, tgt uuid.UUID, kind models.LinkKind, actorHash string) error {
			gotSource, gotTarget, gotKind = src, tgt, kind
			return nil
		},
	}
	env := newHandlerEnv(t, "", NewCardHandler(stub))

	w := env.do(t, http.MethodPost, "/api/v1/cards/"+sourceID.String()+"/links", gin.H{
		"target_id": targetID.String(),
		"kind":      "parent_of",
	}, nil)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, sourceID, gotSource)
	assert.Equal(t, targetID, gotTarget)
	assert.Equal(t, models.LinkParentOf, gotKind)
}

func TestLinkCardsRouteMapsCircular(t *testing.T) {
	stub := &stubCardService{
		link: func(ctx context.Context, src, tgt uuid.UUID, kind models.LinkKind, actorHash string) error {
			return services.ErrCircularRelationship
		},
	}
	env := newHandlerEnv(t, "", NewCardHandler(stub))

	w := env.do(t, http.MethodPost, "/api/v1/cards/"+uuid.NewString()+"/links", gin.H{
		"target_id": uuid.NewString(),
		"kind":      "parent_of",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUnlinkCardsRouteKindFromQuery(t *testing.T) {
	var gotKind models.LinkKind
	stub := &stubCardService{
		unlink: func(ctx context.Context, src, tgt uuid.UUID, kind models.LinkKind, actorHash string) error {
			gotKind = kind
			return nil
		},
	}
	env := newHandlerEnv(t, "", NewCardHandler(stub))

	path := "/api/v1/cards/" + uuid.NewString() + "/links/" + uuid.NewString()

	w := env.do(t, http.MethodDelete, path+"?kind=linked_to", nil, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.LinkLinkedTo, gotKind)

	// parent_of is the default
	w = env.do(t, http.MethodDelete, path, nil, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.LinkParentOf, gotKind)
}

func TestAddReactionRoute(t *testing.T) {
	cardID := uuid.New()
	stub := &stubReactionService{
		add: func(ctx context.Context, id uuid.UUID, userHash string) (*models.Card, error) {
			return &models.Card{ID: id, ReactionCount: 3, AggregateReactionCount: 5}, nil
		},
	}
	env := newHandlerEnv(t, "", NewReactionHandler(stub))

	w := env.do(t, http.MethodPost, "/api/v1/cards/"+cardID.String()+"/reactions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reaction_count":3`)
	assert.Contains(t, w.Body.String(), `"aggregate_reaction_count":5`)
}

func TestJoinByAccessKeyRoute(t *testing.T) {
	stub := &stubParticipantService{
		joinByKey: func(ctx context.Context, accessKey string, userHash, name string) (*models.Board, *models.Participant, error) {
			board := models.NewBoard("Retro", []models.Column{{Name: "A"}}, "creator", nil, nil)
			board.AccessKey = accessKey
			return board, models.NewParticipant(board.ID, userHash, name), nil
		},
	}
	env := newHandlerEnv(t, "", NewParticipantHandler(stub))

	w := env.do(t, http.MethodPost, "/api/v1/join", gin.H{
		"access_key": "ABC123XYZ0",
		"name":       "Sam",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"board"`)
	assert.Contains(t, w.Body.String(), `"participant"`)
	assert.Contains(t, w.Body.String(), "ABC123XYZ0")
}
