package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retroflect/backend/internal/middleware"
	"github.com/retroflect/backend/internal/models"
	"github.com/retroflect/backend/internal/services"
)

// CardHandler handles HTTP requests related to cards, including the
// hierarchy link operations
type CardHandler struct {
	cardService services.CardService
}

// NewCardHandler creates a new CardHandler
func NewCardHandler(cardService services.CardService) *CardHandler {
	return &CardHandler{
		cardService: cardService,
	}
}

// CreateCard creates a card on a board column
func (h *CardHandler) CreateCard(c *gin.Context) {
	var req struct {
		BoardID     string `json:"board_id" binding:"required"`
		ColumnID    string `json:"column_id" binding:"required"`
		Content     string `json:"content" binding:"required"`
		Kind        string `json:"kind" binding:"required"`
		Anonymous   bool   `json:"anonymous"`
		AuthorAlias string `json:"author_alias"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	boardID, err := uuid.Parse(req.BoardID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid board ID"})
		return
	}
	columnID, err := uuid.Parse(req.ColumnID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid column ID"})
		return
	}

	card, err := h.cardService.CreateCard(c.Request.Context(), boardID, columnID, req.Content,
		models.CardKind(req.Kind), req.Anonymous, req.AuthorAlias, middleware.UserHash(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, card)
}

// GetCard gets a card by ID
func (h *CardHandler) GetCard(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	card, err := h.cardService.GetCardByID(c.Request.Context(), cardID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, card)
}

// ListBoardCards returns a board's top-level cards with children and linked
// feedback materialized
func (h *CardHandler) ListBoardCards(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	cards, err := h.cardService.GetCardsByBoardID(c.Request.Context(), boardID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cards": cards})
}

// UpdateCard replaces a card's content
func (h *CardHandler) UpdateCard(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	card, err := h.cardService.UpdateCardContent(c.Request.Context(), cardID, req.Content, middleware.UserHash(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, card)
}

// MoveCard moves a card to another column
func (h *CardHandler) MoveCard(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		ColumnID string `json:"column_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	columnID, err := uuid.Parse(req.ColumnID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid column ID"})
		return
	}

	card, err := h.cardService.MoveCard(c.Request.Context(), cardID, columnID, middleware.UserHash(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, card)
}

// LinkCards relates the card in the path to the target in the body
func (h *CardHandler) LinkCards(c *gin.Context) {
	sourceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		TargetID string `json:"target_id" binding:"required"`
		Kind     string `json:"kind" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target ID"})
		return
	}

	err = h.cardService.LinkCards(c.Request.Context(), sourceID, targetID,
		models.LinkKind(req.Kind), middleware.UserHash(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UnlinkCards removes the relation between the card in the path and the
// target in the path; the link kind comes from the query string
func (h *CardHandler) UnlinkCards(c *gin.Context) {
	sourceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := parseIDParam(c, "target_id")
	if !ok {
		return
	}

	kind := models.LinkKind(c.DefaultQuery("kind", string(models.LinkParentOf)))

	err := h.cardService.UnlinkCards(c.Request.Context(), sourceID, targetID, kind, middleware.UserHash(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteCard deletes a card together with its reactions and link repairs
func (h *CardHandler) DeleteCard(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	err := h.cardService.DeleteCard(c.Request.Context(), cardID, middleware.UserHash(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "card deleted"})
}

// RegisterRoutes registers the card routes
func (h *CardHandler) RegisterRoutes(router *gin.RouterGroup) {
	cards := router.Group("/cards")

	cards.POST("", h.CreateCard)
	cards.GET("/:id", h.GetCard)
	cards.PUT("/:id", h.UpdateCard)
	cards.PUT("/:id/column", h.MoveCard)
	cards.POST("/:id/links", h.LinkCards)
	cards.DELETE("/:id/links/:target_id", h.UnlinkCards)
	cards.DELETE("/:id", h.DeleteCard)

	router.GET("/boards/:id/cards", h.ListBoardCards)
}
