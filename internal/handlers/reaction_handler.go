package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retroflect/backend/internal/middleware"
	"github.com/retroflect/backend/internal/services"
)

// ReactionHandler handles HTTP requests related to reactions
type ReactionHandler struct {
	reactionService services.ReactionService
}

// NewReactionHandler creates a new ReactionHandler
func NewReactionHandler(reactionService services.ReactionService) *ReactionHandler {
	return &ReactionHandler{
		reactionService: reactionService,
	}
}

// AddReaction places the caller's reaction on a card and returns the card
// with its updated counters
func (h *ReactionHandler) AddReaction(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	card, err := h.reactionService.AddReaction(c.Request.Context(), cardID, middleware.UserHash(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, card)
}

// RemoveReaction takes the caller's reaction off a card
func (h *ReactionHandler) RemoveReaction(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	card, err := h.reactionService.RemoveReaction(c.Request.Context(), cardID, middleware.UserHash(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, card)
}

// RegisterRoutes registers the reaction routes
func (h *ReactionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/cards/:id/reactions", h.AddReaction)
	router.DELETE("/cards/:id/reactions", h.RemoveReaction)
}
