package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retroflect/backend/internal/middleware"
	"github.com/retroflect/backend/internal/services"
)

// ParticipantHandler handles HTTP requests related to participant sessions
type ParticipantHandler struct {
	participantService services.ParticipantService
}

// NewParticipantHandler creates a new ParticipantHandler
func NewParticipantHandler(participantService services.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{
		participantService: participantService,
	}
}

// JoinBoard records the caller as a participant of the board
func (h *ParticipantHandler) JoinBoard(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participant, err := h.participantService.JoinBoard(c.Request.Context(), boardID, middleware.UserHash(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, participant)
}

// JoinByAccessKey is the share-link entry point: it resolves the access key
// and joins the board in one call
func (h *ParticipantHandler) JoinByAccessKey(c *gin.Context) {
	var req struct {
		AccessKey string `json:"access_key" binding:"required"`
		Name      string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	board, participant, err := h.participantService.JoinBoardByAccessKey(c.Request.Context(),
		req.AccessKey, middleware.UserHash(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"board":       board,
		"participant": participant,
	})
}

// ListParticipants returns the board's roster in join order
func (h *ParticipantHandler) ListParticipants(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	participants, err := h.participantService.GetParticipants(c.Request.Context(), boardID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

// Heartbeat refreshes the caller's last-seen time on the board
func (h *ParticipantHandler) Heartbeat(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.participantService.TouchParticipant(c.Request.Context(), boardID, middleware.UserHash(c)); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the participant routes
func (h *ParticipantHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/join", h.JoinByAccessKey)
	router.POST("/boards/:id/participants", h.JoinBoard)
	router.GET("/boards/:id/participants", h.ListParticipants)
	router.POST("/boards/:id/heartbeat", h.Heartbeat)
}
