package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retroflect/backend/internal/middleware"
	"github.com/retroflect/backend/internal/models"
	"github.com/retroflect/backend/internal/services"
)

// BoardHandler handles HTTP requests related to boards
type BoardHandler struct {
	boardService services.BoardService
}

// NewBoardHandler creates a new BoardHandler
func NewBoardHandler(boardService services.BoardService) *BoardHandler {
	return &BoardHandler{
		boardService: boardService,
	}
}

// CreateBoard creates a new board owned by the caller
func (h *BoardHandler) CreateBoard(c *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required"`
		Columns []struct {
			Name  string `json:"name" binding:"required"`
			Color string `json:"color"`
		} `json:"columns" binding:"required,min=1,dive"`
		MaxCardsPerUser     *int `json:"max_cards_per_user"`
		MaxReactionsPerUser *int `json:"max_reactions_per_user"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	columns := make([]models.Column, len(req.Columns))
	for i, col := range req.Columns {
		columns[i] = models.Column{Name: col.Name, Color: col.Color}
	}

	board, err := h.boardService.CreateBoard(c.Request.Context(), req.Name, columns,
		middleware.UserHash(c), req.MaxCardsPerUser, req.MaxReactionsPerUser)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, board)
}

// GetBoard gets a board by ID
func (h *BoardHandler) GetBoard(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	board, err := h.boardService.GetBoardByID(c.Request.Context(), boardID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}

// GetBoardByAccessKey resolves a board from its shareable access key
func (h *BoardHandler) GetBoardByAccessKey(c *gin.Context) {
	board, err := h.boardService.GetBoardByAccessKey(c.Request.Context(), c.Param("access_key"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}

// RenameBoard renames a board
func (h *BoardHandler) RenameBoard(c *gin.Context) {
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

	board, err := h.boardService.RenameBoard(c.Request.Context(), boardID, req.Name,
		middleware.UserHash(c), middleware.HasOverride(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}

// CloseBoard transitions a board to its terminal closed state
func (h *BoardHandler) CloseBoard(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	board, err := h.boardService.CloseBoard(c.Request.Context(), boardID,
		middleware.UserHash(c), middleware.HasOverride(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}

// AddAdmin grants another user admin membership on the board
func (h *BoardHandler) AddAdmin(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		AdminHash string `json:"admin_hash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	board, err := h.boardService.AddAdmin(c.Request.Context(), boardID, req.AdminHash,
		middleware.UserHash(c), middleware.HasOverride(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}

// RenameColumn renames a single column on the board
func (h *BoardHandler) RenameColumn(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	columnID, ok := parseIDParam(c, "column_id")
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

	board, err := h.boardService.RenameColumn(c.Request.Context(), boardID, columnID, req.Name,
		middleware.UserHash(c), middleware.HasOverride(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}

// DeleteBoard deletes a board and everything on it
func (h *BoardHandler) DeleteBoard(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	err := h.boardService.DeleteBoard(c.Request.Context(), boardID,
		middleware.UserHash(c), middleware.HasOverride(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "board deleted"})
}

// RegisterRoutes registers the board routes
func (h *BoardHandler) RegisterRoutes(router *gin.RouterGroup) {
	boards := router.Group("/boards")

	boards.POST("", h.CreateBoard)
	boards.GET("/:id", h.GetBoard)
	boards.GET("/key/:access_key", h.GetBoardByAccessKey)
	boards.PUT("/:id/name", h.RenameBoard)
	boards.POST("/:id/close", h.CloseBoard)
	boards.POST("/:id/admins", h.AddAdmin)
	boards.PUT("/:id/columns/:column_id", h.RenameColumn)
	boards.DELETE("/:id", h.DeleteBoard)
}
