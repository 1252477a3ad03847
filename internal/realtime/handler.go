package realtime

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/retroflect/backend/internal/services"
	"github.com/retroflect/backend/pkg/logger"
)

// Handler upgrades board-watch requests to websocket connections
type Handler struct {
	hub          *Hub
	boardService services.BoardService
	upgrader     websocket.Upgrader
}

// NewHandler creates a websocket handler. allowedOrigins restricts which
// browser origins may connect; an empty list allows any origin.
func NewHandler(hub *Hub, boardService services.BoardService, allowedOrigins []string) *Handler {
	return &Handler{
		hub:          hub,
		boardService: boardService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Watch handles GET /boards/:id/ws. The board must exist; closed boards are
// still watchable since they remain readable.
func (h *Handler) Watch(c *gin.Context) {
	boardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid board ID"})
		return
	}

	board, err := h.boardService.GetBoardByID(c.Request.Context(), boardID)
	if err != nil {
		if services.KindOf(err) == services.KindNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get board"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response
		logger.Warn.Printf("realtime: upgrade failed for board %s: %v", board.ID, err)
		return
	}

	client := NewClient(h.hub, conn, board.ID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// RegisterRoutes registers the websocket route
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/boards/:id/ws", h.Watch)
}

func originChecker(allowedOrigins []string) func(*http.Request) bool {
	if len(allowedOrigins) == 0 {
		return func(*http.Request) bool { return true }
	}

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimSuffix(origin, "/")] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser client
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return allowed[u.Scheme+"://"+u.Host]
	}
}
