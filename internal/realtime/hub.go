// Package realtime is the websocket gateway: one room per board, fed by the
// broadcast intents the core emits after each committed mutation. Clients are
// pure consumers; every mutation goes through the HTTP API.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/retroflect/backend/internal/events"
	"github.com/retroflect/backend/pkg/logger"
)

// Hub maintains the per-board rooms and fans events out to their clients
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan events.Event
	queries    chan watcherQuery
	rooms      map[uuid.UUID]map[*Client]bool
}

type watcherQuery struct {
	boardID uuid.UUID
	reply   chan int
}

// NewHub creates a hub. Run must be started for it to do anything.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan events.Event, 256),
		queries:    make(chan watcherQuery),
		rooms:      make(map[uuid.UUID]map[*Client]bool),
	}
}

// Register adds a client to its board's room
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from its board's room
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Watchers reports how many clients are currently watching a board
func (h *Hub) Watchers(boardID uuid.UUID) int {
	q := watcherQuery{boardID: boardID, reply: make(chan int, 1)}
	h.queries <- q
	return <-q.reply
}

// Broadcast implements broadcast.Broadcaster, so a single-process deployment
// wires the hub directly as the core's broadcaster. Never blocks: when the
// buffer is full the event is dropped and logged, matching the best-effort
// delivery contract.
func (h *Hub) Broadcast(_ context.Context, event events.Event) {
	select {
	case h.events <- event:
	default:
		logger.Warn.Printf("realtime: dropping %s event for board %s, hub buffer full", event.Type, event.BoardID)
	}
}

// Run is the hub's main loop. It owns the room map; all access happens here.
// Cancelling ctx closes every client's send channel, which ends their write
// pumps.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for client := range room {
					close(client.send)
				}
			}
			h.rooms = make(map[uuid.UUID]map[*Client]bool)
			return

		case client := <-h.register:
			room := h.rooms[client.boardID]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[client.boardID] = room
			}
			room[client] = true

		case client := <-h.unregister:
			if room, ok := h.rooms[client.boardID]; ok {
				if _, ok := room[client]; ok {
					delete(room, client)
					close(client.send)
					if len(room) == 0 {
						delete(h.rooms, client.boardID)
					}
				}
			}

		case q := <-h.queries:
			q.reply <- len(h.rooms[q.boardID])

		case event := <-h.events:
			h.dispatch(event)
		}
	}
}

func (h *Hub) dispatch(event events.Event) {
	room := h.rooms[event.BoardID]
	if len(room) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error.Printf("realtime: marshal %s event: %v", event.Type, err)
		return
	}

	for client := range room {
		select {
		case client.send <- payload:
		default:
			// Client cannot keep up, assume disconnected
			delete(room, client)
			close(client.send)
		}
	}
	if len(room) == 0 {
		delete(h.rooms, event.BoardID)
	}
}
