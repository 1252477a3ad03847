package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// BoardState is the lifecycle state of a board. Closed is terminal: a closed
// board never transitions back to active.
type BoardState string

const (
	// BoardStateActive indicates the board accepts mutations
	BoardStateActive BoardState = "active"
	// BoardStateClosed indicates the board is read-only
	BoardStateClosed BoardState = "closed"
)

// Column is a single lane on a board. The id is assigned at board creation and
// never changes; only the name is mutable afterwards.
type Column struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color,omitempty"`
}

// ColumnList is the ordered column set of a board, stored as a single jsonb
// value so column edits stay part of the board document's atomic updates.
type ColumnList []Column

// Value implements driver.Valuer for jsonb storage
func (c ColumnList) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for jsonb storage
func (c *ColumnList) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ColumnList", src)
	}
}

// Board represents a retrospective board with its columns, admin set, and
// lifecycle state. All identities on a board are opaque per-user hashes.
type Board struct {
	ID                  uuid.UUID      `json:"id" db:"id"`
	Name                string         `json:"name" db:"name"`
	AccessKey           string         `json:"access_key" db:"access_key"`
	Columns             ColumnList     `json:"columns" db:"columns"`
	State               BoardState     `json:"state" db:"state"`
	MaxCardsPerUser     *int           `json:"max_cards_per_user,omitempty" db:"max_cards_per_user"`
	MaxReactionsPerUser *int           `json:"max_reactions_per_user,omitempty" db:"max_reactions_per_user"`
	CreatedBy           string         `json:"created_by" db:"created_by"`
	Admins              pq.StringArray `json:"admins" db:"admins"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	ClosedAt            *time.Time     `json:"closed_at,omitempty" db:"closed_at"`
}

// NewBoard creates an active board owned by creatorHash. The creator is
// recorded explicitly and seeded as the first admin. Column ids are assigned
// here; nil limits mean unlimited.
func NewBoard(name string, columns []Column, creatorHash string, maxCards, maxReactions *int) *Board {
	cols := make(ColumnList, len(columns))
	for i, col := range columns {
		cols[i] = Column{ID: uuid.New(), Name: col.Name, Color: col.Color}
	}

	return &Board{
		ID:                  uuid.New(),
		Name:                name,
		Columns:             cols,
		State:               BoardStateActive,
		MaxCardsPerUser:     maxCards,
		MaxReactionsPerUser: maxReactions,
		CreatedBy:           creatorHash,
		Admins:              pq.StringArray{creatorHash},
		CreatedAt:           time.Now(),
	}
}

// IsActive reports whether the board still accepts mutations
func (b *Board) IsActive() bool {
	return b.State == BoardStateActive
}

// HasAdmin reports whether userHash is in the board's admin set
func (b *Board) HasAdmin(userHash string) bool {
	for _, admin := range b.Admins {
		if admin == userHash {
			return true
		}
	}
	return false
}

// IsCreator reports whether userHash created the board
func (b *Board) IsCreator(userHash string) bool {
	return b.CreatedBy == userHash
}

// Column returns the column with the given id, if present
func (b *Board) Column(id uuid.UUID) (Column, bool) {
	for _, col := range b.Columns {
		if col.ID == id {
			return col, true
		}
	}
	return Column{}, false
}

// Close marks the board closed. Calling Close on an already closed board
// leaves the original closure timestamp in place.
func (b *Board) Close() {
	if b.State == BoardStateClosed {
		return
	}
	now := time.Now()
	b.State = BoardStateClosed
	b.ClosedAt = &now
}
