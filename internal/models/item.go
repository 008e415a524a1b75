package models

import "time"

// Item represents an owner-scoped item record in the database.
type Item struct {
	ID          int64      `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description" db:"description"`
	OwnerID     int64      `json:"owner_id" db:"owner_id"` // Immutable after creation
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at" db:"updated_at"`
}

// ItemPatch holds the fields of an item update. A nil Title is left unchanged.
// Description is applied only when DescriptionSet is true, so a nil
// Description with DescriptionSet clears it.
type ItemPatch struct {
	Title          *string
	Description    *string
	DescriptionSet bool
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Title == nil && !p.DescriptionSet
}

// ItemEvent is published whenever an item is created, updated or deleted.
type ItemEvent struct {
	EventID   string `json:"event_id"`
	Operation string `json:"operation"`
	ItemID    int64  `json:"item_id"`
	OwnerID   int64  `json:"owner_id"`
	ActorID   int64  `json:"actor_id"`
	Timestamp int64  `json:"timestamp"`
}

const (
	ItemCreated = "created"
	ItemUpdated = "updated"
	ItemDeleted = "deleted"
)
