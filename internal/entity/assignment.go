package entity

import (
	"time"

	"github.com/google/uuid"
)

// Assignment groups worksheet uploads under one teacher-facing title.
type Assignment struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Title     string     `json:"title"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
