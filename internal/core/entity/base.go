// Package entity holds the fields every ledger aggregate shares.
package entity

import (
	"time"

	"ledgerd/internal/core/id"
)

// Base contains identity, optimistic-lock version and audit timestamps.
type Base struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewBase creates a Base with generated ID stamped at now.
func NewBase(now time.Time) Base {
	return Base{
		ID:        id.New(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch increments version and moves UpdatedAt.
// Repositories compare the stored version against Version-1.
func (b *Base) Touch(now time.Time) {
	b.Version++
	b.UpdatedAt = now
}

// ExpectedVersion is the version the stored row must still have for an update to apply.
func (b *Base) ExpectedVersion() int {
	return b.Version - 1
}
