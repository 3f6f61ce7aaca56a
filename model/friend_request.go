package model

import (
	"fmt"
	"time"
)

// FriendRequest is the single row modeling the full lifecycle of a
// friendship between two users. IsApproved: nil=pending, true=accepted,
// false=rejected. Two users are friends iff an accepted row exists for
// their pair. Removal deletes the row so a new request can follow.
type FriendRequest struct {
	ID         int64 `gorm:"primaryKey;autoIncrement" json:"request_id"`
	SenderID   int64 `gorm:"index:idx_request_sender;not null" json:"sender_id"`
	ReceiverID int64 `gorm:"index:idx_request_receiver;not null" json:"receiver_id"`
	// PairKey is the canonical "min:max" of the two user IDs. Its unique
	// index is what guarantees at most one row per unordered pair; a second
	// concurrent insert fails at the storage layer instead of racing.
	PairKey     string     `gorm:"uniqueIndex;size:48;not null" json:"-"`
	IsApproved  *bool      `json:"is_approved"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RespondedAt *time.Time `json:"responded_at"`
}

// Pending reports whether the request has not been responded to yet.
func (r *FriendRequest) Pending() bool {
	return r.IsApproved == nil
}

// Accepted reports whether the request was approved.
func (r *FriendRequest) Accepted() bool {
	return r.IsApproved != nil && *r.IsApproved
}

// PairKey returns the canonical key for an unordered user pair.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
